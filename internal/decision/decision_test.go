package decision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

func testConfig() *config.Config {
	return &config.Config{
		Activity: config.ActivityConfig{Rule: config.ActivityAnySignal},
		Gates: config.GateConfig{
			MinActiveWeeks:          4,
			MinCurrentStreak:        2,
			MaxWeeksSinceLastActive: 0,
			MinNetPayoutP10:         1500,
			MaxCancelRate:           0.08,
		},
		Decision: config.DecisionConfig{
			Product:           "salary_advance_lender",
			SigmaHaircut:      0.75,
			RepaymentWeeks:    4,
			BaseLimitHaircut:  0.90,
			MinTicket:         500,
			RoundTo:           100,
			LGD:               0.35,
			DeductionShareCap: 0.25,
		},
		Tiers:    config.DefaultTiers(),
		Fallback: config.DefaultFallback(),
	}
}

func strongRider() model.RiderFeatureRecord {
	return model.RiderFeatureRecord{
		RiderKey:             "cee_id:101",
		WeeksObserved:        12,
		ActiveWeeksWorked:    12,
		CurrentStreak:        8,
		WeeksSinceLastActive: 0,
		NetPayoutMean:        4000,
		NetPayoutStd:         400,
		NetPayoutCV:          0.1,
		NetPayoutP10:         3600,
		CancelRate:           0.02,
	}
}

func TestEvaluateApprovesStrongRider(t *testing.T) {
	cfg := testConfig()
	offers := Evaluate([]model.RiderFeatureRecord{strongRider()}, nil, cfg)
	require.Len(t, offers, 1)

	o := offers[0]
	assert.True(t, o.Approved)
	assert.Empty(t, o.DeclineReasons)
	assert.Equal(t, "A", o.Tier)
	assert.InDelta(t, 3600, o.PayoutForecastWeekly, 1e-9)
	assert.InDelta(t, 0.30, o.MaxDeductionShare, 1e-9)
	// 4 × 0.30 × 3600 = 4320, ×0.90 ×0.95 = 3693.6, floored to 3600
	assert.InDelta(t, 3600, o.RecommendedLimit, 1e-9)
	assert.InDelta(t, 900, o.RecommendedWeeklyDeduction, 1e-9)
	assert.InDelta(t, 0.35, o.APR, 1e-9)
	assert.InDelta(t, 0.010, o.PDTerm, 1e-9)
	assert.InDelta(t, 3600*0.010*0.35, o.ExpectedLoss, 1e-9)
	assert.InDelta(t, 0.25, o.DeductionPctOfForecast, 1e-9)
	assert.InDelta(t, 0.225, o.DeductionPctOfMean, 1e-9)
}

func TestEvaluateDeclineCollectsEveryFailedGate(t *testing.T) {
	f := model.RiderFeatureRecord{
		RiderKey:             "cee_id:102",
		ActiveWeeksWorked:    2,
		CurrentStreak:        1,
		WeeksSinceLastActive: 3,
		NetPayoutMean:        1000,
		NetPayoutStd:         500,
		NetPayoutCV:          0.5,
		NetPayoutP10:         800,
		CancelRate:           0.2,
	}

	offers := Evaluate([]model.RiderFeatureRecord{f}, nil, testConfig())
	require.Len(t, offers, 1)

	o := offers[0]
	assert.False(t, o.Approved)
	assert.Equal(t, []string{
		"active_weeks_worked<4",
		"current_streak<2",
		"weeks_since_last_active>0",
		"net_payout_p10<1500",
		"cancel_rate>0.08",
		"limit<500",
	}, o.DeclineReasons)

	// Declined offers still carry the full computation for transparency.
	assert.Equal(t, "D", o.Tier)
	assert.InDelta(t, 625, o.PayoutForecastWeekly, 1e-9)
	assert.InDelta(t, 400, o.RecommendedLimit, 1e-9)
	// No exposure without disbursal.
	assert.Zero(t, o.APR)
	assert.Zero(t, o.ExpectedLoss)
}

func TestEvaluateSortsOffersAndEchoesIdentity(t *testing.T) {
	cfg := testConfig()
	a := strongRider()
	a.RiderKey = "cee_id:200"
	b := strongRider()
	b.RiderKey = "cee_id:100"

	ids := map[string]model.RiderIdentity{
		"cee_id:100": {RiderKey: "cee_id:100", Name: "Asha Naik", City: "Pune"},
	}
	offers := Evaluate([]model.RiderFeatureRecord{a, b}, ids, cfg)
	require.Len(t, offers, 2)

	assert.Equal(t, "cee_id:100", offers[0].RiderKey)
	assert.Equal(t, "Asha Naik", offers[0].Name)
	assert.Equal(t, "Pune", offers[0].City)
	assert.Equal(t, "cee_id:200", offers[1].RiderKey)
	assert.Empty(t, offers[1].Name)
}

func TestEvaluate3PLCapsDeductionShare(t *testing.T) {
	cfg := testConfig()
	cfg.Decision.Product = "3pl_operator"

	offers := Evaluate([]model.RiderFeatureRecord{strongRider()}, nil, cfg)
	require.Len(t, offers, 1)
	// Tier A share 0.30 capped at 0.25 in operator mode.
	assert.InDelta(t, 0.25, offers[0].MaxDeductionShare, 1e-9)
}

func TestEvaluateConservation(t *testing.T) {
	// Weekly deduction times term reconstructs the limit exactly, for every
	// rider shape.
	shapes := []model.RiderFeatureRecord{
		strongRider(),
		{RiderKey: "r2", ActiveWeeksWorked: 7, CurrentStreak: 4, NetPayoutMean: 3000, NetPayoutStd: 1500, NetPayoutCV: 0.5, NetPayoutP10: 2000},
		{RiderKey: "r3", ActiveWeeksWorked: 4, CurrentStreak: 2, WeeksSinceLastActive: 1, NetPayoutMean: 2200, NetPayoutStd: 2000, NetPayoutCV: 0.9, NetPayoutP10: 1700},
	}
	cfg := testConfig()

	for _, o := range Evaluate(shapes, nil, cfg) {
		assert.InDelta(t, o.RecommendedLimit,
			o.RecommendedWeeklyDeduction*float64(o.RepaymentWeeks), 1e-9,
			"rider %s", o.RiderKey)
	}
}

func TestForecast(t *testing.T) {
	tests := []struct {
		name                  string
		mean, std, p10, sigma float64
		want                  float64
	}{
		{"p10 dominates", 4000, 400, 3600, 0.75, 3600},
		{"sigma dominates", 3000, 1500, 2000, 0.75, 1875},
		{"mean dominates", 2000, 0, 2500, 0.75, 2000},
		{"floored at zero", 1000, 5000, 900, 0.75, 0},
		{"zero sigma ignores volatility", 3000, 1500, 2800, 0, 2800},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Forecast(tt.mean, tt.std, tt.p10, tt.sigma)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.LessOrEqual(t, got, tt.mean)
		})
	}
}

func TestRoundingFloorsToMultiple(t *testing.T) {
	cfg := testConfig()
	cfg.Decision.RoundTo = 0 // disable rounding

	raw := Evaluate([]model.RiderFeatureRecord{strongRider()}, nil, cfg)[0]
	assert.InDelta(t, 3693.6, raw.RecommendedLimit, 1e-9)

	cfg.Decision.RoundTo = 100
	rounded := Evaluate([]model.RiderFeatureRecord{strongRider()}, nil, cfg)[0]
	assert.InDelta(t, 3600, rounded.RecommendedLimit, 1e-9)
}

func TestAssignTier(t *testing.T) {
	tiers := config.DefaultTiers()
	fallback := config.DefaultFallback()

	tests := []struct {
		name string
		f    model.RiderFeatureRecord
		want string
	}{
		{"tier A", model.RiderFeatureRecord{WeeksSinceLastActive: 0, ActiveWeeksWorked: 10, CurrentStreak: 6, NetPayoutCV: 0.45}, "A"},
		{"cv too high for A", model.RiderFeatureRecord{WeeksSinceLastActive: 0, ActiveWeeksWorked: 10, CurrentStreak: 6, NetPayoutCV: 0.46}, "B"},
		{"tier B", model.RiderFeatureRecord{WeeksSinceLastActive: 0, ActiveWeeksWorked: 6, CurrentStreak: 3, NetPayoutCV: 0.75}, "B"},
		{"tier C tolerates one stale week", model.RiderFeatureRecord{WeeksSinceLastActive: 1, ActiveWeeksWorked: 4, CurrentStreak: 2, NetPayoutCV: 1.10}, "C"},
		{"too stale for any tier", model.RiderFeatureRecord{WeeksSinceLastActive: 2, ActiveWeeksWorked: 12, CurrentStreak: 0, NetPayoutCV: 0.2}, "D"},
		{"volatile fallback", model.RiderFeatureRecord{WeeksSinceLastActive: 0, ActiveWeeksWorked: 12, CurrentStreak: 8, NetPayoutCV: 1.5}, "D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AssignTier(tt.f, tiers, fallback)
			assert.Equal(t, tt.want, got.Tier)
		})
	}
}

func TestTierMonotonicity(t *testing.T) {
	// A strictly stronger rider never lands in a worse tier.
	tiers := config.DefaultTiers()
	fallback := config.DefaultFallback()

	weaker := model.RiderFeatureRecord{WeeksSinceLastActive: 0, ActiveWeeksWorked: 6, CurrentStreak: 3, NetPayoutCV: 0.7}
	stronger := weaker
	stronger.ActiveWeeksWorked = 12
	stronger.CurrentStreak = 7
	stronger.NetPayoutCV = 0.3

	wt := AssignTier(weaker, tiers, fallback)
	st := AssignTier(stronger, tiers, fallback)
	assert.LessOrEqual(t, st.Tier, wt.Tier)
}
