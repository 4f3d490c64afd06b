package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

func approvedOffer(key, tier string, limit, apr, pd float64) model.Offer {
	return model.Offer{
		RiderKey:                   key,
		Product:                    model.ProductLender,
		Approved:                   true,
		Tier:                       tier,
		RecommendedLimit:           limit,
		RecommendedWeeklyDeduction: limit / 4,
		RepaymentWeeks:             4,
		PayoutForecastWeekly:       limit, // arbitrary but nonzero
		APR:                        apr,
		PDTerm:                     pd,
		LGD:                        0.35,
		ExpectedLoss:               limit * pd * 0.35,
		DeductionPctOfForecast:     0.25,
		DeductionPctOfMean:         0.20,
	}
}

func declinedOffer(key string) model.Offer {
	return model.Offer{
		RiderKey:       key,
		Product:        model.ProductLender,
		Approved:       false,
		Tier:           "D",
		DeclineReasons: []string{"active_weeks_worked<4"},
	}
}

func TestSummarizeEmptyPortfolio(t *testing.T) {
	s := Summarize(nil, "snap01", model.ProductLender)

	assert.Equal(t, 0, s.RidersTotal)
	assert.Equal(t, 0, s.RidersApproved)
	assert.Zero(t, s.ApprovalRate)
	assert.Zero(t, s.AvgTicket)
	assert.Zero(t, s.ExpectedLossRate)
	assert.Zero(t, s.APRWeightedByEAD)
	assert.Empty(t, s.Tiers)
}

func TestSummarizeAllDeclined(t *testing.T) {
	offers := []model.Offer{declinedOffer("r1"), declinedOffer("r2")}
	s := Summarize(offers, "snap01", model.ProductLender)

	assert.Equal(t, 2, s.RidersTotal)
	assert.Equal(t, 0, s.RidersApproved)
	assert.Zero(t, s.ApprovalRate)
	assert.Zero(t, s.GrossExposureSum)
	assert.Empty(t, s.Tiers)
}

func TestSummarizeTotals(t *testing.T) {
	offers := []model.Offer{
		approvedOffer("r1", "A", 4000, 0.35, 0.010),
		approvedOffer("r2", "B", 2000, 0.40, 0.020),
		declinedOffer("r3"),
	}
	s := Summarize(offers, "snap01", model.ProductLender)

	assert.Equal(t, "snap01", s.SnapshotID)
	assert.Equal(t, 3, s.RidersTotal)
	assert.Equal(t, 2, s.RidersApproved)
	assert.InDelta(t, 2.0/3.0, s.ApprovalRate, 1e-9)
	assert.InDelta(t, 6000, s.GrossExposureSum, 1e-9)
	assert.InDelta(t, 3000, s.AvgTicket, 1e-9)
	assert.InDelta(t, 4000*0.010*0.35+2000*0.020*0.35, s.ExpectedLossSum, 1e-9)
	assert.InDelta(t, s.ExpectedLossSum/6000, s.ExpectedLossRate, 1e-9)
	assert.InDelta(t, 0.375, s.APRMean, 1e-9)
	// EAD-weighted: (0.35×4000 + 0.40×2000) / 6000
	assert.InDelta(t, (0.35*4000+0.40*2000)/6000, s.APRWeightedByEAD, 1e-9)
	assert.InDelta(t, 4.0, s.RepaymentWeeksMean, 1e-9)
	assert.InDelta(t, 4.0/52.0, s.TermYearsMean, 1e-9)
	assert.InDelta(t, 1500, s.WeeklyDeductionSum, 1e-9)
}

func TestSummarizeTierBreakdownReconciles(t *testing.T) {
	offers := []model.Offer{
		approvedOffer("r1", "A", 4000, 0.35, 0.010),
		approvedOffer("r2", "A", 3000, 0.35, 0.010),
		approvedOffer("r3", "B", 2000, 0.40, 0.020),
		declinedOffer("r4"),
	}
	s := Summarize(offers, "snap01", model.ProductLender)

	require.Len(t, s.Tiers, 2)
	assert.Equal(t, "A", s.Tiers[0].Tier)
	assert.Equal(t, 2, s.Tiers[0].Count)
	assert.Equal(t, "B", s.Tiers[1].Tier)

	var eadSum, elSum float64
	var count int
	for _, tier := range s.Tiers {
		eadSum += tier.EADSum
		elSum += tier.ExpectedLossSum
		count += tier.Count
	}
	assert.Equal(t, s.RidersApproved, count)
	assert.InDelta(t, s.GrossExposureSum, eadSum, 1e-9)
	assert.InDelta(t, s.ExpectedLossSum, elSum, 1e-9)

	assert.InDelta(t, 0.010, s.Tiers[0].PDTermMean, 1e-9)
	assert.InDelta(t, 0.35, s.Tiers[0].LGDMean, 1e-9)
}

func TestWorkingCapital(t *testing.T) {
	cfg := config.WorkingCapitalConfig{
		TakeRate:               0.40,
		ReferralFeePerAdvance:  125,
		RevenueShareOfInterest: 0.20,
	}
	offers := []model.Offer{
		approvedOffer("r1", "A", 4000, 0.35, 0.010),
		approvedOffer("r2", "B", 2000, 0.40, 0.020),
		declinedOffer("r3"),
	}

	s := WorkingCapital(offers, cfg, "snap01")

	assert.Equal(t, 2, s.ApprovedRiders)
	assert.InDelta(t, 0.8, s.ExpectedWeeklyAdvances, 1e-9)
	assert.InDelta(t, 2400, s.ExpectedWeeklyDisbursal, 1e-9)
	assert.InDelta(t, 100, s.ExpectedWeeklyReferralFee, 1e-9)

	interest := 4000*0.35*(4.0/52.0) + 2000*0.40*(4.0/52.0)
	assert.InDelta(t, 0.20*0.40*interest, s.ExpectedInterestShareTerm, 1e-9)
	assert.InDelta(t, s.ExpectedWeeklyDisbursal, s.WorkingCapitalFreedEstimate, 1e-9)

	// Assumptions echoed into the artifact.
	assert.InDelta(t, 0.40, s.TakeRate, 1e-9)
	assert.InDelta(t, 125, s.ReferralFeePerAdvance, 1e-9)
}

func TestWorkingCapitalEmpty(t *testing.T) {
	s := WorkingCapital(nil, config.WorkingCapitalConfig{TakeRate: 0.4}, "snap01")
	assert.Zero(t, s.ApprovedRiders)
	assert.Zero(t, s.ExpectedWeeklyDisbursal)
	assert.Zero(t, s.WorkingCapitalFreedEstimate)
}
