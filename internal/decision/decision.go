package decision

import (
	"math"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/feature"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

// Evaluate runs the decision engine over every feature record and returns one
// offer per rider, sorted by rider key. Decline is a normal terminal state
// with structured reasons, never an error; declined riders still carry a fully
// computed forecast and tier for transparency but no exposure.
func Evaluate(features []model.RiderFeatureRecord, identities map[string]model.RiderIdentity, cfg *config.Config) []model.Offer {
	offers := make([]model.Offer, 0, len(features))
	approved := 0
	for _, f := range features {
		o := evaluateOne(f, cfg)
		if id, ok := identities[f.RiderKey]; ok {
			o.Name = id.Name
			o.City = id.City
			o.Provider = id.Provider
			o.DeliveryMode = id.DeliveryMode
		}
		if o.Approved {
			approved++
		}
		offers = append(offers, o)
	}
	sort.Slice(offers, func(i, j int) bool { return offers[i].RiderKey < offers[j].RiderKey })

	zap.L().Info("decision: evaluated offers",
		zap.Int("riders", len(offers)),
		zap.Int("approved", approved),
		zap.String("product", cfg.Decision.Product),
	)
	return offers
}

func evaluateOne(f model.RiderFeatureRecord, cfg *config.Config) model.Offer {
	d := cfg.Decision
	product := model.Product(d.Product)

	tier := AssignTier(f, cfg.Tiers, cfg.Fallback)

	share := tier.MaxDeductionShare
	if product == model.Product3PL && share > d.DeductionShareCap {
		share = d.DeductionShareCap
	}

	forecast := Forecast(f.NetPayoutMean, f.NetPayoutStd, f.NetPayoutP10, d.SigmaHaircut)
	reasons := gateReasons(f, cfg.Gates)

	// Limit sizing: weekly repayment capacity times term, discounted twice.
	collectible := share * forecast
	rawLimit := float64(d.RepaymentWeeks) * collectible
	limit := rawLimit * d.BaseLimitHaircut * tier.LimitHaircut

	// The limit floor is a sixth, limit-derived gate evaluated after tiering;
	// its reason is appended even when every eligibility gate passed.
	if limit < d.MinTicket {
		reasons = append(reasons, "limit<"+formatNum(d.MinTicket))
	}
	if d.RoundTo > 0 {
		// Floor, not round-to-nearest: never exceed the haircut ceiling.
		limit = math.Floor(limit/float64(d.RoundTo)) * float64(d.RoundTo)
	}
	weeklyDeduction := limit / float64(d.RepaymentWeeks)

	o := model.Offer{
		RiderKey:                   f.RiderKey,
		Product:                    product,
		Approved:                   len(reasons) == 0,
		DeclineReasons:             reasons,
		Tier:                       tier.Tier,
		PayoutForecastWeekly:       forecast,
		MaxDeductionShare:          share,
		RecommendedLimit:           limit,
		RecommendedWeeklyDeduction: weeklyDeduction,
		RepaymentWeeks:             d.RepaymentWeeks,
		PDTerm:                     tier.PD,
		LGD:                        d.LGD,
		DeductionPctOfForecast:     feature.SafeRatio(weeklyDeduction, forecast),
		DeductionPctOfMean:         feature.SafeRatio(weeklyDeduction, f.NetPayoutMean),
	}

	// Exposure only exists for disbursed offers.
	if o.Approved {
		o.APR = tier.APR
		o.ExpectedLoss = limit * tier.PD * d.LGD
	}
	return o
}

// Forecast is the conservative weekly payout estimate:
// min(mean, mean − sigma·std, p10), floored at zero. Taking a min rather than
// a weighted blend lets any one downside signal dominate and pull the forecast
// down.
func Forecast(mean, std, p10, sigma float64) float64 {
	v := math.Min(mean, math.Min(mean-sigma*std, p10))
	return math.Max(0, v)
}

// gateReasons evaluates all five hard gates independently and returns every
// failing gate's reason code in the fixed canonical order.
func gateReasons(f model.RiderFeatureRecord, g config.GateConfig) []string {
	var reasons []string
	if f.ActiveWeeksWorked < g.MinActiveWeeks {
		reasons = append(reasons, "active_weeks_worked<"+strconv.Itoa(g.MinActiveWeeks))
	}
	if f.CurrentStreak < g.MinCurrentStreak {
		reasons = append(reasons, "current_streak<"+strconv.Itoa(g.MinCurrentStreak))
	}
	if f.WeeksSinceLastActive > g.MaxWeeksSinceLastActive {
		reasons = append(reasons, "weeks_since_last_active>"+strconv.Itoa(g.MaxWeeksSinceLastActive))
	}
	if f.NetPayoutP10 < g.MinNetPayoutP10 {
		reasons = append(reasons, "net_payout_p10<"+formatNum(g.MinNetPayoutP10))
	}
	if f.CancelRate > g.MaxCancelRate {
		reasons = append(reasons, "cancel_rate>"+formatNum(g.MaxCancelRate))
	}
	return reasons
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
