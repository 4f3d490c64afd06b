package portfolio

import (
	"sort"

	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/feature"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

// Summarize aggregates the offer table into a portfolio summary. Only
// approved offers carry exposure; an empty approved set yields zeros for every
// ratio and percentile rather than a division fault.
func Summarize(offers []model.Offer, snapshotID string, product model.Product) model.PortfolioSummary {
	s := model.PortfolioSummary{
		SnapshotID:  snapshotID,
		Product:     product,
		RidersTotal: len(offers),
	}

	var approved []model.Offer
	for _, o := range offers {
		if o.Approved {
			approved = append(approved, o)
		}
	}
	s.RidersApproved = len(approved)
	s.ApprovalRate = feature.SafeRatio(float64(len(approved)), float64(len(offers)))

	var aprSum, aprWeightedSum, weeksSum float64
	var pctForecast, pctMean []float64
	for _, o := range approved {
		s.GrossExposureSum += o.RecommendedLimit
		s.ExpectedLossSum += o.ExpectedLoss
		s.WeeklyDeductionSum += o.RecommendedWeeklyDeduction
		s.WeeklyForecastSum += o.PayoutForecastWeekly
		aprSum += o.APR
		aprWeightedSum += o.APR * o.RecommendedLimit
		weeksSum += float64(o.RepaymentWeeks)
		pctForecast = append(pctForecast, o.DeductionPctOfForecast)
		pctMean = append(pctMean, o.DeductionPctOfMean)
	}

	n := float64(len(approved))
	s.AvgTicket = feature.SafeRatio(s.GrossExposureSum, n)
	s.ExpectedLossRate = feature.SafeRatio(s.ExpectedLossSum, s.GrossExposureSum)
	s.RepaymentWeeksMean = feature.SafeRatio(weeksSum, n)
	s.TermYearsMean = s.RepaymentWeeksMean / 52.0
	s.APRMean = feature.SafeRatio(aprSum, n)
	s.APRWeightedByEAD = feature.SafeRatio(aprWeightedSum, s.GrossExposureSum)
	s.DeductionShareOfForecast = feature.SafeRatio(s.WeeklyDeductionSum, s.WeeklyForecastSum)
	s.DeductionPctForecastP50 = feature.Percentile(pctForecast, 0.50)
	s.DeductionPctForecastP90 = feature.Percentile(pctForecast, 0.90)
	s.DeductionPctMeanPayoutP50 = feature.Percentile(pctMean, 0.50)
	s.DeductionPctMeanPayoutP90 = feature.Percentile(pctMean, 0.90)

	s.Tiers = tierBreakdown(approved)

	zap.L().Info("portfolio: summarized",
		zap.Int("riders_total", s.RidersTotal),
		zap.Int("riders_approved", s.RidersApproved),
		zap.Float64("gross_exposure", s.GrossExposureSum),
	)
	return s
}

// tierBreakdown recomputes per-tier aggregates from the same approved set the
// portfolio totals came from, so tier sums reconcile exactly with the totals.
func tierBreakdown(approved []model.Offer) []model.TierSummary {
	byTier := make(map[string]*model.TierSummary)
	pdSum := make(map[string]float64)
	lgdSum := make(map[string]float64)
	for _, o := range approved {
		t, ok := byTier[o.Tier]
		if !ok {
			t = &model.TierSummary{Tier: o.Tier}
			byTier[o.Tier] = t
		}
		t.Count++
		t.EADSum += o.RecommendedLimit
		t.ExpectedLossSum += o.ExpectedLoss
		pdSum[o.Tier] += o.PDTerm
		lgdSum[o.Tier] += o.LGD
	}

	out := make([]model.TierSummary, 0, len(byTier))
	for tier, t := range byTier {
		t.PDTermMean = feature.SafeRatio(pdSum[tier], float64(t.Count))
		t.LGDMean = feature.SafeRatio(lgdSum[tier], float64(t.Count))
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tier < out[j].Tier })
	return out
}

// WorkingCapital converts the offer sheet into 3PL partnership economics.
// Interest uses a simple-interest approximation over the term (principal ×
// APR × term-fraction), not compounding.
func WorkingCapital(offers []model.Offer, cfg config.WorkingCapitalConfig, snapshotID string) model.WorkingCapitalSummary {
	s := model.WorkingCapitalSummary{
		SnapshotID:             snapshotID,
		TakeRate:               cfg.TakeRate,
		ReferralFeePerAdvance:  cfg.ReferralFeePerAdvance,
		RevenueShareOfInterest: cfg.RevenueShareOfInterest,
	}

	var limitSum, interestSum float64
	for _, o := range offers {
		if !o.Approved {
			continue
		}
		s.ApprovedRiders++
		limitSum += o.RecommendedLimit

		weeks := o.RepaymentWeeks
		if weeks < 1 {
			weeks = 1
		}
		interestSum += o.RecommendedLimit * o.APR * (float64(weeks) / 52.0)
	}

	s.ExpectedWeeklyAdvances = cfg.TakeRate * float64(s.ApprovedRiders)
	s.ExpectedWeeklyDisbursal = cfg.TakeRate * limitSum
	s.ExpectedWeeklyReferralFee = s.ExpectedWeeklyAdvances * cfg.ReferralFeePerAdvance
	s.ExpectedInterestShareTerm = cfg.RevenueShareOfInterest * cfg.TakeRate * interestSum
	// Disbursal shifts to the lender balance sheet instead of the 3PL's.
	s.WorkingCapitalFreedEstimate = s.ExpectedWeeklyDisbursal
	return s
}
