package model

// TierSummary is the per-tier slice of the portfolio, recomputed from the same
// approved-offer set as the portfolio totals so the two reconcile exactly.
type TierSummary struct {
	Tier            string  `json:"tier"`
	Count           int     `json:"count"`
	EADSum          float64 `json:"ead_sum"`
	PDTermMean      float64 `json:"pd_term_mean"`
	LGDMean         float64 `json:"lgd_mean"`
	ExpectedLossSum float64 `json:"expected_loss_sum"`
}

// PortfolioSummary aggregates approved offers only. An empty portfolio yields
// zeros throughout, never a division fault.
type PortfolioSummary struct {
	SnapshotID string  `json:"snapshot_id"`
	Product    Product `json:"product"`

	RidersTotal    int     `json:"riders_total"`
	RidersApproved int     `json:"riders_approved"`
	ApprovalRate   float64 `json:"approval_rate"`

	GrossExposureSum float64 `json:"gross_exposure_sum"`
	AvgTicket        float64 `json:"avg_ticket"`
	ExpectedLossSum  float64 `json:"expected_loss_sum"`
	ExpectedLossRate float64 `json:"expected_loss_rate"`

	RepaymentWeeksMean float64 `json:"repayment_weeks_mean"`
	TermYearsMean      float64 `json:"term_years_mean"`
	APRMean            float64 `json:"apr_mean_approved"`
	APRWeightedByEAD   float64 `json:"apr_weighted_by_ead"`

	WeeklyDeductionSum        float64 `json:"weekly_deduction_sum"`
	WeeklyForecastSum         float64 `json:"weekly_payout_forecast_sum"`
	DeductionShareOfForecast  float64 `json:"deduction_share_weighted_of_forecast"`
	DeductionPctForecastP50   float64 `json:"deduction_pct_forecast_p50"`
	DeductionPctForecastP90   float64 `json:"deduction_pct_forecast_p90"`
	DeductionPctMeanPayoutP50 float64 `json:"deduction_pct_mean_p50"`
	DeductionPctMeanPayoutP90 float64 `json:"deduction_pct_mean_p90"`

	Tiers []TierSummary `json:"tiers"`
}

// WorkingCapitalSummary converts the offer sheet into 3PL partnership
// economics. Interest uses a simple-interest approximation over the term, not
// compounding; the arithmetic is intentionally transparent.
type WorkingCapitalSummary struct {
	SnapshotID string `json:"snapshot_id"`

	ApprovedRiders              int     `json:"approved_riders"`
	ExpectedWeeklyAdvances      float64 `json:"expected_weekly_advances"`
	ExpectedWeeklyDisbursal     float64 `json:"expected_weekly_disbursal"`
	ExpectedWeeklyReferralFee   float64 `json:"expected_weekly_referral_fee"`
	ExpectedInterestShareTerm   float64 `json:"expected_interest_revenue_share_term"`
	WorkingCapitalFreedEstimate float64 `json:"working_capital_freed_estimate"`

	TakeRate               float64 `json:"assumption_take_rate"`
	ReferralFeePerAdvance  float64 `json:"assumption_referral_fee_per_advance"`
	RevenueShareOfInterest float64 `json:"assumption_revenue_share_of_interest"`
}
