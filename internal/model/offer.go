package model

// Product selects the underwriting lens.
type Product string

const (
	// ProductLender sizes offers for a salary-advance lender's own book.
	ProductLender Product = "salary_advance_lender"
	// Product3PL sizes offers for a 3PL operator partnership; it caps the
	// deduction share harder and adds a working-capital summary.
	Product3PL Product = "3pl_operator"
)

// Valid reports whether p is a known product mode.
func (p Product) Valid() bool {
	return p == ProductLender || p == Product3PL
}

// Offer is the per-rider underwriting outcome for one pipeline run. Declined
// riders still carry a fully computed forecast and tier for transparency, but
// exposure, expected loss, and APR are zero: exposure only exists for
// disbursed offers.
type Offer struct {
	RiderKey string `json:"rider_key"`
	Product  Product `json:"product"`

	Approved       bool     `json:"approved"`
	DeclineReasons []string `json:"decline_reasons,omitempty"`
	Tier           string   `json:"risk_tier"`

	PayoutForecastWeekly       float64 `json:"payout_forecast_weekly"`
	MaxDeductionShare          float64 `json:"max_deduction_share"`
	RecommendedLimit           float64 `json:"recommended_limit"`
	RecommendedWeeklyDeduction float64 `json:"recommended_weekly_deduction"`
	RepaymentWeeks             int     `json:"repayment_weeks"`

	APR          float64 `json:"apr"`
	PDTerm       float64 `json:"pd_term"`
	LGD          float64 `json:"lgd"`
	ExpectedLoss float64 `json:"expected_loss"`

	DeductionPctOfForecast float64 `json:"deduction_pct_of_forecast_payout"`
	DeductionPctOfMean     float64 `json:"deduction_pct_of_mean_payout"`

	// Identity echo for the offer sheet.
	Name         string `json:"name,omitempty"`
	City         string `json:"city,omitempty"`
	Provider     string `json:"provider,omitempty"`
	DeliveryMode string `json:"delivery_mode,omitempty"`
}
