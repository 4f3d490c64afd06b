package model

// RiderFeatureRecord is one behavioral/financial feature row per rider, derived
// by folding that rider's RiderWeekFact rows in period order. All continuity
// and recency fields are measured against the global most-recent period present
// in the dataset, not the rider's own last row, so a rider who stopped
// appearing is correctly penalized.
type RiderFeatureRecord struct {
	RiderKey string `json:"rider_key"`

	WeeksObserved        int `json:"weeks_observed"`
	ActiveWeeksWorked    int `json:"active_weeks_worked"`
	LongestStreak        int `json:"longest_consecutive_active_weeks"`
	CurrentStreak        int `json:"current_consecutive_active_weeks"`
	GapCount             int `json:"gap_count_between_active_weeks"`
	MaxGapWeeks          int `json:"max_gap_weeks"`
	WeeksSinceLastActive int `json:"weeks_since_last_active"`

	// Net payout distribution over active weeks with a nonzero payout.
	NetPayoutMean   float64 `json:"net_payout_mean"`
	NetPayoutStd    float64 `json:"net_payout_std"`
	NetPayoutCV     float64 `json:"net_payout_cv"`
	NetPayoutMedian float64 `json:"net_payout_median"`
	NetPayoutP10    float64 `json:"net_payout_p10"`
	NetPayoutP90    float64 `json:"net_payout_p90"`
	NetPayoutMin    float64 `json:"net_payout_min"`
	NetPayoutMax    float64 `json:"net_payout_max"`

	// Recent-window snapshot over the rider's last four observed weeks.
	Last4PayoutMean  float64 `json:"net_payout_last4_mean"`
	ActiveWeeksLast4 int     `json:"active_weeks_last4"`

	TotalNetPayout float64 `json:"total_net_payout_sum"`
	BasePaySum     float64 `json:"base_pay_sum"`
	IncentiveSum   float64 `json:"incentive_total_sum"`
	IncentiveShare float64 `json:"incentive_share"`

	DeliveredSum  float64 `json:"delivered_orders_sum"`
	CancelledSum  float64 `json:"cancelled_orders_sum"`
	CancelRate    float64 `json:"cancel_rate"`
	WeekdaySum    float64 `json:"weekday_orders_sum"`
	WeekendSum    float64 `json:"weekend_orders_sum"`
	WeekendShare  float64 `json:"weekend_share"`
	AttendanceSum float64 `json:"attendance_days_sum"`
}
