package model

// WeekMetrics holds the additive numeric metrics of one rider-week. Raw rows
// sharing a (rider, period) key have their metrics summed, which models
// multiple store/location rows for the same rider-week.
type WeekMetrics struct {
	NetPayout      float64 `json:"net_payout"`
	GrossEarnings  float64 `json:"gross_earnings"`
	BasePay        float64 `json:"base_pay"`
	IncentiveTotal float64 `json:"incentive_total"`
	Arrears        float64 `json:"arrears"`
	Deductions     float64 `json:"deductions"`
	ManagementFee  float64 `json:"management_fee"`
	TaxWithheld    float64 `json:"tax_withheld"`

	DeliveredOrders float64 `json:"delivered_orders"`
	CancelledOrders float64 `json:"cancelled_orders"`
	WeekdayOrders   float64 `json:"weekday_orders"`
	WeekendOrders   float64 `json:"weekend_orders"`
	AttendanceDays  float64 `json:"attendance_days"`
	DistanceKM      float64 `json:"distance_km"`
}

// Add accumulates o into m.
func (m *WeekMetrics) Add(o WeekMetrics) {
	m.NetPayout += o.NetPayout
	m.GrossEarnings += o.GrossEarnings
	m.BasePay += o.BasePay
	m.IncentiveTotal += o.IncentiveTotal
	m.Arrears += o.Arrears
	m.Deductions += o.Deductions
	m.ManagementFee += o.ManagementFee
	m.TaxWithheld += o.TaxWithheld
	m.DeliveredOrders += o.DeliveredOrders
	m.CancelledOrders += o.CancelledOrders
	m.WeekdayOrders += o.WeekdayOrders
	m.WeekendOrders += o.WeekendOrders
	m.AttendanceDays += o.AttendanceDays
	m.DistanceKM += o.DistanceKM
}

// RiderWeekFact is one aggregated payout/activity row per (rider, period).
// Invariant: exactly one fact per key; same-key raw rows are summed, never
// overwritten or dropped silently.
type RiderWeekFact struct {
	RiderKey string `json:"rider_key"`
	Period   Period `json:"period"`

	WeekMetrics

	// Provenance for QA: how many distinct extract files contributed rows.
	SourceFileCount int    `json:"source_file_count"`
	SourceFiles     string `json:"source_files"`

	Active bool `json:"is_active_week"`
}
