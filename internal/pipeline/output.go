package pipeline

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/ingest"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

// Artifact file names within a run directory.
const (
	FileFacts          = "fact_rider_week.csv"
	FileFeatures       = "rider_features.csv"
	FileIdentities     = "dim_rider.csv"
	FileConflicts      = "qa_identity_conflicts.csv"
	FileIngestReport   = "ingestion_file_report.csv"
	FileOffers         = "offers.csv"
	FileSummary        = "portfolio_summary.csv"
	FileWorkingCapital = "working_capital_summary.csv"
)

// writeArtifacts stages every artifact of the run in a temp directory and
// renames it into place, so a run either lands complete or not at all. A run
// directory that already exists is left untouched: the snapshot ID is
// content-derived, so its artifacts are already identical.
func writeArtifacts(outRoot string, res *Result) (string, error) {
	dest := filepath.Join(outRoot, "run_"+res.SnapshotID)
	if _, err := os.Stat(dest); err == nil {
		zap.L().Info("pipeline: snapshot already written", zap.String("run_dir", dest))
		return dest, nil
	}
	if err := os.MkdirAll(outRoot, 0o755); err != nil {
		return "", eris.Wrapf(err, "pipeline: create out dir %s", outRoot)
	}

	tmp := dest + ".tmp"
	if err := os.RemoveAll(tmp); err != nil {
		return "", eris.Wrap(err, "pipeline: clear stale temp dir")
	}
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", eris.Wrap(err, "pipeline: create temp dir")
	}

	write := func(name string, header []string, rows [][]string) error {
		return writeCSV(filepath.Join(tmp, name), header, rows)
	}

	var err error
	if res.hasIngest {
		err = write(FileFacts, factHeader, factRows(res.Facts))
		if err == nil {
			err = write(FileFeatures, featureHeader, featureRows(res.Features))
		}
		if err == nil {
			err = write(FileIdentities, identityHeader, identityRows(res.Identities))
		}
		if err == nil {
			err = write(FileConflicts, conflictHeader, conflictRows(res.Conflicts))
		}
		if err == nil {
			err = write(FileIngestReport, reportHeader, reportRows(res.Reports))
		}
	}
	if err == nil && res.hasOffers {
		err = write(FileOffers, offerHeader, offerRows(res.Offers))
		if err == nil {
			err = write(FileSummary, summaryHeader(res.Summary), summaryRow(res.Summary))
		}
		if err == nil && res.WorkingCapital != nil {
			err = write(FileWorkingCapital, wcHeader, wcRow(*res.WorkingCapital))
		}
	}
	if err != nil {
		os.RemoveAll(tmp)
		return "", err
	}

	if err := os.Rename(tmp, dest); err != nil {
		os.RemoveAll(tmp)
		return "", eris.Wrapf(err, "pipeline: publish run dir %s", dest)
	}
	return dest, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return eris.Wrapf(err, "pipeline: write header %s", path)
	}
	if err := w.WriteAll(rows); err != nil {
		f.Close()
		return eris.Wrapf(err, "pipeline: write rows %s", path)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return eris.Wrapf(err, "pipeline: flush %s", path)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return eris.Wrapf(err, "pipeline: sync %s", path)
	}
	return eris.Wrapf(f.Close(), "pipeline: close %s", path)
}

// fmtF formats a float for an artifact. Numeric degeneracies never reach the
// artifacts as NaN or Inf; they resolve to 0 by policy.
func fmtF(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func fmtI(v int) string { return strconv.Itoa(v) }

func fmtB(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

var factHeader = []string{
	"rider_key", "week_id", "year", "month", "week",
	"net_payout", "gross_earnings", "base_pay", "incentive_total",
	"arrears", "deductions", "management_fee", "tax_withheld",
	"delivered_orders", "cancelled_orders", "weekday_orders", "weekend_orders",
	"attendance_days", "distance_km",
	"source_file_count", "source_files", "is_active_week",
}

func factRows(facts []model.RiderWeekFact) [][]string {
	rows := make([][]string, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, []string{
			f.RiderKey, f.Period.Key(), fmtI(f.Period.Year), fmtI(f.Period.Month), fmtI(f.Period.Week),
			fmtF(f.NetPayout), fmtF(f.GrossEarnings), fmtF(f.BasePay), fmtF(f.IncentiveTotal),
			fmtF(f.Arrears), fmtF(f.Deductions), fmtF(f.ManagementFee), fmtF(f.TaxWithheld),
			fmtF(f.DeliveredOrders), fmtF(f.CancelledOrders), fmtF(f.WeekdayOrders), fmtF(f.WeekendOrders),
			fmtF(f.AttendanceDays), fmtF(f.DistanceKM),
			fmtI(f.SourceFileCount), f.SourceFiles, fmtB(f.Active),
		})
	}
	return rows
}

var featureHeader = []string{
	"rider_key", "weeks_observed", "active_weeks_worked",
	"longest_consecutive_active_weeks", "current_consecutive_active_weeks",
	"gap_count_between_active_weeks", "max_gap_weeks", "weeks_since_last_active",
	"net_payout_mean", "net_payout_std", "net_payout_cv", "net_payout_median",
	"net_payout_p10", "net_payout_p90", "net_payout_min", "net_payout_max",
	"net_payout_last4_mean", "active_weeks_last4",
	"total_net_payout_sum", "base_pay_sum", "incentive_total_sum", "incentive_share",
	"delivered_orders_sum", "cancelled_orders_sum", "cancel_rate",
	"weekday_orders_sum", "weekend_orders_sum", "weekend_share", "attendance_days_sum",
}

func featureRows(features []model.RiderFeatureRecord) [][]string {
	rows := make([][]string, 0, len(features))
	for _, r := range features {
		rows = append(rows, []string{
			r.RiderKey, fmtI(r.WeeksObserved), fmtI(r.ActiveWeeksWorked),
			fmtI(r.LongestStreak), fmtI(r.CurrentStreak),
			fmtI(r.GapCount), fmtI(r.MaxGapWeeks), fmtI(r.WeeksSinceLastActive),
			fmtF(r.NetPayoutMean), fmtF(r.NetPayoutStd), fmtF(r.NetPayoutCV), fmtF(r.NetPayoutMedian),
			fmtF(r.NetPayoutP10), fmtF(r.NetPayoutP90), fmtF(r.NetPayoutMin), fmtF(r.NetPayoutMax),
			fmtF(r.Last4PayoutMean), fmtI(r.ActiveWeeksLast4),
			fmtF(r.TotalNetPayout), fmtF(r.BasePaySum), fmtF(r.IncentiveSum), fmtF(r.IncentiveShare),
			fmtF(r.DeliveredSum), fmtF(r.CancelledSum), fmtF(r.CancelRate),
			fmtF(r.WeekdaySum), fmtF(r.WeekendSum), fmtF(r.WeekendShare), fmtF(r.AttendanceSum),
		})
	}
	return rows
}

var identityHeader = []string{
	"rider_key", "cee_id", "name", "tax_id", "city", "provider", "delivery_mode",
	"observed_weeks", "name_variants", "tax_id_variants", "city_variants",
}

func identityRows(ids []model.RiderIdentity) [][]string {
	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		rows = append(rows, []string{
			id.RiderKey, id.CEEID, id.Name, id.TaxID, id.City, id.Provider, id.DeliveryMode,
			fmtI(id.ObservedWeeks), fmtI(id.NameVariants), fmtI(id.TaxIDVariants), fmtI(id.CityVariants),
		})
	}
	return rows
}

var conflictHeader = []string{
	"rider_key", "field", "canonical", "variants", "periods", "observed_weeks",
}

func conflictRows(conflicts []model.IdentityConflict) [][]string {
	rows := make([][]string, 0, len(conflicts))
	for _, c := range conflicts {
		rows = append(rows, []string{
			c.RiderKey, c.Field, c.Canonical,
			strings.Join(c.Variants, "|"), strings.Join(c.Periods, "|"),
			fmtI(c.ObservedWeeks),
		})
	}
	return rows
}

var reportHeader = []string{
	"source_file", "rows", "cols", "net_payout_column",
	"has_cee_id", "has_cee_name", "has_pan", "has_delivered_orders", "has_attendance",
	"period_from_filename",
	"rows_excluded_bad_numeric", "rows_excluded_no_period", "rows_excluded_no_identity",
	"error",
}

func reportRows(reports []ingest.FileReport) [][]string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.SourceFile, fmtI(r.Rows), fmtI(r.Cols), r.NetPayoutColumn,
			fmtB(r.HasRiderID), fmtB(r.HasName), fmtB(r.HasTaxID), fmtB(r.HasDeliveredOrders), fmtB(r.HasAttendance),
			fmtB(r.PeriodFromFilename),
			fmtI(r.RowsExcludedBadNumeric), fmtI(r.RowsExcludedNoPeriod), fmtI(r.RowsExcludedNoIdentity),
			r.Error,
		})
	}
	return rows
}

var offerHeader = []string{
	"rider_key", "product", "approved", "risk_tier", "decline_reasons",
	"payout_forecast_weekly", "max_deduction_share",
	"recommended_limit", "recommended_weekly_deduction", "repayment_weeks",
	"apr", "pd_term", "lgd", "expected_loss",
	"deduction_pct_of_forecast_payout", "deduction_pct_of_mean_payout",
	"name", "city", "provider", "delivery_mode",
}

func offerRows(offers []model.Offer) [][]string {
	rows := make([][]string, 0, len(offers))
	for _, o := range offers {
		rows = append(rows, []string{
			o.RiderKey, string(o.Product), fmtB(o.Approved), o.Tier,
			strings.Join(o.DeclineReasons, ";"),
			fmtF(o.PayoutForecastWeekly), fmtF(o.MaxDeductionShare),
			fmtF(o.RecommendedLimit), fmtF(o.RecommendedWeeklyDeduction), fmtI(o.RepaymentWeeks),
			fmtF(o.APR), fmtF(o.PDTerm), fmtF(o.LGD), fmtF(o.ExpectedLoss),
			fmtF(o.DeductionPctOfForecast), fmtF(o.DeductionPctOfMean),
			o.Name, o.City, o.Provider, o.DeliveryMode,
		})
	}
	return rows
}

// summaryHeader flattens the portfolio summary, tier block included, into one
// wide row so spreadsheet users can diff runs side by side.
func summaryHeader(s model.PortfolioSummary) []string {
	h := []string{
		"snapshot_id", "product", "riders_total", "riders_approved", "approval_rate",
		"gross_exposure_sum", "avg_ticket", "expected_loss_sum", "expected_loss_rate",
		"repayment_weeks_mean", "term_years_mean", "apr_mean_approved", "apr_weighted_by_ead",
		"weekly_deduction_sum", "weekly_payout_forecast_sum", "deduction_share_weighted_of_forecast",
		"deduction_pct_forecast_p50", "deduction_pct_forecast_p90",
		"deduction_pct_mean_p50", "deduction_pct_mean_p90",
	}
	for _, t := range s.Tiers {
		prefix := "tier_" + t.Tier + "_"
		h = append(h, prefix+"count", prefix+"ead_sum", prefix+"pd_term", prefix+"lgd", prefix+"expected_loss_sum")
	}
	return h
}

func summaryRow(s model.PortfolioSummary) [][]string {
	row := []string{
		s.SnapshotID, string(s.Product), fmtI(s.RidersTotal), fmtI(s.RidersApproved), fmtF(s.ApprovalRate),
		fmtF(s.GrossExposureSum), fmtF(s.AvgTicket), fmtF(s.ExpectedLossSum), fmtF(s.ExpectedLossRate),
		fmtF(s.RepaymentWeeksMean), fmtF(s.TermYearsMean), fmtF(s.APRMean), fmtF(s.APRWeightedByEAD),
		fmtF(s.WeeklyDeductionSum), fmtF(s.WeeklyForecastSum), fmtF(s.DeductionShareOfForecast),
		fmtF(s.DeductionPctForecastP50), fmtF(s.DeductionPctForecastP90),
		fmtF(s.DeductionPctMeanPayoutP50), fmtF(s.DeductionPctMeanPayoutP90),
	}
	for _, t := range s.Tiers {
		row = append(row, fmtI(t.Count), fmtF(t.EADSum), fmtF(t.PDTermMean), fmtF(t.LGDMean), fmtF(t.ExpectedLossSum))
	}
	return [][]string{row}
}

var wcHeader = []string{
	"snapshot_id", "approved_riders",
	"expected_weekly_advances", "expected_weekly_disbursal", "expected_weekly_referral_fee",
	"expected_interest_revenue_share_term", "working_capital_freed_estimate",
	"assumption_take_rate", "assumption_referral_fee_per_advance", "assumption_revenue_share_of_interest",
}

func wcRow(s model.WorkingCapitalSummary) [][]string {
	return [][]string{{
		s.SnapshotID, fmtI(s.ApprovedRiders),
		fmtF(s.ExpectedWeeklyAdvances), fmtF(s.ExpectedWeeklyDisbursal), fmtF(s.ExpectedWeeklyReferralFee),
		fmtF(s.ExpectedInterestShareTerm), fmtF(s.WorkingCapitalFreedEstimate),
		fmtF(s.TakeRate), fmtF(s.ReferralFeePerAdvance), fmtF(s.RevenueShareOfInterest),
	}}
}
