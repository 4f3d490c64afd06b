package ingest

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/model"
)

// RawRow is one normalized extract row before rider-week aggregation. Identity
// attributes are carried verbatim; the aggregator derives the rider key.
type RawRow struct {
	SourceFile string

	CEEID        string
	Name         string
	TaxID        string
	City         string
	Provider     string
	DeliveryMode string

	Period  model.Period
	Metrics model.WeekMetrics
}

// FileReport is the per-file slice of the ingestion-quality report.
type FileReport struct {
	SourceFile string `json:"source_file"`
	Rows       int    `json:"rows"`
	Cols       int    `json:"cols"`

	NetPayoutColumn    string `json:"net_payout_column"`
	HasRiderID         bool   `json:"has_cee_id"`
	HasName            bool   `json:"has_cee_name"`
	HasTaxID           bool   `json:"has_pan"`
	HasDeliveredOrders bool   `json:"has_delivered_orders"`
	HasAttendance      bool   `json:"has_attendance"`
	PeriodFromFilename bool   `json:"period_from_filename"`

	RowsExcludedBadNumeric int `json:"rows_excluded_bad_numeric"`
	RowsExcludedNoPeriod   int `json:"rows_excluded_no_period"`
	// RowsExcludedNoIdentity is filled in by the aggregator, which owns
	// rider-key derivation.
	RowsExcludedNoIdentity int `json:"rows_excluded_no_identity"`

	Error string `json:"error,omitempty"`
}

// metricColumns maps canonical header names to WeekMetrics fields.
var metricColumns = map[string]func(*model.WeekMetrics, float64){
	"gross_earnings":   func(m *model.WeekMetrics, v float64) { m.GrossEarnings = v },
	"base_pay":         func(m *model.WeekMetrics, v float64) { m.BasePay = v },
	"incentive_total":  func(m *model.WeekMetrics, v float64) { m.IncentiveTotal = v },
	"arrears":          func(m *model.WeekMetrics, v float64) { m.Arrears = v },
	"deductions":       func(m *model.WeekMetrics, v float64) { m.Deductions = v },
	"management_fee":   func(m *model.WeekMetrics, v float64) { m.ManagementFee = v },
	"tax_withheld":     func(m *model.WeekMetrics, v float64) { m.TaxWithheld = v },
	"delivered_orders": func(m *model.WeekMetrics, v float64) { m.DeliveredOrders = v },
	"cancelled_orders": func(m *model.WeekMetrics, v float64) { m.CancelledOrders = v },
	"weekday_orders":   func(m *model.WeekMetrics, v float64) { m.WeekdayOrders = v },
	"weekend_orders":   func(m *model.WeekMetrics, v float64) { m.WeekendOrders = v },
	"attendance_days":  func(m *model.WeekMetrics, v float64) { m.AttendanceDays = v },
	"distance_km":      func(m *model.WeekMetrics, v float64) { m.DistanceKM = v },
}

// LoadDir reads every weekly extract under dir (sorted by name, Office temp
// files skipped) and returns the normalized rows plus the per-file quality
// report. A file-level problem (unreadable, no net payout column) skips that
// file and records the reason; a row-level problem excludes only the row.
func LoadDir(dir string, netPayoutCandidates []string) ([]RawRow, []FileReport, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "ingest: read dir %s", dir)
	}

	var files []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, "~$") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
			continue
		}
		files = append(files, name)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, nil, eris.Errorf("ingest: no .xlsx files found in %s", dir)
	}

	var rows []RawRow
	reports := make([]FileReport, 0, len(files))
	for _, name := range files {
		fileRows, report := loadFile(filepath.Join(dir, name), netPayoutCandidates)
		rows = append(rows, fileRows...)
		reports = append(reports, report)
	}

	zap.L().Info("ingest: loaded extracts",
		zap.Int("files", len(files)),
		zap.Int("rows", len(rows)),
	)
	return rows, reports, nil
}

func loadFile(path string, netPayoutCandidates []string) ([]RawRow, FileReport) {
	name := filepath.Base(path)
	report := FileReport{SourceFile: name}

	sheet, err := sheetRows(path)
	if err != nil {
		report.Error = err.Error()
		zap.L().Warn("ingest: skipping unreadable file", zap.String("file", name), zap.Error(err))
		return nil, report
	}
	if len(sheet) == 0 {
		report.Error = "empty sheet"
		return nil, report
	}

	cols := make(map[string]int, len(sheet[0]))
	for i, h := range sheet[0] {
		if c := canonicalHeader(h); c != "" {
			cols[c] = i
		}
	}
	report.Cols = len(cols)
	_, report.HasRiderID = cols["cee_id"]
	_, report.HasName = cols["cee_name"]
	_, report.HasTaxID = cols["pan"]
	_, report.HasDeliveredOrders = cols["delivered_orders"]
	_, report.HasAttendance = cols["attendance_days"]

	netCol := ""
	for _, c := range netPayoutCandidates {
		if _, ok := cols[c]; ok {
			netCol = c
			break
		}
	}
	if netCol == "" {
		report.Error = "no net payout column among candidates"
		zap.L().Warn("ingest: skipping file without a net payout column", zap.String("file", name))
		return nil, report
	}
	report.NetPayoutColumn = netCol

	fnYear, fnMonth, fnWeek := parsePeriodFromFilename(path)
	_, hasYearCol := cols["year"]
	_, hasMonthCol := cols["month"]
	_, hasWeekCol := cols["week"]
	report.PeriodFromFilename = !hasYearCol || !hasMonthCol || !hasWeekCol

	var rows []RawRow
	for _, cells := range sheet[1:] {
		report.Rows++

		cell := func(col string) string {
			i, ok := cols[col]
			if !ok || i >= len(cells) {
				return ""
			}
			return strings.TrimSpace(cells[i])
		}

		period, ok := rowPeriod(cell, fnYear, fnMonth, fnWeek)
		if !ok {
			report.RowsExcludedNoPeriod++
			continue
		}

		var metrics model.WeekMetrics
		bad := false
		for col, set := range metricColumns {
			if _, present := cols[col]; !present {
				continue // missing optional columns are null-safe
			}
			v, numOK := parseFloat(cell(col))
			if !numOK {
				bad = true
				break
			}
			set(&metrics, v)
		}
		if !bad {
			v, numOK := parseFloat(cell(netCol))
			if !numOK {
				bad = true
			} else {
				metrics.NetPayout = v
			}
		}
		if bad {
			report.RowsExcludedBadNumeric++
			continue
		}

		rows = append(rows, RawRow{
			SourceFile:   name,
			CEEID:        cell("cee_id"),
			Name:         cell("cee_name"),
			TaxID:        cell("pan"),
			City:         cell("city"),
			Provider:     cell("lmd_provider"),
			DeliveryMode: cell("delivery_mode"),
			Period:       period,
			Metrics:      metrics,
		})
	}

	return rows, report
}

// rowPeriod resolves a row's period from its year/month/week columns,
// backfilling each missing element from the filename. A period that is still
// incomplete disqualifies the row.
func rowPeriod(cell func(string) string, fnYear, fnMonth, fnWeek int) (model.Period, bool) {
	year, _ := parseInt(cell("year"))
	month, _ := parseInt(cell("month"))
	week, _ := parseInt(cell("week"))

	if year == 0 {
		year = fnYear
	}
	if month == 0 {
		month = fnMonth
	}
	if week == 0 {
		week = fnWeek
	}
	if year == 0 || month < 1 || month > 12 || week < 1 {
		return model.Period{}, false
	}
	return model.Period{Year: year, Month: month, Week: week}, true
}
