package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/decision"
	"github.com/fleetcred/underwrite-cli/internal/model"
	"github.com/fleetcred/underwrite-cli/internal/portfolio"
)

// RunOffers replays the decision and portfolio stages over a previously
// written feature table, without touching the raw extracts. Policy experiments
// iterate on this path: same features, different knobs, new snapshot.
func RunOffers(ctx context.Context, cfg *config.Config, featuresPath, outDir string) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	features, err := ReadFeaturesCSV(featuresPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled")
	}

	id, err := offersSnapshotID(featuresPath, cfg)
	if err != nil {
		return nil, err
	}

	product := model.Product(cfg.Decision.Product)
	offers := decision.Evaluate(features, nil, cfg)
	res := &Result{
		SnapshotID: id,
		Features:   features,
		Offers:     offers,
		Summary:    portfolio.Summarize(offers, id, product),
		hasOffers:  true,
	}
	if product == model.Product3PL {
		wc := portfolio.WorkingCapital(offers, cfg.WorkingCapital, id)
		res.WorkingCapital = &wc
	}

	if outDir != "" {
		runDir, err := writeArtifacts(outDir, res)
		if err != nil {
			return nil, err
		}
		res.RunDir = runDir
	}

	zap.L().Info("pipeline: offers replay complete",
		zap.String("snapshot_id", id),
		zap.String("features", featuresPath),
		zap.Int("riders", len(features)),
		zap.Int("approved", res.Summary.RidersApproved),
	)
	return res, nil
}

func offersSnapshotID(featuresPath string, cfg *config.Config) (string, error) {
	f, err := os.Open(featuresPath)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: open %s", featuresPath)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", eris.Wrapf(err, "pipeline: hash %s", featuresPath)
	}
	policy, err := policyJSON(cfg)
	if err != nil {
		return "", err
	}
	h.Write(policy)
	return hex.EncodeToString(h.Sum(nil))[:12], nil
}

// ReadFeaturesCSV parses a rider_features.csv artifact back into feature
// records. Columns are matched by header name, so column order does not
// matter; a missing required column is an error, not a zero.
func ReadFeaturesCSV(path string) ([]model.RiderFeatureRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read header %s", path)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, required := range featureHeader {
		if _, ok := idx[required]; !ok {
			return nil, eris.Errorf("pipeline: %s: missing column %q", path, required)
		}
	}

	var out []model.RiderFeatureRecord
	line := 1
	for {
		cells, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: read %s", path)
		}
		line++

		p := &rowParser{cells: cells, idx: idx}
		rec := model.RiderFeatureRecord{
			RiderKey:             p.str("rider_key"),
			WeeksObserved:        p.intv("weeks_observed"),
			ActiveWeeksWorked:    p.intv("active_weeks_worked"),
			LongestStreak:        p.intv("longest_consecutive_active_weeks"),
			CurrentStreak:        p.intv("current_consecutive_active_weeks"),
			GapCount:             p.intv("gap_count_between_active_weeks"),
			MaxGapWeeks:          p.intv("max_gap_weeks"),
			WeeksSinceLastActive: p.intv("weeks_since_last_active"),
			NetPayoutMean:        p.float("net_payout_mean"),
			NetPayoutStd:         p.float("net_payout_std"),
			NetPayoutCV:          p.float("net_payout_cv"),
			NetPayoutMedian:      p.float("net_payout_median"),
			NetPayoutP10:         p.float("net_payout_p10"),
			NetPayoutP90:         p.float("net_payout_p90"),
			NetPayoutMin:         p.float("net_payout_min"),
			NetPayoutMax:         p.float("net_payout_max"),
			Last4PayoutMean:      p.float("net_payout_last4_mean"),
			ActiveWeeksLast4:     p.intv("active_weeks_last4"),
			TotalNetPayout:       p.float("total_net_payout_sum"),
			BasePaySum:           p.float("base_pay_sum"),
			IncentiveSum:         p.float("incentive_total_sum"),
			IncentiveShare:       p.float("incentive_share"),
			DeliveredSum:         p.float("delivered_orders_sum"),
			CancelledSum:         p.float("cancelled_orders_sum"),
			CancelRate:           p.float("cancel_rate"),
			WeekdaySum:           p.float("weekday_orders_sum"),
			WeekendSum:           p.float("weekend_orders_sum"),
			WeekendShare:         p.float("weekend_share"),
			AttendanceSum:        p.float("attendance_days_sum"),
		}
		if p.err != nil {
			return nil, eris.Wrapf(p.err, "pipeline: %s line %d", path, line)
		}
		if rec.RiderKey == "" {
			return nil, eris.Errorf("pipeline: %s line %d: empty rider_key", path, line)
		}
		out = append(out, rec)
	}
	return out, nil
}

// rowParser accumulates the first parse error instead of forcing a check per
// cell.
type rowParser struct {
	cells []string
	idx   map[string]int
	err   error
}

func (p *rowParser) str(col string) string {
	i := p.idx[col]
	if i >= len(p.cells) {
		return ""
	}
	return p.cells[i]
}

func (p *rowParser) float(col string) float64 {
	if p.err != nil {
		return 0
	}
	s := p.str(col)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		p.err = eris.Wrapf(err, "column %s", col)
		return 0
	}
	return v
}

func (p *rowParser) intv(col string) int {
	if p.err != nil {
		return 0
	}
	s := p.str(col)
	if s == "" {
		return 0
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		p.err = eris.Wrapf(err, "column %s", col)
		return 0
	}
	return v
}
