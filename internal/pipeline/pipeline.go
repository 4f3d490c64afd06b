package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/aggregate"
	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/decision"
	"github.com/fleetcred/underwrite-cli/internal/feature"
	"github.com/fleetcred/underwrite-cli/internal/ingest"
	"github.com/fleetcred/underwrite-cli/internal/model"
	"github.com/fleetcred/underwrite-cli/internal/portfolio"
)

// Options selects the inputs and output location of one pipeline run.
type Options struct {
	DataDir string
	OutDir  string
	// Workers > 1 parallelizes the per-rider stages; results are identical
	// to sequential execution.
	Workers int
	// FeaturesOnly stops after the feature table: no offers, no summaries.
	FeaturesOnly bool
}

// Result is one complete, internally consistent run snapshot.
type Result struct {
	SnapshotID string
	RunDir     string

	Facts      []model.RiderWeekFact
	Features   []model.RiderFeatureRecord
	Identities []model.RiderIdentity
	Conflicts  []model.IdentityConflict
	Reports    []ingest.FileReport
	Offers     []model.Offer

	Summary        model.PortfolioSummary
	WorkingCapital *model.WorkingCapitalSummary

	// Which artifact groups this result carries.
	hasIngest bool
	hasOffers bool
}

// Run executes the full pipeline: load → aggregate → features → offers →
// summaries → artifacts. All inputs are loaded before computation starts and
// all outputs land atomically once the run completes; a failed run leaves no
// partial output. Re-running on identical inputs and config produces the same
// snapshot ID and byte-identical artifacts.
func Run(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rows, reports, err := ingest.LoadDir(opts.DataDir, cfg.Ingest.NetPayoutColumns)
	if err != nil {
		return nil, err
	}
	id, err := snapshotID(opts.DataDir, cfg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: cancelled")
	}

	agg := aggregate.Build(rows, cfg.Activity)
	for i := range reports {
		reports[i].RowsExcludedNoIdentity = agg.ExcludedNoIdentity[reports[i].SourceFile]
	}

	features := feature.Build(agg.Facts, opts.Workers)

	identityByKey := make(map[string]model.RiderIdentity, len(agg.Identities))
	for _, rid := range agg.Identities {
		identityByKey[rid.RiderKey] = rid
	}
	product := model.Product(cfg.Decision.Product)
	res := &Result{
		SnapshotID: id,
		Facts:      agg.Facts,
		Features:   features,
		Identities: agg.Identities,
		Conflicts:  agg.Conflicts,
		Reports:    reports,
		hasIngest:  true,
	}
	if !opts.FeaturesOnly {
		res.Offers = decision.Evaluate(features, identityByKey, cfg)
		res.Summary = portfolio.Summarize(res.Offers, id, product)
		res.hasOffers = true
		if product == model.Product3PL {
			wc := portfolio.WorkingCapital(res.Offers, cfg.WorkingCapital, id)
			res.WorkingCapital = &wc
		}
	}

	if opts.OutDir != "" {
		runDir, err := writeArtifacts(opts.OutDir, res)
		if err != nil {
			return nil, err
		}
		res.RunDir = runDir
	}

	zap.L().Info("pipeline: run complete",
		zap.String("snapshot_id", id),
		zap.String("run_dir", res.RunDir),
		zap.Int("riders", len(features)),
		zap.Int("approved", res.Summary.RidersApproved),
	)
	return res, nil
}

// snapshotID derives the run's identity from the input file bytes and the
// policy configuration. No wall clock, no randomness: identical inputs always
// map to the same snapshot.
func snapshotID(dataDir string, cfg *config.Config) (string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: read dir %s", dataDir)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), "~$") || !strings.EqualFold(filepath.Ext(e.Name()), ".xlsx") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		io.WriteString(h, name)
		f, err := os.Open(filepath.Join(dataDir, name))
		if err != nil {
			return "", eris.Wrapf(err, "pipeline: open %s", name)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", eris.Wrapf(err, "pipeline: hash %s", name)
		}
	}

	// Policy changes produce a new snapshot too.
	policy, err := policyJSON(cfg)
	if err != nil {
		return "", err
	}
	h.Write(policy)

	return hex.EncodeToString(h.Sum(nil))[:12], nil
}

func policyJSON(cfg *config.Config) ([]byte, error) {
	policy, err := json.Marshal(struct {
		Activity config.ActivityConfig       `json:"activity"`
		Gates    config.GateConfig           `json:"gates"`
		Decision config.DecisionConfig       `json:"decision"`
		Tiers    []config.TierPolicy         `json:"tiers"`
		Fallback config.TierPolicy           `json:"fallback"`
		WC       config.WorkingCapitalConfig `json:"working_capital"`
		NetCols  []string                    `json:"net_payout_columns"`
	}{cfg.Activity, cfg.Gates, cfg.Decision, cfg.Tiers, cfg.Fallback, cfg.WorkingCapital, cfg.Ingest.NetPayoutColumns})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: encode policy")
	}
	return policy, nil
}
