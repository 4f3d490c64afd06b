package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/config"
	"github.com/fleetcred/underwrite-cli/internal/pipeline"
	"github.com/fleetcred/underwrite-cli/internal/store"
)

var (
	runDataDir  string
	runOutDir   string
	runProduct  string
	runParallel int
	runTiers    string
	runNoStore  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full underwriting pipeline over a directory of weekly extracts",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := applyPolicyFlags(cfg, runProduct, runTiers); err != nil {
			return err
		}

		res, err := pipeline.Run(ctx, cfg, pipeline.Options{
			DataDir: runDataDir,
			OutDir:  runOutDir,
			Workers: runParallel,
		})
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		if !runNoStore && cfg.Store.Driver != "off" {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}

			_, err = st.SaveRun(ctx, store.RunRecord{
				SnapshotID:     res.SnapshotID,
				Product:        res.Summary.Product,
				RidersTotal:    res.Summary.RidersTotal,
				RidersApproved: res.Summary.RidersApproved,
				RunDir:         res.RunDir,
				Summary:        res.Summary,
				WorkingCapital: res.WorkingCapital,
			}, res.Offers)
			if err != nil {
				return eris.Wrap(err, "save run")
			}
		}

		zap.L().Info("underwriting complete",
			zap.String("snapshot_id", res.SnapshotID),
			zap.String("run_dir", res.RunDir),
			zap.Int("riders", res.Summary.RidersTotal),
			zap.Int("approved", res.Summary.RidersApproved),
			zap.Float64("gross_exposure", res.Summary.GrossExposureSum),
		)

		// Print summary JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Summary)
	},
}

// applyPolicyFlags layers command-line policy overrides on top of the loaded
// configuration.
func applyPolicyFlags(cfg *config.Config, product, tiersPath string) error {
	if product != "" {
		cfg.Decision.Product = product
	}
	if tiersPath != "" {
		if err := cfg.LoadTierFile(tiersPath); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "", "directory of weekly .xlsx extracts (required)")
	runCmd.Flags().StringVar(&runOutDir, "out-dir", "out", "root directory for run artifacts")
	runCmd.Flags().StringVar(&runProduct, "product", "", "product mode: salary_advance_lender or 3pl_operator (default from config)")
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "worker count for per-rider stages")
	runCmd.Flags().StringVar(&runTiers, "tiers", "", "YAML tier policy override file")
	runCmd.Flags().BoolVar(&runNoStore, "no-store", false, "skip persisting the run to the history database")
	_ = runCmd.MarkFlagRequired("data-dir")
	rootCmd.AddCommand(runCmd)
}
