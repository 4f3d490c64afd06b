package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fleetcred/underwrite-cli/internal/pipeline"
)

var (
	featuresDataDir  string
	featuresOutDir   string
	featuresParallel int
)

var featuresCmd = &cobra.Command{
	Use:   "features",
	Short: "Build the rider-week fact and feature tables without decisioning",
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := pipeline.Run(cmd.Context(), cfg, pipeline.Options{
			DataDir:      featuresDataDir,
			OutDir:       featuresOutDir,
			Workers:      featuresParallel,
			FeaturesOnly: true,
		})
		if err != nil {
			return eris.Wrap(err, "feature build")
		}

		zap.L().Info("feature build complete",
			zap.String("snapshot_id", res.SnapshotID),
			zap.String("run_dir", res.RunDir),
			zap.Int("facts", len(res.Facts)),
			zap.Int("riders", len(res.Features)),
			zap.Int("identity_conflicts", len(res.Conflicts)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"snapshot_id":        res.SnapshotID,
			"run_dir":            res.RunDir,
			"facts":              len(res.Facts),
			"riders":             len(res.Features),
			"identity_conflicts": len(res.Conflicts),
		})
	},
}

func init() {
	featuresCmd.Flags().StringVar(&featuresDataDir, "data-dir", "", "directory of weekly .xlsx extracts (required)")
	featuresCmd.Flags().StringVar(&featuresOutDir, "out-dir", "out", "root directory for run artifacts")
	featuresCmd.Flags().IntVar(&featuresParallel, "parallel", 1, "worker count for per-rider stages")
	_ = featuresCmd.MarkFlagRequired("data-dir")
	rootCmd.AddCommand(featuresCmd)
}
