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
	offersFeatures string
	offersOutDir   string
	offersProduct  string
	offersTiers    string
)

var offersCmd = &cobra.Command{
	Use:   "offers",
	Short: "Re-run the decision stage over an existing feature table",
	Long:  "Replays decisioning and portfolio aggregation over a rider_features.csv artifact, for policy iteration without re-ingesting extracts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyPolicyFlags(cfg, offersProduct, offersTiers); err != nil {
			return err
		}

		res, err := pipeline.RunOffers(cmd.Context(), cfg, offersFeatures, offersOutDir)
		if err != nil {
			return eris.Wrap(err, "offers replay")
		}

		zap.L().Info("offers replay complete",
			zap.String("snapshot_id", res.SnapshotID),
			zap.String("run_dir", res.RunDir),
			zap.Int("riders", res.Summary.RidersTotal),
			zap.Int("approved", res.Summary.RidersApproved),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Summary)
	},
}

func init() {
	offersCmd.Flags().StringVar(&offersFeatures, "features", "", "path to a rider_features.csv artifact (required)")
	offersCmd.Flags().StringVar(&offersOutDir, "out-dir", "out", "root directory for run artifacts")
	offersCmd.Flags().StringVar(&offersProduct, "product", "", "product mode: salary_advance_lender or 3pl_operator (default from config)")
	offersCmd.Flags().StringVar(&offersTiers, "tiers", "", "YAML tier policy override file")
	_ = offersCmd.MarkFlagRequired("features")
	rootCmd.AddCommand(offersCmd)
}
