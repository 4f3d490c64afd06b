package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/fleetcred/underwrite-cli/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Ingest: config.IngestConfig{
			NetPayoutColumns: []string{"final_with_gst", "base_pay"},
		},
		Activity: config.ActivityConfig{Rule: config.ActivityAnySignal},
		Gates: config.GateConfig{
			MinActiveWeeks:          4,
			MinCurrentStreak:        2,
			MaxWeeksSinceLastActive: 0,
			MinNetPayoutP10:         1500,
			MaxCancelRate:           0.08,
		},
		Decision: config.DecisionConfig{
			Product:           "salary_advance_lender",
			SigmaHaircut:      0.75,
			RepaymentWeeks:    4,
			BaseLimitHaircut:  0.90,
			MinTicket:         500,
			RoundTo:           100,
			LGD:               0.35,
			DeductionShareCap: 0.25,
		},
		WorkingCapital: config.WorkingCapitalConfig{
			TakeRate:               0.40,
			ReferralFeePerAdvance:  125,
			RevenueShareOfInterest: 0.20,
		},
		Tiers:    config.DefaultTiers(),
		Fallback: config.DefaultFallback(),
	}
}

var extractHeader = []string{"CEE ID", "CEE Name", "City", "Base Pay", "Delivered Orders", "Cancelled Orders", "Final (with GST)"}

func writeExtract(t *testing.T, dir, name string, rows [][]string) {
	t.Helper()

	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Payout")
	require.NoError(t, err)

	hr := sheet.AddRow()
	for _, h := range extractHeader {
		hr.AddCell().Value = h
	}
	for _, cells := range rows {
		r := sheet.AddRow()
		for _, c := range cells {
			r.AddCell().Value = c
		}
	}
	require.NoError(t, f.Save(filepath.Join(dir, name)))
}

// writeWeeks writes one extract per week: rider 101 works every week at a
// stable payout, rider 202 appears only in the first week.
func writeWeeks(t *testing.T, dir string) {
	t.Helper()
	weeks := []struct {
		name string
		net  string
	}{
		{"Payout Sep 25 WEEK 1.xlsx", "4000"},
		{"Payout Sep 25 WEEK 2.xlsx", "4100"},
		{"Payout Sep 25 WEEK 3.xlsx", "3900"},
		{"Payout Sep 25 WEEK 4.xlsx", "4050"},
		{"Payout Oct 25 WEEK 1.xlsx", "3950"},
	}
	for i, w := range weeks {
		rows := [][]string{
			{"101", "Asha Naik", "Pune", "3000", "90", "2", w.net},
		}
		if i == 0 {
			rows = append(rows, []string{"202", "Ravi Kumar", "Pune", "2000", "40", "1", "2500"})
		}
		writeExtract(t, dir, w.name, rows)
	}
}

func TestRunEndToEnd(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeWeeks(t, dataDir)

	res, err := Run(context.Background(), testConfig(), Options{DataDir: dataDir, OutDir: outDir})
	require.NoError(t, err)

	assert.NotEmpty(t, res.SnapshotID)
	assert.Len(t, res.Facts, 6)
	assert.Len(t, res.Features, 2)
	assert.Len(t, res.Offers, 2)
	assert.Equal(t, 2, res.Summary.RidersTotal)
	assert.Equal(t, 1, res.Summary.RidersApproved)

	approved := res.Offers[0]
	assert.Equal(t, "cee_id:101", approved.RiderKey)
	assert.True(t, approved.Approved)
	assert.Equal(t, "Asha Naik", approved.Name)

	declined := res.Offers[1]
	assert.Equal(t, "cee_id:202", declined.RiderKey)
	assert.False(t, declined.Approved)
	assert.Contains(t, declined.DeclineReasons, "active_weeks_worked<4")

	for _, name := range []string{
		FileFacts, FileFeatures, FileIdentities, FileConflicts,
		FileIngestReport, FileOffers, FileSummary,
	} {
		_, err := os.Stat(filepath.Join(res.RunDir, name))
		assert.NoError(t, err, name)
	}
	// Lender mode: no working capital artifact.
	_, err = os.Stat(filepath.Join(res.RunDir, FileWorkingCapital))
	assert.True(t, os.IsNotExist(err))
}

func TestRunIdempotent(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeWeeks(t, dataDir)
	cfg := testConfig()

	first, err := Run(context.Background(), cfg, Options{DataDir: dataDir, OutDir: outDir})
	require.NoError(t, err)
	offersPath := filepath.Join(first.RunDir, FileOffers)
	firstBytes, err := os.ReadFile(offersPath)
	require.NoError(t, err)

	// Re-running over the same inputs resolves to the same snapshot and
	// leaves the existing run directory untouched.
	second, err := Run(context.Background(), cfg, Options{DataDir: dataDir, OutDir: outDir})
	require.NoError(t, err)
	assert.Equal(t, first.SnapshotID, second.SnapshotID)
	assert.Equal(t, first.RunDir, second.RunDir)

	// A fresh write of the same snapshot is byte-identical.
	require.NoError(t, os.RemoveAll(first.RunDir))
	_, err = Run(context.Background(), cfg, Options{DataDir: dataDir, OutDir: outDir})
	require.NoError(t, err)
	rewrittenBytes, err := os.ReadFile(offersPath)
	require.NoError(t, err)
	assert.Equal(t, firstBytes, rewrittenBytes)
}

func TestRunPolicyChangesSnapshotID(t *testing.T) {
	dataDir := t.TempDir()
	writeWeeks(t, dataDir)

	base, err := Run(context.Background(), testConfig(), Options{DataDir: dataDir})
	require.NoError(t, err)

	cfg := testConfig()
	cfg.Gates.MinActiveWeeks = 6
	changed, err := Run(context.Background(), cfg, Options{DataDir: dataDir})
	require.NoError(t, err)

	assert.NotEqual(t, base.SnapshotID, changed.SnapshotID)
}

func TestRunFeaturesOnly(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeWeeks(t, dataDir)

	res, err := Run(context.Background(), testConfig(), Options{
		DataDir:      dataDir,
		OutDir:       outDir,
		FeaturesOnly: true,
	})
	require.NoError(t, err)

	assert.Len(t, res.Features, 2)
	assert.Nil(t, res.Offers)

	_, err = os.Stat(filepath.Join(res.RunDir, FileFeatures))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(res.RunDir, FileOffers))
	assert.True(t, os.IsNotExist(err))
}

func TestRunWorkingCapitalArtifactIn3PLMode(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeWeeks(t, dataDir)

	cfg := testConfig()
	cfg.Decision.Product = "3pl_operator"

	res, err := Run(context.Background(), cfg, Options{DataDir: dataDir, OutDir: outDir})
	require.NoError(t, err)

	require.NotNil(t, res.WorkingCapital)
	_, err = os.Stat(filepath.Join(res.RunDir, FileWorkingCapital))
	assert.NoError(t, err)
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Decision.RepaymentWeeks = 0

	_, err := Run(context.Background(), cfg, Options{DataDir: t.TempDir()})
	assert.Error(t, err)
}

func TestRunEmptyDataDir(t *testing.T) {
	_, err := Run(context.Background(), testConfig(), Options{DataDir: t.TempDir()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .xlsx files")
}

func TestReadFeaturesCSVRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeWeeks(t, dataDir)

	res, err := Run(context.Background(), testConfig(), Options{DataDir: dataDir, OutDir: outDir})
	require.NoError(t, err)

	parsed, err := ReadFeaturesCSV(filepath.Join(res.RunDir, FileFeatures))
	require.NoError(t, err)
	assert.Equal(t, res.Features, parsed)
}

func TestRunOffersReplayMatchesFullRun(t *testing.T) {
	dataDir := t.TempDir()
	outDir := t.TempDir()
	writeWeeks(t, dataDir)
	cfg := testConfig()

	full, err := Run(context.Background(), cfg, Options{DataDir: dataDir, OutDir: outDir})
	require.NoError(t, err)

	replay, err := RunOffers(context.Background(), cfg, filepath.Join(full.RunDir, FileFeatures), "")
	require.NoError(t, err)

	require.Len(t, replay.Offers, len(full.Offers))
	for i := range replay.Offers {
		assert.Equal(t, full.Offers[i].RiderKey, replay.Offers[i].RiderKey)
		assert.Equal(t, full.Offers[i].Approved, replay.Offers[i].Approved)
		assert.Equal(t, full.Offers[i].Tier, replay.Offers[i].Tier)
		assert.InDelta(t, full.Offers[i].RecommendedLimit, replay.Offers[i].RecommendedLimit, 1e-9)
	}
	assert.Equal(t, full.Summary.RidersApproved, replay.Summary.RidersApproved)
}

func TestReadFeaturesCSVMissingColumn(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "features.csv")
	require.NoError(t, os.WriteFile(path, []byte("rider_key,weeks_observed\nr1,3\n"), 0o644))

	_, err := ReadFeaturesCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing column")
}
