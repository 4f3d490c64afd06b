package store

import (
	"context"
	"time"

	"github.com/fleetcred/underwrite-cli/internal/model"
)

// RunRecord is one persisted pipeline run. The snapshot ID is the business
// key: re-running the pipeline on identical inputs saves over the same record
// instead of growing the history.
type RunRecord struct {
	ID             string                        `json:"id"`
	SnapshotID     string                        `json:"snapshot_id"`
	Product        model.Product                 `json:"product"`
	RidersTotal    int                           `json:"riders_total"`
	RidersApproved int                           `json:"riders_approved"`
	RunDir         string                        `json:"run_dir,omitempty"`
	Summary        model.PortfolioSummary        `json:"summary"`
	WorkingCapital *model.WorkingCapitalSummary  `json:"working_capital,omitempty"`
	CreatedAt      time.Time                     `json:"created_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Product string `json:"product,omitempty"`
	Limit   int    `json:"limit,omitempty"`
	Offset  int    `json:"offset,omitempty"`
}

// OfferFilter specifies criteria for listing a run's offers.
type OfferFilter struct {
	ApprovedOnly bool   `json:"approved_only,omitempty"`
	Tier         string `json:"tier,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}

// Store defines the persistence interface for run history.
type Store interface {
	// SaveRun persists a run and its full offer sheet. Saving the same
	// snapshot twice replaces the previous copy.
	SaveRun(ctx context.Context, run RunRecord, offers []model.Offer) (*RunRecord, error)
	GetRun(ctx context.Context, snapshotID string) (*RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error)
	ListOffers(ctx context.Context, snapshotID string, filter OfferFilter) ([]model.Offer, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
