package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fleetcred/underwrite-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY,
	snapshot_id     TEXT NOT NULL UNIQUE,
	product         TEXT NOT NULL,
	riders_total    INTEGER NOT NULL,
	riders_approved INTEGER NOT NULL,
	run_dir         TEXT,
	summary         TEXT NOT NULL,
	working_capital TEXT,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS offers (
	snapshot_id       TEXT NOT NULL REFERENCES runs(snapshot_id),
	rider_key         TEXT NOT NULL,
	approved          INTEGER NOT NULL,
	tier              TEXT NOT NULL,
	recommended_limit REAL NOT NULL,
	payload           TEXT NOT NULL,
	PRIMARY KEY (snapshot_id, rider_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_product ON runs(product);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_offers_approved ON offers(snapshot_id, approved);
CREATE INDEX IF NOT EXISTS idx_offers_tier ON offers(snapshot_id, tier);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, run RunRecord, offers []model.Offer) (*RunRecord, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal summary")
	}
	var wcJSON sql.NullString
	if run.WorkingCapital != nil {
		b, err := json.Marshal(run.WorkingCapital)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal working capital")
		}
		wcJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (snapshot_id) DO UPDATE SET
		   product = excluded.product, riders_total = excluded.riders_total,
		   riders_approved = excluded.riders_approved, run_dir = excluded.run_dir,
		   summary = excluded.summary, working_capital = excluded.working_capital`,
		run.ID, run.SnapshotID, string(run.Product), run.RidersTotal, run.RidersApproved,
		run.RunDir, string(summaryJSON), wcJSON, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert run %s", run.SnapshotID)
	}

	// Replace, never merge: the offer sheet is a function of the snapshot.
	if _, err := tx.ExecContext(ctx, `DELETE FROM offers WHERE snapshot_id = ?`, run.SnapshotID); err != nil {
		return nil, eris.Wrapf(err, "sqlite: clear offers %s", run.SnapshotID)
	}
	for _, o := range offers {
		payload, err := json.Marshal(o)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: marshal offer %s", o.RiderKey)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO offers (snapshot_id, rider_key, approved, tier, recommended_limit, payload)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.SnapshotID, o.RiderKey, boolToInt(o.Approved), o.Tier, o.RecommendedLimit, string(payload),
		)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: insert offer %s", o.RiderKey)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit")
	}
	return &run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, snapshotID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at
		 FROM runs WHERE snapshot_id = ?`,
		snapshotID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at
	          FROM runs WHERE 1=1`
	var args []any

	if filter.Product != "" {
		query += ` AND product = ?`
		args = append(args, filter.Product)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListOffers(ctx context.Context, snapshotID string, filter OfferFilter) ([]model.Offer, error) {
	query := `SELECT payload FROM offers WHERE snapshot_id = ?`
	args := []any{snapshotID}

	if filter.ApprovedOnly {
		query += ` AND approved = 1`
	}
	if filter.Tier != "" {
		query += ` AND tier = ?`
		args = append(args, filter.Tier)
	}
	query += ` ORDER BY rider_key`

	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list offers %s", snapshotID)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan offer")
		}
		var o model.Offer
		if err := json.Unmarshal([]byte(payload), &o); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal offer")
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "sqlite: list offers iterate")
}

// helpers

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*RunRecord, error) {
	var r RunRecord
	var product, summaryJSON string
	var wcJSON sql.NullString

	err := row.Scan(&r.ID, &r.SnapshotID, &product, &r.RidersTotal, &r.RidersApproved,
		&r.RunDir, &summaryJSON, &wcJSON, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Product = model.Product(product)
	if err := json.Unmarshal([]byte(summaryJSON), &r.Summary); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal summary")
	}
	if wcJSON.Valid {
		r.WorkingCapital = &model.WorkingCapitalSummary{}
		if err := json.Unmarshal([]byte(wcJSON.String), r.WorkingCapital); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal working capital")
		}
	}
	return &r, nil
}
