package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fleetcred/underwrite-cli/internal/db"
	"github.com/fleetcred/underwrite-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_run": `SELECT id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at FROM runs WHERE snapshot_id = $1`,
	"upsert_run": `INSERT INTO runs (id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	 ON CONFLICT (snapshot_id) DO UPDATE SET
	   product = EXCLUDED.product, riders_total = EXCLUDED.riders_total,
	   riders_approved = EXCLUDED.riders_approved, run_dir = EXCLUDED.run_dir,
	   summary = EXCLUDED.summary, working_capital = EXCLUDED.working_capital`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for subsystems that need direct
// query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	snapshot_id     TEXT NOT NULL UNIQUE,
	product         TEXT NOT NULL,
	riders_total    INTEGER NOT NULL,
	riders_approved INTEGER NOT NULL,
	run_dir         TEXT,
	summary         JSONB NOT NULL,
	working_capital JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS offers (
	snapshot_id       TEXT NOT NULL REFERENCES runs(snapshot_id),
	rider_key         TEXT NOT NULL,
	approved          BOOLEAN NOT NULL,
	tier              TEXT NOT NULL,
	recommended_limit DOUBLE PRECISION NOT NULL,
	payload           JSONB NOT NULL,
	PRIMARY KEY (snapshot_id, rider_key)
);

CREATE INDEX IF NOT EXISTS idx_runs_product ON runs(product);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_offers_approved ON offers(snapshot_id, approved);
CREATE INDEX IF NOT EXISTS idx_offers_tier ON offers(snapshot_id, tier);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveRun(ctx context.Context, run RunRecord, offers []model.Offer) (*RunRecord, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	summaryJSON, err := json.Marshal(run.Summary)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal summary")
	}
	var wcJSON []byte
	if run.WorkingCapital != nil {
		wcJSON, err = json.Marshal(run.WorkingCapital)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: marshal working capital")
		}
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (snapshot_id) DO UPDATE SET
		   product = EXCLUDED.product, riders_total = EXCLUDED.riders_total,
		   riders_approved = EXCLUDED.riders_approved, run_dir = EXCLUDED.run_dir,
		   summary = EXCLUDED.summary, working_capital = EXCLUDED.working_capital`,
		run.ID, run.SnapshotID, string(run.Product), run.RidersTotal, run.RidersApproved,
		run.RunDir, summaryJSON, wcJSON, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: upsert run %s", run.SnapshotID)
	}

	// The offer sheet is a function of the snapshot, so an upsert keyed by
	// (snapshot_id, rider_key) converges to the same rows on every re-save.
	rows := make([][]any, 0, len(offers))
	for _, o := range offers {
		payload, err := json.Marshal(o)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: marshal offer %s", o.RiderKey)
		}
		rows = append(rows, []any{run.SnapshotID, o.RiderKey, o.Approved, o.Tier, o.RecommendedLimit, payload})
	}
	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "offers",
		Columns:      []string{"snapshot_id", "rider_key", "approved", "tier", "recommended_limit", "payload"},
		ConflictKeys: []string{"snapshot_id", "rider_key"},
	}, rows)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: save offers %s", run.SnapshotID)
	}
	return &run, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, snapshotID string) (*RunRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at
		 FROM runs WHERE snapshot_id = $1`,
		snapshotID,
	)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", snapshotID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `SELECT id, snapshot_id, product, riders_total, riders_approved, run_dir, summary, working_capital, created_at
	          FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Product != "" {
		query += fmt.Sprintf(` AND product = $%d`, argIdx)
		args = append(args, filter.Product)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListOffers(ctx context.Context, snapshotID string, filter OfferFilter) ([]model.Offer, error) {
	query := `SELECT payload FROM offers WHERE snapshot_id = $1`
	args := []any{snapshotID}
	argIdx := 2

	if filter.ApprovedOnly {
		query += ` AND approved`
	}
	if filter.Tier != "" {
		query += fmt.Sprintf(` AND tier = $%d`, argIdx)
		args = append(args, filter.Tier)
		argIdx++
	}
	query += ` ORDER BY rider_key`

	limit := filter.Limit
	if limit <= 0 {
		limit = 10000
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list offers %s", snapshotID)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan offer")
		}
		var o model.Offer
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal offer")
		}
		offers = append(offers, o)
	}
	return offers, eris.Wrap(rows.Err(), "postgres: list offers iterate")
}

func scanPgRun(row pgx.Row) (*RunRecord, error) {
	var r RunRecord
	var product string
	var summaryJSON []byte
	var wcJSON []byte

	err := row.Scan(&r.ID, &r.SnapshotID, &product, &r.RidersTotal, &r.RidersApproved,
		&r.RunDir, &summaryJSON, &wcJSON, &r.CreatedAt)
	if err != nil {
		return nil, err
	}

	r.Product = model.Product(product)
	if err := json.Unmarshal(summaryJSON, &r.Summary); err != nil {
		return nil, eris.Wrap(err, "unmarshal summary")
	}
	if len(wcJSON) > 0 {
		r.WorkingCapital = &model.WorkingCapitalSummary{}
		if err := json.Unmarshal(wcJSON, r.WorkingCapital); err != nil {
			return nil, eris.Wrap(err, "unmarshal working capital")
		}
	}
	return &r, nil
}
