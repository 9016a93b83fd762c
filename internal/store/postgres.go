package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-enricher/internal/config"
	"github.com/sells-group/contact-enricher/internal/db"
	"github.com/sells-group/contact-enricher/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
	q       queries
	t       tables
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32
	MinConns int32
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, tablesCfg config.TablesConfig, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
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

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	st, err := newPostgresStore(pool, tablesCfg)
	if err != nil {
		pool.Close()
		return nil, err
	}
	st.closeFn = pool.Close
	return st, nil
}

func newPostgresStore(pool db.Pool, tablesCfg config.TablesConfig) (*PostgresStore, error) {
	q, t, err := buildQueries(tablesCfg, postgresDialect)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool, q: q, t: t}, nil
}

// Migrate creates the bookkeeping tables. Registry tables are not touched.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, bookkeepingDDL(s.t, postgresDialect))
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// GetOrCreateRun returns the id of (name, version), inserting it first if
// needed. Concurrent callers converge on the same row.
func (s *PostgresStore) GetOrCreateRun(ctx context.Context, name, version string, description *string) (int64, error) {
	if _, err := s.pool.Exec(ctx, s.q.insertRun, name, version, description); err != nil {
		return 0, eris.Wrapf(err, "postgres: insert run %s@%s", name, version)
	}
	run, err := s.FindRun(ctx, name, version)
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}

// FindRun looks up a run without creating it.
func (s *PostgresStore) FindRun(ctx context.Context, name, version string) (*model.ScriptRun, error) {
	var r model.ScriptRun
	err := s.pool.QueryRow(ctx, s.q.selectRun, name, version).Scan(&r.ID, &r.Name, &r.Version, &r.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s@%s", name, version)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s@%s", name, version)
	}
	return &r, nil
}

// StartActivity opens a new activity for runID.
func (s *PostgresStore) StartActivity(ctx context.Context, runID int64) (int64, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, s.q.insertActivity, runID, time.Now().UTC()).Scan(&id); err != nil {
		return 0, eris.Wrapf(err, "postgres: start activity for run %d", runID)
	}
	return id, nil
}

// EndActivity closes an open activity. Closing twice is an error.
func (s *PostgresStore) EndActivity(ctx context.Context, activityID int64, errorCode, errorText *string) error {
	tag, err := s.pool.Exec(ctx, s.q.endActivity, time.Now().UTC(), errorCode, errorText, activityID)
	if err != nil {
		return eris.Wrapf(err, "postgres: end activity %d", activityID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: activity %d not found or already terminated", activityID)
	}
	return nil
}

// ListActivities returns the newest activities of runID.
func (s *PostgresStore) ListActivities(ctx context.Context, runID int64, limit int) ([]model.ScriptActivity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, s.q.listActivities, runID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list activities for run %d", runID)
	}
	defer rows.Close()

	var out []model.ScriptActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan activity")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate activities")
}

// NextBatch returns up to q.Size eligible firm ids, newest first. It has
// no side effects; exclusion is recomputed from marks and leases each call.
func (s *PostgresStore) NextBatch(ctx context.Context, q BatchQuery) ([]int64, error) {
	sql, ok := s.q.eligibility[q.Variant]
	if !ok {
		return nil, eris.Errorf("postgres: unknown variant %q", q.Variant)
	}
	rows, err := s.pool.Query(ctx, sql, q.RunID, q.CreatedBefore.UTC(), q.Now.UTC(), q.Size)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: select batch for run %d", q.RunID)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan batch")
	}
	return ids, nil
}

// LoadFirms reads the firms and their contact collections, preserving the
// order of ids.
func (s *PostgresStore) LoadFirms(ctx context.Context, ids []int64) ([]model.Firm, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT firm_id, active, outofbusiness_status, createdon FROM %s WHERE firm_id = ANY($1)`, s.t.q(s.t.cfg.Firm)),
		ids)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load firms")
	}
	byID := make(map[int64]*model.Firm, len(ids))
	for rows.Next() {
		var f model.Firm
		if err := rows.Scan(&f.ID, &f.Active, &f.OutOfBusiness, &f.CreatedAt); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "postgres: scan firm")
		}
		byID[f.ID] = &f
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate firms")
	}

	for _, src := range contactSources(s.t) {
		sql := fmt.Sprintf(`SELECT firm_id, %s FROM %s WHERE firm_id = ANY($1) AND %s IS NOT NULL`,
			db.QuoteColumns([]string{src.column}), s.t.q(src.table), db.QuoteColumns([]string{src.column}))
		if err := s.loadContacts(ctx, sql, ids, byID, src); err != nil {
			return nil, err
		}
	}
	return orderFirms(ids, byID), nil
}

func (s *PostgresStore) loadContacts(ctx context.Context, sql string, ids []int64, byID map[int64]*model.Firm, src contactSource) error {
	rows, err := s.pool.Query(ctx, sql, ids)
	if err != nil {
		return eris.Wrapf(err, "postgres: load %s", src.table)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var v string
		if err := rows.Scan(&id, &v); err != nil {
			return eris.Wrapf(err, "postgres: scan %s", src.table)
		}
		if f, ok := byID[id]; ok {
			src.add(f, v)
		}
	}
	return eris.Wrapf(rows.Err(), "postgres: iterate %s", src.table)
}

// AcquireLeases claims ids for l's activity. Firms already leased by a
// live lease are skipped; expired leases are taken over. Returns the ids
// actually claimed.
func (s *PostgresStore) AcquireLeases(ctx context.Context, l Lease, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	sql := fmt.Sprintf(`INSERT INTO %s AS fl (firm_id, script_id, activity_id, token, expires_at)
SELECT unnest($1::bigint[]), $2, $3, $4, $5
ON CONFLICT (script_id, firm_id) DO UPDATE
	SET activity_id = EXCLUDED.activity_id, token = EXCLUDED.token, expires_at = EXCLUDED.expires_at
	WHERE fl.expires_at <= $6
RETURNING firm_id`, s.t.q(s.t.cfg.Lease))

	rows, err := s.pool.Query(ctx, sql, ids, l.RunID, l.ActivityID, l.Token, l.ExpiresAt.UTC(), l.Now.UTC())
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: acquire leases for activity %d", l.ActivityID)
	}
	claimed, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan leases")
	}
	return claimed, nil
}

// ReleaseLeases drops every lease held under token for the run.
func (s *PostgresStore) ReleaseLeases(ctx context.Context, runID int64, token uuid.UUID) error {
	_, err := s.pool.Exec(ctx, s.q.releaseLeases, runID, token)
	return eris.Wrapf(err, "postgres: release leases for run %d", runID)
}

// WriteGeneratedValues appends rows, grouped into one COPY per field type.
func (s *PostgresStore) WriteGeneratedValues(ctx context.Context, rows []model.GeneratedValue) (int64, error) {
	return s.copyGenerated(ctx, s.pool, rows)
}

// WriteProcessedMarks appends one mark per firm id.
func (s *PostgresStore) WriteProcessedMarks(ctx context.Context, firmIDs []int64, runID, activityID int64) (int64, error) {
	return s.copyMarks(ctx, s.pool, firmIDs, runID, activityID)
}

// PersistBatch writes values, marks and the lease release in one
// transaction. On error nothing is written and the batch stays eligible.
func (s *PostgresStore) PersistBatch(ctx context.Context, b BatchResult) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := s.copyGenerated(ctx, tx, b.Values); err != nil {
			return err
		}
		if _, err := s.copyMarks(ctx, tx, b.FirmIDs, b.RunID, b.ActivityID); err != nil {
			return err
		}
		if b.LeaseToken != uuid.Nil {
			if _, err := tx.Exec(ctx, s.q.releaseLeases, b.RunID, b.LeaseToken); err != nil {
				return eris.Wrap(err, "postgres: release leases")
			}
		}
		return nil
	})
	return eris.Wrapf(err, "postgres: persist batch for activity %d", b.ActivityID)
}

func (s *PostgresStore) copyGenerated(ctx context.Context, q db.Querier, rows []model.GeneratedValue) (int64, error) {
	var total int64
	for _, field := range model.FieldTypes {
		var batch [][]any
		for _, v := range rows {
			if v.Field == field {
				batch = append(batch, generatedRow(v))
			}
		}
		if len(batch) == 0 {
			continue
		}
		table, err := s.t.generated(field)
		if err != nil {
			return total, err
		}
		n, err := db.CopyFrom(ctx, q, table, generatedColumns(field), batch)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *PostgresStore) copyMarks(ctx context.Context, q db.Querier, firmIDs []int64, runID, activityID int64) (int64, error) {
	rows := make([][]any, len(firmIDs))
	for i, id := range firmIDs {
		rows[i] = []any{id, runID, activityID}
	}
	return db.CopyFrom(ctx, q, s.t.cfg.Processed, processedColumns, rows)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanActivity(row scannable) (model.ScriptActivity, error) {
	var a model.ScriptActivity
	err := row.Scan(&a.ID, &a.RunID, &a.StartedAt, &a.TerminatedAt, &a.ErrorCode, &a.ErrorText)
	return a, err
}
