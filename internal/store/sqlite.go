package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/contact-enricher/internal/config"
	"github.com/sells-group/contact-enricher/internal/db"
	"github.com/sells-group/contact-enricher/internal/model"
)

// sqliteMaxVars keeps multi-row statements under SQLite's bound-parameter limit.
const sqliteMaxVars = 900

// SQLiteStore implements Store using modernc.org/sqlite. It suits local
// runs against a registry snapshot and the package tests.
type SQLiteStore struct {
	db *sql.DB
	q  queries
	t  tables
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, tablesCfg config.TablesConfig) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer at a time; a single connection also keeps :memory: shared.
	conn.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}

	q, t, err := buildQueries(tablesCfg, sqliteDialect)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &SQLiteStore{db: conn, q: q, t: t}, nil
}

// Migrate creates the bookkeeping tables.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, bookkeepingDDL(s.t, sqliteDialect))
	return eris.Wrap(err, "sqlite: migrate")
}

// MigrateRegistry creates empty registry tables so a local database can be
// seeded and enriched without the upstream schema.
func (s *SQLiteStore) MigrateRegistry(ctx context.Context) error {
	c := s.t.cfg
	var b strings.Builder
	fmt.Fprintf(&b, `
CREATE TABLE IF NOT EXISTS %s (
	firm_id              INTEGER PRIMARY KEY,
	active               BOOLEAN NOT NULL DEFAULT TRUE,
	outofbusiness_status TEXT,
	createdon            DATETIME NOT NULL
);
`, s.t.q(c.Firm))
	for _, src := range contactSources(s.t) {
		fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (firm_id INTEGER NOT NULL, %s TEXT);\n",
			s.t.q(src.table), db.QuoteColumns([]string{src.column}))
	}
	_, err := s.db.ExecContext(ctx, b.String())
	return eris.Wrap(err, "sqlite: migrate registry")
}

// SeedFirms writes firms into the registry tables in one transaction. A
// firm that already exists is replaced along with its contact rows; when
// an ID repeats in firms the last one wins.
func (s *SQLiteStore) SeedFirms(ctx context.Context, firms []model.Firm) (int64, error) {
	c := s.t.cfg
	firms = lastByID(firms)
	sources := contactSources(s.t)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(firms); start += sqliteMaxVars {
			chunk := firms[start:min(start+sqliteMaxVars, len(firms))]
			ids := make([]int64, len(chunk))
			rows := make([][]any, len(chunk))
			for i, f := range chunk {
				ids[i] = f.ID
				rows[i] = []any{f.ID, f.Active, f.OutOfBusiness, sqliteTime(f.CreatedAt)}
			}
			in, args := inList(ids)
			tables := []string{c.Firm}
			for _, src := range sources {
				tables = append(tables, src.table)
			}
			for _, table := range tables {
				stmt := fmt.Sprintf("DELETE FROM %s WHERE firm_id IN (%s)", s.t.q(table), in)
				if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
					return eris.Wrapf(err, "sqlite: clear %s", table)
				}
			}
			if _, err := insertRows(ctx, tx, c.Firm, firmColumns, rows); err != nil {
				return err
			}
			for _, src := range sources {
				var vals [][]any
				for i := range chunk {
					for _, v := range src.get(&chunk[i]) {
						vals = append(vals, []any{chunk[i].ID, v})
					}
				}
				if _, err := insertRows(ctx, tx, src.table, []string{"firm_id", src.column}, vals); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: seed firms")
	}
	return int64(len(firms)), nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetOrCreateRun(ctx context.Context, name, version string, description *string) (int64, error) {
	if _, err := s.db.ExecContext(ctx, s.q.insertRun, name, version, description); err != nil {
		return 0, eris.Wrapf(err, "sqlite: insert run %s@%s", name, version)
	}
	run, err := s.FindRun(ctx, name, version)
	if err != nil {
		return 0, err
	}
	return run.ID, nil
}

func (s *SQLiteStore) FindRun(ctx context.Context, name, version string) (*model.ScriptRun, error) {
	var r model.ScriptRun
	err := s.db.QueryRowContext(ctx, s.q.selectRun, name, version).Scan(&r.ID, &r.Name, &r.Version, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s@%s", name, version)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s@%s", name, version)
	}
	return &r, nil
}

func (s *SQLiteStore) StartActivity(ctx context.Context, runID int64) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, s.q.insertActivity, runID, sqliteTime(time.Now())).Scan(&id); err != nil {
		return 0, eris.Wrapf(err, "sqlite: start activity for run %d", runID)
	}
	return id, nil
}

func (s *SQLiteStore) EndActivity(ctx context.Context, activityID int64, errorCode, errorText *string) error {
	res, err := s.db.ExecContext(ctx, s.q.endActivity, sqliteTime(time.Now()), errorCode, errorText, activityID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: end activity %d", activityID)
	}
	return checkRowsAffected(res, "open activity", activityID)
}

func (s *SQLiteStore) ListActivities(ctx context.Context, runID int64, limit int) ([]model.ScriptActivity, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, s.q.listActivities, runID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list activities for run %d", runID)
	}
	defer rows.Close()

	var out []model.ScriptActivity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan activity")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate activities")
}

func (s *SQLiteStore) NextBatch(ctx context.Context, q BatchQuery) ([]int64, error) {
	query, ok := s.q.eligibility[q.Variant]
	if !ok {
		return nil, eris.Errorf("sqlite: unknown variant %q", q.Variant)
	}
	rows, err := s.db.QueryContext(ctx, query, q.RunID, sqliteTime(q.CreatedBefore), sqliteTime(q.Now), q.Size)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: select batch for run %d", q.RunID)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan batch")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate batch")
}

func (s *SQLiteStore) LoadFirms(ctx context.Context, ids []int64) ([]model.Firm, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[int64]*model.Firm, len(ids))

	for _, chunk := range chunkIDs(ids, sqliteMaxVars) {
		in, args := inList(chunk)
		rows, err := s.db.QueryContext(ctx,
			fmt.Sprintf(`SELECT firm_id, active, outofbusiness_status, createdon FROM %s WHERE firm_id IN (%s)`, s.t.q(s.t.cfg.Firm), in),
			args...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: load firms")
		}
		for rows.Next() {
			var f model.Firm
			if err := rows.Scan(&f.ID, &f.Active, &f.OutOfBusiness, &f.CreatedAt); err != nil {
				rows.Close()
				return nil, eris.Wrap(err, "sqlite: scan firm")
			}
			byID[f.ID] = &f
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, eris.Wrap(err, "sqlite: iterate firms")
		}

		for _, src := range contactSources(s.t) {
			col := db.QuoteColumns([]string{src.column})
			query := fmt.Sprintf(`SELECT firm_id, %s FROM %s WHERE firm_id IN (%s) AND %s IS NOT NULL ORDER BY rowid`,
				col, s.t.q(src.table), in, col)
			if err := s.loadContacts(ctx, query, args, byID, src); err != nil {
				return nil, err
			}
		}
	}
	return orderFirms(ids, byID), nil
}

func (s *SQLiteStore) loadContacts(ctx context.Context, query string, args []any, byID map[int64]*model.Firm, src contactSource) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: load %s", src.table)
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var v string
		if err := rows.Scan(&id, &v); err != nil {
			return eris.Wrapf(err, "sqlite: scan %s", src.table)
		}
		if f, ok := byID[id]; ok {
			src.add(f, v)
		}
	}
	return eris.Wrapf(rows.Err(), "sqlite: iterate %s", src.table)
}

func (s *SQLiteStore) AcquireLeases(ctx context.Context, l Lease, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (firm_id, script_id, activity_id, token, expires_at) VALUES (?1, ?2, ?3, ?4, ?5)
ON CONFLICT (script_id, firm_id) DO UPDATE
	SET activity_id = excluded.activity_id, token = excluded.token, expires_at = excluded.expires_at
	WHERE expires_at <= ?6
RETURNING firm_id`, s.t.q(s.t.cfg.Lease))

	var claimed []int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			var got int64
			err := tx.QueryRowContext(ctx, stmt, id, l.RunID, l.ActivityID, l.Token.String(),
				sqliteTime(l.ExpiresAt), sqliteTime(l.Now)).Scan(&got)
			if errors.Is(err, sql.ErrNoRows) {
				continue // held by a live lease
			}
			if err != nil {
				return eris.Wrapf(err, "sqlite: lease firm %d", id)
			}
			claimed = append(claimed, got)
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: acquire leases for activity %d", l.ActivityID)
	}
	return claimed, nil
}

func (s *SQLiteStore) WriteGeneratedValues(ctx context.Context, rows []model.GeneratedValue) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.insertGenerated(ctx, tx, rows)
		return err
	})
	return n, err
}

func (s *SQLiteStore) WriteProcessedMarks(ctx context.Context, firmIDs []int64, runID, activityID int64) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		n, err = s.insertMarks(ctx, tx, firmIDs, runID, activityID)
		return err
	})
	return n, err
}

func (s *SQLiteStore) PersistBatch(ctx context.Context, b BatchResult) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.insertGenerated(ctx, tx, b.Values); err != nil {
			return err
		}
		if _, err := s.insertMarks(ctx, tx, b.FirmIDs, b.RunID, b.ActivityID); err != nil {
			return err
		}
		if b.LeaseToken != uuid.Nil {
			if _, err := tx.ExecContext(ctx, s.q.releaseLeases, b.RunID, b.LeaseToken.String()); err != nil {
				return eris.Wrap(err, "sqlite: release leases")
			}
		}
		return nil
	})
	return eris.Wrapf(err, "sqlite: persist batch for activity %d", b.ActivityID)
}

// ReleaseLeases drops every lease held under token for the run.
func (s *SQLiteStore) ReleaseLeases(ctx context.Context, runID int64, token uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, s.q.releaseLeases, runID, token.String())
	return eris.Wrapf(err, "sqlite: release leases for run %d", runID)
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) insertGenerated(ctx context.Context, tx *sql.Tx, rows []model.GeneratedValue) (int64, error) {
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
		n, err := insertRows(ctx, tx, table, generatedColumns(field), batch)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func (s *SQLiteStore) insertMarks(ctx context.Context, tx *sql.Tx, firmIDs []int64, runID, activityID int64) (int64, error) {
	rows := make([][]any, len(firmIDs))
	for i, id := range firmIDs {
		rows[i] = []any{id, runID, activityID}
	}
	return insertRows(ctx, tx, s.t.cfg.Processed, processedColumns, rows)
}

// insertRows writes rows with multi-row INSERT statements sized to stay
// under the parameter limit.
func insertRows(ctx context.Context, tx *sql.Tx, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	per := sqliteMaxVars / len(columns)
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ") + ")"

	var total int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		chunk := rows[start:end]

		tuples := make([]string, len(chunk))
		args := make([]any, 0, len(chunk)*len(columns))
		for i, r := range chunk {
			tuples[i] = tuple
			args = append(args, r...)
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			db.QuoteTable(table), db.QuoteColumns(columns), strings.Join(tuples, ", "))
		res, err := tx.ExecContext(ctx, stmt, args...)
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: insert into %s", table)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func lastByID(firms []model.Firm) []model.Firm {
	pos := make(map[int64]int, len(firms))
	out := make([]model.Firm, 0, len(firms))
	for _, f := range firms {
		if i, ok := pos[f.ID]; ok {
			out[i] = f
			continue
		}
		pos[f.ID] = len(out)
		out = append(out, f)
	}
	return out
}

// sqliteTime normalizes timestamps so stored values compare correctly as text.
func sqliteTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}

func chunkIDs(ids []int64, size int) [][]int64 {
	var out [][]int64
	for start := 0; start < len(ids); start += size {
		out = append(out, ids[start:min(start+size, len(ids))])
	}
	return out
}

func inList(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "), args
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}
