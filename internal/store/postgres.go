package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/db"
	"github.com/sells-group/fund-cli/internal/model"
)

const pgSchema = "fund_data"

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

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	return migrate(ctx, s.pool)
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SyncFunds upserts the registry and deactivates every active fund the
// listing no longer carries.
func (s *PostgresStore) SyncFunds(ctx context.Context, funds []model.Fund) (*SyncResult, error) {
	if len(funds) == 0 {
		return nil, eris.New("postgres: refusing to sync an empty fund universe")
	}
	// Postgres keeps microseconds; a finer seenAt would deactivate the rows just written.
	seenAt := time.Now().UTC().Truncate(time.Microsecond)

	rows := make([][]any, 0, len(funds))
	for _, f := range funds {
		rows = append(rows, []any{f.ClassID, f.CIK, f.SeriesID, f.Ticker, true, seenAt})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: begin fund sync")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	cfg := fundConfig
	cfg.Table = pgSchema + "." + cfg.Table
	n, err := db.BulkUpsert(ctx, tx, cfg, rows)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: upsert funds")
	}

	tag, err := tx.Exec(ctx,
		`UPDATE fund_data.fund SET is_active = false, updated_at = $1
		 WHERE is_active AND updated_at < $1`,
		seenAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: deactivate funds")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "postgres: commit fund sync")
	}
	return &SyncResult{Upserted: n, Deactivated: tag.RowsAffected()}, nil
}

// ListEntities returns the CIKs owning at least one active fund, ascending.
func (s *PostgresStore) ListEntities(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT cik FROM fund_data.fund WHERE is_active ORDER BY cik`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list entities")
	}
	defer rows.Close()

	var ciks []string
	for rows.Next() {
		var cik string
		if err := rows.Scan(&cik); err != nil {
			return nil, eris.Wrap(err, "postgres: scan entity")
		}
		ciks = append(ciks, cik)
	}
	return ciks, rows.Err()
}

func (s *PostgresStore) ListFunds(ctx context.Context, cik string) ([]model.Fund, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT class_id, cik, series_id, ticker, series_name, class_name, strategy_text, is_active, updated_at
		 FROM fund_data.fund WHERE cik = $1 AND is_active ORDER BY series_id, class_id`,
		cik,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list funds for %s", cik)
	}
	defer rows.Close()

	var funds []model.Fund
	for rows.Next() {
		var f model.Fund
		var seriesName, className, strategy *string
		var updatedAt time.Time
		if err := rows.Scan(&f.ClassID, &f.CIK, &f.SeriesID, &f.Ticker,
			&seriesName, &className, &strategy, &f.IsActive, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan fund")
		}
		f.SeriesName = deref(seriesName)
		f.ClassName = deref(className)
		f.StrategyText = deref(strategy)
		f.UpdatedAt = &updatedAt
		funds = append(funds, f)
	}
	return funds, rows.Err()
}

func (s *PostgresStore) LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error) {
	return pgLatestProcessed(ctx, s.pool, cik, kind)
}

// ListLedger returns processing_log rows for cik, or for every CIK when cik is empty.
func (s *PostgresStore) ListLedger(ctx context.Context, cik string) ([]model.LedgerEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT cik, adapter, latest_filing_date_seen, last_run_at
		 FROM fund_data.processing_log
		 WHERE $1 = '' OR cik = $1
		 ORDER BY cik, adapter`,
		cik,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var adapter string
		if err := rows.Scan(&e.CIK, &adapter, &e.LatestFilingDateSeen, &e.LastRunAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan ledger entry")
		}
		e.Adapter = model.AdapterKind(adapter)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(&pgTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			zap.L().Warn("postgres: rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit tx")
}

func (s *PostgresStore) StartRun(ctx context.Context, run *model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO fund_data.run_log (id, command, run_limit, status, started_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Command, run.Limit, string(run.Status), run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: start run %s", run.ID)
}

func (s *PostgresStore) CompleteRun(ctx context.Context, run *model.Run) error {
	failed := run.FailedCIKs
	if failed == nil {
		failed = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE fund_data.run_log
		 SET status = $1, entities = $2, succeeded = $3, partial = $4, failed = $5,
		     skipped = $6, failed_ciks = $7, completed_at = $8
		 WHERE id = $9`,
		string(run.Status), run.Entities, run.Succeeded, run.Partial, run.Failed,
		run.Skipped, failed, run.CompletedAt, run.ID,
	)
	return eris.Wrapf(err, "postgres: complete run %s", run.ID)
}

// ListRuns returns the most recent runs first.
func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, command, run_limit, status, entities, succeeded, partial, failed, skipped,
		        failed_ciks, started_at, completed_at
		 FROM fund_data.run_log ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		if err := rows.Scan(&r.ID, &r.Command, &r.Limit, &status, &r.Entities, &r.Succeeded,
			&r.Partial, &r.Failed, &r.Skipped, &r.FailedCIKs, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// pgTx is the Postgres unit of work. BulkUpsert opens savepoints on it.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) UpsertFacts(ctx context.Context, facts []model.Fact) (int64, error) {
	g, err := groupFacts(facts, pgEncoder{})
	if err != nil {
		return 0, err
	}

	var total int64
	for _, table := range factTableOrder {
		rows := g.rows[table]
		if len(rows) == 0 {
			continue
		}
		cfg := factTables[table]
		cfg.Table = pgSchema + "." + table
		n, err := db.BulkUpsert(ctx, t.tx, cfg, rows)
		if err != nil {
			return total, eris.Wrapf(err, "postgres: upsert %s", table)
		}
		total += n
	}

	for _, p := range g.profiles {
		tag, err := t.tx.Exec(ctx,
			`UPDATE fund_data.fund
			 SET series_name = COALESCE($1, series_name),
			     class_name = COALESCE($2, class_name),
			     strategy_text = COALESCE($3, strategy_text)
			 WHERE series_id = $4 AND ($5 = '' OR class_id = $5)`,
			p.SeriesName, p.ClassName, p.StrategyText, p.SeriesID, p.ClassID,
		)
		if err != nil {
			return total, eris.Wrapf(err, "postgres: apply profile for %s", p.SeriesID)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

func (t *pgTx) LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error) {
	return pgLatestProcessed(ctx, t.tx, cik, kind)
}

func (t *pgTx) PutLedger(ctx context.Context, e model.LedgerEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO fund_data.processing_log (cik, adapter, latest_filing_date_seen, last_run_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cik, adapter) DO UPDATE SET
		     latest_filing_date_seen = GREATEST(processing_log.latest_filing_date_seen, EXCLUDED.latest_filing_date_seen),
		     last_run_at = EXCLUDED.last_run_at`,
		e.CIK, string(e.Adapter), model.Date(e.LatestFilingDateSeen), e.LastRunAt,
	)
	return eris.Wrapf(err, "postgres: put ledger %s/%s", e.CIK, e.Adapter)
}

func pgLatestProcessed(ctx context.Context, pool db.Pool, cik string, kind model.AdapterKind) (*time.Time, error) {
	var t time.Time
	err := pool.QueryRow(ctx,
		`SELECT latest_filing_date_seen FROM fund_data.processing_log WHERE cik = $1 AND adapter = $2`,
		cik, string(kind),
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: latest processed %s/%s", cik, kind)
	}
	t = model.Date(t)
	return &t, nil
}

type pgEncoder struct{}

func (pgEncoder) dec(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return pgtype.Numeric{Int: d.Decimal.Coefficient(), Exp: d.Decimal.Exponent(), Valid: true}
}

func (pgEncoder) date(t time.Time) any { return model.Date(t) }

func (pgEncoder) optDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return model.Date(*t)
}

func (pgEncoder) boolean(b bool) any { return b }

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
