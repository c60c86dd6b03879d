package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/sells-group/fund-cli/internal/db"
	"github.com/sells-group/fund-cli/internal/model"
)

const (
	sqliteDateLayout = "2006-01-02"
	// Fixed width so timestamps compare correctly as text.
	sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"
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
	// One writer; entity transactions are sequential.
	db.SetMaxOpenConns(1)
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
CREATE TABLE IF NOT EXISTS fund (
	class_id      TEXT PRIMARY KEY,
	cik           TEXT NOT NULL,
	series_id     TEXT NOT NULL,
	ticker        TEXT NOT NULL DEFAULT '',
	series_name   TEXT,
	class_name    TEXT,
	strategy_text TEXT,
	is_active     INTEGER NOT NULL DEFAULT 1,
	updated_at    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS holding (
	series_id        TEXT NOT NULL,
	report_date      TEXT NOT NULL,
	filing_date      TEXT NOT NULL,
	line_no          INTEGER NOT NULL,
	name             TEXT NOT NULL,
	title            TEXT,
	lei              TEXT,
	cusip            TEXT,
	isin             TEXT,
	ticker           TEXT,
	balance          TEXT,
	units            TEXT,
	currency         TEXT,
	value_usd        TEXT,
	pct_val          TEXT,
	asset_category   TEXT,
	issuer_category  TEXT,
	country          TEXT,
	fair_value_level TEXT,
	is_restricted    INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (series_id, report_date, filing_date, line_no)
);

CREATE TABLE IF NOT EXISTS derivative (
	series_id        TEXT NOT NULL,
	report_date      TEXT NOT NULL,
	filing_date      TEXT NOT NULL,
	line_no          INTEGER NOT NULL,
	derivative_type  TEXT NOT NULL,
	name             TEXT,
	underlying_name  TEXT,
	underlying_cusip TEXT,
	notional         TEXT,
	value_usd        TEXT,
	counterparty     TEXT,
	counterparty_lei TEXT,
	delta            TEXT,
	expiration_date  TEXT,
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (series_id, report_date, filing_date, line_no)
);

CREATE TABLE IF NOT EXISTS performance (
	class_id               TEXT NOT NULL,
	fiscal_year_end        TEXT NOT NULL,
	filing_date            TEXT NOT NULL,
	return_1yr             TEXT,
	return_5yr             TEXT,
	return_10yr            TEXT,
	return_since_inception TEXT,
	benchmark_name         TEXT,
	benchmark_return_1yr   TEXT,
	benchmark_return_5yr   TEXT,
	benchmark_return_10yr  TEXT,
	expense_ratio          TEXT,
	portfolio_turnover     TEXT,
	created_at             DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (class_id, fiscal_year_end, filing_date)
);

CREATE TABLE IF NOT EXISTS fee_expense (
	class_id            TEXT NOT NULL,
	effective_date      TEXT NOT NULL,
	filing_date         TEXT NOT NULL,
	management_fee      TEXT,
	distribution_12b1   TEXT,
	other_expenses      TEXT,
	total_expense_gross TEXT,
	fee_waiver          TEXT,
	total_expense_net   TEXT,
	redemption_fee      TEXT,
	created_at          DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (class_id, effective_date, filing_date)
);

CREATE TABLE IF NOT EXISTS flow_data (
	cik               TEXT NOT NULL,
	fiscal_year_end   TEXT NOT NULL,
	filing_date       TEXT NOT NULL,
	sales_value       TEXT,
	redemptions_value TEXT,
	net_sales         TEXT,
	created_at        DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (cik, fiscal_year_end, filing_date)
);

CREATE TABLE IF NOT EXISTS financial_highlight (
	class_id                    TEXT NOT NULL,
	fiscal_year_end             TEXT NOT NULL,
	filing_date                 TEXT NOT NULL,
	nav_beginning               TEXT,
	net_investment_income       TEXT,
	net_gain_loss               TEXT,
	total_from_operations       TEXT,
	dist_net_investment_income  TEXT,
	dist_capital_gains          TEXT,
	dist_return_of_capital      TEXT,
	total_distributions         TEXT,
	nav_end                     TEXT,
	total_return                TEXT,
	expense_ratio               TEXT,
	net_investment_income_ratio TEXT,
	portfolio_turnover          TEXT,
	net_assets_end              TEXT,
	created_at                  DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (class_id, fiscal_year_end, filing_date)
);

CREATE TABLE IF NOT EXISTS processing_log (
	cik                     TEXT NOT NULL,
	adapter                 TEXT NOT NULL,
	latest_filing_date_seen TEXT NOT NULL,
	last_run_at             TEXT NOT NULL,
	PRIMARY KEY (cik, adapter)
);

CREATE TABLE IF NOT EXISTS run_log (
	id           TEXT PRIMARY KEY,
	command      TEXT NOT NULL,
	run_limit    INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL DEFAULT 'running',
	entities     INTEGER NOT NULL DEFAULT 0,
	succeeded    INTEGER NOT NULL DEFAULT 0,
	partial      INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	skipped      INTEGER NOT NULL DEFAULT 0,
	failed_ciks  TEXT NOT NULL DEFAULT '[]',
	started_at   TEXT NOT NULL,
	completed_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_fund_cik ON fund(cik);
CREATE INDEX IF NOT EXISTS idx_run_log_started ON run_log(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SyncFunds(ctx context.Context, funds []model.Fund) (*SyncResult, error) {
	if len(funds) == 0 {
		return nil, eris.New("sqlite: refusing to sync an empty fund universe")
	}
	seenAt := formatTime(time.Now())

	stmt, err := db.UpsertSQL(fundConfig)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin fund sync")
	}
	defer tx.Rollback() //nolint:errcheck

	var result SyncResult
	for _, f := range funds {
		res, err := tx.ExecContext(ctx, stmt, f.ClassID, f.CIK, f.SeriesID, f.Ticker, true, seenAt)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: upsert fund %s", f.ClassID)
		}
		n, _ := res.RowsAffected()
		result.Upserted += n
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE fund SET is_active = 0, updated_at = ? WHERE is_active = 1 AND updated_at < ?`,
		seenAt, seenAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: deactivate funds")
	}
	result.Deactivated, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit fund sync")
	}
	return &result, nil
}

func (s *SQLiteStore) ListEntities(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT cik FROM fund WHERE is_active = 1 ORDER BY cik`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list entities")
	}
	defer rows.Close()

	var ciks []string
	for rows.Next() {
		var cik string
		if err := rows.Scan(&cik); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity")
		}
		ciks = append(ciks, cik)
	}
	return ciks, eris.Wrap(rows.Err(), "sqlite: list entities iterate")
}

func (s *SQLiteStore) ListFunds(ctx context.Context, cik string) ([]model.Fund, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT class_id, cik, series_id, ticker, series_name, class_name, strategy_text, is_active, updated_at
		 FROM fund WHERE cik = ? AND is_active = 1 ORDER BY series_id, class_id`,
		cik,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list funds for %s", cik)
	}
	defer rows.Close()

	var funds []model.Fund
	for rows.Next() {
		var f model.Fund
		var seriesName, className, strategy sql.NullString
		var updatedAt string
		if err := rows.Scan(&f.ClassID, &f.CIK, &f.SeriesID, &f.Ticker,
			&seriesName, &className, &strategy, &f.IsActive, &updatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan fund")
		}
		f.SeriesName = seriesName.String
		f.ClassName = className.String
		f.StrategyText = strategy.String
		if t, err := time.Parse(sqliteTimeLayout, updatedAt); err == nil {
			f.UpdatedAt = &t
		}
		funds = append(funds, f)
	}
	return funds, eris.Wrap(rows.Err(), "sqlite: list funds iterate")
}

func (s *SQLiteStore) LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error) {
	return sqliteLatestProcessed(ctx, s.db, cik, kind)
}

func (s *SQLiteStore) ListLedger(ctx context.Context, cik string) ([]model.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cik, adapter, latest_filing_date_seen, last_run_at
		 FROM processing_log
		 WHERE ?1 = '' OR cik = ?1
		 ORDER BY cik, adapter`,
		cik,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list ledger")
	}
	defer rows.Close()

	var entries []model.LedgerEntry
	for rows.Next() {
		var e model.LedgerEntry
		var adapter, seen, lastRun string
		if err := rows.Scan(&e.CIK, &adapter, &seen, &lastRun); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan ledger entry")
		}
		e.Adapter = model.AdapterKind(adapter)
		if e.LatestFilingDateSeen, err = time.Parse(sqliteDateLayout, seen); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse ledger date %q", seen)
		}
		if e.LastRunAt, err = time.Parse(sqliteTimeLayout, lastRun); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse ledger run time %q", lastRun)
		}
		entries = append(entries, e)
	}
	return entries, eris.Wrap(rows.Err(), "sqlite: list ledger iterate")
}

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			zap.L().Warn("sqlite: rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit tx")
}

func (s *SQLiteStore) StartRun(ctx context.Context, run *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (id, command, run_limit, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Command, run.Limit, string(run.Status), formatTime(run.StartedAt),
	)
	return eris.Wrapf(err, "sqlite: start run %s", run.ID)
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, run *model.Run) error {
	failed := run.FailedCIKs
	if failed == nil {
		failed = []string{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal failed ciks")
	}
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = formatTime(*run.CompletedAt)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_log
		 SET status = ?, entities = ?, succeeded = ?, partial = ?, failed = ?,
		     skipped = ?, failed_ciks = ?, completed_at = ?
		 WHERE id = ?`,
		string(run.Status), run.Entities, run.Succeeded, run.Partial, run.Failed,
		run.Skipped, string(failedJSON), completedAt, run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.Run, error) {
	if limit <= 0 {
		limit = defaultRunListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command, run_limit, status, entities, succeeded, partial, failed, skipped,
		        failed_ciks, started_at, completed_at
		 FROM run_log ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status, failedJSON, startedAt string
		var completedAt sql.NullString
		if err := rows.Scan(&r.ID, &r.Command, &r.Limit, &status, &r.Entities, &r.Succeeded,
			&r.Partial, &r.Failed, &r.Skipped, &failedJSON, &startedAt, &completedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		r.Status = model.RunStatus(status)
		if err := json.Unmarshal([]byte(failedJSON), &r.FailedCIKs); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal failed ciks")
		}
		if r.StartedAt, err = time.Parse(sqliteTimeLayout, startedAt); err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse run start %q", startedAt)
		}
		if completedAt.Valid {
			t, err := time.Parse(sqliteTimeLayout, completedAt.String)
			if err != nil {
				return nil, eris.Wrapf(err, "sqlite: parse run completion %q", completedAt.String)
			}
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) UpsertFacts(ctx context.Context, facts []model.Fact) (int64, error) {
	g, err := groupFacts(facts, sqliteEncoder{})
	if err != nil {
		return 0, err
	}

	var total int64
	for _, table := range factTableOrder {
		rows := g.rows[table]
		if len(rows) == 0 {
			continue
		}
		query, err := db.UpsertSQL(factTables[table])
		if err != nil {
			return total, err
		}
		stmt, err := t.tx.PrepareContext(ctx, query)
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: prepare upsert %s", table)
		}
		for _, row := range rows {
			res, err := stmt.ExecContext(ctx, row...)
			if err != nil {
				stmt.Close()
				return total, eris.Wrapf(err, "sqlite: upsert %s", table)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		stmt.Close()
	}

	for _, p := range g.profiles {
		res, err := t.tx.ExecContext(ctx,
			`UPDATE fund
			 SET series_name = COALESCE(?1, series_name),
			     class_name = COALESCE(?2, class_name),
			     strategy_text = COALESCE(?3, strategy_text)
			 WHERE series_id = ?4 AND (?5 = '' OR class_id = ?5)`,
			p.SeriesName, p.ClassName, p.StrategyText, p.SeriesID, p.ClassID,
		)
		if err != nil {
			return total, eris.Wrapf(err, "sqlite: apply profile for %s", p.SeriesID)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

func (t *sqliteTx) LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error) {
	return sqliteLatestProcessed(ctx, t.tx, cik, kind)
}

func (t *sqliteTx) PutLedger(ctx context.Context, e model.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO processing_log (cik, adapter, latest_filing_date_seen, last_run_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (cik, adapter) DO UPDATE SET
		     latest_filing_date_seen = MAX(processing_log.latest_filing_date_seen, excluded.latest_filing_date_seen),
		     last_run_at = excluded.last_run_at`,
		e.CIK, string(e.Adapter), e.LatestFilingDateSeen.Format(sqliteDateLayout), formatTime(e.LastRunAt),
	)
	return eris.Wrapf(err, "sqlite: put ledger %s/%s", e.CIK, e.Adapter)
}

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteLatestProcessed(ctx context.Context, q queryRower, cik string, kind model.AdapterKind) (*time.Time, error) {
	var seen string
	err := q.QueryRowContext(ctx,
		`SELECT latest_filing_date_seen FROM processing_log WHERE cik = ? AND adapter = ?`,
		cik, string(kind),
	).Scan(&seen)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest processed %s/%s", cik, kind)
	}
	t, err := time.Parse(sqliteDateLayout, seen)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: parse ledger date %q", seen)
	}
	return &t, nil
}

type sqliteEncoder struct{}

func (sqliteEncoder) dec(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.String()
}

func (sqliteEncoder) date(t time.Time) any { return t.Format(sqliteDateLayout) }

func (sqliteEncoder) optDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(sqliteDateLayout)
}

func (sqliteEncoder) boolean(b bool) any {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: %s not found: %s", entity, id)
	}
	return nil
}
