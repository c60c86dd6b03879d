package fundsync

import (
	"context"
	"database/sql"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fundsync/adapter"
	"github.com/sells-group/fund-cli/internal/model"
	"github.com/sells-group/fund-cli/internal/store"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// testDB is a real SQLite store plus a second connection for assertions.
type testDB struct {
	*store.SQLiteStore
	raw *sql.DB
}

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fund.db")
	st, err := store.NewSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	raw, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return &testDB{SQLiteStore: st, raw: raw}
}

func (d *testDB) count(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, d.raw.QueryRow(query, args...).Scan(&n))
	return n
}

func (d *testDB) ledger(t *testing.T, cik string, kind model.AdapterKind) *time.Time {
	t.Helper()
	l, err := d.LatestProcessed(context.Background(), cik, kind)
	require.NoError(t, err)
	return l
}

// seed registers one class per CIK.
func (d *testDB) seed(t *testing.T, ciks ...string) {
	t.Helper()
	var funds []model.Fund
	for i, cik := range ciks {
		funds = append(funds, model.Fund{
			ClassID:  "C" + cik[1:],
			CIK:      cik,
			SeriesID: "S" + cik[1:],
			Ticker:   string(rune('A'+i)) + "FND",
		})
	}
	_, err := d.SyncFunds(context.Background(), funds)
	require.NoError(t, err)
}

// fakeUpstream reports per-form latest filing dates and counts queries.
type fakeUpstream struct {
	mu      sync.Mutex
	latest  map[string]time.Time
	errs    map[string]error
	queries map[string]int
	closed  int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		latest:  make(map[string]time.Time),
		errs:    make(map[string]error),
		queries: make(map[string]int),
	}
}

func (u *fakeUpstream) LatestFilingDate(_ context.Context, form string) (*time.Time, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.queries[form]++
	if err := u.errs[form]; err != nil {
		return nil, err
	}
	d, ok := u.latest[form]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (u *fakeUpstream) Filings(context.Context, string, int) ([]edgar.Filing, error) {
	return nil, nil
}

func (u *fakeUpstream) Document(context.Context, edgar.Filing, string) (io.ReadCloser, error) {
	return nil, eris.New("fake: no documents")
}

func (u *fakeUpstream) Header(context.Context, edgar.Filing) (*edgar.Header, error) {
	return nil, eris.New("fake: no headers")
}

func (u *fakeUpstream) Close() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed++
	return nil
}

// fakeAdapter emits one performance row per call, stamped with the
// upstream date of its form, unless extract is overridden.
type fakeAdapter struct {
	kind       model.AdapterKind
	form       string
	applicable bool
	up         *fakeUpstream
	extract    func(ctx context.Context, cik string) (*adapter.Extraction, error)
	calls      int
}

func newFakeAdapter(kind model.AdapterKind, form string, up *fakeUpstream) *fakeAdapter {
	return &fakeAdapter{kind: kind, form: form, applicable: true, up: up}
}

func (a *fakeAdapter) Kind() model.AdapterKind { return a.kind }
func (a *fakeAdapter) Form() string            { return a.form }

func (a *fakeAdapter) Applicable([]model.Fund) bool { return a.applicable }

func (a *fakeAdapter) Extract(ctx context.Context, _ adapter.Source, cik string, funds []model.Fund) (*adapter.Extraction, error) {
	a.calls++
	if a.extract != nil {
		return a.extract(ctx, cik)
	}
	filed := a.up.latest[a.form]
	return &adapter.Extraction{
		FilingDate: filed,
		Facts: []model.Fact{model.Performance{
			ClassID:       funds[0].ClassID,
			FiscalYearEnd: date(2023, 12, 31),
			FilingDate:    filed,
			Return1Yr:     decimal.NewNullDecimal(decimal.RequireFromString("7.25")),
		}},
	}, nil
}

// flowsAdapter emits one flow_data row for the latest 24F-2NT.
func flowsAdapter(up *fakeUpstream) *fakeAdapter {
	a := newFakeAdapter(model.AdapterFlows, "24F-2NT", up)
	a.extract = func(_ context.Context, cik string) (*adapter.Extraction, error) {
		filed := up.latest["24F-2NT"]
		return &adapter.Extraction{
			FilingDate: filed,
			Facts: []model.Fact{model.FlowData{
				CIK:           cik,
				FiscalYearEnd: date(2023, 12, 31),
				FilingDate:    filed,
				SalesValue:    decimal.NewNullDecimal(decimal.RequireFromString("1500000")),
				NetSales:      decimal.NewNullDecimal(decimal.RequireFromString("250000")),
			}},
		}, nil
	}
	return a
}

func newRunContext(adapters ...adapter.Adapter) *RunContext {
	return &RunContext{
		ID:        "test-run",
		Command:   "run",
		StartedAt: time.Now().UTC(),
		Adapters:  adapters,
		Summary:   NewSummary(),
		Log:       zap.NewNop(),
	}
}
