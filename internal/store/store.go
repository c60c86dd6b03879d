// Package store persists the fund registry, the append-only fact tables, the
// freshness ledger (processing_log) and the run log.
package store

import (
	"context"
	"time"

	"github.com/sells-group/fund-cli/internal/model"
)

// Store defines the persistence interface for the fund sync.
type Store interface {
	// Registry
	SyncFunds(ctx context.Context, funds []model.Fund) (*SyncResult, error)
	ListEntities(ctx context.Context) ([]string, error)
	ListFunds(ctx context.Context, cik string) ([]model.Fund, error)

	// Ledger
	LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error)
	ListLedger(ctx context.Context, cik string) ([]model.LedgerEntry, error)

	// WithTx runs fn in one transaction. fn returning an error, or panicking,
	// rolls back every write made through the Tx.
	WithTx(ctx context.Context, fn func(Tx) error) error

	// Run log
	StartRun(ctx context.Context, run *model.Run) error
	CompleteRun(ctx context.Context, run *model.Run) error
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Tx is the per-entity unit of work handed to WithTx.
type Tx interface {
	// UpsertFacts writes fact rows keyed by their identity and applies
	// FundProfile enrichment. It returns the number of rows touched.
	UpsertFacts(ctx context.Context, facts []model.Fact) (int64, error)
	LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error)
	// PutLedger records entry, keeping the later of the stored and the new
	// filing date.
	PutLedger(ctx context.Context, entry model.LedgerEntry) error
}

// SyncResult summarizes a registry refresh.
type SyncResult struct {
	Upserted    int64 `json:"upserted"`
	Deactivated int64 `json:"deactivated"`
}

const defaultRunListLimit = 20
