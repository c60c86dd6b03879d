// Package fundsync drives the incremental fund sync: the freshness ledger,
// the per-entity orchestrator and the run scheduler.
package fundsync

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/model"
	"github.com/sells-group/fund-cli/internal/store"
)

// Freshness is the staleness decision for one (entity, adapter) pair.
type Freshness int

const (
	// Stale means the adapter must run.
	Stale Freshness = iota
	// Fresh means the ledger already covers the latest upstream filing.
	Fresh
	// NotApplicable means upstream has no filing of the adapter's form.
	NotApplicable
)

func (f Freshness) String() string {
	switch f {
	case Stale:
		return "stale"
	case Fresh:
		return "fresh"
	case NotApplicable:
		return "not_applicable"
	default:
		return "unknown"
	}
}

// Decide compares upstream's latest filing date with the ledger's latest
// processed date. Without an upstream filing there is nothing to process or
// record, so that case is not applicable whatever the ledger holds.
func Decide(upstream, processed *time.Time) Freshness {
	switch {
	case upstream == nil:
		return NotApplicable
	case processed == nil:
		return Stale
	case upstream.After(*processed):
		return Stale
	default:
		return Fresh
	}
}

// LedgerReader is the read side of the ledger; store.Store and store.Tx
// both satisfy it.
type LedgerReader interface {
	LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error)
}

// Ledger reads and advances the per-(entity, adapter) processing log.
type Ledger struct {
	r LedgerReader
}

// NewLedger creates a Ledger reading through r.
func NewLedger(r LedgerReader) *Ledger {
	return &Ledger{r: r}
}

// LatestProcessed returns the latest filing date fully processed for the
// pair, or nil when the adapter has never succeeded for the entity.
func (l *Ledger) LatestProcessed(ctx context.Context, cik string, kind model.AdapterKind) (*time.Time, error) {
	t, err := l.r.LatestProcessed(ctx, cik, kind)
	if err != nil {
		return nil, eris.Wrapf(err, "ledger: read %s/%s", cik, kind)
	}
	return t, nil
}

// RecordSuccess advances the pair to filingDate inside tx. Recording the
// same date again only refreshes the run timestamp. An older date is a
// caller bug: it is logged and the stored date is kept.
func (l *Ledger) RecordSuccess(ctx context.Context, tx store.Tx, cik string, kind model.AdapterKind, filingDate, at time.Time) error {
	filingDate = model.Date(filingDate)

	prior, err := tx.LatestProcessed(ctx, cik, kind)
	if err != nil {
		return eris.Wrapf(err, "ledger: read %s/%s", cik, kind)
	}
	if prior != nil && filingDate.Before(*prior) {
		zap.L().Warn("ledger: refusing to move latest processed date backwards",
			zap.String("cik", cik),
			zap.String("adapter", string(kind)),
			zap.Time("stored", *prior),
			zap.Time("recorded", filingDate),
		)
	}

	err = tx.PutLedger(ctx, model.LedgerEntry{
		CIK:                  cik,
		Adapter:              kind,
		LatestFilingDateSeen: filingDate,
		LastRunAt:            at.UTC(),
	})
	if err != nil {
		return eris.Wrapf(err, "ledger: record %s/%s", cik, kind)
	}
	return nil
}
