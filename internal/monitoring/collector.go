package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/fund-cli/internal/model"
)

// maxSnapshotRuns bounds how much of the run log a snapshot reads.
const maxSnapshotRuns = 1000

// Snapshot is a point-in-time view of sync health.
type Snapshot struct {
	// Runs within the lookback window.
	RunsTotal    int `json:"runs_total" yaml:"runs_total"`
	RunsComplete int `json:"runs_complete" yaml:"runs_complete"`
	RunsAborted  int `json:"runs_aborted" yaml:"runs_aborted"`
	RunsRunning  int `json:"runs_running" yaml:"runs_running"`

	// Entity outcomes summed over those runs.
	EntitiesProcessed int     `json:"entities_processed" yaml:"entities_processed"`
	EntitiesFailed    int     `json:"entities_failed" yaml:"entities_failed"`
	EntityFailRate    float64 `json:"entity_fail_rate" yaml:"entity_fail_rate"`

	// LastCompletedAt is the most recent run completion, if any.
	LastCompletedAt *time.Time `json:"last_completed_at,omitempty" yaml:"last_completed_at,omitempty"`

	// LedgerEntries counts processing log rows per adapter.
	LedgerEntries map[model.AdapterKind]int `json:"ledger_entries" yaml:"ledger_entries"`

	LookbackHours int       `json:"lookback_hours" yaml:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at" yaml:"collected_at"`
}

// RunLogReader is the part of the store the collector reads.
type RunLogReader interface {
	ListRuns(ctx context.Context, limit int) ([]model.Run, error)
	ListLedger(ctx context.Context, cik string) ([]model.LedgerEntry, error)
}

// Collector gathers snapshots from the run log and the ledger.
type Collector struct {
	store RunLogReader
}

// NewCollector creates a new Collector.
func NewCollector(st RunLogReader) *Collector {
	return &Collector{store: st}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*Snapshot, error) {
	now := time.Now().UTC()
	snap := &Snapshot{
		LedgerEntries: make(map[model.AdapterKind]int),
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}
	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)

	runs, err := c.store.ListRuns(ctx, maxSnapshotRuns)
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}
	for _, r := range runs {
		if r.CompletedAt != nil && (snap.LastCompletedAt == nil || r.CompletedAt.After(*snap.LastCompletedAt)) {
			t := *r.CompletedAt
			snap.LastCompletedAt = &t
		}
		if r.StartedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusAborted:
			snap.RunsAborted++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		snap.EntitiesProcessed += r.Entities
		snap.EntitiesFailed += r.Failed
	}
	if snap.EntitiesProcessed > 0 {
		snap.EntityFailRate = float64(snap.EntitiesFailed) / float64(snap.EntitiesProcessed)
	}

	entries, err := c.store.ListLedger(ctx, "")
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list ledger")
	}
	for _, e := range entries {
		snap.LedgerEntries[e.Adapter]++
	}

	return snap, nil
}
