package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// AdapterKind identifies one extraction adapter; it is also the ledger key
// alongside the CIK.
type AdapterKind string

const (
	AdapterNPORT      AdapterKind = "nport"
	AdapterNCSR       AdapterKind = "ncsr"
	AdapterProspectus AdapterKind = "prospectus"
	AdapterFinHigh    AdapterKind = "finhigh"
	AdapterFlows      AdapterKind = "flows"
)

// AdapterKinds lists every adapter in declared processing order.
var AdapterKinds = []AdapterKind{
	AdapterNPORT,
	AdapterNCSR,
	AdapterProspectus,
	AdapterFinHigh,
	AdapterFlows,
}

// ParseAdapterKind validates a user-supplied adapter name.
func ParseAdapterKind(s string) (AdapterKind, error) {
	for _, k := range AdapterKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", eris.Errorf("model: unknown adapter %q", s)
}

// LedgerEntry records the latest filing date fully processed by one adapter
// for one CIK.
type LedgerEntry struct {
	CIK                  string      `json:"cik" yaml:"cik"`
	Adapter              AdapterKind `json:"adapter" yaml:"adapter"`
	LatestFilingDateSeen time.Time   `json:"latest_filing_date_seen" yaml:"latest_filing_date_seen"`
	LastRunAt            time.Time   `json:"last_run_at" yaml:"last_run_at"`
}

// Outcome classifies one entity's processing within a run.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomePartial   Outcome = "partial"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// RunStatus is the lifecycle state of a run log row.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusAborted  RunStatus = "aborted"
)

// Run is one invocation of the scheduler.
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	Command     string     `json:"command" yaml:"command"`
	Limit       int        `json:"limit,omitempty" yaml:"limit,omitempty"`
	Status      RunStatus  `json:"status" yaml:"status"`
	Entities    int        `json:"entities" yaml:"entities"`
	Succeeded   int        `json:"succeeded" yaml:"succeeded"`
	Partial     int        `json:"partial" yaml:"partial"`
	Failed      int        `json:"failed" yaml:"failed"`
	Skipped     int        `json:"skipped" yaml:"skipped"`
	FailedCIKs  []string   `json:"failed_ciks,omitempty" yaml:"failed_ciks,omitempty"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
}
