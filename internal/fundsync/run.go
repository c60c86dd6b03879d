package fundsync

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/fundsync/adapter"
	"github.com/sells-group/fund-cli/internal/model"
)

// RunContext carries everything one run needs. It is created by the
// Scheduler and threaded through the Orchestrator; nothing about a run lives
// in package state.
type RunContext struct {
	ID        string
	Command   string
	Limit     int
	Force     bool
	StartedAt time.Time

	// Entities is the deterministic, already-capped list of CIKs to process.
	Entities []string
	// Adapters are the adapters of this run, in declared order.
	Adapters []adapter.Adapter

	Summary *Summary
	Log     *zap.Logger
}

// AdapterStatus is what happened to one adapter for one entity.
type AdapterStatus string

const (
	AdapterSucceeded     AdapterStatus = "succeeded"
	AdapterFailed        AdapterStatus = "failed"
	AdapterFresh         AdapterStatus = "fresh"
	AdapterNotApplicable AdapterStatus = "not_applicable"
)

// AdapterResult records one adapter's part in an entity's processing.
type AdapterResult struct {
	Kind       model.AdapterKind
	Status     AdapterStatus
	FilingDate *time.Time
	Rows       int
	Err        error
}

// EntityResult is the outcome of one entity.
type EntityResult struct {
	CIK         string
	Outcome     model.Outcome
	Adapters    []AdapterResult
	RowsWritten int64
	Err         error
	Duration    time.Duration
}

// Summary accumulates outcomes across a run.
type Summary struct {
	Succeeded       int                       `json:"succeeded" yaml:"succeeded"`
	Partial         int                       `json:"partial" yaml:"partial"`
	Failed          int                       `json:"failed" yaml:"failed"`
	Skipped         int                       `json:"skipped" yaml:"skipped"`
	FailedCIKs      []string                  `json:"failed_ciks,omitempty" yaml:"failed_ciks,omitempty"`
	RowsWritten     int64                     `json:"rows_written" yaml:"rows_written"`
	AdapterFailures map[model.AdapterKind]int `json:"adapter_failures,omitempty" yaml:"adapter_failures,omitempty"`
	Aborted         bool                      `json:"aborted,omitempty" yaml:"aborted,omitempty"`
}

// NewSummary returns an empty Summary.
func NewSummary() *Summary {
	return &Summary{AdapterFailures: make(map[model.AdapterKind]int)}
}

// Record adds one entity result.
func (s *Summary) Record(r EntityResult) {
	switch r.Outcome {
	case model.OutcomeSucceeded:
		s.Succeeded++
	case model.OutcomePartial:
		s.Partial++
	case model.OutcomeFailed:
		s.Failed++
		s.FailedCIKs = append(s.FailedCIKs, r.CIK)
	case model.OutcomeSkipped:
		s.Skipped++
	}
	s.RowsWritten += r.RowsWritten
	for _, a := range r.Adapters {
		if a.Status == AdapterFailed {
			if s.AdapterFailures == nil {
				s.AdapterFailures = make(map[model.AdapterKind]int)
			}
			s.AdapterFailures[a.Kind]++
		}
	}
}

// Total is the number of entities recorded.
func (s *Summary) Total() int {
	return s.Succeeded + s.Partial + s.Failed + s.Skipped
}

func (s *Summary) String() string {
	out := fmt.Sprintf("%d entities: %d succeeded, %d partial, %d failed, %d skipped (%d rows written)",
		s.Total(), s.Succeeded, s.Partial, s.Failed, s.Skipped, s.RowsWritten)
	if len(s.AdapterFailures) > 0 {
		kinds := make([]string, 0, len(s.AdapterFailures))
		for k := range s.AdapterFailures {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		out += "; adapter failures:"
		for _, k := range kinds {
			out += fmt.Sprintf(" %s=%d", k, s.AdapterFailures[model.AdapterKind(k)])
		}
	}
	return out
}

// classify maps adapter results to an entity outcome.
func classify(results []AdapterResult) model.Outcome {
	var ok, failed int
	for _, r := range results {
		switch r.Status {
		case AdapterSucceeded:
			ok++
		case AdapterFailed:
			failed++
		}
	}
	switch {
	case ok == 0 && failed == 0:
		return model.OutcomeSkipped
	case failed == 0:
		return model.OutcomeSucceeded
	case ok == 0:
		return model.OutcomeFailed
	default:
		return model.OutcomePartial
	}
}
