package fundsync

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/fundsync/adapter"
	"github.com/sells-group/fund-cli/internal/model"
	"github.com/sells-group/fund-cli/internal/store"
)

// Upstream is the per-entity view of EDGAR used by the orchestrator.
// *edgar.Session satisfies it.
type Upstream interface {
	adapter.Source
	LatestFilingDate(ctx context.Context, form string) (*time.Time, error)
}

// PanicError is a panic recovered from an adapter.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Orchestrator drives one entity through freshness check, extraction and a
// single commit.
type Orchestrator struct {
	store   store.Store
	ledger  *Ledger
	timeout time.Duration
	now     func() time.Time
}

// NewOrchestrator creates an Orchestrator. timeout bounds each upstream
// freshness query and each adapter invocation; zero disables it.
func NewOrchestrator(st store.Store, timeout time.Duration) *Orchestrator {
	return &Orchestrator{
		store:   st,
		ledger:  NewLedger(st),
		timeout: timeout,
		now:     time.Now,
	}
}

type formQuery struct {
	latest *time.Time
	err    error
}

type extracted struct {
	idx      int
	kind     model.AdapterKind
	upstream time.Time
	facts    []model.Fact
}

// ProcessEntity runs the stale adapters of rc for one entity and commits
// their output and ledger entries in one transaction. It never returns an
// error: every failure is folded into the result.
func (o *Orchestrator) ProcessEntity(ctx context.Context, rc *RunContext, cik string, up Upstream) (res EntityResult) {
	start := time.Now()
	res.CIK = cik
	defer func() { res.Duration = time.Since(start) }()

	log := rc.logger().With(zap.String("cik", cik))

	funds, err := o.store.ListFunds(ctx, cik)
	if err != nil {
		res.Outcome = model.OutcomeFailed
		res.Err = eris.Wrapf(err, "orchestrator: list funds for %s", cik)
		return res
	}

	// Checking freshness: one upstream query per distinct form.
	forms := make(map[string]formQuery)
	res.Adapters = make([]AdapterResult, len(rc.Adapters))
	var due []int
	var upstream []time.Time

	for i, a := range rc.Adapters {
		r := &res.Adapters[i]
		r.Kind = a.Kind()
		alog := log.With(zap.String("adapter", string(a.Kind())))

		if !a.Applicable(funds) {
			r.Status = AdapterNotApplicable
			continue
		}

		q, ok := forms[a.Form()]
		if !ok {
			q = o.latestFiling(ctx, up, a.Form())
			forms[a.Form()] = q
		}
		if q.err != nil {
			r.Status = AdapterFailed
			r.Err = q.err
			alog.Warn("freshness check failed", zap.String("form", a.Form()), zap.Error(q.err))
			continue
		}

		processed, err := o.ledger.LatestProcessed(ctx, cik, a.Kind())
		if err != nil {
			r.Status = AdapterFailed
			r.Err = err
			alog.Warn("ledger read failed", zap.Error(err))
			continue
		}

		decision := Decide(q.latest, processed)
		if rc.Force && q.latest != nil {
			decision = Stale
		}
		switch decision {
		case NotApplicable:
			r.Status = AdapterNotApplicable
		case Fresh:
			r.Status = AdapterFresh
			r.FilingDate = processed
		case Stale:
			due = append(due, i)
			upstream = append(upstream, *q.latest)
		}
	}

	if len(due) == 0 {
		res.Outcome = classify(res.Adapters)
		if res.Outcome == model.OutcomeFailed {
			res.Err = eris.Errorf("orchestrator: freshness check failed for %s", cik)
		}
		return res
	}

	// Running adapters, in declared order.
	var ok []extracted
	for j, i := range due {
		a := rc.Adapters[i]
		r := &res.Adapters[i]
		alog := log.With(zap.String("adapter", string(a.Kind())))

		ext, err := o.extract(ctx, a, up, cik, funds)
		var pe *PanicError
		switch {
		case errors.As(err, &pe):
			r.Status = AdapterFailed
			r.Err = err
			alog.Error("adapter panicked", zap.Any("panic", pe.Value), zap.ByteString("stack", pe.Stack))
			res.Outcome = model.OutcomeFailed
			res.Err = eris.Wrapf(err, "orchestrator: adapter %s", a.Kind())
			return res
		case errors.Is(err, adapter.ErrNoFiling):
			alog.Info("no applicable filing")
			ok = append(ok, extracted{idx: i, kind: a.Kind(), upstream: upstream[j]})
		case err != nil:
			r.Status = AdapterFailed
			r.Err = err
			alog.Warn("adapter failed", zap.Error(err))
		default:
			ok = append(ok, extracted{idx: i, kind: a.Kind(), upstream: upstream[j], facts: ext.Facts})
		}
	}

	if len(ok) == 0 {
		res.Outcome = classify(res.Adapters)
		res.Err = eris.Errorf("orchestrator: every due adapter failed for %s", cik)
		return res
	}

	// Committing.
	at := o.now()
	var written int64
	err = o.store.WithTx(ctx, func(tx store.Tx) error {
		for _, e := range ok {
			n, err := tx.UpsertFacts(ctx, e.facts)
			if err != nil {
				return eris.Wrapf(err, "orchestrator: write %s facts", e.kind)
			}
			written += n
			if err := o.ledger.RecordSuccess(ctx, tx, cik, e.kind, e.upstream, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		for _, e := range ok {
			res.Adapters[e.idx].Status = AdapterFailed
			res.Adapters[e.idx].Err = err
		}
		res.Outcome = model.OutcomeFailed
		res.Err = eris.Wrapf(err, "orchestrator: commit %s", cik)
		return res
	}

	for _, e := range ok {
		r := &res.Adapters[e.idx]
		r.Status = AdapterSucceeded
		d := e.upstream
		r.FilingDate = &d
		r.Rows = len(e.facts)
	}
	res.RowsWritten = written
	res.Outcome = classify(res.Adapters)
	return res
}

func (o *Orchestrator) latestFiling(ctx context.Context, up Upstream, form string) formQuery {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	latest, err := up.LatestFilingDate(ctx, form)
	if err != nil {
		return formQuery{err: eris.Wrapf(err, "orchestrator: latest %s filing", form)}
	}
	if latest != nil {
		d := model.Date(*latest)
		latest = &d
	}
	return formQuery{latest: latest}
}

func (o *Orchestrator) extract(ctx context.Context, a adapter.Adapter, up Upstream, cik string, funds []model.Fund) (ext *adapter.Extraction, err error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	defer func() {
		if p := recover(); p != nil {
			ext, err = nil, &PanicError{Value: p, Stack: debug.Stack()}
		}
	}()

	ext, err = a.Extract(ctx, up, cik, funds)
	if err == nil && ext == nil {
		err = eris.New("orchestrator: adapter returned no extraction")
	}
	return ext, err
}

func (rc *RunContext) logger() *zap.Logger {
	if rc.Log != nil {
		return rc.Log
	}
	return zap.L()
}
