package fundsync

import (
	"context"
	"runtime/debug"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fundsync/adapter"
	"github.com/sells-group/fund-cli/internal/model"
	"github.com/sells-group/fund-cli/internal/store"
)

// Session is an Upstream scoped to one entity. Close releases its cache.
type Session interface {
	Upstream
	Close() error
}

// SessionOpener acquires the upstream session for one entity.
type SessionOpener func(ctx context.Context, cik string) (Session, error)

// EdgarSessions opens sessions through an EDGAR client.
func EdgarSessions(c *edgar.Client) SessionOpener {
	return func(ctx context.Context, cik string) (Session, error) {
		s, err := c.Open(ctx, cik)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Recorder observes run results for export. monitoring.Metrics satisfies it.
type Recorder interface {
	ObserveEntity(res EntityResult)
	ObserveRun(sum *Summary, elapsed time.Duration)
	Push(ctx context.Context) error
}

// RunOpts selects what a run processes.
type RunOpts struct {
	// Command names the run in the run log ("run", "nport", ...).
	Command string
	// Limit caps the number of entities; zero means no cap.
	Limit int
	// CIK restricts the run to one entity.
	CIK string
	// Kinds restricts the adapters; empty means every adapter.
	Kinds []model.AdapterKind
	// Force treats every adapter with an upstream filing as stale.
	Force bool
}

// Scheduler resolves the entity list and drives the orchestrator across it,
// one entity at a time.
type Scheduler struct {
	store    store.Store
	registry *adapter.Registry
	orch     *Orchestrator
	open     SessionOpener
	metrics  Recorder
}

// NewScheduler creates a Scheduler. metrics may be nil.
func NewScheduler(st store.Store, registry *adapter.Registry, orch *Orchestrator, open SessionOpener, metrics Recorder) *Scheduler {
	return &Scheduler{
		store:    st,
		registry: registry,
		orch:     orch,
		open:     open,
		metrics:  metrics,
	}
}

// Prepare resolves the run context without processing anything. Errors are
// setup failures.
func (s *Scheduler) Prepare(ctx context.Context, opts RunOpts) (*RunContext, error) {
	if opts.Limit < 0 {
		return nil, eris.Errorf("fundsync: limit must not be negative, got %d", opts.Limit)
	}
	adapters, err := s.registry.Select(opts.Kinds)
	if err != nil {
		return nil, eris.Wrap(err, "fundsync: select adapters")
	}

	entities, err := s.store.ListEntities(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "fundsync: list entities")
	}
	entities = slices.Clone(entities)
	slices.Sort(entities)

	if opts.CIK != "" {
		cik, err := model.NormalizeCIK(opts.CIK)
		if err != nil {
			return nil, eris.Wrap(err, "fundsync: cik filter")
		}
		if !slices.Contains(entities, cik) {
			return nil, eris.Errorf("fundsync: cik %s has no active funds; run discover first", cik)
		}
		entities = []string{cik}
	}
	if opts.Limit > 0 && len(entities) > opts.Limit {
		entities = entities[:opts.Limit]
	}

	id := uuid.New().String()
	command := opts.Command
	if command == "" {
		command = "run"
	}
	return &RunContext{
		ID:        id,
		Command:   command,
		Limit:     opts.Limit,
		Force:     opts.Force,
		StartedAt: time.Now().UTC(),
		Entities:  entities,
		Adapters:  adapters,
		Summary:   NewSummary(),
		Log: zap.L().With(
			zap.String("component", "fundsync"),
			zap.String("run_id", id),
			zap.String("command", command),
		),
	}, nil
}

// Run prepares and executes one run. It returns an error only for setup
// failures; per-entity failures are reported in the summary.
func (s *Scheduler) Run(ctx context.Context, opts RunOpts) (*Summary, error) {
	rc, err := s.Prepare(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Execute(ctx, rc); err != nil {
		return nil, err
	}
	return rc.Summary, nil
}

// Execute processes every entity of rc in order and records the run.
func (s *Scheduler) Execute(ctx context.Context, rc *RunContext) error {
	log := rc.logger()

	run := &model.Run{
		ID:        rc.ID,
		Command:   rc.Command,
		Limit:     rc.Limit,
		Status:    model.RunStatusRunning,
		StartedAt: rc.StartedAt,
	}
	if err := s.store.StartRun(ctx, run); err != nil {
		return eris.Wrap(err, "fundsync: record run start")
	}

	log.Info("run started",
		zap.Int("entities", len(rc.Entities)),
		zap.Int("adapters", len(rc.Adapters)),
		zap.Bool("force", rc.Force),
	)

	for i, cik := range rc.Entities {
		if ctx.Err() != nil {
			rc.Summary.Aborted = true
			log.Warn("run cancelled", zap.Int("processed", i), zap.Error(ctx.Err()))
			break
		}
		res := s.processEntity(ctx, rc, cik)
		rc.Summary.Record(res)
		if s.metrics != nil {
			s.metrics.ObserveEntity(res)
		}
		logEntity(log, res)
	}

	completed := time.Now().UTC()
	run.Status = model.RunStatusComplete
	if rc.Summary.Aborted {
		run.Status = model.RunStatusAborted
	}
	run.Entities = rc.Summary.Total()
	run.Succeeded = rc.Summary.Succeeded
	run.Partial = rc.Summary.Partial
	run.Failed = rc.Summary.Failed
	run.Skipped = rc.Summary.Skipped
	run.FailedCIKs = rc.Summary.FailedCIKs
	run.CompletedAt = &completed

	// The run log is bookkeeping; entities already committed stand either way.
	if err := s.store.CompleteRun(context.WithoutCancel(ctx), run); err != nil {
		log.Error("failed to record run completion", zap.Error(err))
	}

	if s.metrics != nil {
		s.metrics.ObserveRun(rc.Summary, completed.Sub(rc.StartedAt))
		if err := s.metrics.Push(context.WithoutCancel(ctx)); err != nil {
			log.Warn("metrics push failed", zap.Error(err))
		}
	}

	log.Info("run complete",
		zap.Int("succeeded", rc.Summary.Succeeded),
		zap.Int("partial", rc.Summary.Partial),
		zap.Int("failed", rc.Summary.Failed),
		zap.Int("skipped", rc.Summary.Skipped),
		zap.Int64("rows_written", rc.Summary.RowsWritten),
		zap.Duration("elapsed", completed.Sub(rc.StartedAt)),
	)
	return nil
}

// processEntity acquires the entity's session, runs the orchestrator and
// always releases the session. A panic anywhere in between fails only this
// entity.
func (s *Scheduler) processEntity(ctx context.Context, rc *RunContext, cik string) (res EntityResult) {
	res.CIK = cik
	log := rc.logger().With(zap.String("cik", cik))

	defer func() {
		if p := recover(); p != nil {
			log.Error("entity panicked", zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))
			res = EntityResult{
				CIK:     cik,
				Outcome: model.OutcomeFailed,
				Err:     eris.Errorf("fundsync: panic processing %s: %v", cik, p),
			}
		}
	}()

	sess, err := s.open(ctx, cik)
	if err != nil {
		return EntityResult{
			CIK:     cik,
			Outcome: model.OutcomeFailed,
			Err:     eris.Wrapf(err, "fundsync: open session for %s", cik),
		}
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("failed to release session", zap.Error(err))
		}
	}()

	return s.orch.ProcessEntity(ctx, rc, cik, sess)
}

func logEntity(log *zap.Logger, res EntityResult) {
	fields := []zap.Field{
		zap.String("cik", res.CIK),
		zap.String("outcome", string(res.Outcome)),
		zap.Int64("rows_written", res.RowsWritten),
		zap.Duration("elapsed", res.Duration),
	}
	for _, a := range res.Adapters {
		fields = append(fields, zap.String("adapter_"+string(a.Kind), string(a.Status)))
	}
	switch res.Outcome {
	case model.OutcomeFailed:
		log.Error("entity failed", append(fields, zap.Error(res.Err))...)
	case model.OutcomePartial:
		log.Warn("entity partially processed", fields...)
	default:
		log.Info("entity processed", fields...)
	}
}
