package main

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fundsync"
	"github.com/sells-group/fund-cli/internal/fundsync/adapter"
	"github.com/sells-group/fund-cli/internal/model"
	"github.com/sells-group/fund-cli/internal/monitoring"
	"github.com/sells-group/fund-cli/internal/store"
)

// syncDeps is everything a sync command builds from config.
type syncDeps struct {
	client    *edgar.Client
	scheduler *fundsync.Scheduler
}

func newSyncDeps(st store.Store) *syncDeps {
	client := edgar.NewFromConfig(cfg.Edgar)
	reg := adapter.NewRegistry(adapter.Options{MaxFilings: cfg.Edgar.MaxFilings})
	orch := fundsync.NewOrchestrator(st, cfg.Sync.AdapterTimeout())
	metrics := monitoring.NewMetrics(cfg.Metrics)
	return &syncDeps{
		client:    client,
		scheduler: fundsync.NewScheduler(st, reg, orch, fundsync.EdgarSessions(client), metrics),
	}
}

// runSync executes one scheduler run and prints its summary. Only setup
// failures are returned; entity failures are in the summary and the log.
func runSync(ctx context.Context, out io.Writer, sched *fundsync.Scheduler, opts fundsync.RunOpts) error {
	sum, err := sched.Run(ctx, opts)
	if err != nil {
		return err
	}
	printSummary(out, sum)
	return nil
}

func printSummary(out io.Writer, sum *fundsync.Summary) {
	_, _ = fmt.Fprintln(out, sum.String())
	if len(sum.FailedCIKs) > 0 {
		_, _ = fmt.Fprintf(out, "failed: %v\n", sum.FailedCIKs)
	}
	if sum.Aborted {
		_, _ = fmt.Fprintln(out, "run aborted before every entity was processed")
	}
}

// refreshUniverse syncs the fund registry, logging rather than returning a
// failure so the run can continue on what is already stored.
func refreshUniverse(ctx context.Context, src fundsync.UniverseSource, st store.Store) {
	if _, err := fundsync.SyncUniverse(ctx, src, st, cfg.Sync.ETFOnly); err != nil {
		zap.L().Warn("universe refresh failed, continuing with stored universe", zap.Error(err))
	}
}

func parseKinds(names []string) ([]model.AdapterKind, error) {
	var kinds []model.AdapterKind
	for _, n := range names {
		k, err := model.ParseAdapterKind(n)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
