package monitoring

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fund-cli/internal/config"
	"github.com/sells-group/fund-cli/internal/fundsync"
	"github.com/sells-group/fund-cli/internal/model"
)

func gathered(t *testing.T, m *Metrics, name string) []*dto.Metric {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f.GetMetric()
		}
	}
	return nil
}

func labelled(metrics []*dto.Metric, labels map[string]string) *dto.Metric {
	for _, m := range metrics {
		match := true
		for _, lp := range m.GetLabel() {
			if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
				match = false
			}
		}
		if match {
			return m
		}
	}
	return nil
}

func TestMetrics_ObserveEntity(t *testing.T) {
	m := NewMetrics(config.MetricsConfig{})

	m.ObserveEntity(fundsync.EntityResult{
		CIK:         "0000000001",
		Outcome:     model.OutcomePartial,
		RowsWritten: 12,
		Duration:    2 * time.Second,
		Adapters: []fundsync.AdapterResult{
			{Kind: model.AdapterNPORT, Status: fundsync.AdapterSucceeded},
			{Kind: model.AdapterFlows, Status: fundsync.AdapterFailed},
		},
	})
	m.ObserveEntity(fundsync.EntityResult{CIK: "0000000002", Outcome: model.OutcomeSkipped})

	partial := labelled(gathered(t, m, "fund_sync_entities_total"), map[string]string{"outcome": "partial"})
	require.NotNil(t, partial)
	assert.Equal(t, 1.0, partial.GetCounter().GetValue())

	failed := labelled(gathered(t, m, "fund_sync_adapter_results_total"), map[string]string{"adapter": "flows", "status": "failed"})
	require.NotNil(t, failed)
	assert.Equal(t, 1.0, failed.GetCounter().GetValue())

	rows := gathered(t, m, "fund_sync_rows_written_total")
	require.Len(t, rows, 1)
	assert.Equal(t, 12.0, rows[0].GetCounter().GetValue())

	hist := gathered(t, m, "fund_sync_entity_duration_seconds")
	require.Len(t, hist, 1)
	assert.Equal(t, uint64(2), hist[0].GetHistogram().GetSampleCount())
}

func TestMetrics_ObserveRun(t *testing.T) {
	m := NewMetrics(config.MetricsConfig{})
	m.ObserveRun(fundsync.NewSummary(), 90*time.Second)

	d := gathered(t, m, "fund_sync_run_duration_seconds")
	require.Len(t, d, 1)
	assert.Equal(t, 90.0, d[0].GetGauge().GetValue())

	last := gathered(t, m, "fund_sync_last_completion_timestamp_seconds")
	require.Len(t, last, 1)
	assert.Greater(t, last[0].GetGauge().GetValue(), 0.0)
}

func TestMetrics_Push(t *testing.T) {
	var hits atomic.Int32
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetrics(config.MetricsConfig{PushgatewayURL: srv.URL, Job: "fund_test"})
	m.ObserveEntity(fundsync.EntityResult{Outcome: model.OutcomeSucceeded})

	require.NoError(t, m.Push(context.Background()))
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, "/metrics/job/fund_test", path)
}

func TestMetrics_PushNoURL(t *testing.T) {
	m := NewMetrics(config.MetricsConfig{})
	assert.NoError(t, m.Push(context.Background()))
}

func TestMetrics_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m := NewMetrics(config.MetricsConfig{PushgatewayURL: srv.URL})
	err := m.Push(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics")
}

func TestMetrics_DefaultJob(t *testing.T) {
	m := NewMetrics(config.MetricsConfig{})
	assert.Equal(t, "fund_cli", m.job)
}
