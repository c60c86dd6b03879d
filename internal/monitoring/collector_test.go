package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/fund-cli/internal/model"
)

// mockStore implements RunLogReader for testing.
type mockStore struct {
	runs      []model.Run
	ledger    []model.LedgerEntry
	listErr   error
	ledgerErr error
}

func (m *mockStore) ListRuns(_ context.Context, _ int) ([]model.Run, error) {
	return m.runs, m.listErr
}

func (m *mockStore) ListLedger(_ context.Context, _ string) ([]model.LedgerEntry, error) {
	return m.ledger, m.ledgerErr
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&mockStore{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.EntityFailRate)
	assert.Nil(t, snap.LastCompletedAt)
	assert.Empty(t, snap.LedgerEntries)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Now().UTC()
	done1 := now.Add(-50 * time.Minute)
	done2 := now.Add(-3 * time.Hour)
	old := now.Add(-47 * time.Hour)
	st := &mockStore{
		runs: []model.Run{
			{ID: "1", Status: model.RunStatusComplete, StartedAt: now.Add(-1 * time.Hour), CompletedAt: &done1, Entities: 10, Failed: 1},
			{ID: "2", Status: model.RunStatusAborted, StartedAt: now.Add(-4 * time.Hour), CompletedAt: &done2, Entities: 6, Failed: 3},
			{ID: "3", Status: model.RunStatusRunning, StartedAt: now.Add(-10 * time.Minute)},
			// Outside the lookback window.
			{ID: "4", Status: model.RunStatusComplete, StartedAt: now.Add(-48 * time.Hour), CompletedAt: &old, Entities: 50, Failed: 50},
		},
		ledger: []model.LedgerEntry{
			{CIK: "0000000001", Adapter: model.AdapterNPORT},
			{CIK: "0000000002", Adapter: model.AdapterNPORT},
			{CIK: "0000000001", Adapter: model.AdapterFlows},
		},
	}

	snap, err := NewCollector(st).Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 3, snap.RunsTotal)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsAborted)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.Equal(t, 16, snap.EntitiesProcessed)
	assert.Equal(t, 4, snap.EntitiesFailed)
	assert.InDelta(t, 0.25, snap.EntityFailRate, 0.001)
	require.NotNil(t, snap.LastCompletedAt)
	assert.True(t, snap.LastCompletedAt.Equal(done1))
	assert.Equal(t, 2, snap.LedgerEntries[model.AdapterNPORT])
	assert.Equal(t, 1, snap.LedgerEntries[model.AdapterFlows])
}

func TestCollector_ListRunsError(t *testing.T) {
	c := NewCollector(&mockStore{listErr: errors.New("db down")})

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list runs")
}

func TestCollector_LedgerError(t *testing.T) {
	c := NewCollector(&mockStore{ledgerErr: errors.New("db down")})

	_, err := c.Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list ledger")
}
