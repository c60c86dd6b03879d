//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fund-cli/internal/model"
)

func TestFormatRuns_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(&buf, nil)

	output := buf.String()
	assert.Contains(t, output, "COMMAND")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "STARTED")
}

func TestFormatRuns_SingleRun(t *testing.T) {
	started := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)
	completed := started.Add(5 * time.Minute)

	var buf bytes.Buffer
	formatRuns(&buf, []model.Run{{
		ID:          "3f1c9a52-8d1e-4c5b-9a57-2f0e4b6c1d23",
		Command:     "run",
		Status:      model.RunStatusComplete,
		Succeeded:   40,
		Partial:     2,
		Failed:      1,
		Skipped:     157,
		StartedAt:   started,
		CompletedAt: &completed,
	}})

	output := buf.String()
	assert.Contains(t, output, "3f1c9a52")
	assert.NotContains(t, output, "8d1e")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "2025-01-15 10:30")
	assert.Contains(t, output, "5m0s")
	assert.Contains(t, output, "157")
}

func TestFormatRuns_Running(t *testing.T) {
	var buf bytes.Buffer
	formatRuns(&buf, []model.Run{{ID: "abc", Command: "nport", Status: model.RunStatusRunning, StartedAt: time.Now()}})
	assert.Contains(t, buf.String(), "running")
	assert.Contains(t, buf.String(), "-")
}

func TestFormatLedger(t *testing.T) {
	var buf bytes.Buffer
	formatLedger(&buf, []model.LedgerEntry{{
		CIK:                  "0000036405",
		Adapter:              model.AdapterNPORT,
		LatestFilingDateSeen: time.Date(2024, 5, 28, 0, 0, 0, 0, time.UTC),
		LastRunAt:            time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC),
	}})

	output := buf.String()
	assert.Contains(t, output, "0000036405")
	assert.Contains(t, output, "nport")
	assert.Contains(t, output, "2024-05-28")
	assert.Contains(t, output, "2024-06-01 08:00")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "3f1c9a52", shortID("3f1c9a52-8d1e-4c5b-9a57-2f0e4b6c1d23"))
	assert.Equal(t, "plain", shortID("plain"))
}

func TestStatusCmd_UnsupportedOutput(t *testing.T) {
	cfg = testConfig(t, "http://unused")

	_, err := execute(t, statusCmd, map[string]string{"output": "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output")
}

func TestStatusCmd_Table(t *testing.T) {
	srv := fakeEDGAR(t)
	cfg = testConfig(t, srv.URL)

	_, err := execute(t, runCmd, nil)
	require.NoError(t, err)

	out, err := execute(t, statusCmd, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Last 24h: 1 runs, 2 entities, 0 failed")
	assert.Contains(t, out, "0000000001")
	assert.Contains(t, out, "flows")
	assert.Contains(t, out, "2024-03-15")
}

func TestStatusCmd_YAML(t *testing.T) {
	srv := fakeEDGAR(t)
	cfg = testConfig(t, srv.URL)

	_, err := execute(t, runCmd, nil)
	require.NoError(t, err)

	out, err := execute(t, statusCmd, map[string]string{"output": "yaml", "cik": "1"})
	require.NoError(t, err)

	var report struct {
		Health struct {
			RunsTotal int `yaml:"runs_total"`
		} `yaml:"health"`
		Runs []struct {
			Command   string `yaml:"command"`
			Succeeded int    `yaml:"succeeded"`
		} `yaml:"runs"`
		Ledger []struct {
			CIK     string `yaml:"cik"`
			Adapter string `yaml:"adapter"`
		} `yaml:"ledger"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Health.RunsTotal)
	require.Len(t, report.Runs, 1)
	assert.Equal(t, 1, report.Runs[0].Succeeded)
	require.Len(t, report.Ledger, 1)
	assert.Equal(t, "0000000001", report.Ledger[0].CIK)
	assert.Equal(t, "flows", report.Ledger[0].Adapter)
}

func TestStatusCmd_EmptyStore(t *testing.T) {
	cfg = testConfig(t, "http://unused")

	out, err := execute(t, statusCmd, nil)
	require.NoError(t, err)
	assert.Contains(t, out, "last completed never")
}
