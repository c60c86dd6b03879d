//go:build !integration

package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/config"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	universeJSON = `{
  "fields": ["cik", "seriesId", "classId", "symbol"],
  "data": [
    [2, "S000000002", "C000000002", "XYZ"],
    [1, "S000000001", "C000000001", "ABC"],
    [1, "S000000001", "C000000009", "ABCDEFG"]
  ]
}`

	submissionsJSON = `{
  "cik": "1",
  "name": "Example Trust",
  "filings": {"recent": {
    "accessionNumber": ["0000000001-24-000001"],
    "filingDate": ["2024-03-15"],
    "reportDate": [""],
    "form": ["24F-2NT"],
    "primaryDocument": ["primary_doc.xml"],
    "isInlineXBRL": [0]
  }}
}`

	flowsXML = `<?xml version="1.0" encoding="UTF-8"?>
<edgarSubmission xmlns="http://www.sec.gov/edgar/twentyfourf2filer">
  <formData>
    <annualFilings>
      <annualFilingInfo>
        <item4><lastDayOfFiscalYear>12/31/2023</lastDayOfFiscalYear></item4>
        <item5>
          <aggregateSalePriceOfSecuritiesSold>1,500,000.00</aggregateSalePriceOfSecuritiesSold>
          <aggregatePriceOfSecuritiesRedeemedOrRepurchasedInFiscalYear>1,250,000.00</aggregatePriceOfSecuritiesRedeemedOrRepurchasedInFiscalYear>
          <netSales>250,000.00</netSales>
        </item5>
      </annualFilingInfo>
    </annualFilings>
  </formData>
</edgarSubmission>`
)

// fakeEDGAR serves the universe listing, CIK 1's submissions and its single
// 24F-2NT. Everything else is 404.
func fakeEDGAR(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers_mf.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(universeJSON))
	})
	mux.HandleFunc("/submissions/CIK0000000001.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(submissionsJSON))
	})
	mux.HandleFunc("/Archives/edgar/data/1/000000000124000001/primary_doc.xml", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(flowsXML))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(dir, "fund.db"),
		},
		Edgar: config.EdgarConfig{
			UserAgent:      "fund-cli test test@example.com",
			CacheDir:       filepath.Join(dir, "cache"),
			TimeoutSecs:    5,
			MaxRetries:     0,
			RateLimit:      10,
			UniverseURL:    baseURL + "/files/company_tickers_mf.json",
			SubmissionsURL: baseURL + "/submissions",
			ArchivesURL:    baseURL + "/Archives/edgar/data",
			MaxFilings:     10,
		},
		Sync:    config.SyncConfig{AdapterTimeoutSecs: 30, ETFOnly: true},
		Metrics: config.MetricsConfig{Job: "fund_cli"},
		Log:     config.LogConfig{Level: "info", Format: "json"},
	}
}

// execute runs a command's RunE with flags set, restoring them afterwards.
func execute(t *testing.T, cmd *cobra.Command, flags map[string]string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	for name, val := range flags {
		f := cmd.Flags().Lookup(name)
		require.NotNil(t, f, "flag %s", name)
		def := f.DefValue
		require.NoError(t, cmd.Flags().Set(name, val))
		t.Cleanup(func() {
			_ = f.Value.Set(def)
			f.Changed = false
		})
	}
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetContext(context.TODO())
	})
	err := cmd.RunE(cmd, nil)
	return out.String(), err
}

func adapterCmd(t *testing.T, name string) *cobra.Command {
	t.Helper()
	for _, c := range rootCmd.Commands() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("no %s command", name)
	return nil
}
