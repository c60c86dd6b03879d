package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/fund-cli/internal/model"
	"github.com/sells-group/fund-cli/internal/monitoring"
)

// statusReport is what `status` prints.
type statusReport struct {
	Health *monitoring.Snapshot `yaml:"health"`
	Runs   []model.Run          `yaml:"runs"`
	Ledger []model.LedgerEntry  `yaml:"ledger"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent runs and the processing ledger",
	Long:  "Displays recent runs, a health snapshot over the lookback window and the per-adapter processing ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		output, _ := cmd.Flags().GetString("output")
		limit, _ := cmd.Flags().GetInt("limit")
		lookback, _ := cmd.Flags().GetInt("lookback")
		cik, _ := cmd.Flags().GetString("cik")

		if output != "table" && output != "yaml" {
			return eris.Errorf("status: unsupported output %q (table or yaml)", output)
		}
		if cik != "" {
			normalized, err := model.NormalizeCIK(cik)
			if err != nil {
				return err
			}
			cik = normalized
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		ledger, err := st.ListLedger(ctx, cik)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		report := statusReport{Health: snap, Runs: runs, Ledger: ledger}
		if output == "yaml" {
			return writeStatusYAML(cmd.OutOrStdout(), report)
		}
		formatStatus(cmd.OutOrStdout(), report)
		return nil
	},
}

func init() {
	statusCmd.Flags().StringP("output", "o", "table", "output format: table or yaml")
	statusCmd.Flags().Int("limit", 20, "number of recent runs to show")
	statusCmd.Flags().Int("lookback", 24, "health snapshot window in hours")
	statusCmd.Flags().String("cik", "", "show the ledger of a single entity")
	rootCmd.AddCommand(statusCmd)
}

func writeStatusYAML(out io.Writer, report statusReport) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return eris.Wrap(err, "status: encode yaml")
	}
	return enc.Close()
}

// formatStatus writes the report as tables to out.
func formatStatus(out io.Writer, report statusReport) {
	if h := report.Health; h != nil {
		last := "never"
		if h.LastCompletedAt != nil {
			last = h.LastCompletedAt.Format("2006-01-02 15:04")
		}
		_, _ = fmt.Fprintf(out, "Last %dh: %d runs, %d entities, %d failed (%.1f%%); last completed %s\n\n",
			h.LookbackHours, h.RunsTotal, h.EntitiesProcessed, h.EntitiesFailed, h.EntityFailRate*100, last)
	}

	formatRuns(out, report.Runs)
	_, _ = fmt.Fprintln(out)
	formatLedger(out, report.Ledger)
}

func formatRuns(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RUN\tCOMMAND\tSTATUS\tSTARTED\tDURATION\tOK\tPARTIAL\tFAILED\tSKIPPED")
	_, _ = fmt.Fprintln(w, "---\t-------\t------\t-------\t--------\t--\t-------\t------\t-------")

	for _, r := range runs {
		dur := "-"
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			shortID(r.ID),
			r.Command,
			r.Status,
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
			r.Succeeded,
			r.Partial,
			r.Failed,
			r.Skipped,
		)
	}
	_ = w.Flush()
}

func formatLedger(out io.Writer, entries []model.LedgerEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CIK\tADAPTER\tLATEST FILING\tLAST RUN")
	_, _ = fmt.Fprintln(w, "---\t-------\t-------------\t--------")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			e.CIK,
			e.Adapter,
			e.LatestFilingDateSeen.Format(time.DateOnly),
			e.LastRunAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}
