package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/fund-cli/internal/fundsync"
	"github.com/sells-group/fund-cli/internal/model"
)

var adapterShort = map[model.AdapterKind]string{
	model.AdapterNPORT:      "Reprocess NPORT-P holdings and derivatives",
	model.AdapterNCSR:       "Reprocess N-CSR performance and expense ratios",
	model.AdapterProspectus: "Reprocess 485BPOS fee tables and strategy text",
	model.AdapterFinHigh:    "Reprocess N-CSR financial highlights",
	model.AdapterFlows:      "Reprocess 24F-2NT sales and redemptions",
}

// newAdapterCmd builds the standalone command for one adapter. It ignores
// the ledger's freshness verdict: every selected entity with an upstream
// filing is reprocessed, and upserts keep that idempotent.
func newAdapterCmd(kind model.AdapterKind) *cobra.Command {
	cmd := &cobra.Command{
		Use:   string(kind),
		Short: adapterShort[kind],
		Long: fmt.Sprintf(`Runs only the %s adapter against the stored universe, treating it as stale
for every entity that has an upstream filing.`, kind),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			limit, _ := cmd.Flags().GetInt("limit")
			cik, _ := cmd.Flags().GetString("cik")

			st, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			return runSync(ctx, cmd.OutOrStdout(), newSyncDeps(st).scheduler, fundsync.RunOpts{
				Command: string(kind),
				Limit:   limit,
				CIK:     cik,
				Kinds:   []model.AdapterKind{kind},
				Force:   true,
			})
		},
	}
	cmd.Flags().Int("limit", 0, "maximum number of entities to process (0 = all)")
	cmd.Flags().String("cik", "", "process a single entity")
	return cmd
}

func init() {
	for _, kind := range model.AdapterKinds {
		rootCmd.AddCommand(newAdapterCmd(kind))
	}
}
