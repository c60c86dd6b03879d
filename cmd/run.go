package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/fund-cli/internal/fundsync"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every stale adapter for every known entity",
	Long: `Refreshes the fund universe, then processes every entity in CIK order.
For each entity only adapters whose upstream filing is newer than the
ledger run; everything an entity produced is committed in one transaction.

Use --limit to cap the number of entities (the first N in CIK order).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "run"))

		limit, _ := cmd.Flags().GetInt("limit")
		cik, _ := cmd.Flags().GetString("cik")
		names, _ := cmd.Flags().GetStringSlice("adapters")
		skipDiscover, _ := cmd.Flags().GetBool("skip-discover")

		kinds, err := parseKinds(names)
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		deps := newSyncDeps(st)
		if !skipDiscover {
			refreshUniverse(ctx, deps.client, st)
		}

		log.Info("starting run", zap.Int("limit", limit), zap.String("cik", cik), zap.Strings("adapters", names))
		return runSync(ctx, cmd.OutOrStdout(), deps.scheduler, fundsync.RunOpts{
			Command: "run",
			Limit:   limit,
			CIK:     cik,
			Kinds:   kinds,
		})
	},
}

func init() {
	runCmd.Flags().Int("limit", 0, "maximum number of entities to process (0 = all)")
	runCmd.Flags().String("cik", "", "process a single entity")
	runCmd.Flags().StringSlice("adapters", nil, "adapters to run (default all): nport, ncsr, prospectus, finhigh, flows")
	runCmd.Flags().Bool("skip-discover", false, "do not refresh the fund universe first")
	// Operator escape hatches; the per-adapter commands are the supported
	// way to target one adapter or entity.
	for _, name := range []string{"cik", "adapters", "skip-discover"} {
		_ = runCmd.Flags().MarkHidden(name)
	}
	rootCmd.AddCommand(runCmd)
}
