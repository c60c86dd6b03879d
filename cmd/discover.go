package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/fund-cli/internal/edgar"
	"github.com/sells-group/fund-cli/internal/fundsync"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Refresh the fund universe from EDGAR",
	Long: `Downloads the SEC mutual fund ticker listing and upserts one fund row per
share class. Classes missing from the listing are marked inactive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		etfOnly := cfg.Sync.ETFOnly
		if cmd.Flags().Changed("all") {
			all, _ := cmd.Flags().GetBool("all")
			etfOnly = !all
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := fundsync.SyncUniverse(ctx, edgar.NewFromConfig(cfg.Edgar), st, etfOnly)
		if err != nil {
			return eris.Wrap(err, "discover")
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%d classes upserted, %d deactivated\n", res.Upserted, res.Deactivated)
		return nil
	},
}

func init() {
	discoverCmd.Flags().Bool("all", false, "keep every share class, not only ETF-like tickers")
	rootCmd.AddCommand(discoverCmd)
}
