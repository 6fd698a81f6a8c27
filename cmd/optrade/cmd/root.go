package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "optrade",
	Short: "A multi-account options trading coordination engine",
	Long: `Optrade coordinates index option trades across a fleet of brokerage
accounts from a single control point.

It provides:
  - Parallel buy/sell fan-out across every configured account
  - Autonomous stop-loss and take-profit exits driven by the live price feed
  - Simulated and live execution modes
  - An append-only SQLite trade ledger with realized P&L
  - A websocket event stream for operator dashboards`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
