// SafeScore CLI - score Ethereum wallets and DeFi protocols from the terminal
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagLogLevel string
	flagJSON     bool
)

var rootCmd = &cobra.Command{
	Use:   "safescore",
	Short: "Ethereum wallet risk scoring",
	Long: `SafeScore scores Ethereum wallets from 0 (safe) to 100 (risky) using
on-chain activity from Etherscan, protocol data from DeFiLlama and an
optional Gemini analysis.

Configuration comes from the same environment variables as the API
server (ETHERSCAN_API_KEY, RPC_URL, GEMINI_API_KEY, SCORING_CONFIG, ...).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "warn", "Log level written to stderr (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print raw JSON instead of formatted output")

	rootCmd.AddCommand(scoreCmd, batchCmd, protocolCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		pterm.Printfln("safescore %s (commit %s, built %s)", Version, Commit, BuildTime)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		pterm.Error.Println(err)
		stop()
		os.Exit(1)
	}
}
