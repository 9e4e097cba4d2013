package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.3.0"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
	envFile    string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:           "strategylab",
		Short:         "Backtest trading strategies and validate them statistically",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "config file (default $STRATEGYLAB_CONFIG or config/strategylab.yaml)")
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "log level override (debug|info|warn|error)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", ".env", "dotenv file loaded before the config")

	root.AddCommand(
		newFetchCmd(g),
		newRunCmd(g),
		newWalkForwardCmd(g),
		newValidateCmd(g),
		newCompareCmd(g),
		newRegimesCmd(g),
		newAccuracyCmd(g),
		newSentimentCmd(g),
		newStrategiesCmd(),
		newRunsCmd(g),
		newEquityCmd(g),
	)
	return root
}
