package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cliParser().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "mdselect:", err)
		stop()
		os.Exit(1)
	}
}

func cliParser() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mdselect",
		Short:         "mdselect selects features by stepwise minimal-depth elimination",
		Long:          `Prefilters features with an L1 logistic model, then repeatedly ranks them by minimal depth in a random forest, keeps the shallowest k and re-tunes a forest on them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(versionCmd(), runCmd())
	return rootCmd
}
