package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/dialectica/internal/cli"
	"github.com/example/dialectica/internal/version"
	"github.com/example/dialectica/internal/wire"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "dialectica",
		Short:   "Dialectical research - a thesis, an antithesis, and a reviewed synthesis",
		Version: version.String(),
		Long: `dialectica answers a research question by building two opposing dossiers.

Each job is decomposed into a thesis and an antithesis mission. Both are
researched with the built-in tools, reviewed by a human, and combined into
a single synthesis once both dossiers are approved.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: cli.Bootstrap,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (default $DIALECTICA_CONFIG or ~/.dialectica/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log at debug level")

	// Research workflow
	rootCmd.AddCommand(cli.JobCmd())
	rootCmd.AddCommand(cli.DossierCmd())
	rootCmd.AddCommand(cli.ReviewCmd())
	rootCmd.AddCommand(cli.ReportCmd())
	rootCmd.AddCommand(cli.LedgerCmd())

	// Operations
	rootCmd.AddCommand(cli.ServeCmd())
	rootCmd.AddCommand(cli.ReconcileCmd())
	rootCmd.AddCommand(cli.ToolsCmd())
	rootCmd.AddCommand(cli.ConfigCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if closeErr := wire.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
