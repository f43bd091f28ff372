package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/dialectica/internal/ports/primary"
	"github.com/example/dialectica/internal/wire"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Read synthesis reports",
}

var reportShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Print a job's synthesis report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.ReportAdapter().Show(cmd.Context(), args[0])
	},
}

var ledgerCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Inspect the provider call ledger",
	Long:  "Every LLM and tool call is recorded with its request, response and outcome.",
}

var ledgerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ledger entries, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		jobID, _ := cmd.Flags().GetString("job")
		dossierID, _ := cmd.Flags().GetString("dossier")
		provider, _ := cmd.Flags().GetString("provider")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		return wire.LedgerAdapter().List(cmd.Context(), primary.LedgerFilters{
			JobID:     jobID,
			DossierID: dossierID,
			Provider:  provider,
			Status:    status,
			Limit:     limit,
		})
	},
}

var ledgerShowCmd = &cobra.Command{
	Use:   "show [entry-id]",
	Short: "Show one ledger entry in full",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.LedgerAdapter().Show(cmd.Context(), args[0])
	},
}

// ReportCmd returns the report command
func ReportCmd() *cobra.Command {
	reportCmd.AddCommand(reportShowCmd)
	return reportCmd
}

// LedgerCmd returns the ledger command
func LedgerCmd() *cobra.Command {
	ledgerListCmd.Flags().StringP("job", "j", "", "Filter by job")
	ledgerListCmd.Flags().StringP("dossier", "d", "", "Filter by dossier")
	ledgerListCmd.Flags().StringP("provider", "p", "", "Filter by provider (llm, tool)")
	ledgerListCmd.Flags().StringP("status", "s", "", "Filter by status (pending, in_progress, completed, failed)")
	ledgerListCmd.Flags().IntP("limit", "n", 50, "Maximum number of entries")

	ledgerCmd.AddCommand(ledgerListCmd)
	ledgerCmd.AddCommand(ledgerShowCmd)
	return ledgerCmd
}
