package cli

import (
	"github.com/spf13/cobra"

	"github.com/example/dialectica/internal/wire"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage research jobs",
	Long:  "Create, list, and inspect dialectical research jobs",
}

var jobCreateCmd = &cobra.Command{
	Use:   "create [query]",
	Short: "Start a job for a research question",
	Long: `Start a dialectical research job.

The question is decomposed into a thesis and an antithesis mission, each
researched into a dossier that waits for review.

Examples:
  dialectica job create "Should we invest in Apple?"
  dialectica job create --wait "Is Microsoft overvalued?"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		jobID, err := wire.JobAdapter().Create(ctx, args[0])
		if err != nil {
			return err
		}
		if err := settle(cmd); err != nil {
			return err
		}
		_, err = wire.JobAdapter().Show(ctx, jobID)
		return err
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		return wire.JobAdapter().List(cmd.Context(), status, limit)
	},
}

var jobShowCmd = &cobra.Command{
	Use:   "show [job-id]",
	Short: "Show a job and its dossiers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := wire.JobAdapter().Show(cmd.Context(), args[0])
		return err
	},
}

var dossierCmd = &cobra.Command{
	Use:   "dossier",
	Short: "Inspect dossiers",
}

var dossierShowCmd = &cobra.Command{
	Use:   "show [dossier-id]",
	Short: "Show a dossier's plan, evidence and feedback",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")
		return wire.JobAdapter().ShowDossier(cmd.Context(), args[0], full)
	},
}

// JobCmd returns the job command
func JobCmd() *cobra.Command {
	// Add flags
	jobCreateCmd.Flags().Bool("wait", false, "Run queued work inline until the dossiers await review")
	jobListCmd.Flags().StringP("status", "s", "", "Filter by status (pending, researching, awaiting_verification, complete)")
	jobListCmd.Flags().IntP("limit", "n", 0, "Maximum number of jobs to list")

	// Add subcommands
	jobCmd.AddCommand(jobCreateCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobShowCmd)

	return jobCmd
}

// DossierCmd returns the dossier command
func DossierCmd() *cobra.Command {
	dossierShowCmd.Flags().BoolP("full", "f", false, "Include justifications and evidence content")
	dossierCmd.AddCommand(dossierShowCmd)
	return dossierCmd
}
