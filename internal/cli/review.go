package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/dialectica/internal/wire"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review dossiers awaiting verification",
	Long: `Approve a dossier or send it back with feedback.

A job is synthesized once both of its dossiers are approved. A revision
re-runs the dossier's research with the feedback added as new steps; the
other dossier is not touched.`,
}

var reviewChecklistCmd = &cobra.Command{
	Use:   "checklist [dossier-id]",
	Short: "Show what to verify before deciding",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return wire.ReviewAdapter().Checklist(cmd.Context(), args[0])
	},
}

var reviewApproveCmd = &cobra.Command{
	Use:   "approve [dossier-id]",
	Short: "Approve a dossier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := wire.ReviewAdapter().Approve(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !resp.JobCompleted {
			return nil
		}
		if err := settle(cmd); err != nil {
			return err
		}
		wait, _ := cmd.Flags().GetBool("wait")
		if wait {
			return wire.ReportAdapter().Show(cmd.Context(), resp.JobID)
		}
		return nil
	},
}

var reviewReviseCmd = &cobra.Command{
	Use:   "revise [dossier-id] [feedback]",
	Short: "Request a revision with feedback",
	Long: `Request a revision with feedback.

Examples:
  dialectica review revise DOS-002 "Quantify the litigation exposure"
  dialectica review revise DOS-002 --wait "Add competitor margins"`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		feedback := strings.Join(args[1:], " ")
		if _, err := wire.ReviewAdapter().Revise(cmd.Context(), args[0], feedback); err != nil {
			return err
		}
		if err := settle(cmd); err != nil {
			return err
		}
		wait, _ := cmd.Flags().GetBool("wait")
		if wait {
			fmt.Println()
			return wire.JobAdapter().ShowDossier(cmd.Context(), args[0], false)
		}
		return nil
	},
}

// ReviewCmd returns the review command
func ReviewCmd() *cobra.Command {
	reviewApproveCmd.Flags().Bool("wait", false, "Run the synthesis inline and print the report")
	reviewReviseCmd.Flags().Bool("wait", false, "Run the revised research inline")

	reviewCmd.AddCommand(reviewChecklistCmd)
	reviewCmd.AddCommand(reviewApproveCmd)
	reviewCmd.AddCommand(reviewReviseCmd)

	return reviewCmd
}
