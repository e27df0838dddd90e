package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Reconcile tracked tasks against live sessions",
	Long: `Compare persisted state against actually-running sessions: running
tasks without a live session are marked failed (with notification), and
live sessions no task knows about are killed.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	report, err := a.controller.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	if report.Empty() {
		fmt.Println("State and sessions agree; nothing to reconcile")
		return nil
	}
	for _, id := range report.TrackedWithoutSession {
		fmt.Printf("failed task %s: tracked as running but no live session\n", id)
	}
	for _, id := range report.SessionsWithoutTask {
		fmt.Printf("killed session for %s: no tracked task\n", id)
	}
	for _, id := range report.MissingWorktrees {
		fmt.Printf("warning: task %s worktree is missing on disk\n", id)
	}
	return nil
}
