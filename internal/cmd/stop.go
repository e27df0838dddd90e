package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var stopForce bool

var stopCmd = &cobra.Command{
	Use:   "stop <task-id>",
	Short: "Stop a running task",
	Long: `Stop a task's worker session and mark the task failed. By default the
agent is interrupted cooperatively and given a moment to settle; --force
kills the session immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

func init() {
	stopCmd.Flags().BoolVarP(&stopForce, "force", "f", false, "kill the session immediately")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	taskID := args[0]
	if err := a.controller.StopTask(cmd.Context(), taskID, !stopForce); err != nil {
		return err
	}
	fmt.Printf("Stopped task %s\n", taskID)
	return nil
}
