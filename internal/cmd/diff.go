package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/intexuraos/orchestrator/internal/errors"
	"github.com/intexuraos/orchestrator/internal/worktree"
)

var diffCmd = &cobra.Command{
	Use:   "diff <task-id>",
	Short: "Show a task's uncommitted changes",
	Long: `Show the uncommitted diff in a task's worktree. Files that look like
secret material (.env files, credentials, private keys) are replaced with a
placeholder instead of their contents.`,
	Args: cobra.ExactArgs(1),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.store.Load()
	if err != nil {
		return err
	}
	task, ok := s.Tasks[args[0]]
	if !ok {
		return errors.Wrapf(errors.ErrTaskNotFound, "diffing task %s", args[0])
	}

	wt := a.worktrees
	if wt == nil {
		// paths.repo_dir is not configured; root the manager at the task's
		// own worktree instead.
		wt, err = worktree.NewManager(task.WorktreePath, a.cfg.Paths.ResolveWorktreeDir())
		if err != nil {
			return err
		}
	}

	diff, err := wt.RedactedDiff(task.WorktreePath)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Println("No uncommitted changes.")
		return nil
	}
	fmt.Print(diff)
	return nil
}
