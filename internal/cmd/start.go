package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/intexuraos/orchestrator/internal/orchestrator"
	"github.com/intexuraos/orchestrator/internal/state"
)

var (
	startWorktree string
	startWorker   string
	startMachine  string
	startIssue    string
	startID       string
)

var startCmd = &cobra.Command{
	Use:   "start [prompt]",
	Short: "Start a new agent task",
	Long: `Start a worker session for a task. The prompt is sanitized and
truncated before it reaches the agent; pass --issue to make the agent
fetch the Linear issue before doing any other work.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVarP(&startWorktree, "worktree", "w", "", "worktree path for the task (created from paths.repo_dir when omitted)")
	startCmd.Flags().StringVar(&startWorker, "worker", "auto", "worker type: opus, auto, glm")
	startCmd.Flags().StringVar(&startMachine, "machine", "mac", "machine: mac, vm")
	startCmd.Flags().StringVar(&startIssue, "issue", "", "Linear issue ID the agent must read first")
	startCmd.Flags().StringVar(&startID, "id", "", "task ID (generated when omitted)")
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	workerType := state.WorkerType(startWorker)
	switch workerType {
	case state.WorkerOpus, state.WorkerAuto, state.WorkerGLM:
	default:
		return fmt.Errorf("unknown worker type %q (want opus, auto, or glm)", startWorker)
	}
	machine := state.Machine(startMachine)
	switch machine {
	case state.MachineMac, state.MachineVM:
	default:
		return fmt.Errorf("unknown machine %q (want mac or vm)", startMachine)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	task, err := a.controller.StartTask(cmd.Context(), orchestrator.TaskRequest{
		ID:            startID,
		WorktreePath:  startWorktree,
		Prompt:        strings.Join(args, " "),
		WorkerType:    workerType,
		Machine:       machine,
		LinearIssueID: startIssue,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Started task %s\n", task.ID)
	fmt.Printf("  Worktree: %s\n", task.WorktreePath)
	fmt.Printf("  Log:      %s\n", a.sessions.LogFilePath(task.ID))
	return nil
}
