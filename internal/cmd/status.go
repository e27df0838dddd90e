package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/intexuraos/orchestrator/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show tracked tasks and the pending webhook queue",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusColors = map[state.TaskStatus]lipgloss.Color{
	state.StatusPending:   lipgloss.Color("3"), // yellow
	state.StatusRunning:   lipgloss.Color("4"), // blue
	state.StatusCompleted: lipgloss.Color("2"), // green
	state.StatusFailed:    lipgloss.Color("1"), // red
}

func statusDot(status state.TaskStatus) string {
	color, ok := statusColors[status]
	if !ok {
		color = lipgloss.Color("7")
	}
	return lipgloss.NewStyle().Foreground(color).Render("●")
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	s, err := a.store.Load()
	if err != nil {
		return err
	}

	if len(s.Tasks) == 0 {
		fmt.Println("No tracked tasks")
	} else {
		ids := make([]string, 0, len(s.Tasks))
		for id := range s.Tasks {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool {
			return s.Tasks[ids[i]].CreatedAt.Before(s.Tasks[ids[j]].CreatedAt)
		})

		fmt.Printf("Tasks: %d\n\n", len(ids))
		for _, id := range ids {
			task := s.Tasks[id]
			live := ""
			if task.Status == state.StatusRunning && a.sessions.IsSessionRunning(context.Background(), id) {
				live = " (session live)"
			}
			fmt.Printf("%s %s  %s%s\n", statusDot(task.Status), id, task.Status, live)
			fmt.Printf("    Worktree: %s\n", task.WorktreePath)
			fmt.Printf("    Worker:   %s/%s\n", task.WorkerType, task.Machine)
			if task.LinearIssueID != "" {
				fmt.Printf("    Issue:    %s\n", task.LinearIssueID)
			}
			fmt.Printf("    Updated:  %s\n\n", task.UpdatedAt.Format("2006-01-02 15:04:05"))
		}
	}

	fmt.Printf("Pending webhooks: %d\n", len(s.PendingWebhooks))
	return nil
}
