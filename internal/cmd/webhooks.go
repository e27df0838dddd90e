package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var retryWebhooksCmd = &cobra.Command{
	Use:   "retry-webhooks",
	Short: "Replay the pending webhook queue once",
	Long: `Run one sweep of the pending webhook queue: expired entries are
dropped, the rest are redelivered, and failures stay queued with their
attempt counters incremented.`,
	RunE: runRetryWebhooks,
}

func init() {
	rootCmd.AddCommand(retryWebhooksCmd)
}

func runRetryWebhooks(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	before, err := a.webhooks.PendingCount()
	if err != nil {
		return err
	}
	if before == 0 {
		fmt.Println("Pending webhook queue is empty")
		return nil
	}

	if err := a.webhooks.RetryPending(cmd.Context()); err != nil {
		return err
	}

	after, err := a.webhooks.PendingCount()
	if err != nil {
		return err
	}
	fmt.Printf("Swept %d pending webhooks, %d remaining\n", before, after)
	return nil
}
