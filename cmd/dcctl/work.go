package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var failedCmd = &cobra.Command{
	Use:   "failed",
	Short: "List upload jobs, tasks and notifications that exhausted their retries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		failed, err := workflow.Failed(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(failed)
	},
}

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Reset failed work so that it is attempted again",
}

var retryTaskCmd = &cobra.Command{
	Use:   "task <id>",
	Short: "Retry a failed outbox task",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := workflow.RetryTask(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("task %s scheduled for retry\n", args[0])
		return nil
	},
}

var retryUploadCmd = &cobra.Command{
	Use:   "upload <id>",
	Short: "Retry a failed upload job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := workflow.RetryUpload(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("upload job %s scheduled for retry\n", args[0])
		return nil
	},
}

var retryNotificationCmd = &cobra.Command{
	Use:   "notification <id>",
	Short: "Retry a failed notification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := workflow.RetryNotification(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("notification %s scheduled for retry\n", args[0])
		return nil
	},
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Enqueue anchoring for every approved document without a ledger transaction",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		n, err := workflow.ReconcileAnchoring(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("scheduled anchoring of %d document(s)\n", n)
		return nil
	},
}

func init() {
	retryCmd.AddCommand(retryTaskCmd, retryUploadCmd, retryNotificationCmd)
	rootCmd.AddCommand(failedCmd, retryCmd, reconcileCmd)
}
