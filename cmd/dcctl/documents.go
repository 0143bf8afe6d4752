package main

import (
	"github.com/spf13/cobra"
)

var documentCmd = &cobra.Command{
	Use:   "document <id>",
	Short: "Show a document with its approvals and consolidated status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overview, err := workflow.DocumentOverview(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(overview)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <defense-id>",
	Short: "List all document versions of a defense",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		docs, err := workflow.VersionHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(docs)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events <approval-id>",
	Short: "Show the audit trail of an approval",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, err := workflow.ApprovalHistory(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(events)
	},
}

var verifyUser string

var verifyCmd = &cobra.Command{
	Use:   "verify <content-address>",
	Short: "Verify a document against the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := workflow.VerifyDocument(cmd.Context(), verifyUser, args[0])
		if err != nil {
			return err
		}
		return printJSON(v)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyUser, "user", "", "the ledger identity to verify as")
	_ = verifyCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(documentCmd, historyCmd, eventsCmd, verifyCmd)
}
