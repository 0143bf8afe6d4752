package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/defensechain/defensechain/storage/model"
)

var certificatesCmd = &cobra.Command{
	Use:     "certificates",
	Aliases: []string{"certs"},
	Short:   "Manage user certificates",
}

var certificatesListCmd = &cobra.Command{
	Use:   "list <user-id>",
	Short: "List the certificates of a user, revoked ones included",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		certs, err := workflow.Certificates(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(certs)
	},
}

var enqueueFlags struct {
	email string
	role  string
}

var certificatesEnqueueCmd = &cobra.Command{
	Use:   "enqueue <user-id>",
	Short: "Schedule the issuance of a certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		role, err := model.ParseRole(enqueueFlags.role)
		if err != nil {
			return err
		}
		task, err := workflow.EnqueueCertificateGeneration(cmd.Context(), args[0], enqueueFlags.email, role, nil)
		if err != nil {
			return err
		}
		fmt.Printf("certificate issuance scheduled as task %s\n", task.ID)
		return nil
	},
}

var revokeFlags struct {
	reason string
	by     string
	notes  string
}

var certificatesRevokeCmd = &cobra.Command{
	Use:   "revoke <certificate-id>",
	Short: "Revoke an active certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		err := workflow.RevokeCertificate(cmd.Context(), args[0], revokeFlags.reason, revokeFlags.by, revokeFlags.notes)
		if err != nil {
			return err
		}
		fmt.Printf("certificate %s revoked\n", args[0])
		return nil
	},
}

func init() {
	certificatesEnqueueCmd.Flags().StringVar(&enqueueFlags.email, "email", "", "the e-mail address of the user")
	certificatesEnqueueCmd.Flags().StringVar(&enqueueFlags.role, "role", "", "the signing role of the user")
	_ = certificatesEnqueueCmd.MarkFlagRequired("email")
	_ = certificatesEnqueueCmd.MarkFlagRequired("role")

	certificatesRevokeCmd.Flags().StringVar(&revokeFlags.reason, "reason", "", "the revocation reason")
	certificatesRevokeCmd.Flags().StringVar(&revokeFlags.by, "by", "", "who revokes the certificate")
	certificatesRevokeCmd.Flags().StringVar(&revokeFlags.notes, "notes", "", "free text notes")
	_ = certificatesRevokeCmd.MarkFlagRequired("reason")
	_ = certificatesRevokeCmd.MarkFlagRequired("by")

	certificatesCmd.AddCommand(certificatesListCmd, certificatesEnqueueCmd, certificatesRevokeCmd)
	rootCmd.AddCommand(certificatesCmd)
}
