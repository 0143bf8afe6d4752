package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/signing"
	"github.com/defensechain/defensechain/storage/model"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Inspect organization signing keys",
}

type orgKeyInfo struct {
	Organization string     `json:"organization"`
	Configured   bool       `json:"configured"`
	Present      bool       `json:"present"`
	Subject      string     `json:"subject,omitempty"`
	NotAfter     *time.Time `json:"not_after,omitempty"`
	Expired      bool       `json:"expired,omitempty"`
	Error        string     `json:"error,omitempty"`
}

var keysListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the key material of every organization",
	Long: `Show the key material of every configured organization and of every
organization with stored keys. Missing keys are never generated.`,
	Args: cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		c := config.Get().Signing
		provider := c.NewKeyProvider(workflow.Backends().KV, false)
		orgs := c.Organizations.All()
		configured := make(map[string]bool, len(orgs))
		for _, org := range orgs {
			configured[org] = true
		}
		if stored, ok := provider.(*signing.StoredKeyProvider); ok {
			extra, err := stored.Organizations()
			if err != nil {
				return err
			}
			for _, org := range extra {
				if !configured[org] {
					orgs = append(orgs, org)
				}
			}
		}
		now := time.Now()
		infos := make([]orgKeyInfo, 0, len(orgs))
		for _, org := range orgs {
			info := orgKeyInfo{
				Organization: org,
				Configured:   configured[org],
			}
			cert, err := provider.Certificate(context.Background(), org)
			switch {
			case err == nil:
				info.Present = true
				info.Subject = cert.Subject.String()
				info.NotAfter = &cert.NotAfter
				info.Expired = now.After(cert.NotAfter)
			case !model.IsKind(err, model.KindNotFound):
				info.Error = err.Error()
			}
			infos = append(infos, info)
		}
		return printJSON(infos)
	},
}

func init() {
	keysCmd.AddCommand(keysListCmd)
	rootCmd.AddCommand(keysCmd)
}
