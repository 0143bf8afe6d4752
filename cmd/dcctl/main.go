package main

import (
	"context"
	"encoding/json"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/defensechain/defensechain"
	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/contentstore"
	"github.com/defensechain/defensechain/ledger"
	"github.com/defensechain/defensechain/resilience"
	"github.com/defensechain/defensechain/signing"
	"github.com/defensechain/defensechain/storage"
)

var rootCmd = &cobra.Command{
	Use:   "dcctl",
	Short: "dcctl can help you operate a defensechain deployment",
	Long: `dcctl can help you operate a defensechain deployment.
It works directly on the database of the daemon; queued work is picked up by
the running daemon on its next poll.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
	PersistentPostRun: closeStorage,
}

var configFile string
var warehouse *storage.Storage
var workflow *defensechain.Workflow

func loadConfig(*cobra.Command, []string) error {
	if err := config.Load(configFile); err != nil {
		return err
	}
	c := config.Get()
	log.SetLevel(log.WarnLevel)

	w, b, err := config.LoadStorageBackends(c)
	if err != nil {
		return err
	}
	warehouse = w
	jobs, err := config.LoadUploadJobStore(context.Background(), c.Uploads, b.UploadJobs)
	if err != nil {
		return err
	}
	queue := resilience.NewQueue(
		contentstore.NewKuboClient(c.ContentStore.URL, c.ContentStore.Timeout.Duration()), jobs,
		c.Uploads.Policy(),
	)
	issuer := signing.NewIssuer(nil, c.Signing.Organizations, c.Signing.CertificateLifetime.Duration())
	workflow = defensechain.NewWorkflow(
		b, queue, nil, issuer, ledger.NewHTTPGateway(c.Ledger.URL, c.Ledger.Timeout.Duration()), nil,
		c.WorkflowConfig(),
	)
	return nil
}

func closeStorage(*cobra.Command, []string) {
	if warehouse != nil {
		_ = warehouse.Close()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "the config file to use")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
