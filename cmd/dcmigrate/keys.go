package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/signing"
	"github.com/defensechain/defensechain/storage/model"
)

// importKeys copies the key material of orgs from a filesystem key directory
// (<dir>/<org>/key.pem and cert.pem) into the database key store
func importKeys(src *signing.FilesystemKeyProvider, dst *signing.StoredKeyProvider, orgs []string) (int, error) {
	ctx := context.Background()
	imported := 0
	for _, org := range orgs {
		key, err := src.SigningKey(ctx, org)
		if err != nil {
			if model.IsKind(err, model.KindNotFound) {
				log.WithField("org", org).Warn("no key material found, skipping")
				continue
			}
			return imported, err
		}
		cert, err := src.Certificate(ctx, org)
		if err != nil {
			return imported, err
		}
		if err = dst.Import(org, key, cert); err != nil {
			return imported, errors.WithMessagef(err, "failed to import key of %s", org)
		}
		log.WithFields(
			log.Fields{
				"org":       org,
				"not_after": cert.NotAfter,
			},
		).Info("imported organization key")
		imported++
	}
	return imported, nil
}

func importCmd(args []string) int {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var (
		conf    = fs.String("config", "", "Path to the config file")
		dir     = fs.String("dir", "", "Key directory containing <org>/key.pem and <org>/cert.pem")
		orgList = fs.String("orgs", "", "Comma-separated list of organizations (default: all configured)")
		v       = fs.Bool("v", false, "Verbose logging")
	)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: dcmigrate keys import -dir <key_dir> [-config <config.yaml>] [-orgs <list>]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *dir == "" {
		_, _ = fmt.Fprintln(os.Stderr, "-dir is required")
		fs.Usage()
		return 2
	}
	c, ok := loadConfig(*conf, *v)
	if !ok {
		return 1
	}
	orgs := splitList(*orgList)
	if len(orgs) == 0 {
		orgs = c.Signing.Organizations.All()
	}
	warehouse, backs, err := config.LoadStorageBackends(c)
	if err != nil {
		log.WithError(err).Error("could not open database")
		return 1
	}
	defer func() {
		_ = warehouse.Close()
	}()
	dst := signing.NewStoredKeyProvider(backs.KV, c.Signing.Algorithm, false, c.Signing.CertificateLifetime.Duration())
	n, err := importKeys(signing.NewFilesystemKeyProvider(*dir), dst, orgs)
	if err != nil {
		log.WithError(err).Error("key import failed")
		return 1
	}
	log.WithField("imported", n).Info("key import completed")
	return 0
}

// keysCmd dispatches to key-related subcommands
func keysCmd(args []string) int {
	const help = "Usage: dcmigrate keys <import> [options]\n\nSubcommands:\n  import   Import filesystem organization keys into the database\n"
	if len(args) < 1 {
		_, _ = fmt.Fprint(os.Stderr, help)
		return 2
	}
	switch sub := args[0]; sub {
	case "import":
		return importCmd(args[1:])
	case "-h", "--help", "help":
		_, _ = fmt.Fprint(os.Stderr, help)
		return 0
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown keys subcommand: %s\n", sub)
		_, _ = fmt.Fprintf(os.Stderr, "Use 'dcmigrate keys import -h' for help.\n")
		return 2
	}
}
