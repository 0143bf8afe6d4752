package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/cmd/defensechain/config"
)

func usage() {
	_, _ = fmt.Fprintf(os.Stderr, "dcmigrate: migrate schema, keys and queued work of a defensechain deployment\n")
	_, _ = fmt.Fprintf(os.Stderr, "\n")
	_, _ = fmt.Fprintf(os.Stderr, "Subcommands:\n")
	_, _ = fmt.Fprintf(os.Stderr, "  db       Create or update the database schema\n")
	_, _ = fmt.Fprintf(os.Stderr, "  keys     Import organization keys into the database (subcommands: import)\n")
	_, _ = fmt.Fprintf(os.Stderr, "  uploads  Move queued upload jobs between the database and redis\n")
	_, _ = fmt.Fprintf(os.Stderr, "\n")
	_, _ = fmt.Fprintf(os.Stderr, "Use 'dcmigrate <subcommand> -h' for help on a subcommand.\n")
}

func loadConfig(file string, verbose bool) (config.Config, bool) {
	if verbose {
		log.SetLevel(log.DebugLevel)
	}
	if err := config.Load(file); err != nil {
		log.WithError(err).Error("could not load config")
		return config.Config{}, false
	}
	return config.Get(), true
}

func splitList(list string) []string {
	var out []string
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// dbCmd opens the configured database, which creates missing tables and
// columns.
func dbCmd(args []string) int {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	var (
		conf = fs.String("config", "", "Path to the config file")
		v    = fs.Bool("v", false, "Verbose logging")
	)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: dcmigrate db [-config <config.yaml>] [-v]\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	c, ok := loadConfig(*conf, *v)
	if !ok {
		return 1
	}
	warehouse, _, err := config.LoadStorageBackends(c)
	if err != nil {
		log.WithError(err).Error("schema migration failed")
		return 1
	}
	defer func() {
		_ = warehouse.Close()
	}()
	log.WithField("driver", c.Storage.Driver).Info("schema migration completed")
	return 0
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	sub := os.Args[1]
	var code int
	switch sub {
	case "db":
		code = dbCmd(os.Args[2:])
	case "keys", "signing":
		code = keysCmd(os.Args[2:])
	case "uploads":
		code = uploadsCmd(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		code = 0
	default:
		_, _ = fmt.Fprintf(os.Stderr, "unknown subcommand: %s\n\n", sub)
		usage()
		code = 2
	}
	os.Exit(code)
}
