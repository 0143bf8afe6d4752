package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/storage/model"
)

// moveUploadJobs moves all WAITING and FAILED jobs from src to dst. ACTIVE
// jobs belong to a running worker and are left in place.
func moveUploadJobs(src, dst model.UploadJobStore) (int, error) {
	moved := 0
	for _, status := range []model.UploadJobStatus{model.UploadJobWaiting, model.UploadJobFailed} {
		jobs, err := src.List(status)
		if err != nil {
			return moved, err
		}
		for _, job := range jobs {
			if err = dst.Add(job); err != nil {
				return moved, err
			}
			if err = src.Remove(job.ID); err != nil {
				return moved, err
			}
			log.WithFields(
				log.Fields{
					"job":    job.ID,
					"status": job.Status,
				},
			).Debug("moved upload job")
			moved++
		}
	}
	if active, err := src.List(model.UploadJobActive); err == nil && len(active) > 0 {
		log.WithField("count", len(active)).Warn("active upload jobs were not moved; stop the daemon and run again")
	}
	return moved, nil
}

func uploadsCmd(args []string) int {
	fs := flag.NewFlagSet("uploads", flag.ExitOnError)
	var (
		conf = fs.String("config", "", "Path to the config file")
		to   = fs.String("to", "", "Destination backend (db or redis)")
		v    = fs.Bool("v", false, "Verbose logging")
	)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Usage: dcmigrate uploads -to <db|redis> [-config <config.yaml>]\n")
		_, _ = fmt.Fprintf(os.Stderr, "The redis connection is taken from uploads.redis of the config file.\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *to != config.UploadBackendDatabase && *to != config.UploadBackendRedis {
		_, _ = fmt.Fprintln(os.Stderr, "-to must be 'db' or 'redis'")
		fs.Usage()
		return 2
	}
	c, ok := loadConfig(*conf, *v)
	if !ok {
		return 1
	}
	warehouse, backs, err := config.LoadStorageBackends(c)
	if err != nil {
		log.WithError(err).Error("could not open database")
		return 1
	}
	defer func() {
		_ = warehouse.Close()
	}()
	redisConf := c.Uploads
	redisConf.Backend = config.UploadBackendRedis
	redisJobs, err := config.LoadUploadJobStore(context.Background(), redisConf, backs.UploadJobs)
	if err != nil {
		log.WithError(err).Error("could not open redis")
		return 1
	}
	src, dst := redisJobs, backs.UploadJobs
	if *to == config.UploadBackendRedis {
		src, dst = dst, src
	}
	n, err := moveUploadJobs(src, dst)
	if err != nil {
		log.WithError(err).WithField("moved", n).Error("upload job migration failed")
		return 1
	}
	log.WithFields(
		log.Fields{
			"moved": n,
			"to":    *to,
		},
	).Info("upload job migration completed")
	return 0
}
