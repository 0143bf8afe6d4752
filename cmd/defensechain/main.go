package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain"
	"github.com/defensechain/defensechain/cmd/defensechain/config"
	"github.com/defensechain/defensechain/internal/logger"
	"github.com/defensechain/defensechain/internal/scheduler"
	"github.com/defensechain/defensechain/internal/version"
	"github.com/defensechain/defensechain/ledger"
	"github.com/defensechain/defensechain/notification"
	"github.com/defensechain/defensechain/outbox"
	"github.com/defensechain/defensechain/resilience"
	"github.com/defensechain/defensechain/signing"
)

const scheduledJobTimeout = 5 * time.Minute

func main() {
	var configFile string
	if len(os.Args) > 1 {
		configFile = os.Args[1]
	}
	if err := config.Load(configFile); err != nil {
		log.WithError(err).Fatal("could not load config")
	}
	c := config.Get()
	if err := logger.Init(c.Logging.LoggerOptions()); err != nil {
		log.WithError(err).Fatal("could not init logger")
	}
	log.WithField("version", version.VERSION).Info("Loaded Config")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	warehouse, backs, err := config.LoadStorageBackends(c)
	if err != nil {
		log.Fatal(err)
	}
	defer func() {
		if err := warehouse.Close(); err != nil {
			log.WithError(err).Error("failed to close database")
		}
	}()

	keys, err := initKeys(c.Signing, backs.KV)
	if err != nil {
		log.Fatal(err)
	}
	signer, err := signing.NewService(keys, c.Signing.Organizations, c.Signing.Algorithm)
	if err != nil {
		log.Fatal(err)
	}
	issuer := signing.NewIssuer(keys, c.Signing.Organizations, c.Signing.CertificateLifetime.Duration())
	log.WithField("alg", c.Signing.Algorithm.String()).Info("Loaded signing keys")

	store, closeStore, err := initContentStore(c.ContentStore)
	if err != nil {
		log.Fatal(err)
	}
	defer closeStore()
	jobs, err := config.LoadUploadJobStore(ctx, c.Uploads, backs.UploadJobs)
	if err != nil {
		log.Fatal(err)
	}
	queue := resilience.NewQueue(store, jobs, c.Uploads.Policy())
	queue.LogHealth(ctx)

	gateway := ledger.NewHTTPGateway(c.Ledger.URL, c.Ledger.Timeout.Duration())
	logLedgerHealth(ctx, gateway)

	wf := defensechain.NewWorkflow(
		backs, queue, signer, issuer, gateway,
		notification.NewBuilder(c.Notifications.MaxRetries), c.WorkflowConfig(),
	)

	tasks := outbox.NewDispatcher(backs.Tasks, c.OutboxOptions())
	wf.RegisterHandlers(tasks)
	tasks.Start(ctx)
	uploads := resilience.NewWorker(queue, wf.UploadCompleted)
	uploads.Start(ctx, c.Uploads.PollInterval.Duration())
	log.Info("Started background workers")

	mails, err := notification.NewDispatcher(
		backs.Notifications, c.Notifications.NewMailer(), c.Notifications.RetryDelay.Duration(),
	)
	if err != nil {
		log.Fatal(err)
	}
	sched := scheduler.New(ctx, scheduledJobTimeout)
	if err = sched.Add("notification-sweep", c.Notifications.SweepSchedule, sweepNotifications(mails)); err != nil {
		log.Fatal(err)
	}
	if err = sched.Add("anchoring-reconcile", c.Anchoring.ReconcileSchedule, reconcileAnchoring(wf)); err != nil {
		log.Fatal(err)
	}
	sched.Start()
	defer sched.Stop()

	server, err := newServer(c, wf, warehouse.Ping)
	if err != nil {
		log.Fatal(err)
	}
	go server.Start()

	<-ctx.Done()
	log.Info("Shutting down")
	if err = server.Shutdown(); err != nil {
		log.WithError(err).Error("failed to shut down http server")
	}
	tasks.Wait()
	uploads.Wait()
	log.Info("Background workers stopped")
}

func logLedgerHealth(ctx context.Context, gateway ledger.Gateway) {
	h, err := gateway.HealthCheck(ctx)
	if err != nil {
		log.WithError(err).Warn("ledger gateway health check failed; anchoring will be retried")
		return
	}
	log.WithField("status", h.Status).Info("ledger gateway reachable")
}

func sweepNotifications(d *notification.Dispatcher) scheduler.Job {
	return func(ctx context.Context) error {
		res, err := d.Sweep(ctx)
		if err != nil {
			return err
		}
		if res.Sent+res.Retry+res.Failed > 0 {
			log.WithFields(
				log.Fields{
					"sent":   res.Sent,
					"retry":  res.Retry,
					"failed": res.Failed,
				},
			).Info("notification sweep finished")
		}
		return nil
	}
}

func reconcileAnchoring(wf *defensechain.Workflow) scheduler.Job {
	return func(ctx context.Context) error {
		n, err := wf.ReconcileAnchoring(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			log.WithField("documents", n).Info("re-enqueued anchoring of approved documents")
		}
		return nil
	}
}
