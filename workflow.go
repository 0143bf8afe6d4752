// Package defensechain implements the approval, versioning and ledger
// anchoring workflow for the official result documents of thesis defenses.
package defensechain

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/contentstore"
	"github.com/defensechain/defensechain/ledger"
	"github.com/defensechain/defensechain/notification"
	"github.com/defensechain/defensechain/outbox"
	"github.com/defensechain/defensechain/resilience"
	"github.com/defensechain/defensechain/signing"
	"github.com/defensechain/defensechain/storage/model"
)

// Config holds the tunables of a Workflow
type Config struct {
	// PassingGrade is the lowest grade that results in an APPROVED defense
	PassingGrade float64
	// AnchoringMaxAttempts bounds the attempts of an anchoring task
	AnchoringMaxAttempts int
	// AnchoringLease is how long an anchoring attempt may hold a document
	AnchoringLease time.Duration
	// CertificateMaxAttempts bounds the attempts of a certificate task
	CertificateMaxAttempts int
	// LedgerUser is the identity registered as submitter on the ledger
	LedgerUser string
	// TaskLease must match the lease of the outbox dispatcher; a claimed
	// task older than that is treated as abandoned
	TaskLease time.Duration
}

// DefaultConfig is used for zero-valued Config fields
var DefaultConfig = Config{
	PassingGrade:           6,
	AnchoringMaxAttempts:   8,
	AnchoringLease:         2 * time.Minute,
	CertificateMaxAttempts: 5,
	LedgerUser:             "defensechain",
	TaskLease:              model.DefaultTaskLease,
}

func (c Config) withDefaults() Config {
	if c.PassingGrade <= 0 {
		c.PassingGrade = DefaultConfig.PassingGrade
	}
	if c.AnchoringMaxAttempts <= 0 {
		c.AnchoringMaxAttempts = DefaultConfig.AnchoringMaxAttempts
	}
	if c.AnchoringLease <= 0 {
		c.AnchoringLease = DefaultConfig.AnchoringLease
	}
	if c.CertificateMaxAttempts <= 0 {
		c.CertificateMaxAttempts = DefaultConfig.CertificateMaxAttempts
	}
	if c.LedgerUser == "" {
		c.LedgerUser = DefaultConfig.LedgerUser
	}
	if c.TaskLease <= 0 {
		c.TaskLease = DefaultConfig.TaskLease
	}
	return c
}

// Kicker is notified after a commit that enqueued outbox tasks
type Kicker interface {
	Kick()
}

// Workflow is the entry point for all workflow operations
type Workflow struct {
	backends      model.Backends
	uploads       *resilience.Queue
	signer        *signing.Service
	issuer        *signing.Issuer
	ledger        ledger.Gateway
	notifications *notification.Builder
	kicker        Kicker
	validate      *validator.Validate
	conf          Config

	now   func() time.Time
	newID func() string
}

// NewWorkflow creates a new Workflow
func NewWorkflow(
	backends model.Backends, uploads *resilience.Queue, signer *signing.Service, issuer *signing.Issuer,
	gateway ledger.Gateway, notifications *notification.Builder, conf Config,
) *Workflow {
	if notifications == nil {
		notifications = notification.NewBuilder(0)
	}
	w := &Workflow{
		backends:      backends,
		uploads:       uploads,
		signer:        signer,
		issuer:        issuer,
		ledger:        gateway,
		notifications: notifications,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		conf:          conf.withDefaults(),
		now:           func() time.Time { return time.Now().UTC() },
		newID:         uuid.NewString,
	}
	notifications.Now = func() time.Time { return w.now() }
	return w
}

// Backends returns the stores used by the workflow
func (w *Workflow) Backends() model.Backends {
	return w.backends
}

// Uploads returns the storage resilience queue
func (w *Workflow) Uploads() *resilience.Queue {
	return w.uploads
}

// Ledger returns the ledger gateway
func (w *Workflow) Ledger() ledger.Gateway {
	return w.ledger
}

// RegisterHandlers registers the outbox task handlers of the workflow on d
// and kicks d whenever an operation enqueued a task
func (w *Workflow) RegisterHandlers(d *outbox.Dispatcher) {
	d.Register(model.TaskKindAnchorDocument, w.handleAnchorDocument)
	d.Register(model.TaskKindIssueCertificate, w.handleIssueCertificate)
	w.kicker = d
}

func (w *Workflow) kick(effects model.SideEffects) {
	if w.kicker != nil && len(effects.Tasks) > 0 {
		w.kicker.Kick()
	}
}

func (w *Workflow) newTask(kind, subject string, payload any, maxAttempts int) (model.Task, error) {
	task, err := model.NewTask(w.newID(), kind, subject, payload, maxAttempts, w.now())
	return task, errors.WithStack(err)
}

func (w *Workflow) anchorTask(documentID, triggeredBy string) (model.Task, error) {
	return w.newTask(
		model.TaskKindAnchorDocument, documentID, model.AnchorDocumentPayload{
			DocumentID:  documentID,
			TriggeredBy: triggeredBy,
		}, w.conf.AnchoringMaxAttempts,
	)
}

// validationError converts validator errors into a model.ValidationError
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.ValidationErrorFmt("invalid request: %s", err)
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fe.Namespace() + " failed on '" + fe.Tag() + "'"
	}
	return model.ValidationErrorFmt("invalid request: %s", strings.Join(msgs, "; "))
}

// UploadCompleted is the resilience.CompletionHook that back-fills the
// content address of a document artifact uploaded late. If the document is
// already approved, anchoring is scheduled again. A missing document is an
// error so that the job stays queued.
func (w *Workflow) UploadCompleted(_ context.Context, job model.UploadJob, res *contentstore.UploadResult) error {
	if job.DocumentID == nil {
		return nil
	}
	docID := *job.DocumentID
	logger := log.WithFields(
		log.Fields{
			"document": docID,
			"artifact": job.Artifact,
			"address":  res.Address,
		},
	)
	if err := w.backends.Documents.SetArtifactAddress(docID, job.Artifact, res.Address); err != nil {
		if model.IsKind(err, model.KindNotFound) {
			// the version that queued the upload may not be committed yet;
			// the job is retried and fails for good if it never shows up
			logger.Warn("uploaded artifact belongs to no document yet")
		}
		return err
	}
	logger.Info("artifact address back-filled")

	doc, err := w.backends.Documents.Get(docID)
	if err != nil {
		return err
	}
	if doc.Status != model.DocumentApproved || doc.Anchored() || !doc.ContentUploaded() {
		return nil
	}
	pending, err := w.backends.Tasks.Pending(model.TaskKindAnchorDocument, docID, w.now(), w.conf.TaskLease)
	if err != nil || pending {
		return err
	}
	task, err := w.anchorTask(docID, "")
	if err != nil {
		return err
	}
	if err = w.backends.Tasks.Enqueue(task); err != nil {
		return err
	}
	w.kick(model.SideEffects{Tasks: []model.Task{task}})
	return nil
}
