package defensechain

import (
	"context"

	arrays "github.com/adam-hanna/arrayOperations"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"tideland.dev/go/slices"

	"github.com/defensechain/defensechain/contentstore"
	"github.com/defensechain/defensechain/ledger"
	"github.com/defensechain/defensechain/notification"
	"github.com/defensechain/defensechain/storage/model"
)

// AnchorOutcome describes what an anchoring attempt did
type AnchorOutcome string

// Constants for AnchorOutcome
const (
	AnchorRegistered  AnchorOutcome = "registered"
	AnchorAlready     AnchorOutcome = "already_anchored"
	AnchorInactive    AnchorOutcome = "inactive"
	AnchorNotApproved AnchorOutcome = "not_approved"
	AnchorInProgress  AnchorOutcome = "in_progress"
)

func (w *Workflow) handleAnchorDocument(ctx context.Context, task model.Task) error {
	var payload model.AnchorDocumentPayload
	if err := task.Decode(&payload); err != nil {
		return errors.Wrap(err, "invalid anchoring payload")
	}
	_, err := w.AnchorDocument(ctx, payload.DocumentID)
	return err
}

// checkSignatureSet verifies that signatures cover each required role
// exactly once
func checkSignatureSet(signatures []ledger.Signature) error {
	roles := make([]string, len(signatures))
	for i, s := range signatures {
		roles[i] = string(s.Role)
	}
	required := model.RequiredRoleNames()
	unique := slices.Unique(roles)
	if len(unique) == len(roles) && len(arrays.Intersect(required, unique)) == len(required) &&
		len(unique) == len(required) {
		return nil
	}
	unexpected := slices.Subtract(roles, required)
	if len(unique) != len(roles) {
		unexpected = append(unexpected, "duplicate roles")
	}
	return model.InvalidSignatureSetError{
		Missing:    slices.Subtract(required, roles),
		Unexpected: unexpected,
	}
}

func (w *Workflow) sign(ctx context.Context, doc model.Document, approvals []model.Approval) ([]ledger.Signature, error) {
	digest := doc.SigningDigest()
	alg := w.signer.Algorithm().String()
	signatures := make([]ledger.Signature, 0, len(approvals))
	for _, a := range approvals {
		org, err := w.signer.Organizations().Of(a.Role)
		if err != nil {
			return nil, err
		}
		sig, err := w.signer.Sign(ctx, digest, a.Role)
		if err != nil {
			return nil, err
		}
		signedAt := a.UpdatedAt
		if a.ApprovedAt != nil {
			signedAt = *a.ApprovedAt
		}
		signatures = append(
			signatures, ledger.Signature{
				Role:           a.Role,
				Email:          a.ApproverEmail,
				OrganizationID: org,
				Algorithm:      alg,
				Signature:      sig,
				Timestamp:      signedAt.UTC(),
				Status:         a.Status,
				Justification:  a.Justification,
			},
		)
	}
	return signatures, checkSignatureSet(signatures)
}

// AnchorDocument registers an approved document on the ledger. It is
// idempotent: documents that are already anchored, inactive or not yet
// approved are left alone, and a lease keeps concurrent attempts from
// registering the same document twice.
func (w *Workflow) AnchorDocument(ctx context.Context, documentID string) (AnchorOutcome, error) {
	doc, err := w.backends.Documents.Get(documentID)
	if err != nil {
		return "", err
	}
	logger := log.WithFields(
		log.Fields{
			"document": doc.ID,
			"version":  doc.Version,
		},
	)
	if doc.Status == model.DocumentInactive {
		return AnchorInactive, nil
	}
	if doc.Anchored() {
		return AnchorAlready, nil
	}
	approvals, err := w.backends.Approvals.ForDocument(doc.ID)
	if err != nil {
		return "", err
	}
	if model.ConsolidateApprovals(approvals) != model.ApprovalApproved {
		return AnchorNotApproved, nil
	}
	if doc.Status == model.DocumentPending {
		// two concurrent final approvals may each have seen the other one
		// still open
		if err = w.backends.Documents.MarkApproved(doc.ID); err != nil {
			return "", err
		}
		doc.Status = model.DocumentApproved
	}
	if !doc.ContentUploaded() {
		return "", model.DependencyUnavailableError{
			Dependency: "storage network",
			Err:        errors.Errorf("artifacts of document %s are still queued for upload", doc.ID),
		}
	}

	acquired, err := w.backends.Documents.AcquireAnchoringLease(doc.ID, w.now(), w.conf.AnchoringLease)
	if err != nil {
		return "", err
	}
	if !acquired {
		return AnchorInProgress, nil
	}
	outcome, err := w.register(ctx, *doc, approvals)
	if err != nil {
		if rerr := w.backends.Documents.ReleaseAnchoringLease(doc.ID); rerr != nil {
			logger.WithError(rerr).Error("failed to release anchoring lease")
		}
		logger.WithError(err).Warn("anchoring failed")
		return "", err
	}
	return outcome, nil
}

func (w *Workflow) register(ctx context.Context, doc model.Document, approvals []model.Approval) (AnchorOutcome, error) {
	defense, err := w.backends.Defenses.Get(doc.DefenseID)
	if err != nil {
		return "", err
	}
	signatures, err := w.sign(ctx, doc, approvals)
	if err != nil {
		return "", err
	}
	now := w.now()
	record := ledger.DocumentRecord{
		User:                 w.conf.LedgerUser,
		DocumentID:           doc.ID,
		Version:              doc.Version,
		MinutesHash:          doc.MinutesHash,
		MinutesCID:           doc.MinutesCID,
		EvaluationHash:       doc.EvaluationHash,
		EvaluationCID:        doc.EvaluationCID,
		StudentRegistrations: defense.StudentRegistrations(),
		DefenseDate:          defense.Date,
		FinalGrade:           doc.Grade,
		Result:               doc.Result,
		Reason:               doc.ChangeReason,
		Signatures:           signatures,
		ValidatedAt:          now,
	}
	receipt, err := w.ledger.RegisterDocument(ctx, record)
	if err != nil {
		return "", err
	}

	data := notification.DefenseData(*defense, &doc)
	data.TxID = receipt.TxID
	grade := doc.Grade
	data.Grade = &grade
	data.Result = doc.Result
	notes, err := w.notifications.ForParticipants(model.NotifyResultAvailable, *defense, data)
	if err != nil {
		return "", err
	}
	stored, err := w.backends.Documents.MarkAnchored(doc.ID, receipt.TxID, now, model.SideEffects{Notifications: notes})
	if err != nil {
		return "", err
	}
	logger := log.WithFields(
		log.Fields{
			"document": doc.ID,
			"version":  doc.Version,
			"tx":       receipt.TxID,
		},
	)
	if !stored {
		logger.Warn("document was anchored concurrently; keeping the first ledger reference")
		return AnchorAlready, nil
	}
	logger.Info("document anchored on the ledger")
	return AnchorRegistered, nil
}

// ReconcileAnchoring schedules anchoring for every APPROVED document without a
// ledger reference and without an unfinished anchoring task. It returns the
// number of scheduled documents.
func (w *Workflow) ReconcileAnchoring(_ context.Context) (int, error) {
	docs, err := w.backends.Documents.Unanchored()
	if err != nil {
		return 0, err
	}
	var effects model.SideEffects
	for _, doc := range docs {
		pending, err := w.backends.Tasks.Pending(model.TaskKindAnchorDocument, doc.ID, w.now(), w.conf.TaskLease)
		if err != nil {
			return 0, err
		}
		if pending {
			continue
		}
		task, err := w.anchorTask(doc.ID, "")
		if err != nil {
			return 0, err
		}
		effects.Tasks = append(effects.Tasks, task)
	}
	if len(effects.Tasks) == 0 {
		return 0, nil
	}
	if err = w.backends.Tasks.Enqueue(effects.Tasks...); err != nil {
		return 0, err
	}
	log.WithField("documents", len(effects.Tasks)).Info("scheduled anchoring for unanchored documents")
	w.kick(effects)
	return len(effects.Tasks), nil
}

// VerifyDocument asks the ledger whether a content address is registered
func (w *Workflow) VerifyDocument(ctx context.Context, user, contentAddress string) (*ledger.Verification, error) {
	if _, err := contentstore.ParseAddress(contentAddress); err != nil {
		return nil, err
	}
	if user == "" {
		user = w.conf.LedgerUser
	}
	return w.ledger.VerifyDocument(ctx, user, contentAddress)
}
