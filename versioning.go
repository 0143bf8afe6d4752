package defensechain

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/notification"
	"github.com/defensechain/defensechain/resilience"
	"github.com/defensechain/defensechain/storage/model"
)

// Artifact is an uploaded file
type Artifact struct {
	Filename string `json:"filename" validate:"required"`
	Content  []byte `json:"content" validate:"required"`
}

// SubmitResultRequest submits the result of a defense together with its
// minutes and, optionally, the evaluation sheet
type SubmitResultRequest struct {
	DefenseID string  `json:"defense_id" validate:"required"`
	Grade     float64 `json:"grade" validate:"gte=0,lte=10"`
	// Result is derived from the grade if not set
	Result      model.DefenseResult `json:"result,omitempty" validate:"omitempty,oneof=APPROVED FAILED"`
	Minutes     Artifact            `json:"minutes"`
	Evaluation  *Artifact           `json:"evaluation,omitempty"`
	SubmittedBy string              `json:"submitted_by,omitempty"`
}

// NewVersionRequest supersedes an anchored document with a corrected version.
// Artifacts that are not set are carried over from the previous version.
type NewVersionRequest struct {
	PreviousDocumentID string    `json:"previous_document_id" validate:"required"`
	ChangeReason       string    `json:"change_reason"`
	Minutes            *Artifact `json:"minutes,omitempty"`
	Evaluation         *Artifact `json:"evaluation,omitempty"`
	Grade              *float64  `json:"grade,omitempty" validate:"omitempty,gte=0,lte=10"`
}

// VersionResult is the outcome of SubmitResult and CreateNewVersion
type VersionResult struct {
	Document  model.Document                                   `json:"document"`
	Approvals []model.Approval                                 `json:"approvals"`
	Uploads   map[model.ArtifactKind]*resilience.UploadResult `json:"uploads"`
}

func (w *Workflow) result(grade float64) model.DefenseResult {
	if grade >= w.conf.PassingGrade {
		return model.ResultApproved
	}
	return model.ResultFailed
}

// upload stores an artifact of doc and records its hash, filename and, if the
// upload was not deferred, its content address
func (w *Workflow) upload(
	ctx context.Context, doc *model.Document, kind model.ArtifactKind, a Artifact,
) (*resilience.UploadResult, error) {
	hash := model.HashContent(a.Content)
	res, err := w.uploads.Upload(
		ctx, a.Content, a.Filename, &resilience.Reference{
			DocumentID: doc.ID,
			Artifact:   kind,
		},
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to upload %s", kind)
	}
	switch kind {
	case model.ArtifactEvaluation:
		doc.EvaluationHash = hash
		doc.EvaluationCID = res.Address
		doc.EvaluationFilename = a.Filename
	default:
		doc.MinutesHash = hash
		doc.MinutesCID = res.Address
		doc.MinutesFilename = a.Filename
	}
	return res, nil
}

func (w *Workflow) approvalRequired(defense model.Defense, doc model.Document, reason string) ([]model.Notification, error) {
	data := notification.DefenseData(defense, &doc)
	data.Reason = reason
	var out []model.Notification
	for _, role := range model.RequiredRoles() {
		data.Role = role
		notes, err := w.notifications.ForParticipants(model.NotifyApprovalRequired, defense, data, role)
		if err != nil {
			return nil, err
		}
		out = append(out, notes...)
	}
	return out, nil
}

// SubmitResult registers the result of a defense. It creates version 1 of the
// result document with one PENDING approval per required role and notifies
// the approvers.
func (w *Workflow) SubmitResult(ctx context.Context, req SubmitResultRequest) (*VersionResult, error) {
	if err := w.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	defense, err := w.backends.Defenses.Get(req.DefenseID)
	if err != nil {
		return nil, err
	}
	if defense.Status != model.DefenseScheduled {
		return nil, model.InvalidStateErrorFmt("defense %s is %s", defense.ID, defense.Status)
	}
	if defense.Date.After(w.now()) {
		return nil, model.InvalidStateErrorFmt("defense %s has not taken place yet", defense.ID)
	}
	active, err := w.backends.Documents.Active(defense.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, model.InvalidStateErrorFmt("defense %s already has a result document", defense.ID)
	}

	result := req.Result
	if result == "" {
		result = w.result(req.Grade)
	}
	doc := model.Document{
		ID:        w.newID(),
		DefenseID: defense.ID,
		Version:   1,
		Grade:     req.Grade,
		Result:    result,
		Status:    model.DocumentPending,
		CreatedBy: req.SubmittedBy,
	}
	uploads := make(map[model.ArtifactKind]*resilience.UploadResult, 2)
	if uploads[model.ArtifactMinutes], err = w.upload(ctx, &doc, model.ArtifactMinutes, req.Minutes); err != nil {
		return nil, err
	}
	if req.Evaluation != nil {
		if uploads[model.ArtifactEvaluation], err = w.upload(
			ctx, &doc, model.ArtifactEvaluation, *req.Evaluation,
		); err != nil {
			return nil, err
		}
	}

	approvals := model.NewApprovals(doc.ID, w.newID)
	notes, err := w.approvalRequired(*defense, doc, "")
	if err != nil {
		return nil, err
	}
	grade := &model.GradeUpdate{
		DefenseID: defense.ID,
		Grade:     req.Grade,
		Result:    result,
		Status:    model.DefenseCompleted,
	}
	if err = w.backends.Documents.CreateVersion(
		nil, doc, approvals, grade, model.SideEffects{Notifications: notes},
	); err != nil {
		return nil, err
	}
	log.WithFields(
		log.Fields{
			"defense":  defense.ID,
			"document": doc.ID,
			"grade":    req.Grade,
			"result":   result,
		},
	).Info("defense result submitted")
	return w.versionResult(doc.ID, uploads)
}

func (w *Workflow) versionResult(
	documentID string, uploads map[model.ArtifactKind]*resilience.UploadResult,
) (*VersionResult, error) {
	doc, err := w.backends.Documents.Get(documentID)
	if err != nil {
		return nil, err
	}
	approvals, err := w.backends.Approvals.ForDocument(documentID)
	if err != nil {
		return nil, err
	}
	return &VersionResult{
		Document:  *doc,
		Approvals: approvals,
		Uploads:   uploads,
	}, nil
}

// CreateNewVersion supersedes an anchored document. The previous version
// becomes INACTIVE and the new version starts over with fresh approvals.
func (w *Workflow) CreateNewVersion(
	ctx context.Context, req NewVersionRequest, actor model.Actor,
) (*VersionResult, error) {
	if err := w.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	prev, err := w.backends.Documents.Get(req.PreviousDocumentID)
	if err != nil {
		return nil, err
	}
	if prev.Status != model.DocumentApproved || !prev.Anchored() {
		return nil, model.InvalidStateErrorFmt(
			"only approved and anchored documents can be superseded; document %s is %s", prev.ID, prev.Status,
		)
	}
	reason := strings.TrimSpace(req.ChangeReason)
	if reason == "" {
		return nil, model.ValidationError("a new version requires a change reason")
	}

	prevID := prev.ID
	doc := model.Document{
		ID:                 w.newID(),
		DefenseID:          prev.DefenseID,
		Version:            prev.Version + 1,
		MinutesHash:        prev.MinutesHash,
		MinutesCID:         prev.MinutesCID,
		MinutesFilename:    prev.MinutesFilename,
		EvaluationHash:     prev.EvaluationHash,
		EvaluationCID:      prev.EvaluationCID,
		EvaluationFilename: prev.EvaluationFilename,
		Grade:              prev.Grade,
		Result:             prev.Result,
		Status:             model.DocumentPending,
		ChangeReason:       reason,
		PreviousVersionID:  &prevID,
		CreatedBy:          actor.ID,
	}
	if req.Minutes != nil {
		doc.MinutesHash = model.HashContent(req.Minutes.Content)
	}
	if req.Evaluation != nil {
		doc.EvaluationHash = model.HashContent(req.Evaluation.Content)
	}
	if doc.SameContent(*prev) {
		return nil, model.DuplicateContentError("the new version carries the same content as the previous one")
	}

	uploads := make(map[model.ArtifactKind]*resilience.UploadResult, 2)
	if req.Minutes != nil {
		if uploads[model.ArtifactMinutes], err = w.upload(ctx, &doc, model.ArtifactMinutes, *req.Minutes); err != nil {
			return nil, err
		}
	}
	if req.Evaluation != nil {
		if uploads[model.ArtifactEvaluation], err = w.upload(
			ctx, &doc, model.ArtifactEvaluation, *req.Evaluation,
		); err != nil {
			return nil, err
		}
	}

	var grade *model.GradeUpdate
	if req.Grade != nil {
		doc.Grade = *req.Grade
		doc.Result = w.result(*req.Grade)
		grade = &model.GradeUpdate{
			DefenseID: doc.DefenseID,
			Grade:     doc.Grade,
			Result:    doc.Result,
		}
	}
	defense, err := w.backends.Defenses.Get(doc.DefenseID)
	if err != nil {
		return nil, err
	}
	notes, err := w.approvalRequired(*defense, doc, reason)
	if err != nil {
		return nil, err
	}
	approvals := model.NewApprovals(doc.ID, w.newID)
	if err = w.backends.Documents.CreateVersion(
		prev, doc, approvals, grade, model.SideEffects{Notifications: notes},
	); err != nil {
		return nil, err
	}
	log.WithFields(
		log.Fields{
			"defense":  doc.DefenseID,
			"document": doc.ID,
			"version":  doc.Version,
			"previous": prev.ID,
			"actor":    actor.ID,
		},
	).Info("new document version created")
	return w.versionResult(doc.ID, uploads)
}

// VersionHistory returns all document versions of a defense, newest first
func (w *Workflow) VersionHistory(_ context.Context, defenseID string) ([]model.Document, error) {
	if _, err := w.backends.Defenses.Get(defenseID); err != nil {
		return nil, err
	}
	return w.backends.Documents.History(defenseID)
}

// ActiveDocument returns the PENDING or APPROVED document of a defense
func (w *Workflow) ActiveDocument(_ context.Context, defenseID string) (*model.Document, error) {
	doc, err := w.backends.Documents.Active(defenseID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, model.NotFoundErrorFmt("defense %s has no active document", defenseID)
	}
	return doc, nil
}
