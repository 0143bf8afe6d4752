package defensechain

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/storage/model"
)

// EnqueueCertificateGeneration schedules the issuance of a certificate for a
// user in the organization of role. The certificate is issued in the
// background; a user that already holds an ACTIVE certificate in that
// organization keeps it.
func (w *Workflow) EnqueueCertificateGeneration(
	_ context.Context, userID, email string, role model.Role, approvalID *string,
) (*model.Task, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(email) == "" {
		return nil, model.ValidationError("user id and email are required")
	}
	if err := w.validate.Var(email, "email"); err != nil {
		return nil, model.ValidationErrorFmt("invalid email address: %s", email)
	}
	if _, err := w.issuer.Organization(role); err != nil {
		return nil, err
	}
	task, err := w.newTask(
		model.TaskKindIssueCertificate, userID, model.IssueCertificatePayload{
			UserID:     userID,
			Email:      email,
			Role:       role,
			ApprovalID: approvalID,
		}, w.conf.CertificateMaxAttempts,
	)
	if err != nil {
		return nil, err
	}
	if err = w.backends.Tasks.Enqueue(task); err != nil {
		return nil, err
	}
	w.kick(model.SideEffects{Tasks: []model.Task{task}})
	return &task, nil
}

func (w *Workflow) handleIssueCertificate(ctx context.Context, task model.Task) error {
	var payload model.IssueCertificatePayload
	if err := task.Decode(&payload); err != nil {
		return errors.Wrap(err, "invalid certificate payload")
	}
	_, err := w.IssueCertificate(ctx, payload)
	return err
}

// IssueCertificate issues and stores a certificate unless the user already
// holds an ACTIVE one in the organization of the role
func (w *Workflow) IssueCertificate(ctx context.Context, req model.IssueCertificatePayload) (*model.Certificate, error) {
	org, err := w.issuer.Organization(req.Role)
	if err != nil {
		return nil, err
	}
	existing, err := w.backends.Certificates.ActiveFor(req.UserID, org)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.WithFields(
			log.Fields{
				"user":         req.UserID,
				"organization": org,
			},
		).Debug("user already holds an active certificate")
		return existing, nil
	}
	issued, err := w.issuer.Issue(ctx, req.UserID, req.Email, req.Role)
	if err != nil {
		return nil, err
	}
	cert := model.Certificate{
		ID:             w.newID(),
		UserID:         req.UserID,
		Email:          req.Email,
		Role:           req.Role,
		ApprovalID:     req.ApprovalID,
		CertificatePEM: issued.CertificatePEM,
		PrivateKeyPEM:  issued.PrivateKeyPEM,
		OrganizationID: issued.OrganizationID,
		EnrollmentID:   issued.EnrollmentID,
		SerialNumber:   issued.SerialNumber,
		NotBefore:      issued.NotBefore,
		NotAfter:       issued.NotAfter,
		Status:         model.CertificateActive,
	}
	if err = w.backends.Certificates.Create(cert); err != nil {
		return nil, err
	}
	log.WithFields(
		log.Fields{
			"user":         req.UserID,
			"organization": org,
			"serial":       issued.SerialNumber,
		},
	).Info("certificate issued")
	return &cert, nil
}

// RevokeCertificate revokes an ACTIVE certificate. The row is kept for audit.
func (w *Workflow) RevokeCertificate(_ context.Context, id, reason, revokedBy, notes string) error {
	revocation := model.Revocation{
		Reason:    reason,
		RevokedBy: revokedBy,
		Notes:     notes,
		At:        w.now(),
	}
	if err := w.validate.Struct(revocation); err != nil {
		return validationError(err)
	}
	if err := w.backends.Certificates.Revoke(id, revocation); err != nil {
		return err
	}
	log.WithFields(
		log.Fields{
			"certificate": id,
			"reason":      reason,
			"revoked_by":  revokedBy,
		},
	).Info("certificate revoked")
	return nil
}

// Certificates returns all certificates of a user, revoked ones included
func (w *Workflow) Certificates(_ context.Context, userID string) ([]model.Certificate, error) {
	return w.backends.Certificates.ForUser(userID)
}
