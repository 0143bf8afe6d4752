// Package notification builds, renders and delivers the e-mails that inform
// participants about workflow events.
package notification

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/defensechain/defensechain/storage/model"
)

// Data is the template input of a notification
type Data struct {
	RecipientName string              `json:"recipient_name,omitempty"`
	DefenseID     string              `json:"defense_id"`
	DefenseTitle  string              `json:"defense_title"`
	DefenseDate   time.Time           `json:"defense_date"`
	Location      string              `json:"location,omitempty"`
	DocumentID    string              `json:"document_id,omitempty"`
	Version       int                 `json:"version,omitempty"`
	Role          model.Role          `json:"role,omitempty"`
	Actor         string              `json:"actor,omitempty"`
	Justification string              `json:"justification,omitempty"`
	Reason        string              `json:"reason,omitempty"`
	Grade         *float64            `json:"grade,omitempty"`
	Result        model.DefenseResult `json:"result,omitempty"`
	TxID          string              `json:"tx_id,omitempty"`
}

var subjects = map[model.NotificationKind]string{
	model.NotifyApprovalRequired:    "Approval required",
	model.NotifyApprovalRejected:    "Documents rejected",
	model.NotifyRejectionOverridden: "Rejection overridden, please review again",
	model.NotifyDefenseCanceled:     "Defense canceled",
	model.NotifyDefenseRescheduled:  "Defense rescheduled",
	model.NotifyResultAvailable:     "Defense result available",
}

// Builder turns workflow events into notification rows. The rows are
// committed by the caller together with the workflow write.
type Builder struct {
	MaxRetries int
	Now        func() time.Time
}

// NewBuilder returns a Builder; maxRetries <= 0 selects the default
func NewBuilder(maxRetries int) *Builder {
	if maxRetries <= 0 {
		maxRetries = model.DefaultNotificationMaxRetries
	}
	return &Builder{
		MaxRetries: maxRetries,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Build returns a PENDING notification of kind for recipient
func (b *Builder) Build(kind model.NotificationKind, recipient string, data Data) (model.Notification, error) {
	subject, ok := subjects[kind]
	if !ok {
		return model.Notification{}, errors.Errorf("unknown notification kind %q", kind)
	}
	if recipient == "" {
		return model.Notification{}, model.ValidationErrorFmt("notification %s has no recipient", kind)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return model.Notification{}, errors.WithStack(err)
	}
	if data.DefenseTitle != "" {
		subject += ": " + data.DefenseTitle
	}
	return model.Notification{
		ID:            uuid.NewString(),
		Kind:          kind,
		Recipient:     recipient,
		Subject:       subject,
		Data:          raw,
		Status:        model.NotificationPending,
		MaxRetries:    b.MaxRetries,
		NextAttemptAt: b.Now(),
	}, nil
}

// ForParticipants builds one notification per participant that has an e-mail
// address. Participants are matched by role; an empty role list matches all.
func (b *Builder) ForParticipants(
	kind model.NotificationKind, defense model.Defense, data Data, roles ...model.Role,
) ([]model.Notification, error) {
	var out []model.Notification
	for _, p := range defense.Participants {
		if p.Email == "" || (len(roles) > 0 && !containsRole(roles, p.Role)) {
			continue
		}
		d := data
		d.RecipientName = p.Name
		n, err := b.Build(kind, p.Email, d)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func containsRole(roles []model.Role, r model.Role) bool {
	for _, role := range roles {
		if role == r {
			return true
		}
	}
	return false
}

// DefenseData returns the Data fields describing defense and doc; doc may be nil
func DefenseData(defense model.Defense, doc *model.Document) Data {
	d := Data{
		DefenseID:    defense.ID,
		DefenseTitle: defense.Title,
		DefenseDate:  defense.Date,
		Location:     defense.Location,
		Grade:        defense.FinalGrade,
		Result:       defense.Result,
	}
	if doc != nil {
		d.DocumentID = doc.ID
		d.Version = doc.Version
	}
	return d
}
