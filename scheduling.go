package defensechain

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/defensechain/defensechain/notification"
	"github.com/defensechain/defensechain/storage/model"
)

func (w *Workflow) notifyParticipants(
	defenseID string, kind model.NotificationKind, fill func(d *notification.Data),
) (int, error) {
	defense, err := w.backends.Defenses.Get(defenseID)
	if err != nil {
		return 0, err
	}
	data := notification.DefenseData(*defense, nil)
	fill(&data)
	notes, err := w.notifications.ForParticipants(kind, *defense, data)
	if err != nil {
		return 0, err
	}
	if len(notes) == 0 {
		return 0, nil
	}
	if err = w.backends.Notifications.Enqueue(notes...); err != nil {
		return 0, err
	}
	log.WithFields(
		log.Fields{
			"defense":    defenseID,
			"kind":       kind,
			"recipients": len(notes),
		},
	).Info("defense participants notified")
	return len(notes), nil
}

// NotifyDefenseCanceled informs all participants that a defense was canceled.
// It returns the number of queued notifications.
func (w *Workflow) NotifyDefenseCanceled(_ context.Context, defenseID, reason string) (int, error) {
	return w.notifyParticipants(
		defenseID, model.NotifyDefenseCanceled, func(d *notification.Data) {
			d.Reason = strings.TrimSpace(reason)
		},
	)
}

// NotifyDefenseRescheduled informs all participants about a new date and,
// optionally, a new location of a defense
func (w *Workflow) NotifyDefenseRescheduled(
	_ context.Context, defenseID string, newDate time.Time, location, reason string,
) (int, error) {
	if newDate.IsZero() {
		return 0, model.ValidationError("a rescheduled defense needs a new date")
	}
	return w.notifyParticipants(
		defenseID, model.NotifyDefenseRescheduled, func(d *notification.Data) {
			d.DefenseDate = newDate.UTC()
			if location != "" {
				d.Location = location
			}
			d.Reason = strings.TrimSpace(reason)
		},
	)
}
