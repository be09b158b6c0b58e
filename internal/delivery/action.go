// internal/delivery/action.go
package delivery

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// EmailAction turns a stage trigger into one delivery job per contact that is
// still Pending. Contacts already in a terminal state are left alone, so a
// repeat trigger retries only the contacts that have not resolved yet.
type EmailAction struct {
	dispatcher Dispatcher
	log        *logrus.Entry
}

func NewEmailAction(dispatcher Dispatcher, log *logrus.Entry) *EmailAction {
	return &EmailAction{dispatcher: dispatcher, log: log}
}

func (a *EmailAction) Execute(contacts map[string]*model.ContactState, template model.Template, ref model.StageRef) {
	queued := 0
	for address, contact := range contacts {
		if contact == nil || contact.Progress != model.ProgressPending {
			continue
		}

		job := model.DeliveryJob{
			MessageID: uuid.NewString(),
			Ref:       ref,
			Address:   address,
			Info:      contact.Info.Copy(),
			Template:  template,
			QueuedAt:  time.Now().UTC(),
		}

		if err := a.dispatcher.Dispatch(job); err != nil {
			a.log.WithError(err).WithFields(logrus.Fields{
				"ref":       ref.String(),
				"recipient": address,
			}).Warn("⚠️ delivery dispatch failed")
			continue
		}
		queued++
	}

	if queued > 0 {
		a.log.WithFields(logrus.Fields{"ref": ref.String(), "queued": queued}).Info("📨 stage delivery jobs queued")
	}
}
