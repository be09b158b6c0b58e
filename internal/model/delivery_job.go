// internal/model/delivery_job.go
package model

import (
	"fmt"
	"time"
)

// StageRef is the correlation tuple threaded from the scheduler through the
// delivery pipeline and back into progress updates.
type StageRef struct {
	GroupKey   string `json:"group_key"`
	CampaignID string `json:"campaign_id"`
	Stage      int    `json:"stage"`
}

func (r StageRef) String() string {
	return fmt.Sprintf("%s/%s/%d", r.GroupKey, r.CampaignID, r.Stage)
}

// DeliveryJob is one queued outbound message: everything the delivery worker
// needs to render, send and report back for a single contact.
type DeliveryJob struct {
	MessageID string      `json:"message_id"`
	Ref       StageRef    `json:"ref"`
	Address   string      `json:"address"`
	Info      ContactInfo `json:"info"`
	Template  Template    `json:"template"`
	QueuedAt  time.Time   `json:"queued_at"`
}
