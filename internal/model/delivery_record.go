// internal/model/delivery_record.go
package model

import "time"

// Delivery outcome statuses recorded in the delivery log.
const (
	DeliverySent   = "sent"
	DeliveryFailed = "failed"
)

// DeliveryRecord is one row of the delivery audit log: a single send attempt
// for one contact in one stage. Kept in Postgres next to the state document;
// the lifecycle core never reads it back.
type DeliveryRecord struct {
	ID         int       `db:"id" json:"id"`
	MessageID  string    `db:"message_id" json:"message_id"`
	GroupKey   string    `db:"group_key" json:"group_key"`
	CampaignID string    `db:"campaign_id" json:"campaign_id"`
	Stage      int       `db:"stage" json:"stage"`
	Recipient  string    `db:"recipient" json:"recipient"`
	Subject    string    `db:"subject" json:"subject"`
	Status     string    `db:"status" json:"status"` // sent, failed
	LastError  string    `db:"last_error,omitempty" json:"last_error,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
