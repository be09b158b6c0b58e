package repository

import (
	"database/sql"
	"time"

	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// Schema is the DDL for the delivery log, applied by the seeder.
const Schema = `
CREATE TABLE IF NOT EXISTS delivery_log (
    id SERIAL PRIMARY KEY,
    message_id TEXT NOT NULL,
    group_key TEXT NOT NULL,
    campaign_id TEXT NOT NULL,
    stage INT NOT NULL,
    recipient TEXT NOT NULL,
    subject TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    last_error TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS delivery_log_campaign_idx ON delivery_log (group_key, campaign_id);
`

type DeliveryLogRepositoryInterface interface {
	Record(rec *model.DeliveryRecord) error
	ListByCampaign(groupKey, campaignID string, limit int) ([]*model.DeliveryRecord, error)
	CountByStatus(groupKey, campaignID string) (map[string]int, error)
}

// DeliveryLogRepository stores one row per send attempt. The lifecycle core
// never reads the log back; it exists for operators and the HTTP surface.
type DeliveryLogRepository struct {
	DB *sql.DB
}

// ====================== Writes ======================

// Record inserts one delivery attempt and fills in the generated ID.
func (r *DeliveryLogRepository) Record(rec *model.DeliveryRecord) error {
	rec.CreatedAt = time.Now()
	query := `
        INSERT INTO delivery_log
        (message_id, group_key, campaign_id, stage, recipient, subject, status, last_error, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        RETURNING id
    `
	return r.DB.QueryRow(
		query,
		rec.MessageID,
		rec.GroupKey,
		rec.CampaignID,
		rec.Stage,
		rec.Recipient,
		rec.Subject,
		rec.Status,
		rec.LastError,
		rec.CreatedAt,
	).Scan(&rec.ID)
}

// ====================== Reads ======================

// ListByCampaign fetches the most recent attempts for one campaign, newest
// first. limit is clamped to [1, 500].
func (r *DeliveryLogRepository) ListByCampaign(groupKey, campaignID string, limit int) ([]*model.DeliveryRecord, error) {
	if limit < 1 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `
        SELECT id, message_id, group_key, campaign_id, stage, recipient, subject, status, last_error, created_at
        FROM delivery_log
        WHERE group_key = $1 AND campaign_id = $2
        ORDER BY created_at DESC, id DESC
        LIMIT $3
    `
	rows, err := r.DB.Query(query, groupKey, campaignID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []*model.DeliveryRecord{}
	for rows.Next() {
		var rec model.DeliveryRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.MessageID,
			&rec.GroupKey,
			&rec.CampaignID,
			&rec.Stage,
			&rec.Recipient,
			&rec.Subject,
			&rec.Status,
			&rec.LastError,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}
	return records, rows.Err()
}

// CountByStatus tallies a campaign's attempts per outcome status.
func (r *DeliveryLogRepository) CountByStatus(groupKey, campaignID string) (map[string]int, error) {
	query := `
        SELECT status, COUNT(*)
        FROM delivery_log
        WHERE group_key = $1 AND campaign_id = $2
        GROUP BY status
    `
	rows, err := r.DB.Query(query, groupKey, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
