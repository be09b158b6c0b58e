// internal/store/postgres.go
package store

import (
	"database/sql"
	"encoding/json"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// stateRowID pins the document to one row; a scheduler instance owns its
// state table exclusively.
const stateRowID = 1

// Schema is the DDL for the state table, applied by the seeder.
const Schema = `
CREATE TABLE IF NOT EXISTS campaign_state (
    id INT PRIMARY KEY,
    document JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// PostgresStore persists the campaign document as a single JSONB row.
// Replace is an upsert, so readers always see the previous or the new
// complete document, never a partial one.
type PostgresStore struct {
	DB  *sql.DB
	log *logrus.Entry
}

func NewPostgresStore(db *sql.DB, log *logrus.Entry) *PostgresStore {
	return &PostgresStore{DB: db, log: log}
}

func (s *PostgresStore) Load() (model.Document, error) {
	query := `
        SELECT document FROM campaign_state
        WHERE id = $1
    `
	var raw []byte
	if err := s.DB.QueryRow(query, stateRowID).Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewStateNotFound("campaign_state")
		}
		return nil, appErrors.NewStoreIO("load", err)
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, appErrors.NewStoreIO("load", err)
	}
	return doc, nil
}

func (s *PostgresStore) Replace(doc model.Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return appErrors.NewStoreIO("replace", err)
	}
	query := `
        INSERT INTO campaign_state (id, document, updated_at)
        VALUES ($1, $2, NOW())
        ON CONFLICT (id) DO UPDATE
        SET document = EXCLUDED.document, updated_at = NOW()
    `
	if _, err := s.DB.Exec(query, stateRowID, payload); err != nil {
		return appErrors.NewStoreIO("replace", err)
	}
	return nil
}

func (s *PostgresStore) Delete() error {
	res, err := s.DB.Exec(`DELETE FROM campaign_state WHERE id = $1`, stateRowID)
	if err != nil {
		return appErrors.NewStoreIO("delete", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.Warn("⚠️ no persisted state to delete")
	}
	return nil
}
