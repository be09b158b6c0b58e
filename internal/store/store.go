// internal/store/store.go
package store

import (
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// Store is the durable mirror of the campaign document. It has no model of
// its own: Replace rewrites the full document on every mutation and Load
// hands it back verbatim.
type Store interface {
	// Load reads the persisted document. Returns a state-not-found error
	// when nothing has been persisted yet; callers treat that as empty
	// state.
	Load() (model.Document, error)

	// Replace atomically overwrites the persisted document. A concurrent
	// reader must never observe a partial write.
	Replace(doc model.Document) error

	// Delete removes the persisted artifact. Deleting an absent artifact
	// is a no-op logged at warning level.
	Delete() error
}
