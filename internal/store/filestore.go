// internal/store/filestore.go
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// FileStore persists the campaign document as pretty-printed JSON at a fixed
// path. Replace writes a temp file in the same directory and renames it over
// the target, so readers only ever see complete documents.
type FileStore struct {
	path string
	log  *logrus.Entry
}

func NewFileStore(path string, log *logrus.Entry) *FileStore {
	return &FileStore{path: path, log: log}
}

func (s *FileStore) Load() (model.Document, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, appErrors.NewStateNotFound(s.path)
	}
	if err != nil {
		return nil, appErrors.NewStoreIO("load", err)
	}
	var doc model.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, appErrors.NewStoreIO("load", err)
	}
	return doc, nil
}

func (s *FileStore) Replace(doc model.Document) error {
	payload, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return appErrors.NewStoreIO("replace", err)
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return appErrors.NewStoreIO("replace", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return appErrors.NewStoreIO("replace", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return appErrors.NewStoreIO("replace", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return appErrors.NewStoreIO("replace", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return appErrors.NewStoreIO("replace", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return appErrors.NewStoreIO("replace", err)
	}
	return nil
}

func (s *FileStore) Delete() error {
	err := os.Remove(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.WithField("path", s.path).Warn("⚠️ no persisted state to delete")
		return nil
	}
	if err != nil {
		return appErrors.NewStoreIO("delete", err)
	}
	return nil
}
