package store_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
	"github.com/unclebandit/dripleopard-backend/internal/store"
)

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("test", "store")
}

func sampleDocument() model.Document {
	return model.Document{
		"2026-09-01": model.CampaignGroup{
			"launch": &model.Campaign{
				Status: model.StatusInProgress,
				Stages: []*model.Stage{
					{
						Sequence:  1,
						Status:    model.StatusInProgress,
						StartTime: "2026-09-01T09:00:00Z",
						Interval:  model.Duration(30 * time.Minute),
						Template:  model.Template{Subject: "Hi {name}", Content: "Hello {name}"},
						Contacts: map[string]*model.ContactState{
							"alice@example.com": {
								Info:     model.ContactInfo{"name": "Alice"},
								Progress: model.ProgressPending,
							},
						},
					},
				},
			},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.json")
	fs := store.NewFileStore(path, testLog())

	doc := sampleDocument()
	require.NoError(t, fs.Replace(doc))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, doc, loaded)
}

func TestFileStoreReplaceCreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nested", "campaigns.json")
	fs := store.NewFileStore(path, testLog())

	require.NoError(t, fs.Replace(sampleDocument()))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestFileStoreReplaceOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.json")
	fs := store.NewFileStore(path, testLog())

	require.NoError(t, fs.Replace(sampleDocument()))

	second := sampleDocument()
	second["2026-09-01"]["launch"].Status = model.StatusCompleted
	require.NoError(t, fs.Replace(second))

	loaded, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, loaded["2026-09-01"]["launch"].Status)
}

func TestFileStoreReplaceLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	fs := store.NewFileStore(filepath.Join(dir, "campaigns.json"), testLog())

	require.NoError(t, fs.Replace(sampleDocument()))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "campaigns.json", entries[0].Name())
}

func TestFileStoreLoadMissing(t *testing.T) {
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "campaigns.json"), testLog())

	_, err := fs.Load()
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestFileStoreLoadCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.json")
	require.NoError(t, os.WriteFile(path, []byte("{truncated"), 0o644))
	fs := store.NewFileStore(path, testLog())

	_, err := fs.Load()
	require.Error(t, err)
	assert.False(t, appErrors.IsNotFound(err), "corrupt state is an IO error, not absence")
}

func TestFileStoreDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "campaigns.json")
	fs := store.NewFileStore(path, testLog())

	require.NoError(t, fs.Replace(sampleDocument()))
	require.NoError(t, fs.Delete())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// deleting again is a warned no-op
	assert.NoError(t, fs.Delete())
}
