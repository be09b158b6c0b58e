// internal/watch/watcher.go
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/unclebandit/dripleopard-backend/internal/ingest"
)

// DiscoveryFunc receives the absolute path of a campaign group folder that
// looks structurally complete. The callback owns parsing and registration.
type DiscoveryFunc func(dir string)

// FolderWatcher watches the campaign data directory for new or changed group
// folders. Events are debounced per group so a folder being copied in settles
// before it is inspected; folders that pass the structural check are handed
// to the discovery callback.
type FolderWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dataDir     string
	onReady     DiscoveryFunc
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	log         *logrus.Entry
}

// NewFolderWatcher creates a watcher over dataDir. The callback fires once per
// settled group folder; repeat events for the same folder fire it again.
func NewFolderWatcher(dataDir string, onReady DiscoveryFunc, log *logrus.Entry) (*FolderWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &FolderWatcher{
		watcher:     watcher,
		dataDir:     dataDir,
		onReady:     onReady,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		log:         log,
	}, nil
}

// Start begins watching the data directory and runs an initial scan for group
// folders that already exist. Non-blocking; the event loop runs in a goroutine.
func (fw *FolderWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return nil
	}
	fw.running = true
	fw.mu.Unlock()

	if err := os.MkdirAll(fw.dataDir, 0o755); err != nil {
		fw.log.WithError(err).WithField("dir", fw.dataDir).Warn("⚠️ failed to create data directory, continuing")
	}

	if err := fw.watcher.Add(fw.dataDir); err != nil {
		fw.log.WithError(err).WithField("dir", fw.dataDir).Warn("⚠️ initial watch add failed")
	} else {
		fw.log.WithField("dir", fw.dataDir).Info("👀 watching campaign data directory")
	}

	go fw.run(ctx)

	fw.Rescan()
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (fw *FolderWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return
	}
	fw.running = false
	fw.mu.Unlock()

	close(fw.stopCh)
	<-fw.doneCh

	if err := fw.watcher.Close(); err != nil {
		fw.log.WithError(err).Error("❌ error closing folder watcher")
	}
	fw.log.Info("🛑 folder watcher stopped")
}

// IsWatching reports whether the event loop is running.
func (fw *FolderWatcher) IsWatching() bool {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.running
}

// Rescan walks the data directory and stamps every existing group folder for
// debounced inspection. Used at startup and safe to call at any time.
func (fw *FolderWatcher) Rescan() {
	entries, err := os.ReadDir(fw.dataDir)
	if err != nil {
		if !os.IsNotExist(err) {
			fw.log.WithError(err).WithField("dir", fw.dataDir).Warn("⚠️ data directory scan failed")
		}
		return
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(fw.dataDir, entry.Name())
		fw.watchTree(dir)
		fw.mu.Lock()
		fw.debounceMap[dir] = time.Now()
		fw.mu.Unlock()
	}
}

// run is the main event loop.
func (fw *FolderWatcher) run(ctx context.Context) {
	defer close(fw.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			fw.log.Debug("folder watcher context cancelled")
			return

		case <-fw.stopCh:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.WithError(err).Error("❌ folder watcher error")

		case <-debounceTicker.C:
			fw.processDebounced()
		}
	}
}

// handleEvent maps a filesystem event to its top-level group folder and
// records it for debounced processing. Newly created directories are added to
// the watch set so writes deeper in the tree keep the debounce window open.
func (fw *FolderWatcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		return
	}

	groupDir, ok := fw.groupDirFor(event.Name)
	if !ok {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			fw.watchTree(event.Name)
		}
	}

	fw.log.WithFields(logrus.Fields{"path": event.Name, "op": event.Op.String()}).Debug("folder event recorded")

	fw.mu.Lock()
	fw.debounceMap[groupDir] = time.Now()
	fw.mu.Unlock()
}

// groupDirFor resolves the direct child of the data directory containing path.
func (fw *FolderWatcher) groupDirFor(path string) (string, bool) {
	rel, err := filepath.Rel(fw.dataDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	return filepath.Join(fw.dataDir, parts[0]), true
}

// watchTree adds dir and every directory under it to the watch set.
func (fw *FolderWatcher) watchTree(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if addErr := fw.watcher.Add(path); addErr != nil {
			fw.log.WithError(addErr).WithField("dir", path).Debug("watch add failed")
		}
		return nil
	})
}

// processDebounced inspects group folders whose events have settled.
func (fw *FolderWatcher) processDebounced() {
	fw.mu.Lock()
	now := time.Now()
	settled := make([]string, 0)
	for dir, stamp := range fw.debounceMap {
		if now.Sub(stamp) >= fw.debounceDur {
			settled = append(settled, dir)
			delete(fw.debounceMap, dir)
		}
	}
	fw.mu.Unlock()

	for _, dir := range settled {
		fw.inspect(dir)
	}
}

// inspect runs the structural check on a settled folder and fires the
// discovery callback when it passes. Incomplete folders are skipped; a later
// write re-arms the debounce and they get inspected again.
func (fw *FolderWatcher) inspect(dir string) {
	if _, err := os.Stat(dir); err != nil {
		if !os.IsNotExist(err) {
			fw.log.WithError(err).WithField("dir", dir).Warn("⚠️ group folder stat failed")
		}
		return
	}

	if !ingest.IsGroupFolder(dir) {
		fw.log.WithField("dir", dir).Debug("folder not yet a complete campaign group, skipping")
		return
	}

	fw.log.WithField("dir", dir).Info("📁 campaign group folder detected")
	fw.onReady(dir)
}
