// internal/ingest/validate.go
package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/unclebandit/dripleopard-backend/internal/model"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether address looks like a deliverable email address.
func ValidEmail(address string) bool {
	return emailPattern.MatchString(address)
}

// IsGroupFolder reports whether dir looks like a complete campaign-group
// folder: a schedule file at the top and a templates file in every campaign
// subdirectory. Used by the watcher to decide when a folder is ready to
// parse.
func IsGroupFolder(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false
	}
	if _, err := os.Stat(filepath.Join(dir, ScheduleFileName)); err != nil {
		return false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, entry.Name(), TemplatesFileName)); err != nil {
			return false
		}
	}
	return true
}

// validateTimeOrder enforces the schedule's temporal shape per campaign:
// lapsed sequences may only form a prefix, and timed sequences must be
// strictly increasing.
func validateTimeOrder(sequences []sequenceEntry) error {
	var prev time.Time
	var seenTimed bool
	for _, seq := range sequences {
		if seq.StartTime.Lapsed() {
			if seenTimed {
				return fmt.Errorf("sequence %d is %q after a timed sequence", seq.Sequence, model.StartTimeLapsed)
			}
			continue
		}
		t, err := seq.StartTime.Time()
		if err != nil {
			return fmt.Errorf("sequence %d start time %q: %v", seq.Sequence, seq.StartTime, err)
		}
		if seenTimed && !t.After(prev) {
			return fmt.Errorf("sequence %d starts at %s, not after the previous sequence", seq.Sequence, t.Format(time.RFC3339))
		}
		if seq.Interval.Std() <= 0 {
			return fmt.Errorf("sequence %d interval must be positive, got %s", seq.Sequence, seq.Interval)
		}
		prev = t
		seenTimed = true
	}
	return nil
}
