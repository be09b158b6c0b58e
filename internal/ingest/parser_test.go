package ingest_test

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/dripleopard-backend/internal/ingest"
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// --- Fixtures ---

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("test", "ingest")
}

// groupFixture builds a campaign-group folder piece by piece under a temp
// dir, mirroring what the upstream schedule generator drops on disk.
type groupFixture struct {
	t   *testing.T
	dir string
}

func newGroupFixture(t *testing.T) *groupFixture {
	t.Helper()
	return &groupFixture{t: t, dir: filepath.Join(t.TempDir(), "2026-09-01")}
}

func (f *groupFixture) write(relPath, content string) {
	f.t.Helper()
	path := filepath.Join(f.dir, relPath)
	require.NoError(f.t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(f.t, os.WriteFile(path, []byte(content), 0o644))
}

func (f *groupFixture) schedule(content string) {
	f.write(ingest.ScheduleFileName, content)
}

func (f *groupFixture) templates(campaignID, content string) {
	f.write(filepath.Join(campaignID, ingest.TemplatesFileName), content)
}

func (f *groupFixture) contacts(campaignID string, stage int, content string) {
	f.write(filepath.Join(campaignID, fmt.Sprint(stage), ingest.ContactsFileName), content)
}

func newParser(t *testing.T) *ingest.Parser {
	t.Helper()
	return ingest.NewParser(testLog())
}

func futureTimes(t *testing.T, n int) []string {
	t.Helper()
	times := make([]string, n)
	for i := range times {
		times[i] = time.Now().Add(time.Duration(i+1) * time.Hour).Format(time.RFC3339)
	}
	return times
}

func twoStageSchedule(campaignID, start1, start2 string) string {
	return fmt.Sprintf(`[
  {
    "campaign_id": %q,
    "sequences": [
      {"sequence": 1, "start_time": %q, "interval": "1h0m0s"},
      {"sequence": 2, "start_time": %q, "interval": "2h0m0s"}
    ]
  }
]`, campaignID, start1, start2)
}

const twoStageTemplates = `- sequence: 1
  subject: "Welcome, {name}"
  content: "Hello {name}, glad to have you at {company}."
- sequence: 2
  subject: "Checking in, {name}"
  content: "Hello {name}, just checking in."
`

const stageOneContacts = `name,email,company
Alice,alice@example.com,Initech
Bob,bob@example.com,Globex
`

func completeFixture(t *testing.T) *groupFixture {
	t.Helper()
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	f.schedule(twoStageSchedule("launch", starts[0], starts[1]))
	f.templates("launch", twoStageTemplates)
	f.contacts("launch", 1, stageOneContacts)
	f.contacts("launch", 2, "name,email\nCarol,carol@example.com\n")
	return f
}

// --- Tests ---

func TestParseGroupFolder(t *testing.T) {
	f := completeFixture(t)

	groupKey, group, err := newParser(t).ParseGroupFolder(f.dir)
	require.NoError(t, err)

	assert.Equal(t, "2026-09-01", groupKey, "group key is the folder name")
	require.Contains(t, group, "launch")
	require.NoError(t, group.Validate(), "parsed groups must pass document validation")

	campaign := group["launch"]
	require.Len(t, campaign.Stages, 2)

	first := campaign.Stages[0]
	assert.Equal(t, 1, first.Sequence)
	assert.Equal(t, model.Duration(time.Hour), first.Interval)
	assert.Equal(t, "Welcome, {name}", first.Template.Subject)
	require.Contains(t, first.Contacts, "alice@example.com")
	require.Contains(t, first.Contacts, "bob@example.com")
	assert.Equal(t, model.ContactInfo{"name": "Alice", "company": "Initech"},
		first.Contacts["alice@example.com"].Info)

	second := campaign.Stages[1]
	assert.Equal(t, 2, second.Sequence)
	assert.Equal(t, "Checking in, {name}", second.Template.Subject)
	assert.Contains(t, second.Contacts, "carol@example.com")
	assert.NotContains(t, second.Contacts, "alice@example.com")
}

func TestParseGroupFolderSortsSequences(t *testing.T) {
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	// schedule lists sequence 2 first; the parser must not care
	f.schedule(fmt.Sprintf(`[
  {
    "campaign_id": "launch",
    "sequences": [
      {"sequence": 2, "start_time": %q, "interval": "2h0m0s"},
      {"sequence": 1, "start_time": %q, "interval": "1h0m0s"}
    ]
  }
]`, starts[1], starts[0]))
	f.templates("launch", twoStageTemplates)
	f.contacts("launch", 1, stageOneContacts)
	f.contacts("launch", 2, "name,email\nCarol,carol@example.com\n")

	_, group, err := newParser(t).ParseGroupFolder(f.dir)
	require.NoError(t, err)
	stages := group["launch"].Stages
	require.Len(t, stages, 2)
	assert.Equal(t, 1, stages[0].Sequence)
	assert.Equal(t, 2, stages[1].Sequence)
}

func TestParseGroupFolderCarriesContactsForward(t *testing.T) {
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	f.schedule(twoStageSchedule("launch", starts[0], starts[1]))
	f.templates("launch", twoStageTemplates)
	f.contacts("launch", 1, stageOneContacts)
	// no contacts.csv for stage 2

	_, group, err := newParser(t).ParseGroupFolder(f.dir)
	require.NoError(t, err)

	stages := group["launch"].Stages
	require.Len(t, stages, 2)
	require.Contains(t, stages[1].Contacts, "alice@example.com")
	require.Contains(t, stages[1].Contacts, "bob@example.com")

	carried := stages[1].Contacts["alice@example.com"]
	assert.Equal(t, model.ContactInfo{"name": "Alice", "company": "Initech"}, carried.Info)
	assert.Empty(t, carried.Progress, "carried contacts start with no progress")

	// the carried set is a deep copy, not an alias
	stages[0].Contacts["alice@example.com"].Info["name"] = "Mallory"
	assert.Equal(t, "Alice", carried.Info["name"])
}

func TestParseGroupFolderRequiresStageOneContacts(t *testing.T) {
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	f.schedule(twoStageSchedule("launch", starts[0], starts[1]))
	f.templates("launch", twoStageTemplates)
	// no contacts at all: nothing to carry forward from

	_, _, err := newParser(t).ParseGroupFolder(f.dir)
	require.Error(t, err)
}

func TestParseGroupFolderDropsInvalidEmails(t *testing.T) {
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	f.schedule(twoStageSchedule("launch", starts[0], starts[1]))
	f.templates("launch", twoStageTemplates)
	f.contacts("launch", 1, `name,email
Alice,alice@example.com
Broken,not-an-address
`)
	f.contacts("launch", 2, "name,email\nCarol,carol@example.com\n")

	_, group, err := newParser(t).ParseGroupFolder(f.dir)
	require.NoError(t, err)

	contacts := group["launch"].Stages[0].Contacts
	assert.Contains(t, contacts, "alice@example.com")
	assert.Len(t, contacts, 1, "the invalid row is dropped, not kept")
}

func TestParseGroupFolderFailsWhenNoValidContacts(t *testing.T) {
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	f.schedule(twoStageSchedule("launch", starts[0], starts[1]))
	f.templates("launch", twoStageTemplates)
	f.contacts("launch", 1, "name,email\nBroken,not-an-address\n")

	_, _, err := newParser(t).ParseGroupFolder(f.dir)
	require.Error(t, err, "a contacts file with zero valid rows fails the campaign")
}

func TestParseGroupFolderKeepsSiblingOfBrokenCampaign(t *testing.T) {
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	f.schedule(fmt.Sprintf(`[
  {
    "campaign_id": "launch",
    "sequences": [{"sequence": 1, "start_time": %q, "interval": "1h0m0s"}]
  },
  {
    "campaign_id": "broken",
    "sequences": [{"sequence": 1, "start_time": %q, "interval": "1h0m0s"}]
  }
]`, starts[0], starts[1]))
	f.templates("launch", twoStageTemplates)
	f.contacts("launch", 1, stageOneContacts)
	// "broken" has no templates.yaml

	_, group, err := newParser(t).ParseGroupFolder(f.dir)
	require.NoError(t, err)
	assert.Contains(t, group, "launch")
	assert.NotContains(t, group, "broken")
}

func TestParseGroupFolderLapsedSentinelPassesThrough(t *testing.T) {
	f := newGroupFixture(t)
	starts := futureTimes(t, 2)
	f.schedule(twoStageSchedule("launch", model.StartTimeLapsed, starts[1]))
	f.templates("launch", twoStageTemplates)
	f.contacts("launch", 1, stageOneContacts)
	f.contacts("launch", 2, "name,email\nCarol,carol@example.com\n")

	_, group, err := newParser(t).ParseGroupFolder(f.dir)
	require.NoError(t, err)

	stages := group["launch"].Stages
	assert.True(t, stages[0].StartTime.Lapsed(), "the sentinel survives parsing untouched")
	assert.NotEqual(t, model.StatusCompleted, stages[0].Status,
		"the parser never applies the lapsed force-set, the manager does")
	assert.Contains(t, stages[0].Contacts, "alice@example.com")
}

func TestParseGroupFolderRejectsBadSchedules(t *testing.T) {
	starts := futureTimes(t, 2)

	cases := []struct {
		name     string
		schedule string
	}{
		{"lapsed after timed", twoStageSchedule("launch", starts[0], model.StartTimeLapsed)},
		{"non-increasing start times", twoStageSchedule("launch", starts[0], starts[0])},
		{"unparseable start time", twoStageSchedule("launch", "tomorrow-ish", starts[1])},
		{"zero interval", fmt.Sprintf(`[
  {"campaign_id": "launch", "sequences": [{"sequence": 1, "start_time": %q, "interval": "0s"}]}
]`, starts[0])},
		{"non-contiguous sequences", fmt.Sprintf(`[
  {"campaign_id": "launch", "sequences": [
    {"sequence": 1, "start_time": %q, "interval": "1h0m0s"},
    {"sequence": 3, "start_time": %q, "interval": "1h0m0s"}
  ]}
]`, starts[0], starts[1])},
		{"missing campaign_id", fmt.Sprintf(`[
  {"sequences": [{"sequence": 1, "start_time": %q, "interval": "1h0m0s"}]}
]`, starts[0])},
		{"no sequences", `[{"campaign_id": "launch", "sequences": []}]`},
		{"empty schedule", `[]`},
		{"malformed json", `{"not": "a list"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGroupFixture(t)
			f.schedule(tc.schedule)
			f.templates("launch", twoStageTemplates)
			f.contacts("launch", 1, stageOneContacts)
			f.contacts("launch", 2, "name,email\nCarol,carol@example.com\n")

			_, _, err := newParser(t).ParseGroupFolder(f.dir)
			require.Error(t, err)
		})
	}
}

func TestParseGroupFolderMissingSchedule(t *testing.T) {
	f := newGroupFixture(t)
	require.NoError(t, os.MkdirAll(f.dir, 0o755))

	_, _, err := newParser(t).ParseGroupFolder(f.dir)
	require.Error(t, err)
}

func TestParseGroupFolderRejectsBadTemplates(t *testing.T) {
	starts := futureTimes(t, 2)

	cases := []struct {
		name      string
		templates string
	}{
		{"empty file", ""},
		{"missing sequence two", "- sequence: 1\n  subject: \"Hi {name}\"\n  content: \"Hello {name}\"\n"},
		{"blank subject", "- sequence: 1\n  subject: \"\"\n  content: \"Hello {name}\"\n"},
		{"sequence below one", "- sequence: 0\n  subject: \"Hi\"\n  content: \"Hello\"\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newGroupFixture(t)
			f.schedule(twoStageSchedule("launch", starts[0], starts[1]))
			f.templates("launch", tc.templates)
			f.contacts("launch", 1, stageOneContacts)
			f.contacts("launch", 2, "name,email\nCarol,carol@example.com\n")

			_, _, err := newParser(t).ParseGroupFolder(f.dir)
			require.Error(t, err)
		})
	}
}

func TestValidEmail(t *testing.T) {
	valid := []string{
		"alice@example.com",
		"bob.smith+tag@mail.example.co",
		"carol_98@sub.domain.io",
	}
	for _, address := range valid {
		assert.True(t, ingest.ValidEmail(address), address)
	}

	invalid := []string{
		"",
		"not-an-address",
		"@example.com",
		"alice@",
		"alice@localhost",
		"alice example@example.com",
	}
	for _, address := range invalid {
		assert.False(t, ingest.ValidEmail(address), address)
	}
}

func TestIsGroupFolder(t *testing.T) {
	t.Run("complete folder", func(t *testing.T) {
		f := completeFixture(t)
		assert.True(t, ingest.IsGroupFolder(f.dir))
	})

	t.Run("missing schedule", func(t *testing.T) {
		f := newGroupFixture(t)
		f.templates("launch", twoStageTemplates)
		assert.False(t, ingest.IsGroupFolder(f.dir))
	})

	t.Run("campaign without templates", func(t *testing.T) {
		f := completeFixture(t)
		require.NoError(t, os.Remove(filepath.Join(f.dir, "launch", ingest.TemplatesFileName)))
		assert.False(t, ingest.IsGroupFolder(f.dir))
	})

	t.Run("nonexistent path", func(t *testing.T) {
		assert.False(t, ingest.IsGroupFolder(filepath.Join(t.TempDir(), "nope")))
	})

	t.Run("plain file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "schedule.json")
		require.NoError(t, os.WriteFile(path, []byte("[]"), 0o644))
		assert.False(t, ingest.IsGroupFolder(path))
	})
}
