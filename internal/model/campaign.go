// internal/model/campaign.go
package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Lifecycle statuses shared by campaigns and stages.
const (
	StatusNotStarted = "Not Started"
	StatusInProgress = "In Progress"
	StatusCompleted  = "Completed"
)

// StartTimeLapsed marks a stage whose send window had already passed when the
// group was ingested. Lapsed stages are force-completed on add and never
// scheduled.
const StartTimeLapsed = "expired"

// StartTime is either an RFC 3339 timestamp or the lapsed sentinel, exactly
// as it appears in the ingested schedule and the persisted document.
type StartTime string

func (s StartTime) Lapsed() bool {
	return string(s) == StartTimeLapsed
}

// Time parses the timestamp. Fails for the lapsed sentinel and for anything
// that is not RFC 3339.
func (s StartTime) Time() (time.Time, error) {
	if s.Lapsed() {
		return time.Time{}, fmt.Errorf("start time is the lapsed sentinel")
	}
	return time.Parse(time.RFC3339, string(s))
}

// Duration serializes as a Go duration string ("72h") so the persisted
// document stays readable and round-trips exactly.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Template is the message content for one stage. Opaque to the lifecycle
// core; only the renderer looks inside.
type Template struct {
	Subject string `json:"subject" yaml:"subject"`
	Content string `json:"content" yaml:"content"`
}

// Stage is one timed step of a campaign: its own template, contacts and
// schedule. Sequence numbers are 1-based and contiguous.
type Stage struct {
	Sequence  int                      `json:"sequence"`
	Status    string                   `json:"status"`
	StartTime StartTime                `json:"start_time"`
	Interval  Duration                 `json:"interval"`
	Template  Template                 `json:"template"`
	Contacts  map[string]*ContactState `json:"contacts"`
}

// Complete reports whether every contact in the stage holds a terminal
// progress value.
func (s *Stage) Complete() bool {
	for _, contact := range s.Contacts {
		if contact == nil || !TerminalProgress(contact.Progress) {
			return false
		}
	}
	return true
}

func (s *Stage) Copy() *Stage {
	if s == nil {
		return nil
	}
	out := &Stage{
		Sequence:  s.Sequence,
		Status:    s.Status,
		StartTime: s.StartTime,
		Interval:  s.Interval,
		Template:  s.Template,
	}
	if s.Contacts != nil {
		out.Contacts = make(map[string]*ContactState, len(s.Contacts))
		for address, contact := range s.Contacts {
			out.Contacts[address] = contact.Copy()
		}
	}
	return out
}

type Campaign struct {
	Status string   `json:"status"`
	Stages []*Stage `json:"stages"`
}

func (c *Campaign) TotalStages() int {
	return len(c.Stages)
}

// StageByNumber returns the stage with the given 1-based sequence number.
func (c *Campaign) StageByNumber(n int) (*Stage, bool) {
	if n < 1 || n > len(c.Stages) {
		return nil, false
	}
	return c.Stages[n-1], true
}

// CurrentStageNumber scans forward from stage 1 and returns the first stage
// not yet Completed, or the last stage number when every stage is Completed.
// Recomputed on every call; contact updates elsewhere can flip completion
// between calls, so the result is never cached.
func (c *Campaign) CurrentStageNumber() int {
	if len(c.Stages) == 0 {
		return 0
	}
	for _, stage := range c.Stages {
		if stage.Status != StatusCompleted {
			return stage.Sequence
		}
	}
	return len(c.Stages)
}

func (c *Campaign) AllStagesCompleted() bool {
	for _, stage := range c.Stages {
		if stage.Status != StatusCompleted {
			return false
		}
	}
	return true
}

func (c *Campaign) Copy() *Campaign {
	if c == nil {
		return nil
	}
	out := &Campaign{Status: c.Status}
	if c.Stages != nil {
		out.Stages = make([]*Stage, len(c.Stages))
		for i, stage := range c.Stages {
			out.Stages[i] = stage.Copy()
		}
	}
	return out
}
