// internal/model/contact.go
package model

// Contact progress values within one stage.
const (
	ProgressNotStarted    = "Not Started"
	ProgressPending       = "Pending"
	ProgressEmailSent     = "Email Sent"
	ProgressReplyReceived = "Reply Received"
	ProgressClosed        = "Closed"
	ProgressSkip          = "Skip" // carried into a lapsed stage, nothing to send
)

// ValidProgress reports whether v is in the allowed contact progress set.
func ValidProgress(v string) bool {
	switch v {
	case ProgressNotStarted, ProgressPending, ProgressEmailSent, ProgressReplyReceived, ProgressClosed, ProgressSkip:
		return true
	}
	return false
}

// TerminalProgress reports whether v ends a contact's participation in a
// stage. A stage completes only when every contact is terminal.
func TerminalProgress(v string) bool {
	switch v {
	case ProgressEmailSent, ProgressReplyReceived, ProgressClosed, ProgressSkip:
		return true
	}
	return false
}

// ContactInfo holds the renderer-facing fields of a contact (name, company,
// role, ...). The lifecycle core never looks inside.
type ContactInfo map[string]string

func (i ContactInfo) Copy() ContactInfo {
	if i == nil {
		return nil
	}
	out := make(ContactInfo, len(i))
	for k, v := range i {
		out[k] = v
	}
	return out
}

// ContactState is one contact's record within one stage. Records are fresh
// per stage: the same address restarts at Not Started in stage N+1 no matter
// how stage N ended.
type ContactState struct {
	Info     ContactInfo `json:"info"`
	Progress string      `json:"progress"`
}

func (c *ContactState) Terminal() bool {
	return c != nil && TerminalProgress(c.Progress)
}

func (c *ContactState) Copy() *ContactState {
	if c == nil {
		return nil
	}
	return &ContactState{Info: c.Info.Copy(), Progress: c.Progress}
}
