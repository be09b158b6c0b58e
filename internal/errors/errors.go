// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrStateNotFound signals that no persisted state document exists yet.
type ErrStateNotFound struct {
	Location string
}

func (e *ErrStateNotFound) Error() string {
	return fmt.Sprintf("no persisted campaign state at %s", e.Location)
}

func NewStateNotFound(location string) error {
	return &ErrStateNotFound{Location: location}
}

// ErrGroupNotFound is returned for references to an unknown campaign group.
type ErrGroupNotFound struct {
	GroupKey string
}

func (e *ErrGroupNotFound) Error() string {
	return fmt.Sprintf("campaign group %q not found", e.GroupKey)
}

func NewGroupNotFound(groupKey string) error {
	return &ErrGroupNotFound{GroupKey: groupKey}
}

// ErrCampaignNotFound is returned for references to an unknown campaign
// within a known group.
type ErrCampaignNotFound struct {
	GroupKey   string
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %q not found in group %q", e.CampaignID, e.GroupKey)
}

func NewCampaignNotFound(groupKey, campaignID string) error {
	return &ErrCampaignNotFound{GroupKey: groupKey, CampaignID: campaignID}
}

// ErrStageNotFound is returned for stage numbers outside a campaign's
// stage list.
type ErrStageNotFound struct {
	GroupKey   string
	CampaignID string
	Stage      int
}

func (e *ErrStageNotFound) Error() string {
	return fmt.Sprintf("stage %d not found in campaign %q (group %q)", e.Stage, e.CampaignID, e.GroupKey)
}

func NewStageNotFound(groupKey, campaignID string, stage int) error {
	return &ErrStageNotFound{GroupKey: groupKey, CampaignID: campaignID, Stage: stage}
}

// ErrContactNotFound is returned for an unknown contact address within a
// known stage.
type ErrContactNotFound struct {
	GroupKey   string
	CampaignID string
	Stage      int
	Address    string
}

func (e *ErrContactNotFound) Error() string {
	return fmt.Sprintf("contact %q not found in stage %d of campaign %q (group %q)", e.Address, e.Stage, e.CampaignID, e.GroupKey)
}

func NewContactNotFound(groupKey, campaignID string, stage int, address string) error {
	return &ErrContactNotFound{GroupKey: groupKey, CampaignID: campaignID, Stage: stage, Address: address}
}

// ErrDuplicateGroup is returned when a group key is added twice.
type ErrDuplicateGroup struct {
	GroupKey string
}

func (e *ErrDuplicateGroup) Error() string {
	return fmt.Sprintf("campaign group %q already exists", e.GroupKey)
}

func NewDuplicateGroup(groupKey string) error {
	return &ErrDuplicateGroup{GroupKey: groupKey}
}

// ErrInvalidDocument is returned when an ingested group document fails
// structural validation.
type ErrInvalidDocument struct {
	GroupKey string
	Reason   string
}

func (e *ErrInvalidDocument) Error() string {
	return fmt.Sprintf("invalid campaign group document %q: %s", e.GroupKey, e.Reason)
}

func NewInvalidDocument(groupKey, reason string) error {
	return &ErrInvalidDocument{GroupKey: groupKey, Reason: reason}
}

// ErrInvalidStatus is returned when a contact progress value is outside the
// allowed set.
type ErrInvalidStatus struct {
	Value string
}

func (e *ErrInvalidStatus) Error() string {
	return fmt.Sprintf("invalid contact progress %q", e.Value)
}

func NewInvalidStatus(value string) error {
	return &ErrInvalidStatus{Value: value}
}

// ErrInvalidStage is returned when a stage number falls outside [1, total].
type ErrInvalidStage struct {
	Stage int
	Total int
}

func (e *ErrInvalidStage) Error() string {
	return fmt.Sprintf("stage %d out of range [1, %d]", e.Stage, e.Total)
}

func NewInvalidStage(stage, total int) error {
	return &ErrInvalidStage{Stage: stage, Total: total}
}

// ErrAlreadyStarted is the benign signal that a campaign start was requested
// twice.
type ErrAlreadyStarted struct {
	GroupKey   string
	CampaignID string
}

func (e *ErrAlreadyStarted) Error() string {
	return fmt.Sprintf("campaign %q in group %q already started", e.CampaignID, e.GroupKey)
}

func NewAlreadyStarted(groupKey, campaignID string) error {
	return &ErrAlreadyStarted{GroupKey: groupKey, CampaignID: campaignID}
}

// ErrAlreadyCompleted is the benign signal that a completed campaign was
// asked to advance or start.
type ErrAlreadyCompleted struct {
	GroupKey   string
	CampaignID string
}

func (e *ErrAlreadyCompleted) Error() string {
	return fmt.Sprintf("campaign %q in group %q already completed", e.CampaignID, e.GroupKey)
}

func NewAlreadyCompleted(groupKey, campaignID string) error {
	return &ErrAlreadyCompleted{GroupKey: groupKey, CampaignID: campaignID}
}

// ErrStoreIO wraps a persistence read/write failure. Mutations that trigger
// it keep their in-memory effect; persistence is best effort.
type ErrStoreIO struct {
	Op  string
	Err error
}

func (e *ErrStoreIO) Error() string {
	return fmt.Sprintf("state store %s failed: %v", e.Op, e.Err)
}

func (e *ErrStoreIO) Unwrap() error {
	return e.Err
}

func NewStoreIO(op string, err error) error {
	return &ErrStoreIO{Op: op, Err: err}
}

// IsNotFound reports whether err is any of the not-found kinds.
func IsNotFound(err error) bool {
	var state *ErrStateNotFound
	var group *ErrGroupNotFound
	var campaign *ErrCampaignNotFound
	var stage *ErrStageNotFound
	var contact *ErrContactNotFound
	return errors.As(err, &state) ||
		errors.As(err, &group) ||
		errors.As(err, &campaign) ||
		errors.As(err, &stage) ||
		errors.As(err, &contact)
}

// IsConflict reports whether err rejects a group add because the group key
// is taken or the document is structurally invalid.
func IsConflict(err error) bool {
	var dup *ErrDuplicateGroup
	var doc *ErrInvalidDocument
	return errors.As(err, &dup) || errors.As(err, &doc)
}

// IsBenign reports whether err is one of the no-op state machine signals.
func IsBenign(err error) bool {
	var started *ErrAlreadyStarted
	var completed *ErrAlreadyCompleted
	return errors.As(err, &started) || errors.As(err, &completed)
}
