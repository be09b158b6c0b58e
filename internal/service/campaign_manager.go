// internal/service/campaign_manager.go
package service

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
	"github.com/unclebandit/dripleopard-backend/internal/store"
)

// CampaignManager owns the in-memory campaign document and every state
// transition over it. All mutations are serialized by one mutex and finish
// with a full-document write through the store (when persistence is on).
// In-memory state is the source of truth; a failed store write is logged and
// the mutation stands.
type CampaignManager struct {
	mu      sync.Mutex
	groups  model.Document
	store   store.Store
	persist bool
	log     *logrus.Entry
}

func NewCampaignManager(st store.Store, persist bool, log *logrus.Entry) *CampaignManager {
	return &CampaignManager{
		groups:  model.Document{},
		store:   st,
		persist: persist,
		log:     log,
	}
}

// Restore initializes the document from the store. With persistence off, any
// stale artifact from an earlier run is deleted instead of read.
func (m *CampaignManager) Restore() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.persist {
		return m.store.Delete()
	}

	doc, err := m.store.Load()
	if err != nil {
		if appErrors.IsNotFound(err) {
			m.log.Info("no persisted campaign state, starting empty")
			return nil
		}
		return err
	}
	m.groups = doc
	m.log.WithField("groups", len(doc)).Info("✅ campaign state restored")
	return nil
}

// persistLocked mirrors the document through the store. Callers hold mu.
// Store failures do not roll back the in-memory mutation.
func (m *CampaignManager) persistLocked() {
	if !m.persist {
		return
	}
	if err := m.store.Replace(m.groups); err != nil {
		m.log.WithError(err).Error("❌ failed to persist campaign state")
	}
}

func (m *CampaignManager) campaignLocked(groupKey, campaignID string) (*model.Campaign, error) {
	group, ok := m.groups[groupKey]
	if !ok {
		return nil, appErrors.NewGroupNotFound(groupKey)
	}
	campaign, ok := group[campaignID]
	if !ok || campaign == nil {
		return nil, appErrors.NewCampaignNotFound(groupKey, campaignID)
	}
	return campaign, nil
}

func (m *CampaignManager) stageLocked(groupKey, campaignID string, stage int) (*model.Stage, error) {
	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		return nil, err
	}
	s, ok := campaign.StageByNumber(stage)
	if !ok {
		return nil, appErrors.NewStageNotFound(groupKey, campaignID, stage)
	}
	return s, nil
}

// AddCampaignGroup validates and installs a freshly ingested group. Every
// contact starts at Not Started, except contacts of lapsed stages which are
// force-set to Skip while the stage itself is force-completed (lapsed stages
// are never scheduled). Duplicate keys and structurally invalid documents
// are rejected without mutation.
func (m *CampaignManager) AddCampaignGroup(groupKey string, group model.CampaignGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[groupKey]; exists {
		return appErrors.NewDuplicateGroup(groupKey)
	}
	if err := group.Validate(); err != nil {
		return appErrors.NewInvalidDocument(groupKey, err.Error())
	}

	installed := group.Copy()
	for _, campaign := range installed {
		campaign.Status = model.StatusNotStarted
		for _, stage := range campaign.Stages {
			if stage.StartTime.Lapsed() {
				stage.Status = model.StatusCompleted
				for _, contact := range stage.Contacts {
					contact.Progress = model.ProgressSkip
				}
				continue
			}
			stage.Status = model.StatusNotStarted
			for _, contact := range stage.Contacts {
				contact.Progress = model.ProgressNotStarted
			}
		}
	}

	m.groups[groupKey] = installed
	m.persistLocked()
	m.log.WithFields(logrus.Fields{
		"group":     groupKey,
		"campaigns": len(installed),
	}).Info("📥 campaign group added")
	return nil
}

// StartCampaign moves a Not Started campaign to In Progress and activates
// its current stage: contacts still at Not Started become Pending. Starting
// an already started or completed campaign is a benign no-op signal.
func (m *CampaignManager) StartCampaign(groupKey, campaignID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		return err
	}
	switch campaign.Status {
	case model.StatusInProgress:
		return appErrors.NewAlreadyStarted(groupKey, campaignID)
	case model.StatusCompleted:
		return appErrors.NewAlreadyCompleted(groupKey, campaignID)
	}

	current := campaign.CurrentStageNumber()
	stage, ok := campaign.StageByNumber(current)
	if !ok {
		return appErrors.NewStageNotFound(groupKey, campaignID, current)
	}
	m.activateStageLocked(stage)
	campaign.Status = model.StatusInProgress
	m.persistLocked()
	m.log.WithFields(logrus.Fields{
		"group":    groupKey,
		"campaign": campaignID,
		"stage":    current,
	}).Info("🚀 campaign started")
	return nil
}

// activateStageLocked promotes a stage's Not Started contacts to Pending and
// the stage itself to In Progress. Completed stages are left alone: stage
// status never regresses and Skip contacts stay Skip.
func (m *CampaignManager) activateStageLocked(stage *model.Stage) {
	for _, contact := range stage.Contacts {
		if contact.Progress == model.ProgressNotStarted {
			contact.Progress = model.ProgressPending
		}
	}
	if stage.Status != model.StatusCompleted {
		stage.Status = model.StatusInProgress
	}
}

// AdvanceStage activates the next stage still awaiting work (the forward
// scan skips lapsed stages already completed on add). Returns false with no
// mutation when every stage is Completed, meaning the campaign is exhausted
// and the caller should stop scheduling it.
func (m *CampaignManager) AdvanceStage(groupKey, campaignID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		return false, err
	}
	if campaign.AllStagesCompleted() {
		return false, nil
	}

	next := campaign.CurrentStageNumber()
	stage, ok := campaign.StageByNumber(next)
	if !ok {
		return false, appErrors.NewStageNotFound(groupKey, campaignID, next)
	}
	m.activateStageLocked(stage)
	if campaign.Status != model.StatusCompleted {
		campaign.Status = model.StatusInProgress
	}
	m.persistLocked()
	m.log.WithFields(logrus.Fields{
		"group":    groupKey,
		"campaign": campaignID,
		"stage":    next,
	}).Info("➡️ stage activated")
	return true, nil
}

// IsStageComplete reports whether every contact in the stage is terminal.
// When true it durably marks the stage Completed; re-checking a Completed
// stage is a cheap true with no further writes.
func (m *CampaignManager) IsStageComplete(groupKey, campaignID string, stage int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		return false, err
	}
	if s.Status == model.StatusCompleted {
		return true, nil
	}
	if !s.Complete() {
		return false, nil
	}
	s.Status = model.StatusCompleted
	m.persistLocked()
	m.log.WithFields(logrus.Fields{
		"group":    groupKey,
		"campaign": campaignID,
		"stage":    stage,
	}).Info("✅ stage completed")
	return true, nil
}

// IsCampaignComplete reports whether every stage is Completed, durably
// marking the campaign Completed the first time that becomes true.
func (m *CampaignManager) IsCampaignComplete(groupKey, campaignID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		return false, err
	}
	if !campaign.AllStagesCompleted() {
		return false, nil
	}
	if campaign.Status != model.StatusCompleted {
		campaign.Status = model.StatusCompleted
		m.persistLocked()
		m.log.WithFields(logrus.Fields{
			"group":    groupKey,
			"campaign": campaignID,
		}).Info("🏁 campaign completed")
	}
	return true, nil
}

// MarkStageCompleted durably sets a stage to Completed regardless of contact
// progress. Used on the campaign-exhausted path; idempotent.
func (m *CampaignManager) MarkStageCompleted(groupKey, campaignID string, stage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		return err
	}
	if s.Status == model.StatusCompleted {
		return nil
	}
	s.Status = model.StatusCompleted
	m.persistLocked()
	return nil
}

// MarkStageInProgress records that the scheduler registered a Job for the
// stage. Completed stages never regress; an already active stage is a no-op.
func (m *CampaignManager) MarkStageInProgress(groupKey, campaignID string, stage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		return err
	}
	if s.Status == model.StatusCompleted || s.Status == model.StatusInProgress {
		return nil
	}
	s.Status = model.StatusInProgress
	m.persistLocked()
	return nil
}

// UpdateContactProgress records a delivery outcome for one contact. Writes
// through the store only when the value actually changes.
func (m *CampaignManager) UpdateContactProgress(groupKey, campaignID string, stage int, address, progress string) error {
	if !model.ValidProgress(progress) {
		return appErrors.NewInvalidStatus(progress)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		return err
	}
	contact, ok := s.Contacts[address]
	if !ok || contact == nil {
		return appErrors.NewContactNotFound(groupKey, campaignID, stage, address)
	}
	if contact.Progress == progress {
		return nil
	}
	contact.Progress = progress
	m.persistLocked()
	m.log.WithFields(logrus.Fields{
		"group":    groupKey,
		"campaign": campaignID,
		"stage":    stage,
		"contact":  address,
		"progress": progress,
	}).Debug("contact progress updated")
	return nil
}

// RemoveCampaignGroup evicts a group from memory and the store. Called once
// every campaign in the group is Completed.
func (m *CampaignManager) RemoveCampaignGroup(groupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.groups[groupKey]; !exists {
		return appErrors.NewGroupNotFound(groupKey)
	}
	delete(m.groups, groupKey)
	m.persistLocked()
	m.log.WithField("group", groupKey).Info("🧹 campaign group removed")
	return nil
}

// ====================== Derived getters ======================
//
// Pure reads for the scheduler, the control loop and the HTTP surface. They
// fail softly (zero value plus a logged signal) because the control loop
// polls them continuously and transient absence during concurrent ingestion
// or removal must not crash anything.

func (m *CampaignManager) CurrentStageNumber(groupKey, campaignID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		m.softMiss("CurrentStageNumber", err)
		return 0
	}
	return campaign.CurrentStageNumber()
}

// CampaignStatus returns the campaign's lifecycle status, or "" when the
// reference no longer resolves.
func (m *CampaignManager) CampaignStatus(groupKey, campaignID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		m.softMiss("CampaignStatus", err)
		return ""
	}
	return campaign.Status
}

// GroupCompleted reports whether every campaign in the group is Completed.
// False for unknown groups.
func (m *CampaignManager) GroupCompleted(groupKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupKey]
	if !ok {
		return false
	}
	return group.Completed()
}

func (m *CampaignManager) TotalStages(groupKey, campaignID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		m.softMiss("TotalStages", err)
		return 0
	}
	return campaign.TotalStages()
}

func (m *CampaignManager) StageStartTime(groupKey, campaignID string, stage int) model.StartTime {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		m.softMiss("StageStartTime", err)
		return ""
	}
	return s.StartTime
}

func (m *CampaignManager) StageInterval(groupKey, campaignID string, stage int) model.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		m.softMiss("StageInterval", err)
		return 0
	}
	return s.Interval
}

func (m *CampaignManager) StageTemplate(groupKey, campaignID string, stage int) model.Template {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		m.softMiss("StageTemplate", err)
		return model.Template{}
	}
	return s.Template
}

// StageContacts returns a deep copy of the stage's contact map, safe to hand
// to a delivery action running outside the lock.
func (m *CampaignManager) StageContacts(groupKey, campaignID string, stage int) map[string]*model.ContactState {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.stageLocked(groupKey, campaignID, stage)
	if err != nil {
		m.softMiss("StageContacts", err)
		return nil
	}
	out := make(map[string]*model.ContactState, len(s.Contacts))
	for address, contact := range s.Contacts {
		out[address] = contact.Copy()
	}
	return out
}

func (m *CampaignManager) softMiss(op string, err error) {
	m.log.WithError(err).WithField("op", op).Warn("⚠️ lookup on absent campaign state")
}

// ====================== Snapshots ======================

// GroupKeys returns the known group keys in sorted order.
func (m *CampaignManager) GroupKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.groups))
	for key := range m.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// CampaignIDs returns a group's campaign IDs in sorted order; nil for an
// unknown group.
func (m *CampaignManager) CampaignIDs(groupKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupKey]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(group))
	for id := range group {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GroupSnapshot returns a deep copy of one group for read-only consumers.
func (m *CampaignManager) GroupSnapshot(groupKey string) (model.CampaignGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupKey]
	if !ok {
		return nil, appErrors.NewGroupNotFound(groupKey)
	}
	return group.Copy(), nil
}

// CampaignSnapshot returns a deep copy of one campaign.
func (m *CampaignManager) CampaignSnapshot(groupKey, campaignID string) (*model.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	campaign, err := m.campaignLocked(groupKey, campaignID)
	if err != nil {
		return nil, err
	}
	return campaign.Copy(), nil
}
