// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// ErrCampaignExhausted signals that a campaign has no next stage to
// schedule; the caller stops scheduling it.
var ErrCampaignExhausted = errors.New("campaign exhausted: no next stage")

// ErrStageLapsed signals that a stage's send window had already passed at
// ingestion. Lapsed stages are force-completed on add and never get a Job.
var ErrStageLapsed = errors.New("stage lapsed before ingestion, not scheduled")

// Action is implemented by the delivery collaborator. Execute receives a
// snapshot of the stage's contacts, the stage's template, and the
// correlation reference; it reports outcomes back through contact progress
// updates rather than a return value.
type Action interface {
	Execute(contacts map[string]*model.ContactState, template model.Template, ref model.StageRef)
}

// CampaignStateInterface is the slice of the campaign manager the scheduler
// drives and reads.
type CampaignStateInterface interface {
	StartCampaign(groupKey, campaignID string) error
	AdvanceStage(groupKey, campaignID string) (bool, error)
	MarkStageCompleted(groupKey, campaignID string, stage int) error
	MarkStageInProgress(groupKey, campaignID string, stage int) error
	CurrentStageNumber(groupKey, campaignID string) int
	TotalStages(groupKey, campaignID string) int
	StageStartTime(groupKey, campaignID string, stage int) model.StartTime
	StageTemplate(groupKey, campaignID string, stage int) model.Template
	StageContacts(groupKey, campaignID string, stage int) map[string]*model.ContactState
}

type slotKey struct {
	groupKey   string
	campaignID string
	stage      int
}

type job struct {
	key    slotKey
	cancel chan struct{}
}

// StageScheduler keeps one live timed Job per active (group, campaign) pair.
// A Job fires at its stage's start time (corrected to now + buffer when that
// time already passed, so a trigger is never scheduled in the past) and then
// at the configured retry interval, so contacts still Pending after a failed
// attempt get retried. Jobs are transient: nothing here is persisted.
type StageScheduler struct {
	mu      sync.Mutex
	state   CampaignStateInterface
	jobs    map[slotKey]*job
	retry   time.Duration
	buffer  time.Duration
	log     *logrus.Entry
	wg      sync.WaitGroup
	started chan struct{}
	quit    chan struct{}
	stopped bool
	once    sync.Once
}

func NewStageScheduler(state CampaignStateInterface, retry, buffer time.Duration, log *logrus.Entry) *StageScheduler {
	return &StageScheduler{
		state:   state,
		jobs:    make(map[slotKey]*job),
		retry:   retry,
		buffer:  buffer,
		log:     log,
		started: make(chan struct{}),
		quit:    make(chan struct{}),
	}
}

// Run releases registered jobs to fire. Jobs added before Run hold their
// absolute start times; waiting for Run does not skew them.
func (s *StageScheduler) Run() {
	s.once.Do(func() {
		close(s.started)
		s.log.Info("🚀 stage scheduler running")
	})
}

// Shutdown cancels pending firings and waits for in-flight action
// invocations to finish. ctx bounds the wait.
func (s *StageScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.quit)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("stage scheduler drained")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleCampaign starts the campaign and registers a Job for its current
// stage. Both failure paths leave the model consistent: either not started,
// or started with no Job, recoverable by a later AddTask from the control
// loop.
func (s *StageScheduler) ScheduleCampaign(groupKey, campaignID string, action Action) error {
	if err := s.state.StartCampaign(groupKey, campaignID); err != nil {
		return err
	}
	current := s.state.CurrentStageNumber(groupKey, campaignID)
	return s.AddTask(groupKey, campaignID, current, action)
}

// ScheduleNextStage drops the campaign's live Job, advances to the next
// stage and registers a Job for it. Returns ErrCampaignExhausted when every
// stage is done; the current (last) stage is durably marked Completed first.
func (s *StageScheduler) ScheduleNextStage(groupKey, campaignID string, action Action) error {
	if removed := s.RemoveCampaignTasks(groupKey, campaignID); removed > 0 {
		s.log.WithFields(logrus.Fields{
			"group":    groupKey,
			"campaign": campaignID,
			"jobs":     removed,
		}).Debug("previous stage jobs removed")
	}

	advanced, err := s.state.AdvanceStage(groupKey, campaignID)
	if err != nil {
		return err
	}
	if !advanced {
		if current := s.state.CurrentStageNumber(groupKey, campaignID); current > 0 {
			if err := s.state.MarkStageCompleted(groupKey, campaignID, current); err != nil {
				s.log.WithError(err).Warn("⚠️ could not mark final stage completed")
			}
		}
		return ErrCampaignExhausted
	}

	current := s.state.CurrentStageNumber(groupKey, campaignID)
	return s.AddTask(groupKey, campaignID, current, action)
}

// AddTask registers a Job for the given stage. The stage number must be
// within [1, total]. A start time at or before now is corrected to now +
// buffer (restart recovery for missed windows). Any live Job for the same
// campaign is silently replaced, last writer wins.
func (s *StageScheduler) AddTask(groupKey, campaignID string, stage int, action Action) error {
	total := s.state.TotalStages(groupKey, campaignID)
	if stage < 1 || stage > total {
		return appErrors.NewInvalidStage(stage, total)
	}
	if s.state.StageStartTime(groupKey, campaignID, stage).Lapsed() {
		return ErrStageLapsed
	}

	startAt := s.resolveStart(groupKey, campaignID, stage)
	ref := model.StageRef{GroupKey: groupKey, CampaignID: campaignID, Stage: stage}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return fmt.Errorf("stage scheduler stopped")
	}
	for key, existing := range s.jobs {
		if key.groupKey == groupKey && key.campaignID == campaignID {
			close(existing.cancel)
			delete(s.jobs, key)
			s.log.WithField("ref", ref.String()).Debug("replacing live job for campaign")
		}
	}
	j := &job{
		key:    slotKey{groupKey: groupKey, campaignID: campaignID, stage: stage},
		cancel: make(chan struct{}),
	}
	s.jobs[j.key] = j
	s.wg.Add(1)
	s.mu.Unlock()

	go s.runJob(j, startAt, action, ref)

	if err := s.state.MarkStageInProgress(groupKey, campaignID, stage); err != nil {
		s.log.WithError(err).WithField("ref", ref.String()).Warn("⚠️ could not mark stage in progress")
	}
	s.log.WithFields(logrus.Fields{
		"ref":      ref.String(),
		"start_at": startAt.Format(time.RFC3339),
		"retry":    s.retry.String(),
	}).Info("⏰ stage job scheduled")
	return nil
}

// resolveStart turns the stage's configured start time into a concrete
// trigger instant, never in the past.
func (s *StageScheduler) resolveStart(groupKey, campaignID string, stage int) time.Time {
	now := time.Now()
	startTime := s.state.StageStartTime(groupKey, campaignID, stage)
	t, err := startTime.Time()
	if err != nil || !t.After(now) {
		return now.Add(s.buffer)
	}
	return t
}

// RemoveTask drops the Job in the exact (group, campaign, stage) slot.
// Idempotent: a missing Job logs a signal and returns false, never panics.
func (s *StageScheduler) RemoveTask(groupKey, campaignID string, stage int) bool {
	key := slotKey{groupKey: groupKey, campaignID: campaignID, stage: stage}

	s.mu.Lock()
	j, ok := s.jobs[key]
	if ok {
		delete(s.jobs, key)
	}
	s.mu.Unlock()

	ref := model.StageRef{GroupKey: groupKey, CampaignID: campaignID, Stage: stage}
	if !ok {
		s.log.WithField("ref", ref.String()).Warn("⚠️ no job found during removal")
		return false
	}
	close(j.cancel)
	s.log.WithField("ref", ref.String()).Debug("stage job removed")
	return true
}

// RemoveCampaignTasks drops every live Job for one campaign and returns how
// many were removed. Used when a campaign resolves or its group is evicted.
func (s *StageScheduler) RemoveCampaignTasks(groupKey, campaignID string) int {
	s.mu.Lock()
	var dropped []*job
	for key, j := range s.jobs {
		if key.groupKey == groupKey && key.campaignID == campaignID {
			dropped = append(dropped, j)
			delete(s.jobs, key)
		}
	}
	s.mu.Unlock()

	for _, j := range dropped {
		close(j.cancel)
	}
	return len(dropped)
}

// HasCampaignTask reports whether any live Job exists for the campaign.
func (s *StageScheduler) HasCampaignTask(groupKey, campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.jobs {
		if key.groupKey == groupKey && key.campaignID == campaignID {
			return true
		}
	}
	return false
}

// JobCount reports the number of live Jobs.
func (s *StageScheduler) JobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *StageScheduler) runJob(j *job, startAt time.Time, action Action, ref model.StageRef) {
	defer s.wg.Done()

	select {
	case <-s.started:
	case <-j.cancel:
		return
	case <-s.quit:
		return
	}

	timer := time.NewTimer(time.Until(startAt))
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-j.cancel:
		return
	case <-s.quit:
		return
	}
	s.fire(action, ref)

	ticker := time.NewTicker(s.retry)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.fire(action, ref)
		case <-j.cancel:
			return
		case <-s.quit:
			return
		}
	}
}

// fire snapshots the stage and invokes the action. A panicking action must
// not take down the job runner.
func (s *StageScheduler) fire(action Action, ref model.StageRef) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("ref", ref.String()).Errorf("❌ action panicked: %v", r)
		}
	}()

	contacts := s.state.StageContacts(ref.GroupKey, ref.CampaignID, ref.Stage)
	if contacts == nil {
		s.log.WithField("ref", ref.String()).Warn("⚠️ job fired for absent stage state")
		return
	}
	template := s.state.StageTemplate(ref.GroupKey, ref.CampaignID, ref.Stage)
	action.Execute(contacts, template, ref)
}
