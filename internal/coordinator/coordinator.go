// internal/coordinator/coordinator.go
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
	"github.com/unclebandit/dripleopard-backend/internal/scheduler"
)

// ManagerInterface is the slice of the campaign manager the coordinator
// drives.
type ManagerInterface interface {
	AddCampaignGroup(groupKey string, group model.CampaignGroup) error
	RemoveCampaignGroup(groupKey string) error
	IsStageComplete(groupKey, campaignID string, stage int) (bool, error)
	IsCampaignComplete(groupKey, campaignID string) (bool, error)
	CurrentStageNumber(groupKey, campaignID string) int
	CampaignStatus(groupKey, campaignID string) string
	GroupCompleted(groupKey string) bool
	GroupKeys() []string
	CampaignIDs(groupKey string) []string
}

// SchedulerInterface is the slice of the stage scheduler the coordinator
// drives.
type SchedulerInterface interface {
	ScheduleCampaign(groupKey, campaignID string, action scheduler.Action) error
	ScheduleNextStage(groupKey, campaignID string, action scheduler.Action) error
	AddTask(groupKey, campaignID string, stage int, action scheduler.Action) error
	RemoveCampaignTasks(groupKey, campaignID string) int
	HasCampaignTask(groupKey, campaignID string) bool
}

// Coordinator bridges group discovery into the campaign manager and the
// stage scheduler, and drives the periodic re-evaluation loop that advances
// stages, resolves campaigns and evicts finished groups.
type Coordinator struct {
	manager ManagerInterface
	sched   SchedulerInterface
	action  scheduler.Action
	poll    time.Duration
	wake    chan struct{}
	log     *logrus.Entry
}

func New(manager ManagerInterface, sched SchedulerInterface, action scheduler.Action, poll time.Duration, log *logrus.Entry) *Coordinator {
	return &Coordinator{
		manager: manager,
		sched:   sched,
		action:  action,
		poll:    poll,
		wake:    make(chan struct{}, 1),
		log:     log,
	}
}

// OnGroupDiscovered installs a freshly parsed group and schedules every
// campaign in it. A failing campaign is logged and skipped; its siblings
// still get scheduled. Wakes the control loop when done.
func (c *Coordinator) OnGroupDiscovered(groupKey string, group model.CampaignGroup) {
	if err := c.manager.AddCampaignGroup(groupKey, group); err != nil {
		if appErrors.IsConflict(err) {
			c.log.WithError(err).WithField("group", groupKey).Warn("⚠️ group rejected")
		} else {
			c.log.WithError(err).WithField("group", groupKey).Error("❌ group add failed")
		}
		return
	}

	for _, campaignID := range c.manager.CampaignIDs(groupKey) {
		err := c.sched.ScheduleCampaign(groupKey, campaignID, c.action)
		if errors.Is(err, scheduler.ErrStageLapsed) {
			// every stage lapsed before ingestion; the next pass resolves it
			c.log.WithFields(logrus.Fields{
				"group":    groupKey,
				"campaign": campaignID,
			}).Info("campaign ingested fully lapsed, nothing to schedule")
			continue
		}
		if err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"group":    groupKey,
				"campaign": campaignID,
			}).Warn("⚠️ campaign skipped at ingestion")
			continue
		}
	}
	c.Wake()
}

// Wake nudges the control loop to evaluate ahead of its next tick. The
// channel holds one pending wakeup, so a signal sent before the loop starts
// waiting is not lost.
func (c *Coordinator) Wake() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Run drives the control loop until ctx is canceled, waking on signal or on
// the poll interval, whichever comes first.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()
	c.log.WithField("poll", c.poll.String()).Info("🔁 control loop running")

	for {
		select {
		case <-ctx.Done():
			c.log.Info("control loop stopped")
			return
		case <-ticker.C:
		case <-c.wake:
		}
		c.EvaluateOnce()
	}
}

// EvaluateOnce runs a single re-evaluation pass over every known campaign:
// start what never started, re-seed jobs lost to a restart, advance stages
// whose contacts are all terminal, resolve finished campaigns and evict
// finished groups.
func (c *Coordinator) EvaluateOnce() {
	defer func() {
		if r := recover(); r != nil {
			c.log.Errorf("❌ evaluation pass panicked: %v", r)
		}
	}()

	for _, groupKey := range c.manager.GroupKeys() {
		for _, campaignID := range c.manager.CampaignIDs(groupKey) {
			c.evaluateCampaign(groupKey, campaignID)
		}
		if c.manager.GroupCompleted(groupKey) {
			if err := c.manager.RemoveCampaignGroup(groupKey); err != nil {
				c.log.WithError(err).WithField("group", groupKey).Warn("⚠️ group eviction failed")
			}
		}
	}
}

func (c *Coordinator) evaluateCampaign(groupKey, campaignID string) {
	fields := logrus.Fields{"group": groupKey, "campaign": campaignID}

	if c.manager.CampaignStatus(groupKey, campaignID) == model.StatusNotStarted {
		// never scheduled (restored state or an earlier scheduling failure)
		err := c.sched.ScheduleCampaign(groupKey, campaignID, c.action)
		if err != nil && !appErrors.IsBenign(err) && !errors.Is(err, scheduler.ErrStageLapsed) {
			c.log.WithError(err).WithFields(fields).Warn("⚠️ deferred campaign start failed")
		}
		return
	}

	current := c.manager.CurrentStageNumber(groupKey, campaignID)
	if current == 0 {
		return
	}

	complete, err := c.manager.IsStageComplete(groupKey, campaignID, current)
	if err != nil {
		c.log.WithError(err).WithFields(fields).Warn("⚠️ stage completion check failed")
		return
	}
	if !complete {
		if !c.sched.HasCampaignTask(groupKey, campaignID) {
			// job lost to a restart; re-seed it
			if err := c.sched.AddTask(groupKey, campaignID, current, c.action); err != nil {
				c.log.WithError(err).WithFields(fields).Warn("⚠️ job re-seed failed")
			}
		}
		return
	}

	resolved, err := c.manager.IsCampaignComplete(groupKey, campaignID)
	if err != nil {
		c.log.WithError(err).WithFields(fields).Warn("⚠️ campaign completion check failed")
		return
	}
	if resolved {
		c.sched.RemoveCampaignTasks(groupKey, campaignID)
		return
	}

	if err := c.sched.ScheduleNextStage(groupKey, campaignID, c.action); err != nil {
		if errors.Is(err, scheduler.ErrCampaignExhausted) {
			c.log.WithFields(fields).Debug("campaign exhausted")
			return
		}
		c.log.WithError(err).WithFields(fields).Warn("⚠️ next stage scheduling failed")
	}
}
