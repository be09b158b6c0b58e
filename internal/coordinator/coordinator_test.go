package coordinator_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/dripleopard-backend/internal/coordinator"
	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
	"github.com/unclebandit/dripleopard-backend/internal/scheduler"
)

// --- Mocks ---

func campaignKey(groupKey, campaignID string) string {
	return groupKey + "/" + campaignID
}

type mockManager struct {
	mu            sync.Mutex
	groups        map[string][]string
	status        map[string]string
	current       map[string]int
	stageComplete map[string]bool
	campaignDone  map[string]bool
	groupDone     map[string]bool
	addErr        error
	panicKeys     bool

	added       []string
	evicted     []string
	stageChecks int
	keyCalls    int
}

func newMockManager() *mockManager {
	return &mockManager{
		groups:        map[string][]string{},
		status:        map[string]string{},
		current:       map[string]int{},
		stageComplete: map[string]bool{},
		campaignDone:  map[string]bool{},
		groupDone:     map[string]bool{},
	}
}

func (m *mockManager) AddCampaignGroup(groupKey string, group model.CampaignGroup) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addErr != nil {
		return m.addErr
	}
	m.added = append(m.added, groupKey)
	var ids []string
	for id := range group {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	m.groups[groupKey] = ids
	return nil
}

func (m *mockManager) RemoveCampaignGroup(groupKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evicted = append(m.evicted, groupKey)
	delete(m.groups, groupKey)
	return nil
}

func (m *mockManager) IsStageComplete(groupKey, campaignID string, stage int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stageChecks++
	return m.stageComplete[campaignKey(groupKey, campaignID)], nil
}

func (m *mockManager) IsCampaignComplete(groupKey, campaignID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.campaignDone[campaignKey(groupKey, campaignID)], nil
}

func (m *mockManager) CurrentStageNumber(groupKey, campaignID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current[campaignKey(groupKey, campaignID)]
}

func (m *mockManager) CampaignStatus(groupKey, campaignID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[campaignKey(groupKey, campaignID)]
}

func (m *mockManager) GroupCompleted(groupKey string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groupDone[groupKey]
}

func (m *mockManager) GroupKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicKeys {
		m.panicKeys = false
		panic("state corrupted")
	}
	m.keyCalls++
	keys := make([]string, 0, len(m.groups))
	for key := range m.groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *mockManager) CampaignIDs(groupKey string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.groups[groupKey]...)
}

func (m *mockManager) evaluations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keyCalls
}

type mockScheduler struct {
	mu          sync.Mutex
	scheduleErr map[string]error
	nextErr     map[string]error
	addTaskErr  error
	hasTask     map[string]bool

	scheduled  []string
	nextStaged []string
	addTasks   []string
	dropped    []string
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{
		scheduleErr: map[string]error{},
		nextErr:     map[string]error{},
		hasTask:     map[string]bool{},
	}
}

func (s *mockScheduler) ScheduleCampaign(groupKey, campaignID string, action scheduler.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := campaignKey(groupKey, campaignID)
	if err := s.scheduleErr[key]; err != nil {
		return err
	}
	s.scheduled = append(s.scheduled, key)
	return nil
}

func (s *mockScheduler) ScheduleNextStage(groupKey, campaignID string, action scheduler.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := campaignKey(groupKey, campaignID)
	if err := s.nextErr[key]; err != nil {
		return err
	}
	s.nextStaged = append(s.nextStaged, key)
	return nil
}

func (s *mockScheduler) AddTask(groupKey, campaignID string, stage int, action scheduler.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addTaskErr != nil {
		return s.addTaskErr
	}
	s.addTasks = append(s.addTasks, campaignKey(groupKey, campaignID))
	return nil
}

func (s *mockScheduler) RemoveCampaignTasks(groupKey, campaignID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped = append(s.dropped, campaignKey(groupKey, campaignID))
	return 1
}

func (s *mockScheduler) HasCampaignTask(groupKey, campaignID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasTask[campaignKey(groupKey, campaignID)]
}

// --- Fixtures ---

func testLog() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log.WithField("test", "coordinator")
}

func discoveredGroup(ids ...string) model.CampaignGroup {
	group := model.CampaignGroup{}
	for _, id := range ids {
		group[id] = &model.Campaign{}
	}
	return group
}

// seedCampaign wires one live campaign straight into the mocks, bypassing
// discovery.
func seedCampaign(m *mockManager, groupKey, campaignID, status string, stage int) {
	key := campaignKey(groupKey, campaignID)
	m.groups[groupKey] = append(m.groups[groupKey], campaignID)
	m.status[key] = status
	m.current[key] = stage
}

// --- Tests ---

func TestOnGroupDiscoveredSchedulesEveryCampaign(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.OnGroupDiscovered("2026-09-01", discoveredGroup("launch", "renewal"))

	assert.Equal(t, []string{"2026-09-01"}, manager.added)
	assert.Equal(t, []string{"2026-09-01/launch", "2026-09-01/renewal"}, sched.scheduled)
}

func TestOnGroupDiscoveredRejectedGroupIsNotScheduled(t *testing.T) {
	manager := newMockManager()
	manager.addErr = appErrors.NewDuplicateGroup("2026-09-01")
	sched := newMockScheduler()
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.OnGroupDiscovered("2026-09-01", discoveredGroup("launch"))

	assert.Empty(t, sched.scheduled)
}

func TestOnGroupDiscoveredSkipsFailingSibling(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	sched.scheduleErr["2026-09-01/launch"] = errors.New("scheduler on fire")
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.OnGroupDiscovered("2026-09-01", discoveredGroup("launch", "renewal"))

	assert.Equal(t, []string{"2026-09-01/renewal"}, sched.scheduled,
		"one broken campaign must not block its siblings")
}

func TestOnGroupDiscoveredTreatsFullyLapsedAsBenign(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	sched.scheduleErr["2026-09-01/launch"] = scheduler.ErrStageLapsed
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.OnGroupDiscovered("2026-09-01", discoveredGroup("launch", "renewal"))

	assert.Equal(t, []string{"2026-09-01/renewal"}, sched.scheduled)
}

func TestEvaluateOnceStartsDeferredCampaign(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	seedCampaign(manager, "2026-09-01", "launch", model.StatusNotStarted, 1)
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.EvaluateOnce()

	assert.Equal(t, []string{"2026-09-01/launch"}, sched.scheduled)
	assert.Zero(t, manager.stageChecks, "a deferred start ends the pass for that campaign")
}

func TestEvaluateOnceReseedsLostJob(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	seedCampaign(manager, "2026-09-01", "launch", model.StatusInProgress, 2)
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.EvaluateOnce()
	assert.Equal(t, []string{"2026-09-01/launch"}, sched.addTasks, "no live job, must re-seed")

	sched.hasTask["2026-09-01/launch"] = true
	coord.EvaluateOnce()
	assert.Len(t, sched.addTasks, 1, "live job, nothing to re-seed")
}

func TestEvaluateOnceAdvancesCompletedStage(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	seedCampaign(manager, "2026-09-01", "launch", model.StatusInProgress, 1)
	manager.stageComplete["2026-09-01/launch"] = true
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.EvaluateOnce()

	assert.Equal(t, []string{"2026-09-01/launch"}, sched.nextStaged)
	assert.Empty(t, sched.dropped)
}

func TestEvaluateOnceResolvesFinishedCampaign(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	seedCampaign(manager, "2026-09-01", "launch", model.StatusInProgress, 2)
	manager.stageComplete["2026-09-01/launch"] = true
	manager.campaignDone["2026-09-01/launch"] = true
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.EvaluateOnce()

	assert.Equal(t, []string{"2026-09-01/launch"}, sched.dropped)
	assert.Empty(t, sched.nextStaged, "a finished campaign never advances")
}

func TestEvaluateOnceEvictsCompletedGroup(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	manager.groups["2026-09-01"] = nil
	manager.groupDone["2026-09-01"] = true
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.EvaluateOnce()

	assert.Equal(t, []string{"2026-09-01"}, manager.evicted)
}

func TestEvaluateOnceToleratesExhaustion(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	seedCampaign(manager, "2026-09-01", "launch", model.StatusInProgress, 1)
	manager.stageComplete["2026-09-01/launch"] = true
	sched.nextErr["2026-09-01/launch"] = scheduler.ErrCampaignExhausted
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.EvaluateOnce()

	assert.Empty(t, sched.nextStaged)
	assert.Empty(t, manager.evicted, "eviction waits for the manager to report the group done")
}

func TestEvaluateOnceSkipsCampaignWithoutStageState(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	seedCampaign(manager, "2026-09-01", "launch", model.StatusInProgress, 0)
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	coord.EvaluateOnce()

	assert.Zero(t, manager.stageChecks)
	assert.Empty(t, sched.addTasks)
}

func TestEvaluateOnceRecoversFromPanic(t *testing.T) {
	manager := newMockManager()
	manager.panicKeys = true
	sched := newMockScheduler()
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	assert.NotPanics(t, func() { coord.EvaluateOnce() })
	coord.EvaluateOnce() // the loop keeps working afterwards
	assert.Equal(t, 1, manager.evaluations())
}

func TestWakeNeverBlocks(t *testing.T) {
	coord := coordinator.New(newMockManager(), newMockScheduler(), nil, time.Hour, testLog())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			coord.Wake()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wake blocked with no loop draining it")
	}
}

func TestRunEvaluatesOnWakeAndStopsOnCancel(t *testing.T) {
	manager := newMockManager()
	sched := newMockScheduler()
	coord := coordinator.New(manager, sched, nil, time.Hour, testLog())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		coord.Run(ctx)
		close(stopped)
	}()

	coord.Wake()
	require.Eventually(t, func() bool { return manager.evaluations() >= 1 },
		2*time.Second, 10*time.Millisecond, "wake must trigger an evaluation pass ahead of the tick")

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("control loop did not stop on context cancellation")
	}
}
