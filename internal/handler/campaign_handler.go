// internal/handler/campaign_handler.go
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// SnapshotSource is the read-side of the campaign manager the stats handler
// consumes.
type SnapshotSource interface {
	CampaignSnapshot(groupKey, campaignID string) (*model.Campaign, error)
}

// WatchState reports whether folder discovery is live.
type WatchState interface {
	IsWatching() bool
}

// JobState reports how many stage jobs are currently scheduled.
type JobState interface {
	JobCount() int
}

// CampaignHandler holds the dependencies for campaign reporting endpoints.
type CampaignHandler struct {
	Source  SnapshotSource
	Watcher WatchState
	Jobs    JobState
	Log     *logrus.Entry
}

// NewCampaignHandler creates a new CampaignHandler.
func NewCampaignHandler(source SnapshotSource, watcher WatchState, jobs JobState, log *logrus.Entry) *CampaignHandler {
	return &CampaignHandler{Source: source, Watcher: watcher, Jobs: jobs, Log: log}
}

type stageStats struct {
	Sequence  int            `json:"sequence"`
	Status    string         `json:"status"`
	StartTime string         `json:"start_time"`
	Interval  string         `json:"interval"`
	Contacts  int            `json:"contacts"`
	Progress  map[string]int `json:"progress"`
}

// GetCampaignStatsHandler returns per-stage progress tallies for one campaign.
func (h *CampaignHandler) GetCampaignStatsHandler(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	id := chi.URLParam(r, "id")

	campaign, err := h.Source.CampaignSnapshot(key, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, "campaign not found", http.StatusNotFound)
			return
		}
		h.Log.WithError(err).Error("❌ error fetching campaign stats")
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	stages := make([]stageStats, 0, len(campaign.Stages))
	for _, stage := range campaign.Stages {
		tally := make(map[string]int)
		for _, contact := range stage.Contacts {
			tally[contact.Progress]++
		}
		stages = append(stages, stageStats{
			Sequence:  stage.Sequence,
			Status:    stage.Status,
			StartTime: string(stage.StartTime),
			Interval:  stage.Interval.String(),
			Contacts:  len(stage.Contacts),
			Progress:  tally,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"group_key":   key,
		"campaign_id": id,
		"status":      campaign.Status,
		"stages":      stages,
	})
}

// HealthzHandler reports process liveness plus watcher and job state.
func (h *CampaignHandler) HealthzHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if h.Watcher != nil {
		resp["watching"] = h.Watcher.IsWatching()
	}
	if h.Jobs != nil {
		resp["active_jobs"] = h.Jobs.JobCount()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
