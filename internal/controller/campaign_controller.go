// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/dripleopard-backend/internal/errors"
	"github.com/unclebandit/dripleopard-backend/internal/model"
)

// ManagerInterface is the slice of the campaign manager the controller reads
// from and reports into.
type ManagerInterface interface {
	GroupKeys() []string
	CampaignIDs(groupKey string) []string
	GroupSnapshot(groupKey string) (model.CampaignGroup, error)
	CampaignSnapshot(groupKey, campaignID string) (*model.Campaign, error)
	UpdateContactProgress(groupKey, campaignID string, stage int, address, progress string) error
}

// Waker nudges the control loop after a progress update so stage completion
// is noticed before the next poll tick.
type Waker interface {
	Wake()
}

// DeliveryLogInterface is the read side of the delivery audit log. Only wired
// when the Postgres backend is configured.
type DeliveryLogInterface interface {
	ListByCampaign(groupKey, campaignID string, limit int) ([]*model.DeliveryRecord, error)
	CountByStatus(groupKey, campaignID string) (map[string]int, error)
}

type CampaignController struct {
	Manager     ManagerInterface
	Waker       Waker
	DeliveryLog DeliveryLogInterface
	Log         *logrus.Entry
}

// ListGroups returns every group key with its campaign count.
func (c *CampaignController) ListGroups(w http.ResponseWriter, r *http.Request) {
	type groupSummary struct {
		GroupKey  string `json:"group_key"`
		Campaigns int    `json:"campaigns"`
	}

	keys := c.Manager.GroupKeys()
	summaries := make([]groupSummary, 0, len(keys))
	for _, key := range keys {
		summaries = append(summaries, groupSummary{
			GroupKey:  key,
			Campaigns: len(c.Manager.CampaignIDs(key)),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": summaries})
}

// GetGroup returns a deep-copied snapshot of one campaign group.
func (c *CampaignController) GetGroup(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	group, err := c.Manager.GroupSnapshot(key)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, "group not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch group: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(group)
}

// GetCampaign returns a deep-copied snapshot of one campaign.
func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	id := chi.URLParam(r, "id")

	campaign, err := c.Manager.CampaignSnapshot(key, id)
	if err != nil {
		if appErrors.IsNotFound(err) {
			http.Error(w, "campaign not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to fetch campaign: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

// UpdateContactProgress is the delivery outcome callback. The worker posts the
// new progress value for one contact in one stage.
func (c *CampaignController) UpdateContactProgress(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	id := chi.URLParam(r, "id")

	stage, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		http.Error(w, "invalid stage number", http.StatusBadRequest)
		return
	}

	address := chi.URLParam(r, "address")
	if unescaped, err := url.PathUnescape(address); err == nil {
		address = unescaped
	}

	var body struct {
		Progress string `json:"progress"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	if err := c.Manager.UpdateContactProgress(key, id, stage, address, body.Progress); err != nil {
		var invalid *appErrors.ErrInvalidStatus
		switch {
		case appErrors.IsNotFound(err):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.As(err, &invalid):
			http.Error(w, err.Error(), http.StatusBadRequest)
		default:
			c.Log.WithError(err).Error("❌ progress update failed")
			http.Error(w, "failed to update progress: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if c.Waker != nil {
		c.Waker.Wake()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ListDeliveries returns recent delivery attempts for one campaign from the
// audit log, newest first, with per-status totals.
func (c *CampaignController) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	if c.DeliveryLog == nil {
		http.Error(w, "delivery log requires the postgres backend", http.StatusNotImplemented)
		return
	}

	key := chi.URLParam(r, "key")
	id := chi.URLParam(r, "id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := c.DeliveryLog.ListByCampaign(key, id, limit)
	if err != nil {
		c.Log.WithError(err).Error("❌ delivery log read failed")
		http.Error(w, "failed to fetch deliveries: "+err.Error(), http.StatusInternalServerError)
		return
	}
	counts, err := c.DeliveryLog.CountByStatus(key, id)
	if err != nil {
		c.Log.WithError(err).Error("❌ delivery log tally failed")
		http.Error(w, "failed to fetch deliveries: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"group_key":   key,
		"campaign_id": id,
		"totals":      counts,
		"data":        records,
	})
}
