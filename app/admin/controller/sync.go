package controller

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/manta-network/stakingx/app/admin/types"
	"github.com/manta-network/stakingx/pkg/temporal"
	"go.uber.org/zap"
)

// HandleNetworks returns the schedule and live state of every managed network.
func (c *Controller) HandleNetworks(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	out := make([]types.NetworkStatus, 0, len(c.App.Networks))
	for _, network := range c.App.Networks {
		out = append(out, c.App.Status(r.Context(), network, now))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSyncStatus returns the sync schedule of one network.
func (c *Controller) HandleSyncStatus(w http.ResponseWriter, r *http.Request) {
	network, ok := c.network(w, r)
	if !ok {
		return
	}
	status, err := c.App.Schedules.DescribeSync(r.Context(), network)
	if err != nil {
		c.scheduleError(w, network, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleTriggerSync starts a sync immediately unless one is running.
func (c *Controller) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	network, ok := c.network(w, r)
	if !ok {
		return
	}
	if err := c.App.Schedules.TriggerSync(r.Context(), network); err != nil {
		c.scheduleError(w, network, err)
		return
	}
	c.App.Logger.Info("Sync triggered", zap.String("network", network), zap.String("user", c.currentUser(r)))
	writeJSON(w, http.StatusAccepted, map[string]string{"network": network, "action": "trigger"})
}

// HandlePauseSync pauses the schedule. Body: {"reason": "..."} (optional).
func (c *Controller) HandlePauseSync(w http.ResponseWriter, r *http.Request) {
	c.setPaused(w, r, true)
}

// HandleUnpauseSync resumes the schedule. Body: {"reason": "..."} (optional).
func (c *Controller) HandleUnpauseSync(w http.ResponseWriter, r *http.Request) {
	c.setPaused(w, r, false)
}

func (c *Controller) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	network, ok := c.network(w, r)
	if !ok {
		return
	}
	var in struct {
		Reason string `json:"reason"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
	}

	action := "unpause"
	if paused {
		action = "pause"
	}
	note := fmt.Sprintf("%s by %s", action, c.currentUser(r))
	if in.Reason != "" {
		note += ": " + in.Reason
	}

	var err error
	if paused {
		err = c.App.Schedules.PauseSync(r.Context(), network, note)
	} else {
		err = c.App.Schedules.UnpauseSync(r.Context(), network, note)
	}
	if err != nil {
		c.scheduleError(w, network, err)
		return
	}
	c.App.Logger.Info("Sync schedule updated", zap.String("network", network), zap.String("note", note))
	writeJSON(w, http.StatusOK, map[string]string{"network": network, "action": action, "note": note})
}

func (c *Controller) network(w http.ResponseWriter, r *http.Request) (string, bool) {
	network := mux.Vars(r)["network"]
	if !c.App.Serves(network) {
		writeError(w, http.StatusNotFound, "network not managed")
		return "", false
	}
	return network, true
}

func (c *Controller) scheduleError(w http.ResponseWriter, network string, err error) {
	if errors.Is(err, temporal.ErrSyncScheduleNotFound) {
		writeError(w, http.StatusNotFound, "sync schedule not found")
		return
	}
	c.App.Logger.Error("Schedule operation failed", zap.String("network", network), zap.Error(err))
	writeError(w, http.StatusBadGateway, "temporal unavailable")
}
