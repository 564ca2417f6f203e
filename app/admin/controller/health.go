package controller

import (
	"net/http"
)

// HandleHealth reports liveness only; network state lives behind /api/networks.
func (c *Controller) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
