package controller

import (
	"net/http"

	"github.com/manta-network/stakingx/pkg/db/entities"
	"go.uber.org/zap"
)

// HandleCompact merges replaced and tombstoned rows of a network's tables.
// Query parameters:
//   - entity: restrict to one entity (repeatable); all entities when absent
func (c *Controller) HandleCompact(w http.ResponseWriter, r *http.Request) {
	network, ok := c.network(w, r)
	if !ok {
		return
	}

	var only []entities.Entity
	for _, name := range r.URL.Query()["entity"] {
		entity, err := entities.FromString(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		only = append(only, entity)
	}

	store, err := c.App.LoadStore(r.Context(), network)
	if err != nil {
		c.App.Logger.Error("Failed to open network store", zap.String("network", network), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	compacted, err := store.Compact(r.Context(), only...)
	if err != nil {
		c.App.Logger.Error("Compaction failed",
			zap.String("network", network),
			zap.Stringers("compacted", compacted),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, "compaction failed")
		return
	}

	c.App.Logger.Info("Compacted network tables",
		zap.String("network", network),
		zap.Stringers("entities", compacted),
		zap.String("user", c.currentUser(r)))
	writeJSON(w, http.StatusOK, map[string]interface{}{"network": network, "compacted": compacted})
}
