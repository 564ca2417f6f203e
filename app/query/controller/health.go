package controller

import (
	"net/http"
	"sort"
)

type networkHealth struct {
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HandleHealth reports database reachability and the live height of every served network.
func (c *Controller) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	names := make([]string, 0, len(c.App.Networks))
	for name := range c.App.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	healthy := true
	networks := make(map[string]networkHealth, len(names))
	for _, name := range names {
		store, ok := c.App.LoadStore(ctx, name)
		if !ok {
			healthy = false
			networks[name] = networkHealth{Status: "errored", Error: "database connection error"}
			continue
		}
		live, err := store.GetLiveChainState(ctx)
		switch {
		case err != nil:
			healthy = false
			networks[name] = networkHealth{Status: "errored", Error: "database query error"}
		case live == nil:
			networks[name] = networkHealth{Status: "syncing"}
		default:
			networks[name] = networkHealth{Status: "ok", BlockNumber: live.BlockNumber}
		}
	}

	resp := map[string]interface{}{"networks": networks}
	if c.App.RedisClient != nil {
		if err := c.App.RedisClient.Health(ctx); err != nil {
			resp["redis"] = "errored"
		} else {
			resp["redis"] = "ok"
		}
	}

	if !healthy {
		resp["status"] = "errored"
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	resp["status"] = "ok"
	writeJSON(w, http.StatusOK, resp)
}
