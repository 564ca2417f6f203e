package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/manta-network/stakingx/app/query/types"
)

type Controller struct {
	App *types.App
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	return &Controller{
		App: app,
	}
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)
	r.HandleFunc("/ws/rounds", c.HandleWebSocket).Methods(http.MethodGet)

	n := r.PathPrefix("/networks/{network}").Subrouter()
	n.HandleFunc("/collators", c.HandleCollators).Methods(http.MethodGet)
	n.HandleFunc("/collators/{address}", c.HandleCollator).Methods(http.MethodGet)
	n.HandleFunc("/collators/{address}/rounds", c.HandleCollatorRounds).Methods(http.MethodGet)
	n.HandleFunc("/delegators/{address}", c.HandleDelegator).Methods(http.MethodGet)
	n.HandleFunc("/chain-state/live", c.HandleLiveChainState).Methods(http.MethodGet)
	n.HandleFunc("/chain-state", c.HandleChainStates).Methods(http.MethodGet)
	n.HandleFunc("/rounds/{round}", c.HandleRound).Methods(http.MethodGet)

	return r, nil
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type pagedResponse[T any] struct {
	Data       []T     `json:"data"`
	Limit      int     `json:"limit"`
	NextCursor *uint64 `json:"next_cursor,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
