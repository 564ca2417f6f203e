package controller

import (
	"net/http"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/gorilla/mux"
	"github.com/manta-network/stakingx/app/admin/types"
	"github.com/manta-network/stakingx/pkg/utils"
)

type Controller struct {
	App        *types.App
	AdminToken string
	Users      map[string]types.User
	JWTSecret  []byte
}

// NewController returns a new controller.
func NewController(app *types.App) *Controller {
	adminToken := utils.Env("ADMIN_TOKEN", "devtoken")
	adminUser := utils.Env("ADMIN_USER", "admin")
	adminUsersJSON := utils.Env("ADMIN_USERS", "")
	adminPass := utils.Env("ADMIN_PASSWORD", "admin")
	jwtSecret := []byte(utils.Env("SESSION_SECRET", "change-me-please"))

	phash, err := utils.HashOrRead(adminPass)
	if err != nil {
		app.Logger.Fatal("Unable to hash admin password")
	}
	users := map[string]types.User{}
	users[adminUser] = types.User{Username: adminUser, Hash: phash, Role: "admin"}
	if adminUsersJSON != "" {
		if err := json.Unmarshal([]byte(adminUsersJSON), &users); err != nil {
			app.Logger.Warn("Ignoring malformed ADMIN_USERS")
		}
	}

	return &Controller{
		App:        app,
		AdminToken: adminToken,
		Users:      users,
		JWTSecret:  jwtSecret,
	}
}

// WithCORS is a middleware that adds CORS headers to the response.
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Echo the origin back so the session cookie is accepted cross-origin
		if origin := r.Header.Get("Origin"); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
		} else {
			w.Header().Set("Access-Control-Allow-Origin", "*")
		}
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", http.MethodGet+", "+http.MethodPost+", "+http.MethodOptions)

		// Fast-path the preflight
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter returns a new router with all the routes defined in this file.
func (c *Controller) NewRouter() (*mux.Router, error) {
	r := mux.NewRouter()

	r.Handle("/api/health", http.HandlerFunc(c.HandleHealth)).Methods(http.MethodGet)

	r.HandleFunc("/api/auth/login", c.HandleAdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/logout", c.HandleAdminLogout).Methods(http.MethodPost)

	// Read-only views for any logged-in operator
	r.Handle("/api/networks", c.RequireAuth(http.HandlerFunc(c.HandleNetworks))).Methods(http.MethodGet)
	r.Handle("/api/networks/{network}/sync", c.RequireAuth(http.HandlerFunc(c.HandleSyncStatus))).Methods(http.MethodGet)

	// Schedule control
	r.Handle("/api/networks/{network}/sync/trigger", c.RequireAdmin(http.HandlerFunc(c.HandleTriggerSync))).Methods(http.MethodPost)
	r.Handle("/api/networks/{network}/sync/pause", c.RequireAdmin(http.HandlerFunc(c.HandlePauseSync))).Methods(http.MethodPost)
	r.Handle("/api/networks/{network}/sync/unpause", c.RequireAdmin(http.HandlerFunc(c.HandleUnpauseSync))).Methods(http.MethodPost)

	r.Handle("/api/networks/{network}/compact", c.RequireAdmin(http.HandlerFunc(c.HandleCompact))).Methods(http.MethodPost)

	return r, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
