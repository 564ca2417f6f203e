package controller

import (
	"net/http"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/manta-network/stakingx/pkg/utils"
	"go.uber.org/zap"
)

// HandleAdminLogin checks the credentials and issues a session cookie.
func (c *Controller) HandleAdminLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	u, ok := c.Users[in.Username]
	if !ok || !utils.CheckPassword(u.Hash, in.Password) {
		c.App.Logger.Info("Rejected admin login", zap.String("user", in.Username))
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := c.IssueSession(w, u.Username, u.Role); err != nil {
		c.App.Logger.Error("Failed to sign session", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ok": "1"})
}

// HandleAdminLogout clears the session cookie.
func (c *Controller) HandleAdminLogout(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
	w.WriteHeader(http.StatusNoContent)
}
