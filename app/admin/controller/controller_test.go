package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4/json"
	"github.com/manta-network/stakingx/app/admin/types"
	"github.com/manta-network/stakingx/pkg/db/entities"
	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	"github.com/manta-network/stakingx/pkg/temporal"
	"github.com/manta-network/stakingx/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeSchedules struct {
	status    map[string]*temporal.SyncStatus
	err       error
	triggered []string
	notes     []string
	paused    map[string]bool
}

func (f *fakeSchedules) EnsureNetworkSchedule(context.Context, string, time.Duration, ...interface{}) error {
	return f.err
}

func (f *fakeSchedules) DescribeSync(_ context.Context, network string) (*temporal.SyncStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	if s, ok := f.status[network]; ok {
		return s, nil
	}
	return nil, fmt.Errorf("%s: %w", network, temporal.ErrSyncScheduleNotFound)
}

func (f *fakeSchedules) TriggerSync(_ context.Context, network string) error {
	if f.err != nil {
		return f.err
	}
	f.triggered = append(f.triggered, network)
	return nil
}

func (f *fakeSchedules) PauseSync(_ context.Context, network, note string) error {
	if f.err != nil {
		return f.err
	}
	f.paused[network] = true
	f.notes = append(f.notes, note)
	return nil
}

func (f *fakeSchedules) UnpauseSync(_ context.Context, network, note string) error {
	if f.err != nil {
		return f.err
	}
	f.paused[network] = false
	f.notes = append(f.notes, note)
	return nil
}

func newTestController(t *testing.T) (*Controller, *fakeSchedules, http.Handler) {
	t.Setenv("ADMIN_TOKEN", "test-token")
	t.Setenv("ADMIN_USER", "ops")
	t.Setenv("ADMIN_PASSWORD", "hunter2")
	t.Setenv("SESSION_SECRET", "test-secret")

	schedules := &fakeSchedules{
		status: map[string]*temporal.SyncStatus{
			"calamari": {Network: "calamari", ScheduleID: "sync:calamari"},
		},
		paused: map[string]bool{},
	}
	app := &types.App{
		Networks:  []string{"calamari"},
		Stores:    xsync.NewMap[string, stakingstore.Store](),
		Schedules: schedules,
		NewStore: func(context.Context, string) (stakingstore.Store, error) {
			return nil, errors.New("clickhouse unreachable")
		},
		Logger: zaptest.NewLogger(t),
	}

	c := NewController(app)
	router, err := c.NewRouter()
	require.NoError(t, err)
	return c, schedules, WithCORS(router)
}

func do(t *testing.T, h http.Handler, method, path, body string, auth func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if auth != nil {
		auth(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(cookie *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(cookie) }
}

func login(t *testing.T, h http.Handler, user, password string) *http.Cookie {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/auth/login", fmt.Sprintf(`{"username":%q,"password":%q}`, user, password), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookie {
			return cookie
		}
	}
	t.Fatal("no session cookie issued")
	return nil
}

func TestHandleHealth(t *testing.T) {
	_, _, h := newTestController(t)
	rec := do(t, h, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin(t *testing.T) {
	_, _, h := newTestController(t)

	rec := do(t, h, http.MethodPost, "/api/auth/login", `{"username":"ops","password":"wrong"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/login", `{"username":"nobody","password":"hunter2"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/auth/login", `not json`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	cookie := login(t, h, "ops", "hunter2")
	rec = do(t, h, http.MethodGet, "/api/networks/calamari/sync", "", withCookie(cookie))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireAuth(t *testing.T) {
	_, _, h := newTestController(t)

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/networks", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/networks", "", bearer("nope")).Code)
	forged := &http.Cookie{Name: sessionCookie, Value: "eyJhbGciOiJub25lIn0.e30."}
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/api/networks", "", withCookie(forged)).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/networks", "", bearer("test-token")).Code)
}

func TestRequireAdmin_ViewerForbidden(t *testing.T) {
	c, schedules, h := newTestController(t)
	hash, err := utils.HashOrRead("viewer-pass")
	require.NoError(t, err)
	c.Users["viewer"] = types.User{Username: "viewer", Hash: hash, Role: "viewer"}

	cookie := login(t, h, "viewer", "viewer-pass")
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/api/networks/calamari/sync", "", withCookie(cookie)).Code)

	rec := do(t, h, http.MethodPost, "/api/networks/calamari/sync/trigger", "", withCookie(cookie))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, schedules.triggered)
}

func TestHandleNetworks(t *testing.T) {
	_, _, h := newTestController(t)

	rec := do(t, h, http.MethodGet, "/api/networks", "", bearer("test-token"))
	require.Equal(t, http.StatusOK, rec.Code)

	var out []types.NetworkStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "calamari", out[0].Network)
	assert.Equal(t, "sync:calamari", out[0].Schedule.ScheduleID)
	assert.Contains(t, out[0].StoreErr, "unreachable")
}

func TestHandleTriggerSync(t *testing.T) {
	_, schedules, h := newTestController(t)

	rec := do(t, h, http.MethodPost, "/api/networks/calamari/sync/trigger", "", bearer("test-token"))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"calamari"}, schedules.triggered)

	rec = do(t, h, http.MethodPost, "/api/networks/kusama/sync/trigger", "", bearer("test-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePauseAndUnpause(t *testing.T) {
	_, schedules, h := newTestController(t)

	rec := do(t, h, http.MethodPost, "/api/networks/calamari/sync/pause", `{"reason":"clickhouse upgrade"}`, bearer("test-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, schedules.paused["calamari"])

	cookie := login(t, h, "ops", "hunter2")
	rec = do(t, h, http.MethodPost, "/api/networks/calamari/sync/unpause", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, schedules.paused["calamari"])

	assert.Equal(t, []string{"pause by api-token: clickhouse upgrade", "unpause by ops"}, schedules.notes)

	rec = do(t, h, http.MethodPost, "/api/networks/calamari/sync/pause", `{bad`, bearer("test-token"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScheduleErrors(t *testing.T) {
	_, schedules, h := newTestController(t)
	schedules.status = nil

	rec := do(t, h, http.MethodGet, "/api/networks/calamari/sync", "", bearer("test-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	schedules.err = errors.New("connection refused")
	rec = do(t, h, http.MethodPost, "/api/networks/calamari/sync/trigger", "", bearer("test-token"))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestLogout(t *testing.T) {
	_, _, h := newTestController(t)
	rec := do(t, h, http.MethodPost, "/api/auth/logout", "", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].MaxAge < 0)
}

type fakeStore struct {
	stakingstore.Store
	compacted [][]entities.Entity
	err       error
}

func (s *fakeStore) Compact(_ context.Context, only ...entities.Entity) ([]entities.Entity, error) {
	s.compacted = append(s.compacted, only)
	if s.err != nil {
		return nil, s.err
	}
	if len(only) == 0 {
		return entities.All(), nil
	}
	return only, nil
}

func TestHandleCompact(t *testing.T) {
	c, _, h := newTestController(t)
	store := &fakeStore{}
	c.App.NewStore = func(context.Context, string) (stakingstore.Store, error) { return store, nil }

	rec := do(t, h, http.MethodPost, "/api/networks/calamari/compact?entity=round_records&entity=chain_states", "", bearer("test-token"))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"network":"calamari","compacted":["round_records","chain_states"]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/networks/calamari/compact", "", bearer("test-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.compacted, 2)
	assert.Empty(t, store.compacted[1])

	rec = do(t, h, http.MethodPost, "/api/networks/calamari/compact?entity=blocks", "", bearer("test-token"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	store.err = errors.New("too many parts")
	rec = do(t, h, http.MethodPost, "/api/networks/calamari/compact", "", bearer("test-token"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleCompact_StoreUnavailable(t *testing.T) {
	_, _, h := newTestController(t)
	rec := do(t, h, http.MethodPost, "/api/networks/calamari/compact", "", bearer("test-token"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
