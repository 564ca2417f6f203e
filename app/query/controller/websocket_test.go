package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	pkgredis "github.com/manta-network/stakingx/pkg/redis"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEvents replays canned stream entries. Pub/Sub goes to an address nothing listens
// on, so live subscriptions fail and exercise the reconnect path.
type fakeEvents struct {
	mu      sync.Mutex
	rdb     *redis.Client
	entries []pkgredis.Message
	ranges  []string
}

func newFakeEvents(t *testing.T) *fakeEvents {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	return &fakeEvents{rdb: rdb}
}

func (f *fakeEvents) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return f.rdb.PSubscribe(ctx, patterns...)
}

func (f *fakeEvents) XRangeAfter(_ context.Context, stream, id string, count int64) ([]pkgredis.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ranges = append(f.ranges, stream+"|"+id)
	out := make([]pkgredis.Message, 0)
	for _, e := range f.entries {
		if e.ID > id && int64(len(out)) < count {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEvents) Health(context.Context) error { return nil }

func TestCalculateNextBackoff(t *testing.T) {
	tests := []struct {
		name         string
		current      time.Duration
		max          time.Duration
		factor       float64
		jitterFactor float64
		expectMin    time.Duration
		expectMax    time.Duration
	}{
		{
			name:         "initial backoff doubles",
			current:      1 * time.Second,
			max:          30 * time.Second,
			factor:       2.0,
			jitterFactor: 0.1,
			expectMin:    1800 * time.Millisecond,
			expectMax:    2200 * time.Millisecond,
		},
		{
			name:         "respects maximum",
			current:      20 * time.Second,
			max:          30 * time.Second,
			factor:       2.0,
			jitterFactor: 0.1,
			expectMin:    27 * time.Second,
			expectMax:    30 * time.Second,
		},
		{
			name:         "no jitter produces exact value",
			current:      5 * time.Second,
			max:          30 * time.Second,
			factor:       2.0,
			jitterFactor: 0.0,
			expectMin:    10 * time.Second,
			expectMax:    10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// jitter is random
			for i := 0; i < 10; i++ {
				result := calculateNextBackoff(tt.current, tt.max, tt.factor, tt.jitterFactor)
				assert.GreaterOrEqual(t, result, tt.expectMin)
				assert.LessOrEqual(t, result, tt.expectMax)
			}
		})
	}
}

func TestClientSubscriptions(t *testing.T) {
	t.Run("subscribe and check", func(t *testing.T) {
		subs := newClientSubscriptions()
		subs.subscribe("calamari")
		assert.True(t, subs.isSubscribed("calamari"))
		assert.False(t, subs.isSubscribed("manta"))
	})

	t.Run("wildcard subscription", func(t *testing.T) {
		subs := newClientSubscriptions()
		subs.subscribe("*")
		assert.True(t, subs.isSubscribed("calamari"))
		assert.True(t, subs.isSubscribed("manta"))
	})

	t.Run("unsubscribe", func(t *testing.T) {
		subs := newClientSubscriptions()
		subs.subscribe("calamari")
		subs.unsubscribe("calamari")
		assert.False(t, subs.isSubscribed("calamari"))
	})
}

func TestHandleClientMessage(t *testing.T) {
	c := NewController(newTestApp(t, newFakeStore()))
	send := make(chan ServerMessage, 8)

	tests := []struct {
		name     string
		msg      ClientMessage
		wantType string
		wantText string
	}{
		{name: "unknown action", msg: ClientMessage{Action: "resubscribe", Network: "calamari"}, wantType: "error", wantText: "unknown action"},
		{name: "missing network", msg: ClientMessage{Action: "subscribe"}, wantType: "error", wantText: "network is required"},
		{name: "unserved network", msg: ClientMessage{Action: "subscribe", Network: "kusama"}, wantType: "error", wantText: "not indexed"},
		{name: "wildcard replay", msg: ClientMessage{Action: "subscribe", Network: "*", Since: "0"}, wantType: "error", wantText: "single network"},
		{name: "wildcard", msg: ClientMessage{Action: "subscribe", Network: "*"}, wantType: "subscribed"},
		{name: "unsubscribe", msg: ClientMessage{Action: "unsubscribe", Network: "calamari"}, wantType: "unsubscribed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply := c.handleClientMessage(context.Background(), tt.msg, newClientSubscriptions(), send)
			assert.Equal(t, tt.wantType, reply.Type)
			if tt.wantText != "" {
				payload, _ := json.Marshal(reply.Payload)
				assert.Contains(t, string(payload), tt.wantText)
			}
		})
	}
}

func TestHandleWebSocket_RedisDisabled(t *testing.T) {
	c := NewController(newTestApp(t, newFakeStore()))

	rec := httptest.NewRecorder()
	c.HandleWebSocket(rec, httptest.NewRequest(http.MethodGet, "/ws/rounds", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleWebSocket_ReplaysSince(t *testing.T) {
	events := newFakeEvents(t)
	events.entries = []pkgredis.Message{
		{ID: "1700000000000-0", Stream: pkgredis.RoundsStream("calamari"), Values: map[string]interface{}{"round": "6", "data": `{"round":6}`}},
		{ID: "1700000012000-0", Stream: pkgredis.RoundsStream("calamari"), Values: map[string]interface{}{"round": "7", "data": `{"round":7}`}},
	}

	app := newTestApp(t, newFakeStore())
	app.Logger = zap.NewNop() // handler goroutines can outlive the test
	app.RedisClient = events
	c := NewController(app)

	server := httptest.NewServer(http.HandlerFunc(c.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", Network: "calamari", Since: "1700000000000-0"}))

	var (
		subscribed bool
		replayed   []ServerMessage
		done       bool
	)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for !done {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case "subscribed":
			subscribed = true
		case pkgredis.EventRoundSettled:
			replayed = append(replayed, msg)
		case "info":
			done = strings.Contains(toJSON(t, msg.Payload), "replay complete")
		}
	}

	assert.True(t, subscribed)
	require.Len(t, replayed, 1)
	assert.Equal(t, "1700000012000-0", replayed[0].ID)
	assert.Equal(t, float64(7), replayed[0].Payload.(map[string]interface{})["round"])
	assert.Equal(t, []string{"stakingx:calamari:rounds|1700000000000-0"}, events.ranges)
}

func TestHandleWebSocket_ReportsRedisOutage(t *testing.T) {
	app := newTestApp(t, newFakeStore())
	app.Logger = zap.NewNop()
	app.RedisClient = newFakeEvents(t)
	c := NewController(app)

	server := httptest.NewServer(http.HandlerFunc(c.HandleWebSocket))
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	for {
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "error" {
			assert.Contains(t, toJSON(t, msg.Payload), "attempting to reconnect")
			return
		}
	}
}

func toJSON(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return string(data)
}
