package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	pkgredis "github.com/manta-network/stakingx/pkg/redis"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// replayLimit caps the stream entries sent for one "since" request.
const replayLimit = 500

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ClientMessage represents messages sent by WebSocket clients.
type ClientMessage struct {
	Action  string `json:"action"`          // "subscribe" or "unsubscribe"
	Network string `json:"network"`         // Network to subscribe to, or "*" for all networks
	Since   string `json:"since,omitempty"` // Stream id to replay settlements after ("0" for the retained history)
}

// ServerMessage represents messages sent to WebSocket clients.
type ServerMessage struct {
	Type    string      `json:"type"`         // "round.settled", "subscribed", "unsubscribed", "error", "info"
	ID      string      `json:"id,omitempty"` // Stream id of replayed settlements
	Payload interface{} `json:"payload"`
}

// clientSubscriptions tracks what networks a client is subscribed to.
type clientSubscriptions struct {
	mu       sync.RWMutex
	networks map[string]bool
}

func newClientSubscriptions() *clientSubscriptions {
	return &clientSubscriptions{
		networks: make(map[string]bool),
	}
}

func (cs *clientSubscriptions) subscribe(network string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.networks[network] = true
}

func (cs *clientSubscriptions) unsubscribe(network string) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.networks, network)
}

// isSubscribed checks if a network is subscribed. Wildcard (*) matches all networks.
func (cs *clientSubscriptions) isSubscribed(network string) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	if cs.networks["*"] {
		return true
	}
	return cs.networks[network]
}

// HandleWebSocket upgrades HTTP connection to WebSocket and streams round settlements.
//
// Protocol:
// Client sends: {"action": "subscribe", "network": "calamari"}                    // Subscribe to one network
// Client sends: {"action": "subscribe", "network": "calamari", "since": "0"}      // ...replaying retained settlements first
// Client sends: {"action": "subscribe", "network": "*"}                           // Subscribe to ALL networks
// Client sends: {"action": "unsubscribe", "network": "calamari"}
//
// Server sends:
// - {"type": "round.settled", "id": "1700000000000-0", "payload": {...}}
// - {"type": "subscribed", "payload": {"network": "calamari"}}
// - {"type": "unsubscribed", "payload": {"network": "calamari"}}
// - {"type": "error", "payload": {"message": "..."}}
//
// Replayed settlements carry their stream id; live ones do not. Clients that replay should
// drop live settlements for rounds they already received.
func (c *Controller) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if c.App.RedisClient == nil {
		http.Error(w, "Real-time events not available (Redis disabled)", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.App.Logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}
	defer func(conn *websocket.Conn) {
		if err := conn.Close(); err != nil {
			c.App.Logger.Debug("Failed to close WebSocket connection", zap.Error(err))
		}
	}(conn)

	c.App.Logger.Info("WebSocket client connected", zap.String("remote_addr", r.RemoteAddr))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	subs := newClientSubscriptions()
	send := make(chan ServerMessage, 256)

	var wg sync.WaitGroup
	guard := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					c.App.Logger.Error("Panic in WebSocket goroutine",
						zap.String("goroutine", name),
						zap.Any("panic", rec),
						zap.String("stack", string(debug.Stack())),
						zap.String("remote_addr", r.RemoteAddr))
					cancel()
				}
			}()
			fn()
		}()
	}

	guard("redis", func() { c.subscribeToRedis(ctx, send, subs) })
	guard("ping", func() { c.sendPings(ctx, conn) })
	guard("writer", func() { c.writeMessages(ctx, conn, send) })

	// Blocks until the connection closes
	c.readClientMessages(ctx, conn, cancel, subs, send)

	cancel()
	wg.Wait()

	c.App.Logger.Info("WebSocket client disconnected", zap.String("remote_addr", r.RemoteAddr))
}

// subscribeToRedis subscribes to every network's round.settled channel and forwards the
// events the client subscribed to. Lost subscriptions are retried with exponential backoff
// and jitter; the client is told while Redis is unavailable.
func (c *Controller) subscribeToRedis(ctx context.Context, send chan<- ServerMessage, subs *clientSubscriptions) {
	pattern := pkgredis.Channel("*", pkgredis.EventRoundSettled)

	const (
		initialBackoff = 1 * time.Second
		maxBackoff     = 30 * time.Second
		backoffFactor  = 2.0
		jitterFactor   = 0.1
	)

	backoff := initialBackoff
	attemptNum := 0

	for {
		if ctx.Err() != nil {
			return
		}
		attemptNum++

		subscriptionErr := c.attemptRedisSubscription(ctx, pattern, send, subs, attemptNum)
		if ctx.Err() != nil {
			return
		}

		if subscriptionErr != nil {
			c.App.Logger.Warn("Redis subscription failed, will retry",
				zap.Error(subscriptionErr),
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		} else {
			c.App.Logger.Warn("Redis subscription channel closed, will retry",
				zap.Int("attempt", attemptNum),
				zap.Duration("backoff", backoff))
		}

		if !trySend(ctx, send, ServerMessage{
			Type: "error",
			Payload: map[string]interface{}{
				"message":     "Redis connection lost, attempting to reconnect...",
				"retryIn":     backoff.Seconds(),
				"attempt":     attemptNum,
				"recoverable": true,
			},
		}) {
			return
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return
		}
		backoff = calculateNextBackoff(backoff, maxBackoff, backoffFactor, jitterFactor)
	}
}

// attemptRedisSubscription runs one subscription until it fails or ctx is cancelled.
func (c *Controller) attemptRedisSubscription(
	ctx context.Context,
	pattern string,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
	attemptNum int,
) error {
	pubsub := c.App.RedisClient.PSubscribe(ctx, pattern)
	defer func() {
		if err := pubsub.Close(); err != nil {
			c.App.Logger.Debug("Error closing Redis subscription", zap.Error(err))
		}
	}()

	receiveCtx, receiveCancel := context.WithTimeout(ctx, 5*time.Second)
	defer receiveCancel()

	if _, err := pubsub.Receive(receiveCtx); err != nil {
		return fmt.Errorf("failed to confirm Redis subscription: %w", err)
	}

	c.App.Logger.Info("Subscribed to Redis pattern",
		zap.String("pattern", pattern),
		zap.Int("attempt", attemptNum))

	if attemptNum > 1 && !trySend(ctx, send, ServerMessage{
		Type:    "info",
		Payload: map[string]interface{}{"message": "Redis connection established", "attempt": attemptNum},
	}) {
		return ctx.Err()
	}

	return c.processRedisMessages(ctx, pubsub, send, subs)
}

// processRedisMessages forwards messages until the channel closes (nil) or ctx is cancelled.
func (c *Controller) processRedisMessages(
	ctx context.Context,
	pubsub *redis.PubSub,
	send chan<- ServerMessage,
	subs *clientSubscriptions,
) error {
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			network, _, valid := pkgredis.ParseChannel(msg.Channel)
			if !valid {
				c.App.Logger.Warn("Unexpected Redis channel", zap.String("channel", msg.Channel))
				continue
			}
			if !subs.isSubscribed(network) {
				continue
			}

			var payload map[string]interface{}
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				c.App.Logger.Error("Failed to parse Redis message",
					zap.Error(err),
					zap.String("channel", msg.Channel))
				continue
			}

			if !trySend(ctx, send, ServerMessage{Type: pkgredis.EventRoundSettled, Payload: payload}) {
				return ctx.Err()
			}
		}
	}
}

// replay sends the settlements retained in a network's stream after since.
func (c *Controller) replay(ctx context.Context, network, since string, send chan<- ServerMessage) error {
	messages, err := c.App.RedisClient.XRangeAfter(ctx, pkgredis.RoundsStream(network), since, replayLimit)
	if err != nil {
		return err
	}
	for _, msg := range messages {
		var payload map[string]interface{}
		if err := json.Unmarshal(msg.GetData(), &payload); err != nil {
			c.App.Logger.Warn("Skipping malformed stream entry",
				zap.String("stream", msg.Stream),
				zap.String("id", msg.ID),
				zap.Error(err))
			continue
		}
		if !trySend(ctx, send, ServerMessage{Type: pkgredis.EventRoundSettled, ID: msg.ID, Payload: payload}) {
			return ctx.Err()
		}
	}
	return nil
}

// calculateNextBackoff calculates the next backoff duration with exponential growth and jitter.
func calculateNextBackoff(current, max time.Duration, factor, jitterFactor float64) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		next = max
	}

	// random value between -jitterFactor and +jitterFactor
	jitter := float64(next) * jitterFactor * (2*rand.Float64() - 1)
	nextWithJitter := time.Duration(float64(next) + jitter)

	if nextWithJitter < current {
		nextWithJitter = current
	}
	if nextWithJitter > max {
		nextWithJitter = max
	}
	return nextWithJitter
}

func trySend(ctx context.Context, send chan<- ServerMessage, msg ServerMessage) bool {
	select {
	case send <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}

// sendPings sends periodic WebSocket ping frames to keep the connection alive.
// The client responds with pong frames, which reset the read deadline.
func (c *Controller) sendPings(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				c.App.Logger.Debug("Failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

// writeMessages is the only writer of data frames on conn.
func (c *Controller) writeMessages(ctx context.Context, conn *websocket.Conn, send <-chan ServerMessage) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-send:
			if err := conn.WriteJSON(msg); err != nil {
				c.App.Logger.Debug("Failed to write WebSocket message", zap.Error(err))
				return
			}
		}
	}
}

// readClientMessages handles subscription requests and detects connection closure.
func (c *Controller) readClientMessages(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc, subs *clientSubscriptions, send chan<- ServerMessage) {
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	})

	for ctx.Err() == nil {
		var msg ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.App.Logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		if err := conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			return
		}

		reply := c.handleClientMessage(ctx, msg, subs, send)
		if !trySend(ctx, send, reply) {
			return
		}
	}
}

func (c *Controller) handleClientMessage(ctx context.Context, msg ClientMessage, subs *clientSubscriptions, send chan<- ServerMessage) ServerMessage {
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return errorMessage("unknown action: " + msg.Action)
	}
	if msg.Network == "" {
		return errorMessage("network is required")
	}
	if _, served := c.App.Networks[msg.Network]; msg.Network != "*" && !served {
		return errorMessage("network not indexed: " + msg.Network)
	}

	if msg.Action == "unsubscribe" {
		subs.unsubscribe(msg.Network)
		return ServerMessage{Type: "unsubscribed", Payload: map[string]string{"network": msg.Network}}
	}

	if msg.Since != "" {
		if msg.Network == "*" {
			return errorMessage("since requires a single network")
		}
		// Acknowledge first so replayed settlements follow the confirmation
		if !trySend(ctx, send, ServerMessage{Type: "subscribed", Payload: map[string]string{"network": msg.Network}}) {
			return errorMessage("connection closed")
		}
		subs.subscribe(msg.Network)
		if err := c.replay(ctx, msg.Network, msg.Since, send); err != nil {
			c.App.Logger.Warn("Settlement replay failed", zap.String("network", msg.Network), zap.Error(err))
			return errorMessage("replay failed")
		}
		return ServerMessage{Type: "info", Payload: map[string]string{"message": "replay complete", "network": msg.Network}}
	}

	subs.subscribe(msg.Network)
	c.App.Logger.Debug("Client subscribed", zap.String("network", msg.Network))
	return ServerMessage{Type: "subscribed", Payload: map[string]string{"network": msg.Network}}
}

func errorMessage(text string) ServerMessage {
	return ServerMessage{Type: "error", Payload: map[string]string{"message": text}}
}
