package types

import (
	"context"
	"net/http"
	"time"

	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	pkgredis "github.com/manta-network/stakingx/pkg/redis"
	"github.com/manta-network/stakingx/pkg/ss58"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StoreFactory opens the staking database of a network.
type StoreFactory func(ctx context.Context, network string) (stakingstore.Store, error)

// Events is the Redis surface used by the websocket stream.
type Events interface {
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
	XRangeAfter(ctx context.Context, stream, id string, count int64) ([]pkgredis.Message, error)
	Health(ctx context.Context) error
}

type App struct {
	// Served networks and their address codec
	Networks map[string]ss58.Codec
	// Opened lazily on first request
	Stores   *xsync.Map[string, stakingstore.Store]
	NewStore StoreFactory
	// Nil when Redis is disabled
	RedisClient Events
	// Zap Logger
	Logger *zap.Logger
	// Server represents the HTTP server instance used to handle incoming client requests and manage HTTP routes.
	Server *http.Server
}

// LoadStore returns the store of a served network, opening it on first use.
func (a *App) LoadStore(ctx context.Context, network string) (stakingstore.Store, bool) {
	if _, served := a.Networks[network]; !served {
		return nil, false
	}

	store, ok := a.Stores.Load(network)
	if ok {
		return store, true
	}
	if a.NewStore == nil {
		return nil, false
	}

	a.Logger.Debug("Opening network store", zap.String("network", network))
	opened, err := a.NewStore(ctx, network)
	if err != nil {
		a.Logger.Error("Failed to open network store", zap.String("network", network), zap.Error(err))
		return nil, false
	}

	actual, loaded := a.Stores.LoadOrStore(network, opened)
	if loaded {
		_ = opened.Close()
	}
	return actual, true
}

// Codec returns the address codec of a served network.
func (a *App) Codec(network string) (ss58.Codec, bool) {
	codec, ok := a.Networks[network]
	return codec, ok
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.Stores.Range(func(network string, store stakingstore.Store) bool {
		if err := store.Close(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.String("network", network), zap.Error(err))
		}
		return true
	})

	_ = a.Server.Shutdown(shutdownCtx)
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}
