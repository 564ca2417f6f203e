package query

import (
	"context"

	"github.com/manta-network/stakingx/app/query/types"
	"github.com/manta-network/stakingx/pkg/db/clickhouse"
	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	"github.com/manta-network/stakingx/pkg/logging"
	"github.com/manta-network/stakingx/pkg/redis"
	"github.com/manta-network/stakingx/pkg/ss58"
	"github.com/manta-network/stakingx/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Initialize initializes the application.
func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New("query")
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	prefix := uint16(utils.EnvInt("SS58_PREFIX", 0))
	networks := make(map[string]ss58.Codec)
	for _, network := range utils.EnvList("NETWORKS", []string{"calamari"}) {
		codec, err := ss58.ForNetwork(network, prefix)
		if err != nil {
			logger.Fatal("Unable to resolve address format", zap.String("network", network), zap.Error(err))
		}
		networks[network] = codec
	}

	// Stores are opened lazily so a network whose indexer has not run yet doesn't block startup
	poolConfig := clickhouse.GetPoolConfigForComponent("query")
	newStore := func(ctx context.Context, network string) (stakingstore.Store, error) {
		return stakingstore.New(ctx, logger, network, networks[network], poolConfig)
	}

	app := &types.App{
		Networks: networks,
		Stores:   xsync.NewMap[string, stakingstore.Store](),
		NewStore: newStore,
		Logger:   logger,
	}

	// Initialize Redis client for real-time WebSocket events (optional)
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err := redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - WebSocket real-time events will be disabled",
				zap.Error(err))
		} else {
			app.RedisClient = redisClient
			logger.Info("Redis client initialized for WebSocket real-time events")
		}
	} else {
		logger.Info("Redis disabled - WebSocket real-time events will not be available")
	}

	for network := range networks {
		if _, ok := app.LoadStore(ctx, network); !ok {
			logger.Warn("Network database not reachable yet, will retry on first request",
				zap.String("network", network))
		}
	}

	return app
}
