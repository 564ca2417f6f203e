package admin

import (
	"context"
	"time"

	"github.com/manta-network/stakingx/app/admin/types"
	"github.com/manta-network/stakingx/pkg/db/clickhouse"
	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	"github.com/manta-network/stakingx/pkg/logging"
	"github.com/manta-network/stakingx/pkg/ss58"
	"github.com/manta-network/stakingx/pkg/temporal"
	"github.com/manta-network/stakingx/pkg/utils"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

func Initialize(ctx context.Context) *types.App {
	logger, err := logging.New("admin")
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	networks := utils.Dedup(utils.EnvList("NETWORKS", []string{"calamari"}))
	prefix := uint16(utils.EnvInt("SS58_PREFIX", 0))
	codecs := make(map[string]ss58.Codec, len(networks))
	for _, network := range networks {
		codec, err := ss58.ForNetwork(network, prefix)
		if err != nil {
			logger.Fatal("Unable to resolve address format", zap.String("network", network), zap.Error(err))
		}
		codecs[network] = codec
	}

	// The admin does occasional reads only; share the query pool sizing
	poolConfig := clickhouse.GetPoolConfigForComponent("query")
	newStore := func(ctx context.Context, network string) (stakingstore.Store, error) {
		return stakingstore.New(ctx, logger, network, codecs[network], poolConfig)
	}

	// The connection's own network is irrelevant: every call names its network
	temporalClient, err := temporal.NewClient(ctx, logger, networks[0])
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}

	// Ensure the Temporal namespace exists (Helm chart doesn't auto-create it)
	err = temporalClient.EnsureNamespace(ctx, utils.EnvDuration("TEMPORAL_RETENTION", 7*24*time.Hour))
	if err != nil {
		logger.Fatal("Unable to ensure temporal namespace", zap.Error(err))
	}
	logger.Info("Temporal namespace ready", zap.String("namespace", temporalClient.Namespace))

	app := &types.App{
		Networks:       networks,
		Stores:         xsync.NewMap[string, stakingstore.Store](),
		NewStore:       newStore,
		Schedules:      temporalClient,
		SyncInterval:   utils.EnvDuration("SYNC_INTERVAL", 30*time.Second),
		TemporalClient: temporalClient,
		Logger:         logger,
	}

	if err := app.ReconcileSchedules(ctx); err != nil {
		logger.Fatal("Unable to reconcile schedules", zap.Error(err))
	}

	cronSpec := utils.Env("RECONCILE_CRON", "*/30 * * * * *")
	if err := app.SetupScheduler(ctx, types.NewCronLogger(logger), cronSpec); err != nil {
		logger.Fatal("Unable to set up reconcile scheduler", zap.String("cronSpec", cronSpec), zap.Error(err))
	}

	return app
}
