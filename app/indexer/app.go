package indexer

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/manta-network/stakingx/app/indexer/activity"
	"github.com/manta-network/stakingx/app/indexer/types"
	"github.com/manta-network/stakingx/app/indexer/workflow"
	"github.com/manta-network/stakingx/pkg/db/clickhouse"
	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	"github.com/manta-network/stakingx/pkg/logging"
	"github.com/manta-network/stakingx/pkg/metrics"
	"github.com/manta-network/stakingx/pkg/redis"
	"github.com/manta-network/stakingx/pkg/rpc"
	"github.com/manta-network/stakingx/pkg/ss58"
	"github.com/manta-network/stakingx/pkg/staking"
	"github.com/manta-network/stakingx/pkg/temporal"
	"github.com/manta-network/stakingx/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/puzpuzpuz/xsync/v4"
	"go.temporal.io/sdk/worker"
	temporalworkflow "go.temporal.io/sdk/workflow"
	"go.uber.org/zap"
)

type App struct {
	Worker          worker.Worker
	TemporalClient  *temporal.Client
	ActivityContext *activity.Context
	Store           stakingstore.Store
	RedisClient     *redis.Client
	MetricsServer   *http.Server
	Logger          *zap.Logger
}

// Start starts the worker and blocks until the context is canceled.
func (a *App) Start(ctx context.Context) {
	go func() {
		if err := a.MetricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	if err := a.Worker.Start(); err != nil {
		a.Logger.Fatal("Unable to start worker", zap.Error(err))
	}
	<-ctx.Done()
	a.Stop()
}

// Stop stops the worker and releases every connection.
func (a *App) Stop() {
	a.Worker.Stop()
	a.ActivityContext.StopPool()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = a.MetricsServer.Shutdown(shutdownCtx)

	if a.RedisClient != nil {
		_ = a.RedisClient.Close()
	}
	if err := a.Store.Close(); err != nil {
		a.Logger.Warn("Failed to close database connection", zap.Error(err))
	}
	a.TemporalClient.Close()
	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

// Initialize initializes the application.
func Initialize(ctx context.Context) *App {
	logger, err := logging.New("indexer")
	if err != nil {
		// nothing else to do here, we'll just log to stderr'
		panic(err)
	}

	network := utils.Env("NETWORK", "")
	if network == "" {
		logger.Fatal("NETWORK environment variable is required")
	}
	logger = logger.With(zap.String("network", network))

	codec, err := ss58.ForNetwork(network, uint16(utils.EnvInt("SS58_PREFIX", 0)))
	if err != nil {
		logger.Fatal("Unable to resolve address format", zap.Error(err))
	}

	store, err := stakingstore.New(ctx, logger, network, codec, clickhouse.GetPoolConfigForComponent("indexer"))
	if err != nil {
		logger.Fatal("Unable to initialize staking database", zap.Error(err))
	}

	endpoints := utils.Dedup(utils.EnvList("DECODER_ENDPOINTS", []string{"http://localhost:8080"}))
	// The sidecar fans storage lookups out to the archive node; keep bursts bounded
	rpcFactory := rpc.NewHTTPFactory(rpc.Opts{
		RPS:             utils.EnvInt("RPC_RPS", 200),
		Burst:           utils.EnvInt("RPC_BURST", 400),
		BreakerFailures: 10,
		BreakerCooldown: 30 * time.Second,
	})

	// Notifications are best-effort; without Redis the notifier stays a nil interface
	var (
		redisClient *redis.Client
		notifier    staking.Notifier
	)
	if utils.Env("REDIS_ENABLED", "false") == "true" {
		redisClient, err = redis.NewClient(ctx, logger)
		if err != nil {
			logger.Warn("Failed to initialize Redis client - round notifications will be disabled", zap.Error(err))
			redisClient = nil
		} else {
			notifier = redis.NewNotifier(redisClient, network, codec, logger)
		}
	}

	stakingMetrics, err := metrics.New(prometheus.NewRegistry())
	if err != nil {
		logger.Fatal("Unable to register metrics", zap.Error(err))
	}
	metricsServer := &http.Server{
		Addr:              utils.Env("METRICS_ADDR", ":9090"),
		Handler:           stakingMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	temporalClient, err := temporal.NewClient(ctx, logger, network)
	if err != nil {
		logger.Fatal("Unable to establish temporal connection", zap.Error(err))
	}
	if err := temporalClient.EnsureNamespace(ctx, utils.EnvDuration("TEMPORAL_RETENTION", 7*24*time.Hour)); err != nil {
		logger.Fatal("Unable to ensure temporal namespace", zap.Error(err))
	}

	activityContext := &activity.Context{
		Logger:       logger,
		Network:      network,
		Store:        store,
		RPCFactory:   rpcFactory,
		RPCEndpoints: endpoints,
		Notifier:     notifier,
		Metrics:      stakingMetrics,
		Config: activity.Config{
			StartHeight:        utils.EnvUint64("START_HEIGHT", activity.DefaultStartHeight),
			CheckpointInterval: utils.EnvDuration("CHECKPOINT_INTERVAL", 2*time.Hour),
			LookupParallelism:  utils.EnvInt("LOOKUP_PARALLELISM", 0),
		},
		Materializers: xsync.NewMap[string, *staking.Materializer](),
	}
	workflowContext := workflow.Context{
		TemporalClient:  temporalClient,
		ActivityContext: activityContext,
		Config: workflow.Config{
			BatchSize:           utils.EnvUint64("BATCH_SIZE", workflow.DefaultBatchSize),
			ContinueAsNewRanges: utils.EnvInt("CONTINUE_AS_NEW_RANGES", workflow.DefaultContinueAsNewRanges),
		},
	}

	// Refuse to start against a runtime whose events we cannot decode
	if err := activityContext.CheckCoverage(ctx); err != nil {
		logger.Fatal("Decoder sidecar does not cover the required event versions", zap.Error(err))
	}

	if err := temporalClient.EnsureSyncSchedule(ctx, utils.EnvDuration("SYNC_INTERVAL", 30*time.Second), types.WorkflowSyncInput{}); err != nil {
		logger.Fatal("Unable to ensure sync schedule", zap.Error(err))
	}

	// Ranges are strictly sequential, so one poller of each kind is enough
	wkr := worker.New(
		temporalClient.TClient,
		temporalClient.SyncQueue,
		worker.Options{
			MaxConcurrentWorkflowTaskPollers:       2,
			MaxConcurrentActivityTaskPollers:       2,
			MaxConcurrentActivityExecutionSize:     4,
			MaxConcurrentWorkflowTaskExecutionSize: 4,
			WorkerStopTimeout:                      1 * time.Minute,
		},
	)

	wkr.RegisterWorkflowWithOptions(
		workflowContext.SyncStakingWorkflow,
		temporalworkflow.RegisterOptions{
			Name: temporal.SyncStakingWorkflowName,
		},
	)
	wkr.RegisterActivity(activityContext.GetChainHead)
	wkr.RegisterActivity(activityContext.GetResumeHeight)
	wkr.RegisterActivity(activityContext.ProcessBlockRange)

	logger.Info("Indexer initialized",
		zap.Strings("endpoints", endpoints),
		zap.Int("lookupParallelism", activityContext.LookupPoolSize()),
		zap.Uint64("batchSize", workflowContext.Config.BatchSize),
		zap.Duration("checkpointInterval", activityContext.Config.CheckpointInterval))

	return &App{
		Worker:          wkr,
		TemporalClient:  temporalClient,
		ActivityContext: activityContext,
		Store:           store,
		RedisClient:     redisClient,
		MetricsServer:   metricsServer,
		Logger:          logger,
	}
}
