package types

import (
	"context"
	"net/http"
	"time"

	indexertypes "github.com/manta-network/stakingx/app/indexer/types"
	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	"github.com/manta-network/stakingx/pkg/temporal"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// User is an operator allowed to log into the admin API.
type User struct {
	Username string `json:"username"`
	Hash     []byte `json:"hash"`
	Role     string `json:"role"`
}

// Schedules controls the per-network sync schedules.
type Schedules interface {
	EnsureNetworkSchedule(ctx context.Context, network string, interval time.Duration, args ...interface{}) error
	DescribeSync(ctx context.Context, network string) (*temporal.SyncStatus, error)
	TriggerSync(ctx context.Context, network string) error
	PauseSync(ctx context.Context, network, note string) error
	UnpauseSync(ctx context.Context, network, note string) error
}

// StoreFactory opens the staking database of a network.
type StoreFactory func(ctx context.Context, network string) (stakingstore.Store, error)

type App struct {
	// Managed networks
	Networks []string
	// Opened on first use
	Stores   *xsync.Map[string, stakingstore.Store]
	NewStore StoreFactory

	Schedules    Schedules
	SyncInterval time.Duration
	// Closed on shutdown, nil in tests
	TemporalClient *temporal.Client

	Cron     *cron.Cron
	CronSpec string

	Logger *zap.Logger
	Server *http.Server
}

// NetworkStatus is the operator view of one network.
type NetworkStatus struct {
	Network     string               `json:"network"`
	Schedule    *temporal.SyncStatus `json:"schedule,omitempty"`
	LiveBlock   uint64               `json:"live_block"`
	LiveAt      *time.Time           `json:"live_at,omitempty"`
	LagSeconds  float64              `json:"lag_seconds"`
	ScheduleErr string               `json:"schedule_error,omitempty"`
	StoreErr    string               `json:"store_error,omitempty"`
}

// Serves reports whether network is managed by this admin.
func (a *App) Serves(network string) bool {
	for _, n := range a.Networks {
		if n == network {
			return true
		}
	}
	return false
}

// LoadStore returns the store of a managed network, opening it on first use.
func (a *App) LoadStore(ctx context.Context, network string) (stakingstore.Store, error) {
	if store, ok := a.Stores.Load(network); ok {
		return store, nil
	}
	opened, err := a.NewStore(ctx, network)
	if err != nil {
		return nil, err
	}
	actual, loaded := a.Stores.LoadOrStore(network, opened)
	if loaded {
		_ = opened.Close()
	}
	return actual, nil
}

// Status collects the schedule and live chain state of a network. Partial failures are
// reported in the result.
func (a *App) Status(ctx context.Context, network string, now time.Time) NetworkStatus {
	status := NetworkStatus{Network: network}

	schedule, err := a.Schedules.DescribeSync(ctx, network)
	if err != nil {
		status.ScheduleErr = err.Error()
	} else {
		status.Schedule = schedule
	}

	store, err := a.LoadStore(ctx, network)
	if err != nil {
		status.StoreErr = err.Error()
		return status
	}
	live, err := store.GetLiveChainState(ctx)
	if err != nil {
		status.StoreErr = err.Error()
		return status
	}
	if live != nil {
		at := live.Timestamp
		status.LiveBlock = live.BlockNumber
		status.LiveAt = &at
		status.LagSeconds = now.Sub(at).Seconds()
	}
	return status
}

// ReconcileSchedules creates the sync schedule of every managed network that lacks one.
// Indexers create their own schedule at startup; this restores schedules deleted by hand.
func (a *App) ReconcileSchedules(ctx context.Context) error {
	for _, network := range a.Networks {
		if err := a.Schedules.EnsureNetworkSchedule(ctx, network, a.SyncInterval, indexertypes.WorkflowSyncInput{}); err != nil {
			return err
		}
	}
	return nil
}

// Reconcile restores missing schedules and logs how far behind each network is.
func (a *App) Reconcile(ctx context.Context) error {
	if err := a.ReconcileSchedules(ctx); err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, network := range a.Networks {
		status := a.Status(ctx, network, now)
		fields := []zap.Field{
			zap.String("network", network),
			zap.Uint64("liveBlock", status.LiveBlock),
			zap.Float64("lagSeconds", status.LagSeconds),
		}
		if status.Schedule != nil {
			fields = append(fields, zap.Bool("paused", status.Schedule.Paused))
		}
		if status.StoreErr != "" || status.ScheduleErr != "" {
			a.Logger.Warn("Network status incomplete",
				append(fields, zap.String("storeError", status.StoreErr), zap.String("scheduleError", status.ScheduleErr))...)
			continue
		}
		a.Logger.Info("Network status", fields...)
	}
	return nil
}

// SetupScheduler sets up the cron scheduler running Reconcile.
func (a *App) SetupScheduler(ctx context.Context, logger cron.Logger, cronSpec string) error {
	// Seconds field, optional
	a.Cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.Recover(logger)))

	_, err := a.Cron.AddFunc(cronSpec, func() {
		// keep each run bounded
		rctx, cancel := context.WithTimeout(ctx, 25*time.Second)
		defer cancel()
		if err := a.Reconcile(rctx); err != nil {
			logger.Error(err, "reconcile failed")
		}
	})
	if err != nil {
		return err
	}
	a.CronSpec = cronSpec
	return nil
}

// Start starts the application.
func (a *App) Start(ctx context.Context) {
	if a.Cron != nil {
		a.Cron.Start()
		a.Logger.Info("Cron started", zap.String("cronSpec", a.CronSpec))
	}

	go func() { _ = a.Server.ListenAndServe() }()
	<-ctx.Done()

	if a.Cron != nil {
		<-a.Cron.Stop().Done()
	}

	a.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = a.Server.Shutdown(shutdownCtx)

	a.Stores.Range(func(network string, store stakingstore.Store) bool {
		if err := store.Close(); err != nil {
			a.Logger.Error("Failed to close database connection", zap.String("network", network), zap.Error(err))
		}
		return true
	})
	if a.TemporalClient != nil {
		a.TemporalClient.Close()
	}

	time.Sleep(200 * time.Millisecond)
	a.Logger.Info("さようなら!")
}

// CronLogger adapts zap to the cron logger interface.
type CronLogger struct {
	*zap.SugaredLogger
}

// NewCronLogger returns a cron logger writing to logger.
func NewCronLogger(logger *zap.Logger) CronLogger {
	return CronLogger{SugaredLogger: logger.Named("cron").Sugar()}
}

func (l CronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.Debugw(msg, keysAndValues...)
}

func (l CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.Errorw(msg, append(keysAndValues, "error", err)...)
}
