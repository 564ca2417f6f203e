package activity

import (
	"runtime"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"

	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	"github.com/manta-network/stakingx/pkg/metrics"
	"github.com/manta-network/stakingx/pkg/rpc"
	"github.com/manta-network/stakingx/pkg/staking"
)

// Config holds the indexer settings read at startup.
type Config struct {
	StartHeight        uint64
	CheckpointInterval time.Duration
	LookupParallelism  int
}

type Context struct {
	Logger  *zap.Logger
	Network string
	// Per network staking DB
	Store stakingstore.Store
	// For decoder sidecar calls
	RPCFactory   rpc.Factory
	RPCEndpoints []string
	// Best-effort notifications (nil disables them)
	Notifier staking.Notifier
	Metrics  *metrics.Staking
	Config   Config
	// In-memory materializers by network. They survive across activity attempts of this
	// worker and are rebuilt from the store whenever they are not positioned for a range.
	Materializers *xsync.Map[string, *staking.Materializer]

	lookupPoolOnce sync.Once
	lookupPool     pond.Pool
	lookupPoolSize int
}

func (c *Context) rpcClient() rpc.Client {
	return c.RPCFactory.NewClient(c.RPCEndpoints)
}

// materializer returns the network's materializer, creating it on first use.
func (c *Context) materializer() *staking.Materializer {
	if m, ok := c.Materializers.Load(c.Network); ok {
		return m
	}

	m := staking.NewMaterializer(staking.Options{
		Network:            c.Network,
		CheckpointInterval: c.Config.CheckpointInterval,
		Storage:            c.rpcClient(),
		Store:              c.Store,
		Notifier:           c.Notifier,
		Pool:               c.pool(),
		Logger:             c.Logger,
		Metrics:            c.Metrics,
	})
	actual, _ := c.Materializers.LoadOrStore(c.Network, m)
	return actual
}

// pool returns the shared worker pool used for storage lookups during reconciliation.
func (c *Context) pool() pond.Pool {
	c.lookupPoolOnce.Do(func() {
		c.lookupPoolSize = LookupParallelism(c.Config.LookupParallelism)
		c.lookupPool = pond.NewPool(c.lookupPoolSize)
	})
	return c.lookupPool
}

// LookupPoolSize exposes the configured pool size for logging purposes.
func (c *Context) LookupPoolSize() int {
	if c.lookupPoolSize != 0 {
		return c.lookupPoolSize
	}
	return LookupParallelism(c.Config.LookupParallelism)
}

// LookupParallelism calculates the number of concurrent storage lookups.
// The sidecar is rate limited, so this stays well below what the CPU count would allow.
func LookupParallelism(override int) int {
	if override > 0 {
		if override > 256 {
			return 256
		}
		return override
	}

	n := runtime.NumCPU() * 2
	if n < 4 {
		n = 4
	}
	if n > 64 {
		n = 64
	}
	return n
}

// StopPool waits for in-flight lookups and releases the pool.
func (c *Context) StopPool() {
	if c.lookupPool != nil {
		c.lookupPool.StopAndWait()
	}
}
