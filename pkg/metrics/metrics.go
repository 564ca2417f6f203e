// Package metrics exposes the indexer's Prometheus instruments. A nil *Staking is a valid
// no-op recorder so tests and tools can skip registration.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stakingx"

// Staking groups the instruments of the materializer for one process.
type Staking struct {
	events          *prometheus.CounterVec
	rewardsSettled  *prometheus.CounterVec
	orphanedRewards *prometheus.CounterVec
	deferredRounds  *prometheus.CounterVec
	checkpoints     *prometheus.CounterVec
	lookups         *prometheus.HistogramVec
	unavailable     *prometheus.CounterVec
	dirtyAccounts   *prometheus.GaugeVec
	height          *prometheus.GaugeVec
	registry        prometheus.Gatherer
}

// New registers the staking instruments on reg. Passing nil uses a fresh registry.
func New(reg *prometheus.Registry) (*Staking, error) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Staking{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_total",
			Help: "Classified ParachainStaking events by effect.",
		}, []string{"network", "effect"}),
		rewardsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "round_records_total",
			Help: "Round records emitted by reward settlement.",
		}, []string{"network"}),
		orphanedRewards: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "orphaned_rewards_total",
			Help: "Reward payouts that preceded any selected collator in a round ledger.",
		}, []string{"network"}),
		deferredRounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "deferred_settlements_total",
			Help: "Round settlements skipped because the selected collator set was unavailable.",
		}, []string{"network"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "checkpoints_total",
			Help: "Checkpoints written by kind (live, permanent).",
		}, []string{"network", "kind"}),
		lookups: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "storage_lookup_seconds",
			Help:    "Latency of storage point lookups.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"network", "item"}),
		unavailable: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "storage_unavailable_total",
			Help: "Storage lookups that produced no usable value.",
		}, []string{"network", "item"}),
		dirtyAccounts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dirty_accounts",
			Help: "Accounts left dirty after the last checkpoint.",
		}, []string{"network"}),
		height: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Name: "processed_height",
			Help: "Last block height processed.",
		}, []string{"network"}),
		registry: reg,
	}

	for _, c := range []prometheus.Collector{
		m.events, m.rewardsSettled, m.orphanedRewards, m.deferredRounds, m.checkpoints,
		m.lookups, m.unavailable, m.dirtyAccounts, m.height,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return nil, err
		}
	}
	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Staking) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Staking) Event(network, effect string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(network, effect).Inc()
}

func (m *Staking) RoundSettled(network string, records, orphaned int) {
	if m == nil {
		return
	}
	m.rewardsSettled.WithLabelValues(network).Add(float64(records))
	m.orphanedRewards.WithLabelValues(network).Add(float64(orphaned))
}

func (m *Staking) SettlementDeferred(network string) {
	if m == nil {
		return
	}
	m.deferredRounds.WithLabelValues(network).Inc()
}

func (m *Staking) Checkpoint(network string, permanent bool, dirtyLeft int) {
	if m == nil {
		return
	}
	kind := "live"
	if permanent {
		kind = "permanent"
	}
	m.checkpoints.WithLabelValues(network, kind).Inc()
	m.dirtyAccounts.WithLabelValues(network).Set(float64(dirtyLeft))
}

func (m *Staking) Lookup(network, item string, started time.Time, err error) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(network, item).Observe(time.Since(started).Seconds())
	if err != nil {
		m.unavailable.WithLabelValues(network, item).Inc()
	}
}

func (m *Staking) Height(network string, height uint64) {
	if m == nil {
		return
	}
	m.height.WithLabelValues(network).Set(float64(height))
}
