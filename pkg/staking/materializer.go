package staking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/holiman/uint256"
	"github.com/manta-network/stakingx/pkg/db/entities"
	"github.com/manta-network/stakingx/pkg/metrics"
	"go.uber.org/zap"
)

// ErrNotRecovered is returned by ProcessRange before Recover succeeded.
var ErrNotRecovered = errors.New("materializer not recovered")

// Options configures a Materializer.
type Options struct {
	Network            string
	CheckpointInterval time.Duration
	Storage            Storage
	Store              Store
	Notifier           Notifier
	Pool               pond.Pool
	Logger             *zap.Logger
	Metrics            *metrics.Staking
}

// Range is a delivered, ascending run of blocks ending at To.
type Range struct {
	From   uint64
	To     uint64
	Blocks []Block
}

// RangeResult summarizes one ProcessRange call.
type RangeResult struct {
	From               uint64    `json:"from"`
	To                 uint64    `json:"to"`
	Blocks             int       `json:"blocks"`
	Events             int       `json:"events"`
	RoundsSettled      []uint32  `json:"rounds_settled,omitempty"`
	RoundRecords       int       `json:"round_records"`
	PermanentSnapshots int       `json:"permanent_snapshots"`
	LiveSnapshot       bool      `json:"live_snapshot"`
	DirtyLeft          int       `json:"dirty_left"`
	PendingRewards     int       `json:"pending_rewards"`
	Round              RoundInfo `json:"round"`
}

type collatorSet struct {
	round uint32
	ids   []AccountID
}

// Materializer turns ParachainStaking events into persisted accounts, chain states and
// round records. Calls are serialized; state is rebuilt by Recover after any failure.
type Materializer struct {
	mu sync.Mutex

	network    string
	storage    Storage
	store      Store
	notifier   Notifier
	reconciler *Reconciler
	logger     *zap.Logger
	metrics    *metrics.Staking
	interval   time.Duration

	dirty           *DirtySet
	ledger          *Ledger
	rounds          RoundTracker
	scheduler       *Scheduler
	collators       *collatorSet
	activeCollators uint64
	lastPermanent   *ChainState

	recovered bool
	next      uint64
}

func NewMaterializer(opts Options) *Materializer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("network", opts.Network))

	pool := opts.Pool
	if pool == nil {
		pool = pond.NewPool(16)
	}

	m := &Materializer{
		network:  opts.Network,
		storage:  opts.Storage,
		store:    opts.Store,
		notifier: opts.Notifier,
		logger:   logger,
		metrics:  opts.Metrics,
		interval: opts.CheckpointInterval,
		reconciler: &Reconciler{
			Storage: opts.Storage,
			Pool:    pool,
			Logger:  logger,
			Metrics: opts.Metrics,
			Network: opts.Network,
		},
	}
	m.reset()
	return m
}

func (m *Materializer) reset() {
	m.dirty = NewDirtySet()
	m.ledger = NewLedger()
	m.rounds = RoundTracker{}
	m.scheduler = NewScheduler(m.interval, time.Time{})
	m.collators = nil
	m.activeCollators = 0
	m.lastPermanent = nil
	m.recovered = false
	m.next = 0
}

// NextHeight returns the next height ProcessRange expects, or false when recovery is needed.
func (m *Materializer) NextHeight() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next, m.recovered
}

// Round returns the round tracker state.
func (m *Materializer) Round() RoundTracker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rounds
}

// Recover rebuilds process state for resuming at height resume and returns the height
// processing must restart from. When the runtime exposes the Round item, processing replays
// from the start of the round containing resume-1 so its reward ledger is complete.
// Otherwise the round is taken from the latest RoundRecord and rewards already paid in the
// current round are not recovered.
func (m *Materializer) Recover(ctx context.Context, resume uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reset()

	permanent, err := m.store.LatestChainState(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("load latest chain state: %w", err)
	}
	if permanent != nil {
		m.scheduler.Last = permanent.Timestamp
		m.lastPermanent = permanent
		m.activeCollators = permanent.ActiveCollatorCount
	}

	start := resume
	replay := false
	if resume > 0 {
		info, roundErr := m.storage.Round(ctx, resume-1)
		var schemaErr *SchemaVersionError
		switch {
		case errors.As(roundErr, &schemaErr):
			return 0, roundErr
		case roundErr != nil && !errors.Is(roundErr, ErrSchemaAbsent):
			return 0, fmt.Errorf("load round at %d: %w", resume-1, roundErr)
		case roundErr == nil && info != nil && info.StartBlock > 0 && info.StartBlock < resume:
			start = info.StartBlock
			replay = true
		}
	}

	if !replay {
		if err := m.recoverRound(ctx); err != nil {
			return 0, err
		}
		if resume > 0 && !m.rounds.Current.IsZero() {
			if err := m.fetchCollators(ctx, resume-1, m.rounds.Current.Number); err != nil {
				return 0, err
			}
		}
	}

	m.next = start
	m.recovered = true

	m.logger.Info("materializer recovered",
		zap.Uint64("resume", resume),
		zap.Uint64("start", start),
		zap.Bool("replay", replay),
		zap.Uint32("round", m.rounds.Current.Number),
		zap.Time("lastCheckpoint", m.scheduler.Last),
	)
	return start, nil
}

// recoverRound restores the round tracker from persisted state. The live chain state carries
// the round in progress; failing that, the round after the latest RoundRecord is assumed with
// an unknown start block, and its settlement is deferred.
func (m *Materializer) recoverRound(ctx context.Context) error {
	live, err := m.store.LatestChainState(ctx, false)
	if err != nil {
		return fmt.Errorf("load live chain state: %w", err)
	}
	record, err := m.store.LatestRoundRecord(ctx)
	if err != nil {
		return fmt.Errorf("load latest round record: %w", err)
	}

	if record != nil {
		m.rounds.Previous = RoundInfo{Number: record.RoundNumber, StartBlock: record.BlockNumber}
	}
	switch {
	case live != nil && live.Round.Number > 0 && (record == nil || live.Round.Number > record.RoundNumber):
		m.rounds.Current = live.Round
	case record != nil:
		m.rounds.Current = RoundInfo{Number: record.RoundNumber + 1}
	}
	return nil
}

// ProcessRange applies a delivered range block by block, fires permanent checkpoints when
// due and writes the live chain state at the last block. Any error invalidates the in-memory
// state; the caller must Recover and redeliver.
func (m *Materializer) ProcessRange(ctx context.Context, rng Range) (result *RangeResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recovered {
		return nil, ErrNotRecovered
	}
	defer func() {
		if err != nil {
			m.logger.Warn("range failed, state invalidated",
				zap.Uint64("from", rng.From),
				zap.Uint64("to", rng.To),
				zap.Bool("fatal", IsFatal(err)),
				zap.Error(err),
			)
			m.reset()
		}
	}()

	if rng.From != m.next {
		return nil, fmt.Errorf("%w: range starts at %d, expected %d", ErrOutOfOrder, rng.From, m.next)
	}

	result = &RangeResult{From: rng.From, To: rng.To}
	var last *Block
	for i := range rng.Blocks {
		b := &rng.Blocks[i]
		if b.Height < m.next || b.Height > rng.To {
			return nil, fmt.Errorf("%w: block %d outside [%d, %d]", ErrOutOfOrder, b.Height, m.next, rng.To)
		}
		if err := m.processBlock(ctx, b, result); err != nil {
			return nil, fmt.Errorf("block %d: %w", b.Height, err)
		}
		m.next = b.Height + 1
		last = b
		result.Blocks++
	}

	if last != nil {
		written, err := m.checkpoint(ctx, last, false)
		if err != nil {
			return nil, fmt.Errorf("live checkpoint at %d: %w", last.Height, err)
		}
		result.LiveSnapshot = written
		m.metrics.Height(m.network, last.Height)
	}
	m.next = rng.To + 1

	result.DirtyLeft = m.dirty.Len()
	result.PendingRewards = m.ledger.Len()
	result.Round = m.rounds.Current
	return result, nil
}

func (m *Materializer) processBlock(ctx context.Context, b *Block, result *RangeResult) error {
	for _, ev := range b.Events {
		effect, err := Classify(ev)
		if err != nil {
			return fmt.Errorf("event %d: %w", ev.Index, err)
		}
		m.metrics.Event(m.network, effect.Kind.String())
		result.Events++

		switch effect.Kind {
		case EffectMarkDirty:
			m.dirty.Apply(effect)
		case EffectReward:
			if err := m.ledger.Add(effect.Account, effect.Amount); err != nil {
				return err
			}
			m.dirty.MarkDelegator(effect.Account)
		case EffectRoundTransition:
			records, settled, err := m.transition(ctx, b, effect.Round)
			if err != nil {
				return err
			}
			if settled {
				result.RoundsSettled = append(result.RoundsSettled, m.rounds.Previous.Number)
				result.RoundRecords += records
			}
		}
	}

	if m.scheduler.Due(b.Timestamp) {
		written, err := m.checkpoint(ctx, b, true)
		if err != nil {
			return fmt.Errorf("permanent checkpoint: %w", err)
		}
		if written {
			result.PermanentSnapshots++
		}
	}
	return nil
}

// transition settles the superseded round and captures the collator set of the new one.
func (m *Materializer) transition(ctx context.Context, b *Block, next RoundInfo) (int, bool, error) {
	previous, err := m.rounds.Advance(next)
	if err != nil {
		return 0, false, err
	}

	records, settled, err := m.settle(ctx, previous)
	if err != nil {
		return 0, false, err
	}

	if err := m.fetchCollators(ctx, b.Height, next.Number); err != nil {
		return 0, false, err
	}
	return records, settled, nil
}

func (m *Materializer) settle(ctx context.Context, round RoundInfo) (int, bool, error) {
	if m.ledger.Len() == 0 {
		m.collators = nil
		return 0, false, nil
	}
	if round.Number == 0 || round.StartBlock == 0 {
		m.metrics.SettlementDeferred(m.network)
		m.logger.Warn("round start unknown, settlement deferred",
			zap.Uint32("round", round.Number),
			zap.Int("pendingRewards", m.ledger.Len()),
		)
		return 0, false, nil
	}
	if m.collators == nil || m.collators.round != round.Number {
		m.metrics.SettlementDeferred(m.network)
		m.logger.Warn("selected collators unavailable, settlement deferred",
			zap.Uint32("round", round.Number),
			zap.Uint64("roundStart", round.StartBlock),
			zap.Int("pendingRewards", m.ledger.Len()),
		)
		return 0, false, nil
	}

	settlement := Settle(m.ledger.Entries(), m.collators.ids, round)
	if len(settlement.Orphaned) > 0 {
		m.logger.Warn("rewards paid before any selected collator were not attributed",
			zap.Uint32("round", round.Number),
			zap.Int("orphaned", len(settlement.Orphaned)),
			zap.String("firstAccount", settlement.Orphaned[0].Account.String()),
		)
	}

	if len(settlement.Records) > 0 {
		if err := m.store.InsertRoundRecords(ctx, settlement.Records); err != nil {
			return 0, false, asPersistenceError(entities.RoundRecords, nil, err)
		}
		if m.notifier != nil {
			if err := m.notifier.RoundSettled(ctx, round, settlement.Records); err != nil {
				m.logger.Warn("round settlement notification failed", zap.Uint32("round", round.Number), zap.Error(err))
			}
		}
	}

	m.metrics.RoundSettled(m.network, len(settlement.Records), len(settlement.Orphaned))
	m.logger.Info("round settled",
		zap.Uint32("round", round.Number),
		zap.Uint64("roundStart", round.StartBlock),
		zap.Int("records", len(settlement.Records)),
		zap.String("total", settlement.Total().Dec()),
	)

	m.ledger.Reset()
	m.collators = nil
	return len(settlement.Records), true, nil
}

// fetchCollators caches the collator set selected for round. An unavailable set is logged
// and leaves settlement of that round deferred.
func (m *Materializer) fetchCollators(ctx context.Context, height uint64, round uint32) error {
	started := time.Now()
	ids, err := m.storage.SelectedCollators(ctx, height)
	m.metrics.Lookup(m.network, "SelectedCandidates", started, err)

	var schemaErr *SchemaVersionError
	if errors.As(err, &schemaErr) {
		return err
	}
	if err != nil || ids == nil {
		m.collators = nil
		m.logger.Warn("selected collators unavailable",
			zap.Uint64("height", height),
			zap.Uint32("round", round),
			zap.Error(unavailable("SelectedCandidates", "", height, orAbsent(err))),
		)
		return nil
	}

	m.collators = &collatorSet{round: round, ids: ids}
	m.activeCollators = uint64(len(ids))
	return nil
}

// checkpoint reconciles dirty accounts at b and writes a chain state. It reports false when
// the chain state was skipped because total stake was unavailable.
func (m *Materializer) checkpoint(ctx context.Context, b *Block, permanent bool) (bool, error) {
	if permanent && m.lastPermanent != nil &&
		(b.Height < m.lastPermanent.BlockNumber || b.Timestamp.Before(m.lastPermanent.Timestamp)) {
		return false, fmt.Errorf("%w: block %d at %s precedes snapshot at block %d",
			ErrSnapshotRegression, b.Height, b.Timestamp, m.lastPermanent.BlockNumber)
	}

	rec, err := m.reconciler.Reconcile(ctx, b.Height, m.dirty.Collators(), m.dirty.Delegators())
	if err != nil {
		return false, err
	}

	var applied []entities.Entity
	if !rec.Batch.Empty() {
		if err := m.store.ApplyAccounts(ctx, rec.Batch); err != nil {
			return false, asPersistenceError(entities.CollatorAccounts, nil, err)
		}
		applied = append(applied, entities.CollatorAccounts, entities.DelegatorAccounts)
	}
	m.dirty.Settle(rec.Collators, rec.Delegators)

	delegators, err := m.store.CountDelegators(ctx)
	if err != nil {
		return false, asPersistenceError(entities.DelegatorAccounts, applied, err)
	}

	started := time.Now()
	total, err := m.storage.TotalStaked(ctx, b.Height)
	m.metrics.Lookup(m.network, "Total", started, err)
	var schemaErr *SchemaVersionError
	if errors.As(err, &schemaErr) {
		return false, err
	}
	if err != nil || total == nil {
		m.logger.Warn("total stake unavailable, chain state skipped",
			zap.Uint64("height", b.Height),
			zap.Bool("permanent", permanent),
			zap.Error(unavailable("Total", "", b.Height, orAbsent(err))),
		)
		return false, nil
	}

	state := &ChainState{
		ID:                  LiveChainStateID,
		DelegatorCount:      delegators,
		ActiveCollatorCount: m.activeCollators,
		TotalStaked:         new(uint256.Int).Set(total),
		Timestamp:           b.Timestamp,
		BlockNumber:         b.Height,
		Round:               RoundInfo{Number: m.rounds.Current.Number, StartBlock: m.rounds.Current.StartBlock},
	}
	if permanent {
		state.ID = BlockIdentity(b.Height, b.Hash)
	}

	if err := m.store.InsertChainState(ctx, state); err != nil {
		return false, asPersistenceError(entities.ChainStates, applied, err)
	}

	if permanent {
		m.scheduler.Mark(b.Timestamp)
		m.lastPermanent = state
		m.logger.Info("chain state snapshot written",
			zap.Uint64("height", b.Height),
			zap.Uint64("delegators", delegators),
			zap.Uint64("activeCollators", m.activeCollators),
			zap.String("totalStaked", total.Dec()),
		)
	}
	if m.notifier != nil {
		if err := m.notifier.CheckpointWritten(ctx, state); err != nil {
			m.logger.Warn("checkpoint notification failed", zap.Uint64("height", b.Height), zap.Error(err))
		}
	}
	m.metrics.Checkpoint(m.network, permanent, m.dirty.Len())
	return true, nil
}

func asPersistenceError(entity entities.Entity, applied []entities.Entity, err error) error {
	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		return err
	}
	return &PersistenceError{Entity: entity, Applied: applied, Err: err}
}

var errValueAbsent = errors.New("value absent")

func orAbsent(err error) error {
	if err == nil {
		return errValueAbsent
	}
	return err
}
