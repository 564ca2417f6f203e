package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/manta-network/stakingx/pkg/ss58"
	"github.com/manta-network/stakingx/pkg/staking"
	"go.uber.org/zap"
)

// Publisher is the subset of Client the notifier writes through.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	XAdd(ctx context.Context, stream string, values map[string]interface{}) (string, error)
}

// Notifier implements staking.Notifier on Redis. Settled rounds go to the network's rounds
// stream and to Pub/Sub; checkpoints only to Pub/Sub.
type Notifier struct {
	publisher Publisher
	network   string
	codec     ss58.Codec
	logger    *zap.Logger
	now       func() time.Time
}

var _ staking.Notifier = (*Notifier)(nil)

// NewNotifier returns a notifier publishing for network. Account ids are SS58 encoded with codec.
func NewNotifier(publisher Publisher, network string, codec ss58.Codec, logger *zap.Logger) *Notifier {
	return &Notifier{
		publisher: publisher,
		network:   network,
		codec:     codec,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RoundSettled publishes the records of a settled round.
func (n *Notifier) RoundSettled(ctx context.Context, round staking.RoundInfo, records []*staking.RoundRecord) error {
	event := RoundSettledEvent{
		Event:      EventRoundSettled,
		Network:    n.network,
		Round:      round.Number,
		StartBlock: round.StartBlock,
		Rewards:    make([]RoundRewardPayload, 0, len(records)),
		Timestamp:  n.now(),
	}

	total := new(uint256.Int)
	for _, rec := range records {
		address, err := n.codec.EncodeHex(rec.CollatorID.String())
		if err != nil {
			return fmt.Errorf("encode collator %s: %w", rec.CollatorID, err)
		}
		total.Add(total, rec.StakingRewards)
		event.BlockNumber = rec.BlockNumber
		event.Rewards = append(event.Rewards, RoundRewardPayload{
			Collator:       address,
			StakingRewards: rec.StakingRewards.Dec(),
		})
	}
	event.Total = total.Dec()

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	id, err := n.publisher.XAdd(ctx, RoundsStream(n.network), map[string]interface{}{
		"round": round.Number,
		"data":  string(payload),
	})
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(ctx, Channel(n.network, EventRoundSettled), payload); err != nil {
		return err
	}

	n.logger.Debug("Published round.settled event",
		zap.String("network", n.network),
		zap.Uint32("round", round.Number),
		zap.Int("records", len(records)),
		zap.String("streamId", id))
	return nil
}

// CheckpointWritten publishes a persisted chain state.
func (n *Notifier) CheckpointWritten(ctx context.Context, state *staking.ChainState) error {
	event := CheckpointEvent{
		Event:               EventCheckpointWritten,
		Network:             n.network,
		ID:                  state.ID,
		Live:                state.Live(),
		BlockNumber:         state.BlockNumber,
		BlockTime:           state.Timestamp,
		DelegatorCount:      state.DelegatorCount,
		ActiveCollatorCount: state.ActiveCollatorCount,
		Round:               state.Round.Number,
		Timestamp:           n.now(),
	}
	if state.TotalStaked != nil {
		event.TotalStaked = state.TotalStaked.Dec()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return n.publisher.Publish(ctx, Channel(n.network, EventCheckpointWritten), payload)
}
