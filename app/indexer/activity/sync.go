package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/manta-network/stakingx/app/indexer/types"
	"github.com/manta-network/stakingx/pkg/staking"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// DefaultStartHeight is the first block processed on an empty database.
const DefaultStartHeight uint64 = 2_183_941

// GetChainHead returns the latest block height known to the decoder sidecar.
func (c *Context) GetChainHead(ctx context.Context) (uint64, error) {
	head, err := c.rpcClient().ChainHead(ctx)
	if err != nil {
		return 0, sdktemporal.NewApplicationErrorWithCause("unable to fetch chain head", "rpc_error", err)
	}
	return head, nil
}

// GetResumeHeight returns the first height not yet covered by the live chain state,
// or the configured start height when nothing has been written yet.
func (c *Context) GetResumeHeight(ctx context.Context) (uint64, error) {
	live, err := c.Store.LatestChainState(ctx, false)
	if err != nil {
		return 0, sdktemporal.NewApplicationErrorWithCause("unable to load live chain state", "db_error", err)
	}

	start := c.Config.StartHeight
	if start == 0 {
		start = DefaultStartHeight
	}
	if live == nil || live.BlockNumber+1 < start {
		return start, nil
	}
	return live.BlockNumber + 1, nil
}

// ProcessBlockRange feeds [in.From, in.To] to the network materializer. When the
// materializer is not positioned at in.From it is recovered first, which may move the
// fetch start back to the beginning of the current round.
func (c *Context) ProcessBlockRange(ctx context.Context, in types.ActivityProcessRangeInput) (types.ActivityProcessRangeOutput, error) {
	start := time.Now()

	if in.To < in.From {
		return types.ActivityProcessRangeOutput{}, sdktemporal.NewNonRetryableApplicationError(
			fmt.Sprintf("invalid range [%d, %d]", in.From, in.To), "invalid_range", nil)
	}

	m := c.materializer()
	out := types.ActivityProcessRangeOutput{ReplayFrom: in.From}

	next, recovered := m.NextHeight()
	if !recovered || next != in.From {
		replay, err := m.Recover(ctx, in.From)
		if err != nil {
			return out, classify("recover_failed", err)
		}
		out.Recovered = true
		out.ReplayFrom = replay
		c.Logger.Info("Materializer recovered",
			zap.String("network", c.Network),
			zap.Uint64("resume", in.From),
			zap.Uint64("replay_from", replay),
		)
	}

	blocks, err := c.rpcClient().BlocksByRange(ctx, out.ReplayFrom, in.To)
	if err != nil {
		return out, sdktemporal.NewApplicationErrorWithCause("unable to fetch blocks", "rpc_error", err)
	}

	result, err := m.ProcessRange(ctx, staking.Range{From: out.ReplayFrom, To: in.To, Blocks: blocks})
	if err != nil {
		return out, classify("process_failed", err)
	}
	out.Result = *result
	out.DurationMs = float64(time.Since(start).Microseconds()) / 1000.0

	c.Logger.Debug("Range processed",
		zap.String("network", c.Network),
		zap.Uint64("from", out.ReplayFrom),
		zap.Uint64("to", in.To),
		zap.Int("events", result.Events),
		zap.Uint32s("rounds_settled", result.RoundsSettled),
		zap.Bool("live_snapshot", result.LiveSnapshot),
		zap.Float64("duration_ms", out.DurationMs),
	)
	return out, nil
}

// CheckCoverage verifies every ParachainStaking event version the sidecar can emit is
// understood by the classifier. It runs once at startup.
func (c *Context) CheckCoverage(ctx context.Context) error {
	advertised, err := c.rpcClient().SupportedVersions(ctx)
	if err != nil {
		return fmt.Errorf("fetch supported event versions: %w", err)
	}
	return staking.CheckCoverage(advertised)
}

// classify maps materializer errors to Temporal errors. Fatal classes must not be retried:
// they need an operator or a code change.
func classify(errType string, err error) error {
	if staking.IsFatal(err) {
		return sdktemporal.NewNonRetryableApplicationError(err.Error(), "fatal_"+errType, err)
	}
	return sdktemporal.NewApplicationErrorWithCause(err.Error(), errType, err)
}
