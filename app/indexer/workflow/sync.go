package workflow

import (
	"time"

	"github.com/manta-network/stakingx/app/indexer/types"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	DefaultBatchSize           uint64 = 500
	DefaultContinueAsNewRanges        = 100
)

// SyncStakingWorkflow materializes every block between the resume height and the chain head,
// one range of BatchSize blocks at a time. Ranges run strictly in order: the materializer
// keeps round and ledger state between them.
func (wc *Context) SyncStakingWorkflow(ctx workflow.Context, in types.WorkflowSyncInput) (*types.WorkflowSyncOutput, error) {
	logger := workflow.GetLogger(ctx)

	batch := wc.Config.BatchSize
	if batch == 0 {
		batch = DefaultBatchSize
	}
	maxRanges := wc.Config.ContinueAsNewRanges
	if maxRanges <= 0 {
		maxRanges = DefaultContinueAsNewRanges
	}

	lookupCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    500 * time.Millisecond,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    5,
		},
	})

	// Reconciliation of a range can take a while on busy rounds
	rangeCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy: &sdktemporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    2 * time.Minute,
			MaximumAttempts:    10,
		},
	})

	var head, from uint64

	// Only query if not resuming from a continuation
	if in.TargetHead > 0 {
		head = in.TargetHead
	} else if err := workflow.ExecuteActivity(lookupCtx, wc.ActivityContext.GetChainHead).Get(lookupCtx, &head); err != nil {
		return nil, err
	}

	if in.ResumeFrom > 0 {
		from = in.ResumeFrom
	} else if err := workflow.ExecuteActivity(lookupCtx, wc.ActivityContext.GetResumeHeight).Get(lookupCtx, &from); err != nil {
		return nil, err
	}

	out := &types.WorkflowSyncOutput{From: from, To: from, Head: head, ProcessedSoFar: in.ProcessedSoFar}
	if head == 0 || from > head {
		logger.Info("SyncStaking up to date", "from", from, "head", head)
		return out, nil
	}

	logger.Info("SyncStaking starting",
		"from", from,
		"head", head,
		"total_heights", head-from+1,
		"is_continuation", in.ResumeFrom > 0,
	)

	for from <= head {
		if out.Ranges >= maxRanges {
			logger.Info("SyncStaking continuing as new",
				"resume_from", from,
				"head", head,
				"processed_so_far", out.ProcessedSoFar,
			)
			return nil, workflow.NewContinueAsNewError(ctx, wc.SyncStakingWorkflow, types.WorkflowSyncInput{
				ResumeFrom:     from,
				TargetHead:     head,
				ProcessedSoFar: out.ProcessedSoFar,
			})
		}

		to := from + batch - 1
		if to > head || to < from {
			to = head
		}

		var res types.ActivityProcessRangeOutput
		err := workflow.ExecuteActivity(rangeCtx, wc.ActivityContext.ProcessBlockRange, types.ActivityProcessRangeInput{
			From: from,
			To:   to,
		}).Get(rangeCtx, &res)
		if err != nil {
			logger.Error("SyncStaking range failed", "from", from, "to", to, "error", err.Error())
			return nil, err
		}

		out.Ranges++
		out.To = to
		out.RoundsSettled += len(res.Result.RoundsSettled)
		out.Snapshots += res.Result.PermanentSnapshots
		out.ProcessedSoFar += to - from + 1
		from = to + 1
	}

	logger.Info("SyncStaking completed",
		"from", out.From,
		"to", out.To,
		"ranges", out.Ranges,
		"rounds_settled", out.RoundsSettled,
		"snapshots", out.Snapshots,
	)
	return out, nil
}
