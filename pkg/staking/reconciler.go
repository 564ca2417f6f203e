package staking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/holiman/uint256"
	"github.com/manta-network/stakingx/pkg/metrics"
	"go.uber.org/zap"
)

// Reconciler re-derives dirty accounts from storage at a checkpoint height.
type Reconciler struct {
	Storage Storage
	Pool    pond.Pool
	Logger  *zap.Logger
	Metrics *metrics.Staking
	Network string
}

// Reconciliation is the result of one reconcile pass. Collators and Delegators list the ids
// resolved into Batch; ids left out stay dirty.
type Reconciliation struct {
	Batch      *AccountBatch
	Collators  []AccountID
	Delegators []AccountID
	Deferred   []error
}

type lookupResult struct {
	collator  *CandidateState
	delegator *DelegatorState
	err       error
}

// Reconcile looks every id up at height. Lookups fan out on the pool; results are applied in
// id order. A *SchemaVersionError aborts the pass.
func (r *Reconciler) Reconcile(ctx context.Context, height uint64, collators, delegators []AccountID) (*Reconciliation, error) {
	collatorResults := make([]lookupResult, len(collators))
	delegatorResults := make([]lookupResult, len(delegators))

	if len(collators)+len(delegators) > 0 {
		group := r.Pool.NewGroupContext(ctx)
		groupCtx := group.Context()

		for i, id := range collators {
			group.Submit(func() {
				if err := groupCtx.Err(); err != nil {
					collatorResults[i].err = err
					return
				}
				started := time.Now()
				state, err := r.Storage.CandidateState(groupCtx, height, id)
				r.Metrics.Lookup(r.Network, "CandidateInfo", started, err)
				collatorResults[i] = lookupResult{collator: state, err: err}
			})
		}
		for i, id := range delegators {
			group.Submit(func() {
				if err := groupCtx.Err(); err != nil {
					delegatorResults[i].err = err
					return
				}
				started := time.Now()
				state, err := r.Storage.DelegatorState(groupCtx, height, id)
				r.Metrics.Lookup(r.Network, "DelegatorState", started, err)
				delegatorResults[i] = lookupResult{delegator: state, err: err}
			})
		}

		if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pond.ErrGroupStopped) {
			r.Logger.Warn("parallel storage lookups encountered error",
				zap.Uint64("height", height),
				zap.Error(err),
			)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := &Reconciliation{Batch: &AccountBatch{Height: height}}

	for i, id := range collators {
		res := collatorResults[i]
		if res.err != nil {
			if deferErr := r.deferOrFail("CandidateInfo", id, height, res.err); deferErr != nil {
				return nil, deferErr
			}
			out.Deferred = append(out.Deferred, unavailable("CandidateInfo", id.String(), height, res.err))
			continue
		}
		out.Collators = append(out.Collators, id)
		if res.collator == nil || isZero(res.collator.Total) {
			out.Batch.CollatorRemovals = append(out.Batch.CollatorRemovals, id)
			continue
		}
		out.Batch.CollatorUpserts = append(out.Batch.CollatorUpserts, &CollatorAccount{
			ID:              id,
			SelfBond:        orZero(res.collator.SelfBond),
			DelegationCount: res.collator.DelegationCount,
			TotalBond:       res.collator.Total,
			Status:          res.collator.Status,
			UpdatedAtBlock:  height,
		})
	}

	for i, id := range delegators {
		res := delegatorResults[i]
		if res.err != nil {
			if deferErr := r.deferOrFail("DelegatorState", id, height, res.err); deferErr != nil {
				return nil, deferErr
			}
			out.Deferred = append(out.Deferred, unavailable("DelegatorState", id.String(), height, res.err))
			continue
		}
		out.Delegators = append(out.Delegators, id)
		if res.delegator == nil || isZero(res.delegator.Total) {
			out.Batch.DelegatorRemovals = append(out.Batch.DelegatorRemovals, id)
			continue
		}
		out.Batch.DelegatorUpserts = append(out.Batch.DelegatorUpserts, &DelegatorAccount{
			ID:             id,
			Delegations:    res.delegator.Delegations,
			TotalStaked:    res.delegator.Total,
			Status:         res.delegator.Status,
			UpdatedAtBlock: height,
		})
	}

	if len(out.Deferred) > 0 {
		r.Logger.Warn("accounts left dirty after reconciliation",
			zap.Uint64("height", height),
			zap.Int("deferred", len(out.Deferred)),
			zap.Error(out.Deferred[0]),
		)
	}
	return out, nil
}

// deferOrFail returns a non-nil error when the lookup failure must abort the pass.
func (r *Reconciler) deferOrFail(item string, id AccountID, height uint64, err error) error {
	var schemaErr *SchemaVersionError
	if errors.As(err, &schemaErr) {
		return fmt.Errorf("reconcile %s %s at %d: %w", item, id, height, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func isZero(v *uint256.Int) bool {
	return v == nil || v.IsZero()
}

func orZero(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return v
}
