package staking

import (
	"context"

	"github.com/holiman/uint256"
)

// Storage performs point lookups of ParachainStaking storage at a block height.
//
// A value absent for the key is reported as a nil result and a nil error. A storage item
// missing from the runtime is reported as ErrSchemaAbsent and an unknown item version
// as *SchemaVersionError.
type Storage interface {
	TotalStaked(ctx context.Context, height uint64) (*uint256.Int, error)
	SelectedCollators(ctx context.Context, height uint64) ([]AccountID, error)
	DelegatorState(ctx context.Context, height uint64, id AccountID) (*DelegatorState, error)
	CandidateState(ctx context.Context, height uint64, id AccountID) (*CandidateState, error)
	Round(ctx context.Context, height uint64) (*RoundInfo, error)
}

// Store persists materialized staking state. ApplyAccounts must report partial application
// through *PersistenceError.
type Store interface {
	ApplyAccounts(ctx context.Context, batch *AccountBatch) error
	CountDelegators(ctx context.Context) (uint64, error)
	InsertChainState(ctx context.Context, state *ChainState) error
	InsertRoundRecords(ctx context.Context, records []*RoundRecord) error
	LatestChainState(ctx context.Context, permanent bool) (*ChainState, error)
	LatestRoundRecord(ctx context.Context) (*RoundRecord, error)
}

// Notifier publishes best-effort notifications about written state.
type Notifier interface {
	RoundSettled(ctx context.Context, round RoundInfo, records []*RoundRecord) error
	CheckpointWritten(ctx context.Context, state *ChainState) error
}
