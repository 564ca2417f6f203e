package staking

import (
	"context"

	"github.com/manta-network/stakingx/pkg/db/entities"
	stakingmodels "github.com/manta-network/stakingx/pkg/db/models/staking"
	core "github.com/manta-network/stakingx/pkg/staking"
)

// Store describes the per-network staking database: the writes of the materializer and the
// reads of the query API.
type Store interface {
	core.Store

	DatabaseName() string
	InitializeDB(ctx context.Context) error
	Compact(ctx context.Context, only ...entities.Entity) ([]entities.Entity, error)
	Close() error

	// --- Queries (accounts are addressed by SS58 address)

	GetCollator(ctx context.Context, address string) (*stakingmodels.CollatorAccount, error)
	ListCollators(ctx context.Context, limit int) ([]*stakingmodels.CollatorAccount, error)
	GetDelegator(ctx context.Context, address string) (*stakingmodels.DelegatorAccount, error)
	GetLiveChainState(ctx context.Context) (*stakingmodels.ChainState, error)
	ListChainStates(ctx context.Context, beforeBlock uint64, limit int) ([]*stakingmodels.ChainState, error)
	ListRoundRecords(ctx context.Context, round uint32) ([]*stakingmodels.RoundRecord, error)
	ListCollatorRounds(ctx context.Context, address string, beforeRound uint32, limit int) ([]*stakingmodels.RoundRecord, error)
}

var _ Store = (*DB)(nil)
