package staking

import (
	"math/big"
	"time"
)

// ChainStateColumns defines the schema for the chain_states table.
var ChainStateColumns = []ColumnDef{
	{Name: "id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "delegator_count", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "active_collator_count", Type: "UInt64", Codec: "ZSTD(1)"},
	{Name: "total_staked", Type: "UInt128", Codec: "ZSTD(3)"},
	{Name: "timestamp", Type: "DateTime64(3)", Codec: "DoubleDelta, ZSTD(1)"},
	{Name: "block_number", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "round_number", Type: "UInt32", Codec: "Delta, ZSTD(1)"},
	{Name: "round_start_block", Type: "UInt64", Codec: "Delta, ZSTD(1)"},
	{Name: "is_live", Type: "UInt8 DEFAULT 0"},
}

// ChainState is a chain-wide staking summary. The live row has id "0" and is replaced on
// every range; permanent snapshots are keyed by block identity.
type ChainState struct {
	ID                  string    `ch:"id" json:"id"`
	DelegatorCount      uint64    `ch:"delegator_count" json:"delegator_count"`
	ActiveCollatorCount uint64    `ch:"active_collator_count" json:"active_collator_count"`
	TotalStaked         *big.Int  `ch:"total_staked" json:"total_staked"`
	Timestamp           time.Time `ch:"timestamp" json:"timestamp"`
	BlockNumber         uint64    `ch:"block_number" json:"block_number"`
	RoundNumber         uint32    `ch:"round_number" json:"round_number"`
	RoundStartBlock     uint64    `ch:"round_start_block" json:"round_start_block"`
	IsLive              uint8     `ch:"is_live" json:"-"`
}
