package staking

import (
	"math/big"
	"time"
)

// RoundRecordColumns defines the schema for the round_records table.
var RoundRecordColumns = []ColumnDef{
	{Name: "collator_id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "round_number", Type: "UInt32", Codec: "Delta, ZSTD(3)"},
	{Name: "block_number", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "staking_rewards", Type: "UInt128", Codec: "ZSTD(3)"},
	{Name: "inserted_at", Type: "DateTime64(3) DEFAULT now64(3)"},
}

// RoundRecord is the settled reward of a collator's delegation set in one round.
// Keyed by (collator_id, round_number) so every round is retained.
type RoundRecord struct {
	CollatorID     string    `ch:"collator_id" json:"collator_id"`
	RoundNumber    uint32    `ch:"round_number" json:"round_number"`
	BlockNumber    uint64    `ch:"block_number" json:"block_number"`
	StakingRewards *big.Int  `ch:"staking_rewards" json:"staking_rewards"`
	InsertedAt     time.Time `ch:"inserted_at" json:"-"`
}
