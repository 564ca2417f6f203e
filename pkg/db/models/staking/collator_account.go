package staking

import (
	"math/big"
	"time"
)

// CollatorAccountColumns defines the schema for the collator_accounts table.
var CollatorAccountColumns = []ColumnDef{
	{Name: "id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "self_bond", Type: "UInt128", Codec: "ZSTD(3)"},
	{Name: "delegation_count", Type: "UInt32", Codec: "ZSTD(1)"},
	{Name: "total_bond", Type: "UInt128", Codec: "ZSTD(3)"},
	{Name: "status", Type: "LowCardinality(String)"},
	{Name: "updated_at_block", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "is_deleted", Type: "UInt8 DEFAULT 0"},
	{Name: "inserted_at", Type: "DateTime64(3) DEFAULT now64(3)"},
}

// CollatorAccount is the latest bond breakdown of a collator.
// Rows are versioned by updated_at_block; a removal is a row with is_deleted=1 at the
// reconciliation height, collapsed by ReplacingMergeTree(updated_at_block, is_deleted).
type CollatorAccount struct {
	ID              string    `ch:"id" json:"id"`                             // SS58 address
	SelfBond        *big.Int  `ch:"self_bond" json:"self_bond"`               // Collator's own bond in base units
	DelegationCount uint32    `ch:"delegation_count" json:"delegation_count"` // Number of delegations backing the collator
	TotalBond       *big.Int  `ch:"total_bond" json:"total_bond"`             // Self bond plus delegations
	Status          string    `ch:"status" json:"status"`                     // Active, Idle or Leaving
	UpdatedAtBlock  uint64    `ch:"updated_at_block" json:"updated_at_block"` // Height of the reconciling checkpoint
	IsDeleted       uint8     `ch:"is_deleted" json:"-"`
	InsertedAt      time.Time `ch:"inserted_at" json:"-"`
}
