package staking

import (
	"math/big"
	"time"
)

// DelegatorAccountColumns defines the schema for the delegator_accounts table.
// Delegations are stored as two parallel arrays to keep them positional.
var DelegatorAccountColumns = []ColumnDef{
	{Name: "id", Type: "String", Codec: "ZSTD(1)"},
	{Name: "delegation_owners", Type: "Array(String)", Codec: "ZSTD(1)"},
	{Name: "delegation_amounts", Type: "Array(UInt128)", Codec: "ZSTD(3)"},
	{Name: "total_staked", Type: "UInt128", Codec: "ZSTD(3)"},
	{Name: "status", Type: "LowCardinality(String)"},
	{Name: "updated_at_block", Type: "UInt64", Codec: "Delta, ZSTD(3)"},
	{Name: "is_deleted", Type: "UInt8 DEFAULT 0"},
	{Name: "inserted_at", Type: "DateTime64(3) DEFAULT now64(3)"},
}

// DelegatorAccount is the delegation list of a delegator.
type DelegatorAccount struct {
	ID                string     `ch:"id" json:"id"`
	DelegationOwners  []string   `ch:"delegation_owners" json:"-"`
	DelegationAmounts []*big.Int `ch:"delegation_amounts" json:"-"`
	TotalStaked       *big.Int   `ch:"total_staked" json:"total_staked"`
	Status            string     `ch:"status" json:"status"`
	UpdatedAtBlock    uint64     `ch:"updated_at_block" json:"updated_at_block"`
	IsDeleted         uint8      `ch:"is_deleted" json:"-"`
	InsertedAt        time.Time  `ch:"inserted_at" json:"-"`
}

// DelegationBond is one (collator, amount) pair of a delegator.
type DelegationBond struct {
	Owner  string   `json:"owner"`
	Amount *big.Int `json:"amount"`
}

// Delegations zips the parallel arrays back into bonds.
func (d *DelegatorAccount) Delegations() []DelegationBond {
	n := len(d.DelegationOwners)
	if len(d.DelegationAmounts) < n {
		n = len(d.DelegationAmounts)
	}
	out := make([]DelegationBond, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, DelegationBond{Owner: d.DelegationOwners[i], Amount: d.DelegationAmounts[i]})
	}
	return out
}
