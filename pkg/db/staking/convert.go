package staking

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/holiman/uint256"
	stakingmodels "github.com/manta-network/stakingx/pkg/db/models/staking"
	"github.com/manta-network/stakingx/pkg/ss58"
	core "github.com/manta-network/stakingx/pkg/staking"
)

func toBig(v *uint256.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v.ToBig()
}

func fromBig(v *big.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return new(uint256.Int).SetAllOne()
	}
	return out
}

func address(codec ss58.Codec, id core.AccountID) (string, error) {
	addr, err := codec.EncodeHex(id.String())
	if err != nil {
		return "", fmt.Errorf("encode account %s: %w", id, err)
	}
	return addr, nil
}

func accountID(codec ss58.Codec, addr string) (core.AccountID, error) {
	raw, err := codec.Decode(addr)
	if err != nil {
		return "", fmt.Errorf("decode address %s: %w", addr, err)
	}
	return core.AccountID("0x" + hex.EncodeToString(raw)), nil
}

// collatorRows converts the collator part of a batch into upsert and tombstone rows.
func collatorRows(codec ss58.Codec, batch *core.AccountBatch) ([]*stakingmodels.CollatorAccount, error) {
	rows := make([]*stakingmodels.CollatorAccount, 0, len(batch.CollatorUpserts)+len(batch.CollatorRemovals))
	for _, c := range batch.CollatorUpserts {
		addr, err := address(codec, c.ID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &stakingmodels.CollatorAccount{
			ID:              addr,
			SelfBond:        toBig(c.SelfBond),
			DelegationCount: c.DelegationCount,
			TotalBond:       toBig(c.TotalBond),
			Status:          c.Status,
			UpdatedAtBlock:  c.UpdatedAtBlock,
		})
	}
	for _, id := range batch.CollatorRemovals {
		addr, err := address(codec, id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &stakingmodels.CollatorAccount{
			ID:             addr,
			SelfBond:       new(big.Int),
			TotalBond:      new(big.Int),
			UpdatedAtBlock: batch.Height,
			IsDeleted:      1,
		})
	}
	return rows, nil
}

// delegatorRows converts the delegator part of a batch into upsert and tombstone rows.
func delegatorRows(codec ss58.Codec, batch *core.AccountBatch) ([]*stakingmodels.DelegatorAccount, error) {
	rows := make([]*stakingmodels.DelegatorAccount, 0, len(batch.DelegatorUpserts)+len(batch.DelegatorRemovals))
	for _, d := range batch.DelegatorUpserts {
		addr, err := address(codec, d.ID)
		if err != nil {
			return nil, err
		}
		row := &stakingmodels.DelegatorAccount{
			ID:                addr,
			DelegationOwners:  make([]string, 0, len(d.Delegations)),
			DelegationAmounts: make([]*big.Int, 0, len(d.Delegations)),
			TotalStaked:       toBig(d.TotalStaked),
			Status:            d.Status,
			UpdatedAtBlock:    d.UpdatedAtBlock,
		}
		for _, bond := range d.Delegations {
			owner, err := address(codec, bond.Owner)
			if err != nil {
				return nil, err
			}
			row.DelegationOwners = append(row.DelegationOwners, owner)
			row.DelegationAmounts = append(row.DelegationAmounts, toBig(bond.Amount))
		}
		rows = append(rows, row)
	}
	for _, id := range batch.DelegatorRemovals {
		addr, err := address(codec, id)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &stakingmodels.DelegatorAccount{
			ID:                addr,
			DelegationOwners:  []string{},
			DelegationAmounts: []*big.Int{},
			TotalStaked:       new(big.Int),
			UpdatedAtBlock:    batch.Height,
			IsDeleted:         1,
		})
	}
	return rows, nil
}

func chainStateRow(state *core.ChainState) *stakingmodels.ChainState {
	row := &stakingmodels.ChainState{
		ID:                  state.ID,
		DelegatorCount:      state.DelegatorCount,
		ActiveCollatorCount: state.ActiveCollatorCount,
		TotalStaked:         toBig(state.TotalStaked),
		Timestamp:           state.Timestamp,
		BlockNumber:         state.BlockNumber,
		RoundNumber:         state.Round.Number,
		RoundStartBlock:     state.Round.StartBlock,
	}
	if state.Live() {
		row.IsLive = 1
	}
	return row
}

func chainStateFromRow(row *stakingmodels.ChainState) *core.ChainState {
	return &core.ChainState{
		ID:                  row.ID,
		DelegatorCount:      row.DelegatorCount,
		ActiveCollatorCount: row.ActiveCollatorCount,
		TotalStaked:         fromBig(row.TotalStaked),
		Timestamp:           row.Timestamp,
		BlockNumber:         row.BlockNumber,
		Round:               core.RoundInfo{Number: row.RoundNumber, StartBlock: row.RoundStartBlock},
	}
}

func roundRecordRows(codec ss58.Codec, records []*core.RoundRecord) ([]*stakingmodels.RoundRecord, error) {
	rows := make([]*stakingmodels.RoundRecord, 0, len(records))
	for _, r := range records {
		addr, err := address(codec, r.CollatorID)
		if err != nil {
			return nil, err
		}
		rows = append(rows, &stakingmodels.RoundRecord{
			CollatorID:     addr,
			RoundNumber:    r.RoundNumber,
			BlockNumber:    r.BlockNumber,
			StakingRewards: toBig(r.StakingRewards),
		})
	}
	return rows, nil
}

func roundRecordFromRow(codec ss58.Codec, row *stakingmodels.RoundRecord) (*core.RoundRecord, error) {
	id, err := accountID(codec, row.CollatorID)
	if err != nil {
		return nil, err
	}
	return &core.RoundRecord{
		CollatorID:     id,
		StakingRewards: fromBig(row.StakingRewards),
		RoundNumber:    row.RoundNumber,
		BlockNumber:    row.BlockNumber,
	}, nil
}
