package staking

import "github.com/holiman/uint256"

// Settlement is the outcome of walking one round's ledger.
type Settlement struct {
	Round    RoundInfo
	Records  []*RoundRecord
	Orphaned []LedgerEntry
}

// Settle buckets a round's ledger into one record per selected collator.
//
// Entries are walked in insertion order: a selected collator opens a new record, any other
// account is a delegator payout added to the most recently opened record. Payouts seen
// before the first collator cannot be attributed and are returned as Orphaned.
func Settle(entries []LedgerEntry, collators []AccountID, round RoundInfo) Settlement {
	selected := make(map[AccountID]struct{}, len(collators))
	for _, id := range collators {
		selected[id] = struct{}{}
	}

	out := Settlement{Round: round}
	var open *RoundRecord
	for _, entry := range entries {
		if _, ok := selected[entry.Account]; ok {
			if open != nil {
				out.Records = append(out.Records, open)
			}
			open = &RoundRecord{
				CollatorID:     entry.Account,
				StakingRewards: new(uint256.Int).Set(entry.Amount),
				RoundNumber:    round.Number,
				BlockNumber:    round.StartBlock,
			}
			continue
		}
		if open == nil {
			out.Orphaned = append(out.Orphaned, entry)
			continue
		}
		open.StakingRewards.Add(open.StakingRewards, entry.Amount)
	}
	if open != nil {
		out.Records = append(out.Records, open)
	}
	return out
}

// Total is the sum of all settled rewards.
func (s Settlement) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, r := range s.Records {
		total.Add(total, r.StakingRewards)
	}
	return total
}
