package staking

import (
	"fmt"

	"github.com/holiman/uint256"
)

// LedgerEntry is the accumulated reward of one account.
type LedgerEntry struct {
	Account AccountID
	Amount  *uint256.Int
}

// Ledger accumulates reward payouts per account in first-payout order.
type Ledger struct {
	entries []LedgerEntry
	index   map[AccountID]int
}

func NewLedger() *Ledger {
	return &Ledger{index: make(map[AccountID]int)}
}

// Add accumulates amount into the account's entry, creating it if absent.
func (l *Ledger) Add(account AccountID, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	if i, ok := l.index[account]; ok {
		sum, overflow := new(uint256.Int).AddOverflow(l.entries[i].Amount, amount)
		if overflow {
			return fmt.Errorf("%w: account %s", ErrLedgerOverflow, account)
		}
		l.entries[i].Amount = sum
		return nil
	}
	l.index[account] = len(l.entries)
	l.entries = append(l.entries, LedgerEntry{Account: account, Amount: new(uint256.Int).Set(amount)})
	return nil
}

// Entries returns the entries in insertion order.
func (l *Ledger) Entries() []LedgerEntry {
	out := make([]LedgerEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Total is the sum of all entries.
func (l *Ledger) Total() *uint256.Int {
	total := new(uint256.Int)
	for _, e := range l.entries {
		total.Add(total, e.Amount)
	}
	return total
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

func (l *Ledger) Reset() {
	l.entries = nil
	l.index = make(map[AccountID]int)
}
