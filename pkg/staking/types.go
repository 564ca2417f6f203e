package staking

import (
	"fmt"
	"strings"
	"time"

	"github.com/holiman/uint256"
)

// AccountID is a 32-byte account public key in lowercase 0x-prefixed hex.
// Rows store it SS58-encoded; the materializer works on the raw form.
type AccountID string

// NormalizeAccountID lowercases and 0x-prefixes a hex account id.
func NormalizeAccountID(s string) AccountID {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return AccountID(s)
}

func (id AccountID) String() string {
	return string(id)
}

// Event is a decoded ParachainStaking event. Fields hold account ids as hex and
// amounts/numbers as base-10 strings.
type Event struct {
	Name    string            `json:"name"`
	Version string            `json:"version"`
	Index   uint32            `json:"index"`
	Fields  map[string]string `json:"fields"`
}

// Block is a finalized block and the staking events it emitted, in emission order.
type Block struct {
	Height    uint64    `json:"height"`
	Hash      string    `json:"hash"`
	Timestamp time.Time `json:"timestamp"`
	Events    []Event   `json:"events"`
}

// RoundInfo identifies a staking round.
type RoundInfo struct {
	Number     uint32 `json:"number"`
	StartBlock uint64 `json:"start_block"`
	Length     uint32 `json:"length,omitempty"`
}

// IsZero reports whether no round has been observed yet.
func (r RoundInfo) IsZero() bool {
	return r.Number == 0 && r.StartBlock == 0
}

// CandidateState is the on-chain CandidateInfo of a collator.
type CandidateState struct {
	SelfBond        *uint256.Int
	DelegationCount uint32
	Total           *uint256.Int
	Status          string
}

// Delegation is one (collator, amount) bond held by a delegator.
type Delegation struct {
	Owner  AccountID    `json:"owner"`
	Amount *uint256.Int `json:"amount"`
}

// DelegatorState is the on-chain DelegatorState of a delegator.
type DelegatorState struct {
	Delegations []Delegation
	Total       *uint256.Int
	Status      string
}

// CollatorAccount is the materialized row of a collator with a non-zero total bond.
type CollatorAccount struct {
	ID              AccountID
	SelfBond        *uint256.Int
	DelegationCount uint32
	TotalBond       *uint256.Int
	Status          string
	UpdatedAtBlock  uint64
}

// DelegatorAccount is the materialized row of a delegator with a non-zero stake.
type DelegatorAccount struct {
	ID             AccountID
	Delegations    []Delegation
	TotalStaked    *uint256.Int
	Status         string
	UpdatedAtBlock uint64
}

// LiveChainStateID is the fixed identity of the mutable chain summary.
const LiveChainStateID = "0"

// ChainState is a chain-wide staking summary. Permanent snapshots are keyed by block identity.
// Round is the round in progress at BlockNumber; recovery resumes it from the live row.
type ChainState struct {
	ID                  string
	DelegatorCount      uint64
	ActiveCollatorCount uint64
	TotalStaked         *uint256.Int
	Timestamp           time.Time
	BlockNumber         uint64
	Round               RoundInfo
}

// Live reports whether this is the mutable summary rather than a permanent snapshot.
func (c *ChainState) Live() bool {
	return c.ID == LiveChainStateID
}

// BlockIdentity builds the permanent snapshot id of a block: zero-padded height plus a short hash.
func BlockIdentity(height uint64, hash string) string {
	h := strings.TrimPrefix(strings.ToLower(hash), "0x")
	if len(h) > 5 {
		h = h[:5]
	}
	if h == "" {
		return fmt.Sprintf("%010d", height)
	}
	return fmt.Sprintf("%010d-%s", height, h)
}

// RoundRecord is the settled staking reward of one collator's delegation set for one round.
type RoundRecord struct {
	CollatorID     AccountID
	StakingRewards *uint256.Int
	RoundNumber    uint32
	BlockNumber    uint64
}

// AccountBatch is the outcome of one reconciliation, submitted to the Store as a unit.
type AccountBatch struct {
	Height            uint64
	CollatorUpserts   []*CollatorAccount
	CollatorRemovals  []AccountID
	DelegatorUpserts  []*DelegatorAccount
	DelegatorRemovals []AccountID
}

// Empty reports whether the batch carries no writes.
func (b *AccountBatch) Empty() bool {
	return len(b.CollatorUpserts) == 0 && len(b.CollatorRemovals) == 0 &&
		len(b.DelegatorUpserts) == 0 && len(b.DelegatorRemovals) == 0
}
