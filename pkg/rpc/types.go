package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/manta-network/stakingx/pkg/staking"
)

// storageVersions is the closed set of storage item versions the indexer can interpret.
var storageVersions = map[string][]string{
	itemTotal:              {staking.V3402},
	itemSelectedCandidates: {staking.V3402},
	itemCandidateInfo:      {staking.V3402},
	itemDelegatorState:     {staking.V3402},
	itemRound:              {staking.V3402},
}

// --- Query types

// BlocksRequest asks the sidecar for the named events of one pallet in an inclusive height range.
type BlocksRequest struct {
	From   uint64   `json:"from"`
	To     uint64   `json:"to"`
	Pallet string   `json:"pallet"`
	Events []string `json:"events"`
}

// StorageRequest is a point lookup of a storage item at a height. Key is empty for plain items.
type StorageRequest struct {
	Pallet string `json:"pallet"`
	Item   string `json:"item"`
	Height uint64 `json:"height"`
	Key    string `json:"key,omitempty"`
}

// --- Response types

type headResponse struct {
	Height uint64 `json:"height"`
}

type versionsResponse struct {
	Events map[string][]string `json:"events"`
}

type blocksResponse struct {
	Blocks []RpcBlock `json:"blocks"`
}

// RpcBlock is a finalized block as returned by /v1/chain/blocks. Timestamp is unix milliseconds
// from the Timestamp.Now inherent.
type RpcBlock struct {
	Height    uint64          `json:"height"`
	Hash      string          `json:"hash"`
	Timestamp int64           `json:"timestamp"`
	Events    []staking.Event `json:"events"`
}

// ToBlock converts the wire block into the materializer's block.
func (b *RpcBlock) ToBlock() staking.Block {
	return staking.Block{
		Height:    b.Height,
		Hash:      b.Hash,
		Timestamp: time.UnixMilli(b.Timestamp).UTC(),
		Events:    b.Events,
	}
}

// storageResponse wraps every storage lookup. Exists is false when the item is not part of the
// runtime at that height; a null Value means nothing is stored under the key.
type storageResponse struct {
	Exists  bool            `json:"exists"`
	Version string          `json:"version"`
	Value   json.RawMessage `json:"value"`
}

func (r *storageResponse) empty() bool {
	return len(r.Value) == 0 || string(r.Value) == "null"
}

// RpcCandidateMetadata is ParachainStaking.CandidateInfo. Balances are base-10 strings.
type RpcCandidateMetadata struct {
	Bond            string `json:"bond"`
	DelegationCount uint32 `json:"delegationCount"`
	TotalCounted    string `json:"totalCounted"`
	Status          string `json:"status"`
}

// ToCandidateState converts the storage value into the domain type.
func (c *RpcCandidateMetadata) ToCandidateState() (*staking.CandidateState, error) {
	bond, err := staking.ParseAmount(c.Bond)
	if err != nil {
		return nil, fmt.Errorf("bond: %w", err)
	}
	total, err := staking.ParseAmount(c.TotalCounted)
	if err != nil {
		return nil, fmt.Errorf("totalCounted: %w", err)
	}
	return &staking.CandidateState{
		SelfBond:        bond,
		DelegationCount: c.DelegationCount,
		Total:           total,
		Status:          c.Status,
	}, nil
}

// RpcBond is one delegation of a delegator.
type RpcBond struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

// RpcDelegator is ParachainStaking.DelegatorState.
type RpcDelegator struct {
	ID          string    `json:"id"`
	Delegations []RpcBond `json:"delegations"`
	Total       string    `json:"total"`
	Status      string    `json:"status"`
}

// ToDelegatorState converts the storage value into the domain type.
func (d *RpcDelegator) ToDelegatorState() (*staking.DelegatorState, error) {
	total, err := staking.ParseAmount(d.Total)
	if err != nil {
		return nil, fmt.Errorf("total: %w", err)
	}
	delegations := make([]staking.Delegation, 0, len(d.Delegations))
	for _, b := range d.Delegations {
		amount, err := staking.ParseAmount(b.Amount)
		if err != nil {
			return nil, fmt.Errorf("delegation to %s: %w", b.Owner, err)
		}
		delegations = append(delegations, staking.Delegation{
			Owner:  staking.NormalizeAccountID(b.Owner),
			Amount: amount,
		})
	}
	return &staking.DelegatorState{
		Delegations: delegations,
		Total:       total,
		Status:      d.Status,
	}, nil
}

// RpcRound is ParachainStaking.Round.
type RpcRound struct {
	Current uint32 `json:"current"`
	First   uint64 `json:"first"`
	Length  uint32 `json:"length"`
}

// ToRoundInfo converts the storage value into the domain type.
func (r *RpcRound) ToRoundInfo() *staking.RoundInfo {
	return &staking.RoundInfo{Number: r.Current, StartBlock: r.First, Length: r.Length}
}

func parseTotal(raw json.RawMessage) (*uint256.Int, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		// numeric JSON is accepted when the balance fits
		var n json.Number
		if nErr := json.Unmarshal(raw, &n); nErr != nil {
			return nil, fmt.Errorf("decode total: %w", err)
		}
		s = n.String()
	}
	return staking.ParseAmount(s)
}
