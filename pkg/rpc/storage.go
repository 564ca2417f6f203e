package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"

	"github.com/holiman/uint256"
	"github.com/manta-network/stakingx/pkg/staking"
)

// lookup reads one ParachainStaking storage item at height. It returns a nil response when no
// value is stored under the key.
func (c *HTTPClient) lookup(ctx context.Context, item string, height uint64, key string) (*storageResponse, error) {
	var resp storageResponse
	req := StorageRequest{Pallet: staking.Pallet, Item: item, Height: height, Key: key}
	if err := c.doJSON(ctx, http.MethodPost, storagePath, req, &resp); err != nil {
		return nil, fmt.Errorf("storage %s.%s at %d: %w", staking.Pallet, item, height, err)
	}
	if !resp.Exists {
		return nil, fmt.Errorf("%s.%s at %d: %w", staking.Pallet, item, height, staking.ErrSchemaAbsent)
	}
	if !slices.Contains(storageVersions[item], resp.Version) {
		return nil, &staking.SchemaVersionError{Item: staking.Pallet + "." + item, Version: resp.Version}
	}
	if resp.empty() {
		return nil, nil
	}
	return &resp, nil
}

// TotalStaked returns ParachainStaking.Total at height.
func (c *HTTPClient) TotalStaked(ctx context.Context, height uint64) (*uint256.Int, error) {
	resp, err := c.lookup(ctx, itemTotal, height, "")
	if err != nil || resp == nil {
		return nil, err
	}
	total, err := parseTotal(resp.Value)
	if err != nil {
		return nil, fmt.Errorf("%s at %d: %w", itemTotal, height, err)
	}
	return total, nil
}

// SelectedCollators returns ParachainStaking.SelectedCandidates at height, in storage order.
func (c *HTTPClient) SelectedCollators(ctx context.Context, height uint64) ([]staking.AccountID, error) {
	resp, err := c.lookup(ctx, itemSelectedCandidates, height, "")
	if err != nil || resp == nil {
		return nil, err
	}
	var raw []string
	if err := json.Unmarshal(resp.Value, &raw); err != nil {
		return nil, fmt.Errorf("decode %s at %d: %w", itemSelectedCandidates, height, err)
	}
	ids := make([]staking.AccountID, 0, len(raw))
	for _, s := range raw {
		ids = append(ids, staking.NormalizeAccountID(s))
	}
	return ids, nil
}

// DelegatorState returns ParachainStaking.DelegatorState[id] at height, nil when id has no stake.
func (c *HTTPClient) DelegatorState(ctx context.Context, height uint64, id staking.AccountID) (*staking.DelegatorState, error) {
	resp, err := c.lookup(ctx, itemDelegatorState, height, id.String())
	if err != nil || resp == nil {
		return nil, err
	}
	var d RpcDelegator
	if err := json.Unmarshal(resp.Value, &d); err != nil {
		return nil, fmt.Errorf("decode %s[%s] at %d: %w", itemDelegatorState, id, height, err)
	}
	return d.ToDelegatorState()
}

// CandidateState returns ParachainStaking.CandidateInfo[id] at height, nil when id is not a candidate.
func (c *HTTPClient) CandidateState(ctx context.Context, height uint64, id staking.AccountID) (*staking.CandidateState, error) {
	resp, err := c.lookup(ctx, itemCandidateInfo, height, id.String())
	if err != nil || resp == nil {
		return nil, err
	}
	var m RpcCandidateMetadata
	if err := json.Unmarshal(resp.Value, &m); err != nil {
		return nil, fmt.Errorf("decode %s[%s] at %d: %w", itemCandidateInfo, id, height, err)
	}
	return m.ToCandidateState()
}

// Round returns ParachainStaking.Round at height.
func (c *HTTPClient) Round(ctx context.Context, height uint64) (*staking.RoundInfo, error) {
	resp, err := c.lookup(ctx, itemRound, height, "")
	if err != nil || resp == nil {
		return nil, err
	}
	var r RpcRound
	if err := json.Unmarshal(resp.Value, &r); err != nil {
		return nil, fmt.Errorf("decode %s at %d: %w", itemRound, height, err)
	}
	return r.ToRoundInfo(), nil
}
