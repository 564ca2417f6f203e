package rpc

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/manta-network/stakingx/pkg/staking"
)

// ChainHead returns the latest finalized height known to the sidecar.
func (c *HTTPClient) ChainHead(ctx context.Context) (uint64, error) {
	var resp headResponse
	if err := c.doJSON(ctx, http.MethodGet, headPath, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Height, nil
}

// BlocksByRange returns every block in [from, to] with the classified ParachainStaking events,
// ordered by height. Blocks without such events are still returned so checkpoints can fire on them.
func (c *HTTPClient) BlocksByRange(ctx context.Context, from, to uint64) ([]staking.Block, error) {
	if to < from {
		return nil, fmt.Errorf("invalid block range [%d, %d]", from, to)
	}

	var resp blocksResponse
	req := BlocksRequest{From: from, To: to, Pallet: staking.Pallet, Events: staking.EventNames()}
	if err := c.doJSON(ctx, http.MethodPost, blocksPath, req, &resp); err != nil {
		return nil, err
	}

	blocks := make([]staking.Block, 0, len(resp.Blocks))
	for i := range resp.Blocks {
		b := resp.Blocks[i]
		if b.Height < from || b.Height > to {
			return nil, fmt.Errorf("sidecar returned block %d outside [%d, %d]", b.Height, from, to)
		}
		blocks = append(blocks, b.ToBlock())
	}
	sort.SliceStable(blocks, func(i, j int) bool { return blocks[i].Height < blocks[j].Height })

	if want := int(to - from + 1); len(blocks) != want {
		return nil, fmt.Errorf("sidecar returned %d blocks for range [%d, %d], want %d", len(blocks), from, to, want)
	}
	for i := range blocks {
		if blocks[i].Height != from+uint64(i) {
			return nil, fmt.Errorf("sidecar range [%d, %d] has a gap at %d", from, to, from+uint64(i))
		}
	}
	return blocks, nil
}

// SupportedVersions returns the decodable versions of the classified ParachainStaking events,
// by event name. Events the indexer never requests are left out.
func (c *HTTPClient) SupportedVersions(ctx context.Context) (map[string][]string, error) {
	var resp versionsResponse
	path := versionsPath + "?pallet=" + staking.Pallet
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	versions := make(map[string][]string)
	for _, name := range staking.EventNames() {
		if v, ok := resp.Events[name]; ok {
			versions[name] = v
		}
	}
	return versions, nil
}
