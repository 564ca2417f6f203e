package rpc

import (
	"context"

	"github.com/manta-network/stakingx/pkg/staking"
)

// Client captures the decoder sidecar calls used by the indexer activities.
// The sidecar decodes SCALE blocks and storage; everything on the wire is JSON.
type Client interface {
	staking.Storage

	ChainHead(ctx context.Context) (uint64, error)
	BlocksByRange(ctx context.Context, from, to uint64) ([]staking.Block, error)
	SupportedVersions(ctx context.Context) (map[string][]string, error)
}

// Factory produces RPC clients for a given set of endpoints.
type Factory interface {
	NewClient(endpoints []string) Client
}

type httpFactory struct {
	opts Opts
}

// NewHTTPFactory returns a factory that builds HTTP clients with shared defaults.
func NewHTTPFactory(opts Opts) Factory {
	return &httpFactory{opts: opts}
}

func (f *httpFactory) NewClient(endpoints []string) Client {
	o := f.opts
	o.Endpoints = endpoints
	return NewHTTPWithOpts(o)
}
