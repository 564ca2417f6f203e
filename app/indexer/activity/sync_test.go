package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/manta-network/stakingx/app/indexer/types"
	stakingstore "github.com/manta-network/stakingx/pkg/db/staking"
	"github.com/manta-network/stakingx/pkg/rpc"
	"github.com/manta-network/stakingx/pkg/staking"
	"github.com/puzpuzpuz/xsync/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktemporal "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"
	"go.uber.org/zap/zaptest"
)

const (
	collator  = staking.AccountID("0xaa00000000000000000000000000000000000000000000000000000000000001")
	delegator = staking.AccountID("0xcc00000000000000000000000000000000000000000000000000000000000003")
)

var genesis = time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)

// fakeClient serves a fixed chain from memory.
type fakeClient struct {
	mu sync.Mutex

	head       uint64
	blocks     map[uint64]staking.Block
	candidates map[staking.AccountID]*staking.CandidateState
	delegators map[staking.AccountID]*staking.DelegatorState
	total      *uint256.Int
	round      *staking.RoundInfo
	versions   map[string][]string
	blocksErr  error

	fetched [][2]uint64
}

func (f *fakeClient) ChainHead(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeClient) BlocksByRange(_ context.Context, from, to uint64) ([]staking.Block, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, [2]uint64{from, to})
	if f.blocksErr != nil {
		return nil, f.blocksErr
	}
	out := make([]staking.Block, 0, to-from+1)
	for h := from; h <= to; h++ {
		b, ok := f.blocks[h]
		if !ok {
			b = staking.Block{Height: h, Hash: fmt.Sprintf("0x%064x", h), Timestamp: genesis.Add(time.Duration(h) * 12 * time.Second)}
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeClient) SupportedVersions(context.Context) (map[string][]string, error) {
	return f.versions, nil
}

func (f *fakeClient) TotalStaked(context.Context, uint64) (*uint256.Int, error) {
	return f.total, nil
}

func (f *fakeClient) SelectedCollators(context.Context, uint64) ([]staking.AccountID, error) {
	return []staking.AccountID{collator}, nil
}

func (f *fakeClient) DelegatorState(_ context.Context, _ uint64, id staking.AccountID) (*staking.DelegatorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.delegators[id], nil
}

func (f *fakeClient) CandidateState(_ context.Context, _ uint64, id staking.AccountID) (*staking.CandidateState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candidates[id], nil
}

func (f *fakeClient) Round(context.Context, uint64) (*staking.RoundInfo, error) {
	return f.round, nil
}

type fakeFactory struct{ client *fakeClient }

func (f fakeFactory) NewClient([]string) rpc.Client { return f.client }

// fakeStore implements the materializer writes; query methods are not used here.
type fakeStore struct {
	stakingstore.Store

	mu         sync.Mutex
	collators  map[staking.AccountID]*staking.CollatorAccount
	delegators map[staking.AccountID]*staking.DelegatorAccount
	states     []*staking.ChainState
	live       *staking.ChainState
	stateErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collators:  map[staking.AccountID]*staking.CollatorAccount{},
		delegators: map[staking.AccountID]*staking.DelegatorAccount{},
	}
}

func (s *fakeStore) ApplyAccounts(_ context.Context, batch *staking.AccountBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range batch.CollatorUpserts {
		s.collators[row.ID] = row
	}
	for _, id := range batch.CollatorRemovals {
		delete(s.collators, id)
	}
	for _, row := range batch.DelegatorUpserts {
		s.delegators[row.ID] = row
	}
	for _, id := range batch.DelegatorRemovals {
		delete(s.delegators, id)
	}
	return nil
}

func (s *fakeStore) CountDelegators(context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.delegators)), nil
}

func (s *fakeStore) InsertChainState(_ context.Context, state *staking.ChainState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateErr != nil {
		return s.stateErr
	}
	if state.Live() {
		s.live = state
		return nil
	}
	s.states = append(s.states, state)
	return nil
}

func (s *fakeStore) InsertRoundRecords(context.Context, []*staking.RoundRecord) error { return nil }

func (s *fakeStore) LatestChainState(_ context.Context, permanent bool) (*staking.ChainState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !permanent {
		return s.live, nil
	}
	if len(s.states) == 0 {
		return nil, nil
	}
	return s.states[len(s.states)-1], nil
}

func (s *fakeStore) LatestRoundRecord(context.Context) (*staking.RoundRecord, error) { return nil, nil }

func newTestContext(t *testing.T, client *fakeClient, store *fakeStore) *Context {
	c := &Context{
		Logger:        zaptest.NewLogger(t),
		Network:       "calamari",
		Store:         store,
		RPCFactory:    fakeFactory{client: client},
		Config:        Config{StartHeight: 100, CheckpointInterval: 2 * time.Hour, LookupParallelism: 2},
		Materializers: xsync.NewMap[string, *staking.Materializer](),
	}
	t.Cleanup(c.StopPool)
	return c
}

func newChain() *fakeClient {
	return &fakeClient{
		head:  500,
		total: uint256.NewInt(9000),
		blocks: map[uint64]staking.Block{
			101: {
				Height:    101,
				Hash:      "0xabc101",
				Timestamp: genesis.Add(101 * 12 * time.Second),
				Events: []staking.Event{{
					Name:    "Delegation",
					Version: staking.V3402,
					Fields:  map[string]string{"delegator": string(delegator), "candidate": string(collator), "lockedAmount": "4000"},
				}},
			},
		},
		candidates: map[staking.AccountID]*staking.CandidateState{
			collator: {SelfBond: uint256.NewInt(1000), DelegationCount: 1, Total: uint256.NewInt(5000), Status: "Active"},
		},
		delegators: map[staking.AccountID]*staking.DelegatorState{
			delegator: {
				Delegations: []staking.Delegation{{Owner: collator, Amount: uint256.NewInt(4000)}},
				Total:       uint256.NewInt(4000),
				Status:      "Active",
			},
		},
	}
}

func TestGetResumeHeight(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()

	store := newFakeStore()
	c := newTestContext(t, newChain(), store)
	env.RegisterActivity(c.GetResumeHeight)

	val, err := env.ExecuteActivity(c.GetResumeHeight)
	require.NoError(t, err)
	var height uint64
	require.NoError(t, val.Get(&height))
	assert.Equal(t, uint64(100), height, "empty store starts at the configured height")

	store.live = &staking.ChainState{ID: staking.LiveChainStateID, BlockNumber: 250}
	val, err = env.ExecuteActivity(c.GetResumeHeight)
	require.NoError(t, err)
	require.NoError(t, val.Get(&height))
	assert.Equal(t, uint64(251), height)
}

func TestGetResumeHeight_DefaultStart(t *testing.T) {
	c := newTestContext(t, newChain(), newFakeStore())
	c.Config.StartHeight = 0

	height, err := c.GetResumeHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultStartHeight, height)
}

func TestGetChainHead(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()

	c := newTestContext(t, newChain(), newFakeStore())
	env.RegisterActivity(c.GetChainHead)

	val, err := env.ExecuteActivity(c.GetChainHead)
	require.NoError(t, err)
	var head uint64
	require.NoError(t, val.Get(&head))
	assert.Equal(t, uint64(500), head)
}

func TestProcessBlockRange_MaterializesAccounts(t *testing.T) {
	suite := testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()

	chain := newChain()
	store := newFakeStore()
	c := newTestContext(t, chain, store)
	env.RegisterActivity(c.ProcessBlockRange)

	val, err := env.ExecuteActivity(c.ProcessBlockRange, types.ActivityProcessRangeInput{From: 100, To: 102})
	require.NoError(t, err)

	var out types.ActivityProcessRangeOutput
	require.NoError(t, val.Get(&out))
	assert.True(t, out.Recovered)
	assert.Equal(t, uint64(100), out.ReplayFrom)
	assert.Equal(t, 3, out.Result.Blocks)
	assert.Equal(t, 1, out.Result.Events)
	assert.True(t, out.Result.LiveSnapshot)
	assert.Equal(t, 1, out.Result.PermanentSnapshots, "first block opens the snapshot schedule")

	require.Contains(t, store.collators, collator)
	assert.Equal(t, "5000", store.collators[collator].TotalBond.Dec())
	require.Contains(t, store.delegators, delegator)
	assert.Equal(t, uint64(102), store.live.BlockNumber)
	assert.Equal(t, uint64(1), store.live.DelegatorCount)
	assert.Equal(t, "9000", store.live.TotalStaked.Dec())

	// the next contiguous range reuses the in-memory state
	val, err = env.ExecuteActivity(c.ProcessBlockRange, types.ActivityProcessRangeInput{From: 103, To: 110})
	require.NoError(t, err)
	require.NoError(t, val.Get(&out))
	assert.False(t, out.Recovered)
	assert.Equal(t, [][2]uint64{{100, 102}, {103, 110}}, chain.fetched)
}

func TestProcessBlockRange_RecoversOnGap(t *testing.T) {
	chain := newChain()
	chain.round = &staking.RoundInfo{Number: 4, StartBlock: 180, Length: 1800}
	c := newTestContext(t, chain, newFakeStore())

	out, err := c.ProcessBlockRange(context.Background(), types.ActivityProcessRangeInput{From: 200, To: 210})
	require.NoError(t, err)
	assert.True(t, out.Recovered)
	assert.Equal(t, uint64(180), out.ReplayFrom, "replay starts at the round start")
	assert.Equal(t, [][2]uint64{{180, 210}}, chain.fetched)
}

func TestProcessBlockRange_FatalIsNonRetryable(t *testing.T) {
	chain := newChain()
	chain.blocks[101] = staking.Block{
		Height:    101,
		Timestamp: genesis.Add(101 * 12 * time.Second),
		Events:    []staking.Event{{Name: "Delegation", Version: "v9999"}},
	}
	c := newTestContext(t, chain, newFakeStore())

	_, err := c.ProcessBlockRange(context.Background(), types.ActivityProcessRangeInput{From: 100, To: 102})
	var appErr *sdktemporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())

	next, recovered := c.materializer().NextHeight()
	assert.False(t, recovered)
	assert.Zero(t, next)
}

func TestProcessBlockRange_MalformedEventIsNonRetryable(t *testing.T) {
	chain := newChain()
	chain.blocks[101] = staking.Block{
		Height:    101,
		Timestamp: genesis.Add(101 * 12 * time.Second),
		Events: []staking.Event{{Name: "Rewarded", Version: staking.V3402, Fields: map[string]string{
			"account": string(collator),
		}}},
	}
	c := newTestContext(t, chain, newFakeStore())

	_, err := c.ProcessBlockRange(context.Background(), types.ActivityProcessRangeInput{From: 100, To: 102})
	var appErr *sdktemporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
	assert.Contains(t, appErr.Error(), "missing field")
}

func TestProcessBlockRange_TransientIsRetryable(t *testing.T) {
	chain := newChain()
	chain.blocksErr = errors.New("sidecar timeout")
	c := newTestContext(t, chain, newFakeStore())

	_, err := c.ProcessBlockRange(context.Background(), types.ActivityProcessRangeInput{From: 100, To: 102})
	var appErr *sdktemporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.False(t, appErr.NonRetryable())
	assert.Equal(t, "rpc_error", appErr.Type())
}

func TestProcessBlockRange_InvalidRange(t *testing.T) {
	c := newTestContext(t, newChain(), newFakeStore())

	_, err := c.ProcessBlockRange(context.Background(), types.ActivityProcessRangeInput{From: 10, To: 9})
	var appErr *sdktemporal.ApplicationError
	require.ErrorAs(t, err, &appErr)
	assert.True(t, appErr.NonRetryable())
}

func TestCheckCoverage(t *testing.T) {
	chain := newChain()
	chain.versions = map[string][]string{"Rewarded": {staking.V3402}, "NewRound": {staking.V3402}}
	c := newTestContext(t, chain, newFakeStore())
	require.NoError(t, c.CheckCoverage(context.Background()))

	chain.versions["Rewarded"] = append(chain.versions["Rewarded"], "v4000")
	err := c.CheckCoverage(context.Background())
	var schemaErr *staking.SchemaVersionError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, "v4000", schemaErr.Version)
}

func TestLookupParallelism(t *testing.T) {
	assert.Equal(t, 8, LookupParallelism(8))
	assert.Equal(t, 256, LookupParallelism(1000))
	n := LookupParallelism(0)
	assert.GreaterOrEqual(t, n, 4)
	assert.LessOrEqual(t, n, 64)
}
