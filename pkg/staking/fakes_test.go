package staking

import (
	"context"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"github.com/manta-network/stakingx/pkg/db/entities"
)

// fakeStorage serves point lookups from per-height maps; a lookup at height h sees the latest
// value set at or below h.
type fakeStorage struct {
	mu sync.Mutex

	total      map[uint64]*uint256.Int
	selected   map[uint64][]AccountID
	candidates map[AccountID]map[uint64]*CandidateState
	delegators map[AccountID]map[uint64]*DelegatorState
	rounds     map[uint64]*RoundInfo

	roundErr     error
	selectedErr  error
	candidateErr map[AccountID]error
	delegatorErr map[AccountID]error

	lookups int
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{
		total:        make(map[uint64]*uint256.Int),
		selected:     make(map[uint64][]AccountID),
		candidates:   make(map[AccountID]map[uint64]*CandidateState),
		delegators:   make(map[AccountID]map[uint64]*DelegatorState),
		rounds:       make(map[uint64]*RoundInfo),
		candidateErr: make(map[AccountID]error),
		delegatorErr: make(map[AccountID]error),
	}
}

func latestAt[T any](values map[uint64]T, height uint64) (T, bool) {
	var (
		best  uint64
		found bool
		out   T
	)
	for h, v := range values {
		if h <= height && (!found || h >= best) {
			best, out, found = h, v, true
		}
	}
	return out, found
}

func (f *fakeStorage) TotalStaked(_ context.Context, height uint64) (*uint256.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := latestAt(f.total, height)
	return v, nil
}

func (f *fakeStorage) SelectedCollators(_ context.Context, height uint64) ([]AccountID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selectedErr != nil {
		return nil, f.selectedErr
	}
	v, _ := latestAt(f.selected, height)
	return v, nil
}

func (f *fakeStorage) CandidateState(_ context.Context, height uint64, id AccountID) (*CandidateState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if err := f.candidateErr[id]; err != nil {
		return nil, err
	}
	v, _ := latestAt(f.candidates[id], height)
	return v, nil
}

func (f *fakeStorage) DelegatorState(_ context.Context, height uint64, id AccountID) (*DelegatorState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if err := f.delegatorErr[id]; err != nil {
		return nil, err
	}
	v, _ := latestAt(f.delegators[id], height)
	return v, nil
}

func (f *fakeStorage) Round(_ context.Context, height uint64) (*RoundInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.roundErr != nil {
		return nil, f.roundErr
	}
	v, _ := latestAt(f.rounds, height)
	return v, nil
}

func (f *fakeStorage) setCandidate(id AccountID, height uint64, state *CandidateState) {
	if f.candidates[id] == nil {
		f.candidates[id] = make(map[uint64]*CandidateState)
	}
	f.candidates[id][height] = state
}

func (f *fakeStorage) setDelegator(id AccountID, height uint64, state *DelegatorState) {
	if f.delegators[id] == nil {
		f.delegators[id] = make(map[uint64]*DelegatorState)
	}
	f.delegators[id][height] = state
}

// fakeStore keeps rows keyed the way the ClickHouse tables are.
type fakeStore struct {
	mu sync.Mutex

	collators  map[AccountID]*CollatorAccount
	delegators map[AccountID]*DelegatorAccount
	states     map[string]*ChainState
	records    map[AccountID]map[uint32]*RoundRecord

	applyErr   error
	recordsErr error
	stateErr   error
	applies    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		collators:  make(map[AccountID]*CollatorAccount),
		delegators: make(map[AccountID]*DelegatorAccount),
		states:     make(map[string]*ChainState),
		records:    make(map[AccountID]map[uint32]*RoundRecord),
	}
}

func (s *fakeStore) ApplyAccounts(_ context.Context, batch *AccountBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applyErr != nil {
		return &PersistenceError{Entity: entities.DelegatorAccounts, Applied: []entities.Entity{entities.CollatorAccounts}, Err: s.applyErr}
	}
	s.applies++
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

func (s *fakeStore) InsertChainState(_ context.Context, state *ChainState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stateErr != nil {
		return s.stateErr
	}
	cp := *state
	s.states[state.ID] = &cp
	return nil
}

func (s *fakeStore) InsertRoundRecords(_ context.Context, records []*RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recordsErr != nil {
		return s.recordsErr
	}
	for _, r := range records {
		if s.records[r.CollatorID] == nil {
			s.records[r.CollatorID] = make(map[uint32]*RoundRecord)
		}
		s.records[r.CollatorID][r.RoundNumber] = r
	}
	return nil
}

func (s *fakeStore) LatestChainState(_ context.Context, permanent bool) (*ChainState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *ChainState
	for _, st := range s.states {
		if permanent == st.Live() {
			continue
		}
		if latest == nil || st.BlockNumber > latest.BlockNumber {
			latest = st
		}
	}
	return latest, nil
}

func (s *fakeStore) LatestRoundRecord(context.Context) (*RoundRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *RoundRecord
	for _, byRound := range s.records {
		for _, r := range byRound {
			if latest == nil || r.RoundNumber > latest.RoundNumber {
				latest = r
			}
		}
	}
	return latest, nil
}

// permanentStates returns permanent snapshots ordered by block number.
func (s *fakeStore) permanentStates() []*ChainState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*ChainState, 0, len(s.states))
	for _, st := range s.states {
		if !st.Live() {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BlockNumber < out[j].BlockNumber })
	return out
}

func (s *fakeStore) roundRecords(round uint32) []*RoundRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*RoundRecord, 0)
	for _, byRound := range s.records {
		if r, ok := byRound[round]; ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CollatorID < out[j].CollatorID })
	return out
}

type fakeNotifier struct {
	mu          sync.Mutex
	rounds      []RoundInfo
	checkpoints []*ChainState
}

func (n *fakeNotifier) RoundSettled(_ context.Context, round RoundInfo, _ []*RoundRecord) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rounds = append(n.rounds, round)
	return nil
}

func (n *fakeNotifier) CheckpointWritten(_ context.Context, state *ChainState) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.checkpoints = append(n.checkpoints, state)
	return nil
}

func amt(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}
