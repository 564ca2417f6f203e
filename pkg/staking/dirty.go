package staking

// idSet is an insertion-ordered set of account ids.
type idSet struct {
	order []AccountID
	index map[AccountID]struct{}
}

func newIDSet() idSet {
	return idSet{index: make(map[AccountID]struct{})}
}

func (s *idSet) add(id AccountID) {
	if _, ok := s.index[id]; ok {
		return
	}
	s.index[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *idSet) has(id AccountID) bool {
	_, ok := s.index[id]
	return ok
}

func (s *idSet) items() []AccountID {
	out := make([]AccountID, len(s.order))
	copy(out, s.order)
	return out
}

// remove drops ids, keeping the order of the remainder.
func (s *idSet) remove(ids []AccountID) {
	if len(ids) == 0 {
		return
	}
	for _, id := range ids {
		delete(s.index, id)
	}
	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := s.index[id]; ok {
			kept = append(kept, id)
		}
	}
	s.order = kept
}

// DirtySet tracks the accounts whose materialized rows are stale since the last checkpoint.
type DirtySet struct {
	collators  idSet
	delegators idSet
}

func NewDirtySet() *DirtySet {
	return &DirtySet{collators: newIDSet(), delegators: newIDSet()}
}

func (d *DirtySet) MarkCollator(id AccountID)  { d.collators.add(id) }
func (d *DirtySet) MarkDelegator(id AccountID) { d.delegators.add(id) }

// Apply marks every account named by a MarkDirty effect.
func (d *DirtySet) Apply(e Effect) {
	for _, id := range e.Collators {
		d.MarkCollator(id)
	}
	for _, id := range e.Delegators {
		d.MarkDelegator(id)
	}
}

// Collators returns a snapshot of the dirty collator ids in first-marked order.
func (d *DirtySet) Collators() []AccountID { return d.collators.items() }

// Delegators returns a snapshot of the dirty delegator ids in first-marked order.
func (d *DirtySet) Delegators() []AccountID { return d.delegators.items() }

func (d *DirtySet) HasCollator(id AccountID) bool  { return d.collators.has(id) }
func (d *DirtySet) HasDelegator(id AccountID) bool { return d.delegators.has(id) }

// Settle removes the given ids once their rows are persisted. Ids marked since the snapshot
// was taken stay dirty.
func (d *DirtySet) Settle(collators, delegators []AccountID) {
	d.collators.remove(collators)
	d.delegators.remove(delegators)
}

func (d *DirtySet) Len() int {
	return len(d.collators.order) + len(d.delegators.order)
}
