package staking

import "time"

// DefaultCheckpointInterval is two hours of chain time.
const DefaultCheckpointInterval = 2 * time.Hour

// Scheduler decides when a permanent checkpoint is due, measured in block time.
type Scheduler struct {
	Interval time.Duration
	Last     time.Time
}

func NewScheduler(interval time.Duration, last time.Time) *Scheduler {
	if interval <= 0 {
		interval = DefaultCheckpointInterval
	}
	return &Scheduler{Interval: interval, Last: last}
}

// Due reports whether blockTime is at least Interval past the last checkpoint.
func (s *Scheduler) Due(blockTime time.Time) bool {
	return blockTime.Sub(s.Last) >= s.Interval
}

// Mark records a written checkpoint.
func (s *Scheduler) Mark(blockTime time.Time) {
	if blockTime.After(s.Last) {
		s.Last = blockTime
	}
}
