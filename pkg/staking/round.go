package staking

import "fmt"

// RoundTracker follows round transitions. Previous holds the round superseded by the
// latest transition, whose rewards are pending settlement.
type RoundTracker struct {
	Current  RoundInfo
	Previous RoundInfo
}

// Advance moves the tracker to next and returns the superseded round.
func (t *RoundTracker) Advance(next RoundInfo) (RoundInfo, error) {
	if !t.Current.IsZero() && next.Number <= t.Current.Number {
		return RoundInfo{}, fmt.Errorf("%w: round %d at block %d does not follow round %d",
			ErrRoundRegression, next.Number, next.StartBlock, t.Current.Number)
	}
	t.Previous = t.Current
	t.Current = next
	return t.Previous, nil
}
