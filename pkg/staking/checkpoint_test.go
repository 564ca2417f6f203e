package staking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduler_Due(t *testing.T) {
	base := time.Date(2022, 6, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(2*time.Hour, base)

	assert.False(t, s.Due(base.Add(time.Hour)))
	assert.True(t, s.Due(base.Add(2*time.Hour)))

	s.Mark(base.Add(2 * time.Hour))
	assert.False(t, s.Due(base.Add(3*time.Hour)))

	// marks never move backwards
	s.Mark(base)
	assert.Equal(t, base.Add(2*time.Hour), s.Last)
}

func TestScheduler_ZeroSeedFiresImmediately(t *testing.T) {
	s := NewScheduler(0, time.Time{})
	assert.Equal(t, DefaultCheckpointInterval, s.Interval)
	assert.True(t, s.Due(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestBlockIdentity(t *testing.T) {
	assert.Equal(t, "0002183941-abcde", BlockIdentity(2183941, "0xABCDEF0123"))
	assert.Equal(t, "0000000010", BlockIdentity(10, ""))
}
