package redis

import (
	"fmt"
	"strings"
	"time"
)

// Event types published by the indexer.
const (
	EventRoundSettled      = "round.settled"
	EventCheckpointWritten = "checkpoint.written"
)

// Channel returns the Pub/Sub channel of an event type for a network.
// Channel format: stakingx:{network}:{eventType}
func Channel(network, eventType string) string {
	return fmt.Sprintf("stakingx:%s:%s", network, eventType)
}

// RoundsStream returns the stream holding every settled round of a network.
func RoundsStream(network string) string {
	return fmt.Sprintf("stakingx:%s:rounds", network)
}

// ParseChannel splits a channel name into network and event type.
func ParseChannel(channel string) (network, eventType string, ok bool) {
	parts := strings.Split(channel, ":")
	if len(parts) != 3 || parts[0] != "stakingx" || parts[1] == "" || parts[2] == "" {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// RoundRewardPayload is one settled collator reward. Amounts are base-10 strings.
type RoundRewardPayload struct {
	Collator       string `json:"collator"`
	StakingRewards string `json:"stakingRewards"`
}

// RoundSettledEvent is published after the round records of a round were persisted.
type RoundSettledEvent struct {
	Event       string               `json:"event"`
	Network     string               `json:"network"`
	Round       uint32               `json:"round"`
	StartBlock  uint64               `json:"startBlock"`
	BlockNumber uint64               `json:"blockNumber"`
	Total       string               `json:"total"`
	Rewards     []RoundRewardPayload `json:"rewards"`
	Timestamp   time.Time            `json:"timestamp"`
}

// CheckpointEvent is published after a chain state was persisted.
type CheckpointEvent struct {
	Event               string    `json:"event"`
	Network             string    `json:"network"`
	ID                  string    `json:"id"`
	Live                bool      `json:"live"`
	BlockNumber         uint64    `json:"blockNumber"`
	BlockTime           time.Time `json:"blockTime"`
	DelegatorCount      uint64    `json:"delegatorCount"`
	ActiveCollatorCount uint64    `json:"activeCollatorCount"`
	TotalStaked         string    `json:"totalStaked"`
	Round               uint32    `json:"round"`
	Timestamp           time.Time `json:"timestamp"`
}
