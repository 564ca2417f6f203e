package types

import (
	"github.com/manta-network/stakingx/pkg/staking"
)

// WorkflowSyncInput is the input of SyncStakingWorkflow. Zero values mean "start fresh":
// the resume height is read from the store and the head from the sidecar.
type WorkflowSyncInput struct {
	ResumeFrom     uint64 `json:"resumeFrom"`     // If > 0, continue from this height (for ContinueAsNew)
	TargetHead     uint64 `json:"targetHead"`     // If > 0, sync up to this height instead of querying
	ProcessedSoFar uint64 `json:"processedSoFar"` // For ContinueAsNew tracking
}

// WorkflowSyncOutput summarizes a SyncStakingWorkflow run.
type WorkflowSyncOutput struct {
	From           uint64 `json:"from"`
	To             uint64 `json:"to"`
	Head           uint64 `json:"head"`
	Ranges         int    `json:"ranges"`
	RoundsSettled  int    `json:"roundsSettled"`
	Snapshots      int    `json:"snapshots"`
	ProcessedSoFar uint64 `json:"processedSoFar"`
}

// ActivityProcessRangeInput is an inclusive block range to materialize.
type ActivityProcessRangeInput struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
}

// ActivityProcessRangeOutput reports the materializer result for one range.
type ActivityProcessRangeOutput struct {
	Result     staking.RangeResult `json:"result"`
	Recovered  bool                `json:"recovered"`  // the materializer was rebuilt before this range
	ReplayFrom uint64              `json:"replayFrom"` // first height fed to the materializer
	DurationMs float64             `json:"durationMs"`
}
