package temporal

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
)

// DefaultNamespace is the Temporal namespace shared by every network.
const DefaultNamespace = "stakingx"

// Workflow names
const (
	SyncStakingWorkflowName = "SyncStakingWorkflow"
)

// Patterns are formatted with the network name; the namespace is shared so names carry it.
const (
	QueueSyncPattern      = "staking:%s"
	ScheduleSyncPattern   = "sync:%s"
	WorkflowIDSyncPattern = "sync:%s"
)

// SyncQueue returns the task queue of a network's staking sync.
func SyncQueue(network string) string {
	return fmt.Sprintf(QueueSyncPattern, network)
}

// SyncScheduleID returns the schedule ID of a network's staking sync.
func SyncScheduleID(network string) string {
	return fmt.Sprintf(ScheduleSyncPattern, network)
}

// SyncWorkflowID returns the workflow ID the schedule starts for a network.
func SyncWorkflowID(network string) string {
	return fmt.Sprintf(WorkflowIDSyncPattern, network)
}

// GetScheduleSpec returns a schedule spec for the given interval.
func GetScheduleSpec(interval time.Duration) client.ScheduleSpec {
	return client.ScheduleSpec{Intervals: []client.ScheduleIntervalSpec{{Every: interval}}}
}
