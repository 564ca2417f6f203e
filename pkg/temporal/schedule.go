package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// ErrSyncScheduleNotFound is returned when a network has no sync schedule yet.
var ErrSyncScheduleNotFound = errors.New("sync schedule not found")

// SyncStatus describes the sync schedule of one network.
type SyncStatus struct {
	Network    string      `json:"network"`
	ScheduleID string      `json:"schedule_id"`
	Paused     bool        `json:"paused"`
	Note       string      `json:"note,omitempty"`
	NextRuns   []time.Time `json:"next_runs"`
	RecentRuns []SyncRun   `json:"recent_runs"`
}

// SyncRun is one workflow started by the schedule.
type SyncRun struct {
	ScheduledAt time.Time `json:"scheduled_at"`
	StartedAt   time.Time `json:"started_at"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	RunID       string    `json:"run_id,omitempty"`
}

// ForNetwork returns a copy of the client addressing another network's queue and schedule.
// The connection is shared.
func (c *Client) ForNetwork(network string) *Client {
	return &Client{
		TClient:        c.TClient,
		TSClient:       c.TSClient,
		Network:        network,
		Namespace:      c.Namespace,
		HostPort:       c.HostPort,
		logger:         c.logger,
		SyncQueue:      SyncQueue(network),
		SyncScheduleID: SyncScheduleID(network),
		SyncWorkflowID: SyncWorkflowID(network),
	}
}

// EnsureNetworkSchedule creates a network's sync schedule when it is missing.
func (c *Client) EnsureNetworkSchedule(ctx context.Context, network string, interval time.Duration, args ...interface{}) error {
	return c.ForNetwork(network).EnsureSyncSchedule(ctx, interval, args...)
}

// DescribeSync returns the state of a network's sync schedule.
func (c *Client) DescribeSync(ctx context.Context, network string) (*SyncStatus, error) {
	id := SyncScheduleID(network)
	desc, err := c.TSClient.GetHandle(ctx, id).Describe(ctx)
	if err != nil {
		return nil, scheduleError(network, err)
	}

	status := &SyncStatus{
		Network:    network,
		ScheduleID: id,
		Paused:     desc.Schedule.State.Paused,
		Note:       desc.Schedule.State.Note,
		NextRuns:   desc.Info.NextActionTimes,
		RecentRuns: make([]SyncRun, 0, len(desc.Info.RecentActions)),
	}
	for _, action := range desc.Info.RecentActions {
		run := SyncRun{ScheduledAt: action.ScheduleTime, StartedAt: action.ActualTime}
		if action.StartWorkflowResult != nil {
			run.WorkflowID = action.StartWorkflowResult.WorkflowID
			run.RunID = action.StartWorkflowResult.FirstExecutionRunID
		}
		status.RecentRuns = append(status.RecentRuns, run)
	}
	return status, nil
}

// TriggerSync starts a sync now. It is a no-op while a sync of the network is running.
func (c *Client) TriggerSync(ctx context.Context, network string) error {
	err := c.TSClient.GetHandle(ctx, SyncScheduleID(network)).Trigger(ctx, client.ScheduleTriggerOptions{
		Overlap: enums.SCHEDULE_OVERLAP_POLICY_SKIP,
	})
	return scheduleError(network, err)
}

// PauseSync stops the schedule from starting new syncs. A running sync finishes.
func (c *Client) PauseSync(ctx context.Context, network, note string) error {
	err := c.TSClient.GetHandle(ctx, SyncScheduleID(network)).Pause(ctx, client.SchedulePauseOptions{Note: note})
	return scheduleError(network, err)
}

// UnpauseSync resumes a paused schedule.
func (c *Client) UnpauseSync(ctx context.Context, network, note string) error {
	err := c.TSClient.GetHandle(ctx, SyncScheduleID(network)).Unpause(ctx, client.ScheduleUnpauseOptions{Note: note})
	return scheduleError(network, err)
}

func scheduleError(network string, err error) error {
	if err == nil {
		return nil
	}
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("%s: %w", network, ErrSyncScheduleNotFound)
	}
	return fmt.Errorf("sync schedule of %s: %w", network, err)
}
