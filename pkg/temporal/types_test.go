package temporal

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.uber.org/zap/zaptest"
)

func TestNames(t *testing.T) {
	assert.Equal(t, "staking:calamari", SyncQueue("calamari"))
	assert.Equal(t, "sync:calamari", SyncScheduleID("calamari"))
	assert.Equal(t, "sync:calamari", SyncWorkflowID("calamari"))
}

func TestGetScheduleSpec(t *testing.T) {
	spec := GetScheduleSpec(30 * time.Second)
	require.Len(t, spec.Intervals, 1)
	assert.Equal(t, 30*time.Second, spec.Intervals[0].Every)
}

func TestForNetwork(t *testing.T) {
	c := &Client{Network: "calamari", Namespace: DefaultNamespace, HostPort: "temporal:7233", logger: zaptest.NewLogger(t)}

	manta := c.ForNetwork("manta")
	assert.Equal(t, "manta", manta.Network)
	assert.Equal(t, "staking:manta", manta.SyncQueue)
	assert.Equal(t, "sync:manta", manta.SyncScheduleID)
	assert.Equal(t, DefaultNamespace, manta.Namespace)
	assert.Equal(t, "temporal:7233", manta.HostPort)
	assert.Equal(t, "calamari", c.Network)
}

func TestScheduleError(t *testing.T) {
	assert.NoError(t, scheduleError("calamari", nil))

	err := scheduleError("calamari", serviceerror.NewNotFound("schedule not found"))
	assert.True(t, errors.Is(err, ErrSyncScheduleNotFound))

	err = scheduleError("calamari", errors.New("unavailable"))
	assert.False(t, errors.Is(err, ErrSyncScheduleNotFound))
	assert.Contains(t, err.Error(), "sync schedule of calamari")
}
