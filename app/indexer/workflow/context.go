package workflow

import (
	"github.com/manta-network/stakingx/app/indexer/activity"
	"github.com/manta-network/stakingx/pkg/temporal"
)

// Config holds the workflow configuration.
type Config struct {
	// Blocks per ProcessBlockRange call
	BatchSize uint64
	// Ranges processed before the workflow continues as new
	ContinueAsNewRanges int
}

// Context holds the workflow context.
type Context struct {
	TemporalClient  *temporal.Client
	ActivityContext *activity.Context
	Config          Config
}
