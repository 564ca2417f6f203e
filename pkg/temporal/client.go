package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/manta-network/stakingx/pkg/retry"
	"github.com/manta-network/stakingx/pkg/utils"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/api/workflowservice/v1"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/log"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/durationpb"
)

// Client is the Temporal connection of one network's staking indexer.
type Client struct {
	TClient   client.Client
	TSClient  client.ScheduleClient
	Network   string
	Namespace string
	HostPort  string
	logger    *zap.Logger

	SyncQueue      string // "staking:<network>"
	SyncScheduleID string // "sync:<network>"
	SyncWorkflowID string // "sync:<network>"
}

// NewClient connects to TEMPORAL_HOSTPORT / TEMPORAL_NAMESPACE, retrying with backoff
// until the frontend is healthy.
func NewClient(ctx context.Context, logger *zap.Logger, network string) (*Client, error) {
	connCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	host := utils.Env("TEMPORAL_HOSTPORT", "localhost:7233")
	ns := utils.Env("TEMPORAL_NAMESPACE", DefaultNamespace)
	loggerWrapper := NewZapAdapter(logger)

	logger.Info("Connecting to Temporal",
		zap.String("host", host),
		zap.String("namespace", ns),
		zap.String("network", network))

	var tClient client.Client
	err := retry.WithBackoff(connCtx, retry.DefaultConfig(), logger, "temporal_connection", func() error {
		var err error
		tClient, err = Dial(connCtx, host, ns, loggerWrapper)
		if err != nil {
			return err
		}
		if _, err = tClient.CheckHealth(connCtx, nil); err != nil {
			tClient.Close()
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Client{
		TClient:        tClient,
		TSClient:       tClient.ScheduleClient(),
		Network:        network,
		Namespace:      ns,
		HostPort:       host,
		logger:         logger,
		SyncQueue:      SyncQueue(network),
		SyncScheduleID: SyncScheduleID(network),
		SyncWorkflowID: SyncWorkflowID(network),
	}, nil
}

// Dial connects to Temporal using the provided hostPort and namespace.
func Dial(ctx context.Context, hostPort, namespace string, logger log.Logger) (client.Client, error) {
	return client.DialContext(
		ctx,
		client.Options{
			HostPort:  hostPort,
			Namespace: namespace,
			Logger:    logger,
		},
	)
}

// EnsureNamespace ensures the Temporal namespace exists, creating it if necessary.
func (c *Client) EnsureNamespace(ctx context.Context, retention time.Duration) error {
	nsClient, err := client.NewNamespaceClient(client.Options{
		HostPort: c.HostPort,
		Logger:   NewZapAdapter(c.logger),
	})
	if err != nil {
		return fmt.Errorf("failed to create namespace client: %w", err)
	}
	defer nsClient.Close()

	for attempt := 0; attempt < 10; attempt++ {
		_, err = nsClient.Describe(ctx, c.Namespace)
		if err == nil {
			return nil
		}

		var notFound *serviceerror.NamespaceNotFound
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to describe namespace: %w", err)
		}

		if attempt == 0 {
			err = nsClient.Register(ctx, &workflowservice.RegisterNamespaceRequest{
				Namespace:                        c.Namespace,
				WorkflowExecutionRetentionPeriod: durationpb.New(retention),
			})
			var exists *serviceerror.NamespaceAlreadyExists
			if err != nil && !errors.As(err, &exists) {
				return fmt.Errorf("failed to register namespace: %w", err)
			}
		}

		// registration is eventually visible
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return fmt.Errorf("namespace %s not available after registration", c.Namespace)
}

// EnsureSyncSchedule creates the schedule that starts the sync workflow every interval.
// Overlapping runs are skipped: a network has at most one sync in flight.
func (c *Client) EnsureSyncSchedule(ctx context.Context, interval time.Duration, args ...interface{}) error {
	h := c.TSClient.GetHandle(ctx, c.SyncScheduleID)
	_, err := h.Describe(ctx)
	if err == nil {
		c.logger.Info("Sync schedule already exists",
			zap.String("id", c.SyncScheduleID),
			zap.String("namespace", c.Namespace))
		return nil
	}

	var notFound *serviceerror.NotFound
	if !errors.As(err, &notFound) {
		return err
	}

	c.logger.Info("Creating sync schedule",
		zap.String("id", c.SyncScheduleID),
		zap.String("namespace", c.Namespace),
		zap.Duration("every", interval))
	_, err = c.TSClient.Create(ctx, client.ScheduleOptions{
		ID:      c.SyncScheduleID,
		Spec:    GetScheduleSpec(interval),
		Overlap: enums.SCHEDULE_OVERLAP_POLICY_SKIP,
		Action: &client.ScheduleWorkflowAction{
			ID:                  c.SyncWorkflowID,
			Workflow:            SyncStakingWorkflowName,
			Args:                args,
			TaskQueue:           c.SyncQueue,
			WorkflowTaskTimeout: 2 * time.Minute,
		},
	})
	return err
}

// Close closes the underlying Temporal client connection.
func (c *Client) Close() {
	if c.TClient != nil {
		c.TClient.Close()
	}
}
