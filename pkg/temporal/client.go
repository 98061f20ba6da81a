package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"
	tlog "go.temporal.io/sdk/log"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/marimovDEV/tipografiya/pkg/logging"
)

// Config holds Temporal client configuration
type Config struct {
	HostPort  string `yaml:"hostPort" validate:"required"`
	Namespace string `yaml:"namespace" validate:"required"`
	Identity  string `yaml:"identity"`

	// ReoptimizeEvery is the interval of the queue re-optimization schedule.
	// Zero disables the schedule.
	ReoptimizeEvery time.Duration `yaml:"reoptimizeEvery"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		HostPort:        "localhost:7233",
		Namespace:       "default",
		Identity:        "planning-worker",
		ReoptimizeEvery: 15 * time.Minute,
	}
}

// TaskQueues contains the planning task queue names
var TaskQueues = struct {
	Planning string
}{
	Planning: "planning-queue",
}

// WorkflowNames contains the planning workflow names
var WorkflowNames = struct {
	QueueReoptimization string
}{
	QueueReoptimization: "QueueReoptimizationWorkflow",
}

// ActivityNames contains the planning activity names
var ActivityNames = struct {
	ListActiveMachines   string
	OptimizeMachineQueue string
}{
	ListActiveMachines:   "ListActiveMachines",
	OptimizeMachineQueue: "OptimizeMachineQueue",
}

// Client wraps the Temporal client
type Client struct {
	client client.Client
	config *Config
}

// NewClient dials Temporal and routes SDK logs through logger
func NewClient(ctx context.Context, config *Config, logger *logging.Logger) (*Client, error) {
	options := client.Options{
		HostPort:  config.HostPort,
		Namespace: config.Namespace,
		Identity:  config.Identity,
	}
	if logger != nil {
		options.Logger = tlog.NewStructuredLogger(logger.Logger)
	}

	c, err := client.DialContext(ctx, options)
	if err != nil {
		return nil, fmt.Errorf("failed to create Temporal client: %w", err)
	}

	return &Client{client: c, config: config}, nil
}

// Client returns the underlying Temporal client
func (c *Client) Client() client.Client {
	return c.client
}

// Close closes the client connection
func (c *Client) Close() {
	c.client.Close()
}

// StartWorkflow starts a workflow execution
func (c *Client) StartWorkflow(ctx context.Context, workflowID, taskQueue, workflowName string, args ...interface{}) (client.WorkflowRun, error) {
	options := client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: taskQueue,
	}
	return c.client.ExecuteWorkflow(ctx, options, workflowName, args...)
}

// EnsureSchedule registers an interval schedule that starts workflowName.
// An existing schedule with the same ID is left untouched.
func (c *Client) EnsureSchedule(ctx context.Context, scheduleID string, every time.Duration, taskQueue, workflowName string, args ...interface{}) error {
	_, err := c.client.ScheduleClient().Create(ctx, client.ScheduleOptions{
		ID: scheduleID,
		Spec: client.ScheduleSpec{
			Intervals: []client.ScheduleIntervalSpec{{Every: every}},
		},
		Action: &client.ScheduleWorkflowAction{
			ID:        scheduleID + "-run",
			Workflow:  workflowName,
			Args:      args,
			TaskQueue: taskQueue,
		},
	})
	if err != nil && !errors.Is(err, temporal.ErrScheduleAlreadyRunning) {
		return fmt.Errorf("failed to create schedule %s: %w", scheduleID, err)
	}
	return nil
}

// WorkerOptions contains options for creating a worker
type WorkerOptions struct {
	TaskQueue                    string
	MaxConcurrentActivityPollers int
	MaxConcurrentWorkflowPollers int
	MaxConcurrentActivities      int
	MaxConcurrentWorkflows       int
}

// DefaultWorkerOptions returns default worker options
func DefaultWorkerOptions(taskQueue string) *WorkerOptions {
	return &WorkerOptions{
		TaskQueue:                    taskQueue,
		MaxConcurrentActivityPollers: 2,
		MaxConcurrentWorkflowPollers: 2,
		MaxConcurrentActivities:      20,
		MaxConcurrentWorkflows:       20,
	}
}

// NewWorker creates a new Temporal worker
func (c *Client) NewWorker(opts *WorkerOptions) worker.Worker {
	return worker.New(c.client, opts.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     opts.MaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: opts.MaxConcurrentWorkflows,
		MaxConcurrentActivityTaskPollers:       opts.MaxConcurrentActivityPollers,
		MaxConcurrentWorkflowTaskPollers:       opts.MaxConcurrentWorkflowPollers,
	})
}

// RetryPolicy represents a retry policy for activities
type RetryPolicy struct {
	InitialInterval    time.Duration
	BackoffCoefficient float64
	MaximumInterval    time.Duration
	MaximumAttempts    int32
}

// ActivityOptions represents activity execution options
type ActivityOptions struct {
	StartToCloseTimeout time.Duration
	HeartbeatTimeout    time.Duration
	RetryPolicy         RetryPolicy
}

// DefaultActivityOptions returns default activity options
func DefaultActivityOptions() ActivityOptions {
	return ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
}

// ToWorkflowOptions converts to the SDK activity options
func (o ActivityOptions) ToWorkflowOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: o.StartToCloseTimeout,
		HeartbeatTimeout:    o.HeartbeatTimeout,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    o.RetryPolicy.InitialInterval,
			BackoffCoefficient: o.RetryPolicy.BackoffCoefficient,
			MaximumInterval:    o.RetryPolicy.MaximumInterval,
			MaximumAttempts:    o.RetryPolicy.MaximumAttempts,
		},
	}
}
