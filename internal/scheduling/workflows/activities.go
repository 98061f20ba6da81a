package workflows

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/workflow"

	"github.com/marimovDEV/tipografiya/internal/scheduling/application"
	"github.com/marimovDEV/tipografiya/pkg/temporal"
)

// QueueOptimizer is the part of the scheduler the activities drive
type QueueOptimizer interface {
	ListMachines(ctx context.Context, activeOnly bool) ([]*application.MachineDTO, error)
	OptimizeMachineQueue(ctx context.Context, machineID string) (*application.MachineQueueDTO, error)
}

// Activities runs scheduler operations on behalf of workflows
type Activities struct {
	scheduler QueueOptimizer
}

// NewActivities creates the scheduling activities
func NewActivities(scheduler QueueOptimizer) *Activities {
	return &Activities{scheduler: scheduler}
}

// OptimizeQueueResult summarizes one re-planned machine queue
type OptimizeQueueResult struct {
	MachineID  string `json:"machineId"`
	Pending    int    `json:"pending"`
	InProgress int    `json:"inProgress"`
}

// ListActiveMachines returns the IDs of every active machine
func (a *Activities) ListActiveMachines(ctx context.Context) ([]string, error) {
	machines, err := a.scheduler.ListMachines(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}
	ids := make([]string, 0, len(machines))
	for _, m := range machines {
		ids = append(ids, m.ID)
	}
	activity.GetLogger(ctx).Info("Listed active machines", "count", len(ids))
	return ids, nil
}

// OptimizeMachineQueue re-plans one machine queue
func (a *Activities) OptimizeMachineQueue(ctx context.Context, machineID string) (*OptimizeQueueResult, error) {
	logger := activity.GetLogger(ctx)

	queue, err := a.scheduler.OptimizeMachineQueue(ctx, machineID)
	if err != nil {
		logger.Error("Failed to optimize machine queue", "machineId", machineID, "error", err)
		return nil, err
	}

	logger.Info("Optimized machine queue",
		"machineId", machineID,
		"pending", queue.TotalPending,
		"inProgress", queue.TotalInProgress,
	)
	return &OptimizeQueueResult{
		MachineID:  machineID,
		Pending:    queue.TotalPending,
		InProgress: queue.TotalInProgress,
	}, nil
}

// Registry is satisfied by worker.Worker and the test workflow environment
type Registry interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}

// Register adds the workflow and activities to w under their shared names
func Register(w Registry, a *Activities) {
	w.RegisterWorkflowWithOptions(QueueReoptimizationWorkflow, workflowOptions(temporal.WorkflowNames.QueueReoptimization))
	w.RegisterActivityWithOptions(a.ListActiveMachines, activity.RegisterOptions{Name: temporal.ActivityNames.ListActiveMachines})
	w.RegisterActivityWithOptions(a.OptimizeMachineQueue, activity.RegisterOptions{Name: temporal.ActivityNames.OptimizeMachineQueue})
}
