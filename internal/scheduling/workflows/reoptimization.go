package workflows

import (
	"go.temporal.io/sdk/workflow"

	"github.com/marimovDEV/tipografiya/pkg/temporal"
)

// ReoptimizationInput selects the machines to re-plan. Empty means every
// active machine.
type ReoptimizationInput struct {
	MachineIDs []string `json:"machineIds,omitempty"`
}

// ReoptimizationResult reports a re-optimization run
type ReoptimizationResult struct {
	Machines     int      `json:"machines"`
	Optimized    int      `json:"optimized"`
	PendingSteps int      `json:"pendingSteps"`
	Failed       []string `json:"failed,omitempty"`
}

func workflowOptions(name string) workflow.RegisterOptions {
	return workflow.RegisterOptions{Name: name}
}

// QueueReoptimizationWorkflow re-plans machine queues so estimates follow
// real progress. Machines are optimized in parallel; a machine that fails
// is reported and does not stop the others.
func QueueReoptimizationWorkflow(ctx workflow.Context, input ReoptimizationInput) (*ReoptimizationResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, temporal.DefaultActivityOptions().ToWorkflowOptions())

	machineIDs := input.MachineIDs
	if len(machineIDs) == 0 {
		if err := workflow.ExecuteActivity(ctx, temporal.ActivityNames.ListActiveMachines).Get(ctx, &machineIDs); err != nil {
			logger.Error("Failed to list active machines", "error", err)
			return nil, err
		}
	}

	result := &ReoptimizationResult{Machines: len(machineIDs)}
	if len(machineIDs) == 0 {
		return result, nil
	}

	futures := make([]workflow.Future, len(machineIDs))
	for i, id := range machineIDs {
		futures[i] = workflow.ExecuteActivity(ctx, temporal.ActivityNames.OptimizeMachineQueue, id)
	}

	for i, f := range futures {
		var queue OptimizeQueueResult
		if err := f.Get(ctx, &queue); err != nil {
			logger.Warn("Machine queue optimization failed", "machineId", machineIDs[i], "error", err)
			result.Failed = append(result.Failed, machineIDs[i])
			continue
		}
		result.Optimized++
		result.PendingSteps += queue.Pending
	}

	logger.Info("Queue re-optimization finished",
		"machines", result.Machines,
		"optimized", result.Optimized,
		"failed", len(result.Failed),
	)
	return result, nil
}
