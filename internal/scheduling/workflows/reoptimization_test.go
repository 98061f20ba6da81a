package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/marimovDEV/tipografiya/internal/scheduling/application"
	"github.com/marimovDEV/tipografiya/pkg/temporal"
)

func TestQueueReoptimizationWorkflow_AllActiveMachines(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	Register(env, NewActivities(nil))

	env.OnActivity(temporal.ActivityNames.ListActiveMachines, mock.Anything).
		Return([]string{"cutter-1", "printer-1", "gluer-1"}, nil)
	env.OnActivity(temporal.ActivityNames.OptimizeMachineQueue, mock.Anything, "cutter-1").
		Return(&OptimizeQueueResult{MachineID: "cutter-1", Pending: 2}, nil)
	env.OnActivity(temporal.ActivityNames.OptimizeMachineQueue, mock.Anything, "printer-1").
		Return(&OptimizeQueueResult{MachineID: "printer-1", Pending: 3, InProgress: 1}, nil)
	env.OnActivity(temporal.ActivityNames.OptimizeMachineQueue, mock.Anything, "gluer-1").
		Return(nil, errors.New("mongo unavailable"))

	env.ExecuteWorkflow(QueueReoptimizationWorkflow, ReoptimizationInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReoptimizationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 3, result.Machines)
	assert.Equal(t, 2, result.Optimized)
	assert.Equal(t, 5, result.PendingSteps)
	assert.Equal(t, []string{"gluer-1"}, result.Failed)
}

func TestQueueReoptimizationWorkflow_ExplicitMachines(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	Register(env, NewActivities(nil))

	env.OnActivity(temporal.ActivityNames.OptimizeMachineQueue, mock.Anything, "printer-1").
		Return(&OptimizeQueueResult{MachineID: "printer-1", Pending: 4}, nil).Once()

	env.ExecuteWorkflow(QueueReoptimizationWorkflow, ReoptimizationInput{MachineIDs: []string{"printer-1"}})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result ReoptimizationResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, 1, result.Optimized)
	assert.Empty(t, result.Failed)
	env.AssertExpectations(t)
}

func TestQueueReoptimizationWorkflow_ListFailureFailsRun(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()
	Register(env, NewActivities(nil))

	env.OnActivity(temporal.ActivityNames.ListActiveMachines, mock.Anything).
		Return(nil, errors.New("mongo unavailable"))

	env.ExecuteWorkflow(QueueReoptimizationWorkflow, ReoptimizationInput{})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
}

type fakeOptimizer struct {
	machines []*application.MachineDTO
	queues   map[string]*application.MachineQueueDTO
}

func (f *fakeOptimizer) ListMachines(ctx context.Context, activeOnly bool) ([]*application.MachineDTO, error) {
	return f.machines, nil
}

func (f *fakeOptimizer) OptimizeMachineQueue(ctx context.Context, machineID string) (*application.MachineQueueDTO, error) {
	q, ok := f.queues[machineID]
	if !ok {
		return nil, errors.New("machine not found")
	}
	return q, nil
}

func TestActivities(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()
	acts := NewActivities(&fakeOptimizer{
		machines: []*application.MachineDTO{{ID: "cutter-1"}, {ID: "printer-1"}},
		queues: map[string]*application.MachineQueueDTO{
			"printer-1": {MachineID: "printer-1", TotalPending: 3, TotalInProgress: 1},
		},
	})
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(acts.ListActiveMachines)
	require.NoError(t, err)
	var ids []string
	require.NoError(t, val.Get(&ids))
	assert.Equal(t, []string{"cutter-1", "printer-1"}, ids)

	val, err = env.ExecuteActivity(acts.OptimizeMachineQueue, "printer-1")
	require.NoError(t, err)
	var result OptimizeQueueResult
	require.NoError(t, val.Get(&result))
	assert.Equal(t, OptimizeQueueResult{MachineID: "printer-1", Pending: 3, InProgress: 1}, result)

	_, err = env.ExecuteActivity(acts.OptimizeMachineQueue, "missing")
	assert.Error(t, err)
}
