package agents

import (
	"context"
	"errors"
	"testing"
	"time"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/domain/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBase(t *testing.T) (*Base, *[]time.Duration) {
	t.Helper()
	b := NewBase(conversation.AgentSales, errorhandler.New())
	var slept []time.Duration
	b.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return &b, &slept
}

func TestExecuteTaskSucceedsAfterTransientFailures(t *testing.T) {
	b, slept := testBase(t)
	conv := conversation.NewContext("session_base", "CUST001")
	task := conversation.NewTask(conversation.AgentSales, conversation.TaskSales, nil)
	conv.AddPendingTask(task)

	attempts := 0
	result, err := b.ExecuteTask(context.Background(), task, conv, func(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("transient")
		}
		return map[string]any{"ok": true}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *slept)
	assert.Equal(t, conversation.TaskCompleted, task.Status)
	assert.Empty(t, conv.PendingTasks)
	require.Len(t, conv.CompletedTasks, 1)
}

func TestExecuteTaskRecoveryTrimsErrorsAndNotifiesCustomer(t *testing.T) {
	b, _ := testBase(t)
	conv := conversation.NewContext("session_base", "CUST001")
	for i := 0; i < 4; i++ {
		conv.AddError("earlier failure", conversation.SeverityLow, nil)
	}
	task := conversation.NewTask(conversation.AgentSales, conversation.TaskSales, nil)
	conv.AddPendingTask(task)

	attempts := 0
	result, err := b.ExecuteTask(context.Background(), task, conv, func(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
		attempts++
		if attempts <= maxTaskRetries+1 {
			return nil, errors.New("flaky downstream")
		}
		return map[string]any{"ok": true}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result)
	assert.Equal(t, maxTaskRetries+2, attempts)
	assert.Equal(t, conversation.TaskCompleted, task.Status)

	// Recovery keeps only the latest errors and leaves a note for the
	// customer while the agent's own counters survive the restart.
	assert.Len(t, conv.Errors, maxKeptErrors)
	msg, ok := conv.GetCollectedValue("recovery_message")
	require.True(t, ok)
	text, ok := msg.(string)
	require.True(t, ok)
	assert.NotEmpty(t, text)

	report := b.StatusReport()
	assert.Equal(t, 4, report["error_count"])
	assert.Equal(t, 1, report["recovery_attempts"])
}

func TestExecuteTaskExhaustsRetriesAndRecoveries(t *testing.T) {
	b, _ := testBase(t)
	conv := conversation.NewContext("session_base", "CUST001")
	task := conversation.NewTask(conversation.AgentSales, conversation.TaskSales, nil)

	attempts := 0
	_, err := b.ExecuteTask(context.Background(), task, conv, func(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
		attempts++
		return nil, errors.New("permanent")
	})

	require.Error(t, err)
	assert.ErrorContains(t, err, "failed after 3 retries")
	// One initial round plus two recovery rounds, four attempts each.
	assert.Equal(t, 12, attempts)
	assert.Equal(t, conversation.TaskFailed, task.Status)
	assert.False(t, b.IsHealthy())
}

func TestExecuteTaskStopsOnContextCancel(t *testing.T) {
	b := NewBase(conversation.AgentSales, errorhandler.New())
	b.sleep = sleepCtx
	task := conversation.NewTask(conversation.AgentSales, conversation.TaskSales, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.ExecuteTask(ctx, task, nil, func(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, conversation.TaskFailed, task.Status)
}

func TestBackoffForAttemptCapsAtThirtySeconds(t *testing.T) {
	assert.Equal(t, time.Second, backoffForAttempt(1))
	assert.Equal(t, 2*time.Second, backoffForAttempt(2))
	assert.Equal(t, 4*time.Second, backoffForAttempt(3))
	assert.Equal(t, 30*time.Second, backoffForAttempt(10))
}

func TestResetAgentRestoresHealth(t *testing.T) {
	b, _ := testBase(t)
	task := conversation.NewTask(conversation.AgentSales, conversation.TaskSales, nil)

	_, err := b.ExecuteTask(context.Background(), task, nil, func(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error) {
		return nil, errors.New("permanent")
	})
	require.Error(t, err)
	require.False(t, b.IsHealthy())

	b.ResetAgent()
	assert.True(t, b.IsHealthy())

	report := b.StatusReport()
	assert.Equal(t, string(StatusIdle), report["status"])
	assert.Equal(t, 0, report["error_count"])
}
