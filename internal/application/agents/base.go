package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"loanflow-server/internal/application/errorhandler"
	"loanflow-server/internal/domain/conversation"
	"loanflow-server/internal/infrastructure/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Status reports what an agent is doing right now.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusWaiting    Status = "waiting"
	StatusError      Status = "error"
	StatusCompleted  Status = "completed"
)

const (
	maxTaskRetries      = 3
	maxRecoveryAttempts = 2
	maxKeptErrors       = 3
	maxBackoff          = 30 * time.Second
	unhealthyErrorCount = 10
	unhealthyErrorAge   = 5 * time.Minute
)

// TaskFunc is the agent-specific work invoked under the retry wrapper.
type TaskFunc func(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error)

// Agent is implemented by every worker in the loan pipeline.
type Agent interface {
	Type() conversation.AgentType
	CanExecute(task *conversation.AgentTask) bool
	Execute(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context) (map[string]any, error)
	IsHealthy() bool
	StatusReport() map[string]any
}

// Base carries the retry, recovery and health bookkeeping shared by all
// agents. Concrete agents embed it and run their logic through ExecuteTask.
type Base struct {
	agentType conversation.AgentType
	agentID   string
	errs      *errorhandler.Handler
	log       zerolog.Logger

	// sleep is swapped out in tests so backoff does not wall-clock.
	sleep func(ctx context.Context, d time.Duration) error

	mu               sync.Mutex
	status           Status
	errorCount       int
	recoveryAttempts int
	lastErrorAt      time.Time
	tasksCompleted   int
	tasksFailed      int
}

// NewBase initializes the shared agent state.
func NewBase(agentType conversation.AgentType, errs *errorhandler.Handler) Base {
	agentID := fmt.Sprintf("%s_%s", agentType, uuid.NewString()[:8])
	return Base{
		agentType: agentType,
		agentID:   agentID,
		errs:      errs,
		log:       log.With().Str("agent_type", string(agentType)).Str("agent_id", agentID).Logger(),
		status:    StatusIdle,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Type returns the agent type.
func (b *Base) Type() conversation.AgentType {
	return b.agentType
}

// ID returns the agent instance id.
func (b *Base) ID() string {
	return b.agentID
}

// ExecuteTask runs logic with bounded retry and exponential backoff. On final
// failure it asks the error handler for a recovery plan; at most two recovery
// rounds re-enter the retry loop before the task fails for good.
func (b *Base) ExecuteTask(ctx context.Context, task *conversation.AgentTask, conv *conversation.Context, logic TaskFunc) (map[string]any, error) {
	b.setStatus(StatusProcessing)
	task.Start()
	start := time.Now()

	b.log.Info().Str("task_id", task.ID).Str("task_type", string(task.Type)).Msg("starting task")

	var lastErr error
	for {
		for attempt := 1; attempt <= maxTaskRetries+1; attempt++ {
			result, err := logic(ctx, task, conv)
			if err == nil {
				task.Complete(result)
				b.recordSuccess()
				if conv != nil {
					conv.CompleteTask(task.ID)
				}
				metrics.AgentTasksTotal.WithLabelValues(string(b.agentType), "completed").Inc()
				metrics.AgentTaskDuration.WithLabelValues(string(b.agentType)).Observe(time.Since(start).Seconds())
				b.log.Info().Str("task_id", task.ID).Msg("task completed")
				return result, nil
			}

			lastErr = err
			b.recordFailure()
			metrics.AgentTaskRetriesTotal.WithLabelValues(string(b.agentType)).Inc()
			b.log.Error().Err(err).Str("task_id", task.ID).Int("attempt", attempt).Msg("task attempt failed")

			if attempt > maxTaskRetries {
				break
			}
			backoff := backoffForAttempt(attempt)
			if sleepErr := b.sleep(ctx, backoff); sleepErr != nil {
				task.Fail(sleepErr.Error())
				b.setStatus(StatusError)
				metrics.AgentTasksTotal.WithLabelValues(string(b.agentType), "cancelled").Inc()
				return nil, sleepErr
			}
		}

		result := b.errs.HandleAgentError(b.agentType, task.ID, lastErr, conv)
		if result.RetryPossible && b.takeRecoveryAttempt() {
			task.Reset()
			b.setStatus(StatusProcessing)
			if conv != nil {
				conv.TrimErrors(maxKeptErrors)
				conv.AddCollectedData("recovery_message", result.CustomerMessage)
			}
			b.log.Warn().Str("task_id", task.ID).Msg("attempting task recovery")
			continue
		}

		task.Fail(fmt.Sprintf("task failed after %d retries: %s", maxTaskRetries, result.CustomerMessage))
		b.setStatus(StatusError)
		metrics.AgentTasksTotal.WithLabelValues(string(b.agentType), "failed").Inc()
		if result.EscalationRequired {
			b.log.Error().Str("task_id", task.ID).Msg("task failure escalated")
		}
		return nil, fmt.Errorf("task %s failed after %d retries: %w", task.ID, maxTaskRetries, lastErr)
	}
}

// backoffForAttempt doubles per attempt and caps at 30s.
func backoffForAttempt(attempt int) time.Duration {
	d := time.Duration(1<<(attempt-1)) * time.Second
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (b *Base) setStatus(s Status) {
	b.mu.Lock()
	b.status = s
	b.mu.Unlock()
}

func (b *Base) recordSuccess() {
	b.mu.Lock()
	b.status = StatusCompleted
	b.tasksCompleted++
	b.mu.Unlock()
}

func (b *Base) recordFailure() {
	b.mu.Lock()
	b.errorCount++
	b.tasksFailed++
	b.lastErrorAt = time.Now()
	b.mu.Unlock()
}

func (b *Base) takeRecoveryAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recoveryAttempts >= maxRecoveryAttempts {
		return false
	}
	b.recoveryAttempts++
	return true
}

// IsHealthy reports whether the agent should keep receiving work.
func (b *Base) IsHealthy() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.errorCount > unhealthyErrorCount {
		return false
	}
	if b.recoveryAttempts >= maxRecoveryAttempts {
		return false
	}
	if b.status == StatusError && !b.lastErrorAt.IsZero() && time.Since(b.lastErrorAt) > unhealthyErrorAge {
		return false
	}
	return true
}

// ResetAgent returns the agent to a clean idle state. Error counters reset so
// a replaced worker starts healthy.
func (b *Base) ResetAgent() {
	b.mu.Lock()
	b.status = StatusIdle
	b.errorCount = 0
	b.recoveryAttempts = 0
	b.lastErrorAt = time.Time{}
	b.mu.Unlock()

	b.log.Info().Msg("agent reset")
}

// StatusReport returns the agent's health snapshot.
func (b *Base) StatusReport() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()

	report := map[string]any{
		"agent_id":          b.agentID,
		"agent_type":        string(b.agentType),
		"status":            string(b.status),
		"error_count":       b.errorCount,
		"recovery_attempts": b.recoveryAttempts,
		"tasks_completed":   b.tasksCompleted,
		"tasks_failed":      b.tasksFailed,
	}
	if !b.lastErrorAt.IsZero() {
		report["last_error_at"] = b.lastErrorAt.UTC().Format(time.RFC3339)
	}
	return report
}
