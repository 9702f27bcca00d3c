package errorhandler

import (
	"errors"
	"testing"

	"loanflow-server/internal/domain/conversation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleReturnsCustomerMessageAndRecovery(t *testing.T) {
	h := New()

	result := h.Handle(errors.New("boom"), CategoryAPIFailure, ErrorContext{SessionID: "s1"}, nil, "crm")

	assert.True(t, result.Handled)
	assert.NotEmpty(t, result.ErrorID)
	assert.Contains(t, result.CustomerMessage, "customer information")
	assert.Equal(t, "api_retry_with_fallback", result.RecoveryType)
	assert.Contains(t, result.RecoveryActions, "use_fallback_data")
	assert.True(t, result.RetryPossible)
	assert.False(t, result.EscalationRequired)
	assert.False(t, result.ContextUpdated)
}

func TestHandleFallsBackToCategoryDefault(t *testing.T) {
	h := New()

	result := h.Handle(errors.New("boom"), CategoryValidation, ErrorContext{}, nil, "unknown_field")
	assert.Equal(t, customerMessages[CategoryValidation]["default"], result.CustomerMessage)
}

func TestHandleUpdatesConversationContext(t *testing.T) {
	h := New()
	conv := conversation.NewContext("session_x", "CUST001")

	result := h.Handle(errors.New("task blew up"), CategoryAgentFailure, ErrorContext{SessionID: conv.SessionID}, conv, "sales")

	assert.True(t, result.ContextUpdated)
	require.Len(t, conv.Errors, 1)
	assert.Equal(t, conversation.SeverityHigh, conv.Errors[0].Severity)
	assert.Equal(t, "agent_failure", conv.Errors[0].Context["error_category"])
	assert.Equal(t, "agent_restart", conv.Errors[0].Context["recovery_strategy"])
}

func TestSystemErrorsAlwaysEscalate(t *testing.T) {
	h := New()

	result := h.Handle(errors.New("db down"), CategorySystem, ErrorContext{}, nil, "database")
	assert.True(t, result.EscalationRequired)
	assert.Equal(t, "system_recovery", result.RecoveryType)
}

func TestEscalationAfterRepeatedCategoryErrors(t *testing.T) {
	h := New()

	for i := 0; i < 10; i++ {
		result := h.Handle(errors.New("nope"), CategoryValidation, ErrorContext{}, nil, "")
		assert.False(t, result.EscalationRequired)
	}

	result := h.Handle(errors.New("nope"), CategoryValidation, ErrorContext{}, nil, "")
	assert.True(t, result.EscalationRequired)
}

func TestHandleAgentErrorUsesAgentSpecificCopy(t *testing.T) {
	h := New()
	conv := conversation.NewContext("session_y", "CUST002")

	result := h.HandleAgentError(conversation.AgentUnderwriting, "task-1", errors.New("scoring failed"), conv)
	assert.Contains(t, result.CustomerMessage, "approval process")
}

func TestStatistics(t *testing.T) {
	h := New()
	h.Handle(errors.New("a"), CategoryAPIFailure, ErrorContext{}, nil, "")
	h.Handle(errors.New("b"), CategoryAPIFailure, ErrorContext{}, nil, "")
	h.Handle(errors.New("c"), CategorySystem, ErrorContext{}, nil, "")

	stats := h.Statistics()
	assert.Equal(t, int64(3), stats.TotalErrors)
	assert.Equal(t, int64(2), stats.ErrorsByCategory[CategoryAPIFailure])
	assert.Equal(t, int64(1), stats.EscalatedErrors)
}
