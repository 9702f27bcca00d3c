package errorhandler

import (
	"context"
	"strings"
	"sync"

	"loanflow-server/internal/domain/conversation"
	"loanflow-server/utils/platformerrors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Category classifies an error for customer messaging and recovery.
type Category string

const (
	CategoryAgentFailure   Category = "agent_failure"
	CategoryAPIFailure     Category = "api_failure"
	CategoryValidation     Category = "validation_error"
	CategoryProcessing     Category = "processing_error"
	CategoryNetwork        Category = "network_error"
	CategoryTimeout        Category = "timeout_error"
	CategoryAuthentication Category = "authentication_error"
	CategoryBusinessRule   Category = "business_rule_error"
	CategoryData           Category = "data_error"
	CategorySystem         Category = "system_error"
)

// escalationThreshold is the per-category error count above which every
// further error in that category escalates.
const escalationThreshold = 10

// ErrorContext carries the situation an error occurred in.
type ErrorContext struct {
	SessionID  string
	AgentType  conversation.AgentType
	TaskID     string
	CustomerID string
	Stage      conversation.Stage
	Extra      map[string]any
}

// Result is the outcome of handling one error.
type Result struct {
	Handled            bool     `json:"handled"`
	ErrorID            string   `json:"error_id"`
	CustomerMessage    string   `json:"customer_message"`
	RecoveryType       string   `json:"recovery_type"`
	RecoveryActions    []string `json:"recovery_actions"`
	EscalationRequired bool     `json:"escalation_required"`
	RetryPossible      bool     `json:"retry_possible"`
	ContextUpdated     bool     `json:"context_updated"`
}

// recovery describes the strategy attached to a category.
type recovery struct {
	recoveryType string
	actions      []string
	retry        bool
	escalate     bool
}

// Handler turns internal failures into customer-safe messages plus a
// recovery plan, and tracks per-category counts for escalation.
type Handler struct {
	mu         sync.Mutex
	total      int64
	byCategory map[Category]int64
	escalated  int64
}

// New returns a ready error handler.
func New() *Handler {
	return &Handler{byCategory: make(map[Category]int64)}
}

// Handle logs err, picks the customer message and recovery strategy for its
// category, and records the error on the conversation context when given one.
// specificType selects a finer-grained message inside the category, e.g. the
// failing agent or API name.
func (h *Handler) Handle(err error, category Category, errCtx ErrorContext, conv *conversation.Context, specificType string) Result {
	h.mu.Lock()
	h.total++
	h.byCategory[category]++
	count := h.byCategory[category]
	h.mu.Unlock()

	errorID := "err_" + uuid.NewString()[:8]

	pe := platformerrors.NewErrorWithContext(
		context.Background(),
		platformerrors.LayerService,
		categoryErrorType(category),
		err.Error(),
		err,
		"",
		map[string]any{
			"error_id":   errorID,
			"category":   string(category),
			"severity":   string(conversationSeverity(category)),
			"session_id": errCtx.SessionID,
			"agent_type": string(errCtx.AgentType),
			"task_id":    errCtx.TaskID,
			"stage":      string(errCtx.Stage),
		},
	)
	platformerrors.LogError(log.Logger, pe)

	rec := recoveryFor(category)
	escalate := rec.escalate || category == CategorySystem || count > escalationThreshold
	if escalate {
		h.mu.Lock()
		h.escalated++
		h.mu.Unlock()
		log.Warn().
			Str("error_id", errorID).
			Str("category", string(category)).
			Int64("category_count", count).
			Msg("error escalated")
	}

	contextUpdated := false
	if conv != nil {
		conv.AddError("error "+errorID+": "+err.Error(), conversationSeverity(category), map[string]any{
			"error_id":          errorID,
			"error_category":    string(category),
			"recovery_strategy": rec.recoveryType,
		})
		contextUpdated = true
	}

	return Result{
		Handled:            true,
		ErrorID:            errorID,
		CustomerMessage:    customerMessage(category, specificType),
		RecoveryType:       rec.recoveryType,
		RecoveryActions:    rec.actions,
		EscalationRequired: escalate,
		RetryPossible:      rec.retry,
		ContextUpdated:     contextUpdated,
	}
}

// HandleAgentError reports a failed agent task.
func (h *Handler) HandleAgentError(agentType conversation.AgentType, taskID string, err error, conv *conversation.Context) Result {
	errCtx := ErrorContext{AgentType: agentType, TaskID: taskID}
	if conv != nil {
		errCtx.SessionID = conv.SessionID
		errCtx.Stage = conv.Stage
	}
	return h.Handle(err, CategoryAgentFailure, errCtx, conv, agentShortName(agentType))
}

// HandleAPIError reports a failed upstream API call.
func (h *Handler) HandleAPIError(apiName string, err error, conv *conversation.Context) Result {
	errCtx := ErrorContext{Extra: map[string]any{"api_name": apiName}}
	if conv != nil {
		errCtx.SessionID = conv.SessionID
		errCtx.Stage = conv.Stage
	}
	return h.Handle(err, CategoryAPIFailure, errCtx, conv, strings.ToLower(apiName))
}

// Statistics snapshot for the health endpoint.
type Statistics struct {
	TotalErrors      int64              `json:"total_errors"`
	ErrorsByCategory map[Category]int64 `json:"errors_by_category"`
	EscalatedErrors  int64              `json:"escalated_errors"`
}

// Statistics returns current error counters.
func (h *Handler) Statistics() Statistics {
	h.mu.Lock()
	defer h.mu.Unlock()

	byCat := make(map[Category]int64, len(h.byCategory))
	for c, n := range h.byCategory {
		byCat[c] = n
	}
	return Statistics{
		TotalErrors:      h.total,
		ErrorsByCategory: byCat,
		EscalatedErrors:  h.escalated,
	}
}

func recoveryFor(category Category) recovery {
	switch category {
	case CategoryAgentFailure:
		return recovery{"agent_restart", []string{"restart_agent", "reset_task", "notify_customer"}, true, false}
	case CategoryAPIFailure:
		return recovery{"api_retry_with_fallback", []string{"retry_api_call", "use_fallback_data", "continue_with_manual"}, true, false}
	case CategoryValidation:
		return recovery{"request_correction", []string{"request_data_correction", "provide_format_guidance", "offer_assistance"}, true, false}
	case CategoryProcessing:
		return recovery{"reprocess_with_alternative", []string{"retry_processing", "use_alternative_method", "simplify_process"}, true, false}
	case CategoryNetwork:
		return recovery{"network_retry", []string{"retry_connection", "use_cached_data", "wait_and_retry"}, true, false}
	case CategoryTimeout:
		return recovery{"timeout_retry", []string{"increase_timeout", "retry_operation", "use_async_processing"}, true, false}
	case CategoryBusinessRule:
		return recovery{"provide_alternatives", []string{"explain_rules", "offer_alternatives", "suggest_modifications"}, true, false}
	case CategoryData:
		return recovery{"data_correction", []string{"request_data_verification", "use_default_values", "manual_data_entry"}, true, false}
	case CategorySystem:
		return recovery{"system_recovery", []string{"restart_service", "use_backup_system", "escalate_to_admin"}, true, true}
	default:
		return recovery{"generic_recovery", []string{"log_error", "notify_customer", "continue_conversation"}, false, true}
	}
}

func conversationSeverity(category Category) conversation.ErrorSeverity {
	switch category {
	case CategorySystem:
		return conversation.SeverityCritical
	case CategoryAgentFailure, CategoryAPIFailure, CategoryAuthentication:
		return conversation.SeverityHigh
	case CategoryProcessing, CategoryNetwork, CategoryTimeout, CategoryData:
		return conversation.SeverityMedium
	case CategoryValidation, CategoryBusinessRule:
		return conversation.SeverityLow
	default:
		return conversation.SeverityMedium
	}
}

func categoryErrorType(category Category) platformerrors.ErrorType {
	switch category {
	case CategoryValidation, CategoryData:
		return platformerrors.ErrorTypeValidation
	case CategoryAPIFailure, CategoryNetwork, CategoryTimeout:
		return platformerrors.ErrorTypeExternal
	case CategoryAuthentication:
		return platformerrors.ErrorTypeUnauthorized
	case CategoryBusinessRule:
		return platformerrors.ErrorTypeConflict
	default:
		return platformerrors.ErrorTypeInternal
	}
}

func agentShortName(agentType conversation.AgentType) string {
	name := string(agentType)
	name = strings.TrimSuffix(name, "_agent")
	return name
}
