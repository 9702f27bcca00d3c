package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"loanflow-server/internal/application/agents"
	"loanflow-server/internal/interfaces/httpserver/requests"
	"loanflow-server/internal/interfaces/httpserver/responses"
)

const defaultCustomerID = "GUEST_USER"

// ChatHandler exposes the conversation endpoints.
type ChatHandler struct {
	master   *agents.MasterAgent
	sessions *agents.SessionManager
	manager  *agents.ConversationManager
	log      zerolog.Logger
}

func NewChatHandler(master *agents.MasterAgent, sessions *agents.SessionManager, manager *agents.ConversationManager, log zerolog.Logger) *ChatHandler {
	return &ChatHandler{
		master:   master,
		sessions: sessions,
		manager:  manager,
		log:      log.With().Str("component", "chat-handler").Logger(),
	}
}

// Message handles one chat turn. A request without a session id starts
// a new session first.
func (h *ChatHandler) Message(c *gin.Context) {
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		responses.Fail(c, http.StatusUnsupportedMediaType, responses.CodeInvalidContentType, "content type must be application/json")
		return
	}

	var req requests.ChatMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.Fail(c, http.StatusBadRequest, responses.CodeMissingMessage, "message field is required")
		return
	}

	message := strings.TrimSpace(req.Message)
	sessionID := strings.TrimSpace(req.SessionID)

	if sessionID == "" {
		customerID := strings.TrimSpace(req.CustomerID)
		if customerID == "" {
			customerID = defaultCustomerID
		}
		resp, err := h.master.InitiateConversation(customerID, req.CustomerName, req.Referral, message)
		if err != nil {
			h.log.Error().Err(err).Msg("failed to start session")
			responses.Fail(c, http.StatusInternalServerError, responses.CodeInternalError, "failed to start conversation")
			return
		}
		sessionID = resp.SessionID

		// A bare opener is answered by the greeting alone.
		if message == "" {
			conv, _ := h.sessions.Context(sessionID)
			c.JSON(http.StatusOK, responses.BuildChatResponse(resp, conv))
			return
		}
	} else if message == "" {
		responses.Fail(c, http.StatusBadRequest, responses.CodeEmptyMessage, "message must not be empty")
		return
	}

	resp, err := h.master.ProcessMessage(c.Request.Context(), sessionID, message)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			responses.Fail(c, http.StatusNotFound, responses.CodeSessionNotFound, "session not found: "+sessionID)
			return
		}
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("message processing failed")
		responses.Fail(c, http.StatusInternalServerError, responses.CodeInternalError, "failed to process message")
		return
	}

	conv, ok := h.sessions.Context(sessionID)
	if !ok {
		responses.Fail(c, http.StatusNotFound, responses.CodeSessionNotFound, "session not found: "+sessionID)
		return
	}
	c.JSON(http.StatusOK, responses.BuildChatResponse(resp, conv))
}

// Status reports session progress, stage completion and agent health.
func (h *ChatHandler) Status(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("sessionId"))
	if sessionID == "" {
		responses.Fail(c, http.StatusBadRequest, responses.CodeMissingSessionID, "sessionId query parameter is required")
		return
	}

	conv, ok := h.sessions.Context(sessionID)
	if !ok {
		responses.Fail(c, http.StatusNotFound, responses.CodeSessionNotFound, "session not found: "+sessionID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"context": responses.ChatContext{
			SessionID:         conv.SessionID,
			CurrentAgent:      string(conv.CurrentAgent),
			ConversationStage: string(conv.Stage),
			CustomerID:        conv.CustomerID,
		},
		"progress":         h.manager.ConversationProgress(conv),
		"stage_completion": h.manager.CheckStageCompletion(conv),
		"pending_tasks":    len(conv.PendingTasks),
		"errors":           len(conv.Errors),
		"agent_health":     h.master.HealthReport(sessionID),
		"updated_at":       conv.UpdatedAt,
	})
}

// Reset restarts a session. resetType soft keeps collected data under
// the same session id; hard ends the session and issues a fresh one, so
// clients must pick up sessionId from the response.
func (h *ChatHandler) Reset(c *gin.Context) {
	var req requests.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.SessionID) == "" {
		responses.Fail(c, http.StatusBadRequest, responses.CodeMissingSessionID, "sessionId is required")
		return
	}

	resetType := strings.ToLower(strings.TrimSpace(req.ResetType))
	if resetType == "" {
		resetType = "soft"
	}
	if resetType != "soft" && resetType != "hard" {
		responses.Fail(c, http.StatusBadRequest, responses.CodeInvalidResetType, "resetType must be soft or hard")
		return
	}

	conv, err := h.sessions.ResetSession(req.SessionID, resetType == "hard")
	if err != nil {
		responses.Fail(c, http.StatusNotFound, responses.CodeSessionNotFound, "session not found: "+req.SessionID)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"reset_type": resetType,
		"session_id": conv.SessionID,
		"context": responses.ChatContext{
			SessionID:         conv.SessionID,
			CurrentAgent:      string(conv.CurrentAgent),
			ConversationStage: string(conv.Stage),
			CustomerID:        conv.CustomerID,
		},
	})
}

// Sessions lists active sessions, optionally filtered by customer.
func (h *ChatHandler) Sessions(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			responses.Fail(c, http.StatusBadRequest, responses.CodeInvalidParameter, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	sessions := h.sessions.ListSessions(c.Query("customerId"), limit)
	items := make([]gin.H, 0, len(sessions))
	for _, conv := range sessions {
		items = append(items, gin.H{
			"sessionId":         conv.SessionID,
			"customerId":        conv.CustomerID,
			"currentAgent":      string(conv.CurrentAgent),
			"conversationStage": string(conv.Stage),
			"messages":          len(conv.Messages),
			"createdAt":         conv.CreatedAt,
			"updatedAt":         conv.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"sessions":   items,
		"count":      len(items),
		"statistics": h.sessions.Statistics(),
	})
}
