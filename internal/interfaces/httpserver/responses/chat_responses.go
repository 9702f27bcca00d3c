package responses

import (
	"github.com/gin-gonic/gin"

	"loanflow-server/internal/application/agents"
	"loanflow-server/internal/domain/conversation"
)

// API error codes returned in the error envelope.
const (
	CodeInvalidContentType = "INVALID_CONTENT_TYPE"
	CodeMissingMessage     = "MISSING_MESSAGE"
	CodeEmptyMessage       = "EMPTY_MESSAGE"
	CodeMissingSessionID   = "MISSING_SESSION_ID"
	CodeSessionNotFound    = "SESSION_NOT_FOUND"
	CodeInvalidResetType   = "INVALID_RESET_TYPE"
	CodeInvalidParameter   = "INVALID_PARAMETER"
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInternalError      = "INTERNAL_ERROR"
)

// ChatContext echoes the session state back to the client.
type ChatContext struct {
	SessionID         string `json:"sessionId"`
	CurrentAgent      string `json:"currentAgent"`
	ConversationStage string `json:"conversationStage"`
	CustomerID        string `json:"customerId,omitempty"`
}

// ChatResponse is the success envelope for chat endpoints.
type ChatResponse struct {
	Success     bool           `json:"success"`
	Message     string         `json:"message"`
	MessageType string         `json:"messageType"`
	AgentType   string         `json:"agentType"`
	Context     ChatContext    `json:"context"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// BuildChatResponse maps the master agent's reply onto the envelope.
func BuildChatResponse(resp *agents.Response, conv *conversation.Context) *ChatResponse {
	return &ChatResponse{
		Success:     true,
		Message:     resp.Message,
		MessageType: messageType(resp),
		AgentType:   string(resp.AgentType),
		Context: ChatContext{
			SessionID:         conv.SessionID,
			CurrentAgent:      string(conv.CurrentAgent),
			ConversationStage: string(conv.Stage),
			CustomerID:        conv.CustomerID,
		},
		Metadata: resp.Metadata,
	}
}

func messageType(resp *agents.Response) string {
	if resp.MessageType == conversation.MessageDownloadLink {
		return "download_link"
	}
	if resp.Metadata != nil {
		if options, ok := resp.Metadata["loan_options"]; ok && options != nil {
			return "loan_options"
		}
		if missing, ok := resp.Metadata["missing_data"]; ok && missing != nil {
			return "form"
		}
	}
	return "text"
}

// APIError is the failure envelope shared by all endpoints.
type APIError struct {
	Success bool         `json:"success"`
	Error   APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Fail writes the error envelope and aborts the request.
func Fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, APIError{
		Success: false,
		Error:   APIErrorBody{Code: code, Message: message},
	})
}
