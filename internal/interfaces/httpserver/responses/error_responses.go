package responses

import (
	"errors"
	"net/http"

	"loanflow-server/utils/platformerrors"

	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON error envelope. Code carries the platform
// error uuid so support can find the matching log line.
type ErrorResponse struct {
	Code      string `json:"code,omitempty"`
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// HandleError maps a platform error to its HTTP status and aborts the
// request. Anything else becomes a 500 with the given message.
func HandleError(reqCtx *gin.Context, err error, message string) {
	var pe *platformerrors.PlatformError
	if !errors.As(err, &pe) {
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:   message,
			Message: message,
		})
		return
	}

	errorMessage := pe.Message
	if errorMessage == "" {
		errorMessage = message
	}
	reqCtx.AbortWithStatusJSON(platformerrors.ErrorTypeToHTTPStatus(pe.Type), ErrorResponse{
		Code:      pe.UUID,
		Error:     errorMessage,
		Message:   errorMessage,
		RequestID: pe.RequestID,
	})
}

// HandleNewError raises a fresh route-layer error and responds with it.
func HandleNewError(reqCtx *gin.Context, errorType platformerrors.ErrorType, message string, uuid string) {
	err := platformerrors.NewError(reqCtx.Request.Context(), platformerrors.LayerRoute, errorType, message, nil, uuid)

	reqCtx.AbortWithStatusJSON(platformerrors.ErrorTypeToHTTPStatus(err.Type), ErrorResponse{
		Code:      err.UUID,
		Error:     message,
		Message:   message,
		RequestID: err.RequestID,
	})
}
