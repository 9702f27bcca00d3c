package platformerrors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrorType categorizes an error for HTTP mapping and reporting.
type ErrorType string

const (
	ErrorTypeNotFound      ErrorType = "NOT_FOUND"
	ErrorTypeValidation    ErrorType = "VALIDATION"
	ErrorTypeConflict      ErrorType = "CONFLICT"
	ErrorTypeUnauthorized  ErrorType = "UNAUTHORIZED"
	ErrorTypeInternal      ErrorType = "INTERNAL"
	ErrorTypeExternal      ErrorType = "EXTERNAL"
	ErrorTypeDatabaseError ErrorType = "DATABASE_ERROR"
)

// Layer names the part of the service where the error originated.
type Layer string

const (
	LayerRepository Layer = "repository"
	LayerService    Layer = "service"
	LayerRoute      Layer = "route"
)

type requestIDKey struct{}

// WithRequestID attaches a request id so errors raised under this
// context carry it.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func requestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// PlatformError is an error annotated with the layer it came from, a
// stable uuid for support lookups and optional context fields.
type PlatformError struct {
	UUID      string
	Layer     Layer
	Type      ErrorType
	Message   string
	Err       error
	RequestID string
	Context   map[string]any
	Timestamp time.Time
}

func (e *PlatformError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s (%s): %s: %v", e.Layer, e.Type, e.UUID, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s (%s): %s", e.Layer, e.Type, e.UUID, e.Message)
}

func (e *PlatformError) Unwrap() error { return e.Err }

// NewError builds a PlatformError. An empty customUUID gets a fresh one.
func NewError(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, customUUID string) *PlatformError {
	return NewErrorWithContext(ctx, layer, errorType, message, err, customUUID, nil)
}

// NewErrorWithContext is NewError plus arbitrary context fields that
// end up on the structured log line.
func NewErrorWithContext(ctx context.Context, layer Layer, errorType ErrorType, message string, err error, customUUID string, fields map[string]any) *PlatformError {
	id := customUUID
	if id == "" {
		id = uuid.NewString()
	}

	pe := &PlatformError{
		UUID:      id,
		Layer:     layer,
		Type:      errorType,
		Message:   message,
		Err:       err,
		RequestID: requestIDFrom(ctx),
		Timestamp: time.Now().UTC(),
	}
	if len(fields) > 0 {
		pe.Context = make(map[string]any, len(fields))
		for k, v := range fields {
			pe.Context[k] = v
		}
	}
	return pe
}

// ErrorTypeToHTTPStatus maps an error type to the response status.
func ErrorTypeToHTTPStatus(errorType ErrorType) int {
	switch errorType {
	case ErrorTypeNotFound:
		return http.StatusNotFound
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeConflict:
		return http.StatusConflict
	case ErrorTypeUnauthorized:
		return http.StatusUnauthorized
	case ErrorTypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsErrorType reports whether err is (or wraps) a PlatformError of the
// given type.
func IsErrorType(err error, errorType ErrorType) bool {
	var pe *PlatformError
	return errors.As(err, &pe) && pe.Type == errorType
}

// LogError emits the error with its annotations as structured fields.
func LogError(log zerolog.Logger, err *PlatformError) {
	if err == nil {
		return
	}
	event := log.Error().
		Str("error_uuid", err.UUID).
		Str("error_type", string(err.Type)).
		Str("layer", string(err.Layer)).
		Time("raised_at", err.Timestamp)
	if err.RequestID != "" {
		event = event.Str("request_id", err.RequestID)
	}
	for k, v := range err.Context {
		event = event.Interface(k, v)
	}
	if err.Err != nil {
		event = event.Err(err.Err)
	}
	event.Msg(err.Message)
}
