package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/byggpilot/byggpilot/pkg/log"
)

type ErrorType int

const (
	ErrValidation ErrorType = iota
	ErrAuthorization
	ErrExternalService
	ErrStorage
	ErrConfig
	ErrUnknown
)

// AssistantError carries a machine-checkable type plus free-form context
// so handlers can map failures to responses without string matching.
type AssistantError struct {
	Type    ErrorType
	Message string
	Context map[string]any
	Cause   error
}

func NewError(errorType ErrorType, message string) *AssistantError {
	return &AssistantError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
	}
}

func NewErrorWithCause(errorType ErrorType, message string, cause error) *AssistantError {
	return &AssistantError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]any),
		Cause:   cause,
	}
}

func (e *AssistantError) Error() string {
	var parts []string
	parts = append(parts, fmt.Sprintf("[%s] %s", e.Type.String(), e.Message))

	if len(e.Context) > 0 {
		var ctxParts []string
		for k, v := range e.Context {
			ctxParts = append(ctxParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(ctxParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

func (e *AssistantError) Unwrap() error {
	return e.Cause
}

func (e *AssistantError) WithContext(key string, value any) *AssistantError {
	e.Context[key] = value
	return e
}

func (t ErrorType) String() string {
	switch t {
	case ErrValidation:
		return "Validation"
	case ErrAuthorization:
		return "Authorization"
	case ErrExternalService:
		return "ExternalService"
	case ErrStorage:
		return "Storage"
	case ErrConfig:
		return "Config"
	case ErrUnknown:
		return "Unknown"
	default:
		return "Unknown"
	}
}

type ErrorHandler interface {
	Handle(err error) bool
	GetAdvice(err *AssistantError) string
}

type DefaultErrorHandler struct{}

func NewDefaultErrorHandler() ErrorHandler {
	return &DefaultErrorHandler{}
}

func (h *DefaultErrorHandler) Handle(err error) bool {
	assistantErr, ok := err.(*AssistantError)
	if !ok {
		log.Error("Unknown Error: %v", err)
		return false
	}

	advice := h.GetAdvice(assistantErr)
	log.Error("Error Detail: %v\n advice: %s", err, advice)

	return true
}

// GetAdvice returns error handling advice
func (h *DefaultErrorHandler) GetAdvice(err *AssistantError) string {
	switch err.Type {
	case ErrValidation:
		return "Please verify input parameters are correct—conversation, user and company identifiers cannot be empty"
	case ErrAuthorization:
		return "Please check that a delegated Workspace token is present; document and email operations require one"
	case ErrExternalService:
		return "Please check connectivity to the LLM provider and the Workspace bridge, or review their service status"
	case ErrStorage:
		return "Please check that the database file is reachable and writable, and that migrations have been applied"
	case ErrConfig:
		return "Please check that configuration files or environment variables are set correctly"
	default:
		return "Please review detailed error information and check relevant configuration"
	}
}

func IsErrorType(err error, errorType ErrorType) bool {
	var assistantErr *AssistantError
	if errors.As(err, &assistantErr) {
		return assistantErr.Type == errorType
	}
	return false
}

func WrapError(err error, errorType ErrorType, message string) *AssistantError {
	return NewErrorWithCause(errorType, message, err)
}

func Must(err error, message string) {
	if err != nil {
		panic(fmt.Sprintf("%s: %v", message, err))
	}
}

func SafeExecute(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrUnknown, fmt.Sprintf("runtime error: %v", r))
		}
	}()

	return fn()
}
