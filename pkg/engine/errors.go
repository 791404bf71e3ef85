package engine

import (
	"errors"
	"fmt"
)

// ErrorClass represents the classification of an error raised while loading,
// building or solving a factory model.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates a malformed factory description.
	// Examples: duplicate keys, dangling connection endpoints, missing parameters.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassAlignment indicates a recoverable numeric alignment issue,
	// such as a delay that is not a whole number of timesteps.
	ErrorClassAlignment ErrorClass = "alignment"

	// ErrorClassBalance indicates converter weights that cannot close the
	// energy or mass balance.
	ErrorClassBalance ErrorClass = "balance"

	// ErrorClassSolver indicates an infeasible, unbounded or failed solve.
	ErrorClassSolver ErrorClass = "solver"

	// ErrorClassInternal indicates a broken builder invariant.
	ErrorClassInternal ErrorClass = "internal"
)

// EngineError represents a classified error with context.
// nolint:revive // EngineError is intentionally named to distinguish from standard errors
type EngineError struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Resource is the component, connection or flowtype key at fault.
	Resource string `json:"resource,omitempty"`

	// Operation is the operation being performed when the error occurred.
	Operation string `json:"operation,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`

	// Details contains additional context-specific information.
	Details map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Resource != "" && e.Operation != "" {
		msg = fmt.Sprintf("%s (key=%s, operation=%s)", msg, e.Resource, e.Operation)
	} else if e.Resource != "" {
		msg = fmt.Sprintf("%s (key=%s)", msg, e.Resource)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// NewConfigurationError creates an error for a malformed factory.
func NewConfigurationError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewAlignmentError creates a warning-grade alignment error.
func NewAlignmentError(message string) *EngineError {
	return &EngineError{Class: ErrorClassAlignment, Message: message, Code: ErrCodeDelayRounded}
}

// NewBalanceError creates an error for a converter whose weights cannot balance.
func NewBalanceError(message string) *EngineError {
	return &EngineError{Class: ErrorClassBalance, Message: message, Code: ErrCodeBalance}
}

// NewSolverError creates an error for a solver outcome other than optimal.
func NewSolverError(message string, err error) *EngineError {
	return &EngineError{Class: ErrorClassSolver, Message: message, Err: err}
}

// NewInternalError creates an error for a violated builder invariant.
func NewInternalError(message string) *EngineError {
	return &EngineError{Class: ErrorClassInternal, Message: message, Code: ErrCodeInternal}
}

// WithResource adds the offending key to an error.
func (e *EngineError) WithResource(key string) *EngineError {
	e.Resource = key
	return e
}

// WithOperation adds operation context to an error.
func (e *EngineError) WithOperation(operation string) *EngineError {
	e.Operation = operation
	return e
}

// WithCode adds an error code to an error.
func (e *EngineError) WithCode(code string) *EngineError {
	e.Code = code
	return e
}

// WithDetail adds a detail field to the error context.
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func isClass(err error, class ErrorClass) bool {
	var e *EngineError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// IsConfiguration returns true if the error is a configuration error.
func IsConfiguration(err error) bool {
	return isClass(err, ErrorClassConfiguration)
}

// IsAlignment returns true if the error is an alignment warning.
func IsAlignment(err error) bool {
	return isClass(err, ErrorClassAlignment)
}

// IsBalance returns true if the error is a balance violation.
func IsBalance(err error) bool {
	return isClass(err, ErrorClassBalance)
}

// IsSolver returns true if the error reports a solver outcome.
func IsSolver(err error) bool {
	return isClass(err, ErrorClassSolver)
}

// IsInternal returns true if the error is a builder invariant violation.
func IsInternal(err error) bool {
	return isClass(err, ErrorClassInternal)
}

// Common error codes.
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeDuplicateKey   = "DUPLICATE_KEY"
	ErrCodeDangling       = "DANGLING_ENDPOINT"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeArity          = "ARITY"
	ErrCodeParameter      = "PARAMETER"
	ErrCodeNoPrimary      = "NO_PRIMARY_FLOW"
	ErrCodeLossWeight     = "LOSS_WEIGHT"
	ErrCodeBalance        = "BALANCE_VIOLATION"
	ErrCodeDelayRounded   = "DELAY_ROUNDED"
	ErrCodePrimaryDefault = "PRIMARY_FALLBACK"
	ErrCodeInfeasible     = "INFEASIBLE"
	ErrCodeUnbounded      = "UNBOUNDED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInternal       = "INTERNAL_ERROR"
)
