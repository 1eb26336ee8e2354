package stagetrust

import (
	"errors"
	"fmt"
)

// ErrorCategory categorizes errors for handling and reporting.
type ErrorCategory string

const (
	// ErrCategoryConfiguration indicates a required input (seed, org,
	// project) is missing or empty.
	ErrCategoryConfiguration ErrorCategory = "configuration"
	// ErrCategoryInvalidStage indicates a stage label outside the
	// closed stage enumeration.
	ErrCategoryInvalidStage ErrorCategory = "invalid_stage"
	// ErrCategoryAmbiguousLabel indicates two stages would produce the
	// same role label.
	ErrCategoryAmbiguousLabel ErrorCategory = "ambiguous_role_label"
	// ErrCategoryValidation indicates invalid input or configuration.
	ErrCategoryValidation ErrorCategory = "validation"
	// ErrCategoryPermission indicates insufficient permissions.
	ErrCategoryPermission ErrorCategory = "permission"
	// ErrCategoryNetwork indicates a network-related failure.
	ErrCategoryNetwork ErrorCategory = "network"
	// ErrCategoryNotFound indicates a resource was not found.
	ErrCategoryNotFound ErrorCategory = "not_found"
	// ErrCategoryConflict indicates a resource conflict (already exists).
	ErrCategoryConflict ErrorCategory = "conflict"
	// ErrCategoryInternal indicates an internal error.
	ErrCategoryInternal ErrorCategory = "internal"
)

// StageTrustError is a structured error with category and context.
// All errors surface immediately to the caller; nothing in this
// package retries or recovers internally.
type StageTrustError struct {
	// Category classifies the error type.
	Category ErrorCategory

	// Message is a human-readable error message. It must never
	// contain seed material or derived secret values.
	Message string

	// Operation is the operation that failed.
	Operation string

	// Stage is the deployment stage involved, if any.
	Stage Stage

	// ResourceType is the type of resource involved.
	ResourceType string

	// ResourceID is the ID of the resource involved.
	ResourceID string

	// Cause is the underlying error.
	Cause error

	// Retryable indicates whether the orchestrator may retry the
	// whole deployment step. This core never retries.
	Retryable bool

	// Details contains additional error context.
	Details map[string]interface{}
}

// Error implements the error interface.
func (e *StageTrustError) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Category, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s:%s] %s", e.Stage, e.Category, e.Message)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StageTrustError) Unwrap() error {
	return e.Cause
}

// Is checks if the target error matches this error's category.
func (e *StageTrustError) Is(target error) bool {
	var stErr *StageTrustError
	if errors.As(target, &stErr) {
		return e.Category == stErr.Category
	}
	return false
}

// NewError creates a new StageTrustError.
func NewError(category ErrorCategory, message string) *StageTrustError {
	return &StageTrustError{
		Category: category,
		Message:  message,
		Details:  make(map[string]interface{}),
	}
}

// WithOperation sets the operation.
func (e *StageTrustError) WithOperation(op string) *StageTrustError {
	e.Operation = op
	return e
}

// WithStage sets the stage.
func (e *StageTrustError) WithStage(s Stage) *StageTrustError {
	e.Stage = s
	return e
}

// WithResource sets the resource type and ID.
func (e *StageTrustError) WithResource(resourceType, resourceID string) *StageTrustError {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithCause sets the underlying error.
func (e *StageTrustError) WithCause(err error) *StageTrustError {
	e.Cause = err
	return e
}

// WithRetryable marks the error as retryable by the orchestrator.
func (e *StageTrustError) WithRetryable(retryable bool) *StageTrustError {
	e.Retryable = retryable
	return e
}

// WithDetail adds a detail to the error.
func (e *StageTrustError) WithDetail(key string, value interface{}) *StageTrustError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common error types

// ErrConfiguration creates a configuration error for a missing or
// empty required input. Non-retryable: the caller must abort rather
// than emit a degraded value.
func ErrConfiguration(message string) *StageTrustError {
	return NewError(ErrCategoryConfiguration, message)
}

// ErrInvalidStage creates an error for an unrecognized stage label.
func ErrInvalidStage(label string) *StageTrustError {
	return NewError(ErrCategoryInvalidStage, fmt.Sprintf("unrecognized stage: %q", label)).
		WithDetail("label", label)
}

// ErrAmbiguousRoleLabel creates an error for two stages colliding on
// the same role label. Must be caught before resource creation.
func ErrAmbiguousRoleLabel(label string, a, b Stage) *StageTrustError {
	return NewError(ErrCategoryAmbiguousLabel,
		fmt.Sprintf("stages %s and %s both produce role label %q", a, b, label)).
		WithDetail("label", label)
}

// ErrValidation creates a validation error.
func ErrValidation(message string) *StageTrustError {
	return NewError(ErrCategoryValidation, message)
}

// ErrPermission creates a permission error.
func ErrPermission(message string) *StageTrustError {
	return NewError(ErrCategoryPermission, message)
}

// ErrNetwork creates a network error.
func ErrNetwork(message string) *StageTrustError {
	return NewError(ErrCategoryNetwork, message).WithRetryable(true)
}

// ErrNotFound creates a not found error.
func ErrNotFound(resourceType, resourceID string) *StageTrustError {
	return NewError(ErrCategoryNotFound, fmt.Sprintf("%s not found: %s", resourceType, resourceID)).
		WithResource(resourceType, resourceID)
}

// ErrConflict creates a conflict error.
func ErrConflict(resourceType, resourceID string) *StageTrustError {
	return NewError(ErrCategoryConflict, fmt.Sprintf("%s already exists: %s", resourceType, resourceID)).
		WithResource(resourceType, resourceID)
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *StageTrustError {
	return NewError(ErrCategoryInternal, message)
}

// IsCategory checks if an error is of a specific category.
func IsCategory(err error, category ErrorCategory) bool {
	var stErr *StageTrustError
	if errors.As(err, &stErr) {
		return stErr.Category == category
	}
	return false
}

// IsRetryable checks if an error is retryable by the orchestrator.
func IsRetryable(err error) bool {
	var stErr *StageTrustError
	if errors.As(err, &stErr) {
		return stErr.Retryable
	}
	return false
}

// GetErrorStage extracts the stage from an error.
func GetErrorStage(err error) Stage {
	var stErr *StageTrustError
	if errors.As(err, &stErr) {
		return stErr.Stage
	}
	return ""
}

// RollbackError represents an error during rollback with partial
// cleanup info.
type RollbackError struct {
	// OriginalError is the error that triggered rollback.
	OriginalError error

	// RollbackErrors are errors encountered during rollback.
	RollbackErrors []error

	// OrphanedResources lists resources that couldn't be cleaned up.
	OrphanedResources []string
}

// Error implements the error interface.
func (e *RollbackError) Error() string {
	msg := fmt.Sprintf("rollback failed after: %v", e.OriginalError)
	if len(e.OrphanedResources) > 0 {
		msg = fmt.Sprintf("%s; orphaned resources: %v", msg, e.OrphanedResources)
	}
	return msg
}

// Unwrap returns the original error.
func (e *RollbackError) Unwrap() error {
	return e.OriginalError
}
