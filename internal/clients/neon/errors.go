package neon

import (
	"errors"
	"fmt"
	"time"
)

// ErrProductionBranchNotFound means a project has no "main" or "production"
// branch, so there is nothing to snapshot or restore onto.
var ErrProductionBranchNotFound = errors.New("neon: production branch not found")

// ControlPlaneError carries the failed operation name plus the raw response
// so operators can tell which control-plane call broke and why.
type ControlPlaneError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *ControlPlaneError) Error() string {
	return fmt.Sprintf("neon: %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

func (e *ControlPlaneError) HTTPStatusCode() int { return e.StatusCode }

// OperationTimeoutError means an operation did not settle within the poll
// budget. The outcome is unknown: callers must not read a timeout as either
// success or failure of the underlying operation.
type OperationTimeoutError struct {
	OperationID string
	LastStatus  OperationStatus
	Waited      time.Duration
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("neon: operation %s did not settle within %s (last status %q)",
		e.OperationID, e.Waited, e.LastStatus)
}
