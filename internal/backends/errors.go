package backends

import (
	"fmt"

	"github.com/google/uuid"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
)

// Op names the adapter capability that failed.
type Op string

const (
	OpValidate  Op = "validate"
	OpProvision Op = "provision"
	OpDestroy   Op = "destroy"
	OpSnapshot  Op = "snapshot"
	OpRollback  Op = "rollback"
	OpBuildEnv  Op = "build-env"
)

// OpError wraps an adapter failure with the operation and project it
// belongs to.
type OpError struct {
	Op        Op
	ProjectID uuid.UUID
	Err       error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("backend %s failed for project %s: %v", e.Op, e.ProjectID, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// UnsupportedBackendError means no adapter is registered for a project's
// backend type. Dispatch never silently defaults.
type UnsupportedBackendError struct {
	Type types.BackendType
}

func (e *UnsupportedBackendError) Error() string {
	return fmt.Sprintf("unsupported backend type %q", e.Type)
}
