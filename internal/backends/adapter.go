package backends

import (
	"context"
	"time"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
)

// Snapshot is a backend-agnostic reference to a point-in-time capture. The
// id is opaque and only meaningful to the adapter that produced it.
type Snapshot struct {
	ID        string
	CreatedAt time.Time
}

// ProvisionResult reports the backend identity after provisioning. For a
// project provisioned earlier it echoes the existing identity.
type ProvisionResult struct {
	BackendProjectID string
	DatabaseURL      string
}

// Adapter abstracts a database backend behind one capability set so the
// versioning steps never branch on backend type.
type Adapter interface {
	// Validate is the cheap precondition check run before anything
	// expensive is attempted.
	Validate(project *types.Project) error
	Provision(ctx context.Context, project *types.Project) (ProvisionResult, error)
	// Destroy irreversibly removes the backend's data resource. During
	// project teardown a failure here is logged, not fatal.
	Destroy(ctx context.Context, project *types.Project) error
	Snapshot(ctx context.Context, project *types.Project) (Snapshot, error)
	Rollback(ctx context.Context, project *types.Project, snapshotID string) error
	// BuildEnv derives the env vars the sandbox needs to reach the backend.
	BuildEnv(ctx context.Context, project *types.Project) (map[string]string, error)
}
