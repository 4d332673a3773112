package backends

import (
	"context"

	types "github.com/hatchpad/hatchpad-backend/internal/domain"
)

// Optional adapter capabilities. Steps probe for these with a type
// assertion and skip when the backend has no equivalent concept.

// ProductionBranchResolver resolves the backend's writable branch. Adapters
// must re-derive it on every call; a restore can change which branch plays
// this role.
type ProductionBranchResolver interface {
	ResolveProductionBranch(ctx context.Context, project *types.Project) (string, error)
}

// AuthDomainManager allow-lists a domain with the backend's auth layer.
type AuthDomainManager interface {
	EnsureAuthDomain(ctx context.Context, project *types.Project, domain string) error
}
