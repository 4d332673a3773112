package neon

import (
	"context"
	"fmt"
	"time"

	"github.com/hatchpad/hatchpad-backend/internal/backends"
	neonclient "github.com/hatchpad/hatchpad-backend/internal/clients/neon"
	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
)

// Adapter implements the backend contract on top of the Neon control plane.
type Adapter struct {
	client neonclient.Client
	log    *logger.Logger
}

func NewAdapter(client neonclient.Client, baseLog *logger.Logger) *Adapter {
	return &Adapter{
		client: client,
		log:    baseLog.With("adapter", "neon"),
	}
}

func (a *Adapter) Validate(project *types.Project) error {
	if project == nil {
		return &backends.OpError{Op: backends.OpValidate, Err: fmt.Errorf("project is nil")}
	}
	if project.BackendProjectID == "" {
		return &backends.OpError{
			Op:        backends.OpValidate,
			ProjectID: project.ID,
			Err:       fmt.Errorf("missing backend_project_id"),
		}
	}
	return nil
}

// Provision is a no-op for projects whose Neon project already exists
// (provisioning normally happens at project-creation time).
func (a *Adapter) Provision(ctx context.Context, project *types.Project) (backends.ProvisionResult, error) {
	if project.BackendProjectID != "" {
		return backends.ProvisionResult{BackendProjectID: project.BackendProjectID}, nil
	}
	created, err := a.client.CreateProject(ctx, project.Name)
	if err != nil {
		return backends.ProvisionResult{}, &backends.OpError{Op: backends.OpProvision, ProjectID: project.ID, Err: err}
	}
	a.log.Info("Provisioned neon project", "project_id", project.ID, "backend_project_id", created.ProjectID)
	return backends.ProvisionResult{
		BackendProjectID: created.ProjectID,
		DatabaseURL:      created.DatabaseURL,
	}, nil
}

func (a *Adapter) Destroy(ctx context.Context, project *types.Project) error {
	if err := a.Validate(project); err != nil {
		return err
	}
	if err := a.client.DeleteProject(ctx, project.BackendProjectID); err != nil {
		return &backends.OpError{Op: backends.OpDestroy, ProjectID: project.ID, Err: err}
	}
	return nil
}

func (a *Adapter) Snapshot(ctx context.Context, project *types.Project) (backends.Snapshot, error) {
	if err := a.Validate(project); err != nil {
		return backends.Snapshot{}, err
	}
	now := time.Now().UTC()
	snapshotID, err := a.client.CreateSnapshot(ctx, project.BackendProjectID, neonclient.SnapshotOptions{
		Name: fmt.Sprintf("checkpoint-%d", now.Unix()),
	})
	if err != nil {
		return backends.Snapshot{}, &backends.OpError{Op: backends.OpSnapshot, ProjectID: project.ID, Err: err}
	}
	return backends.Snapshot{ID: snapshotID, CreatedAt: now}, nil
}

func (a *Adapter) Rollback(ctx context.Context, project *types.Project, snapshotID string) error {
	if err := a.Validate(project); err != nil {
		return err
	}
	production, err := a.client.GetProductionBranch(ctx, project.BackendProjectID)
	if err != nil {
		return &backends.OpError{Op: backends.OpRollback, ProjectID: project.ID, Err: err}
	}
	if production == nil {
		return &backends.OpError{Op: backends.OpRollback, ProjectID: project.ID, Err: neonclient.ErrProductionBranchNotFound}
	}
	if err := a.client.ApplySnapshot(ctx, project.BackendProjectID, snapshotID, production.ID); err != nil {
		return &backends.OpError{Op: backends.OpRollback, ProjectID: project.ID, Err: err}
	}
	return nil
}

// ResolveProductionBranch implements backends.ProductionBranchResolver.
func (a *Adapter) ResolveProductionBranch(ctx context.Context, project *types.Project) (string, error) {
	if err := a.Validate(project); err != nil {
		return "", err
	}
	production, err := a.client.GetProductionBranch(ctx, project.BackendProjectID)
	if err != nil {
		return "", err
	}
	if production == nil {
		return "", neonclient.ErrProductionBranchNotFound
	}
	return production.ID, nil
}

// EnsureAuthDomain implements backends.AuthDomainManager.
func (a *Adapter) EnsureAuthDomain(ctx context.Context, project *types.Project, domain string) error {
	if err := a.Validate(project); err != nil {
		return err
	}
	return a.client.AddAuthDomain(ctx, project.BackendProjectID, domain)
}

func (a *Adapter) BuildEnv(ctx context.Context, project *types.Project) (map[string]string, error) {
	if err := a.Validate(project); err != nil {
		return nil, &backends.OpError{Op: backends.OpBuildEnv, ProjectID: project.ID, Err: fmt.Errorf("backend identity missing")}
	}
	production, err := a.client.GetProductionBranch(ctx, project.BackendProjectID)
	if err != nil {
		return nil, &backends.OpError{Op: backends.OpBuildEnv, ProjectID: project.ID, Err: err}
	}
	branchID := ""
	if production != nil {
		branchID = production.ID
	}
	uri, err := a.client.GetConnectionURI(ctx, project.BackendProjectID, branchID)
	if err != nil {
		return nil, &backends.OpError{Op: backends.OpBuildEnv, ProjectID: project.ID, Err: err}
	}
	return map[string]string{
		"DATABASE_URL": uri,
	}, nil
}
