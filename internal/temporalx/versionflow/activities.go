package versionflow

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"gorm.io/gorm"

	"github.com/hatchpad/hatchpad-backend/internal/backends"
	redisclient "github.com/hatchpad/hatchpad-backend/internal/clients/redis"
	"github.com/hatchpad/hatchpad-backend/internal/clients/sandbox"
	"github.com/hatchpad/hatchpad-backend/internal/data/repos/projects"
	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/envutil"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
	"github.com/hatchpad/hatchpad-backend/internal/secrets"
)

// ThreadDeleter tears down the chat-thread resource owned by the host
// application. Nil when the host has no thread store wired.
type ThreadDeleter interface {
	DeleteThread(ctx context.Context, threadRef string) error
}

// Activities are the orchestration steps. Each has a single external effect
// and tolerates re-invocation: the workflow host may retry a step after a
// crash between the effect and its completion record.
type Activities struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Projects projects.ProjectRepo
	Versions projects.VersionRepo
	Secrets  projects.SecretRepo
	Codec    *secrets.Codec
	Registry *backends.Registry
	Sandbox  sandbox.Client
	Threads  ThreadDeleter
	Notify   redisclient.ProgressBus
}

func projectFromInfo(info ProjectInfo) *types.Project {
	return &types.Project{
		ID:               info.ID,
		Name:             info.Name,
		RepoRef:          info.RepoRef,
		BackendType:      types.BackendType(info.BackendType),
		BackendProjectID: info.BackendProjectID,
		ThreadRef:        info.ThreadRef,
		CurrentVersionID: info.CurrentVersionID,
	}
}

// GetProject loads the project and validates its backend type before any
// external call. An unsupported backend type is a configuration error and
// never retried.
func (a *Activities) GetProject(ctx context.Context, projectID uuid.UUID) (ProjectInfo, error) {
	project, err := a.Projects.GetByID(dbctx.Context{Ctx: ctx}, projectID)
	if err != nil {
		return ProjectInfo{}, err
	}
	if project == nil {
		return ProjectInfo{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("project %s not found", projectID), "NotFound", nil)
	}
	if _, err := a.Registry.ForType(project.BackendType); err != nil {
		return ProjectInfo{}, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("project %s has unsupported backend_type %q", projectID, project.BackendType),
			"ConfigurationError", err)
	}
	var current *uuid.UUID
	if project.CurrentVersionID != nil {
		v := *project.CurrentVersionID
		current = &v
	}
	return ProjectInfo{
		ID:               project.ID,
		Name:             project.Name,
		RepoRef:          project.RepoRef,
		BackendType:      project.BackendType.String(),
		BackendProjectID: project.BackendProjectID,
		ThreadRef:        project.ThreadRef,
		CurrentVersionID: current,
	}, nil
}

// EnsureProductionBranch checks that the backend has a writable branch and
// returns its id. Backends without a branch concept pass trivially.
func (a *Activities) EnsureProductionBranch(ctx context.Context, info ProjectInfo) (string, error) {
	project := projectFromInfo(info)
	adapter, err := a.Registry.ForProject(project)
	if err != nil {
		return "", err
	}
	if err := adapter.Validate(project); err != nil {
		return "", err
	}
	resolver, ok := adapter.(backends.ProductionBranchResolver)
	if !ok {
		return "", nil
	}
	return resolver.ResolveProductionBranch(ctx, project)
}

// InitAuthDomains allow-lists the platform's preview domain with the
// backend's auth layer. Skipped when unconfigured or unsupported.
func (a *Activities) InitAuthDomains(ctx context.Context, info ProjectInfo) error {
	domain := envutil.GetEnv("SANDBOX_PREVIEW_DOMAIN", "", a.Log)
	if domain == "" {
		a.Log.Debug("No preview domain configured; skipping auth domain init", "project_id", info.ID)
		return nil
	}
	project := projectFromInfo(info)
	adapter, err := a.Registry.ForProject(project)
	if err != nil {
		return err
	}
	manager, ok := adapter.(backends.AuthDomainManager)
	if !ok {
		return nil
	}
	return manager.EnsureAuthDomain(ctx, project, domain)
}

func (a *Activities) ResolveBuildEnv(ctx context.Context, info ProjectInfo) (map[string]string, error) {
	project := projectFromInfo(info)
	adapter, err := a.Registry.ForProject(project)
	if err != nil {
		return nil, err
	}
	return adapter.BuildEnv(ctx, project)
}

func (a *Activities) GetLatestCommit(ctx context.Context, repoRef string) (string, error) {
	return a.Sandbox.GetLatestCommit(ctx, repoRef)
}

func (a *Activities) CreateBackendSnapshot(ctx context.Context, info ProjectInfo) (string, error) {
	project := projectFromInfo(info)
	adapter, err := a.Registry.ForProject(project)
	if err != nil {
		return "", err
	}
	snapshot, err := adapter.Snapshot(ctx, project)
	if err != nil {
		return "", err
	}
	return snapshot.ID, nil
}

// CreateInitialVersion inserts the project's first version row. The host
// guarantees at-most-once invocation per project lifetime; the row itself is
// write-once after that.
func (a *Activities) CreateInitialVersion(ctx context.Context, in CreateVersionInput) (uuid.UUID, error) {
	return a.createVersion(ctx, in, types.SummaryInitialVersion)
}

func (a *Activities) CreateCheckpointVersion(ctx context.Context, in CreateVersionInput) (uuid.UUID, error) {
	return a.createVersion(ctx, in, types.SummaryManualCheckpoint)
}

func (a *Activities) createVersion(ctx context.Context, in CreateVersionInput, summary string) (uuid.UUID, error) {
	version := &types.Version{
		ID:         uuid.New(),
		ProjectID:  in.ProjectID,
		CommitHash: in.CommitHash,
		SnapshotID: in.SnapshotID,
		MessageRef: in.MessageRef,
		Summary:    summary,
	}
	created, err := a.Versions.Create(dbctx.Context{Ctx: ctx}, []*types.Version{version})
	if err != nil {
		return uuid.Nil, fmt.Errorf("create version: %w", err)
	}
	a.notify(ctx, in.ProjectID, "version-created", created[0].ID.String())
	return created[0].ID, nil
}

// SaveProjectSecrets encrypts and persists one bundle. A bundle already
// present for the version means a prior attempt got through: skip.
func (a *Activities) SaveProjectSecrets(ctx context.Context, in SaveSecretsInput) error {
	dbc := dbctx.Context{Ctx: ctx}
	existing, err := a.Secrets.GetByVersionID(dbc, in.VersionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	ciphertext, err := a.Codec.EncryptBundle(in.Env)
	if err != nil {
		return err
	}
	_, err = a.Secrets.Create(dbc, &types.Secret{
		ID:         uuid.New(),
		VersionID:  in.VersionID,
		Ciphertext: ciphertext,
	})
	return err
}

// CopyProjectSecrets decrypts the source bundle and re-encrypts it for the
// destination version. Copying is never byte-for-byte so the signing key can
// rotate per write. A missing source bundle is a valid state (fresh project):
// log and skip, leaving the destination without secrets.
func (a *Activities) CopyProjectSecrets(ctx context.Context, in CopySecretsInput) error {
	dbc := dbctx.Context{Ctx: ctx}

	source, err := a.Secrets.GetByVersionID(dbc, in.FromVersionID)
	if err != nil {
		return err
	}
	if source == nil {
		a.Log.Info("No secrets on source version; skipping copy",
			"from_version_id", in.FromVersionID, "to_version_id", in.ToVersionID)
		return nil
	}

	existing, err := a.Secrets.GetByVersionID(dbc, in.ToVersionID)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	env, err := a.Codec.DecryptBundle(source.Ciphertext)
	if err != nil {
		return fmt.Errorf("decrypt source secrets: %w", err)
	}
	ciphertext, err := a.Codec.EncryptBundle(env)
	if err != nil {
		return fmt.Errorf("re-encrypt secrets: %w", err)
	}
	_, err = a.Secrets.Create(dbc, &types.Secret{
		ID:         uuid.New(),
		VersionID:  in.ToVersionID,
		Ciphertext: ciphertext,
	})
	return err
}

// SetCurrentVersion makes a version live. Unconditional last write wins;
// concurrent workflows racing here resolve by write order.
func (a *Activities) SetCurrentVersion(ctx context.Context, in SetPointerInput) error {
	if err := a.Projects.SetCurrentVersion(dbctx.Context{Ctx: ctx}, in.ProjectID, &in.VersionID); err != nil {
		return err
	}
	a.notify(ctx, in.ProjectID, "pointer-set", in.VersionID.String())
	return nil
}

// WarmUpDevServer asks the sandbox to get a dev process running. Workflows
// fire this without awaiting it, so its failure cannot affect their outcome.
func (a *Activities) WarmUpDevServer(ctx context.Context, in WarmUpInput) error {
	if _, err := a.Sandbox.RequestDevServer(ctx, in.RepoRef, in.Env); err != nil {
		a.Log.Warn("Dev server warm-up failed", "repo_ref", in.RepoRef, "error", err)
		return err
	}
	return nil
}

func (a *Activities) GetProjectVersionIDs(ctx context.Context, projectID uuid.UUID) ([]uuid.UUID, error) {
	return a.Versions.IDsByProject(dbctx.Context{Ctx: ctx}, projectID)
}

func (a *Activities) ClearCurrentVersion(ctx context.Context, projectID uuid.UUID) error {
	return a.Projects.SetCurrentVersion(dbctx.Context{Ctx: ctx}, projectID, nil)
}

func (a *Activities) DeleteProjectSecrets(ctx context.Context, in DeleteSecretsInput) error {
	return a.Secrets.DeleteByVersionIDs(dbctx.Context{Ctx: ctx}, in.VersionIDs)
}

func (a *Activities) DeleteProjectVersions(ctx context.Context, projectID uuid.UUID) error {
	return a.Versions.DeleteByProject(dbctx.Context{Ctx: ctx}, projectID)
}

func (a *Activities) DeleteProjectRecord(ctx context.Context, projectID uuid.UUID) error {
	return a.Projects.Delete(dbctx.Context{Ctx: ctx}, projectID)
}

func (a *Activities) DeleteBackendProject(ctx context.Context, info ProjectInfo) error {
	project := projectFromInfo(info)
	adapter, err := a.Registry.ForProject(project)
	if err != nil {
		return err
	}
	return adapter.Destroy(ctx, project)
}

func (a *Activities) DeleteRepository(ctx context.Context, repoRef string) error {
	return a.Sandbox.DeleteRepo(ctx, repoRef)
}

func (a *Activities) DeleteThreadResource(ctx context.Context, threadRef string) error {
	if a.Threads == nil || threadRef == "" {
		a.Log.Debug("No thread store wired; skipping thread delete", "thread_ref", threadRef)
		return nil
	}
	return a.Threads.DeleteThread(ctx, threadRef)
}

func (a *Activities) notify(ctx context.Context, projectID uuid.UUID, stage, status string) {
	if a.Notify == nil {
		return
	}
	err := a.Notify.Publish(ctx, redisclient.ProgressEvent{
		ProjectID: projectID.String(),
		Stage:     stage,
		Status:    status,
	})
	if err != nil {
		a.Log.Warn("Progress publish failed", "project_id", projectID, "stage", stage, "error", err)
	}
}
