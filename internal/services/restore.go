package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hatchpad/hatchpad-backend/internal/backends"
	redisclient "github.com/hatchpad/hatchpad-backend/internal/clients/redis"
	"github.com/hatchpad/hatchpad-backend/internal/clients/sandbox"
	"github.com/hatchpad/hatchpad-backend/internal/data/repos/projects"
	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	apperrors "github.com/hatchpad/hatchpad-backend/internal/pkg/errors"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
	"github.com/hatchpad/hatchpad-backend/internal/secrets"
)

// RestoreResult reports the live sandbox handle after a successful restore.
type RestoreResult struct {
	VersionID    uuid.UUID `json:"version_id"`
	CommitHash   string    `json:"commit_hash"`
	SnapshotID   string    `json:"snapshot_id"`
	EphemeralURL string    `json:"ephemeral_url"`
}

// RestoreService replays a past version onto the live sandbox and database.
// The sequence is strict: the sandbox handle is acquired and its git tree
// reset before the database snapshot is applied, so the live process never
// runs restored data against unrestored code. Any failure aborts with the
// project pointer untouched.
type RestoreService interface {
	Restore(dbc dbctx.Context, projectID, versionID uuid.UUID) (RestoreResult, error)
}

type restoreService struct {
	db       *gorm.DB
	log      *logger.Logger
	projects projects.ProjectRepo
	versions projects.VersionRepo
	secrets  projects.SecretRepo
	codec    *secrets.Codec
	registry *backends.Registry
	sandbox  sandbox.Client
	notify   redisclient.ProgressBus
}

func NewRestoreService(
	db *gorm.DB,
	baseLog *logger.Logger,
	projectRepo projects.ProjectRepo,
	versionRepo projects.VersionRepo,
	secretRepo projects.SecretRepo,
	codec *secrets.Codec,
	registry *backends.Registry,
	sandboxClient sandbox.Client,
	notify redisclient.ProgressBus,
) RestoreService {
	return &restoreService{
		db:       db,
		log:      baseLog.With("service", "RestoreService"),
		projects: projectRepo,
		versions: versionRepo,
		secrets:  secretRepo,
		codec:    codec,
		registry: registry,
		sandbox:  sandboxClient,
		notify:   notify,
	}
}

func (s *restoreService) Restore(dbc dbctx.Context, projectID, versionID uuid.UUID) (RestoreResult, error) {
	if projectID == uuid.Nil || versionID == uuid.Nil {
		return RestoreResult{}, fmt.Errorf("missing project or version id: %w", apperrors.ErrInvalidArgument)
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	log := s.log.With("project_id", projectID, "version_id", versionID)

	project, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return RestoreResult{}, err
	}
	if project == nil {
		return RestoreResult{}, fmt.Errorf("project %s: %w", projectID, apperrors.ErrNotFound)
	}

	version, err := s.versions.GetByID(dbc, versionID)
	if err != nil {
		return RestoreResult{}, err
	}
	if version == nil || version.ProjectID != projectID {
		return RestoreResult{}, fmt.Errorf("version %s for project %s: %w", versionID, projectID, apperrors.ErrNotFound)
	}

	adapter, err := s.registry.ForProject(project)
	if err != nil {
		return RestoreResult{}, err
	}

	env, err := s.resolveEnv(dbc, ctx, adapter, project, version)
	if err != nil {
		return RestoreResult{}, err
	}

	// Acquiring the handle is what allow-lists the sandbox's ephemeral
	// domain, so it comes before any backend mutation.
	s.stage(ctx, project, "restore", "dev-server-requested")
	handle, err := s.sandbox.RequestDevServer(ctx, project.RepoRef, env)
	if err != nil {
		return RestoreResult{}, fmt.Errorf("acquire dev server: %w", err)
	}
	s.ensureAuthDomain(ctx, adapter, project, handle)

	s.stage(ctx, project, "restore", "git-reset")
	if err := s.sandbox.ResetToCommit(ctx, handle.ProcessID, version.CommitHash); err != nil {
		return RestoreResult{}, fmt.Errorf("reset sandbox to commit %s: %w", version.CommitHash, err)
	}

	s.stage(ctx, project, "restore", "snapshot-apply")
	if err := adapter.Rollback(ctx, project, version.SnapshotID); err != nil {
		return RestoreResult{}, fmt.Errorf("apply snapshot %s: %w", version.SnapshotID, err)
	}

	// Only now, with code and data both in place, does the version go live.
	if err := s.projects.SetCurrentVersion(dbc, projectID, &version.ID); err != nil {
		return RestoreResult{}, fmt.Errorf("set current version: %w", err)
	}
	s.stage(ctx, project, "restore", "pointer-set")
	log.Info("Version restored", "commit_hash", version.CommitHash, "snapshot_id", version.SnapshotID)

	return RestoreResult{
		VersionID:    version.ID,
		CommitHash:   version.CommitHash,
		SnapshotID:   version.SnapshotID,
		EphemeralURL: handle.EphemeralURL,
	}, nil
}

// resolveEnv decrypts the version's secrets bundle. A version without a
// bundle (checkpoint taken on a fresh project) restores against the
// adapter-derived env instead of failing.
func (s *restoreService) resolveEnv(dbc dbctx.Context, ctx context.Context, adapter backends.Adapter, project *types.Project, version *types.Version) (map[string]string, error) {
	secret, err := s.secrets.GetByVersionID(dbc, version.ID)
	if err != nil {
		return nil, fmt.Errorf("load secrets: %w", err)
	}
	if secret == nil {
		s.log.Warn("Version has no secrets bundle; deriving env from backend", "version_id", version.ID)
		return adapter.BuildEnv(ctx, project)
	}
	env, err := s.codec.DecryptBundle(secret.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("decrypt secrets: %w", err)
	}
	return env, nil
}

// ensureAuthDomain re-asserts the handle's ephemeral domain with the backend
// auth layer. Best-effort: the sandbox gateway already allow-listed it.
func (s *restoreService) ensureAuthDomain(ctx context.Context, adapter backends.Adapter, project *types.Project, handle sandbox.DevServer) {
	mgr, ok := adapter.(backends.AuthDomainManager)
	if !ok || handle.EphemeralURL == "" {
		return
	}
	u, err := url.Parse(handle.EphemeralURL)
	if err != nil || u.Hostname() == "" {
		return
	}
	if err := mgr.EnsureAuthDomain(ctx, project, u.Hostname()); err != nil {
		s.log.Warn("Auth domain re-assert failed", "project_id", project.ID, "domain", u.Hostname(), "error", err)
	}
}

func (s *restoreService) stage(ctx context.Context, project *types.Project, workflowName, stage string) {
	if s.notify == nil {
		return
	}
	_ = s.notify.Publish(ctx, redisclient.ProgressEvent{
		ProjectID: project.ID.String(),
		Workflow:  workflowName,
		Stage:     stage,
		At:        time.Now().UTC(),
	})
}
