package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"gorm.io/gorm"

	"github.com/hatchpad/hatchpad-backend/internal/backends"
	"github.com/hatchpad/hatchpad-backend/internal/data/repos/projects"
	types "github.com/hatchpad/hatchpad-backend/internal/domain"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/dbctx"
	apperrors "github.com/hatchpad/hatchpad-backend/internal/pkg/errors"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
	"github.com/hatchpad/hatchpad-backend/internal/secrets"
	"github.com/hatchpad/hatchpad-backend/internal/temporalx"
	"github.com/hatchpad/hatchpad-backend/internal/temporalx/versionflow"
)

// VersioningService starts the durable version workflows and serves the read
// surface (version listing, build env) the UI host needs.
type VersioningService interface {
	StartInitializeFirstVersion(dbc dbctx.Context, projectID uuid.UUID) (string, error)
	StartCreateCheckpoint(dbc dbctx.Context, projectID uuid.UUID, messageRef *uuid.UUID) (string, error)
	StartDeleteProject(dbc dbctx.Context, projectID uuid.UUID) (string, error)
	ListVersions(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Version, error)
	GetProjectEnv(dbc dbctx.Context, projectID uuid.UUID) (map[string]string, error)
}

type versioningService struct {
	db       *gorm.DB
	log      *logger.Logger
	projects projects.ProjectRepo
	versions projects.VersionRepo
	secrets  projects.SecretRepo
	codec    *secrets.Codec
	registry *backends.Registry

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

func NewVersioningService(
	db *gorm.DB,
	baseLog *logger.Logger,
	projectRepo projects.ProjectRepo,
	versionRepo projects.VersionRepo,
	secretRepo projects.SecretRepo,
	codec *secrets.Codec,
	registry *backends.Registry,
	tc temporalsdkclient.Client,
) VersioningService {
	return &versioningService{
		db:                db,
		log:               baseLog.With("service", "VersioningService"),
		projects:          projectRepo,
		versions:          versionRepo,
		secrets:           secretRepo,
		codec:             codec,
		registry:          registry,
		temporal:          tc,
		temporalTaskQueue: temporalx.LoadConfig().TaskQueue,
	}
}

// StartInitializeFirstVersion dispatches the first-version workflow. The
// workflow ID is derived from the project so the run can only ever happen
// once per project lifetime; a duplicate start reports a conflict.
func (s *versioningService) StartInitializeFirstVersion(dbc dbctx.Context, projectID uuid.UUID) (string, error) {
	if err := s.checkProject(dbc, projectID); err != nil {
		return "", err
	}
	workflowID := fmt.Sprintf("version-init-%s", projectID)
	err := s.start(dbc.Ctx, workflowID, enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
		versionflow.WorkflowInitializeFirstVersion,
		versionflow.InitializeRequest{ProjectID: projectID})
	if err != nil {
		if _, ok := err.(*serviceerror.WorkflowExecutionAlreadyStarted); ok {
			return "", fmt.Errorf("initialization already started for project %s: %w", projectID, apperrors.ErrConflict)
		}
		return "", err
	}
	return workflowID, nil
}

// StartCreateCheckpoint dispatches a checkpoint workflow. The prior pointer
// is captured here and handed to the workflow so the secrets copy source is
// fixed at request time, not re-read after other operations may have moved
// the pointer.
func (s *versioningService) StartCreateCheckpoint(dbc dbctx.Context, projectID uuid.UUID, messageRef *uuid.UUID) (string, error) {
	project, err := s.getProject(dbc, projectID)
	if err != nil {
		return "", err
	}
	workflowID := fmt.Sprintf("version-checkpoint-%s-%s", projectID, uuid.New())
	err = s.start(dbc.Ctx, workflowID, enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		versionflow.WorkflowCreateCheckpoint,
		versionflow.CheckpointRequest{
			ProjectID:        projectID,
			CurrentVersionID: project.CurrentVersionID,
			MessageRef:       messageRef,
		})
	if err != nil {
		return "", err
	}
	return workflowID, nil
}

// StartDeleteProject dispatches the teardown workflow. Re-requesting an
// in-flight delete is a no-op, not an error.
func (s *versioningService) StartDeleteProject(dbc dbctx.Context, projectID uuid.UUID) (string, error) {
	if err := s.checkProject(dbc, projectID); err != nil {
		return "", err
	}
	workflowID := fmt.Sprintf("project-delete-%s", projectID)
	err := s.start(dbc.Ctx, workflowID, enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY,
		versionflow.WorkflowDeleteProject,
		versionflow.DeleteRequest{ProjectID: projectID})
	if err != nil {
		if _, ok := err.(*serviceerror.WorkflowExecutionAlreadyStarted); ok {
			return workflowID, nil
		}
		return "", err
	}
	return workflowID, nil
}

func (s *versioningService) ListVersions(dbc dbctx.Context, projectID uuid.UUID) ([]*types.Version, error) {
	if err := s.checkProject(dbc, projectID); err != nil {
		return nil, err
	}
	return s.versions.ListByProject(dbc, projectID)
}

// GetProjectEnv resolves the runtime environment for the project's current
// version. The stored secrets bundle wins; a project with no current version
// falls back to the adapter-derived env so a fresh sandbox can still reach
// its database.
func (s *versioningService) GetProjectEnv(dbc dbctx.Context, projectID uuid.UUID) (map[string]string, error) {
	project, err := s.getProject(dbc, projectID)
	if err != nil {
		return nil, err
	}

	if project.CurrentVersionID != nil {
		secret, err := s.secrets.GetByVersionID(dbc, *project.CurrentVersionID)
		if err != nil {
			return nil, fmt.Errorf("load secrets for version %s: %w", *project.CurrentVersionID, err)
		}
		if secret != nil {
			env, err := s.codec.DecryptBundle(secret.Ciphertext)
			if err != nil {
				return nil, fmt.Errorf("decrypt secrets for version %s: %w", *project.CurrentVersionID, err)
			}
			return env, nil
		}
		s.log.Warn("Current version has no secrets bundle; deriving env from backend", "project_id", projectID, "version_id", *project.CurrentVersionID)
	}

	adapter, err := s.registry.ForProject(project)
	if err != nil {
		return nil, err
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return adapter.BuildEnv(ctx, project)
}

func (s *versioningService) getProject(dbc dbctx.Context, projectID uuid.UUID) (*types.Project, error) {
	if projectID == uuid.Nil {
		return nil, fmt.Errorf("missing project id: %w", apperrors.ErrInvalidArgument)
	}
	project, err := s.projects.GetByID(dbc, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, fmt.Errorf("project %s: %w", projectID, apperrors.ErrNotFound)
	}
	return project, nil
}

func (s *versioningService) checkProject(dbc dbctx.Context, projectID uuid.UUID) error {
	_, err := s.getProject(dbc, projectID)
	return err
}

func (s *versioningService) start(ctx context.Context, workflowID string, reusePolicy enums.WorkflowIdReusePolicy, workflowName string, req any) error {
	if s == nil || s.temporal == nil {
		return fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    workflowID,
		TaskQueue:             s.temporalTaskQueue,
		WorkflowIDReusePolicy: reusePolicy,
	}
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, workflowName, req)
	if err != nil {
		return err
	}
	s.log.Info("Workflow dispatched", "workflow", workflowName, "workflow_id", workflowID)
	return nil
}
