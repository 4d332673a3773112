package versionflow

import "github.com/google/uuid"

const (
	WorkflowInitializeFirstVersion = "initialize-first-version"
	WorkflowCreateCheckpoint       = "create-checkpoint"
	WorkflowDeleteProject          = "delete-project"
)

const (
	ActivityGetProject              = "get-project"
	ActivityEnsureProductionBranch  = "ensure-production-branch"
	ActivityInitAuthDomains         = "init-auth-domains"
	ActivityResolveBuildEnv         = "resolve-build-env"
	ActivityGetLatestCommit         = "get-latest-commit"
	ActivityCreateBackendSnapshot   = "create-backend-snapshot"
	ActivityCreateInitialVersion    = "create-initial-version"
	ActivityCreateCheckpointVersion = "create-checkpoint-version"
	ActivitySaveProjectSecrets      = "save-project-secrets"
	ActivityCopyProjectSecrets      = "copy-project-secrets"
	ActivitySetCurrentVersion       = "set-current-version"
	ActivityWarmUpDevServer         = "warm-up-dev-server"
	ActivityGetProjectVersionIDs    = "get-project-version-ids"
	ActivityClearCurrentVersion     = "clear-current-version"
	ActivityDeleteProjectSecrets    = "delete-project-secrets"
	ActivityDeleteProjectVersions   = "delete-project-versions"
	ActivityDeleteProjectRecord     = "delete-project-record"
	ActivityDeleteBackendProject    = "delete-backend-project"
	ActivityDeleteRepository        = "delete-repository"
	ActivityDeleteThreadResource    = "delete-thread-resource"
)

// ProjectInfo is the slice of a project the workflows carry around. The
// delete workflow keeps using it after the project row is gone, which is why
// it is captured up front rather than re-read per step.
type ProjectInfo struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	RepoRef          string     `json:"repo_ref"`
	BackendType      string     `json:"backend_type"`
	BackendProjectID string     `json:"backend_project_id"`
	ThreadRef        string     `json:"thread_ref"`
	CurrentVersionID *uuid.UUID `json:"current_version_id,omitempty"`
}

type InitializeRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
}

type InitializeResult struct {
	Success   bool      `json:"success"`
	VersionID uuid.UUID `json:"version_id"`
}

type CheckpointRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
	// CurrentVersionID is passed explicitly rather than re-read from the
	// project: the pointer may already have advanced by the time this runs.
	CurrentVersionID *uuid.UUID `json:"current_version_id,omitempty"`
	MessageRef       *uuid.UUID `json:"message_ref,omitempty"`
}

type CheckpointResult struct {
	Success   bool      `json:"success"`
	VersionID uuid.UUID `json:"version_id"`
}

type DeleteRequest struct {
	ProjectID uuid.UUID `json:"project_id"`
}

type CreateVersionInput struct {
	ProjectID  uuid.UUID  `json:"project_id"`
	CommitHash string     `json:"commit_hash"`
	SnapshotID string     `json:"snapshot_id"`
	MessageRef *uuid.UUID `json:"message_ref,omitempty"`
}

type SaveSecretsInput struct {
	VersionID uuid.UUID         `json:"version_id"`
	Env       map[string]string `json:"env"`
}

type CopySecretsInput struct {
	FromVersionID uuid.UUID `json:"from_version_id"`
	ToVersionID   uuid.UUID `json:"to_version_id"`
}

type SetPointerInput struct {
	ProjectID uuid.UUID `json:"project_id"`
	VersionID uuid.UUID `json:"version_id"`
}

type WarmUpInput struct {
	RepoRef string            `json:"repo_ref"`
	Env     map[string]string `json:"env"`
}

type DeleteSecretsInput struct {
	VersionIDs []uuid.UUID `json:"version_ids"`
}
