package versionflow

import (
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

func defaultActivityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		// Generous: snapshot restores settle through a poller that can
		// legitimately take minutes.
		StartToCloseTimeout: 10 * time.Minute,
		// Steps are not retried inside the engine. Retry policy is a host
		// deployment concern layered on top.
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1},
	}
}

// InitializeFirstVersionWorkflow creates a project's first version: commit
// hash, backend snapshot and secrets bundle bound together and made live.
//
//	start -> branch-resolved
//	      -> {auth-initialized, connection-resolved, commit-fetched, snapshot-created}
//	      -> version-created
//	      -> {secrets-saved, pointer-set, warmup-fired}
//	      -> done
func InitializeFirstVersionWorkflow(ctx workflow.Context, req InitializeRequest) (InitializeResult, error) {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	// Backend-type validation happens here, before any external call. An
	// unsupported backend fails the run as a non-retryable config error.
	var project ProjectInfo
	if err := workflow.ExecuteActivity(ctx, ActivityGetProject, req.ProjectID).Get(ctx, &project); err != nil {
		return InitializeResult{}, err
	}

	var branchID string
	if err := workflow.ExecuteActivity(ctx, ActivityEnsureProductionBranch, project).Get(ctx, &branchID); err != nil {
		return InitializeResult{}, err
	}

	// These four share no data dependency; run them together.
	authFuture := workflow.ExecuteActivity(ctx, ActivityInitAuthDomains, project)
	envFuture := workflow.ExecuteActivity(ctx, ActivityResolveBuildEnv, project)
	commitFuture := workflow.ExecuteActivity(ctx, ActivityGetLatestCommit, project.RepoRef)
	snapshotFuture := workflow.ExecuteActivity(ctx, ActivityCreateBackendSnapshot, project)

	var buildEnv map[string]string
	var commitHash, snapshotID string
	authErr := authFuture.Get(ctx, nil)
	envErr := envFuture.Get(ctx, &buildEnv)
	commitErr := commitFuture.Get(ctx, &commitHash)
	snapshotErr := snapshotFuture.Get(ctx, &snapshotID)
	for _, err := range []error{authErr, envErr, commitErr, snapshotErr} {
		if err != nil {
			return InitializeResult{}, err
		}
	}

	var versionID uuid.UUID
	err := workflow.ExecuteActivity(ctx, ActivityCreateInitialVersion, CreateVersionInput{
		ProjectID:  project.ID,
		CommitHash: commitHash,
		SnapshotID: snapshotID,
	}).Get(ctx, &versionID)
	if err != nil {
		return InitializeResult{}, err
	}

	secretsFuture := workflow.ExecuteActivity(ctx, ActivitySaveProjectSecrets, SaveSecretsInput{
		VersionID: versionID,
		Env:       buildEnv,
	})
	pointerFuture := workflow.ExecuteActivity(ctx, ActivitySetCurrentVersion, SetPointerInput{
		ProjectID: project.ID,
		VersionID: versionID,
	})
	// Fired, not awaited: version creation must not block on sandbox
	// cold-start, and a warm-up failure cannot affect the workflow outcome.
	_ = workflow.ExecuteActivity(ctx, ActivityWarmUpDevServer, WarmUpInput{
		RepoRef: project.RepoRef,
		Env:     buildEnv,
	})

	if err := secretsFuture.Get(ctx, nil); err != nil {
		return InitializeResult{}, err
	}
	if err := pointerFuture.Get(ctx, nil); err != nil {
		return InitializeResult{}, err
	}

	return InitializeResult{Success: true, VersionID: versionID}, nil
}

// CreateCheckpointWorkflow captures a manual checkpoint. The prior current
// version comes in the request, not from re-reading the project: the pointer
// may already have advanced under a concurrent workflow.
//
//	start -> {commit-fetched, snapshot-created}
//	      -> version-created
//	      -> {secrets-copied, pointer-set}
//	      -> done
func CreateCheckpointWorkflow(ctx workflow.Context, req CheckpointRequest) (CheckpointResult, error) {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())

	var project ProjectInfo
	if err := workflow.ExecuteActivity(ctx, ActivityGetProject, req.ProjectID).Get(ctx, &project); err != nil {
		return CheckpointResult{}, err
	}

	commitFuture := workflow.ExecuteActivity(ctx, ActivityGetLatestCommit, project.RepoRef)
	snapshotFuture := workflow.ExecuteActivity(ctx, ActivityCreateBackendSnapshot, project)

	var commitHash, snapshotID string
	commitErr := commitFuture.Get(ctx, &commitHash)
	snapshotErr := snapshotFuture.Get(ctx, &snapshotID)
	for _, err := range []error{commitErr, snapshotErr} {
		if err != nil {
			return CheckpointResult{}, err
		}
	}

	var versionID uuid.UUID
	err := workflow.ExecuteActivity(ctx, ActivityCreateCheckpointVersion, CreateVersionInput{
		ProjectID:  project.ID,
		CommitHash: commitHash,
		SnapshotID: snapshotID,
		MessageRef: req.MessageRef,
	}).Get(ctx, &versionID)
	if err != nil {
		return CheckpointResult{}, err
	}

	var copyFuture workflow.Future
	if req.CurrentVersionID != nil {
		copyFuture = workflow.ExecuteActivity(ctx, ActivityCopyProjectSecrets, CopySecretsInput{
			FromVersionID: *req.CurrentVersionID,
			ToVersionID:   versionID,
		})
	}
	pointerFuture := workflow.ExecuteActivity(ctx, ActivitySetCurrentVersion, SetPointerInput{
		ProjectID: project.ID,
		VersionID: versionID,
	})

	if copyFuture != nil {
		if err := copyFuture.Get(ctx, nil); err != nil {
			return CheckpointResult{}, err
		}
	}
	if err := pointerFuture.Get(ctx, nil); err != nil {
		return CheckpointResult{}, err
	}

	return CheckpointResult{Success: true, VersionID: versionID}, nil
}

// DeleteProjectWorkflow removes a project and everything it owns. Local rows
// go first in FK order (pointer before versions, record before external
// teardown); the final external fan-out is best-effort: a failed teardown
// leaves an orphaned external resource for out-of-band reconciliation, it
// does not resurrect deleted rows.
//
//	start -> version-ids-fetched -> pointer-cleared -> secrets-deleted
//	      -> versions-deleted -> record-deleted
//	      -> {repo-deleted, backend-destroyed, thread-deleted}
//	      -> done
func DeleteProjectWorkflow(ctx workflow.Context, req DeleteRequest) error {
	ctx = workflow.WithActivityOptions(ctx, defaultActivityOptions())
	log := workflow.GetLogger(ctx)

	// Captured up front: the external teardown steps still need repo and
	// backend identity after the local record is gone.
	var project ProjectInfo
	if err := workflow.ExecuteActivity(ctx, ActivityGetProject, req.ProjectID).Get(ctx, &project); err != nil {
		return err
	}

	var versionIDs []uuid.UUID
	if err := workflow.ExecuteActivity(ctx, ActivityGetProjectVersionIDs, req.ProjectID).Get(ctx, &versionIDs); err != nil {
		return err
	}

	// The project's self-referential pointer must clear before versions go.
	if err := workflow.ExecuteActivity(ctx, ActivityClearCurrentVersion, req.ProjectID).Get(ctx, nil); err != nil {
		return err
	}

	if len(versionIDs) > 0 {
		err := workflow.ExecuteActivity(ctx, ActivityDeleteProjectSecrets, DeleteSecretsInput{
			VersionIDs: versionIDs,
		}).Get(ctx, nil)
		if err != nil {
			return err
		}
	}

	if err := workflow.ExecuteActivity(ctx, ActivityDeleteProjectVersions, req.ProjectID).Get(ctx, nil); err != nil {
		return err
	}
	if err := workflow.ExecuteActivity(ctx, ActivityDeleteProjectRecord, req.ProjectID).Get(ctx, nil); err != nil {
		return err
	}

	repoFuture := workflow.ExecuteActivity(ctx, ActivityDeleteRepository, project.RepoRef)
	backendFuture := workflow.ExecuteActivity(ctx, ActivityDeleteBackendProject, project)
	threadFuture := workflow.ExecuteActivity(ctx, ActivityDeleteThreadResource, project.ThreadRef)

	if err := repoFuture.Get(ctx, nil); err != nil {
		log.Warn("Repository teardown failed; orphan left for reconciliation", "project_id", req.ProjectID, "error", err)
	}
	if err := backendFuture.Get(ctx, nil); err != nil {
		log.Warn("Backend teardown failed; orphan left for reconciliation", "project_id", req.ProjectID, "error", err)
	}
	if err := threadFuture.Get(ctx, nil); err != nil {
		log.Warn("Thread teardown failed; orphan left for reconciliation", "project_id", req.ProjectID, "error", err)
	}

	return nil
}
