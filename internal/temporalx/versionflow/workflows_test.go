package versionflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"
)

// recorder collects which activities ran, in order, across the parallel
// branches of a workflow under test.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) hit(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, name)
}

func (r *recorder) saw(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (r *recorder) indexOf(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.calls {
		if c == name {
			return i
		}
	}
	return -1
}

func registerStub(env *testsuite.TestWorkflowEnvironment, name string, fn any) {
	env.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
}

func newInitEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(InitializeFirstVersionWorkflow, workflow.RegisterOptions{Name: WorkflowInitializeFirstVersion})
	return env
}

func TestInitializeFirstVersionWorkflow_Success(t *testing.T) {
	env := newInitEnv(t)
	rec := &recorder{}

	projectID := uuid.New()
	versionID := uuid.New()
	project := ProjectInfo{
		ID:               projectID,
		Name:             "demo",
		RepoRef:          "acme/demo",
		BackendType:      "neon",
		BackendProjectID: "np-winter-sky-1",
	}
	buildEnv := map[string]string{"DATABASE_URL": "postgres://demo"}

	var savedSecrets SaveSecretsInput
	var setPointer SetPointerInput
	var createdVersion CreateVersionInput

	registerStub(env, ActivityGetProject, func(ctx context.Context, id uuid.UUID) (ProjectInfo, error) {
		rec.hit(ActivityGetProject)
		require.Equal(t, projectID, id)
		return project, nil
	})
	registerStub(env, ActivityEnsureProductionBranch, func(ctx context.Context, p ProjectInfo) (string, error) {
		rec.hit(ActivityEnsureProductionBranch)
		return "br-prod-1", nil
	})
	registerStub(env, ActivityInitAuthDomains, func(ctx context.Context, p ProjectInfo) error {
		rec.hit(ActivityInitAuthDomains)
		return nil
	})
	registerStub(env, ActivityResolveBuildEnv, func(ctx context.Context, p ProjectInfo) (map[string]string, error) {
		rec.hit(ActivityResolveBuildEnv)
		return buildEnv, nil
	})
	registerStub(env, ActivityGetLatestCommit, func(ctx context.Context, repoRef string) (string, error) {
		rec.hit(ActivityGetLatestCommit)
		require.Equal(t, "acme/demo", repoRef)
		return "abc123", nil
	})
	registerStub(env, ActivityCreateBackendSnapshot, func(ctx context.Context, p ProjectInfo) (string, error) {
		rec.hit(ActivityCreateBackendSnapshot)
		return "snap-1", nil
	})
	registerStub(env, ActivityCreateInitialVersion, func(ctx context.Context, in CreateVersionInput) (uuid.UUID, error) {
		rec.hit(ActivityCreateInitialVersion)
		createdVersion = in
		return versionID, nil
	})
	registerStub(env, ActivitySaveProjectSecrets, func(ctx context.Context, in SaveSecretsInput) error {
		rec.hit(ActivitySaveProjectSecrets)
		savedSecrets = in
		return nil
	})
	registerStub(env, ActivitySetCurrentVersion, func(ctx context.Context, in SetPointerInput) error {
		rec.hit(ActivitySetCurrentVersion)
		setPointer = in
		return nil
	})
	registerStub(env, ActivityWarmUpDevServer, func(ctx context.Context, in WarmUpInput) error {
		rec.hit(ActivityWarmUpDevServer)
		return nil
	})

	env.ExecuteWorkflow(WorkflowInitializeFirstVersion, InitializeRequest{ProjectID: projectID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res InitializeResult
	require.NoError(t, env.GetWorkflowResult(&res))
	require.True(t, res.Success)
	require.Equal(t, versionID, res.VersionID)

	require.Equal(t, projectID, createdVersion.ProjectID)
	require.Equal(t, "abc123", createdVersion.CommitHash)
	require.Equal(t, "snap-1", createdVersion.SnapshotID)
	require.Equal(t, versionID, savedSecrets.VersionID)
	require.Equal(t, buildEnv, savedSecrets.Env)
	require.Equal(t, versionID, setPointer.VersionID)

	// Branch resolution gates the fan-out; the version row gates the finish.
	require.Less(t, rec.indexOf(ActivityEnsureProductionBranch), rec.indexOf(ActivityCreateBackendSnapshot))
	require.Less(t, rec.indexOf(ActivityCreateBackendSnapshot), rec.indexOf(ActivityCreateInitialVersion))
	require.Less(t, rec.indexOf(ActivityCreateInitialVersion), rec.indexOf(ActivitySetCurrentVersion))
}

func TestInitializeFirstVersionWorkflow_SnapshotFailureLeavesNoVersion(t *testing.T) {
	env := newInitEnv(t)
	rec := &recorder{}

	projectID := uuid.New()
	project := ProjectInfo{ID: projectID, RepoRef: "acme/demo", BackendType: "neon", BackendProjectID: "np-1"}

	registerStub(env, ActivityGetProject, func(ctx context.Context, id uuid.UUID) (ProjectInfo, error) {
		return project, nil
	})
	registerStub(env, ActivityEnsureProductionBranch, func(ctx context.Context, p ProjectInfo) (string, error) {
		return "br-prod-1", nil
	})
	registerStub(env, ActivityInitAuthDomains, func(ctx context.Context, p ProjectInfo) error { return nil })
	registerStub(env, ActivityResolveBuildEnv, func(ctx context.Context, p ProjectInfo) (map[string]string, error) {
		return map[string]string{}, nil
	})
	registerStub(env, ActivityGetLatestCommit, func(ctx context.Context, repoRef string) (string, error) {
		return "abc123", nil
	})
	registerStub(env, ActivityCreateBackendSnapshot, func(ctx context.Context, p ProjectInfo) (string, error) {
		return "", errors.New("snapshot creation timed out")
	})
	registerStub(env, ActivityCreateInitialVersion, func(ctx context.Context, in CreateVersionInput) (uuid.UUID, error) {
		rec.hit(ActivityCreateInitialVersion)
		return uuid.New(), nil
	})
	registerStub(env, ActivitySaveProjectSecrets, func(ctx context.Context, in SaveSecretsInput) error {
		rec.hit(ActivitySaveProjectSecrets)
		return nil
	})
	registerStub(env, ActivitySetCurrentVersion, func(ctx context.Context, in SetPointerInput) error {
		rec.hit(ActivitySetCurrentVersion)
		return nil
	})
	registerStub(env, ActivityWarmUpDevServer, func(ctx context.Context, in WarmUpInput) error { return nil })

	env.ExecuteWorkflow(WorkflowInitializeFirstVersion, InitializeRequest{ProjectID: projectID})

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.False(t, rec.saw(ActivityCreateInitialVersion))
	require.False(t, rec.saw(ActivitySetCurrentVersion))
	require.False(t, rec.saw(ActivitySaveProjectSecrets))
}

func newCheckpointEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(CreateCheckpointWorkflow, workflow.RegisterOptions{Name: WorkflowCreateCheckpoint})
	return env
}

func registerCheckpointStubs(env *testsuite.TestWorkflowEnvironment, rec *recorder, project ProjectInfo, versionID uuid.UUID, copied *CopySecretsInput) {
	registerStub(env, ActivityGetProject, func(ctx context.Context, id uuid.UUID) (ProjectInfo, error) {
		return project, nil
	})
	registerStub(env, ActivityGetLatestCommit, func(ctx context.Context, repoRef string) (string, error) {
		return "def456", nil
	})
	registerStub(env, ActivityCreateBackendSnapshot, func(ctx context.Context, p ProjectInfo) (string, error) {
		return "snap-2", nil
	})
	registerStub(env, ActivityCreateCheckpointVersion, func(ctx context.Context, in CreateVersionInput) (uuid.UUID, error) {
		rec.hit(ActivityCreateCheckpointVersion)
		return versionID, nil
	})
	registerStub(env, ActivityCopyProjectSecrets, func(ctx context.Context, in CopySecretsInput) error {
		rec.hit(ActivityCopyProjectSecrets)
		*copied = in
		return nil
	})
	registerStub(env, ActivitySetCurrentVersion, func(ctx context.Context, in SetPointerInput) error {
		rec.hit(ActivitySetCurrentVersion)
		return nil
	})
}

func TestCreateCheckpointWorkflow_CopiesSecretsFromPriorVersion(t *testing.T) {
	env := newCheckpointEnv(t)
	rec := &recorder{}

	projectID := uuid.New()
	priorVersionID := uuid.New()
	newVersionID := uuid.New()
	messageRef := uuid.New()
	project := ProjectInfo{ID: projectID, RepoRef: "acme/demo", BackendType: "neon", BackendProjectID: "np-1", CurrentVersionID: &priorVersionID}

	var copied CopySecretsInput
	registerCheckpointStubs(env, rec, project, newVersionID, &copied)

	env.ExecuteWorkflow(WorkflowCreateCheckpoint, CheckpointRequest{
		ProjectID:        projectID,
		CurrentVersionID: &priorVersionID,
		MessageRef:       &messageRef,
	})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var res CheckpointResult
	require.NoError(t, env.GetWorkflowResult(&res))
	require.True(t, res.Success)
	require.Equal(t, newVersionID, res.VersionID)
	require.Equal(t, priorVersionID, copied.FromVersionID)
	require.Equal(t, newVersionID, copied.ToVersionID)
	require.True(t, rec.saw(ActivitySetCurrentVersion))
}

func TestCreateCheckpointWorkflow_NoPriorVersionSkipsCopy(t *testing.T) {
	env := newCheckpointEnv(t)
	rec := &recorder{}

	projectID := uuid.New()
	newVersionID := uuid.New()
	project := ProjectInfo{ID: projectID, RepoRef: "acme/demo", BackendType: "neon", BackendProjectID: "np-1"}

	var copied CopySecretsInput
	registerCheckpointStubs(env, rec, project, newVersionID, &copied)

	env.ExecuteWorkflow(WorkflowCreateCheckpoint, CheckpointRequest{ProjectID: projectID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.False(t, rec.saw(ActivityCopyProjectSecrets))
	require.True(t, rec.saw(ActivitySetCurrentVersion))
}

func newDeleteEnv(t *testing.T) *testsuite.TestWorkflowEnvironment {
	t.Helper()
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()
	env.RegisterWorkflowWithOptions(DeleteProjectWorkflow, workflow.RegisterOptions{Name: WorkflowDeleteProject})
	return env
}

func registerDeleteStubs(env *testsuite.TestWorkflowEnvironment, rec *recorder, project ProjectInfo, versionIDs []uuid.UUID, repoErr error) {
	registerStub(env, ActivityGetProject, func(ctx context.Context, id uuid.UUID) (ProjectInfo, error) {
		rec.hit(ActivityGetProject)
		return project, nil
	})
	registerStub(env, ActivityGetProjectVersionIDs, func(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
		rec.hit(ActivityGetProjectVersionIDs)
		return versionIDs, nil
	})
	registerStub(env, ActivityClearCurrentVersion, func(ctx context.Context, id uuid.UUID) error {
		rec.hit(ActivityClearCurrentVersion)
		return nil
	})
	registerStub(env, ActivityDeleteProjectSecrets, func(ctx context.Context, in DeleteSecretsInput) error {
		rec.hit(ActivityDeleteProjectSecrets)
		return nil
	})
	registerStub(env, ActivityDeleteProjectVersions, func(ctx context.Context, id uuid.UUID) error {
		rec.hit(ActivityDeleteProjectVersions)
		return nil
	})
	registerStub(env, ActivityDeleteProjectRecord, func(ctx context.Context, id uuid.UUID) error {
		rec.hit(ActivityDeleteProjectRecord)
		return nil
	})
	registerStub(env, ActivityDeleteRepository, func(ctx context.Context, repoRef string) error {
		rec.hit(ActivityDeleteRepository)
		return repoErr
	})
	registerStub(env, ActivityDeleteBackendProject, func(ctx context.Context, p ProjectInfo) error {
		rec.hit(ActivityDeleteBackendProject)
		return nil
	})
	registerStub(env, ActivityDeleteThreadResource, func(ctx context.Context, threadRef string) error {
		rec.hit(ActivityDeleteThreadResource)
		return nil
	})
}

func TestDeleteProjectWorkflow_OrderAndFanOut(t *testing.T) {
	env := newDeleteEnv(t)
	rec := &recorder{}

	projectID := uuid.New()
	project := ProjectInfo{ID: projectID, RepoRef: "acme/demo", BackendType: "neon", BackendProjectID: "np-1", ThreadRef: "thread-9"}
	versionIDs := []uuid.UUID{uuid.New(), uuid.New()}

	registerDeleteStubs(env, rec, project, versionIDs, nil)

	env.ExecuteWorkflow(WorkflowDeleteProject, DeleteRequest{ProjectID: projectID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	// Pointer clears before versions go, versions before the record, and the
	// record before any external teardown starts.
	require.Less(t, rec.indexOf(ActivityClearCurrentVersion), rec.indexOf(ActivityDeleteProjectSecrets))
	require.Less(t, rec.indexOf(ActivityDeleteProjectSecrets), rec.indexOf(ActivityDeleteProjectVersions))
	require.Less(t, rec.indexOf(ActivityDeleteProjectVersions), rec.indexOf(ActivityDeleteProjectRecord))
	require.Less(t, rec.indexOf(ActivityDeleteProjectRecord), rec.indexOf(ActivityDeleteRepository))
	require.Less(t, rec.indexOf(ActivityDeleteProjectRecord), rec.indexOf(ActivityDeleteBackendProject))
	require.Less(t, rec.indexOf(ActivityDeleteProjectRecord), rec.indexOf(ActivityDeleteThreadResource))
}

func TestDeleteProjectWorkflow_NoVersionsSkipsSecretDeletion(t *testing.T) {
	env := newDeleteEnv(t)
	rec := &recorder{}

	projectID := uuid.New()
	project := ProjectInfo{ID: projectID, RepoRef: "acme/demo", BackendType: "neon", BackendProjectID: "np-1"}

	registerDeleteStubs(env, rec, project, nil, nil)

	env.ExecuteWorkflow(WorkflowDeleteProject, DeleteRequest{ProjectID: projectID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.False(t, rec.saw(ActivityDeleteProjectSecrets))
	require.True(t, rec.saw(ActivityDeleteProjectVersions))
}

func TestDeleteProjectWorkflow_TeardownFailureDoesNotFailWorkflow(t *testing.T) {
	env := newDeleteEnv(t)
	rec := &recorder{}

	projectID := uuid.New()
	project := ProjectInfo{ID: projectID, RepoRef: "acme/demo", BackendType: "neon", BackendProjectID: "np-1"}

	registerDeleteStubs(env, rec, project, []uuid.UUID{uuid.New()}, errors.New("repo host unreachable"))

	env.ExecuteWorkflow(WorkflowDeleteProject, DeleteRequest{ProjectID: projectID})

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	require.True(t, rec.saw(ActivityDeleteBackendProject))
	require.True(t, rec.saw(ActivityDeleteThreadResource))
}
