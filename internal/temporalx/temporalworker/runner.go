package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/hatchpad/hatchpad-backend/internal/backends"
	redisclient "github.com/hatchpad/hatchpad-backend/internal/clients/redis"
	"github.com/hatchpad/hatchpad-backend/internal/clients/sandbox"
	"github.com/hatchpad/hatchpad-backend/internal/data/repos/projects"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/envutil"
	"github.com/hatchpad/hatchpad-backend/internal/pkg/logger"
	"github.com/hatchpad/hatchpad-backend/internal/secrets"
	"github.com/hatchpad/hatchpad-backend/internal/temporalx"
	"github.com/hatchpad/hatchpad-backend/internal/temporalx/versionflow"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

type Runner struct {
	log *logger.Logger

	tc       temporalsdkclient.Client
	db       *gorm.DB
	projects projects.ProjectRepo
	versions projects.VersionRepo
	secrets  projects.SecretRepo
	codec    *secrets.Codec
	registry *backends.Registry
	sandbox  sandbox.Client
	threads  versionflow.ThreadDeleter
	notify   redisclient.ProgressBus
}

func NewRunner(
	log *logger.Logger,
	tc temporalsdkclient.Client,
	db *gorm.DB,
	projectRepo projects.ProjectRepo,
	versionRepo projects.VersionRepo,
	secretRepo projects.SecretRepo,
	codec *secrets.Codec,
	registry *backends.Registry,
	sandboxClient sandbox.Client,
	threads versionflow.ThreadDeleter,
	notify redisclient.ProgressBus,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if db == nil || projectRepo == nil || versionRepo == nil || secretRepo == nil {
		return nil, fmt.Errorf("temporal worker missing repo deps")
	}
	if codec == nil || registry == nil || sandboxClient == nil {
		return nil, fmt.Errorf("temporal worker missing service deps")
	}
	return &Runner{
		log:      log,
		tc:       tc,
		db:       db,
		projects: projectRepo,
		versions: versionRepo,
		secrets:  secretRepo,
		codec:    codec,
		registry: registry,
		sandbox:  sandboxClient,
		threads:  threads,
		notify:   notify,
	}, nil
}

func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}

	cfg := temporalx.LoadConfig()
	if r.log != nil {
		r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)
	}

	// Local/self-hosted convenience: ensure namespace exists before polling.
	// Temporal Cloud namespaces should be pre-created and TEMPORAL_AUTO_REGISTER_NAMESPACE should be false.
	if envutil.EnvTrue("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
		baseCtx := ctx
		if baseCtx == nil {
			baseCtx = context.Background()
		}
		if err := temporalx.EnsureNamespace(baseCtx, r.tc, cfg.Namespace, r.log); err != nil && r.log != nil {
			r.log.Warn("Temporal namespace ensure failed; worker will retry on start", "namespace", cfg.Namespace, "error", err)
		}
	}

	maxWait := envutil.DurationSecondsFromEnv("TEMPORAL_WORKER_START_MAX_WAIT_SECONDS", 60)
	backoff := envutil.DurationMillisFromEnv("TEMPORAL_WORKER_START_BACKOFF_MS", 250)
	backoffMax := envutil.DurationMillisFromEnv("TEMPORAL_WORKER_START_BACKOFF_MAX_MS", 5000)

	deadline := time.Now().Add(maxWait)

	for attempt := 1; ; attempt++ {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			if ctx != nil {
				go func() {
					<-ctx.Done()
					w.Stop()
				}()
			}
			if r.log != nil {
				r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			}
			return nil
		}

		w.Stop()

		// If the namespace is missing and auto-register is enabled, try to create it then retry.
		var nfe *serviceerror.NamespaceNotFound
		if errors.As(startErr, &nfe) && envutil.EnvTrue("TEMPORAL_AUTO_REGISTER_NAMESPACE", false) {
			baseCtx := ctx
			if baseCtx == nil {
				baseCtx = context.Background()
			}
			_ = temporalx.EnsureNamespace(baseCtx, r.tc, cfg.Namespace, r.log)
		}

		if maxWait <= 0 || time.Now().After(deadline) {
			// Temporal Cloud / misconfig: missing namespace will never heal without config changes.
			var nfe2 *serviceerror.NamespaceNotFound
			if errors.As(startErr, &nfe2) {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}

		if r.log != nil {
			r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		}

		sleep := temporalx.ClampBackoff(backoff, backoffMax, attempt)
		if sleep > 0 {
			time.Sleep(sleep)
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	cfg := temporalx.LoadConfig()

	concurrency := envutil.GetEnvAsInt("WORKER_CONCURRENCY", 4, r.log)
	if concurrency < 1 {
		concurrency = 1
	}

	w := worker.New(r.tc, cfg.TaskQueue, worker.Options{
		// Note: workflow and activity concurrency are separately tunable in Temporal.
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &versionflow.Activities{
		Log:      r.log,
		DB:       r.db,
		Projects: r.projects,
		Versions: r.versions,
		Secrets:  r.secrets,
		Codec:    r.codec,
		Registry: r.registry,
		Sandbox:  r.sandbox,
		Threads:  r.threads,
		Notify:   r.notify,
	}

	w.RegisterWorkflowWithOptions(versionflow.InitializeFirstVersionWorkflow, workflow.RegisterOptions{Name: versionflow.WorkflowInitializeFirstVersion})
	w.RegisterWorkflowWithOptions(versionflow.CreateCheckpointWorkflow, workflow.RegisterOptions{Name: versionflow.WorkflowCreateCheckpoint})
	w.RegisterWorkflowWithOptions(versionflow.DeleteProjectWorkflow, workflow.RegisterOptions{Name: versionflow.WorkflowDeleteProject})

	register := func(name string, fn any) {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
	register(versionflow.ActivityGetProject, acts.GetProject)
	register(versionflow.ActivityEnsureProductionBranch, acts.EnsureProductionBranch)
	register(versionflow.ActivityInitAuthDomains, acts.InitAuthDomains)
	register(versionflow.ActivityResolveBuildEnv, acts.ResolveBuildEnv)
	register(versionflow.ActivityGetLatestCommit, acts.GetLatestCommit)
	register(versionflow.ActivityCreateBackendSnapshot, acts.CreateBackendSnapshot)
	register(versionflow.ActivityCreateInitialVersion, acts.CreateInitialVersion)
	register(versionflow.ActivityCreateCheckpointVersion, acts.CreateCheckpointVersion)
	register(versionflow.ActivitySaveProjectSecrets, acts.SaveProjectSecrets)
	register(versionflow.ActivityCopyProjectSecrets, acts.CopyProjectSecrets)
	register(versionflow.ActivitySetCurrentVersion, acts.SetCurrentVersion)
	register(versionflow.ActivityWarmUpDevServer, acts.WarmUpDevServer)
	register(versionflow.ActivityGetProjectVersionIDs, acts.GetProjectVersionIDs)
	register(versionflow.ActivityClearCurrentVersion, acts.ClearCurrentVersion)
	register(versionflow.ActivityDeleteProjectSecrets, acts.DeleteProjectSecrets)
	register(versionflow.ActivityDeleteProjectVersions, acts.DeleteProjectVersions)
	register(versionflow.ActivityDeleteProjectRecord, acts.DeleteProjectRecord)
	register(versionflow.ActivityDeleteBackendProject, acts.DeleteBackendProject)
	register(versionflow.ActivityDeleteRepository, acts.DeleteRepository)
	register(versionflow.ActivityDeleteThreadResource, acts.DeleteThreadResource)
	return w
}
