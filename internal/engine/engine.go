package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/anomaly"
	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
	"github.com/nmthangdn2000/web-automation-tools/internal/recipe"
	"github.com/nmthangdn2000/web-automation-tools/internal/workflow"
)

// -- Interfaces for Dependency Inversion --

// Store defines the interface for any component that can persist run reports.
type Store interface {
	PersistReport(ctx context.Context, report schemas.RunReport) error
}

// Recipes resolves a recipe by name.
type Recipes interface {
	Get(name string) (*recipe.Recipe, error)
}

// Job is one workflow instance: a recipe, its parameters and the session to run it on.
type Job struct {
	ID      string                 `json:"id,omitempty" yaml:"id,omitempty"`
	Recipe  string                 `json:"recipe" yaml:"recipe"`
	Params  map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
	Session schemas.SessionConfig  `json:"session" yaml:"session"`
}

// Result pairs a finished job with its report. Report is zero when the job
// failed before a session was provisioned.
type Result struct {
	Job    Job
	Report schemas.RunReport
	Err    error
}

const (
	defaultConcurrency = 2
	defaultJobTimeout  = 30 * time.Minute
	persistTimeout     = 30 * time.Second
)

// Engine manages the in-process distribution of jobs to a pool of workers.
// Each job gets its own session; the runner itself is shared.
type Engine struct {
	cfg         config.EngineConfig
	logger      *zap.Logger
	recipes     Recipes
	runner      *workflow.Runner
	provisioner workflow.Provisioner
	store       Store
	wg          sync.WaitGroup
}

// New creates a new Engine. store may be nil, in which case reports are not persisted.
func New(
	cfg config.EngineConfig,
	logger *zap.Logger,
	recipes Recipes,
	runner *workflow.Runner,
	provisioner workflow.Provisioner,
	store Store,
) *Engine {
	return &Engine{
		cfg:         cfg,
		logger:      logger.With(zap.String("component", "job_engine")),
		recipes:     recipes,
		runner:      runner,
		provisioner: provisioner,
		store:       store,
	}
}

// Start launches the worker pool. Workers consume jobs until the channel is
// closed; the returned results channel is closed once every worker has exited.
// Callers must drain it.
func (e *Engine) Start(ctx context.Context, jobs <-chan Job) <-chan Result {
	concurrency := e.cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	buffer := e.cfg.QueueSize
	if buffer < 0 {
		buffer = 0
	}
	results := make(chan Result, buffer)

	e.logger.Info("Starting job engine worker pool", zap.Int("concurrency", concurrency))
	for i := 0; i < concurrency; i++ {
		e.wg.Add(1)
		go e.runWorker(ctx, i+1, jobs, results)
	}
	go func() {
		e.wg.Wait()
		close(results)
	}()
	return results
}

// Stop waits for all workers to finish. The jobs channel must be closed first.
func (e *Engine) Stop() {
	e.logger.Info("Stopping job engine... waiting for workers to finish.")
	e.wg.Wait()
	e.logger.Info("Job engine stopped gracefully.")
}

func (e *Engine) runWorker(ctx context.Context, workerID int, jobs <-chan Job, results chan<- Result) {
	defer e.wg.Done()
	logger := e.logger.With(zap.Int("worker_id", workerID))
	logger.Debug("Worker goroutine started")

	for job := range jobs {
		if job.ID == "" {
			job.ID = uuid.New().String()
		}
		report, err := e.run(ctx, job, logger)
		results <- Result{Job: job, Report: report, Err: err}
	}

	logger.Debug("Job queue closed and drained, worker shutting down.")
}

// Run executes a single job synchronously and persists its report.
func (e *Engine) Run(ctx context.Context, job Job) (schemas.RunReport, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	return e.run(ctx, job, e.logger)
}

func (e *Engine) run(ctx context.Context, job Job, logger *zap.Logger) (schemas.RunReport, error) {
	logger = logger.With(zap.String("job_id", job.ID), zap.String("recipe", job.Recipe))
	logger.Info("Processing job")

	rc, err := e.recipes.Get(job.Recipe)
	if err != nil {
		logger.Error("Unknown recipe, discarding job", zap.Error(err))
		return schemas.RunReport{}, err
	}
	plan, err := recipe.Compile(rc, job.Params, recipe.WithHeadless(job.Session.Headless()))
	if err != nil {
		logger.Error("Recipe failed to compile, discarding job", zap.Error(err))
		return schemas.RunReport{}, fmt.Errorf("compiling recipe %q: %w", job.Recipe, err)
	}

	timeout := e.cfg.DefaultJobTimeout
	if timeout <= 0 {
		timeout = defaultJobTimeout
	}
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return e.execute(jobCtx, job.ID, plan.Name, job.Session, plan.Steps, plan.Params, plan.Signatures, logger)
}

// RunSteps executes prebuilt steps on a new session and persists the report.
// Unlike recipe jobs it has no default timeout; it runs until the steps
// finish or ctx ends.
func (e *Engine) RunSteps(ctx context.Context, name string, cfg schemas.SessionConfig, steps []workflow.Step) (schemas.RunReport, error) {
	id := uuid.New().String()
	logger := observability.JobLogger(e.logger, id, name)
	return e.execute(ctx, id, name, cfg, steps, nil, nil, logger)
}

func (e *Engine) execute(ctx context.Context, id, name string, cfg schemas.SessionConfig, steps []workflow.Step, params map[string]interface{}, sigs []anomaly.Signature, logger *zap.Logger) (schemas.RunReport, error) {
	report, runErr := e.runner.Execute(ctx, e.provisioner, cfg, name, steps, params,
		workflow.WithSignatures(sigs...),
		workflow.WithRunID(id),
	)
	if report.RunID == "" {
		logger.Error("Job failed before the workflow started", zap.Error(runErr))
		return report, runErr
	}
	if runErr != nil {
		logger.Warn("Job aborted", zap.String("reason", report.AbortReason))
	} else {
		logger.Info("Job completed", zap.Int("warnings", len(report.Warnings)), zap.Int("errors", len(report.Errors)))
	}

	e.persist(ctx, report, logger)
	return report, runErr
}

func (e *Engine) persist(ctx context.Context, report schemas.RunReport, logger *zap.Logger) {
	if e.store == nil {
		return
	}
	// Aborted runs are recorded too, including those cancelled by the caller.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := e.store.PersistReport(persistCtx, report); err != nil {
		logger.Error("Failed to persist run report", zap.Error(err))
		return
	}
	logger.Debug("Successfully persisted run report.")
}
