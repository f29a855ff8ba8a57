package workflow

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/anomaly"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/humanoid"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/session"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
	"github.com/nmthangdn2000/web-automation-tools/internal/observability"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/nmthangdn2000/web-automation-tools/internal/retry"
)

// Provisioner yields sessions for Execute.
type Provisioner interface {
	Provision(ctx context.Context, cfg schemas.SessionConfig) (*session.Session, error)
}

// Options wires a Runner. Zero fields get working defaults.
type Options struct {
	Logger      *zap.Logger
	Clock       clock.Clock
	Classifier  *poll.Classifier
	Interceptor *anomaly.Interceptor
	// Signatures are checked around guarded steps.
	Signatures []anomaly.Signature
	Humanoid   humanoid.Config
	Translator *i18n.Translator
	RetryDelay retry.DelayFunc
	// MaxAttempts bounds steps whose policy is the bare Retry.
	MaxAttempts int
	// Seed fixes the humanoid random source; zero means time-seeded.
	Seed int64
}

// Runner executes workflows. It holds no per-run state.
type Runner struct {
	logger      *zap.Logger
	clock       clock.Clock
	classifier  *poll.Classifier
	interceptor *anomaly.Interceptor
	signatures  []anomaly.Signature
	humanCfg    humanoid.Config
	translator  *i18n.Translator
	retryDelay  retry.DelayFunc
	maxAttempts int
	seed        int64
}

// NewRunner creates a Runner.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = poll.New(poll.DefaultConfig(), logger, clk)
	}
	interceptor := opts.Interceptor
	if interceptor == nil {
		interceptor = anomaly.New(anomaly.DefaultConfig(), logger, clk, anomaly.NewTerminalAlerter(logger))
	}
	delay := opts.RetryDelay
	if delay == nil {
		delay = retry.Fixed(retry.DefaultDelay)
	}
	return &Runner{
		logger:      logger.Named("workflow"),
		clock:       clk,
		classifier:  classifier,
		interceptor: interceptor,
		signatures:  opts.Signatures,
		humanCfg:    opts.Humanoid,
		translator:  opts.Translator,
		retryDelay:  delay,
		maxAttempts: opts.MaxAttempts,
		seed:        opts.Seed,
	}
}

// RunOption adjusts a single run.
type RunOption func(*runSettings)

type runSettings struct {
	signatures []anomaly.Signature
	runID      string
}

// WithSignatures adds anomaly signatures for this run only.
func WithSignatures(sigs ...anomaly.Signature) RunOption {
	return func(s *runSettings) { s.signatures = append(s.signatures, sigs...) }
}

// WithRunID fixes the report's run ID.
func WithRunID(id string) RunOption {
	return func(s *runSettings) { s.runID = id }
}

// Execute provisions a session, runs the workflow on it and closes it on
// every path. The session stays open only when cfg.KeepOpen is set.
func (r *Runner) Execute(ctx context.Context, p Provisioner, cfg schemas.SessionConfig, name string, steps []Step, params map[string]interface{}, opts ...RunOption) (schemas.RunReport, error) {
	s, err := p.Provision(ctx, cfg)
	if err != nil {
		return schemas.RunReport{}, err
	}
	defer func() {
		// The run's context may already be cancelled; close on a fresh one.
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.Close(closeCtx); err != nil {
			r.logger.Warn("Failed to close session", observability.SessionID(s.ID()), zap.Error(err))
		}
	}()
	return r.Run(ctx, s, name, steps, params, opts...)
}

// Run executes steps in order on an already provisioned session. The caller
// keeps ownership of the session.
func (r *Runner) Run(ctx context.Context, s *session.Session, name string, steps []Step, params map[string]interface{}, opts ...RunOption) (schemas.RunReport, error) {
	settings := runSettings{runID: uuid.New().String()}
	for _, opt := range opts {
		opt(&settings)
	}
	sigs := append(append([]anomaly.Signature(nil), r.signatures...), settings.signatures...)

	report := &schemas.RunReport{
		RunID:     settings.runID,
		Workflow:  name,
		SessionID: s.ID(),
		StartedAt: r.clock.Now(),
	}
	logger := observability.RunLogger(r.logger, name, report.RunID, s.ID())

	if err := s.Acquire(ctx); err != nil {
		return r.abort(report, logger, "acquiring session", err)
	}
	defer s.Release()

	env := r.newEnv(s, params, report, logger)
	logger.Info("Workflow started", zap.Int("steps", len(steps)))

	for i := 0; i < len(steps); {
		batch := nextBatch(steps, i)
		i += len(batch)

		errs := r.runBatch(ctx, env, batch, sigs)
		for j, step := range batch {
			if errs[j] == nil {
				continue
			}
			if step.OnFailure.kind == policySkip && ctx.Err() == nil {
				msg := fmt.Sprintf("%s: %v", step.Name, errs[j])
				env.recordError(msg)
				logger.Warn("Step failed, continuing", zap.String("step", step.Name), zap.Error(errs[j]))
				continue
			}
			return r.abort(report, logger, step.Name, errs[j])
		}
	}

	env.mu.Lock()
	report.State = schemas.RunCompleted
	report.Success = true
	report.FinishedAt = r.clock.Now()
	out := cloneReport(*report)
	env.mu.Unlock()

	logger.Info("Workflow completed", zap.Int("warnings", len(out.Warnings)), zap.Int("errors", len(out.Errors)))
	return out, nil
}

func (r *Runner) abort(report *schemas.RunReport, logger *zap.Logger, step string, err error) (schemas.RunReport, error) {
	stepErr := &schemas.StepError{Step: step, Err: err}
	report.State = schemas.RunAborted
	report.Success = false
	report.AbortReason = stepErr.Error()
	report.FinishedAt = r.clock.Now()
	logger.Error("Workflow aborted", zap.String("step", step), zap.Error(err))
	return cloneReport(*report), stepErr
}

func (r *Runner) newEnv(s *session.Session, params map[string]interface{}, report *schemas.RunReport, logger *zap.Logger) *Env {
	cfg := s.Config()
	hcfg := r.humanCfg
	if hcfg.Platform == "" {
		hcfg.Platform = cfg.OS
		if hcfg.Platform == "" {
			hcfg.Platform = session.DetectOS()
		}
	}

	if r.seed != 0 {
		hcfg.Rng = rand.New(rand.NewSource(r.seed))
	}
	human := humanoid.New(hcfg, logger, s.Driver(), r.clock)

	if params == nil {
		params = map[string]interface{}{}
	}

	return &Env{
		Driver:     s.Driver(),
		Human:      human,
		Classifier: r.classifier,
		Params:     params,
		Logger:     logger,
		Session:    cfg,
		report:     report,
		translator: r.translator,
	}
}

// nextBatch returns the step at i, or the run of consecutive steps sharing its parallel group.
func nextBatch(steps []Step, i int) []Step {
	group := steps[i].ParallelGroup
	if group == "" {
		return steps[i : i+1]
	}
	j := i + 1
	for j < len(steps) && steps[j].ParallelGroup == group {
		j++
	}
	return steps[i:j]
}

// runBatch runs the batch and returns one error slot per step. Parallel
// members all run to completion before any failure is handled.
func (r *Runner) runBatch(ctx context.Context, env *Env, batch []Step, sigs []anomaly.Signature) []error {
	errs := make([]error, len(batch))
	if len(batch) == 1 {
		errs[0] = r.runStep(ctx, env, batch[0], sigs)
		return errs
	}

	var g errgroup.Group
	for j := range batch {
		j := j
		g.Go(func() error {
			errs[j] = r.runStep(ctx, env, batch[j], sigs)
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (r *Runner) runStep(ctx context.Context, env *Env, step Step, sigs []anomaly.Signature) error {
	log := env.Logger.With(zap.String("step", step.Name))
	log.Debug("Running step", zap.Stringer("policy", step.OnFailure))

	attempts := step.OnFailure.Attempts()
	if step.OnFailure == Retry && r.maxAttempts > 0 {
		attempts = r.maxAttempts
	}
	if attempts == 1 {
		return r.attempt(ctx, env, step, sigs, log)
	}
	return retry.Run(ctx, attempts, r.retryDelay,
		func(ctx context.Context, attempt int) error {
			return r.attempt(ctx, env, step, sigs, log.With(zap.Int("attempt", attempt)))
		},
		retry.WithClock(r.clock),
		retry.OnRetry(func(attempt int, err error) {
			log.Info("Retrying step", zap.Int("attempt", attempt), zap.Error(err))
		}),
	)
}

// attempt is one try of a step: guard, action, wait, guard, and at most one
// re-invocation when the post-step guard recovered.
func (r *Runner) attempt(ctx context.Context, env *Env, step Step, sigs []anomaly.Signature, log *zap.Logger) error {
	guarded := step.Guard && len(sigs) > 0
	if guarded {
		if handled, err := r.interceptor.CheckAndRecover(ctx, env.Driver, sigs, env.dismissClicker()); err != nil {
			return err
		} else if len(handled) > 0 {
			log.Info("Recovered before step", zap.Strings("anomalies", handled))
		}
	}

	if err := r.perform(ctx, env, step); err != nil {
		return err
	}
	if !guarded {
		return nil
	}

	handled, err := r.interceptor.CheckAndRecover(ctx, env.Driver, sigs, env.dismissClicker())
	if err != nil {
		return err
	}
	if len(handled) == 0 || !step.ReinvokeOnRecovery {
		return nil
	}

	log.Info("Re-running step after recovery", zap.Strings("anomalies", handled))
	if err := r.perform(ctx, env, step); err != nil {
		return err
	}
	_, err = r.interceptor.CheckAndRecover(ctx, env.Driver, sigs, env.dismissClicker())
	return err
}

func (r *Runner) perform(ctx context.Context, env *Env, step Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if step.Action != nil {
		if err := step.Action(ctx, env); err != nil {
			if errors.Is(err, ErrNoChange) {
				env.Logger.Debug("Nothing to change, skipping wait", zap.String("step", step.Name))
				return nil
			}
			return err
		}
	}
	if step.Wait == nil {
		return nil
	}

	outcome := r.classifier.Poll(ctx, env.Driver, step.Wait.Predicates, step.Wait.Timeout)
	switch outcome.Kind {
	case schemas.OutcomeWarning:
		env.Warn(fmt.Sprintf("%s warning: %s", step.Name, outcome.Detail))
	case schemas.OutcomeError:
		return fmt.Errorf("%w: %s", schemas.ErrValidation, outcome.Detail)
	case schemas.OutcomeTimedOut:
		if err := ctx.Err(); err != nil {
			return errors.Join(schemas.ErrTimedOut, err)
		}
		return fmt.Errorf("%w: %s", schemas.ErrTimedOut, outcome.Detail)
	}
	return nil
}
