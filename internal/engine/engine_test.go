package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/session"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"github.com/nmthangdn2000/web-automation-tools/internal/config"
	"github.com/nmthangdn2000/web-automation-tools/internal/mocks"
	"github.com/nmthangdn2000/web-automation-tools/internal/platforms"
	"github.com/nmthangdn2000/web-automation-tools/internal/recipe"
	"github.com/nmthangdn2000/web-automation-tools/internal/workflow"
)

const greetRecipe = `
name: greet
params:
  - name: url
    required: true
  - name: button
    default: "#go"
steps:
  - name: open
    action: navigate
    url: "{{.url}}"
  - name: press
    action: click
    selector: "{{.button}}"
    direct: true
`

// fakeProvisioner hands out a fresh FakePage per session.
type fakeProvisioner struct {
	mu    sync.Mutex
	pages []*mocks.FakePage
	err   error
}

func (p *fakeProvisioner) Provision(ctx context.Context, cfg schemas.SessionConfig) (*session.Session, error) {
	if p.err != nil {
		return nil, p.err
	}
	page := mocks.NewFakePage()
	page.Set("#go", mocks.FakeElement{Visible: true})

	p.mu.Lock()
	p.pages = append(p.pages, page)
	id := fmt.Sprintf("session-%d", len(p.pages))
	p.mu.Unlock()
	return session.New(id, cfg, page, zap.NewNop()), nil
}

func (p *fakeProvisioner) provisioned() []*mocks.FakePage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*mocks.FakePage(nil), p.pages...)
}

func newTestRegistry(t *testing.T) *platforms.Registry {
	t.Helper()
	rc, err := recipe.Parse([]byte(greetRecipe))
	require.NoError(t, err)
	reg := platforms.NewRegistry(zap.NewNop())
	reg.Register(rc, "test")
	return reg
}

func newTestEngine(t *testing.T, cfg config.EngineConfig, prov *fakeProvisioner, store Store, logger *zap.Logger) *Engine {
	t.Helper()
	runner := workflow.NewRunner(workflow.Options{
		Logger: logger,
		Clock:  clock.NewFake(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)),
		Seed:   1,
	})
	return New(cfg, logger, newTestRegistry(t), runner, prov, store)
}

func TestEngine_RunPersistsReport(t *testing.T) {
	prov := &fakeProvisioner{}
	store := new(mocks.MockStore)
	store.On("PersistReport", mock.Anything, mock.MatchedBy(func(r schemas.RunReport) bool {
		return r.RunID == "job-1" && r.Workflow == "greet" && r.Success && r.SessionID == "session-1"
	})).Return(nil).Once()

	e := newTestEngine(t, config.EngineConfig{WorkerConcurrency: 1}, prov, store, zap.NewNop())
	report, err := e.Run(context.Background(), Job{
		ID:     "job-1",
		Recipe: "greet",
		Params: map[string]interface{}{"url": "https://example.com/start"},
	})
	require.NoError(t, err)

	assert.Equal(t, schemas.RunCompleted, report.State)
	pages := prov.provisioned()
	require.Len(t, pages, 1)
	assert.Equal(t, []string{"https://example.com/start"}, pages[0].Navigations())
	assert.Equal(t, 1, pages[0].ClickCount("#go"))
	assert.Equal(t, 1, pages[0].CloseCount())
	store.AssertExpectations(t)
}

func TestEngine_AbortedRunIsPersisted(t *testing.T) {
	prov := &fakeProvisioner{}
	store := new(mocks.MockStore)
	store.On("PersistReport", mock.Anything, mock.MatchedBy(func(r schemas.RunReport) bool {
		return r.State == schemas.RunAborted && !r.Success
	})).Return(nil).Once()

	e := newTestEngine(t, config.EngineConfig{}, prov, store, zap.NewNop())
	report, err := e.Run(context.Background(), Job{
		Recipe: "greet",
		Params: map[string]interface{}{"url": "https://example.com", "button": "#missing"},
	})
	require.Error(t, err)

	var stepErr *schemas.StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, "press", stepErr.Step)
	assert.ErrorIs(t, err, schemas.ErrElementNotInteractable)
	assert.NotEmpty(t, report.RunID, "a generated job ID becomes the run ID")
	assert.Equal(t, 1, prov.provisioned()[0].CloseCount())
	store.AssertExpectations(t)
}

func TestEngine_RejectsBeforeProvisioning(t *testing.T) {
	tests := []struct {
		name string
		job  Job
		prov *fakeProvisioner
		want error
	}{
		{
			name: "unknown recipe",
			job:  Job{Recipe: "nope"},
			prov: &fakeProvisioner{},
			want: platforms.ErrUnknownRecipe,
		},
		{
			name: "missing required param",
			job:  Job{Recipe: "greet"},
			prov: &fakeProvisioner{},
			want: schemas.ErrValidation,
		},
		{
			name: "provision failure",
			job:  Job{Recipe: "greet", Params: map[string]interface{}{"url": "https://example.com"}},
			prov: &fakeProvisioner{err: schemas.ErrUnsupportedPlatform},
			want: schemas.ErrUnsupportedPlatform,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := new(mocks.MockStore)
			e := newTestEngine(t, config.EngineConfig{}, tt.prov, store, zap.NewNop())

			report, err := e.Run(context.Background(), tt.job)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, report.RunID)
			assert.Empty(t, tt.prov.provisioned())
			store.AssertNotCalled(t, "PersistReport", mock.Anything, mock.Anything)
		})
	}
}

func TestEngine_StartStop(t *testing.T) {
	prov := &fakeProvisioner{}
	store := new(mocks.MockStore)
	numJobs := 5
	store.On("PersistReport", mock.Anything, mock.Anything).Return(nil).Times(numJobs)

	e := newTestEngine(t, config.EngineConfig{WorkerConcurrency: 2, QueueSize: 1}, prov, store, zap.NewNop())

	jobs := make(chan Job)
	results := e.Start(context.Background(), jobs)
	go func() {
		defer close(jobs)
		for i := 0; i < numJobs; i++ {
			jobs <- Job{
				ID:     fmt.Sprintf("job-%d", i),
				Recipe: "greet",
				Params: map[string]interface{}{"url": fmt.Sprintf("https://example.com/%d", i)},
			}
		}
	}()

	seen := map[string]bool{}
	for res := range results {
		require.NoError(t, res.Err)
		assert.True(t, res.Report.Success)
		assert.Equal(t, res.Job.ID, res.Report.RunID)
		seen[res.Job.ID] = true
	}
	e.Stop()

	assert.Len(t, seen, numJobs)
	pages := prov.provisioned()
	require.Len(t, pages, numJobs)
	for _, page := range pages {
		assert.Equal(t, 1, page.CloseCount(), "every job closes its own session")
	}
	store.AssertExpectations(t)
}

func TestEngine_WorkerAssignsJobIDs(t *testing.T) {
	e := newTestEngine(t, config.EngineConfig{WorkerConcurrency: 1}, &fakeProvisioner{}, nil, zap.NewNop())

	jobs := make(chan Job, 1)
	jobs <- Job{Recipe: "nope"}
	close(jobs)

	var got []Result
	for res := range e.Start(context.Background(), jobs) {
		got = append(got, res)
	}
	e.Stop()

	require.Len(t, got, 1)
	assert.NotEmpty(t, got[0].Job.ID)
	assert.ErrorIs(t, got[0].Err, platforms.ErrUnknownRecipe)
}

func TestEngine_PersistFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	store := new(mocks.MockStore)
	store.On("PersistReport", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	e := newTestEngine(t, config.EngineConfig{}, &fakeProvisioner{}, store, zap.New(core))
	report, err := e.Run(context.Background(), Job{
		Recipe: "greet",
		Params: map[string]interface{}{"url": "https://example.com"},
	})
	require.NoError(t, err, "a storage failure does not fail the run")
	assert.True(t, report.Success)
	assert.Equal(t, 1, logs.FilterMessage("Failed to persist run report").Len())
	store.AssertExpectations(t)
}

func TestEngine_CancelledContextStillPersists(t *testing.T) {
	prov := &fakeProvisioner{}
	store := new(mocks.MockStore)
	store.On("PersistReport", mock.Anything, mock.MatchedBy(func(r schemas.RunReport) bool {
		return r.State == schemas.RunAborted
	})).Return(nil).Once()

	e := newTestEngine(t, config.EngineConfig{}, prov, store, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, Job{Recipe: "greet", Params: map[string]interface{}{"url": "https://example.com"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	store.AssertExpectations(t)
}

func TestEngine_RunStepsPersists(t *testing.T) {
	prov := &fakeProvisioner{}
	store := new(mocks.MockStore)
	store.On("PersistReport", mock.Anything, mock.MatchedBy(func(r schemas.RunReport) bool {
		return r.Workflow == "feed" && r.Payload["clicked"] == true
	})).Return(nil).Once()

	e := newTestEngine(t, config.EngineConfig{}, prov, store, zap.NewNop())
	report, err := e.RunSteps(context.Background(), "feed", schemas.SessionConfig{}, []workflow.Step{{
		Name: "click",
		Action: func(ctx context.Context, env *workflow.Env) error {
			env.SetResult("clicked", true)
			return env.Driver.Click(ctx, "#go")
		},
	}})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, prov.provisioned()[0].ClickCount("#go"))
	store.AssertExpectations(t)
}
