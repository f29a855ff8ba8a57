package feed

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/anomaly"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/humanoid"
	"github.com/nmthangdn2000/web-automation-tools/internal/browser/session"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
	"github.com/nmthangdn2000/web-automation-tools/internal/mocks"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/nmthangdn2000/web-automation-tools/internal/workflow"
)

func TestParseActionIntervalRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	counts := make(map[int]int)
	for i := 0; i < 1000; i++ {
		v, err := ParseActionInterval("5,10", rng)
		require.NoError(t, err)
		require.GreaterOrEqual(t, v, 5)
		require.LessOrEqual(t, v, 10)
		counts[v]++
	}
	assert.Len(t, counts, 6)
	for v, n := range counts {
		assert.Greater(t, n, 100, "value %d drawn too rarely", v)
	}
}

func TestParseActionIntervalFixed(t *testing.T) {
	for i := 0; i < 100; i++ {
		v, err := ParseActionInterval("5", nil)
		require.NoError(t, err)
		assert.Equal(t, 5, v)
	}
	v, err := ParseActionInterval(" 3 , 4 ", rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Contains(t, []int{3, 4}, v)
}

func TestParseActionIntervalInvalid(t *testing.T) {
	for _, spec := range []string{"10,5", "5,5", "", "abc", "5,x", "-1", "1,2,3", "-2,4"} {
		t.Run(spec, func(t *testing.T) {
			_, err := ParseActionInterval(spec, nil)
			assert.ErrorIs(t, err, schemas.ErrInvalidInterval)
			assert.ErrorIs(t, err, schemas.ErrValidation)
		})
	}
}

func TestIntervalDraw(t *testing.T) {
	iv, err := NewInterval("2,3")
	require.NoError(t, err)
	rng := rand.New(rand.NewSource(9))
	for i := 0; i < 50; i++ {
		d := iv.Draw(rng)
		assert.True(t, d == 2*time.Second || d == 3*time.Second, "got %s", d)
	}
}

type feedFixture struct {
	page *mocks.FakePage
	clk  *clock.Fake
	sel  Selectors
}

func newFeedFixture(t *testing.T) *feedFixture {
	t.Helper()
	page := mocks.NewFakePage()
	page.Show("#column-list-container")
	return &feedFixture{
		page: page,
		clk:  clock.NewFake(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)),
		sel:  TikTokSelectors(i18n.Default().For("en")),
	}
}

func (f *feedFixture) interactor(t *testing.T, cfg Config) *Interactor {
	t.Helper()
	cfg.Seed = 11
	it, err := New(cfg, f.sel, f.page, humanoid.NewTestHumanoid(f.page, f.clk, 5), zaptest.NewLogger(t))
	require.NoError(t, err)
	return it
}

func TestRunLikesOnce(t *testing.T) {
	f := newFeedFixture(t)
	f.page.Set(f.sel.LikeButton, mocks.FakeElement{Visible: true, Attributes: map[string]string{"aria-pressed": "false"}})
	f.page.OnClick(f.sel.LikeButton, func(p *mocks.FakePage) {
		p.Update(f.sel.LikeButton, func(el *mocks.FakeElement) { el.Attributes["aria-pressed"] = "true" })
	})

	res, err := f.interactor(t, Config{EnableLike: true, ActionInterval: "5", MaxRounds: 2}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Rounds: 2, Liked: 1, AlreadyLiked: 1}, res)
	assert.Equal(t, 1, f.page.ClickCount(f.sel.LikeButton))
	assert.Equal(t, 2, f.page.ClickCount("#column-list-container"), "focus click once per scroll")

	fives := 0
	for _, d := range f.clk.Sleeps() {
		if d == 5*time.Second {
			fives++
		}
	}
	assert.Equal(t, 4, fives, "two interval pauses per round")
}

func TestRunStopsAfterConsecutiveErrors(t *testing.T) {
	f := newFeedFixture(t)

	res, err := f.interactor(t, Config{EnableLike: true, ActionInterval: "1"}).Run(context.Background())

	assert.ErrorIs(t, err, schemas.ErrRetryExhausted)
	assert.Equal(t, DefaultMaxConsecutiveErrors+1, res.Rounds)
	assert.Equal(t, DefaultMaxConsecutiveErrors+1, res.Errors)
}

func TestRunComments(t *testing.T) {
	f := newFeedFixture(t)
	f.page.Show(f.sel.CommentButton)
	f.page.OnClick(f.sel.CommentButton, func(p *mocks.FakePage) {
		p.Show(f.sel.CommentBox).Show(f.sel.CommentPost)
	})

	res, err := f.interactor(t, Config{EnableComment: true, CommentText: "nice", ActionInterval: "0", MaxRounds: 1}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Commented)
	assert.Equal(t, "nice", f.page.TypedText())
	assert.Equal(t, 1, f.page.ClickCount(f.sel.CommentPost))
}

func TestRunHonoursCancellation(t *testing.T) {
	f := newFeedFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.interactor(t, Config{EnableLike: true, ActionInterval: "1"}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidates(t *testing.T) {
	page := mocks.NewFakePage()
	_, err := New(Config{ActionInterval: "10,5"}, Selectors{}, page, nil, nil)
	assert.ErrorIs(t, err, schemas.ErrInvalidInterval)

	_, err = New(Config{ActionInterval: "5", EnableComment: true}, Selectors{}, page, nil, nil)
	assert.ErrorIs(t, err, schemas.ErrValidation)
}

func TestStepsRunInsideWorkflow(t *testing.T) {
	f := newFeedFixture(t)
	f.page.Set(f.sel.LikeButton, mocks.FakeElement{Visible: true, Attributes: map[string]string{"aria-pressed": "true"}})
	logger := zaptest.NewLogger(t)

	icfg := anomaly.DefaultConfig()
	icfg.DetectTimeout = 0
	runner := workflow.NewRunner(workflow.Options{
		Logger:      logger,
		Clock:       f.clk,
		Classifier:  poll.New(poll.DefaultConfig(), logger, f.clk),
		Interceptor: anomaly.New(icfg, logger, f.clk, anomaly.NewTerminalAlerter(logger)),
		Translator:  i18n.Default(),
		Seed:        2,
	})
	sess := session.New("feed", schemas.SessionConfig{OS: schemas.OSMacOS}, f.page, logger)

	steps := Steps(Config{EnableLike: true, ActionInterval: "2,4", MaxRounds: 3, Seed: 1}, "")
	report, err := runner.Run(context.Background(), sess, "tiktok_feed", steps, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://www.tiktok.com"}, f.page.Navigations())
	assert.Equal(t, Result{Rounds: 3, AlreadyLiked: 3}, report.Payload["feed"])
}
