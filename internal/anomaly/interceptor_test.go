package anomaly

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/clock"
	"github.com/nmthangdn2000/web-automation-tools/internal/mocks"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type recordingAlerter struct {
	mu    sync.Mutex
	times []time.Time
	clk   clock.Clock
}

func (r *recordingAlerter) Alert(ctx context.Context, d schemas.Driver, signature string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.times = append(r.times, r.clk.Now())
	return nil
}

func (r *recordingAlerter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.times)
}

func newInterceptor(t *testing.T, cfg Config) (*Interceptor, *clock.Fake, *recordingAlerter) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	alerter := &recordingAlerter{clk: clk}
	return New(cfg, zap.NewNop(), clk, alerter), clk, alerter
}

const captcha = `iframe[src*="captcha"]`

func TestNoAnomalyIsNoop(t *testing.T) {
	i, clk, _ := newInterceptor(t, DefaultConfig())
	page := mocks.NewFakePage()

	handled, err := i.CheckAndRecover(context.Background(), page, []Signature{CaptchaSignature(captcha)})
	require.NoError(t, err)
	assert.Empty(t, handled)
	// The detector is given the short detection window only.
	assert.Equal(t, 2*time.Second, clk.Total())
}

func TestInstantDetection(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DetectTimeout = 0
	i, clk, _ := newInterceptor(t, cfg)

	handled, err := i.CheckAndRecover(context.Background(), mocks.NewFakePage(), []Signature{CaptchaSignature(captcha)})
	require.NoError(t, err)
	assert.Empty(t, handled)
	assert.Empty(t, clk.Sleeps())
}

func TestCaptchaClearedByHuman(t *testing.T) {
	i, clk, alerter := newInterceptor(t, DefaultConfig())
	page := mocks.NewFakePage().Show(captcha)
	start := clk.Now()
	clk.OnSleep = func(now time.Time) {
		if now.Sub(start) >= 40*time.Second {
			page.Remove(captcha)
		}
	}

	handled, err := i.CheckAndRecover(context.Background(), page, []Signature{CaptchaSignature(captcha)})
	require.NoError(t, err)
	assert.Equal(t, []string{"captcha"}, handled)
	// Alerts at 0s, 15s and 30s.
	assert.Equal(t, 3, alerter.count())
}

func TestCaptchaUnresolved(t *testing.T) {
	i, clk, alerter := newInterceptor(t, DefaultConfig())
	page := mocks.NewFakePage().Show(captcha)
	start := clk.Now()

	_, err := i.CheckAndRecover(context.Background(), page, []Signature{CaptchaSignature(captcha)})
	require.Error(t, err)
	assert.ErrorIs(t, err, schemas.ErrAnomalyUnresolved)

	elapsed := clk.Now().Sub(start)
	assert.GreaterOrEqual(t, elapsed, 5*time.Minute)
	assert.LessOrEqual(t, elapsed, 5*time.Minute+time.Second)

	// Alerts stop at the four minute cap: 0s, 15s, ..., 225s.
	assert.Equal(t, 16, alerter.count())
	for _, at := range alerter.times {
		assert.Less(t, at.Sub(start), 4*time.Minute)
	}
}

func TestDismissModal(t *testing.T) {
	i, _, alerter := newInterceptor(t, DefaultConfig())
	page := mocks.NewFakePage().Show(".modal").Show(".modal .confirm")
	page.OnClick(".modal .confirm", func(p *mocks.FakePage) {
		p.Remove(".modal").Remove(".modal .confirm")
	})

	sig := ConfirmModalSignature("ai_content_modal", ".modal", ".modal .confirm")
	handled, err := i.CheckAndRecover(context.Background(), page, []Signature{sig})
	require.NoError(t, err)
	assert.Equal(t, []string{"ai_content_modal"}, handled)
	assert.Equal(t, 1, page.ClickCount(".modal .confirm"))
	assert.Zero(t, alerter.count())
}

func TestDismissUsesInjectedClicker(t *testing.T) {
	i, _, _ := newInterceptor(t, DefaultConfig())
	page := mocks.NewFakePage().Show(".modal").Show(".modal .confirm")

	var clicked []string
	click := func(ctx context.Context, selector string) error {
		clicked = append(clicked, selector)
		page.Remove(".modal").Remove(".modal .confirm")
		return nil
	}

	sig := ConfirmModalSignature("ai_content_modal", ".modal", ".modal .confirm")
	handled, err := i.CheckAndRecover(context.Background(), page, []Signature{sig}, WithClicker(click))
	require.NoError(t, err)
	assert.Equal(t, []string{"ai_content_modal"}, handled)
	assert.Equal(t, []string{".modal .confirm"}, clicked)
	assert.Zero(t, page.ClickCount(".modal .confirm"), "the driver is not clicked directly")
}

func TestDismissThatDoesNotClear(t *testing.T) {
	i, clk, _ := newInterceptor(t, DefaultConfig())
	page := mocks.NewFakePage().Show(".modal").Show(".modal .confirm")
	start := clk.Now()

	_, err := i.CheckAndRecover(context.Background(), page, []Signature{ConfirmModalSignature("modal", ".modal", ".modal .confirm")})
	assert.ErrorIs(t, err, schemas.ErrAnomalyUnresolved)
	assert.LessOrEqual(t, clk.Now().Sub(start), 2*time.Second+5*time.Second)
}

func TestLoginWall(t *testing.T) {
	detect := poll.URLContains("/login")

	t.Run("headless escalates", func(t *testing.T) {
		i, clk, _ := newInterceptor(t, DefaultConfig())
		page := mocks.NewFakePage().SetURL("https://example.com/login")

		_, err := i.CheckAndRecover(context.Background(), page, []Signature{LoginWallSignature(detect, true)})
		assert.ErrorIs(t, err, schemas.ErrAnomalyUnresolved)
		assert.Empty(t, clk.Sleeps())
	})

	t.Run("shown browser waits for the operator", func(t *testing.T) {
		i, clk, alerter := newInterceptor(t, DefaultConfig())
		page := mocks.NewFakePage().SetURL("https://example.com/login")
		clk.OnSleep = func(now time.Time) { page.SetURL("https://example.com/home") }

		handled, err := i.CheckAndRecover(context.Background(), page, []Signature{LoginWallSignature(detect, false)})
		require.NoError(t, err)
		assert.Equal(t, []string{"login_wall"}, handled)
		assert.Equal(t, 1, alerter.count())
	})
}

func TestCheckStopsAtFirstUnresolved(t *testing.T) {
	i, _, _ := newInterceptor(t, DefaultConfig())
	page := mocks.NewFakePage().Show(".blocker").Show(".later")

	sigs := []Signature{
		{Name: "blocker", Detect: poll.Visible(".blocker"), Recovery: Escalate},
		{Name: "later", Detect: poll.Visible(".later"), Recovery: Escalate},
	}
	handled, err := i.CheckAndRecover(context.Background(), page, sigs)
	assert.Empty(t, handled)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocker")
}

func TestParseRecovery(t *testing.T) {
	for in, want := range map[string]Recovery{"": WaitForClear, "wait": WaitForClear, "dismiss": Dismiss, "Escalate": Escalate} {
		got, err := ParseRecovery(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseRecovery("ignore")
	assert.ErrorIs(t, err, schemas.ErrValidation)
}

func TestTerminalAlerter(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	var out bytes.Buffer
	a := &TerminalAlerter{Out: &out, Logger: zap.New(core)}

	d := new(mocks.MockDriver)
	d.On("Evaluate", mock.Anything, mock.MatchedBy(func(script string) bool {
		return strings.Contains(script, "captcha - action required")
	}), nil).Return(nil).Once()

	require.NoError(t, a.Alert(context.Background(), d, "captcha"))
	assert.Equal(t, "\a", out.String())
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "captcha", logs.All()[0].ContextMap()["anomaly"])
	d.AssertExpectations(t)
}
