package schemas_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/mocks"
)

func TestPollOutcomeTerminal(t *testing.T) {
	assert.True(t, schemas.Success("").Terminal())
	assert.True(t, schemas.Warning("copyright").Terminal())
	assert.True(t, schemas.Failure("too large").Terminal())
	assert.True(t, schemas.TimedOut("").Terminal())
	assert.False(t, schemas.PollOutcome{Kind: schemas.OutcomeStillPending}.Terminal())
}

func TestSessionConfigDefaults(t *testing.T) {
	cfg := schemas.SessionConfig{Width: 800}.WithDefaults()

	assert.Equal(t, 800, cfg.Width, "explicit values are kept")
	assert.Equal(t, schemas.DefaultViewportHeight, cfg.Height)
	assert.Equal(t, schemas.DefaultLocale, cfg.Locale)
	assert.Equal(t, schemas.DefaultTimezoneID, cfg.TimezoneID)
	assert.Equal(t, schemas.DefaultUserAgent, cfg.UserAgent)

	assert.True(t, cfg.Headless())
	assert.False(t, cfg.Remote())
	assert.True(t, schemas.SessionConfig{RemoteEndpoint: "ws://127.0.0.1:9222"}.Remote())
	assert.False(t, schemas.SessionConfig{ShowBrowser: true}.Headless())
}

func TestErrorTaxonomy(t *testing.T) {
	assert.ErrorIs(t, schemas.ErrInvalidInterval, schemas.ErrValidation)

	stepErr := &schemas.StepError{Step: "upload", Err: schemas.ErrElementNotInteractable}
	assert.Equal(t, `step "upload": element not interactable`, stepErr.Error())
	assert.ErrorIs(t, stepErr, schemas.ErrElementNotInteractable)

	var target *schemas.StepError
	require.True(t, errors.As(error(stepErr), &target))
	assert.Equal(t, "upload", target.Step)

	visible := schemas.ErrWaitTimeout{Selector: "#go", State: schemas.StateVisible, Timeout: time.Second}
	assert.ErrorIs(t, visible, schemas.ErrElementNotInteractable)
	assert.ErrorIs(t, visible, schemas.ErrTimedOut)

	hidden := schemas.ErrWaitTimeout{Selector: ".spinner", State: schemas.StateHidden, Timeout: time.Second}
	assert.NotErrorIs(t, hidden, schemas.ErrElementNotInteractable)
	assert.ErrorIs(t, hidden, schemas.ErrTimedOut)
}

func TestElementGeometryCenter(t *testing.T) {
	x, y := schemas.ElementGeometry{X: 100, Y: 40, Width: 120, Height: 40}.Center()
	assert.Equal(t, 160.0, x)
	assert.Equal(t, 60.0, y)
}

func TestRunReportJSON(t *testing.T) {
	report := schemas.RunReport{
		RunID:    "run-1",
		Workflow: "tiktok_post",
		State:    schemas.RunCompleted,
		Success:  true,
		Warnings: []string{"copyright check warning: content may be restricted"},
	}
	out, err := report.ToJSON()
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "completed", decoded["state"])
	assert.Equal(t, true, decoded["success"])
	assert.NotContains(t, decoded, "errors", "empty errors are omitted")
	assert.NotContains(t, decoded, "abort_reason")
}

func TestWaitFor(t *testing.T) {
	ctx := context.Background()
	page := mocks.NewFakePage()
	page.Set(".spinner", mocks.FakeElement{Visible: true})
	page.Set("input[type=file]", mocks.FakeElement{})

	t.Run("reached immediately", func(t *testing.T) {
		require.NoError(t, schemas.WaitFor(ctx, page, ".spinner", schemas.StateVisible, time.Second))
		require.NoError(t, schemas.WaitFor(ctx, page, "input[type=file]", schemas.StateAttached, time.Second))
		require.NoError(t, schemas.WaitFor(ctx, page, "#absent", schemas.StateDetached, time.Second))
	})

	t.Run("reached after a change", func(t *testing.T) {
		go func() {
			time.Sleep(150 * time.Millisecond)
			page.Hide(".spinner")
		}()
		require.NoError(t, schemas.WaitFor(ctx, page, ".spinner", schemas.StateHidden, 2*time.Second))
	})

	t.Run("times out", func(t *testing.T) {
		err := schemas.WaitFor(ctx, page, "#absent", schemas.StateVisible, 150*time.Millisecond)
		var waitErr schemas.ErrWaitTimeout
		require.ErrorAs(t, err, &waitErr)
		assert.Equal(t, "#absent", waitErr.Selector)
		assert.ErrorIs(t, err, schemas.ErrElementNotInteractable)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		err := schemas.WaitFor(cctx, page, "#absent", schemas.StateVisible, time.Minute)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
