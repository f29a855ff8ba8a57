package humanoid

import (
	"context"
	"fmt"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"go.uber.org/zap"
)

// Scroll advances a keyboard-scrolled feed by one item. The container is
// focused with a click on its centre unless liveMarker is visible, since
// clicking a live stream opens it.
func (h *Humanoid) Scroll(ctx context.Context, container, liveMarker string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	box, err := h.awaitBox(ctx, container)
	if err != nil {
		return err
	}

	live := false
	if liveMarker != "" {
		info, err := h.driver.Inspect(ctx, liveMarker)
		if err != nil {
			h.logger.Debug("Live marker lookup failed", zap.String("selector", liveMarker), zap.Error(err))
		} else {
			live = info != nil && info.Visible
		}
	}

	if !live {
		cx, cy := box.Center()
		centre := Vector2D{X: cx, Y: cy}
		if err := h.moveToVector(ctx, centre); err != nil {
			return fmt.Errorf("humanoid: focusing %q: %w", container, err)
		}
		if err := h.pressAndRelease(ctx, centre); err != nil {
			return fmt.Errorf("humanoid: focusing %q: %w", container, err)
		}
	}

	if err := h.pause(ctx, h.cfg.ScrollFocusMinMs, h.cfg.ScrollFocusMaxMs); err != nil {
		return err
	}
	if err := h.driver.PressKey(ctx, schemas.KeyArrowDown, schemas.ModifierNone); err != nil {
		return fmt.Errorf("humanoid: scrolling %q: %w", container, err)
	}

	h.logger.Debug("Scrolled feed", zap.String("container", container), zap.Bool("live", live))
	return h.pause(ctx, h.cfg.ScrollSettleMinMs, h.cfg.ScrollSettleMaxMs)
}
