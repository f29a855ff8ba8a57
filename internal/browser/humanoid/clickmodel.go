package humanoid

import (
	"context"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"go.uber.org/zap"
)

// Click moves to the element and performs a paced press/release.
func (h *Humanoid) Click(ctx context.Context, selector string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.click(ctx, selector)
}

// click is the internal, non-locking implementation.
func (h *Humanoid) click(ctx context.Context, selector string) error {
	target, err := h.moveToSelector(ctx, selector)
	if err != nil {
		return err
	}

	// Verification pause before the press.
	if err := h.pause(ctx, h.cfg.PreClickMinMs, h.cfg.PreClickMaxMs); err != nil {
		return err
	}

	if err := h.pressAndRelease(ctx, target); err != nil {
		return err
	}

	h.logger.Debug("Clicked", zap.String("selector", selector))
	return h.pause(ctx, h.cfg.PostClickMinMs, h.cfg.PostClickMaxMs)
}

// pressAndRelease holds the left button at the given point for a random hold time.
func (h *Humanoid) pressAndRelease(ctx context.Context, at Vector2D) error {
	press := schemas.MouseEventData{
		Type:       schemas.MousePress,
		X:          at.X,
		Y:          at.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
	}
	if err := h.driver.DispatchMouse(ctx, press); err != nil {
		return err
	}

	if err := h.pause(ctx, h.cfg.HoldMinMs, h.cfg.HoldMaxMs); err != nil {
		// The button must not stay virtually pressed.
		h.logger.Warn("Click hold interrupted, releasing button", zap.Error(err))
		h.release(context.Background(), at)
		return err
	}
	return h.release(ctx, at)
}

func (h *Humanoid) release(ctx context.Context, at Vector2D) error {
	return h.driver.DispatchMouse(ctx, schemas.MouseEventData{
		Type:       schemas.MouseRelease,
		X:          at.X,
		Y:          at.Y,
		Button:     schemas.ButtonLeft,
		ClickCount: 1,
	})
}
