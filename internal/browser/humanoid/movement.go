package humanoid

import (
	"context"
	"fmt"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"go.uber.org/zap"
)

// MoveTo moves the pointer onto a randomised point inside the element.
func (h *Humanoid) MoveTo(ctx context.Context, selector string) (Vector2D, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.moveToSelector(ctx, selector)
}

// moveToSelector is the internal, non-locking implementation.
func (h *Humanoid) moveToSelector(ctx context.Context, selector string) (Vector2D, error) {
	box, err := h.awaitBox(ctx, selector)
	if err != nil {
		return Vector2D{}, err
	}
	target := h.calculateTargetPoint(box)
	if err := h.moveToVector(ctx, target); err != nil {
		return Vector2D{}, fmt.Errorf("humanoid: moving to %q: %w", selector, err)
	}
	return target, nil
}

// calculateTargetPoint picks centre plus a uniform offset of up to
// ClickOffsetRatio of the box size on each axis. Assumes the lock is held.
func (h *Humanoid) calculateTargetPoint(box *schemas.ElementGeometry) Vector2D {
	cx, cy := box.Center()
	ratio := h.cfg.ClickOffsetRatio
	offsetX := (h.rng.Float64()*2 - 1) * ratio * box.Width
	offsetY := (h.rng.Float64()*2 - 1) * ratio * box.Height
	return Vector2D{X: cx + offsetX, Y: cy + offsetY}
}

// moveToVector dispatches a multi-step pointer path. Assumes the lock is held.
func (h *Humanoid) moveToVector(ctx context.Context, target Vector2D) error {
	steps := h.cfg.MinMoveSteps
	if span := h.cfg.MaxMoveSteps - h.cfg.MinMoveSteps; span > 0 {
		steps += h.rng.Intn(span + 1)
	}

	for _, p := range h.buildPath(h.currentPos, target, steps) {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev := schemas.MouseEventData{Type: schemas.MouseMove, X: p.X, Y: p.Y, Button: schemas.ButtonNone}
		if err := h.driver.DispatchMouse(ctx, ev); err != nil {
			return err
		}
		h.currentPos = p
	}

	h.logger.Debug("Pointer moved", zap.Int("steps", steps), zap.Float64("x", target.X), zap.Float64("y", target.Y))
	return nil
}
