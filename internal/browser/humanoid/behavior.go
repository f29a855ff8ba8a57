package humanoid

import (
	"context"
	"time"
)

// Pause sleeps for a random duration in [min, max].
func (h *Humanoid) Pause(ctx context.Context, min, max time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pause(ctx, int(min/time.Millisecond), int(max/time.Millisecond))
}

// pause is the internal, non-locking implementation. Bounds are milliseconds.
func (h *Humanoid) pause(ctx context.Context, minMs, maxMs int) error {
	return h.clock.Sleep(ctx, h.randomDuration(minMs, maxMs))
}
