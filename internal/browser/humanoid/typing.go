package humanoid

import (
	"context"
	"fmt"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"go.uber.org/zap"
)

// TypeMode selects how existing field content is treated.
type TypeMode string

const (
	// Keystrokes appends to whatever the field holds.
	Keystrokes TypeMode = "keystrokes"
	// Fill clears the field (select-all, delete) before typing.
	Fill TypeMode = "fill"
)

// ParseTypeMode maps a recipe string to a TypeMode. Empty means Keystrokes.
func ParseTypeMode(s string) (TypeMode, error) {
	switch TypeMode(s) {
	case "", Keystrokes:
		return Keystrokes, nil
	case Fill:
		return Fill, nil
	}
	return "", fmt.Errorf("%w: unknown type mode %q", schemas.ErrValidation, s)
}

// SelectAllModifier is Meta on macOS and Ctrl everywhere else.
func SelectAllModifier(os schemas.OS) schemas.KeyModifier {
	if os == schemas.OSMacOS {
		return schemas.ModifierMeta
	}
	return schemas.ModifierCtrl
}

// Type clicks the target and enters text one key at a time.
func (h *Humanoid) Type(ctx context.Context, selector, text string, mode TypeMode) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.click(ctx, selector); err != nil {
		return err
	}

	if mode == Fill {
		if err := h.driver.PressKey(ctx, "a", SelectAllModifier(h.cfg.Platform)); err != nil {
			return fmt.Errorf("humanoid: select all in %q: %w", selector, err)
		}
		if err := h.driver.PressKey(ctx, schemas.KeyBackspace, schemas.ModifierNone); err != nil {
			return fmt.Errorf("humanoid: clearing %q: %w", selector, err)
		}
	}

	if err := h.typeText(ctx, text); err != nil {
		return fmt.Errorf("humanoid: typing into %q: %w", selector, err)
	}
	h.logger.Debug("Typed text", zap.String("selector", selector), zap.Int("length", len([]rune(text))), zap.String("mode", string(mode)))
	return nil
}

// PressKey sends a single key chord to the focused element.
func (h *Humanoid) PressKey(ctx context.Context, key string, mods schemas.KeyModifier) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.driver.PressKey(ctx, key, mods)
}

// typeText emits one rune per key event with a randomised inter-key delay.
// Assumes the lock is held.
func (h *Humanoid) typeText(ctx context.Context, text string) error {
	for _, r := range text {
		var err error
		if r == '\n' {
			err = h.driver.PressKey(ctx, schemas.KeyEnter, schemas.ModifierNone)
		} else {
			err = h.driver.TypeText(ctx, string(r))
		}
		if err != nil {
			return err
		}
		if err := h.pause(ctx, h.cfg.KeyDelayMinMs, h.cfg.KeyDelayMaxMs); err != nil {
			return err
		}
	}
	return nil
}
