// internal/browser/stealth/stealth.go
package stealth

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"go.uber.org/zap"
)

// EvasionsJS holds the embedded JavaScript used for browser fingerprint evasion.
//
//go:embed evasions.js
var EvasionsJS string

// Persona is the identity the evasions present to the page.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
}

// PersonaFor derives a persona from a session configuration.
func PersonaFor(cfg schemas.SessionConfig) Persona {
	cfg = cfg.WithDefaults()
	p := Persona{UserAgent: cfg.UserAgent}

	switch {
	case strings.Contains(cfg.UserAgent, "Macintosh"):
		p.Platform = "MacIntel"
	case strings.Contains(cfg.UserAgent, "Windows"):
		p.Platform = "Win32"
	case strings.Contains(cfg.UserAgent, "Linux"):
		p.Platform = "Linux x86_64"
	}

	p.Languages = []string{cfg.Locale}
	if base, _, ok := strings.Cut(cfg.Locale, "-"); ok && base != "" {
		p.Languages = append(p.Languages, base)
	}
	return p
}

// Script renders the persona bootstrap followed by the evasions.
func Script(persona Persona) (string, error) {
	raw, err := json.Marshal(persona)
	if err != nil {
		return "", fmt.Errorf("stealth: encoding persona: %w", err)
	}
	return fmt.Sprintf("window.__automationPersona = %s;\n%s", raw, EvasionsJS), nil
}

// ApplyEvasions registers the evasions to run on every new document.
func ApplyEvasions(ctx context.Context, d schemas.Driver, persona Persona, logger *zap.Logger) error {
	if logger != nil {
		logger.Debug("Applying stealth evasions.", zap.String("platform", persona.Platform))
	}
	if EvasionsJS == "" {
		if logger != nil {
			logger.Debug("No evasion script embedded, skipping.")
		}
		return nil
	}
	script, err := Script(persona)
	if err != nil {
		return err
	}
	if err := d.InjectScript(ctx, script); err != nil {
		return fmt.Errorf("stealth: injecting evasions: %w", err)
	}
	return nil
}
