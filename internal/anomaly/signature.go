package anomaly

import (
	"fmt"
	"strings"
	"time"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
)

// Recovery is the action taken when a signature is detected.
type Recovery int

const (
	// WaitForClear blocks until the interstitial goes away (a human solves it).
	WaitForClear Recovery = iota
	// Dismiss clicks the affirmative control.
	Dismiss
	// Escalate fails immediately.
	Escalate
)

func (r Recovery) String() string {
	switch r {
	case WaitForClear:
		return "wait_for_clear"
	case Dismiss:
		return "dismiss"
	case Escalate:
		return "escalate"
	}
	return fmt.Sprintf("recovery(%d)", int(r))
}

// ParseRecovery maps the recipe spelling to a Recovery.
func ParseRecovery(s string) (Recovery, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "wait", "wait_for_clear":
		return WaitForClear, nil
	case "dismiss":
		return Dismiss, nil
	case "escalate", "abort":
		return Escalate, nil
	}
	return 0, fmt.Errorf("%w: unknown recovery %q", schemas.ErrValidation, s)
}

// Signature describes one known interstitial.
type Signature struct {
	Name            string
	Detect          poll.Predicate
	Recovery        Recovery
	DismissSelector string
	// MaxWait bounds WaitForClear and Dismiss. Zero means the interceptor default.
	MaxWait time.Duration
	// Alert raises a recurring operator alert while waiting.
	Alert bool
}

// CaptchaSignature waits (with alerts) for a human to solve a challenge.
func CaptchaSignature(selector string) Signature {
	return Signature{
		Name:     "captcha",
		Detect:   poll.Visible(selector),
		Recovery: WaitForClear,
		Alert:    true,
	}
}

// LoginWallSignature escalates in headless mode, where nobody can log in,
// and otherwise waits for the operator to log in within the shown browser.
func LoginWallSignature(detect poll.Predicate, headless bool) Signature {
	sig := Signature{
		Name:   "login_wall",
		Detect: detect,
		Alert:  true,
	}
	if headless {
		sig.Recovery = Escalate
		sig.Alert = false
	}
	return sig
}

// ConfirmModalSignature dismisses a blocking dialog by clicking its confirm control.
func ConfirmModalSignature(name, modalSelector, confirmSelector string) Signature {
	return Signature{
		Name:            name,
		Detect:          poll.Visible(modalSelector),
		Recovery:        Dismiss,
		DismissSelector: confirmSelector,
	}
}
