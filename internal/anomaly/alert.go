package anomaly

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"go.uber.org/zap"
)

// Alerter notifies the operator that a session needs attention.
type Alerter interface {
	Alert(ctx context.Context, d schemas.Driver, signature string) error
}

// TerminalAlerter rings the terminal bell, logs a warning and flashes the page title.
type TerminalAlerter struct {
	Out    io.Writer
	Logger *zap.Logger
}

// NewTerminalAlerter writes bells to stderr.
func NewTerminalAlerter(logger *zap.Logger) *TerminalAlerter {
	return &TerminalAlerter{Out: os.Stderr, Logger: logger}
}

const flashTitleScript = `(() => {
	const original = document.title;
	const banner = %s;
	let n = 0;
	const id = setInterval(() => {
		document.title = (n++ %% 2 === 0) ? banner : original;
		if (n > 10) { clearInterval(id); document.title = original; }
	}, 500);
})()`

func (a *TerminalAlerter) Alert(ctx context.Context, d schemas.Driver, signature string) error {
	if a.Out != nil {
		fmt.Fprint(a.Out, "\a")
	}
	if a.Logger != nil {
		a.Logger.Warn("Session needs operator attention", zap.String("anomaly", signature))
	}
	if d == nil {
		return nil
	}
	script := fmt.Sprintf(flashTitleScript, strconv.Quote("⚠ "+signature+" - action required"))
	return d.Evaluate(ctx, script, nil)
}
