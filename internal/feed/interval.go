package feed

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// ParseActionInterval returns the pause between feed actions in seconds.
// "5" always yields 5; "5,10" yields a uniform integer in [5,10]. A nil rng
// uses the global source.
func ParseActionInterval(spec string, rng *rand.Rand) (int, error) {
	lo, hi, err := parseBounds(spec)
	if err != nil {
		return 0, err
	}
	if lo == hi {
		return lo, nil
	}
	span := hi - lo + 1
	if rng == nil {
		return lo + rand.Intn(span), nil
	}
	return lo + rng.Intn(span), nil
}

// Interval is a parsed action interval.
type Interval struct {
	Min, Max int
}

// NewInterval validates spec once so the loop can draw from it repeatedly.
func NewInterval(spec string) (Interval, error) {
	lo, hi, err := parseBounds(spec)
	return Interval{Min: lo, Max: hi}, err
}

// Draw picks one pause.
func (i Interval) Draw(rng *rand.Rand) time.Duration {
	n := i.Min
	if i.Max > i.Min {
		n += rng.Intn(i.Max - i.Min + 1)
	}
	return time.Duration(n) * time.Second
}

func parseBounds(spec string) (int, int, error) {
	parts := strings.Split(spec, ",")
	switch len(parts) {
	case 1:
		v, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || v < 0 {
			return 0, 0, fmt.Errorf("%w %q: use a non-negative number like \"5\"", schemas.ErrInvalidInterval, spec)
		}
		return v, v, nil
	case 2:
		lo, errLo := strconv.Atoi(strings.TrimSpace(parts[0]))
		hi, errHi := strconv.Atoi(strings.TrimSpace(parts[1]))
		if errLo != nil || errHi != nil || lo < 0 || lo >= hi {
			return 0, 0, fmt.Errorf("%w %q: use a range like \"5,10\" with min below max", schemas.ErrInvalidInterval, spec)
		}
		return lo, hi, nil
	}
	return 0, 0, fmt.Errorf("%w %q", schemas.ErrInvalidInterval, spec)
}
