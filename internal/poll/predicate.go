package poll

import (
	"context"
	"strings"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// Predicate inspects the page and reports whether it matches. The detail is
// surfaced in the resulting PollOutcome (typically the element's text).
type Predicate func(ctx context.Context, d schemas.Driver) (matched bool, detail string, err error)

// Func adapts a plain boolean check.
func Func(fn func(ctx context.Context, d schemas.Driver) (bool, error)) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		ok, err := fn(ctx, d)
		return ok, "", err
	}
}

// Visible matches when the selector is rendered and visible.
func Visible(selector string) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		info, err := d.Inspect(ctx, selector)
		if err != nil || info == nil {
			return false, "", err
		}
		return info.Visible, strings.TrimSpace(info.Text), nil
	}
}

// Present matches when the selector is attached, visible or not.
func Present(selector string) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		info, err := d.Inspect(ctx, selector)
		if err != nil || info == nil {
			return false, "", err
		}
		return info.Exists, strings.TrimSpace(info.Text), nil
	}
}

// Hidden matches when the selector is detached or invisible.
func Hidden(selector string) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		info, err := d.Inspect(ctx, selector)
		if err != nil {
			return false, "", err
		}
		return info == nil || !info.Visible, "", nil
	}
}

// URLContains matches on a substring of the current location.
func URLContains(fragment string) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		url, err := d.CurrentURL(ctx)
		if err != nil {
			return false, "", err
		}
		return strings.Contains(url, fragment), url, nil
	}
}

// AttrEquals matches when the element carries attr with exactly value.
func AttrEquals(selector, attr, value string) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		info, err := d.Inspect(ctx, selector)
		if err != nil || info == nil || !info.Exists {
			return false, "", err
		}
		got, ok := info.Attributes[attr]
		return ok && got == value, strings.TrimSpace(info.Text), nil
	}
}

// TextContains matches a visible element whose text includes substr.
func TextContains(selector, substr string) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		info, err := d.Inspect(ctx, selector)
		if err != nil || info == nil || !info.Visible {
			return false, "", err
		}
		text := strings.TrimSpace(info.Text)
		return strings.Contains(text, substr), text, nil
	}
}

// Any matches when at least one predicate does; the first match wins.
func Any(preds ...Predicate) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		var firstErr error
		for _, p := range preds {
			if p == nil {
				continue
			}
			ok, detail, err := p(ctx, d)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			if ok {
				return true, detail, nil
			}
		}
		return false, "", firstErr
	}
}

// All matches when every predicate does; details are joined.
func All(preds ...Predicate) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		var details []string
		for _, p := range preds {
			if p == nil {
				continue
			}
			ok, detail, err := p(ctx, d)
			if err != nil || !ok {
				return false, "", err
			}
			if detail != "" {
				details = append(details, detail)
			}
		}
		return true, strings.Join(details, "; "), nil
	}
}

// Not inverts a predicate. Errors are passed through unmatched.
func Not(p Predicate) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		ok, _, err := p(ctx, d)
		if err != nil {
			return false, "", err
		}
		return !ok, "", nil
	}
}

// WithDetail replaces the detail of a matching predicate when it is empty.
func WithDetail(p Predicate, detail string) Predicate {
	return func(ctx context.Context, d schemas.Driver) (bool, string, error) {
		ok, got, err := p(ctx, d)
		if ok && got == "" {
			got = detail
		}
		return ok, got, err
	}
}
