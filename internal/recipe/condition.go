package recipe

import (
	"fmt"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
	"github.com/nmthangdn2000/web-automation-tools/internal/poll"
)

// predicate builds the poll predicate for c, rendering selectors against data.
func (c *Condition) predicate(data scope, labels i18n.Labels) (poll.Predicate, error) {
	r := func(s string) (string, error) { return render(s, data, labels) }

	var (
		p   poll.Predicate
		err error
		sel string
	)
	switch {
	case c.Visible != "":
		if sel, err = r(c.Visible); err == nil {
			p = poll.Visible(sel)
		}
	case c.Present != "":
		if sel, err = r(c.Present); err == nil {
			p = poll.Present(sel)
		}
	case c.Hidden != "":
		if sel, err = r(c.Hidden); err == nil {
			p = poll.Hidden(sel)
		}
	case c.URLContains != "":
		if sel, err = r(c.URLContains); err == nil {
			p = poll.URLContains(sel)
		}
	case c.Attr != nil:
		var value string
		if sel, err = r(c.Attr.Selector); err == nil {
			if value, err = r(c.Attr.Value); err == nil {
				p = poll.AttrEquals(sel, c.Attr.Name, value)
			}
		}
	case c.Text != nil:
		var substr string
		if sel, err = r(c.Text.Selector); err == nil {
			if substr, err = r(c.Text.Contains); err == nil {
				p = poll.TextContains(sel, substr)
			}
		}
	case len(c.Any) > 0:
		var preds []poll.Predicate
		if preds, err = predicates(c.Any, data, labels); err == nil {
			p = poll.Any(preds...)
		}
	case len(c.All) > 0:
		var preds []poll.Predicate
		if preds, err = predicates(c.All, data, labels); err == nil {
			p = poll.All(preds...)
		}
	case c.Not != nil:
		var inner poll.Predicate
		if inner, err = c.Not.predicate(data, labels); err == nil {
			p = poll.Not(inner)
		}
	default:
		return nil, fmt.Errorf("%w: condition has no matcher", schemas.ErrValidation)
	}
	if err != nil {
		return nil, err
	}

	if c.Detail != "" {
		detail, err := r(c.Detail)
		if err != nil {
			return nil, err
		}
		p = poll.WithDetail(p, detail)
	}
	return p, nil
}

func predicates(conds []Condition, data scope, labels i18n.Labels) ([]poll.Predicate, error) {
	out := make([]poll.Predicate, 0, len(conds))
	for i := range conds {
		p, err := conds[i].predicate(data, labels)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// optional builds a predicate for a possibly nil condition.
func optional(c *Condition, data scope, labels i18n.Labels) (poll.Predicate, error) {
	if c == nil {
		return nil, nil
	}
	return c.predicate(data, labels)
}

func (w *WaitSpec) condition(data scope, labels i18n.Labels) (poll.Predicates, error) {
	var (
		preds poll.Predicates
		err   error
	)
	if preds.Success, err = optional(w.Success, data, labels); err != nil {
		return preds, err
	}
	if preds.Warning, err = optional(w.Warning, data, labels); err != nil {
		return preds, err
	}
	if preds.Error, err = optional(w.Error, data, labels); err != nil {
		return preds, err
	}
	if preds.Pending, err = optional(w.Pending, data, labels); err != nil {
		return preds, err
	}
	if preds.Success == nil && preds.Warning == nil && preds.Error == nil {
		return preds, fmt.Errorf("%w: wait needs a success, warning or error condition", schemas.ErrValidation)
	}
	return preds, nil
}
