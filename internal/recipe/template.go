package recipe

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
	"github.com/nmthangdn2000/web-automation-tools/internal/i18n"
)

// scope is the data a step's templates see: parameters plus, inside a
// for_each group, the current item and its zero-based index.
type scope map[string]interface{}

func newScope(params map[string]interface{}) scope {
	s := make(scope, len(params)+2)
	for k, v := range params {
		s[k] = v
	}
	return s
}

func (s scope) with(item interface{}, index int) scope {
	out := make(scope, len(s)+2)
	for k, v := range s {
		out[k] = v
	}
	out["item"] = item
	out["index"] = index
	return out
}

func (s scope) withResults(results map[string]interface{}) scope {
	out := make(scope, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	out["results"] = results
	return out
}

func funcMap(labels i18n.Labels) template.FuncMap {
	return template.FuncMap{
		"label": func(key string) string { return labels.Get(key) },
		"join":  join,
		"add":   func(a, b int) int { return a + b },
		"lower": strings.ToLower,
		"quote": func(s string) string { return fmt.Sprintf("%q", s) },
	}
}

// render expands a field template. Plain strings are returned untouched.
func render(text string, data scope, labels i18n.Labels) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}
	tmpl, err := template.New("field").Funcs(funcMap(labels)).Parse(text)
	if err != nil {
		return "", fmt.Errorf("%w: template %q: %v", schemas.ErrValidation, text, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]interface{}(data)); err != nil {
		return "", fmt.Errorf("%w: template %q: %v", schemas.ErrValidation, text, err)
	}
	return strings.ReplaceAll(buf.String(), "<no value>", ""), nil
}

// checkTemplate parses a field so syntax errors surface at compile time.
func checkTemplate(text string) error {
	if !strings.Contains(text, "{{") {
		return nil
	}
	if _, err := template.New("field").Funcs(funcMap(nil)).Parse(text); err != nil {
		return fmt.Errorf("%w: template %q: %v", schemas.ErrValidation, text, err)
	}
	return nil
}

// truthy interprets a rendered condition.
func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "0", "no", "off":
		return false
	}
	return true
}

func join(v interface{}, sep string) string {
	switch list := v.(type) {
	case []string:
		return strings.Join(list, sep)
	case []interface{}:
		parts := make([]string, 0, len(list))
		for _, e := range list {
			parts = append(parts, fmt.Sprint(e))
		}
		return strings.Join(parts, sep)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// listOf turns a parameter value into the items of a for_each group.
func listOf(v interface{}) ([]interface{}, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return list, nil
	case []string:
		out := make([]interface{}, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, nil
	case []map[string]interface{}:
		out := make([]interface{}, len(list))
		for i, m := range list {
			out[i] = m
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: expected a list, got %T", schemas.ErrValidation, v)
}
