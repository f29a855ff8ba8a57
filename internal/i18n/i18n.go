// Package i18n resolves UI labels for the language a page is rendered in.
package i18n

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// DefaultLanguage is used when a page's language has no table.
const DefaultLanguage = "en"

//go:embed labels.yaml
var builtinLabels []byte

// Labels maps label keys to the text shown in one language.
type Labels map[string]string

// Get returns the label for key, or key itself when the table lacks it.
func (l Labels) Get(key string) string {
	if v, ok := l[key]; ok {
		return v
	}
	return key
}

// Translator holds label tables for several languages.
type Translator struct {
	tables   map[string]Labels
	fallback string
}

// New creates a Translator over tables, falling back to fallback.
func New(tables map[string]Labels, fallback string) *Translator {
	norm := make(map[string]Labels, len(tables))
	for lang, l := range tables {
		norm[normalize(lang)] = l
	}
	return &Translator{tables: norm, fallback: normalize(fallback)}
}

// Parse reads a YAML document of the form {lang: {key: text}}.
func Parse(data []byte) (map[string]Labels, error) {
	var tables map[string]Labels
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return nil, fmt.Errorf("parsing label tables: %w", err)
	}
	return tables, nil
}

var (
	defaultOnce       sync.Once
	defaultTranslator *Translator
)

// Default returns the translator over the built-in tables.
func Default() *Translator {
	defaultOnce.Do(func() {
		tables, err := Parse(builtinLabels)
		if err != nil {
			panic(err)
		}
		defaultTranslator = New(tables, DefaultLanguage)
	})
	return defaultTranslator
}

// Merge overlays extra tables onto the translator's, key by key.
func (t *Translator) Merge(extra map[string]Labels) *Translator {
	merged := make(map[string]Labels, len(t.tables))
	for lang, l := range t.tables {
		cp := make(Labels, len(l))
		for k, v := range l {
			cp[k] = v
		}
		merged[lang] = cp
	}
	for lang, l := range extra {
		lang = normalize(lang)
		if merged[lang] == nil {
			merged[lang] = make(Labels, len(l))
		}
		for k, v := range l {
			merged[lang][k] = v
		}
	}
	return &Translator{tables: merged, fallback: t.fallback}
}

// For returns the labels for lang ("vi-VN" resolves to "vi"). Keys missing
// from that table fall back to the default language.
func (t *Translator) For(lang string) Labels {
	lang = normalize(lang)
	base := t.tables[t.fallback]
	table, ok := t.tables[lang]
	if !ok || lang == t.fallback {
		return base
	}
	out := make(Labels, len(base)+len(table))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range table {
		out[k] = v
	}
	return out
}

// Languages lists the languages with a table.
func (t *Translator) Languages() []string {
	out := make([]string, 0, len(t.tables))
	for lang := range t.tables {
		out = append(out, lang)
	}
	return out
}

func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if base, _, ok := strings.Cut(lang, "-"); ok {
		return base
	}
	if base, _, ok := strings.Cut(lang, "_"); ok {
		return base
	}
	return lang
}

// PageLanguage is what the current document says about its language.
type PageLanguage struct {
	// Declared comes from <html lang> and is empty on about:blank.
	Declared string `json:"declared"`
	Browser  string `json:"browser"`
}

// Resolve prefers the declared language over the browser locale.
func (p PageLanguage) Resolve() string {
	if p.Declared != "" {
		return p.Declared
	}
	return p.Browser
}

const languageScript = `({declared: document.documentElement.lang || '', browser: navigator.language || ''})`

// ReadLanguage reports the document's declared language and the browser locale, normalized.
func ReadLanguage(ctx context.Context, d schemas.Driver) (PageLanguage, error) {
	var lang PageLanguage
	if err := d.Evaluate(ctx, languageScript, &lang); err != nil {
		return PageLanguage{}, fmt.Errorf("detecting page language: %w", err)
	}
	lang.Declared = normalize(lang.Declared)
	lang.Browser = normalize(lang.Browser)
	return lang, nil
}

// DetectLanguage returns the page's language, falling back to the browser locale.
func DetectLanguage(ctx context.Context, d schemas.Driver) (string, error) {
	lang, err := ReadLanguage(ctx, d)
	if err != nil {
		return "", err
	}
	return lang.Resolve(), nil
}
