// Package recipe describes platform workflows as YAML documents and compiles
// them into workflow steps. Selectors and labels live in the documents so a
// markup change on a target site is a data change.
package recipe

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/nmthangdn2000/web-automation-tools/api/schemas"
)

// Recipe is one platform workflow.
type Recipe struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Params      []ParamSpec   `yaml:"params"`
	Anomalies   []AnomalySpec `yaml:"anomalies"`
	Steps       []StepSpec    `yaml:"steps"`
}

// ParamSpec declares an input parameter.
type ParamSpec struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Required    bool        `yaml:"required"`
	Default     interface{} `yaml:"default"`
}

// AnomalySpec declares an interstitial the run should watch for.
type AnomalySpec struct {
	Name   string    `yaml:"name"`
	Detect Condition `yaml:"detect"`
	// Recovery is wait_for_clear, dismiss, escalate or login. A login wall
	// escalates in headless sessions and waits for the operator otherwise.
	Recovery string        `yaml:"recovery"`
	Dismiss  string        `yaml:"dismiss"`
	MaxWait  time.Duration `yaml:"max_wait"`
	Alert    bool          `yaml:"alert"`
}

// Condition is a page predicate. Exactly one matcher should be set; Detail
// overrides the reported detail when the matcher yields none.
type Condition struct {
	Visible     string      `yaml:"visible"`
	Present     string      `yaml:"present"`
	Hidden      string      `yaml:"hidden"`
	URLContains string      `yaml:"url_contains"`
	Attr        *AttrMatch  `yaml:"attr"`
	Text        *TextMatch  `yaml:"text"`
	Any         []Condition `yaml:"any"`
	All         []Condition `yaml:"all"`
	Not         *Condition  `yaml:"not"`
	Detail      string      `yaml:"detail"`
}

// AttrMatch compares an attribute value.
type AttrMatch struct {
	Selector string `yaml:"selector"`
	Name     string `yaml:"name"`
	Value    string `yaml:"value"`
}

// TextMatch looks for a substring in an element's text.
type TextMatch struct {
	Selector string `yaml:"selector"`
	Contains string `yaml:"contains"`
}

// WaitSpec is the post-action classification.
type WaitSpec struct {
	Success *Condition    `yaml:"success"`
	Warning *Condition    `yaml:"warning"`
	Error   *Condition    `yaml:"error"`
	Pending *Condition    `yaml:"pending"`
	Timeout time.Duration `yaml:"timeout"`
}

// StepSpec is one recipe entry. A spec with nested Steps is a group: it is
// expanded when If holds, once per element of the ForEach parameter.
type StepSpec struct {
	Name    string     `yaml:"name"`
	If      string     `yaml:"if"`
	ForEach string     `yaml:"for_each"`
	Steps   []StepSpec `yaml:"steps"`

	Action    string        `yaml:"action"`
	Selector  string        `yaml:"selector"`
	Target    string        `yaml:"target"`
	URL       string        `yaml:"url"`
	WaitUntil string        `yaml:"wait_until"`
	Text      string        `yaml:"text"`
	Mode      string        `yaml:"mode"`
	Files     []string      `yaml:"files"`
	Checked   string        `yaml:"checked"`
	Attr      string        `yaml:"attr"`
	Match     string        `yaml:"match"`
	Prefix    string        `yaml:"prefix"`
	Into      string        `yaml:"into"`
	Decode    string        `yaml:"decode"`
	Key       string        `yaml:"key"`
	Modifiers []string      `yaml:"modifiers"`
	Script    string        `yaml:"script"`
	Container string        `yaml:"container"`
	Live      string        `yaml:"live"`
	Message   string        `yaml:"message"`
	Min       time.Duration `yaml:"min"`
	Max       time.Duration `yaml:"max"`
	Timeout   time.Duration `yaml:"timeout"`
	Direct    bool          `yaml:"direct"`
	Optional  bool          `yaml:"optional"`
	Required  bool          `yaml:"required"`
	When      *Condition    `yaml:"when"`

	Wait      *WaitSpec `yaml:"wait"`
	OnFailure string    `yaml:"on_failure"`
	Guard     bool      `yaml:"guard"`
	Reinvoke  bool      `yaml:"reinvoke_on_recovery"`
	Parallel  string    `yaml:"parallel"`
}

// Parse decodes a recipe document. Unknown keys are rejected.
func Parse(data []byte) (*Recipe, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var r Recipe
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("%w: decoding recipe: %v", schemas.ErrValidation, err)
	}
	if r.Name == "" {
		return nil, fmt.Errorf("%w: recipe has no name", schemas.ErrValidation)
	}
	if len(r.Steps) == 0 {
		return nil, fmt.Errorf("%w: recipe %q has no steps", schemas.ErrValidation, r.Name)
	}
	return &r, nil
}

// LoadFile reads and parses a recipe file.
func LoadFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading recipe %s: %w", path, err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", path, err)
	}
	return r, nil
}

// Param looks up a declared parameter.
func (r *Recipe) Param(name string) (ParamSpec, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p, true
		}
	}
	return ParamSpec{}, false
}
