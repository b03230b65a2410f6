// Package prompt renders model prompts from templates with named slots.
package prompt

import (
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

var ErrMissingSlot = errors.New("missing prompt slot")

// Template is an f-string style template. Slots are written as {name};
// literal braces are doubled.
type Template struct {
	name     string
	slots    []string
	defaults map[string]string
	tmpl     prompts.PromptTemplate
}

// New declares a template with its slots. Slots that have an entry in
// defaults may be omitted at render time.
func New(name, text string, slots []string, defaults map[string]string) Template {
	partials := make(map[string]any, len(defaults))
	copied := make(map[string]string, len(defaults))
	for key, value := range defaults {
		partials[key] = value
		copied[key] = value
	}
	inputs := make([]string, 0, len(slots))
	for _, slot := range slots {
		if _, ok := defaults[slot]; !ok {
			inputs = append(inputs, slot)
		}
	}
	return Template{
		name:     name,
		slots:    append([]string(nil), slots...),
		defaults: copied,
		tmpl: prompts.PromptTemplate{
			Template:         text,
			TemplateFormat:   prompts.TemplateFormatFString,
			InputVariables:   inputs,
			PartialVariables: partials,
		},
	}
}

// Render fills the template. Every slot without a default must be supplied.
func (t Template) Render(values map[string]string) (string, error) {
	resolved := make(map[string]any, len(values))
	for key, value := range values {
		resolved[key] = value
	}
	for _, slot := range t.slots {
		if _, ok := resolved[slot]; ok {
			continue
		}
		if _, ok := t.defaults[slot]; ok {
			continue
		}
		return "", fmt.Errorf("%w %q in template %s", ErrMissingSlot, slot, t.name)
	}

	out, err := t.tmpl.Format(resolved)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", t.name, err)
	}
	return out, nil
}
