// Package tmpl provides template rendering for user-configurable text such as
// merge commit messages.
package tmpl

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// shortSHA abbreviates an object ID to 12 characters.
func shortSHA(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}

// bullets renders one "- item" line per entry.
func bullets(items []string) string {
	var sb strings.Builder
	for i, it := range items {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("- ")
		sb.WriteString(it)
	}
	return sb.String()
}

var funcs = template.FuncMap{
	"join":    strings.Join,
	"short":   shortSHA,
	"bullets": bullets,
	"trim":    strings.TrimSpace,
}

func parse(tmpl string) (*template.Template, error) {
	t, err := template.New("").Funcs(funcs).Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}
	return t, nil
}

// Render executes a Go template string with the given data.
// Returns an error if the template is invalid or references undefined keys.
//
// Available template functions:
//   - join: Join string slice with separator (e.g., join .Files ", ")
//   - short: Abbreviate an object ID (e.g., short .Incoming)
//   - bullets: One "- item" line per slice entry
//   - trim: Strip surrounding whitespace
func Render(tmpl string, data any) (string, error) {
	t, err := parse(tmpl)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}

	return buf.String(), nil
}

// Validate reports template syntax errors without executing it.
func Validate(tmpl string) error {
	_, err := parse(tmpl)
	return err
}
