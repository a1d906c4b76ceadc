package notifier

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/good-yellow-bee/flare/internal/models"
)

// DefaultTemplate renders the fallback notification message when a rule
// supplies no text of its own.
const DefaultTemplate = "{{.Environment}}: {{.Severity}} alert for {{join .Service \",\"}} - {{.Resource}} is {{.Event}}"

var templateFuncs = template.FuncMap{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"join":  func(list []string, sep string) string { return strings.Join(list, sep) },
}

// RenderMessage renders a notification message template against the alert.
// An empty template falls back to DefaultTemplate.
func RenderMessage(text string, a *models.Alert) (string, error) {
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("message").Funcs(templateFuncs).Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse message template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, a); err != nil {
		return "", fmt.Errorf("render message template: %w", err)
	}
	return buf.String(), nil
}
