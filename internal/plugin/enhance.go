package plugin

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/flare/internal/models"
)

// EnhanceRule adds attributes to alerts matching an expr-lang predicate.
type EnhanceRule struct {
	// When is an expr-lang boolean expression over the alert fields
	// resource, event, environment, severity, group, origin, value, text,
	// service, tags and attributes.
	When string `yaml:"when"`
	// Attributes are merged into the alert when the predicate holds.
	Attributes map[string]string `yaml:"attributes"`
}

type compiledEnhanceRule struct {
	rule    EnhanceRule
	program *vm.Program
}

// Enhancer rewrites alert attributes during pre-receive based on compiled
// predicates. Typical use is tagging alerts with runbook links or ownership
// derived from their fields.
type Enhancer struct {
	Base
	rules []compiledEnhanceRule
}

// NewEnhancer compiles the rule predicates. A rule that fails to compile
// fails construction; there is no partial registration.
func NewEnhancer(rules []EnhanceRule) (*Enhancer, error) {
	e := &Enhancer{}
	for _, rule := range rules {
		program, err := expr.Compile(rule.When,
			expr.Env(sampleAlertEnv()),
			expr.AsBool(),
		)
		if err != nil {
			return nil, fmt.Errorf("compile enhance predicate %q: %w", rule.When, err)
		}
		e.rules = append(e.rules, compiledEnhanceRule{rule: rule, program: program})
	}
	return e, nil
}

func (e *Enhancer) Name() string { return "enhance" }

func (e *Enhancer) PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	env := alertEnv(a)
	for _, cr := range e.rules {
		result, err := expr.Run(cr.program, env)
		if err != nil {
			return nil, fmt.Errorf("evaluate enhance predicate %q: %w", cr.rule.When, err)
		}
		matched, ok := result.(bool)
		if !ok || !matched {
			continue
		}
		if a.Attributes == nil {
			a.Attributes = make(map[string]string)
		}
		for key, value := range cr.rule.Attributes {
			a.Attributes[key] = value
		}
	}
	return a, nil
}

// sampleAlertEnv is the typed environment used for compile-time checking.
func sampleAlertEnv() map[string]any {
	return map[string]any{
		"resource":    "",
		"event":       "",
		"environment": "",
		"severity":    "",
		"group":       "",
		"origin":      "",
		"value":       "",
		"text":        "",
		"service":     []string{},
		"tags":        []string{},
		"attributes":  map[string]string{},
	}
}

func alertEnv(a *models.Alert) map[string]any {
	service, tags, attributes := a.Service, a.Tags, a.Attributes
	if service == nil {
		service = []string{}
	}
	if tags == nil {
		tags = []string{}
	}
	if attributes == nil {
		attributes = map[string]string{}
	}
	return map[string]any{
		"resource":    a.Resource,
		"event":       a.Event,
		"environment": a.Environment,
		"severity":    a.Severity,
		"group":       a.Group,
		"origin":      a.Origin,
		"value":       a.Value,
		"text":        a.Text,
		"service":     service,
		"tags":        tags,
		"attributes":  attributes,
	}
}
