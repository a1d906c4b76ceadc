package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// Matches reports whether a rule predicate applies to the alert at the given
// time. Environment must match exactly; every other populated field narrows
// the predicate, and empty fields are wildcards.
func Matches(p *models.RulePredicate, a *models.Alert, now time.Time) bool {
	if p.Environment != a.Environment {
		return false
	}
	if p.Resource != "" && p.Resource != a.Resource {
		return false
	}
	if p.Event != "" && p.Event != a.Event {
		return false
	}
	if p.Group != "" && p.Group != a.Group {
		return false
	}
	if len(p.Service) > 0 && !intersects(p.Service, a.Service) {
		return false
	}
	if len(p.Tags) > 0 && !intersects(p.Tags, a.Tags) {
		return false
	}
	if p.Customer != "" && p.Customer != a.Customer {
		return false
	}
	if !severityMatches(p, a) {
		return false
	}
	if !models.MatchesDay(p.Days, now) {
		return false
	}
	if !models.InClockWindow(p.StartTime, p.EndTime, now) {
		return false
	}
	return true
}

// severityMatches checks either the plain severity set or, when enabled, the
// advanced (from, to) transition predicates. Any single transition predicate
// matching is enough.
func severityMatches(p *models.RulePredicate, a *models.Alert) bool {
	if p.UseAdvancedSeverity {
		if len(p.AdvancedSeverity) == 0 {
			return true
		}
		for _, as := range p.AdvancedSeverity {
			if as.Matches(a.PreviousSeverity, a.Severity) {
				return true
			}
		}
		return false
	}
	if len(p.Severity) == 0 {
		return true
	}
	for _, s := range p.Severity {
		if s == a.Severity {
			return true
		}
	}
	return false
}

func intersects(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}

// Matcher evaluates stored rules against alerts.
type Matcher struct {
	rules storage.RuleRepository
}

// NewMatcher creates a matcher over the given rule repository.
func NewMatcher(rules storage.RuleRepository) *Matcher {
	return &Matcher{rules: rules}
}

// NotificationRulesFor returns every active notification rule matching the
// alert. Duplicate receipts never notify: an alert with a non-zero duplicate
// count or the repeat flag set matches no notification rule at all. The full
// match set is returned; fan-out across channels is intentional.
func (m *Matcher) NotificationRulesFor(ctx context.Context, a *models.Alert, now time.Time) ([]*models.NotificationRule, error) {
	if a.DuplicateCount > 0 || a.Repeat {
		return nil, nil
	}
	all, err := m.rules.ListNotificationRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notification rules: %w", err)
	}
	var matched []*models.NotificationRule
	for _, rule := range all {
		if rule.Active && Matches(&rule.RulePredicate, a, now) {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

// EscalationRulesFor returns every active escalation rule matching the alert.
func (m *Matcher) EscalationRulesFor(ctx context.Context, a *models.Alert, now time.Time) ([]*models.EscalationRule, error) {
	all, err := m.rules.ListEscalationRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("list escalation rules: %w", err)
	}
	var matched []*models.EscalationRule
	for _, rule := range all {
		if rule.Active && Matches(&rule.RulePredicate, a, now) {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}
