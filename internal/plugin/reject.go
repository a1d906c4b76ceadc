package plugin

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/good-yellow-bee/flare/internal/models"
)

// RejectPolicy blocks alerts that violate receive policy: a blacklisted
// origin, an environment outside the allowed set, or a missing service.
type RejectPolicy struct {
	Base
	originBlacklist []*regexp.Regexp
	allowedEnvs     []*regexp.Regexp
	allowedNames    []string
}

// NewRejectPolicy compiles the origin blacklist and allowed-environment
// patterns. Patterns are anchored-prefix regular expressions.
func NewRejectPolicy(originBlacklist, allowedEnvironments []string) (*RejectPolicy, error) {
	p := &RejectPolicy{allowedNames: allowedEnvironments}
	for _, pattern := range originBlacklist {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("origin blacklist pattern %q: %w", pattern, err)
		}
		p.originBlacklist = append(p.originBlacklist, re)
	}
	for _, pattern := range allowedEnvironments {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("allowed environment pattern %q: %w", pattern, err)
		}
		p.allowedEnvs = append(p.allowedEnvs, re)
	}
	return p, nil
}

func (p *RejectPolicy) Name() string { return "reject" }

func (p *RejectPolicy) PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	for _, re := range p.originBlacklist {
		if re.MatchString(a.Origin) {
			return nil, &RejectError{Reason: fmt.Sprintf("alert origin %q has been blacklisted", a.Origin)}
		}
	}
	allowed := false
	for _, re := range p.allowedEnvs {
		if re.MatchString(a.Environment) {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, &RejectError{Reason: fmt.Sprintf(
			"alert environment does not match one of %s", strings.Join(p.allowedNames, ", "))}
	}
	if len(a.Service) == 0 {
		return nil, &RejectError{Reason: "alert must define a service"}
	}
	return a, nil
}
