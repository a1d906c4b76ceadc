package alerting

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/alarm"
	"github.com/good-yellow-bee/flare/internal/metrics"
	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// ActionTaker applies an operator action to a stored alert, running the
// take-action plugin chain before the transition.
type ActionTaker interface {
	ProcessAction(ctx context.Context, id, action, text string, timeout int) (*models.Alert, error)
}

// Escalator periodically bumps the severity of alerts that stay open past an
// escalation rule's deadline. An alert moves at most one severity step per
// sweep; while its deadline stays expired, later sweeps keep stepping it
// until it reaches the most urgent level.
type Escalator struct {
	alerts  storage.AlertRepository
	matcher *Matcher
	actions ActionTaker
	logger  *zap.Logger
}

// NewEscalator creates an escalation sweep over the given repositories.
// Escalations go through the action chain so plugins see them like any
// operator action.
func NewEscalator(alerts storage.AlertRepository, matcher *Matcher, actions ActionTaker, logger *zap.Logger) *Escalator {
	return &Escalator{
		alerts:  alerts,
		matcher: matcher,
		actions: actions,
		logger:  logger,
	}
}

// Sweep escalates every open alert with an expired escalation deadline and
// returns the ids of the alerts it escalated.
func (e *Escalator) Sweep(ctx context.Context, now time.Time) ([]string, error) {
	open, err := e.alerts.List(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}

	var escalated []string
	for _, a := range open {
		if a.Status != alarm.StatusOpen {
			continue
		}
		rules, err := e.matcher.EscalationRulesFor(ctx, a, now)
		if err != nil {
			return escalated, err
		}
		due := false
		for _, rule := range rules {
			if now.After(a.LastReceiveTime.Add(rule.Time.Duration())) {
				due = true
				break
			}
		}
		if !due {
			continue
		}
		if err := e.escalate(ctx, a); err != nil {
			e.logger.Error("escalation failed", zap.String("id", a.ID), zap.Error(err))
			continue
		}
		escalated = append(escalated, a.ID)
		metrics.AlertsEscalated.Inc()
	}
	return escalated, nil
}

func (e *Escalator) escalate(ctx context.Context, a *models.Alert) error {
	updated, err := e.actions.ProcessAction(ctx, a.ID, alarm.ActionEscalate, "alert severity escalated", a.Timeout)
	if err != nil {
		return err
	}
	e.logger.Info("alert escalated",
		zap.String("id", a.ID),
		zap.String("event", a.Event),
		zap.String("from", a.Severity),
		zap.String("to", updated.Severity))
	return nil
}
