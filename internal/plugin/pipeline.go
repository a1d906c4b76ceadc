package plugin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/alarm"
	"github.com/good-yellow-bee/flare/internal/alerting"
	"github.com/good-yellow-bee/flare/internal/metrics"
	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// Pipeline runs alerts through the plugin chain around the classifier. The
// alert is persisted exactly once, by the classifier; pre-receive plugins
// run before the write and can abort it, post-receive plugins run after it
// and can never roll it back.
type Pipeline struct {
	registry   *Registry
	classifier *alerting.Classifier
	alerts     storage.AlertRepository
	model      *alarm.Model
	logger     *zap.Logger

	// RaiseOnPluginError makes non-signal plugin failures fatal instead of
	// logged and skipped.
	RaiseOnPluginError bool
	// SkipPostReceive suppresses the post-receive stage entirely.
	SkipPostReceive bool
}

// NewPipeline wires the plugin chain around the classifier.
func NewPipeline(registry *Registry, classifier *alerting.Classifier, alerts storage.AlertRepository, model *alarm.Model, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		registry:   registry,
		classifier: classifier,
		alerts:     alerts,
		model:      model,
		logger:     logger,
	}
}

// ProcessAlert runs one receipt end to end: pre-receive chain, classify and
// persist, post-receive chain. A signal from a pre-receive plugin aborts
// everything with the matching outcome and nothing is written. A suppressed
// alert skips the remaining pre-receive plugins but is still persisted.
func (p *Pipeline) ProcessAlert(ctx context.Context, a *models.Alert) (*Outcome, error) {
	routed := p.registry.Routing(a)

	for _, plug := range routed {
		if p.model.IsSuppressed(a.Status) {
			break
		}
		modified, err := plug.PreReceive(ctx, a)
		if errors.Is(err, ErrNotImplemented) {
			continue
		}
		if err != nil {
			if outcome := signalOutcome(err); outcome != nil {
				p.logger.Info("alert diverted by pre-receive plugin",
					zap.String("plugin", plug.Name()),
					zap.String("outcome", outcome.Kind.String()),
					zap.String("reason", outcome.Reason))
				return outcome, nil
			}
			metrics.PluginErrorsTotal.WithLabelValues(plug.Name(), "pre_receive").Inc()
			if p.RaiseOnPluginError {
				return nil, fmt.Errorf("plugin %s pre-receive: %w", plug.Name(), err)
			}
			p.logger.Error("pre-receive plugin failed",
				zap.String("plugin", plug.Name()), zap.Error(err))
			continue
		}
		if modified == nil {
			return nil, fmt.Errorf("plugin %s pre-receive returned no alert", plug.Name())
		}
		a = modified
	}

	result, err := p.classifier.Process(ctx, a)
	if err != nil {
		return nil, err
	}
	alert := result.Alert

	if !p.SkipPostReceive {
		alert = p.postReceive(ctx, routed, alert)
	}
	return &Outcome{Kind: Processed, Alert: alert}, nil
}

// postReceive runs the post-receive chain with per-plugin isolation. When a
// plugin rewrites the alert, empty attribute values are pruned and the tags
// and attributes are persisted again; everything else on the stored record
// stays as the classifier wrote it.
func (p *Pipeline) postReceive(ctx context.Context, routed []Plugin, alert *models.Alert) *models.Alert {
	rewritten := false
	for _, plug := range routed {
		if p.model.IsSuppressed(alert.Status) {
			break
		}
		modified, err := plug.PostReceive(ctx, alert)
		if errors.Is(err, ErrNotImplemented) {
			continue
		}
		if err != nil {
			metrics.PluginErrorsTotal.WithLabelValues(plug.Name(), "post_receive").Inc()
			p.logger.Error("post-receive plugin failed",
				zap.String("plugin", plug.Name()), zap.Error(err))
			continue
		}
		if modified != nil {
			alert = modified
			rewritten = true
		}
	}

	if rewritten {
		for key, value := range alert.Attributes {
			if value == "" {
				delete(alert.Attributes, key)
			}
		}
		if _, err := p.alerts.UpdateAttributes(ctx, alert.ID, alert.Attributes); err != nil {
			p.logger.Error("persist plugin attributes failed",
				zap.String("id", alert.ID), zap.Error(err))
		}
		if _, err := p.alerts.Tag(ctx, alert.ID, alert.Tags); err != nil {
			p.logger.Error("persist plugin tags failed",
				zap.String("id", alert.ID), zap.Error(err))
		}
	}
	return alert
}

// ProcessStatusChange sets an alert's status through the status-change
// chain. A RejectError from any plugin vetoes the change.
func (p *Pipeline) ProcessStatusChange(ctx context.Context, id, status, text string, timeout int) (*models.Alert, error) {
	alert, err := p.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, plug := range p.registry.Routing(alert) {
		modified, newStatus, newText, err := plug.StatusChange(ctx, alert, status, text)
		if errors.Is(err, ErrNotImplemented) {
			continue
		}
		if err != nil {
			var reject *RejectError
			if errors.As(err, &reject) {
				return nil, fmt.Errorf("status change vetoed by plugin %s: %s", plug.Name(), reject.Reason)
			}
			if p.RaiseOnPluginError {
				return nil, fmt.Errorf("plugin %s status-change: %w", plug.Name(), err)
			}
			p.logger.Error("status-change plugin failed",
				zap.String("plugin", plug.Name()), zap.Error(err))
			continue
		}
		if modified != nil {
			alert = modified
		}
		if newStatus != "" {
			status = newStatus
		}
		if newText != "" {
			text = newText
		}
	}

	history := models.History{
		ID:         alert.ID,
		Event:      alert.Event,
		Status:     status,
		Text:       text,
		ChangeType: models.ChangeStatus,
		UpdateTime: time.Now().UTC(),
	}
	updated, err := p.alerts.SetStatus(ctx, alert.ID, status, timeout, history)
	if err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	if !updated {
		return nil, storage.ErrNotFound
	}
	return p.alerts.GetByID(ctx, alert.ID)
}

// ProcessAction applies an operator action through the take-action chain and
// the state machine. A RejectError from any plugin vetoes the action.
func (p *Pipeline) ProcessAction(ctx context.Context, id, action, text string, timeout int) (*models.Alert, error) {
	alert, err := p.alerts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	for _, plug := range p.registry.Routing(alert) {
		modified, newAction, newText, err := plug.TakeAction(ctx, alert, action, text)
		if errors.Is(err, ErrNotImplemented) {
			continue
		}
		if err != nil {
			var reject *RejectError
			if errors.As(err, &reject) {
				return nil, fmt.Errorf("action vetoed by plugin %s: %s", plug.Name(), reject.Reason)
			}
			if p.RaiseOnPluginError {
				return nil, fmt.Errorf("plugin %s take-action: %w", plug.Name(), err)
			}
			p.logger.Error("take-action plugin failed",
				zap.String("plugin", plug.Name()), zap.Error(err))
			continue
		}
		if modified != nil {
			alert = modified
		}
		if newAction != "" {
			action = newAction
		}
		if newText != "" {
			text = newText
		}
	}

	prevSeverity, curSeverity := alert.PreviousSeverity, alert.Severity
	if action == alarm.ActionEscalate {
		next, ok := p.model.NextMoreSevere(alert.Severity)
		if !ok {
			return nil, models.NewValidationError("cannot escalate severity beyond %q", alert.Severity)
		}
		prevSeverity, curSeverity = alert.Severity, next
	}
	severity, status := p.model.Transition(
		prevSeverity, curSeverity, alert.Status, alert.Status, action)

	history := models.History{
		ID:         alert.ID,
		Event:      alert.Event,
		Status:     status,
		Text:       text,
		ChangeType: models.ChangeAction,
		UpdateTime: time.Now().UTC(),
	}
	if severity != alert.Severity {
		history.Severity = severity
	}
	updated, err := p.alerts.SetSeverityAndStatus(ctx, alert.ID, severity, status, timeout, history)
	if err != nil {
		return nil, fmt.Errorf("apply action: %w", err)
	}
	if !updated {
		return nil, storage.ErrNotFound
	}
	return p.alerts.GetByID(ctx, alert.ID)
}

// ProcessDelete deletes an alert unless a plugin vetoes it. Any non-veto
// plugin failure is logged and never blocks the delete.
func (p *Pipeline) ProcessDelete(ctx context.Context, id string) error {
	alert, err := p.alerts.GetByID(ctx, id)
	if err != nil {
		return err
	}

	for _, plug := range p.registry.Routing(alert) {
		err := plug.Delete(ctx, alert)
		if errors.Is(err, ErrNotImplemented) {
			continue
		}
		if err != nil {
			var reject *RejectError
			if errors.As(err, &reject) {
				return fmt.Errorf("delete vetoed by plugin %s: %s", plug.Name(), reject.Reason)
			}
			p.logger.Error("delete plugin failed",
				zap.String("plugin", plug.Name()), zap.Error(err))
		}
	}

	deleted, err := p.alerts.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if !deleted {
		return storage.ErrNotFound
	}
	return nil
}

// signalOutcome maps a plugin signal error to its outcome, or nil when the
// error is an ordinary failure.
func signalOutcome(err error) *Outcome {
	var reject *RejectError
	if errors.As(err, &reject) {
		return &Outcome{Kind: Rejected, Reason: reject.Reason}
	}
	var rateLimit *RateLimitError
	if errors.As(err, &rateLimit) {
		return &Outcome{Kind: RateLimited, Reason: rateLimit.Reason}
	}
	var heartbeat *HeartbeatError
	if errors.As(err, &heartbeat) {
		return &Outcome{Kind: ConvertedToHeartbeat, HeartbeatID: heartbeat.ID, Reason: heartbeat.Error()}
	}
	var blackout *BlackoutError
	if errors.As(err, &blackout) {
		return &Outcome{Kind: InBlackout, Reason: blackout.Error()}
	}
	var loop *LoopError
	if errors.As(err, &loop) {
		return &Outcome{Kind: LoopDetected, Reason: loop.Error()}
	}
	return nil
}
