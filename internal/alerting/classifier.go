// Package alerting implements the receipt-time decision logic: the
// duplicate/correlation classifier, the rule matcher shared by notification
// and escalation rules, and the periodic escalation and housekeeping sweeps.
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

// Classification outcomes.
const (
	OutcomeCreated      = "created"
	OutcomeDeduplicated = "deduplicated"
	OutcomeCorrelated   = "correlated"
)

// Result is the outcome of classifying one receipt: the persisted alert
// record and which of the three paths was taken.
type Result struct {
	Outcome string
	Alert   *models.Alert
}

// Classifier decides, for each incoming receipt, whether it creates a new
// alert, deduplicates an existing one, or correlates against one, and
// persists the outcome. The read-modify-write for one identity key is
// serialized by the repository's key lock, so concurrent receipts of the
// same alert never lose updates.
type Classifier struct {
	alerts storage.AlertRepository
	model  *alarm.Model
	logger *zap.Logger

	// HistoryOnValueChange records a history entry for duplicate receipts
	// whose value changed while the status did not.
	HistoryOnValueChange bool
}

// NewClassifier creates a classifier over the given alert repository and
// alarm model.
func NewClassifier(alerts storage.AlertRepository, model *alarm.Model, logger *zap.Logger) *Classifier {
	return &Classifier{
		alerts: alerts,
		model:  model,
		logger: logger,
	}
}

// Process classifies and persists one receipt. The returned alert is the
// stored record after the write: for dedup and correlate paths it carries
// the stored row's id, with the incoming receipt's id in lastReceiveId.
func (c *Classifier) Process(ctx context.Context, incoming *models.Alert) (*Result, error) {
	if !c.model.IsValidSeverity(incoming.Severity) {
		return nil, models.NewValidationError("unknown severity %q", incoming.Severity)
	}

	lock := c.alerts.KeyLock(incoming.Environment, incoming.Resource, incoming.Event)
	lock.Lock()
	defer lock.Unlock()

	existing, err := c.alerts.FindByIdentity(ctx, incoming.Environment, incoming.Resource, incoming.Event, incoming.Correlate)
	if err != nil {
		return nil, fmt.Errorf("find by identity: %w", err)
	}

	now := time.Now().UTC()
	var result *Result
	switch {
	case existing == nil:
		result, err = c.create(ctx, incoming, now)
	case existing.Event == incoming.Event && existing.Severity == incoming.Severity:
		result, err = c.deduplicate(ctx, incoming, existing, now)
	default:
		result, err = c.correlate(ctx, incoming, existing, now)
	}
	if err != nil {
		return nil, err
	}
	metrics.ClassificationsTotal.WithLabelValues(result.Outcome).Inc()
	return result, nil
}

func (c *Classifier) create(ctx context.Context, a *models.Alert, now time.Time) (*Result, error) {
	if a.Status == "" || a.Status == c.model.DefaultStatus {
		_, a.Status = c.model.Transition(c.model.DefaultPreviousSeverity, a.Severity, "", "", "")
	}
	a.DuplicateCount = 0
	a.Repeat = false
	a.PreviousSeverity = c.model.DefaultPreviousSeverity
	a.TrendIndication = c.model.Trend(c.model.DefaultPreviousSeverity, a.Severity)
	a.ReceiveTime = now
	a.LastReceiveID = a.ID
	a.LastReceiveTime = now

	a.History = []models.History{
		models.SeverityChange(a, a.Text, a.CreateTime),
		models.StatusChange(a, "new alert status change", a.CreateTime),
	}

	stored, err := c.alerts.Create(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}
	c.logger.Info("alert created",
		zap.String("id", stored.ID),
		zap.String("event", stored.Event),
		zap.String("resource", stored.Resource),
		zap.String("severity", stored.Severity),
		zap.String("status", stored.Status))
	return &Result{Outcome: OutcomeCreated, Alert: stored}, nil
}

func (c *Classifier) deduplicate(ctx context.Context, incoming, existing *models.Alert, now time.Time) (*Result, error) {
	previousStatus := existing.Status
	previousValue := existing.Value

	_, incoming.Status = c.model.Transition(
		incoming.Severity, incoming.Severity, previousStatus, incoming.Status, "")

	receiptID := incoming.ID
	incoming.ID = existing.ID
	incoming.Repeat = true
	incoming.ReceiveTime = now
	incoming.LastReceiveID = receiptID
	incoming.LastReceiveTime = now

	// One history entry at most per duplicate receipt; a status change
	// outranks a value change.
	var history *models.History
	switch {
	case incoming.Status != previousStatus:
		h := models.History{
			ID:         receiptID,
			Event:      incoming.Event,
			Status:     incoming.Status,
			Text:       "duplicate alert with status change",
			ChangeType: models.ChangeStatus,
			UpdateTime: incoming.CreateTime,
		}
		history = &h
	case c.HistoryOnValueChange && incoming.Value != previousValue:
		h := models.History{
			ID:         receiptID,
			Event:      incoming.Event,
			Value:      incoming.Value,
			Text:       "duplicate alert with value change",
			ChangeType: models.ChangeValue,
			UpdateTime: incoming.CreateTime,
		}
		history = &h
	}

	stored, err := c.alerts.DedupUpdate(ctx, incoming, history)
	if err != nil {
		return nil, fmt.Errorf("dedup update: %w", err)
	}
	c.logger.Debug("alert deduplicated",
		zap.String("id", stored.ID),
		zap.String("event", stored.Event),
		zap.Int("duplicateCount", stored.DuplicateCount))
	return &Result{Outcome: OutcomeDeduplicated, Alert: stored}, nil
}

func (c *Classifier) correlate(ctx context.Context, incoming, existing *models.Alert, now time.Time) (*Result, error) {
	previousStatus := existing.Status
	incoming.PreviousSeverity = existing.Severity
	incoming.TrendIndication = c.model.Trend(incoming.PreviousSeverity, incoming.Severity)

	_, incoming.Status = c.model.Transition(
		incoming.PreviousSeverity, incoming.Severity, previousStatus, incoming.Status, "")

	receiptID := incoming.ID
	incoming.ID = existing.ID
	incoming.DuplicateCount = 0
	incoming.Repeat = false
	incoming.ReceiveTime = now
	incoming.LastReceiveID = receiptID
	incoming.LastReceiveTime = now

	history := []models.History{{
		ID:         receiptID,
		Event:      incoming.Event,
		Severity:   incoming.Severity,
		Value:      incoming.Value,
		Text:       incoming.Text,
		ChangeType: models.ChangeSeverity,
		UpdateTime: incoming.CreateTime,
	}}
	if incoming.Status != previousStatus {
		history = append(history, models.History{
			ID:         receiptID,
			Event:      incoming.Event,
			Status:     incoming.Status,
			Text:       "correlated alert status change",
			ChangeType: models.ChangeStatus,
			UpdateTime: incoming.CreateTime,
		})
	}

	stored, err := c.alerts.CorrelateUpdate(ctx, incoming, history)
	if err != nil {
		return nil, fmt.Errorf("correlate update: %w", err)
	}
	c.logger.Info("alert correlated",
		zap.String("id", stored.ID),
		zap.String("event", stored.Event),
		zap.String("severity", stored.Severity),
		zap.String("previousSeverity", stored.PreviousSeverity),
		zap.String("trend", stored.TrendIndication))
	return &Result{Outcome: OutcomeCorrelated, Alert: stored}, nil
}
