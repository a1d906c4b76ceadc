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

// Housekeeper expires overdue alerts and un-shelves alerts whose shelve
// window has elapsed. Each sweep compares last_receive_time + timeout
// against now and appends one history entry per transitioned alert; running
// a sweep twice over the same state is a no-op the second time.
type Housekeeper struct {
	alerts storage.AlertRepository
	logger *zap.Logger

	// AlertTimeout re-seeds the timeout on every transitioned alert.
	AlertTimeout int
	// ShelveTimeout bounds how long an alert can stay shelved.
	ShelveTimeout time.Duration
}

// NewHousekeeper creates a housekeeping sweep with the given timeouts.
func NewHousekeeper(alerts storage.AlertRepository, alertTimeout int, shelveTimeout time.Duration, logger *zap.Logger) *Housekeeper {
	return &Housekeeper{
		alerts:        alerts,
		logger:        logger,
		AlertTimeout:  alertTimeout,
		ShelveTimeout: shelveTimeout,
	}
}

// Sweep runs one housekeeping pass and returns how many alerts were expired
// and how many were unshelved.
func (h *Housekeeper) Sweep(ctx context.Context, now time.Time) (expired, unshelved int, err error) {
	dueExpired, dueUnshelved, err := h.alerts.HousekeepingCandidates(ctx, now, h.ShelveTimeout)
	if err != nil {
		return 0, 0, fmt.Errorf("housekeeping candidates: %w", err)
	}

	for _, c := range dueExpired {
		if h.transition(ctx, c, alarm.StatusExpired, "expired after timeout", now) {
			expired++
			metrics.AlertsExpired.Inc()
		}
	}
	for _, c := range dueUnshelved {
		if h.transition(ctx, c, alarm.StatusOpen, "unshelved after timeout", now) {
			unshelved++
			metrics.AlertsUnshelved.Inc()
		}
	}
	return expired, unshelved, nil
}

func (h *Housekeeper) transition(ctx context.Context, c storage.HousekeepingCandidate, status, text string, now time.Time) bool {
	history := models.History{
		ID:         c.LastReceiveID,
		Event:      c.Event,
		Status:     status,
		Text:       text,
		ChangeType: models.ChangeStatus,
		UpdateTime: now,
	}
	updated, err := h.alerts.SetStatus(ctx, c.ID, status, h.AlertTimeout, history)
	if err != nil {
		h.logger.Error("housekeeping transition failed",
			zap.String("id", c.ID), zap.String("status", status), zap.Error(err))
		return false
	}
	if updated {
		h.logger.Debug("housekeeping transition",
			zap.String("id", c.ID), zap.String("event", c.Event), zap.String("status", status))
	}
	return updated
}
