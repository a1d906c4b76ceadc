package plugin

import (
	"context"
	"fmt"
	"time"

	"github.com/good-yellow-bee/flare/internal/alarm"
	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// BlackoutHandler suppresses alerts that fall inside an active blackout
// window. In notification-blackout mode the alert is still recorded with
// status blackout so it resurfaces when the window ends; otherwise the
// receipt is dropped outright.
type BlackoutHandler struct {
	Base
	blackouts storage.BlackoutRepository

	// NotificationBlackout records suppressed alerts instead of dropping
	// them.
	NotificationBlackout bool
	// AcceptSeverities pass through blackout windows untouched.
	AcceptSeverities []string
}

// NewBlackoutHandler creates the handler over the blackout store.
func NewBlackoutHandler(blackouts storage.BlackoutRepository) *BlackoutHandler {
	return &BlackoutHandler{
		blackouts:            blackouts,
		NotificationBlackout: true,
	}
}

func (p *BlackoutHandler) Name() string { return "blackout" }

func (p *BlackoutHandler) PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	for _, sev := range p.AcceptSeverities {
		if sev == a.Severity {
			return a, nil
		}
	}

	now := time.Now().UTC()
	active, err := p.blackouts.FindActive(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("find active blackouts: %w", err)
	}
	for _, b := range active {
		if !b.Covers(a, now) {
			continue
		}
		if p.NotificationBlackout {
			a.Status = alarm.StatusBlackout
			return a, nil
		}
		return nil, &BlackoutError{}
	}
	return a, nil
}
