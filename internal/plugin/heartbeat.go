package plugin

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/flare/internal/models"
)

// HeartbeatEventType marks a receipt as a liveness heartbeat rather than an
// alert.
const HeartbeatEventType = "Heartbeat"

// Heartbeat records a received liveness heartbeat from an origin.
type Heartbeat struct {
	ID       string
	Origin   string
	Tags     []string
	Timeout  int
	LastSeen time.Time
}

// HeartbeatHandler diverts heartbeat receipts out of the alert pipeline into
// an in-memory liveness table keyed by origin. A heartbeat keeps a stable id
// across receipts from the same origin.
type HeartbeatHandler struct {
	Base

	mu         sync.RWMutex
	heartbeats map[string]*Heartbeat
}

// NewHeartbeatHandler returns a handler with an empty liveness table.
func NewHeartbeatHandler() *HeartbeatHandler {
	return &HeartbeatHandler{heartbeats: make(map[string]*Heartbeat)}
}

func (p *HeartbeatHandler) Name() string { return "heartbeat" }

func (p *HeartbeatHandler) PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	if a.EventType != HeartbeatEventType {
		return a, nil
	}

	p.mu.Lock()
	hb, ok := p.heartbeats[a.Origin]
	if !ok {
		hb = &Heartbeat{ID: uuid.New().String(), Origin: a.Origin}
		p.heartbeats[a.Origin] = hb
	}
	hb.Tags = a.Tags
	hb.Timeout = a.Timeout
	hb.LastSeen = time.Now().UTC()
	p.mu.Unlock()

	return nil, &HeartbeatError{ID: hb.ID}
}

// All returns a snapshot of the known heartbeats.
func (p *HeartbeatHandler) All() []Heartbeat {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Heartbeat, 0, len(p.heartbeats))
	for _, hb := range p.heartbeats {
		out = append(out, *hb)
	}
	return out
}

// Stale returns heartbeats not seen within their own timeout, relative to
// now. A zero timeout means the heartbeat never goes stale.
func (p *HeartbeatHandler) Stale(now time.Time) []Heartbeat {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var stale []Heartbeat
	for _, hb := range p.heartbeats {
		if hb.Timeout <= 0 {
			continue
		}
		if now.Sub(hb.LastSeen) > time.Duration(hb.Timeout)*time.Second {
			stale = append(stale, *hb)
		}
	}
	return stale
}
