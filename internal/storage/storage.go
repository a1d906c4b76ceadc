// Package storage provides the store contract consumed by the alert engine
// and a SQLite implementation of it.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/good-yellow-bee/flare/internal/models"
)

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Alerts() AlertRepository
	Rules() RuleRepository
	OnCalls() OnCallRepository
	Groups() GroupRepository
	Blackouts() BlackoutRepository
}

// HousekeepingCandidate is an alert due for a timeout-driven status change.
type HousekeepingCandidate struct {
	ID            string
	Event         string
	Status        string
	LastReceiveID string
}

// AlertRepository defines operations for alert records and their append-only
// history. The identity-key read-modify-write (FindByIdentity followed by
// Create/DedupUpdate/CorrelateUpdate) must be wrapped in the repository's
// per-key lock by the caller so same-key receipts never lose updates.
type AlertRepository interface {
	// FindByIdentity returns the current record for the identity key
	// (environment, resource, event-or-correlated-event), or nil when no
	// record exists. The correlate list extends the match to sibling events
	// of the same incident.
	FindByIdentity(ctx context.Context, environment, resource, event string, correlate []string) (*models.Alert, error)
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	List(ctx context.Context, environment string, limit int) ([]*models.Alert, error)

	Create(ctx context.Context, alert *models.Alert) (*models.Alert, error)
	DedupUpdate(ctx context.Context, alert *models.Alert, history *models.History) (*models.Alert, error)
	CorrelateUpdate(ctx context.Context, alert *models.Alert, history []models.History) (*models.Alert, error)

	SetStatus(ctx context.Context, id, status string, timeout int, history models.History) (bool, error)
	SetSeverityAndStatus(ctx context.Context, id, severity, status string, timeout int, history models.History) (bool, error)
	Tag(ctx context.Context, id string, tags []string) (bool, error)
	Untag(ctx context.Context, id string, tags []string) (bool, error)
	UpdateAttributes(ctx context.Context, id string, attributes map[string]string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)

	// HousekeepingCandidates returns alerts whose last receive time plus
	// timeout is in the past: non-closed alerts due to expire, and shelved
	// alerts due to be unshelved after shelveTimeout.
	HousekeepingCandidates(ctx context.Context, now time.Time, shelveTimeout time.Duration) (expired, unshelved []HousekeepingCandidate, err error)

	// KeyLock returns the serialization point for an identity key. Callers
	// hold it across the find/classify/persist sequence; distinct keys never
	// block each other.
	KeyLock(environment, resource, event string) *KeyedLockHandle
}

// RuleRepository defines CRUD and match-query operations for notification
// and escalation rules. FindAllActive evaluation happens in the alerting
// package; the repository only serves candidates.
type RuleRepository interface {
	CreateNotificationRule(ctx context.Context, rule *models.NotificationRule) error
	GetNotificationRule(ctx context.Context, id string) (*models.NotificationRule, error)
	ListNotificationRules(ctx context.Context) ([]*models.NotificationRule, error)
	UpdateNotificationRule(ctx context.Context, rule *models.NotificationRule) error
	DeleteNotificationRule(ctx context.Context, id string) error

	CreateEscalationRule(ctx context.Context, rule *models.EscalationRule) error
	GetEscalationRule(ctx context.Context, id string) (*models.EscalationRule, error)
	ListEscalationRules(ctx context.Context) ([]*models.EscalationRule, error)
	UpdateEscalationRule(ctx context.Context, rule *models.EscalationRule) error
	DeleteEscalationRule(ctx context.Context, id string) error
}

// OnCallRepository defines operations for on-call schedules.
type OnCallRepository interface {
	Create(ctx context.Context, onCall *models.OnCall) error
	GetByID(ctx context.Context, id string) (*models.OnCall, error)
	List(ctx context.Context) ([]*models.OnCall, error)
	Update(ctx context.Context, onCall *models.OnCall) error
	Delete(ctx context.Context, id string) error
}

// GroupRepository resolves group membership for the on-call resolver. It is
// queried fresh on every resolution; implementations must not cache staleness
// into results.
type GroupRepository interface {
	Members(ctx context.Context, groupID string) ([]models.UserRef, error)
	AddMember(ctx context.Context, groupID string, user models.UserRef) error
	RemoveMember(ctx context.Context, groupID, userID string) error
}

// BlackoutRepository defines operations for suppression windows.
type BlackoutRepository interface {
	Create(ctx context.Context, blackout *models.Blackout) error
	List(ctx context.Context) ([]*models.Blackout, error)
	Delete(ctx context.Context, id string) error
	// FindActive returns blackouts whose window contains now.
	FindActive(ctx context.Context, now time.Time) ([]*models.Blackout, error)
}
