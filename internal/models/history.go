package models

import "time"

// History change types.
const (
	ChangeSeverity = "severity"
	ChangeStatus   = "status"
	ChangeValue    = "value"
	ChangeAction   = "action"
)

// History is an immutable append-only record of a single change to an alert.
// Entries are never mutated or removed except when the owning alert is
// deleted.
type History struct {
	ID         string    `json:"id"`
	Event      string    `json:"event"`
	Severity   string    `json:"severity,omitempty"`
	Status     string    `json:"status,omitempty"`
	Value      string    `json:"value,omitempty"`
	Text       string    `json:"text,omitempty"`
	ChangeType string    `json:"type"`
	UpdateTime time.Time `json:"updateTime"`
}

// SeverityChange creates a severity-change history entry.
func SeverityChange(a *Alert, text string, at time.Time) History {
	return History{
		ID:         a.ID,
		Event:      a.Event,
		Severity:   a.Severity,
		Value:      a.Value,
		Text:       text,
		ChangeType: ChangeSeverity,
		UpdateTime: at,
	}
}

// StatusChange creates a status-change history entry.
func StatusChange(a *Alert, text string, at time.Time) History {
	return History{
		ID:         a.ID,
		Event:      a.Event,
		Status:     a.Status,
		Text:       text,
		ChangeType: ChangeStatus,
		UpdateTime: at,
	}
}

// ValueChange creates a value-change history entry.
func ValueChange(a *Alert, text string, at time.Time) History {
	return History{
		ID:         a.ID,
		Event:      a.Event,
		Value:      a.Value,
		Text:       text,
		ChangeType: ChangeValue,
		UpdateTime: at,
	}
}

// ActionChange creates an action history entry recording both the severity
// and status in force when an operator action was applied.
func ActionChange(a *Alert, text string, at time.Time) History {
	return History{
		ID:         a.ID,
		Event:      a.Event,
		Severity:   a.Severity,
		Status:     a.Status,
		Text:       text,
		ChangeType: ChangeAction,
		UpdateTime: at,
	}
}
