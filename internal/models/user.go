package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultBlackoutDuration applies when a blackout is created without an end
// time.
const DefaultBlackoutDuration = time.Hour

// UserRef identifies a user known to the external identity collaborator.
// The engine never authenticates; it only routes to already-known users.
type UserRef struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	CountryCode string `json:"countryCode,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// Principal is the already-authenticated caller on whose behalf an operation
// runs. It is threaded explicitly through every call into the engine; the
// engine reads no ambient request state.
type Principal struct {
	Login     string   `json:"login"`
	Scopes    []string `json:"scopes"`
	Customers []string `json:"customers"`
}

// HasScope reports whether the principal carries the given scope.
func (p Principal) HasScope(scope string) bool {
	return contains(p.Scopes, scope)
}

// AllowsCustomer reports whether the principal may touch resources owned by
// the given customer. An empty membership list means unrestricted.
func (p Principal) AllowsCustomer(customer string) bool {
	if len(p.Customers) == 0 || customer == "" {
		return true
	}
	return contains(p.Customers, customer)
}

// Blackout is a suppression window: alerts matching its scope during
// [StartTime, EndTime] are suppressed rather than processed.
type Blackout struct {
	ID          string    `json:"id"`
	Environment string    `json:"environment"`
	Resource    string    `json:"resource,omitempty"`
	Event       string    `json:"event,omitempty"`
	Group       string    `json:"group,omitempty"`
	Service     []string  `json:"service"`
	Tags        []string  `json:"tags"`
	Customer    string    `json:"customer,omitempty"`
	StartTime   time.Time `json:"startTime"`
	EndTime     time.Time `json:"endTime"`
}

// ParseBlackout validates and constructs a Blackout from its JSON wire
// form. The start time defaults to now and the end time to start plus
// DefaultBlackoutDuration.
func ParseBlackout(data []byte) (*Blackout, error) {
	var wire struct {
		Blackout
		StartTime *time.Time `json:"startTime"`
		EndTime   *time.Time `json:"endTime"`
		Duration  *int       `json:"duration"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewValidationError("invalid blackout: %v", err)
	}
	b := wire.Blackout
	if b.Environment == "" {
		return nil, NewValidationError(`missing mandatory value for "environment"`)
	}
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Service == nil {
		b.Service = []string{}
	}
	if b.Tags == nil {
		b.Tags = []string{}
	}
	if wire.StartTime != nil {
		b.StartTime = wire.StartTime.UTC()
	} else {
		b.StartTime = time.Now().UTC()
	}
	switch {
	case wire.EndTime != nil:
		b.EndTime = wire.EndTime.UTC()
	case wire.Duration != nil:
		b.EndTime = b.StartTime.Add(time.Duration(*wire.Duration) * time.Second)
	default:
		b.EndTime = b.StartTime.Add(DefaultBlackoutDuration)
	}
	if !b.EndTime.After(b.StartTime) {
		return nil, NewValidationError("blackout end time must be after start time")
	}
	return &b, nil
}

// Covers reports whether the blackout window is in force for the given
// alert at the given instant. The window is half-open: start inclusive,
// end exclusive.
func (b *Blackout) Covers(a *Alert, now time.Time) bool {
	if now.Before(b.StartTime) || !now.Before(b.EndTime) {
		return false
	}
	if b.Environment != a.Environment {
		return false
	}
	if b.Resource != "" && b.Resource != a.Resource {
		return false
	}
	if b.Event != "" && b.Event != a.Event {
		return false
	}
	if b.Group != "" && b.Group != a.Group {
		return false
	}
	if len(b.Service) > 0 && !intersects(b.Service, a.Service) {
		return false
	}
	if len(b.Tags) > 0 && !intersects(b.Tags, a.Tags) {
		return false
	}
	if b.Customer != "" && b.Customer != a.Customer {
		return false
	}
	return true
}

func intersects(a, b []string) bool {
	for _, v := range a {
		if contains(b, v) {
			return true
		}
	}
	return false
}
