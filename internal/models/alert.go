// Package models defines domain models for Flare.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError reports malformed alert or rule input. It is the only
// error kind the entity constructors return and is never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Default values applied when an inbound alert omits a field.
const (
	DefaultGroup     = "Misc"
	DefaultEventType = "exceptionAlert"
	DefaultTimeout   = 86400 // seconds
)

// forbiddenAttrChars are structural separators that must not appear in
// attribute keys.
const forbiddenAttrChars = ".$"

// Alert is the canonical representation of a reported problem. Its identity
// key is (environment, resource, event); correlate lists event names that
// belong to the same incident. History is an append-only log owned by the
// alert aggregate; only the classifier produces new entries.
type Alert struct {
	ID               string            `json:"id"`
	Resource         string            `json:"resource"`
	Event            string            `json:"event"`
	Environment      string            `json:"environment"`
	Severity         string            `json:"severity"`
	Correlate        []string          `json:"correlate"`
	Status           string            `json:"status"`
	Service          []string          `json:"service"`
	Group            string            `json:"group"`
	Value            string            `json:"value,omitempty"`
	Text             string            `json:"text,omitempty"`
	Tags             []string          `json:"tags"`
	Attributes       map[string]string `json:"attributes"`
	Origin           string            `json:"origin,omitempty"`
	EventType        string            `json:"type"`
	CreateTime       time.Time         `json:"createTime"`
	Timeout          int               `json:"timeout"`
	RawData          string            `json:"rawData,omitempty"`
	Customer         string            `json:"customer,omitempty"`
	DuplicateCount   int               `json:"duplicateCount"`
	Repeat           bool              `json:"repeat"`
	PreviousSeverity string            `json:"previousSeverity,omitempty"`
	TrendIndication  string            `json:"trendIndication,omitempty"`
	ReceiveTime      time.Time         `json:"receiveTime"`
	LastReceiveID    string            `json:"lastReceiveId,omitempty"`
	LastReceiveTime  time.Time         `json:"lastReceiveTime"`
	History          []History         `json:"history"`
}

// alertRequest is the inbound wire shape. Pointer fields let the constructor
// distinguish absent from present-but-empty.
type alertRequest struct {
	ID          string            `json:"id"`
	Resource    string            `json:"resource"`
	Event       string            `json:"event"`
	Environment string            `json:"environment"`
	Severity    string            `json:"severity"`
	Correlate   []string          `json:"correlate"`
	Status      string            `json:"status"`
	Service     []string          `json:"service"`
	Group       string            `json:"group"`
	Value       string            `json:"value"`
	Text        string            `json:"text"`
	Tags        []string          `json:"tags"`
	Attributes  map[string]string `json:"attributes"`
	Origin      string            `json:"origin"`
	EventType   string            `json:"type"`
	CreateTime  *time.Time        `json:"createTime"`
	Timeout     *int              `json:"timeout"`
	RawData     string            `json:"rawData"`
	Customer    *string           `json:"customer"`
}

// ParseAlert validates and constructs an Alert from its JSON wire form.
// Malformed input yields a ValidationError; the constructed alert always
// satisfies the entity invariants (non-empty resource/event, correlate
// containing event, clean attribute keys).
func ParseAlert(data []byte) (*Alert, error) {
	var req alertRequest
	if err := json.Unmarshal(data, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, NewValidationError("%s must be of type %s", typeErr.Field, typeErr.Type)
		}
		return nil, NewValidationError("invalid alert document: %v", err)
	}
	return newAlert(req)
}

func newAlert(req alertRequest) (*Alert, error) {
	if req.Resource == "" {
		return nil, NewValidationError(`missing mandatory value for "resource"`)
	}
	if req.Event == "" {
		return nil, NewValidationError(`missing mandatory value for "event"`)
	}
	for key := range req.Attributes {
		if strings.ContainsAny(key, forbiddenAttrChars) {
			return nil, NewValidationError(`attribute keys must not contain "." or "$"`)
		}
	}
	if req.Timeout != nil && *req.Timeout < 0 {
		return nil, NewValidationError("timeout must not be negative")
	}
	if req.Customer != nil && *req.Customer == "" {
		return nil, NewValidationError("customer must not be an empty string")
	}

	a := &Alert{
		ID:          req.ID,
		Resource:    req.Resource,
		Event:       req.Event,
		Environment: req.Environment,
		Severity:    req.Severity,
		Correlate:   req.Correlate,
		Status:      req.Status,
		Service:     req.Service,
		Group:       req.Group,
		Value:       req.Value,
		Text:        req.Text,
		Tags:        req.Tags,
		Attributes:  req.Attributes,
		Origin:      req.Origin,
		EventType:   req.EventType,
		RawData:     req.RawData,
	}
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	if a.Group == "" {
		a.Group = DefaultGroup
	}
	if a.EventType == "" {
		a.EventType = DefaultEventType
	}
	if a.Correlate == nil {
		a.Correlate = []string{}
	}
	if len(a.Correlate) > 0 && !contains(a.Correlate, a.Event) {
		a.Correlate = append(a.Correlate, a.Event)
	}
	if a.Service == nil {
		a.Service = []string{}
	}
	if a.Tags == nil {
		a.Tags = []string{}
	}
	if a.Attributes == nil {
		a.Attributes = map[string]string{}
	}
	if req.CreateTime != nil {
		a.CreateTime = req.CreateTime.UTC()
	} else {
		a.CreateTime = time.Now().UTC()
	}
	if req.Timeout != nil {
		a.Timeout = *req.Timeout
	} else {
		a.Timeout = DefaultTimeout
	}
	if req.Customer != nil {
		a.Customer = *req.Customer
	}
	return a, nil
}

// Serialize renders the alert in its wire representation. The projection is
// pure and deterministic; datetimes are RFC 3339 UTC.
func (a *Alert) Serialize() ([]byte, error) {
	clone := *a
	clone.CreateTime = a.CreateTime.UTC()
	clone.ReceiveTime = a.ReceiveTime.UTC()
	clone.LastReceiveTime = a.LastReceiveTime.UTC()
	return json.Marshal(&clone)
}

// ShortID returns the abbreviated alert id used in log lines.
func (a *Alert) ShortID() string {
	if len(a.ID) >= 8 {
		return a.ID[:8]
	}
	return a.ID
}

// CorrelatesWith reports whether an event name belongs to this alert's
// correlation set. The alert's own event always correlates.
func (a *Alert) CorrelatesWith(event string) bool {
	if event == a.Event {
		return true
	}
	return contains(a.Correlate, event)
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func (a *Alert) String() string {
	return fmt.Sprintf("Alert(id=%s, environment=%s, resource=%s, event=%s, severity=%s, status=%s)",
		a.ShortID(), a.Environment, a.Resource, a.Event, a.Severity, a.Status)
}
