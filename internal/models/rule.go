package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Rule kinds understood by the store and the matcher.
const (
	RuleKindNotification = "notification"
	RuleKindEscalation   = "escalation"
)

// AdvancedSeverity describes a severity transition predicate: it matches an
// observed transition when the previous severity is in From and the current
// severity is in To. An empty set is a wildcard.
type AdvancedSeverity struct {
	From []string `json:"from"`
	To   []string `json:"to"`
}

// Matches reports whether the (previous, current) severity transition
// satisfies this predicate.
func (as AdvancedSeverity) Matches(previous, current string) bool {
	if len(as.From) > 0 && !contains(as.From, previous) {
		return false
	}
	if len(as.To) > 0 && !contains(as.To, current) {
		return false
	}
	return true
}

// RulePredicate is the predicate shape shared by notification and escalation
// rules. Environment is mandatory; every other field is a wildcard when
// unset.
type RulePredicate struct {
	ID                  string             `json:"id"`
	Active              bool               `json:"active"`
	Environment         string             `json:"environment"`
	Resource            string             `json:"resource,omitempty"`
	Event               string             `json:"event,omitempty"`
	Group               string             `json:"group,omitempty"`
	Service             []string           `json:"service"`
	Tags                []string           `json:"tags"`
	Severity            []string           `json:"severity"`
	AdvancedSeverity    []AdvancedSeverity `json:"advancedSeverity,omitempty"`
	UseAdvancedSeverity bool               `json:"useAdvancedSeverity"`
	Customer            string             `json:"customer,omitempty"`
	Days                []string           `json:"days"`
	StartTime           *Clock             `json:"startTime,omitempty"`
	EndTime             *Clock             `json:"endTime,omitempty"`
	User                string             `json:"user,omitempty"`
	CreateTime          time.Time          `json:"createTime"`
}

// Priority derives the rule's precedence from which optional predicate
// fields are populated. The cascade below is evaluated in this exact order;
// it is a non-orthogonal design inherited from the system this engine
// replaces and is pinned by tests. Do not reorder the branches.
func (p *RulePredicate) Priority() int {
	priority := 0
	if p.Environment != "" {
		priority = 1
	}
	switch {
	case p.Resource != "" && p.Event == "":
		priority = 2
	case len(p.Service) > 0:
		priority = 3
	case p.Event != "" && p.Resource == "":
		priority = 4
	case p.Group != "":
		priority = 5
	case p.Resource != "" && p.Event != "":
		priority = 6
	case len(p.Tags) > 0:
		priority = 7
	}
	return priority
}

func (p *RulePredicate) normalize() error {
	if p.Environment == "" {
		return NewValidationError(`missing mandatory value for "environment"`)
	}
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Service == nil {
		p.Service = []string{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.Severity == nil {
		p.Severity = []string{}
	}
	if p.Days == nil {
		p.Days = []string{}
	}
	if p.CreateTime.IsZero() {
		p.CreateTime = time.Now().UTC()
	}
	return nil
}

// NotificationRule selects a channel and a set of receivers for alerts that
// match its predicate.
type NotificationRule struct {
	RulePredicate
	ChannelID string   `json:"channelId"`
	Receivers []string `json:"receivers"`
	UserIDs   []string `json:"userIds"`
	GroupIDs  []string `json:"groupIds"`
	UseOnCall bool     `json:"useOnCall"`
	Text      string   `json:"text,omitempty"`
}

// ParseNotificationRule validates and constructs a NotificationRule from its
// JSON wire form.
func ParseNotificationRule(data []byte) (*NotificationRule, error) {
	var wire struct {
		NotificationRule
		Active    *bool     `json:"active"`
		Receivers *[]string `json:"receivers"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewValidationError("invalid notification rule: %v", err)
	}
	rule := wire.NotificationRule
	if wire.Receivers == nil {
		return nil, NewValidationError(`missing mandatory value for "receivers"`)
	}
	rule.Receivers = *wire.Receivers
	if rule.ChannelID == "" {
		return nil, NewValidationError(`missing mandatory value for "channelId"`)
	}
	rule.Active = wire.Active == nil || *wire.Active
	if err := rule.normalize(); err != nil {
		return nil, err
	}
	if rule.UserIDs == nil {
		rule.UserIDs = []string{}
	}
	if rule.GroupIDs == nil {
		rule.GroupIDs = []string{}
	}
	return &rule, nil
}

// EscalationRule bumps the severity of alerts that stay unresolved for
// longer than Time after their last receipt.
type EscalationRule struct {
	RulePredicate
	Time DurationSeconds `json:"time"`
}

// ParseEscalationRule validates and constructs an EscalationRule from its
// JSON wire form.
func ParseEscalationRule(data []byte) (*EscalationRule, error) {
	var wire struct {
		EscalationRule
		Active *bool `json:"active"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, NewValidationError("invalid escalation rule: %v", err)
	}
	rule := wire.EscalationRule
	if rule.Time <= 0 {
		return nil, NewValidationError(`missing mandatory value for "time"`)
	}
	rule.Active = wire.Active == nil || *wire.Active
	if err := rule.normalize(); err != nil {
		return nil, err
	}
	return &rule, nil
}

// DurationSeconds is a duration carried as integer seconds on the wire.
type DurationSeconds int64

// Duration converts to a time.Duration.
func (d DurationSeconds) Duration() time.Duration {
	return time.Duration(d) * time.Second
}
