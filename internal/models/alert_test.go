package models

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseAlert_Defaults(t *testing.T) {
	a, err := ParseAlert([]byte(`{
		"resource": "web01",
		"event": "HttpServerError",
		"environment": "Production",
		"severity": "major"
	}`))
	if err != nil {
		t.Fatalf("parse alert: %v", err)
	}

	if a.ID == "" {
		t.Error("id should be generated")
	}
	if a.Group != DefaultGroup {
		t.Errorf("group = %q, want %q", a.Group, DefaultGroup)
	}
	if a.EventType != DefaultEventType {
		t.Errorf("type = %q, want %q", a.EventType, DefaultEventType)
	}
	if a.Timeout != DefaultTimeout {
		t.Errorf("timeout = %d, want %d", a.Timeout, DefaultTimeout)
	}
	if a.CreateTime.IsZero() {
		t.Error("createTime should be set")
	}
	if a.Service == nil || a.Tags == nil || a.Correlate == nil || a.Attributes == nil {
		t.Error("collections should be initialized, not nil")
	}
}

func TestParseAlert_Validation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "missing resource",
			body:    `{"event": "NodeDown"}`,
			wantErr: "resource",
		},
		{
			name:    "missing event",
			body:    `{"resource": "web01"}`,
			wantErr: "event",
		},
		{
			name:    "attribute key with dot",
			body:    `{"resource": "web01", "event": "NodeDown", "attributes": {"a.b": "x"}}`,
			wantErr: "attribute keys",
		},
		{
			name:    "negative timeout",
			body:    `{"resource": "web01", "event": "NodeDown", "timeout": -1}`,
			wantErr: "timeout",
		},
		{
			name:    "empty customer",
			body:    `{"resource": "web01", "event": "NodeDown", "customer": ""}`,
			wantErr: "customer",
		},
		{
			name:    "wrong field type",
			body:    `{"resource": "web01", "event": "NodeDown", "service": "web"}`,
			wantErr: "must be of type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAlert([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("want ValidationError, got %T", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseAlert_CorrelateIncludesOwnEvent(t *testing.T) {
	a, err := ParseAlert([]byte(`{
		"resource": "web01",
		"event": "NodeDown",
		"correlate": ["NodeUp"]
	}`))
	if err != nil {
		t.Fatalf("parse alert: %v", err)
	}
	if !a.CorrelatesWith("NodeDown") {
		t.Error("alert should correlate with its own event")
	}
	if !a.CorrelatesWith("NodeUp") {
		t.Error("alert should correlate with NodeUp")
	}
	if a.CorrelatesWith("DiskFull") {
		t.Error("alert should not correlate with unrelated event")
	}
}

func TestParseAlert_ZeroTimeoutIsExplicit(t *testing.T) {
	a, err := ParseAlert([]byte(`{"resource": "web01", "event": "NodeDown", "timeout": 0}`))
	if err != nil {
		t.Fatalf("parse alert: %v", err)
	}
	if a.Timeout != 0 {
		t.Errorf("timeout = %d, want explicit 0", a.Timeout)
	}
}

func TestAlert_Serialize(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	a := &Alert{
		ID:          "abc",
		Resource:    "web01",
		Event:       "NodeDown",
		Environment: "Production",
		CreateTime:  time.Date(2025, 3, 1, 13, 0, 0, 0, loc),
	}

	data, err := a.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	var wire map[string]any
	if err := json.Unmarshal(data, &wire); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := wire["createTime"]; got != "2025-03-01T12:00:00Z" {
		t.Errorf("createTime = %v, want UTC rendering", got)
	}
}

func TestAlert_ShortID(t *testing.T) {
	a := &Alert{ID: "0123456789abcdef"}
	if got := a.ShortID(); got != "01234567" {
		t.Errorf("ShortID = %q", got)
	}
	a.ID = "abc"
	if got := a.ShortID(); got != "abc" {
		t.Errorf("ShortID of short id = %q", got)
	}
}
