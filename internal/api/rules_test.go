package api

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestNotificationRuleEndpoints(t *testing.T) {
	ts := setupServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/notificationrules/", map[string]any{
		"environment": "Production",
		"channelId":   "slack",
		"receivers":   []string{"#ops"},
		"severity":    []string{"major", "critical"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var id string
	if err := json.Unmarshal(decodeData(t, rec)["id"], &id); err != nil {
		t.Fatalf("decode id: %v", err)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/notificationrules/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var rule struct {
		ChannelID string   `json:"channelId"`
		Severity  []string `json:"severity"`
		Active    bool     `json:"active"`
	}
	if err := json.Unmarshal(decodeData(t, rec)["notificationRule"], &rule); err != nil {
		t.Fatalf("decode rule: %v", err)
	}
	if rule.ChannelID != "slack" || !rule.Active || len(rule.Severity) != 2 {
		t.Errorf("unexpected rule: %+v", rule)
	}

	rec = ts.request(t, http.MethodPut, "/api/v1/notificationrules/"+id, map[string]any{
		"environment": "Production",
		"channelId":   "email",
		"receivers":   []string{"oncall@example.com"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/notificationrules/", nil)
	var total int
	if err := json.Unmarshal(decodeData(t, rec)["total"], &total); err != nil {
		t.Fatalf("decode total: %v", err)
	}
	if total != 1 {
		t.Errorf("list total = %d, want 1", total)
	}

	if rec := ts.request(t, http.MethodDelete, "/api/v1/notificationrules/"+id, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := ts.request(t, http.MethodDelete, "/api/v1/notificationrules/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
	if rec := ts.request(t, http.MethodGet, "/api/v1/notificationrules/"+id, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rec.Code)
	}
}

func TestNotificationRuleEndpoints_Validation(t *testing.T) {
	ts := setupServer(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{
			name: "missing environment",
			body: map[string]any{"channelId": "slack", "receivers": []string{"#ops"}},
		},
		{
			name: "missing channel id",
			body: map[string]any{"environment": "Production", "receivers": []string{"#ops"}},
		},
		{
			name: "missing receivers",
			body: map[string]any{"environment": "Production", "channelId": "slack"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.request(t, http.MethodPost, "/api/v1/notificationrules/", tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Errorf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestEscalationRuleEndpoints(t *testing.T) {
	ts := setupServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/escalationrules/", map[string]any{
		"environment": "Production",
		"time":        600,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var id string
	if err := json.Unmarshal(decodeData(t, rec)["id"], &id); err != nil {
		t.Fatalf("decode id: %v", err)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/escalationrules/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	// An escalation rule without a time is invalid.
	rec = ts.request(t, http.MethodPost, "/api/v1/escalationrules/", map[string]any{
		"environment": "Production",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing time status = %d, want 422", rec.Code)
	}

	if rec := ts.request(t, http.MethodDelete, "/api/v1/escalationrules/"+id, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
}

func TestBlackoutEndpoints(t *testing.T) {
	ts := setupServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/blackouts/", map[string]any{
		"environment": "Production",
		"duration":    3600,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var id string
	if err := json.Unmarshal(decodeData(t, rec)["id"], &id); err != nil {
		t.Fatalf("decode id: %v", err)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/blackouts/", nil)
	var total int
	if err := json.Unmarshal(decodeData(t, rec)["total"], &total); err != nil {
		t.Fatalf("decode total: %v", err)
	}
	if total != 1 {
		t.Errorf("list total = %d, want 1", total)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/blackouts/", map[string]any{})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing environment status = %d, want 422", rec.Code)
	}

	if rec := ts.request(t, http.MethodDelete, "/api/v1/blackouts/"+id, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
}

func TestOnCallEndpoints(t *testing.T) {
	ts := setupServer(t)

	rec := ts.request(t, http.MethodPost, "/api/v1/oncalls/", map[string]any{
		"userIds":    []string{"u1"},
		"groupIds":   []string{"sre"},
		"repeatType": "daily",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	var id string
	if err := json.Unmarshal(decodeData(t, rec)["id"], &id); err != nil {
		t.Fatalf("decode id: %v", err)
	}

	if rec := ts.request(t, http.MethodGet, "/api/v1/oncalls/"+id, nil); rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodPost, "/api/v1/oncalls/", map[string]any{
		"repeatType": "daily",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing users status = %d, want 422", rec.Code)
	}

	rec = ts.request(t, http.MethodPut, "/api/v1/oncalls/"+id, map[string]any{
		"userIds": []string{"u2"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d, body %s", rec.Code, rec.Body.String())
	}

	if rec := ts.request(t, http.MethodDelete, "/api/v1/oncalls/"+id, nil); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
}

func TestGroupAndActiveOnCallEndpoints(t *testing.T) {
	ts := setupServer(t)

	rec := ts.request(t, http.MethodPut, "/api/v1/groups/sre/users", map[string]any{
		"id": "u1", "name": "Bea", "email": "bea@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add member status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec = ts.request(t, http.MethodPut, "/api/v1/groups/sre/users", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing id status = %d, want 400", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/groups/sre/users", nil)
	var total int
	if err := json.Unmarshal(decodeData(t, rec)["total"], &total); err != nil {
		t.Fatalf("decode total: %v", err)
	}
	if total != 1 {
		t.Errorf("member total = %d, want 1", total)
	}

	// An open-ended schedule over the group is active right now.
	rec = ts.request(t, http.MethodPost, "/api/v1/oncalls/", map[string]any{
		"groupIds": []string{"sre"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create on-call status = %d", rec.Code)
	}

	rec = ts.request(t, http.MethodGet, "/api/v1/oncalls/active", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("active status = %d", rec.Code)
	}
	if err := json.Unmarshal(decodeData(t, rec)["total"], &total); err != nil {
		t.Fatalf("decode total: %v", err)
	}
	if total != 1 {
		t.Errorf("active user total = %d, want 1", total)
	}

	if rec := ts.request(t, http.MethodDelete, "/api/v1/groups/sre/users/u1", nil); rec.Code != http.StatusNoContent {
		t.Errorf("remove member status = %d", rec.Code)
	}
	if rec := ts.request(t, http.MethodDelete, "/api/v1/groups/sre/users/u1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rec.Code)
	}
}
