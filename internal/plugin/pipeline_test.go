package plugin

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/alarm"
	"github.com/good-yellow-bee/flare/internal/alerting"
	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// fakePlugin counts hook invocations and delegates to optional funcs. A nil
// func reports the hook as not implemented.
type fakePlugin struct {
	Base
	name      string
	preCalls  int
	postCalls int
	pre       func(a *models.Alert) (*models.Alert, error)
	post      func(a *models.Alert) (*models.Alert, error)
	status    func(a *models.Alert, status, text string) (*models.Alert, string, string, error)
	action    func(a *models.Alert, action, text string) (*models.Alert, string, string, error)
	delete    func(a *models.Alert) error
}

func (f *fakePlugin) Name() string { return f.name }

func (f *fakePlugin) PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	f.preCalls++
	if f.pre == nil {
		return nil, ErrNotImplemented
	}
	return f.pre(a)
}

func (f *fakePlugin) PostReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	f.postCalls++
	if f.post == nil {
		return nil, ErrNotImplemented
	}
	return f.post(a)
}

func (f *fakePlugin) StatusChange(ctx context.Context, a *models.Alert, status, text string) (*models.Alert, string, string, error) {
	if f.status == nil {
		return nil, "", "", ErrNotImplemented
	}
	return f.status(a, status, text)
}

func (f *fakePlugin) TakeAction(ctx context.Context, a *models.Alert, action, text string) (*models.Alert, string, string, error) {
	if f.action == nil {
		return nil, "", "", ErrNotImplemented
	}
	return f.action(a, action, text)
}

func (f *fakePlugin) Delete(ctx context.Context, a *models.Alert) error {
	if f.delete == nil {
		return ErrNotImplemented
	}
	return f.delete(a)
}

func setupPipeline(t *testing.T, plugins ...Plugin) (*Pipeline, *storage.SQLiteStorage) {
	t.Helper()

	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}

	registry := NewRegistry()
	var order []string
	for _, p := range plugins {
		registry.Register(p)
		order = append(order, p.Name())
	}
	if err := registry.SetOrder(order); err != nil {
		t.Fatalf("set order: %v", err)
	}

	model := alarm.NewModel()
	classifier := alerting.NewClassifier(store.Alerts(), model, zap.NewNop())
	return NewPipeline(registry, classifier, store.Alerts(), model, zap.NewNop()), store
}

func testAlert(event string) *models.Alert {
	now := time.Now().UTC().Truncate(time.Second)
	return &models.Alert{
		ID:          uuid.New().String(),
		Resource:    "web01",
		Event:       event,
		Environment: "Production",
		Severity:    "major",
		Correlate:   []string{},
		Service:     []string{"web"},
		Group:       "Misc",
		Value:       "1",
		Text:        event + " fired",
		Tags:        []string{},
		Attributes:  map[string]string{},
		EventType:   models.DefaultEventType,
		CreateTime:  now,
		Timeout:     86400,
	}
}

func TestPipeline_ProcessAlert(t *testing.T) {
	rewriter := &fakePlugin{name: "rewriter", pre: func(a *models.Alert) (*models.Alert, error) {
		a.Tags = append(a.Tags, "checked")
		return a, nil
	}}
	observer := &fakePlugin{name: "observer"}
	p, store := setupPipeline(t, rewriter, observer)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != Processed {
		t.Fatalf("outcome = %v, want processed", outcome.Kind)
	}
	if outcome.Alert == nil {
		t.Fatal("processed outcome carries no alert")
	}
	if len(outcome.Alert.Tags) != 1 || outcome.Alert.Tags[0] != "checked" {
		t.Errorf("pre-receive rewrite lost: tags = %v", outcome.Alert.Tags)
	}
	if observer.preCalls != 1 || observer.postCalls != 1 {
		t.Errorf("observer calls: pre=%d post=%d, want 1/1", observer.preCalls, observer.postCalls)
	}

	stored, err := store.Alerts().GetByID(ctx, outcome.Alert.ID)
	if err != nil {
		t.Fatalf("get stored alert: %v", err)
	}
	if stored.Status != alarm.StatusOpen {
		t.Errorf("stored status = %q, want open", stored.Status)
	}
}

func TestPipeline_ProcessAlert_SignalDiverts(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind OutcomeKind
	}{
		{"reject", &RejectError{Reason: "bad origin"}, Rejected},
		{"rate limit", &RateLimitError{Reason: "too fast"}, RateLimited},
		{"heartbeat", &HeartbeatError{ID: "hb-1"}, ConvertedToHeartbeat},
		{"blackout", &BlackoutError{}, InBlackout},
		{"loop", &LoopError{Hops: 3}, LoopDetected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signaling := &fakePlugin{name: "signaling", pre: func(a *models.Alert) (*models.Alert, error) {
				return nil, tt.err
			}}
			later := &fakePlugin{name: "later"}
			p, store := setupPipeline(t, signaling, later)
			ctx := context.Background()

			outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
			if err != nil {
				t.Fatalf("process: %v", err)
			}
			if outcome.Kind != tt.wantKind {
				t.Errorf("outcome = %v, want %v", outcome.Kind, tt.wantKind)
			}
			if outcome.Reason == "" {
				t.Error("diverted outcome carries no reason")
			}
			if tt.wantKind == ConvertedToHeartbeat && outcome.HeartbeatID != "hb-1" {
				t.Errorf("heartbeat id = %q", outcome.HeartbeatID)
			}
			if later.preCalls != 0 || later.postCalls != 0 {
				t.Errorf("later plugin ran after divert: pre=%d post=%d", later.preCalls, later.postCalls)
			}

			alerts, err := store.Alerts().List(ctx, "", 0)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(alerts) != 0 {
				t.Errorf("diverted alert was persisted: %d rows", len(alerts))
			}
		})
	}
}

func TestPipeline_ProcessAlert_SuppressedSkipsChainButPersists(t *testing.T) {
	suppressor := &fakePlugin{name: "suppressor", pre: func(a *models.Alert) (*models.Alert, error) {
		a.Status = alarm.StatusBlackout
		return a, nil
	}}
	later := &fakePlugin{name: "later"}
	p, store := setupPipeline(t, suppressor, later)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != Processed {
		t.Fatalf("outcome = %v, want processed", outcome.Kind)
	}
	if later.preCalls != 0 {
		t.Errorf("pre-receive ran on suppressed alert %d times", later.preCalls)
	}
	if later.postCalls != 0 {
		t.Errorf("post-receive ran on suppressed alert %d times", later.postCalls)
	}

	stored, err := store.Alerts().GetByID(ctx, outcome.Alert.ID)
	if err != nil {
		t.Fatalf("get stored alert: %v", err)
	}
	if stored.Status != alarm.StatusBlackout {
		t.Errorf("stored status = %q, want blackout", stored.Status)
	}
}

func TestPipeline_ProcessAlert_PluginFailureIsolation(t *testing.T) {
	failing := &fakePlugin{name: "failing", pre: func(a *models.Alert) (*models.Alert, error) {
		return nil, errors.New("boom")
	}}
	later := &fakePlugin{name: "later"}
	p, _ := setupPipeline(t, failing, later)

	outcome, err := p.ProcessAlert(context.Background(), testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != Processed {
		t.Errorf("outcome = %v, want processed despite plugin failure", outcome.Kind)
	}
	if later.preCalls != 1 {
		t.Errorf("chain stopped at failing plugin: later pre calls = %d", later.preCalls)
	}
}

func TestPipeline_ProcessAlert_RaiseOnPluginError(t *testing.T) {
	failing := &fakePlugin{name: "failing", pre: func(a *models.Alert) (*models.Alert, error) {
		return nil, errors.New("boom")
	}}
	p, store := setupPipeline(t, failing)
	p.RaiseOnPluginError = true
	ctx := context.Background()

	if _, err := p.ProcessAlert(ctx, testAlert("NodeDown")); err == nil {
		t.Fatal("expected error with RaiseOnPluginError set")
	}
	alerts, err := store.Alerts().List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(alerts) != 0 {
		t.Errorf("failed receipt was persisted: %d rows", len(alerts))
	}
}

func TestPipeline_ProcessAlert_NilRewriteIsFatal(t *testing.T) {
	broken := &fakePlugin{name: "broken", pre: func(a *models.Alert) (*models.Alert, error) {
		return nil, nil
	}}
	p, _ := setupPipeline(t, broken)

	if _, err := p.ProcessAlert(context.Background(), testAlert("NodeDown")); err == nil {
		t.Fatal("expected error for nil alert from pre-receive")
	}
}

func TestPipeline_PostReceive_RewritePersistsPrunedAttributes(t *testing.T) {
	failing := &fakePlugin{name: "failing", post: func(a *models.Alert) (*models.Alert, error) {
		return nil, errors.New("boom")
	}}
	enricher := &fakePlugin{name: "enricher", post: func(a *models.Alert) (*models.Alert, error) {
		a.Attributes["runbook"] = "https://wiki/runbooks/node-down"
		a.Attributes["stale"] = ""
		a.Tags = append(a.Tags, "enriched")
		return a, nil
	}}
	p, store := setupPipeline(t, failing, enricher)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if outcome.Kind != Processed {
		t.Fatalf("outcome = %v, want processed despite post-receive failure", outcome.Kind)
	}

	stored, err := store.Alerts().GetByID(ctx, outcome.Alert.ID)
	if err != nil {
		t.Fatalf("get stored alert: %v", err)
	}
	if stored.Attributes["runbook"] == "" {
		t.Error("post-receive attribute not persisted")
	}
	if _, ok := stored.Attributes["stale"]; ok {
		t.Error("empty attribute value survived pruning")
	}
	found := false
	for _, tag := range stored.Tags {
		if tag == "enriched" {
			found = true
		}
	}
	if !found {
		t.Errorf("post-receive tag not persisted: %v", stored.Tags)
	}
}

func TestPipeline_SkipPostReceive(t *testing.T) {
	observer := &fakePlugin{name: "observer"}
	p, _ := setupPipeline(t, observer)
	p.SkipPostReceive = true

	if _, err := p.ProcessAlert(context.Background(), testAlert("NodeDown")); err != nil {
		t.Fatalf("process: %v", err)
	}
	if observer.postCalls != 0 {
		t.Errorf("post-receive ran %d times with SkipPostReceive set", observer.postCalls)
	}
}

func TestPipeline_ProcessStatusChange(t *testing.T) {
	p, _ := setupPipeline(t)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	updated, err := p.ProcessStatusChange(ctx, outcome.Alert.ID, alarm.StatusAck, "on it", 7200)
	if err != nil {
		t.Fatalf("status change: %v", err)
	}
	if updated.Status != alarm.StatusAck {
		t.Errorf("status = %q, want ack", updated.Status)
	}

	last := updated.History[len(updated.History)-1]
	if last.ChangeType != models.ChangeStatus || last.Status != alarm.StatusAck || last.Text != "on it" {
		t.Errorf("unexpected history entry: %+v", last)
	}
}

func TestPipeline_ProcessStatusChange_Veto(t *testing.T) {
	guard := &fakePlugin{name: "guard", status: func(a *models.Alert, status, text string) (*models.Alert, string, string, error) {
		return nil, "", "", &RejectError{Reason: "closing is not allowed here"}
	}}
	p, _ := setupPipeline(t, guard)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	_, err = p.ProcessStatusChange(ctx, outcome.Alert.ID, alarm.StatusClosed, "", 0)
	if err == nil || !strings.Contains(err.Error(), "vetoed") {
		t.Fatalf("expected veto error, got %v", err)
	}

	stored, err := p.alerts.GetByID(ctx, outcome.Alert.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if stored.Status != alarm.StatusOpen {
		t.Errorf("vetoed change was applied: status = %q", stored.Status)
	}
}

func TestPipeline_ProcessStatusChange_PluginRewrite(t *testing.T) {
	rewriter := &fakePlugin{name: "rewriter", status: func(a *models.Alert, status, text string) (*models.Alert, string, string, error) {
		return nil, alarm.StatusShelved, "shelved instead", nil
	}}
	p, _ := setupPipeline(t, rewriter)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	updated, err := p.ProcessStatusChange(ctx, outcome.Alert.ID, alarm.StatusAck, "on it", 0)
	if err != nil {
		t.Fatalf("status change: %v", err)
	}
	if updated.Status != alarm.StatusShelved {
		t.Errorf("status = %q, want plugin rewrite to shelved", updated.Status)
	}
	last := updated.History[len(updated.History)-1]
	if last.Text != "shelved instead" {
		t.Errorf("history text = %q, want plugin rewrite", last.Text)
	}
}

func TestPipeline_ProcessAction(t *testing.T) {
	p, _ := setupPipeline(t)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	updated, err := p.ProcessAction(ctx, outcome.Alert.ID, alarm.ActionAck, "taking a look", 7200)
	if err != nil {
		t.Fatalf("action: %v", err)
	}
	if updated.Status != alarm.StatusAck {
		t.Errorf("status = %q, want ack", updated.Status)
	}
	if updated.Severity != "major" {
		t.Errorf("ack changed severity to %q", updated.Severity)
	}

	closed, err := p.ProcessAction(ctx, outcome.Alert.ID, alarm.ActionClose, "resolved", 0)
	if err != nil {
		t.Fatalf("close action: %v", err)
	}
	if closed.Status != alarm.StatusClosed {
		t.Errorf("status = %q, want closed", closed.Status)
	}
	if closed.Severity != "normal" {
		t.Errorf("close left severity %q, want normal", closed.Severity)
	}
}

func TestPipeline_ProcessAction_Escalate(t *testing.T) {
	var seen []string
	witness := &fakePlugin{name: "witness", action: func(a *models.Alert, action, text string) (*models.Alert, string, string, error) {
		seen = append(seen, action)
		return nil, "", "", nil
	}}
	p, _ := setupPipeline(t, witness)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	updated, err := p.ProcessAction(ctx, outcome.Alert.ID, alarm.ActionEscalate, "alert severity escalated", 86400)
	if err != nil {
		t.Fatalf("escalate action: %v", err)
	}
	if updated.Severity != "critical" {
		t.Errorf("severity = %q, want one step up from major", updated.Severity)
	}
	if updated.Status != alarm.StatusOpen {
		t.Errorf("status = %q, want open", updated.Status)
	}
	if len(seen) != 1 || seen[0] != alarm.ActionEscalate {
		t.Errorf("take-action chain saw %v, want [escalate]", seen)
	}
	last := updated.History[len(updated.History)-1]
	if last.Text != "alert severity escalated" || last.Severity != "critical" {
		t.Errorf("history entry = %+v", last)
	}

	top := testAlert("Breach")
	top.Resource = "web02"
	top.Severity = "security"
	outcome, err = p.ProcessAlert(ctx, top)
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}
	var invalid *models.ValidationError
	if _, err := p.ProcessAction(ctx, outcome.Alert.ID, alarm.ActionEscalate, "", 0); !errors.As(err, &invalid) {
		t.Fatalf("escalating the most urgent severity should fail validation, got %v", err)
	}
}

func TestPipeline_ProcessAction_Veto(t *testing.T) {
	guard := &fakePlugin{name: "guard", action: func(a *models.Alert, action, text string) (*models.Alert, string, string, error) {
		return nil, "", "", &RejectError{Reason: "change freeze"}
	}}
	p, _ := setupPipeline(t, guard)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	if _, err := p.ProcessAction(ctx, outcome.Alert.ID, alarm.ActionClose, "", 0); err == nil {
		t.Fatal("expected veto error")
	}
}

func TestPipeline_ProcessDelete(t *testing.T) {
	grumbling := &fakePlugin{name: "grumbling", delete: func(a *models.Alert) error {
		return errors.New("audit log unavailable")
	}}
	p, store := setupPipeline(t, grumbling)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	// An ordinary plugin failure never blocks the delete.
	if err := p.ProcessDelete(ctx, outcome.Alert.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Alerts().GetByID(ctx, outcome.Alert.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("alert still present after delete: %v", err)
	}

	if err := p.ProcessDelete(ctx, outcome.Alert.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
}

func TestPipeline_ProcessDelete_Veto(t *testing.T) {
	guard := &fakePlugin{name: "guard", delete: func(a *models.Alert) error {
		return &RejectError{Reason: "retention policy"}
	}}
	p, store := setupPipeline(t, guard)
	ctx := context.Background()

	outcome, err := p.ProcessAlert(ctx, testAlert("NodeDown"))
	if err != nil {
		t.Fatalf("seed alert: %v", err)
	}

	if err := p.ProcessDelete(ctx, outcome.Alert.ID); err == nil || !strings.Contains(err.Error(), "vetoed") {
		t.Fatalf("expected veto error, got %v", err)
	}
	if _, err := store.Alerts().GetByID(ctx, outcome.Alert.ID); err != nil {
		t.Errorf("vetoed delete removed the alert: %v", err)
	}
}
