package alerting

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/alarm"
	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate database: %v", err)
	}
	return store
}

func receipt(event, severity string) *models.Alert {
	now := time.Now().UTC().Truncate(time.Second)
	a := &models.Alert{
		ID:          uuid.New().String(),
		Resource:    "web01",
		Event:       event,
		Environment: "Production",
		Severity:    severity,
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
	return a
}

func TestClassifier_Create(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())
	ctx := context.Background()

	in := receipt("NodeDown", "major")
	result, err := c.Process(ctx, in)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Outcome != OutcomeCreated {
		t.Fatalf("outcome = %q, want created", result.Outcome)
	}

	a := result.Alert
	if a.Status != alarm.StatusOpen {
		t.Errorf("status = %q, want open", a.Status)
	}
	if a.PreviousSeverity != "indeterminate" {
		t.Errorf("previousSeverity = %q", a.PreviousSeverity)
	}
	if a.TrendIndication != alarm.MoreSevere {
		t.Errorf("trend = %q", a.TrendIndication)
	}
	if a.DuplicateCount != 0 || a.Repeat {
		t.Errorf("dedup bookkeeping: count=%d repeat=%v", a.DuplicateCount, a.Repeat)
	}
	if a.LastReceiveID != a.ID {
		t.Errorf("lastReceiveId = %s, want own id", a.LastReceiveID)
	}

	got, err := store.Alerts().GetByID(ctx, a.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if len(got.History) != 2 {
		t.Fatalf("history length = %d, want 2", len(got.History))
	}
	if got.History[0].ChangeType != models.ChangeSeverity || got.History[0].Text != in.Text {
		t.Errorf("severity entry = %+v", got.History[0])
	}
	if got.History[1].ChangeType != models.ChangeStatus || got.History[1].Text != "new alert status change" {
		t.Errorf("status entry = %+v", got.History[1])
	}
}

func TestClassifier_CreateNormalSeverityCloses(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())

	result, err := c.Process(context.Background(), receipt("NodeUp", "normal"))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if result.Alert.Status != alarm.StatusClosed {
		t.Errorf("status = %q, want closed", result.Alert.Status)
	}
}

func TestClassifier_UnknownSeverity(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())

	_, err := c.Process(context.Background(), receipt("NodeDown", "catastrophic"))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if _, ok := err.(*models.ValidationError); !ok {
		t.Errorf("error type = %T, want ValidationError", err)
	}
}

func TestClassifier_Deduplicate(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())
	ctx := context.Background()

	first, err := c.Process(ctx, receipt("NodeDown", "major"))
	if err != nil {
		t.Fatalf("first receipt: %v", err)
	}
	storedID := first.Alert.ID

	dup := receipt("NodeDown", "major")
	receiptID := dup.ID
	result, err := c.Process(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate receipt: %v", err)
	}
	if result.Outcome != OutcomeDeduplicated {
		t.Fatalf("outcome = %q, want deduplicated", result.Outcome)
	}

	a := result.Alert
	if a.ID != storedID {
		t.Errorf("id = %s, want stored row id %s", a.ID, storedID)
	}
	if a.DuplicateCount != 1 || !a.Repeat {
		t.Errorf("count=%d repeat=%v", a.DuplicateCount, a.Repeat)
	}
	if a.LastReceiveID != receiptID {
		t.Errorf("lastReceiveId = %s, want receipt id %s", a.LastReceiveID, receiptID)
	}
	// same status, same value: no history entry beyond the initial two
	if len(a.History) != 2 {
		t.Errorf("history length = %d, want 2", len(a.History))
	}
}

func TestClassifier_DeduplicateStatusChange(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())
	ctx := context.Background()

	first, err := c.Process(ctx, receipt("NodeDown", "major"))
	if err != nil {
		t.Fatalf("first receipt: %v", err)
	}

	// operator closes, then an identical receipt arrives: the state machine
	// reopens and the duplicate records a status-change entry
	now := time.Now().UTC()
	ok, err := store.Alerts().SetStatus(ctx, first.Alert.ID, alarm.StatusClosed, 86400, models.History{
		ID: first.Alert.ID, Event: "NodeDown", Status: alarm.StatusClosed,
		ChangeType: models.ChangeStatus, UpdateTime: now,
	})
	if err != nil || !ok {
		t.Fatalf("set status: ok=%v err=%v", ok, err)
	}

	dup := receipt("NodeDown", "major")
	result, err := c.Process(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate receipt: %v", err)
	}
	a := result.Alert
	if a.Status != alarm.StatusOpen {
		t.Errorf("status = %q, want open", a.Status)
	}
	last := a.History[len(a.History)-1]
	if last.ChangeType != models.ChangeStatus || last.Text != "duplicate alert with status change" {
		t.Errorf("last history entry = %+v", last)
	}
}

func TestClassifier_DeduplicateValueChange(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())
	c.HistoryOnValueChange = true
	ctx := context.Background()

	if _, err := c.Process(ctx, receipt("CPUHigh", "warning")); err != nil {
		t.Fatalf("first receipt: %v", err)
	}

	dup := receipt("CPUHigh", "warning")
	dup.Value = "97"
	result, err := c.Process(ctx, dup)
	if err != nil {
		t.Fatalf("duplicate receipt: %v", err)
	}
	last := result.Alert.History[len(result.Alert.History)-1]
	if last.ChangeType != models.ChangeValue || last.Text != "duplicate alert with value change" {
		t.Errorf("last history entry = %+v", last)
	}

	// with the flag off an identical case records nothing
	c.HistoryOnValueChange = false
	dup2 := receipt("CPUHigh", "warning")
	dup2.Value = "98"
	result, err = c.Process(ctx, dup2)
	if err != nil {
		t.Fatalf("third receipt: %v", err)
	}
	if n := len(result.Alert.History); n != 3 {
		t.Errorf("history length = %d, want 3", n)
	}
}

func TestClassifier_Correlate(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())
	ctx := context.Background()

	down := receipt("NodeDown", "major")
	down.Correlate = []string{"NodeDown", "NodeUp"}
	first, err := c.Process(ctx, down)
	if err != nil {
		t.Fatalf("first receipt: %v", err)
	}
	storedID := first.Alert.ID

	up := receipt("NodeUp", "normal")
	up.Correlate = []string{"NodeDown", "NodeUp"}
	receiptID := up.ID
	result, err := c.Process(ctx, up)
	if err != nil {
		t.Fatalf("correlated receipt: %v", err)
	}
	if result.Outcome != OutcomeCorrelated {
		t.Fatalf("outcome = %q, want correlated", result.Outcome)
	}

	a := result.Alert
	if a.ID != storedID {
		t.Errorf("id = %s, want stored row id %s", a.ID, storedID)
	}
	if a.Event != "NodeUp" {
		t.Errorf("event = %q, want NodeUp", a.Event)
	}
	if a.PreviousSeverity != "major" || a.Severity != "normal" {
		t.Errorf("severities = %q -> %q", a.PreviousSeverity, a.Severity)
	}
	if a.TrendIndication != alarm.LessSevere {
		t.Errorf("trend = %q", a.TrendIndication)
	}
	if a.Status != alarm.StatusClosed {
		t.Errorf("status = %q, want closed", a.Status)
	}
	if a.DuplicateCount != 0 || a.Repeat {
		t.Errorf("dedup bookkeeping should reset: count=%d repeat=%v", a.DuplicateCount, a.Repeat)
	}

	// severity entry plus the status change entry
	n := len(a.History)
	if n != 4 {
		t.Fatalf("history length = %d, want 4", n)
	}
	if a.History[n-2].ChangeType != models.ChangeSeverity || a.History[n-2].ID != receiptID {
		t.Errorf("severity entry = %+v", a.History[n-2])
	}
	if a.History[n-1].Text != "correlated alert status change" {
		t.Errorf("status entry = %+v", a.History[n-1])
	}
}

func TestClassifier_CorrelateSameEventDifferentSeverity(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())
	ctx := context.Background()

	if _, err := c.Process(ctx, receipt("CPUHigh", "warning")); err != nil {
		t.Fatalf("first receipt: %v", err)
	}

	worse := receipt("CPUHigh", "critical")
	result, err := c.Process(ctx, worse)
	if err != nil {
		t.Fatalf("second receipt: %v", err)
	}
	if result.Outcome != OutcomeCorrelated {
		t.Fatalf("outcome = %q, want correlated", result.Outcome)
	}
	if result.Alert.TrendIndication != alarm.MoreSevere {
		t.Errorf("trend = %q", result.Alert.TrendIndication)
	}
}

func TestClassifier_ReceiptSequence(t *testing.T) {
	store := setupStore(t)
	c := NewClassifier(store.Alerts(), alarm.NewModel(), zap.NewNop())
	ctx := context.Background()

	first, err := c.Process(ctx, receipt("CPUHigh", "major"))
	if err != nil {
		t.Fatalf("first receipt: %v", err)
	}
	if first.Outcome != OutcomeCreated || first.Alert.Status != alarm.StatusOpen {
		t.Fatalf("first receipt: outcome %q status %q", first.Outcome, first.Alert.Status)
	}

	second, err := c.Process(ctx, receipt("CPUHigh", "major"))
	if err != nil {
		t.Fatalf("second receipt: %v", err)
	}
	if second.Outcome != OutcomeDeduplicated {
		t.Fatalf("second receipt outcome = %q", second.Outcome)
	}
	if second.Alert.DuplicateCount != 1 {
		t.Errorf("duplicateCount = %d, want 1", second.Alert.DuplicateCount)
	}
	if second.Alert.Status != alarm.StatusOpen {
		t.Errorf("dedup changed status to %q", second.Alert.Status)
	}

	third, err := c.Process(ctx, receipt("CPUHigh", "critical"))
	if err != nil {
		t.Fatalf("third receipt: %v", err)
	}
	if third.Outcome != OutcomeCorrelated {
		t.Fatalf("third receipt outcome = %q", third.Outcome)
	}
	a := third.Alert
	if a.DuplicateCount != 0 || a.Repeat {
		t.Errorf("correlate did not reset dedup state: count=%d repeat=%v", a.DuplicateCount, a.Repeat)
	}
	if a.PreviousSeverity != "major" {
		t.Errorf("previousSeverity = %q, want major", a.PreviousSeverity)
	}
	if a.TrendIndication != alarm.MoreSevere {
		t.Errorf("trend = %q, want moreSevere", a.TrendIndication)
	}
	if a.Status != alarm.StatusOpen {
		t.Errorf("status = %q, want open", a.Status)
	}
	if a.ID != first.Alert.ID {
		t.Errorf("correlate moved to a new row: %s != %s", a.ID, first.Alert.ID)
	}
}
