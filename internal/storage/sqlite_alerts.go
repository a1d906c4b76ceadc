package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/flare/internal/models"
)

type sqliteAlertRepo struct {
	db    *sql.DB
	locks *KeyedLock
}

const alertColumns = `id, resource, event, environment, severity, correlate_json,
	status, service_json, grp, value, text, tags_json, attributes_json,
	origin, event_type, create_time, timeout, raw_data, customer,
	duplicate_count, repeat, previous_severity, trend_indication,
	receive_time, last_receive_id, last_receive_time`

func (r *sqliteAlertRepo) KeyLock(environment, resource, event string) *KeyedLockHandle {
	return r.locks.Handle(environment, resource, event)
}

func (r *sqliteAlertRepo) FindByIdentity(ctx context.Context, environment, resource, event string, correlate []string) (*models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE environment = ? AND resource = ?`, alertColumns)
	rows, err := r.db.QueryContext(ctx, query, environment, resource)
	if err != nil {
		return nil, fmt.Errorf("query alerts by identity: %w", err)
	}
	defer rows.Close()

	candidates, err := r.scanAlerts(rows)
	if err != nil {
		return nil, err
	}

	// Exact event match wins; otherwise fall back to the correlation set in
	// either direction (incoming event known to the stored alert, or stored
	// event named by the incoming correlate list).
	var correlated *models.Alert
	for _, a := range candidates {
		if a.Event == event {
			return r.attachHistory(ctx, a)
		}
		if correlated == nil && (a.CorrelatesWith(event) || containsString(correlate, a.Event)) {
			correlated = a
		}
	}
	if correlated != nil {
		return r.attachHistory(ctx, correlated)
	}
	return nil, nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE id = ?`, alertColumns)
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("query alert by id: %w", err)
	}
	defer rows.Close()

	alerts, err := r.scanAlerts(rows)
	if err != nil {
		return nil, err
	}
	if len(alerts) == 0 {
		return nil, ErrNotFound
	}
	return r.attachHistory(ctx, alerts[0])
}

func (r *sqliteAlertRepo) List(ctx context.Context, environment string, limit int) ([]*models.Alert, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := fmt.Sprintf(`SELECT %s FROM alerts`, alertColumns)
	args := []any{}
	if environment != "" {
		query += " WHERE environment = ?"
		args = append(args, environment)
	}
	query += " ORDER BY last_receive_time DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	return r.scanAlerts(rows)
}

func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create alert: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`INSERT INTO alerts (%s) VALUES
		(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, alertColumns)
	_, err = tx.ExecContext(ctx, query,
		alert.ID, alert.Resource, alert.Event, alert.Environment, alert.Severity,
		encodeList(alert.Correlate), alert.Status, encodeList(alert.Service),
		alert.Group, nullString(alert.Value), nullString(alert.Text),
		encodeList(alert.Tags), encodeMap(alert.Attributes),
		nullString(alert.Origin), alert.EventType, sqlTime(alert.CreateTime),
		alert.Timeout, nullString(alert.RawData), nullString(alert.Customer),
		alert.DuplicateCount, alert.Repeat, nullString(alert.PreviousSeverity),
		nullString(alert.TrendIndication), sqlTime(alert.ReceiveTime),
		nullString(alert.LastReceiveID), sqlTime(alert.LastReceiveTime),
	)
	if err != nil {
		return nil, fmt.Errorf("create alert: %w", err)
	}

	for _, h := range alert.History {
		if err := insertHistory(ctx, tx, alert.ID, h); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create alert: %w", err)
	}
	return alert, nil
}

func (r *sqliteAlertRepo) DedupUpdate(ctx context.Context, alert *models.Alert, history *models.History) (*models.Alert, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin dedup update: %w", err)
	}
	defer tx.Rollback()

	tagsJSON, attrsJSON, err := mergeTagsAndAttributes(ctx, tx, alert.ID, alert.Tags, alert.Attributes)
	if err != nil {
		return nil, err
	}

	// The row keeps its original id; only the receipt bookkeeping moves.
	query := `
		UPDATE alerts SET
			severity = ?, status = ?, value = ?, text = ?,
			tags_json = ?, attributes_json = ?, raw_data = ?,
			duplicate_count = duplicate_count + 1, repeat = 1,
			receive_time = ?, last_receive_id = ?, last_receive_time = ?
		WHERE id = ?
	`
	res, err := tx.ExecContext(ctx, query,
		alert.Severity, alert.Status, nullString(alert.Value), nullString(alert.Text),
		tagsJSON, attrsJSON, nullString(alert.RawData),
		sqlTime(alert.ReceiveTime), alert.LastReceiveID, sqlTime(alert.LastReceiveTime),
		alert.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("dedup update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	if history != nil {
		if err := insertHistory(ctx, tx, alert.ID, *history); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit dedup update: %w", err)
	}
	return r.GetByID(ctx, alert.ID)
}

func (r *sqliteAlertRepo) CorrelateUpdate(ctx context.Context, alert *models.Alert, history []models.History) (*models.Alert, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin correlate update: %w", err)
	}
	defer tx.Rollback()

	tagsJSON, attrsJSON, err := mergeTagsAndAttributes(ctx, tx, alert.ID, alert.Tags, alert.Attributes)
	if err != nil {
		return nil, err
	}

	// Correlation replaces the event name on the stored row along with the
	// severity bookkeeping; the row id stays stable across the incident.
	query := `
		UPDATE alerts SET
			event = ?, severity = ?, correlate_json = ?, status = ?,
			service_json = ?, value = ?, text = ?, tags_json = ?,
			attributes_json = ?, create_time = ?, timeout = ?, raw_data = ?,
			duplicate_count = 0, repeat = 0, previous_severity = ?,
			trend_indication = ?, receive_time = ?, last_receive_id = ?,
			last_receive_time = ?
		WHERE environment = ? AND resource = ? AND id = ?
	`
	res, err := tx.ExecContext(ctx, query,
		alert.Event, alert.Severity, encodeList(alert.Correlate), alert.Status,
		encodeList(alert.Service), nullString(alert.Value), nullString(alert.Text),
		tagsJSON, attrsJSON, sqlTime(alert.CreateTime),
		alert.Timeout, nullString(alert.RawData), nullString(alert.PreviousSeverity),
		nullString(alert.TrendIndication), sqlTime(alert.ReceiveTime), alert.LastReceiveID,
		sqlTime(alert.LastReceiveTime),
		alert.Environment, alert.Resource, alert.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("correlate update: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	for _, h := range history {
		if err := insertHistory(ctx, tx, alert.ID, h); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit correlate update: %w", err)
	}
	return r.GetByID(ctx, alert.ID)
}

func (r *sqliteAlertRepo) SetStatus(ctx context.Context, id, status string, timeout int, history models.History) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin set status: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE alerts SET status = ?, timeout = ? WHERE id = ?", status, timeout, id)
	if err != nil {
		return false, fmt.Errorf("set status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if err := insertHistory(ctx, tx, id, history); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit set status: %w", err)
	}
	return true, nil
}

func (r *sqliteAlertRepo) SetSeverityAndStatus(ctx context.Context, id, severity, status string, timeout int, history models.History) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin set severity and status: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE alerts SET severity = ?, status = ?, timeout = ? WHERE id = ?",
		severity, status, timeout, id)
	if err != nil {
		return false, fmt.Errorf("set severity and status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, nil
	}
	if err := insertHistory(ctx, tx, id, history); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit set severity and status: %w", err)
	}
	return true, nil
}

func (r *sqliteAlertRepo) Tag(ctx context.Context, id string, tags []string) (bool, error) {
	return r.mutateTags(ctx, id, func(current []string) []string {
		for _, t := range tags {
			if !containsString(current, t) {
				current = append(current, t)
			}
		}
		return current
	})
}

func (r *sqliteAlertRepo) Untag(ctx context.Context, id string, tags []string) (bool, error) {
	return r.mutateTags(ctx, id, func(current []string) []string {
		kept := current[:0]
		for _, t := range current {
			if !containsString(tags, t) {
				kept = append(kept, t)
			}
		}
		return kept
	})
}

func (r *sqliteAlertRepo) mutateTags(ctx context.Context, id string, mutate func([]string) []string) (bool, error) {
	var tagsJSON string
	err := r.db.QueryRowContext(ctx, "SELECT tags_json FROM alerts WHERE id = ?", id).Scan(&tagsJSON)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read tags: %w", err)
	}

	tags := decodeList(tagsJSON)
	tags = mutate(tags)

	_, err = r.db.ExecContext(ctx, "UPDATE alerts SET tags_json = ? WHERE id = ?", encodeList(tags), id)
	if err != nil {
		return false, fmt.Errorf("write tags: %w", err)
	}
	return true, nil
}

func (r *sqliteAlertRepo) UpdateAttributes(ctx context.Context, id string, attributes map[string]string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE alerts SET attributes_json = ? WHERE id = ?", encodeMap(attributes), id)
	if err != nil {
		return false, fmt.Errorf("update attributes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *sqliteAlertRepo) Delete(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM alerts WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete alert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *sqliteAlertRepo) HousekeepingCandidates(ctx context.Context, now time.Time, shelveTimeout time.Duration) (expired, unshelved []HousekeepingCandidate, err error) {
	// Expiry: any non-terminal alert overdue on its own timeout.
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event, status, COALESCE(last_receive_id, id)
		FROM alerts
		WHERE status NOT IN ('expired', 'closed', 'shelved')
		  AND timeout > 0
		  AND datetime(last_receive_time, '+' || timeout || ' seconds') < datetime(?)
	`, sqlTime(now))
	if err != nil {
		return nil, nil, fmt.Errorf("query expired candidates: %w", err)
	}
	expired, err = scanCandidates(rows)
	if err != nil {
		return nil, nil, err
	}

	// Unshelve: shelved alerts whose shelve window has elapsed.
	rows, err = r.db.QueryContext(ctx, `
		SELECT id, event, status, COALESCE(last_receive_id, id)
		FROM alerts
		WHERE status = 'shelved'
		  AND datetime(last_receive_time, '+' || ? || ' seconds') < datetime(?)
	`, int(shelveTimeout.Seconds()), sqlTime(now))
	if err != nil {
		return nil, nil, fmt.Errorf("query unshelve candidates: %w", err)
	}
	unshelved, err = scanCandidates(rows)
	if err != nil {
		return nil, nil, err
	}
	return expired, unshelved, nil
}

// mergeTagsAndAttributes folds incoming tags and attributes into the stored
// row's values. Tags union without duplicates, attribute keys from the
// incoming receipt win. Operator-added tags and attributes survive repeats.
func mergeTagsAndAttributes(ctx context.Context, tx *sql.Tx, id string, tags []string, attributes map[string]string) (string, string, error) {
	var tagsJSON, attrsJSON string
	err := tx.QueryRowContext(ctx,
		"SELECT tags_json, attributes_json FROM alerts WHERE id = ?", id).Scan(&tagsJSON, &attrsJSON)
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("read tags and attributes: %w", err)
	}

	merged := decodeList(tagsJSON)
	for _, t := range tags {
		if !containsString(merged, t) {
			merged = append(merged, t)
		}
	}
	attrs := decodeMap(attrsJSON)
	for k, v := range attributes {
		attrs[k] = v
	}
	return encodeList(merged), encodeMap(attrs), nil
}

func scanCandidates(rows *sql.Rows) ([]HousekeepingCandidate, error) {
	defer rows.Close()
	var out []HousekeepingCandidate
	for rows.Next() {
		var c HousekeepingCandidate
		if err := rows.Scan(&c.ID, &c.Event, &c.Status, &c.LastReceiveID); err != nil {
			return nil, fmt.Errorf("scan housekeeping candidate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *sqliteAlertRepo) attachHistory(ctx context.Context, alert *models.Alert) (*models.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event, severity, status, value, text, change_type, update_time
		FROM alert_history WHERE alert_id = ? ORDER BY seq
	`, alert.ID)
	if err != nil {
		return nil, fmt.Errorf("query alert history: %w", err)
	}
	defer rows.Close()

	alert.History = []models.History{}
	for rows.Next() {
		var h models.History
		var severity, status, value, text sql.NullString
		if err := rows.Scan(&h.ID, &h.Event, &severity, &status, &value, &text, &h.ChangeType, &h.UpdateTime); err != nil {
			return nil, fmt.Errorf("scan alert history: %w", err)
		}
		h.Severity = severity.String
		h.Status = status.String
		h.Value = value.String
		h.Text = text.String
		alert.History = append(alert.History, h)
	}
	return alert, rows.Err()
}

func insertHistory(ctx context.Context, tx *sql.Tx, alertID string, h models.History) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO alert_history (alert_id, id, event, severity, status, value, text, change_type, update_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, alertID, h.ID, h.Event, nullString(h.Severity), nullString(h.Status),
		nullString(h.Value), nullString(h.Text), h.ChangeType, sqlTime(h.UpdateTime))
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	return nil
}

func (r *sqliteAlertRepo) scanAlerts(rows *sql.Rows) ([]*models.Alert, error) {
	var alerts []*models.Alert
	for rows.Next() {
		a := &models.Alert{}
		var correlate, service, tags, attributes string
		var value, text, origin, rawData, customer sql.NullString
		var previousSeverity, trendIndication, lastReceiveID sql.NullString
		err := rows.Scan(
			&a.ID, &a.Resource, &a.Event, &a.Environment, &a.Severity, &correlate,
			&a.Status, &service, &a.Group, &value, &text, &tags, &attributes,
			&origin, &a.EventType, &a.CreateTime, &a.Timeout, &rawData, &customer,
			&a.DuplicateCount, &a.Repeat, &previousSeverity, &trendIndication,
			&a.ReceiveTime, &lastReceiveID, &a.LastReceiveTime,
		)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Correlate = decodeList(correlate)
		a.Service = decodeList(service)
		a.Tags = decodeList(tags)
		a.Attributes = decodeMap(attributes)
		a.Value = value.String
		a.Text = text.String
		a.Origin = origin.String
		a.RawData = rawData.String
		a.Customer = customer.String
		a.PreviousSeverity = previousSeverity.String
		a.TrendIndication = trendIndication.String
		a.LastReceiveID = lastReceiveID.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Timestamps are bound as text in a form SQLite's date functions can parse
// and the driver scans back into time.Time. The driver's default time.Time
// binding stores Go's String() form, which datetime() treats as NULL.
const sqlTimeLayout = "2006-01-02 15:04:05.999999999-07:00"

func sqlTime(t time.Time) string {
	return t.UTC().Format(sqlTimeLayout)
}

// JSON column helpers shared by all repositories.

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func decodeList(data string) []string {
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil || list == nil {
		return []string{}
	}
	return list
}

func encodeMap(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	data, _ := json.Marshal(m)
	return string(data)
}

func decodeMap(data string) map[string]string {
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil || m == nil {
		return map[string]string{}
	}
	return m
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
