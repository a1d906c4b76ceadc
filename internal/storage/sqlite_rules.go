package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/good-yellow-bee/flare/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

const predicateColumns = `id, active, environment, resource, event, grp,
	service_json, tags_json, severity_json, advanced_severity_json,
	use_advanced_severity, customer, days_json, start_time, end_time,
	user, create_time`

func predicateArgs(p *models.RulePredicate) []any {
	return []any{
		p.ID, p.Active, p.Environment, nullString(p.Resource), nullString(p.Event),
		nullString(p.Group), encodeList(p.Service), encodeList(p.Tags),
		encodeList(p.Severity), encodeAdvanced(p.AdvancedSeverity),
		p.UseAdvancedSeverity, nullString(p.Customer), encodeList(p.Days),
		encodeClock(p.StartTime), encodeClock(p.EndTime),
		nullString(p.User), sqlTime(p.CreateTime),
	}
}

func scanPredicate(rows *sql.Rows, p *models.RulePredicate, extra ...any) error {
	var resource, event, group, customer, startTime, endTime, user sql.NullString
	var service, tags, severity, advanced, days string
	dest := []any{
		&p.ID, &p.Active, &p.Environment, &resource, &event, &group,
		&service, &tags, &severity, &advanced, &p.UseAdvancedSeverity,
		&customer, &days, &startTime, &endTime, &user, &p.CreateTime,
	}
	dest = append(dest, extra...)
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scan rule: %w", err)
	}
	p.Resource = resource.String
	p.Event = event.String
	p.Group = group.String
	p.Customer = customer.String
	p.User = user.String
	p.Service = decodeList(service)
	p.Tags = decodeList(tags)
	p.Severity = decodeList(severity)
	p.AdvancedSeverity = decodeAdvanced(advanced)
	p.Days = decodeList(days)
	p.StartTime = decodeClock(startTime)
	p.EndTime = decodeClock(endTime)
	return nil
}

// Notification rules

func (r *sqliteRuleRepo) CreateNotificationRule(ctx context.Context, rule *models.NotificationRule) error {
	query := fmt.Sprintf(`
		INSERT INTO notification_rules (%s, channel_id, receivers_json,
			user_ids_json, group_ids_json, use_oncall, text)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, predicateColumns)
	args := append(predicateArgs(&rule.RulePredicate),
		rule.ChannelID, encodeList(rule.Receivers), encodeList(rule.UserIDs),
		encodeList(rule.GroupIDs), rule.UseOnCall, nullString(rule.Text))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create notification rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetNotificationRule(ctx context.Context, id string) (*models.NotificationRule, error) {
	rules, err := r.queryNotificationRules(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNotFound
	}
	return rules[0], nil
}

func (r *sqliteRuleRepo) ListNotificationRules(ctx context.Context) ([]*models.NotificationRule, error) {
	return r.queryNotificationRules(ctx, "ORDER BY create_time")
}

func (r *sqliteRuleRepo) queryNotificationRules(ctx context.Context, clause string, args ...any) ([]*models.NotificationRule, error) {
	query := fmt.Sprintf(`
		SELECT %s, channel_id, receivers_json, user_ids_json, group_ids_json,
			use_oncall, text
		FROM notification_rules %s
	`, predicateColumns, clause)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notification rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.NotificationRule
	for rows.Next() {
		rule := &models.NotificationRule{}
		var receivers, userIDs, groupIDs string
		var text sql.NullString
		err := scanPredicate(rows, &rule.RulePredicate,
			&rule.ChannelID, &receivers, &userIDs, &groupIDs, &rule.UseOnCall, &text)
		if err != nil {
			return nil, err
		}
		rule.Receivers = decodeList(receivers)
		rule.UserIDs = decodeList(userIDs)
		rule.GroupIDs = decodeList(groupIDs)
		rule.Text = text.String
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *sqliteRuleRepo) UpdateNotificationRule(ctx context.Context, rule *models.NotificationRule) error {
	query := `
		UPDATE notification_rules SET
			active = ?, environment = ?, resource = ?, event = ?, grp = ?,
			service_json = ?, tags_json = ?, severity_json = ?,
			advanced_severity_json = ?, use_advanced_severity = ?, customer = ?,
			days_json = ?, start_time = ?, end_time = ?, user = ?,
			channel_id = ?, receivers_json = ?, user_ids_json = ?,
			group_ids_json = ?, use_oncall = ?, text = ?
		WHERE id = ?
	`
	p := &rule.RulePredicate
	res, err := r.db.ExecContext(ctx, query,
		p.Active, p.Environment, nullString(p.Resource), nullString(p.Event),
		nullString(p.Group), encodeList(p.Service), encodeList(p.Tags),
		encodeList(p.Severity), encodeAdvanced(p.AdvancedSeverity),
		p.UseAdvancedSeverity, nullString(p.Customer), encodeList(p.Days),
		encodeClock(p.StartTime), encodeClock(p.EndTime), nullString(p.User),
		rule.ChannelID, encodeList(rule.Receivers), encodeList(rule.UserIDs),
		encodeList(rule.GroupIDs), rule.UseOnCall, nullString(rule.Text),
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("update notification rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRuleRepo) DeleteNotificationRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM notification_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete notification rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Escalation rules

func (r *sqliteRuleRepo) CreateEscalationRule(ctx context.Context, rule *models.EscalationRule) error {
	query := fmt.Sprintf(`
		INSERT INTO escalation_rules (%s, time_seconds)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, predicateColumns)
	args := append(predicateArgs(&rule.RulePredicate), int64(rule.Time))
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("create escalation rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetEscalationRule(ctx context.Context, id string) (*models.EscalationRule, error) {
	rules, err := r.queryEscalationRules(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, ErrNotFound
	}
	return rules[0], nil
}

func (r *sqliteRuleRepo) ListEscalationRules(ctx context.Context) ([]*models.EscalationRule, error) {
	return r.queryEscalationRules(ctx, "ORDER BY create_time")
}

func (r *sqliteRuleRepo) queryEscalationRules(ctx context.Context, clause string, args ...any) ([]*models.EscalationRule, error) {
	query := fmt.Sprintf(`
		SELECT %s, time_seconds FROM escalation_rules %s
	`, predicateColumns, clause)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.EscalationRule
	for rows.Next() {
		rule := &models.EscalationRule{}
		var seconds int64
		if err := scanPredicate(rows, &rule.RulePredicate, &seconds); err != nil {
			return nil, err
		}
		rule.Time = models.DurationSeconds(seconds)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *sqliteRuleRepo) UpdateEscalationRule(ctx context.Context, rule *models.EscalationRule) error {
	query := `
		UPDATE escalation_rules SET
			active = ?, environment = ?, resource = ?, event = ?, grp = ?,
			service_json = ?, tags_json = ?, severity_json = ?,
			advanced_severity_json = ?, use_advanced_severity = ?, customer = ?,
			days_json = ?, start_time = ?, end_time = ?, user = ?,
			time_seconds = ?
		WHERE id = ?
	`
	p := &rule.RulePredicate
	res, err := r.db.ExecContext(ctx, query,
		p.Active, p.Environment, nullString(p.Resource), nullString(p.Event),
		nullString(p.Group), encodeList(p.Service), encodeList(p.Tags),
		encodeList(p.Severity), encodeAdvanced(p.AdvancedSeverity),
		p.UseAdvancedSeverity, nullString(p.Customer), encodeList(p.Days),
		encodeClock(p.StartTime), encodeClock(p.EndTime), nullString(p.User),
		int64(rule.Time), p.ID,
	)
	if err != nil {
		return fmt.Errorf("update escalation rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRuleRepo) DeleteEscalationRule(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM escalation_rules WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete escalation rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Column codecs for rule-specific shapes.

func encodeAdvanced(list []models.AdvancedSeverity) string {
	if list == nil {
		list = []models.AdvancedSeverity{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func decodeAdvanced(data string) []models.AdvancedSeverity {
	var list []models.AdvancedSeverity
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil
	}
	return list
}

func encodeClock(c *models.Clock) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: c.String(), Valid: true}
}

func decodeClock(s sql.NullString) *models.Clock {
	if !s.Valid || s.String == "" {
		return nil
	}
	c, err := models.ParseClock(s.String)
	if err != nil {
		return nil
	}
	return &c
}
