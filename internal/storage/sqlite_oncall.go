package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/good-yellow-bee/flare/internal/models"
)

type sqliteOnCallRepo struct {
	db *sql.DB
}

const onCallColumns = `id, user_ids_json, group_ids_json, start_date, end_date,
	start_time, end_time, repeat_type, repeat_days_json, repeat_weeks_json,
	repeat_months_json, customer, user, create_time`

func (r *sqliteOnCallRepo) Create(ctx context.Context, onCall *models.OnCall) error {
	query := fmt.Sprintf(`
		INSERT INTO on_calls (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, onCallColumns)
	_, err := r.db.ExecContext(ctx, query,
		onCall.ID, encodeList(onCall.UserIDs), encodeList(onCall.GroupIDs),
		encodeDate(onCall.StartDate), encodeDate(onCall.EndDate),
		encodeClock(onCall.StartTime), encodeClock(onCall.EndTime),
		nullString(onCall.RepeatType), encodeList(onCall.RepeatDays),
		encodeInts(onCall.RepeatWeeks), encodeMonths(onCall.RepeatMonths),
		nullString(onCall.Customer), nullString(onCall.User), sqlTime(onCall.CreateTime),
	)
	if err != nil {
		return fmt.Errorf("create on-call: %w", err)
	}
	return nil
}

func (r *sqliteOnCallRepo) GetByID(ctx context.Context, id string) (*models.OnCall, error) {
	onCalls, err := r.query(ctx, "WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(onCalls) == 0 {
		return nil, ErrNotFound
	}
	return onCalls[0], nil
}

func (r *sqliteOnCallRepo) List(ctx context.Context) ([]*models.OnCall, error) {
	return r.query(ctx, "ORDER BY create_time")
}

func (r *sqliteOnCallRepo) query(ctx context.Context, clause string, args ...any) ([]*models.OnCall, error) {
	query := fmt.Sprintf("SELECT %s FROM on_calls %s", onCallColumns, clause)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query on-calls: %w", err)
	}
	defer rows.Close()

	var onCalls []*models.OnCall
	for rows.Next() {
		oc := &models.OnCall{}
		var userIDs, groupIDs, repeatDays, repeatWeeks, repeatMonths string
		var startDate, endDate, startTime, endTime, repeatType, customer, user sql.NullString
		err := rows.Scan(&oc.ID, &userIDs, &groupIDs, &startDate, &endDate,
			&startTime, &endTime, &repeatType, &repeatDays, &repeatWeeks,
			&repeatMonths, &customer, &user, &oc.CreateTime)
		if err != nil {
			return nil, fmt.Errorf("scan on-call: %w", err)
		}
		oc.UserIDs = decodeList(userIDs)
		oc.GroupIDs = decodeList(groupIDs)
		oc.StartDate = decodeDate(startDate)
		oc.EndDate = decodeDate(endDate)
		oc.StartTime = decodeClock(startTime)
		oc.EndTime = decodeClock(endTime)
		oc.RepeatType = repeatType.String
		oc.RepeatDays = decodeList(repeatDays)
		oc.RepeatWeeks = decodeInts(repeatWeeks)
		oc.RepeatMonths = decodeMonths(repeatMonths)
		oc.Customer = customer.String
		oc.User = user.String
		onCalls = append(onCalls, oc)
	}
	return onCalls, rows.Err()
}

func (r *sqliteOnCallRepo) Update(ctx context.Context, onCall *models.OnCall) error {
	query := `
		UPDATE on_calls SET
			user_ids_json = ?, group_ids_json = ?, start_date = ?, end_date = ?,
			start_time = ?, end_time = ?, repeat_type = ?, repeat_days_json = ?,
			repeat_weeks_json = ?, repeat_months_json = ?, customer = ?, user = ?
		WHERE id = ?
	`
	res, err := r.db.ExecContext(ctx, query,
		encodeList(onCall.UserIDs), encodeList(onCall.GroupIDs),
		encodeDate(onCall.StartDate), encodeDate(onCall.EndDate),
		encodeClock(onCall.StartTime), encodeClock(onCall.EndTime),
		nullString(onCall.RepeatType), encodeList(onCall.RepeatDays),
		encodeInts(onCall.RepeatWeeks), encodeMonths(onCall.RepeatMonths),
		nullString(onCall.Customer), nullString(onCall.User), onCall.ID,
	)
	if err != nil {
		return fmt.Errorf("update on-call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteOnCallRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM on_calls WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete on-call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func encodeDate(d *models.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func decodeDate(s sql.NullString) *models.Date {
	if !s.Valid || s.String == "" {
		return nil
	}
	d, err := models.ParseDate(s.String)
	if err != nil {
		return nil
	}
	return &d
}

func encodeInts(list []int) string {
	if list == nil {
		list = []int{}
	}
	data, _ := json.Marshal(list)
	return string(data)
}

func decodeInts(data string) []int {
	var list []int
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil
	}
	return list
}

func encodeMonths(list []time.Month) string {
	ints := make([]int, len(list))
	for i, m := range list {
		ints[i] = int(m)
	}
	return encodeInts(ints)
}

func decodeMonths(data string) []time.Month {
	ints := decodeInts(data)
	if ints == nil {
		return nil
	}
	months := make([]time.Month, len(ints))
	for i, v := range ints {
		months[i] = time.Month(v)
	}
	return months
}
