package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/flare/internal/models"
)

type sqliteBlackoutRepo struct {
	db *sql.DB
}

const blackoutColumns = `id, environment, resource, event, grp, service_json,
	tags_json, customer, start_time, end_time`

func (r *sqliteBlackoutRepo) Create(ctx context.Context, blackout *models.Blackout) error {
	query := fmt.Sprintf(`
		INSERT INTO blackouts (%s)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, blackoutColumns)
	_, err := r.db.ExecContext(ctx, query,
		blackout.ID, blackout.Environment, nullString(blackout.Resource),
		nullString(blackout.Event), nullString(blackout.Group),
		encodeList(blackout.Service), encodeList(blackout.Tags),
		nullString(blackout.Customer), sqlTime(blackout.StartTime), sqlTime(blackout.EndTime),
	)
	if err != nil {
		return fmt.Errorf("create blackout: %w", err)
	}
	return nil
}

func (r *sqliteBlackoutRepo) List(ctx context.Context) ([]*models.Blackout, error) {
	return r.query(ctx, "ORDER BY start_time")
}

func (r *sqliteBlackoutRepo) FindActive(ctx context.Context, now time.Time) ([]*models.Blackout, error) {
	return r.query(ctx, "WHERE start_time <= ? AND end_time > ?", sqlTime(now), sqlTime(now))
}

func (r *sqliteBlackoutRepo) query(ctx context.Context, clause string, args ...any) ([]*models.Blackout, error) {
	query := fmt.Sprintf("SELECT %s FROM blackouts %s", blackoutColumns, clause)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query blackouts: %w", err)
	}
	defer rows.Close()

	var blackouts []*models.Blackout
	for rows.Next() {
		b := &models.Blackout{}
		var resource, event, group, customer sql.NullString
		var service, tags string
		err := rows.Scan(&b.ID, &b.Environment, &resource, &event, &group,
			&service, &tags, &customer, &b.StartTime, &b.EndTime)
		if err != nil {
			return nil, fmt.Errorf("scan blackout: %w", err)
		}
		b.Resource = resource.String
		b.Event = event.String
		b.Group = group.String
		b.Customer = customer.String
		b.Service = decodeList(service)
		b.Tags = decodeList(tags)
		blackouts = append(blackouts, b)
	}
	return blackouts, rows.Err()
}

func (r *sqliteBlackoutRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM blackouts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete blackout: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
