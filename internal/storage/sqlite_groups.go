package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/flare/internal/models"
)

type sqliteGroupRepo struct {
	db *sql.DB
}

func (r *sqliteGroupRepo) Members(ctx context.Context, groupID string) ([]models.UserRef, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, name, email, country_code, phone_number
		FROM group_members WHERE group_id = ? ORDER BY user_id
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("query group members: %w", err)
	}
	defer rows.Close()

	var members []models.UserRef
	for rows.Next() {
		var u models.UserRef
		var name, email, countryCode, phoneNumber sql.NullString
		if err := rows.Scan(&u.ID, &name, &email, &countryCode, &phoneNumber); err != nil {
			return nil, fmt.Errorf("scan group member: %w", err)
		}
		u.Name = name.String
		u.Email = email.String
		u.CountryCode = countryCode.String
		u.PhoneNumber = phoneNumber.String
		members = append(members, u)
	}
	return members, rows.Err()
}

func (r *sqliteGroupRepo) AddMember(ctx context.Context, groupID string, user models.UserRef) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO group_members (group_id, user_id, name, email, country_code, phone_number)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (group_id, user_id) DO UPDATE SET
			name = excluded.name, email = excluded.email,
			country_code = excluded.country_code, phone_number = excluded.phone_number
	`, groupID, user.ID, nullString(user.Name), nullString(user.Email),
		nullString(user.CountryCode), nullString(user.PhoneNumber))
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (r *sqliteGroupRepo) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM group_members WHERE group_id = ? AND user_id = ?", groupID, userID)
	if err != nil {
		return fmt.Errorf("remove group member: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
