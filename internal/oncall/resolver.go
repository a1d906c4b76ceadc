// Package oncall resolves which users are on call at a point in time.
// Schedules combine a date range, a daily time window and an optional
// repeat qualifier; users come from explicit ids plus group expansion.
package oncall

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/flare/internal/models"
	"github.com/good-yellow-bee/flare/internal/storage"
)

// Resolver expands on-call schedules into user sets. Group membership is
// read fresh on every resolution so roster changes take effect immediately.
type Resolver struct {
	onCalls storage.OnCallRepository
	groups  storage.GroupRepository
	logger  *zap.Logger
}

// NewResolver creates a resolver over the given repositories.
func NewResolver(onCalls storage.OnCallRepository, groups storage.GroupRepository, logger *zap.Logger) *Resolver {
	return &Resolver{
		onCalls: onCalls,
		groups:  groups,
		logger:  logger,
	}
}

// UsersOnCallNow returns the union of users from every schedule active at
// now, deduplicated by user id.
func (r *Resolver) UsersOnCallNow(ctx context.Context, now time.Time) ([]models.UserRef, error) {
	schedules, err := r.onCalls.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list on-calls: %w", err)
	}

	seen := make(map[string]bool)
	var users []models.UserRef
	for _, oc := range schedules {
		if !Active(oc, now) {
			continue
		}
		expanded, err := r.expand(ctx, oc)
		if err != nil {
			return nil, err
		}
		for _, u := range expanded {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			users = append(users, u)
		}
	}
	return users, nil
}

// ActiveUsers returns the users of one schedule if it is active at now, or
// an empty set otherwise. Resolution is idempotent: repeated calls with the
// same inputs and group state return the same set.
func (r *Resolver) ActiveUsers(ctx context.Context, oc *models.OnCall, now time.Time) ([]models.UserRef, error) {
	if !Active(oc, now) {
		return nil, nil
	}
	return r.expand(ctx, oc)
}

func (r *Resolver) expand(ctx context.Context, oc *models.OnCall) ([]models.UserRef, error) {
	seen := make(map[string]bool)
	var users []models.UserRef
	for _, id := range oc.UserIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		users = append(users, models.UserRef{ID: id})
	}
	for _, groupID := range oc.GroupIDs {
		members, err := r.groups.Members(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("expand group %s: %w", groupID, err)
		}
		for _, u := range members {
			if seen[u.ID] {
				continue
			}
			seen[u.ID] = true
			users = append(users, u)
		}
	}
	return users, nil
}

// Active reports whether the schedule covers the instant now. The date range
// bounds every repeat type; the daily time window may wrap midnight; the
// repeat qualifiers narrow which days recur.
func Active(oc *models.OnCall, now time.Time) bool {
	now = now.UTC()

	if oc.StartDate != nil && now.Before(oc.StartDate.StartOfDay(time.UTC)) {
		return false
	}
	if oc.EndDate != nil && now.After(oc.EndDate.EndOfDay(time.UTC)) {
		return false
	}

	switch oc.RepeatType {
	case models.RepeatNone:
		// bounded by the date range alone
	case models.RepeatDaily:
		// recurs every day inside the date range
	case models.RepeatWeekly:
		if !models.MatchesDay(oc.RepeatDays, now) {
			return false
		}
		if len(oc.RepeatWeeks) > 0 {
			_, week := now.ISOWeek()
			if !containsInt(oc.RepeatWeeks, week) {
				return false
			}
		}
	case models.RepeatMonthly:
		if len(oc.RepeatMonths) > 0 && !containsMonth(oc.RepeatMonths, now.Month()) {
			return false
		}
		if !models.MatchesDay(oc.RepeatDays, now) {
			return false
		}
	default:
		return false
	}

	return models.InClockWindow(oc.StartTime, oc.EndTime, now)
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsMonth(list []time.Month, m time.Month) bool {
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}
