package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// On-call repeat types.
const (
	RepeatNone    = ""
	RepeatDaily   = "daily"
	RepeatWeekly  = "weekly"
	RepeatMonthly = "monthly"
)

// OnCall is a scheduled duty window. It resolves to a concrete user set at a
// given instant via the oncall resolver; group membership is expanded fresh
// on every resolution.
type OnCall struct {
	ID           string       `json:"id"`
	UserIDs      []string     `json:"userIds"`
	GroupIDs     []string     `json:"groupIds"`
	StartDate    *Date        `json:"startDate,omitempty"`
	EndDate      *Date        `json:"endDate,omitempty"`
	StartTime    *Clock       `json:"startTime,omitempty"`
	EndTime      *Clock       `json:"endTime,omitempty"`
	RepeatType   string       `json:"repeatType,omitempty"`
	RepeatDays   []string     `json:"repeatDays,omitempty"`
	RepeatWeeks  []int        `json:"repeatWeeks,omitempty"`
	RepeatMonths []time.Month `json:"repeatMonths,omitempty"`
	Customer     string       `json:"customer,omitempty"`
	User         string       `json:"user,omitempty"`
	CreateTime   time.Time    `json:"createTime"`
}

// ParseOnCall validates and constructs an OnCall from its JSON wire form.
// At least one user id or group id is required.
func ParseOnCall(data []byte) (*OnCall, error) {
	var oc OnCall
	if err := json.Unmarshal(data, &oc); err != nil {
		return nil, NewValidationError("invalid on-call document: %v", err)
	}
	if len(oc.UserIDs) == 0 && len(oc.GroupIDs) == 0 {
		return nil, NewValidationError("missing userIds to alert")
	}
	switch oc.RepeatType {
	case RepeatNone, RepeatDaily, RepeatWeekly, RepeatMonthly:
	default:
		return nil, NewValidationError("invalid repeatType %q", oc.RepeatType)
	}
	if oc.ID == "" {
		oc.ID = uuid.New().String()
	}
	if oc.UserIDs == nil {
		oc.UserIDs = []string{}
	}
	if oc.GroupIDs == nil {
		oc.GroupIDs = []string{}
	}
	if oc.CreateTime.IsZero() {
		oc.CreateTime = time.Now().UTC()
	}
	return &oc, nil
}
