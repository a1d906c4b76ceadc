// Package alarm implements the severity/status state machine that derives an
// alert's operational status from its severity history. The model (severity
// order, status set, transition policy) is configurable; the default mirrors
// the classic network operations model where lower levels are more urgent.
package alarm

// Alert status values.
const (
	StatusOpen     = "open"
	StatusAssign   = "assign"
	StatusAck      = "ack"
	StatusClosed   = "closed"
	StatusExpired  = "expired"
	StatusBlackout = "blackout"
	StatusShelved  = "shelved"
	StatusUnknown  = "unknown"
	StatusNotValid = "notValid"
)

// Trend indications returned by Trend.
const (
	MoreSevere = "moreSevere"
	NoChange   = "noChange"
	LessSevere = "lessSevere"
)

// Operator actions understood by Transition.
const (
	ActionAck      = "ack"
	ActionUnack    = "unack"
	ActionShelve   = "shelve"
	ActionUnshelve = "unshelve"
	ActionClose    = "close"
	ActionEscalate = "escalate"
)

// defaultSeverityMap orders severities from most urgent (0) to least.
var defaultSeverityMap = map[string]int{
	"security":      0,
	"critical":      1,
	"major":         2,
	"minor":         3,
	"warning":       4,
	"normal":        5,
	"ok":            5,
	"cleared":       5,
	"indeterminate": 5,
	"informational": 6,
	"debug":         7,
	"trace":         8,
	"unknown":       9,
}

const defaultNormalLevel = 5

// Model is an alarm model: the severity total order plus the status
// transition policy. Transition and Trend are pure functions of their inputs.
type Model struct {
	// Severity maps severity names to urgency levels, lower is more urgent.
	Severity map[string]int
	// NormalLevel is the level at which an alert is considered resolved.
	NormalLevel int
	// DefaultNormalSeverity is the severity assigned on operator close.
	DefaultNormalSeverity string
	// DefaultPreviousSeverity seeds previous_severity on first receipt.
	DefaultPreviousSeverity string
	// DefaultStatus is the status of an alert before derivation.
	DefaultStatus string
}

// NewModel returns the default alarm model.
func NewModel() *Model {
	return &Model{
		Severity:                defaultSeverityMap,
		NormalLevel:             defaultNormalLevel,
		DefaultNormalSeverity:   "normal",
		DefaultPreviousSeverity: "indeterminate",
		DefaultStatus:           StatusUnknown,
	}
}

// IsValidSeverity reports whether the severity name is part of the model.
func (m *Model) IsValidSeverity(severity string) bool {
	_, ok := m.Severity[severity]
	return ok
}

// Level returns the urgency level for a severity. Unrecognized severities
// map to the least urgent level so Transition stays total.
func (m *Model) Level(severity string) int {
	if level, ok := m.Severity[severity]; ok {
		return level
	}
	max := 0
	for _, level := range m.Severity {
		if level > max {
			max = level
		}
	}
	return max
}

// Trend compares previous and current severity and reports whether the alert
// got more severe, less severe, or stayed the same.
func (m *Model) Trend(previous, current string) string {
	switch {
	case m.Level(previous) > m.Level(current):
		return MoreSevere
	case m.Level(previous) < m.Level(current):
		return LessSevere
	default:
		return NoChange
	}
}

// Transition computes the next (severity, status) pair. Operator actions take
// precedence over severity-driven derivation. Ack, shelved and blackout are
// sticky: only an explicit action or a normal-severity receipt clears them.
func (m *Model) Transition(previousSeverity, currentSeverity, previousStatus, currentStatus, action string) (string, string) {
	if previousStatus == "" {
		previousStatus = StatusOpen
	}
	if currentStatus == "" {
		currentStatus = m.DefaultStatus
	}

	// transitions driven by operator actions
	switch action {
	case ActionUnack:
		return currentSeverity, StatusOpen
	case ActionShelve:
		return currentSeverity, StatusShelved
	case ActionUnshelve:
		return currentSeverity, StatusOpen
	case ActionAck:
		return currentSeverity, StatusAck
	case ActionClose:
		return m.DefaultNormalSeverity, StatusClosed
	}

	// transitions driven by alert severity or status changes
	if m.Level(currentSeverity) == m.NormalLevel {
		return currentSeverity, StatusClosed
	}
	if currentStatus == StatusBlackout || currentStatus == StatusShelved {
		return currentSeverity, currentStatus
	}
	if previousStatus == StatusBlackout || previousStatus == StatusClosed || previousStatus == StatusExpired {
		return currentSeverity, StatusOpen
	}
	if m.Trend(previousSeverity, currentSeverity) == MoreSevere {
		return currentSeverity, StatusOpen
	}

	return currentSeverity, previousStatus
}

// NextMoreSevere returns the next more urgent severity, used by escalation.
// Returns ("", false) when the severity is already the most urgent.
func (m *Model) NextMoreSevere(severity string) (string, bool) {
	target := m.Level(severity) - 1
	if target < 0 {
		return "", false
	}
	// several names may share a level; pick deterministically
	best := ""
	for name, level := range m.Severity {
		if level != target {
			continue
		}
		if best == "" || name < best {
			best = name
		}
	}
	if best == "" {
		return m.NextMoreSevereAt(target)
	}
	return best, true
}

// NextMoreSevereAt finds the nearest defined level at or above the given
// urgency, scanning toward the most urgent level.
func (m *Model) NextMoreSevereAt(level int) (string, bool) {
	for l := level; l >= 0; l-- {
		best := ""
		for name, lv := range m.Severity {
			if lv == l && (best == "" || name < best) {
				best = name
			}
		}
		if best != "" {
			return best, true
		}
	}
	return "", false
}

// IsSuppressed reports whether an alert in the given status should bypass
// further notification side effects.
func (m *Model) IsSuppressed(status string) bool {
	return status == StatusBlackout
}
