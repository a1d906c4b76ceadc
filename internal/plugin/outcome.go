package plugin

import (
	"fmt"

	"github.com/good-yellow-bee/flare/internal/models"
)

// Signal errors plugins use to divert processing. The pipeline converts them
// into the matching Outcome; any other error from a hook is an ordinary
// plugin failure subject to the isolation policy.

// RejectError aborts processing because the alert violates policy.
type RejectError struct {
	Reason string
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("alert rejected: %s", e.Reason)
}

// RateLimitError aborts processing because the sender exceeded its receive
// rate.
type RateLimitError struct {
	Reason string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: %s", e.Reason)
}

// HeartbeatError aborts alert processing because the receipt was a liveness
// heartbeat, not an alert.
type HeartbeatError struct {
	ID string
}

func (e *HeartbeatError) Error() string {
	return fmt.Sprintf("alert converted to heartbeat %s", e.ID)
}

// BlackoutError aborts processing because the alert falls inside a
// suppression window.
type BlackoutError struct{}

func (e *BlackoutError) Error() string {
	return "suppressed by blackout period"
}

// LoopError aborts processing because the alert has been forwarded in a
// cycle between federated servers.
type LoopError struct {
	Hops int
}

func (e *LoopError) Error() string {
	return fmt.Sprintf("forwarding loop detected after %d hops", e.Hops)
}

// OutcomeKind enumerates the ways receipt processing can end.
type OutcomeKind int

const (
	// Processed means the alert was classified and persisted.
	Processed OutcomeKind = iota
	// Rejected means a policy plugin refused the alert.
	Rejected
	// RateLimited means the sender exceeded its receive rate.
	RateLimited
	// ConvertedToHeartbeat means the receipt was recorded as a heartbeat.
	ConvertedToHeartbeat
	// InBlackout means a suppression window absorbed the alert.
	InBlackout
	// LoopDetected means the alert arrived through a forwarding cycle.
	LoopDetected
)

// String names the outcome kind for logs and metrics labels.
func (k OutcomeKind) String() string {
	switch k {
	case Processed:
		return "processed"
	case Rejected:
		return "rejected"
	case RateLimited:
		return "rateLimited"
	case ConvertedToHeartbeat:
		return "heartbeat"
	case InBlackout:
		return "blackout"
	case LoopDetected:
		return "loopDetected"
	default:
		return "unknown"
	}
}

// Outcome is the result of running one receipt through the pipeline. Alert
// is set only for Processed; HeartbeatID only for ConvertedToHeartbeat;
// Reason carries the signal's message for the diverted kinds.
type Outcome struct {
	Kind        OutcomeKind
	Alert       *models.Alert
	HeartbeatID string
	Reason      string
}
