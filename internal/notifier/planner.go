// Package notifier turns matched notification rules into concrete
// deliveries and dispatches them over registered channel senders. Dispatch
// is fire-and-forget relative to the alert write: a failed send is logged
// and dropped, never retried into the pipeline.
package notifier

import (
	"fmt"

	"github.com/good-yellow-bee/flare/internal/models"
)

// Delivery is one message bound for one channel.
type Delivery struct {
	ChannelID  string
	Recipients []string
	Message    string
	Alert      *models.Alert
}

// Plan expands matched rules into deliveries. Each rule contributes one
// delivery to its channel; recipients are the union of the rule's receivers,
// its direct users and, when the rule opts in, the currently on-call users.
// A rule whose message template fails to render is skipped with an error.
func Plan(a *models.Alert, rules []*models.NotificationRule, onCall []models.UserRef) ([]Delivery, []error) {
	var deliveries []Delivery
	var errs []error
	for _, rule := range rules {
		message, err := RenderMessage(rule.Text, a)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}
		deliveries = append(deliveries, Delivery{
			ChannelID:  rule.ChannelID,
			Recipients: recipients(rule, onCall),
			Message:    message,
			Alert:      a,
		})
	}
	return deliveries, errs
}

func recipients(rule *models.NotificationRule, onCall []models.UserRef) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(r string) {
		if r == "" || seen[r] {
			return
		}
		seen[r] = true
		out = append(out, r)
	}
	for _, r := range rule.Receivers {
		add(r)
	}
	for _, id := range rule.UserIDs {
		add(id)
	}
	if rule.UseOnCall {
		for _, u := range onCall {
			add(u.ID)
		}
	}
	return out
}
