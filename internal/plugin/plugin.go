// Package plugin defines the extension-point contract and the pipeline that
// runs alerts through an ordered chain of plugins around the persistence
// write. Plugins observe or rewrite alerts; they never persist directly.
package plugin

import (
	"context"
	"errors"

	"github.com/good-yellow-bee/flare/internal/models"
)

// ErrNotImplemented marks a hook a plugin does not support. The pipeline
// silently skips the plugin for that hook.
var ErrNotImplemented = errors.New("hook not implemented")

// Plugin is the extension-point contract. Hooks return the (possibly
// rewritten) alert; a nil alert from PreReceive is a fatal plugin bug.
// Control-flow signals are returned as the error types in outcome.go.
type Plugin interface {
	// Name identifies the plugin in configuration and logs.
	Name() string

	// PreReceive runs before the alert is persisted. It may rewrite the
	// alert, or abort processing by returning a signal error.
	PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error)

	// PostReceive runs after the alert is persisted. Failures here never
	// roll back the write.
	PostReceive(ctx context.Context, a *models.Alert) (*models.Alert, error)

	// StatusChange runs when an alert's status is set directly. It may
	// rewrite the alert, status or text, or veto with a signal error.
	StatusChange(ctx context.Context, a *models.Alert, status, text string) (*models.Alert, string, string, error)

	// TakeAction runs when an operator action is applied. It may rewrite
	// the alert, action or text, or veto with a signal error.
	TakeAction(ctx context.Context, a *models.Alert, action, text string) (*models.Alert, string, string, error)

	// Delete runs before an alert is deleted. Returning a RejectError
	// vetoes the delete; any other failure does not block it.
	Delete(ctx context.Context, a *models.Alert) error
}

// Base provides not-implemented defaults for every hook. Embed it and
// override the hooks the plugin cares about.
type Base struct{}

func (Base) PreReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	return nil, ErrNotImplemented
}

func (Base) PostReceive(ctx context.Context, a *models.Alert) (*models.Alert, error) {
	return nil, ErrNotImplemented
}

func (Base) StatusChange(ctx context.Context, a *models.Alert, status, text string) (*models.Alert, string, string, error) {
	return nil, "", "", ErrNotImplemented
}

func (Base) TakeAction(ctx context.Context, a *models.Alert, action, text string) (*models.Alert, string, string, error) {
	return nil, "", "", ErrNotImplemented
}

func (Base) Delete(ctx context.Context, a *models.Alert) error {
	return ErrNotImplemented
}
