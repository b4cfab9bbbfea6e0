package orchestrator

import (
	"context"
	"errors"
)

// Hook receives every orchestrator event. The orchestrator never owns a hook:
// errors are logged and otherwise ignored.
type Hook interface {
	Notify(ctx context.Context, ev Event) error
}

// HookFunc adapts a function to the Hook interface.
type HookFunc func(ctx context.Context, ev Event) error

// Notify calls f.
func (f HookFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Hooks fans an event out to several hooks and joins their errors.
type Hooks []Hook

// Notify calls every hook in order, even when an earlier one fails.
func (hs Hooks) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, h := range hs {
		if h == nil {
			continue
		}
		if err := h.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
