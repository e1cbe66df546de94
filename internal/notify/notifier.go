// Package notify gives audible feedback for gate transitions.
package notify

import (
	"context"
	"errors"
)

// ErrPlayback wraps runtime failures while playing a cue. It is logged and counted,
// never returned to callers of Notify.
var ErrPlayback = errors.New("cue playback failed")

// Notifier signals an event to the user without blocking the caller
type Notifier interface {
	// Notify starts a fresh notification, cancelling one that is still running
	Notify(ctx context.Context) error
	// Wait blocks until the most recent notification has finished or was cancelled
	Wait(ctx context.Context) error
}
