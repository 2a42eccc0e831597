// Package injector replays text into the focused control of another
// application. A Session resolves the focus target, posts one character
// message per rune with human-like timing, and finishes with a burst of
// forward-delete keys.
package injector

import (
	"context"
	"errors"
)

var (
	// ErrNotFound means no window or control could be resolved as the target.
	ErrNotFound = errors.New("no focused control found")
	// ErrUnsupportedPlatform is wrapped into ErrNotFound on platforms without
	// a message-posting backend.
	ErrUnsupportedPlatform = errors.New("input injection is not supported on this platform")
	// ErrPostFailed is returned by a Poster when the target's queue rejected
	// the message.
	ErrPostFailed = errors.New("post message failed")
)

// Target is an opaque handle to the control receiving input.
type Target uintptr

// FocusResolver finds the control that currently has keyboard focus, even
// when it belongs to another thread's input queue.
type FocusResolver interface {
	Resolve(ctx context.Context) (Target, error)
}

// Key is a virtual key that is delivered as a press/release pair instead of
// a character message.
type Key uint16

const (
	KeyTab    Key = 0x09
	KeyReturn Key = 0x0D
	KeyDelete Key = 0x2E
)

func (k Key) String() string {
	switch k {
	case KeyTab:
		return "tab"
	case KeyReturn:
		return "return"
	case KeyDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Poster writes input messages into a target's message queue. Posting is
// fire and forget: a nil error only means the queue accepted the message.
type Poster interface {
	PostChar(target Target, unit uint16) error
	PostKey(target Target, key Key, down bool) error
}

// ResolverFunc adapts a function to FocusResolver.
type ResolverFunc func(ctx context.Context) (Target, error)

// Resolve calls f(ctx).
func (f ResolverFunc) Resolve(ctx context.Context) (Target, error) {
	return f(ctx)
}
