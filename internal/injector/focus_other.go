//go:build !windows

package injector

import (
	"context"
	"fmt"
)

type unsupportedResolver struct{}

// NewFocusResolver returns a resolver that always fails: only Windows has a
// message-posting backend.
func NewFocusResolver() FocusResolver {
	return unsupportedResolver{}
}

func (unsupportedResolver) Resolve(context.Context) (Target, error) {
	return 0, fmt.Errorf("%w: %w", ErrNotFound, ErrUnsupportedPlatform)
}

type unsupportedPoster struct{}

// NewPoster returns a poster that rejects every message.
func NewPoster() Poster {
	return unsupportedPoster{}
}

func (unsupportedPoster) PostChar(Target, uint16) error {
	return ErrUnsupportedPlatform
}

func (unsupportedPoster) PostKey(Target, Key, bool) error {
	return ErrUnsupportedPlatform
}
