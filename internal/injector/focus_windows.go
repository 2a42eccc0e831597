//go:build windows

package injector

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sys/windows"
)

var (
	user32                = windows.NewLazySystemDLL("user32.dll")
	procAttachThreadInput = user32.NewProc("AttachThreadInput")
	procGetFocus          = user32.NewProc("GetFocus")
	procPostMessageW      = user32.NewProc("PostMessageW")
	procMapVirtualKeyW    = user32.NewProc("MapVirtualKeyW")
)

const (
	wmKeyDown = 0x0100
	wmKeyUp   = 0x0101
	wmChar    = 0x0102

	mapvkVKToVSC = 0
)

type win32Resolver struct{}

// NewFocusResolver returns the Win32 focus resolver.
func NewFocusResolver() FocusResolver {
	return win32Resolver{}
}

// Resolve joins the foreground window's input queue just long enough to
// read its focused child control. Without a focused child the foreground
// window itself is the target.
func (win32Resolver) Resolve(ctx context.Context) (Target, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// AttachThreadInput binds the calling OS thread; the goroutine must not
	// migrate between attach and detach.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	hwnd := windows.GetForegroundWindow()
	if hwnd == 0 {
		return 0, ErrNotFound
	}

	remote, err := windows.GetWindowThreadProcessId(hwnd, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	current := windows.GetCurrentThreadId()

	attached := false
	if remote != current {
		r, _, _ := procAttachThreadInput.Call(uintptr(current), uintptr(remote), 1)
		attached = r != 0
	}

	focused, _, _ := procGetFocus.Call()

	if attached {
		_, _, _ = procAttachThreadInput.Call(uintptr(current), uintptr(remote), 0)
	}

	if focused != 0 {
		return Target(focused), nil
	}
	return Target(hwnd), nil
}

type win32Poster struct{}

// NewPoster returns the Win32 PostMessage poster.
func NewPoster() Poster {
	return win32Poster{}
}

func (win32Poster) PostChar(target Target, unit uint16) error {
	return post(target, wmChar, uintptr(unit), 0)
}

func (win32Poster) PostKey(target Target, key Key, down bool) error {
	scan, _, _ := procMapVirtualKeyW.Call(uintptr(key), mapvkVKToVSC)

	// Repeat count 1 and the scan code; key-up also sets the previous key
	// state and transition bits.
	lparam := uintptr(1) | scan<<16
	msg := uintptr(wmKeyDown)
	if !down {
		lparam |= 1<<30 | 1<<31
		msg = wmKeyUp
	}
	return post(target, msg, uintptr(key), lparam)
}

func post(target Target, msg, wparam, lparam uintptr) error {
	r, _, callErr := procPostMessageW.Call(uintptr(target), msg, wparam, lparam)
	if r == 0 {
		return fmt.Errorf("%w: %w", ErrPostFailed, callErr)
	}
	return nil
}
