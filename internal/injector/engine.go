package injector

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codepaste/typer/internal/logger"
)

// ErrAlreadyRunning is returned by Start while another session is active.
var ErrAlreadyRunning = errors.New("a typing session is already running")

// Engine runs at most one Session at a time.
type Engine struct {
	resolver FocusResolver
	poster   Poster

	mu     sync.RWMutex
	timing Timing

	running atomic.Bool
	current atomic.Pointer[Session]
}

// NewEngine creates an engine that resolves targets with resolver and
// posts input with poster.
func NewEngine(resolver FocusResolver, poster Poster, timing Timing) *Engine {
	return &Engine{
		resolver: resolver,
		poster:   poster,
		timing:   timing,
	}
}

// Timing returns the profile used for new sessions.
func (e *Engine) Timing() Timing {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.timing
}

// SetTiming replaces the profile. Running sessions keep the profile they
// started with.
func (e *Engine) SetTiming(t Timing) {
	e.mu.Lock()
	e.timing = t
	e.mu.Unlock()
}

// Running reports whether a session is active.
func (e *Engine) Running() bool {
	return e.running.Load()
}

// Current returns the active session, or nil.
func (e *Engine) Current() *Session {
	if !e.running.Load() {
		return nil
	}
	return e.current.Load()
}

// Start launches a session typing text on its own goroutine. It fails with
// ErrAlreadyRunning without touching the active session.
func (e *Engine) Start(text string) (*Session, error) {
	if !e.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	timing := e.Timing()
	ctx, cancel := context.WithCancel(context.Background())

	id := uuid.NewString()
	s := &Session{
		id:        id,
		text:      text,
		requested: DeliverableLength(text),
		timing:    timing,
		cancel:    cancel,
		queue:     newEventQueue(),
		done:      make(chan struct{}),
		state:     StateIdle,
		startedAt: time.Now(),
		log:       logger.With("component", "injector", "session", id),
	}
	s.release = func() {
		e.current.CompareAndSwap(s, nil)
		e.running.Store(false)
	}
	e.current.Store(s)

	seed := uint64(time.Now().UnixNano())
	rng := rand.New(rand.NewPCG(seed, seed>>17|1))

	go s.run(ctx, e.resolver, NewDispatcher(e.poster, timing, rng), NewDecoy(e.poster, timing))
	return s, nil
}
