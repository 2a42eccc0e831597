package injector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Session is one typing request. It is owned by its worker goroutine; the
// caller can only stop it, observe its events and read the final Result.
type Session struct {
	id        string
	text      string
	requested int
	timing    Timing
	cancel    context.CancelFunc
	release   func()
	queue     *eventQueue
	done      chan struct{}
	startedAt time.Time
	log       *slog.Logger

	mu        sync.Mutex
	state     State
	progress  Progress
	result    Result
	finalized bool
}

// ID returns the session identifier used to tag its ledger debit.
func (s *Session) ID() string {
	return s.id
}

// Requested returns the number of runes the session will try to type.
func (s *Session) Requested() int {
	return s.requested
}

// Stop asks the worker to stop at its next poll point. It is safe to call
// more than once and after the session finished.
func (s *Session) Stop() {
	s.cancel()
}

// Events returns the session's event stream. Events arrive in emission
// order, exactly one Completed or Failed event is the last one, and the
// channel is closed after it. The stream must be drained.
func (s *Session) Events() <-chan Event {
	return s.queue.out
}

// Done is closed once the session reached a terminal state.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the session finished or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.Result(), nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Progress returns the latest progress report.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// Result returns the final result. It is only meaningful after Done is
// closed; before that it returns the zero Result with the current state.
func (s *Session) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.finalized {
		return Result{SessionID: s.id, State: s.state, Requested: s.requested}
	}
	return s.result
}

func (s *Session) run(ctx context.Context, resolver FocusResolver, dispatcher *Dispatcher, decoy *Decoy) {
	defer s.cancel()
	defer func() {
		if r := recover(); r != nil {
			s.finish(StateFailed, dispatcher.Delivered(), fmt.Errorf("typing session panicked: %v", r))
		}
	}()

	s.log.Info("session started", "requested", s.requested)
	s.transition(StateResolving)

	if !sleep(ctx, s.timing.SettleDelay) {
		s.finish(StateCancelled, 0, nil)
		return
	}

	target, err := resolver.Resolve(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			s.finish(StateCancelled, 0, nil)
			return
		}
		if !errors.Is(err, ErrNotFound) {
			err = fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		s.finish(StateFailed, 0, err)
		return
	}
	if target == 0 {
		s.finish(StateFailed, 0, ErrNotFound)
		return
	}
	if ctx.Err() != nil {
		s.finish(StateCancelled, 0, nil)
		return
	}

	s.transition(StateDispatching)
	delivered := dispatcher.Dispatch(ctx, target, s.text, s.reportProgress)

	// A stop during dispatch skips the decoy and keeps the partial count
	if ctx.Err() == nil {
		s.transition(StateDecoying)
		decoy.Run(ctx, target, s.timing.DecoyDuration)
	}

	s.finish(StateCompleted, delivered, nil)
}

func (s *Session) transition(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.log.Debug("session state", "state", state)
	s.queue.push(Event{Type: EventStateChanged, SessionID: s.id, State: state})
}

func (s *Session) reportProgress(p Progress) {
	s.mu.Lock()
	s.progress = p
	state := s.state
	s.mu.Unlock()

	s.queue.push(Event{Type: EventProgress, SessionID: s.id, State: state, Progress: p})
}

// finish records the terminal result, frees the engine and emits the single
// terminal event. Only the first call has an effect.
func (s *Session) finish(state State, delivered int, err error) {
	s.mu.Lock()
	if s.finalized {
		s.mu.Unlock()
		return
	}
	s.finalized = true
	s.state = state
	s.result = Result{
		SessionID:  s.id,
		State:      state,
		Requested:  s.requested,
		Delivered:  delivered,
		Err:        err,
		StartedAt:  s.startedAt,
		FinishedAt: time.Now(),
	}
	result := s.result
	s.mu.Unlock()

	if err != nil {
		s.log.Warn("session failed", "state", state, "delivered", delivered, "error", err)
	} else {
		s.log.Info("session finished", "state", state, "delivered", delivered, "requested", s.requested)
	}

	s.release()

	eventType := EventCompleted
	if state == StateFailed {
		eventType = EventFailed
	}
	s.queue.push(Event{Type: eventType, SessionID: s.id, State: state, Result: &result})
	s.queue.close()
	close(s.done)
}
