// Package metering charges the ledger for what the injection engine actually
// typed. A Job wraps one engine session; when the session completes with
// delivered characters, exactly one debit tagged with the session id is made.
package metering

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/ledger"
	"github.com/codepaste/typer/internal/logger"
)

// ErrNothingToType is returned for text without deliverable characters.
var ErrNothingToType = errors.New("nothing to type")

// Ledger is the part of the credit ledger the bridge uses.
type Ledger interface {
	Balance(ctx context.Context, accountID string) (int64, error)
	Debit(ctx context.Context, accountID string, amount int64, usage ledger.Usage) (int64, error)
}

// Engine starts typing sessions.
type Engine interface {
	Start(text string) (*injector.Session, error)
}

// Outcome is the accounting result of a finished job.
type Outcome struct {
	Err     error
	Result  injector.Result
	Charged int64
	Balance int64
}

// Event is either a relayed session event or, last, the job's Outcome.
type Event struct {
	Session injector.Event
	Outcome *Outcome
}

// Bridge connects an engine to a ledger.
type Bridge struct {
	ledger Ledger
	engine Engine
	ratio  int
}

// NewBridge creates a bridge charging one credit per ratio characters.
func NewBridge(l Ledger, engine Engine, ratio int) *Bridge {
	return &Bridge{
		ledger: l,
		engine: engine,
		ratio:  ratio,
	}
}

// Ratio returns the characters-per-credit ratio.
func (b *Bridge) Ratio() int {
	return b.ratio
}

// Quote returns the credits text would cost if typed in full.
func (b *Bridge) Quote(text string) int64 {
	return ledger.CreditsRequired(int64(injector.DeliverableLength(text)), b.ratio)
}

// StartTyping checks the balance against the full text and starts a
// session. The check is advisory; the debit after the session is the only
// atomic balance decision. A shortfall returns *ledger.InsufficientCreditsError
// without starting anything.
func (b *Bridge) StartTyping(ctx context.Context, accountID, text string) (*Job, error) {
	required := b.Quote(text)
	if required == 0 {
		return nil, ErrNothingToType
	}

	balance, err := b.ledger.Balance(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance: %w", err)
	}
	if balance < required {
		return nil, &ledger.InsufficientCreditsError{Required: required, Available: balance}
	}

	session, err := b.engine.Start(text)
	if err != nil {
		return nil, err
	}

	j := &Job{
		accountID: accountID,
		session:   session,
		events:    make(chan Event, 16),
		done:      make(chan struct{}),
	}

	// Charging must not depend on the caller's context or on anyone
	// reading events.
	go j.settle(context.WithoutCancel(ctx), b)
	go j.relay()

	return j, nil
}

// StopTyping asks the job's session to stop. Characters already delivered
// are still charged.
func (b *Bridge) StopTyping(j *Job) {
	if j != nil {
		j.session.Stop()
	}
}

// Job is a metered typing session.
type Job struct {
	accountID string
	session   *injector.Session
	events    chan Event
	done      chan struct{}

	mu      sync.Mutex
	outcome Outcome
}

// Session returns the underlying engine session.
func (j *Job) Session() *injector.Session {
	return j.session
}

// Events relays the session's events and ends with one Outcome event before
// the channel is closed.
func (j *Job) Events() <-chan Event {
	return j.events
}

// Done is closed once the job has been settled with the ledger.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Outcome returns the settled outcome. It is only meaningful after Done is
// closed.
func (j *Job) Outcome() Outcome {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.outcome
}

func (j *Job) settle(ctx context.Context, b *Bridge) {
	defer close(j.done)

	<-j.session.Done()
	res := j.session.Result()
	out := Outcome{Result: res}
	log := logger.With("component", "metering", "session", res.SessionID)

	switch {
	case res.State == injector.StateFailed:
		out.Err = res.Err
		out.Balance = b.currentBalance(ctx, j.accountID)

	case res.Delivered == 0:
		out.Balance = b.currentBalance(ctx, j.accountID)

	default:
		amount := ledger.CreditsRequired(int64(res.Delivered), b.ratio)
		balance, err := b.ledger.Debit(ctx, j.accountID, amount, ledger.Usage{
			Characters: int64(res.Delivered),
			SessionID:  res.SessionID,
		})
		if err != nil {
			// The characters are already in the target; report the shortfall
			log.Warn("debit after typing failed", "amount", amount, "error", err)
			out.Err = err
			out.Balance = b.currentBalance(ctx, j.accountID)
			break
		}
		out.Charged = amount
		out.Balance = balance
		log.Info("typing charged", "delivered", res.Delivered, "credits", amount, "balance", balance)
	}

	j.mu.Lock()
	j.outcome = out
	j.mu.Unlock()
}

func (j *Job) relay() {
	defer close(j.events)

	for ev := range j.session.Events() {
		j.events <- Event{Session: ev}
	}

	<-j.done
	out := j.Outcome()
	j.events <- Event{Outcome: &out}
}

func (b *Bridge) currentBalance(ctx context.Context, accountID string) int64 {
	balance, err := b.ledger.Balance(ctx, accountID)
	if err != nil {
		logger.Warn("failed to read balance", "account", accountID, "error", err)
		return 0
	}
	return balance
}
