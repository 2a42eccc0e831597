package metering

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codepaste/typer/internal/db"
	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/ledger"
	"github.com/codepaste/typer/internal/models"
)

// MockPoster accepts every message and runs onChar after each character.
type MockPoster struct {
	mu     sync.Mutex
	chars  int
	onChar func(n int)
}

func (m *MockPoster) PostChar(injector.Target, uint16) error {
	m.mu.Lock()
	m.chars++
	n := m.chars
	hook := m.onChar
	m.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (m *MockPoster) PostKey(injector.Target, injector.Key, bool) error {
	return nil
}

func (m *MockPoster) Chars() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chars
}

func testTiming() injector.Timing {
	return injector.Timing{
		BaseDelay:     100 * time.Microsecond,
		MinDelay:      50 * time.Microsecond,
		NewlineSettle: 50 * time.Microsecond,
		TabSettle:     50 * time.Microsecond,
		SettleDelay:   time.Millisecond,
		DecoyPause:    time.Millisecond,
		DecoyInterval: time.Millisecond,
		DecoyDuration: 3 * time.Millisecond,
		ProgressEvery: 50,
	}
}

type fixture struct {
	db     *db.DB
	ledger *ledger.Ledger
	poster *MockPoster
	engine *injector.Engine
	bridge *Bridge
	acc    *models.Account
}

func newFixture(t *testing.T, trial int64, resolver injector.FocusResolver) *fixture {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "metering.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })

	l := ledger.New(database, trial)
	acc, err := l.Open(context.Background(), "meter@example.com", "hash")
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	if resolver == nil {
		resolver = injector.ResolverFunc(func(context.Context) (injector.Target, error) { return 1, nil })
	}
	poster := &MockPoster{}
	engine := injector.NewEngine(resolver, poster, testTiming())

	return &fixture{
		db:     database,
		ledger: l,
		poster: poster,
		engine: engine,
		bridge: NewBridge(l, engine, 1),
		acc:    acc,
	}
}

// drain reads a job's events and returns the outcome event.
func drain(t *testing.T, j *Job) Outcome {
	t.Helper()
	timeout := time.After(10 * time.Second)
	var outcome *Outcome
	for {
		select {
		case ev, ok := <-j.Events():
			if !ok {
				if outcome == nil {
					t.Fatal("event stream closed without an outcome")
				}
				return *outcome
			}
			if outcome != nil {
				t.Fatal("event after the outcome")
			}
			outcome = ev.Outcome
		case <-timeout:
			t.Fatal("timeout waiting for job")
		}
	}
}

func usageTransactions(t *testing.T, f *fixture) []models.Transaction {
	t.Helper()
	txns, err := f.ledger.Transactions(context.Background(), f.acc.ID, 0)
	if err != nil {
		t.Fatalf("Transactions() failed: %v", err)
	}
	var usage []models.Transaction
	for _, txn := range txns {
		if txn.Kind == models.KindUsage {
			usage = append(usage, txn)
		}
	}
	return usage
}

func TestStartTyping_ExactBalance(t *testing.T) {
	f := newFixture(t, 500, nil)
	ctx := context.Background()

	job, err := f.bridge.StartTyping(ctx, f.acc.ID, strings.Repeat("c", 500))
	if err != nil {
		t.Fatalf("StartTyping() failed: %v", err)
	}

	out := drain(t, job)
	if out.Err != nil {
		t.Fatalf("outcome error: %v", out.Err)
	}
	if out.Charged != 500 || out.Balance != 0 {
		t.Errorf("outcome = %+v, want charged 500 balance 0", out)
	}

	_, err = f.bridge.StartTyping(ctx, f.acc.ID, "x")
	var insufficient *ledger.InsufficientCreditsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("follow-up error = %v, want *InsufficientCreditsError", err)
	}
	if insufficient.Required != 1 || insufficient.Available != 0 {
		t.Errorf("shortfall = %+v, want required 1 available 0", insufficient)
	}
	if err := f.ledger.Reconcile(ctx, f.acc.ID); err != nil {
		t.Errorf("Reconcile() failed: %v", err)
	}
}

func TestStartTyping_PreCheckUsesDeliverableLength(t *testing.T) {
	// a, \n, b, \n, c: carriage returns are not typed and not charged
	const text = "a\r\nb\r\nc"

	tests := []struct {
		name    string
		trial   int64
		wantErr bool
	}{
		{"exact", 5, false},
		{"one short", 4, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.trial, nil)

			job, err := f.bridge.StartTyping(context.Background(), f.acc.ID, text)
			if tt.wantErr {
				if !errors.Is(err, ledger.ErrInsufficientCredits) {
					t.Fatalf("error = %v, want ErrInsufficientCredits", err)
				}
				if f.engine.Running() {
					t.Error("engine should not start on a failed pre-check")
				}
				return
			}
			if err != nil {
				t.Fatalf("StartTyping() failed: %v", err)
			}
			out := drain(t, job)
			if out.Charged != 5 || out.Balance != 0 {
				t.Errorf("outcome = %+v, want charged 5 balance 0", out)
			}
		})
	}
}

func TestStartTyping_NothingToType(t *testing.T) {
	f := newFixture(t, 10, nil)

	for _, text := range []string{"", "\r\r"} {
		if _, err := f.bridge.StartTyping(context.Background(), f.acc.ID, text); !errors.Is(err, ErrNothingToType) {
			t.Errorf("StartTyping(%q) error = %v, want ErrNothingToType", text, err)
		}
	}
}

func TestStartTyping_UnknownAccount(t *testing.T) {
	f := newFixture(t, 10, nil)

	if _, err := f.bridge.StartTyping(context.Background(), "ghost", "abc"); !errors.Is(err, ledger.ErrAccountNotFound) {
		t.Errorf("error = %v, want ErrAccountNotFound", err)
	}
	if f.poster.Chars() != 0 {
		t.Error("nothing should be typed for an unknown account")
	}
}

func TestJob_PartialCancelChargesDelivered(t *testing.T) {
	f := newFixture(t, 1000, nil)

	var job *Job
	ready := make(chan struct{})
	var once sync.Once
	f.poster.onChar = func(n int) {
		if n == 37 {
			once.Do(func() {
				<-ready
				f.bridge.StopTyping(job)
			})
		}
	}

	job, err := f.bridge.StartTyping(context.Background(), f.acc.ID, strings.Repeat("p", 300))
	if err != nil {
		t.Fatalf("StartTyping() failed: %v", err)
	}
	close(ready)

	out := drain(t, job)
	if out.Result.State != injector.StateCompleted {
		t.Fatalf("state = %v, want completed", out.Result.State)
	}
	if out.Result.Delivered != 37 || out.Charged != 37 {
		t.Errorf("delivered %d charged %d, want 37/37", out.Result.Delivered, out.Charged)
	}
	if out.Balance != 963 {
		t.Errorf("balance = %d, want 963", out.Balance)
	}

	usage := usageTransactions(t, f)
	if len(usage) != 1 || usage[0].Delta != -37 {
		t.Fatalf("usage transactions = %+v, want one of -37", usage)
	}

	records, err := f.db.ListUsageRecords(context.Background(), f.acc.ID, 0)
	if err != nil {
		t.Fatalf("ListUsageRecords() failed: %v", err)
	}
	if len(records) != 1 || records[0].SessionID != job.Session().ID() {
		t.Errorf("usage records = %+v, want one tagged %s", records, job.Session().ID())
	}
}

func TestJob_ResolverFailureNoMutation(t *testing.T) {
	resolver := injector.ResolverFunc(func(context.Context) (injector.Target, error) {
		return 0, injector.ErrNotFound
	})
	f := newFixture(t, 100, resolver)

	job, err := f.bridge.StartTyping(context.Background(), f.acc.ID, "abc")
	if err != nil {
		t.Fatalf("StartTyping() failed: %v", err)
	}

	out := drain(t, job)
	if out.Result.State != injector.StateFailed {
		t.Fatalf("state = %v, want failed", out.Result.State)
	}
	if !errors.Is(out.Err, injector.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", out.Err)
	}
	if out.Charged != 0 || out.Balance != 100 {
		t.Errorf("outcome = %+v, want nothing charged", out)
	}

	txns, _ := f.ledger.Transactions(context.Background(), f.acc.ID, 0)
	if len(txns) != 1 {
		t.Errorf("transactions = %d, want only the signup bonus", len(txns))
	}
}

func TestJob_StopBeforeResolutionNoMutation(t *testing.T) {
	f := newFixture(t, 100, nil)
	timing := testTiming()
	timing.SettleDelay = time.Second
	f.engine.SetTiming(timing)

	job, err := f.bridge.StartTyping(context.Background(), f.acc.ID, "abc")
	if err != nil {
		t.Fatalf("StartTyping() failed: %v", err)
	}
	f.bridge.StopTyping(job)

	out := drain(t, job)
	if out.Result.State != injector.StateCancelled {
		t.Errorf("state = %v, want cancelled", out.Result.State)
	}
	if out.Charged != 0 || len(usageTransactions(t, f)) != 0 {
		t.Error("a session stopped before typing must not be charged")
	}
}

func TestJob_ShortfallAfterTyping(t *testing.T) {
	f := newFixture(t, 100, nil)
	ctx := context.Background()

	// Another device spends most of the balance mid-session
	var once sync.Once
	f.poster.onChar = func(n int) {
		if n == 5 {
			once.Do(func() {
				if _, err := f.ledger.Debit(ctx, f.acc.ID, 95, ledger.Usage{Characters: 95, SessionID: "other-device"}); err != nil {
					t.Errorf("concurrent debit failed: %v", err)
				}
			})
		}
	}

	job, err := f.bridge.StartTyping(ctx, f.acc.ID, strings.Repeat("s", 60))
	if err != nil {
		t.Fatalf("StartTyping() failed: %v", err)
	}

	out := drain(t, job)
	var insufficient *ledger.InsufficientCreditsError
	if !errors.As(out.Err, &insufficient) {
		t.Fatalf("outcome error = %v, want *InsufficientCreditsError", out.Err)
	}
	if insufficient.Required != 60 || insufficient.Available != 5 {
		t.Errorf("shortfall = %+v, want required 60 available 5", insufficient)
	}
	if out.Result.Delivered != 60 {
		t.Errorf("delivered = %d, typed characters are never undone", out.Result.Delivered)
	}
	if out.Charged != 0 || out.Balance != 5 {
		t.Errorf("outcome = %+v, want nothing charged and balance 5", out)
	}
	if err := f.ledger.Reconcile(ctx, f.acc.ID); err != nil {
		t.Errorf("Reconcile() failed: %v", err)
	}
}

func TestJob_TwoDevicesOneWinner(t *testing.T) {
	f := newFixture(t, 500, nil)
	ctx := context.Background()

	// A second engine stands in for another device on the same account
	resolver := injector.ResolverFunc(func(context.Context) (injector.Target, error) { return 2, nil })
	other := NewBridge(f.ledger, injector.NewEngine(resolver, &MockPoster{}, testTiming()), 1)

	text := strings.Repeat("d", 300)
	jobA, err := f.bridge.StartTyping(ctx, f.acc.ID, text)
	if err != nil {
		t.Fatalf("StartTyping(A) failed: %v", err)
	}
	jobB, err := other.StartTyping(ctx, f.acc.ID, text)
	if err != nil {
		t.Fatalf("StartTyping(B) failed: %v", err)
	}

	var outA, outB Outcome
	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); <-jobA.Done(); outA = jobA.Outcome() }()
	go func() { defer wg.Done(); <-jobB.Done(); outB = jobB.Outcome() }()
	go func() {
		for range jobA.Events() {
		}
	}()
	go func() {
		for range jobB.Events() {
		}
	}()
	wg.Wait()

	wins := 0
	for _, out := range []Outcome{outA, outB} {
		if out.Err == nil {
			wins++
			if out.Charged != 300 {
				t.Errorf("winner charged %d, want 300", out.Charged)
			}
			continue
		}
		var insufficient *ledger.InsufficientCreditsError
		if !errors.As(out.Err, &insufficient) {
			t.Fatalf("loser error = %v", out.Err)
		}
		if insufficient.Required != 300 || insufficient.Available != 200 {
			t.Errorf("loser shortfall = %+v, want required 300 available 200", insufficient)
		}
	}
	if wins != 1 {
		t.Errorf("wins = %d, want exactly 1", wins)
	}

	balance, _ := f.ledger.Balance(ctx, f.acc.ID)
	if balance != 200 {
		t.Errorf("balance = %d, want 200", balance)
	}
	if err := f.ledger.Reconcile(ctx, f.acc.ID); err != nil {
		t.Errorf("Reconcile() failed: %v", err)
	}
}

func TestJob_EventsEndWithOutcome(t *testing.T) {
	f := newFixture(t, 100, nil)

	job, err := f.bridge.StartTyping(context.Background(), f.acc.ID, "hello")
	if err != nil {
		t.Fatalf("StartTyping() failed: %v", err)
	}

	var events []Event
	for ev := range job.Events() {
		events = append(events, ev)
	}

	if len(events) < 2 {
		t.Fatalf("events = %d, want session events plus outcome", len(events))
	}
	last := events[len(events)-1]
	if last.Outcome == nil || last.Outcome.Charged != 5 {
		t.Errorf("last event = %+v, want outcome charging 5", last)
	}
	terminal := events[len(events)-2].Session
	if terminal.Type != injector.EventCompleted {
		t.Errorf("event before outcome = %v, want completed", terminal.Type)
	}
}

func TestBridge_Quote(t *testing.T) {
	b := NewBridge(nil, nil, 2)
	if got := b.Quote("abcde"); got != 3 {
		t.Errorf("Quote() = %d, want 3", got)
	}
	if got := b.Quote("\r\n"); got != 1 {
		t.Errorf("Quote(crlf) = %d, want 1", got)
	}
	if b.Ratio() != 2 {
		t.Errorf("Ratio() = %d", b.Ratio())
	}
}
