// Package services provides service orchestration for the TUI and CLI.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/beeep"

	"github.com/codepaste/typer/internal/auth"
	"github.com/codepaste/typer/internal/config"
	"github.com/codepaste/typer/internal/db"
	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/ledger"
	"github.com/codepaste/typer/internal/logger"
	"github.com/codepaste/typer/internal/metering"
	"github.com/codepaste/typer/internal/models"
	"github.com/codepaste/typer/internal/services/credentials"
	"github.com/codepaste/typer/internal/services/projection"
)

var (
	ErrNotLoggedIn       = errors.New("not logged in")
	ErrUnknownPackage    = errors.New("unknown credit package")
	ErrMissingPaymentRef = errors.New("payment reference is required")
)

type (
	// AccountChangedEvent is emitted on login and logout. Account is nil
	// after a logout.
	AccountChangedEvent struct {
		Account *models.Account
	}

	// BalanceChangedEvent is emitted whenever a new balance is known.
	BalanceChangedEvent struct {
		Credits int64
	}

	// TypingEvent relays an injection session event.
	TypingEvent struct {
		Event injector.Event
	}

	// TypingFinishedEvent is emitted once a typing job has been charged.
	TypingFinishedEvent struct {
		Outcome metering.Outcome
	}

	// ConfigReloadedEvent is emitted after the .env file changed.
	ConfigReloadedEvent struct {
		Timing   injector.Timing
		ArmDelay time.Duration
	}

	// ErrorEvent is emitted when an error occurs in any service.
	ErrorEvent struct {
		Service string
		Error   error
	}
)

// ServiceEvent is the interface implemented by all service events.
type ServiceEvent interface {
	isServiceEvent()
}

func (AccountChangedEvent) isServiceEvent() {}
func (BalanceChangedEvent) isServiceEvent() {}
func (TypingEvent) isServiceEvent()         {}
func (TypingFinishedEvent) isServiceEvent() {}
func (ConfigReloadedEvent) isServiceEvent() {}
func (ErrorEvent) isServiceEvent()          {}

// Notifier shows a desktop notification.
type Notifier func(title, body string) error

// Option configures a Manager.
type Option func(*Manager)

// WithFocus replaces the platform focus resolver and message poster.
func WithFocus(resolver injector.FocusResolver, poster injector.Poster) Option {
	return func(m *Manager) {
		m.resolver = resolver
		m.poster = poster
	}
}

// WithTiming overrides the typing profile derived from the configuration.
func WithTiming(t injector.Timing) Option {
	return func(m *Manager) { m.timing = &t }
}

// WithNotifier replaces desktop notifications.
func WithNotifier(n Notifier) Option {
	return func(m *Manager) { m.notify = n }
}

// WithClipboard replaces the system clipboard reader.
func WithClipboard(read func() (string, error)) Option {
	return func(m *Manager) { m.readClipboard = read }
}

// WithAuthOptions passes options to the auth service.
func WithAuthOptions(opts ...auth.Option) Option {
	return func(m *Manager) { m.authOpts = append(m.authOpts, opts...) }
}

// Manager orchestrates services and event routing.
type Manager struct {
	mu          sync.RWMutex
	cfg         *config.Config
	database    *db.DB
	ledger      *ledger.Ledger
	auth        auth.Service
	engine      *injector.Engine
	bridge      *metering.Bridge
	credentials *credentials.Service

	account *models.Account
	job     *metering.Job

	resolver      injector.FocusResolver
	poster        injector.Poster
	timing        *injector.Timing
	notify        Notifier
	readClipboard func() (string, error)
	authOpts      []auth.Option

	stopChan    chan struct{}
	cancelWatch context.CancelFunc
	subscribers []chan ServiceEvent
	wg          sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// NewManager creates a new service manager.
func NewManager(cfg *config.Config, opts ...Option) (*Manager, error) {
	m := &Manager{
		cfg:           cfg,
		resolver:      injector.NewFocusResolver(),
		poster:        injector.NewPoster(),
		notify:        func(title, body string) error { return beeep.Notify(title, body, "") },
		readClipboard: clipboard.ReadAll,
		stopChan:      make(chan struct{}),
		cancelWatch:   func() {},
	}
	for _, opt := range opts {
		opt(m)
	}

	var err error
	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m.credentials, err = credentials.New(cfg.SessionPath)
	if err != nil {
		_ = m.database.Close()
		return nil, err
	}

	m.ledger = ledger.New(m.database, cfg.FreeTrialCredits)
	m.auth = auth.NewService(m.database, m.ledger, cfg.JWTSecret, cfg.TokenTTL, m.authOpts...)

	timing := TimingFromConfig(cfg)
	if m.timing != nil {
		timing = *m.timing
	}
	m.engine = injector.NewEngine(m.resolver, m.poster, timing)
	m.bridge = metering.NewBridge(m.ledger, m.engine, cfg.CreditRatio)

	if cfg.EnvPath != "" && m.timing == nil {
		ctx, cancel := context.WithCancel(context.Background())
		if err := config.Watch(ctx, cfg.EnvPath, m.applyConfig); err != nil {
			logger.Warn("config hot reload disabled", "error", err)
			cancel()
		} else {
			m.cancelWatch = cancel
		}
	}

	m.wg.Add(1)
	go m.routeEvents()

	return m, nil
}

// TimingFromConfig builds the typing profile for cfg. The per-character
// floor stays at its default whatever the base delay.
func TimingFromConfig(cfg *config.Config) injector.Timing {
	t := injector.DefaultTiming()
	t.BaseDelay = cfg.TypingDelay
	t.DecoyDuration = cfg.DecoyDuration
	t.SettleDelay = cfg.SettleDelay
	t.ProgressEvery = cfg.ProgressEvery
	return t
}

// applyConfig takes over the typing parameters of a reloaded .env file.
// Paths, secrets and the credit ratio stay fixed for the process lifetime.
func (m *Manager) applyConfig(cfg *config.Config) {
	timing := TimingFromConfig(cfg)
	m.engine.SetTiming(timing)

	m.mu.Lock()
	m.cfg.TypingDelay = cfg.TypingDelay
	m.cfg.DecoyDuration = cfg.DecoyDuration
	m.cfg.SettleDelay = cfg.SettleDelay
	m.cfg.ArmDelay = cfg.ArmDelay
	m.cfg.ProgressEvery = cfg.ProgressEvery
	m.mu.Unlock()

	m.broadcast(ConfigReloadedEvent{Timing: timing, ArmDelay: cfg.ArmDelay})
}

// routeEvents reacts to logins and logouts made by other processes.
func (m *Manager) routeEvents() {
	defer m.wg.Done()

	for {
		select {
		case event := <-m.credentials.Events():
			m.handleCredentialsEvent(event)

		case <-m.stopChan:
			return
		}
	}
}

func (m *Manager) handleCredentialsEvent(event credentials.Event) {
	switch event.Type {
	case credentials.EventSessionChanged:
		if event.Session == nil {
			m.setAccount(nil)
			return
		}
		if _, err := m.Restore(context.Background()); err != nil {
			m.broadcast(ErrorEvent{Service: "credentials", Error: err})
		}

	case credentials.EventError:
		m.broadcast(ErrorEvent{Service: "credentials", Error: event.Error})
	}
}

// broadcast sends an event to all subscribers.
func (m *Manager) broadcast(event ServiceEvent) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	critical := mustDeliver(event)
	for _, sub := range m.subscribers {
		deliver(sub, event, critical)
	}
}

func deliver(sub chan ServiceEvent, event ServiceEvent, critical bool) {
	for {
		select {
		case sub <- event:
			return
		default:
		}
		if !critical {
			// Subscriber channel full, skip
			return
		}
		// Make room by dropping the oldest queued event
		select {
		case <-sub:
		default:
		}
	}
}

// mustDeliver reports whether event may not be dropped for a slow
// subscriber. Callers rely on these to leave the typing and login states.
func mustDeliver(event ServiceEvent) bool {
	switch event.(type) {
	case TypingFinishedEvent, AccountChangedEvent:
		return true
	}
	return false
}

// Subscribe creates a channel for receiving service events.
// Returns a tea.Cmd that can be used in Bubble Tea's Init or Update.
func (m *Manager) Subscribe() (chan ServiceEvent, tea.Cmd) {
	ch := make(chan ServiceEvent, 64)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	return ch, WaitForEvent(ch)
}

// WaitForEvent returns a tea.Cmd for the next event on a channel.
func WaitForEvent(ch <-chan ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return event
	}
}

// Unsubscribe removes a subscriber channel.
func (m *Manager) Unsubscribe(ch chan ServiceEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			close(ch)
			break
		}
	}
}

// Config returns the active configuration.
func (m *Manager) Config() config.Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.cfg
}

// Database returns the database instance for direct access.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Ledger returns the credit ledger.
func (m *Manager) Ledger() *ledger.Ledger {
	return m.ledger
}

// Engine returns the injection engine.
func (m *Manager) Engine() *injector.Engine {
	return m.engine
}

// Account returns the logged in account, or nil.
func (m *Manager) Account() *models.Account {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.account == nil {
		return nil
	}
	acc := m.account.Clone()
	return &acc
}

func (m *Manager) requireAccount() (*models.Account, error) {
	acc := m.Account()
	if acc == nil {
		return nil, ErrNotLoggedIn
	}
	return acc, nil
}

func (m *Manager) setAccount(acc *models.Account) {
	m.mu.Lock()
	changed := (m.account == nil) != (acc == nil) ||
		(acc != nil && (m.account.ID != acc.ID || m.account.Credits != acc.Credits))
	m.account = acc
	m.mu.Unlock()

	if changed {
		m.broadcast(AccountChangedEvent{Account: acc})
	}
}

func (m *Manager) setCredits(credits int64) {
	m.mu.Lock()
	if m.account != nil {
		m.account.Credits = credits
	}
	m.mu.Unlock()

	if err := m.credentials.UpdateCredits(credits); err != nil {
		logger.Warn("failed to cache balance", "error", err)
	}
	m.broadcast(BalanceChangedEvent{Credits: credits})
}

// Signup creates an account with the free trial balance and logs it in.
func (m *Manager) Signup(ctx context.Context, email, password string) (*models.Account, error) {
	sess, err := m.auth.Signup(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.startSession(sess)
}

// Login verifies the credentials and remembers the session.
func (m *Manager) Login(ctx context.Context, email, password string) (*models.Account, error) {
	sess, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.startSession(sess)
}

func (m *Manager) startSession(sess *auth.Session) (*models.Account, error) {
	if err := m.credentials.Save(sess.Token, sess.Account.Email, sess.Account.Credits); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.setAccount(sess.Account)
	logger.Info("logged in", "account", sess.Account.ID)
	return m.Account(), nil
}

// Restore logs in with the saved session token. An expired or revoked token
// clears the saved session and returns auth.ErrUnauthorized.
func (m *Manager) Restore(ctx context.Context) (*models.Account, error) {
	saved := m.credentials.Get()
	if !saved.Valid() {
		return nil, ErrNotLoggedIn
	}

	acc, err := m.auth.Authenticate(ctx, saved.Token)
	if err != nil {
		if errors.Is(err, auth.ErrUnauthorized) {
			if clearErr := m.credentials.Clear(); clearErr != nil {
				logger.Warn("failed to clear session", "error", clearErr)
			}
			m.setAccount(nil)
		}
		return nil, err
	}

	m.setAccount(acc)
	return m.Account(), nil
}

// Logout stops any running session and forgets the saved login.
func (m *Manager) Logout() error {
	m.StopTyping()

	if err := m.credentials.Clear(); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	m.setAccount(nil)
	return nil
}

// Balance reads the current balance from the ledger.
func (m *Manager) Balance(ctx context.Context) (int64, error) {
	acc, err := m.requireAccount()
	if err != nil {
		return 0, err
	}

	balance, err := m.ledger.Balance(ctx, acc.ID)
	if err != nil {
		return 0, err
	}
	m.setCredits(balance)
	return balance, nil
}

// Quote returns the credits text would cost.
func (m *Manager) Quote(text string) int64 {
	return m.bridge.Quote(text)
}

// Clipboard returns the current clipboard text.
func (m *Manager) Clipboard() (string, error) {
	text, err := m.readClipboard()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}

// Typing reports whether a typing job is in flight.
func (m *Manager) Typing() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.job != nil
}

// StartTyping types text into the focused control and charges the delivered
// characters once the session ends.
func (m *Manager) StartTyping(ctx context.Context, text string) (*metering.Job, error) {
	acc, err := m.requireAccount()
	if err != nil {
		return nil, err
	}

	job, err := m.bridge.StartTyping(ctx, acc.ID, text)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.job = job
	m.mu.Unlock()

	m.wg.Add(1)
	go m.watchJob(acc.ID, job)

	logger.Info("typing started", "session", job.Session().ID(), "characters", job.Session().Requested())
	return job, nil
}

// StartTypingFromClipboard types the clipboard contents.
func (m *Manager) StartTypingFromClipboard(ctx context.Context) (*metering.Job, error) {
	text, err := m.Clipboard()
	if err != nil {
		return nil, err
	}
	return m.StartTyping(ctx, text)
}

// StopTyping stops the running job. It reports whether there was one.
func (m *Manager) StopTyping() bool {
	m.mu.RLock()
	job := m.job
	m.mu.RUnlock()

	if job == nil {
		return false
	}
	m.bridge.StopTyping(job)
	return true
}

func (m *Manager) watchJob(accountID string, job *metering.Job) {
	defer m.wg.Done()

	for ev := range job.Events() {
		if ev.Outcome == nil {
			m.broadcast(TypingEvent{Event: ev.Session})
			continue
		}
		m.finishJob(accountID, job, *ev.Outcome)
	}
}

func (m *Manager) finishJob(accountID string, job *metering.Job, out metering.Outcome) {
	m.mu.Lock()
	if m.job == job {
		m.job = nil
	}
	current := m.account != nil && m.account.ID == accountID
	m.mu.Unlock()

	if current {
		m.setCredits(out.Balance)
	}
	m.notifyOutcome(out)
	m.broadcast(TypingFinishedEvent{Outcome: out})
}

func (m *Manager) notifyOutcome(out metering.Outcome) {
	var shortfall *ledger.InsufficientCreditsError
	switch {
	case errors.As(out.Err, &shortfall):
		m.sendNotification("Insufficient credits",
			fmt.Sprintf("%d characters were typed but %d credits could not be charged (%d available)",
				out.Result.Delivered, shortfall.Required, shortfall.Available))
		return

	case out.Err != nil:
		m.sendNotification("Typing failed", out.Err.Error())
		return

	case out.Result.State == injector.StateCancelled:
		return
	}

	m.sendNotification("Typing complete",
		fmt.Sprintf("%d characters typed for %d credits", out.Result.Delivered, out.Charged))
	m.checkLowBalance(out.Balance)
}

// checkLowBalance warns when the balance no longer covers the clipboard or
// falls below 5% of the free trial.
func (m *Manager) checkLowBalance(balance int64) {
	threshold := m.cfg.FreeTrialCredits * 5 / 100

	var next int64
	if text, err := m.readClipboard(); err == nil {
		next = m.Quote(text)
	}

	if balance < threshold || (next > 0 && balance < next) {
		m.sendNotification("Low balance", fmt.Sprintf("%d credits left", balance))
	}
}

func (m *Manager) sendNotification(title, body string) {
	if m.notify == nil {
		return
	}
	if err := m.notify(title, body); err != nil {
		logger.Debug("notification failed", "title", title, "error", err)
	}
}

// Packages lists the credit packages on sale.
func (m *Manager) Packages() []models.CreditPackage {
	return models.DefaultPackages()
}

// NormalizePaymentRef strips all whitespace from a pasted payment reference.
func NormalizePaymentRef(ref string) string {
	return strings.Join(strings.Fields(ref), "")
}

// Redeem credits a purchased package. Each payment reference can be
// redeemed once; validating the payment itself happens elsewhere.
func (m *Manager) Redeem(ctx context.Context, packageID, paymentRef string) (int64, error) {
	acc, err := m.requireAccount()
	if err != nil {
		return 0, err
	}

	pkg, ok := models.FindPackage(packageID)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPackage, packageID)
	}

	ref := NormalizePaymentRef(paymentRef)
	if ref == "" {
		return 0, ErrMissingPaymentRef
	}

	balance, err := m.ledger.Credit(ctx, acc.ID, pkg.Credits, models.KindPurchase, ledger.Metadata{
		AmountPaid: pkg.Price,
		PaymentRef: ref,
	})
	if err != nil {
		return 0, err
	}

	m.setCredits(balance)
	m.sendNotification("Credits added", fmt.Sprintf("%s: %d credits, balance %d", pkg.Name, pkg.Credits, balance))
	return balance, nil
}

// Stats returns the lifetime usage of the logged in account.
func (m *Manager) Stats(ctx context.Context) (models.UsageStats, error) {
	acc, err := m.requireAccount()
	if err != nil {
		return models.UsageStats{}, err
	}
	return m.ledger.UsageStats(ctx, acc.ID)
}

// History returns the newest transactions, all of them when limit <= 0.
func (m *Manager) History(ctx context.Context, limit int) ([]models.Transaction, error) {
	acc, err := m.requireAccount()
	if err != nil {
		return nil, err
	}
	return m.ledger.Transactions(ctx, acc.ID, limit)
}

// DailyUsage returns one row per day of the range, oldest first.
func (m *Manager) DailyUsage(ctx context.Context, r models.TimeRange) ([]models.DailyUsage, error) {
	acc, err := m.requireAccount()
	if err != nil {
		return nil, err
	}
	return m.ledger.DailyUsage(ctx, acc.ID, r.Days())
}

// Projection estimates how long the balance lasts at the burn rate seen
// over the range.
func (m *Manager) Projection(ctx context.Context, r models.TimeRange) (*projection.Projection, error) {
	acc, err := m.requireAccount()
	if err != nil {
		return nil, err
	}

	balance, err := m.ledger.Balance(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	days, err := m.ledger.DailyUsage(ctx, acc.ID, r.Days())
	if err != nil {
		return nil, err
	}
	return projection.Calculate(balance, days, time.Now()), nil
}

// Close stops the running job and closes all services. Calling it again
// returns the first result.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.StopTyping()
		m.cancelWatch()
		close(m.stopChan)

		// Let the last job settle before the database goes away
		m.wg.Wait()

		m.mu.Lock()
		for _, sub := range m.subscribers {
			close(sub)
		}
		m.subscribers = nil
		m.mu.Unlock()

		var errs []error
		if err := m.credentials.Close(); err != nil {
			errs = append(errs, err)
		}
		if err := m.database.Close(); err != nil {
			errs = append(errs, err)
		}
		m.closeErr = errors.Join(errs...)
	})
	return m.closeErr
}
