// Package app provides the main Bubble Tea application model and state management.
package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/metering"
	"github.com/codepaste/typer/internal/models"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

const (
	// LoadingNotificationID is the fixed ID for loading notifications.
	LoadingNotificationID = "__loading__"
)

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing notification message.
type Notification struct {
	ID        string
	Type      NotificationType
	Message   string
	CreatedAt time.Time
	Duration  time.Duration
}

// IsExpired returns true if the notification has expired.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// LoadingState tracks loading states for different resources.
type LoadingState struct {
	Initial bool
	Account bool
	Quote   bool
}

// Quote is the cost of typing the current clipboard.
type Quote struct {
	Err        error
	Characters int
	Credits    int64
}

// Typing is the UI view of the current typing job.
type Typing struct {
	ArmedAt   time.Time
	ArmDelay  time.Duration
	SessionID string
	Phase     injector.State
	Progress  injector.Progress
	// ArmID identifies the countdown so a stale timer cannot start typing
	// after the user cancelled and re-armed.
	ArmID  int
	Arming bool
	Active bool
}

// ArmRemaining returns how long until the countdown ends.
func (t Typing) ArmRemaining(now time.Time) time.Duration {
	if !t.Arming {
		return 0
	}
	return max(t.ArmDelay-now.Sub(t.ArmedAt), 0)
}

// Busy reports whether a countdown or a session is in flight.
func (t Typing) Busy() bool {
	return t.Arming || t.Active
}

// State is the shared state read by every tab.
type State struct {
	mu sync.RWMutex

	Account *models.Account
	Balance int64
	Quote   Quote
	Typing  Typing
	// LastOutcome is the accounting result of the most recent job.
	LastOutcome *metering.Outcome

	Loading LoadingState

	LastUpdated time.Time

	notifications   []Notification
	notificationSeq int
	armSeq          int
}

// NewState returns the initial state.
func NewState() *State {
	return &State{
		notifications: make([]Notification, 0),
		Loading: LoadingState{
			Initial: true,
		},
	}
}

// SetLoading sets the loading state for a specific resource.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch resource {
	case "initial":
		s.Loading.Initial = loading
	case "account":
		s.Loading.Account = loading
	case "quote":
		s.Loading.Quote = loading
	}
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.Loading.Initial || s.Loading.Account || s.Loading.Quote
}

// IsInitialLoading returns true if initial data is still loading.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Loading.Initial
}

// GetLoadingResources returns a list of currently loading resources.
func (s *State) GetLoadingResources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var resources []string
	if s.Loading.Initial {
		resources = append(resources, "initial")
	}
	if s.Loading.Account {
		resources = append(resources, "account")
	}
	if s.Loading.Quote {
		resources = append(resources, "quote")
	}
	return resources
}

// SetAccount replaces the logged in account. A nil account means logged out.
func (s *State) SetAccount(acc *models.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.LastUpdated = time.Now()
	if acc == nil {
		s.Account = nil
		s.Balance = 0
		return
	}
	c := acc.Clone()
	s.Account = &c
	s.Balance = acc.Credits
}

// GetAccount returns a copy of the logged in account, or nil.
func (s *State) GetAccount() *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.Account == nil {
		return nil
	}
	c := s.Account.Clone()
	return &c
}

// LoggedIn reports whether an account is loaded.
func (s *State) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Account != nil
}

// SetBalance updates the known balance.
func (s *State) SetBalance(credits int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Balance = credits
	if s.Account != nil {
		s.Account.Credits = credits
	}
	s.LastUpdated = time.Now()
}

// GetBalance returns the known balance.
func (s *State) GetBalance() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Balance
}

// SetQuote records the cost of the current clipboard.
func (s *State) SetQuote(q Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Quote = q
}

// GetQuote returns the cost of the current clipboard.
func (s *State) GetQuote() Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Quote
}

// Short reports whether the balance cannot cover the clipboard.
func (s *State) Short() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Quote.Err == nil && s.Quote.Credits > s.Balance
}

// BeginArming starts a countdown and returns its ID. It returns 0 when a
// countdown or session is already running.
func (s *State) BeginArming(delay time.Duration, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Typing.Busy() {
		return 0
	}
	s.armSeq++
	s.Typing = Typing{
		ArmedAt:  now,
		ArmDelay: delay,
		ArmID:    s.armSeq,
		Arming:   true,
	}
	return s.armSeq
}

// CompleteArming ends the countdown with the given ID. It reports false
// when the countdown was cancelled or replaced.
func (s *State) CompleteArming(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Typing.Arming || s.Typing.ArmID != id {
		return false
	}
	s.Typing.Arming = false
	s.Typing.Active = true
	s.Typing.Phase = injector.StateResolving
	return true
}

// CancelArming aborts a pending countdown. It reports whether one was
// running.
func (s *State) CancelArming() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Typing.Arming {
		return false
	}
	s.Typing = Typing{}
	return true
}

// ApplyTypingEvent folds a session event into the typing state.
func (s *State) ApplyTypingEvent(ev injector.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Typing.Active = true
	s.Typing.Arming = false
	s.Typing.SessionID = ev.SessionID
	s.Typing.Phase = ev.State
	// Progress never moves backwards within a session.
	if ev.Progress.Total > 0 && ev.Progress.Done >= s.Typing.Progress.Done {
		s.Typing.Progress = ev.Progress
	}
}

// FinishTyping records the outcome of a job and clears the typing state.
func (s *State) FinishTyping(out metering.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Typing = Typing{Phase: out.Result.State}
	s.LastOutcome = &out
	s.Balance = out.Balance
	if s.Account != nil {
		s.Account.Credits = out.Balance
	}
	s.LastUpdated = time.Now()
}

// AbortTyping clears the typing state after a failed start.
func (s *State) AbortTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Typing = Typing{}
}

// GetTyping returns a snapshot of the typing state.
func (s *State) GetTyping() Typing {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Typing
}

// GetLastOutcome returns the most recent job outcome, or nil.
func (s *State) GetLastOutcome() *metering.Outcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastOutcome
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.notificationSeq++
	id := fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), s.notificationSeq)

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})

	// Keep only the last 10 notifications
	if len(s.notifications) > 10 {
		s.notifications = s.notifications[len(s.notifications)-10:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// GetNotifications returns a copy of all active notifications.
func (s *State) GetNotifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// ClearAllNotifications removes all notifications.
func (s *State) ClearAllNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifications = make([]Notification, 0)
}

// SetLoadingNotification sets a loading notification message.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading notification.
func (s *State) ClearLoadingNotification() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// GetLastUpdated returns the last time the state was updated.
func (s *State) GetLastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastUpdated
}

// TimeSinceUpdate returns the duration since the last update.
func (s *State) TimeSinceUpdate() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.LastUpdated.IsZero() {
		return 0
	}
	return time.Since(s.LastUpdated)
}
