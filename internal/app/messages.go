package app

import (
	"time"

	"github.com/codepaste/typer/internal/models"
	"github.com/codepaste/typer/internal/services"
)

// TickMsg is sent periodically to trigger state refresh.
type TickMsg struct {
	Time time.Time
}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// AccountLoadedMsg carries the account restored or refreshed from the
// ledger. Account is nil when nobody is logged in.
type AccountLoadedMsg struct {
	Account *models.Account
	Err     error
}

// QuoteLoadedMsg carries the cost of the current clipboard.
type QuoteLoadedMsg struct {
	Quote Quote
}

// LoginMsg requests a login, or a signup when Signup is set.
type LoginMsg struct {
	Email    string
	Password string
	Signup   bool
}

// AuthResultMsg contains the result of a login or signup.
type AuthResultMsg struct {
	Account *models.Account
	Err     error
	Signup  bool
}

// LogoutMsg requests a logout.
type LogoutMsg struct{}

// LogoutResultMsg contains the result of a logout.
type LogoutResultMsg struct {
	Err error
}

// ArmTypingMsg requests a countdown followed by typing the clipboard.
type ArmTypingMsg struct{}

// ArmedMsg fires when the countdown with ID ends.
type ArmedMsg struct {
	ID int
}

// TypingStartedMsg contains the result of starting a typing job.
type TypingStartedMsg struct {
	SessionID  string
	Characters int
	Err        error
}

// StopTypingMsg requests stopping the countdown or the running job.
type StopTypingMsg struct{}

// RedeemMsg requests crediting a package against a payment reference.
type RedeemMsg struct {
	PackageID  string
	PaymentRef string
}

// RedeemResultMsg contains the result of a redemption.
type RedeemResultMsg struct {
	Package models.CreditPackage
	Balance int64
	Err     error
}

// RefreshMsg requests a refresh of data.
type RefreshMsg struct {
	Resource string // "all", "account", "quote"
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Type     NotificationType
	Message  string
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ClearExpiredNotificationsMsg triggers clearing of expired notifications.
type ClearExpiredNotificationsMsg struct{}

// ServiceEventMsg wraps a service event from the service manager.
type ServiceEventMsg struct {
	Event services.ServiceEvent
}

// SubscriptionEventMsg is the callback wrapper for service subscription.
type SubscriptionEventMsg struct {
	Channel chan services.ServiceEvent
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}
