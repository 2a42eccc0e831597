package app

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/models"
	"github.com/codepaste/typer/internal/services"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = 2 * time.Second

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second

	// commandTimeout bounds ledger reads and writes issued from the UI.
	commandTimeout = 10 * time.Second
)

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// defaultTickCmd returns a command that sends a TickMsg after the default interval.
func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// loadInitialData restores the saved login and quotes the clipboard.
func loadInitialData(mgr *services.Manager) tea.Cmd {
	return tea.Sequence(
		restoreAccountCmd(mgr),
		loadQuoteCmd(mgr),
	)
}

// restoreAccountCmd logs in with the saved session, if any.
func restoreAccountCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		acc, err := mgr.Restore(ctx)
		if errors.Is(err, services.ErrNotLoggedIn) {
			err = nil
		}
		return AccountLoadedMsg{Account: acc, Err: err}
	}
}

// loadBalanceCmd re-reads the balance of the logged in account.
func loadBalanceCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		if _, err := mgr.Balance(ctx); err != nil {
			if errors.Is(err, services.ErrNotLoggedIn) {
				return AccountLoadedMsg{}
			}
			return AccountLoadedMsg{Account: mgr.Account(), Err: err}
		}
		return AccountLoadedMsg{Account: mgr.Account()}
	}
}

// loadQuoteCmd prices the current clipboard.
func loadQuoteCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		text, err := mgr.Clipboard()
		if err != nil {
			return QuoteLoadedMsg{Quote: Quote{Err: err}}
		}
		return QuoteLoadedMsg{Quote: Quote{
			Characters: injector.DeliverableLength(text),
			Credits:    mgr.Quote(text),
		}}
	}
}

// authCmd logs in or signs up.
func authCmd(mgr *services.Manager, msg LoginMsg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		var (
			acc *models.Account
			err error
		)
		if msg.Signup {
			acc, err = mgr.Signup(ctx, msg.Email, msg.Password)
		} else {
			acc, err = mgr.Login(ctx, msg.Email, msg.Password)
		}
		return AuthResultMsg{Account: acc, Err: err, Signup: msg.Signup}
	}
}

// logoutCmd forgets the saved login.
func logoutCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		return LogoutResultMsg{Err: mgr.Logout()}
	}
}

// armCmd fires ArmedMsg once the countdown elapses.
func armCmd(id int, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(time.Time) tea.Msg {
		return ArmedMsg{ID: id}
	})
}

// startTypingCmd types the clipboard into whatever control has focus now.
// The job outlives the command, so it gets a background context.
func startTypingCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		job, err := mgr.StartTypingFromClipboard(context.Background())
		if err != nil {
			return TypingStartedMsg{Err: err}
		}
		sess := job.Session()
		return TypingStartedMsg{SessionID: sess.ID(), Characters: sess.Requested()}
	}
}

// stopTypingCmd stops the running job. The outcome arrives as a service event.
func stopTypingCmd(mgr *services.Manager) tea.Cmd {
	return func() tea.Msg {
		mgr.StopTyping()
		return nil
	}
}

// redeemCmd credits a purchased package.
func redeemCmd(mgr *services.Manager, msg RedeemMsg) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		pkg, _ := models.FindPackage(msg.PackageID)
		balance, err := mgr.Redeem(ctx, msg.PackageID, msg.PaymentRef)
		return RedeemResultMsg{Package: pkg, Balance: balance, Err: err}
	}
}

// subscribeToServicesCmd returns a command that subscribes to service events.
func subscribeToServicesCmd(mgr *services.Manager) tea.Cmd {
	ch, _ := mgr.Subscribe()
	return func() tea.Msg {
		return SubscriptionEventMsg{Channel: ch}
	}
}

// waitForServiceEventCmd returns a command that waits for the next service event.
func waitForServiceEventCmd(ch <-chan services.ServiceEvent) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-ch
		if !ok {
			return nil
		}
		return ServiceEventMsg{Event: event}
	}
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

func notifyCmd(t NotificationType, message string, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{Type: t, Message: message, Duration: d}
	}
}

// notifySuccessCmd returns a command that adds a success notification.
func notifySuccessCmd(message string) tea.Cmd {
	return notifyCmd(NotificationSuccess, message, DefaultNotificationDuration)
}

// notifyErrorCmd returns a command that adds an error notification.
func notifyErrorCmd(message string) tea.Cmd {
	return notifyCmd(NotificationError, message, LongNotificationDuration)
}

// notifyWarningCmd returns a command that adds a warning notification.
func notifyWarningCmd(message string) tea.Cmd {
	return notifyCmd(NotificationWarning, message, DefaultNotificationDuration)
}

// notifyInfoCmd returns a command that adds an info notification.
func notifyInfoCmd(message string) tea.Cmd {
	return notifyCmd(NotificationInfo, message, QuickNotificationDuration)
}

// Commands provides a public interface to the command functions.
type Commands struct {
	manager *services.Manager
}

// NewCommands creates a new Commands instance.
func NewCommands(mgr *services.Manager) *Commands {
	return &Commands{manager: mgr}
}

// LoadInitialData returns a command that loads all initial data.
func (c *Commands) LoadInitialData() tea.Cmd {
	return loadInitialData(c.manager)
}

// LoadBalance returns a command that re-reads the balance.
func (c *Commands) LoadBalance() tea.Cmd {
	return loadBalanceCmd(c.manager)
}

// LoadQuote returns a command that prices the clipboard.
func (c *Commands) LoadQuote() tea.Cmd {
	return loadQuoteCmd(c.manager)
}

// SubscribeToServices returns a command that subscribes to service events.
func (c *Commands) SubscribeToServices() tea.Cmd {
	return subscribeToServicesCmd(c.manager)
}

// NotifySuccess returns a command that adds a success notification.
func (c *Commands) NotifySuccess(message string) tea.Cmd {
	return notifySuccessCmd(message)
}

// NotifyError returns a command that adds an error notification.
func (c *Commands) NotifyError(message string) tea.Cmd {
	return notifyErrorCmd(message)
}

// NotifyWarning returns a command that adds a warning notification.
func (c *Commands) NotifyWarning(message string) tea.Cmd {
	return notifyWarningCmd(message)
}

// NotifyInfo returns a command that adds an info notification.
func (c *Commands) NotifyInfo(message string) tea.Cmd {
	return notifyInfoCmd(message)
}

// ClearNotification returns a command that removes a notification after a delay.
func (c *Commands) ClearNotification(id string, delay time.Duration) tea.Cmd {
	return clearNotificationCmd(id, delay)
}

// Quit returns a command that quits the application.
func (c *Commands) Quit() tea.Cmd {
	return tea.Quit
}
