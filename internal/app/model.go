// Package app implements the main Bubble Tea application with tab-based navigation.
package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/codepaste/typer/internal/auth"
	"github.com/codepaste/typer/internal/db"
	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/ledger"
	"github.com/codepaste/typer/internal/metering"
	"github.com/codepaste/typer/internal/services"
	"github.com/codepaste/typer/internal/ui/components"
	"github.com/codepaste/typer/internal/ui/styles"
)

// TabID represents the identifier for a tab in the application.
type TabID int

const (
	// TabTyper is the ID for the typer tab.
	TabTyper TabID = iota
	// TabHistory is the ID for the history tab.
	TabHistory
	// TabInfo is the ID for the info tab.
	TabInfo
)

// String returns the string representation of the TabID.
func (t TabID) String() string {
	switch t {
	case TabTyper:
		return "Typer"
	case TabHistory:
		return "History"
	case TabInfo:
		return "Info"
	default:
		return "Unknown"
	}
}

// Tab defines the interface that all tabs must implement.
type Tab interface {
	// Init initializes the tab and returns any initial commands.
	Init() tea.Cmd

	// Update handles messages and returns the updated tab and any commands.
	Update(msg tea.Msg) (Tab, tea.Cmd)

	// View renders the tab content.
	View() string

	// SetSize sets the available size for the tab.
	SetSize(width, height int)

	// ShortHelp returns key bindings for the short help view.
	ShortHelp() []key.Binding

	// FullHelp returns key bindings for the full help view.
	FullHelp() [][]key.Binding
}

// InputCapturer is implemented by tabs with text inputs. While it reports
// true, only ctrl+c is handled globally and every other key goes to the tab.
type InputCapturer interface {
	CapturingInput() bool
}

// KeyMap defines the keybindings for the application.
type KeyMap struct {
	Tab1    key.Binding
	Tab2    key.Binding
	Tab3    key.Binding
	NextTab key.Binding
	PrevTab key.Binding
	Refresh key.Binding
	Stop    key.Binding
	Help    key.Binding
	Quit    key.Binding
	Escape  key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	km := KeyMap{}
	km = setTabKeys(km)
	km = setActionKeys(km)
	return km
}

func setTabKeys(k KeyMap) KeyMap {
	k.Tab1 = key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "typer"))
	k.Tab2 = key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "history"))
	k.Tab3 = key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "info"))
	k.NextTab = key.NewBinding(key.WithKeys("tab", "right"), key.WithHelp("tab/→", "next tab"))
	k.PrevTab = key.NewBinding(key.WithKeys("shift+tab", "left"), key.WithHelp("shift+tab/←", "prev tab"))
	return k
}

func setActionKeys(k KeyMap) KeyMap {
	k.Refresh = key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "refresh"))
	k.Stop = key.NewBinding(key.WithKeys("x", "ctrl+x"), key.WithHelp("x", "stop typing"))
	k.Help = key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help"))
	k.Quit = key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit"))
	k.Escape = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close"))
	return k
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Stop, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab1, k.Tab2, k.Tab3},
		{k.NextTab, k.PrevTab},
		{k.Refresh, k.Stop, k.Help, k.Quit},
	}
}

// Styles defines the application styles.
type Styles struct {
	// Tab bar styles
	TabBar      lipgloss.Style
	ActiveTab   lipgloss.Style
	InactiveTab lipgloss.Style
	Status      lipgloss.Style

	// Notification styles
	NotificationSuccess lipgloss.Style
	NotificationError   lipgloss.Style
	NotificationWarning lipgloss.Style
	NotificationInfo    lipgloss.Style

	// Content styles
	Content lipgloss.Style
	Help    lipgloss.Style
	Spinner lipgloss.Style

	// Common styles
	Title     lipgloss.Style
	Subtle    lipgloss.Style
	Highlight lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
}

// DefaultStyles returns the default application styles.
func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	success := lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warning := lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FF8C00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"}

	s := Styles{}
	s.TabBar = lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).
		BorderBottom(true).BorderForeground(subtle)
	s.ActiveTab = lipgloss.NewStyle().Bold(true).Foreground(highlight).Padding(0, 2)
	s.InactiveTab = lipgloss.NewStyle().Foreground(subtle).Padding(0, 2)
	s.Status = lipgloss.NewStyle().Foreground(subtle).Padding(0, 1)

	s.NotificationSuccess = styles.NotificationSuccessStyle
	s.NotificationError = styles.NotificationErrorStyle.Bold(true)
	s.NotificationWarning = styles.NotificationWarningStyle
	s.NotificationInfo = styles.NotificationInfoStyle

	s.Content = lipgloss.NewStyle().Padding(1, 2)
	s.Help = lipgloss.NewStyle().Foreground(subtle).Padding(0, 1)
	s.Spinner = lipgloss.NewStyle().Foreground(highlight)

	s.Title = lipgloss.NewStyle().Bold(true).Foreground(highlight)
	s.Subtle = lipgloss.NewStyle().Foreground(subtle)
	s.Highlight = lipgloss.NewStyle().Foreground(highlight)
	s.Error = lipgloss.NewStyle().Foreground(errorColor)
	s.Success = lipgloss.NewStyle().Foreground(success)
	s.Warning = lipgloss.NewStyle().Foreground(warning)

	return s
}

// Model is the main application model.
type Model struct {
	// Tab management
	activeTab TabID
	tabs      []Tab
	tabNames  []string

	// Shared state
	state    *State
	services *services.Manager
	commands *Commands
	keymap   KeyMap
	styles   Styles

	// UI components
	spinner spinner.Model

	// Window dimensions
	width  int
	height int

	// UI state
	showHelp bool
	ready    bool

	armDelay time.Duration

	// Service subscription
	eventChannel chan services.ServiceEvent
}

// NewModel initializes a new application model.
func NewModel(mgr *services.Manager) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	m := &Model{
		activeTab: TabTyper,
		tabNames:  []string{"Typer", "History", "Info"},
		tabs:      make([]Tab, 3), // Placeholder - tabs will be set externally
		state:     NewState(),
		services:  mgr,
		commands:  NewCommands(mgr),
		keymap:    DefaultKeyMap(),
		styles:    DefaultStyles(),
		spinner:   s,
	}
	if mgr != nil {
		m.armDelay = mgr.Config().ArmDelay
	}

	return m
}

// SetTabs sets the tabs for the model.
func (m *Model) SetTabs(tabs []Tab) {
	m.tabs = tabs
	if m.width > 0 && m.height > 0 {
		m.updateTabSizes()
	}
}

// SetArmDelay overrides the countdown before typing starts.
func (m *Model) SetArmDelay(d time.Duration) {
	m.armDelay = d
}

// GetState returns the application state.
func (m *Model) GetState() *State {
	return m.state
}

// GetServices returns the service manager.
func (m *Model) GetServices() *services.Manager {
	return m.services
}

// GetCommands returns the commands helper.
func (m *Model) GetCommands() *Commands {
	return m.commands
}

// GetKeyMap returns the key bindings.
func (m *Model) GetKeyMap() KeyMap {
	return m.keymap
}

// GetStyles returns the application styles.
func (m *Model) GetStyles() Styles {
	return m.styles
}

// GetActiveTab returns the currently active tab ID.
func (m *Model) GetActiveTab() TabID {
	return m.activeTab
}

// GetWidth returns the window width.
func (m *Model) GetWidth() int {
	return m.width
}

// GetHeight returns the window height.
func (m *Model) GetHeight() int {
	return m.height
}

// IsReady returns true if the model is ready (window size received).
func (m *Model) IsReady() bool {
	return m.ready
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		m.spinner.Tick,
		defaultTickCmd(),
	}

	if m.services != nil {
		m.state.SetLoadingNotification("Loading...")
		cmds = append(cmds, subscribeToServicesCmd(m.services))
		cmds = append(cmds, loadInitialData(m.services))
	} else {
		m.state.SetLoading("initial", false)
	}

	for _, tab := range m.tabs {
		if tab != nil {
			cmds = append(cmds, tab.Init())
		}
	}

	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg, tea.KeyMsg, spinner.TickMsg:
		if cmd := m.handleTeaMsg(msg); cmd != nil {
			cmds = append(cmds, cmd)
		}

	default:
		if appCmds := m.handleAppMsg(msg); len(appCmds) > 0 {
			cmds = append(cmds, appCmds...)
		}
	}

	if cmd := m.updateActiveTab(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleTeaMsg(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.handleWindowSize(msg)
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case spinner.TickMsg:
		return m.handleSpinnerTick(msg)
	}
	return nil
}

func (m *Model) handleAppMsg(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case TickMsg:
		cmds = append(cmds, m.handleTick())
	case components.CountdownTickMsg:
		if m.state.GetTyping().Arming {
			cmds = append(cmds, components.CountdownTick())
		}
	case SubscriptionEventMsg:
		m.eventChannel = msg.Channel
		cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
	case ServiceEventMsg:
		cmds = append(cmds, m.handleServiceEventMsg(msg)...)
	case AccountLoadedMsg:
		cmds = append(cmds, m.handleAccountLoaded(msg)...)
	case QuoteLoadedMsg:
		m.state.SetLoading("quote", false)
		m.state.SetQuote(msg.Quote)
	case LoginMsg:
		if m.services != nil {
			m.state.SetLoading("account", true)
			cmds = append(cmds, authCmd(m.services, msg))
		}
	case AuthResultMsg:
		cmds = append(cmds, m.handleAuthResult(msg)...)
	case LogoutMsg:
		if m.services != nil {
			m.state.CancelArming()
			cmds = append(cmds, logoutCmd(m.services))
		}
	case LogoutResultMsg:
		if msg.Err != nil {
			cmds = append(cmds, notifyErrorCmd(fmt.Sprintf("Logout failed: %v", msg.Err)))
		} else {
			m.state.SetAccount(nil)
			cmds = append(cmds, notifyInfoCmd("Logged out"))
		}
	case ArmTypingMsg:
		cmds = append(cmds, m.handleArmTyping()...)
	case ArmedMsg:
		if m.state.CompleteArming(msg.ID) && m.services != nil {
			cmds = append(cmds, startTypingCmd(m.services))
		}
	case TypingStartedMsg:
		if msg.Err != nil {
			m.state.AbortTyping()
			cmds = append(cmds, notifyErrorCmd(DescribeError(msg.Err)))
		} else {
			cmds = append(cmds, notifyInfoCmd(fmt.Sprintf("Typing %d characters", msg.Characters)))
		}
	case StopTypingMsg:
		cmds = append(cmds, m.handleStopTyping()...)
	case RedeemMsg:
		if m.services != nil {
			cmds = append(cmds, redeemCmd(m.services, msg))
		}
	case RedeemResultMsg:
		cmds = append(cmds, m.handleRedeemResult(msg)...)
	case AddNotificationMsg:
		cmds = append(cmds, m.handleAddNotification(msg)...)
	case RemoveNotificationMsg:
		m.state.RemoveNotification(msg.ID)
	case ClearExpiredNotificationsMsg:
		m.state.ClearExpiredNotifications()
	case StartLoadingMsg:
		m.handleStartLoading(msg)
	case StopLoadingMsg:
		m.handleStopLoading(msg)
	case ErrorMsg:
		cmds = append(cmds, notifyErrorCmd(msg.Error.Error()))
	case RefreshMsg:
		cmds = append(cmds, m.handleRefresh(msg)...)
	case TabSwitchMsg:
		m.activeTab = msg.Tab
		m.updateTabSizes()
	case ToggleHelpMsg:
		m.showHelp = !m.showHelp
	}
	return cmds
}

func (m *Model) handleWindowSize(msg tea.WindowSizeMsg) {
	m.width = msg.Width
	m.height = msg.Height
	m.ready = true
	m.updateTabSizes()
}

func (m *Model) handleSpinnerTick(msg spinner.TickMsg) tea.Cmd {
	var cmd tea.Cmd
	m.spinner, cmd = m.spinner.Update(msg)
	return cmd
}

func (m *Model) handleTick() tea.Cmd {
	m.state.ClearExpiredNotifications()
	return defaultTickCmd()
}

func (m *Model) handleServiceEventMsg(msg ServiceEventMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if cmd := m.handleServiceEvent(msg.Event); cmd != nil {
		cmds = append(cmds, cmd)
	}
	if m.eventChannel != nil {
		cmds = append(cmds, waitForServiceEventCmd(m.eventChannel))
	}
	return cmds
}

func (m *Model) handleAccountLoaded(msg AccountLoadedMsg) []tea.Cmd {
	var cmds []tea.Cmd
	m.state.SetLoading("initial", false)
	m.state.SetLoading("account", false)
	if !m.state.AnyLoading() {
		m.state.ClearLoadingNotification()
	}

	if msg.Err != nil {
		if errors.Is(msg.Err, auth.ErrUnauthorized) {
			m.state.SetAccount(nil)
			return append(cmds, notifyWarningCmd("Saved login expired, please log in again"))
		}
		return append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to load account: %v", msg.Err)))
	}
	m.state.SetAccount(msg.Account)
	return cmds
}

func (m *Model) handleAuthResult(msg AuthResultMsg) []tea.Cmd {
	var cmds []tea.Cmd
	m.state.SetLoading("account", false)
	if msg.Err != nil {
		return append(cmds, notifyErrorCmd(DescribeError(msg.Err)))
	}

	m.state.SetAccount(msg.Account)
	if msg.Signup {
		cmds = append(cmds, notifySuccessCmd(fmt.Sprintf("Welcome! %d free credits added", msg.Account.Credits)))
	} else {
		cmds = append(cmds, notifySuccessCmd(fmt.Sprintf("Logged in as %s", msg.Account.Email)))
	}
	if m.services != nil {
		cmds = append(cmds, loadQuoteCmd(m.services))
	}
	return cmds
}

func (m *Model) handleArmTyping() []tea.Cmd {
	if m.services == nil {
		return nil
	}
	if !m.state.LoggedIn() {
		return []tea.Cmd{notifyWarningCmd("Log in before typing")}
	}
	if m.state.Short() {
		q := m.state.GetQuote()
		return []tea.Cmd{notifyWarningCmd(fmt.Sprintf(
			"Insufficient credits: need %d, have %d", q.Credits, m.state.GetBalance()))}
	}

	id := m.state.BeginArming(m.armDelay, time.Now())
	if id == 0 {
		return []tea.Cmd{notifyInfoCmd("Already typing")}
	}
	if m.armDelay <= 0 {
		m.state.CompleteArming(id)
		return []tea.Cmd{startTypingCmd(m.services)}
	}
	return []tea.Cmd{
		armCmd(id, m.armDelay),
		components.CountdownTick(),
		notifyInfoCmd("Focus the target window"),
	}
}

func (m *Model) handleStopTyping() []tea.Cmd {
	if m.state.CancelArming() {
		return []tea.Cmd{notifyInfoCmd("Countdown cancelled")}
	}
	if m.state.GetTyping().Active && m.services != nil {
		return []tea.Cmd{stopTypingCmd(m.services)}
	}
	return nil
}

func (m *Model) handleRedeemResult(msg RedeemResultMsg) []tea.Cmd {
	if msg.Err != nil {
		return []tea.Cmd{notifyErrorCmd(DescribeError(msg.Err))}
	}
	m.state.SetBalance(msg.Balance)
	return []tea.Cmd{notifySuccessCmd(fmt.Sprintf(
		"%s redeemed: %d credits, balance %d", msg.Package.Name, msg.Package.Credits, msg.Balance))}
}

func (m *Model) handleAddNotification(msg AddNotificationMsg) []tea.Cmd {
	var cmds []tea.Cmd
	id := m.state.AddNotification(msg.Type, msg.Message, msg.Duration)
	if msg.Duration > 0 {
		cmds = append(cmds, clearNotificationCmd(id, msg.Duration))
	}
	return cmds
}

func (m *Model) handleStartLoading(msg StartLoadingMsg) {
	m.state.SetLoading(msg.Resource, true)
	m.state.SetLoadingNotification("Refreshing...")
}

func (m *Model) handleStopLoading(msg StopLoadingMsg) {
	m.state.SetLoading(msg.Resource, false)
	if !m.state.AnyLoading() {
		m.state.ClearLoadingNotification()
	}
}

func (m *Model) handleRefresh(msg RefreshMsg) []tea.Cmd {
	var cmds []tea.Cmd
	if m.services == nil {
		return cmds
	}

	switch msg.Resource {
	case "all":
		m.state.SetLoading("quote", true)
		cmds = append(cmds, loadBalanceCmd(m.services), loadQuoteCmd(m.services))
	case "account":
		cmds = append(cmds, loadBalanceCmd(m.services))
	case "quote":
		m.state.SetLoading("quote", true)
		cmds = append(cmds, loadQuoteCmd(m.services))
	}
	return cmds
}

func (m *Model) updateActiveTab(msg tea.Msg) tea.Cmd {
	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		var cmd tea.Cmd
		m.tabs[m.activeTab], cmd = m.tabs[m.activeTab].Update(msg)
		return cmd
	}
	return nil
}

func (m *Model) updateTabSizes() {
	contentHeight := m.height - 5
	contentHeight = max(0, contentHeight)

	for _, tab := range m.tabs {
		if tab != nil {
			tab.SetSize(m.width, contentHeight)
		}
	}
}

func (m *Model) capturingInput() bool {
	if int(m.activeTab) >= len(m.tabs) || m.tabs[m.activeTab] == nil {
		return false
	}
	c, ok := m.tabs[m.activeTab].(InputCapturer)
	return ok && c.CapturingInput()
}

// switchTab activates id and lets the tab know it became visible.
func (m *Model) switchTab(id TabID) tea.Cmd {
	m.activeTab = id
	m.updateTabSizes()
	return func() tea.Msg { return TabSwitchMsg{Tab: id} }
}

// handleKeyMsg handles keyboard input.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	if m.capturingInput() {
		if msg.String() == "ctrl+c" {
			return tea.Quit
		}
		return nil
	}

	// Global keybindings (work regardless of tab)
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		return nil

	case key.Matches(msg, m.keymap.Tab1):
		return m.switchTab(TabTyper)

	case key.Matches(msg, m.keymap.Tab2):
		return m.switchTab(TabHistory)

	case key.Matches(msg, m.keymap.Tab3):
		return m.switchTab(TabInfo)

	case key.Matches(msg, m.keymap.NextTab):
		if !m.showHelp && len(m.tabs) > 0 {
			return m.switchTab(TabID((int(m.activeTab) + 1) % len(m.tabs)))
		}
		return nil

	case key.Matches(msg, m.keymap.PrevTab):
		if !m.showHelp && len(m.tabs) > 0 {
			return m.switchTab(TabID((int(m.activeTab) - 1 + len(m.tabs)) % len(m.tabs)))
		}
		return nil

	case key.Matches(msg, m.keymap.Stop):
		return func() tea.Msg { return StopTypingMsg{} }

	case key.Matches(msg, m.keymap.Refresh):
		return func() tea.Msg { return RefreshMsg{Resource: "all"} }

	case key.Matches(msg, m.keymap.Escape):
		if m.showHelp {
			m.showHelp = false
			return nil
		}
		if m.state.GetTyping().Busy() {
			return func() tea.Msg { return StopTypingMsg{} }
		}
	}

	// Let the tab handle other keys
	return nil
}

func (m *Model) handleServiceEvent(event services.ServiceEvent) tea.Cmd {
	switch e := event.(type) {
	case services.AccountChangedEvent:
		m.state.SetAccount(e.Account)
		if e.Account == nil {
			m.state.CancelArming()
		}
		if m.services != nil {
			return loadQuoteCmd(m.services)
		}

	case services.BalanceChangedEvent:
		m.state.SetBalance(e.Credits)

	case services.TypingEvent:
		m.state.ApplyTypingEvent(e.Event)

	case services.TypingFinishedEvent:
		m.state.FinishTyping(e.Outcome)
		t, text := OutcomeMessage(e.Outcome)
		cmds := []tea.Cmd{notifyCmd(t, text, DefaultNotificationDuration)}
		if m.services != nil {
			cmds = append(cmds, loadQuoteCmd(m.services))
		}
		return tea.Batch(cmds...)

	case services.ConfigReloadedEvent:
		m.armDelay = e.ArmDelay
		return notifyInfoCmd("Typing settings reloaded")

	case services.ErrorEvent:
		return notifyErrorCmd(fmt.Sprintf("[%s] %v", e.Service, e.Error))
	}

	return nil
}

// OutcomeMessage summarizes a finished typing job for a toast.
func OutcomeMessage(out metering.Outcome) (NotificationType, string) {
	var shortfall *ledger.InsufficientCreditsError
	switch {
	case errors.As(out.Err, &shortfall):
		return NotificationWarning, fmt.Sprintf(
			"Typed %d characters but could not charge %d credits (%d available)",
			out.Result.Delivered, shortfall.Required, shortfall.Available)
	case out.Err != nil:
		return NotificationError, DescribeError(out.Err)
	case out.Result.State == injector.StateCancelled:
		return NotificationInfo, "Typing cancelled, nothing charged"
	case out.Result.Delivered < out.Result.Requested:
		return NotificationInfo, fmt.Sprintf("Stopped after %d of %d characters, charged %d credits",
			out.Result.Delivered, out.Result.Requested, out.Charged)
	}
	return NotificationSuccess, fmt.Sprintf("Typed %d characters for %d credits",
		out.Result.Delivered, out.Charged)
}

// DescribeError turns service errors into short user-facing text.
func DescribeError(err error) string {
	var shortfall *ledger.InsufficientCreditsError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &shortfall):
		return fmt.Sprintf("Insufficient credits: need %d, have %d", shortfall.Required, shortfall.Available)
	case errors.Is(err, injector.ErrNotFound):
		return "No focused text field found"
	case errors.Is(err, injector.ErrAlreadyRunning):
		return "Already typing"
	case errors.Is(err, injector.ErrUnsupportedPlatform):
		return "Typing is not supported on this platform"
	case errors.Is(err, metering.ErrNothingToType):
		return "Clipboard is empty"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "Invalid email or password"
	case errors.Is(err, db.ErrDuplicateEmail):
		return "Email already registered"
	case errors.Is(err, db.ErrDuplicateRef):
		return "Payment reference already redeemed"
	case errors.Is(err, services.ErrNotLoggedIn):
		return "Not logged in"
	}
	return err.Error()
}

// View renders the application UI.
func (m *Model) View() string {
	var b strings.Builder

	if m.width > 0 {
		b.WriteString(m.renderNavbar())
		b.WriteString("\n")
	}

	if !m.ready {
		b.WriteString(m.styles.Content.Render(fmt.Sprintf("%s Loading...", m.spinner.View())))
		return b.String()
	}

	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		b.WriteString(m.tabs[m.activeTab].View())
	} else {
		b.WriteString(m.renderPlaceholder())
	}

	mainView := b.String()

	if m.showHelp {
		// Render help modal
		helpView := m.renderHelp()
		mainView = m.overlayCentered(mainView, helpView)
	}

	notifications := m.renderNotifications()

	if len(notifications) > 0 {
		return m.overlayToasts(mainView, notifications)
	}

	return mainView
}

func (m *Model) overlayCentered(mainView string, overlay string) string {
	mainLines := strings.Split(mainView, "\n")
	overlayLines := strings.Split(overlay, "\n")

	overlayHeight := len(overlayLines)
	overlayWidth := lipgloss.Width(overlay)

	// Calculate center position
	y := (m.height - overlayHeight) / 2
	x := (m.width - overlayWidth) / 2

	if y < 0 {
		y = 0
	}
	if x < 0 {
		x = 0
	}

	for i, overlayLine := range overlayLines {
		mainY := y + i
		if mainY >= len(mainLines) {
			break
		}

		mainLine := mainLines[mainY]

		// Truncate main line to the start of the overlay
		left := ansi.Truncate(mainLine, x, "")

		// Calculate how much to cut from the left for the right part
		// We want to skip 'x + overlayWidth' visual cells
		right := ansi.TruncateLeft(mainLine, x+overlayWidth, "")

		// If the line was shorter than the overlay start, pad it
		if lipgloss.Width(left) < x {
			left += strings.Repeat(" ", x-lipgloss.Width(left))
		}

		mainLines[mainY] = left + overlayLine + right
	}

	return strings.Join(mainLines, "\n")
}

func (m *Model) renderNavbar() string {
	var tabs []string

	for i, name := range m.tabNames {
		if TabID(i) == m.activeTab {
			tabs = append(tabs, m.styles.ActiveTab.Render(fmt.Sprintf("[%d] %s", i+1, name)))
		} else {
			tabs = append(tabs, m.styles.InactiveTab.Render(fmt.Sprintf(" %d  %s", i+1, name)))
		}
	}

	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabs...)

	status := m.styles.Status.Render(m.statusText())
	gap := m.width - lipgloss.Width(tabBar) - lipgloss.Width(status) - 2
	if gap > 0 {
		tabBar = lipgloss.JoinHorizontal(lipgloss.Top, tabBar, strings.Repeat(" ", gap), status)
	}

	return m.styles.TabBar.Width(m.width).Render(tabBar)
}

// statusText is the right side of the navbar.
func (m *Model) statusText() string {
	acc := m.state.GetAccount()
	if acc == nil {
		return "not logged in"
	}
	status := fmt.Sprintf("%s · %d credits", acc.Email, m.state.GetBalance())
	if t := m.state.GetTyping(); t.Active {
		status = fmt.Sprintf("%s %s · %s", m.spinner.View(), t.Phase, status)
	}
	return status
}

func (m *Model) renderNotifications() []string {
	notifications := m.state.GetNotifications()
	if len(notifications) == 0 {
		return nil
	}

	var toasts []string
	for _, n := range notifications {
		var style lipgloss.Style
		var prefix string

		switch n.Type {
		case NotificationSuccess:
			style = m.styles.NotificationSuccess
			prefix = "[OK]"
		case NotificationError:
			style = m.styles.NotificationError
			prefix = "[ERR]"
		case NotificationWarning:
			style = m.styles.NotificationWarning
			prefix = "[WARN]"
		case NotificationInfo:
			style = m.styles.NotificationInfo
			prefix = "[INFO]"
		case NotificationLoading:
			style = m.styles.NotificationInfo
			prefix = m.spinner.View()
		}

		toasts = append(toasts, style.Render(fmt.Sprintf("%s %s", prefix, n.Message)))
	}

	return toasts
}

func (m *Model) overlayToasts(mainView string, toasts []string) string {
	if len(toasts) == 0 {
		return mainView
	}

	toastStack := lipgloss.JoinVertical(lipgloss.Right, toasts...)
	toastLines := strings.Split(toastStack, "\n")
	mainLines := strings.Split(mainView, "\n")

	toastWidth := lipgloss.Width(toastStack)
	startX := max(m.width-toastWidth-2, 0)

	startY := 2

	for i, toastLine := range toastLines {
		lineIdx := startY + i
		if lineIdx >= len(mainLines) {
			break
		}

		mainLine := mainLines[lineIdx]
		mainLineWidth := lipgloss.Width(mainLine)

		if mainLineWidth < startX {
			padding := strings.Repeat(" ", startX-mainLineWidth)
			mainLines[lineIdx] = mainLine + padding + toastLine
		} else {
			truncated := ansi.Truncate(mainLine, startX, "")
			mainLines[lineIdx] = truncated + toastLine
		}
	}

	return strings.Join(mainLines, "\n")
}

func (m *Model) renderHelp() string {
	var lines []string

	lines = append(lines, m.styles.Title.Render("Keyboard Shortcuts"))
	lines = append(lines, "")

	lines = append(lines, m.styles.Highlight.Render("Navigation"))
	lines = append(lines, helpRow("1-3", "Switch tabs"))
	lines = append(lines, helpRow("Tab", "Next tab"))
	lines = append(lines, helpRow("Shift+Tab", "Previous tab"))
	lines = append(lines, "")

	lines = append(lines, m.styles.Highlight.Render("Typing"))
	lines = append(lines, helpRow("x/Esc", "Stop typing or cancel the countdown"))
	lines = append(lines, helpRow("r", "Refresh balance and clipboard"))
	lines = append(lines, "")

	lines = append(lines, m.styles.Highlight.Render("General"))
	lines = append(lines, helpRow("?", "Toggle help"))
	lines = append(lines, helpRow("q/Ctrl+C", "Quit"))
	lines = append(lines, "")

	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		tabHelp := m.tabs[m.activeTab].ShortHelp()
		if len(tabHelp) > 0 {
			lines = append(lines, m.styles.Highlight.Render(fmt.Sprintf("%s Tab", m.tabNames[m.activeTab])))
			for _, binding := range tabHelp {
				lines = append(lines, helpRow(binding.Help().Key, binding.Help().Desc))
			}
		}
	}

	lines = append(lines, "")
	lines = append(lines, m.styles.Subtle.Render("Press ? or Esc to close"))

	return styles.HelpPanelStyle.Render(strings.Join(lines, "\n"))
}

func helpRow(keys, desc string) string {
	return "  " + styles.HelpKeyStyle.Width(11).Render(keys) + styles.HelpDescStyle.Render(desc)
}

func (m *Model) renderPlaceholder() string {
	content := fmt.Sprintf(
		"Tab %d: %s\n\n%s",
		m.activeTab+1,
		m.tabNames[m.activeTab],
		m.styles.Subtle.Render("This tab is not yet implemented."),
	)
	return m.styles.Content.Render(content)
}
