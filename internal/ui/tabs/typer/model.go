// Package typer provides the main tab: login, balance, clipboard quote and
// the typing controls.
package typer

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/codepaste/typer/internal/app"
	"github.com/codepaste/typer/internal/models"
	"github.com/codepaste/typer/internal/services"
	"github.com/codepaste/typer/internal/ui/components"
)

type mode int

const (
	modeMain mode = iota
	modeLogin
	modeRedeem
)

// keyMap defines the key bindings specific to the typer tab.
type keyMap struct {
	Start      key.Binding
	Requote    key.Binding
	Buy        key.Binding
	Logout     key.Binding
	Submit     key.Binding
	Back       key.Binding
	NextField  key.Binding
	PrevField  key.Binding
	ToggleMode key.Binding
	Up         key.Binding
	Down       key.Binding
}

// defaultKeyMap returns the default key bindings for the typer tab.
func defaultKeyMap() keyMap {
	return keyMap{
		Start: key.NewBinding(
			key.WithKeys("s", "enter"),
			key.WithHelp("s/enter", "type clipboard"),
		),
		Requote: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "reread clipboard"),
		),
		Buy: key.NewBinding(
			key.WithKeys("b"),
			key.WithHelp("b", "redeem credits"),
		),
		Logout: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "log out"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "submit"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
		NextField: key.NewBinding(
			key.WithKeys("tab", "down"),
			key.WithHelp("tab", "next field"),
		),
		PrevField: key.NewBinding(
			key.WithKeys("shift+tab", "up"),
			key.WithHelp("shift+tab", "prev field"),
		),
		ToggleMode: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("ctrl+s", "login/signup"),
		),
		Up: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("↑", "prev package"),
		),
		Down: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("↓", "next package"),
		),
	}
}

// Model represents the typer tab state.
type Model struct {
	state    *app.State
	keys     keyMap
	spinner  components.LoadingSpinner
	bar      components.TypingBar
	viewport viewport.Model

	mode   mode
	signup bool
	// editing is true while a text input has focus.
	editing bool

	email    textinput.Model
	password textinput.Model
	focus    int

	packages   []models.CreditPackage
	selected   int
	paymentRef textinput.Model

	trialCredits int64
	sessionID    string
	width        int
	height       int
}

// New creates the typer tab. trialCredits scales the balance gauge.
func New(state *app.State, trialCredits int64) *Model {
	email := textinput.New()
	email.Placeholder = "you@example.com"
	email.Prompt = ""
	email.CharLimit = 254

	password := textinput.New()
	password.Placeholder = "password"
	password.Prompt = ""
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	ref := textinput.New()
	ref.Placeholder = "payment reference"
	ref.Prompt = ""
	ref.CharLimit = 128

	return &Model{
		state:        state,
		keys:         defaultKeyMap(),
		spinner:      components.NewSpinner("Typing"),
		bar:          components.NewTypingBar(),
		viewport:     viewport.New(0, 0),
		email:        email,
		password:     password,
		paymentRef:   ref,
		packages:     models.DefaultPackages(),
		trialCredits: trialCredits,
	}
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Init()
}

// CapturingInput reports whether keys should go to a text input.
func (m *Model) CapturingInput() bool {
	return m.editing
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	m.syncMode()

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmds = append(cmds, m.handleKeyMsg(msg))

	case app.ServiceEventMsg:
		cmds = append(cmds, m.handleServiceEvent(msg.Event))

	case app.AuthResultMsg:
		if msg.Err == nil {
			m.password.SetValue("")
			m.blurAll()
			m.mode = modeMain
		}

	case app.RedeemResultMsg:
		if msg.Err == nil {
			m.paymentRef.SetValue("")
			m.blurAll()
			m.mode = modeMain
		}

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.bar, cmd = m.bar.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	default:
		cmds = append(cmds, m.updateInputs(msg))
	}

	return m, tea.Batch(cmds...)
}

// syncMode drops back to the login form when the account goes away.
func (m *Model) syncMode() {
	loggedIn := m.state.LoggedIn()
	switch {
	case !loggedIn && m.mode != modeLogin:
		m.mode = modeLogin
		m.focus = 0
		m.editing = true
		m.focusField()
	case loggedIn && m.mode == modeLogin:
		m.mode = modeMain
		m.blurAll()
	}
}

func (m *Model) handleServiceEvent(event services.ServiceEvent) tea.Cmd {
	switch e := event.(type) {
	case services.TypingEvent:
		if e.Event.SessionID != m.sessionID {
			m.sessionID = e.Event.SessionID
			m.bar.Reset()
		}
		p := e.Event.Progress
		if p.Total > 0 {
			return m.bar.SetProgress(p.Done, p.Total)
		}
	case services.TypingFinishedEvent:
		r := e.Outcome.Result
		return m.bar.SetProgress(r.Delivered, r.Requested)
	}
	return nil
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) tea.Cmd {
	switch m.mode {
	case modeLogin:
		return m.handleLoginKey(msg)
	case modeRedeem:
		return m.handleRedeemKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		return func() tea.Msg { return app.ArmTypingMsg{} }
	case key.Matches(msg, m.keys.Requote):
		return func() tea.Msg { return app.RefreshMsg{Resource: "quote"} }
	case key.Matches(msg, m.keys.Buy):
		if m.state.GetTyping().Busy() {
			return nil
		}
		m.mode = modeRedeem
		m.editing = true
		return m.paymentRef.Focus()
	case key.Matches(msg, m.keys.Logout):
		return func() tea.Msg { return app.LogoutMsg{} }
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return cmd
}

func (m *Model) handleLoginKey(msg tea.KeyMsg) tea.Cmd {
	if !m.editing {
		// enter or i refocuses the form.
		if key.Matches(msg, m.keys.Submit) || msg.String() == "i" {
			m.editing = true
			return m.focusField()
		}
		return nil
	}

	switch {
	case key.Matches(msg, m.keys.Back):
		m.blurAll()
		return nil
	case key.Matches(msg, m.keys.ToggleMode):
		m.signup = !m.signup
		return nil
	case key.Matches(msg, m.keys.NextField):
		m.focus = (m.focus + 1) % 2
		return m.focusField()
	case key.Matches(msg, m.keys.PrevField):
		m.focus = (m.focus + 1) % 2
		return m.focusField()
	case key.Matches(msg, m.keys.Submit):
		if m.focus == 0 {
			m.focus = 1
			return m.focusField()
		}
		email := strings.TrimSpace(m.email.Value())
		password := m.password.Value()
		if email == "" || password == "" {
			return func() tea.Msg {
				return app.AddNotificationMsg{
					Type:     app.NotificationWarning,
					Message:  "Email and password are required",
					Duration: app.QuickNotificationDuration,
				}
			}
		}
		signup := m.signup
		return func() tea.Msg {
			return app.LoginMsg{Email: email, Password: password, Signup: signup}
		}
	}
	return m.updateInputs(msg)
}

func (m *Model) handleRedeemKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.blurAll()
		m.mode = modeMain
		return nil
	case key.Matches(msg, m.keys.Up):
		m.selected = (m.selected - 1 + len(m.packages)) % len(m.packages)
		return nil
	case key.Matches(msg, m.keys.Down):
		m.selected = (m.selected + 1) % len(m.packages)
		return nil
	case key.Matches(msg, m.keys.Submit):
		ref := services.NormalizePaymentRef(m.paymentRef.Value())
		if ref == "" {
			return func() tea.Msg {
				return app.AddNotificationMsg{
					Type:     app.NotificationWarning,
					Message:  "Enter the payment reference from your receipt",
					Duration: app.QuickNotificationDuration,
				}
			}
		}
		pkg := m.packages[m.selected]
		return func() tea.Msg {
			return app.RedeemMsg{PackageID: pkg.ID, PaymentRef: ref}
		}
	}
	return m.updateInputs(msg)
}

// updateInputs forwards msg to the focused text input.
func (m *Model) updateInputs(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.mode == modeLogin && m.focus == 0:
		m.email, cmd = m.email.Update(msg)
	case m.mode == modeLogin:
		m.password, cmd = m.password.Update(msg)
	case m.mode == modeRedeem:
		m.paymentRef, cmd = m.paymentRef.Update(msg)
	}
	return cmd
}

func (m *Model) focusField() tea.Cmd {
	if m.focus == 0 {
		m.password.Blur()
		return m.email.Focus()
	}
	m.email.Blur()
	return m.password.Focus()
}

func (m *Model) blurAll() {
	m.email.Blur()
	m.password.Blur()
	m.paymentRef.Blur()
	m.editing = false
}

// SetSize sets the available size for the tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
	inputWidth := max(width-24, 20)
	m.email.Width = inputWidth
	m.password.Width = inputWidth
	m.paymentRef.Width = inputWidth
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	switch m.mode {
	case modeLogin:
		return []key.Binding{m.keys.Submit, m.keys.NextField, m.keys.ToggleMode, m.keys.Back}
	case modeRedeem:
		return []key.Binding{m.keys.Up, m.keys.Down, m.keys.Submit, m.keys.Back}
	}
	return []key.Binding{m.keys.Start, m.keys.Requote, m.keys.Buy, m.keys.Logout}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.Start, m.keys.Requote},
		{m.keys.Buy, m.keys.Logout},
		{m.keys.Submit, m.keys.Back, m.keys.NextField, m.keys.ToggleMode},
	}
}
