// Package history provides the history tab for usage statistics and the
// transaction log.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/codepaste/typer/internal/app"
	"github.com/codepaste/typer/internal/models"
	"github.com/codepaste/typer/internal/services"
	"github.com/codepaste/typer/internal/services/projection"
)

const (
	// recentTransactions is how many ledger entries the tab lists.
	recentTransactions = 10

	loadTimeout = 10 * time.Second
)

// keyMap defines the key bindings specific to the history tab.
type keyMap struct {
	ToggleRange key.Binding
	Refresh     key.Binding
	Up          key.Binding
	Down        key.Binding
}

// defaultKeyMap returns the default key bindings for the history tab.
func defaultKeyMap() keyMap {
	return keyMap{
		ToggleRange: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle time range"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
	}
}

// historyData is everything the tab renders for one time range.
type historyData struct {
	Stats        models.UsageStats
	Days         []models.DailyUsage
	Transactions []models.Transaction
	Projection   *projection.Projection
	Email        string
}

// HasData reports whether the account has any ledger activity.
func (d *historyData) HasData() bool {
	return d != nil && (len(d.Transactions) > 0 || d.Stats.SessionCount > 0)
}

// historyLoadedMsg is sent when history data is loaded. A nil data means
// nobody is logged in.
type historyLoadedMsg struct {
	data      *historyData
	timeRange models.TimeRange
}

// historyErrorMsg is sent when there's an error loading history.
type historyErrorMsg struct {
	err string
}

// Model represents the history tab state.
type Model struct {
	state    *app.State
	services *services.Manager
	width    int
	height   int
	keys     keyMap
	viewport viewport.Model

	// Current view state
	timeRange   models.TimeRange
	historyData *historyData
	loading     bool
	loggedOut   bool
	lastRefresh time.Time
	errorMsg    string
}

// New creates a new history model.
func New(state *app.State, svc *services.Manager) *Model {
	return &Model{
		state:     state,
		services:  svc,
		keys:      defaultKeyMap(),
		viewport:  viewport.New(0, 0),
		timeRange: models.TimeRange30Days,
	}
}

// Init initializes the history tab.
func (m *Model) Init() tea.Cmd {
	return m.loadHistoryCmd()
}

// loadHistoryCmd creates a command to load history data for the current
// time range.
func (m *Model) loadHistoryCmd() tea.Cmd {
	svc := m.services
	r := m.timeRange
	return func() tea.Msg {
		if svc == nil {
			return historyErrorMsg{err: "Services not initialized"}
		}
		data, err := load(svc, r)
		if errors.Is(err, services.ErrNotLoggedIn) {
			return historyLoadedMsg{timeRange: r}
		}
		if err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		return historyLoadedMsg{data: data, timeRange: r}
	}
}

func load(svc *services.Manager, r models.TimeRange) (*historyData, error) {
	ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
	defer cancel()

	acc := svc.Account()
	if acc == nil {
		return nil, services.ErrNotLoggedIn
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("usage stats: %w", err)
	}
	days, err := svc.DailyUsage(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("daily usage: %w", err)
	}
	txs, err := svc.History(ctx, recentTransactions)
	if err != nil {
		return nil, fmt.Errorf("transactions: %w", err)
	}
	proj, err := svc.Projection(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}

	return &historyData{
		Email:        acc.Email,
		Stats:        stats,
		Days:         models.FillDays(days, r.Days(), time.Now()),
		Transactions: txs,
		Projection:   proj,
	}, nil
}

// Update handles messages for the history tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case historyLoadedMsg:
		// Drop results for a range the user already toggled away from
		if msg.timeRange != m.timeRange {
			break
		}
		m.historyData = msg.data
		m.loggedOut = msg.data == nil
		m.loading = false
		m.lastRefresh = time.Now()
		m.errorMsg = ""

	case historyErrorMsg:
		m.loading = false
		m.errorMsg = msg.err
		cmds = append(cmds, func() tea.Msg {
			return app.AddNotificationMsg{
				Type:     app.NotificationError,
				Message:  fmt.Sprintf("History error: %s", msg.err),
				Duration: app.LongNotificationDuration,
			}
		})

	case app.TabSwitchMsg:
		if msg.Tab == app.TabHistory {
			cmds = append(cmds, m.reload())
		}

	case app.RefreshMsg, app.AuthResultMsg, app.LogoutResultMsg:
		cmds = append(cmds, m.reload())

	case app.ServiceEventMsg:
		switch msg.Event.(type) {
		case services.TypingFinishedEvent, services.AccountChangedEvent:
			cmds = append(cmds, m.reload())
		}

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, tea.Batch(cmds...)
}

// reload starts a load unless one is already in flight.
func (m *Model) reload() tea.Cmd {
	if m.loading {
		return nil
	}
	m.loading = true
	return m.loadHistoryCmd()
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd
	switch {
	case key.Matches(msg, m.keys.ToggleRange):
		m.timeRange = m.timeRange.Next()
		m.loading = true
		cmds = append(cmds, m.loadHistoryCmd())

	case key.Matches(msg, m.keys.Refresh):
		// The global refresh key arrives as app.RefreshMsg.

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// SetSize sets the available size for the history tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{
		m.keys.ToggleRange,
		m.keys.Refresh,
	}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.ToggleRange, m.keys.Refresh},
		{m.keys.Up, m.keys.Down},
	}
}
