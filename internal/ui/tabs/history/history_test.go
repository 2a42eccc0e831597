package history

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/crypto/bcrypt"

	"github.com/codepaste/typer/internal/app"
	"github.com/codepaste/typer/internal/auth"
	"github.com/codepaste/typer/internal/config"
	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/metering"
	"github.com/codepaste/typer/internal/models"
	"github.com/codepaste/typer/internal/services"
)

// MockPoster accepts every post.
type MockPoster struct{}

func (MockPoster) PostChar(injector.Target, uint16) error            { return nil }
func (MockPoster) PostKey(injector.Target, injector.Key, bool) error { return nil }

func newTestManager(t *testing.T) *services.Manager {
	t.Helper()
	tmpDir := t.TempDir()
	cfg := &config.Config{
		DatabasePath:     filepath.Join(tmpDir, "typer.db"),
		SessionPath:      filepath.Join(tmpDir, "session.json"),
		JWTSecret:        "test-secret",
		TokenTTL:         time.Hour,
		TypingDelay:      time.Millisecond,
		DecoyDuration:    time.Millisecond,
		SettleDelay:      time.Millisecond,
		CreditRatio:      1,
		FreeTrialCredits: 100,
		ProgressEvery:    5,
	}
	resolver := injector.ResolverFunc(func(context.Context) (injector.Target, error) { return 1, nil })
	mgr, err := services.NewManager(cfg,
		services.WithFocus(resolver, MockPoster{}),
		services.WithNotifier(func(string, string) error { return nil }),
		services.WithClipboard(func() (string, error) { return "", nil }),
		services.WithAuthOptions(auth.WithBcryptCost(bcrypt.MinCost)),
	)
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestNew(t *testing.T) {
	state := app.NewState()
	m := New(state, nil)
	if m == nil {
		t.Fatal("New returned nil")
	}
}

func TestModel_Init(t *testing.T) {
	m := New(app.NewState(), nil)
	cmd := m.Init()
	if cmd == nil {
		t.Fatal("Init returned nil")
	}
	if _, ok := cmd().(historyErrorMsg); !ok {
		t.Error("Init without services should report an error")
	}
}

func TestModel_Update(t *testing.T) {
	m := New(app.NewState(), nil)

	updated, _ := m.Update(nil)
	if updated == nil {
		t.Error("Update returned nil model")
	}
}

func TestModel_View(t *testing.T) {
	state := app.NewState()
	state.SetLoading("initial", false)
	m := New(state, nil)

	if m.View() == "" {
		t.Error("View returned empty string")
	}
}

func TestModel_ErrorView(t *testing.T) {
	m := New(app.NewState(), nil)
	m.SetSize(100, 40)

	_, cmd := m.Update(historyErrorMsg{err: "disk on fire"})
	if cmd == nil {
		t.Fatal("error should raise a notification")
	}
	if !strings.Contains(m.View(), "disk on fire") {
		t.Error("View should show the error")
	}
}

func TestModel_LoggedOut(t *testing.T) {
	mgr := newTestManager(t)
	m := New(app.NewState(), mgr)
	m.SetSize(100, 40)

	m.Update(m.loadHistoryCmd()())

	if !m.loggedOut {
		t.Fatal("expected logged out state")
	}
	if !strings.Contains(m.View(), "Log in") {
		t.Error("View should ask the user to log in")
	}
}

func TestModel_WithData(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	if _, err := mgr.Signup(ctx, "ada@example.com", "hunter22"); err != nil {
		t.Fatalf("Signup failed: %v", err)
	}
	if _, err := mgr.Redeem(ctx, "starter", "pay-123"); err != nil {
		t.Fatalf("Redeem failed: %v", err)
	}

	state := app.NewState()
	state.SetLoading("initial", false)
	m := New(state, mgr)
	m.SetSize(120, 200)

	m.Update(m.loadHistoryCmd()())

	if m.historyData == nil {
		t.Fatalf("history not loaded, error %q", m.errorMsg)
	}
	if got := len(m.historyData.Transactions); got != 2 {
		t.Errorf("transactions = %d, want 2", got)
	}
	if got := len(m.historyData.Days); got != models.TimeRange30Days.Days() {
		t.Errorf("days = %d, want %d", got, models.TimeRange30Days.Days())
	}
	if m.historyData.Projection == nil || m.historyData.Projection.Balance != 1100 {
		t.Errorf("projection = %+v, want balance 1100", m.historyData.Projection)
	}

	view := m.View()
	for _, want := range []string{"ada@example.com", "Signup bonus", "Purchase", "+1000", "pay-123", "no recent usage"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}

	// Scrolling keys go to the viewport.
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyUp})
}

func TestModel_ToggleRange(t *testing.T) {
	mgr := newTestManager(t)
	m := New(app.NewState(), mgr)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("t")})
	if m.timeRange != models.TimeRange90Days {
		t.Errorf("timeRange = %v, want 90 days", m.timeRange)
	}
	if !m.loading || cmd == nil {
		t.Error("toggling should start a load")
	}
}

func TestModel_DropsStaleRange(t *testing.T) {
	m := New(app.NewState(), nil)
	m.loading = true
	m.timeRange = models.TimeRange7Days

	m.Update(historyLoadedMsg{data: &historyData{Email: "old"}, timeRange: models.TimeRange30Days})
	if m.historyData != nil || !m.loading {
		t.Error("result for a stale range should be dropped")
	}
}

func TestModel_ReloadTriggers(t *testing.T) {
	tests := []struct {
		name string
		msg  tea.Msg
		want bool
	}{
		{"tab switch", app.TabSwitchMsg{Tab: app.TabHistory}, true},
		{"other tab", app.TabSwitchMsg{Tab: app.TabInfo}, false},
		{"refresh", app.RefreshMsg{Resource: "all"}, true},
		{"login", app.AuthResultMsg{}, true},
		{"logout", app.LogoutResultMsg{}, true},
		{"typing finished", app.ServiceEventMsg{Event: services.TypingFinishedEvent{Outcome: metering.Outcome{}}}, true},
		{"balance only", app.ServiceEventMsg{Event: services.BalanceChangedEvent{Credits: 5}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(app.NewState(), nil)
			m.Update(tt.msg)
			if m.loading != tt.want {
				t.Errorf("loading = %v, want %v", m.loading, tt.want)
			}
		})
	}
}

func TestModel_ReloadOnlyOnce(t *testing.T) {
	m := New(app.NewState(), nil)

	if _, cmd := m.Update(app.RefreshMsg{Resource: "all"}); cmd == nil {
		t.Fatal("first refresh should load")
	}
	if _, cmd := m.Update(app.RefreshMsg{Resource: "all"}); cmd != nil {
		t.Error("second refresh should wait for the first")
	}
}

func TestModel_Help(t *testing.T) {
	m := New(app.NewState(), nil)
	if len(m.ShortHelp()) == 0 {
		t.Error("ShortHelp empty")
	}
	if len(m.FullHelp()) == 0 {
		t.Error("FullHelp empty")
	}
}
