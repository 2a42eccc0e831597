package info

import (
	"fmt"
	"runtime"

	"github.com/charmbracelet/lipgloss"

	"github.com/codepaste/typer/internal/ui/styles"
	"github.com/codepaste/typer/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	sections := []string{
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderTimingCard(),
		m.renderAboutCard(),
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

// renderTitle renders the info tab title.
func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration and application information")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.width-6, 50), 80)
}

// renderConfigCard renders the paths and billing settings.
func (m *Model) renderConfigCard() string {
	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("Configuration"), "")

	if m.config != nil {
		rows = append(rows,
			m.renderConfigRow("Database", m.config.DatabasePath),
			m.renderConfigRow("Saved Login", m.config.SessionPath),
			m.renderConfigRow("Log File", m.config.LogPath),
			m.renderConfigRow("Settings File", orNone(m.config.EnvPath)),
			"",
			m.renderConfigRow("Credit Ratio", fmt.Sprintf("1 credit / %d chars", max(m.config.CreditRatio, 1))),
			m.renderConfigRow("Trial Credits", fmt.Sprintf("%d", m.config.FreeTrialCredits)),
			m.renderConfigRow("Login Expiry", m.config.TokenTTL.String()),
		)
	} else {
		rows = append(rows, styles.HelpStyle.Render("Configuration not loaded"))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

// renderTimingCard renders the live typing profile.
func (m *Model) renderTimingCard() string {
	t := m.timing

	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("Typing Profile"), "")
	rows = append(rows,
		m.renderConfigRow("Key Delay", fmt.Sprintf("%s (min %s)", t.BaseDelay, t.MinDelay)),
		m.renderConfigRow("Jitter", fmt.Sprintf("%s to %s", t.JitterMin, t.JitterMax)),
		m.renderConfigRow("Hesitation", fmt.Sprintf("%.0f%%, %s to %s", t.HesitationChance*100, t.HesitationMin, t.HesitationMax)),
		m.renderConfigRow("Settle", t.SettleDelay.String()),
		m.renderConfigRow("Decoy", t.DecoyDuration.String()),
		m.renderConfigRow("Arm Delay", m.armDelay.String()),
	)

	rows = append(rows, "")
	if m.reloaded.IsZero() {
		rows = append(rows, styles.HelpStyle.Render("Edit the settings file to change these; they reload live"))
	} else {
		rows = append(rows, styles.SuccessTextStyle.Render("Reloaded at "+m.reloaded.Format("15:04:05")))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

// renderConfigRow renders a configuration key-value row.
func (m *Model) renderConfigRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(18).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

// renderAboutCard renders the about/version information card.
func (m *Model) renderAboutCard() string {
	var rows []string
	rows = append(rows, styles.CardTitleStyle.Render("About Typer"), "")

	rows = append(rows,
		m.renderConfigRow("Version", version.GetVersion()),
		m.renderConfigRow("Build Date", version.GetDate()),
		m.renderConfigRow("Git Commit", version.GetCommit()),
		m.renderConfigRow("Go Version", runtime.Version()),
		m.renderConfigRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
		"",
	)

	if acc := m.state.GetAccount(); acc != nil {
		rows = append(rows, fmt.Sprintf("Logged in as %s", styles.InfoTextStyle.Render(acc.Email)))
	} else {
		rows = append(rows, styles.HelpStyle.Render("Not logged in"))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
