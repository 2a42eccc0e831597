package history

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/codepaste/typer/internal/models"
	"github.com/codepaste/typer/internal/services/projection"
	"github.com/codepaste/typer/internal/ui/components"
	"github.com/codepaste/typer/internal/ui/styles"
)

// View renders the history tab.
func (m *Model) View() string {
	if m.loading && m.historyData == nil {
		return m.renderLoading()
	}
	if m.errorMsg != "" {
		return m.renderError()
	}
	if m.loggedOut {
		return m.renderMessage("Log in on the Typer tab to see your usage history.")
	}
	if !m.historyData.HasData() {
		return m.renderMessage("No usage recorded yet.", "Typed sessions and purchases will appear here.")
	}

	sections := []string{
		m.renderHeader(),
		m.renderSummary(),
		m.renderUsageChart(),
		m.renderProjection(),
		m.renderTransactions(),
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderLoading() string {
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(styles.HelpStyle.Render("Loading history data..."))
}

func (m *Model) renderError() string {
	content := fmt.Sprintf("%s %s",
		styles.ErrorTextStyle.Render("Error:"),
		m.errorMsg,
	)
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

// renderMessage shows a centered card with a headline and hint lines.
func (m *Model) renderMessage(headline string, hints ...string) string {
	rows := []string{"", styles.SubTitleStyle.Render(headline)}
	for _, h := range hints {
		rows = append(rows, styles.HelpStyle.Render(h))
	}
	rows = append(rows, "")

	card := styles.CardStyle.
		Width(max(m.width-10, 40)).
		Render(lipgloss.JoinVertical(lipgloss.Center, rows...))

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(lipgloss.JoinVertical(lipgloss.Left,
			styles.TitleStyle.Render("History"),
			styles.CenterHorizontal(card, max(m.width-6, 0)),
		))
}

func (m *Model) renderHeader() string {
	email := m.historyData.Email
	if len(email) > 40 {
		email = email[:37] + "..."
	}

	title := styles.TitleStyle.Render("History: " + email)

	rangeStyle := lipgloss.NewStyle().
		Foreground(styles.Primary).
		Bold(true).
		Padding(0, 1).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Primary)

	rangeIndicator := rangeStyle.Render(fmt.Sprintf("[t] %s", m.timeRange.String()))

	header := lipgloss.JoinHorizontal(lipgloss.Center, title, "  ", rangeIndicator)

	var subtitle string
	if !m.lastRefresh.IsZero() {
		subtitle = styles.HelpStyle.Render("Updated " + m.lastRefresh.Format("15:04:05"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, header, subtitle, "")
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 40)
}

func cardTitle(icon, title string) string {
	return fmt.Sprintf("%s %s",
		lipgloss.NewStyle().Foreground(styles.Primary).Render(icon),
		styles.CardTitleStyle.Render(title))
}

func (m *Model) renderSummary() string {
	s := m.historyData.Stats

	stat := func(label string, value string, color lipgloss.Color) string {
		return lipgloss.JoinVertical(lipgloss.Left,
			styles.HelpStyle.Render(label),
			lipgloss.NewStyle().Bold(true).Foreground(color).Render(value),
		)
	}

	cells := []string{
		stat("Characters", fmt.Sprintf("%d", s.TotalCharacters), styles.Characters),
		stat("Credits used", fmt.Sprintf("%d", s.TotalCreditsUsed), styles.Credits),
		stat("Sessions", fmt.Sprintf("%d", s.SessionCount), styles.TextPrimary),
		stat("Avg / session", fmt.Sprintf("%.0f", s.AverageSessionLength()), styles.TextSecondary),
	}
	for i := range cells[:len(cells)-1] {
		cells[i] = lipgloss.NewStyle().PaddingRight(4).Render(cells[i])
	}

	rows := []string{
		cardTitle("◈", "Lifetime Usage"),
		"",
		"  " + lipgloss.JoinHorizontal(lipgloss.Top, cells...),
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) renderUsageChart() string {
	cardWidth := m.cardWidth()
	rows := []string{cardTitle("📈", "Daily Usage"), ""}

	days := m.historyData.Days
	if len(days) == 0 {
		rows = append(rows, styles.HelpStyle.Render("  No daily data available"))
	} else {
		chars := make([]float64, len(days))
		credits := make([]float64, len(days))
		for i, d := range days {
			chars[i] = float64(d.Characters)
			credits[i] = float64(d.Credits)
		}

		chartWidth := max(cardWidth-12, 30)
		chart := components.RenderUsageChart(chars, credits, chartWidth, 8,
			fmt.Sprintf("Last %d days", len(days)))

		for line := range strings.SplitSeq(chart, "\n") {
			rows = append(rows, "  "+line)
		}

		rows = append(rows,
			"",
			"  "+components.UsageLegend(),
			"  "+styles.HelpStyle.Render("Credits per day ")+components.RenderColoredSparkline(credits, min(len(credits), chartWidth)),
		)
	}

	rows = append(rows, "")

	return styles.CardStyle.Width(cardWidth).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func projectionStyle(s projection.Status) lipgloss.Style {
	switch s {
	case projection.StatusSafe:
		return styles.ProjectionSafeStyle
	case projection.StatusWarning:
		return styles.ProjectionWarningStyle
	case projection.StatusCritical:
		return styles.ProjectionCriticalStyle
	default:
		return styles.ProjectionUnknownStyle
	}
}

func (m *Model) renderProjection() string {
	p := m.historyData.Projection
	rows := []string{cardTitle("⏳", "Balance Runway"), ""}

	if p == nil {
		rows = append(rows, styles.HelpStyle.Render("  No projection available"))
	} else {
		style := projectionStyle(p.Status)
		rows = append(rows,
			fmt.Sprintf("  %s at %.1f credits/day",
				style.Render(p.FormatDaysLeft()), p.RecentRate),
		)
		if !p.DepleteAt.IsZero() {
			rows = append(rows, styles.HelpStyle.Render("  Runs out around "+p.DepleteAt.Format("Jan 2, 15:04")))
		}
		rows = append(rows, styles.HelpStyle.Render(fmt.Sprintf("  %s • %s confidence (%d active days)",
			p.VsPrevious, p.Confidence, p.ActiveDays)))
	}

	return styles.ProjectionCardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) renderTransactions() string {
	rows := []string{cardTitle("🧾", "Recent Transactions"), ""}

	txs := m.historyData.Transactions
	if len(txs) == 0 {
		rows = append(rows, styles.HelpStyle.Render("  No transactions yet"))
	} else {
		header := fmt.Sprintf("%-16s %-14s %10s  %s", "When", "Kind", "Credits", "Reference")
		rows = append(rows, "  "+styles.TableHeaderStyle.Render(header))
		for _, tx := range txs {
			rows = append(rows, "  "+renderTransaction(tx))
		}
	}

	rows = append(rows, "")

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func renderTransaction(tx models.Transaction) string {
	delta := fmt.Sprintf("%+d", tx.Delta)
	deltaStyle := styles.SuccessTextStyle
	if tx.Delta < 0 {
		deltaStyle = styles.WarningTextStyle
	}

	ref := tx.PaymentRef
	if len(ref) > 20 {
		ref = ref[:17] + "..."
	}

	return styles.TableCellStyle.Render(fmt.Sprintf("%-16s %-14s ",
		tx.Timestamp.Local().Format("Jan 2 15:04"), tx.Kind.Label())) +
		deltaStyle.Render(fmt.Sprintf("%10s", delta)) +
		"  " + styles.HelpStyle.Render(ref)
}
