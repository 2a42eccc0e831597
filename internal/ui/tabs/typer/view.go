package typer

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/codepaste/typer/internal/app"
	"github.com/codepaste/typer/internal/injector"
	"github.com/codepaste/typer/internal/ui/components"
	"github.com/codepaste/typer/internal/ui/styles"
)

// View renders the typer tab.
func (m *Model) View() string {
	if m.state.IsInitialLoading() {
		return m.renderLoading()
	}

	var sections []string
	sections = append(sections, m.renderTitle())

	switch m.mode {
	case modeLogin:
		sections = append(sections, m.renderLogin())
	case modeRedeem:
		sections = append(sections, m.renderAccount(), m.renderRedeem())
	default:
		sections = append(sections, m.renderAccount(), m.renderClipboard(), m.renderTyping())
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

// renderLoading renders the loading state.
func (m *Model) renderLoading() string {
	return components.RenderSpinnerCentered(m.spinner, m.width, m.height)
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Clipboard Typer")
	subtitle := styles.HelpStyle.Render("Types your clipboard into the focused window, one character at a time")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 40)
}

func cardTitle(title string) string {
	icon := lipgloss.NewStyle().Foreground(styles.Primary).Render("◈")
	return fmt.Sprintf("%s %s", icon, styles.CardTitleStyle.Render(title))
}

func (m *Model) renderLogin() string {
	heading, toggle, submit := "Log in", "create account", " Log in "
	if m.signup {
		heading, toggle, submit = "Create account", "log in instead", " Sign up "
	}

	width := m.cardWidth()
	rows := []string{cardTitle(heading), ""}
	rows = append(rows, renderField("Email:", m.email.View(), m.editing && m.focus == 0, width)...)
	rows = append(rows, renderField("Password:", m.password.View(), m.editing && m.focus == 1, width)...)

	button := styles.ButtonInactiveStyle
	if m.editing && m.focus == 1 {
		button = styles.ButtonActiveStyle
	}
	rows = append(rows, button.Render(submit), "")

	if m.editing {
		rows = append(rows, shortcuts("enter", "submit", "tab", "next field", "ctrl+s", toggle, "esc", "release keys"))
	} else {
		rows = append(rows, shortcuts("enter", "edit the form"))
	}
	if m.signup {
		rows = append(rows, styles.InfoTextStyle.Render("╰─▶ New accounts start with free trial credits"))
	}

	return styles.CardStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

// renderField renders a labelled input box, highlighted while focused.
func renderField(label, input string, focused bool, width int) []string {
	title := styles.BlurredStyle.Render("  " + label)
	box := styles.BlurredBorderStyle
	if focused {
		title = styles.FocusedStyle.Render("> " + label)
		box = styles.FocusedBorderStyle
	}
	return []string{title, box.Width(max(width-10, 20)).Render(input), ""}
}

// shortcuts renders key and description pairs as one footer line.
func shortcuts(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		if i > 0 {
			b.WriteString(styles.HelpSeparatorStyle.Render(" | "))
		}
		b.WriteString(styles.HelpKeyStyle.Render(pairs[i]) + " " + styles.HelpDescStyle.Render(pairs[i+1]))
	}
	return b.String()
}

func (m *Model) renderAccount() string {
	acc := m.state.GetAccount()
	if acc == nil {
		return ""
	}

	width := m.cardWidth()
	reference := max(m.trialCredits, acc.Credits, 1)

	rows := []string{
		cardTitle("Account"),
		"",
		fmt.Sprintf("  %s %s",
			styles.SuccessTextStyle.Render("●"),
			lipgloss.NewStyle().Bold(true).Render(acc.Email),
		),
		"",
		"  " + components.BalanceBar(m.state.GetBalance(), reference, width-8, m.state.Short()),
	}

	return styles.CardStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) renderClipboard() string {
	q := m.state.GetQuote()
	rows := []string{cardTitle("Clipboard"), ""}

	switch {
	case slices.Contains(m.state.GetLoadingResources(), "quote"):
		rows = append(rows, "  "+m.spinner.View()+" "+styles.HelpStyle.Render("Reading clipboard"))
	case q.Err != nil:
		rows = append(rows, "  "+styles.ErrorTextStyle.Render(app.DescribeError(q.Err)))
	case q.Characters == 0:
		rows = append(rows, "  "+styles.HelpStyle.Render("Clipboard is empty"))
	default:
		cost := styles.InfoTextStyle.Render(fmt.Sprintf("%d credits", q.Credits))
		if m.state.Short() {
			cost = styles.BalanceShortStyle.Render(fmt.Sprintf("%d credits (short by %d)", q.Credits, q.Credits-m.state.GetBalance()))
		}
		rows = append(rows, fmt.Sprintf("  %s characters  •  %s",
			lipgloss.NewStyle().Foreground(styles.Characters).Bold(true).Render(fmt.Sprintf("%d", q.Characters)),
			cost,
		))
	}

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) renderTyping() string {
	width := m.cardWidth()
	t := m.state.GetTyping()
	rows := []string{cardTitle("Typing"), ""}

	switch {
	case t.Arming:
		rows = append(rows,
			"  "+components.RenderCountdown(t.ArmRemaining(time.Now()), t.ArmDelay, width-8),
			"",
			styles.WarningTextStyle.Render("  Focus the target window now • esc to cancel"),
		)
	case t.Active:
		rows = append(rows,
			"  "+m.spinner.ViewWithDetail(phaseLabel(t.Phase)),
			"",
			"  "+m.bar.View(width-8),
			"",
			styles.HelpStyle.Render("  x or esc to stop"),
		)
	default:
		rows = append(rows, m.renderLastOutcome()...)
	}

	typeButton, stopButton := styles.ButtonInactiveStyle, styles.ButtonInactiveStyle
	if t.Busy() {
		stopButton = styles.ButtonActiveStyle
	} else if !m.state.Short() {
		typeButton = styles.ButtonActiveStyle
	}
	rows = append(rows, "", lipgloss.JoinHorizontal(lipgloss.Center,
		typeButton.Render(" Type (s) "),
		stopButton.Render(" Stop (x) "),
	))

	return styles.CardStyle.Width(width).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func (m *Model) renderLastOutcome() []string {
	out := m.state.GetLastOutcome()
	if out == nil {
		return []string{
			styles.HelpStyle.Render("  Press s to type the clipboard into the focused window"),
		}
	}

	kind, message := app.OutcomeMessage(*out)
	style := styles.SuccessTextStyle
	switch kind {
	case app.NotificationError:
		style = styles.ErrorTextStyle
	case app.NotificationWarning:
		style = styles.WarningTextStyle
	case app.NotificationInfo:
		style = styles.InfoTextStyle
	}

	return []string{
		"  " + style.Render(message),
		styles.HelpStyle.Render(fmt.Sprintf("  %s in %s",
			out.Result.State, out.Result.Duration().Round(100*time.Millisecond))),
	}
}

func (m *Model) renderRedeem() string {
	rows := []string{cardTitle("Redeem credits"), ""}

	for i, p := range m.packages {
		prefix := "  "
		style := styles.ListItemStyle
		if i == m.selected {
			prefix = styles.FocusedStyle.Render("▸ ")
			style = styles.SelectedListItemStyle
		}
		rows = append(rows, prefix+style.Render(p.Label()))
	}

	rows = append(rows, "")
	rows = append(rows, renderField("Payment reference:", m.paymentRef.View(), m.editing, m.cardWidth())...)
	rows = append(rows, shortcuts("↑/↓", "choose package", "enter", "redeem", "esc", "back"))

	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, rows...),
	)
}

func phaseLabel(s injector.State) string {
	switch s {
	case injector.StateResolving:
		return "finding focused window"
	case injector.StateDispatching:
		return "typing"
	case injector.StateDecoying:
		return "settling"
	default:
		return s.String()
	}
}
