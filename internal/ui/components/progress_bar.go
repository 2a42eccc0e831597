package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/codepaste/typer/internal/logger"
	"github.com/codepaste/typer/internal/ui/styles"
)

const (
	gradientFrom = "#ff6b6b"
	gradientTo   = "#51cf66"
)

// TypingBar renders the progress of a typing session as delivered/total.
type TypingBar struct {
	progress  progress.Model
	label     string
	delivered int
	total     int
}

// NewTypingBar creates a typing bar with gradient colors.
func NewTypingBar() TypingBar {
	p := progress.New(
		progress.WithScaledGradient(gradientFrom, gradientTo),
		progress.WithWidth(30),
		progress.WithoutPercentage(),
	)
	return TypingBar{progress: p, label: "Typing"}
}

// Init initializes the progress bar model.
func (b TypingBar) Init() tea.Cmd {
	return nil
}

// Update forwards animation frames to the underlying progress bar.
func (b TypingBar) Update(msg tea.Msg) (TypingBar, tea.Cmd) {
	model, cmd := b.progress.Update(msg)
	b.progress = model.(progress.Model)
	return b, cmd
}

// SetProgress records delivered out of total and animates toward it.
func (b *TypingBar) SetProgress(delivered, total int) tea.Cmd {
	b.delivered = delivered
	b.total = total
	return b.progress.SetPercent(b.Percent() / 100)
}

// Reset clears the bar without animating.
func (b *TypingBar) Reset() {
	b.delivered = 0
	b.total = 0
	b.progress.SetPercent(0)
}

// Percent returns delivered/total in 0..100.
func (b TypingBar) Percent() float64 {
	if b.total <= 0 {
		return 0
	}
	p := float64(b.delivered) / float64(b.total) * 100
	return min(max(p, 0), 100)
}

// SetLabel sets the bar label.
func (b *TypingBar) SetLabel(label string) {
	b.label = label
}

// Label returns the bar label.
func (b TypingBar) Label() string {
	return b.label
}

// View renders the bar with its label and a delivered/total counter.
func (b TypingBar) View(width int) string {
	barWidth := width - 32
	if barWidth < 10 {
		barWidth = 10
	}
	b.progress.Width = barWidth

	labelStr := styles.ProgressLabelStyle.Width(12).Render(b.label)
	count := styles.ProgressPercentStyle.
		Width(16).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%d/%d", b.delivered, b.total))

	return lipgloss.JoinHorizontal(
		lipgloss.Center,
		labelStr,
		styles.ProgressBarStyle.Render(b.progress.View()),
		count,
	)
}

// CountdownTickMsg drives countdown redraws while a session is arming.
type CountdownTickMsg time.Time

// CountdownTick schedules the next countdown redraw.
func CountdownTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return CountdownTickMsg(t)
	})
}

// RenderCountdown renders the arming delay as a bar that fills as the
// deadline approaches.
func RenderCountdown(remaining, total time.Duration, width int) string {
	percent := 1.0
	if total > 0 {
		percent = 1 - float64(remaining)/float64(total)
	}
	percent = min(max(percent, 0), 1)
	if remaining < 0 {
		remaining = 0
	}

	barWidth := width - 20
	if barWidth < 10 {
		barWidth = 10
	}

	timeStr := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Width(8).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%.1fs", remaining.Seconds()))

	return fmt.Sprintf("Arming [%s] %s", renderBarChars(percent, barWidth, "#ffd93d", "#6c5ce7"), timeStr)
}

// RenderGradientBar renders just the bar part with gradient colors.
func RenderGradientBar(percent float64, width int) string {
	return renderBarChars(percent/100, width, gradientFrom, gradientTo)
}

func renderBarChars(fraction float64, width int, from, to string) string {
	if width < 1 {
		return ""
	}

	filled := int(float64(width) * fraction)
	filled = min(max(filled, 0), width)

	var sb strings.Builder
	empty := lipgloss.NewStyle().Foreground(styles.Subtle)
	for i := 0; i < width; i++ {
		if i < filled {
			t := float64(i) / float64(max(1, width-1))
			color := interpolateColor(from, to, t)
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(color)).Render("█"))
		} else {
			sb.WriteString(empty.Render("░"))
		}
	}
	return sb.String()
}

// BalanceBar renders the balance as a share of reference credits. When
// short is set the balance cannot cover the pending clipboard.
func BalanceBar(balance, reference int64, width int, short bool) string {
	percent := 0.0
	if reference > 0 {
		percent = min(float64(balance)/float64(reference)*100, 100)
	}
	if percent < 0 {
		percent = 0
	}

	label := lipgloss.NewStyle().Foreground(styles.TextSecondary).Render("Credits")
	value := styles.GetBalanceStyle(percent, short).
		Width(10).
		Align(lipgloss.Right).
		Render(fmt.Sprintf("%d", balance))

	barWidth := width - 24
	if barWidth < 5 {
		barWidth = 5
	}

	return fmt.Sprintf("%s [%s] %s", label, RenderGradientBar(percent, barWidth), value)
}

func interpolateColor(fromHex, toHex string, t float64) string {
	from := hexToRGB(fromHex)
	to := hexToRGB(toHex)

	r := int(float64(from[0]) + t*(float64(to[0])-float64(from[0])))
	g := int(float64(from[1]) + t*(float64(to[1])-float64(from[1])))
	b := int(float64(from[2]) + t*(float64(to[2])-float64(from[2])))

	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hexToRGB(hex string) [3]int {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &r, &g, &b); err != nil {
		logger.Error("failed to parse hex color", "hex", hex, "error", err)
		return [3]int{0, 0, 0}
	}
	return [3]int{r, g, b}
}
