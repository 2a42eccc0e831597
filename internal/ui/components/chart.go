// Package components provides reusable UI components for the TUI.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/codepaste/typer/internal/ui/styles"
)

var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// RenderLineChart creates a single-series ASCII line chart.
func RenderLineChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
	)
}

// RenderUsageChart plots characters typed against credits spent per day.
func RenderUsageChart(chars, credits []float64, width, height int, caption string) string {
	if len(chars) == 0 && len(credits) == 0 {
		return styles.HelpStyle.Render("No data available")
	}

	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	// Pad the shorter series with zeros
	n := max(len(chars), len(credits))
	a := make([]float64, n)
	b := make([]float64, n)
	copy(a, chars)
	copy(b, credits)

	return asciigraph.PlotMany([][]float64{a, b},
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(
			asciigraph.DarkOrange,
			asciigraph.DeepSkyBlue,
		),
	)
}

// UsageLegend is the legend matching RenderUsageChart's series colors.
func UsageLegend() string {
	return RenderLegend([]LegendItem{
		{Label: "Characters", Color: styles.Characters},
		{Label: "Credits", Color: styles.Credits},
	})
}

// RenderBarChart creates a simple horizontal bar chart.
func RenderBarChart(values []float64, labels []string, width int) string {
	if len(values) == 0 {
		return ""
	}

	maxVal := maxOf(values)

	maxLabelLen := 0
	for _, l := range labels {
		if len(l) > maxLabelLen {
			maxLabelLen = len(l)
		}
	}

	barWidth := width - maxLabelLen - 10
	if barWidth < 10 {
		barWidth = 10
	}

	var lines []string
	for i, v := range values {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}

		barLen := int((v / maxVal) * float64(barWidth))
		if barLen < 0 {
			barLen = 0
		}

		line := fmt.Sprintf("%*s │%s %.0f", maxLabelLen, label, strings.Repeat("█", barLen), v)
		lines = append(lines, line)
	}

	return strings.Join(lines, "\n")
}

// RenderSparkline creates a compact inline sparkline chart.
func RenderSparkline(values []float64, width int) string {
	return renderSpark(values, width, nil)
}

// RenderColoredSparkline creates a sparkline where heavier days are
// drawn in warning colors.
func RenderColoredSparkline(values []float64, width int) string {
	return renderSpark(values, width, func(percent float64) lipgloss.Style {
		return styles.GetBalanceStyle(100-percent, false)
	})
}

func renderSpark(values []float64, width int, color func(float64) lipgloss.Style) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	maxVal := maxOf(values)

	var result strings.Builder
	step := float64(len(values)) / float64(width)
	if step < 1 {
		step = 1
	}

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		val := values[int(float64(i)*step)]
		idx := int((val / maxVal) * float64(len(sparkChars)-1))
		idx = min(max(idx, 0), len(sparkChars)-1)

		ch := string(sparkChars[idx])
		if color != nil {
			ch = color((val / maxVal) * 100).Render(ch)
		}
		result.WriteString(ch)
	}

	return result.String()
}

func maxOf(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		if v > m {
			m = v
		}
	}
	if m == 0 {
		return 1
	}
	return m
}

// RenderLegend creates a chart legend.
func RenderLegend(items []LegendItem) string {
	var parts []string
	for _, item := range items {
		colorBox := lipgloss.NewStyle().Foreground(item.Color).Render("■")
		parts = append(parts, fmt.Sprintf("%s %s", colorBox, item.Label))
	}
	return strings.Join(parts, "  ")
}

// LegendItem represents a single legend entry.
type LegendItem struct {
	Label string
	Color lipgloss.Color
}
