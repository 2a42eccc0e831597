// Package projection estimates how long a credit balance lasts at the
// recent burn rate.
package projection

import (
	"fmt"
	"math"
	"time"

	"github.com/codepaste/typer/internal/models"
)

const (
	lowConfThreshold = 3
	medConfThreshold = 10

	warningDays  = 7.0
	criticalDays = 1.0
)

// Status classifies the remaining runway.
type Status int

const (
	StatusUnknown Status = iota
	StatusSafe
	StatusWarning
	StatusCritical
)

func (s Status) String() string {
	switch s {
	case StatusSafe:
		return "safe"
	case StatusWarning:
		return "warning"
	case StatusCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Projection is the balance runway of one account.
type Projection struct {
	ComputedAt time.Time
	// DepleteAt is zero when there is no usage to extrapolate from.
	DepleteAt time.Time

	Balance      int64
	RecentRate   float64
	PreviousRate float64
	// DaysLeft is +Inf without usage.
	DaysLeft   float64
	ActiveDays int
	Confidence string
	Status     Status
	VsPrevious string
}

// Calculate projects balance over days, a continuous oldest-first series of
// daily usage. The recent half of the series sets the burn rate and is
// compared against the older half; when the recent half is idle the whole
// series is used.
func Calculate(balance int64, days []models.DailyUsage, now time.Time) *Projection {
	proj := &Projection{
		ComputedAt: now,
		Balance:    balance,
		DaysLeft:   math.Inf(1),
		Status:     StatusUnknown,
	}

	for _, d := range days {
		if d.Credits > 0 {
			proj.ActiveDays++
		}
	}

	switch {
	case proj.ActiveDays < lowConfThreshold:
		proj.Confidence = "low"
	case proj.ActiveDays < medConfThreshold:
		proj.Confidence = "medium"
	default:
		proj.Confidence = "high"
	}

	if len(days) == 0 {
		return proj
	}

	half := len(days) / 2
	proj.PreviousRate = averageRate(days[:half])
	proj.RecentRate = averageRate(days[half:])
	proj.VsPrevious = formatComparison(proj.RecentRate, proj.PreviousRate)

	effectiveRate := proj.RecentRate
	if effectiveRate <= 0 {
		effectiveRate = averageRate(days)
	}

	if balance <= 0 {
		proj.DaysLeft = 0
		proj.DepleteAt = now
		proj.Status = StatusCritical
		return proj
	}
	if effectiveRate <= 0 {
		return proj
	}

	proj.DaysLeft = float64(balance) / effectiveRate
	proj.DepleteAt = now.Add(time.Duration(proj.DaysLeft * float64(24*time.Hour)))

	switch {
	case proj.DaysLeft < criticalDays:
		proj.Status = StatusCritical
	case proj.DaysLeft < warningDays:
		proj.Status = StatusWarning
	default:
		proj.Status = StatusSafe
	}
	return proj
}

func averageRate(days []models.DailyUsage) float64 {
	if len(days) == 0 {
		return 0
	}
	var total int64
	for _, d := range days {
		total += d.Credits
	}
	return float64(total) / float64(len(days))
}

func formatComparison(current, reference float64) string {
	if reference <= 0 {
		return "No prior data"
	}
	diff := ((current - reference) / reference) * 100
	if math.Abs(diff) < 10 {
		return "Similar to the previous period"
	} else if diff > 0 {
		return fmt.Sprintf("%.0f%% higher than the previous period", diff)
	}
	return fmt.Sprintf("%.0f%% lower than the previous period", -diff)
}

// FormatDaysLeft renders the runway for display.
func (p *Projection) FormatDaysLeft() string {
	switch {
	case p == nil || math.IsInf(p.DaysLeft, 1):
		return "no recent usage"
	case p.DaysLeft < 1:
		return fmt.Sprintf("%.0f hours", p.DaysLeft*24)
	default:
		return fmt.Sprintf("%.1f days", p.DaysLeft)
	}
}
