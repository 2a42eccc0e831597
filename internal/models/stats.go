package models

import "time"

// UsageStats aggregates the usage records of one account.
type UsageStats struct {
	TotalCharacters  int64 `json:"totalCharacters"`
	TotalCreditsUsed int64 `json:"totalCreditsUsed"`
	SessionCount     int64 `json:"sessionCount"`
}

// AverageSessionLength returns the mean characters per session.
func (s UsageStats) AverageSessionLength() float64 {
	if s.SessionCount == 0 {
		return 0
	}
	return float64(s.TotalCharacters) / float64(s.SessionCount)
}

// DailyUsage is the usage of one calendar day (UTC).
type DailyUsage struct {
	Day        time.Time
	Characters int64
	Credits    int64
	Sessions   int64
}

// TimeRange represents the selected history time range.
type TimeRange int

const (
	// TimeRange7Days shows data from the last 7 days.
	TimeRange7Days TimeRange = iota
	// TimeRange30Days shows data from the last 30 days.
	TimeRange30Days
	// TimeRange90Days shows data from the last 90 days.
	TimeRange90Days
)

// String returns the display name for a time range.
func (t TimeRange) String() string {
	switch t {
	case TimeRange7Days:
		return "7 Days"
	case TimeRange30Days:
		return "30 Days"
	case TimeRange90Days:
		return "90 Days"
	default:
		return "Unknown"
	}
}

// Days returns the number of days covered by the range.
func (t TimeRange) Days() int {
	switch t {
	case TimeRange7Days:
		return 7
	case TimeRange90Days:
		return 90
	default:
		return 30
	}
}

// Next cycles to the next time range.
func (t TimeRange) Next() TimeRange {
	return (t + 1) % 3
}

// FillDays expands sparse daily rows into one entry per day ending today,
// so charts get a continuous series.
func FillDays(rows []DailyUsage, days int, now time.Time) []DailyUsage {
	if days <= 0 {
		return nil
	}
	end := now.UTC().Truncate(24 * time.Hour)
	byDay := make(map[string]DailyUsage, len(rows))
	for _, r := range rows {
		byDay[r.Day.UTC().Format(time.DateOnly)] = r
	}

	out := make([]DailyUsage, days)
	for i := range days {
		day := end.AddDate(0, 0, i-days+1)
		if r, ok := byDay[day.Format(time.DateOnly)]; ok {
			r.Day = day
			out[i] = r
			continue
		}
		out[i] = DailyUsage{Day: day}
	}
	return out
}
