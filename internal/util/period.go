package util

import (
	"strings"
	"time"
	_ "time/tzdata"

	"tiergate/internal/models"
)

const (
	dayLayout   = "2006-01-02"
	monthLayout = "2006-01"
)

// Periods returns the day and month labels of now in loc.
func Periods(now time.Time, loc *time.Location) (day, month string) {
	if loc == nil {
		loc = time.UTC
	}
	t := now.In(loc)
	return t.Format(dayLayout), t.Format(monthLayout)
}

// ValidPeriod reports whether label is a well formed label for p.
func ValidPeriod(p models.PeriodType, label string) bool {
	layout := dayLayout
	if p == models.PeriodMonth {
		layout = monthLayout
	}
	_, err := time.Parse(layout, label)
	return err == nil
}

// PromptChars counts the characters of every message content concatenated.
func PromptChars(messages []models.Message) int {
	n := 0
	for _, m := range messages {
		n += len([]rune(m.Content))
	}
	return n
}

// EstimateTokens approximates tokens at four characters each, never below one.
func EstimateTokens(chars int) int64 {
	est := int64(chars / 4)
	if est < 1 {
		return 1
	}
	return est
}

// SplitList parses a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
