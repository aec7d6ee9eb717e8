// Package timeutil holds the small time and episode identifier helpers shared by the
// registry, tracker and background worker.
package timeutil

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Days converts a day count into a duration
func Days(n int) time.Duration {
	return time.Duration(n) * 24 * time.Hour
}

// ParseClock parses an "HH:MM:SS" string into total seconds.
// "MM:SS" is accepted for short media.  Returns an error for anything else.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid clock string: %q", s)
	}

	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid clock component %q in %q", p, s)
		}
		total = total*60 + n
	}
	return total, nil
}

// FormatClock renders total seconds as "HH:MM:SS"
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds/60)%60, seconds%60)
}

// CompletionPercent computes stop/total * 100 from two "HH:MM:SS" strings.
// Returns 0 when either side is missing or unparseable.
func CompletionPercent(stop, total string) float64 {
	stopSec, err := ParseClock(stop)
	if err != nil {
		return 0
	}
	totalSec, err := ParseClock(total)
	if err != nil || totalSec == 0 {
		return 0
	}
	return float64(stopSec) / float64(totalSec) * 100
}

// CompareEpisodes compares two episode identifiers.  When both sides parse as
// floats the comparison is numeric, so "10" sorts after "9.5".  Otherwise it
// falls back to string comparison.  Returns -1, 0 or 1.
func CompareEpisodes(a, b string) int {
	fa, errA := strconv.ParseFloat(strings.TrimSpace(a), 64)
	fb, errB := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(a, b)
}

// NextEpisode increments an integer-parseable episode identifier by one step.
// Non-integer identifiers are returned unchanged.
func NextEpisode(episode string) string {
	n, err := strconv.Atoi(strings.TrimSpace(episode))
	if err != nil {
		return episode
	}
	return strconv.Itoa(n + 1)
}
