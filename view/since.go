package view

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/robertmeta/readlist/model"
)

// durationPattern matches duration strings like "7d", "2w", "3m", "1y"
var durationPattern = regexp.MustCompile(`^(\d+)([dwmy])$`)

// ParseDuration parses a duration string like "7d", "2w", "3m", "1y".
// Returns the duration or an error if the format is invalid.
//
// Supported units:
//   - d: days
//   - w: weeks (7 days)
//   - m: months (30 days, approximation)
//   - y: years (365 days, approximation)
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("duration string is empty")
	}

	matches := durationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid duration format: %s (expected format: <number><unit>, e.g., 7d, 2w, 3m, 1y)", s)
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil || num < 0 {
		return 0, fmt.Errorf("invalid number in duration: %s", matches[1])
	}

	day := 24 * time.Hour
	switch matches[2] {
	case "d":
		return time.Duration(num) * day, nil
	case "w":
		return time.Duration(num) * 7 * day, nil
	case "m":
		return time.Duration(num) * 30 * day, nil
	case "y":
		return time.Duration(num) * 365 * day, nil
	}
	return 0, fmt.Errorf("invalid duration unit: %s (expected d, w, m, or y)", matches[2])
}

// Since converts a duration string (e.g. "7d") into the instant that long
// before now.
func Since(since string, now time.Time) (time.Time, error) {
	duration, err := ParseDuration(since)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-duration), nil
}

// BuildFilter constructs a Filter from CLI flags. Empty strings leave the
// matching criterion off.
func BuildFilter(tab string, tags []string, status string, favorites bool, since string, now time.Time) (Filter, error) {
	f := Filter{
		Tab:           Active,
		Tags:          model.NormalizeTags(tags),
		FavoritesOnly: favorites,
	}

	if tab != "" {
		t, err := ParseTab(tab)
		if err != nil {
			return f, err
		}
		f.Tab = t
	}

	if status != "" {
		st, err := model.ParseStatus(status)
		if err != nil {
			return f, fmt.Errorf("failed to parse --status flag: %w", err)
		}
		f.Status = &st
	}

	if since != "" {
		t, err := Since(since, now)
		if err != nil {
			return f, fmt.Errorf("failed to parse --since flag: %w", err)
		}
		f.Since = &t
	}

	return f, nil
}
