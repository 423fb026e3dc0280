package notify

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseClock parses an "HH:MM" wall-clock string into minutes since midnight.
func parseClock(s string) (int, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: bad minute", s)
	}
	return h*60 + m, nil
}

// inQuietWindow reports whether now falls inside the [start, end] wall-clock
// window. Bounds are inclusive. A window with start > end spans midnight
// (e.g. 22:00-08:00 is active at 23:30 and at 07:00). Empty or malformed
// bounds disable the window.
func inQuietWindow(now time.Time, start, end string) bool {
	if strings.TrimSpace(start) == "" || strings.TrimSpace(end) == "" {
		return false
	}
	s, err := parseClock(start)
	if err != nil {
		return false
	}
	e, err := parseClock(end)
	if err != nil {
		return false
	}
	cur := now.Hour()*60 + now.Minute()

	if s <= e {
		return cur >= s && cur <= e
	}
	return cur >= s || cur <= e
}
