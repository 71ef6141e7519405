package eod

import (
	"fmt"
	"path/filepath"
	"time"
)

const dayLayout = "2006-01-02"

func eodCSVPath(dir string, t time.Time) string {
	return filepath.Join(dir, "eod", t.Format(dayLayout)+".csv")
}

// parseCutoff reads an HH:MM market time.
func parseCutoff(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid eod cutoff %q: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

func marketCloseTime(t time.Time, hour, minute int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), hour, minute, 0, 0, t.Location())
}
