package interfaces

import (
	"context"
	"time"
)

// EodSummarizer turns a day's placement journal into a CSV report.
type EodSummarizer interface {
	// SummarizeDay returns "" with a nil error when the day has no placements.
	SummarizeDay(ctx context.Context, t time.Time) (csvPath string, err error)
	SummarizeToday(ctx context.Context) (csvPath string, err error)
	// ShouldRunNow reports whether the cutoff has passed and today's report
	// does not exist yet.
	ShouldRunNow() (shouldRun bool, csvPath string)
}
