package eod

import (
	"time"

	"tv-bracket-bot/internal/interfaces"
	"tv-bracket-bot/internal/store"
	"tv-bracket-bot/internal/tradelog"
)

// NewSummarizer reports on journal, running after cfg.Cutoff market time.
func NewSummarizer(journal *tradelog.Journal, cfg store.EODConfig) (interfaces.EodSummarizer, error) {
	h, m, err := parseCutoff(cfg.Cutoff)
	if err != nil {
		return nil, err
	}
	return &eodSummarizer{
		journal:       journal,
		cutoffHour:    h,
		cutoffMinute:  m,
		retentionDays: cfg.RetentionDays,
		now:           time.Now,
	}, nil
}
