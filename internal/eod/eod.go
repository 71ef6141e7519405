package eod

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/logger"
	"tv-bracket-bot/internal/tradelog"
)

var csvHeaders = []string{
	"symbol", "placements", "filled", "failed", "filled_qty",
	"avg_entry", "avg_fill", "avg_take_profit", "avg_stop_loss", "gross_fill_value",
}

type eodSummarizer struct {
	journal       *tradelog.Journal
	cutoffHour    int
	cutoffMinute  int
	retentionDays int
	now           func() time.Time
}

func (s *eodSummarizer) SummarizeDay(ctx context.Context, t time.Time) (string, error) {
	day := t.In(s.journal.Location())
	entries, err := s.journal.ReadDay(day)
	if err != nil {
		return "", fmt.Errorf("failed to read journal for %s: %w", day.Format(dayLayout), err)
	}
	if len(entries) == 0 {
		return "", nil
	}

	aggs := map[string]*aggRow{}
	for _, e := range entries {
		row := aggs[e.Symbol]
		if row == nil {
			row = &aggRow{Symbol: e.Symbol}
			aggs[e.Symbol] = row
		}
		row.Placements++
		if e.Outcome != engine.OutcomeFilled {
			row.Failed++
			continue
		}
		row.Filled++
		row.FilledQty += e.Quantity
		row.EntryValue += e.EntryPrice
		row.FillValue += float64(e.Quantity) * e.AvgFillPrice
		row.TakeProfits += e.TakeProfit
		row.StopLosses += e.StopLoss
	}

	keys := make([]string, 0, len(aggs))
	for k := range aggs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	outPath := eodCSVPath(s.journal.Dir(), day)
	if err := writeCSV(outPath, keys, aggs); err != nil {
		return "", err
	}

	if s.retentionDays > 0 {
		if err := s.journal.CompressOlder(s.retentionDays); err != nil {
			logger.Warn(ctx, "Failed to compress old journals", "error", err)
		}
	}
	return outPath, nil
}

func writeCSV(outPath string, keys []string, aggs map[string]*aggRow) (err error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()

	w := csv.NewWriter(out)
	if err := w.Write(csvHeaders); err != nil {
		return err
	}

	var total aggRow
	total.Symbol = "TOTAL"
	for _, k := range keys {
		r := aggs[k]
		if err := w.Write(record(r)); err != nil {
			return err
		}
		total.Placements += r.Placements
		total.Filled += r.Filled
		total.Failed += r.Failed
		total.FilledQty += r.FilledQty
		total.FillValue += r.FillValue
	}
	if err := w.Write([]string{
		total.Symbol,
		strconv.Itoa(total.Placements),
		strconv.Itoa(total.Filled),
		strconv.Itoa(total.Failed),
		strconv.Itoa(total.FilledQty),
		"", "", "", "",
		fmt.Sprintf("%.2f", total.FillValue),
	}); err != nil {
		return err
	}

	w.Flush()
	return w.Error()
}

func record(r *aggRow) []string {
	return []string{
		r.Symbol,
		strconv.Itoa(r.Placements),
		strconv.Itoa(r.Filled),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.FilledQty),
		fmt.Sprintf("%.2f", r.avgEntry()),
		fmt.Sprintf("%.4f", r.avgFill()),
		fmt.Sprintf("%.2f", r.avgTakeProfit()),
		fmt.Sprintf("%.2f", r.avgStopLoss()),
		fmt.Sprintf("%.2f", r.FillValue),
	}
}

func (s *eodSummarizer) SummarizeToday(ctx context.Context) (string, error) {
	return s.SummarizeDay(ctx, s.now())
}

func (s *eodSummarizer) ShouldRunNow() (bool, string) {
	now := s.now().In(s.journal.Location())
	outPath := eodCSVPath(s.journal.Dir(), now)
	if !now.After(marketCloseTime(now, s.cutoffHour, s.cutoffMinute)) {
		return false, outPath
	}
	if _, err := os.Stat(outPath); errors.Is(err, os.ErrNotExist) {
		return true, outPath
	}
	return false, outPath
}
