package eod

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tv-bracket-bot/internal/engine"
	"tv-bracket-bot/internal/store"
	"tv-bracket-bot/internal/tradelog"
)

var ist = time.FixedZone("IST", 19800)

func writeDay(t *testing.T, j *tradelog.Journal, day time.Time, entries ...tradelog.Entry) {
	t.Helper()
	p := j.DailyPath(day)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	f, err := os.Create(p)
	require.NoError(t, err)
	defer f.Close()
	enc := json.NewEncoder(f)
	for _, e := range entries {
		require.NoError(t, enc.Encode(e))
	}
}

func newTestSummarizer(t *testing.T, now time.Time) (*eodSummarizer, *tradelog.Journal) {
	t.Helper()
	j := tradelog.New(t.TempDir(), ist)
	s, err := NewSummarizer(j, store.EODConfig{Cutoff: "15:35"})
	require.NoError(t, err)
	es := s.(*eodSummarizer)
	es.now = func() time.Time { return now }
	return es, j
}

func readCSV(t *testing.T, p string) [][]string {
	t.Helper()
	f, err := os.Open(p)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestSummarizeDayAggregatesPerSymbol(t *testing.T) {
	day := time.Date(2024, 3, 20, 16, 0, 0, 0, ist)
	s, j := newTestSummarizer(t, day)

	writeDay(t, j, day,
		tradelog.Entry{Symbol: "NIFTY", Quantity: 1, EntryPrice: 472.5, AvgFillPrice: 475, TakeProfit: 665, StopLoss: 190, Outcome: engine.OutcomeFilled},
		tradelog.Entry{Symbol: "NIFTY", Quantity: 3, EntryPrice: 100, AvgFillPrice: 95, TakeProfit: 133, StopLoss: 38, Outcome: engine.OutcomeFilled},
		tradelog.Entry{Symbol: "NIFTY", Quantity: 1, Outcome: engine.OutcomeFillTimeout},
		tradelog.Entry{Symbol: "BANKNIFTY", Quantity: 1, Outcome: engine.OutcomeNoContract},
	)

	p, err := s.SummarizeDay(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(j.Dir(), "eod", "2024-03-20.csv"), p)

	rows := readCSV(t, p)
	require.Len(t, rows, 4)
	assert.Equal(t, csvHeaders, rows[0])
	assert.Equal(t, []string{"BANKNIFTY", "1", "0", "1", "0", "0.00", "0.0000", "0.00", "0.00", "0.00"}, rows[1])
	assert.Equal(t, []string{"NIFTY", "3", "2", "1", "4", "286.25", "190.0000", "399.00", "114.00", "760.00"}, rows[2])
	assert.Equal(t, []string{"TOTAL", "4", "2", "2", "4", "", "", "", "", "760.00"}, rows[3])
}

func TestSummarizeDayWithoutPlacements(t *testing.T) {
	day := time.Date(2024, 3, 20, 16, 0, 0, 0, ist)
	s, _ := newTestSummarizer(t, day)

	p, err := s.SummarizeToday(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p)
}

func TestShouldRunNow(t *testing.T) {
	before := time.Date(2024, 3, 20, 15, 30, 0, 0, ist)
	s, j := newTestSummarizer(t, before)

	run, p := s.ShouldRunNow()
	assert.False(t, run)
	assert.Equal(t, filepath.Join(j.Dir(), "eod", "2024-03-20.csv"), p)

	s.now = func() time.Time { return before.Add(10 * time.Minute) }
	run, _ = s.ShouldRunNow()
	assert.True(t, run)

	writeDay(t, j, before, tradelog.Entry{Symbol: "NIFTY", Outcome: engine.OutcomeFilled, Quantity: 1, AvgFillPrice: 1})
	_, err := s.SummarizeToday(context.Background())
	require.NoError(t, err)
	run, _ = s.ShouldRunNow()
	assert.False(t, run, "report already written")
}

func TestNewSummarizerRejectsBadCutoff(t *testing.T) {
	_, err := NewSummarizer(tradelog.New(t.TempDir(), ist), store.EODConfig{Cutoff: "3pm"})
	assert.Error(t, err)
}
