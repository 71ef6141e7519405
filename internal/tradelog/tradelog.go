package tradelog

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	timeLayout = "2006-01-02 15:04:05"
	dayLayout  = "2006-01-02"
	ext        = ".jsonl"
)

// Entry is one placement outcome. Failed placements carry whatever was
// known when they stopped.
type Entry struct {
	Time           string  `json:"time"`
	PlacementID    string  `json:"placement_id"`
	AlertID        string  `json:"alert_id,omitempty"`
	Symbol         string  `json:"symbol"`
	Right          string  `json:"right"`
	Contract       string  `json:"contract,omitempty"`
	Strike         float64 `json:"strike,omitempty"`
	Expiry         string  `json:"expiry,omitempty"`
	Quantity       int     `json:"quantity"`
	ReferencePrice float64 `json:"reference_price"`
	EntryPrice     float64 `json:"entry_price,omitempty"`
	AvgFillPrice   float64 `json:"avg_fill_price,omitempty"`
	TakeProfit     float64 `json:"take_profit,omitempty"`
	StopLoss       float64 `json:"stop_loss,omitempty"`
	ParentOrderID  string  `json:"parent_order_id,omitempty"`
	Outcome        string  `json:"outcome"`
	Error          string  `json:"error,omitempty"`
	DurationMs     int64   `json:"duration_ms"`
}

// Journal appends entries to one JSONL file per market day.
type Journal struct {
	mu  sync.Mutex
	dir string
	loc *time.Location
	now func() time.Time
}

func New(dir string, loc *time.Location) *Journal {
	if loc == nil {
		loc = time.UTC
	}
	return &Journal{dir: dir, loc: loc, now: time.Now}
}

func (j *Journal) Dir() string { return j.dir }

func (j *Journal) Location() *time.Location { return j.loc }

// DailyPath is the journal file for the market day containing t.
func (j *Journal) DailyPath(t time.Time) string {
	return filepath.Join(j.dir, t.In(j.loc).Format(dayLayout)+ext)
}

func (j *Journal) Append(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := j.now().In(j.loc)
	e.Time = now.Format(timeLayout)
	p := j.DailyPath(now)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f, string(b))
	return err
}

// ReadDay returns the entries for the market day containing t, reading the
// compressed journal if the plain one was already rotated. A missing day
// yields no entries and no error. Malformed lines are skipped.
func (j *Journal) ReadDay(t time.Time) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	p := j.DailyPath(t)
	var r io.Reader
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		f, err = os.Open(p + ".gz")
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer f.Close()
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		r = gr
	} else if err != nil {
		return nil, err
	} else {
		defer f.Close()
		r = f
	}

	var out []Entry
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, sc.Err()
}

// CompressOlder gzips journal files last modified more than retentionDays ago.
func (j *Journal) CompressOlder(retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	cutoff := j.now().AddDate(0, 0, -retentionDays)
	return filepath.WalkDir(j.dir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ext) {
			return nil
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			return nil
		}
		gz := p + ".gz"
		if _, err := os.Stat(gz); err == nil {
			return os.Remove(p)
		}
		if err := gzipFile(p, gz); err != nil {
			return fmt.Errorf("failed to compress %s: %w", p, err)
		}
		return os.Remove(p)
	})
}

func gzipFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		_ = gw.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := gw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
