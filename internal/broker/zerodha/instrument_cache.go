package zerodha

import (
	"sync"
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// instrumentCache keeps the instrument dump per exchange. The dump is large
// and changes once a day, so it is refetched only after ttl.
type instrumentCache struct {
	fetch func(exchange string) (kiteconnect.Instruments, error)
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]instrumentEntry
}

type instrumentEntry struct {
	fetched time.Time
	list    kiteconnect.Instruments
}

func newInstrumentCache(fetch func(string) (kiteconnect.Instruments, error), ttl time.Duration, now func() time.Time) *instrumentCache {
	return &instrumentCache{
		fetch:   fetch,
		ttl:     ttl,
		now:     now,
		entries: make(map[string]instrumentEntry),
	}
}

// get returns the cached dump for exchange, fetching it when missing or
// stale. A failed refresh falls back to a stale copy if one exists.
func (ic *instrumentCache) get(exchange string) (kiteconnect.Instruments, error) {
	ic.mu.Lock()
	defer ic.mu.Unlock()

	entry, ok := ic.entries[exchange]
	if ok && (ic.ttl <= 0 || ic.now().Sub(entry.fetched) < ic.ttl) {
		return entry.list, nil
	}

	list, err := ic.fetch(exchange)
	if err != nil {
		if ok {
			return entry.list, nil
		}
		return nil, err
	}

	ic.entries[exchange] = instrumentEntry{fetched: ic.now(), list: list}
	return list, nil
}

