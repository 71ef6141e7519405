package relay

import (
	"context"
	"sync"

	"github.com/asaskevich/EventBus"

	"tv-bracket-bot/internal/interfaces"
)

// MemoryBus is an in-process Bus for single-binary runs and tests.
type MemoryBus struct {
	bus EventBus.Bus

	mu   sync.Mutex
	subs map[string]int
}

var _ interfaces.Bus = (*MemoryBus)(nil)

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		bus:  EventBus.New(),
		subs: make(map[string]int),
	}
}

func (m *MemoryBus) Publish(_ context.Context, channel string, payload []byte) (int64, error) {
	m.mu.Lock()
	n := m.subs[channel]
	m.mu.Unlock()

	if n == 0 {
		return 0, nil
	}
	m.bus.Publish(channel, append([]byte(nil), payload...))
	return int64(n), nil
}

// Subscribe registers handler and blocks until ctx is done. Handlers run
// asynchronously, one goroutine per payload.
func (m *MemoryBus) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	var (
		gate   sync.RWMutex
		closed bool
	)
	fn := func(payload []byte) {
		gate.RLock()
		defer gate.RUnlock()
		if closed {
			return
		}
		handler(payload)
	}

	// EventBus matches handlers by code pointer, so closures cannot be told
	// apart on Unsubscribe. The gate retires this one instead.
	if err := m.bus.SubscribeAsync(channel, fn, false); err != nil {
		return err
	}
	m.mu.Lock()
	m.subs[channel]++
	m.mu.Unlock()

	<-ctx.Done()

	m.mu.Lock()
	m.subs[channel]--
	m.mu.Unlock()

	gate.Lock()
	closed = true
	gate.Unlock()
	return nil
}

// Close waits for handlers still running.
func (m *MemoryBus) Close() error {
	m.bus.WaitAsync()
	return nil
}
