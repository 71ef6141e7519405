package engine

import (
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// idSource hands out ULIDs that sort by creation time, monotonic within a
// millisecond.
type idSource struct {
	mu   sync.Mutex
	mono io.Reader
	now  func() time.Time
}

func newIDSource(now func() time.Time) *idSource {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &idSource{mono: ulid.Monotonic(rand.New(rand.NewSource(seed)), 0), now: now}
}

func (s *idSource) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(s.now().UTC()), s.mono)
	if err != nil {
		// only on entropy exhaustion or a clock running backwards past the epoch
		return ulid.Make().String()
	}
	return id.String()
}
