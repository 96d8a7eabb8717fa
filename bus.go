package viewshed

import (
	"sync"
)

// Bus is the Ray Packet Bus (spec §4.D): a global append-only buffer that
// tile tasks add Messages to during one iteration. It is the sole point of
// contention in the engine's concurrency model (spec §5) and must tolerate
// duplicate delivery from task retries; downstream grouping in driver.go
// absorbs duplicates under the default idempotent Operator.
//
// Bus satisfies the Accumulator[Message, []Message] interface in
// adapters.go.
type Bus struct {
	mu       sync.Mutex
	messages []Message
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

// Add appends m to the buffer. Safe for concurrent use by many tile tasks.
func (b *Bus) Add(m Message) {
	b.mu.Lock()
	b.messages = append(b.messages, m)
	b.mu.Unlock()
}

// AddAll appends every message in ms. Equivalent to calling Add in a loop
// but takes the lock once.
func (b *Bus) AddAll(ms []Message) {
	if len(ms) == 0 {
		return
	}
	b.mu.Lock()
	b.messages = append(b.messages, ms...)
	b.mu.Unlock()
}

// Value returns every message added since the last Reset. The returned
// slice is a copy; mutating it does not affect the bus.
func (b *Bus) Value() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Message, len(b.messages))
	copy(out, b.messages)
	return out
}

// Reset clears the buffer. Called only by the driver between iterations.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.messages = nil
	b.mu.Unlock()
}

// Merge combines other's buffered messages into b, required when the
// underlying runtime partitions accumulator state across workers (spec
// §4.D).
func (b *Bus) Merge(other *Bus) {
	other.mu.Lock()
	incoming := make([]Message, len(other.messages))
	copy(incoming, other.messages)
	other.mu.Unlock()

	b.mu.Lock()
	b.messages = append(b.messages, incoming...)
	b.mu.Unlock()
}

// Len reports the number of buffered messages, used for progress logging.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.messages)
}
