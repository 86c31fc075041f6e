package memory

import (
	"sync"

	telemetry "sensor-gateway/internal/telemetry/domain"
)

// DefaultCapacity is the number of readings retained when no capacity is configured.
const DefaultCapacity = 1000

// HistoryBuffer is a fixed-capacity ring of recent readings.
// Appends past capacity evict exactly the oldest reading.
type HistoryBuffer struct {
	mu    sync.RWMutex
	items []telemetry.Reading
	head  int // index of the oldest reading
	size  int
}

// NewHistoryBuffer constructs an empty buffer. Non-positive capacity falls back to DefaultCapacity.
func NewHistoryBuffer(capacity int) *HistoryBuffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &HistoryBuffer{items: make([]telemetry.Reading, capacity)}
}

// Append stores a reading, evicting the oldest one when the buffer is full.
func (b *HistoryBuffer) Append(reading telemetry.Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.items)
	if b.size < capacity {
		b.items[(b.head+b.size)%capacity] = reading
		b.size++
		return
	}
	b.items[b.head] = reading
	b.head = (b.head + 1) % capacity
}

// Recent returns the last min(limit, size) readings, oldest first.
func (b *HistoryBuffer) Recent(limit int) []telemetry.Reading {
	if limit <= 0 {
		return []telemetry.Reading{}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit > b.size {
		limit = b.size
	}
	capacity := len(b.items)
	start := b.head + b.size - limit
	result := make([]telemetry.Reading, limit)
	for i := 0; i < limit; i++ {
		result[i] = b.items[(start+i)%capacity]
	}
	return result
}

// Size returns the number of stored readings.
func (b *HistoryBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the maximum number of stored readings.
func (b *HistoryBuffer) Capacity() int {
	return len(b.items)
}
