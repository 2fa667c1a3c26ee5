// Package telemetry keeps a bounded in-memory history of fill levels for the
// dashboard.
package telemetry

import (
	"sync"
	"time"
)

// DefaultCapacity is the number of points kept when none is configured.
const DefaultCapacity = 100

// subscriberQueue is how many points a slow subscriber may fall behind
// before points are dropped for it.
const subscriberQueue = 16

// Point is one fill-level sample.
type Point struct {
	Time  time.Time
	Level float64 // fill fraction 0..1
}

// Millis returns the timestamp in whole seconds expressed as milliseconds,
// the form the dashboard chart expects.
func (p Point) Millis() int64 {
	return p.Time.Unix() * 1000
}

// Buffer is a fixed-capacity FIFO of points. Once full, each Append evicts
// the oldest point. Safe for concurrent use: the control loop appends while
// HTTP handlers take snapshots.
type Buffer struct {
	mu       sync.Mutex
	buf      []Point
	capacity int
	head     int // next write position
	count    int
	subs     map[chan Point]struct{}
}

// NewBuffer creates a Buffer holding at most capacity points.
// A non-positive capacity selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		buf:      make([]Point, capacity),
		capacity: capacity,
		subs:     make(map[chan Point]struct{}),
	}
}

// Append adds a point, evicting the oldest when full, and forwards it to
// subscribers. A subscriber whose queue is full misses the point; Append
// never blocks on a reader.
func (b *Buffer) Append(p Point) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf[b.head] = p
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}

	for ch := range b.subs {
		select {
		case ch <- p:
		default:
		}
	}
}

// Snapshot returns the buffered points, oldest first.
func (b *Buffer) Snapshot() []Point {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]Point, b.count)
	// Oldest item is at (head - count) mod capacity
	start := (b.head - b.count + b.capacity) % b.capacity
	for i := 0; i < b.count; i++ {
		result[i] = b.buf[(start+i)%b.capacity]
	}
	return result
}

// Len returns the number of buffered points.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return b.capacity
}

// Subscribe returns a channel receiving every point appended from now on,
// and a function that cancels the subscription and closes the channel.
func (b *Buffer) Subscribe() (<-chan Point, func()) {
	ch := make(chan Point, subscriberQueue)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
}
