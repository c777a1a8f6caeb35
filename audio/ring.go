package audio

import (
	"context"
	"sync"
)

// RingBuffer is a bounded sample buffer between the device callback
// (single producer) and the segmenter (single consumer). Writes never
// block: once full, the oldest samples are overwritten.
type RingBuffer struct {
	mu      sync.Mutex
	data    []int16
	head    int // index of the oldest sample
	count   int
	written uint64
	dropped uint64
	closed  bool

	wake chan struct{}
	done chan struct{}
}

func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		data: make([]int16, capacity),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Write appends samples and returns how many buffered samples were
// overwritten to make room. Writes after Close are discarded.
func (rb *RingBuffer) Write(samples []int16) int {
	rb.mu.Lock()
	if rb.closed {
		rb.mu.Unlock()
		return 0
	}

	size := len(rb.data)
	overwritten := 0
	if len(samples) > size {
		overwritten += len(samples) - size
		rb.written += uint64(len(samples) - size)
		samples = samples[len(samples)-size:]
	}
	if excess := rb.count + len(samples) - size; excess > 0 {
		rb.head = (rb.head + excess) % size
		rb.count -= excess
		overwritten += excess
	}

	tail := (rb.head + rb.count) % size
	n := copy(rb.data[tail:], samples)
	copy(rb.data, samples[n:])
	rb.count += len(samples)
	rb.written += uint64(len(samples))
	rb.dropped += uint64(overwritten)
	rb.mu.Unlock()

	select {
	case rb.wake <- struct{}{}:
	default:
	}
	return overwritten
}

// Read removes up to n samples in FIFO order. start is the absolute stream
// position of the first returned sample.
func (rb *RingBuffer) Read(n int) (samples []int16, start uint64) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	if n > rb.count {
		n = rb.count
	}
	start = rb.written - uint64(rb.count)
	samples = rb.copyOut(n)
	rb.head = (rb.head + n) % len(rb.data)
	rb.count -= n
	return samples, start
}

// Snapshot returns the buffered samples, oldest first, without removing them.
func (rb *RingBuffer) Snapshot() []int16 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.copyOut(rb.count)
}

func (rb *RingBuffer) copyOut(n int) []int16 {
	out := make([]int16, n)
	c := copy(out, rb.data[rb.head:min(rb.head+n, len(rb.data))])
	copy(out[c:], rb.data[:n-c])
	return out
}

// WaitFor blocks until at least n samples are buffered or the buffer is
// closed. It returns the number of buffered samples at wake-up.
func (rb *RingBuffer) WaitFor(ctx context.Context, n int) (available int, closed bool, err error) {
	for {
		rb.mu.Lock()
		available, closed = rb.count, rb.closed
		rb.mu.Unlock()
		if available >= n || closed {
			return available, closed, nil
		}
		select {
		case <-rb.wake:
		case <-rb.done:
		case <-ctx.Done():
			return available, false, ctx.Err()
		}
	}
}

// Close stops admission. Buffered samples remain readable.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	if rb.closed {
		return
	}
	rb.closed = true
	close(rb.done)
}

func (rb *RingBuffer) Closed() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.closed
}

func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

func (rb *RingBuffer) Cap() int {
	return len(rb.data)
}

// Written is the total number of samples ever offered to the buffer.
func (rb *RingBuffer) Written() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.written
}

// Dropped is the total number of samples lost to overwrite.
func (rb *RingBuffer) Dropped() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.dropped
}
