package ui

import (
	"io"
	"sync"
)

// pcmRing is a byte ring between the execution goroutine, which writes a
// frame of samples at a time, and oto's player, which pulls from Read.
// Writes never block: on overflow the oldest bytes are discarded and
// counted so the sink can report that it is being outrun.
type pcmRing struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf    []byte
	head   int // next read
	size   int
	closed bool

	dropped uint64
}

func newPCMRing(capacity int) *pcmRing {
	r := &pcmRing{buf: make([]byte, capacity)}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Write appends p, keeping only the newest len(buf) bytes.
func (r *pcmRing) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed || len(p) == 0 {
		return
	}
	capacity := len(r.buf)
	if len(p) > capacity {
		r.dropped += uint64(len(p) - capacity)
		p = p[len(p)-capacity:]
	}
	if over := r.size + len(p) - capacity; over > 0 {
		r.head = (r.head + over) % capacity
		r.size -= over
		r.dropped += uint64(over)
	}

	tail := (r.head + r.size) % capacity
	n := copy(r.buf[tail:], p)
	copy(r.buf, p[n:])
	r.size += len(p)

	r.cond.Signal()
}

// Read blocks until data is available. It returns io.EOF once the ring is
// closed and drained.
func (r *pcmRing) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.size == 0 {
		if r.closed {
			return 0, io.EOF
		}
		r.cond.Wait()
	}

	want := min(len(p), r.size)
	n := copy(p[:want], r.buf[r.head:])
	if n < want {
		n += copy(p[n:want], r.buf)
	}
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	return n, nil
}

// Buffered returns the number of unread bytes.
func (r *pcmRing) Buffered() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Dropped returns the number of bytes discarded on overflow.
func (r *pcmRing) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset discards unread data.
func (r *pcmRing) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}

// Close wakes any blocked reader.
func (r *pcmRing) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cond.Broadcast()
}
