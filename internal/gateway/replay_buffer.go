package gateway

import "sync"

// replayEntry is one buffered envelope.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer is a fixed-size ring of recent envelopes of one symbol,
// ordered by per-symbol sequence. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	pos  int
	full bool
}

// NewReplayBuffer creates a buffer holding capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 200
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push stores data under seq, evicting the oldest entry when full.
// Callers push increasing sequences.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: data}
	rb.pos++
	if rb.pos == len(rb.buf) {
		rb.pos = 0
		rb.full = true
	}
}

// Since returns the entries with Seq > after, oldest first.
func (rb *ReplayBuffer) Since(after int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	n := rb.len()
	for i := 0; i < n; i++ {
		e := rb.at(i)
		if e.Seq > after {
			out = append(out, e)
		}
	}
	return out
}

// Oldest returns the smallest buffered sequence, or 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.len() == 0 {
		return 0
	}
	return rb.at(0).Seq
}

// Len returns the number of buffered entries.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// at maps logical index i (0 = oldest) to its entry.
func (rb *ReplayBuffer) at(i int) replayEntry {
	if rb.full {
		return rb.buf[(rb.pos+i)%len(rb.buf)]
	}
	return rb.buf[i]
}
