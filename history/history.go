// Package history keeps the bounded record of recent chat messages that the
// server replays to joining clients.
package history

import "lanchat/protocol"

// Ring is a fixed-capacity FIFO of messages. When full, the oldest message is
// evicted before the newest is stored. A Ring is not safe for concurrent use.
type Ring struct {
	buf   []protocol.Message
	start int
	size  int
}

// New returns an empty ring holding at most capacity messages. A
// non-positive capacity falls back to protocol.MaxHistory.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = protocol.MaxHistory
	}
	return &Ring{buf: make([]protocol.Message, capacity)}
}

// Append stores m, evicting the oldest message if the ring is full.
func (r *Ring) Append(m protocol.Message) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = m
		r.size++
		return
	}
	r.buf[r.start] = m
	r.start = (r.start + 1) % len(r.buf)
}

// Snapshot returns a copy of the stored messages, oldest first.
func (r *Ring) Snapshot() []protocol.Message {
	out := make([]protocol.Message, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *Ring) Len() int { return r.size }

func (r *Ring) Cap() int { return len(r.buf) }

// Reset drops every stored message.
func (r *Ring) Reset() {
	clear(r.buf)
	r.start, r.size = 0, 0
}

// Serialize encodes the ring for the WELCOME handshake frame.
func (r *Ring) Serialize() string {
	return protocol.JoinHistory(r.Snapshot())
}
