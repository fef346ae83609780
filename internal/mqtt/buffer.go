package mqtt

import "sync"

// message is a serialized publish kept for replay after a reconnect.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlog holds the most recent messages published while offline. When
// full, the oldest message is overwritten. Safe for concurrent use.
type backlog struct {
	mu      sync.Mutex
	slots   []message
	next    int
	size    int
	dropped uint64
}

func newBacklog(capacity int) *backlog {
	if capacity < 1 {
		capacity = 1
	}
	return &backlog{slots: make([]message, capacity)}
}

// push stores m and reports whether an older message was discarded.
func (b *backlog) push(m message) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.slots[b.next] = m
	b.next = (b.next + 1) % len(b.slots)
	if b.size == len(b.slots) {
		b.dropped++
		return true
	}
	b.size++
	return false
}

// drain removes and returns all messages, oldest first.
func (b *backlog) drain() []message {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}
	out := make([]message, 0, b.size)
	first := (b.next - b.size + len(b.slots)) % len(b.slots)
	for i := range b.size {
		out = append(out, b.slots[(first+i)%len(b.slots)])
	}
	clear(b.slots)
	b.next, b.size = 0, 0
	return out
}

func (b *backlog) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// droppedTotal returns how many messages were overwritten since creation.
func (b *backlog) droppedTotal() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
