package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/opsu/bancho/internal/sortid"
)

// Message is a broadcast bus entry: a shared packet, its mint id, and an
// optional expiry. The zero Expiry means the message never expires.
type Message struct {
	ID     sortid.ID
	Packet []byte
	Expiry time.Time
}

func (m Message) expired(now time.Time) bool {
	return !m.Expiry.IsZero() && now.After(m.Expiry)
}

// Bus is an id-ordered store of fan-out packets with per-subscriber cursors
// (component C). One publication produces one stored message, read by every
// subscriber independently through Receive.
type Bus struct {
	mu       sync.RWMutex
	messages []Message // strictly increasing by ID
}

// NewBus returns an empty broadcast bus.
func NewBus() *Bus { return &Bus{} }

// Publish assigns the next monotonic id to packet and stores it alongside
// expiry (zero Expiry for no expiry), returning the assigned id.
func (b *Bus) Publish(packet []byte, expiry time.Time) sortid.ID {
	b.mu.Lock()
	id := sortid.New()
	b.messages = append(b.messages, Message{ID: id, Packet: packet, Expiry: expiry})
	b.mu.Unlock()
	return id
}

// Receive returns messages with id > cursor, not yet expired, in id order, up
// to limit (0 means unlimited), and the cursor to use on the next call.
func (b *Bus) Receive(cursor sortid.ID, limit int) ([]Message, sortid.ID) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	start := sort.Search(len(b.messages), func(i int) bool {
		return b.messages[i].ID.Compare(cursor) > 0
	})
	if start == len(b.messages) {
		return nil, cursor
	}

	now := time.Now()
	newCursor := cursor
	var out []Message
	for i := start; i < len(b.messages); i++ {
		if limit > 0 && len(out) == limit {
			break
		}
		m := b.messages[i]
		newCursor = m.ID
		if !m.expired(now) {
			out = append(out, m)
		}
	}
	return out, newCursor
}

// RemoveBefore drops every message with id <= id. Used by the reaper's bus GC
// once every subscriber's cursor has advanced past id.
func (b *Bus) RemoveBefore(id sortid.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := sort.Search(len(b.messages), func(i int) bool {
		return b.messages[i].ID.Compare(id) > 0
	})
	if cutoff == 0 {
		return
	}
	kept := make([]Message, len(b.messages)-cutoff)
	copy(kept, b.messages[cutoff:])
	b.messages = kept
}

// RemoveInvalid drops every message whose expiry has already passed,
// regardless of any subscriber's cursor.
func (b *Bus) RemoveInvalid() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.messages[:0:0]
	for _, m := range b.messages {
		if !m.expired(now) {
			kept = append(kept, m)
		}
	}
	b.messages = kept
}

// Len reports the number of messages currently retained.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.messages)
}

// Tip returns the id of the most recently published message, or the zero id
// if nothing has been published yet. Used to initialize a new subscriber's
// cursor so it does not replay history from before it joined.
func (b *Bus) Tip() sortid.ID {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.messages) == 0 {
		return sortid.Zero
	}
	return b.messages[len(b.messages)-1].ID
}
