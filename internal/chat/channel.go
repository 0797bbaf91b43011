// Package chat implements the named-channel registry (component D): join,
// leave, public broadcast with per-member cursors, and message policy
// (length clamp then substring censorship, in that order per the source's
// observed behavior).
package chat

import (
	"errors"
	"sync"
	"time"

	"github.com/opsu/bancho/internal/queue"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
)

var (
	// ErrForbidden is returned when a privilege bitmask fails a capability gate.
	ErrForbidden = errors.New("chat: capability check failed")
	// ErrNotMember is returned by operations that require prior membership.
	ErrNotMember = errors.New("chat: not a member")
	// ErrSlowMode is returned when a sender posts before their slow-mode
	// interval has elapsed.
	ErrSlowMode = errors.New("chat: slow mode active")
)

// Channel is a named chat room (§3). Membership is authoritative here; each
// session also caches its joined-channel set (kept in sync transactionally
// by Registry.Join/Leave), per the source's back-reference convention (§9).
type Channel struct {
	Name            string
	Title           string
	ReadCapability  session.Privilege
	WriteCapability session.Privilege
	AutoJoin        bool
	AutoClose       bool

	// SlowModeInterval, when nonzero, is the minimum gap between messages
	// from the same sender (supplemental feature, grounded on the teacher's
	// per-channel slow mode).
	SlowModeInterval time.Duration

	mu            sync.RWMutex
	members       map[int32]struct{}
	bus           *queue.Bus
	memberCursors map[int32]sortid.ID
	lastMessageAt map[int32]time.Time
}

// NewChannel constructs an empty channel.
func NewChannel(name, title string, readCap, writeCap session.Privilege, autoJoin, autoClose bool) *Channel {
	return &Channel{
		Name:            name,
		Title:           title,
		ReadCapability:  readCap,
		WriteCapability: writeCap,
		AutoJoin:        autoJoin,
		AutoClose:       autoClose,
		members:         make(map[int32]struct{}),
		bus:             queue.NewBus(),
		memberCursors:   make(map[int32]sortid.ID),
		lastMessageAt:   make(map[int32]time.Time),
	}
}

// CanRead reports whether priv satisfies the channel's read capability.
func (c *Channel) CanRead(priv session.Privilege) bool { return priv.Has(c.ReadCapability) }

// CanWrite reports whether priv satisfies the channel's write capability.
func (c *Channel) CanWrite(priv session.Privilege) bool { return priv.Has(c.WriteCapability) }

// Join verifies the read capability, adds userID to the member set, and
// starts its read cursor at the bus's current tip so it does not replay
// history predating membership.
func (c *Channel) Join(userID int32, priv session.Privilege) error {
	if !c.CanRead(priv) {
		return ErrForbidden
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.members[userID] = struct{}{}
	c.memberCursors[userID] = c.bus.Tip()
	return nil
}

// Leave removes userID from the member set. Reports whether the channel is
// now empty (the caller uses this together with AutoClose to decide
// whether to destroy the channel).
func (c *Channel) Leave(userID int32) (empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.members, userID)
	delete(c.memberCursors, userID)
	delete(c.lastMessageAt, userID)
	return len(c.members) == 0
}

// IsMember reports whether userID currently belongs to the channel.
func (c *Channel) IsMember(userID int32) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[userID]
	return ok
}

// MemberCount reports the number of current members.
func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Broadcast verifies the write capability and slow mode, publishes packet
// to the channel bus, and immediately advances the sender's own cursor past
// the new message so the sender never sees its own echo (§4.D).
func (c *Channel) Broadcast(senderID int32, priv session.Privilege, packet []byte) (sortid.ID, error) {
	if !c.CanWrite(priv) {
		return sortid.Zero, ErrForbidden
	}
	c.mu.Lock()
	if _, member := c.members[senderID]; !member {
		c.mu.Unlock()
		return sortid.Zero, ErrNotMember
	}
	if c.SlowModeInterval > 0 {
		if last, ok := c.lastMessageAt[senderID]; ok && time.Since(last) < c.SlowModeInterval {
			c.mu.Unlock()
			return sortid.Zero, ErrSlowMode
		}
	}
	c.mu.Unlock()

	id := c.bus.Publish(packet, time.Time{})

	c.mu.Lock()
	c.lastMessageAt[senderID] = time.Now()
	c.memberCursors[senderID] = id
	c.mu.Unlock()
	return id, nil
}

// Drain returns every message published since userID's last drain and
// advances its cursor. Returns nil if userID is not a member.
func (c *Channel) Drain(userID int32) []queue.Message {
	c.mu.RLock()
	cursor, ok := c.memberCursors[userID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}
	msgs, next := c.bus.Receive(cursor, 0)
	c.mu.Lock()
	c.memberCursors[userID] = next
	c.mu.Unlock()
	return msgs
}

// MinCursor returns the minimum read cursor across all members, the
// watermark below which the channel's bus may reclaim messages. Returns the
// zero id (reclaim nothing) when the channel has no members.
func (c *Channel) MinCursor() sortid.ID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var min sortid.ID
	first := true
	for _, cur := range c.memberCursors {
		if first || cur.Less(min) {
			min = cur
			first = false
		}
	}
	if first {
		return sortid.Zero
	}
	return min
}

// GC reclaims messages at or below the channel's min-cursor watermark and
// drops any that have expired outright.
func (c *Channel) GC() {
	c.GCBefore()
	c.GCInvalid()
}

// GCBefore reclaims messages at or below the channel's min-cursor watermark.
// Run on the faster session_recycle_interval cadence (§4.G), alongside the
// idle reaper sweep.
func (c *Channel) GCBefore() {
	c.bus.RemoveBefore(c.MinCursor())
}

// GCInvalid drops messages whose expiry has already passed, independent of
// any subscriber's cursor. Run on the slower
// channel_messages_recycle_interval cadence (§4.G).
func (c *Channel) GCInvalid() {
	c.bus.RemoveInvalid()
}
