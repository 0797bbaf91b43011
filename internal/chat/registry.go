package chat

import (
	"errors"
	"strings"
	"sync"

	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
)

// ErrNotFound is returned when a named channel does not exist.
var ErrNotFound = errors.New("chat: channel not found")

// ErrBlocked is the silent failure for a private message to a peer with
// only-friend-DMs set and no friendship (§4.D). Callers enqueue a
// block-notification packet to the sender rather than surfacing an error to
// the wire.
var ErrBlocked = errors.New("chat: message blocked by recipient's dm policy")

// Registry is the server-wide channel-by-name directory (component D).
// Creating and destroying channels is the structural write path; membership
// changes within a channel are guarded by the channel's own lock.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewRegistry returns an empty channel registry.
func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Create registers a new channel. Replaces any existing channel of the same
// name (used at startup to (re)seed configured channels).
func (r *Registry) Create(ch *Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name] = ch
}

// Get returns the channel named name, if any.
func (r *Registry) Get(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// List returns every registered channel.
func (r *Registry) List() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

func (r *Registry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.channels, name)
}

// Join resolves name, verifies capability, adds s to the channel, and
// records the join in the session's cached joined-channel set. It enqueues
// a channel-info packet to s on success (§4.D).
func (r *Registry) Join(name string, s *session.Session) error {
	ch, ok := r.Get(name)
	if !ok {
		return ErrNotFound
	}
	if err := ch.Join(s.UserID, s.Privileges); err != nil {
		return err
	}
	s.AddJoinedChannel(name)

	w := wire.NewWriter()
	packets.EncodeChannelInfo(w, packets.ChannelInfo{
		Name:   ch.Name,
		Topic:  ch.Title,
		Online: int16(ch.MemberCount()),
	})
	_ = s.Queue.Push(w.Bytes())
	return nil
}

// Leave resolves name, removes s from the channel, updates the session's
// cached joined set, and destroys the channel if it is now empty and
// auto-close is set.
func (r *Registry) Leave(name string, s *session.Session) error {
	ch, ok := r.Get(name)
	if !ok {
		return ErrNotFound
	}
	empty := ch.Leave(s.UserID)
	s.RemoveJoinedChannel(name)
	if empty && ch.AutoClose {
		r.remove(name)
	}
	return nil
}

// LeaveAll removes s from every channel it has joined, used at logout.
func (r *Registry) LeaveAll(s *session.Session) {
	for _, name := range s.JoinedChannels() {
		_ = r.Leave(name, s)
	}
}

// MessagePolicy bounds and filters chat message bodies (§4.D, §9: truncate
// before censoring, in that order, since it is externally observable).
type MessagePolicy struct {
	MaxLength      int
	SensitiveWords []string
}

// Apply truncates body to MaxLength (if positive) then replaces every
// occurrence of a configured sensitive word with "**".
func (p MessagePolicy) Apply(body string) string {
	if p.MaxLength > 0 && len(body) > p.MaxLength {
		body = body[:p.MaxLength]
	}
	for _, word := range p.SensitiveWords {
		if word == "" {
			continue
		}
		body = strings.ReplaceAll(body, word, "**")
	}
	return body
}

// PublicMessage applies policy, verifies write capability via the channel,
// and publishes a send-message packet to the channel's bus.
func (r *Registry) PublicMessage(channelName string, sender *session.Session, body string, policy MessagePolicy) error {
	ch, ok := r.Get(channelName)
	if !ok {
		return ErrNotFound
	}
	body = policy.Apply(body)

	w := wire.NewWriter()
	packets.EncodeSendMessage(w, packets.SendMessage{
		Sender:   sender.Username,
		SenderID: sender.UserID,
		Body:     body,
		Target:   channelName,
	})
	_, err := ch.Broadcast(sender.UserID, sender.Privileges, w.Bytes())
	return err
}

// PrivateMessage resolves target by username and either enqueues a
// send-message packet directly to its FIFO, or — if target has only-friend
// DMs enabled and sender is not a friend — enqueues a user-dm-blocked
// notification to sender and returns ErrBlocked (silent at the wire level).
func (r *Registry) PrivateMessage(store *session.Store, sender *session.Session, targetUsername, body string, policy MessagePolicy) error {
	target, ok := store.Get(session.ByUsername(targetUsername))
	if !ok {
		return ErrNotFound
	}
	if target.OnlyFriendDMs() && !target.HasFriend(sender.UserID) {
		w := wire.NewWriter()
		packets.EncodeUserDMBlocked(w, targetUsername)
		_ = sender.Queue.Push(w.Bytes())
		return ErrBlocked
	}

	body = policy.Apply(body)
	w := wire.NewWriter()
	packets.EncodeSendMessage(w, packets.SendMessage{
		Sender:   sender.Username,
		SenderID: sender.UserID,
		Body:     body,
		Target:   targetUsername,
	})
	return target.Queue.Push(w.Bytes())
}
