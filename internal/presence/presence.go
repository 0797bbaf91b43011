// Package presence implements the fan-out engine (component E): deciding,
// for each recipient, whether a sender's stats/presence packets should be
// delivered, and enqueuing them in stable session-store order.
package presence

import (
	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
)

// Visible reports whether sender's presence is visible to recipient under
// recipient's presence filter (§4.E).
func Visible(recipient, sender *session.Session) bool {
	if recipient == sender {
		return false
	}
	switch recipient.Filter() {
	case session.FilterAll:
		return true
	case session.FilterFriends:
		return recipient.HasFriend(sender.UserID)
	default: // session.FilterNone
		return false
	}
}

// StatsFor builds the user-stats packet payload for s's current state.
func StatsFor(s *session.Session) packets.UserStats {
	return packets.UserStats{
		UserID:      s.UserID,
		Action:      uint8(s.Action()),
		StatusText:  s.StatusText(),
		BeatmapMD5:  s.BeatmapMD5(),
		Mods:        s.Mods(),
		Mode:        s.Mode(),
		BeatmapID:   s.BeatmapID(),
		RankedScore: s.RankedScore(),
		Accuracy:    s.Accuracy(),
		Playcount:   s.Playcount(),
		TotalScore:  s.TotalScore(),
		GlobalRank:  s.GlobalRank(),
		PP:          s.PP(),
	}
}

// PresenceFor builds the user-presence packet payload for s's identity
// fields.
func PresenceFor(s *session.Session) packets.UserPresence {
	var presence packets.UserPresence
	presence.UserID = s.UserID
	presence.Username = s.Username
	presence.UTCOffset = s.UTCOffset
	presence.GlobalRank = s.GlobalRank()
	if geo := s.Geo(); geo != nil {
		presence.CountryCode = geo.CountryCode
		presence.Longitude = geo.Longitude
		presence.Latitude = geo.Latitude
	}
	presence.Privileges = uint8(session.BanchoPrivilegesFor(s.Privileges))
	return presence
}

// enqueueStats writes sender's stats packet into to's outbound FIFO.
func enqueueStats(to, sender *session.Session) {
	w := wire.NewWriter()
	packets.EncodeUserStats(w, StatsFor(sender))
	_ = to.Queue.Push(w.Bytes())
}

// enqueuePresence writes sender's presence packet into to's outbound FIFO.
func enqueuePresence(to, sender *session.Session) {
	w := wire.NewWriter()
	packets.EncodeUserPresence(w, PresenceFor(sender))
	_ = to.Queue.Push(w.Bytes())
}

// BroadcastStats enqueues sender's stats packet to every session in all
// satisfying recipient's filter, in store iteration order.
func BroadcastStats(all []*session.Session, sender *session.Session) {
	for _, recipient := range all {
		if Visible(recipient, sender) {
			enqueueStats(recipient, sender)
		}
	}
}

// SendAllPresences emits one presence packet per session in all (filtered by
// to's presence filter) to the recipient to, in store iteration order (§4.E).
func SendAllPresences(all []*session.Session, to *session.Session) {
	for _, s := range all {
		if Visible(to, s) {
			enqueuePresence(to, s)
		}
	}
}

// BatchSendStats is the bulk form of stats delivery: for each of users,
// enqueue its stats packet to `to` if visible under to's filter.
func BatchSendStats(users []*session.Session, to *session.Session) {
	for _, u := range users {
		if Visible(to, u) {
			enqueueStats(to, u)
		}
	}
}

// BatchSendPresences is the explicit-id-list form of presence delivery: for
// each of users, enqueue its presence packet to `to` if visible under to's
// filter.
func BatchSendPresences(users []*session.Session, to *session.Session) {
	for _, u := range users {
		if Visible(to, u) {
			enqueuePresence(to, u)
		}
	}
}
