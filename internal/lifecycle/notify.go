package lifecycle

import (
	"time"

	"github.com/opsu/bancho/internal/queue"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
)

// BroadcastPackets fans framed packet bytes out to every session. With a
// Notify bus wired, one publication is stored and each session picks it up
// through its own cursor on its next poll; without one, the packets are
// pushed to every live queue directly.
func (lc *Lifecycle) BroadcastPackets(pkts []byte) {
	if lc.Notify != nil {
		var expiry time.Time
		if lc.NotifyTTL > 0 {
			expiry = time.Now().Add(lc.NotifyTTL)
		}
		lc.Notify.Publish(pkts, expiry)
		return
	}
	for _, s := range lc.Sessions.Iter() {
		_ = s.Queue.Push(pkts)
	}
}

// DrainNotify returns every notify-bus message published since s's cursor,
// advancing the cursor past them. Safe to call with no bus wired.
func (lc *Lifecycle) DrainNotify(s *session.Session) []queue.Message {
	if lc.Notify == nil {
		return nil
	}
	msgs, next := lc.Notify.Receive(s.Cursor(), 0)
	s.SetCursor(next)
	return msgs
}

// minNotifyCursor computes the minimum notify-bus cursor across all live
// sessions, the watermark below which the bus may reclaim messages. The
// second return is false when no sessions are online; the reaper then
// leaves the bus to the slower expiry sweep rather than guessing a
// watermark.
func (lc *Lifecycle) minNotifyCursor() (sortid.ID, bool) {
	var min sortid.ID
	found := false
	for _, s := range lc.Sessions.Iter() {
		cur := s.Cursor()
		if !found || cur.Less(min) {
			min = cur
			found = true
		}
	}
	return min, found
}
