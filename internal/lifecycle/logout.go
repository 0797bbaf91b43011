package lifecycle

import (
	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
)

// Logout removes userID's session from the store, leaves every channel it
// had joined, and broadcasts a user-logout packet to every remaining
// session (§4.G Logout). A missing session is not an error: logout is
// idempotent, matching the dispatcher's user-logout handler calling this
// unconditionally.
func (lc *Lifecycle) Logout(userID int32) error {
	s, ok := lc.Sessions.Delete(session.ByUserID(userID))
	if !ok {
		return nil
	}
	lc.Channels.LeaveAll(s)
	lc.broadcastLogoutAll(userID)
	return nil
}

// broadcastLogoutAll pushes a user-logout packet to every currently live
// session (the evicted session has already been removed from the store).
func (lc *Lifecycle) broadcastLogoutAll(userID int32) {
	w := wire.NewWriter()
	packets.EncodeUserLogout(w, userID)
	framed := w.Bytes()
	for _, s := range lc.Sessions.Iter() {
		_ = s.Queue.Push(framed)
	}
}
