package lifecycle

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/opsu/bancho/internal/authsvc"
	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/chat"
	"github.com/opsu/bancho/internal/geo"
	"github.com/opsu/bancho/internal/presence"
	"github.com/opsu/bancho/internal/queue"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
	"github.com/opsu/bancho/internal/wire"
)

// ProtocolVersion is the bancho wire protocol version sent on login and
// advertised in the HTTP cho-protocol header (§6).
const ProtocolVersion = 19

// UserRecord is what the out-of-core user database (§1: explicitly out of
// scope) resolves a username to. Lifecycle only ever reads it.
type UserRecord struct {
	UserID          int32
	Username        string
	UsernameUnicode string
	PasswordHash    string
	Privileges      session.Privilege
	Friends         []int32
}

// UserRepository is the external collaborator that resolves usernames to
// accounts. The core treats it as opaque (§1, §6).
type UserRepository interface {
	ByUsername(username string) (UserRecord, bool)
}

// LoginRequest is the decoded bancho login body (§6).
type LoginRequest struct {
	IP              string
	Username        string
	PasswordHash    string
	ClientVersion   string
	UTCOffset       int8
	DisplayCity     bool
	OnlyFriendDMs   bool
	ClientHashes    string
}

// LoginResult is the outcome of Login: either Token is set and Packets is
// the initial bundle (§4.G step 8), or Code names the failure and Packets
// carries just the login-reply + notification pair (§7).
type LoginResult struct {
	Token   string
	Session *session.Session
	Packets []byte
	Code    packets.LoginReplyCode
	Failed  bool
}

// Lifecycle wires every collaborator component F/G needs: the session
// store, channel registry, password/signature services, geo lookup, user
// repository, and the login retry cache.
type Lifecycle struct {
	Sessions *session.Store
	Channels *chat.Registry
	Verifier authsvc.PasswordVerifier
	Signer   *authsvc.SignatureService
	Geo      geo.Lookup
	Users    UserRepository
	Retry    *RetryCache
	Log      *slog.Logger

	// Notify is the server-wide broadcast bus (§4.C): one publication, one
	// stored message, read by every session through its own cursor on the
	// next poll. Optional; BroadcastPackets falls back to per-queue pushes
	// when nil.
	Notify *queue.Bus
	// NotifyTTL, when positive, stamps bus publications with an expiry so
	// messages no live subscriber will ever read are reclaimed by the
	// slower GC sweep.
	NotifyTTL time.Duration

	LoginEnabled       bool
	DisallowedIPs      map[string]struct{}
	RetryMax           int
	QueueCapacity      int
	MenuIconURL        string
	MenuClickURL       string
	OnlineUsersLimit   bool
	OnlineUsersMax     int
}

func failResult(code packets.LoginReplyCode, notification string) LoginResult {
	w := wire.NewWriter()
	packets.EncodeLoginReply(w, int32(code))
	if notification != "" {
		packets.EncodeNotification(w, notification)
	}
	return LoginResult{Packets: w.Bytes(), Code: code, Failed: true}
}

// Login runs the full login flow of §4.G: failures return a tagged
// login-reply packet and leave no session behind; success creates the
// session, signs its token, and assembles the initial packet bundle.
func (lc *Lifecycle) Login(req LoginRequest) LoginResult {
	if !lc.LoginEnabled {
		return failResult(packets.LoginServerError, "login is currently disabled")
	}
	if _, blocked := lc.DisallowedIPs[req.IP]; blocked {
		return failResult(packets.LoginServerError, "your address is not permitted to log in")
	}
	if lc.OnlineUsersLimit && lc.Sessions.Len() >= lc.OnlineUsersMax {
		return failResult(packets.LoginServerError, "the server is full, please try again later")
	}

	if lc.Retry != nil && lc.RetryMax > 0 && lc.Retry.Count(req.IP) >= lc.RetryMax {
		cooldown := lc.Retry.RemainingCooldown(req.IP)
		return failResult(packets.LoginServerError,
			fmt.Sprintf("too many failed attempts, try again in %s", cooldown.Round(time.Second)))
	}

	user, ok := lc.Users.ByUsername(req.Username)
	if !ok {
		lc.failAttempt(req.IP)
		return failResult(packets.LoginInvalidCredentials, "incorrect username or password")
	}

	if err := lc.Verifier.Verify(user.PasswordHash, req.PasswordHash); err != nil {
		lc.failAttempt(req.IP)
		return failResult(packets.LoginInvalidCredentials, "incorrect username or password")
	}

	if !user.Privileges.Has(session.PrivilegeNormal) {
		return failResult(packets.LoginUserBanned, "your account has been restricted")
	}

	if lc.Retry != nil {
		lc.Retry.Reset(req.IP)
	}

	var geoRecord *session.GeoRecord
	if lc.Geo != nil {
		if g, err := lc.Geo.Lookup(req.IP); err == nil {
			geoRecord = &g
		} else if lc.Log != nil {
			lc.Log.Debug("geo lookup failed, continuing without it", "ip", req.IP, "error", err)
		}
	}

	id := sortid.New()
	s := session.New(id, user.UserID, user.Username, user.UsernameUnicode, user.Privileges, lc.QueueCapacity)
	s.ProtocolVersion = ProtocolVersion
	s.UTCOffset = req.UTCOffset
	s.DisplayCity = req.DisplayCity
	s.IP = req.IP
	s.SetOnlyFriendDMs(req.OnlyFriendDMs)
	s.SetFriends(user.Friends)
	if geoRecord != nil {
		s.SetGeo(geoRecord)
	}
	if lc.Notify != nil {
		// Start the bus cursor at the current tip so the new session does
		// not replay broadcasts from before it logged in.
		s.SetCursor(lc.Notify.Tip())
	}

	// Displacement (§3 invariant 1, §4.B ordering, §5): the old session's
	// logout packet is published before the new session's presence.
	if evicted := lc.Sessions.Create(s); evicted != nil {
		lc.Channels.LeaveAll(evicted)
		lc.broadcastLogout(evicted.UserID, s)
		lc.notifyDisplaced(evicted)
	}

	token, err := lc.Signer.Sign(s.ID, s.UserID)
	if err != nil {
		lc.Sessions.Delete(session.BySessionID(s.ID))
		return failResult(packets.LoginServerError, "internal error, please try again")
	}

	w := lc.buildInitialBundle(s)

	// New session's own presence/stats fan out to everyone already online,
	// after the displaced session's logout (§4.B ordering).
	presence.BroadcastStats(lc.Sessions.Iter(), s)

	return LoginResult{Token: token, Session: s, Packets: w.Bytes()}
}

func (lc *Lifecycle) failAttempt(ip string) {
	if lc.Retry != nil {
		lc.Retry.Fail(ip)
	}
}

func (lc *Lifecycle) broadcastLogout(userID int32, except *session.Session) {
	w := wire.NewWriter()
	packets.EncodeUserLogout(w, userID)
	framed := w.Bytes()
	for _, s := range lc.Sessions.Iter() {
		if s == except {
			continue
		}
		_ = s.Queue.Push(framed)
	}
}

func (lc *Lifecycle) notifyDisplaced(old *session.Session) {
	w := wire.NewWriter()
	packets.EncodeNotification(w, "you have been logged out: your account was signed in elsewhere")
	_ = old.Queue.Push(w.Bytes())
}

// buildInitialBundle assembles the packets §4.G step 8 specifies, in order.
func (lc *Lifecycle) buildInitialBundle(s *session.Session) *wire.Writer {
	w := wire.NewWriter()
	packets.EncodeProtocolVersion(w, ProtocolVersion)
	packets.EncodeLoginReply(w, s.UserID)
	packets.EncodeBanchoPrivileges(w, int32(session.BanchoPrivilegesFor(s.Privileges)))
	packets.EncodeSilenceEnd(w, 0)
	packets.EncodeFriendsList(w, s.Friends())
	packets.EncodeNotification(w, "welcome to bancho")
	if lc.MenuIconURL != "" {
		packets.EncodeMainMenuIcon(w, lc.MenuIconURL, lc.MenuClickURL)
	}

	// Registry.Join enqueues a channel-info packet to s's own queue as part
	// of its normal join contract; draining it here (before encoding
	// channel-info-end) folds those packets into the login bundle in join
	// order instead of leaving them for the first subsequent poll.
	for _, ch := range lc.Channels.List() {
		if !ch.AutoJoin || !ch.CanRead(s.Privileges) {
			continue
		}
		if err := lc.Channels.Join(ch.Name, s); err != nil {
			continue
		}
	}
	for _, pkt := range s.Queue.Drain() {
		w.WriteRaw(pkt)
	}
	packets.EncodeChannelInfoEnd(w)

	for _, other := range lc.Sessions.Iter() {
		if other == s {
			continue
		}
		packets.EncodeUserPresence(w, presence.PresenceFor(other))
		packets.EncodeUserStats(w, presence.StatsFor(other))
	}

	return w
}
