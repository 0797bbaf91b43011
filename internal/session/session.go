package session

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/opsu/bancho/internal/queue"
	"github.com/opsu/bancho/internal/sortid"
)

// GeoRecord is the best-effort result of a geo-IP lookup (§6, external
// collaborator). A nil pointer on Session means no lookup has succeeded yet.
type GeoRecord struct {
	CountryCode uint8
	Longitude   float32
	Latitude    float32
}

// Action is the client-reported activity kind (idle, playing, editing, ...).
type Action uint8

// Session is the server-side record of a logged-in user (§3). Identity
// fields are set once at creation and never change; state fields are atomic
// cells so a caller holding only a read reference to the record can mutate
// them without the store's structural write lock (§4.B, §5). Set-valued
// state (friends, joined channels, spectators) uses copy-on-write snapshots
// behind an atomic pointer for the same reason.
type Session struct {
	ID              sortid.ID
	UserID          int32
	Username        string
	UsernameUnicode string
	Privileges      Privilege
	CreatedAt       time.Time

	ProtocolVersion int32
	UTCOffset       int8
	DisplayCity     bool
	IP              string

	geo atomic.Pointer[GeoRecord]

	action        atomic.Uint32
	statusText    atomic.Pointer[string]
	beatmapMD5    atomic.Pointer[string]
	beatmapID     atomic.Int32
	mods          atomic.Uint32
	mode          atomic.Uint32
	rankedScore   atomic.Int64
	accuracyBits  atomic.Uint32
	playcount     atomic.Int32
	totalScore    atomic.Int64
	globalRank    atomic.Int32
	pp            atomic.Int32
	filter        atomic.Uint32
	onlyFriendDMs atomic.Bool
	spectating    atomic.Int32

	friends        atomic.Pointer[map[int32]struct{}]
	joinedChannels atomic.Pointer[map[string]struct{}]
	spectators     atomic.Pointer[map[int32]struct{}]

	lastActive atomic.Int64 // wall-clock unix seconds (see Touch)

	Queue  *queue.FIFO
	cursor atomic.Pointer[sortid.ID]
}

// New constructs a session with its identity fields fixed and all state
// cells zeroed. queueCapacity <= 0 uses queue.DefaultCapacity.
func New(id sortid.ID, userID int32, username, usernameUnicode string, priv Privilege, queueCapacity int) *Session {
	s := &Session{
		ID:              id,
		UserID:          userID,
		Username:        username,
		UsernameUnicode: usernameUnicode,
		Privileges:      priv,
		CreatedAt:       time.Now(),
		Queue:           queue.NewFIFO(queueCapacity),
	}
	s.filter.Store(uint32(FilterAll))
	s.Touch()
	return s
}

// Touch sets last-active to the current wall-clock unix second. It does not
// use the monotonic clock, so a backwards step of the system clock moves
// last-active back as well. Called on every successful poll.
func (s *Session) Touch() {
	s.lastActive.Store(time.Now().Unix())
}

// LastActive returns the last-active timestamp (unix seconds).
func (s *Session) LastActive() int64 { return s.lastActive.Load() }

// IdleSeconds reports how long the session has been idle relative to now.
func (s *Session) IdleSeconds(now time.Time) int64 {
	return now.Unix() - s.LastActive()
}

func (s *Session) Geo() *GeoRecord          { return s.geo.Load() }
func (s *Session) SetGeo(g *GeoRecord)      { s.geo.Store(g) }
func (s *Session) Action() Action           { return Action(s.action.Load()) }
func (s *Session) SetAction(a Action)       { s.action.Store(uint32(a)) }
func (s *Session) BeatmapID() int32         { return s.beatmapID.Load() }
func (s *Session) SetBeatmapID(v int32)     { s.beatmapID.Store(v) }
func (s *Session) Mods() uint32             { return s.mods.Load() }
func (s *Session) SetMods(v uint32)         { s.mods.Store(v) }
func (s *Session) Mode() uint8              { return uint8(s.mode.Load()) }
func (s *Session) SetMode(v uint8)          { s.mode.Store(uint32(v)) }
func (s *Session) RankedScore() int64       { return s.rankedScore.Load() }
func (s *Session) SetRankedScore(v int64)   { s.rankedScore.Store(v) }
func (s *Session) Playcount() int32         { return s.playcount.Load() }
func (s *Session) SetPlaycount(v int32)     { s.playcount.Store(v) }
func (s *Session) TotalScore() int64        { return s.totalScore.Load() }
func (s *Session) SetTotalScore(v int64)    { s.totalScore.Store(v) }
func (s *Session) GlobalRank() int32        { return s.globalRank.Load() }
func (s *Session) SetGlobalRank(v int32)    { s.globalRank.Store(v) }
func (s *Session) PP() int16                { return int16(s.pp.Load()) }
func (s *Session) SetPP(v int16)            { s.pp.Store(int32(v)) }
func (s *Session) OnlyFriendDMs() bool      { return s.onlyFriendDMs.Load() }
func (s *Session) SetOnlyFriendDMs(v bool)  { s.onlyFriendDMs.Store(v) }
func (s *Session) Spectating() int32        { return s.spectating.Load() }
func (s *Session) SetSpectating(userID int32) { s.spectating.Store(userID) }

func (s *Session) Accuracy() float32 {
	return math.Float32frombits(s.accuracyBits.Load())
}

func (s *Session) SetAccuracy(v float32) {
	s.accuracyBits.Store(math.Float32bits(v))
}

func (s *Session) Filter() Filter     { return Filter(s.filter.Load()) }
func (s *Session) SetFilter(f Filter) { s.filter.Store(uint32(f)) }

func (s *Session) StatusText() string {
	if p := s.statusText.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *Session) SetStatusText(v string) { s.statusText.Store(&v) }

func (s *Session) BeatmapMD5() string {
	if p := s.beatmapMD5.Load(); p != nil {
		return *p
	}
	return ""
}

func (s *Session) SetBeatmapMD5(v string) { s.beatmapMD5.Store(&v) }

// Cursor returns the session's current read position into the broadcast bus.
func (s *Session) Cursor() sortid.ID {
	if p := s.cursor.Load(); p != nil {
		return *p
	}
	return sortid.Zero
}

// SetCursor advances the session's broadcast bus cursor. Only the owning
// poll ever calls this, so plain store (no CAS) is correct.
func (s *Session) SetCursor(id sortid.ID) { s.cursor.Store(&id) }

func loadSet[T comparable](p *atomic.Pointer[map[T]struct{}]) map[T]struct{} {
	if m := p.Load(); m != nil {
		return *m
	}
	return nil
}

func addToSet[T comparable](p *atomic.Pointer[map[T]struct{}], v T) {
	for {
		old := p.Load()
		var oldMap map[T]struct{}
		if old != nil {
			oldMap = *old
		}
		if _, ok := oldMap[v]; ok {
			return
		}
		next := make(map[T]struct{}, len(oldMap)+1)
		for k := range oldMap {
			next[k] = struct{}{}
		}
		next[v] = struct{}{}
		if p.CompareAndSwap(old, &next) {
			return
		}
	}
}

func removeFromSet[T comparable](p *atomic.Pointer[map[T]struct{}], v T) {
	for {
		old := p.Load()
		if old == nil {
			return
		}
		oldMap := *old
		if _, ok := oldMap[v]; !ok {
			return
		}
		next := make(map[T]struct{}, len(oldMap))
		for k := range oldMap {
			if k != v {
				next[k] = struct{}{}
			}
		}
		if p.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Friends returns a snapshot of the session's friend user ids.
func (s *Session) Friends() []int32 {
	set := loadSet(&s.friends)
	out := make([]int32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// HasFriend reports whether userID is in the session's friend set.
func (s *Session) HasFriend(userID int32) bool {
	_, ok := loadSet(&s.friends)[userID]
	return ok
}

// SetFriends wholesale replaces the friend set (friends are sourced from an
// external roster, not mutated incrementally by bancho itself).
func (s *Session) SetFriends(ids []int32) {
	next := make(map[int32]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	s.friends.Store(&next)
}

// JoinedChannels returns a snapshot of the session's joined channel names.
func (s *Session) JoinedChannels() []string {
	set := loadSet(&s.joinedChannels)
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	return out
}

// HasJoined reports whether the session has joined channel name.
func (s *Session) HasJoined(name string) bool {
	_, ok := loadSet(&s.joinedChannels)[name]
	return ok
}

// AddJoinedChannel records name in the session's joined set. Called by the
// chat registry's Join as part of the transactional join (§9 back-references:
// channel membership is authoritative, this is the cached index).
func (s *Session) AddJoinedChannel(name string) { addToSet(&s.joinedChannels, name) }

// RemoveJoinedChannel removes name from the session's joined set.
func (s *Session) RemoveJoinedChannel(name string) { removeFromSet(&s.joinedChannels, name) }

// Spectators returns a snapshot of the session's current spectator user ids.
func (s *Session) Spectators() []int32 {
	set := loadSet(&s.spectators)
	out := make([]int32, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

func (s *Session) AddSpectator(userID int32)    { addToSet(&s.spectators, userID) }
func (s *Session) RemoveSpectator(userID int32) { removeFromSet(&s.spectators, userID) }
