package session

import (
	"sort"
	"sync"

	"github.com/opsu/bancho/internal/sortid"
)

// QueryKind selects which index a Query resolves through.
type QueryKind int

const (
	QuerySessionID QueryKind = iota
	QueryUserID
	QueryUsername
	QueryUsernameUnicode
)

// Query identifies a session by exactly one of its four unique keys (§4.B).
type Query struct {
	Kind            QueryKind
	SessionID       sortid.ID
	UserID          int32
	Username        string
	UsernameUnicode string
}

func BySessionID(id sortid.ID) Query { return Query{Kind: QuerySessionID, SessionID: id} }
func ByUserID(id int32) Query        { return Query{Kind: QueryUserID, UserID: id} }
func ByUsername(name string) Query   { return Query{Kind: QueryUsername, Username: name} }
func ByUsernameUnicode(name string) Query {
	return Query{Kind: QueryUsernameUnicode, UsernameUnicode: name}
}

// Store is the four-index concurrent session registry (component B): every
// live session is reachable by session id, user id, username, and optional
// unicode username, all four resolving to the same record. Readers never
// block other readers; structural changes (create, delete) take the
// exclusive path. Once obtained, a *Session remains valid for the caller
// even after it is removed from the store (§5: sessions are effectively
// reference-counted by the garbage collector).
type Store struct {
	mu                sync.RWMutex
	byID              map[sortid.ID]*Session
	byUserID          map[int32]*Session
	byUsername        map[string]*Session
	byUsernameUnicode map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{
		byID:              make(map[sortid.ID]*Session),
		byUserID:          make(map[int32]*Session),
		byUsername:        make(map[string]*Session),
		byUsernameUnicode: make(map[string]*Session),
	}
}

// Create inserts s into all four indices. If a session for the same user id
// already exists, it is first removed from every index and returned so the
// caller can run displacement side effects (logout broadcast, notification)
// — this never fails, and the swap is atomic from any reader's perspective.
func (st *Store) Create(s *Session) (evicted *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if old, ok := st.byUserID[s.UserID]; ok {
		st.removeLocked(old)
		evicted = old
	}

	st.byID[s.ID] = s
	st.byUserID[s.UserID] = s
	st.byUsername[s.Username] = s
	if s.UsernameUnicode != "" {
		st.byUsernameUnicode[s.UsernameUnicode] = s
	}
	return evicted
}

func (st *Store) lookupLocked(q Query) (*Session, bool) {
	switch q.Kind {
	case QuerySessionID:
		s, ok := st.byID[q.SessionID]
		return s, ok
	case QueryUserID:
		s, ok := st.byUserID[q.UserID]
		return s, ok
	case QueryUsername:
		s, ok := st.byUsername[q.Username]
		return s, ok
	case QueryUsernameUnicode:
		s, ok := st.byUsernameUnicode[q.UsernameUnicode]
		return s, ok
	default:
		return nil, false
	}
}

// Get resolves q under shared access. Returns (nil, false) on a miss.
func (st *Store) Get(q Query) (*Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.lookupLocked(q)
}

// Exists reports whether q resolves to a live session.
func (st *Store) Exists(q Query) bool {
	_, ok := st.Get(q)
	return ok
}

func (st *Store) removeLocked(s *Session) {
	delete(st.byID, s.ID)
	delete(st.byUserID, s.UserID)
	delete(st.byUsername, s.Username)
	if s.UsernameUnicode != "" {
		delete(st.byUsernameUnicode, s.UsernameUnicode)
	}
}

// Delete removes the session resolved by q from every index and returns it.
// A miss returns (nil, false) and changes nothing.
func (st *Store) Delete(q Query) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s, ok := st.lookupLocked(q)
	if !ok {
		return nil, false
	}
	st.removeLocked(s)
	return s, true
}

// Len reports the number of live sessions.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byID)
}

// Iter returns a snapshot of every live session, ordered by session id so
// presence fan-out batches iterate in a stable order (§4.E).
func (st *Store) Iter() []*Session {
	st.mu.RLock()
	out := make([]*Session, 0, len(st.byID))
	for _, s := range st.byID {
		out = append(out, s)
	}
	st.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID.Less(out[j].ID) })
	return out
}
