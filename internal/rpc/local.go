package rpc

import (
	"context"

	"github.com/opsu/bancho/internal/authsvc"
	"github.com/opsu/bancho/internal/dispatch"
	"github.com/opsu/bancho/internal/errs"
	"github.com/opsu/bancho/internal/geo"
	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/presence"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
	"github.com/opsu/bancho/internal/wire"
)

// Local is the direct in-process Service implementation: every method runs
// synchronously against the shared collaborators, with no serialization
// step (§4.H).
type Local struct {
	Lifecycle  *lifecycle.Lifecycle
	Dispatcher *dispatch.Dispatcher
	Services   *dispatch.Services
	Geo        geo.Lookup
	Passwords  authsvc.PasswordVerifier
}

var _ Service = (*Local)(nil)

func (l *Local) Login(_ context.Context, ip string, req lifecycle.LoginRequest) (lifecycle.LoginResult, error) {
	req.IP = ip
	return l.Lifecycle.Login(req), nil
}

func (l *Local) ProcessPacket(_ context.Context, userID int32, kind byte, payload []byte) (HandleCompleted, error) {
	res, err := l.Dispatcher.Dispatch(userID, wire.Packet{Kind: kind, Payload: payload}, l.Services)
	if err != nil {
		return HandleCompleted{Failed: 1}, err
	}
	return HandleCompleted{Packets: res.Packets, Succeeded: 1}, nil
}

func (l *Local) BatchProcessPackets(_ context.Context, userID int32, pkts []wire.Packet) (HandleCompleted, error) {
	res, err := l.Dispatcher.DispatchBatch(userID, pkts, l.Services)
	return HandleCompleted{Packets: res.Outbound, Succeeded: res.Succeeded, Failed: res.Failed}, err
}

func (l *Local) CreateUserSession(_ context.Context, req CreateSessionRequest) (CreateSessionResult, error) {
	id := sortid.New()
	s := session.New(id, req.UserID, req.Username, req.UsernameUnicode, req.Privileges, req.QueueCapacity)
	if req.ProtocolVersion != 0 {
		s.ProtocolVersion = req.ProtocolVersion
	}
	s.UTCOffset = req.UTCOffset
	if evicted := l.Lifecycle.Sessions.Create(s); evicted != nil {
		l.Lifecycle.Channels.LeaveAll(evicted)
	}
	token, err := l.Lifecycle.Signer.Sign(s.ID, s.UserID)
	if err != nil {
		l.Lifecycle.Sessions.Delete(session.BySessionID(s.ID))
		return CreateSessionResult{}, errs.ErrInternal
	}
	return CreateSessionResult{SessionID: s.ID.String(), Token: token}, nil
}

func (l *Local) DeleteUserSession(_ context.Context, q session.Query) error {
	s, ok := l.Lifecycle.Sessions.Delete(q)
	if !ok {
		return errs.ErrSessionNotExists
	}
	l.Lifecycle.Channels.LeaveAll(s)
	return nil
}

func (l *Local) GetUserSession(_ context.Context, q session.Query) (SessionView, error) {
	s, ok := l.Lifecycle.Sessions.Get(q)
	if !ok {
		return SessionView{}, errs.ErrSessionNotExists
	}
	return sessionView(s), nil
}

func (l *Local) EnqueueBanchoPackets(_ context.Context, q session.Query, pkts []byte) error {
	s, ok := l.Lifecycle.Sessions.Get(q)
	if !ok {
		return errs.ErrSessionNotExists
	}
	return s.Queue.Push(pkts)
}

func (l *Local) BroadcastBanchoPackets(_ context.Context, pkts []byte) error {
	l.Lifecycle.BroadcastPackets(pkts)
	return nil
}

func (l *Local) DequeueBanchoPackets(_ context.Context, q session.Query) ([]byte, error) {
	s, ok := l.Lifecycle.Sessions.Get(q)
	if !ok {
		return nil, errs.ErrSessionNotExists
	}
	var out []byte
	for _, pkt := range s.Queue.Drain() {
		out = append(out, pkt...)
	}
	return out, nil
}

func (l *Local) BatchSendPresences(_ context.Context, queries []session.Query, to session.Query) error {
	target, ok := l.Lifecycle.Sessions.Get(to)
	if !ok {
		return errs.ErrSessionNotExists
	}
	users := make([]*session.Session, 0, len(queries))
	for _, q := range queries {
		if s, ok := l.Lifecycle.Sessions.Get(q); ok {
			users = append(users, s)
		}
	}
	presence.BatchSendPresences(users, target)
	return nil
}

func (l *Local) SendAllPresences(_ context.Context, to session.Query) error {
	target, ok := l.Lifecycle.Sessions.Get(to)
	if !ok {
		return errs.ErrSessionNotExists
	}
	presence.SendAllPresences(l.Lifecycle.Sessions.Iter(), target)
	return nil
}

func (l *Local) UpdateUserBanchoStatus(_ context.Context, q session.Query, upd StatusUpdate) error {
	s, ok := l.Lifecycle.Sessions.Get(q)
	if !ok {
		return errs.ErrSessionNotExists
	}
	s.SetAction(upd.Action)
	s.SetMods(upd.Mods)
	s.SetMode(upd.Mode)
	s.SetBeatmapID(upd.BeatmapID)
	s.SetBeatmapMD5(upd.BeatmapMD5)
	s.SetStatusText(upd.StatusText)
	return nil
}

func (l *Local) UpdatePresenceFilter(_ context.Context, q session.Query, filter session.Filter) error {
	s, ok := l.Lifecycle.Sessions.Get(q)
	if !ok {
		return errs.ErrSessionNotExists
	}
	s.SetFilter(filter)
	return nil
}

func (l *Local) CheckUserToken(_ context.Context, token string, userID int32) error {
	_, err := l.Lifecycle.Signer.Verify(token, userID)
	if err != nil {
		return errs.ErrInvalidToken
	}
	return nil
}

func (l *Local) GeoLookup(_ context.Context, ip string) (session.GeoRecord, error) {
	if l.Geo == nil {
		return session.GeoRecord{}, geo.ErrNotFound
	}
	return l.Geo.Lookup(ip)
}

func (l *Local) PasswordVerify(_ context.Context, hash, password string) error {
	return l.Passwords.Verify(hash, password)
}
