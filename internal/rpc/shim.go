// Package rpc implements the local/remote RPC shim (component H): a single
// Service interface every collaborator is called through, with a direct
// in-process implementation and a gRPC-backed remote one behind the same
// signatures (§4.H).
package rpc

import (
	"context"

	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
)

// HandleCompleted is the outcome of processing one or more inbound packets
// (§6: ProcessPacket / BatchProcessPackets).
type HandleCompleted struct {
	Packets   []byte
	Succeeded int
	Failed    int
}

// CreateSessionRequest carries the fields CreateUserSession needs to mint a
// session without running the full login flow (used by trusted callers that
// have already authenticated a user some other way, e.g. an admin tool).
type CreateSessionRequest struct {
	UserID          int32
	Username        string
	UsernameUnicode string
	Privileges      session.Privilege
	ProtocolVersion int32
	UTCOffset       int8
	QueueCapacity   int
}

// CreateSessionResult is what CreateUserSession returns: the new session's
// id and its signed bearer token.
type CreateSessionResult struct {
	SessionID string
	Token     string
}

// SessionView is the read-only projection of a session GetUserSession
// returns; it never exposes the live *session.Session so a remote caller
// can't reach into in-process state.
type SessionView struct {
	SessionID  string
	UserID     int32
	Username   string
	Privileges session.Privilege
	Action     session.Action
	Filter     session.Filter
	IP         string
}

// Service is the uniform local/remote surface of §6's RPC contracts. Every
// method that needs the caller's IP takes it explicitly; Local callers pass
// it directly, Remote callers carry it as the x-real-ip metadata field and
// the server-side adapter recovers it from the incoming context (§4.H).
type Service interface {
	Login(ctx context.Context, ip string, req lifecycle.LoginRequest) (lifecycle.LoginResult, error)
	ProcessPacket(ctx context.Context, userID int32, kind byte, payload []byte) (HandleCompleted, error)
	BatchProcessPackets(ctx context.Context, userID int32, pkts []wire.Packet) (HandleCompleted, error)
	CreateUserSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResult, error)
	DeleteUserSession(ctx context.Context, q session.Query) error
	GetUserSession(ctx context.Context, q session.Query) (SessionView, error)
	EnqueueBanchoPackets(ctx context.Context, q session.Query, pkts []byte) error
	BroadcastBanchoPackets(ctx context.Context, pkts []byte) error
	DequeueBanchoPackets(ctx context.Context, q session.Query) ([]byte, error)
	BatchSendPresences(ctx context.Context, queries []session.Query, to session.Query) error
	SendAllPresences(ctx context.Context, to session.Query) error
	UpdateUserBanchoStatus(ctx context.Context, q session.Query, status StatusUpdate) error
	UpdatePresenceFilter(ctx context.Context, q session.Query, filter session.Filter) error
	CheckUserToken(ctx context.Context, token string, userID int32) error
	GeoLookup(ctx context.Context, ip string) (session.GeoRecord, error)
	PasswordVerify(ctx context.Context, hash, password string) error
}

// StatusUpdate bundles the fields UpdateUserBanchoStatus applies to a
// session's live stats cells (§6).
type StatusUpdate struct {
	Action     session.Action
	Mods       uint32
	Mode       uint8
	BeatmapID  int32
	BeatmapMD5 string
	StatusText string
}

// sessionView projects s into the wire-safe SessionView.
func sessionView(s *session.Session) SessionView {
	return SessionView{
		SessionID:  s.ID.String(),
		UserID:     s.UserID,
		Username:   s.Username,
		Privileges: s.Privileges,
		Action:     s.Action(),
		Filter:     s.Filter(),
		IP:         s.IP,
	}
}
