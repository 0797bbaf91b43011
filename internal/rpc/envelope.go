package rpc

import (
	"fmt"

	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
	"github.com/opsu/bancho/internal/wire"
)

func loginReplyCode(v int32) packets.LoginReplyCode { return packets.LoginReplyCode(v) }

// rawCodec is a gRPC codec (encoding.Codec) that passes already-encoded
// byte slices straight through, so the Remote transport can carry envelopes
// built with the same wire primitives component A uses for the packet
// protocol, without generating protobuf bindings (§4.H).
type rawCodec struct{}

func (rawCodec) Name() string { return "bancho-raw" }

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case rawMessage:
		return []byte(m), nil
	case *rawMessage:
		return []byte(*m), nil
	default:
		return nil, fmt.Errorf("rpc: rawCodec cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	p, ok := v.(*rawMessage)
	if !ok {
		return fmt.Errorf("rpc: rawCodec cannot unmarshal into %T", v)
	}
	*p = rawMessage(data)
	return nil
}

// rawMessage is the []byte wire type rawCodec marshals/unmarshals verbatim.
type rawMessage []byte

func writeQuery(w *wire.PayloadWriter, q session.Query) {
	w.U8(uint8(q.Kind))
	switch q.Kind {
	case session.QuerySessionID:
		w.String(q.SessionID.String())
	case session.QueryUserID:
		w.I32(q.UserID)
	case session.QueryUsername:
		w.String(q.Username)
	case session.QueryUsernameUnicode:
		w.String(q.UsernameUnicode)
	}
}

func readQuery(r *wire.PayloadReader) (session.Query, error) {
	kind, err := r.U8()
	if err != nil {
		return session.Query{}, err
	}
	switch session.QueryKind(kind) {
	case session.QuerySessionID:
		s, err := r.String()
		if err != nil {
			return session.Query{}, err
		}
		id, err := sortid.Parse(s)
		if err != nil {
			return session.Query{}, err
		}
		return session.BySessionID(id), nil
	case session.QueryUserID:
		v, err := r.I32()
		if err != nil {
			return session.Query{}, err
		}
		return session.ByUserID(v), nil
	case session.QueryUsername:
		s, err := r.String()
		if err != nil {
			return session.Query{}, err
		}
		return session.ByUsername(s), nil
	case session.QueryUsernameUnicode:
		s, err := r.String()
		if err != nil {
			return session.Query{}, err
		}
		return session.ByUsernameUnicode(s), nil
	default:
		return session.Query{}, fmt.Errorf("rpc: unknown query kind %d", kind)
	}
}

func writeLoginRequest(w *wire.PayloadWriter, req lifecycle.LoginRequest) {
	w.String(req.Username)
	w.String(req.PasswordHash)
	w.String(req.ClientVersion)
	w.U8(uint8(req.UTCOffset))
	w.Bool(req.DisplayCity)
	w.Bool(req.OnlyFriendDMs)
	w.String(req.ClientHashes)
}

func readLoginRequest(r *wire.PayloadReader) (lifecycle.LoginRequest, error) {
	var req lifecycle.LoginRequest
	var err error
	if req.Username, err = r.String(); err != nil {
		return req, err
	}
	if req.PasswordHash, err = r.String(); err != nil {
		return req, err
	}
	if req.ClientVersion, err = r.String(); err != nil {
		return req, err
	}
	offset, err := r.U8()
	if err != nil {
		return req, err
	}
	req.UTCOffset = int8(offset)
	if req.DisplayCity, err = r.Bool(); err != nil {
		return req, err
	}
	if req.OnlyFriendDMs, err = r.Bool(); err != nil {
		return req, err
	}
	if req.ClientHashes, err = r.String(); err != nil {
		return req, err
	}
	return req, nil
}

func writeLoginResult(w *wire.PayloadWriter, res lifecycle.LoginResult) {
	w.String(res.Token)
	var userID int32
	if res.Session != nil {
		userID = res.Session.UserID
	}
	w.I32(userID)
	w.I32(int32(res.Code))
	w.Bool(res.Failed)
	w.Raw(res.Packets)
}

// readLoginResult decodes everything writeLoginResult wrote except the live
// *session.Session, which never crosses the remote transport: a Remote
// caller gets the token, user id, and packet bundle, not the in-process
// object.
func readLoginResult(r *wire.PayloadReader) (token string, userID int32, code int32, failed bool, packets []byte, err error) {
	if token, err = r.String(); err != nil {
		return
	}
	if userID, err = r.I32(); err != nil {
		return
	}
	if code, err = r.I32(); err != nil {
		return
	}
	if failed, err = r.Bool(); err != nil {
		return
	}
	packets = r.Remaining()
	return
}

func writeHandleCompleted(w *wire.PayloadWriter, res HandleCompleted) {
	w.I32(int32(res.Succeeded))
	w.I32(int32(res.Failed))
	w.Raw(res.Packets)
}

func readHandleCompleted(r *wire.PayloadReader) (HandleCompleted, error) {
	var res HandleCompleted
	succeeded, err := r.I32()
	if err != nil {
		return res, err
	}
	failed, err := r.I32()
	if err != nil {
		return res, err
	}
	res.Succeeded = int(succeeded)
	res.Failed = int(failed)
	res.Packets = r.Remaining()
	return res, nil
}

func writeSessionView(w *wire.PayloadWriter, v SessionView) {
	w.String(v.SessionID)
	w.I32(v.UserID)
	w.String(v.Username)
	w.U32(uint32(v.Privileges))
	w.U8(uint8(v.Action))
	w.U8(uint8(v.Filter))
	w.String(v.IP)
}

func readSessionView(r *wire.PayloadReader) (SessionView, error) {
	var v SessionView
	var err error
	if v.SessionID, err = r.String(); err != nil {
		return v, err
	}
	if v.UserID, err = r.I32(); err != nil {
		return v, err
	}
	if v.Username, err = r.String(); err != nil {
		return v, err
	}
	priv, err := r.U32()
	if err != nil {
		return v, err
	}
	v.Privileges = session.Privilege(priv)
	action, err := r.U8()
	if err != nil {
		return v, err
	}
	v.Action = session.Action(action)
	filter, err := r.U8()
	if err != nil {
		return v, err
	}
	v.Filter = session.Filter(filter)
	if v.IP, err = r.String(); err != nil {
		return v, err
	}
	return v, nil
}

func writeStatusUpdate(w *wire.PayloadWriter, upd StatusUpdate) {
	w.U8(uint8(upd.Action))
	w.U32(upd.Mods)
	w.U8(upd.Mode)
	w.I32(upd.BeatmapID)
	w.String(upd.BeatmapMD5)
	w.String(upd.StatusText)
}

func readStatusUpdate(r *wire.PayloadReader) (StatusUpdate, error) {
	var upd StatusUpdate
	action, err := r.U8()
	if err != nil {
		return upd, err
	}
	upd.Action = session.Action(action)
	if upd.Mods, err = r.U32(); err != nil {
		return upd, err
	}
	if upd.Mode, err = r.U8(); err != nil {
		return upd, err
	}
	if upd.BeatmapID, err = r.I32(); err != nil {
		return upd, err
	}
	if upd.BeatmapMD5, err = r.String(); err != nil {
		return upd, err
	}
	if upd.StatusText, err = r.String(); err != nil {
		return upd, err
	}
	return upd, nil
}

func writeCreateSessionRequest(w *wire.PayloadWriter, req CreateSessionRequest) {
	w.I32(req.UserID)
	w.String(req.Username)
	w.String(req.UsernameUnicode)
	w.U32(uint32(req.Privileges))
	w.I32(req.ProtocolVersion)
	w.U8(uint8(req.UTCOffset))
	w.I32(int32(req.QueueCapacity))
}

func readCreateSessionRequest(r *wire.PayloadReader) (CreateSessionRequest, error) {
	var req CreateSessionRequest
	var err error
	if req.UserID, err = r.I32(); err != nil {
		return req, err
	}
	if req.Username, err = r.String(); err != nil {
		return req, err
	}
	if req.UsernameUnicode, err = r.String(); err != nil {
		return req, err
	}
	priv, err := r.U32()
	if err != nil {
		return req, err
	}
	req.Privileges = session.Privilege(priv)
	if req.ProtocolVersion, err = r.I32(); err != nil {
		return req, err
	}
	offset, err := r.U8()
	if err != nil {
		return req, err
	}
	req.UTCOffset = int8(offset)
	cap, err := r.I32()
	if err != nil {
		return req, err
	}
	req.QueueCapacity = int(cap)
	return req, nil
}

// writePacketList frames pkts with the same (kind, payload) frame header
// wire.Reader expects, so the remote peer decodes it with wire.NewReader
// instead of a bespoke list format.
func writePacketList(w *wire.PayloadWriter, pkts []wire.Packet) {
	fw := wire.NewWriter()
	for _, p := range pkts {
		fw.WritePacket(p.Kind, p.Payload)
	}
	w.Raw(fw.Bytes())
}

func readPacketList(r *wire.PayloadReader) ([]wire.Packet, error) {
	return wire.ReadAll(r.Remaining())
}
