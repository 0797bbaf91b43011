package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/opsu/bancho/internal/errs"
	"github.com/opsu/bancho/internal/lifecycle"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RemoteClient implements Service over a gRPC connection, multiplexing
// every method through the single "Call" RPC the server registers (§4.H).
// Every call carries a per-call deadline: the one on the context the
// caller supplies, or 5s when that context has none; callers that want a
// different deadline wrap ctx themselves before calling.
type RemoteClient struct {
	conn *grpc.ClientConn
}

var _ Service = (*RemoteClient)(nil)

// Dial opens a gRPC connection to target using the raw codec, so the two
// ends never need generated protobuf bindings.
func Dial(target string, opts ...grpc.DialOption) (*RemoteClient, error) {
	opts = append(opts, grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})))
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	return &RemoteClient{conn: conn}, nil
}

// Close tears down the underlying connection.
func (c *RemoteClient) Close() error { return c.conn.Close() }

func (c *RemoteClient) call(ctx context.Context, method string, encodeArgs func(*wire.PayloadWriter)) ([]byte, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}
	env := wire.NewPayloadWriter()
	env.String(method)
	if encodeArgs != nil {
		args := wire.NewPayloadWriter()
		encodeArgs(args)
		env.Raw(args.Bytes())
	}
	req := rawMessage(env.Bytes())
	var resp rawMessage
	if err := c.conn.Invoke(ctx, rpcServiceName+"/Call", req, &resp); err != nil {
		// Transport-level failures (dial errors, exceeded deadlines) map to
		// Unavailable so callers see the same taxonomy local calls use (§5).
		switch status.Code(err) {
		case codes.DeadlineExceeded, codes.Unavailable, codes.Canceled:
			return nil, fmt.Errorf("rpc: %s: %w", method, errs.ErrUnavailable)
		default:
			return nil, err
		}
	}
	return decodeResponse([]byte(resp))
}

func withClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, "x-real-ip", ip)
}

func (c *RemoteClient) Login(ctx context.Context, ip string, req lifecycle.LoginRequest) (lifecycle.LoginResult, error) {
	payload, err := c.call(withClientIP(ctx, ip), methodLogin, func(w *wire.PayloadWriter) {
		writeLoginRequest(w, req)
	})
	if err != nil {
		return lifecycle.LoginResult{}, err
	}
	r := wire.NewPayloadReader(payload)
	token, userID, code, failed, packets, err := readLoginResult(r)
	if err != nil {
		return lifecycle.LoginResult{}, err
	}
	res := lifecycle.LoginResult{Token: token, Packets: packets, Failed: failed}
	res.Code = loginReplyCode(code)
	if !failed {
		res.Session = &session.Session{UserID: userID}
	}
	return res, nil
}

func (c *RemoteClient) ProcessPacket(ctx context.Context, userID int32, kind byte, payload []byte) (HandleCompleted, error) {
	resp, err := c.call(ctx, methodProcessPacket, func(w *wire.PayloadWriter) {
		w.I32(userID)
		w.U8(kind)
		w.Raw(payload)
	})
	if err != nil {
		return HandleCompleted{}, err
	}
	return readHandleCompleted(wire.NewPayloadReader(resp))
}

func (c *RemoteClient) BatchProcessPackets(ctx context.Context, userID int32, pkts []wire.Packet) (HandleCompleted, error) {
	resp, err := c.call(ctx, methodBatchProcessPackets, func(w *wire.PayloadWriter) {
		w.I32(userID)
		writePacketList(w, pkts)
	})
	if err != nil {
		return HandleCompleted{}, err
	}
	return readHandleCompleted(wire.NewPayloadReader(resp))
}

func (c *RemoteClient) CreateUserSession(ctx context.Context, req CreateSessionRequest) (CreateSessionResult, error) {
	resp, err := c.call(ctx, methodCreateUserSession, func(w *wire.PayloadWriter) {
		writeCreateSessionRequest(w, req)
	})
	if err != nil {
		return CreateSessionResult{}, err
	}
	r := wire.NewPayloadReader(resp)
	sessionID, err := r.String()
	if err != nil {
		return CreateSessionResult{}, err
	}
	token, err := r.String()
	if err != nil {
		return CreateSessionResult{}, err
	}
	return CreateSessionResult{SessionID: sessionID, Token: token}, nil
}

func (c *RemoteClient) DeleteUserSession(ctx context.Context, q session.Query) error {
	_, err := c.call(ctx, methodDeleteUserSession, func(w *wire.PayloadWriter) { writeQuery(w, q) })
	return err
}

func (c *RemoteClient) GetUserSession(ctx context.Context, q session.Query) (SessionView, error) {
	resp, err := c.call(ctx, methodGetUserSession, func(w *wire.PayloadWriter) { writeQuery(w, q) })
	if err != nil {
		return SessionView{}, err
	}
	return readSessionView(wire.NewPayloadReader(resp))
}

func (c *RemoteClient) EnqueueBanchoPackets(ctx context.Context, q session.Query, pkts []byte) error {
	_, err := c.call(ctx, methodEnqueueBanchoPackets, func(w *wire.PayloadWriter) {
		writeQuery(w, q)
		w.Raw(pkts)
	})
	return err
}

func (c *RemoteClient) BroadcastBanchoPackets(ctx context.Context, pkts []byte) error {
	_, err := c.call(ctx, methodBroadcastBanchoPackets, func(w *wire.PayloadWriter) { w.Raw(pkts) })
	return err
}

func (c *RemoteClient) DequeueBanchoPackets(ctx context.Context, q session.Query) ([]byte, error) {
	return c.call(ctx, methodDequeueBanchoPackets, func(w *wire.PayloadWriter) { writeQuery(w, q) })
}

func (c *RemoteClient) BatchSendPresences(ctx context.Context, queries []session.Query, to session.Query) error {
	_, err := c.call(ctx, methodBatchSendPresences, func(w *wire.PayloadWriter) {
		w.I16(int16(len(queries)))
		for _, q := range queries {
			writeQuery(w, q)
		}
		writeQuery(w, to)
	})
	return err
}

func (c *RemoteClient) SendAllPresences(ctx context.Context, to session.Query) error {
	_, err := c.call(ctx, methodSendAllPresences, func(w *wire.PayloadWriter) { writeQuery(w, to) })
	return err
}

func (c *RemoteClient) UpdateUserBanchoStatus(ctx context.Context, q session.Query, upd StatusUpdate) error {
	_, err := c.call(ctx, methodUpdateUserBanchoStatus, func(w *wire.PayloadWriter) {
		writeQuery(w, q)
		writeStatusUpdate(w, upd)
	})
	return err
}

func (c *RemoteClient) UpdatePresenceFilter(ctx context.Context, q session.Query, filter session.Filter) error {
	_, err := c.call(ctx, methodUpdatePresenceFilter, func(w *wire.PayloadWriter) {
		writeQuery(w, q)
		w.U8(uint8(filter))
	})
	return err
}

func (c *RemoteClient) CheckUserToken(ctx context.Context, token string, userID int32) error {
	_, err := c.call(ctx, methodCheckUserToken, func(w *wire.PayloadWriter) {
		w.String(token)
		w.I32(userID)
	})
	return err
}

func (c *RemoteClient) GeoLookup(ctx context.Context, ip string) (session.GeoRecord, error) {
	resp, err := c.call(ctx, methodGeoLookup, func(w *wire.PayloadWriter) { w.String(ip) })
	if err != nil {
		return session.GeoRecord{}, err
	}
	r := wire.NewPayloadReader(resp)
	var rec session.GeoRecord
	cc, err := r.U8()
	if err != nil {
		return rec, err
	}
	rec.CountryCode = cc
	if rec.Longitude, err = r.F32(); err != nil {
		return rec, err
	}
	if rec.Latitude, err = r.F32(); err != nil {
		return rec, err
	}
	return rec, nil
}

func (c *RemoteClient) PasswordVerify(ctx context.Context, hash, password string) error {
	_, err := c.call(ctx, methodPasswordVerify, func(w *wire.PayloadWriter) {
		w.String(hash)
		w.String(password)
	})
	return err
}
