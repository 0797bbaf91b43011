package rpc

import (
	"context"

	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

const rpcServiceName = "/bancho.rpc.RPC"

// method names multiplexed over the single "Call" RPC (§4.H).
const (
	methodLogin                 = "Login"
	methodProcessPacket          = "ProcessPacket"
	methodBatchProcessPackets    = "BatchProcessPackets"
	methodCreateUserSession      = "CreateUserSession"
	methodDeleteUserSession      = "DeleteUserSession"
	methodGetUserSession         = "GetUserSession"
	methodEnqueueBanchoPackets   = "EnqueueBanchoPackets"
	methodBroadcastBanchoPackets = "BroadcastBanchoPackets"
	methodDequeueBanchoPackets   = "DequeueBanchoPackets"
	methodBatchSendPresences     = "BatchSendPresences"
	methodSendAllPresences       = "SendAllPresences"
	methodUpdateUserBanchoStatus = "UpdateUserBanchoStatus"
	methodUpdatePresenceFilter   = "UpdatePresenceFilter"
	methodCheckUserToken         = "CheckUserToken"
	methodGeoLookup              = "GeoLookup"
	methodPasswordVerify         = "PasswordVerify"
)

// rpcServerIface is the narrow interface grpc.ServiceDesc's HandlerType
// check requires remoteServer to satisfy.
type rpcServerIface interface {
	Call(ctx context.Context, in *rawMessage) (*rawMessage, error)
}

// remoteServer adapts an in-process Service (ordinarily a *Local) to the
// generic multiplexed "Call" RPC: it decodes the method-name envelope,
// dispatches to the matching Service method, and re-encodes the result with
// a status prefix (§4.H).
type remoteServer struct {
	svc Service
}

// NewServer returns a grpc.Server with the RPC service registered against
// svc, using the raw codec so no protobuf code generation is required.
func NewServer(svc Service, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.ForceServerCodec(rawCodec{})}, opts...)
	s := grpc.NewServer(opts...)
	s.RegisterService(&serviceDesc, &remoteServer{svc: svc})
	return s
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "bancho.rpc.RPC",
	HandlerType: (*rpcServerIface)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Call",
			Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
				in := new(rawMessage)
				if err := dec(in); err != nil {
					return nil, err
				}
				if interceptor == nil {
					return srv.(rpcServerIface).Call(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: rpcServiceName + "/Call"}
				handler := func(ctx context.Context, req any) (any, error) {
					return srv.(rpcServerIface).Call(ctx, req.(*rawMessage))
				}
				return interceptor(ctx, in, info, handler)
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bancho/rpc.proto",
}

// clientIP recovers the x-real-ip metadata field a Remote client attaches
// to outgoing calls (§4.H).
func clientIP(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	vals := md.Get("x-real-ip")
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (rs *remoteServer) Call(ctx context.Context, in *rawMessage) (*rawMessage, error) {
	r := wire.NewPayloadReader([]byte(*in))
	method, err := r.String()
	if err != nil {
		return encodeResponse(nil, errInvalidEnvelope), nil
	}
	payload, callErr := rs.dispatch(ctx, method, r.Remaining())
	return encodeResponse(payload, callErr), nil
}

func (rs *remoteServer) dispatch(ctx context.Context, method string, args []byte) ([]byte, error) {
	r := wire.NewPayloadReader(args)
	switch method {
	case methodLogin:
		req, err := readLoginRequest(r)
		if err != nil {
			return nil, err
		}
		res, err := rs.svc.Login(ctx, clientIP(ctx), req)
		if err != nil {
			return nil, err
		}
		w := wire.NewPayloadWriter()
		writeLoginResult(w, res)
		return w.Bytes(), nil

	case methodProcessPacket:
		userID, err := r.I32()
		if err != nil {
			return nil, err
		}
		kind, err := r.U8()
		if err != nil {
			return nil, err
		}
		res, err := rs.svc.ProcessPacket(ctx, userID, kind, r.Remaining())
		if err != nil {
			return nil, err
		}
		w := wire.NewPayloadWriter()
		writeHandleCompleted(w, res)
		return w.Bytes(), nil

	case methodBatchProcessPackets:
		userID, err := r.I32()
		if err != nil {
			return nil, err
		}
		pkts, err := readPacketList(r)
		if err != nil {
			return nil, err
		}
		res, err := rs.svc.BatchProcessPackets(ctx, userID, pkts)
		if err != nil {
			return nil, err
		}
		w := wire.NewPayloadWriter()
		writeHandleCompleted(w, res)
		return w.Bytes(), nil

	case methodCreateUserSession:
		req, err := readCreateSessionRequest(r)
		if err != nil {
			return nil, err
		}
		res, err := rs.svc.CreateUserSession(ctx, req)
		if err != nil {
			return nil, err
		}
		w := wire.NewPayloadWriter()
		w.String(res.SessionID)
		w.String(res.Token)
		return w.Bytes(), nil

	case methodDeleteUserSession:
		q, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.DeleteUserSession(ctx, q)

	case methodGetUserSession:
		q, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		view, err := rs.svc.GetUserSession(ctx, q)
		if err != nil {
			return nil, err
		}
		w := wire.NewPayloadWriter()
		writeSessionView(w, view)
		return w.Bytes(), nil

	case methodEnqueueBanchoPackets:
		q, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.EnqueueBanchoPackets(ctx, q, r.Remaining())

	case methodBroadcastBanchoPackets:
		return nil, rs.svc.BroadcastBanchoPackets(ctx, r.Remaining())

	case methodDequeueBanchoPackets:
		q, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		return rs.svc.DequeueBanchoPackets(ctx, q)

	case methodBatchSendPresences:
		n, err := r.I16()
		if err != nil {
			return nil, err
		}
		qs := make([]session.Query, 0, n)
		for i := int16(0); i < n; i++ {
			q, err := readQuery(r)
			if err != nil {
				return nil, err
			}
			qs = append(qs, q)
		}
		to, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.BatchSendPresences(ctx, qs, to)

	case methodSendAllPresences:
		to, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.SendAllPresences(ctx, to)

	case methodUpdateUserBanchoStatus:
		q, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		upd, err := readStatusUpdate(r)
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.UpdateUserBanchoStatus(ctx, q, upd)

	case methodUpdatePresenceFilter:
		q, err := readQuery(r)
		if err != nil {
			return nil, err
		}
		filter, err := r.U8()
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.UpdatePresenceFilter(ctx, q, session.Filter(filter))

	case methodCheckUserToken:
		token, err := r.String()
		if err != nil {
			return nil, err
		}
		userID, err := r.I32()
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.CheckUserToken(ctx, token, userID)

	case methodGeoLookup:
		ip, err := r.String()
		if err != nil {
			return nil, err
		}
		rec, err := rs.svc.GeoLookup(ctx, ip)
		if err != nil {
			return nil, err
		}
		w := wire.NewPayloadWriter()
		w.U8(rec.CountryCode)
		w.F32(rec.Longitude)
		w.F32(rec.Latitude)
		return w.Bytes(), nil

	case methodPasswordVerify:
		hash, err := r.String()
		if err != nil {
			return nil, err
		}
		password, err := r.String()
		if err != nil {
			return nil, err
		}
		return nil, rs.svc.PasswordVerify(ctx, hash, password)

	default:
		return nil, errUnknownMethod
	}
}
