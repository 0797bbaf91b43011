package rpc

import (
	"errors"
	"fmt"

	"github.com/opsu/bancho/internal/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	errInvalidEnvelope = errors.New("rpc: invalid envelope")
	errUnknownMethod   = errors.New("rpc: unknown method")
)

// encodeResponse frames a dispatch result as status-code + message +
// payload, the response-side half of the envelope described in shim.go.
func encodeResponse(payload []byte, err error) *rawMessage {
	st := toStatus(err)
	w := wire.NewPayloadWriter()
	w.U8(uint8(st.Code()))
	w.String(st.Message())
	w.Raw(payload)
	m := rawMessage(w.Bytes())
	return &m
}

// decodeResponse reverses encodeResponse: on a non-OK status it returns the
// matching §7 taxonomy sentinel, wrapped with the original message.
func decodeResponse(data []byte) ([]byte, error) {
	r := wire.NewPayloadReader(data)
	code, err := r.U8()
	if err != nil {
		return nil, err
	}
	msg, err := r.String()
	if err != nil {
		return nil, err
	}
	if codes.Code(code) == codes.OK {
		return r.Remaining(), nil
	}
	sentinel := fromStatus(status.New(codes.Code(code), msg))
	return nil, fmt.Errorf("rpc: %s: %w", msg, sentinel)
}
