package rpc

import (
	"errors"

	"github.com/opsu/bancho/internal/errs"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps the §7 error taxonomy onto grpc/codes, which already lines
// up with it one-for-one (§4.H, DOMAIN STACK). A nil error maps to OK; an
// error outside the taxonomy maps to Internal.
func toStatus(err error) *status.Status {
	if err == nil {
		return status.New(codes.OK, "")
	}
	switch {
	case errors.Is(err, errs.ErrInvalidArgument), errors.Is(err, errs.ErrInvalidPayload):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, errs.ErrSessionNotExists):
		return status.New(codes.NotFound, err.Error())
	case errors.Is(err, errs.ErrInvalidToken), errors.Is(err, errs.ErrLoginInvalidCreds):
		return status.New(codes.Unauthenticated, err.Error())
	case errors.Is(err, errs.ErrLoginUserBanned), errors.Is(err, errs.ErrLoginRefused):
		return status.New(codes.PermissionDenied, err.Error())
	case errors.Is(err, errs.ErrUnavailable):
		return status.New(codes.Unavailable, err.Error())
	case errors.Is(err, errs.ErrUnhandledPacket), errors.Is(err, errs.ErrFailedToProcessAll):
		return status.New(codes.Internal, err.Error())
	default:
		return status.New(codes.Internal, err.Error())
	}
}

// fromStatus recovers a taxonomy sentinel from a status received over the
// remote transport, so a Remote caller can still errors.Is against the same
// sentinels a Local call would return (§4.H).
func fromStatus(st *status.Status) error {
	if st == nil || st.Code() == codes.OK {
		return nil
	}
	switch st.Code() {
	case codes.InvalidArgument:
		return errs.ErrInvalidArgument
	case codes.NotFound:
		return errs.ErrSessionNotExists
	case codes.Unauthenticated:
		return errs.ErrInvalidToken
	case codes.PermissionDenied:
		return errs.ErrLoginRefused
	case codes.Unavailable:
		return errs.ErrUnavailable
	default:
		return errs.ErrInternal
	}
}
