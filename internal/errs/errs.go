// Package errs carries the shared error taxonomy (§7) used across the core,
// expressed as sentinel errors in the style of the teacher's store package
// (ErrBlobNotFound, checked with errors.Is). Components wrap these with
// fmt.Errorf("...: %w", ...) for context.
package errs

import "errors"

var (
	ErrInvalidArgument    = errors.New("bancho: invalid argument")
	ErrSessionNotExists   = errors.New("bancho: session does not exist")
	ErrInvalidToken       = errors.New("bancho: invalid token")
	ErrLoginInvalidCreds  = errors.New("bancho: invalid credentials")
	ErrLoginUserBanned    = errors.New("bancho: user banned")
	ErrLoginRefused       = errors.New("bancho: login refused")
	ErrUnhandledPacket    = errors.New("bancho: unhandled packet kind")
	ErrInvalidPayload     = errors.New("bancho: invalid packet payload")
	ErrFailedToProcessAll = errors.New("bancho: every packet in the batch failed")
	ErrUnavailable        = errors.New("bancho: service unavailable")
	ErrInternal           = errors.New("bancho: internal error")
)
