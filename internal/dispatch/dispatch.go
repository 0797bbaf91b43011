// Package dispatch implements the packet dispatcher (component F): a table
// from packet kind to handler, with batch processing that counts per-packet
// failures without aborting the batch.
package dispatch

import (
	"fmt"
	"log/slog"

	"github.com/opsu/bancho/internal/chat"
	"github.com/opsu/bancho/internal/errs"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
)

// Services bundles the components a handler may mutate or query. Handlers
// never hold a store write lock across a suspension point (§5); all of
// these collaborators manage their own internal locking.
type Services struct {
	Sessions *session.Store
	Channels *chat.Registry
	Policy   chat.MessagePolicy
	Log      *slog.Logger
	// Logout runs the session-lifecycle logout side effects for the
	// user-logout packet kind; wired in by the caller assembling Services to
	// avoid a dependency from dispatch onto the lifecycle package.
	Logout LogoutFunc
	// Observe, when set, sees every packet DispatchBatch processes together
	// with its handler outcome (nil on success). Wired to metrics by the
	// daemon.
	Observe func(kind byte, err error)
}

// HandleResult carries the outbound packet bytes a handler produced, already
// wire-framed and ready to concatenate into the HTTP response.
type HandleResult struct {
	Packets []byte
}

// HandlerFunc processes one inbound packet for the session identified by
// userID. payload is the packet's undecoded body; handlers build a
// wire.PayloadReader themselves so they can report InvalidPayload precisely.
type HandlerFunc func(userID int32, payload []byte, svc *Services) (HandleResult, error)

// Dispatcher routes packet kinds to their handlers (component F).
type Dispatcher struct {
	handlers map[byte]HandlerFunc
}

// New returns an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[byte]HandlerFunc)}
}

// Register binds kind to h, replacing any existing handler for kind.
func (d *Dispatcher) Register(kind byte, h HandlerFunc) {
	d.handlers[kind] = h
}

// Dispatch runs the single handler bound to p.Kind. An unregistered kind
// returns ErrUnhandledPacket; this is counted by DispatchBatch but never
// fatal on its own (§4.F).
func (d *Dispatcher) Dispatch(userID int32, p wire.Packet, svc *Services) (HandleResult, error) {
	h, ok := d.handlers[p.Kind]
	if !ok {
		return HandleResult{}, fmt.Errorf("dispatch: kind %d: %w", p.Kind, errs.ErrUnhandledPacket)
	}
	return h(userID, p.Payload, svc)
}

// BatchResult summarizes a DispatchBatch run.
type BatchResult struct {
	Outbound  []byte
	Succeeded int
	Failed    int
}

// DispatchBatch processes packets sequentially; per-packet errors are
// logged and counted but do not abort the batch. If every packet in a
// non-empty batch fails, the batch itself fails with ErrFailedToProcessAll.
// Outbound bytes are the concatenation of each successful handler's output,
// in packet order (§4.F, §5).
func (d *Dispatcher) DispatchBatch(userID int32, pkts []wire.Packet, svc *Services) (BatchResult, error) {
	var res BatchResult
	for _, p := range pkts {
		out, err := d.Dispatch(userID, p, svc)
		if svc.Observe != nil {
			svc.Observe(p.Kind, err)
		}
		if err != nil {
			res.Failed++
			if svc.Log != nil {
				svc.Log.Warn("packet handler failed", "user_id", userID, "kind", p.Kind, "error", err)
			}
			continue
		}
		res.Succeeded++
		res.Outbound = append(res.Outbound, out.Packets...)
	}
	if len(pkts) > 0 && res.Succeeded == 0 {
		return res, errs.ErrFailedToProcessAll
	}
	return res, nil
}
