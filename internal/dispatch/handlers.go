package dispatch

import (
	"errors"
	"fmt"

	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/chat"
	"github.com/opsu/bancho/internal/errs"
	"github.com/opsu/bancho/internal/presence"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/wire"
)

// LogoutFunc performs the session-lifecycle logout side effects (store
// removal, channel departure, broadcast); wired in by the caller that
// constructs Services, to avoid a dependency from dispatch onto lifecycle.
type LogoutFunc func(userID int32) error

func invalidPayload(kind byte, err error) error {
	return fmt.Errorf("dispatch: kind %d: %w: %v", kind, errs.ErrInvalidPayload, err)
}

func sessionMissing(userID int32) error {
	return fmt.Errorf("dispatch: user %d: %w", userID, errs.ErrSessionNotExists)
}

func self(svc *Services, userID int32) (*session.Session, bool) {
	return svc.Sessions.Get(session.ByUserID(userID))
}

// HandlePing acknowledges liveness; no state change, no outbound packets.
func HandlePing(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	return HandleResult{}, nil
}

// HandleSendPublicMessage decodes (body, target) and relays through the
// channel registry.
func HandleSendPublicMessage(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	target, body, err := packets.DecodeSendMessageBody(payload)
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindSendPublicMessage, err)
	}
	if err := svc.Channels.PublicMessage(target, s, body, svc.Policy); err != nil {
		return HandleResult{}, fmt.Errorf("dispatch: public message to %q: %w", target, err)
	}
	return HandleResult{}, nil
}

// HandleSendPrivateMessage decodes (body, target) and relays through the
// private-message path, including the silent block-notification case.
func HandleSendPrivateMessage(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	target, body, err := packets.DecodeSendMessageBody(payload)
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindSendPrivateMessage, err)
	}
	if err := svc.Channels.PrivateMessage(svc.Sessions, s, target, body, svc.Policy); err != nil {
		// Blocked is a silent, expected outcome (§4.D): the notification is
		// already enqueued to the sender, so this is not a handler failure.
		if errors.Is(err, chat.ErrBlocked) {
			return HandleResult{}, nil
		}
		return HandleResult{}, fmt.Errorf("dispatch: private message to %q: %w", target, err)
	}
	return HandleResult{}, nil
}

func decodeChannelName(payload []byte) (string, error) {
	r := wire.NewPayloadReader(payload)
	return r.String()
}

// HandleChannelJoin decodes a channel name and joins the caller to it.
func HandleChannelJoin(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	name, err := decodeChannelName(payload)
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChannelJoin, err)
	}
	if err := svc.Channels.Join(name, s); err != nil {
		return HandleResult{}, fmt.Errorf("dispatch: join %q: %w", name, err)
	}
	return HandleResult{}, nil
}

// HandleChannelPart decodes a channel name and removes the caller from it.
func HandleChannelPart(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	name, err := decodeChannelName(payload)
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChannelPart, err)
	}
	if err := svc.Channels.Leave(name, s); err != nil {
		return HandleResult{}, fmt.Errorf("dispatch: part %q: %w", name, err)
	}
	return HandleResult{}, nil
}

// HandleRequestStatusUpdate re-broadcasts the caller's own current stats to
// every session satisfying their filter.
func HandleRequestStatusUpdate(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	presence.BroadcastStats(svc.Sessions.Iter(), s)
	return HandleResult{}, nil
}

// HandlePresenceRequestAll emits one presence packet per online session
// (filtered by the caller's own presence filter) back to the caller.
func HandlePresenceRequestAll(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	presence.SendAllPresences(svc.Sessions.Iter(), s)
	return HandleResult{}, nil
}

func resolveUsers(svc *Services, ids []int32) []*session.Session {
	out := make([]*session.Session, 0, len(ids))
	for _, id := range ids {
		if u, ok := svc.Sessions.Get(session.ByUserID(id)); ok {
			out = append(out, u)
		}
	}
	return out
}

// HandleUserStatsRequest decodes a list of target user ids and delivers
// their stats packets to the caller (subject to the caller's filter).
func HandleUserStatsRequest(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	r := wire.NewPayloadReader(payload)
	ids, err := r.I32List()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindUserStatsRequest, err)
	}
	presence.BatchSendStats(resolveUsers(svc, ids), s)
	return HandleResult{}, nil
}

// HandlePresenceRequest is the presence analogue of HandleUserStatsRequest.
func HandlePresenceRequest(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	r := wire.NewPayloadReader(payload)
	ids, err := r.I32List()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindPresenceRequest, err)
	}
	presence.BatchSendPresences(resolveUsers(svc, ids), s)
	return HandleResult{}, nil
}

// HandleChangeAction decodes the caller's new status and broadcasts a fresh
// stats packet to every visible recipient (§4.E: fan-out "on state change").
func HandleChangeAction(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	r := wire.NewPayloadReader(payload)
	action, err := r.U8()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChangeAction, err)
	}
	statusText, err := r.String()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChangeAction, err)
	}
	beatmapMD5, err := r.String()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChangeAction, err)
	}
	mods, err := r.U32()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChangeAction, err)
	}
	mode, err := r.U8()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChangeAction, err)
	}
	beatmapID, err := r.I32()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindChangeAction, err)
	}

	s.SetAction(session.Action(action))
	s.SetStatusText(statusText)
	s.SetBeatmapMD5(beatmapMD5)
	s.SetMods(mods)
	s.SetMode(mode)
	s.SetBeatmapID(beatmapID)

	presence.BroadcastStats(svc.Sessions.Iter(), s)
	return HandleResult{}, nil
}

// HandleReceiveUpdates decodes a new presence filter value for the caller.
func HandleReceiveUpdates(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	r := wire.NewPayloadReader(payload)
	v, err := r.I32()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindReceiveUpdates, err)
	}
	s.SetFilter(session.Filter(v))
	return HandleResult{}, nil
}

// HandleToggleBlockNonFriendDMs flips the caller's only-friend-DMs flag.
func HandleToggleBlockNonFriendDMs(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	s.SetOnlyFriendDMs(!s.OnlyFriendDMs())
	return HandleResult{}, nil
}

// HandleUserLogout delegates to the injected lifecycle logout side effects.
func HandleUserLogout(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	if svc.Logout == nil {
		return HandleResult{}, fmt.Errorf("dispatch: %w: no logout handler wired", errs.ErrInternal)
	}
	if err := svc.Logout(userID); err != nil {
		return HandleResult{}, fmt.Errorf("dispatch: logout user %d: %w", userID, err)
	}
	return HandleResult{}, nil
}

// HandleSpectateStart records the caller (userID) as spectating targetID's session.
func HandleSpectateStart(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	r := wire.NewPayloadReader(payload)
	targetID, err := r.I32()
	if err != nil {
		return HandleResult{}, invalidPayload(packets.KindSpectateStart, err)
	}
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	target, ok := svc.Sessions.Get(session.ByUserID(targetID))
	if !ok {
		return HandleResult{}, fmt.Errorf("dispatch: spectate target %d: %w", targetID, errs.ErrSessionNotExists)
	}
	s.SetSpectating(targetID)
	target.AddSpectator(userID)

	w := wire.NewWriter()
	w.WritePacket(packets.KindSpectatorJoined, wire.NewPayloadWriter().I32(userID).Bytes())
	_ = target.Queue.Push(w.Bytes())
	return HandleResult{}, nil
}

// HandleSpectateStop clears the caller's spectating target and notifies it.
func HandleSpectateStop(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	targetID := s.Spectating()
	s.SetSpectating(0)
	if targetID == 0 {
		return HandleResult{}, nil
	}
	if target, ok := svc.Sessions.Get(session.ByUserID(targetID)); ok {
		target.RemoveSpectator(userID)
		w := wire.NewWriter()
		w.WritePacket(packets.KindSpectatorLeft, wire.NewPayloadWriter().I32(userID).Bytes())
		_ = target.Queue.Push(w.Bytes())
	}
	return HandleResult{}, nil
}

// HandleSpectateCant relays a "can't spectate" notice to the caller's host.
func HandleSpectateCant(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	targetID := s.Spectating()
	if targetID == 0 {
		return HandleResult{}, nil
	}
	if target, ok := svc.Sessions.Get(session.ByUserID(targetID)); ok {
		w := wire.NewWriter()
		w.WritePacket(packets.KindSpectatorCantSpectate, wire.NewPayloadWriter().I32(userID).Bytes())
		_ = target.Queue.Push(w.Bytes())
	}
	return HandleResult{}, nil
}

// HandleSpectateFrames relays raw replay frame bytes to every spectator of
// the caller, verbatim.
func HandleSpectateFrames(userID int32, payload []byte, svc *Services) (HandleResult, error) {
	s, ok := self(svc, userID)
	if !ok {
		return HandleResult{}, sessionMissing(userID)
	}
	w := wire.NewWriter()
	w.WritePacket(packets.KindSpectateFramesOut, payload)
	framed := w.Bytes()
	for _, specID := range s.Spectators() {
		if spec, ok := svc.Sessions.Get(session.ByUserID(specID)); ok {
			_ = spec.Queue.Push(framed)
		}
	}
	return HandleResult{}, nil
}

// Register binds every dispatched kind (§4.F) to its handler.
func Register(d *Dispatcher) {
	d.Register(packets.KindPing, HandlePing)
	d.Register(packets.KindSendPublicMessage, HandleSendPublicMessage)
	d.Register(packets.KindSendPrivateMessage, HandleSendPrivateMessage)
	d.Register(packets.KindChannelJoin, HandleChannelJoin)
	d.Register(packets.KindChannelPart, HandleChannelPart)
	d.Register(packets.KindRequestStatusUpdate, HandleRequestStatusUpdate)
	d.Register(packets.KindPresenceRequestAll, HandlePresenceRequestAll)
	d.Register(packets.KindUserStatsRequest, HandleUserStatsRequest)
	d.Register(packets.KindChangeAction, HandleChangeAction)
	d.Register(packets.KindReceiveUpdates, HandleReceiveUpdates)
	d.Register(packets.KindToggleBlockNonFriendDMs, HandleToggleBlockNonFriendDMs)
	d.Register(packets.KindLogout, HandleUserLogout)
	d.Register(packets.KindPresenceRequest, HandlePresenceRequest)
	d.Register(packets.KindSpectateStart, HandleSpectateStart)
	d.Register(packets.KindSpectateStop, HandleSpectateStop)
	d.Register(packets.KindSpectateCant, HandleSpectateCant)
	d.Register(packets.KindSpectateFrames, HandleSpectateFrames)
}
