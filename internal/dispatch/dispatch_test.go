package dispatch

import (
	"errors"
	"testing"

	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/chat"
	"github.com/opsu/bancho/internal/errs"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
	"github.com/opsu/bancho/internal/wire"
)

func newTestServices() (*Services, *session.Session) {
	store := session.NewStore()
	s := session.New(sortid.New(), 1000, "alice", "", session.PrivilegeNormal, 16)
	store.Create(s)
	return &Services{Sessions: store, Channels: chat.NewRegistry()}, s
}

func TestDispatchUnhandledKind(t *testing.T) {
	d := New()
	svc, _ := newTestServices()
	_, err := d.Dispatch(1000, wire.Packet{Kind: 250}, svc)
	if !errors.Is(err, errs.ErrUnhandledPacket) {
		t.Fatalf("got %v, want ErrUnhandledPacket", err)
	}
}

func TestDispatchPing(t *testing.T) {
	d := New()
	Register(d)
	svc, _ := newTestServices()
	res, err := d.Dispatch(1000, wire.Packet{Kind: packets.KindPing}, svc)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(res.Packets) != 0 {
		t.Fatalf("ping produced outbound bytes: %v", res.Packets)
	}
}

func TestBatchCountsFailuresWithoutAborting(t *testing.T) {
	d := New()
	Register(d)
	svc, _ := newTestServices()

	pkts := []wire.Packet{
		{Kind: packets.KindPing},
		{Kind: 250}, // unhandled
		{Kind: packets.KindPing},
	}
	res, err := d.DispatchBatch(1000, pkts, svc)
	if err != nil {
		t.Fatalf("DispatchBatch: %v", err)
	}
	if res.Succeeded != 2 || res.Failed != 1 {
		t.Fatalf("res = %+v, want 2 succeeded, 1 failed", res)
	}
}

func TestBatchFailsWhenAllFail(t *testing.T) {
	d := New()
	Register(d)
	svc, _ := newTestServices()

	pkts := []wire.Packet{{Kind: 250}, {Kind: 251}}
	res, err := d.DispatchBatch(1000, pkts, svc)
	if !errors.Is(err, errs.ErrFailedToProcessAll) {
		t.Fatalf("got %v, want ErrFailedToProcessAll", err)
	}
	if res.Succeeded != 0 || res.Failed != 2 {
		t.Fatalf("res = %+v", res)
	}
}

func TestBatchEmptyNeverFails(t *testing.T) {
	d := New()
	Register(d)
	svc, _ := newTestServices()
	res, err := d.DispatchBatch(1000, nil, svc)
	if err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if res.Succeeded != 0 || res.Failed != 0 {
		t.Fatalf("res = %+v", res)
	}
}

func TestHandleChannelJoinAndPart(t *testing.T) {
	d := New()
	Register(d)
	svc, _ := newTestServices()
	svc.Channels.Create(chat.NewChannel("#osu", "general", 0, 0, false, true))

	joinPayload := wire.NewPayloadWriter().String("#osu").Bytes()
	if _, err := d.Dispatch(1000, wire.Packet{Kind: packets.KindChannelJoin, Payload: joinPayload}, svc); err != nil {
		t.Fatalf("join dispatch: %v", err)
	}
	ch, ok := svc.Channels.Get("#osu")
	if !ok || !ch.IsMember(1000) {
		t.Fatalf("channel join did not take effect")
	}

	partPayload := wire.NewPayloadWriter().String("#osu").Bytes()
	if _, err := d.Dispatch(1000, wire.Packet{Kind: packets.KindChannelPart, Payload: partPayload}, svc); err != nil {
		t.Fatalf("part dispatch: %v", err)
	}
	if _, ok := svc.Channels.Get("#osu"); ok {
		t.Fatalf("auto-close channel survived empty part")
	}
}

func TestHandleChangeActionBroadcastsStats(t *testing.T) {
	d := New()
	Register(d)
	svc, alice := newTestServices()
	bob := session.New(sortid.New(), 2000, "bob", "", session.PrivilegeNormal, 16)
	svc.Sessions.Create(bob)
	alice.SetFilter(session.FilterAll)
	bob.SetFilter(session.FilterAll)

	payload := wire.NewPayloadWriter().
		U8(2).String("playing").String("abc123").U32(16).U8(0).I32(555).Bytes()
	if _, err := d.Dispatch(1000, wire.Packet{Kind: packets.KindChangeAction, Payload: payload}, svc); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(bob.Queue.Drain()) != 1 {
		t.Fatal("bob did not receive alice's stats broadcast")
	}
	if len(alice.Queue.Drain()) != 0 {
		t.Fatal("alice received her own stats broadcast")
	}
	if alice.StatusText() != "playing" {
		t.Fatalf("StatusText = %q", alice.StatusText())
	}
}

func TestHandleUserLogoutRequiresWiring(t *testing.T) {
	d := New()
	Register(d)
	svc, _ := newTestServices()
	_, err := d.Dispatch(1000, wire.Packet{Kind: packets.KindLogout}, svc)
	if !errors.Is(err, errs.ErrInternal) {
		t.Fatalf("got %v, want ErrInternal when Logout unwired", err)
	}

	called := false
	svc.Logout = func(userID int32) error {
		called = true
		if userID != 1000 {
			t.Fatalf("userID = %d, want 1000", userID)
		}
		return nil
	}
	if _, err := d.Dispatch(1000, wire.Packet{Kind: packets.KindLogout}, svc); err != nil {
		t.Fatalf("dispatch after wiring: %v", err)
	}
	if !called {
		t.Fatal("Logout was not invoked")
	}
}
