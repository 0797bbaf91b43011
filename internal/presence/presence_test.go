package presence

import (
	"testing"

	"github.com/opsu/bancho/internal/bancho/packets"
	"github.com/opsu/bancho/internal/session"
	"github.com/opsu/bancho/internal/sortid"
	"github.com/opsu/bancho/internal/wire"
)

func newUser(userID int32, username string) *session.Session {
	return session.New(sortid.New(), userID, username, "", session.PrivilegeNormal, 16)
}

func TestAllFilterExcludesSelf(t *testing.T) {
	alice := newUser(1000, "alice")
	alice.SetFilter(session.FilterAll)
	if Visible(alice, alice) {
		t.Fatal("sender must never be visible to itself under FilterAll")
	}
}

func TestNoneFilterNeverVisible(t *testing.T) {
	alice := newUser(1000, "alice")
	bob := newUser(2000, "bob")
	alice.SetFilter(session.FilterNone)
	if Visible(alice, bob) {
		t.Fatal("FilterNone must suppress all delivery")
	}
}

func TestFriendsFilterScenario(t *testing.T) {
	// §8 scenario 5: charlie filter=Friends, friends={alice}; send-all-presences
	// to charlie enqueues exactly one presence packet, alice's.
	alice := newUser(1000, "alice")
	bob := newUser(2000, "bob")
	charlie := newUser(3000, "charlie")
	charlie.SetFilter(session.FilterFriends)
	charlie.SetFriends([]int32{1000})

	all := []*session.Session{alice, bob, charlie}
	SendAllPresences(all, charlie)

	msgs := charlie.Queue.Drain()
	if len(msgs) != 1 {
		t.Fatalf("charlie received %d presence packets, want 1", len(msgs))
	}
	frames, err := wire.ReadAll(msgs[0])
	if err != nil || len(frames) != 1 {
		t.Fatalf("ReadAll: %v", err)
	}
	p, err := packets.DecodeUserPresence(frames[0].Payload)
	if err != nil {
		t.Fatalf("DecodeUserPresence: %v", err)
	}
	if p.UserID != 1000 {
		t.Fatalf("got presence for user %d, want alice (1000)", p.UserID)
	}
}

func TestBroadcastStatsNeverEchoesToAllRecipient(t *testing.T) {
	alice := newUser(1000, "alice")
	bob := newUser(2000, "bob")
	alice.SetFilter(session.FilterAll)
	bob.SetFilter(session.FilterAll)
	all := []*session.Session{alice, bob}

	BroadcastStats(all, alice)

	if len(alice.Queue.Drain()) != 0 {
		t.Fatal("alice (All filter) received her own stats packet")
	}
	if len(bob.Queue.Drain()) != 1 {
		t.Fatal("bob did not receive alice's stats packet")
	}
}

func TestBatchSendStatsRespectsFilter(t *testing.T) {
	alice := newUser(1000, "alice")
	bob := newUser(2000, "bob")
	charlie := newUser(3000, "charlie")
	charlie.SetFilter(session.FilterNone)

	BatchSendStats([]*session.Session{alice, bob}, charlie)
	if len(charlie.Queue.Drain()) != 0 {
		t.Fatal("charlie with FilterNone received stats packets")
	}
}
