package session

import (
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/opsu/bancho/internal/sortid"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestSession(userID int32, username string) *Session {
	return New(sortid.New(), userID, username, "", PrivilegeNormal, 16)
}

func TestFourIndexConsistency(t *testing.T) {
	st := NewStore()
	s := New(sortid.New(), 1000, "alice", "ありす", PrivilegeNormal, 16)
	st.Create(s)

	byID, ok := st.Get(BySessionID(s.ID))
	if !ok || byID != s {
		t.Fatalf("BySessionID mismatch")
	}
	byUser, ok := st.Get(ByUserID(1000))
	if !ok || byUser != s {
		t.Fatalf("ByUserID mismatch")
	}
	byName, ok := st.Get(ByUsername("alice"))
	if !ok || byName != s {
		t.Fatalf("ByUsername mismatch")
	}
	byUnicode, ok := st.Get(ByUsernameUnicode("ありす"))
	if !ok || byUnicode != s {
		t.Fatalf("ByUsernameUnicode mismatch")
	}
}

func TestCreateDisplacesSameUser(t *testing.T) {
	st := NewStore()
	first := newTestSession(1000, "alice")
	st.Create(first)
	if st.Len() != 1 {
		t.Fatalf("Len = %d, want 1", st.Len())
	}

	second := newTestSession(1000, "alice")
	evicted := st.Create(second)
	if evicted != first {
		t.Fatalf("evicted = %v, want first session", evicted)
	}
	if st.Len() != 1 {
		t.Fatalf("Len after displacement = %d, want 1", st.Len())
	}

	got, ok := st.Get(ByUserID(1000))
	if !ok || got != second {
		t.Fatalf("lookup after displacement returned stale session")
	}
	if _, ok := st.Get(BySessionID(first.ID)); ok {
		t.Fatalf("old session id still resolves after displacement")
	}
}

func TestDeleteRemovesFromAllIndices(t *testing.T) {
	st := NewStore()
	s := New(sortid.New(), 1000, "alice", "ありす", PrivilegeNormal, 16)
	st.Create(s)

	removed, ok := st.Delete(ByUserID(1000))
	if !ok || removed != s {
		t.Fatalf("Delete returned %v, %v", removed, ok)
	}
	for _, q := range []Query{BySessionID(s.ID), ByUserID(1000), ByUsername("alice"), ByUsernameUnicode("ありす")} {
		if st.Exists(q) {
			t.Fatalf("query %+v still resolves after delete", q)
		}
	}
	if st.Len() != 0 {
		t.Fatalf("Len = %d, want 0", st.Len())
	}
}

func TestDeleteMissReturnsFalse(t *testing.T) {
	st := NewStore()
	if _, ok := st.Delete(ByUserID(404)); ok {
		t.Fatal("Delete on empty store returned ok")
	}
}

func TestIterStableOrder(t *testing.T) {
	st := NewStore()
	for i := int32(0); i < 20; i++ {
		st.Create(newTestSession(i, "user"))
	}
	first := st.Iter()
	second := st.Iter()
	if len(first) != 20 || len(second) != 20 {
		t.Fatalf("unexpected lengths %d %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("iteration order not stable at index %d", i)
		}
		if i > 0 && !first[i-1].ID.Less(first[i].ID) {
			t.Fatalf("iteration not sorted by session id at index %d", i)
		}
	}
}

func TestConcurrentCreateDelete(t *testing.T) {
	st := NewStore()
	var wg sync.WaitGroup
	for i := int32(0); i < 50; i++ {
		wg.Add(1)
		go func(i int32) {
			defer wg.Done()
			s := newTestSession(i, "user")
			st.Create(s)
			st.Get(ByUserID(i))
			st.Delete(ByUserID(i))
		}(i)
	}
	wg.Wait()
	if st.Len() != 0 {
		t.Fatalf("Len = %d, want 0", st.Len())
	}
}
