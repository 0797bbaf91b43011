package sortid

import "testing"

func TestNewIsOrderedAndUnique(t *testing.T) {
	seen := make(map[ID]bool)
	prev := Zero
	for i := 0; i < 1000; i++ {
		id := New()
		if seen[id] {
			t.Fatalf("duplicate id minted: %s", id)
		}
		seen[id] = true
		if !prev.IsZero() && !prev.Less(id) {
			t.Fatalf("id %d not ordered after previous: %s then %s", i, prev, id)
		}
		prev = id
	}
}

func TestParseRoundTrip(t *testing.T) {
	id := New()
	got, err := Parse(id.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got != id {
		t.Fatalf("got %s, want %s", got, id)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse("not-hex!!"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
	if _, err := Parse("ab"); err == nil {
		t.Fatal("expected error for short input")
	}
}
