package authsvc

import (
	"errors"
	"testing"

	"github.com/opsu/bancho/internal/sortid"
)

func TestBcryptVerifierRoundTrip(t *testing.T) {
	v := NewBcryptVerifier()
	hash, err := v.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if err := v.Verify(hash, "hunter2"); err != nil {
		t.Errorf("Verify(correct password): %v", err)
	}
	if err := v.Verify(hash, "wrong"); !errors.Is(err, ErrMismatch) {
		t.Errorf("Verify(wrong password) = %v, want ErrMismatch", err)
	}
}

func TestSignatureServiceRoundTrip(t *testing.T) {
	s := NewSignatureService([]byte("test-signing-key"))
	id := sortid.New()

	token, err := s.Sign(id, 42)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	got, err := s.Verify(token, 42)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if got != id {
		t.Errorf("Verify returned id %v, want %v", got, id)
	}
}

func TestSignatureServiceRejectsWrongUserID(t *testing.T) {
	s := NewSignatureService([]byte("test-signing-key"))
	id := sortid.New()
	token, err := s.Sign(id, 42)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if _, err := s.Verify(token, 99); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify with wrong user id = %v, want ErrInvalidToken", err)
	}
}

func TestSignatureServiceRejectsForgedID(t *testing.T) {
	s := NewSignatureService([]byte("test-signing-key"))
	a := sortid.New()
	b := sortid.New()

	tokenA, err := s.Sign(a, 1)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	_, sig, _ := cutToken(tokenA)
	forged := b.String() + "." + sig
	if _, err := s.Verify(forged, 1); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Verify(forged token) = %v, want ErrInvalidToken", err)
	}
}

func cutToken(token string) (string, string, bool) {
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			return token[:i], token[i+1:], true
		}
	}
	return token, "", false
}
