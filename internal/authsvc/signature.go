package authsvc

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opsu/bancho/internal/sortid"
)

// SignatureService signs and verifies the login token (§3: session_id || "."
// || signature(session_id || user_id)). It deliberately does not build a
// full JWT — the wire contract is the flat "<id>.<sig>" bearer token spec.md
// §6 specifies — but reuses golang-jwt/jwt's HMAC signing primitive rather
// than hand-rolling HMAC, since that is the signing library the rest of the
// retrieval pack already depends on.
type SignatureService struct {
	key    []byte
	method *jwt.SigningMethodHMAC
}

// NewSignatureService returns a signer keyed by key. The key is an opaque
// secret out of this package's scope to generate or rotate.
func NewSignatureService(key []byte) *SignatureService {
	return &SignatureService{key: key, method: jwt.SigningMethodHS256}
}

func signingString(id sortid.ID, userID int32) string {
	return id.String() + "." + strconv.FormatInt(int64(userID), 10)
}

// Sign returns the bearer token "<session_id>.<signature>" for a session
// with the given id and user id.
func (s *SignatureService) Sign(id sortid.ID, userID int32) (string, error) {
	sig, err := s.method.Sign(signingString(id, userID), s.key)
	if err != nil {
		return "", fmt.Errorf("authsvc: sign token: %w", err)
	}
	return id.String() + "." + base64.RawURLEncoding.EncodeToString(sig), nil
}

// ErrInvalidToken is returned by Verify when a token's signature does not
// match, or its shape is not "<session_id>.<signature>".
var ErrInvalidToken = fmt.Errorf("authsvc: invalid token")

// Verify checks token against userID (resolved by the caller from the
// session id embedded in the token) and returns the embedded session id on
// success.
func (s *SignatureService) Verify(token string, userID int32) (sortid.ID, error) {
	idPart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return sortid.ID{}, ErrInvalidToken
	}
	id, err := sortid.Parse(idPart)
	if err != nil {
		return sortid.ID{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return sortid.ID{}, ErrInvalidToken
	}
	if err := s.method.Verify(signingString(id, userID), sig, s.key); err != nil {
		return sortid.ID{}, ErrInvalidToken
	}
	return id, nil
}
