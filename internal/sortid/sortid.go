// Package sortid generates the opaque 128-bit, lexicographically sortable,
// time-ordered identifiers used for both session ids (§3) and broadcast bus
// message ids (§4.C): an 8-byte big-endian nanosecond timestamp followed by
// 8 bytes of random entropy drawn from google/uuid, so two ids minted in the
// same nanosecond still almost certainly differ and compare consistently
// with minting order.
package sortid

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ID is a 16-byte time-ordered identifier.
type ID [16]byte

// Zero is the empty id, never minted by New.
var Zero ID

// New mints a fresh id ordered after every id minted before it (barring
// clock regression).
func New() ID {
	var id ID
	binary.BigEndian.PutUint64(id[:8], uint64(time.Now().UnixNano()))
	entropy := uuid.New()
	copy(id[8:], entropy[:8])
	return id
}

// String renders the id as 32 lowercase hex characters.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Parse decodes a 32-character hex string back into an ID.
func Parse(s string) (ID, error) {
	var id ID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("sortid: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("sortid: want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// Compare returns -1, 0, or 1 as id is less than, equal to, or greater than
// other, comparing byte-lexicographically (and therefore by mint order).
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// Less reports whether id was minted before other.
func (id ID) Less(other ID) bool {
	return id.Compare(other) < 0
}

// IsZero reports whether id is the unset value.
func (id ID) IsZero() bool {
	return id == Zero
}
