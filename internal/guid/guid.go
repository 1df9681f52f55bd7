// Package guid handles the 16-byte identifiers stored in GPT headers and
// partition entries.
//
// On disk the first three groups are little-endian and the last two are
// big-endian, so the canonical text form is a byte-swapped view of the raw
// bytes.
package guid

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Size is the on-disk length of a GUID.
const Size = 16

// ErrInvalidFormat is returned when text cannot be parsed as a GUID.
var ErrInvalidFormat = errors.New("invalid GUID format")

// GUID is a GUID in on-disk byte order.
type GUID [Size]byte

// Empty marks an unused partition slot.
var Empty GUID

// IsEmpty reports whether g is all zero bytes.
func (g GUID) IsEmpty() bool {
	return g == Empty
}

// String returns the canonical hyphenated mixed-endian form in lower case.
func (g GUID) String() string {
	return ToUUID(g).String()
}

// ToUUID converts on-disk GUID bytes to an RFC 4122 UUID.
func ToUUID(g GUID) uuid.UUID {
	var u uuid.UUID
	u[0], u[1], u[2], u[3] = g[3], g[2], g[1], g[0]
	u[4], u[5] = g[5], g[4]
	u[6], u[7] = g[7], g[6]
	copy(u[8:], g[8:])
	return u
}

// FromUUID converts an RFC 4122 UUID to on-disk GUID bytes.
func FromUUID(u uuid.UUID) GUID {
	var g GUID
	g[0], g[1], g[2], g[3] = u[3], u[2], u[1], u[0]
	g[4], g[5] = u[5], u[4]
	g[6], g[7] = u[7], u[6]
	copy(g[8:], u[8:])
	return g
}

// Parse accepts the hyphenated 36 character form or a bare stream of 32 hex
// digits. Both are read in canonical text order and stored mixed-endian.
func Parse(s string) (GUID, error) {
	if len(s) != 36 && len(s) != 32 {
		return Empty, fmt.Errorf("%w: %q has length %d", ErrInvalidFormat, s, len(s))
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Empty, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}
	return FromUUID(u), nil
}

// MustParse is Parse for package-level tables of well-known GUIDs.
func MustParse(s string) GUID {
	g, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}

// New returns a random (version 4) GUID.
func New() GUID {
	return FromUUID(uuid.New())
}

// FromBytes copies the first 16 bytes of b.
func FromBytes(b []byte) GUID {
	var g GUID
	copy(g[:], b)
	return g
}
