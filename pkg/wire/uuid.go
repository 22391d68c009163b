package wire

import (
	"github.com/google/uuid"
)

// UniqueID is a 128-bit identifier used for object types and instances.
type UniqueID uuid.UUID

// NilID is the all-zero id meaning "no type" or "unset".
var NilID UniqueID

// TypeServiceUUID is the object type of the router's own service object.
var TypeServiceUUID = NilID

// NewUniqueID returns a random (version 4) id.
func NewUniqueID() UniqueID {
	return UniqueID(uuid.New())
}

// ParseUniqueID parses the canonical 8-4-4-4-12 form.
func ParseUniqueID(s string) (UniqueID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilID, err
	}
	return UniqueID(u), nil
}

// MustParseUniqueID is like ParseUniqueID but panics on error.
// Intended for package-level type ids.
func MustParseUniqueID(s string) UniqueID {
	return UniqueID(uuid.MustParse(s))
}

// UniqueIDFromBytes copies a 16-byte slice into an id.
func UniqueIDFromBytes(b []byte) (UniqueID, error) {
	u, err := uuid.FromBytes(b)
	if err != nil {
		return NilID, err
	}
	return UniqueID(u), nil
}

// IsNil reports whether the id is all zeros.
func (id UniqueID) IsNil() bool { return id == NilID }

// String returns the canonical lowercase form.
func (id UniqueID) String() string { return uuid.UUID(id).String() }

// Bytes returns the 16 raw bytes.
func (id UniqueID) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, id[:])
	return b
}
