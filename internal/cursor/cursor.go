// Package cursor implements monque's opaque pagination cursor: a single
// letter direction prefix followed by the url-safe base64 of a job id's raw
// bytes. Job ids in this port are uuids, so "raw bytes" means the 16-byte
// uuid representation.
package cursor

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// Direction matches monque.Direction's byte values without importing the
// root package (which would create an import cycle).
type Direction byte

const (
	Forward  Direction = 'F'
	Backward Direction = 'B'
)

// Encode returns the opaque cursor string for (id, dir).
func Encode(id string, dir Direction) (string, error) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("cursor: invalid job id %q: %w", id, err)
	}
	raw := u[:]
	return string(rune(dir)) + base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode reverses Encode. It fails on empty input, an unknown prefix,
// malformed base64, or a decoded length other than 16 bytes.
func Decode(s string) (id string, dir Direction, err error) {
	if s == "" {
		return "", 0, errEmpty
	}
	prefix := Direction(s[0])
	if prefix != Forward && prefix != Backward {
		return "", 0, errUnknownPrefix
	}
	raw, err := base64.RawURLEncoding.DecodeString(s[1:])
	if err != nil {
		return "", 0, errMalformed
	}
	if len(raw) != 16 {
		return "", 0, errBadLength
	}
	u, err := uuid.FromBytes(raw)
	if err != nil {
		return "", 0, errBadLength
	}
	return u.String(), prefix, nil
}

type decodeError string

func (e decodeError) Error() string { return string(e) }

const (
	errEmpty         decodeError = "empty cursor"
	errUnknownPrefix decodeError = "unknown cursor direction prefix"
	errMalformed     decodeError = "malformed base64"
	errBadLength     decodeError = "wrong decoded byte length"
)
