// Package objectid interprets source identifiers that embed their creation
// time. A BSON ObjectID is 12 bytes: a 4-byte big-endian Unix timestamp in
// seconds, 5 random bytes and a 3-byte counter. The hex form is 24 characters.
//
// All functions are pure.
package objectid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// HexLen is the length of an identifier's hex representation.
const HexLen = 24

// ErrNotTimestampIdentifier is returned for identifiers that are not of the
// embedded-time kind.
var ErrNotTimestampIdentifier = errors.New("not a timestamp identifier")

// EmbeddedTime returns the creation time encoded in the leading bytes of id.
func EmbeddedTime(id string) (time.Time, error) {
	oid, err := parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return oid.Timestamp().UTC(), nil
}

// TieBreak interprets the trailing 3 bytes of id as an unsigned integer.
// Identifiers created within the same second are ordered by this value.
func TieBreak(id string) (uint32, error) {
	if _, err := parse(id); err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(id[HexLen-6:], 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotTimestampIdentifier, id)
	}
	return uint32(n), nil
}

// Synthesize returns the lexicographically smallest identifier whose
// embedded time equals t (truncated to the second).
func Synthesize(t time.Time) string {
	var oid bson.ObjectID
	binary.BigEndian.PutUint32(oid[:4], uint32(t.Unix()))
	return oid.Hex()
}

// FromValue returns the hex form of v when v is a native ObjectID.
func FromValue(v any) (string, bool) {
	switch oid := v.(type) {
	case bson.ObjectID:
		return oid.Hex(), true
	case *bson.ObjectID:
		if oid == nil {
			return "", false
		}
		return oid.Hex(), true
	default:
		return "", false
	}
}

// Parse converts id to a native ObjectID.
func Parse(id string) (bson.ObjectID, error) {
	return parse(id)
}

// String renders any source identifier as the string used for the
// destination document ID.
func String(v any) string {
	if hex, ok := FromValue(v); ok {
		return hex
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func parse(id string) (bson.ObjectID, error) {
	if len(id) != HexLen {
		return bson.NilObjectID, fmt.Errorf("%w: %q has length %d", ErrNotTimestampIdentifier, id, len(id))
	}
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return bson.NilObjectID, fmt.Errorf("%w: %q", ErrNotTimestampIdentifier, id)
	}
	return oid, nil
}
