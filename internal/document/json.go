package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/text/unicode/norm"
)

// TimeLayout is the layout used for date-time values sent to the
// destination. Checkpoint resolution parses values back with it.
const TimeLayout = time.RFC3339Nano

// ErrKeyCollision is returned when two distinct keys of one object have the
// same NFC form.
var ErrKeyCollision = errors.New("keys collide after normalization")

// NormalizedCollision returns the first NFC key shared by two distinct
// fields of d or of any document nested in it.
func (d *Document) NormalizedCollision() (string, bool) {
	seen := make(map[string]bool, len(d.fields))
	for _, f := range d.fields {
		key := norm.NFC.String(f.Key)
		if seen[key] {
			return key, true
		}
		seen[key] = true
		if key, ok := nestedCollision(f.Value); ok {
			return key, true
		}
	}
	return "", false
}

func nestedCollision(v any) (string, bool) {
	switch val := v.(type) {
	case *Document:
		return val.NormalizedCollision()
	case []any:
		for _, e := range val {
			if key, ok := nestedCollision(e); ok {
				return key, true
			}
		}
	}
	return "", false
}

// MarshalJSON encodes the document as a JSON object with field order
// preserved. Keys are NFC normalized; two keys with the same normal form
// fail with ErrKeyCollision. HTML characters are not escaped.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Document) encode(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	seen := make(map[string]bool, len(d.fields))
	for i, f := range d.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key := norm.NFC.String(f.Key)
		if seen[key] {
			return fmt.Errorf("%w: %q", ErrKeyCollision, key)
		}
		seen[key] = true
		if err := encodeString(buf, key); err != nil {
			return err
		}
		buf.WriteByte(':')
		if err := encodeValue(buf, f.Value); err != nil {
			return fmt.Errorf("field %q: %w", f.Key, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil, bson.Null:
		buf.WriteString("null")
		return nil
	case string:
		return encodeString(buf, val)
	case time.Time:
		return encodeString(buf, val.UTC().Format(TimeLayout))
	case bson.DateTime:
		return encodeString(buf, val.Time().UTC().Format(TimeLayout))
	case bson.ObjectID:
		return encodeString(buf, val.Hex())
	case bson.Decimal128:
		return encodeString(buf, val.String())
	case *Document:
		return val.encode(buf)
	case []any:
		buf.WriteByte('[')
		for i, e := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, e); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
}

func encodeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	// json.Encoder adds a trailing newline
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}
