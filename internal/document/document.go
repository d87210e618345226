package document

import (
	"fmt"
	"slices"
)

// Field is a single key/value pair of a Document.
type Field struct {
	Key   string
	Value any
}

// Document is an ordered mapping of field names to values.
//
// Field order is the order the source store returned, and is preserved
// through renames so the destination receives fields in a stable order.
// Keys are unique; Set replaces an existing value in place.
//
// The zero value is an empty document ready to use.
type Document struct {
	fields []Field
}

// New creates a Document from fields. Later duplicates replace earlier ones.
func New(fields ...Field) *Document {
	d := &Document{fields: make([]Field, 0, len(fields))}
	for _, f := range fields {
		d.Set(f.Key, f.Value)
	}
	return d
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Len returns the number of fields.
func (d *Document) Len() int {
	return len(d.fields)
}

// Keys returns the field names in order. The slice is a copy.
func (d *Document) Keys() []string {
	keys := make([]string, len(d.fields))
	for i, f := range d.fields {
		keys[i] = f.Key
	}
	return keys
}

// Fields returns a copy of the fields in order.
func (d *Document) Fields() []Field {
	return slices.Clone(d.fields)
}

// Has reports whether key is present.
func (d *Document) Has(key string) bool {
	return d.index(key) >= 0
}

// Get returns the value for key and whether it was present.
func (d *Document) Get(key string) (any, bool) {
	i := d.index(key)
	if i < 0 {
		return nil, false
	}
	return d.fields[i].Value, true
}

// Set stores value under key, replacing in place if key exists and
// appending otherwise.
func (d *Document) Set(key string, value any) {
	if i := d.index(key); i >= 0 {
		d.fields[i].Value = value
		return
	}
	d.fields = append(d.fields, Field{Key: key, Value: value})
}

// Delete removes key. Returns false if it was not present.
func (d *Document) Delete(key string) bool {
	i := d.index(key)
	if i < 0 {
		return false
	}
	d.fields = slices.Delete(d.fields, i, i+1)
	return true
}

// Rename changes the name of field from to to, keeping its position.
// Fails if from is missing or to already exists.
func (d *Document) Rename(from, to string) error {
	i := d.index(from)
	if i < 0 {
		return fmt.Errorf("rename %q: field not found", from)
	}
	if from == to || d.Has(to) {
		return fmt.Errorf("rename %q: target %q already exists", from, to)
	}
	d.fields[i].Key = to
	return nil
}

// Clone returns a deep copy of nested documents and lists. Scalar values are
// shared.
func (d *Document) Clone() *Document {
	out := &Document{fields: make([]Field, len(d.fields))}
	for i, f := range d.fields {
		out.fields[i] = Field{Key: f.Key, Value: cloneValue(f.Value)}
	}
	return out
}

func (d *Document) index(key string) int {
	for i, f := range d.fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case *Document:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
