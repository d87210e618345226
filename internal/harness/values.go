package harness

import (
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/roach88/mongo2elastic/internal/document"
	"github.com/roach88/mongo2elastic/internal/source"
)

// toDocument converts a decoded YAML mapping into a source document. The
// identifier comes first, the other fields in key order.
func toDocument(m map[string]any) (*document.Document, error) {
	doc := &document.Document{}
	if id, ok := m[source.IDField]; ok {
		v, err := toValue(id)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", source.IDField, err)
		}
		doc.Set(source.IDField, v)
	}
	for _, k := range sortedKeys(m) {
		if k == source.IDField {
			continue
		}
		v, err := toValue(m[k])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		doc.Set(k, v)
	}
	return doc, nil
}

func toValue(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 1 {
			if hex, ok := val["$oid"].(string); ok {
				oid, err := bson.ObjectIDFromHex(hex)
				if err != nil {
					return nil, fmt.Errorf("$oid %q: %w", hex, err)
				}
				return oid, nil
			}
			if s, ok := val["$date"].(string); ok {
				t, err := time.Parse(time.RFC3339Nano, s)
				if err != nil {
					return nil, fmt.Errorf("$date %q: %w", s, err)
				}
				return t.UTC(), nil
			}
		}
		return toDocument(val)
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			conv, err := toValue(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
