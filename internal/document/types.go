package document

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Type tags returned by TypeTag.
const (
	TagString    = "string"
	TagInt       = "int"
	TagFloat     = "float"
	TagBool      = "bool"
	TagDateTime  = "datetime"
	TagDict      = "dict"
	TagList      = "list"
	TagNull      = "null"
	TagObjectID  = "ObjectId"
	TagDecimal   = "decimal"
	TagBinary    = "binary"
	TagTimestamp = "timestamp"
	TagRegex     = "regex"
)

// TypeTag returns a stable, human-readable name for v's runtime type.
// Integers of every width share one tag, since the destination maps them
// to the same field type.
func TypeTag(v any) string {
	switch v.(type) {
	case nil, bson.Null:
		return TagNull
	case string:
		return TagString
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TagInt
	case float32, float64:
		return TagFloat
	case bool:
		return TagBool
	case time.Time, bson.DateTime:
		return TagDateTime
	case *Document, bson.D, bson.M, map[string]any:
		return TagDict
	case []any, bson.A:
		return TagList
	case bson.ObjectID:
		return TagObjectID
	case bson.Decimal128:
		return TagDecimal
	case bson.Binary:
		return TagBinary
	case bson.Timestamp:
		return TagTimestamp
	case bson.Regex:
		return TagRegex
	default:
		return fmt.Sprintf("%T", v)
	}
}
