package transform

import (
	"github.com/roach88/mongo2elastic/internal/syncerr"
)

// DefaultSyncIncSuffix is appended to the sync field name to form the
// tie-break field name.
const DefaultSyncIncSuffix = "__INC"

// Policy is the global filter policy, immutable for a run.
// Empty strings and nil templates mean "not configured".
type Policy struct {
	// CommonTimestamp is the field every document gets its timestamp in.
	CommonTimestamp string

	// FieldFormat renames every field; consumes {field, coll, type, db}.
	FieldFormat *Template

	// SyncField receives the identifier's embedded time.
	SyncField string

	// SyncIncSuffix forms the tie-break field name (SyncField + suffix).
	SyncIncSuffix string

	// IndexFormat and TypeFormat name destinations; consume {db, coll}.
	IndexFormat *Template
	TypeFormat  *Template
}

// SyncIncField returns the name of the tie-break field, or "" when no sync
// field is configured.
func (p Policy) SyncIncField() string {
	if p.SyncField == "" {
		return ""
	}
	suffix := p.SyncIncSuffix
	if suffix == "" {
		suffix = DefaultSyncIncSuffix
	}
	return p.SyncField + suffix
}

// Namespacing reports whether field names are rewritten.
func (p Policy) Namespacing() bool {
	return p.FieldFormat != nil
}

// OrderingField returns the field that orders replicated documents in the
// destination: the sync field if configured, else the common timestamp.
func (p Policy) OrderingField() (string, error) {
	if p.SyncField != "" {
		return p.SyncField, nil
	}
	if p.CommonTimestamp != "" {
		return p.CommonTimestamp, nil
	}
	return "", syncerr.Configuration("sync mode requires sync_field or common_timestamp")
}

// IndexName resolves the destination index for c. An explicit override
// wins over IndexFormat, which wins over the source database name.
func (p Policy) IndexName(c Collection) string {
	if c.Index != "" {
		return c.Index
	}
	if p.IndexFormat != nil {
		return p.IndexFormat.Format(map[string]string{VarDB: c.DB, VarColl: c.Name})
	}
	return c.DB
}

// TypeName resolves the destination type for c, with the same precedence
// as IndexName and the source collection name as default.
func (p Policy) TypeName(c Collection) string {
	if c.Type != "" {
		return c.Type
	}
	if p.TypeFormat != nil {
		return p.TypeFormat.Format(map[string]string{VarDB: c.DB, VarColl: c.Name})
	}
	return c.Name
}

// reserved reports whether key is one of the generated fields that
// namespacing leaves untouched.
func (p Policy) reserved(key string) bool {
	if key == "" {
		return false
	}
	return key == p.CommonTimestamp || key == p.SyncField || key == p.SyncIncField()
}

// Collection describes one source collection to replicate.
type Collection struct {
	DB   string
	Name string

	// TimestampField is the document field holding the creation time.
	// When empty, the identifier's embedded time is used.
	TimestampField string

	// TimestampFormat is a strptime-style format used when TimestampField is
	// stored as a string.
	TimestampFormat string

	// Index and Type override the destination names when non-empty.
	Index string
	Type  string

	// Hook is an optional site-specific mutation run before any other step.
	Hook Hook
}

// FullName returns "db.collection".
func (c Collection) FullName() string {
	return c.DB + "." + c.Name
}
