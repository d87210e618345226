// Package syncerr defines the error taxonomy shared by the replication
// pipeline. Every classified failure is a *Error carrying a Code; callers
// branch on the code through the IsXxx helpers, which see through wrapping.
package syncerr

import (
	"errors"
	"fmt"
)

// Code categorizes replication errors.
type Code string

const (
	// CodeConfiguration indicates mode requirements the configuration cannot
	// satisfy (e.g. sync mode without an ordering field). Reported before I/O.
	CodeConfiguration Code = "CONFIGURATION"

	// CodeMissingSource indicates a configured database or collection does not
	// exist in the source store. Recovered: the collection is skipped.
	CodeMissingSource Code = "MISSING_SOURCE"

	// CodeDuplicateGeneratedField indicates a transformation step would
	// overwrite an existing field of the document.
	CodeDuplicateGeneratedField Code = "DUPLICATE_GENERATED_FIELD"

	// CodeMappingConflict indicates the dynamic mapping simulation found a
	// field observed with two different value types in one index.
	CodeMappingConflict Code = "MAPPING_CONFLICT"
)

// Error is a classified replication error.
type Error struct {
	// Code identifies the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Collection is the "db.collection" being processed, if any.
	Collection string

	// Field is the offending field name, if any.
	Field string

	// DocID is the source identifier of the offending document, if any.
	DocID string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Collection != "" {
		msg += fmt.Sprintf(" (collection=%s", e.Collection)
		if e.DocID != "" {
			msg += fmt.Sprintf(", doc=%s", e.DocID)
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Configuration creates a CONFIGURATION error.
func Configuration(format string, args ...any) *Error {
	return New(CodeConfiguration, format, args...)
}

// MissingSource creates a MISSING_SOURCE error for db or db.coll.
func MissingSource(db, coll string) *Error {
	if coll == "" {
		return &Error{
			Code:       CodeMissingSource,
			Message:    fmt.Sprintf("database %q not found", db),
			Collection: db,
		}
	}
	return &Error{
		Code:       CodeMissingSource,
		Message:    fmt.Sprintf("collection %q not found", db+"."+coll),
		Collection: db + "." + coll,
	}
}

// DuplicateField creates a DUPLICATE_GENERATED_FIELD error for field.
func DuplicateField(field, reason string) *Error {
	return &Error{
		Code:    CodeDuplicateGeneratedField,
		Message: fmt.Sprintf("%s: field %q already exists", reason, field),
		Field:   field,
	}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// IsConfiguration reports whether err is a CONFIGURATION error.
func IsConfiguration(err error) bool {
	return CodeOf(err) == CodeConfiguration
}

// IsMissingSource reports whether err is a MISSING_SOURCE error.
func IsMissingSource(err error) bool {
	return CodeOf(err) == CodeMissingSource
}

// IsDuplicateField reports whether err is a DUPLICATE_GENERATED_FIELD error.
func IsDuplicateField(err error) bool {
	return CodeOf(err) == CodeDuplicateGeneratedField
}

// IsMappingConflict reports whether err is a MAPPING_CONFLICT error.
func IsMappingConflict(err error) bool {
	return CodeOf(err) == CodeMappingConflict
}
