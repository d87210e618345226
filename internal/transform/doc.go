// Package transform prepares source documents for a dynamically mapped
// destination.
//
// A Policy is the run-wide filter configuration (common timestamp, field
// naming template, sync field). A Collection describes one source collection
// and its destination. Pipeline.Apply runs the fixed sequence of steps on a
// document in place:
//
//   - custom Hook (site-specific, built from the hook registry)
//   - common timestamp injection
//   - sync field and tie-break injection
//   - field namespacing, e.g. "{field}_{coll}__{type}"
//
// Generated names must never collide with existing fields. A collision is a
// DUPLICATE_GENERATED_FIELD error and the document is not written.
package transform
