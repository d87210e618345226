// Package document holds the in-flight representation of a replicated
// document: an ordered field list whose values mirror the source store's
// value universe (strings, integers, floats, booleans, date-times, nested
// documents, lists, null and BSON scalars).
//
// TypeTag names a value's runtime type the way namespaced field names and
// the mapping simulator see it. MarshalJSON encodes a document for the
// destination with field order preserved.
package document
