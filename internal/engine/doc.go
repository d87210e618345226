// Package engine drives a replication run.
//
// ARCHITECTURE:
//
// Single Goroutine:
// Collections are processed strictly in configuration order and, within a
// collection, documents strictly in cursor order over one open cursor. The
// engine suspends only at source and destination calls.
//
// Per-collection Flow:
// 1. Idle: check the source database and collection exist (missing → SKIPPED)
// 2. ResolvingCheckpoint (sync mode only): derive the resume filter from the
//    destination
// 3. Streaming: open the cursor, run every document through the transform
//    pipeline
// 4. One of Simulating (test), Reconciling (update) or Writing (full/sync)
// 5. CollectionDone: report the terminal status and journal it
//
// Run-wide State:
// The mapping simulator and the reconciliation counters live on the Engine
// for the whole run so conflicts are caught across collections that share a
// destination index. Nothing is global.
//
// Failure Policy:
// A mapping conflict, a duplicate generated field or a destination
// transport error aborts the run; the remaining collections are not
// processed. Missing sources and "nothing to do" collections are notices.
package engine
