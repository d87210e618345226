// Package harness runs replication scenarios end to end against in-memory
// endpoints and checks what landed in the destination.
//
// # Scenario Format
//
// Scenarios are YAML files with the following structure:
//
//	name: sync_resume
//	description: "A second sync run only pulls new documents"
//	config:                      # same layout as a configuration file
//	  filter: {sync_field: _sync}
//	  index: [{db: app, coll: events}]
//	source:
//	  app.events:
//	    - {_id: {$oid: "5a4bd2c0aabbccddee000001"}, status: 0}
//	runs:
//	  - mode: sync
//	    expect:
//	      outcome: completed
//	      collections: [{collection: app.events, status: INDEXED, docs: 1}]
//	  - mode: sync
//	    insert:
//	      app.events:
//	        - {_id: {$oid: "5a4bd2d0aabbccddee000002"}, status: 1}
//	assertions:
//	  - type: destination_count
//	    target: app/events
//	    count: 2
//
// Values of the form {$oid: hex} become ObjectIDs and {$date: RFC3339}
// become times. Everything else is used as YAML decodes it.
//
// # Assertion Types
//
//   - destination_count: the target holds exactly count documents
//   - destination_doc: document id in target contains the expect fields
//   - destination_missing: document id is absent from target
//   - notice_contains: some run printed a notice containing text
//   - journal_outcome: the journaled run number run ended with outcome
//
// # Deterministic Testing
//
// Runs get IDs "run-1", "run-2"... and a step clock starting at a fixed
// epoch, so the trace is stable across executions and can be compared
// against golden files with RunWithGolden.
package harness
