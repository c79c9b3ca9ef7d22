// Package replay provides the record/replay cache layer for step-based
// simulation models.
//
// # Reading Guide
//
// Start with these three files to understand the caching kernel:
//   - model.go: the Model contract (step execution and state snapshots)
//   - session.go: the Session wrapper that records or replays a run
//   - store.go: the Store interface and cache Header metadata
//
// # Architecture
//
// A Session wraps a Model. In record mode every session step runs the model
// and appends a serialized snapshot of its state to a Store; in replay mode
// every session step restores the next snapshot from the Store instead of
// recomputing it. The Store decides how snapshots reach disk:
//   - filestore.go: whole-run cache buffered in memory, written as one
//     gzip-compressed envelope when the run finishes
//   - streamstore.go: length-prefixed chunks flushed to the file as they are
//     produced, so the cache never has to fit in memory
//   - sqlitestore/: durable multi-run cache in a SQLite database
//
// # Key Interfaces
//
// The extension points are small interfaces:
//   - Model: Step, Running, Snapshot, Restore
//   - Store: Append, Next, Header, Close
//
// Models keep their snapshots small by serializing only what replay needs;
// EncodeSnapshot/DecodeSnapshot in snapshot.go cover the common case.
package replay
