package replay

// Model is the minimal contract a simulation must satisfy to be recorded or
// replayed. The simulation framework behind the model does not matter to this
// package; only step execution and state transfer do.
//
// Snapshot and Restore must be inverses: restoring a snapshot into a model
// constructed with the same parameters must reproduce the state the snapshot
// was taken from, as far as replay is concerned. A model decides what
// "as far as replay is concerned" means: serializing only the attributes
// needed to reconstruct a step keeps the cache small.
type Model interface {
	// Step advances the simulation by one step.
	Step()
	// Running reports whether the simulation has reached its end condition.
	Running() bool
	// Snapshot serializes the model state needed for replay.
	Snapshot() ([]byte, error)
	// Restore overwrites the model state from a snapshot produced by Snapshot.
	Restore(data []byte) error
}
