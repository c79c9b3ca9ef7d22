package schelling

import (
	"hash/fnv"
	"math/rand"
)

// RunKey uniquely identifies a reproducible model run. Two runs with the same
// RunKey and identical parameters MUST produce bit-for-bit identical
// trajectories, which is what makes cache verification possible.
type RunKey int64

// RNG subsystem names. Placement draws are made once at construction,
// movement draws on every step; separate streams keep a parameter change in
// one phase from perturbing the other.
const (
	SubsystemPlacement = "placement"
	SubsystemMovement  = "movement"
)

// PartitionedRNG provides deterministic, isolated RNG instances per
// subsystem.
//
// Derivation formula:
//   - For SubsystemPlacement: uses the run key directly
//   - For all other subsystems: key XOR fnv1a64(subsystemName)
//
// Thread-safety: NOT thread-safe. Must be called from a single goroutine.
type PartitionedRNG struct {
	key        RunKey
	subsystems map[string]*rand.Rand
}

// NewPartitionedRNG creates a PartitionedRNG from a RunKey.
func NewPartitionedRNG(key RunKey) *PartitionedRNG {
	return &PartitionedRNG{
		key:        key,
		subsystems: make(map[string]*rand.Rand),
	}
}

// ForSubsystem returns a deterministically-seeded RNG for the named
// subsystem. The same subsystem name always returns the same *rand.Rand
// instance (cached). Never returns nil.
func (p *PartitionedRNG) ForSubsystem(name string) *rand.Rand {
	if rng, ok := p.subsystems[name]; ok {
		return rng
	}

	var derivedSeed int64
	if name == SubsystemPlacement {
		derivedSeed = int64(p.key)
	} else {
		derivedSeed = int64(p.key) ^ fnv1a64(name)
	}

	rng := rand.New(rand.NewSource(derivedSeed))
	p.subsystems[name] = rng
	return rng
}

// Key returns the RunKey used to create this PartitionedRNG.
func (p *PartitionedRNG) Key() RunKey {
	return p.key
}

// fnv1a64 computes a 64-bit FNV-1a hash of the input string.
func fnv1a64(s string) int64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return int64(h.Sum64())
}
