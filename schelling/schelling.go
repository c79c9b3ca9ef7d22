// Package schelling implements the Schelling segregation model as the
// reference simulation for the replay package.
//
// Two agent types share a toroidal grid. Each step every unhappy agent (one
// with fewer like-typed neighbors than its homophily threshold) moves to a
// random empty cell; the run ends when every agent is happy or the step cap
// is reached. The model is fully deterministic for a given Params.Seed.
package schelling

import (
	"fmt"

	"github.com/sim-replay/sim-replay/replay"
)

// Cell contents. Agent types are 1 and 2; 0 is an empty cell.
const (
	Empty    int8 = 0
	Majority int8 = 1
	Minority int8 = 2
)

// Params groups the model construction parameters. The zero value is not
// usable; see DefaultParams.
type Params struct {
	Width         int     `yaml:"width" msgpack:"width"`
	Height        int     `yaml:"height" msgpack:"height"`
	Density       float64 `yaml:"density" msgpack:"density"`               // fraction of cells holding an agent
	MinorityShare float64 `yaml:"minority_share" msgpack:"minority_share"` // fraction of agents of the minority type
	Homophily     int     `yaml:"homophily" msgpack:"homophily"`           // like-typed neighbors needed to be happy
	Seed          int64   `yaml:"seed" msgpack:"seed"`                     // run key for the partitioned RNG
	MaxSteps      int     `yaml:"max_steps" msgpack:"max_steps"`           // 0 = run until everyone is happy
}

// DefaultParams returns the parameters of the canonical 20x20 demo run.
func DefaultParams() Params {
	return Params{
		Width:         20,
		Height:        20,
		Density:       0.8,
		MinorityShare: 0.2,
		Homophily:     3,
		Seed:          42,
		MaxSteps:      1000,
	}
}

// Validate checks the parameters for values the model cannot run with.
func (p Params) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("grid %dx%d: dimensions must be positive", p.Width, p.Height)
	}
	if p.Density <= 0 || p.Density > 1 {
		return fmt.Errorf("density %v: must be in (0, 1]", p.Density)
	}
	if p.MinorityShare < 0 || p.MinorityShare > 1 {
		return fmt.Errorf("minority share %v: must be in [0, 1]", p.MinorityShare)
	}
	if p.Homophily < 0 || p.Homophily > 8 {
		return fmt.Errorf("homophily %d: must be in [0, 8]", p.Homophily)
	}
	return nil
}

// Model is a Schelling segregation model. It implements replay.Model.
type Model struct {
	params Params

	// cells holds the grid row-major; cells[y*Width+x].
	cells     []int8
	agents    int
	step      int
	happy     int
	moved     int
	running   bool
	rng       *PartitionedRNG
	collector *Collector
}

// snapshotState is the serialized form of the model, covering exactly what a
// replayed step needs. The RNG is deliberately absent: replay never steps the
// model, and a fresh run re-derives the RNG from the seed.
type snapshotState struct {
	Step      int                  `msgpack:"step"`
	Cells     []int8               `msgpack:"cells"`
	Happy     int                  `msgpack:"happy"`
	Moved     int                  `msgpack:"moved"`
	Running   bool                 `msgpack:"running"`
	ModelVars map[string][]float64 `msgpack:"model_vars"`
}

// New creates a Model and places its agents using the placement RNG stream.
func New(params Params) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("schelling params: %w", err)
	}
	m := &Model{
		params:    params,
		cells:     make([]int8, params.Width*params.Height),
		running:   true,
		rng:       NewPartitionedRNG(RunKey(params.Seed)),
		collector: NewCollector(),
	}

	placement := m.rng.ForSubsystem(SubsystemPlacement)
	for i := range m.cells {
		if placement.Float64() >= params.Density {
			continue
		}
		if placement.Float64() < params.MinorityShare {
			m.cells[i] = Minority
		} else {
			m.cells[i] = Majority
		}
		m.agents++
	}

	m.happy = m.countHappy()
	m.collect()
	if m.agents == 0 || m.happy == m.agents {
		m.running = false
	}
	return m, nil
}

// Step moves every unhappy agent to a random empty cell, then re-evaluates
// happiness and the end condition.
func (m *Model) Step() {
	if !m.running {
		return
	}
	movement := m.rng.ForSubsystem(SubsystemMovement)

	empties := make([]int, 0, len(m.cells)-m.agents)
	for i, c := range m.cells {
		if c == Empty {
			empties = append(empties, i)
		}
	}

	m.moved = 0
	for i, c := range m.cells {
		if c == Empty || m.contentAt(i) {
			continue
		}
		if len(empties) == 0 {
			break
		}
		j := movement.Intn(len(empties))
		dst := empties[j]
		m.cells[dst] = c
		m.cells[i] = Empty
		// The vacated cell becomes a candidate for later movers.
		empties[j] = i
		m.moved++
	}

	m.step++
	m.happy = m.countHappy()
	m.collect()

	if m.happy == m.agents {
		m.running = false
	}
	if m.params.MaxSteps > 0 && m.step >= m.params.MaxSteps {
		m.running = false
	}
}

// Running reports whether the model has more steps to take.
func (m *Model) Running() bool { return m.running }

// Snapshot serializes the replay-relevant model state. Collector series are
// trimmed to their latest value so the cache does not grow quadratically with
// run length.
func (m *Model) Snapshot() ([]byte, error) {
	return replay.EncodeSnapshot(&snapshotState{
		Step:      m.step,
		Cells:     m.cells,
		Happy:     m.happy,
		Moved:     m.moved,
		Running:   m.running,
		ModelVars: m.collector.Trimmed(),
	})
}

// Restore overwrites the model state from a snapshot.
func (m *Model) Restore(data []byte) error {
	var st snapshotState
	if err := replay.DecodeSnapshot(data, &st); err != nil {
		return err
	}
	if len(st.Cells) != len(m.cells) {
		return fmt.Errorf("snapshot grid has %d cells, model has %d (mismatched params?)",
			len(st.Cells), len(m.cells))
	}
	m.step = st.Step
	m.cells = st.Cells
	m.happy = st.Happy
	m.moved = st.Moved
	m.running = st.Running
	m.collector.replaceAll(st.ModelVars)

	m.agents = 0
	for _, c := range m.cells {
		if c != Empty {
			m.agents++
		}
	}
	return nil
}

// Params returns the construction parameters.
func (m *Model) Params() Params { return m.params }

// StepCount returns the number of completed model steps.
func (m *Model) StepCount() int { return m.step }

// Agents returns the number of agents on the grid.
func (m *Model) Agents() int { return m.agents }

// Happy returns the number of content agents after the latest step.
func (m *Model) Happy() int { return m.happy }

// Moved returns how many agents relocated during the latest step.
func (m *Model) Moved() int { return m.moved }

// Collector returns the per-step model variables.
func (m *Model) Collector() *Collector { return m.collector }

// TypeAt returns the cell content at (x, y).
func (m *Model) TypeAt(x, y int) int8 {
	return m.cells[y*m.params.Width+x]
}

func (m *Model) collect() {
	m.collector.Collect("happy", float64(m.happy))
	m.collector.Collect("moved", float64(m.moved))
}

// contentAt reports whether the agent at cell index i has at least Homophily
// like-typed neighbors in its Moore neighborhood. The grid wraps around.
func (m *Model) contentAt(i int) bool {
	w, h := m.params.Width, m.params.Height
	x, y := i%w, i/w
	self := m.cells[i]

	similar := 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			nx := (x + dx + w) % w
			ny := (y + dy + h) % h
			if m.cells[ny*w+nx] == self {
				similar++
			}
		}
	}
	return similar >= m.params.Homophily
}

func (m *Model) countHappy() int {
	happy := 0
	for i, c := range m.cells {
		if c != Empty && m.contentAt(i) {
			happy++
		}
	}
	return happy
}
