package schelling

// Collector accumulates per-step model variables, one series per name.
// It is the piece of model state that grows with every step, so snapshots
// store it trimmed: a snapshot carries only the latest value of each series,
// which is all a replayed step needs to display. Without trimming, caching a
// run would store the whole history once per step.
type Collector struct {
	vars map[string][]float64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{vars: make(map[string][]float64)}
}

// Collect appends a value to the named series.
func (c *Collector) Collect(name string, value float64) {
	c.vars[name] = append(c.vars[name], value)
}

// Latest returns the most recent value of the named series, and whether the
// series has any values.
func (c *Collector) Latest(name string) (float64, bool) {
	s := c.vars[name]
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// Series returns the full history of the named series.
func (c *Collector) Series(name string) []float64 {
	return c.vars[name]
}

// Trimmed returns a copy of the variables with each series cut down to its
// latest value.
func (c *Collector) Trimmed() map[string][]float64 {
	out := make(map[string][]float64, len(c.vars))
	for name, s := range c.vars {
		if len(s) == 0 {
			out[name] = nil
			continue
		}
		out[name] = []float64{s[len(s)-1]}
	}
	return out
}

// replaceAll overwrites the collector contents, used when restoring a
// snapshot.
func (c *Collector) replaceAll(vars map[string][]float64) {
	if vars == nil {
		vars = make(map[string][]float64)
	}
	c.vars = vars
}
