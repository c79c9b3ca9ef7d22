package replay

import "fmt"

// Mode selects what a Session does with each step.
type Mode string

const (
	// ModeRecord runs the model and writes its state to the cache on every
	// session step (also called simulate mode).
	ModeRecord Mode = "record"
	// ModeReplay reads the model state back from the cache on every session
	// step instead of recomputing it.
	ModeReplay Mode = "replay"
)

// validModes maps accepted mode strings.
var validModes = map[Mode]bool{
	ModeRecord: true,
	ModeReplay: true,
}

// ParseMode converts a mode string into a Mode, accepting "simulate" as an
// alias for record.
func ParseMode(s string) (Mode, error) {
	if s == "simulate" {
		return ModeRecord, nil
	}
	m := Mode(s)
	if !validModes[m] {
		return "", fmt.Errorf("unknown mode %q (want record, simulate or replay)", s)
	}
	return m, nil
}
