package replay

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

// ErrFinished is returned when a Session is stepped after its run finished.
var ErrFinished = errors.New("session already finished")

// Session wraps a Model so that every step's state either goes into a Store
// (record mode) or comes back out of one (replay mode). From the outside a
// Session is driven the way the bare model would be: Step until Running turns
// false, or Run to do that in one call.
type Session struct {
	model Model
	store Store
	mode  Mode

	// stepRate caches only every n-th step. 1 caches every step; 2 caches
	// every second step and halves the cache size, at the cost of replay
	// jumping over the steps inbetween.
	stepRate  int
	stepCount int
	// consumed counts snapshots read back in replay mode, including the
	// initial one restored at construction.
	consumed  int
	finished  bool
	exhausted bool
}

// NewSession creates a caching wrapper around a model.
//
// In record mode the initial model state is snapshotted immediately, so the
// cache always starts with step 0. In replay mode the first cached snapshot
// is restored immediately, putting the model into the same initial state the
// recorded run started from.
func NewSession(model Model, store Store, mode Mode) (*Session, error) {
	if !validModes[mode] {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	rate := store.Header().StepRate
	if rate < 1 {
		rate = 1
	}
	s := &Session{
		model:    model,
		store:    store,
		mode:     mode,
		stepRate: rate,
	}

	switch mode {
	case ModeRecord:
		if err := s.appendSnapshot(); err != nil {
			return nil, fmt.Errorf("caching initial state: %w", err)
		}
	case ModeReplay:
		if err := s.restoreNext(); err != nil {
			return nil, fmt.Errorf("restoring initial state: %w", err)
		}
	}
	return s, nil
}

// Step advances the session by one step. In record mode the model computes
// the step and the resulting state is cached (subject to the step rate); in
// replay mode the next cached state is restored and the model's own Step is
// never called.
func (s *Session) Step() error {
	if s.finished {
		return ErrFinished
	}
	s.stepCount++

	switch s.mode {
	case ModeRecord:
		s.model.Step()
		if s.stepCount%s.stepRate == 0 {
			if err := s.appendSnapshot(); err != nil {
				return err
			}
		}
	case ModeReplay:
		if err := s.restoreNext(); err != nil {
			return err
		}
	}

	// If the model reached its end condition, or the replay ran out of
	// snapshots, the run is over and the cache can be finalized.
	if !s.Running() {
		return s.Finish()
	}
	return nil
}

// Run steps the session until the run is over.
func (s *Session) Run() error {
	for s.Running() {
		if err := s.Step(); err != nil {
			return err
		}
	}
	if !s.finished {
		return s.Finish()
	}
	return nil
}

// RunUntil steps the session until cond holds for the model and current step
// count, or until the run ends. It can be used to skip a replay forward to a
// checkpoint, or to simulate until a condition of interest is met.
func (s *Session) RunUntil(cond func(m Model, step int) bool) error {
	if !s.Running() {
		return errors.New("session is not running")
	}
	for !cond(s.model, s.stepCount) && s.Running() {
		if err := s.Step(); err != nil {
			return err
		}
	}
	if !s.Running() {
		logrus.Info("Reached end of run without the condition becoming fulfilled")
	}
	return nil
}

// Finish finalizes the run: the store is flushed and closed, which for
// recording stores completes the cache file. Finish is called automatically
// when a step ends the run; calling it again is a logged no-op.
func (s *Session) Finish() error {
	if s.finished {
		logrus.Warn("Session: tried to finish run that was already finished. Doing nothing.")
		return nil
	}
	s.finished = true
	if err := s.store.Close(); err != nil {
		return fmt.Errorf("finalizing cache: %w", err)
	}
	return nil
}

// Running reports whether the session can take another step.
func (s *Session) Running() bool {
	return !s.finished && !s.exhausted && s.model.Running()
}

// StepCount returns the number of session steps taken so far.
func (s *Session) StepCount() int { return s.stepCount }

// Finished reports whether the run has been finalized.
func (s *Session) Finished() bool { return s.finished }

// Mode returns the session mode.
func (s *Session) Mode() Mode { return s.mode }

// Model returns the wrapped model, for callers that need to read attributes
// of the underlying simulation.
func (s *Session) Model() Model { return s.model }

func (s *Session) appendSnapshot() error {
	data, err := s.model.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshotting model state: %w", err)
	}
	if err := s.store.Append(data); err != nil {
		return fmt.Errorf("caching step %d: %w", s.stepCount, err)
	}
	return nil
}

func (s *Session) restoreNext() error {
	data, err := s.store.Next()
	if err == io.EOF {
		logrus.Info("Session: reached end of cache")
		s.exhausted = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading cached step: %w", err)
	}
	if err := s.model.Restore(data); err != nil {
		return fmt.Errorf("restoring cached step: %w", err)
	}
	s.consumed++
	// The cache length is known for in-memory stores; once the last
	// snapshot has been restored the replay is over, without needing an
	// extra read to hit the end marker.
	if steps := s.store.Header().Steps; steps > 0 && s.consumed >= steps {
		s.exhausted = true
	}
	return nil
}
