package replay

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fibModel is a minimal Model for session tests: each step produces the next
// Fibonacci number and the run ends once the value exceeds 100000.
type fibModel struct {
	Previous int
	Current  int
	running  bool
	stepped  int
}

type fibState struct {
	Previous int  `msgpack:"previous"`
	Current  int  `msgpack:"current"`
	Running  bool `msgpack:"running"`
}

func newFibModel() *fibModel {
	return &fibModel{Previous: 0, Current: 1, running: true}
}

func (m *fibModel) Step() {
	next := m.Previous + m.Current
	m.Previous = m.Current
	m.Current = next
	m.stepped++
	if next > 100000 {
		m.running = false
	}
}

func (m *fibModel) Running() bool { return m.running }

func (m *fibModel) Snapshot() ([]byte, error) {
	return EncodeSnapshot(&fibState{Previous: m.Previous, Current: m.Current, Running: m.running})
}

func (m *fibModel) Restore(data []byte) error {
	var st fibState
	if err := DecodeSnapshot(data, &st); err != nil {
		return err
	}
	m.Previous = st.Previous
	m.Current = st.Current
	m.running = st.Running
	return nil
}

// memStore is an in-memory Store so session semantics can be tested without
// touching disk.
type memStore struct {
	header  *Header
	snaps   [][]byte
	next    int
	closed  int
	appends int
}

func newMemStore(stepRate int) *memStore {
	return &memStore{header: NewHeader("fib", stepRate, CompressionNone)}
}

func (s *memStore) Header() *Header { return s.header }

func (s *memStore) Append(snapshot []byte) error {
	s.appends++
	cp := make([]byte, len(snapshot))
	copy(cp, snapshot)
	s.snaps = append(s.snaps, cp)
	return nil
}

func (s *memStore) Next() ([]byte, error) {
	if s.next >= len(s.snaps) {
		return nil, io.EOF
	}
	data := s.snaps[s.next]
	s.next++
	return data, nil
}

func (s *memStore) Close() error {
	s.closed++
	s.header.Steps = len(s.snaps)
	return nil
}

// forReplay returns a fresh replay view over the recorded snapshots.
func (s *memStore) forReplay() *memStore {
	h := *s.header
	return &memStore{header: &h, snaps: s.snaps}
}

func TestSession_Record_CachesInitialState(t *testing.T) {
	// GIVEN a fresh model
	store := newMemStore(1)

	// WHEN a recording session is created
	_, err := NewSession(newFibModel(), store, ModeRecord)
	require.NoError(t, err)

	// THEN the initial state is already in the cache, before any step
	assert.Equal(t, 1, store.appends)
}

func TestSession_RecordThenReplay_ReproducesTrajectory(t *testing.T) {
	// GIVEN a recorded Fibonacci run
	store := newMemStore(1)
	recorded := newFibModel()
	session, err := NewSession(recorded, store, ModeRecord)
	require.NoError(t, err)

	var want []int
	for session.Running() {
		require.NoError(t, session.Step())
		want = append(want, recorded.Current)
	}
	require.True(t, session.Finished())
	require.Equal(t, 1, store.closed)

	// WHEN the run is replayed into a fresh model
	fresh := newFibModel()
	replaySession, err := NewSession(fresh, store.forReplay(), ModeReplay)
	require.NoError(t, err)

	// THEN the replay restores the initial state first
	assert.Equal(t, 1, fresh.Current)

	// AND the replayed trajectory matches the recorded one step by step
	var got []int
	for replaySession.Running() {
		require.NoError(t, replaySession.Step())
		got = append(got, fresh.Current)
	}
	assert.Equal(t, want, got)

	// AND the model's own Step was never called during replay
	assert.Equal(t, 0, fresh.stepped)
}

func TestSession_Replay_StopsWhenCacheExhausted(t *testing.T) {
	// GIVEN a short recorded run
	store := newMemStore(1)
	session, err := NewSession(newFibModel(), store, ModeRecord)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, session.Step())
	}
	require.NoError(t, session.Finish())

	// WHEN the run is replayed to the end
	fresh := newFibModel()
	replaySession, err := NewSession(fresh, store.forReplay(), ModeReplay)
	require.NoError(t, err)
	require.NoError(t, replaySession.Run())

	// THEN the session consumed every snapshot after the initial one and
	// stopped, even though the model itself never reached its end condition
	assert.False(t, replaySession.Running())
	assert.True(t, replaySession.Finished())
	assert.Equal(t, 5, replaySession.StepCount())
}

func TestSession_StepRate_CachesEveryNthStep(t *testing.T) {
	// GIVEN a recording session caching every third step
	store := newMemStore(3)
	model := newFibModel()
	session, err := NewSession(model, store, ModeRecord)
	require.NoError(t, err)

	// WHEN nine steps run
	for i := 0; i < 9; i++ {
		require.NoError(t, session.Step())
	}

	// THEN the cache holds the initial state plus every third step
	assert.Equal(t, 4, store.appends)

	// AND the model itself stepped every time
	assert.Equal(t, 9, model.stepped)
}

func TestSession_StepRate_ReplayTraversesThinnedTrajectory(t *testing.T) {
	// GIVEN a run recorded at step rate 2
	store := newMemStore(2)
	recorded := newFibModel()
	session, err := NewSession(recorded, store, ModeRecord)
	require.NoError(t, err)
	for i := 0; i < 6; i++ {
		require.NoError(t, session.Step())
	}
	require.NoError(t, session.Finish())

	// WHEN the run is replayed
	fresh := newFibModel()
	replaySession, err := NewSession(fresh, store.forReplay(), ModeReplay)
	require.NoError(t, err)

	// THEN each replay step jumps two recorded model steps
	// fib: 1 1 2 3 5 8 13; cached at model steps 0,2,4,6 -> current 1,2,5,13
	got := []int{fresh.Current}
	for replaySession.Running() {
		require.NoError(t, replaySession.Step())
		got = append(got, fresh.Current)
	}
	assert.Equal(t, []int{1, 2, 5, 13}, got)
}

func TestSession_Step_AfterFinish_ReturnsErrFinished(t *testing.T) {
	store := newMemStore(1)
	session, err := NewSession(newFibModel(), store, ModeRecord)
	require.NoError(t, err)
	require.NoError(t, session.Finish())

	assert.ErrorIs(t, session.Step(), ErrFinished)
}

func TestSession_Finish_Twice_IsNoOp(t *testing.T) {
	store := newMemStore(1)
	session, err := NewSession(newFibModel(), store, ModeRecord)
	require.NoError(t, err)

	require.NoError(t, session.Finish())
	require.NoError(t, session.Finish())
	assert.Equal(t, 1, store.closed)
}

func TestSession_Run_FinishesAutomatically(t *testing.T) {
	// GIVEN a model that reaches its end condition
	store := newMemStore(1)
	session, err := NewSession(newFibModel(), store, ModeRecord)
	require.NoError(t, err)

	// WHEN the session runs to completion
	require.NoError(t, session.Run())

	// THEN the cache was finalized exactly once
	assert.True(t, session.Finished())
	assert.Equal(t, 1, store.closed)
}

func TestSession_RunUntil_StopsAtCondition(t *testing.T) {
	store := newMemStore(1)
	model := newFibModel()
	session, err := NewSession(model, store, ModeRecord)
	require.NoError(t, err)

	// WHEN running until the value passes 100
	err = session.RunUntil(func(m Model, step int) bool {
		return m.(*fibModel).Current > 100
	})
	require.NoError(t, err)

	// THEN the session stopped at the first step satisfying the condition
	assert.Equal(t, 144, model.Current)
	assert.True(t, session.Running())
}

func TestSession_RunUntil_ErrorsWhenNotRunning(t *testing.T) {
	store := newMemStore(1)
	session, err := NewSession(newFibModel(), store, ModeRecord)
	require.NoError(t, err)
	require.NoError(t, session.Finish())

	err = session.RunUntil(func(Model, int) bool { return true })
	assert.Error(t, err)
}

func TestSession_RecordThenReplay_ThroughFileStore(t *testing.T) {
	// GIVEN a run recorded through the default file store
	path := filepath.Join(t.TempDir(), "fib.cache")
	header := NewHeader("fib", 1, CompressionGzip)
	store, err := NewFileStore(path, header)
	require.NoError(t, err)

	recorded := newFibModel()
	session, err := NewSession(recorded, store, ModeRecord)
	require.NoError(t, err)
	require.NoError(t, session.Run())

	// WHEN the cache file is opened and replayed
	replayStore, err := OpenFileStore(path)
	require.NoError(t, err)
	fresh := newFibModel()
	replaySession, err := NewSession(fresh, replayStore, ModeReplay)
	require.NoError(t, err)
	require.NoError(t, replaySession.Run())

	// THEN the final model state matches the recorded run
	assert.Equal(t, recorded.Current, fresh.Current)
	assert.Equal(t, recorded.Previous, fresh.Previous)
	assert.Equal(t, 0, fresh.stepped)
}
