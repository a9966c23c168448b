package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minimind-os/minimind/internal/kernel/memory"
	"github.com/minimind-os/minimind/internal/kernel/process"
)

func newFixture(t *testing.T, quantumTicks int) (*Scheduler, *process.Table) {
	t.Helper()
	tbl := process.NewTable(memory.NewManager(1024, 256, nil), 16, nil)
	return New(tbl, quantumTicks, nil), tbl
}

func spawnReady(t *testing.T, s *Scheduler, tbl *process.Table, name string, priority int) uint32 {
	t.Helper()
	pid, err := tbl.Spawn(name, priority, 10, "")
	require.NoError(t, err)
	s.Enqueue(pid)
	return pid
}

func runningPID(t *testing.T, tbl *process.Table) uint32 {
	t.Helper()
	pid, ok := tbl.Running()
	require.True(t, ok, "expected a RUNNING process")
	return pid
}

func TestDispatchHighestPriorityFirst(t *testing.T) {
	s, tbl := newFixture(t, 5)

	spawnReady(t, s, tbl, "low", 1)
	high := spawnReady(t, s, tbl, "high", 5)
	spawnReady(t, s, tbl, "mid", 3)

	s.Tick()
	assert.Equal(t, high, runningPID(t, tbl))
}

func TestRoundRobinFairness(t *testing.T) {
	s, tbl := newFixture(t, 1)

	pids := map[uint32]int{}
	for _, name := range []string{"a", "b", "c"} {
		pids[spawnReady(t, s, tbl, name, 3)] = 0
	}

	// With a one-tick quantum each tick preempts the runner and
	// dispatches another. Every process must run once before any
	// process runs twice.
	var order []uint32
	for i := 0; i < 6; i++ {
		s.Tick()
		order = append(order, runningPID(t, tbl))
	}

	firstRound := map[uint32]bool{}
	for _, pid := range order[:3] {
		assert.False(t, firstRound[pid], "pid %d dispatched twice before all ran once", pid)
		firstRound[pid] = true
	}
	assert.Len(t, firstRound, 3)
}

func TestQuantumExpiryRequeues(t *testing.T) {
	s, tbl := newFixture(t, 2)

	a := spawnReady(t, s, tbl, "a", 3)
	b := spawnReady(t, s, tbl, "b", 3)

	s.Tick() // dispatch (deterministic: lowest pid first)
	assert.Equal(t, a, runningPID(t, tbl))

	s.Tick() // quantum 2 -> 1
	assert.Equal(t, a, runningPID(t, tbl))

	s.Tick() // quantum 1 -> 0: preempt a, dispatch b
	assert.Equal(t, b, runningPID(t, tbl))

	pcb, _ := tbl.Get(a)
	assert.Equal(t, process.StateReady, pcb.State)
	assert.Equal(t, uint64(1), s.Stats().Preemptions)
}

func TestSingleRunningInvariant(t *testing.T) {
	s, tbl := newFixture(t, 3)

	for _, name := range []string{"a", "b", "c", "d"} {
		spawnReady(t, s, tbl, name, 3)
	}

	for i := 0; i < 20; i++ {
		s.Tick()
		running := 0
		for _, pcb := range tbl.Snapshot() {
			if pcb.State == process.StateRunning {
				running++
			}
		}
		assert.LessOrEqual(t, running, 1, "tick %d", i)
	}
}

func TestYieldRequeuesAndRedispatches(t *testing.T) {
	s, tbl := newFixture(t, 10)

	a := spawnReady(t, s, tbl, "a", 3)
	b := spawnReady(t, s, tbl, "b", 3)

	s.Tick()
	require.Equal(t, a, runningPID(t, tbl))

	require.NoError(t, s.Yield(a))

	// b takes over immediately; a is back in READY.
	assert.Equal(t, b, runningPID(t, tbl))
	pcb, _ := tbl.Get(a)
	assert.Equal(t, process.StateReady, pcb.State)
}

func TestYieldNotRunning(t *testing.T) {
	s, tbl := newFixture(t, 10)

	a := spawnReady(t, s, tbl, "a", 3)
	assert.ErrorIs(t, s.Yield(a), process.ErrInvalidTransition)
}

func TestBlockTriggersImmediateDispatch(t *testing.T) {
	s, tbl := newFixture(t, 10)

	a := spawnReady(t, s, tbl, "a", 3)
	b := spawnReady(t, s, tbl, "b", 3)

	s.Tick()
	require.Equal(t, a, runningPID(t, tbl))

	require.NoError(t, tbl.Block(a))
	s.NoteBlocked(a)

	assert.Equal(t, b, runningPID(t, tbl))
	pcb, _ := tbl.Get(a)
	assert.Equal(t, process.StateWaiting, pcb.State)
}

func TestUnblockAppliedOnNextTick(t *testing.T) {
	s, tbl := newFixture(t, 10)

	a := spawnReady(t, s, tbl, "a", 3)

	s.Tick()
	require.NoError(t, tbl.Block(a))
	s.NoteBlocked(a)

	s.QueueUnblock(a)
	pcb, _ := tbl.Get(a)
	assert.Equal(t, process.StateWaiting, pcb.State, "unblock is deferred to the tick")

	s.Tick()
	// a was the only process: unblocked, then dispatched in the same tick.
	assert.Equal(t, a, runningPID(t, tbl))
}

func TestTerminatedBetweenEnqueueAndDispatch(t *testing.T) {
	s, tbl := newFixture(t, 5)

	a := spawnReady(t, s, tbl, "a", 5)
	b := spawnReady(t, s, tbl, "b", 1)

	// a is killed after being enqueued: the scheduler must skip it
	// without treating it as an error and pick b.
	require.NoError(t, tbl.Terminate(a, process.ReasonKilled))

	s.Tick()
	assert.Equal(t, b, runningPID(t, tbl))
}

func TestIdleWhenQueueEmpty(t *testing.T) {
	s, tbl := newFixture(t, 5)

	s.Tick()
	s.Tick()

	_, ok := tbl.Running()
	assert.False(t, ok)
	assert.Nil(t, s.Stats().CurrentPID)
	assert.Equal(t, uint64(0), s.Stats().ContextSwitches)
}

func TestRunnerTerminatedMidSlice(t *testing.T) {
	s, tbl := newFixture(t, 5)

	a := spawnReady(t, s, tbl, "a", 3)
	b := spawnReady(t, s, tbl, "b", 3)

	s.Tick()
	require.Equal(t, a, runningPID(t, tbl))

	require.NoError(t, tbl.Terminate(a, process.ReasonKilled))
	s.Remove(a)

	s.Tick()
	assert.Equal(t, b, runningPID(t, tbl))
}

func TestPriorityChangeTakesEffect(t *testing.T) {
	s, tbl := newFixture(t, 1)

	a := spawnReady(t, s, tbl, "a", 2)
	b := spawnReady(t, s, tbl, "b", 2)

	require.NoError(t, tbl.SetPriority(b, 5))

	s.Tick()
	assert.Equal(t, b, runningPID(t, tbl))
	_ = a
}

func TestStats(t *testing.T) {
	s, tbl := newFixture(t, 2)

	spawnReady(t, s, tbl, "a", 3)
	s.Tick()

	st := s.Stats()
	assert.Equal(t, uint64(1), st.TotalTicks)
	assert.Equal(t, uint64(1), st.ContextSwitches)
	assert.Equal(t, 2, st.QuantumTicks)
	require.NotNil(t, st.CurrentPID)
}
