package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minimind-os/minimind/internal/kernel/memory"
)

func newTestTable(maxProcs int) *Table {
	return NewTable(memory.NewManager(1024, 256, nil), maxProcs, nil)
}

func TestSpawnReachesReady(t *testing.T) {
	tbl := newTestTable(8)

	pid, err := tbl.Spawn("drawing", 3, 100, "")
	require.NoError(t, err)

	pcb, ok := tbl.Get(pid)
	require.True(t, ok)
	assert.Equal(t, StateReady, pcb.State)
	assert.Equal(t, 3, pcb.Priority)
	assert.Equal(t, 100, pcb.MemoryKB)
	require.NotNil(t, pcb.MemoryBlockID)
}

func TestSpawnOutOfMemoryTerminates(t *testing.T) {
	mem := memory.NewManager(1024, 256, nil)
	tbl := NewTable(mem, 8, nil)

	_, err := tbl.Spawn("hog", 3, 650, "")
	require.NoError(t, err)

	// The second spawn exceeds the user region: the PCB ends up
	// TERMINATED with the failure recorded, not an error.
	pid, err := tbl.Spawn("late", 3, 700, "")
	require.NoError(t, err)

	pcb, ok := tbl.Get(pid)
	require.True(t, ok)
	assert.Equal(t, StateTerminated, pcb.State)
	assert.Equal(t, ReasonOutOfMemory, pcb.ExitReason)
	assert.Nil(t, pcb.MemoryBlockID)

	// Accounting only reflects the successful spawn.
	assert.Equal(t, 1024-256-650, mem.Usage().FreeKB)
}

func TestSpawnCeiling(t *testing.T) {
	tbl := newTestTable(2)

	_, err := tbl.Spawn("a", 3, 10, "")
	require.NoError(t, err)
	_, err = tbl.Spawn("b", 3, 10, "")
	require.NoError(t, err)

	_, err = tbl.Spawn("c", 3, 10, "")
	assert.ErrorIs(t, err, ErrTooManyProcesses)
}

func TestSpawnCeilingCountsLiveOnly(t *testing.T) {
	tbl := newTestTable(2)

	a, _ := tbl.Spawn("a", 3, 10, "")
	_, err := tbl.Spawn("b", 3, 10, "")
	require.NoError(t, err)

	require.NoError(t, tbl.Terminate(a, ReasonKilled))

	_, err = tbl.Spawn("c", 3, 10, "")
	assert.NoError(t, err)
}

func TestPIDsMonotonicNeverReused(t *testing.T) {
	tbl := newTestTable(8)

	a, _ := tbl.Spawn("a", 3, 10, "")
	require.NoError(t, tbl.Terminate(a, ReasonKilled))
	tbl.Reap()

	b, _ := tbl.Spawn("b", 3, 10, "")
	assert.Greater(t, b, a)
}

func TestTerminateFreesMemory(t *testing.T) {
	mem := memory.NewManager(1024, 256, nil)
	tbl := NewTable(mem, 8, nil)

	pid, _ := tbl.Spawn("music", 3, 200, "")
	require.NoError(t, tbl.Terminate(pid, ReasonKilled))

	pcb, _ := tbl.Get(pid)
	assert.Equal(t, StateTerminated, pcb.State)
	assert.Nil(t, pcb.MemoryBlockID)
	assert.Equal(t, 768, mem.Usage().FreeKB)
}

func TestTerminateUnknown(t *testing.T) {
	tbl := newTestTable(8)
	assert.ErrorIs(t, tbl.Terminate(42, ReasonKilled), ErrUnknownProcess)
}

func TestTerminatedIsTerminal(t *testing.T) {
	tbl := newTestTable(8)

	pid, _ := tbl.Spawn("a", 3, 10, "")
	require.NoError(t, tbl.Terminate(pid, ReasonKilled))

	assert.ErrorIs(t, tbl.Terminate(pid, ReasonKilled), ErrInvalidTransition)
	assert.ErrorIs(t, tbl.Unblock(pid), ErrInvalidTransition)
	assert.ErrorIs(t, tbl.Dispatch(pid, 5), ErrInvalidTransition)

	pcb, _ := tbl.Get(pid)
	assert.Equal(t, StateTerminated, pcb.State)
}

func TestBlockUnblockCycle(t *testing.T) {
	tbl := newTestTable(8)

	pid, _ := tbl.Spawn("story", 3, 50, "")

	// Block requires RUNNING.
	assert.ErrorIs(t, tbl.Block(pid), ErrInvalidTransition)

	require.NoError(t, tbl.Dispatch(pid, 5))
	require.NoError(t, tbl.Block(pid))

	pcb, _ := tbl.Get(pid)
	assert.Equal(t, StateWaiting, pcb.State)

	// Unblock requires WAITING.
	require.NoError(t, tbl.Unblock(pid))
	assert.ErrorIs(t, tbl.Unblock(pid), ErrInvalidTransition)
}

func TestSingleRunning(t *testing.T) {
	tbl := newTestTable(8)

	a, _ := tbl.Spawn("a", 3, 10, "")
	b, _ := tbl.Spawn("b", 3, 10, "")

	require.NoError(t, tbl.Dispatch(a, 5))
	err := tbl.Dispatch(b, 5)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	// The rejected dispatch left b untouched.
	pcb, _ := tbl.Get(b)
	assert.Equal(t, StateReady, pcb.State)

	running, ok := tbl.Running()
	require.True(t, ok)
	assert.Equal(t, a, running)
}

func TestInvalidTransitionLeavesStateUnchanged(t *testing.T) {
	tbl := newTestTable(8)

	pid, _ := tbl.Spawn("a", 3, 10, "")

	before, _ := tbl.Get(pid)
	assert.ErrorIs(t, tbl.Preempt(pid), ErrInvalidTransition)
	assert.ErrorIs(t, tbl.Unblock(pid), ErrInvalidTransition)
	after, _ := tbl.Get(pid)

	assert.Equal(t, before.State, after.State)
}

func TestConsumeQuantum(t *testing.T) {
	tbl := newTestTable(8)

	pid, _ := tbl.Spawn("a", 3, 10, "")
	require.NoError(t, tbl.Dispatch(pid, 2))

	rem, err := tbl.ConsumeQuantum(pid)
	require.NoError(t, err)
	assert.Equal(t, 1, rem)

	rem, err = tbl.ConsumeQuantum(pid)
	require.NoError(t, err)
	assert.Equal(t, 0, rem)

	pcb, _ := tbl.Get(pid)
	assert.Equal(t, uint64(2), pcb.CPUTicks)
}

func TestSetPriority(t *testing.T) {
	tbl := newTestTable(8)

	pid, _ := tbl.Spawn("a", 3, 10, "")
	require.NoError(t, tbl.SetPriority(pid, 5))

	pcb, _ := tbl.Get(pid)
	assert.Equal(t, 5, pcb.Priority)

	assert.ErrorIs(t, tbl.SetPriority(pid, 9), ErrInvalidPriority)
	assert.ErrorIs(t, tbl.SetPriority(99, 2), ErrUnknownProcess)
}

func TestSnapshotOrderedByPID(t *testing.T) {
	tbl := newTestTable(8)

	for _, name := range []string{"a", "b", "c"} {
		_, err := tbl.Spawn(name, 3, 10, "")
		require.NoError(t, err)
	}

	snap := tbl.Snapshot()
	require.Len(t, snap, 3)
	for i := 1; i < len(snap); i++ {
		assert.Less(t, snap[i-1].PID, snap[i].PID)
	}
}

func TestTransitionObserver(t *testing.T) {
	tbl := newTestTable(8)

	var seen []Transition
	tbl.OnTransition(func(tr Transition) { seen = append(seen, tr) })

	pid, _ := tbl.Spawn("a", 3, 10, "")
	require.NoError(t, tbl.Terminate(pid, ReasonKilled))

	// spawn -> NEW, NEW -> READY, READY -> TERMINATED
	require.Len(t, seen, 3)
	assert.Equal(t, StateNew, seen[0].To)
	assert.Equal(t, StateReady, seen[1].To)
	assert.Equal(t, StateTerminated, seen[2].To)
	assert.Equal(t, ReasonKilled, seen[2].Reason)
}

func TestReap(t *testing.T) {
	tbl := newTestTable(8)

	a, _ := tbl.Spawn("a", 3, 10, "")
	_, err := tbl.Spawn("b", 3, 10, "")
	require.NoError(t, err)

	require.NoError(t, tbl.Terminate(a, ReasonExited))
	assert.Equal(t, 1, tbl.Reap())
	assert.Len(t, tbl.Snapshot(), 1)
}
