package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minimind-os/minimind/internal/kernel/process"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.QuantumMS = 40
	cfg.TickMS = 20 // two ticks per quantum
	return cfg
}

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	k, err := New(testConfig(), nil)
	require.NoError(t, err)
	return k
}

func stateOf(t *testing.T, k *Kernel, pid uint32) process.State {
	t.Helper()
	pcb, ok := k.Process(pid)
	require.True(t, ok)
	return pcb.State
}

func TestNewValidatesConfig(t *testing.T) {
	bad := testConfig()
	bad.ReservedMemoryKB = bad.TotalMemoryKB
	_, err := New(bad, nil)
	assert.Error(t, err)

	bad = testConfig()
	bad.QuantumMS = 5 // smaller than one tick
	_, err = New(bad, nil)
	assert.Error(t, err)

	bad = testConfig()
	bad.DefaultPriority = 7
	_, err = New(bad, nil)
	assert.Error(t, err)
}

func TestSpawnDefaultsPriority(t *testing.T) {
	k := newTestKernel(t)

	pid, err := k.Spawn("drawing", 0, 64, "")
	require.NoError(t, err)

	pcb, _ := k.Process(pid)
	assert.Equal(t, 3, pcb.Priority)
	assert.Equal(t, process.StateReady, pcb.State)
}

// The first §-style scenario: spawn, priority dispatch, quantum
// expiry, kill, with memory accounting checked along the way.
func TestLifecycleScenario(t *testing.T) {
	k := newTestKernel(t)

	a, err := k.Spawn("app-a", 3, 100, "")
	require.NoError(t, err)
	assert.Equal(t, process.StateReady, stateOf(t, k, a))
	assert.Equal(t, 256+100, k.MemoryUsage().UsedKB)

	b, err := k.Spawn("app-b", 5, 50, "")
	require.NoError(t, err)

	// Higher priority wins the next dispatch.
	k.Advance(1)
	assert.Equal(t, process.StateRunning, stateOf(t, k, b))
	assert.Equal(t, process.StateReady, stateOf(t, k, a))

	// Quantum is two ticks here: after it expires b re-queues and a runs.
	k.Advance(2)
	assert.Equal(t, process.StateRunning, stateOf(t, k, a))
	assert.Equal(t, process.StateReady, stateOf(t, k, b))

	require.NoError(t, k.Terminate(a, process.ReasonKilled))
	assert.Equal(t, process.StateTerminated, stateOf(t, k, a))
	assert.Equal(t, 256+50, k.MemoryUsage().UsedKB)
}

func TestSpawnOutOfMemoryScenario(t *testing.T) {
	k := newTestKernel(t)

	_, err := k.Spawn("big", 3, 650, "")
	require.NoError(t, err)

	pid, err := k.Spawn("late", 3, 700, "")
	require.NoError(t, err)

	pcb, _ := k.Process(pid)
	assert.Equal(t, process.StateTerminated, pcb.State)
	assert.Equal(t, process.ReasonOutOfMemory, pcb.ExitReason)
	assert.Equal(t, 768-650, k.MemoryUsage().FreeKB)
}

func TestBlockDispatchesNext(t *testing.T) {
	k := newTestKernel(t)

	a, _ := k.Spawn("a", 3, 10, "")
	b, _ := k.Spawn("b", 3, 10, "")

	k.Advance(1)
	require.Equal(t, process.StateRunning, stateOf(t, k, a))

	require.NoError(t, k.Block(a))
	assert.Equal(t, process.StateWaiting, stateOf(t, k, a))
	assert.Equal(t, process.StateRunning, stateOf(t, k, b))
}

func TestUnblockRoundTrip(t *testing.T) {
	k := newTestKernel(t)

	a, _ := k.Spawn("a", 3, 10, "")
	k.Advance(1)
	require.NoError(t, k.Block(a))

	// Unblocking a process that is not WAITING is rejected.
	assert.ErrorIs(t, k.Unblock(a+100), process.ErrUnknownProcess)
	require.NoError(t, k.Unblock(a))

	k.Advance(1)
	assert.Equal(t, process.StateRunning, stateOf(t, k, a))

	// Once running, a further unblock is a contract violation.
	assert.ErrorIs(t, k.Unblock(a), process.ErrInvalidTransition)
}

func TestYield(t *testing.T) {
	k := newTestKernel(t)

	a, _ := k.Spawn("a", 3, 10, "")
	b, _ := k.Spawn("b", 3, 10, "")

	k.Advance(1)
	require.Equal(t, process.StateRunning, stateOf(t, k, a))

	require.NoError(t, k.Yield(a))
	assert.Equal(t, process.StateReady, stateOf(t, k, a))
	assert.Equal(t, process.StateRunning, stateOf(t, k, b))

	// Yield from a non-running process is a contract violation.
	assert.ErrorIs(t, k.Yield(a), process.ErrInvalidTransition)
}

func TestAtMostOneRunningAcrossOps(t *testing.T) {
	k := newTestKernel(t)

	var pids []uint32
	for _, name := range []string{"a", "b", "c", "d"} {
		pid, err := k.Spawn(name, 0, 20, "")
		require.NoError(t, err)
		pids = append(pids, pid)
	}

	for i := 0; i < 25; i++ {
		k.Advance(1)
		if i == 5 {
			require.NoError(t, k.Terminate(pids[0], process.ReasonKilled))
		}
		if i == 9 {
			_, err := k.Spawn("e", 0, 20, "")
			require.NoError(t, err)
		}

		running := 0
		for _, pcb := range k.Processes() {
			if pcb.State == process.StateRunning {
				running++
			}
		}
		assert.LessOrEqual(t, running, 1, "tick %d", i)
	}
}

func TestSnapshotConsistency(t *testing.T) {
	k := newTestKernel(t)

	a, _ := k.Spawn("a", 3, 100, "")
	_, err := k.Spawn("b", 3, 50, "")
	require.NoError(t, err)
	k.Advance(3)

	snap := k.Snapshot()
	assert.Len(t, snap.Processes, 2)
	assert.Equal(t, 256+150, snap.Memory.UsedKB)
	assert.Equal(t, uint64(3), snap.Scheduler.TotalTicks)
	assert.Equal(t, uint64(3), snap.Tick)

	// Memory map matches the processes' allocations.
	total := 0
	for _, b := range snap.MemoryMap {
		if b.ID != 0 {
			total += b.SizeKB
		}
	}
	assert.Equal(t, 150, total)
	_ = a
}

func TestEventsPublished(t *testing.T) {
	k := newTestKernel(t)

	ch, cancel := k.Subscribe()
	defer cancel()

	pid, _ := k.Spawn("a", 3, 10, "")
	require.NoError(t, k.Terminate(pid, process.ReasonKilled))

	var types []EventType
	for len(types) < 3 {
		ev := <-ch
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventSpawned, EventReady, EventTerminated}, types)
}

func TestKernelLiveAfterRejectedRequests(t *testing.T) {
	k := newTestKernel(t)

	assert.Error(t, k.Terminate(99, "nope"))
	assert.Error(t, k.Block(99))
	assert.Error(t, k.Yield(99))
	assert.Error(t, k.SetPriority(99, 2))

	// Kernel still fully functional.
	pid, err := k.Spawn("a", 3, 10, "")
	require.NoError(t, err)
	k.Advance(1)
	assert.Equal(t, process.StateRunning, stateOf(t, k, pid))
}

func TestReapPurgesTerminated(t *testing.T) {
	k := newTestKernel(t)

	pid, _ := k.Spawn("a", 3, 10, "")
	require.NoError(t, k.Terminate(pid, process.ReasonExited))

	require.Len(t, k.Processes(), 1)
	assert.Equal(t, 1, k.Reap())
	assert.Empty(t, k.Processes())
}
