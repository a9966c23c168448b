package process

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/kernel/memory"
)

// Contract errors surfaced to collaborators.
var (
	ErrTooManyProcesses  = errors.New("too many processes")
	ErrUnknownProcess    = errors.New("unknown process")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrInvalidPriority   = errors.New("priority must be between 1 and 5")
)

// Reasons recorded on the PCB when a spawn fails or a process is killed.
const (
	ReasonOutOfMemory = "OutOfMemory"
	ReasonExited      = "Exited"
	ReasonKilled      = "Killed"
)

// Allocator is the slice of the memory manager the process table needs.
type Allocator interface {
	Allocate(pid uint32, name string, sizeKB int) (uint64, error)
	Free(blockID uint64) error
}

// PCB is the process control block for one simulated process.
type PCB struct {
	PID              uint32    `json:"pid"`
	Name             string    `json:"name"`
	Priority         int       `json:"priority"`
	State            State     `json:"state"`
	MemoryBlockID    *uint64   `json:"memory_block_id,omitempty"`
	MemoryKB         int       `json:"memory_kb"`
	QuantumRemaining int       `json:"quantum_remaining"`
	CPUTicks         uint64    `json:"cpu_ticks"`
	Icon             string    `json:"icon,omitempty"`
	ExitReason       string    `json:"exit_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	LastScheduledAt  time.Time `json:"last_scheduled_at,omitempty"`
}

// Transition describes one applied state change, for observers.
type Transition struct {
	PID    uint32
	Name   string
	From   State
	To     State
	Reason string
}

// Table owns every PCB. All state changes go through the transition
// table; callers outside this package only ever see copies.
type Table struct {
	mu           sync.RWMutex
	procs        map[uint32]*PCB
	nextPID      uint32
	maxProcs     int
	alloc        Allocator
	logger       *logging.Logger
	onTransition func(Transition)
}

// NewTable creates a process table backed by the given allocator.
// maxProcs caps the number of live (non-terminated) processes.
func NewTable(alloc Allocator, maxProcs int, logger *logging.Logger) *Table {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Table{
		procs:    make(map[uint32]*PCB),
		nextPID:  1,
		maxProcs: maxProcs,
		alloc:    alloc,
		logger:   logger,
	}
}

// OnTransition registers a single observer invoked after each applied
// transition, while the table lock is held. The observer must not call
// back into the table; buffer and deliver elsewhere.
func (t *Table) OnTransition(fn func(Transition)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTransition = fn
}

// Spawn admits a new process. Memory failure is not an error to the
// caller: the PCB lands in TERMINATED with the reason recorded.
func (t *Table) Spawn(name string, priority, memoryKB int, icon string) (uint32, error) {
	if priority < 1 || priority > 5 {
		return 0, ErrInvalidPriority
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.liveCountLocked() >= t.maxProcs {
		return 0, ErrTooManyProcesses
	}

	pcb := &PCB{
		PID:       t.nextPID,
		Name:      name,
		Priority:  priority,
		State:     StateNew,
		MemoryKB:  memoryKB,
		Icon:      icon,
		CreatedAt: time.Now(),
	}
	t.nextPID++
	t.procs[pcb.PID] = pcb
	t.notifyLocked(Transition{PID: pcb.PID, Name: name, From: "", To: StateNew, Reason: "spawn"})

	blockID, err := t.alloc.Allocate(pcb.PID, name, memoryKB)
	if err != nil {
		reason := ReasonOutOfMemory
		if errors.Is(err, memory.ErrInvalidSize) {
			reason = "InvalidSize"
		}
		t.applyLocked(pcb, StateTerminated, reason)
		t.logger.Warn("Spawn failed, process terminated",
			zap.Uint32("pid", pcb.PID),
			zap.String("name", name),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return pcb.PID, nil
	}

	pcb.MemoryBlockID = &blockID
	t.applyLocked(pcb, StateReady, "memory allocated")

	t.logger.Info("Process created",
		zap.Uint32("pid", pcb.PID),
		zap.String("name", name),
		zap.Int("priority", priority),
		zap.Int("memory_kb", memoryKB),
	)
	return pcb.PID, nil
}

// Terminate kills a process from any live state. The memory block is
// freed before the PCB reaches TERMINATED, so no allocation outlives
// its owner.
func (t *Table) Terminate(pid uint32, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, ok := t.procs[pid]
	if !ok {
		return ErrUnknownProcess
	}
	if !canTransition(pcb.State, StateTerminated) {
		return fmt.Errorf("%w: %s -> %s (pid %d)", ErrInvalidTransition, pcb.State, StateTerminated, pid)
	}

	t.freeMemoryLocked(pcb)
	t.applyLocked(pcb, StateTerminated, reason)

	t.logger.Info("Process terminated",
		zap.Uint32("pid", pid),
		zap.String("name", pcb.Name),
		zap.String("reason", reason),
	)
	return nil
}

// Block moves a RUNNING process into WAITING.
func (t *Table) Block(pid uint32) error {
	return t.request(pid, StateRunning, StateWaiting, "blocked")
}

// Unblock moves a WAITING process back to READY.
func (t *Table) Unblock(pid uint32) error {
	return t.request(pid, StateWaiting, StateReady, "unblocked")
}

// Dispatch moves a READY process onto the simulated CPU and arms its
// quantum. At most one process may be RUNNING.
func (t *Table) Dispatch(pid uint32, quantumTicks int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, ok := t.procs[pid]
	if !ok {
		return ErrUnknownProcess
	}
	if pcb.State != StateReady {
		return fmt.Errorf("%w: %s -> %s (pid %d)", ErrInvalidTransition, pcb.State, StateRunning, pid)
	}
	if running := t.runningLocked(); running != nil {
		return fmt.Errorf("%w: pid %d already RUNNING", ErrInvalidTransition, running.PID)
	}

	pcb.QuantumRemaining = quantumTicks
	pcb.LastScheduledAt = time.Now()
	t.applyLocked(pcb, StateRunning, "dispatched")
	return nil
}

// Preempt returns a RUNNING process to READY (quantum expiry or yield).
func (t *Table) Preempt(pid uint32) error {
	return t.request(pid, StateRunning, StateReady, "preempted")
}

// ConsumeQuantum burns one tick of the running process's slice and
// returns the remaining budget.
func (t *Table) ConsumeQuantum(pid uint32) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, ok := t.procs[pid]
	if !ok {
		return 0, ErrUnknownProcess
	}
	if pcb.State != StateRunning {
		return 0, fmt.Errorf("%w: pid %d is %s, not RUNNING", ErrInvalidTransition, pid, pcb.State)
	}
	if pcb.QuantumRemaining > 0 {
		pcb.QuantumRemaining--
	}
	pcb.CPUTicks++
	return pcb.QuantumRemaining, nil
}

// SetPriority is the administrative priority override.
func (t *Table) SetPriority(pid uint32, priority int) error {
	if priority < 1 || priority > 5 {
		return ErrInvalidPriority
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, ok := t.procs[pid]
	if !ok {
		return ErrUnknownProcess
	}
	if pcb.State == StateTerminated {
		return fmt.Errorf("%w: pid %d is TERMINATED", ErrInvalidTransition, pid)
	}
	pcb.Priority = priority
	return nil
}

// Get returns a copy of one PCB.
func (t *Table) Get(pid uint32) (PCB, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	pcb, ok := t.procs[pid]
	if !ok {
		return PCB{}, false
	}
	return *pcb, true
}

// Snapshot returns copies of every PCB ordered by pid. Each copy
// reflects the latest committed state; transitions are never observed
// half-applied.
func (t *Table) Snapshot() []PCB {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]PCB, 0, len(t.procs))
	for _, pcb := range t.procs {
		out = append(out, *pcb)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

// Running returns the pid of the RUNNING process, if any.
func (t *Table) Running() (uint32, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if pcb := t.runningLocked(); pcb != nil {
		return pcb.PID, true
	}
	return 0, false
}

// Reap drops TERMINATED PCBs kept around for reporting and returns
// how many were purged. PIDs are never reused regardless.
func (t *Table) Reap() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	purged := 0
	for pid, pcb := range t.procs {
		if pcb.State == StateTerminated {
			delete(t.procs, pid)
			purged++
		}
	}
	return purged
}

// request applies a single-source transition with validation.
func (t *Table) request(pid uint32, from, to State, reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pcb, ok := t.procs[pid]
	if !ok {
		return ErrUnknownProcess
	}
	if pcb.State != from || !canTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s (pid %d)", ErrInvalidTransition, pcb.State, to, pid)
	}
	t.applyLocked(pcb, to, reason)
	return nil
}

// applyLocked commits a validated transition. Caller holds the lock.
func (t *Table) applyLocked(pcb *PCB, to State, reason string) {
	from := pcb.State
	pcb.State = to
	if to == StateTerminated {
		pcb.ExitReason = reason
	}
	t.logger.Debug("State transition",
		zap.Uint32("pid", pcb.PID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("reason", reason),
	)
	t.notifyLocked(Transition{PID: pcb.PID, Name: pcb.Name, From: from, To: to, Reason: reason})
}

// freeMemoryLocked releases the PCB's block, if it still has one.
func (t *Table) freeMemoryLocked(pcb *PCB) {
	if pcb.MemoryBlockID == nil {
		return
	}
	if err := t.alloc.Free(*pcb.MemoryBlockID); err != nil {
		t.logger.Error("Failed to free memory block",
			zap.Uint32("pid", pcb.PID),
			zap.Uint64("block_id", *pcb.MemoryBlockID),
			zap.Error(err),
		)
	}
	pcb.MemoryBlockID = nil
}

func (t *Table) runningLocked() *PCB {
	for _, pcb := range t.procs {
		if pcb.State == StateRunning {
			return pcb
		}
	}
	return nil
}

func (t *Table) liveCountLocked() int {
	n := 0
	for _, pcb := range t.procs {
		if pcb.State != StateTerminated {
			n++
		}
	}
	return n
}

func (t *Table) notifyLocked(tr Transition) {
	if t.onTransition != nil {
		t.onTransition(tr)
	}
}
