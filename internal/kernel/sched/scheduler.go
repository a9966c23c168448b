package sched

import (
	"sync"

	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/kernel/process"
)

// Stats is a read-only view of scheduler counters.
type Stats struct {
	TotalTicks      uint64  `json:"total_ticks"`
	ContextSwitches uint64  `json:"context_switches"`
	Preemptions     uint64  `json:"preemptions"`
	ReadyCount      int     `json:"ready_count"`
	CurrentPID      *uint32 `json:"current_pid,omitempty"`
	QuantumTicks    int     `json:"quantum_ticks"`
}

// Scheduler implements round-robin with priority over the process
// table. The ready queue is partitioned by priority only conceptually:
// selection always reads the live PCB, so administrative priority
// changes take effect on the next dispatch.
//
// Each Tick applies, in order: quantum accounting for the RUNNING
// process, pending unblock events, then at most one dispatch
// decision. The same external event sequence always yields the same
// schedule.
type Scheduler struct {
	mu           sync.Mutex
	table        *process.Table
	quantumTicks int

	ready   map[uint32]struct{}
	pending []uint32 // unblock events, applied in arrival order
	current *uint32

	ticks           uint64
	contextSwitches uint64
	preemptions     uint64

	logger *logging.Logger
}

// New creates a scheduler over the given process table. quantumTicks
// is the slice length in clock ticks.
func New(table *process.Table, quantumTicks int, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	if quantumTicks < 1 {
		quantumTicks = 1
	}
	return &Scheduler{
		table:        table,
		quantumTicks: quantumTicks,
		ready:        make(map[uint32]struct{}),
		logger:       logger,
	}
}

// Enqueue adds a READY process to the ready queue.
func (s *Scheduler) Enqueue(pid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready[pid] = struct{}{}
}

// QueueUnblock records an awaited-event signal. The WAITING -> READY
// transition is applied during the next tick, after quantum
// accounting, per the in-tick ordering contract.
func (s *Scheduler) QueueUnblock(pid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pid)
}

// Remove forgets a process entirely (terminated or killed).
func (s *Scheduler) Remove(pid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ready, pid)
	if s.current != nil && *s.current == pid {
		s.current = nil
	}
}

// Tick advances the scheduler by one clock tick.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++

	// 1. Quantum accounting for the running process.
	if s.current != nil {
		pid := *s.current
		remaining, err := s.table.ConsumeQuantum(pid)
		if err != nil {
			// Terminated (or otherwise gone) between ticks: an
			// expected race, just forget it.
			s.current = nil
		} else if remaining <= 0 {
			if err := s.table.Preempt(pid); err == nil {
				s.ready[pid] = struct{}{}
				s.preemptions++
				s.logger.Debug("Quantum expired", zap.Uint32("pid", pid))
			}
			s.current = nil
		}
	}

	// 2. Pending unblock events, in arrival order.
	s.drainUnblocksLocked()

	// 3. A single dispatch decision.
	if s.current == nil {
		s.dispatchLocked()
	}
}

// Yield re-enqueues the RUNNING process early, without waiting for
// quantum exhaustion, and immediately picks the next process.
func (s *Scheduler) Yield(pid uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.table.Preempt(pid); err != nil {
		return err
	}
	if s.current != nil && *s.current == pid {
		s.current = nil
	}
	s.ready[pid] = struct{}{}
	s.dispatchLocked()
	return nil
}

// NoteBlocked tells the scheduler a process it may have been running
// just entered WAITING; a new dispatch is made immediately.
func (s *Scheduler) NoteBlocked(pid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.ready, pid)
	if s.current != nil && *s.current == pid {
		s.current = nil
	}
	s.dispatchLocked()
}

// Stats returns current counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		TotalTicks:      s.ticks,
		ContextSwitches: s.contextSwitches,
		Preemptions:     s.preemptions,
		ReadyCount:      len(s.ready),
		QuantumTicks:    s.quantumTicks,
	}
	if s.current != nil {
		pid := *s.current
		st.CurrentPID = &pid
	}
	return st
}

// drainUnblocksLocked applies queued unblock events. A process
// terminated since the signal is skipped silently.
func (s *Scheduler) drainUnblocksLocked() {
	if len(s.pending) == 0 {
		return
	}
	for _, pid := range s.pending {
		if err := s.table.Unblock(pid); err != nil {
			continue
		}
		s.ready[pid] = struct{}{}
	}
	s.pending = s.pending[:0]
}

// dispatchLocked selects the next process: highest priority first,
// then longest time since last scheduled, then lowest pid. Stale
// queue entries (terminated between enqueue and dispatch) are dropped
// as they are encountered; the queue empty means the CPU idles.
func (s *Scheduler) dispatchLocked() {
	for {
		best, ok := s.pickLocked()
		if !ok {
			return
		}
		if err := s.table.Dispatch(best, s.quantumTicks); err != nil {
			// Expected race: re-evaluate the queue.
			delete(s.ready, best)
			continue
		}
		delete(s.ready, best)
		pid := best
		s.current = &pid
		s.contextSwitches++
		s.logger.Debug("Dispatched", zap.Uint32("pid", pid))
		return
	}
}

func (s *Scheduler) pickLocked() (uint32, bool) {
	var (
		best    process.PCB
		found   bool
		dropped []uint32
	)
	for pid := range s.ready {
		pcb, ok := s.table.Get(pid)
		if !ok || pcb.State != process.StateReady {
			dropped = append(dropped, pid)
			continue
		}
		if !found || betterCandidate(pcb, best) {
			best = pcb
			found = true
		}
	}
	for _, pid := range dropped {
		delete(s.ready, pid)
	}
	if !found {
		return 0, false
	}
	return best.PID, true
}

// betterCandidate reports whether a should be dispatched before b.
func betterCandidate(a, b process.PCB) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	if !a.LastScheduledAt.Equal(b.LastScheduledAt) {
		return a.LastScheduledAt.Before(b.LastScheduledAt)
	}
	return a.PID < b.PID
}
