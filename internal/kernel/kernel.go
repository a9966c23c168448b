package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/infrastructure/monitoring"
	"github.com/minimind-os/minimind/internal/kernel/clock"
	"github.com/minimind-os/minimind/internal/kernel/memory"
	"github.com/minimind-os/minimind/internal/kernel/process"
	"github.com/minimind-os/minimind/internal/kernel/sched"
)

// Config carries the recognized kernel startup options.
type Config struct {
	QuantumMS        int
	TickMS           int
	TotalMemoryKB    int
	ReservedMemoryKB int
	MaxProcesses     int
	DefaultPriority  int
}

// DefaultConfig mirrors the original machine: 1 MB of RAM with a
// 256 KB reserved region and a 100 ms quantum.
func DefaultConfig() Config {
	return Config{
		QuantumMS:        100,
		TickMS:           20,
		TotalMemoryKB:    1024,
		ReservedMemoryKB: 256,
		MaxProcesses:     16,
		DefaultPriority:  3,
	}
}

// Snapshot is the combined read-only view handed to viewers. It is
// assembled on demand and never cached longer than one tick.
type Snapshot struct {
	Processes []process.PCB  `json:"processes"`
	Memory    memory.Usage   `json:"memory"`
	MemoryMap []memory.Block `json:"memory_map"`
	Scheduler sched.Stats    `json:"scheduler"`
	Tick      uint64         `json:"tick"`
	Time      time.Time      `json:"time"`
}

// Kernel wires Clock -> Scheduler -> Process Manager -> Memory Manager
// and is the sole mutation surface for collaborators. One mutex
// serializes public operations against the tick loop, so every
// cross-component call completes within the same tick.
type Kernel struct {
	cfg Config

	mu    sync.Mutex
	mem   *memory.Manager
	table *process.Table
	sched *sched.Scheduler
	clk   *clock.Clock

	// Events buffered during the critical section, delivered after.
	buf []Event

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int

	hookMu sync.Mutex
	hooks  []func(tick uint64)

	logger  *logging.Logger
	metrics *monitoring.Metrics
}

// New builds a kernel instance from the given configuration. Multiple
// independent instances can coexist; there is no shared global state.
func New(cfg Config, logger *logging.Logger) (*Kernel, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.TotalMemoryKB <= cfg.ReservedMemoryKB {
		return nil, fmt.Errorf("total memory (%d KB) must exceed reserved (%d KB)", cfg.TotalMemoryKB, cfg.ReservedMemoryKB)
	}
	if cfg.MaxProcesses < 1 {
		return nil, fmt.Errorf("max processes must be positive, got %d", cfg.MaxProcesses)
	}
	if cfg.TickMS < 1 || cfg.QuantumMS < cfg.TickMS {
		return nil, fmt.Errorf("quantum (%d ms) must be at least one tick (%d ms)", cfg.QuantumMS, cfg.TickMS)
	}
	if cfg.DefaultPriority < 1 || cfg.DefaultPriority > 5 {
		return nil, fmt.Errorf("default priority %d out of range [1,5]", cfg.DefaultPriority)
	}

	k := &Kernel{
		cfg:    cfg,
		subs:   make(map[int]chan Event),
		logger: logger.Component("kernel"),
	}

	k.mem = memory.NewManager(cfg.TotalMemoryKB, cfg.ReservedMemoryKB, logger.Component("memory"))
	k.table = process.NewTable(k.mem, cfg.MaxProcesses, logger.Component("process"))
	k.sched = sched.New(k.table, cfg.QuantumMS/cfg.TickMS, logger.Component("sched"))
	k.clk = clock.New(time.Duration(cfg.TickMS)*time.Millisecond, k.tick)

	k.table.OnTransition(func(tr process.Transition) {
		k.buf = append(k.buf, Event{
			Type:   eventFor(tr),
			PID:    tr.PID,
			Name:   tr.Name,
			From:   tr.From,
			To:     tr.To,
			Reason: tr.Reason,
			Tick:   k.clk.Ticks(),
			Time:   time.Now(),
		})
	})

	return k, nil
}

// WithMetrics attaches a metrics collector.
func (k *Kernel) WithMetrics(m *monitoring.Metrics) *Kernel {
	k.metrics = m
	return k
}

// Start launches the clock-driven tick loop.
func (k *Kernel) Start(ctx context.Context) {
	k.logger.Info("Kernel starting",
		zap.Int("quantum_ms", k.cfg.QuantumMS),
		zap.Int("tick_ms", k.cfg.TickMS),
		zap.Int("max_processes", k.cfg.MaxProcesses),
	)
	k.clk.Start(ctx)
}

// Stop halts the tick loop. Kernel state stays valid and queryable.
func (k *Kernel) Stop() {
	k.clk.Stop()
	k.logger.Info("Kernel stopped", zap.Uint64("ticks", k.clk.Ticks()))
}

// Advance drives n ticks synchronously, for tests and headless use.
func (k *Kernel) Advance(n int) {
	k.clk.Advance(n)
}

// Spawn admits a new process. A zero priority selects the configured
// default. Memory exhaustion is not an error: the returned pid refers
// to a PCB that went straight to TERMINATED with the reason recorded.
func (k *Kernel) Spawn(name string, priority, memoryKB int, icon string) (uint32, error) {
	if priority == 0 {
		priority = k.cfg.DefaultPriority
	}

	k.mu.Lock()
	pid, err := k.table.Spawn(name, priority, memoryKB, icon)
	if err == nil {
		if pcb, ok := k.table.Get(pid); ok && pcb.State == process.StateReady {
			k.sched.Enqueue(pid)
		}
	}
	k.mu.Unlock()

	if err != nil {
		return 0, err
	}
	if k.metrics != nil {
		k.metrics.RecordSpawn()
	}
	k.flush()
	return pid, nil
}

// Terminate kills a process unconditionally once validated: memory is
// freed before the PCB reaches TERMINATED.
func (k *Kernel) Terminate(pid uint32, reason string) error {
	k.mu.Lock()
	err := k.table.Terminate(pid, reason)
	if err == nil {
		k.sched.Remove(pid)
	}
	k.mu.Unlock()

	if err != nil {
		return err
	}
	if k.metrics != nil {
		k.metrics.RecordTermination(reason)
	}
	k.flush()
	return nil
}

// Block moves a RUNNING process to WAITING and immediately dispatches
// the next READY process.
func (k *Kernel) Block(pid uint32) error {
	k.mu.Lock()
	err := k.table.Block(pid)
	if err == nil {
		k.sched.NoteBlocked(pid)
	}
	k.mu.Unlock()

	if err != nil {
		return err
	}
	k.flush()
	return nil
}

// Unblock signals the event a WAITING process was blocked on. The
// WAITING -> READY transition itself is applied on the next tick,
// after quantum accounting, keeping in-tick ordering deterministic.
func (k *Kernel) Unblock(pid uint32) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	pcb, ok := k.table.Get(pid)
	if !ok {
		return process.ErrUnknownProcess
	}
	if pcb.State != process.StateWaiting {
		return fmt.Errorf("%w: pid %d is %s, not WAITING", process.ErrInvalidTransition, pid, pcb.State)
	}
	k.sched.QueueUnblock(pid)
	return nil
}

// Yield lets the RUNNING process give up the rest of its slice.
func (k *Kernel) Yield(pid uint32) error {
	k.mu.Lock()
	err := k.sched.Yield(pid)
	k.mu.Unlock()

	if err != nil {
		return err
	}
	k.flush()
	return nil
}

// SetPriority is the administrative priority override.
func (k *Kernel) SetPriority(pid uint32, priority int) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.table.SetPriority(pid, priority)
}

// Reap purges TERMINATED PCBs retained for reporting.
func (k *Kernel) Reap() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.table.Reap()
}

// Process returns one PCB view.
func (k *Kernel) Process(pid uint32) (process.PCB, bool) {
	return k.table.Get(pid)
}

// Processes returns PCB views ordered by pid.
func (k *Kernel) Processes() []process.PCB {
	return k.table.Snapshot()
}

// MemoryUsage returns current memory accounting.
func (k *Kernel) MemoryUsage() memory.Usage {
	return k.mem.Usage()
}

// MemoryMap returns the block layout for the memory viewer.
func (k *Kernel) MemoryMap() []memory.Block {
	return k.mem.Map()
}

// SchedulerStats returns scheduler counters.
func (k *Kernel) SchedulerStats() sched.Stats {
	return k.sched.Stats()
}

// Snapshot assembles the combined read-only view.
func (k *Kernel) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()

	return Snapshot{
		Processes: k.table.Snapshot(),
		Memory:    k.mem.Usage(),
		MemoryMap: k.mem.Map(),
		Scheduler: k.sched.Stats(),
		Tick:      k.clk.Ticks(),
		Time:      time.Now(),
	}
}

// Subscribe returns a channel of kernel events and a cancel func.
// Delivery is best-effort: a slow consumer drops events rather than
// stalling the tick loop.
func (k *Kernel) Subscribe() (<-chan Event, func()) {
	k.subMu.Lock()
	defer k.subMu.Unlock()

	id := k.nextSub
	k.nextSub++
	ch := make(chan Event, 64)
	k.subs[id] = ch

	cancel := func() {
		k.subMu.Lock()
		defer k.subMu.Unlock()
		if _, ok := k.subs[id]; ok {
			delete(k.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// OnTick registers an observer invoked after every tick, outside the
// critical section. Observers may call back into the kernel.
func (k *Kernel) OnTick(fn func(tick uint64)) {
	k.hookMu.Lock()
	k.hooks = append(k.hooks, fn)
	k.hookMu.Unlock()
}

// tick runs one scheduler step inside the critical section, then
// delivers events and metrics outside it.
func (k *Kernel) tick(tick uint64) {
	k.mu.Lock()
	k.sched.Tick()
	k.mu.Unlock()

	k.flush()

	k.hookMu.Lock()
	hooks := append([]func(uint64){}, k.hooks...)
	k.hookMu.Unlock()
	for _, fn := range hooks {
		fn(tick)
	}
}

// flush publishes buffered events and refreshes gauges. Runs outside
// the tick critical section so a slow collaborator cannot stall the
// simulated CPU.
func (k *Kernel) flush() {
	k.mu.Lock()
	events := k.buf
	k.buf = nil
	k.mu.Unlock()

	if len(events) > 0 {
		k.subMu.Lock()
		for _, ev := range events {
			for _, ch := range k.subs {
				select {
				case ch <- ev:
				default:
				}
			}
		}
		k.subMu.Unlock()
	}

	k.syncMetrics()
}

func (k *Kernel) syncMetrics() {
	if k.metrics == nil {
		return
	}

	counts := map[process.State]int{}
	live := 0
	for _, pcb := range k.table.Snapshot() {
		counts[pcb.State]++
		if pcb.State != process.StateTerminated {
			live++
		}
	}
	for _, st := range []process.State{process.StateNew, process.StateReady, process.StateRunning, process.StateWaiting, process.StateTerminated} {
		k.metrics.SetProcessCount(string(st), counts[st])
	}
	k.metrics.SetLiveProcesses(live)

	u := k.mem.Usage()
	k.metrics.SetMemoryUsage(u.UsedKB, u.FreeKB)

	st := k.sched.Stats()
	k.metrics.SetSchedulerCounters(st.TotalTicks, st.ContextSwitches, st.Preemptions)
}
