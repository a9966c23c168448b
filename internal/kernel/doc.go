// Package kernel is the composition root of the simulated operating
// system: it wires the clock, scheduler, process table, and memory
// manager into a single tick loop and exposes the only mutation
// surface collaborators may use (spawn, terminate, block, unblock,
// yield) plus a combined read-only snapshot for viewers.
//
// Concurrency model: a single logical CPU. "Concurrency" between
// simulated processes is interleaved state transitions driven by
// discrete clock ticks; at most one process is RUNNING at any instant.
// One kernel mutex serializes public operations against the tick
// loop, and event/metric delivery happens strictly outside that
// critical section.
package kernel
