// Package apps holds the built-in kid applications and the launcher
// that runs them on the kernel. Apps are simulations: each one is a
// scripted workload that consumes CPU slices, yields when idle, and
// blocks around input waits, so the scheduler and memory viewers have
// something real to show.
package apps

// Manifest describes one installable app.
type Manifest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Icon     string `json:"icon"`
	Priority int    `json:"priority"`
	MemoryKB int    `json:"memory_kb"`
}

// ActionKind is what an app asks the launcher to do after a tick.
type ActionKind int

const (
	// ActionContinue keeps running on the current slice.
	ActionContinue ActionKind = iota
	// ActionYield gives up the rest of the slice.
	ActionYield
	// ActionBlock simulates waiting on input for WaitTicks ticks.
	ActionBlock
	// ActionExit ends the app normally.
	ActionExit
)

// Action is the result of one app tick.
type Action struct {
	Kind      ActionKind
	WaitTicks int
}

// SaveFunc persists app state to the sandbox on behalf of the app.
type SaveFunc func(path string, data []byte) error

// App is the fixed capability set the launcher drives. The variant
// set is closed: the four stock apps are data-driven instances of one
// scripted implementation, not subclasses.
type App interface {
	Manifest() Manifest

	// OnTick runs one slice of work while the app's process is
	// RUNNING. tick is the kernel tick counter.
	OnTick(tick uint64) Action

	// OnTerminate is the termination notification. save writes into
	// the app's sandbox directory.
	OnTerminate(save SaveFunc)
}
