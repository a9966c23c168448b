package kernel

import (
	"time"

	"github.com/minimind-os/minimind/internal/kernel/process"
)

// EventType classifies kernel lifecycle events.
type EventType string

const (
	EventSpawned    EventType = "spawned"
	EventReady      EventType = "ready"
	EventDispatched EventType = "dispatched"
	EventPreempted  EventType = "preempted"
	EventBlocked    EventType = "blocked"
	EventUnblocked  EventType = "unblocked"
	EventTerminated EventType = "terminated"
)

// Event is one committed state change, published to viewers and the
// activity log after the tick critical section.
type Event struct {
	Type   EventType     `json:"type"`
	PID    uint32        `json:"pid"`
	Name   string        `json:"name"`
	From   process.State `json:"from,omitempty"`
	To     process.State `json:"to"`
	Reason string        `json:"reason,omitempty"`
	Tick   uint64        `json:"tick"`
	Time   time.Time     `json:"time"`
}

// eventFor maps an applied transition onto an event type.
func eventFor(tr process.Transition) EventType {
	switch tr.To {
	case process.StateNew:
		return EventSpawned
	case process.StateRunning:
		return EventDispatched
	case process.StateWaiting:
		return EventBlocked
	case process.StateTerminated:
		return EventTerminated
	case process.StateReady:
		switch tr.From {
		case process.StateRunning:
			return EventPreempted
		case process.StateWaiting:
			return EventUnblocked
		default:
			return EventReady
		}
	}
	return EventReady
}
