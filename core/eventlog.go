package orchestration

import (
	"sync"
	"time"

	"github.com/jinzhu/copier"
)

type EventDirection string

const (
	DirectionClient EventDirection = "client"
	DirectionServer EventDirection = "server"
)

// LoggedEvent is one raw protocol event, recorded for diagnostics.
type LoggedEvent struct {
	Direction EventDirection
	Name      string
	Suffix    string
	Payload   any
	At        time.Time
}

// eventLog is the append-only record of protocol traffic, independent of the
// transcript.
type eventLog struct {
	mu     sync.RWMutex
	events []LoggedEvent

	now func() time.Time
}

func newEventLog(now func() time.Time) *eventLog {
	if now == nil {
		now = time.Now
	}
	return &eventLog{now: now}
}

func (l *eventLog) logClientEvent(name, suffix string, payload any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, LoggedEvent{
		Direction: DirectionClient,
		Name:      name,
		Suffix:    suffix,
		Payload:   payload,
		At:        l.now(),
	})
}

func (l *eventLog) logServerEvent(name string, payload any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, LoggedEvent{
		Direction: DirectionServer,
		Name:      name,
		Payload:   payload,
		At:        l.now(),
	})
}

// snapshot returns a deep copy of the log in append order.
func (l *eventLog) snapshot() []LoggedEvent {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := make([]LoggedEvent, 0, len(l.events))
	if err := copier.CopyWithOption(&snapshot, &l.events, copier.Option{DeepCopy: true}); err != nil {
		snapshot = append(snapshot, l.events...)
	}
	return snapshot
}
