package orchestration

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/corgivoice/voice-core/core/guardrail"
	"github.com/corgivoice/voice-core/core/patientinfo"
)

const sessionEventQueueCapacity = 64

// Loop items. Everything that touches dispatcher-owned state funnels through
// the session loop, so a single goroutine owns the pending-item registry and
// the active-agent transitions; asynchronous completions re-enter as items
// rather than mutating shared structures from their own goroutines.
type (
	// serverEventItem is one raw inbound frame from the transport.
	serverEventItem struct {
		raw []byte
	}

	// moderationResolvedItem is a finished classification re-entering the loop.
	moderationResolvedItem struct {
		itemID   string
		testText string
		result   guardrail.Result
	}

	// toolResultItem is a finished local tool execution re-entering the loop.
	toolResultItem struct {
		name   string
		callID string
		result any
	}

	// extractionResolvedItem is a finished fact extraction re-entering the loop.
	extractionResolvedItem struct {
		info patientinfo.Info
	}

	// switchAgentItem is a user-initiated hand-off request.
	switchAgentItem struct {
		destination string
	}

	// reconfigureItem re-issues session configuration, e.g. after a
	// push-to-talk toggle.
	reconfigureItem struct{}

	// transportClosedItem reports that the inbound channel ended.
	transportClosedItem struct {
		err error
	}
)

type queuedItem struct {
	item     any
	queuedAt time.Time
}

// sessionLoop is the single-threaded context all session events are processed
// in, strictly in arrival order.
type sessionLoop struct {
	queue   chan queuedItem
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once
	started   atomic.Bool

	process func(item any)
}

func newSessionLoop(process func(item any)) *sessionLoop {
	return &sessionLoop{
		queue:   make(chan queuedItem, sessionEventQueueCapacity),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
		process: process,
	}
}

func (l *sessionLoop) start() (started bool) {
	if l.isClosed() {
		return false
	}

	l.startOnce.Do(func() {
		if l.isClosed() {
			return
		}

		started = true
		l.started.Store(true)
		go func() {
			defer close(l.done)

			for {
				select {
				case <-l.closeCh:
					return
				case queued := <-l.queue:
					if l.isClosed() {
						return
					}
					l.process(queued.item)
				}
			}
		}()
	})

	return started
}

func (l *sessionLoop) end() {
	l.endOnce.Do(func() {
		close(l.closeCh)
	})
}

func (l *sessionLoop) waitUntilEnded() {
	if l.started.Load() {
		<-l.done
	}
}

func (l *sessionLoop) enqueue(item any) bool {
	if l.isClosed() {
		return false
	}

	queued := queuedItem{item: item, queuedAt: time.Now()}
	select {
	case <-l.closeCh:
		return false
	case l.queue <- queued:
		return true
	}
}

func (l *sessionLoop) isClosed() bool {
	select {
	case <-l.closeCh:
		return true
	default:
		return false
	}
}
