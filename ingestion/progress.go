package ingestion

import (
	"sync"

	"github.com/leonj1/Archon-sub001/core"
)

const subscriberBuffer = 16

// Broadcaster fans progress events out to observers, keyed by run ID.
// It is fire-and-forget telemetry: publishing never blocks the run, a slow or
// absent observer simply misses events, and late subscribers receive only
// future events. Loss of all observers does not affect the run.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[core.ID]map[int]chan core.ProgressEvent
	nextSub int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[core.ID]map[int]chan core.ProgressEvent),
	}
}

// Subscribe registers an observer for a run. The returned cancel function
// detaches the observer and closes its channel; it is safe to call more than
// once. The channel is also closed when the run ends.
func (b *Broadcaster) Subscribe(runID core.ID) (<-chan core.ProgressEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan core.ProgressEvent, subscriberBuffer)
	if b.subs[runID] == nil {
		b.subs[runID] = make(map[int]chan core.ProgressEvent)
	}
	id := b.nextSub
	b.nextSub++
	b.subs[runID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if observers, ok := b.subs[runID]; ok {
			if ch, ok := observers[id]; ok {
				delete(observers, id)
				close(ch)
			}
			if len(observers) == 0 {
				delete(b.subs, runID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers an event to every observer of its run. Delivery is
// non-blocking: observers with a full buffer miss the event.
func (b *Broadcaster) Publish(event core.ProgressEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[event.RunId] {
		select {
		case ch <- event:
		default:
			// Observer is not keeping up; drop
		}
	}
}

// EndRun closes and removes all observer channels of a run.
func (b *Broadcaster) EndRun(runID core.ID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[runID] {
		close(ch)
	}
	delete(b.subs, runID)
}
