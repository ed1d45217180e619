package engine

import (
	"sync"
	"time"
)

// subscriberBufferSize is the channel buffer for each event subscriber.
// Events are dropped if a subscriber falls this far behind.
const subscriberBufferSize = 64

// Event describes one finished call of a session.
type Event struct {
	SessionID  string `json:"session_id"`
	Seq        int    `json:"seq"`
	State      string `json:"state"`
	Size       int    `json:"size"`
	DurationMS int    `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// EventBroker manages per-session event streaming to subscribers.
// It is safe for concurrent use.
//
// Closed topics are retained as markers so that late subscribers (those
// subscribing after a session finished) receive a closed channel instead of
// blocking forever. Markers are dropped by Prune.
type EventBroker struct {
	mu     sync.Mutex
	topics map[string]*eventTopic
	now    func() time.Time
}

type eventTopic struct {
	subs     map[int]chan Event
	nextID   int
	closed   bool
	closedAt time.Time
}

// NewEventBroker creates a new event broker.
func NewEventBroker() *EventBroker {
	return &EventBroker{
		topics: make(map[string]*eventTopic),
		now:    time.Now,
	}
}

// Subscribe returns a channel that receives events for the given session
// and an unsubscribe function. If the session has already finished (Close
// was called), the returned channel is immediately closed.
func (b *EventBroker) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[sessionID] = t
	}

	ch := make(chan Event, subscriberBufferSize)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextID
	t.nextID++
	t.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(t.subs, id)
		if len(t.subs) == 0 && !t.closed && b.topics[sessionID] == t {
			delete(b.topics, sessionID)
		}
	}
}

// Publish sends an event to all subscribers of its session. Events are
// dropped for subscribers whose buffers are full.
func (b *EventBroker) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[ev.SessionID]
	if !ok || t.closed {
		return
	}

	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			// Drop event for slow subscribers to avoid blocking the call.
		}
	}
}

// Close signals that no more events will be published for the given
// session. All subscriber channels are closed and future Subscribe calls
// return a closed channel until the marker is pruned.
func (b *EventBroker) Close(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t, ok := b.topics[sessionID]
	if !ok {
		// Create a closed marker so late subscribers get a closed channel.
		t = &eventTopic{subs: make(map[int]chan Event)}
		b.topics[sessionID] = t
	}

	t.closed = true
	t.closedAt = b.now()
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// Prune drops the markers of topics closed at least retain ago and returns
// how many were dropped.
func (b *EventBroker) Prune(retain time.Duration) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	cutoff := b.now().Add(-retain)
	n := 0
	for id, t := range b.topics {
		if t.closed && !t.closedAt.After(cutoff) {
			delete(b.topics, id)
			n++
		}
	}
	return n
}

// Topics returns the number of tracked topics, open or closed.
func (b *EventBroker) Topics() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics)
}
