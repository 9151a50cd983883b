package watch

import (
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentstate/agentstate/pkg/types"
)

// HistorySource replays committed records beyond what the ring buffer
// still holds, so a subscriber that fell behind can catch up without
// an immediate Overflow as long as the WAL still has the range on
// disk. Implemented by pkg/engine's adapter over the WAL.
type HistorySource interface {
	// ReadFrom invokes fn for every record with commit_seq > fromSeq
	// that is still on disk. ok is false if fromSeq predates
	// everything still retained (segments already trimmed).
	ReadFrom(fromSeq uint64, fn func(namespace string, ev types.Event) error) (ok bool, err error)
}

const (
	defaultRingSize    = 256
	defaultBufferSize  = 1024
)

// Subscriber receives events for one namespace subscription.
type Subscriber struct {
	Events chan types.Event
	Done   chan struct{}

	hub       *Hub
	namespace string
	closeOnce sync.Once
}

// Close releases the subscription's resources and decrements the
// namespace's subscriber count. Safe to call more than once, and safe
// to call concurrently with the hub dropping the subscriber on its own
// (e.g. on overflow) — both paths close Done through the same
// sync.Once, and the subscriber count is decremented exactly once
// regardless of which side notices first.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.Done) })
	s.hub.remove(s.namespace, s)
}

type ring struct {
	events []types.Event // fixed-capacity, oldest first
	size   int
}

func newRing(size int) *ring {
	return &ring{size: size}
}

func (r *ring) push(ev types.Event) {
	r.events = append(r.events, ev)
	if len(r.events) > r.size {
		r.events = r.events[len(r.events)-r.size:]
	}
}

// from returns every buffered event with CommitSeq > fromSeq, and
// whether fromSeq is still covered by the ring (i.e. not older than
// the oldest buffered event's predecessor).
func (r *ring) from(fromSeq uint64) (events []types.Event, covered bool) {
	if len(r.events) == 0 {
		return nil, fromSeq == 0
	}
	oldest := r.events[0].CommitSeq
	if fromSeq+1 < oldest {
		return nil, false
	}
	for _, ev := range r.events {
		if ev.CommitSeq > fromSeq {
			events = append(events, ev)
		}
	}
	return events, true
}

type namespaceHub struct {
	mu          sync.Mutex
	ring        *ring
	subscribers map[*Subscriber]struct{}
}

// Hub fans out committed events to subscribers, one independent
// publish stream per namespace.
type Hub struct {
	bufferEvents int
	history      HistorySource

	mu         sync.RWMutex
	namespaces map[string]*namespaceHub
}

func NewHub(bufferEvents int, history HistorySource) *Hub {
	if bufferEvents <= 0 {
		bufferEvents = defaultBufferSize
	}
	return &Hub{
		bufferEvents: bufferEvents,
		history:      history,
		namespaces:   make(map[string]*namespaceHub),
	}
}

func (h *Hub) namespaceHubFor(namespace string) *namespaceHub {
	h.mu.Lock()
	defer h.mu.Unlock()
	nh, ok := h.namespaces[namespace]
	if !ok {
		nh = &namespaceHub{ring: newRing(defaultRingSize), subscribers: make(map[*Subscriber]struct{})}
		h.namespaces[namespace] = nh
	}
	return nh
}

// Publish broadcasts ev to every current subscriber of its namespace
// and records it in the namespace's ring buffer. Publish never blocks
// on a slow subscriber: a full subscriber buffer triggers an
// Overflow-and-drop instead.
func (h *Hub) Publish(ev types.Event) {
	nh := h.namespaceHubFor(ev.Namespace)
	nh.mu.Lock()
	defer nh.mu.Unlock()

	nh.ring.push(ev)
	for sub := range nh.subscribers {
		select {
		case sub.Events <- ev:
		default:
			h.overflowLocked(nh, sub, ev.CommitSeq-1)
		}
	}
}

// overflowLocked delivers a terminal Overflow event to sub (best
// effort — its buffer is full, so this itself may not land) and
// removes it from the namespace's subscriber set. Callers must hold
// nh.mu.
func (h *Hub) overflowLocked(nh *namespaceHub, sub *Subscriber, lastCommit uint64) {
	overflow := types.Event{
		Kind:           types.EventOverflow,
		Namespace:      sub.namespace,
		LastCommit:     lastCommit,
		ReconnectAfter: backoff.NewExponentialBackOff().NextBackOff(),
	}
	select {
	case sub.Events <- overflow:
	default:
	}
	delete(nh.subscribers, sub)
	sub.closeOnce.Do(func() { close(sub.Done) })
}

// remove drops sub from its namespace's subscriber set. Called from
// Subscriber.Close as well as anywhere the hub itself decides to drop
// a subscriber, so both directions decrement the count exactly once.
func (h *Hub) remove(namespace string, sub *Subscriber) {
	nh := h.namespaceHubFor(namespace)
	nh.mu.Lock()
	defer nh.mu.Unlock()
	delete(nh.subscribers, sub)
}

// SubscriberCount returns the number of active subscribers for
// namespace.
func (h *Hub) SubscriberCount(namespace string) int {
	nh := h.namespaceHubFor(namespace)
	nh.mu.Lock()
	defer nh.mu.Unlock()
	return len(nh.subscribers)
}

// Subscribe opens a subscription to namespace's change feed starting
// just after fromSeq. If fromSeq is within the ring buffer, replay
// starts there; if it has fallen behind the ring but the WAL still
// retains the range, replay uses HistorySource; otherwise the
// subscription opens with an immediate terminal Overflow so the caller
// reconciles via a fresh read instead of trusting a gap it cannot see.
func (h *Hub) Subscribe(namespace string, fromSeq uint64, bufferEvents int) *Subscriber {
	if bufferEvents <= 0 {
		bufferEvents = h.bufferEvents
	}
	sub := &Subscriber{
		Events:    make(chan types.Event, bufferEvents),
		Done:      make(chan struct{}),
		namespace: namespace,
	}

	sub.hub = h
	nh := h.namespaceHubFor(namespace)
	nh.mu.Lock()
	defer nh.mu.Unlock()

	// deliver queues a backlog without blocking; a backlog larger than
	// the buffer drops the subscriber with Overflow, as Publish does.
	deliver := func(events []types.Event) bool {
		for _, ev := range events {
			select {
			case sub.Events <- ev:
			default:
				h.overflowLocked(nh, sub, ev.CommitSeq-1)
				return false
			}
		}
		return true
	}

	backlog, covered := nh.ring.from(fromSeq)
	if covered {
		nh.subscribers[sub] = struct{}{}
		deliver(backlog)
		return sub
	}

	if h.history != nil {
		var replayed []types.Event
		ok, err := h.history.ReadFrom(fromSeq, func(ns string, ev types.Event) error {
			if ns == namespace {
				replayed = append(replayed, ev)
			}
			return nil
		})
		if err == nil && ok {
			nh.subscribers[sub] = struct{}{}
			if deliver(replayed) {
				deliver(backlog)
			}
			return sub
		}
	}

	// fromSeq has fallen off both the ring and the WAL: the
	// subscription opens and immediately terminates with Overflow, so
	// the caller reconciles via a fresh read rather than trusting a
	// gap it cannot see. It is never added to nh.subscribers, since it
	// never receives live events.
	sub.Events <- types.Event{
		Kind:       types.EventOverflow,
		Namespace:  namespace,
		LastCommit: fromSeq,
	}
	sub.closeOnce.Do(func() { close(sub.Done) })
	return sub
}
