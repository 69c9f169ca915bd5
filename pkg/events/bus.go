// Package events is the live-state fan-out: the job manager publishes job
// snapshots and deltas here, and WebSocket connections subscribe.
package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/gooseworks/goose/pkg/models"
)

// Event type labels on the run-stream wire protocol.
const (
	EventTypeSnapshot = "snapshot"
	EventTypeJob      = "job"
)

// Event is one run-stream message. Snapshot events carry Jobs; job events
// carry Job.
type Event struct {
	Type string       `json:"type"`
	Jobs []models.Job `json:"jobs,omitempty"`
	Job  *models.Job  `json:"job,omitempty"`
}

// Bus broadcasts job-state changes to any number of subscribers. A slow
// subscriber never blocks the publisher or its peers: each subscription owns
// a queue in which pending job deltas are coalesced per job id, keeping only
// the latest state. Snapshots are never coalesced or dropped.
type Bus struct {
	logger *slog.Logger

	mu   sync.RWMutex
	subs map[string]*Subscription
}

// NewBus creates an empty bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		logger: logger.With("component", "events"),
		subs:   make(map[string]*Subscription),
	}
}

// Subscribe registers a new subscriber and immediately queues the given
// snapshot as its first event, so a late subscriber starts from complete
// state before any delta arrives.
func (b *Bus) Subscribe(snapshot []models.Job) *Subscription {
	sub := &Subscription{
		id:      uuid.New().String(),
		bus:     b,
		pending: make(map[string]*queuedEvent),
		wake:    make(chan struct{}, 1),
		out:     make(chan Event),
		done:    make(chan struct{}),
	}
	sub.enqueue(Event{Type: EventTypeSnapshot, Jobs: snapshot}, "")

	b.mu.Lock()
	b.subs[sub.id] = sub
	count := len(b.subs)
	b.mu.Unlock()

	go sub.pump()

	b.logger.Debug("Subscriber added", "subscription_id", sub.id, "subscribers", count)
	return sub
}

// PublishDelta broadcasts one job's new state to every subscriber. The
// caller passes a detached clone; the bus never mutates it.
func (b *Bus) PublishDelta(job models.Job) {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		sub.enqueue(Event{Type: EventTypeJob, Job: &job}, job.ID)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(id string) {
	b.mu.Lock()
	delete(b.subs, id)
	b.mu.Unlock()
}

type queuedEvent struct {
	event Event
}

// Subscription is one subscriber's view of the bus. Events arrive on Events()
// in publication order; the channel is closed after Close.
type Subscription struct {
	id  string
	bus *Bus

	mu      sync.Mutex
	queue   []*queuedEvent
	pending map[string]*queuedEvent // jobID → coalescible queued delta
	closed  bool

	wake chan struct{}
	out  chan Event
	done chan struct{}
}

// Events returns the delivery channel. It is closed when the subscription
// is closed.
func (s *Subscription) Events() <-chan Event {
	return s.out
}

// Close detaches the subscription from the bus. Idempotent.
func (s *Subscription) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.bus.remove(s.id)
}

// enqueue adds an event to the queue. A delta whose job already has a
// pending delta replaces it in place, preserving queue position.
func (s *Subscription) enqueue(event Event, jobID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if jobID != "" {
		if existing, ok := s.pending[jobID]; ok {
			existing.event = event
			s.mu.Unlock()
			return
		}
	}
	qe := &queuedEvent{event: event}
	s.queue = append(s.queue, qe)
	if jobID != "" {
		s.pending[jobID] = qe
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump drains the queue into the out channel. It is the only writer of out.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.done:
				return
			}
		}
		qe := s.queue[0]
		s.queue = s.queue[1:]
		// Once dequeued the event is final; later deltas for the same job
		// start a fresh queue entry.
		if qe.event.Job != nil && s.pending[qe.event.Job.ID] == qe {
			delete(s.pending, qe.event.Job.ID)
		}
		s.mu.Unlock()

		select {
		case s.out <- qe.event:
		case <-s.done:
			return
		}
	}
}
