package eventbus

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelier-ai/atelier-engine/pkg/metrics"
)

// Handler receives events for a subscription. It is invoked from the
// subscription's own goroutine, one event at a time, in publish order.
type Handler func(Event)

// Bus fans events out to per-project subscribers. Publishers never block
// on slow subscribers: each subscription owns a queue drained by its own
// goroutine, and the bus lock serializes appends so every subscriber of a
// project observes the same order.
type Bus struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[uint64]*subscription
	nextID uint64
	closed bool

	logger *zap.Logger
}

type subscription struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []Event
	closed  bool
	handler Handler
}

// New creates an event bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		subs:   make(map[uuid.UUID]map[uint64]*subscription),
		logger: logger.Named("eventbus"),
	}
}

// Subscribe registers a handler for the given project's events and
// returns an unsubscribe function. Events published before Subscribe are
// never delivered; callers needing history must re-fetch state first.
func (b *Bus) Subscribe(projectID uuid.UUID, handler Handler) func() {
	sub := &subscription{handler: handler}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	id := b.nextID
	if b.subs[projectID] == nil {
		b.subs[projectID] = make(map[uint64]*subscription)
	}
	b.subs[projectID][id] = sub
	b.mu.Unlock()

	go sub.run()

	b.logger.Debug("subscriber added", zap.String("project_id", projectID.String()))

	return func() {
		b.mu.Lock()
		if projSubs, ok := b.subs[projectID]; ok {
			delete(projSubs, id)
			if len(projSubs) == 0 {
				delete(b.subs, projectID)
			}
		}
		b.mu.Unlock()
		sub.close()
	}
}

// Publish delivers the event to every active subscriber of its project.
// Cross-project ordering is not guaranteed.
func (b *Bus) Publish(event Event) {
	metrics.EventsPublished.WithLabelValues(event.EventType()).Inc()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*subscription, 0, len(b.subs[event.Project()]))
	for _, sub := range b.subs[event.Project()] {
		targets = append(targets, sub)
	}
	// Enqueue while still holding the bus lock so concurrent publishes
	// reach all subscribers in the same order.
	for _, sub := range targets {
		sub.enqueue(event)
	}
	b.mu.Unlock()

	b.logger.Debug("event published",
		zap.String("type", event.EventType()),
		zap.String("project_id", event.Project().String()),
		zap.Int("subscribers", len(targets)))
}

// Close shuts down the bus. Queued events are still drained to their
// subscribers; subsequent Publish and Subscribe calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	var all []*subscription
	for _, projSubs := range b.subs {
		for _, sub := range projSubs {
			all = append(all, sub)
		}
	}
	b.subs = make(map[uuid.UUID]map[uint64]*subscription)
	b.mu.Unlock()

	for _, sub := range all {
		sub.close()
	}
}

func (s *subscription) enqueue(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue = append(s.queue, event)
	s.cond.Signal()
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.cond.Signal()
	s.mu.Unlock()
}

func (s *subscription) run() {
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.queue) == 0 && s.closed {
			s.mu.Unlock()
			return
		}
		event := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.handler(event)
	}
}
