// Package pubsub fans newly stored messages out to per-worker subscribers.
package pubsub

import (
	"sync"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/maverika/maverika/internal/domain/message"
)

// Handler receives messages addressed to a subscribed worker.
type Handler func(m *message.Message)

// DefaultBufferSize bounds each subscription's backlog.
const DefaultBufferSize = 64

type subscription struct {
	id      string
	ch      chan *message.Message
	handler Handler
}

// Hub manages per-worker subscriptions. Delivery is at-most-once: a message
// is dropped for a subscriber whose buffer is full.
type Hub struct {
	mu         sync.RWMutex
	subs       map[uuid.UUID]map[string]*subscription
	bufferSize int
	logger     zerolog.Logger
}

func NewHub(bufferSize int, logger zerolog.Logger) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		subs:       make(map[uuid.UUID]map[string]*subscription),
		bufferSize: bufferSize,
		logger:     logger.With().Str("component", "pubsub").Logger(),
	}
}

// Subscribe registers handler for messages addressed to workerID and
// returns a function that removes the subscription.
func (h *Hub) Subscribe(workerID uuid.UUID, handler Handler) func() {
	sub := &subscription{
		id:      ulid.Make().String(),
		ch:      make(chan *message.Message, h.bufferSize),
		handler: handler,
	}
	h.mu.Lock()
	if h.subs[workerID] == nil {
		h.subs[workerID] = make(map[string]*subscription)
	}
	h.subs[workerID][sub.id] = sub
	h.mu.Unlock()

	go h.drain(workerID, sub)

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(workerID, sub.id) })
	}
}

// Publish delivers m to every subscriber of its recipient.
func (h *Hub) Publish(m *message.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs[m.ToEVEID] {
		select {
		case sub.ch <- m.Clone():
		default:
			h.logger.Warn().
				Str("subscription_id", sub.id).
				Str("message_id", m.ID.String()).
				Msg("subscriber buffer full; message dropped")
		}
	}
}

// SubscriberCount returns the number of live subscriptions for workerID.
func (h *Hub) SubscriberCount(workerID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[workerID])
}

// Stop removes every subscription.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for workerID, subs := range h.subs {
		for id, sub := range subs {
			close(sub.ch)
			delete(subs, id)
		}
		delete(h.subs, workerID)
	}
}

func (h *Hub) unsubscribe(workerID uuid.UUID, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[workerID]
	if sub, ok := subs[id]; ok {
		close(sub.ch)
		delete(subs, id)
	}
	if len(subs) == 0 {
		delete(h.subs, workerID)
	}
}

func (h *Hub) drain(workerID uuid.UUID, sub *subscription) {
	for m := range sub.ch {
		var catcher panics.Catcher
		catcher.Try(func() { sub.handler(m) })
		if r := catcher.Recovered(); r != nil {
			h.logger.Error().
				Err(r.AsError()).
				Str("eve_id", workerID.String()).
				Str("message_id", m.ID.String()).
				Msg("message handler panicked")
		}
	}
}
