// Package notify carries "room changed" events to the participants of a room.
// Events only tell a client to refresh; the service stays the source of truth.
package notify

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventMessage         EventType = "message"
	EventClosed          EventType = "closed"
	EventReopenRequested EventType = "reopen_requested"
	EventReopenAccepted  EventType = "reopen_accepted"
	EventRead            EventType = "read"
	EventDeleted         EventType = "deleted"
	EventOpened          EventType = "opened"
)

type RoomEvent struct {
	Type    EventType `json:"type"`
	RoomID  uint64    `json:"roomId"`
	ActorID string    `json:"actorId"`
	Status  string    `json:"status,omitempty"`
	At      time.Time `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, recipients []string, ev RoomEvent) error
}

type Subscriber interface {
	// Subscribe streams events addressed to uid until cancel is called or ctx ends.
	Subscribe(ctx context.Context, uid string) (events <-chan RoomEvent, cancel func(), err error)
}

type Bus interface {
	Publisher
	Subscriber
}

const subscriberBuffer = 16

// Hub is an in-process Bus for single-instance deployments and tests.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan RoomEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan RoomEvent]struct{})}
}

// Publish never blocks; a subscriber with a full buffer misses the event and
// picks the change up on its next poll.
func (h *Hub) Publish(_ context.Context, recipients []string, ev RoomEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, uid := range recipients {
		for ch := range h.subs[uid] {
			select {
			case ch <- ev:
			default:
			}
		}
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, uid string) (<-chan RoomEvent, func(), error) {
	ch := make(chan RoomEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subs[uid] == nil {
		h.subs[uid] = make(map[chan RoomEvent]struct{})
	}
	h.subs[uid][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[uid], ch)
			if len(h.subs[uid]) == 0 {
				delete(h.subs, uid)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	go func() {
		<-ctx.Done()
		cancel()
	}()
	return ch, cancel, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, []string, RoomEvent) error { return nil }
