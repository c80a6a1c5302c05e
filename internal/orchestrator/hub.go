package orchestrator

import (
	"sync"

	"github.com/rawblock/memecoin-radar/internal/obs"
)

// Envelope is the message shape delivered to every subscriber, matching the
// external WebSocket contract the API layer exposes.
type Envelope struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

const (
	EnvelopeHotlist = "hotlist"
	EnvelopeListing = "listing"
	EnvelopeHealth  = "health"
)

// Subscriber receives published envelopes. A Notify failure (e.g. a dead
// websocket connection) is logged and otherwise ignored — it never affects
// delivery to other subscribers or the pipeline itself.
type Subscriber interface {
	Notify(Envelope) error
}

// Hub is a copy-on-iterate subscriber set: notifications may proceed while
// subscribers are concurrently added or removed. It generalizes a plain
// "one topic, all clients" broadcast hub into topic-tagged envelopes fanned
// out to every subscriber regardless of topic (the API layer filters by
// topic per connection).
type Hub struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]Subscriber)}
}

func (h *Hub) Subscribe(id string, s Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs[id] = s
}

func (h *Hub) Unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, id)
}

// Publish fans env out to a snapshot copy of the current subscriber set.
func (h *Hub) Publish(env Envelope) {
	h.mu.RLock()
	subsCopy := make(map[string]Subscriber, len(h.subs))
	for id, s := range h.subs {
		subsCopy[id] = s
	}
	h.mu.RUnlock()

	for id, s := range subsCopy {
		if err := s.Notify(env); err != nil {
			obs.Component("orchestrator.hub").Warn().Err(err).
				Str("subscriber", id).Str("type", env.Type).
				Msg("subscriber notify failed")
		}
	}
}
