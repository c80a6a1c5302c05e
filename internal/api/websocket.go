package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rawblock/memecoin-radar/internal/obs"
	"github.com/rawblock/memecoin-radar/internal/orchestrator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin enforcement happens in the CORS middleware, not here
	},
}

const writeDeadline = 5 * time.Second

const (
	topicHotlist  = "hotlist"
	topicListings = "listings"
	topicHealth   = "health"
)

// clientMessage is the shape a client sends to (un)subscribe from a topic.
type clientMessage struct {
	Type  string `json:"type"` // "subscribe" | "unsubscribe"
	Topic string `json:"topic"`
}

// wsSubscriber adapts a single websocket connection to orchestrator.Subscriber.
// Notify enqueues onto a buffered channel rather than writing directly, since
// Hub.Publish calls Notify synchronously for every subscriber in turn and must
// never block on one slow client. Delivery is filtered to whichever topics
// this connection has actually subscribed to.
type wsSubscriber struct {
	conn *websocket.Conn
	send chan orchestrator.Envelope

	mu     sync.Mutex
	topics map[string]struct{}
}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	return &wsSubscriber{
		conn:   conn,
		send:   make(chan orchestrator.Envelope, 64),
		topics: make(map[string]struct{}),
	}
}

func (s *wsSubscriber) subscribed(topic string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.topics[topic]
	return ok
}

func (s *wsSubscriber) setSubscribed(topic string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if on {
		s.topics[topic] = struct{}{}
	} else {
		delete(s.topics, topic)
	}
}

// Notify enqueues env for delivery if this connection has subscribed to its
// topic (or the envelope is a control message, delivered unconditionally).
func (s *wsSubscriber) Notify(env orchestrator.Envelope) error {
	switch env.Type {
	case orchestrator.EnvelopeHotlist:
		if !s.subscribed(topicHotlist) {
			return nil
		}
	case orchestrator.EnvelopeListing:
		if !s.subscribed(topicListings) {
			return nil
		}
	case orchestrator.EnvelopeHealth:
		if !s.subscribed(topicHealth) {
			return nil
		}
	}
	s.enqueue(env)
	return nil
}

func (s *wsSubscriber) enqueue(env orchestrator.Envelope) {
	select {
	case s.send <- env:
	default:
		// Slow consumer: drop the oldest queued envelope in favor of the
		// newest, matching the collector's own coalesce-under-backpressure
		// policy for lagging consumers.
		select {
		case <-s.send:
		default:
		}
		s.send <- env
	}
}

func (s *wsSubscriber) writePump() {
	for env := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		if err := s.conn.WriteJSON(env); err != nil {
			return
		}
	}
}

func envelope(kind string, data any) orchestrator.Envelope {
	return orchestrator.Envelope{Type: kind, Data: data, Timestamp: time.Now().UnixMilli()}
}

// snapshotFor returns the current state to deliver immediately when a client
// subscribes to topic, or ok=false if the topic has no queryable snapshot
// (listings are event-only; there is no "current listing").
func snapshotFor(orch *orchestrator.Orchestrator, topic string) (any, bool) {
	switch topic {
	case topicHotlist:
		return orch.Hotlist(), true
	case topicHealth:
		return orch.Health(), true
	default:
		return nil, false
	}
}

// HandleStream upgrades the connection, greets it with a connection
// envelope, and services subscribe/unsubscribe control messages: each
// subscribe immediately replies with a snapshot of current state (where one
// exists) before the connection starts receiving live updates for that
// topic via hub.
func HandleStream(orch *orchestrator.Orchestrator) gin.HandlerFunc {
	hub := orch.Hub()
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			obs.Component("api.websocket").Warn().Err(err).Msg("websocket upgrade failed")
			return
		}

		id := uuid.NewString()
		sub := newWSSubscriber(conn)
		hub.Subscribe(id, sub)

		go sub.writePump()

		defer func() {
			hub.Unsubscribe(id)
			close(sub.send)
			conn.Close()
		}()

		sub.enqueue(envelope("connection", gin.H{"id": id}))

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					obs.Component("api.websocket").Warn().Err(err).Msg("websocket read error")
				}
				return
			}

			var msg clientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				sub.enqueue(envelope("error", gin.H{"error": "malformed message"}))
				continue
			}

			switch msg.Type {
			case "subscribe":
				sub.setSubscribed(msg.Topic, true)
				sub.enqueue(envelope("subscribed", gin.H{"topic": msg.Topic}))
				if snap, ok := snapshotFor(orch, msg.Topic); ok {
					var kind string
					switch msg.Topic {
					case topicHotlist:
						kind = orchestrator.EnvelopeHotlist
					case topicHealth:
						kind = orchestrator.EnvelopeHealth
					}
					sub.enqueue(envelope(kind, snap))
				}
			case "unsubscribe":
				sub.setSubscribed(msg.Topic, false)
				sub.enqueue(envelope("unsubscribed", gin.H{"topic": msg.Topic}))
			default:
				sub.enqueue(envelope("error", gin.H{"error": "unknown message type"}))
			}
		}
	}
}
