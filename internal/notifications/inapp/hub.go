// Package inapp implements the in-app notification channel: a websocket hub
// for connected clients, an optional Redis fan-out for multi-instance
// deployments, and the channel sender that plugs into the dispatcher.
package inapp

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"

	corepkg "mizan/internal/notifications/core"
	"mizan/internal/types"
)

// Compile-time assertion that Hub implements InAppPublisher.
var _ corepkg.InAppPublisher = (*Hub)(nil)

// envelope routes one event to one user's connections.
type envelope struct {
	userID string
	event  types.InAppEvent
}

// Hub tracks connected websocket clients per user and fans events out to
// them. All registration and delivery flows through the Run loop, so the
// clients map needs no locking.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	publish    chan envelope

	// clients maps user id to that user's open connections. A user with
	// the app open on two devices has two entries.
	clients map[string]map[*Client]bool

	logger types.Logger
}

// NewHub creates a Hub. Call Run in a goroutine before serving connections.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		publish:    make(chan envelope, 256),
		clients:    make(map[string]map[*Client]bool),
		logger:     logger,
	}
}

// Run processes registration and publish events until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for _, conns := range h.clients {
				for c := range conns {
					close(c.send)
				}
			}
			h.clients = make(map[string]map[*Client]bool)
			return

		case c := <-h.register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*Client]bool)
			}
			h.clients[c.userID][c] = true
			h.logger.Info("websocket client connected",
				"user_id", c.userID,
				"connections", len(h.clients[c.userID]),
			)

		case c := <-h.unregister:
			if conns, ok := h.clients[c.userID]; ok && conns[c] {
				delete(conns, c)
				close(c.send)
				if len(conns) == 0 {
					delete(h.clients, c.userID)
				}
				h.logger.Info("websocket client disconnected", "user_id", c.userID)
			}

		case env := <-h.publish:
			for c := range h.clients[env.userID] {
				select {
				case c.send <- env.event:
				default:
					// Slow consumer; drop the connection rather than block
					// the hub loop.
					delete(h.clients[env.userID], c)
					close(c.send)
				}
			}
		}
	}
}

// PublishToUser queues an event for all of the user's connections. A user
// with no open connections is not an error; the notification row remains in
// their feed for the next session.
func (h *Hub) PublishToUser(ctx context.Context, userID string, ev types.InAppEvent) error {
	select {
	case h.publish <- envelope{userID: userID, event: ev}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// upgrader accepts any origin; the endpoint sits behind session auth that
// already validated the caller.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeWS upgrades an HTTP request to a websocket connection for the
// authenticated user and starts its pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err.Error())
		return
	}

	c := newClient(h, conn, userID)
	h.register <- c

	go c.writePump()
	go c.readPump()
}
