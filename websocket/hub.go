package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/anjiri1684/messaging/notifications"
)

const (
	writeWait    = 10 * time.Second
	clientBuffer = 32
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

type Client struct {
	UserID string
	Conn   Conn

	send chan notifications.Event
}

// Hub pushes change events to the connected clients listed as recipients.
// Client bookkeeping happens on the Run goroutine; each client has its own
// writer goroutine, so a stalled socket only loses its own events.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	events     chan notifications.Event
	done       chan struct{}
	clients    map[string]map[*Client]struct{}
	log        *slog.Logger
}

func NewHub(log *slog.Logger, buffer int) *Hub {
	if buffer <= 0 {
		buffer = 256
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan notifications.Event, buffer),
		done:       make(chan struct{}),
		clients:    make(map[string]map[*Client]struct{}),
		log:        log,
	}
}

// Run serves registrations and events until ctx is cancelled, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
					_ = c.Conn.Close()
				}
			}
			h.clients = map[string]map[*Client]struct{}{}
			return
		case client := <-h.register:
			h.log.Debug("client registered", "user_id", client.UserID)
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.UserID] = set
			}
			client.send = make(chan notifications.Event, clientBuffer)
			set[client] = struct{}{}
			go h.write(client)
		case client := <-h.unregister:
			h.log.Debug("client unregistered", "user_id", client.UserID)
			h.remove(client)
		case evt := <-h.events:
			h.deliver(evt)
		}
	}
}

func (h *Hub) deliver(evt notifications.Event) {
	for _, userID := range evt.Recipients {
		for c := range h.clients[userID] {
			select {
			case c.send <- evt:
			default:
				h.log.Warn("websocket client too slow, disconnecting", "user_id", userID, "event_id", evt.ID)
				h.remove(c)
				_ = c.Conn.Close()
			}
		}
	}
}

// write drains c.send onto the socket until the hub closes the queue or a
// write fails.
func (h *Hub) write(c *Client) {
	for evt := range c.send {
		if d, ok := c.Conn.(writeDeadliner); ok {
			_ = d.SetWriteDeadline(time.Now().Add(writeWait))
		}
		if err := c.Conn.WriteJSON(evt); err != nil {
			h.log.Warn("websocket write failed", "user_id", c.UserID, "event_id", evt.ID, "error", err)
			_ = c.Conn.Close()
			h.Unregister(c)
			for range c.send {
			}
			return
		}
	}
}

// remove forgets c and closes its queue. Unknown or already removed clients
// are ignored.
func (h *Hub) remove(c *Client) {
	set, ok := h.clients[c.UserID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	close(c.send)
	if len(set) == 0 {
		delete(h.clients, c.UserID)
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish queues evt for delivery. When the queue is full the event is
// dropped; clients can catch up through the query endpoints.
func (h *Hub) Publish(_ context.Context, evt notifications.Event) {
	select {
	case h.events <- evt:
	case <-h.done:
	default:
		h.log.Warn("websocket hub queue full, dropping event", "event_id", evt.ID, "kind", evt.Kind)
	}
}

// Done is closed once Run has returned.
func (h *Hub) Done() <-chan struct{} { return h.done }
