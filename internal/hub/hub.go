package hub

import (
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/sudhir-72744/remails-websocket/internal/auth"
)

// Lifecycle receives connection events from the transport. Implemented by
// the notification service.
type Lifecycle interface {
	OnConnect(channel string)
	OnRegisterUser(channel, userID string)
	OnDisconnect(channel string)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientFrame is what clients send: currently only registerUser.
type clientFrame struct {
	Event  string `json:"event"`
	UserID string `json:"userId"`
}

// serverFrame is the delivery envelope pushed to clients.
type serverFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type conn struct {
	ws *websocket.Conn
	mu sync.Mutex // gorilla allows one concurrent writer
}

func (c *conn) write(f serverFrame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteJSON(f)
}

// Hub owns the live websocket connections. Every connection gets a fresh
// channel handle; the handle dies with the connection.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*conn
	lifecycle Lifecycle
	verifier  *auth.JWTVerifier // optional; enables auto-register on connect
}

// New creates a hub. verifier may be nil, in which case clients register
// themselves with a registerUser frame.
func New(lifecycle Lifecycle, verifier *auth.JWTVerifier) *Hub {
	return &Hub{
		conns:     make(map[string]*conn),
		lifecycle: lifecycle,
		verifier:  verifier,
	}
}

// ServeWS upgrades the request and runs the connection's read loop until
// the peer goes away. Registered as a gin handler.
func (h *Hub) ServeWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	channel := uuid.NewString()

	h.mu.Lock()
	h.conns[channel] = &conn{ws: ws}
	h.mu.Unlock()

	h.lifecycle.OnConnect(channel)

	// A valid session token on the upgrade request registers the user
	// without a separate frame.
	if h.verifier != nil {
		if user, err := h.verifier.UserFromRequest(c.Request); err == nil {
			h.lifecycle.OnRegisterUser(channel, user.ID)
		}
	}

	defer func() {
		h.mu.Lock()
		delete(h.conns, channel)
		h.mu.Unlock()
		h.lifecycle.OnDisconnect(channel)
		ws.Close()
	}()

	for {
		var frame clientFrame
		if err := ws.ReadJSON(&frame); err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				log.Printf("peer closed channel %s", channel)
			} else {
				log.Printf("read error on channel %s: %v", channel, err)
			}
			return
		}

		switch frame.Event {
		case "registerUser":
			h.lifecycle.OnRegisterUser(channel, frame.UserID)
		default:
			log.Printf("unknown client event %q on channel %s", frame.Event, channel)
		}
	}
}

// Send pushes one event to a single channel.
func (h *Hub) Send(channel, event string, payload any) error {
	h.mu.RLock()
	c, ok := h.conns[channel]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("no such channel %s", channel)
	}
	return c.write(serverFrame{Event: event, Data: payload})
}

// Broadcast pushes one event to every live channel. Per-connection write
// failures are logged and skipped; a dying peer must not block the rest.
func (h *Hub) Broadcast(event string, payload any) {
	h.mu.RLock()
	snapshot := make(map[string]*conn, len(h.conns))
	for ch, c := range h.conns {
		snapshot[ch] = c
	}
	h.mu.RUnlock()

	for ch, c := range snapshot {
		if err := c.write(serverFrame{Event: event, Data: payload}); err != nil {
			log.Printf("broadcast to channel %s failed: %v", ch, err)
		}
	}
}

// Len returns the number of live connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Close tears down every connection.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.conns {
		c.ws.Close()
	}
	h.conns = make(map[string]*conn)
}
