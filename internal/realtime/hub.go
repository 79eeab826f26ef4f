// Package realtime pushes point and badge events to websocket clients.
package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ecolearn/ecolearn-api/internal/points"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	TypePointsAwarded       = "points_awarded"
	TypeBadgeEarned         = "badge_earned"
	TypeCompletionSubmitted = "completion_submitted"

	sendBuffer = 64
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

type Message struct {
	Type      string    `json:"type"`
	School    string    `json:"school,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

type client struct {
	id     string
	school string
	conn   *websocket.Conn
	send   chan []byte
}

// Hub fans messages out to connected clients. A client whose buffer is full is dropped.
type Hub struct {
	log        *zap.Logger
	upgrader   websocket.Upgrader
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan Message
	count      chan chan int
	done       chan struct{}
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		log: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan Message, 256),
		count:      make(chan chan int),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			return

		case c := <-h.register:
			h.clients[c] = true
			h.log.Debug("Leaderboard client connected", zap.String("client_id", c.id), zap.String("school", c.school))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}

		case msg := <-h.broadcast:
			payload, err := json.Marshal(msg)
			if err != nil {
				h.log.Error("Failed to encode hub message", zap.Error(err))
				continue
			}
			for c := range h.clients {
				if c.school != "" && msg.School != "" && c.school != msg.School {
					continue
				}
				select {
				case c.send <- payload:
				default:
					h.log.Warn("Dropping slow leaderboard client", zap.String("client_id", c.id))
					delete(h.clients, c)
					close(c.send)
				}
			}

		case reply := <-h.count:
			reply <- len(h.clients)
		}
	}
}

// Publish queues a message without blocking the caller.
func (h *Hub) Publish(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- msg:
	default:
		h.log.Warn("Hub broadcast queue full, dropping message", zap.String("type", msg.Type))
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	reply := make(chan int)
	select {
	case h.count <- reply:
		return <-reply
	case <-h.done:
		return 0
	}
}

func (h *Hub) PointsAwarded(_ context.Context, ev points.AwardEvent) {
	h.Publish(Message{Type: TypePointsAwarded, School: ev.School, Data: ev, Timestamp: ev.At})
	for _, b := range ev.NewBadges {
		h.Publish(Message{
			Type:   TypeBadgeEarned,
			School: ev.School,
			Data: map[string]any{
				"userId":   ev.UserID,
				"username": ev.Username,
				"badge":    b,
			},
			Timestamp: ev.At,
		})
	}
}

func (h *Hub) CompletionSubmitted(_ context.Context, ev points.SubmissionEvent) {
	h.Publish(Message{Type: TypeCompletionSubmitted, School: ev.School, Data: ev, Timestamp: ev.At})
}

// ServeHTTP upgrades to a websocket. ?school= limits events to one school.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		id:     uuid.NewString(),
		school: r.URL.Query().Get("school"),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

// readPump only watches for close and pong frames.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Leaderboard client read error", zap.String("client_id", c.id), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
