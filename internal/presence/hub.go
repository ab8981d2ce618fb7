// Package presence tracks which operators have the desk open. Every operator
// holds one websocket; joining and leaving are broadcast to everybody.
package presence

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	sendBuffer   = 16
)

type client struct {
	user string
	conn *websocket.Conn
	send chan []byte
}

// Hub owns every live connection.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *logrus.Entry
}

func NewHub(logger *logrus.Logger, checkOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin:      checkOrigin,
		},
		logger: logger.WithField("component", "presence"),
	}
}

// Online returns the distinct connected users, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.online()
}

// online lists users. Callers hold h.mu.
func (h *Hub) online() []string {
	seen := make(map[string]struct{}, len(h.clients))
	users := make([]string, 0, len(h.clients))
	for c := range h.clients {
		if _, ok := seen[c.user]; ok {
			continue
		}
		seen[c.user] = struct{}{}
		users = append(users, c.user)
	}
	sort.Strings(users)
	return users
}

// Broadcast queues msg for every client. A client that cannot keep up is
// dropped.
func (h *Hub) Broadcast(msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.WithField("user", c.user).Warn("client too slow, dropping")
			h.remove(c)
		}
	}
}

// remove forgets c and stops its writer. Callers hold h.mu.
func (h *Hub) remove(c *client) bool {
	if _, ok := h.clients[c]; !ok {
		return false
	}
	delete(h.clients, c)
	close(c.send)
	return true
}

// ServeWS upgrades the request and serves user's connection until it closes.
// The new client first receives the online list as a JSON array, then every
// client receives `"<user>" online`.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, user string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := &client{user: user, conn: conn, send: make(chan []byte, sendBuffer)}

	// The greeting is queued under the same lock as registration so that a
	// concurrent Close or Broadcast cannot close c.send before it lands.
	h.mu.Lock()
	h.clients[c] = struct{}{}
	online, _ := json.Marshal(h.online())
	c.send <- online
	h.mu.Unlock()

	h.Broadcast([]byte(strconv.Quote(user) + " online"))
	h.logger.WithField("user", user).Info("operator connected")

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	removed := h.remove(c)
	h.mu.Unlock()
	if removed {
		h.Broadcast([]byte(strconv.Quote(user) + " offline"))
	}
	h.logger.WithField("user", user).Info("operator disconnected")
}

// readPump discards incoming messages and returns when the peer goes away.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.WithError(err).WithField("user", c.user).Debug("websocket read failed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.remove(c)
	}
}
