package websocket

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"admissions-portal/portal-backend/internal/notifications"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// ErrClosed is returned when broadcasting on a closed manager
var ErrClosed = errors.New("websocket manager closed")

// Manager fans notification events out to connected dashboard clients
type Manager struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan notifications.Event
	stop       chan struct{}
	done       chan struct{}
	stopOnce   sync.Once

	count atomic.Int64
}

// Connection is one dashboard client
type Connection struct {
	ID     string
	UserID string

	conn *websocket.Conn
	send chan notifications.Event

	mu     sync.Mutex
	topics map[notifications.EventType]bool
}

// clientMessage is what clients send to change their subscription
type clientMessage struct {
	Action string                    `json:"action"` // subscribe, unsubscribe
	Types  []notifications.EventType `json:"types"`
}

// NewManager creates a new WebSocket manager and starts its hub
func NewManager(allowedOrigins []string, logger *zap.Logger) *Manager {
	m := &Manager{
		logger:     logger,
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan notifications.Event, 256),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}

	go m.run()

	return m
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Handle upgrades GET /ws requests
func (m *Manager) Handle(c *gin.Context) {
	userID := notifications.UserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user id required"})
		return
	}

	if _, err := m.Connect(c.Writer, c.Request, userID); err != nil {
		m.logger.Warn("WebSocket connection rejected", zap.Error(err))
	}
}

// Connect upgrades the request and registers the connection
func (m *Manager) Connect(w http.ResponseWriter, r *http.Request, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		conn:   conn,
		send:   make(chan notifications.Event, sendBuffer),
	}

	select {
	case m.register <- connection:
	case <-m.done:
		conn.Close()
		return nil, ErrClosed
	}

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// Broadcast queues event for every interested connection
func (m *Manager) Broadcast(event notifications.Event) error {
	select {
	case <-m.done:
		return ErrClosed
	default:
	}

	select {
	case m.broadcast <- event:
		return nil
	case <-m.done:
		return ErrClosed
	default:
		return fmt.Errorf("broadcast channel full")
	}
}

// ConnectionCount returns the number of active connections
func (m *Manager) ConnectionCount() int {
	return int(m.count.Load())
}

// Close disconnects every client and stops the hub
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	<-m.done
}

// run owns the connection set
func (m *Manager) run() {
	connections := make(map[*Connection]bool)
	drop := func(conn *Connection) {
		if connections[conn] {
			delete(connections, conn)
			close(conn.send)
			m.count.Add(-1)
		}
	}

	for {
		select {
		case conn := <-m.register:
			connections[conn] = true
			m.count.Add(1)
			m.logger.Debug("Connection registered",
				zap.String("connection_id", conn.ID),
				zap.String("user_id", conn.UserID))

		case conn := <-m.unregister:
			drop(conn)

		case event := <-m.broadcast:
			for conn := range connections {
				if !conn.wants(event) {
					continue
				}
				select {
				case conn.send <- event:
				default:
					m.logger.Warn("Dropping slow connection", zap.String("connection_id", conn.ID))
					drop(conn)
				}
			}

		case <-m.stop:
			for conn := range connections {
				drop(conn)
			}
			close(m.done)
			return
		}
	}
}

// wants reports whether event is addressed to this connection and subscribed to.
// A connection with no subscriptions receives every type.
func (c *Connection) wants(event notifications.Event) bool {
	if event.Target != "" && event.Target != c.UserID {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.topics) == 0 || c.topics[event.Type]
}

func (c *Connection) apply(msg clientMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.topics == nil {
		c.topics = make(map[notifications.EventType]bool)
	}
	for _, t := range msg.Types {
		switch msg.Action {
		case "subscribe":
			c.topics[t] = true
		case "unsubscribe":
			delete(c.topics, t)
		}
	}
}

// readPump handles subscription messages until the client goes away
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.unregister <- conn:
		case <-m.done:
		}
		conn.conn.Close()
	}()

	conn.conn.SetReadLimit(4096)
	conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg clientMessage
		if err := conn.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				m.logger.Debug("WebSocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		conn.apply(msg)
	}
}

// writePump forwards queued events and keeps the connection alive
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.conn.Close()
	}()

	for {
		select {
		case event, ok := <-conn.send:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.conn.WriteJSON(event); err != nil {
				return
			}

		case <-ticker.C:
			conn.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
