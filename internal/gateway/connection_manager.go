package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/joshuahaertel/friendexing/internal/metrics"
)

// adminGroup returns the admin-scoped group id overlapping a game's group.
func adminGroup(gameID string) string {
	return "admin:" + gameID
}

// ConnectionManager owns broadcast group membership and message routing. A
// player connection belongs to its game's group; an admin connection belongs
// to the game group and the admin group. All group sends funnel through one
// dispatch goroutine, so per-connection delivery is FIFO in the order the
// state machine issued broadcasts for that game.
type ConnectionManager struct {
	groups map[string]map[*Connection]bool
	mu     sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig

	// router handles inbound frames; wired by the service before any
	// connection is accepted.
	router Router

	broadcastCh chan groupMessage
}

// Router dispatches one inbound frame from a connection.
type Router interface {
	Route(conn *Connection, payload []byte)
}

// SetRouter wires the inbound message router.
func (cm *ConnectionManager) SetRouter(router Router) {
	cm.router = router
}

// route hands an inbound frame to the router.
func (cm *ConnectionManager) route(conn *Connection, payload []byte) {
	if cm.router == nil {
		log.Warn().Str("connection_id", conn.ID).Msg("inbound frame dropped, no router wired")
		return
	}
	cm.router.Route(conn, payload)
}

// Connection represents one websocket participant.
type Connection struct {
	ID       string
	PlayerID uuid.UUID
	GameID   string
	IsAdmin  bool
	Conn     *websocket.Conn
	Send     chan []byte
	Manager  *ConnectionManager

	ConnectedAt time.Time

	closeOnce sync.Once
}

// ConnectionConfig holds websocket tuning knobs.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

type groupMessage struct {
	GroupID string
	Payload []byte
}

// DefaultConnectionConfig returns the default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a connection manager.
func NewConnectionManager(config ConnectionConfig) *ConnectionManager {
	return &ConnectionManager{
		groups: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan groupMessage, 1024),
	}
}

// Start runs the broadcast dispatch loop until the context is cancelled.
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			return
		case message := <-cm.broadcastCh:
			cm.deliver(message)
		}
	}
}

// Broadcast queues a pre-marshaled payload for every connection in a group.
func (cm *ConnectionManager) Broadcast(groupID string, payload []byte) {
	select {
	case cm.broadcastCh <- groupMessage{GroupID: groupID, Payload: payload}:
	default:
		log.Warn().Str("group_id", groupID).Msg("broadcast channel full, dropping message")
	}
}

// register adds a connection to its group(s) and starts its pumps.
func (cm *ConnectionManager) register(conn *Connection) {
	cm.mu.Lock()
	cm.addToGroup(conn.GameID, conn)
	if conn.IsAdmin {
		cm.addToGroup(adminGroup(conn.GameID), conn)
	}
	cm.mu.Unlock()
	metrics.ActiveConnections.Inc()

	go conn.writePump()
	go conn.readPump()

	log.Info().
		Str("connection_id", conn.ID).
		Str("player_id", conn.PlayerID.String()).
		Str("game_id", conn.GameID).
		Bool("admin", conn.IsAdmin).
		Msg("connection established")
}

func (cm *ConnectionManager) addToGroup(groupID string, conn *Connection) {
	if cm.groups[groupID] == nil {
		cm.groups[groupID] = make(map[*Connection]bool)
	}
	cm.groups[groupID][conn] = true
}

// unregister removes a connection from every group it joined. Removal is
// idempotent and independent per connection; an abrupt network loss on one
// connection never blocks the others.
func (cm *ConnectionManager) unregister(conn *Connection) {
	removed := false
	cm.mu.Lock()
	for _, groupID := range conn.groupIDs() {
		if connections, ok := cm.groups[groupID]; ok {
			if connections[conn] {
				delete(connections, conn)
				removed = true
			}
			if len(connections) == 0 {
				delete(cm.groups, groupID)
			}
		}
	}
	cm.mu.Unlock()

	if removed {
		conn.closeOnce.Do(func() { close(conn.Send) })
		metrics.ActiveConnections.Dec()
		log.Info().
			Str("connection_id", conn.ID).
			Str("game_id", conn.GameID).
			Msg("connection unregistered")
	}
}

func (c *Connection) groupIDs() []string {
	if c.IsAdmin {
		return []string{c.GameID, adminGroup(c.GameID)}
	}
	return []string{c.GameID}
}

// deliver fans a payload out to a snapshot of the group's members.
func (cm *ConnectionManager) deliver(message groupMessage) {
	cm.mu.RLock()
	connections := make([]*Connection, 0, len(cm.groups[message.GroupID]))
	for conn := range cm.groups[message.GroupID] {
		connections = append(connections, conn)
	}
	cm.mu.RUnlock()

	for _, conn := range connections {
		if !conn.trySend(message.Payload) {
			log.Warn().
				Str("connection_id", conn.ID).
				Str("game_id", conn.GameID).
				Msg("send buffer full, closing connection")
			cm.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// trySend queues a payload without blocking; false means the connection is
// slow or dead.
func (c *Connection) trySend(payload []byte) bool {
	defer func() {
		// Send may already be closed by a concurrent unregister.
		recover()
	}()
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("write failed")
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads inbound frames and hands them to the router. The router is
// set by the websocket handler before the pumps start.
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			break
		}
		c.Manager.route(c, message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
