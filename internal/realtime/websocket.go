package realtime

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"marketplace_backend/platform/config"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// SocketConfig holds the transport settings. The hub never interprets them.
type SocketConfig struct {
	AllowAllOrigins bool
	Origins         []string
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

// SocketConfigFrom reads transport settings from the application config.
func SocketConfigFrom(cfg config.RealtimeConfig) SocketConfig {
	return SocketConfig{
		AllowAllOrigins: cfg.GetRealtimeAllowAll(),
		Origins:         cfg.GetRealtimeOrigins(),
		PingInterval:    cfg.GetPingInterval(),
		PongWait:        cfg.GetPongWait(),
		WriteWait:       cfg.GetWriteWait(),
		SendBuffer:      cfg.GetSendBuffer(),
		MaxMessageBytes: cfg.GetMaxMessageBytes(),
	}
}

func (c SocketConfig) withDefaults() SocketConfig {
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingInterval <= 0 || c.PingInterval >= c.PongWait {
		c.PingInterval = (c.PongWait * 9) / 10
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 64 * 1024
	}
	return c
}

// checkOrigin admits requests without an Origin header (non-browser clients),
// any origin when all are allowed, and otherwise exact matches only.
func (c SocketConfig) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || c.AllowAllOrigins {
		return true
	}
	for _, allowed := range c.Origins {
		if allowed == origin {
			return true
		}
	}
	return false
}

// wsConn adapts a gorilla websocket to Conn. Outbound messages go through a
// buffered channel drained by writePump; Send never touches the socket.
type wsConn struct {
	id   string
	ws   *websocket.Conn
	cfg  SocketConfig
	send chan Message
	done chan struct{}
	once sync.Once
}

func newWSConn(ws *websocket.Conn, cfg SocketConfig) *wsConn {
	return &wsConn{
		id:   uuid.NewString(),
		ws:   ws,
		cfg:  cfg,
		send: make(chan Message, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *wsConn) ID() string { return c.id }

func (c *wsConn) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which sends a close frame and closes the socket.
func (c *wsConn) Close() error {
	c.shutdown()
	return nil
}

func (c *wsConn) shutdown() {
	c.once.Do(func() { close(c.done) })
}

// readPump feeds inbound frames to the hub until the socket fails, then runs
// the disconnect sequence.
func (c *wsConn) readPump(hub *Hub) {
	defer func() {
		hub.Disconnect(c.id)
		c.shutdown()
		_ = c.ws.Close()
	}()

	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	if err := c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait)); err != nil {
		hub.Fail(c.id, err)
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) &&
				!errors.Is(err, websocket.ErrCloseSent) {
				hub.Fail(c.id, err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		hub.Handle(c.id, data)
	}
}

// writePump drains the send buffer and keeps the connection alive with pings.
func (c *wsConn) writePump(hub *Hub) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			data, err := Encode(msg)
			if err != nil {
				hub.Fail(c.id, err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				hub.Fail(c.id, err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(c.cfg.WriteWait),
			)
			return
		}
	}
}

// Handler upgrades the request to a websocket and serves it until it closes.
// Authentication is optional; when the request carries a valid token the user
// id is attached to the connection log line.
func Handler(hub *Hub, cfg SocketConfig, log *logger.Logger) gin.HandlerFunc {
	cfg = cfg.withDefaults()
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     cfg.checkOrigin,
	}

	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("websocket upgrade failed", "error", err, "origin", c.GetHeader("Origin"))
			return
		}

		conn := newWSConn(ws, cfg)
		hub.Connect(conn)
		if id := httpkit.GetIdentity(c); id.IsAuthenticated() {
			log.Info("socket authenticated", "conn_id", conn.id, "user_id", id.UserID().String())
		}

		go conn.writePump(hub)
		conn.readPump(hub)
	}
}
