package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/matheus3301/wpphook/internal/bus"
	"github.com/matheus3301/wpphook/internal/notify"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	pushBufferSize = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The REST surface is already open to any origin.
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsFrame is one push message on the wire.
type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type pushClient struct {
	conn   *websocket.Conn
	send   chan wsFrame
	done   chan struct{}
	logger *zap.Logger
}

// handleWS upgrades the connection and streams push events. The
// subscriber immediately receives the current status and, while a scan
// is pending, the current QR artifact.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &pushClient{
		conn:   conn,
		send:   make(chan wsFrame, pushBufferSize),
		done:   make(chan struct{}),
		logger: s.logger,
	}

	st, qr := s.sm.Status()
	c.send <- wsFrame{Event: "status", Data: notify.StatusPayload{Status: string(st), QR: qr}}
	if qr != "" {
		c.send <- wsFrame{Event: "qr", Data: notify.QRPayload{QR: qr}}
	}

	events, unsub := s.bus.Subscribe("push.", pushBufferSize)
	go c.forward(events)
	go c.writePump()

	// Blocks until the peer goes away.
	c.readPump()

	unsub()
	close(c.done)
}

// forward copies bus events onto the client's send queue. A slow
// client loses events rather than backing up the bus.
func (c *pushClient) forward(events <-chan bus.Event) {
	for {
		select {
		case <-c.done:
			return
		case evt := <-events:
			frame := wsFrame{
				Event: strings.TrimPrefix(evt.Kind, "push."),
				Data:  evt.Payload,
			}
			select {
			case c.send <- frame:
			default:
			}
		}
	}
}

// writePump drains the send queue to the socket and keeps the
// connection alive with pings.
func (c *pushClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the push channel is one-way.
// Returns when the peer disconnects.
func (c *pushClient) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket closed", zap.Error(err))
			}
			return
		}
	}
}
