package stream

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"sdfmarch/tracer/internal/driver"
	"sdfmarch/tracer/internal/logging"
)

type client struct {
	id      string
	subject string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	log     *logging.Logger
}

// readPump decodes viewer commands until the connection fails.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
		c.log.Info("websocket client disconnected")
	}()
	c.conn.SetReadLimit(c.hub.maxLoad)
	deadline := func() time.Time { return time.Now().Add(2 * c.hub.ping) }
	_ = c.conn.SetReadDeadline(deadline())
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(deadline())
	})
	for {
		kind, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warn("websocket read failed", logging.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(deadline())
		if kind != websocket.TextMessage {
			c.reject("", "commands must be JSON text messages")
			continue
		}
		c.handleCommand(payload)
	}
}

func (c *client) handleCommand(payload []byte) {
	cmd, err := driver.DecodeCommand(payload)
	if err != nil {
		c.reject("", err.Error())
		return
	}
	if cmd.Kind() == driver.CommandReset && c.hub.limiter != nil && !c.hub.limiter.Allow() {
		c.reject(cmd.Kind(), "too many resets")
		return
	}
	if err := c.hub.submitter.SubmitCommand(c.hub.ctx, cmd); err != nil {
		c.log.Warn("command rejected", logging.String("type", cmd.Kind()), logging.Error(err))
		c.reject(cmd.Kind(), err.Error())
	}
}

func (c *client) reject(command, message string) {
	payload, err := json.Marshal(ServerMessage{Type: "error", Command: command, Error: message})
	if err != nil {
		return
	}
	c.hub.deliver(c, payload)
}

// writePump sends queued frames and keepalive pings. It owns all writes to conn.
func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.ping)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.log.Warn("websocket write failed", logging.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
