package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"liveclass/internal/room"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

const (
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
	// pongWait is how long a client has to answer a ping before the
	// connection is considered dead.
	pongWait = 60 * time.Second
	// pingPeriod must be under pongWait so each ping's pong can extend the
	// read deadline before it expires; a single missed pong ends the
	// connection.
	pingPeriod = (pongWait * 9) / 10
	// sendQueueSize bounds how many outbound events can sit undelivered
	// for one client before it is treated as slow and dropped.
	sendQueueSize = 256
)

// Client is one websocket connection bridged onto a room.Hub. It owns a
// read pump (socket -> Hub.Submit) and a write pump (Hub-delivered events
// -> socket), mirroring the teacher's register/unregister/send design but
// scoped to a single room rather than one process-wide hub.
type Client struct {
	id   string
	conn *websocket.Conn
	hub  *room.Hub
	send chan room.Event
	log  *slog.Logger
}

// Channel owns the Registry every connection resolves its room.Hub
// through. It is the entry point the httpapi package's websocket route
// hands connections to.
type Channel struct {
	registry *room.Registry
	log      *slog.Logger
}

// NewChannel builds a Channel around an existing room registry.
func NewChannel(registry *room.Registry, log *slog.Logger) *Channel {
	return &Channel{registry: registry, log: log}
}

// Serve is the fiber websocket.New callback: it runs for the lifetime of
// one connection. streamKey identifies which room.Hub this connection
// joins.
func (c *Channel) Serve(streamKey string) func(*websocket.Conn) {
	return func(conn *websocket.Conn) {
		client := &Client{
			id:   uuid.NewString(),
			conn: conn,
			hub:  c.registry.GetOrCreate(streamKey),
			send: make(chan room.Event, sendQueueSize),
			log:  c.log,
		}

		client.hub.Register(client.id, client.send)
		go client.writePump()
		client.readPump()
	}
}

// readPump translates inbound frames into room.Command submissions until
// the socket errs or closes, then tells the Hub this connection is gone.
func (c *Client) readPump() {
	defer func() {
		c.hub.Submit(room.Command{Type: room.CmdLeave, Sender: c.id})
		c.hub.Unregister(c.id)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logf(slog.LevelDebug, "read pump closing", "connection_id", c.id, "err", err)
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// Malformed frame: a protocol violation, dropped silently
			// rather than tearing down the connection.
			c.logf(slog.LevelInfo, "dropped malformed frame", "connection_id", c.id, "err", err)
			continue
		}

		cmd, err := decodeCommand(c.id, env)
		if err != nil {
			c.logf(slog.LevelInfo, "dropped unrecognized command", "connection_id", c.id, "err", err)
			continue
		}

		if !c.hub.Submit(cmd) {
			c.logf(slog.LevelWarn, "dropped command, hub command queue full", "connection_id", c.id, "type", env.Type)
		}
	}
}

// writePump drains events the Hub addressed to this connection and
// serializes them onto the socket, interleaved with a keepalive ping.
// A write error or a failure to keep up ends the connection; it never
// blocks the Hub's own command loop, because the Hub only ever attempts a
// non-blocking send into c.send.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			frame, err := encodeEvent(evt)
			if err != nil {
				c.logf(slog.LevelWarn, "failed to encode event", "connection_id", c.id, "err", err)
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logf(slog.LevelDebug, "write pump closing", "connection_id", c.id, "err", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logf(slog.LevelDebug, "ping failed, closing", "connection_id", c.id, "err", err)
				return
			}
		}
	}
}

func (c *Client) logf(level slog.Level, msg string, args ...any) {
	if c.log == nil {
		return
	}
	c.log.Log(context.Background(), level, msg, args...)
}
