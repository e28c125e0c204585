package rendezvous

import (
	"time"

	"github.com/gorilla/websocket"

	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 * 1024

	sendQueue = 256
)

type outbound struct {
	frame *protocol.Frame
	codec protocol.Codec
}

// Client is a wrapper for a single websocket connection.
// UserID, RoomName and codec are owned by the hub goroutine.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan outbound

	UserID   string
	RoomName string
	codec    protocol.Codec
}

// NewClient wraps conn for hub. Pass it to Hub.Add, then start both pumps.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:   hub,
		conn:  conn,
		send:  make(chan outbound, sendQueue),
		codec: protocol.JSONCodec{},
	}
}

func (c *Client) remoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// ReadPump pumps frames from the websocket connection to the hub.
//
// The application runs ReadPump in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("read failed", "remote", c.remoteAddr(), "error", err)
			}
			return
		}

		f, err := protocol.DecodeFrame(mt, data)
		if err != nil {
			c.hub.log.Warn("dropping undecodable frame", "remote", c.remoteAddr(), "error", err)
			continue
		}

		select {
		case c.hub.inbound <- inbound{client: c, frame: f, codec: protocol.CodecFor(mt)}:
		case <-c.hub.done:
			return
		}
	}
}

// WritePump pumps frames from the hub to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case out, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			mt, data, err := out.codec.Encode(out.frame)
			if err != nil {
				c.hub.log.Error("failed to encode frame", "event", out.frame.Event, "error", err)
				continue
			}
			if err := c.conn.WriteMessage(mt, data); err != nil {
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
