package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/dns"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	defaultHandshakeTimeout = 10 * time.Second
	defaultSendQueue        = 64
)

type Options struct {
	Codec    protocol.Codec
	Listener Listener
	Logger   *slog.Logger

	// Resolve maps a host name to an IP address. Defaults to dns.Lookup.
	Resolve func(ctx context.Context, host string) (string, error)

	HandshakeTimeout time.Duration
	SendQueue        int
}

// Client manages the WebSocket connection to the rendezvous server.
// Reconnection is never automatic: after OnDisconnected the owner calls
// Connect and JoinRoom again.
type Client struct {
	codec    protocol.Codec
	listener Listener
	handler  *Handler
	log      *slog.Logger
	resolve  func(ctx context.Context, host string) (string, error)

	handshakeTimeout time.Duration
	sendQueue        int

	mu       sync.Mutex
	conn     *websocket.Conn
	outgoing chan *protocol.Frame
	done     chan struct{}
	ended    chan struct{}
	closed   bool
	readErr  error
	joined   bool
	identity string
	room     string
}

// NewClient creates a new, unconnected client.
func NewClient(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "signaling")

	c := &Client{
		codec:            opts.Codec,
		listener:         opts.Listener,
		log:              logger,
		resolve:          opts.Resolve,
		handshakeTimeout: opts.HandshakeTimeout,
		sendQueue:        opts.SendQueue,
		closed:           true,
	}
	if c.codec == nil {
		c.codec = protocol.JSONCodec{}
	}
	if c.listener == nil {
		c.listener = NopListener{}
	}
	if c.resolve == nil {
		c.resolve = dns.Lookup
	}
	if c.handshakeTimeout == 0 {
		c.handshakeTimeout = defaultHandshakeTimeout
	}
	if c.sendQueue == 0 {
		c.sendQueue = defaultSendQueue
	}
	c.handler = NewHandler(c.listener, logger)
	return c
}

// Connect establishes the WebSocket connection to address. It is a no-op
// while a connection is open. It waits for a previous connection to finish,
// so it must not be called from a Listener callback.
func (c *Client) Connect(ctx context.Context, address string) error {
	u, err := parseAddress(address)
	if err != nil {
		return callerr.Connection("connect", err)
	}

	c.mu.Lock()
	open := !c.closed
	prev := c.ended
	c.mu.Unlock()
	if open {
		return nil
	}

	// The previous connection must report its end before a new one starts.
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return callerr.Connection("connect", ctx.Err())
		}
	}

	c.listener.OnConnecting()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.handshakeTimeout,
		NetDialContext:   c.dial,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return callerr.Connection("connect", err)
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	outgoing := make(chan *protocol.Frame, c.sendQueue)
	done := make(chan struct{})
	ended := make(chan struct{})
	incoming := make(chan *protocol.Frame, 32)

	c.mu.Lock()
	c.conn = conn
	c.outgoing = outgoing
	c.done = done
	c.ended = ended
	c.closed = false
	c.readErr = nil
	c.joined = false
	c.mu.Unlock()

	c.log.Info("connected", "url", u.String(), "codec", c.codec.Name())
	c.listener.OnConnected()

	go c.readPump(conn, incoming)
	go c.writePump(conn, outgoing, done)
	go func() {
		defer close(ended)
		c.handler.Start(incoming)
		c.finish(conn)
	}()

	return nil
}

// dial resolves the host with our DNS lookup before dialing.
func (c *Client) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ip, err := c.resolve(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

// JoinRoom asks the server to add identity to room. It is idempotent while joined.
func (c *Client) JoinRoom(identity, room string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return callerr.NewError("join room", callerr.ErrNotConnected)
	}
	if c.joined {
		if room != c.room || identity != c.identity {
			c.log.Warn("already joined a room", "room", c.room, "requested", room)
		}
		return nil
	}
	if !c.enqueueLocked(protocol.JoinFrame(identity, room)) {
		return callerr.WrapError("join room", callerr.ErrConnection, "send queue full")
	}

	c.joined = true
	c.identity = identity
	c.room = room
	c.log.Info("joining room", "room", room, "identity", identity)
	return nil
}

// LeaveRoom sends leave-room and closes the connection. It does nothing
// when no room is joined.
func (c *Client) LeaveRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.joined {
		return
	}
	c.joined = false
	c.enqueueLocked(protocol.LeaveFrame(c.identity, c.room))
	c.log.Info("leaving room", "room", c.room)
	c.closeLocked()
}

// Send broadcasts env to the other members of the room. It never blocks;
// the envelope is dropped when there is no connection or the queue is full.
func (c *Client) Send(env *protocol.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		c.log.Debug("dropping envelope, not connected", "type", env.Type)
		return
	}
	c.enqueueLocked(protocol.BroadcastFrame(env))
}

// Connected reports whether a connection is open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// Joined reports whether a join-room was sent on the open connection.
func (c *Client) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Close closes the connection without leaving the room.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.joined = false
	c.closeLocked()
}

func (c *Client) enqueueLocked(f *protocol.Frame) bool {
	select {
	case c.outgoing <- f:
		return true
	default:
		c.log.Warn("send queue full, dropping frame", "event", f.Event)
		return false
	}
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.done)
}

// finish runs once the read side of conn has ended.
func (c *Client) finish(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn != conn {
		c.mu.Unlock()
		return
	}
	local := c.closed
	err := c.readErr
	c.joined = false
	c.closeLocked()
	c.mu.Unlock()

	if local {
		err = nil
		c.log.Info("disconnected")
	} else {
		c.log.Warn("connection lost", "error", err)
		if err == nil {
			err = callerr.NewError("read", callerr.ErrConnection)
		} else {
			err = callerr.Connection("read", err)
		}
	}
	c.listener.OnDisconnected(err)
}

// readPump reads frames from the WebSocket connection.
func (c *Client) readPump(conn *websocket.Conn, incoming chan<- *protocol.Frame) {
	defer func() {
		conn.Close()
		close(incoming)
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			if c.conn == conn {
				c.readErr = err
			}
			c.mu.Unlock()
			return
		}

		f, err := protocol.DecodeFrame(mt, data)
		if err != nil {
			c.log.Warn("dropping undecodable frame", "error", err)
			continue
		}
		incoming <- f
	}
}

// writePump writes frames to the WebSocket connection and sends periodic pings.
// Frames queued before done is closed are flushed before the close message.
func (c *Client) writePump(conn *websocket.Conn, outgoing <-chan *protocol.Frame, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case f := <-outgoing:
			if err := c.write(conn, f); err != nil {
				c.log.Warn("write failed", "event", f.Event, "error", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
		drain:
			for {
				select {
				case f := <-outgoing:
					if err := c.write(conn, f); err != nil {
						return
					}
				default:
					break drain
				}
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Client) write(conn *websocket.Conn, f *protocol.Frame) error {
	mt, data, err := c.codec.Encode(f)
	if err != nil {
		c.log.Error("failed to encode frame", "event", f.Event, "error", err)
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(mt, data)
}

// parseAddress accepts ws, wss, http and https URLs.
func parseAddress(address string) (*url.URL, error) {
	if address == "" {
		return nil, errors.New("empty server address")
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid server URL %q: unsupported scheme %q", address, u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid server URL %q: missing host", address)
	}
	return u, nil
}
