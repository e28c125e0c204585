package rendezvous

import (
	"cmp"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

// inbound is a frame read from a client, with the codec it arrived in.
type inbound struct {
	client *Client
	frame  *protocol.Frame
	codec  protocol.Codec
}

// Hub is the central brain of the rendezvous server.
// It manages all rooms and clients from a single goroutine.
type Hub struct {
	rooms   map[string]*Room
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client

	inbound chan inbound
	queries chan chan []RoomInfo

	done     chan struct{}
	stopOnce sync.Once
	log      *slog.Logger
}

// NewHub creates a new Hub instance.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:      make(map[string]*Room),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		queries:    make(chan chan []RoomInfo),
		done:       make(chan struct{}),
		log:        logger.With("component", "rendezvous"),
	}
}

// Run starts the hub's main processing loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.clients[client] = struct{}{}
			h.log.Debug("client registered", "remote", client.remoteAddr())

		case client := <-h.unregister:
			if _, ok := h.clients[client]; !ok {
				continue
			}
			h.leave(client)
			delete(h.clients, client)
			close(client.send)
			h.log.Debug("client unregistered", "remote", client.remoteAddr())

		case in := <-h.inbound:
			if _, ok := h.clients[in.client]; !ok {
				continue
			}
			in.client.codec = in.codec
			h.handle(in.client, in.frame)

		case reply := <-h.queries:
			reply <- h.snapshot()

		case <-h.done:
			for client := range h.clients {
				close(client.send)
			}
			clear(h.clients)
			clear(h.rooms)
			return
		}
	}
}

// Add registers a client. It reports false once the hub has stopped.
func (h *Hub) Add(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Stop ends Run and closes every client connection.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Rooms returns the rooms and their members, sorted by name.
func (h *Hub) Rooms() []RoomInfo {
	reply := make(chan []RoomInfo, 1)
	select {
	case h.queries <- reply:
		return <-reply
	case <-h.done:
		return nil
	}
}

func (h *Hub) handle(client *Client, f *protocol.Frame) {
	switch f.Event {
	case protocol.EventJoinRoom:
		h.join(client, f.Room)

	case protocol.EventLeaveRoom:
		h.leave(client)

	case protocol.EventBroadcast:
		h.broadcast(client, f)

	default:
		h.log.Warn("unknown event", "event", f.Event, "remote", client.remoteAddr())
	}
}

func (h *Hub) join(client *Client, cmd *protocol.RoomCommand) {
	if cmd == nil || cmd.UserID == "" || cmd.RoomName == "" {
		h.sendTo(client, protocol.ErrorFrame("join-room requires userId and roomName"))
		return
	}

	if client.RoomName != "" {
		if client.RoomName == cmd.RoomName && client.UserID == cmd.UserID {
			return
		}
		h.leave(client)
	}

	room, ok := h.rooms[cmd.RoomName]
	if !ok {
		room = newRoom(cmd.RoomName)
		h.rooms[cmd.RoomName] = room
		h.log.Info("room created", "room", room.Name)
	}

	if _, taken := room.Members[cmd.UserID]; taken {
		h.log.Warn("identity already in room", "room", room.Name, "user", cmd.UserID)
		h.sendTo(client, protocol.ErrorFrame("identity already in room"))
		if len(room.Members) == 0 {
			delete(h.rooms, room.Name)
		}
		return
	}

	// Tell the newcomer who is already here, and everyone else about the newcomer.
	for _, id := range room.memberIDs() {
		h.sendTo(client, protocol.UserJoinedFrame(id))
		h.sendTo(room.Members[id], protocol.UserJoinedFrame(cmd.UserID))
	}

	room.Members[cmd.UserID] = client
	client.UserID = cmd.UserID
	client.RoomName = room.Name
	h.log.Info("user joined", "room", room.Name, "user", cmd.UserID, "members", len(room.Members))
}

func (h *Hub) leave(client *Client) {
	if client.RoomName == "" {
		return
	}

	room, ok := h.rooms[client.RoomName]
	userID := client.UserID
	client.RoomName = ""
	client.UserID = ""
	if !ok || room.Members[userID] != client {
		return
	}

	delete(room.Members, userID)
	h.log.Info("user left", "room", room.Name, "user", userID, "members", len(room.Members))

	if len(room.Members) == 0 {
		delete(h.rooms, room.Name)
		h.log.Info("room deleted", "room", room.Name)
		return
	}
	for _, member := range room.Members {
		h.sendTo(member, protocol.UserLeftFrame(userID))
	}
}

// broadcast relays an envelope unchanged to every other member of the sender's room.
func (h *Hub) broadcast(client *Client, f *protocol.Frame) {
	if client.RoomName == "" {
		h.sendTo(client, protocol.ErrorFrame("you must join a room first"))
		return
	}
	if f.Envelope == nil {
		h.log.Warn("broadcast without envelope", "user", client.UserID)
		return
	}

	room, ok := h.rooms[client.RoomName]
	if !ok {
		return
	}
	for id, member := range room.Members {
		if member == client {
			continue
		}
		h.log.Debug("relaying envelope", "room", room.Name, "from", client.UserID, "to", id, "type", f.Envelope.Type)
		h.sendTo(member, f)
	}
}

// sendTo queues f for client without blocking the hub.
func (h *Hub) sendTo(client *Client, f *protocol.Frame) {
	select {
	case client.send <- outbound{frame: f, codec: client.codec}:
	default:
		h.log.Warn("client send queue full, dropping frame", "user", client.UserID, "event", f.Event)
	}
}

func (h *Hub) snapshot() []RoomInfo {
	out := make([]RoomInfo, 0, len(h.rooms))
	for _, room := range h.rooms {
		out = append(out, RoomInfo{
			Name:      room.Name,
			Members:   room.memberIDs(),
			CreatedAt: room.CreatedAt,
		})
	}
	slices.SortFunc(out, func(a, b RoomInfo) int { return cmp.Compare(a.Name, b.Name) })
	return out
}

// RoomInfo describes a room for the status endpoint.
type RoomInfo struct {
	Name      string    `json:"name"`
	Members   []string  `json:"members"`
	CreatedAt time.Time `json:"createdAt"`
}
