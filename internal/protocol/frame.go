package protocol

// Frame represents all WebSocket messages between clients and the rendezvous server.
type Frame struct {
	Event    string       `json:"event" msgpack:"event"`
	Room     *RoomCommand `json:"room,omitempty" msgpack:"room,omitempty"`
	UserID   string       `json:"userId,omitempty" msgpack:"userId,omitempty"`
	Envelope *Envelope    `json:"envelope,omitempty" msgpack:"envelope,omitempty"`
	Error    string       `json:"error,omitempty" msgpack:"error,omitempty"`
}

// Event constants.
const (
	EventJoinRoom  = "join-room"
	EventLeaveRoom = "leave-room"
	EventBroadcast = "broadcast"

	EventUserJoined = "user-joined"
	EventUserLeft   = "user-left"
	EventError      = "error"
)

// RoomCommand is the payload of join-room and leave-room.
type RoomCommand struct {
	UserID   string `json:"userId" msgpack:"userId"`
	RoomName string `json:"roomName" msgpack:"roomName"`
}

func JoinFrame(userID, room string) *Frame {
	return &Frame{Event: EventJoinRoom, Room: &RoomCommand{UserID: userID, RoomName: room}}
}

func LeaveFrame(userID, room string) *Frame {
	return &Frame{Event: EventLeaveRoom, Room: &RoomCommand{UserID: userID, RoomName: room}}
}

func BroadcastFrame(env *Envelope) *Frame {
	return &Frame{Event: EventBroadcast, Envelope: env}
}

func UserJoinedFrame(userID string) *Frame {
	return &Frame{Event: EventUserJoined, UserID: userID}
}

func UserLeftFrame(userID string) *Frame {
	return &Frame{Event: EventUserLeft, UserID: userID}
}

func ErrorFrame(msg string) *Frame {
	return &Frame{Event: EventError, Error: msg}
}
