package call

import (
	"context"

	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

// ConnectionState is the rendezvous connection as seen by the UI.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Observer is notified of everything a UI needs to render. Calls come from
// the transport and dispatcher goroutines; a slow observer delays that peer's
// events.
type Observer interface {
	// ConnectionChanged carries the cause when a connection is lost.
	ConnectionChanged(state ConnectionState, err error)
	PeerJoined(id string)
	PeerLeft(id string)
	CallStateChanged(peerID string, from, to negotiation.State)
}

type NopObserver struct{}

func (NopObserver) ConnectionChanged(ConnectionState, error) {}
func (NopObserver) PeerJoined(string) {}
func (NopObserver) PeerLeft(string) {}
func (NopObserver) CallStateChanged(string, negotiation.State, negotiation.State) {}

// Transport is the part of the signaling client the Manager drives.
type Transport interface {
	Connect(ctx context.Context, address string) error
	JoinRoom(identity, room string) error
	LeaveRoom()
	Send(env *protocol.Envelope)
	Close()
}

// stateForwarder reports engine transitions to the Observer.
type stateForwarder struct {
	observer Observer
}

func (f stateForwarder) SessionStateChanged(peerID string, from, to negotiation.State) {
	f.observer.CallStateChanged(peerID, from, to)
}
