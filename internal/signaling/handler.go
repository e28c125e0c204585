package signaling

import (
	"log/slog"

	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

// Listener receives the transport's lifecycle events and incoming envelopes.
type Listener interface {
	OnConnecting()
	OnConnected()
	// OnDisconnected reports the end of a connection; err is nil when it was
	// closed locally.
	OnDisconnected(err error)
	OnPeerJoined(id string)
	OnPeerLeft(id string)
	OnEnvelope(env *protocol.Envelope)
}

// NopListener ignores every event.
type NopListener struct{}

func (NopListener) OnConnecting() {}
func (NopListener) OnConnected() {}
func (NopListener) OnDisconnected(error) {}
func (NopListener) OnPeerJoined(string) {}
func (NopListener) OnPeerLeft(string) {}
func (NopListener) OnEnvelope(*protocol.Envelope) {}

// Handler routes incoming frames to a Listener.
type Handler struct {
	listener Listener
	log      *slog.Logger
}

// NewHandler creates a new frame router.
func NewHandler(listener Listener, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{listener: listener, log: logger}
}

// Start routes frames until incoming is closed.
func (h *Handler) Start(incoming <-chan *protocol.Frame) {
	for f := range incoming {
		h.Route(f)
	}
}

// Route delivers one frame. Malformed frames are logged and dropped.
func (h *Handler) Route(f *protocol.Frame) {
	switch f.Event {
	case protocol.EventUserJoined:
		if f.UserID == "" {
			h.log.Warn("dropping user-joined without userId")
			return
		}
		h.listener.OnPeerJoined(f.UserID)

	case protocol.EventUserLeft:
		if f.UserID == "" {
			h.log.Warn("dropping user-left without userId")
			return
		}
		h.listener.OnPeerLeft(f.UserID)

	case protocol.EventBroadcast:
		if err := f.Envelope.Validate(); err != nil {
			h.log.Warn("dropping malformed envelope", "error", err)
			return
		}
		h.listener.OnEnvelope(f.Envelope)

	case protocol.EventError:
		h.log.Error("server error", "error", f.Error)

	default:
		h.log.Debug("ignoring frame", "event", f.Event)
	}
}
