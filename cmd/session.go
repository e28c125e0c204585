package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/sunnyswag/RTCStartupDemo/internal/call"
	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/config"
	"github.com/sunnyswag/RTCStartupDemo/internal/media"
	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
	"github.com/sunnyswag/RTCStartupDemo/internal/signaling"
	"github.com/sunnyswag/RTCStartupDemo/internal/ui"
)

func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, callerr.NewError("load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, callerr.NewError("validate config", err)
	}
	return cfg, nil
}

// NewCallManager wires the signaling client, the media factory and the
// negotiation engines for cfg.
func NewCallManager(cfg *config.Config, observer call.Observer, logger *slog.Logger) (*call.Manager, error) {
	codec, err := protocol.CodecByName(cfg.Codec)
	if err != nil {
		return nil, callerr.NewError("select codec", err)
	}
	glare, err := cfg.GlarePolicy()
	if err != nil {
		return nil, callerr.NewError("select glare policy", err)
	}
	caps, ok := media.ParseCapabilities(cfg.Capabilities, logger)
	if !ok {
		return nil, fmt.Errorf("unknown capabilities %q", cfg.Capabilities)
	}

	turnUser, turnPass := cfg.GetTURNCredentials()
	factory, err := media.NewFactory(media.Options{
		STUNServers:  cfg.GetSTUNServers(),
		TURNServers:  cfg.GetTURNServers(),
		TURNUsername: turnUser,
		TURNPassword: turnPass,
		ForceRelay:   cfg.ForceRelay,
		Capabilities: caps,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	if factory.Configuration().ICETransportPolicy == webrtc.ICETransportPolicyRelay {
		logger.Info("restricting ICE to TURN relays")
	}

	return call.NewManager(call.Config{
		ServerURL: cfg.ServerURL,
		Identity:  cfg.Identity,
		Room:      cfg.Room,
		NewTransport: func(listener signaling.Listener) call.Transport {
			return signaling.NewClient(signaling.Options{
				Codec:    codec,
				Listener: listener,
				Logger:   logger,
			})
		},
		Media:    factory,
		Observer: observer,
		Glare:    glare,
		Logger:   logger,
	}), nil
}

// autoCall waits until peerID shows up in the room and calls it.
func autoCall(ctx context.Context, mgr *call.Manager, peerID string) error {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if slices.Contains(mgr.Members(), peerID) {
			return mgr.StartCall(peerID)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type rejoiner interface {
	Rejoin(ctx context.Context) error
}

// rejoinOnLoss re-joins the room every time the rendezvous connection is
// lost. It returns when ctx is done or a re-join fails. Re-joining runs here
// rather than in the observer because Connect waits for the listener
// goroutine that reported the loss.
func rejoinOnLoss(ctx context.Context, r rejoiner, lost <-chan error, rejoined func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cause := <-lost:
			ui.PrintWarning(fmt.Sprintf("Connection lost (%v), re-joining the room", cause))
			if err := r.Rejoin(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return callerr.NewError("re-join room", err)
			}
			if rejoined != nil {
				rejoined()
			}
		}
	}
}

// logObserver reports call events through slog when there is no TUI. A lost
// connection is also posted on lost, if set, without blocking.
type logObserver struct {
	log  *slog.Logger
	lost chan<- error
}

var _ call.Observer = logObserver{}

func (o logObserver) ConnectionChanged(state call.ConnectionState, err error) {
	if err != nil {
		o.log.Error("rendezvous connection", "state", state.String(), "error", err)
		if state == call.Disconnected && o.lost != nil {
			select {
			case o.lost <- err:
			default:
			}
		}
		return
	}
	o.log.Info("rendezvous connection", "state", state.String())
}

func (o logObserver) PeerJoined(id string) {
	o.log.Info("peer joined the room", "peer", id)
}

func (o logObserver) PeerLeft(id string) {
	o.log.Info("peer left the room", "peer", id)
}

func (o logObserver) CallStateChanged(peerID string, from, to negotiation.State) {
	o.log.Info(fmt.Sprintf("call %s", to), "peer", peerID, "from", from.String())
}
