package media

import (
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/logging"
	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
)

type Options struct {
	STUNServers  []string
	TURNServers  []string
	TURNUsername string
	TURNPassword string

	// ForceRelay restricts ICE to TURN. Relay is also chosen when TURN is
	// configured and DetectRelay reports a VPN or CGNAT link.
	ForceRelay  bool
	DetectRelay func() bool

	// Capabilities defaults to NoCapabilities.
	Capabilities Capabilities
	Logger       *slog.Logger
}

// Factory opens pion peer connections for call sessions.
type Factory struct {
	api    *webrtc.API
	config webrtc.Configuration
	caps   Capabilities
	log    *slog.Logger
}

var _ negotiation.MediaFactory = (*Factory)(nil)

func NewFactory(opts Options) (*Factory, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "media")

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, callerr.NewError("register codecs", err)
	}

	se := webrtc.SettingEngine{}
	se.LoggerFactory = logging.NewPionFactory(logger)

	caps := opts.Capabilities
	if caps == nil {
		caps = NoCapabilities{}
	}

	return &Factory{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithSettingEngine(se)),
		config: buildConfiguration(opts),
		caps:   caps,
		log:    logger,
	}, nil
}

func buildConfiguration(opts Options) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if len(opts.STUNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: opts.STUNServers})
	}
	if len(opts.TURNServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       opts.TURNServers,
			Username:   opts.TURNUsername,
			Credential: opts.TURNPassword,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if len(opts.TURNServers) > 0 {
		detect := opts.DetectRelay
		if detect == nil {
			detect = ShouldForceRelay
		}
		if opts.ForceRelay || detect() {
			policy = webrtc.ICETransportPolicyRelay
		}
	}

	return webrtc.Configuration{
		ICEServers:         iceServers,
		ICETransportPolicy: policy,
	}
}

// Configuration returns the ICE configuration every session is opened with.
func (f *Factory) Configuration() webrtc.Configuration {
	return f.config
}

func (f *Factory) NewSession(peerID string, events negotiation.MediaEvents) (negotiation.MediaSession, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, callerr.NewPeerError("create peer connection", peerID, err)
	}

	s := &Session{
		peerID: peerID,
		pc:     pc,
		events: events,
		log:    f.log.With("peer", peerID),
	}

	if err := f.caps.ProvideLocalTracks(pc); err != nil {
		pc.Close()
		return nil, callerr.NewPeerError("add local tracks", peerID, err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		f.caps.OnRemoteTrack(pc, track, receiver)
	})
	s.setupICEHandlers()
	return s, nil
}
