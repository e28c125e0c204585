package media

import (
	"log/slog"
	"sync/atomic"

	"github.com/pion/webrtc/v4"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

// Session is one pion peer connection. Offers and answers are created on a
// separate goroutine and reported through the session's MediaEvents.
type Session struct {
	peerID string
	pc     *webrtc.PeerConnection
	events negotiation.MediaEvents
	log    *slog.Logger
	closed atomic.Bool
}

var _ negotiation.MediaSession = (*Session)(nil)

func (s *Session) setupICEHandlers() {
	s.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		s.log.Info("ICE connection state changed", "state", state.String())
	})

	s.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || s.closed.Load() {
			return
		}
		s.events.LocalCandidate(fromICECandidateInit(c.ToJSON()))
	})
}

func (s *Session) CreateOffer() {
	go func() {
		offer, err := s.pc.CreateOffer(nil)
		if err != nil {
			s.events.LocalDescriptionFailed(negotiation.KindOffer, callerr.NewPeerError("create offer", s.peerID, err))
			return
		}
		s.events.LocalDescriptionReady(negotiation.KindOffer, offer.SDP)
	}()
}

func (s *Session) CreateAnswer() {
	go func() {
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			s.events.LocalDescriptionFailed(negotiation.KindAnswer, callerr.NewPeerError("create answer", s.peerID, err))
			return
		}
		s.events.LocalDescriptionReady(negotiation.KindAnswer, answer.SDP)
	}()
}

func (s *Session) ApplyLocalDescription(kind negotiation.DescriptionKind, sdp string) error {
	if err := s.pc.SetLocalDescription(description(kind, sdp)); err != nil {
		return callerr.NewPeerError("set local description", s.peerID, err)
	}
	return nil
}

func (s *Session) ApplyRemoteDescription(kind negotiation.DescriptionKind, sdp string) error {
	if err := s.pc.SetRemoteDescription(description(kind, sdp)); err != nil {
		return callerr.NewPeerError("set remote description", s.peerID, err)
	}
	return nil
}

func (s *Session) AddICECandidate(c protocol.CandidateInfo) error {
	if err := s.pc.AddICECandidate(toICECandidateInit(c)); err != nil {
		return callerr.NewPeerError("add ICE candidate", s.peerID, err)
	}
	return nil
}

// Close tears the peer connection down. It is safe to call more than once.
func (s *Session) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	if err := s.pc.Close(); err != nil {
		return callerr.NewPeerError("close peer connection", s.peerID, err)
	}
	return nil
}

// SignalingState exposes the underlying offer/answer state.
func (s *Session) SignalingState() webrtc.SignalingState {
	return s.pc.SignalingState()
}

func description(kind negotiation.DescriptionKind, sdp string) webrtc.SessionDescription {
	t := webrtc.SDPTypeOffer
	if kind == negotiation.KindAnswer {
		t = webrtc.SDPTypeAnswer
	}
	return webrtc.SessionDescription{Type: t, SDP: sdp}
}

func toICECandidateInit(c protocol.CandidateInfo) webrtc.ICECandidateInit {
	index := uint16(c.MLineIndex)
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &index,
	}
	if c.Mid != "" {
		mid := c.Mid
		init.SDPMid = &mid
	}
	return init
}

func fromICECandidateInit(init webrtc.ICECandidateInit) protocol.CandidateInfo {
	c := protocol.CandidateInfo{Candidate: init.Candidate}
	if init.SDPMid != nil {
		c.Mid = *init.SDPMid
	}
	if init.SDPMLineIndex != nil {
		c.MLineIndex = int(*init.SDPMLineIndex)
	}
	return c
}
