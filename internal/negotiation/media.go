package negotiation

import "github.com/sunnyswag/RTCStartupDemo/internal/protocol"

// MediaFactory opens one media connection per call session.
type MediaFactory interface {
	NewSession(peerID string, events MediaEvents) (MediaSession, error)
}

// MediaSession is the media engine connection owned by a single CallSession.
// CreateOffer and CreateAnswer return immediately; the result is reported
// through MediaEvents.
type MediaSession interface {
	CreateOffer()
	CreateAnswer()
	ApplyLocalDescription(kind DescriptionKind, sdp string) error
	ApplyRemoteDescription(kind DescriptionKind, sdp string) error
	AddICECandidate(c protocol.CandidateInfo) error
	Close() error
}

// MediaEvents receives completions from a MediaSession. Calls may come from
// any goroutine.
type MediaEvents interface {
	LocalDescriptionReady(kind DescriptionKind, sdp string)
	LocalDescriptionFailed(kind DescriptionKind, err error)
	LocalCandidate(c protocol.CandidateInfo)
}

// Sender is the outbound half of the transport.
type Sender interface {
	Send(env *protocol.Envelope)
}

// Observer is told about every session state transition.
type Observer interface {
	SessionStateChanged(peerID string, from, to State)
}
