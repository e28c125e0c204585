package negotiation

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

// maxEarlyCandidates bounds the candidates kept for a peer that has no live session.
const maxEarlyCandidates = 128

// CallSession is the negotiation state for one remote peer.
type CallSession struct {
	id                   uint64
	peerID               string
	state                State
	hasLocalDescription  bool
	hasRemoteDescription bool
	remoteSDP            string
	inbound              CandidateBuffer
	media                MediaSession
	startedAt            time.Time
	connectedAt          time.Time
	endedAt              time.Time
	err                  error
}

// SessionInfo is a point-in-time copy of a CallSession.
type SessionInfo struct {
	ID                   uint64
	PeerID               string
	State                State
	HasLocalDescription  bool
	HasRemoteDescription bool
	PendingCandidates    int
	StartedAt            time.Time
	ConnectedAt          time.Time
	EndedAt              time.Time
	Err                  error
}

type Config struct {
	LocalID  string
	PeerID   string
	Media    MediaFactory
	Sender   Sender
	Observer Observer

	// Schedule runs fn on the peer's serialized queue. Media completions are
	// posted through it. Nil runs fn inline.
	Schedule func(fn func())

	Glare  GlarePolicy
	Logger *slog.Logger
}

// Engine drives the call sessions with one remote peer. Apart from State and
// Session, its methods must only be called from the peer's queue.
type Engine struct {
	cfg     Config
	log     *slog.Logger
	session *CallSession
	early   []protocol.CandidateInfo
	nextID  uint64
	info    atomic.Pointer[SessionInfo]
}

func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg: cfg,
		log: logger.With("component", "negotiation", "peer", cfg.PeerID),
	}
}

func (e *Engine) PeerID() string {
	return e.cfg.PeerID
}

// State returns the current session state, or StateIdle when there is none.
// It is safe to call from any goroutine.
func (e *Engine) State() State {
	if info := e.info.Load(); info != nil {
		return info.State
	}
	return StateIdle
}

// Session returns a copy of the latest session, if one was ever created.
// It is safe to call from any goroutine.
func (e *Engine) Session() (SessionInfo, bool) {
	info := e.info.Load()
	if info == nil {
		return SessionInfo{}, false
	}
	return *info, true
}

// StartCall opens a fresh session and asks the media engine for an offer.
func (e *Engine) StartCall() error {
	if s := e.session; s != nil && s.state != StateClosed {
		return callerr.NewPeerError("start call", e.cfg.PeerID, callerr.ErrBusy)
	}

	s, err := e.newSession()
	if err != nil {
		return err
	}
	// Candidates buffered for an offer that never came cannot belong to our own offer.
	e.early = nil

	e.setState(s, StateOffering)
	s.media.CreateOffer()
	return nil
}

// HandleOffer processes a remote Offer.
func (e *Engine) HandleOffer(sdp string) {
	s := e.session
	switch {
	case s == nil || s.state == StateClosed:
		e.answerInNewSession(sdp)

	case s.state == StateIdle:
		e.acceptOffer(s, sdp)

	case s.state == StateOffering || s.state == StateAwaitingAnswer:
		e.handleGlare(s, sdp)

	case sdp == s.remoteSDP:
		e.log.Debug("ignoring duplicate offer", "state", s.state)

	default:
		// A different offer while answering or connected means the remote
		// restarted its side of the call.
		e.log.Info("remote restarted call", "state", s.state)
		e.teardown(s, false)
		e.answerInNewSession(sdp)
	}
}

// HandleAnswer processes a remote Answer.
func (e *Engine) HandleAnswer(sdp string) {
	s := e.session
	if s == nil {
		e.log.Debug("dropping answer without session", "error", callerr.ErrStaleSession)
		return
	}

	switch s.state {
	case StateAwaitingAnswer:
		if err := s.media.ApplyRemoteDescription(KindAnswer, sdp); err != nil {
			e.fail(s, "apply remote answer", err)
			return
		}
		s.hasRemoteDescription = true
		s.remoteSDP = sdp
		if !e.flushCandidates(s) {
			return
		}
		s.connectedAt = time.Now()
		e.setState(s, StateConnected)

	case StateConnected:
		if sdp == s.remoteSDP {
			e.log.Debug("ignoring duplicate answer")
			return
		}
		e.log.Debug("dropping unexpected answer", "state", s.state, "error", callerr.ErrStaleSession)

	default:
		e.log.Debug("dropping unexpected answer", "state", s.state, "error", callerr.ErrStaleSession)
	}
}

// HandleCandidate applies a remote candidate once the remote description is
// set and buffers it otherwise. Candidates for a peer without a live session
// are kept for the next remote offer.
func (e *Engine) HandleCandidate(c protocol.CandidateInfo) {
	s := e.session
	if s == nil || s.state == StateClosed {
		if len(e.early) >= maxEarlyCandidates {
			e.log.Warn("dropping early candidate", "error", callerr.ErrStaleSession)
			return
		}
		e.early = append(e.early, c)
		e.publish(e.session)
		return
	}

	if s.hasRemoteDescription {
		if err := s.media.AddICECandidate(c); err != nil {
			e.fail(s, "add remote candidate", err)
		}
		return
	}

	s.inbound.EnqueueInbound(c)
	e.publish(s)
}

// HandleHangup closes the session after the remote side hung up.
func (e *Engine) HandleHangup() {
	e.closeSilently("remote hangup")
}

// PeerLeft closes the session because the remote peer left the room.
func (e *Engine) PeerLeft() {
	e.closeSilently("peer left")
}

// Hangup ends the call locally and tells the remote side.
func (e *Engine) Hangup() {
	s := e.session
	if s == nil || s.state == StateClosed {
		return
	}
	e.log.Info("hanging up", "state", s.state)
	e.teardown(s, true)
}

// Disconnected closes the session when the transport went away. Nothing can
// be sent, so the remote side is not told.
func (e *Engine) Disconnected() {
	e.closeSilently("transport disconnected")
}

func (e *Engine) closeSilently(reason string) {
	e.early = nil
	s := e.session
	if s == nil || s.state == StateClosed {
		return
	}
	e.log.Info("closing session", "reason", reason, "state", s.state)
	e.teardown(s, false)
}

func (e *Engine) newSession() (*CallSession, error) {
	e.nextID++
	s := &CallSession{
		id:        e.nextID,
		peerID:    e.cfg.PeerID,
		state:     StateIdle,
		startedAt: time.Now(),
	}

	media, err := e.cfg.Media.NewSession(e.cfg.PeerID, sessionEvents{engine: e, session: s})
	if err != nil {
		err = callerr.Negotiation("open media session", e.cfg.PeerID, err)
		e.log.Error("failed to open media session", "error", err)
		return nil, err
	}
	s.media = media
	e.session = s
	e.publish(s)
	return s, nil
}

func (e *Engine) answerInNewSession(sdp string) {
	s, err := e.newSession()
	if err != nil {
		return
	}
	for _, c := range e.early {
		s.inbound.EnqueueInbound(c)
	}
	e.early = nil
	e.acceptOffer(s, sdp)
}

func (e *Engine) acceptOffer(s *CallSession, sdp string) {
	if err := s.media.ApplyRemoteDescription(KindOffer, sdp); err != nil {
		e.fail(s, "apply remote offer", err)
		return
	}
	s.hasRemoteDescription = true
	s.remoteSDP = sdp
	if !e.flushCandidates(s) {
		return
	}
	e.setState(s, StateAnsweringRemote)
	s.media.CreateAnswer()
}

func (e *Engine) handleGlare(s *CallSession, sdp string) {
	if e.cfg.Glare != GlareLexicographic {
		e.log.Warn("remote offer during local offer", "state", s.state)
		e.acceptOffer(s, sdp)
		return
	}

	if e.cfg.LocalID < e.cfg.PeerID {
		e.log.Info("glare: keeping local offer", "state", s.state)
		return
	}
	e.log.Info("glare: yielding to remote offer", "state", s.state)
	e.teardown(s, false)
	e.answerInNewSession(sdp)
}

// flushCandidates applies the buffered candidates in arrival order. It
// reports false when the session was closed because one was rejected.
func (e *Engine) flushCandidates(s *CallSession) bool {
	pending := s.inbound.DrainInbound()
	for _, c := range pending {
		if err := s.media.AddICECandidate(c); err != nil {
			e.fail(s, "add buffered candidate", err)
			return false
		}
	}
	if len(pending) > 0 {
		e.log.Debug("applied buffered candidates", "count", len(pending))
	}
	e.publish(s)
	return true
}

func (e *Engine) onLocalDescription(s *CallSession, kind DescriptionKind, sdp string) {
	if s != e.session {
		e.log.Debug("ignoring description from old session", "kind", kind)
		return
	}

	switch {
	case kind == KindOffer && s.state == StateOffering:
		if err := s.media.ApplyLocalDescription(KindOffer, sdp); err != nil {
			e.fail(s, "apply local offer", err)
			return
		}
		s.hasLocalDescription = true
		e.cfg.Sender.Send(protocol.NewOffer(e.cfg.LocalID, sdp))
		e.setState(s, StateAwaitingAnswer)

	case kind == KindAnswer && s.state == StateAnsweringRemote:
		if err := s.media.ApplyLocalDescription(KindAnswer, sdp); err != nil {
			e.fail(s, "apply local answer", err)
			return
		}
		s.hasLocalDescription = true
		e.cfg.Sender.Send(protocol.NewAnswer(e.cfg.LocalID, sdp))
		if !e.flushCandidates(s) {
			return
		}
		s.connectedAt = time.Now()
		e.setState(s, StateConnected)

	default:
		e.log.Debug("ignoring stale local description", "kind", kind, "state", s.state)
	}
}

func (e *Engine) onLocalDescriptionFailed(s *CallSession, kind DescriptionKind, err error) {
	if s != e.session || s.state == StateClosed {
		return
	}
	e.fail(s, "create "+kind.String(), err)
}

func (e *Engine) onLocalCandidate(s *CallSession, c protocol.CandidateInfo) {
	if s != e.session || s.state == StateClosed {
		return
	}
	e.cfg.Sender.Send(protocol.NewCandidate(e.cfg.LocalID, c))
}

func (e *Engine) fail(s *CallSession, op string, cause error) {
	s.err = callerr.Negotiation(op, e.cfg.PeerID, cause)
	e.log.Error("negotiation failed", "state", s.state, "error", s.err)
	e.teardown(s, true)
}

func (e *Engine) teardown(s *CallSession, notifyRemote bool) {
	if notifyRemote {
		e.cfg.Sender.Send(protocol.NewHangup(e.cfg.LocalID))
	}
	if s.media != nil {
		if err := s.media.Close(); err != nil {
			e.log.Warn("failed to close media session", "error", err)
		}
		s.media = nil
	}
	s.inbound.Clear()
	s.endedAt = time.Now()
	e.setState(s, StateClosed)
}

func (e *Engine) setState(s *CallSession, to State) {
	from := s.state
	if from == to {
		return
	}
	s.state = to
	e.publish(s)
	e.log.Debug("session state changed", "session", s.id, "from", from, "to", to)
	if e.cfg.Observer != nil {
		e.cfg.Observer.SessionStateChanged(e.cfg.PeerID, from, to)
	}
}

func (e *Engine) publish(s *CallSession) {
	if s == nil {
		return
	}
	e.info.Store(&SessionInfo{
		ID:                   s.id,
		PeerID:               s.peerID,
		State:                s.state,
		HasLocalDescription:  s.hasLocalDescription,
		HasRemoteDescription: s.hasRemoteDescription,
		PendingCandidates:    s.inbound.Len(),
		StartedAt:            s.startedAt,
		ConnectedAt:          s.connectedAt,
		EndedAt:              s.endedAt,
		Err:                  s.err,
	})
}

func (e *Engine) schedule(fn func()) {
	if e.cfg.Schedule != nil {
		e.cfg.Schedule(fn)
		return
	}
	fn()
}

// sessionEvents binds media completions to the session that requested them.
type sessionEvents struct {
	engine  *Engine
	session *CallSession
}

func (ev sessionEvents) LocalDescriptionReady(kind DescriptionKind, sdp string) {
	ev.engine.schedule(func() { ev.engine.onLocalDescription(ev.session, kind, sdp) })
}

func (ev sessionEvents) LocalDescriptionFailed(kind DescriptionKind, err error) {
	ev.engine.schedule(func() { ev.engine.onLocalDescriptionFailed(ev.session, kind, err) })
}

func (ev sessionEvents) LocalCandidate(c protocol.CandidateInfo) {
	ev.engine.schedule(func() { ev.engine.onLocalCandidate(ev.session, c) })
}
