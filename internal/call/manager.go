package call

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/dispatch"
	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
	"github.com/sunnyswag/RTCStartupDemo/internal/room"
	"github.com/sunnyswag/RTCStartupDemo/internal/signaling"
)

type Config struct {
	ServerURL string
	Identity  string
	Room      string

	// NewTransport builds the transport that reports to listener.
	NewTransport func(listener signaling.Listener) Transport

	Media    negotiation.MediaFactory
	Observer Observer
	Glare    negotiation.GlarePolicy
	Logger   *slog.Logger
}

// Manager joins the room, routes every envelope to the negotiation engine
// of its sender and exposes the call controls. Each remote peer gets its own
// engine, and all of a peer's events run on that peer's dispatcher queue.
type Manager struct {
	cfg        Config
	log        *slog.Logger
	registry   *room.Registry
	transport  Transport
	dispatcher *dispatch.Dispatcher
	observer   Observer

	mu      sync.Mutex
	engines map[string]*negotiation.Engine
	conn    ConnectionState
}

var _ signaling.Listener = (*Manager)(nil)

func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	m := &Manager{
		cfg:        cfg,
		log:        logger.With("component", "call"),
		registry:   room.NewRegistry(),
		dispatcher: dispatch.New(dispatch.Options{Logger: logger}),
		observer:   observer,
		engines:    make(map[string]*negotiation.Engine),
	}
	m.registry.SetIdentity(cfg.Identity)
	m.registry.SetRoom(cfg.Room)
	m.transport = cfg.NewTransport(m)
	return m
}

func (m *Manager) Identity() string { return m.registry.Identity() }
func (m *Manager) Room() string { return m.registry.Room() }

// Members returns the other members of the room.
func (m *Manager) Members() []string { return m.registry.Members() }

func (m *Manager) Connection() ConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Join connects to the rendezvous server and joins the configured room.
func (m *Manager) Join(ctx context.Context) error {
	if err := m.transport.Connect(ctx, m.cfg.ServerURL); err != nil {
		m.setConnection(Disconnected, err)
		return err
	}
	return m.transport.JoinRoom(m.registry.Identity(), m.registry.Room())
}

// Rejoin hangs up every call, leaves the room and joins it again on a
// fresh connection.
func (m *Manager) Rejoin(ctx context.Context) error {
	m.HangupAll()
	m.transport.LeaveRoom()
	m.forgetMembers()
	return m.Join(ctx)
}

// StartCall calls peerID. An empty peerID calls the only other member of
// the room.
func (m *Manager) StartCall(peerID string) error {
	if peerID == "" {
		members := m.registry.Members()
		switch len(members) {
		case 0:
			return callerr.NewError("start call", callerr.ErrNoPeer)
		case 1:
			peerID = members[0]
		default:
			return callerr.WrapError("start call", callerr.ErrNoPeer, "more than one member, pick one")
		}
	}
	if m.registry.Membership(peerID) != room.MembershipPresent {
		return callerr.NewPeerError("start call", peerID, callerr.ErrNoPeer)
	}
	if other, busy := m.inCallWithOther(peerID); busy {
		return callerr.WrapError("start call", callerr.ErrBusy, "in call with "+other)
	}

	e := m.engine(peerID, true)
	errc := make(chan error, 1)
	if err := m.dispatcher.Submit(peerID, func() { errc <- e.StartCall() }); err != nil {
		return err
	}
	return <-errc
}

// Hangup ends the call with peerID, if any.
func (m *Manager) Hangup(peerID string) {
	if e := m.engine(peerID, false); e != nil {
		m.submit(peerID, e.Hangup)
	}
}

// HangupAll ends every call and waits until the hangups were sent.
func (m *Manager) HangupAll() {
	for peerID, e := range m.snapshotEngines() {
		m.submit(peerID, e.Hangup)
		if err := m.dispatcher.Sync(peerID); err != nil {
			m.log.Debug("hangup not confirmed", "peer", peerID, "error", err)
		}
	}
}

// Sessions returns the latest session of every peer, sorted by peer.
func (m *Manager) Sessions() []negotiation.SessionInfo {
	var out []negotiation.SessionInfo
	for _, e := range m.snapshotEngines() {
		if s, ok := e.Session(); ok {
			out = append(out, s)
		}
	}
	slices.SortFunc(out, func(a, b negotiation.SessionInfo) int {
		switch {
		case a.PeerID < b.PeerID:
			return -1
		case a.PeerID > b.PeerID:
			return 1
		}
		return 0
	})
	return out
}

// Close hangs up, leaves the room and stops the dispatcher.
func (m *Manager) Close() {
	m.HangupAll()
	m.transport.LeaveRoom()
	m.transport.Close()
	m.dispatcher.Close()
}

func (m *Manager) OnConnecting() {
	m.setConnection(Connecting, nil)
}

func (m *Manager) OnConnected() {
	m.setConnection(Connected, nil)
}

// OnDisconnected closes every session without telling the remote side, since
// nothing can be sent, and forgets the room members.
func (m *Manager) OnDisconnected(err error) {
	for peerID, e := range m.snapshotEngines() {
		m.submit(peerID, e.Disconnected)
	}
	m.forgetMembers()
	m.setConnection(Disconnected, err)
}

func (m *Manager) OnPeerJoined(id string) {
	if m.registry.IsSelf(id) {
		return
	}
	m.registry.MemberJoined(id)
	m.log.Info("peer joined", "peer", id)
	m.observer.PeerJoined(id)
}

func (m *Manager) OnPeerLeft(id string) {
	if m.registry.IsSelf(id) {
		return
	}
	m.registry.MemberLeft(id)
	m.log.Info("peer left", "peer", id)
	if e := m.engine(id, false); e != nil {
		m.submit(id, e.PeerLeft)
	}
	m.observer.PeerLeft(id)
}

func (m *Manager) OnEnvelope(env *protocol.Envelope) {
	if env == nil || m.registry.IsSelf(env.SenderID) {
		return
	}
	if err := env.Validate(); err != nil {
		m.log.Warn("dropping malformed envelope", "error", err)
		return
	}

	peerID := env.SenderID
	switch env.Type {
	case protocol.MessageTypeOffer:
		// Only one call at a time. Hangup envelopes reach the whole room, so a
		// second caller is not told and its offer simply goes unanswered.
		if other, busy := m.inCallWithOther(peerID); busy {
			m.log.Info("declining offer", "peer", peerID, "in_call_with", other, "error", callerr.ErrBusy)
			return
		}
		e := m.engine(peerID, true)
		m.submit(peerID, func() { e.HandleOffer(env.SDP) })

	case protocol.MessageTypeAnswer:
		if e := m.engine(peerID, false); e != nil {
			m.submit(peerID, func() { e.HandleAnswer(env.SDP) })
			return
		}
		m.log.Debug("dropping answer from peer without session", "peer", peerID, "error", callerr.ErrStaleSession)

	case protocol.MessageTypeCandidate:
		e := m.engine(peerID, false)
		if e == nil {
			if m.registry.Membership(peerID) != room.MembershipPresent {
				m.log.Debug("dropping candidate from unknown peer", "peer", peerID, "error", callerr.ErrStaleSession)
				return
			}
			e = m.engine(peerID, true)
		}
		c := *env.Candidate
		m.submit(peerID, func() {
			// A candidate can only precede the offer of a peer we know is in the room.
			if s := e.State(); (s == negotiation.StateIdle || s == negotiation.StateClosed) &&
				m.registry.Membership(peerID) != room.MembershipPresent {
				m.log.Debug("dropping candidate from unknown peer", "peer", peerID, "error", callerr.ErrStaleSession)
				return
			}
			e.HandleCandidate(c)
		})

	case protocol.MessageTypeHangup:
		if e := m.engine(peerID, false); e != nil {
			m.submit(peerID, e.HandleHangup)
		}
	}
}

// inCallWithOther reports a peer other than peerID whose call is being set
// up or is up.
func (m *Manager) inCallWithOther(peerID string) (string, bool) {
	for _, s := range m.Sessions() {
		if s.PeerID != peerID && s.State.InCall() {
			return s.PeerID, true
		}
	}
	return "", false
}

// engine returns the engine of peerID, creating it when create is set.
func (m *Manager) engine(peerID string, create bool) *negotiation.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.engines[peerID]; ok || !create {
		return e
	}
	e := negotiation.NewEngine(negotiation.Config{
		LocalID:  m.registry.Identity(),
		PeerID:   peerID,
		Media:    m.cfg.Media,
		Sender:   m.transport,
		Observer: stateForwarder{observer: m.observer},
		Schedule: func(fn func()) { m.submit(peerID, fn) },
		Glare:    m.cfg.Glare,
		Logger:   m.cfg.Logger,
	})
	m.engines[peerID] = e
	return e
}

func (m *Manager) snapshotEngines() map[string]*negotiation.Engine {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*negotiation.Engine, len(m.engines))
	for id, e := range m.engines {
		out[id] = e
	}
	return out
}

func (m *Manager) submit(peerID string, fn func()) {
	if err := m.dispatcher.Submit(peerID, fn); err != nil {
		m.log.Debug("dropping event", "peer", peerID, "error", err)
	}
}

func (m *Manager) forgetMembers() {
	members := m.registry.Members()
	m.registry.Reset()
	for _, id := range members {
		m.observer.PeerLeft(id)
	}
}

func (m *Manager) setConnection(state ConnectionState, err error) {
	m.mu.Lock()
	m.conn = state
	m.mu.Unlock()

	if err != nil {
		m.log.Warn("rendezvous connection lost", "error", err)
	}
	m.observer.ConnectionChanged(state, err)
}
