package call

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
	"github.com/sunnyswag/RTCStartupDemo/internal/signaling"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeTransport struct {
	mu         sync.Mutex
	listener   signaling.Listener
	connectErr error
	connects   int
	joins      []string
	leaves     int
	sent       []*protocol.Envelope
}

func (t *fakeTransport) Connect(_ context.Context, _ string) error {
	t.mu.Lock()
	t.connects++
	err := t.connectErr
	t.mu.Unlock()

	t.listener.OnConnecting()
	if err != nil {
		return err
	}
	t.listener.OnConnected()
	return nil
}

func (t *fakeTransport) JoinRoom(identity, room string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.joins = append(t.joins, identity+"@"+room)
	return nil
}

func (t *fakeTransport) LeaveRoom() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaves++
}

func (t *fakeTransport) Send(env *protocol.Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, env)
}

func (t *fakeTransport) Close() {}

func (t *fakeTransport) types() []protocol.MessageType {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]protocol.MessageType, len(t.sent))
	for i, env := range t.sent {
		out[i] = env.Type
	}
	return out
}

type fakeSession struct {
	mu         sync.Mutex
	events     negotiation.MediaEvents
	candidates []protocol.CandidateInfo
	closed     bool
}

func (s *fakeSession) CreateOffer() { s.events.LocalDescriptionReady(negotiation.KindOffer, "v=0 offer") }
func (s *fakeSession) CreateAnswer() { s.events.LocalDescriptionReady(negotiation.KindAnswer, "v=0 answer") }

func (s *fakeSession) ApplyLocalDescription(negotiation.DescriptionKind, string) error { return nil }
func (s *fakeSession) ApplyRemoteDescription(negotiation.DescriptionKind, string) error { return nil }

func (s *fakeSession) AddICECandidate(c protocol.CandidateInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = append(s.candidates, c)
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type fakeMedia struct {
	mu       sync.Mutex
	sessions map[string][]*fakeSession
}

func (f *fakeMedia) NewSession(peerID string, events negotiation.MediaEvents) (negotiation.MediaSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSession{events: events}
	if f.sessions == nil {
		f.sessions = make(map[string][]*fakeSession)
	}
	f.sessions[peerID] = append(f.sessions[peerID], s)
	return s, nil
}

func (f *fakeMedia) last(peerID string) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.sessions[peerID]
	if len(list) == 0 {
		return nil
	}
	return list[len(list)-1]
}

type recordingObserver struct {
	mu     sync.Mutex
	conn   []ConnectionState
	errs   []error
	joined []string
	left   []string
	calls  []negotiation.State
}

func (o *recordingObserver) ConnectionChanged(state ConnectionState, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.conn = append(o.conn, state)
	o.errs = append(o.errs, err)
}

func (o *recordingObserver) PeerJoined(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.joined = append(o.joined, id)
}

func (o *recordingObserver) PeerLeft(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.left = append(o.left, id)
}

func (o *recordingObserver) CallStateChanged(_ string, _, to negotiation.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, to)
}

type harness struct {
	m         *Manager
	transport *fakeTransport
	media     *fakeMedia
	observer  *recordingObserver
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		transport: &fakeTransport{},
		media:     &fakeMedia{},
		observer:  &recordingObserver{},
	}
	h.m = NewManager(Config{
		ServerURL: "ws://rendezvous.test/ws",
		Identity:  "alice",
		Room:      "lobby",
		NewTransport: func(l signaling.Listener) Transport {
			h.transport.listener = l
			return h.transport
		},
		Media:    h.media,
		Observer: h.observer,
		Logger:   discard,
	})
	t.Cleanup(h.m.dispatcher.Close)
	return h
}

func (h *harness) sync(peers ...string) {
	for _, p := range peers {
		h.m.dispatcher.Sync(p)
	}
}

func (h *harness) state(t *testing.T, peer string) negotiation.State {
	t.Helper()
	for _, s := range h.m.Sessions() {
		if s.PeerID == peer {
			return s.State
		}
	}
	return negotiation.StateIdle
}

func (h *harness) connectBob(t *testing.T) {
	t.Helper()
	h.m.OnPeerJoined("bob")
	h.m.OnEnvelope(protocol.NewOffer("bob", "v=0 bob"))
	h.sync("bob")
	if got := h.state(t, "bob"); got != negotiation.StateConnected {
		t.Fatalf("bob session = %s, want connected", got)
	}
}

func TestJoinConnectsAndJoinsRoom(t *testing.T) {
	h := newHarness(t)
	if err := h.m.Join(context.Background()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if len(h.transport.joins) != 1 || h.transport.joins[0] != "alice@lobby" {
		t.Fatalf("joins = %v, want [alice@lobby]", h.transport.joins)
	}
	if h.m.Connection() != Connected {
		t.Fatalf("connection = %s, want connected", h.m.Connection())
	}
}

func TestJoinReportsConnectError(t *testing.T) {
	h := newHarness(t)
	h.transport.connectErr = callerr.Connection("connect", errors.New("refused"))

	err := h.m.Join(context.Background())
	if !errors.Is(err, callerr.ErrConnection) {
		t.Fatalf("Join error = %v, want ErrConnection", err)
	}
	if len(h.transport.joins) != 0 {
		t.Fatal("joined a room without a connection")
	}
	last := len(h.observer.conn) - 1
	if h.observer.conn[last] != Disconnected || h.observer.errs[last] == nil {
		t.Fatalf("observer saw %v / %v", h.observer.conn, h.observer.errs)
	}
}

func TestSelfEchoIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.m.OnPeerJoined("alice")

	for _, env := range []*protocol.Envelope{
		protocol.NewOffer("alice", "v=0"),
		protocol.NewAnswer("alice", "v=0"),
		protocol.NewCandidate("alice", protocol.CandidateInfo{Candidate: "candidate:1"}),
		protocol.NewHangup("alice"),
	} {
		h.m.OnEnvelope(env)
	}
	h.sync("alice")

	if len(h.m.Members()) != 0 {
		t.Fatalf("members = %v, want none", h.m.Members())
	}
	if len(h.m.Sessions()) != 0 || len(h.transport.types()) != 0 {
		t.Fatalf("self echo caused sessions %v / sends %v", h.m.Sessions(), h.transport.types())
	}
}

func TestIncomingOfferIsAnswered(t *testing.T) {
	h := newHarness(t)
	h.connectBob(t)

	sent := h.transport.types()
	if len(sent) != 1 || sent[0] != protocol.MessageTypeAnswer {
		t.Fatalf("sent = %v, want [answer]", sent)
	}
	if h.transport.sent[0].SenderID != "alice" {
		t.Fatalf("answer sender = %s, want alice", h.transport.sent[0].SenderID)
	}
	want := []negotiation.State{negotiation.StateAnsweringRemote, negotiation.StateConnected}
	if len(h.observer.calls) != 2 || h.observer.calls[0] != want[0] || h.observer.calls[1] != want[1] {
		t.Fatalf("call states = %v, want %v", h.observer.calls, want)
	}
}

func TestStartCallPicksTheOnlyMember(t *testing.T) {
	h := newHarness(t)

	if err := h.m.StartCall(""); !errors.Is(err, callerr.ErrNoPeer) {
		t.Fatalf("StartCall with empty room = %v, want ErrNoPeer", err)
	}

	h.m.OnPeerJoined("bob")
	if err := h.m.StartCall(""); err != nil {
		t.Fatalf("StartCall: %v", err)
	}
	h.sync("bob")
	if got := h.state(t, "bob"); got != negotiation.StateAwaitingAnswer {
		t.Fatalf("state = %s, want awaiting-answer", got)
	}

	h.m.OnEnvelope(protocol.NewAnswer("bob", "v=0 bob"))
	h.sync("bob")
	if got := h.state(t, "bob"); got != negotiation.StateConnected {
		t.Fatalf("state = %s, want connected", got)
	}

	h.m.OnPeerJoined("carol")
	if err := h.m.StartCall(""); !errors.Is(err, callerr.ErrNoPeer) {
		t.Fatalf("StartCall with two members = %v, want ErrNoPeer", err)
	}
}

func TestStartCallRejectsAbsentAndBusy(t *testing.T) {
	h := newHarness(t)
	if err := h.m.StartCall("ghost"); !errors.Is(err, callerr.ErrNoPeer) {
		t.Fatalf("StartCall(ghost) = %v, want ErrNoPeer", err)
	}

	h.connectBob(t)
	h.m.OnPeerJoined("carol")
	if err := h.m.StartCall("carol"); !errors.Is(err, callerr.ErrBusy) {
		t.Fatalf("StartCall(carol) during call = %v, want ErrBusy", err)
	}
	if err := h.m.StartCall("bob"); !errors.Is(err, callerr.ErrBusy) {
		t.Fatalf("StartCall(bob) during call = %v, want ErrBusy", err)
	}
}

func TestEarlyCandidatesNeedRoomMembership(t *testing.T) {
	h := newHarness(t)
	cand := protocol.CandidateInfo{MLineIndex: 0, Mid: "0", Candidate: "candidate:1"}

	// mallory never joined: no engine is kept and the candidate is not
	// adopted by mallory's later offer.
	h.m.OnEnvelope(protocol.NewCandidate("mallory", cand))
	if h.m.engine("mallory", false) != nil {
		t.Fatal("candidate from a non-member created an engine")
	}
	h.m.OnEnvelope(protocol.NewOffer("mallory", "v=0 mallory"))
	h.sync("mallory")
	if got := h.media.last("mallory").candidates; len(got) != 0 {
		t.Fatalf("mallory candidates = %v, want none", got)
	}
	h.m.Hangup("mallory")
	h.sync("mallory")

	h.m.OnPeerJoined("bob")
	h.m.OnEnvelope(protocol.NewCandidate("bob", cand))
	h.m.OnEnvelope(protocol.NewOffer("bob", "v=0 bob"))
	h.sync("bob")
	if got := h.media.last("bob").candidates; len(got) != 1 || got[0] != cand {
		t.Fatalf("bob candidates = %v, want [%v]", got, cand)
	}
}

func TestOfferDuringAnotherCallIsDeclined(t *testing.T) {
	h := newHarness(t)
	h.connectBob(t)
	sentBefore := len(h.transport.types())

	h.m.OnPeerJoined("carol")
	h.m.OnEnvelope(protocol.NewOffer("carol", "v=0 carol"))
	h.sync("carol", "bob")

	if h.media.last("carol") != nil {
		t.Fatal("media session opened for a second caller")
	}
	if got := h.state(t, "bob"); got != negotiation.StateConnected {
		t.Fatalf("bob session = %s, want connected", got)
	}
	live := 0
	for _, s := range h.m.Sessions() {
		if s.State.InCall() {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("live sessions = %d, want 1", live)
	}
	if got := len(h.transport.types()); got != sentBefore {
		t.Fatalf("sent %d envelopes for a declined offer", got-sentBefore)
	}

	// bob may still restart the call it is in.
	h.m.OnEnvelope(protocol.NewOffer("bob", "v=0 bob restarted"))
	h.sync("bob")
	if n := len(h.media.sessions["bob"]); n != 2 {
		t.Fatalf("bob media sessions = %d, want 2 after restart", n)
	}

	// Once bob hangs up carol can call.
	h.m.OnEnvelope(protocol.NewHangup("bob"))
	h.sync("bob")
	h.m.OnEnvelope(protocol.NewOffer("carol", "v=0 carol"))
	h.sync("carol")
	if got := h.state(t, "carol"); got != negotiation.StateConnected {
		t.Fatalf("carol session = %s, want connected", got)
	}
}

func TestPeerLeftClosesWithoutHangup(t *testing.T) {
	h := newHarness(t)
	h.connectBob(t)

	h.m.OnPeerLeft("bob")
	h.sync("bob")

	if got := h.state(t, "bob"); got != negotiation.StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
	if !h.media.last("bob").closed {
		t.Fatal("media session not closed")
	}
	for _, typ := range h.transport.types() {
		if typ == protocol.MessageTypeHangup {
			t.Fatal("hangup sent after peer left")
		}
	}
	if len(h.observer.left) != 1 || h.observer.left[0] != "bob" {
		t.Fatalf("observer left = %v", h.observer.left)
	}
}

func TestRemoteHangupFromStrangerIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.m.OnEnvelope(protocol.NewHangup("bob"))
	h.m.OnEnvelope(protocol.NewAnswer("bob", "v=0"))
	h.sync("bob")
	if len(h.m.Sessions()) != 0 {
		t.Fatalf("sessions = %v, want none", h.m.Sessions())
	}
}

func TestDisconnectClosesEverySession(t *testing.T) {
	h := newHarness(t)
	h.connectBob(t)

	lost := callerr.Connection("read", io.ErrUnexpectedEOF)
	h.m.OnDisconnected(lost)
	h.sync("bob")

	if got := h.state(t, "bob"); got != negotiation.StateClosed {
		t.Fatalf("state = %s, want closed", got)
	}
	if len(h.m.Members()) != 0 {
		t.Fatalf("members = %v after disconnect", h.m.Members())
	}
	if got := h.transport.types(); len(got) != 1 {
		t.Fatalf("sent = %v, want only the answer", got)
	}
	last := len(h.observer.conn) - 1
	if h.observer.conn[last] != Disconnected || !errors.Is(h.observer.errs[last], callerr.ErrConnection) {
		t.Fatalf("observer saw %v / %v", h.observer.conn, h.observer.errs)
	}
}

func TestHangupAndRejoin(t *testing.T) {
	h := newHarness(t)
	if err := h.m.Join(context.Background()); err != nil {
		t.Fatalf("Join: %v", err)
	}
	h.connectBob(t)

	if err := h.m.Rejoin(context.Background()); err != nil {
		t.Fatalf("Rejoin: %v", err)
	}

	sent := h.transport.types()
	if sent[len(sent)-1] != protocol.MessageTypeHangup {
		t.Fatalf("sent = %v, want trailing hangup", sent)
	}
	if h.transport.leaves != 1 || len(h.transport.joins) != 2 {
		t.Fatalf("leaves = %d joins = %v", h.transport.leaves, h.transport.joins)
	}
	if len(h.m.Members()) != 0 {
		t.Fatalf("members = %v after rejoin", h.m.Members())
	}

	// A second hangup has nothing to end.
	h.m.Hangup("bob")
	h.sync("bob")
	if got := h.transport.types(); len(got) != len(sent) {
		t.Fatalf("sent = %v after redundant hangup", got)
	}
}

func TestCloseRejectsNewCalls(t *testing.T) {
	h := newHarness(t)
	h.m.OnPeerJoined("bob")
	h.m.Close()

	if err := h.m.StartCall("bob"); !errors.Is(err, callerr.ErrClosed) {
		t.Fatalf("StartCall after Close = %v, want ErrClosed", err)
	}
}
