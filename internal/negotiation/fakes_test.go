package negotiation

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/sunnyswag/RTCStartupDemo/internal/protocol"
)

type fakeFactory struct {
	sessions []*fakeSession
	err      error

	// failRemote makes every new session reject remote descriptions.
	failRemote error
}

func (f *fakeFactory) NewSession(peerID string, events MediaEvents) (MediaSession, error) {
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSession{peerID: peerID, events: events, failRemote: f.failRemote}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeFactory) last(t *testing.T) *fakeSession {
	t.Helper()
	if len(f.sessions) == 0 {
		t.Fatal("no media session was opened")
	}
	return f.sessions[len(f.sessions)-1]
}

type fakeSession struct {
	peerID string
	events MediaEvents

	offers, answers int
	local           []string
	remote          []string
	candidates      []string
	closed          int

	failRemote    error
	failCandidate error
}

func (s *fakeSession) CreateOffer()  { s.offers++ }
func (s *fakeSession) CreateAnswer() { s.answers++ }

func (s *fakeSession) ApplyLocalDescription(kind DescriptionKind, sdp string) error {
	s.local = append(s.local, kind.String()+":"+sdp)
	return nil
}

func (s *fakeSession) ApplyRemoteDescription(kind DescriptionKind, sdp string) error {
	if s.failRemote != nil {
		return s.failRemote
	}
	s.remote = append(s.remote, kind.String()+":"+sdp)
	return nil
}

func (s *fakeSession) AddICECandidate(c protocol.CandidateInfo) error {
	if s.failCandidate != nil {
		return s.failCandidate
	}
	s.candidates = append(s.candidates, c.Candidate)
	return nil
}

func (s *fakeSession) Close() error {
	s.closed++
	return nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []*protocol.Envelope
}

func (r *recordingSender) Send(env *protocol.Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, env)
}

func (r *recordingSender) types() []protocol.MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.MessageType, 0, len(r.sent))
	for _, env := range r.sent {
		out = append(out, env.Type)
	}
	return out
}

type transition struct {
	from, to State
}

type recordingObserver struct {
	transitions []transition
}

func (o *recordingObserver) SessionStateChanged(_ string, from, to State) {
	o.transitions = append(o.transitions, transition{from, to})
}

type harness struct {
	engine   *Engine
	factory  *fakeFactory
	sender   *recordingSender
	observer *recordingObserver
}

func newHarness(local, peer string, glare GlarePolicy) *harness {
	h := &harness{
		factory:  &fakeFactory{},
		sender:   &recordingSender{},
		observer: &recordingObserver{},
	}
	h.engine = NewEngine(Config{
		LocalID:  local,
		PeerID:   peer,
		Media:    h.factory,
		Sender:   h.sender,
		Observer: h.observer,
		Glare:    glare,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func cand(s string) protocol.CandidateInfo {
	return protocol.CandidateInfo{MLineIndex: 0, Mid: "0", Candidate: s}
}

func assertState(t *testing.T, e *Engine, want State) {
	t.Helper()
	if got := e.State(); got != want {
		t.Fatalf("State() = %v, want %v", got, want)
	}
}

var errRejected = errors.New("rejected by media engine")
