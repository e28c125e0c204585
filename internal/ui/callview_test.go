package ui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/sunnyswag/RTCStartupDemo/internal/call"
	"github.com/sunnyswag/RTCStartupDemo/internal/callerr"
	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
)

type fakeController struct {
	members  []string
	called   []string
	hungUp   []string
	rejoined int
	callErr  error
}

func (c *fakeController) StartCall(peerID string) error {
	c.called = append(c.called, peerID)
	return c.callErr
}

func (c *fakeController) Hangup(peerID string) { c.hungUp = append(c.hungUp, peerID) }

func (c *fakeController) Rejoin(context.Context) error {
	c.rejoined++
	return nil
}

func (c *fakeController) Members() []string { return c.members }
func (c *fakeController) Sessions() []negotiation.SessionInfo { return nil }
func (c *fakeController) Identity() string { return "alice" }
func (c *fakeController) Room() string { return "lobby" }

func key(s string) tea.KeyMsg {
	switch s {
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m *CallView, k string) tea.Msg {
	t.Helper()
	_, cmd := m.Update(key(k))
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestCallViewCallsSelectedPeer(t *testing.T) {
	ctl := &fakeController{members: []string{"bob", "carol"}}
	m := NewCallView(ctl, "ws://localhost:8080/ws")
	m.Update(peerMsg{id: "carol", joined: true})

	press(t, m, "down")
	msg := press(t, m, "c")
	if len(ctl.called) != 1 || ctl.called[0] != "carol" {
		t.Fatalf("called = %v, want [carol]", ctl.called)
	}
	if res, ok := msg.(actionResultMsg); !ok || res.err != nil {
		t.Fatalf("call result = %#v", msg)
	}

	press(t, m, "up")
	press(t, m, "up")
	press(t, m, "h")
	if len(ctl.hungUp) != 1 || ctl.hungUp[0] != "bob" {
		t.Fatalf("hung up = %v, want [bob]", ctl.hungUp)
	}

	press(t, m, "r")
	if ctl.rejoined != 1 {
		t.Fatalf("rejoined = %d, want 1", ctl.rejoined)
	}
}

func TestCallViewWithoutMembers(t *testing.T) {
	ctl := &fakeController{}
	m := NewCallView(ctl, "ws://localhost:8080/ws")

	if msg := press(t, m, "c"); msg != nil {
		t.Fatalf("call with empty room produced %#v", msg)
	}
	if len(ctl.called) != 0 {
		t.Fatal("StartCall invoked with an empty room")
	}
	if !strings.Contains(m.View(), "Waiting for someone") {
		t.Fatalf("view lacks waiting hint:\n%s", m.View())
	}
}

func TestCallViewRendersState(t *testing.T) {
	ctl := &fakeController{members: []string{"bob"}, callErr: callerr.NewPeerError("start call", "bob", callerr.ErrBusy)}
	m := NewCallView(ctl, "ws://localhost:8080/ws")

	m.Update(connectionMsg{state: call.Connected})
	m.Update(callStateMsg{peer: "bob", from: negotiation.StateAwaitingAnswer, to: negotiation.StateConnected})
	m.Update(press(t, m, "c"))

	view := m.View()
	for _, want := range []string{"lobby", "alice", "bob", "connected", "in call with bob", "call already in progress"} {
		if !strings.Contains(view, want) {
			t.Errorf("view lacks %q:\n%s", want, view)
		}
	}

	m.Update(connectionMsg{state: call.Disconnected, err: errors.New("boom")})
	view = m.View()
	if !strings.Contains(view, "Press r to re-join") || !strings.Contains(view, IconWarning+" boom") {
		t.Fatalf("view lacks re-join box:\n%s", view)
	}

	m.Update(connectionMsg{state: call.Connected})
	if strings.Contains(m.View(), "Press r to re-join") {
		t.Fatalf("re-join box kept after reconnect:\n%s", m.View())
	}

	if _, cmd := m.Update(key("q")); cmd == nil {
		t.Fatal("q did not quit")
	}
	if m.View() != "" {
		t.Fatal("view not cleared after quit")
	}
}

func TestSessionSummary(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	sessions := []negotiation.SessionInfo{
		{PeerID: "bob", State: negotiation.StateClosed, ConnectedAt: start, EndedAt: start.Add(90 * time.Second)},
		{PeerID: "carol", State: negotiation.StateClosed, Err: callerr.ErrNegotiationFailure},
	}
	view := SessionSummaryView(sessions, start.Add(time.Hour))
	for _, want := range []string{"Call Summary", "bob", "1m30s", "carol", "negotiation failure"} {
		if !strings.Contains(view, want) {
			t.Errorf("summary lacks %q:\n%s", want, view)
		}
	}

	if got := formatDuration(callDuration(negotiation.SessionInfo{ConnectedAt: start}, start.Add(2*time.Hour+5*time.Minute))); got != "2h05m" {
		t.Fatalf("open session duration = %q, want 2h05m", got)
	}
}
