package ui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/sunnyswag/RTCStartupDemo/internal/call"
	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
)

const maxEvents = 6

// Controller is what the call view drives.
type Controller interface {
	StartCall(peerID string) error
	Hangup(peerID string)
	Rejoin(ctx context.Context) error
	Members() []string
	Sessions() []negotiation.SessionInfo
	Identity() string
	Room() string
}

type connectionMsg struct {
	state call.ConnectionState
	err   error
}

type peerMsg struct {
	id     string
	joined bool
}

type callStateMsg struct {
	peer     string
	from, to negotiation.State
}

type actionResultMsg struct {
	action string
	err    error
}

// ActionResult reports the outcome of an action started outside the view.
func ActionResult(action string, err error) tea.Msg {
	return actionResultMsg{action: action, err: err}
}

// CallView is the interactive bubbletea model of `join`.
type CallView struct {
	ctl      Controller
	server   string
	spinner  spinner.Model
	conn     call.ConnectionState
	connErr  error
	members  []string
	states   map[string]negotiation.State
	selected int
	events   []string
	quitting bool
}

func NewCallView(ctl Controller, server string) *CallView {
	s := spinner.New()
	s.Spinner = spinner.Globe
	s.Style = SpinnerStyle

	return &CallView{
		ctl:     ctl,
		server:  server,
		spinner: s,
		states:  make(map[string]negotiation.State),
	}
}

func (m *CallView) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m *CallView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case connectionMsg:
		m.conn = msg.state
		m.connErr = msg.err
		if msg.err != nil {
			m.addEvent(ErrorStyle.Render(fmt.Sprintf("%s connection lost: %v", IconError, msg.err)))
		} else {
			m.addEvent(fmt.Sprintf("%s %s", IconConnect, msg.state))
		}
		m.refreshMembers()

	case peerMsg:
		if msg.joined {
			m.addEvent(fmt.Sprintf("%s %s joined", IconPeer, msg.id))
		} else {
			m.addEvent(fmt.Sprintf("%s %s left", IconPeer, msg.id))
		}
		m.refreshMembers()

	case callStateMsg:
		m.states[msg.peer] = msg.to
		switch {
		case msg.to == negotiation.StateConnected:
			m.addEvent(SuccessStyle.Render(fmt.Sprintf("%s in call with %s", IconCall, msg.peer)))
		case msg.to == negotiation.StateClosed && msg.from.InCall():
			m.addEvent(fmt.Sprintf("%s call with %s ended", IconHangup, msg.peer))
		}

	case actionResultMsg:
		if msg.err != nil {
			m.addEvent(ErrorStyle.Render(fmt.Sprintf("%s %s: %v", IconError, msg.action, msg.err)))
		}
	}
	return m, nil
}

func (m *CallView) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return tea.Quit

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}

	case "down", "j":
		if m.selected < len(m.members)-1 {
			m.selected++
		}

	case "c":
		peer, ok := m.selectedPeer()
		if !ok {
			m.addEvent(MutedStyle.Render("nobody to call yet"))
			return nil
		}
		ctl := m.ctl
		return func() tea.Msg {
			return actionResultMsg{action: "call " + peer, err: ctl.StartCall(peer)}
		}

	case "h":
		if peer, ok := m.selectedPeer(); ok {
			m.ctl.Hangup(peer)
		}

	case "r":
		ctl := m.ctl
		return func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return actionResultMsg{action: "re-join", err: ctl.Rejoin(ctx)}
		}
	}
	return nil
}

func (m *CallView) selectedPeer() (string, bool) {
	if m.selected < 0 || m.selected >= len(m.members) {
		return "", false
	}
	return m.members[m.selected], true
}

func (m *CallView) refreshMembers() {
	m.members = m.ctl.Members()
	if m.selected >= len(m.members) {
		m.selected = max(len(m.members)-1, 0)
	}
}

func (m *CallView) addEvent(line string) {
	m.events = append(m.events, line)
	if len(m.events) > maxEvents {
		m.events = m.events[len(m.events)-maxEvents:]
	}
}

func (m *CallView) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(IconCall+" rtcdemo") + "\n")
	b.WriteString(RoomInfoView(m.ctl.Room(), m.ctl.Identity(), m.server) + "\n\n")

	switch m.conn {
	case call.Connected:
		b.WriteString(StatusStyle.Render("connected") + "\n\n")
	case call.Connecting:
		b.WriteString(fmt.Sprintf("%s connecting...\n\n", m.spinner.View()))
	default:
		b.WriteString(WarningStyle.Render("disconnected") + "\n\n")
		if m.connErr != nil {
			b.WriteString(ErrorBoxStyle.Render(fmt.Sprintf("%s %v\nPress r to re-join the room.", IconWarning, m.connErr)) + "\n\n")
		}
	}

	rows := make([]MemberRow, len(m.members))
	for i, id := range m.members {
		rows[i] = MemberRow{ID: id, State: m.states[id]}
	}
	selected := -1
	if len(rows) > 0 {
		selected = m.selected
	}
	b.WriteString(MembersTableView(rows, selected) + "\n")

	if len(m.events) > 0 {
		b.WriteString("\n")
		for _, e := range m.events {
			b.WriteString("  " + e + "\n")
		}
	}

	b.WriteString(FooterStyle.Render("c call • ↑/↓ select • h hang up • r re-join • q quit"))
	return b.String()
}

// Notifier forwards call events into a running bubbletea program. Events
// before Attach are dropped.
type Notifier struct {
	program atomic.Pointer[tea.Program]
}

var _ call.Observer = (*Notifier)(nil)

func (n *Notifier) Attach(p *tea.Program) {
	n.program.Store(p)
}

func (n *Notifier) send(msg tea.Msg) {
	if p := n.program.Load(); p != nil {
		p.Send(msg)
	}
}

func (n *Notifier) ConnectionChanged(state call.ConnectionState, err error) {
	n.send(connectionMsg{state: state, err: err})
}

func (n *Notifier) PeerJoined(id string) {
	n.send(peerMsg{id: id, joined: true})
}

func (n *Notifier) PeerLeft(id string) {
	n.send(peerMsg{id: id})
}

func (n *Notifier) CallStateChanged(peerID string, from, to negotiation.State) {
	n.send(callStateMsg{peer: peerID, from: from, to: to})
}
