package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/sunnyswag/RTCStartupDemo/internal/negotiation"
)

// MemberRow is one remote member of the room.
type MemberRow struct {
	ID    string
	State negotiation.State
}

// MembersTableView renders the room members with their call state. The row
// at selected is highlighted; pass -1 for none.
func MembersTableView(rows []MemberRow, selected int) string {
	if len(rows) == 0 {
		return MutedStyle.Render(IconWaiting + " Waiting for someone to join the room")
	}

	data := make([][]string, 0, len(rows))
	for i, r := range rows {
		marker := " "
		if i == selected {
			marker = "›"
		}
		data = append(data, []string{marker, truncateString(r.ID, 40), r.State.String()})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("", "Peer", "Call").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row == selected:
				return TableSelectedStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RoomInfoView is the banner shown once the room is joined.
func RoomInfoView(room, identity, server string) string {
	content := fmt.Sprintf("%s Room:     %s\n%s You:      %s\n%s Server:   %s",
		IconRoom, BoldStyle.Foreground(Primary).Render(room),
		IconPeer, identity,
		IconConnect, MutedStyle.Render(server),
	)
	return InfoBoxStyle.Render(content)
}

// SessionSummaryView renders every call of the run as a go-pretty table.
func SessionSummaryView(sessions []negotiation.SessionInfo, now time.Time) string {
	t := prettytable.NewWriter()
	t.SetTitle(IconCall + " Call Summary")
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(prettytable.Row{"Peer", "Final State", IconTime + " In Call", "Error"})

	for _, s := range sessions {
		errText := "-"
		if s.Err != nil {
			errText = truncateString(s.Err.Error(), 48)
		}
		t.AppendRow(prettytable.Row{s.PeerID, s.State.String(), formatDuration(callDuration(s, now)), errText})
	}
	if len(sessions) == 0 {
		t.AppendRow(prettytable.Row{"-", "no calls", "-", "-"})
	}
	return t.Render()
}

func RenderSessionSummary(sessions []negotiation.SessionInfo) {
	fmt.Println(SessionSummaryView(sessions, time.Now()))
}

// callDuration is the time a session spent connected.
func callDuration(s negotiation.SessionInfo, now time.Time) time.Duration {
	if s.ConnectedAt.IsZero() {
		return 0
	}
	end := s.EndedAt
	if end.IsZero() {
		end = now
	}
	if end.Before(s.ConnectedAt) {
		return 0
	}
	return end.Sub(s.ConnectedAt)
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return strings.TrimSpace(s[:maxLen-3]) + "..."
}
