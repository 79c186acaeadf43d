package main

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"peerlink/internal/protocol"
)

// Color palette
var (
	Primary = lipgloss.Color("#22d3ee")
	Success = lipgloss.Color("#10B981")
	Error   = lipgloss.Color("#EF4444")
	Muted   = lipgloss.Color("#6B7280")
)

var (
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	SuccessStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	ErrorStyle   = lipgloss.NewStyle().Foreground(Error).Bold(true)
	MutedStyle   = lipgloss.NewStyle().Foreground(Muted)
	SpinnerStyle = lipgloss.NewStyle().Foreground(Primary)

	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(1, 2)

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(Primary).Align(lipgloss.Center)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableRowStyle    = tableCellStyle.Foreground(lipgloss.Color("255"))
	tableRowAltStyle = tableCellStyle.Foreground(lipgloss.Color("245"))
)

// roomsTable renders a room listing in relay order.
func roomsTable(rooms []protocol.RoomSummary) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No rooms")
	}

	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		rows = append(rows, []string{r.ID, r.Name, r.HostNickname, strconv.Itoa(r.MemberCount)})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Room ID", "Name", "Host", "Members").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return tableHeaderStyle
			case row%2 == 0:
				return tableRowStyle
			default:
				return tableRowAltStyle
			}
		}).
		Render()
}

func hostedBox(name, roomID string) string {
	return BoxStyle.Render(fmt.Sprintf("%s\n\nRoom %s\nID   %s\n\n%s",
		TitleStyle.Render("Hosting"),
		name,
		roomID,
		MutedStyle.Render("peerlink join "+roomID),
	))
}

func printError(msg string) {
	fmt.Println(ErrorStyle.Render("Error: " + msg))
}

// waitSpinner animates a single status line until stopped.
type waitSpinner struct {
	message string
	frames  spinner.Spinner
	done    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// startSpinner draws message behind a Points spinner and returns the stop func.
func startSpinner(message string) func() {
	s := &waitSpinner{message: message, frames: spinner.Points, done: make(chan struct{})}

	s.wg.Add(1)
	go s.run()

	return s.stop
}

func (s *waitSpinner) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.frames.FPS)
	defer ticker.Stop()

	for i := 0; ; i++ {
		fmt.Printf("\r%s %s", SpinnerStyle.Render(s.frames.Frames[i%len(s.frames.Frames)]), s.message)

		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

func (s *waitSpinner) stop() {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		fmt.Print("\r\033[K")
	})
}
