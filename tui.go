package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"scribe/conversation"
	"scribe/session"
)

// TUI message types
type StateMsg struct{ State session.State }
type SegmentMsg struct {
	Index   int
	Partial bool
	Speech  bool
}
type EntryMsg struct{ Entry conversation.Entry }
type RetryMsg struct {
	Index   int
	Attempt int
	Err     error
	Delay   time.Duration
}
type FailedMsg struct {
	Index int
	Err   error
}
type SilenceWarningMsg struct{ SilentFor time.Duration }
type DoneMsg struct{}
type tickMsg time.Time

// levelSource is polled on every tick; the session itself.
type levelSource interface {
	Level() float64
	Elapsed() time.Duration
	Stop()
}

type tuiModel struct {
	src      levelSource
	header   string // "[fixed 5s | wav | groq (en)]"
	device   string
	state    session.State
	elapsed  time.Duration
	level    float64
	segments int
	retries  int
	failed   int
	silence  time.Duration // current warning, 0 when speech resumed
	lastErr  string
	entries  []string
	width    int
	height   int
}

var (
	recStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	stopStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	textStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	meterStyles = [3]lipgloss.Style{
		lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
	}
)

func NewTUIProgram(src levelSource, header, device string) *tea.Program {
	m := tuiModel{src: src, header: header, device: device}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc", "s":
			// Stopping flushes what is buffered; the program quits on DoneMsg.
			m.src.Stop()
		}

	case tickMsg:
		if m.state == session.Recording {
			m.level = m.level*0.6 + m.src.Level()*0.4
		} else {
			m.level = 0
		}
		m.elapsed = m.src.Elapsed()
		return m, tuiTick()

	case StateMsg:
		m.state = msg.State

	case SegmentMsg:
		m.segments = msg.Index + 1

	case EntryMsg:
		if msg.Entry.Text != "" {
			m.entries = append(m.entries, msg.Entry.Text)
			m.silence = 0
		}

	case RetryMsg:
		m.retries++
		m.lastErr = fmt.Sprintf("segment %d: attempt %d failed, retrying in %v", msg.Index, msg.Attempt, msg.Delay.Round(time.Millisecond))

	case FailedMsg:
		m.failed++
		m.lastErr = fmt.Sprintf("segment %d skipped: %v", msg.Index, msg.Err)

	case SilenceWarningMsg:
		m.silence = msg.SilentFor

	case DoneMsg:
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var lines []string
	lines = append(lines, headerStyle.Render(m.header))
	if m.device != "" {
		lines = append(lines, dimStyle.Render("mic: "+m.device))
	}
	lines = append(lines, "")

	secs := m.elapsed.Seconds()
	switch m.state {
	case session.Recording:
		lines = append(lines, recStyle.Render(fmt.Sprintf("● REC %.1fs", secs))+"  "+renderMeter(m.level, 24))
	case session.Stopping:
		lines = append(lines, stopStyle.Render(fmt.Sprintf("◌ FINISHING %.1fs", secs)))
	case session.Stopped:
		lines = append(lines, dimStyle.Render(fmt.Sprintf("■ STOPPED %.1fs", secs)))
	default:
		lines = append(lines, dimStyle.Render("○ STARTING"))
	}

	counts := fmt.Sprintf("segments %d  retries %d  failed %d", m.segments, m.retries, m.failed)
	lines = append(lines, dimStyle.Render(counts))
	if m.silence > 0 {
		lines = append(lines, warnStyle.Render(fmt.Sprintf("⚠ no speech for %v", m.silence.Round(time.Second))))
	}
	if m.lastErr != "" {
		lines = append(lines, warnStyle.Render(m.lastErr))
	}
	lines = append(lines, "")

	// Transcript, newest lines kept when it overflows
	room := max(m.height-len(lines)-2, 1)
	wrapped := wrapText(strings.Join(m.entries, " "), max(m.width-2, 10))
	if len(m.entries) == 0 {
		wrapped = []string{dimStyle.Render("Nothing transcribed yet")}
	} else {
		if len(wrapped) > room {
			wrapped = wrapped[len(wrapped)-room:]
		}
		for i, l := range wrapped {
			wrapped[i] = textStyle.Render(l)
		}
	}
	lines = append(lines, wrapped...)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	body := lipgloss.NewStyle().Height(m.height - 1).Render(strings.Join(lines, "\n"))
	return body + "\n" + help.Render("q/s to stop  scribe "+version)
}

// renderMeter draws an RMS level bar; full scale is -18 dBFS.
func renderMeter(level float64, width int) string {
	const full = 0.125
	n := int(math.Round(math.Min(level/full, 1) * float64(width)))
	var b strings.Builder
	for i := 0; i < width; i++ {
		if i >= n {
			b.WriteString(dimStyle.Render("·"))
			continue
		}
		style := meterStyles[0]
		switch {
		case i >= width*9/10:
			style = meterStyles[2]
		case i >= width*7/10:
			style = meterStyles[1]
		}
		b.WriteString(style.Render("█"))
	}
	return b.String()
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
