// Package tui is a terminal client for a running panpipe server.
package tui

import (
	"fmt"

	"cryogon/panpipe/ipc"
	"cryogon/panpipe/jukebox"
	"cryogon/panpipe/player"
	"cryogon/panpipe/track"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	normalColor = lipgloss.Color("#000000")
	activeColor = lipgloss.Color("#ff79c6")

	volumeStep = 0.05
)

var sectionStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder(), true).Padding(0).Margin(0)

type Section int

const (
	sectionViews Section = iota
	sectionDetails
	sectionTracks
)

// View picks how the track table is ordered.
type View int

const (
	viewLibrary View = iota
	viewWeights
)

var viewNames = []string{"Library", "By weight"}

type model struct {
	ipc           *ipc.Client
	activeSection Section
	height        int
	width         int

	view       View
	viewCursor int

	trackModel table.Model
	tracks     []track.Track
	weights    []jukebox.WeightedTrack
	rows       []jukebox.WeightedTrack

	progress *ProgressBar
	status   jukebox.Status
	lastErr  string
}

func InitialModel(ipcClient *ipc.Client, progressBar *ProgressBar) model {
	columns := []table.Column{
		{Title: "", Width: 2},
		{Title: "Title", Width: 30},
		{Title: "Artist", Width: 20},
		{Title: "Length", Width: 7},
		{Title: "Weight", Width: 7},
		{Title: "Plays", Width: 6},
		{Title: "Skips", Width: 6},
	}

	return model{
		ipc:        ipcClient,
		trackModel: table.New(table.WithColumns(columns)),
		progress:   progressBar,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		request(m.ipc, ipc.MsgTracks),
		request(m.ipc, ipc.MsgWeights),
		listenToIPC(m.ipc),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case ipc.Message:
		cmds = append(cmds, listenToIPC(m.ipc))
		cmds = append(cmds, m.handleMessage(msg)...)

	case disconnectedMsg:
		log.Warnf("[TUI] Lost the server: %v", msg.err)
		return m, tea.Quit

	case error:
		m.lastErr = msg.Error()

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		availableHeight := m.height - sectionStyle.GetVerticalFrameSize()
		mainBodyHeight := availableHeight - 6
		finalRightHeight := max(mainBodyHeight-sectionStyle.GetVerticalFrameSize(), 1)

		m.trackModel.SetHeight(finalRightHeight + 2)
		m.progress.Update(msg.Width, m.status.Position, m.status.Duration)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.activeSection++
			if m.activeSection > sectionTracks {
				m.activeSection = sectionViews
			}
			if m.activeSection == sectionTracks {
				m.trackModel.Focus()
			} else {
				m.trackModel.Blur()
			}

		case "enter":
			switch m.activeSection {
			case sectionViews:
				m.view = View(m.viewCursor)
				m.refreshRows()
				m.activeSection = sectionTracks
				m.trackModel.Focus()
			case sectionTracks:
				if row, ok := m.selected(); ok {
					cmds = append(cmds, playTrack(m.ipc, row.Track.ID))
				}
			}

		case "down", "j":
			if m.activeSection == sectionViews && m.viewCursor < len(viewNames)-1 {
				m.viewCursor++
			}
		case "up", "k":
			if m.activeSection == sectionViews && m.viewCursor > 0 {
				m.viewCursor--
			}
		case "n":
			cmds = append(cmds, send(m.ipc, jukebox.Command{Type: jukebox.CmdNext}))
		case "p":
			cmds = append(cmds, send(m.ipc, jukebox.Command{Type: jukebox.CmdPrev}))
		case " ":
			cmds = append(cmds, send(m.ipc, jukebox.Command{Type: jukebox.CmdToggle}))
		case "s":
			cmds = append(cmds, send(m.ipc, jukebox.Command{Type: jukebox.CmdStop}))
		case "r":
			cmds = append(cmds, send(m.ipc, jukebox.Command{Type: jukebox.CmdShuffle}))
		case "+", "=":
			cmds = append(cmds, setVolume(m.ipc, min(m.status.Volume+volumeStep, 1)))
		case "-":
			cmds = append(cmds, setVolume(m.ipc, max(m.status.Volume-volumeStep, 0)))
		}
	}

	// Always update the table model so it can handle its own internal resizing and inputs
	var tableCmd tea.Cmd
	m.trackModel, tableCmd = m.trackModel.Update(msg)
	cmds = append(cmds, tableCmd)

	return m, tea.Batch(cmds...)
}

func (m *model) handleMessage(msg ipc.Message) []tea.Cmd {
	var cmds []tea.Cmd

	switch msg.Type {
	case ipc.MsgTracks:
		var tracks []track.Track
		if err := msg.Decode(&tracks); err == nil {
			m.tracks = tracks
			m.refreshRows()
		}

	case ipc.MsgWeights:
		var weights []jukebox.WeightedTrack
		if err := msg.Decode(&weights); err == nil {
			m.weights = weights
			m.refreshRows()
		}

	case ipc.MsgStatus:
		var status jukebox.Status
		if err := msg.Decode(&status); err == nil {
			m.setStatus(status)
		}

	case ipc.MsgReply:
		var reply ipc.Reply
		if err := msg.Decode(&reply); err == nil {
			m.lastErr = reply.Error
		}

	case ipc.MsgNotice:
		var n jukebox.Notice
		if err := msg.Decode(&n); err != nil {
			log.Debugf("[TUI] Bad notice: %v", err)
			break
		}
		m.setStatus(n.Status)
		switch {
		case n.Kind == jukebox.NoticeCommit:
			// a committed session moves weights around
			cmds = append(cmds, request(m.ipc, ipc.MsgWeights))
		case n.Kind == jukebox.NoticeError:
			m.lastErr = n.Error
		case n.Event != nil && n.Event.Kind == player.DurationLearned:
			cmds = append(cmds, request(m.ipc, ipc.MsgTracks))
		}
	}
	return cmds
}

func (m *model) setStatus(status jukebox.Status) {
	prev := m.playingID()
	m.status = status
	m.progress.Update(m.width, status.Position, status.Duration)
	if m.playingID() != prev {
		m.refreshRows()
	}
}

func (m model) playingID() uuid.UUID {
	if m.status.Track == nil || m.status.State == player.Stopped {
		return uuid.Nil
	}
	return m.status.Track.ID
}

// refreshRows rebuilds the table for the current view. The library view
// keeps scan order and looks weights up; the weight view uses the ranking.
func (m *model) refreshRows() {
	byID := make(map[uuid.UUID]jukebox.WeightedTrack, len(m.weights))
	for _, w := range m.weights {
		byID[w.Track.ID] = w
	}

	m.rows = nil
	switch m.view {
	case viewWeights:
		m.rows = append(m.rows, m.weights...)
	default:
		for _, t := range m.tracks {
			w, ok := byID[t.ID]
			if !ok {
				w = jukebox.WeightedTrack{Weight: -1}
			}
			w.Track = t
			m.rows = append(m.rows, w)
		}
	}

	playing := m.playingID()
	rows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		marker := ""
		if r.Track.ID == playing {
			marker = "▶ "
		}
		weight := "-"
		if r.Weight >= 0 {
			weight = fmt.Sprintf("%.2f", r.Weight)
		}
		plays, skips := "0", "0"
		if r.Behavior != nil {
			plays = fmt.Sprintf("%d", r.Behavior.TotalPlays)
			skips = fmt.Sprintf("%d", r.Behavior.TotalSkips)
		}
		rows = append(rows, table.Row{
			marker,
			r.Track.DisplayTitle(),
			r.Track.DisplayArtist(),
			formatSeconds(r.Track.Duration.Seconds()),
			weight,
			plays,
			skips,
		})
	}
	m.trackModel.SetRows(rows)
}

func (m model) selected() (jukebox.WeightedTrack, bool) {
	i := m.trackModel.Cursor()
	if i < 0 || i >= len(m.rows) {
		return jukebox.WeightedTrack{}, false
	}
	return m.rows[i], true
}

func formatSeconds(secs float64) string {
	if secs <= 0 {
		return "--:--"
	}
	s := int(secs)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}
