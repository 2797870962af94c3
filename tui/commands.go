package tui

import (
	"cryogon/panpipe/ipc"
	"cryogon/panpipe/jukebox"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// disconnectedMsg ends the program when the server goes away.
type disconnectedMsg struct{ err error }

func listenToIPC(c *ipc.Client) tea.Cmd {
	return func() tea.Msg {
		msg, err := c.ReadNext()
		if err != nil {
			return disconnectedMsg{err: err}
		}
		log.Debugf("[TUI] Received %s", msg.Type)
		return msg
	}
}

func request(c *ipc.Client, msgType ipc.MessageType) tea.Cmd {
	return func() tea.Msg {
		return c.Request(msgType)
	}
}

func send(c *ipc.Client, cmd jukebox.Command) tea.Cmd {
	return func() tea.Msg {
		return c.Send(cmd)
	}
}

func playTrack(c *ipc.Client, id uuid.UUID) tea.Cmd {
	return send(c, jukebox.Command{Type: jukebox.CmdPlay, TrackID: id})
}

func setVolume(c *ipc.Client, v float64) tea.Cmd {
	return send(c, jukebox.Command{Type: jukebox.CmdVolume, Volume: &v})
}
