package tui

import (
	"fmt"

	"cryogon/panpipe/ipc"

	tea "github.com/charmbracelet/bubbletea"
)

// Run connects to the server at socketPath and blocks until the user quits.
// The caller should point logging at a file first so log lines do not draw
// over the alt screen.
func Run(socketPath string) error {
	ipcClient, err := ipc.Dial(socketPath)
	if err != nil {
		return fmt.Errorf("connect to %s (is `panpipe serve` running?): %w", socketPath, err)
	}
	defer ipcClient.Close()

	p := tea.NewProgram(InitialModel(ipcClient, NewProgressBar()), tea.WithAltScreen())
	_, err = p.Run()
	return err
}
