package tui

import "strings"

type ProgressBar struct {
	str string

	Width int

	// what ascii to show in progress ProgressBar
	// -----========
	// where - is AsciiCompleted and = is AsciiNotCompleted
	ASCIICompleted    string
	ASCIINotCompleted string
}

func NewProgressBar() *ProgressBar {
	return &ProgressBar{
		ASCIICompleted:    "░",
		ASCIINotCompleted: "▓",
	}
}

func (p *ProgressBar) View() string {
	return p.str
}

// Update redraws the bar for a terminal of the given width. Position and
// duration are in seconds; an unknown duration draws an empty bar.
func (p *ProgressBar) Update(width int, position, duration float64) {
	p.Width = max(width-10, 0)

	progress := 0.0
	if duration > 0 {
		progress = min(position/duration, 1)
	}

	var b strings.Builder
	for i := 0; i < p.Width; i++ {
		if float64(i)/float64(p.Width) < progress {
			b.WriteString(p.ASCIICompleted)
		} else {
			b.WriteString(p.ASCIINotCompleted)
		}
	}
	p.str = b.String()
}
