package tui

import (
	"fmt"
	"strings"
	"time"

	"cryogon/panpipe/jukebox"
	"cryogon/panpipe/player"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

func (m model) View() string {
	// CRITICAL: Prevent crash on startup/resize when dimensions are invalid
	if m.width < 20 || m.height < 10 {
		return "Initializing..."
	}

	getBorderColor := func(section Section) lipgloss.Color {
		if m.activeSection == section {
			return activeColor
		}
		return normalColor
	}

	viewList := ""
	for i, name := range viewNames {
		cursor := "  "
		style := lipgloss.NewStyle().Foreground(normalColor)

		if i == m.viewCursor && m.activeSection == sectionViews {
			style = style.Foreground(activeColor).Bold(true)
			cursor = ">>"
		} else if View(i) == m.view {
			style = style.Foreground(activeColor)
		}
		viewList += fmt.Sprintf("%s %s\n", cursor, style.Render(name))
	}

	trueWidth := m.width
	availableHeight := m.height - sectionStyle.GetVerticalFrameSize()

	footerHeight := 4
	mainBodyHeight := availableHeight - footerHeight

	rawTopLeftHeight := int(float64(mainBodyHeight) * 0.3)
	rawBottomLeftHeight := mainBodyHeight - rawTopLeftHeight

	finalTopLeftHeight := rawTopLeftHeight - sectionStyle.GetVerticalFrameSize()
	finalBottomLeftHeight := rawBottomLeftHeight - sectionStyle.GetVerticalFrameSize()
	finalRightHeight := mainBodyHeight - sectionStyle.GetVerticalFrameSize() + 1

	leftColumnWidth := int(float64(trueWidth) * 0.3)
	rightColumnWidth := (trueWidth - leftColumnWidth) - 4

	header := lipgloss.NewStyle().Foreground(normalColor).Bold(true)

	views := sectionStyle.
		Width(leftColumnWidth).
		Height(finalTopLeftHeight).
		BorderForeground(getBorderColor(sectionViews)).
		Render(header.Render("Views") + "\n\n" + viewList)

	details := sectionStyle.
		Width(leftColumnWidth).
		Height(finalBottomLeftHeight).
		BorderForeground(getBorderColor(sectionDetails)).
		Render(header.Render("Listening") + "\n\n" + m.detailsView(leftColumnWidth-2))

	trackTable := sectionStyle.
		Width(rightColumnWidth).
		Height(finalRightHeight).
		BorderForeground(getBorderColor(sectionTracks)).
		Render(m.trackModel.View())

	nowPlaying := " " + m.status.State.String()
	if t := m.status.Track; t != nil {
		nowPlaying = fmt.Sprintf(" %s - %s", t.DisplayArtist(), t.DisplayTitle())
		if m.status.State != player.Playing {
			nowPlaying += " (" + m.status.State.String() + ")"
		}
	}
	position := fmt.Sprintf("%s / %s  vol %d%% \n",
		formatSeconds(m.status.Position), formatSeconds(m.status.Duration), int(m.status.Volume*100+0.5))

	contentWidth := trueWidth - 2
	gapSize := max(contentWidth-lipgloss.Width(nowPlaying)-lipgloss.Width(position), 0)

	topLine := lipgloss.JoinHorizontal(
		lipgloss.Top,
		nowPlaying,
		lipgloss.NewStyle().Width(gapSize).Render(""),
		position,
	)
	styledTopLine := lipgloss.NewStyle().Width(contentWidth).Render(topLine)

	centeredProgressBar := lipgloss.NewStyle().
		Width(contentWidth).
		Align(lipgloss.Center).
		Render(m.progress.View())

	playerBlockContent := lipgloss.JoinVertical(
		lipgloss.Center,
		styledTopLine,
		centeredProgressBar,
	)

	playerSection := sectionStyle.
		Width(trueWidth-2).
		Height(footerHeight-sectionStyle.GetVerticalFrameSize()).
		BorderForeground(normalColor).
		Align(lipgloss.Center, lipgloss.Bottom).
		Render(playerBlockContent)

	leftSide := lipgloss.JoinVertical(lipgloss.Top, views, details)
	topSide := lipgloss.JoinHorizontal(lipgloss.Top, leftSide, trackTable)
	return lipgloss.JoinVertical(lipgloss.Bottom, topSide, playerSection)
}

// detailsView describes the listening history of the highlighted track.
func (m model) detailsView(width int) string {
	row, ok := m.selected()
	if !ok {
		return ""
	}

	lines := []string{truncate(row.Track.DisplayTitle(), width)}
	if row.Weight >= 0 {
		lines = append(lines, fmt.Sprintf("weight     %.2f", row.Weight))
	}
	lines = append(lines, behaviorLines(row)...)
	if m.lastErr != "" {
		lines = append(lines, "", truncate("! "+m.lastErr, width))
	}
	return strings.Join(lines, "\n")
}

func behaviorLines(row jukebox.WeightedTrack) []string {
	b := row.Behavior
	if b == nil {
		return []string{"never played"}
	}

	lines := []string{
		fmt.Sprintf("plays      %d", b.TotalPlays),
		fmt.Sprintf("skips      %d", b.TotalSkips),
		fmt.Sprintf("completion %.0f%%", b.CompletionRate),
		fmt.Sprintf("listened   %s", time.Duration(b.TotalPlayTime)*time.Second),
	}
	if b.LastPlayed != nil {
		lines = append(lines, "last       "+humanize.Time(*b.LastPlayed))
	}
	if len(b.Tags) > 0 {
		lines = append(lines, "tags       "+strings.Join(b.Tags, ", "))
	}
	return lines
}

func truncate(s string, w int) string {
	if w <= 3 {
		return ""
	}
	if len(s) > w {
		return s[:w-3] + "..."
	}
	return s
}
