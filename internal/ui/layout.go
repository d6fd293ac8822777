// Package ui holds the screen frame shared by the terminal views.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crewsync/internal/sync"
	"github.com/nhle/crewsync/internal/theme"
)

// Rows taken by the header and status bars.
const (
	headerRows    = 1
	statusBarRows = 1
)

// Layout is the terminal frame: a header carrying the sync state of every
// container, a content area, and a status bar.
type Layout struct {
	Width  int
	Height int
}

// NewLayout creates a Layout for a terminal of the given size.
func NewLayout(width, height int) Layout {
	return Layout{Width: width, Height: height}
}

// ContentWidth returns the full available width.
func (l Layout) ContentWidth() int {
	return l.Width
}

// ContentHeight returns the rows left between the header and status bar.
func (l Layout) ContentHeight() int {
	return max(l.Height-headerRows-statusBarRows, 0)
}

// SplitWidth divides the content width into a main column holding
// percent of it and a side column with the rest. Each side keeps at least
// minWidth columns when the terminal allows it.
func (l Layout) SplitWidth(percent, minWidth int) (main, side int) {
	width := l.ContentWidth()
	main = width * percent / 100
	side = width - main
	if side < minWidth && width >= 2*minWidth {
		side = minWidth
		main = width - side
	}
	return max(main, 0), side
}

// RenderHeader renders the title on the left and the sync state of each
// container on the right.
func (l Layout) RenderHeader(title string, statuses []sync.Status) string {
	return l.bar(theme.HeaderStyle, title, SyncSummary(statuses))
}

// RenderStatusBar renders the bottom bar. A non-empty message wins, then
// the first container error, then hint.
func (l Layout) RenderStatusBar(message, hint string, statuses []sync.Status) string {
	text := message
	if text == "" {
		for _, st := range statuses {
			if st.Err != nil {
				text = theme.ErrorStyle.Render(fmt.Sprintf("%s: %v", st.Name, st.Err))
				break
			}
		}
	}
	if text == "" {
		text = hint
	}
	return l.bar(theme.StatusBarStyle, text, "")
}

// RenderFrame stacks header, content and status bar.
func (l Layout) RenderFrame(header, content, statusBar string) string {
	return lipgloss.JoinVertical(lipgloss.Left, header, content, statusBar)
}

// bar renders one full-width row in style with left and right aligned text.
func (l Layout) bar(style lipgloss.Style, left, right string) string {
	parts := []string{style.Render(left)}
	if right != "" {
		parts = append(parts, style.Render(right))
	}

	used := 0
	for _, p := range parts {
		used += lipgloss.Width(p)
	}
	filler := lipgloss.NewStyle().
		Width(max(l.Width-used, 0)).
		Background(style.GetBackground()).
		Render("")

	if len(parts) == 1 {
		return lipgloss.JoinHorizontal(lipgloss.Top, parts[0], filler)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts[0], filler, parts[1])
}

// SyncSummary renders one phase label per container, with counts of
// pending and failed records.
func SyncSummary(statuses []sync.Status) string {
	parts := make([]string, 0, len(statuses))
	for _, st := range statuses {
		label := st.Phase.String()
		if st.Pending > 0 {
			label += fmt.Sprintf(" +%d", st.Pending)
		}
		if st.Failed > 0 {
			label += fmt.Sprintf(" !%d", st.Failed)
		}
		parts = append(parts, st.Name+" "+theme.PhaseStyle(st.Phase.String()).Render(label))
	}
	return strings.Join(parts, " | ")
}
