package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/theme"
)

// maxPanelLines caps the entries listed per side panel.
const maxPanelLines = 6

// View renders the dashboard.
func (m Model) View() string {
	header := m.layout.RenderHeader(m.title(), m.snap.Statuses)

	var content string
	switch {
	case m.mode == modeJobForm:
		content = theme.FocusedPanelStyle.Render(m.jobForm.View())
	case m.mode == modeCrewForm:
		content = theme.FocusedPanelStyle.Render(m.crewForm.View())
	case m.showHelp:
		m.help.ShowAll = true
		content = theme.PanelStyle.Render(theme.HelpStyle.Render(m.help.View(m.keys)))
	default:
		mainWidth, sideWidth := m.layout.SplitWidth(62, 32)
		jobs := m.panelStyle(PanelJobs).Width(mainWidth - 2).Render(
			theme.PanelTitleStyle.Render(m.jobsTitle()) + "\n" + m.jobs.View(),
		)
		side := lipgloss.JoinVertical(lipgloss.Left,
			m.panelStyle(PanelNotifications).Width(sideWidth-2).Render(m.notificationsView()),
			m.panelStyle(PanelChat).Width(sideWidth-2).Render(m.chatView()),
			m.panelStyle(PanelEmployees).Width(sideWidth-2).Render(m.crewView()),
		)
		content = lipgloss.JoinHorizontal(lipgloss.Top, jobs, side)
	}

	hint := m.help.ShortHelpView(m.keys.ShortHelp())
	status := m.layout.RenderStatusBar(m.statusLine(), hint, m.snap.Statuses)
	return m.layout.RenderFrame(header, content, status)
}

func (m Model) jobsTitle() string {
	title := fmt.Sprintf("Jobs (%d)", len(m.snap.Jobs))
	if n := len(m.roster.Dangling(m.snap.Jobs)); n > 0 {
		title += fmt.Sprintf(" · %d with unknown crew", n)
	}
	return title
}

func (m Model) panelStyle(p Panel) lipgloss.Style {
	if m.focus == p {
		return theme.FocusedPanelStyle
	}
	return theme.PanelStyle
}

func (m Model) title() string {
	if m.snap.User == nil {
		return "crewsync"
	}
	return fmt.Sprintf("crewsync · %s (%s)", m.snap.User.Name, m.snap.User.Role)
}

// statusLine returns the action outcome to show, if any.
func (m Model) statusLine() string {
	switch {
	case m.err != nil:
		return theme.ErrorStyle.Render(m.err.Error())
	case m.message != "":
		return m.message
	}
	return ""
}

func (m Model) notificationsView() string {
	unread := 0
	for _, n := range m.snap.Notifications {
		if !n.Read {
			unread++
		}
	}

	var b strings.Builder
	b.WriteString(theme.PanelTitleStyle.Render(fmt.Sprintf("Notifications (%d unread)", unread)))
	for i, n := range m.snap.Notifications {
		if i >= maxPanelLines {
			break
		}
		marker := "  "
		if m.focus == PanelNotifications && i == m.notifIdx {
			marker = "> "
		}
		title := n.Title
		if !n.Read {
			title = lipgloss.NewStyle().Bold(true).Render(title)
		}
		line := "\n" + marker + theme.NotificationStyle(n.Type).Render(n.Type) + " " + title
		if n.Priority == model.PriorityHigh {
			line += " " + theme.PriorityStyle(n.Priority).Render("!")
		}
		b.WriteString(line)
	}
	return b.String()
}

func (m Model) chatView() string {
	var b strings.Builder
	b.WriteString(theme.PanelTitleStyle.Render(fmt.Sprintf("Chat (%d unread)", m.snap.UnreadChat)))

	msgs := m.snap.Chat
	if len(msgs) > maxPanelLines {
		msgs = msgs[len(msgs)-maxPanelLines:]
	}
	for _, msg := range msgs {
		line := fmt.Sprintf("%s: %s", msg.SenderName, msg.Message)
		b.WriteString("\n" + line + " " + theme.SyncStatusStyle(string(msg.SyncStatus)).Render(syncMark(string(msg.SyncStatus))))
	}
	if m.mode == modeCompose {
		b.WriteString("\n" + m.compose.View())
	}
	return b.String()
}

func (m Model) crewView() string {
	active := 0
	for _, e := range m.snap.Employees {
		if e.IsActive() {
			active++
		}
	}
	var b strings.Builder
	b.WriteString(theme.PanelTitleStyle.Render(fmt.Sprintf("Crew (%d/%d active)", active, len(m.snap.Employees))))
	load := m.roster.Workload(m.snap.Jobs)
	for i, e := range m.snap.Employees {
		if i >= maxPanelLines {
			break
		}
		line := theme.EmployeeStatusStyle(e.Status).Render(e.Name)
		if e.Position != "" {
			line += " " + e.Position
		}
		b.WriteString(fmt.Sprintf("\n%s (%d jobs)", line, load[e.ID]))
	}
	return b.String()
}

func syncMark(status string) string {
	switch status {
	case "pending":
		return "…"
	case "failed":
		return "!"
	default:
		return ""
	}
}
