// Package dashboard is the terminal view of the synced collections.
package dashboard

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/crewsync/internal/crossref"
	"github.com/nhle/crewsync/internal/keys"
	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/sync"
	"github.com/nhle/crewsync/internal/theme"
	"github.com/nhle/crewsync/internal/ui"
	"github.com/nhle/crewsync/internal/ui/crewform"
	"github.com/nhle/crewsync/internal/ui/jobform"
)

// actionTimeout bounds a retry started from the keyboard.
const actionTimeout = 30 * time.Second

// Snapshot is everything the dashboard shows.
type Snapshot struct {
	User          *model.User
	Jobs          []model.Job
	Employees     []model.Employee
	Notifications []model.Notification
	Chat          []model.ChatMessage
	UnreadChat    int
	Statuses      []sync.Status
}

// Backend feeds the dashboard and carries out its actions.
type Backend interface {
	Snapshot() Snapshot
	RefreshAll()
	RetryJob(ctx context.Context, id string) error
	DiscardJob(id string) error
	MarkNotificationRead(id string) error
	MarkAllNotificationsRead() error
	MarkChatRead() error

	AddJob(job model.Job) error
	UpdateJob(job model.Job) error
	DeleteJob(id string) error
	AddEmployee(emp model.Employee) error
	SendChat(body string) error
}

// ChangedMsg is sent when any container changed.
type ChangedMsg struct {
	Event sync.Event
}

// actionDoneMsg reports the outcome of a keyboard action.
type actionDoneMsg struct {
	what string
	err  error
}

// Panel identifies the focused panel.
type Panel int

const (
	PanelJobs Panel = iota
	PanelNotifications
	PanelChat
	PanelEmployees
	panelCount
)

func (p Panel) String() string {
	switch p {
	case PanelNotifications:
		return "Notifications"
	case PanelChat:
		return "Chat"
	case PanelEmployees:
		return "Crew"
	default:
		return "Jobs"
	}
}

// mode is what receives keys.
type mode int

const (
	modeBrowse mode = iota
	modeJobForm
	modeCrewForm
	modeCompose
)

// Model is the dashboard bubbletea model.
type Model struct {
	backend Backend
	events  <-chan sync.Event
	keys    *keys.KeyMap
	help    help.Model
	layout  ui.Layout

	mode     mode
	jobForm  jobform.Model
	crewForm crewform.Model
	compose  textinput.Model

	snap     Snapshot
	roster   crossref.Roster
	jobs     table.Model
	focus    Panel
	notifIdx int
	showHelp bool
	message  string
	err      error
}

// New creates a dashboard over backend. Container events arriving on
// events trigger a redraw.
func New(backend Backend, events <-chan sync.Event, k *keys.KeyMap) Model {
	t := table.New(
		table.WithColumns(jobColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(theme.ColorBlue).Bold(true)
	styles.Selected = styles.Selected.Foreground(theme.ColorWhite).Background(theme.ColorBlue)
	t.SetStyles(styles)

	compose := textinput.New()
	compose.Placeholder = "Message the crew"
	compose.CharLimit = 500

	m := Model{
		backend:  backend,
		events:   events,
		keys:     k,
		help:     help.New(),
		layout:   ui.NewLayout(80, 24),
		jobForm:  jobform.New(80, 24),
		crewForm: crewform.New(),
		compose:  compose,
		jobs:     t,
	}
	m.reload()
	return m
}

// Init starts listening for container events.
func (m Model) Init() tea.Cmd {
	return m.waitForEvent()
}

// waitForEvent returns a tea.Cmd that waits for the next container event.
func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return ChangedMsg{Event: ev}
	}
}

// Update handles messages for the dashboard.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.help.Width = msg.Width
		m.jobForm.SetSize(msg.Width, msg.Height)
		m.resize()
		return m, nil

	case ChangedMsg:
		m.reload()
		return m, m.waitForEvent()

	case actionDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.message = ""
		} else {
			m.err = nil
			m.message = msg.what
		}
		m.reload()
		return m, nil

	case jobform.JobCreatedMsg:
		m.mode = modeBrowse
		return m.Update(actionDoneMsg{what: "added " + msg.Job.Title, err: m.backend.AddJob(msg.Job)})

	case jobform.JobUpdatedMsg:
		m.mode = modeBrowse
		return m.Update(actionDoneMsg{what: "saved " + msg.Job.Title, err: m.backend.UpdateJob(msg.Job)})

	case crewform.EmployeeCreatedMsg:
		m.mode = modeBrowse
		return m.Update(actionDoneMsg{what: "added " + msg.Employee.Name, err: m.backend.AddEmployee(msg.Employee)})

	case jobform.CancelMsg, crewform.CancelMsg:
		m.mode = modeBrowse
		return m, nil
	}

	switch m.mode {
	case modeJobForm:
		var cmd tea.Cmd
		m.jobForm, cmd = m.jobForm.Update(msg)
		return m, cmd
	case modeCrewForm:
		var cmd tea.Cmd
		m.crewForm, cmd = m.crewForm.Update(msg)
		return m, cmd
	case modeCompose:
		return m.updateCompose(msg)
	}

	if msg, ok := msg.(tea.KeyMsg); ok {
		return m.handleKey(msg)
	}
	return m, nil
}

// updateCompose feeds the chat input. Enter sends, esc leaves.
func (m Model) updateCompose(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyEsc:
			m.mode = modeBrowse
			m.compose.Blur()
			m.compose.Reset()
			return m, nil
		case tea.KeyEnter:
			body := m.compose.Value()
			m.mode = modeBrowse
			m.compose.Blur()
			m.compose.Reset()
			return m.Update(actionDoneMsg{what: "message sent", err: m.backend.SendChat(body)})
		}
	}

	var cmd tea.Cmd
	m.compose, cmd = m.compose.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.NextPanel):
		m.setFocus((m.focus + 1) % panelCount)
		return m, nil

	case key.Matches(msg, m.keys.PrevPanel):
		m.setFocus((m.focus + panelCount - 1) % panelCount)
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		m.backend.RefreshAll()
		m.message = "refreshing"
		m.err = nil
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		job, ok := m.selectedJob()
		if !ok || job.SyncStatus != model.SyncStatusFailed {
			return m, nil
		}
		backend := m.backend
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), actionTimeout)
			defer cancel()
			return actionDoneMsg{what: "retried " + job.Title, err: backend.RetryJob(ctx, job.ID)}
		}

	case key.Matches(msg, m.keys.Discard):
		job, ok := m.selectedJob()
		if !ok || job.SyncStatus != model.SyncStatusFailed {
			return m, nil
		}
		return m.Update(actionDoneMsg{what: "discarded " + job.Title, err: m.backend.DiscardJob(job.ID)})

	case key.Matches(msg, m.keys.New):
		if m.focus == PanelEmployees {
			m.mode = modeCrewForm
			cmd := m.crewForm.Start()
			return m, cmd
		}
		m.mode = modeJobForm
		m.jobForm.SetEmployees(m.snap.Employees)
		cmd := m.jobForm.StartCreate()
		return m, cmd

	case key.Matches(msg, m.keys.Edit):
		job, ok := m.selectedJob()
		if !ok {
			return m, nil
		}
		m.mode = modeJobForm
		m.jobForm.SetEmployees(m.snap.Employees)
		cmd := m.jobForm.StartEdit(job)
		return m, cmd

	case key.Matches(msg, m.keys.Delete):
		job, ok := m.selectedJob()
		if !ok {
			return m, nil
		}
		return m.Update(actionDoneMsg{what: "deleted " + job.Title, err: m.backend.DeleteJob(job.ID)})

	case key.Matches(msg, m.keys.Compose):
		m.mode = modeCompose
		m.setFocus(PanelChat)
		cmd := m.compose.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.MarkAllRead):
		return m.Update(actionDoneMsg{what: "all notifications read", err: m.backend.MarkAllNotificationsRead()})

	case key.Matches(msg, m.keys.MarkRead):
		switch m.focus {
		case PanelNotifications:
			if m.notifIdx < len(m.snap.Notifications) {
				n := m.snap.Notifications[m.notifIdx]
				return m.Update(actionDoneMsg{what: "marked read", err: m.backend.MarkNotificationRead(n.ID)})
			}
		case PanelChat:
			return m.Update(actionDoneMsg{what: "chat marked read", err: m.backend.MarkChatRead()})
		}
		return m, nil
	}

	switch m.focus {
	case PanelJobs:
		var cmd tea.Cmd
		m.jobs, cmd = m.jobs.Update(msg)
		return m, cmd
	case PanelNotifications:
		switch {
		case key.Matches(msg, m.keys.Down):
			if m.notifIdx < len(m.snap.Notifications)-1 {
				m.notifIdx++
			}
		case key.Matches(msg, m.keys.Up):
			if m.notifIdx > 0 {
				m.notifIdx--
			}
		}
	}
	return m, nil
}

// Editing reports whether a form or the chat input has the keyboard.
func (m Model) Editing() bool {
	return m.mode != modeBrowse
}

// Focus returns the focused panel.
func (m Model) Focus() Panel {
	return m.focus
}

func (m *Model) setFocus(p Panel) {
	m.focus = p
	if p == PanelJobs {
		m.jobs.Focus()
	} else {
		m.jobs.Blur()
	}
}

// reload pulls a fresh snapshot and rebuilds the jobs table.
func (m *Model) reload() {
	m.snap = m.backend.Snapshot()
	m.roster = crossref.NewRoster(m.snap.Employees)
	m.jobs.SetRows(jobRows(m.snap.Jobs, m.roster))
	if m.notifIdx >= len(m.snap.Notifications) {
		m.notifIdx = max(len(m.snap.Notifications)-1, 0)
	}
}

func (m *Model) resize() {
	mainWidth, _ := m.layout.SplitWidth(62, 32)
	m.jobs.SetColumns(jobColumns(mainWidth - 4))
	m.jobs.SetWidth(mainWidth - 2)
	m.jobs.SetHeight(max(m.layout.ContentHeight()-4, 3))
}

func (m Model) selectedJob() (model.Job, bool) {
	if m.focus != PanelJobs {
		return model.Job{}, false
	}
	i := m.jobs.Cursor()
	if i < 0 || i >= len(m.snap.Jobs) {
		return model.Job{}, false
	}
	return m.snap.Jobs[i], true
}

func jobColumns(width int) []table.Column {
	status := 8
	title := max(width*2/5, 10)
	assignees := max(width-title-status-4, 10)
	return []table.Column{
		{Title: "Job", Width: title},
		{Title: "Assigned", Width: assignees},
		{Title: "Sync", Width: status},
	}
}

func jobRows(jobs []model.Job, roster crossref.Roster) []table.Row {
	rows := make([]table.Row, len(jobs))
	for i, job := range jobs {
		names := roster.Names(job)
		assigned := "-"
		if len(names) > 0 {
			assigned = joinNames(names)
		}
		rows[i] = table.Row{job.Title, assigned, string(job.SyncStatus)}
	}
	return rows
}

func joinNames(names []string) string {
	out := names[0]
	for _, n := range names[1:] {
		out += ", " + n
	}
	return out
}
