// Package jobform is the create/edit form for jobs.
package jobform

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/theme"
)

// JobCreatedMsg is dispatched when a new job is submitted.
type JobCreatedMsg struct {
	Job model.Job
}

// JobUpdatedMsg is dispatched when an edited job is submitted. Job keeps
// every field of the original that the form does not show.
type JobUpdatedMsg struct {
	Job model.Job
}

// CancelMsg is dispatched when the user leaves the form.
type CancelMsg struct{}

// formBindings holds field values on the heap so that huh's Value()
// pointers stay valid across Bubble Tea model copies.
type formBindings struct {
	title       string
	description string
	assignees   []string
}

// Model is the Bubble Tea model for the job form.
type Model struct {
	form      *huh.Form
	fb        *formBindings
	editing   *model.Job
	employees []model.Employee
	width     int
	height    int
}

// New creates an idle job form.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{},
		width:  width,
		height: height,
	}
}

// SetEmployees sets the crew offered as assignees.
func (m *Model) SetEmployees(employees []model.Employee) {
	m.employees = employees
}

// Active reports whether a form is open.
func (m Model) Active() bool {
	return m.form != nil && m.form.State == huh.StateNormal
}

// StartCreate opens an empty form.
func (m *Model) StartCreate() tea.Cmd {
	m.editing = nil
	*m.fb = formBindings{}
	m.form = m.build()
	return m.form.Init()
}

// StartEdit opens the form on job.
func (m *Model) StartEdit(job model.Job) tea.Cmd {
	m.editing = &job
	m.fb.title = job.Title
	m.fb.description = job.Description
	m.fb.assignees = append([]string(nil), job.AssignedEmployees...)
	m.form = m.build()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		m.form = nil
		return m, m.submit()
	case huh.StateAborted:
		m.form = nil
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	heading := "New Job"
	if m.editing != nil {
		heading = "Edit Job"
	}
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(titleStyle.Render(heading) + "\n" + m.form.View())
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) build() *huh.Form {
	fields := []huh.Field{
		huh.NewInput().
			Title("Title").
			Placeholder("Roof inspection").
			Value(&m.fb.title).
			Validate(validateRequired("Title")),
		huh.NewText().
			Title("Description").
			Placeholder("Scope, site, materials...").
			Value(&m.fb.description),
	}
	if f := m.assigneeField(); f != nil {
		fields = append(fields, f)
	}

	return huh.NewForm(huh.NewGroup(fields...)).
		WithKeyMap(keyMap()).
		WithWidth(m.formWidth()).
		WithHeight(m.formHeight())
}

// assigneeField lists active employees plus anyone already assigned, so
// editing never silently drops an assignment.
func (m *Model) assigneeField() huh.Field {
	assigned := make(map[string]bool, len(m.fb.assignees))
	for _, id := range m.fb.assignees {
		assigned[id] = true
	}

	var opts []huh.Option[string]
	known := make(map[string]bool, len(m.employees))
	for _, e := range m.employees {
		known[e.ID] = true
		if !e.IsActive() && !assigned[e.ID] {
			continue
		}
		label := e.Name
		if e.Position != "" {
			label += " · " + e.Position
		}
		opts = append(opts, huh.NewOption(label, e.ID))
	}
	for _, id := range m.fb.assignees {
		if !known[id] {
			opts = append(opts, huh.NewOption("#"+id, id))
		}
	}
	if len(opts) == 0 {
		return nil
	}

	return huh.NewMultiSelect[string]().
		Title("Assigned crew").
		Options(opts...).
		Value(&m.fb.assignees)
}

func (m Model) submit() tea.Cmd {
	job := model.Job{}
	if m.editing != nil {
		job = *m.editing
	}
	job.Title = strings.TrimSpace(m.fb.title)
	job.Description = strings.TrimSpace(m.fb.description)
	job.AssignedEmployees = append([]string{}, m.fb.assignees...)

	if m.editing != nil {
		return func() tea.Msg { return JobUpdatedMsg{Job: job} }
	}
	return func() tea.Msg { return JobCreatedMsg{Job: job} }
}

func (m Model) formWidth() int {
	return min(max(m.width-4, 40), 100)
}

func (m Model) formHeight() int {
	return max(m.height-4, 10)
}

// keyMap lets esc leave the form as well as ctrl+c.
func keyMap() *huh.KeyMap {
	km := huh.NewDefaultKeyMap()
	km.Quit = key.NewBinding(key.WithKeys("esc", "ctrl+c"))
	return km
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
