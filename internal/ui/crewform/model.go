// Package crewform is the form for adding a crew member.
package crewform

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/crewsync/internal/model"
	"github.com/nhle/crewsync/internal/theme"
)

// EmployeeCreatedMsg is dispatched when the form is submitted.
type EmployeeCreatedMsg struct {
	Employee model.Employee
}

// CancelMsg is dispatched when the user leaves the form.
type CancelMsg struct{}

type formBindings struct {
	name     string
	position string
	email    string
	phone    string
	location string
}

// Model is the Bubble Tea model for the crew form.
type Model struct {
	form *huh.Form
	fb   *formBindings
}

// New creates an idle crew form.
func New() Model {
	return Model{fb: &formBindings{}}
}

// Active reports whether a form is open.
func (m Model) Active() bool {
	return m.form != nil && m.form.State == huh.StateNormal
}

// Start opens an empty form.
func (m *Model) Start() tea.Cmd {
	*m.fb = formBindings{}
	m.form = huh.NewForm(huh.NewGroup(
		huh.NewInput().
			Title("Name").
			Placeholder("Dana Ruiz").
			Value(&m.fb.name).
			Validate(validateRequired("Name")),
		huh.NewInput().
			Title("Position").
			Placeholder("Foreman").
			Value(&m.fb.position),
		huh.NewInput().
			Title("Email").
			Value(&m.fb.email).
			Validate(validateOptionalEmail),
		huh.NewInput().
			Title("Phone").
			Value(&m.fb.phone),
		huh.NewInput().
			Title("Site").
			Value(&m.fb.location),
	)).WithKeyMap(keyMap()).WithWidth(60)
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
		emp := m.employee()
		return m, func() tea.Msg { return EmployeeCreatedMsg{Employee: emp} }
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
	heading := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	return lipgloss.NewStyle().Padding(1, 2).Render(heading.Render("New Crew Member") + "\n" + m.form.View())
}

func (m Model) employee() model.Employee {
	return model.Employee{
		Name:     strings.TrimSpace(m.fb.name),
		Position: strings.TrimSpace(m.fb.position),
		Email:    strings.TrimSpace(m.fb.email),
		Phone:    strings.TrimSpace(m.fb.phone),
		Location: strings.TrimSpace(m.fb.location),
		Status:   model.EmployeeActive,
	}
}

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

func validateOptionalEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
