// Package login prompts for the credentials of a crewsync account.
package login

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/crewsync/internal/model"
)

// minPasswordLength matches what the signup endpoint accepts.
const minPasswordLength = 6

// ErrAborted is returned when the user leaves the form.
var ErrAborted = errors.New("login aborted")

// Mode selects the fields the form asks for.
type Mode int

const (
	ModeLogin Mode = iota
	ModeSignup
)

// Credentials is what the form collects. Name and Role are only set in
// signup mode.
type Credentials struct {
	Name     string
	Email    string
	Password string
	Role     string
}

// NewForm builds the form, writing answers into creds.
func NewForm(mode Mode, creds *Credentials) *huh.Form {
	if creds.Role == "" {
		creds.Role = model.RoleEmployee
	}

	fields := []huh.Field{}
	if mode == ModeSignup {
		fields = append(fields,
			huh.NewInput().
				Title("Name").
				Placeholder("Jane Doe").
				Value(&creds.Name).
				Validate(validateRequired("Name")),
		)
	}
	fields = append(fields,
		huh.NewInput().
			Title("Email").
			Placeholder("you@example.com").
			Value(&creds.Email).
			Validate(ValidateEmail),
		huh.NewInput().
			Title("Password").
			EchoMode(huh.EchoModePassword).
			Value(&creds.Password).
			Validate(ValidatePassword),
	)
	if mode == ModeSignup {
		fields = append(fields,
			huh.NewSelect[string]().
				Title("Portal").
				Options(
					huh.NewOption("Crew member", model.RoleEmployee),
					huh.NewOption("Owner", model.RoleOwner),
				).
				Value(&creds.Role),
		)
	}

	return huh.NewForm(huh.NewGroup(fields...))
}

// Prompt runs the form on the terminal.
func Prompt(ctx context.Context, mode Mode) (Credentials, error) {
	var creds Credentials
	if err := NewForm(mode, &creds).RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return Credentials{}, ErrAborted
		}
		return Credentials{}, fmt.Errorf("running login form: %w", err)
	}
	creds.Email = strings.TrimSpace(creds.Email)
	creds.Name = strings.TrimSpace(creds.Name)
	return creds, nil
}

// ValidateEmail accepts a bare address.
func ValidateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return errors.New("email is required")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return fmt.Errorf("%q is not an email address", s)
	}
	return nil
}

// ValidatePassword enforces the minimum length.
func ValidatePassword(s string) error {
	if len(s) < minPasswordLength {
		return fmt.Errorf("password must have at least %d characters", minPasswordLength)
	}
	return nil
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}
