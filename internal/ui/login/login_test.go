package login

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/crewsync/internal/model"
)

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("ana@example.com"))
	assert.NoError(t, ValidateEmail("  ana@example.com "))
	assert.Error(t, ValidateEmail(""))
	assert.Error(t, ValidateEmail("ana"))
	assert.Error(t, ValidateEmail("Ana <ana@example.com>"))
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("secret"))
	assert.Error(t, ValidatePassword("12345"))
}

func TestValidateRequired(t *testing.T) {
	check := validateRequired("Name")
	assert.NoError(t, check("Ana"))
	assert.EqualError(t, check("   "), "Name is required")
}

func TestNewForm(t *testing.T) {
	var creds Credentials
	form := NewForm(ModeSignup, &creds)
	require.NotNil(t, form)
	assert.Equal(t, model.RoleEmployee, creds.Role)

	var login Credentials
	require.NotNil(t, NewForm(ModeLogin, &login))
}
