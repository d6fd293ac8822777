package model

import "time"

// Portal roles.
const (
	RoleOwner    = "owner"
	RoleEmployee = "employee"
)

// User is the identity of the signed-in session.
type User struct {
	ID    string `json:"id" mapstructure:"id"`
	Name  string `json:"name" mapstructure:"name"`
	Email string `json:"email" mapstructure:"email"`
	Role  string `json:"role" mapstructure:"role"`
}

// UserFromRaw normalizes the user object of an auth response.
func UserFromRaw(raw map[string]any) (User, error) {
	var u User
	if err := UserFields.Apply(raw, time.Now()).Decode(&u); err != nil {
		return User{}, err
	}
	return u, nil
}

// IsOwner reports whether the user signs in to the owner portal.
func (u User) IsOwner() bool {
	return u.Role == RoleOwner
}
