package session

import (
	"encoding/json"

	"github.com/pkg/errors"
)

type Role string

const (
	RoleStudent Role = "Student"
	RoleTeacher Role = "Teacher"
)

var ErrUnknownRole = errors.New("unknown role")

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleTeacher
}

func (r *Role) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "decoding role")
	}
	role := Role(s)
	if !role.Valid() {
		return errors.Wrapf(ErrUnknownRole, "%q", s)
	}
	*r = role
	return nil
}

// Identity is the authenticated user as reported by `GET get-user-login/`.
type Identity struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullname"`
	Role     Role   `json:"role"`
}

func (id Identity) HasRole(roles ...Role) bool {
	for _, r := range roles {
		if id.Role == r {
			return true
		}
	}
	return false
}

func (id Identity) IsStudent() bool { return id.Role == RoleStudent }

func (id Identity) IsTeacher() bool { return id.Role == RoleTeacher }

// DisplayName returns the full name, falling back to the username.
func (id Identity) DisplayName() string {
	if id.FullName != "" {
		return id.FullName
	}
	return id.Username
}
