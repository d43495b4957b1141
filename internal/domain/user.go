package domain

// Role is the coarse capability claim carried by a bearer token.
type Role string

const (
	RoleStudent Role = "student"
	RoleMentor  Role = "mentor"
)

// Actor identifies the caller of an engine operation.
type Actor struct {
	UserID string
	Name   string
	Role   Role
}

// IsMentor reports whether the actor holds the mentor role.
func (a Actor) IsMentor() bool {
	return a.Role == RoleMentor
}

// IsStudent reports whether the actor holds the student role.
func (a Actor) IsStudent() bool {
	return a.Role == RoleStudent
}

// DisplayName falls back to the user id when no name was issued.
func (a Actor) DisplayName() string {
	if a.Name != "" {
		return a.Name
	}
	return a.UserID
}
