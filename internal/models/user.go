package models

import (
	"strings"
)

// Role enum
type Role string

const (
	RolePsychologist Role = "psicologo"
	RolePatient      Role = "paciente"
)

// ParseRole normalizes a raw role string coming from a token or a backend
// payload. It is the only place where role strings are interpreted.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "psicologo", "psicólogo", "psychologist":
		return RolePsychologist, nil
	case "paciente", "patient":
		return RolePatient, nil
	}
	return "", &ValidationError{Field: "role", Err: ErrInvalidRole}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RolePsychologist || r == RolePatient
}

// Profile is the user-profile summary the backend embeds in threads and
// directory listings.
type Profile struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`

	// Only set for patients.
	AssignedPsychologistID string `json:"assignedPsychologistId,omitempty"`
}

// ResolveDisplayName picks the name shown for a profile: first and last name,
// then the single name field, then the email, then the id.
func ResolveDisplayName(p Profile) string {
	if first := strings.TrimSpace(p.FirstName); first != "" {
		if last := strings.TrimSpace(p.LastName); last != "" {
			return first + " " + last
		}
		return first
	}
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	if email := strings.TrimSpace(p.Email); email != "" {
		return email
	}
	return p.ID
}

// Contact is a person the current user may start a conversation with.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	Role        Role   `json:"role"`
}

// ContactFromProfile builds a Contact tagged with the given role.
func ContactFromProfile(p Profile, role Role) Contact {
	return Contact{
		ID:          p.ID,
		DisplayName: ResolveDisplayName(p),
		Email:       p.Email,
		Role:        role,
	}
}
