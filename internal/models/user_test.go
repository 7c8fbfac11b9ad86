package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		raw  string
		want Role
	}{
		{"psicologo", RolePsychologist},
		{" Psicólogo ", RolePsychologist},
		{"PSYCHOLOGIST", RolePsychologist},
		{"paciente", RolePatient},
		{"patient", RolePatient},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseRole(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}

	for _, raw := range []string{"", "admin", "doctor"} {
		_, err := ParseRole(raw)
		assert.ErrorIs(t, err, ErrInvalidRole, raw)
		assert.True(t, IsValidation(err))
	}
}

func TestResolveDisplayName(t *testing.T) {
	tests := []struct {
		name    string
		profile Profile
		want    string
	}{
		{"full name", Profile{ID: "7", FirstName: "Ana", LastName: "Ruiz", Name: "ana.r", Email: "ana@x.io"}, "Ana Ruiz"},
		{"first name only", Profile{ID: "7", FirstName: "Ana"}, "Ana"},
		{"name field", Profile{ID: "7", Name: "Dra. Ruiz", Email: "ana@x.io"}, "Dra. Ruiz"},
		{"email", Profile{ID: "7", FirstName: "  ", Email: "ana@x.io"}, "ana@x.io"},
		{"id", Profile{ID: "7"}, "7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveDisplayName(tt.profile))
		})
	}
}

func TestContactFromProfile(t *testing.T) {
	c := ContactFromProfile(Profile{ID: "p1", FirstName: "Luis", LastName: "Vega", Email: "luis@x.io"}, RolePatient)
	assert.Equal(t, Contact{ID: "p1", DisplayName: "Luis Vega", Email: "luis@x.io", Role: RolePatient}, c)
}
