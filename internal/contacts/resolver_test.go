package contacts

import (
	"context"
	"testing"
	"time"

	"psyconsult-chat/internal/api/apitest"
	"psyconsult-chat/internal/models"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *apitest.Backend {
	t.Helper()
	b := apitest.New(t)
	b.AddPsychologist("psy1", "Ana", "Ruiz", "ana@x.io")
	b.AddPsychologist("psy2", "Marta", "Gil", "marta@x.io")
	b.AddPatient("pat1", "Luis", "Vega", "luis@x.io", "psy1")
	b.AddPatient("pat2", "", "", "eva@x.io", "psy1")
	b.AddPatient("pat3", "Juan", "Paz", "juan@x.io", "psy2")
	b.AddPatient("pat4", "Sin", "Asignar", "sin@x.io", "")
	return b
}

func ids(cs []models.Contact) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c.Role)+":"+c.ID)
	}
	return out
}

func TestResolvePsychologist(t *testing.T) {
	b := seed(t)
	r := NewResolver(b.Client("psy1"), nil, nil)

	res, err := r.Resolve(context.Background(), "psy1", models.RolePsychologist)
	require.NoError(t, err)
	assert.Nil(t, res.Partial)
	assert.Equal(t, []string{"paciente:pat1", "paciente:pat2", "psicologo:psy2"}, ids(res.Contacts))
	assert.Equal(t, "Luis Vega", res.Contacts[0].DisplayName)
	assert.Equal(t, "eva@x.io", res.Contacts[1].DisplayName)
}

func TestResolvePatient(t *testing.T) {
	b := seed(t)

	res, err := NewResolver(b.Client("pat3"), nil, nil).Resolve(context.Background(), "pat3", models.RolePatient)
	require.NoError(t, err)
	require.Len(t, res.Contacts, 1)
	assert.Equal(t, models.Contact{ID: "psy2", DisplayName: "Marta Gil", Email: "marta@x.io", Role: models.RolePsychologist}, res.Contacts[0])
}

func TestResolveUnassignedPatient(t *testing.T) {
	b := seed(t)

	res, err := NewResolver(b.Client("pat4"), nil, nil).Resolve(context.Background(), "pat4", models.RolePatient)
	require.NoError(t, err)
	assert.Empty(t, res.Contacts)
	assert.Equal(t, []string{"GET /pacientes/:id"}, b.Requests())
}

func TestResolvePartialFailure(t *testing.T) {
	b := seed(t)
	b.Fail("GET /psicologos", 500)

	res, err := NewResolver(b.Client("psy1"), nil, nil).Resolve(context.Background(), "psy1", models.RolePsychologist)
	require.NoError(t, err)
	require.NotNil(t, res.Partial)
	assert.Contains(t, res.Partial.Failures, "psychologists")
	assert.Equal(t, []string{"paciente:pat1", "paciente:pat2"}, ids(res.Contacts))
}

func TestResolvePatientKeepsAssignmentWhenDirectoryFails(t *testing.T) {
	b := seed(t)
	b.Fail("GET /psicologos", 503)

	res, err := NewResolver(b.Client("pat1"), nil, nil).Resolve(context.Background(), "pat1", models.RolePatient)
	require.NoError(t, err)
	require.NotNil(t, res.Partial)
	require.Len(t, res.Contacts, 1)
	assert.Equal(t, "psy1", res.Contacts[0].ID)
	assert.Equal(t, "psy1", res.Contacts[0].DisplayName)
}

func TestResolveTotalFailure(t *testing.T) {
	b := seed(t)
	b.Fail("GET /psicologos", 500)
	b.Fail("GET /psicologos/:id/pacientes", 500)

	_, err := NewResolver(b.Client("psy1"), nil, nil).Resolve(context.Background(), "psy1", models.RolePsychologist)
	var remote *models.RemoteError
	assert.ErrorAs(t, err, &remote)
}

func TestResolveInvalidRoleMakesNoRequest(t *testing.T) {
	b := seed(t)

	_, err := NewResolver(b.Client("psy1"), nil, nil).Resolve(context.Background(), "psy1", models.Role("admin"))
	assert.ErrorIs(t, err, models.ErrInvalidRole)
	assert.Zero(t, b.RequestCount())
}

func TestResolveCaches(t *testing.T) {
	b := seed(t)
	r := NewResolver(b.Client("psy1"), cache.New(time.Minute, time.Minute), nil)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "psy1", models.RolePsychologist)
	require.NoError(t, err)
	n := b.RequestCount()

	second, err := r.Resolve(ctx, "psy1", models.RolePsychologist)
	require.NoError(t, err)
	assert.Equal(t, first.Contacts, second.Contacts)
	assert.Equal(t, n, b.RequestCount())

	r.Invalidate("psy1")
	_, err = r.Resolve(ctx, "psy1", models.RolePsychologist)
	require.NoError(t, err)
	assert.Greater(t, b.RequestCount(), n)
}

func TestPartialResultsAreNotCached(t *testing.T) {
	b := seed(t)
	b.Fail("GET /psicologos", 500)
	r := NewResolver(b.Client("psy1"), cache.New(time.Minute, time.Minute), nil)
	ctx := context.Background()

	res, err := r.Resolve(ctx, "psy1", models.RolePsychologist)
	require.NoError(t, err)
	require.NotNil(t, res.Partial)

	b.Fail("GET /psicologos", 0)
	res, err = r.Resolve(ctx, "psy1", models.RolePsychologist)
	require.NoError(t, err)
	assert.Nil(t, res.Partial)
	assert.Len(t, res.Contacts, 3)
}
