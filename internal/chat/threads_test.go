package chat

import (
	"context"
	"testing"
	"time"

	"psyconsult-chat/internal/api/apitest"
	"psyconsult-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	psychologist = Viewer{ID: "psy1", Role: models.RolePsychologist}
	patient      = Viewer{ID: "pat1", Role: models.RolePatient}
)

func newBackend(t *testing.T) *apitest.Backend {
	t.Helper()
	b := apitest.New(t)
	b.AddPsychologist("psy1", "Ana", "Ruiz", "ana@x.io")
	b.AddPsychologist("psy2", "Marta", "Gil", "marta@x.io")
	b.AddPatient("pat1", "Luis", "Vega", "luis@x.io", "psy1")
	b.AddPatient("pat2", "Eva", "Sol", "eva@x.io", "psy1")
	b.AddPatient("pat3", "Juan", "Paz", "juan@x.io", "psy2")
	return b
}

func newRepo(b *apitest.Backend, v Viewer) *Repository {
	return NewRepository(b.Client(v.ID), v, nil)
}

func TestListThreadsOrder(t *testing.T) {
	b := newBackend(t)
	older := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	newer := b.AddThread("psy1", "pat2", "archivado", apitest.Epoch.Add(time.Hour))
	b.AddThread("psy2", "pat3", "activo", apitest.Epoch.Add(2*time.Hour))

	threads, err := newRepo(b, psychologist).ListThreads(context.Background())
	require.NoError(t, err)
	require.Len(t, threads, 2)
	assert.Equal(t, newer, threads[0].ID)
	assert.Equal(t, older, threads[1].ID)
	assert.Equal(t, models.ChatStatusArchived, threads[0].Status)
}

func TestSortByActivityTieBreak(t *testing.T) {
	threads := []models.ChatThread{
		{ID: "b", LastActivityAt: apitest.Epoch},
		{ID: "c", LastActivityAt: apitest.Epoch.Add(time.Minute)},
		{ID: "a", LastActivityAt: apitest.Epoch},
	}
	SortByActivity(threads)
	assert.Equal(t, "c", threads[0].ID)
	assert.Equal(t, "a", threads[1].ID)
	assert.Equal(t, "b", threads[2].ID)
}

func TestCreateOrGetIsIdempotent(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	repo := newRepo(b, psychologist)

	first, err := repo.CreateOrGet(ctx, "psy1", "pat1")
	require.NoError(t, err)
	assert.Equal(t, models.ChatStatusActive, first.Status)
	assert.Equal(t, "Luis Vega", models.ResolveDisplayName(first.Patient))

	second, err := repo.CreateOrGet(ctx, "psy1", "pat1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// The patient opening the same pair from another session lands on it too.
	third, err := newRepo(b, patient).CreateOrGet(ctx, "psy1", "pat1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, third.ID)
	assert.Equal(t, 1, b.ThreadCount())
}

func TestCreateOrGetForbiddenPairs(t *testing.T) {
	tests := []struct {
		name         string
		viewer       Viewer
		psychologist string
		patient      string
		wantRequests int
	}{
		{"patient of another psychologist", psychologist, "psy1", "pat3", 1},
		{"unknown patient", psychologist, "psy1", "ghost", 1},
		{"acting for another psychologist", psychologist, "psy2", "pat3", 0},
		{"acting for another patient", patient, "psy1", "pat2", 0},
		{"patient with a foreign psychologist", patient, "psy2", "pat1", 1},
		{"same person twice", psychologist, "psy1", "psy1", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBackend(t)
			_, err := newRepo(b, tt.viewer).CreateOrGet(context.Background(), tt.psychologist, tt.patient)
			assert.ErrorIs(t, err, models.ErrForbiddenPairing)
			assert.True(t, models.IsForbidden(err))
			assert.Zero(t, b.ThreadCount())
			assert.Equal(t, tt.wantRequests, b.RequestCount())
		})
	}
}

func TestGetThreadOfOtherUsers(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy2", "pat3", "activo", apitest.Epoch)

	_, err := newRepo(b, psychologist).GetThread(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrThreadNotFound)

	_, err = newRepo(b, psychologist).GetThread(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrThreadNotFound)
}

func TestOtherParty(t *testing.T) {
	th := models.ChatThread{
		Psychologist: models.Profile{ID: "psy1", FirstName: "Ana", LastName: "Ruiz"},
		Patient:      models.Profile{ID: "pat1", Email: "luis@x.io"},
	}

	c, err := OtherParty(th, psychologist)
	require.NoError(t, err)
	assert.Equal(t, models.Contact{ID: "pat1", DisplayName: "luis@x.io", Email: "luis@x.io", Role: models.RolePatient}, c)

	c, err = OtherParty(th, patient)
	require.NoError(t, err)
	assert.Equal(t, "Ana Ruiz", c.DisplayName)
	assert.Equal(t, models.RolePsychologist, c.Role)

	_, err = OtherParty(th, Viewer{ID: "x", Role: "admin"})
	assert.ErrorIs(t, err, models.ErrInvalidRole)
}

func TestUpdateStatus(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)

	_, err := newRepo(b, patient).UpdateStatus(ctx, id, models.ChatStatusArchived)
	assert.True(t, models.IsForbidden(err))

	repo := newRepo(b, psychologist)
	th, err := repo.UpdateStatus(ctx, id, models.ChatStatusArchived)
	require.NoError(t, err)
	assert.Equal(t, models.ChatStatusArchived, th.Status)
	assert.Equal(t, "Luis Vega", models.ResolveDisplayName(th.Patient))

	cached, ok := repo.Cached(id)
	require.True(t, ok)
	assert.Equal(t, models.ChatStatusArchived, cached.Status)

	before := b.RequestCount()
	_, err = repo.UpdateStatus(ctx, id, models.ChatStatusBlocked)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, before, b.RequestCount())
}

func TestRecordActivity(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	first := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	second := b.AddThread("psy1", "pat2", "activo", apitest.Epoch.Add(time.Hour))

	repo := newRepo(b, psychologist)
	_, err := repo.ListThreads(ctx)
	require.NoError(t, err)

	text := "¿Nos vemos el lunes?"
	repo.RecordActivity(first, models.Message{Kind: models.MessageKindText, Content: &text, CreatedAt: apitest.Epoch.Add(2 * time.Hour)})

	threads := repo.Threads()
	require.Len(t, threads, 2)
	assert.Equal(t, first, threads[0].ID)
	assert.Equal(t, second, threads[1].ID)
	require.NotNil(t, threads[0].LastMessage)
	assert.Equal(t, text, threads[0].LastMessage.Preview)

	// Unknown threads are ignored.
	repo.RecordActivity("missing", models.Message{})
	assert.Len(t, repo.Threads(), 2)
}
