package chat

import (
	"bytes"
	"context"
	"testing"

	"psyconsult-chat/internal/api"
	"psyconsult-chat/internal/api/apitest"
	"psyconsult-chat/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(b *apitest.Backend, v Viewer, chatID string, status models.ChatStatus) *MessageStore {
	return NewMessageStore(b.Client(v.ID), chatID, status, v, b.Server.URL, nil)
}

func messageIDs(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestSendTextRejectsBeforeAnyRequest(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)

	_, err := newStore(b, psychologist, id, models.ChatStatusActive).SendText(context.Background(), "   \n\t")
	assert.ErrorIs(t, err, models.ErrEmptyMessage)

	for _, status := range []models.ChatStatus{models.ChatStatusArchived, models.ChatStatusBlocked} {
		store := newStore(b, psychologist, id, status)
		assert.False(t, store.ComposeEnabled())
		_, err := store.SendText(context.Background(), "hola")
		assert.ErrorIs(t, err, models.ErrThreadInactive)
		assert.True(t, models.IsValidation(err))
	}

	assert.Zero(t, b.RequestCount())
}

func TestSendTextAppends(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	store := newStore(b, psychologist, id, models.ChatStatusActive)

	var appended []models.Message
	store.OnAppend = func(m models.Message) { appended = append(appended, m) }

	msg, err := store.SendText(context.Background(), "  Buenos días  ")
	require.NoError(t, err)
	require.NotNil(t, msg.Content)
	assert.Equal(t, "Buenos días", *msg.Content)
	assert.Equal(t, "psy1", msg.SenderID)
	assert.Equal(t, models.MessageKindText, msg.Kind)

	assert.Equal(t, []string{msg.ID}, messageIDs(store.Messages()))
	assert.Equal(t, []string{msg.ID}, messageIDs(appended))
	assert.Equal(t, 1, b.MessageCount(id))
}

func TestSendTextBackendRejection(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "bloqueado", apitest.Epoch)

	// The store still believes the thread is active.
	store := newStore(b, psychologist, id, models.ChatStatusActive)
	_, err := store.SendText(context.Background(), "hola")

	var remote *models.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, 409, remote.StatusCode)
	assert.Empty(t, store.Messages())
}

func TestLoadOrdersByCreation(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	b.PostMessage(id, "psy1", "uno")
	b.PostMessage(id, "pat1", "dos")
	b.PostMessage(id, "psy1", "tres")
	b.ReverseMessages(true)

	store := newStore(b, psychologist, id, models.ChatStatusActive)
	ctx := context.Background()

	asc, err := store.Load(ctx, Page{})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3"}, messageIDs(asc))

	desc, err := store.Load(ctx, Page{Order: api.OrderDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2", "1"}, messageIDs(desc))

	assert.Equal(t, []string{"1", "2", "3"}, messageIDs(store.Messages()))
}

func TestLoadMergesLaterPages(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		b.PostMessage(id, "pat1", text)
	}
	store := newStore(b, psychologist, id, models.ChatStatusActive)
	ctx := context.Background()

	newest, err := store.Load(ctx, Page{Page: 1, Limit: 2, Order: api.OrderDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"5", "4"}, messageIDs(newest))

	older, err := store.Load(ctx, Page{Page: 2, Limit: 2, Order: api.OrderDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "2"}, messageIDs(older))

	// Loading the same page twice does not duplicate.
	_, err = store.Load(ctx, Page{Page: 2, Limit: 2, Order: api.OrderDesc})
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3", "4", "5"}, messageIDs(store.Messages()))

	_, err = store.Load(ctx, Page{Page: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, messageIDs(store.Messages()), "page 1 replaces the list")
}

func TestSendFile(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	store := newStore(b, patient, id, models.ChatStatusActive)
	ctx := context.Background()

	_, err := store.SendFile(ctx, File{Name: "virus.exe", MIMEType: "application/x-msdownload", Data: []byte("MZ")})
	assert.ErrorIs(t, err, models.ErrFileTypeNotAllowed)

	_, err = store.SendFile(ctx, File{Name: "big.pdf", MIMEType: "application/pdf", Data: bytes.Repeat([]byte{0}, MaxFileSize+1)})
	assert.ErrorIs(t, err, models.ErrFileTooLarge)
	assert.Zero(t, b.RequestCount())

	msg, err := store.SendFile(ctx, File{Name: "informe.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4 informe")})
	require.NoError(t, err)
	assert.Equal(t, models.MessageKindPDF, msg.Kind)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, b.Server.URL+"/uploads/chat/"+id+"/informe.pdf", msg.Attachment.Path)
	assert.Equal(t, "application/pdf", msg.Attachment.MIMEType)
	assert.Equal(t, []string{msg.ID}, messageIDs(store.Messages()))
}

func TestSendFileOnInactiveThread(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "archivado", apitest.Epoch)

	_, err := newStore(b, patient, id, models.ChatStatusArchived).SendFile(context.Background(), File{Name: "a.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")})
	assert.ErrorIs(t, err, models.ErrThreadInactive)
	assert.Zero(t, b.RequestCount())
}

func TestDeleteOwnMessagesOnly(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	mine := b.PostMessage(id, "psy1", "mío")
	theirs := b.PostMessage(id, "pat1", "suyo")

	store := newStore(b, psychologist, id, models.ChatStatusActive)
	ctx := context.Background()
	_, err := store.Load(ctx, Page{})
	require.NoError(t, err)
	before := b.RequestCount()

	err = store.Delete(ctx, theirs)
	assert.ErrorIs(t, err, models.ErrNotMessageOwner)
	assert.True(t, models.IsForbidden(err))

	err = store.Delete(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrMessageNotFound)
	assert.Equal(t, before, b.RequestCount())

	require.NoError(t, store.Delete(ctx, mine))
	assert.Equal(t, []string{theirs}, messageIDs(store.Messages()))
	assert.Equal(t, 1, b.MessageCount(id))
}

func TestRefreshAppendsOnlyNewMessages(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	b.PostMessage(id, "pat1", "hola")
	store := newStore(b, psychologist, id, models.ChatStatusActive)
	ctx := context.Background()

	fresh, err := store.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh, "first refresh only records a baseline")
	assert.Len(t, store.Messages(), 1)

	var appended int
	store.OnAppend = func(models.Message) { appended++ }
	second := b.PostMessage(id, "pat1", "¿estás?")

	fresh, err = store.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{second}, messageIDs(fresh))
	assert.Equal(t, 1, appended)

	fresh, err = store.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	assert.Equal(t, []string{second}, messageIDs(store.Since("1")))
	assert.Empty(t, store.Since(second))
	assert.Len(t, store.Since("unknown"), 2)
}

func TestRefreshKeepsMessagesFromBothParties(t *testing.T) {
	b := newBackend(t)
	id := b.AddThread("psy1", "pat1", "activo", apitest.Epoch)
	store := newStore(b, psychologist, id, models.ChatStatusActive)
	ctx := context.Background()

	_, err := store.Refresh(ctx)
	require.NoError(t, err)

	// The patient writes first, then the psychologist answers before the
	// next refresh, so the unseen message is older than the local one.
	theirs := b.PostMessage(id, "pat1", "¿Hay cita el lunes?")
	mine, err := store.SendText(ctx, "Sí, a las diez")
	require.NoError(t, err)

	var appended []models.Message
	store.OnAppend = func(m models.Message) { appended = append(appended, m) }
	fresh, err := store.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{theirs}, messageIDs(fresh))
	assert.Equal(t, []string{theirs}, messageIDs(appended))
	assert.Equal(t, []string{theirs, mine.ID}, messageIDs(store.Messages()))

	fresh, err = store.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestStatusUpdates(t *testing.T) {
	store := NewMessageStore(nil, "c1", models.ChatStatusActive, psychologist, "", nil)
	assert.True(t, store.ComposeEnabled())
	store.SetStatus(models.ChatStatusBlocked)
	assert.Equal(t, models.ChatStatusBlocked, store.Status())
	assert.False(t, store.ComposeEnabled())
}
