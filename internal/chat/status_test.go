package chat

import (
	"testing"

	"psyconsult-chat/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestTransitions(t *testing.T) {
	statuses := []models.ChatStatus{models.ChatStatusActive, models.ChatStatusArchived, models.ChatStatusBlocked}
	allowed := map[[2]models.ChatStatus]bool{
		{models.ChatStatusActive, models.ChatStatusArchived}: true,
		{models.ChatStatusActive, models.ChatStatusBlocked}:  true,
	}
	for _, from := range statuses {
		for _, to := range statuses {
			want := allowed[[2]models.ChatStatus{from, to}]
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := ValidateTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, models.ErrInvalidTransition)
				assert.True(t, models.IsValidation(err))
			}
		}
	}

	assert.ErrorIs(t, ValidateTransition(models.ChatStatusActive, "deleted"), models.ErrInvalidTransition)
}

func TestComposeEnabled(t *testing.T) {
	assert.Equal(t, models.ChatStatusActive, InitialStatus)
	assert.True(t, ComposeEnabled(models.ChatStatusActive))
	assert.False(t, ComposeEnabled(models.ChatStatusArchived))
	assert.False(t, ComposeEnabled(models.ChatStatusBlocked))
}
