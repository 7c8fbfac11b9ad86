package chat

import (
	"fmt"

	"psyconsult-chat/internal/models"
)

// InitialStatus is the status of a newly created thread.
const InitialStatus = models.ChatStatusActive

// CanTransition reports whether a thread may move from one status to another
// through this client. Archived and blocked are terminal here even though the
// backend may reactivate threads.
func CanTransition(from, to models.ChatStatus) bool {
	if from != models.ChatStatusActive {
		return false
	}
	return to == models.ChatStatusArchived || to == models.ChatStatusBlocked
}

// ValidateTransition is CanTransition as an error.
func ValidateTransition(from, to models.ChatStatus) error {
	if !to.Valid() {
		return &models.ValidationError{Field: "status", Detail: string(to), Err: models.ErrInvalidTransition}
	}
	if !CanTransition(from, to) {
		return &models.ValidationError{Field: "status", Detail: fmt.Sprintf("%s -> %s", from, to), Err: models.ErrInvalidTransition}
	}
	return nil
}

// ComposeEnabled reports whether new messages may be written in a thread
// with the given status. History stays readable in every status.
func ComposeEnabled(status models.ChatStatus) bool {
	return status == models.ChatStatusActive
}
