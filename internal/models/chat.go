package models

import (
	"time"
	"unicode/utf8"
)

// ChatStatus represents the lifecycle state of a conversation
type ChatStatus string

const (
	ChatStatusActive   ChatStatus = "active"
	ChatStatusArchived ChatStatus = "archived"
	ChatStatusBlocked  ChatStatus = "blocked"
)

// Valid reports whether s is a known status.
func (s ChatStatus) Valid() bool {
	switch s {
	case ChatStatusActive, ChatStatusArchived, ChatStatusBlocked:
		return true
	}
	return false
}

// PreviewLength is the number of runes kept in a last-message preview.
const PreviewLength = 80

// MessagePreview is the denormalized summary of a thread's latest message.
type MessagePreview struct {
	Kind    MessageKind `json:"kind"`
	Preview string      `json:"preview"`
}

// ChatThread is a one-to-one conversation between a psychologist and a patient.
type ChatThread struct {
	ID             string          `json:"id"`
	Status         ChatStatus      `json:"status"`
	Psychologist   Profile         `json:"participantPsychologist"`
	Patient        Profile         `json:"participantPatient"`
	LastActivityAt time.Time       `json:"lastActivityAt"`
	LastMessage    *MessagePreview `json:"lastMessage,omitempty"`
	UnreadCount    int             `json:"unreadCount"`
}

// HasParticipant reports whether userID is one of the two participants.
func (t *ChatThread) HasParticipant(userID string) bool {
	return t.Psychologist.ID == userID || t.Patient.ID == userID
}

// Matches reports whether the thread belongs to the given pair.
func (t *ChatThread) Matches(psychologistID, patientID string) bool {
	return t.Psychologist.ID == psychologistID && t.Patient.ID == patientID
}

// PreviewOf builds the list-view summary of a message.
func PreviewOf(m Message) *MessagePreview {
	p := &MessagePreview{Kind: m.Kind}
	switch {
	case m.Kind == MessageKindText && m.Content != nil:
		p.Preview = truncateRunes(*m.Content, PreviewLength)
	case m.Attachment != nil:
		p.Preview = m.Attachment.Filename
	}
	return p
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
