package models

import (
	"fmt"
	"strings"
	"time"
)

// MessageKind represents the type of a message
type MessageKind string

const (
	MessageKindText     MessageKind = "text"
	MessageKindImage    MessageKind = "image"
	MessageKindPDF      MessageKind = "pdf"
	MessageKindDocument MessageKind = "document"
	MessageKindFile     MessageKind = "other-file"
)

// Valid reports whether k is a known kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindImage, MessageKindPDF, MessageKindDocument, MessageKindFile:
		return true
	}
	return false
}

// KindForMIME maps an attachment MIME type to the message kind it produces.
func KindForMIME(mimeType string) MessageKind {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MessageKindImage
	case mimeType == "application/pdf":
		return MessageKindPDF
	case mimeType == "application/msword",
		mimeType == "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		mimeType == "application/vnd.ms-excel",
		mimeType == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		mimeType == "text/plain",
		mimeType == "text/csv":
		return MessageKindDocument
	}
	return MessageKindFile
}

// Attachment describes a file sent in a conversation. Path is absolute once
// the message has passed through the message store.
type Attachment struct {
	Path      string `json:"path"`
	Filename  string `json:"filename"`
	SizeBytes int64  `json:"sizeBytes"`
	MIMEType  string `json:"mimeType"`
}

// Message represents a message within a conversation
type Message struct {
	ID         string      `json:"id"`
	ChatID     string      `json:"chatId"`
	SenderID   string      `json:"senderId"`
	Kind       MessageKind `json:"kind"`
	Content    *string     `json:"content"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// Validate checks that kind, content and attachment agree: text messages
// carry content and no attachment, file messages carry an attachment and an
// optional caption.
func (m *Message) Validate() error {
	if m.ChatID == "" {
		return fmt.Errorf("%w: missing chat id", ErrInvalidMessage)
	}
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidMessage, m.Kind)
	}
	if m.Kind == MessageKindText {
		if m.Content == nil {
			return fmt.Errorf("%w: text message without content", ErrInvalidMessage)
		}
		if m.Attachment != nil {
			return fmt.Errorf("%w: text message with attachment", ErrInvalidMessage)
		}
		return nil
	}
	if m.Attachment == nil {
		return fmt.Errorf("%w: %s message without attachment", ErrInvalidMessage, m.Kind)
	}
	return nil
}

// SentBy reports whether userID authored the message.
func (m *Message) SentBy(userID string) bool {
	return m.SenderID != "" && m.SenderID == userID
}
