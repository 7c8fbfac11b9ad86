package chat

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"psyconsult-chat/internal/api"
	"psyconsult-chat/internal/models"

	"go.uber.org/zap"
)

// DefaultPageSize is the number of messages loaded per page.
const DefaultPageSize = 50

// MessageBackend is the part of the backend the message store calls.
type MessageBackend interface {
	ListMessages(ctx context.Context, chatID string, q api.MessageQuery) ([]models.Message, error)
	SendText(ctx context.Context, chatID, content string) (models.Message, error)
	SendFile(ctx context.Context, chatID, filename, mimeType string, data []byte) (models.Message, error)
	DeleteMessage(ctx context.Context, messageID string) error
}

// Page selects which messages Load fetches.
type Page struct {
	Page  int
	Limit int
	Order api.SortOrder
}

func (p Page) withDefaults() Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageSize
	}
	if p.Order != api.OrderDesc {
		p.Order = api.OrderAsc
	}
	return p
}

// MessageStore holds the loaded messages of one thread, oldest first.
type MessageStore struct {
	backend MessageBackend
	chatID  string
	viewer  Viewer
	origin  string
	log     *zap.Logger

	// OnAppend is called for every message added after a send or refresh.
	OnAppend func(models.Message)

	mu       sync.RWMutex
	status   models.ChatStatus
	messages []models.Message
	loaded   bool
}

// NewMessageStore creates an empty store. origin is where relative
// attachment paths are resolved.
func NewMessageStore(backend MessageBackend, chatID string, status models.ChatStatus, viewer Viewer, origin string, log *zap.Logger) *MessageStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MessageStore{
		backend: backend,
		chatID:  chatID,
		viewer:  viewer,
		origin:  origin,
		status:  status,
		log:     log.Named("messages").With(zap.String("chat_id", chatID)),
	}
}

// ChatID returns the thread the store belongs to.
func (s *MessageStore) ChatID() string { return s.chatID }

// Status returns the thread status the store gates sends on.
func (s *MessageStore) Status() models.ChatStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus records a new thread status.
func (s *MessageStore) SetStatus(status models.ChatStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// ComposeEnabled reports whether the compose control is live.
func (s *MessageStore) ComposeEnabled() bool {
	return ComposeEnabled(s.Status())
}

// Messages returns a copy of the loaded messages.
func (s *MessageStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Message(nil), s.messages...)
}

// Since returns the loaded messages that follow messageID. An unknown id
// yields every loaded message.
func (s *MessageStore) Since(messageID string) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(messageID)
	return append([]models.Message(nil), s.messages[i+1:]...)
}

// Has reports whether a message is loaded.
func (s *MessageStore) Has(messageID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexOf(messageID) >= 0
}

// Load fetches one page. The page is returned in the requested order; the
// store keeps its own list oldest first. Page 1 replaces the list, later
// pages are merged into it.
func (s *MessageStore) Load(ctx context.Context, p Page) ([]models.Message, error) {
	p = p.withDefaults()
	msgs, err := s.backend.ListMessages(ctx, s.chatID, api.MessageQuery{Page: p.Page, Limit: p.Limit, Order: p.Order})
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	for i := range msgs {
		s.normalize(&msgs[i])
	}

	asc := append([]models.Message(nil), msgs...)
	sortByCreated(asc, api.OrderAsc)

	s.mu.Lock()
	if p.Page == 1 {
		s.messages = asc
	} else {
		s.messages = merge(s.messages, asc)
	}
	s.loaded = true
	s.mu.Unlock()

	sortByCreated(msgs, p.Order)
	return msgs, nil
}

// Refresh fetches the newest page and adds the messages not seen yet, each
// at its place by creation time. A message counts as new when its id is
// unknown, however old it is. The first refresh of a store that was never
// loaded only records a baseline and reports nothing new.
func (s *MessageStore) Refresh(ctx context.Context) ([]models.Message, error) {
	msgs, err := s.backend.ListMessages(ctx, s.chatID, api.MessageQuery{Page: 1, Limit: DefaultPageSize, Order: api.OrderDesc})
	if err != nil {
		return nil, fmt.Errorf("refresh messages: %w", err)
	}
	for i := range msgs {
		s.normalize(&msgs[i])
	}
	sortByCreated(msgs, api.OrderAsc)

	s.mu.Lock()
	if !s.loaded {
		s.messages = msgs
		s.loaded = true
		s.mu.Unlock()
		return nil, nil
	}
	seen := make(map[string]bool, len(s.messages))
	for _, m := range s.messages {
		seen[m.ID] = true
	}
	var fresh []models.Message
	for _, m := range msgs {
		if seen[m.ID] {
			continue
		}
		s.insert(m)
		fresh = append(fresh, m)
	}
	s.mu.Unlock()

	for _, m := range fresh {
		s.appended(m)
	}
	return fresh, nil
}

// SendText sends a text message and appends it once the backend confirms.
func (s *MessageStore) SendText(ctx context.Context, content string) (models.Message, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return models.Message{}, &models.ValidationError{Field: "content", Err: models.ErrEmptyMessage}
	}
	if err := s.checkCompose(); err != nil {
		return models.Message{}, err
	}

	msg, err := s.backend.SendText(ctx, s.chatID, text)
	if err != nil {
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}
	if msg.Kind == "" {
		msg.Kind = models.MessageKindText
	}
	if msg.Content == nil {
		msg.Content = &text
	}
	s.push(&msg)
	return msg, nil
}

// SendFile validates and uploads an attachment. Nothing is sent when the
// file is rejected.
func (s *MessageStore) SendFile(ctx context.Context, f File) (models.Message, error) {
	if err := s.checkCompose(); err != nil {
		return models.Message{}, err
	}
	mimeType, err := ValidateFile(f)
	if err != nil {
		return models.Message{}, err
	}
	name := f.Name
	if name == "" {
		name = "archivo"
	}

	msg, err := s.backend.SendFile(ctx, s.chatID, name, mimeType, f.Data)
	if err != nil {
		return models.Message{}, fmt.Errorf("send file: %w", err)
	}
	if msg.Attachment == nil {
		msg.Attachment = &models.Attachment{Filename: name, SizeBytes: f.Size(), MIMEType: mimeType}
	}
	if msg.Kind == "" || msg.Kind == models.MessageKindText {
		msg.Kind = models.KindForMIME(mimeType)
	}
	s.push(&msg)
	return msg, nil
}

// Delete removes one of the viewer's own messages.
func (s *MessageStore) Delete(ctx context.Context, messageID string) error {
	s.mu.RLock()
	idx := s.indexOf(messageID)
	var msg models.Message
	if idx >= 0 {
		msg = s.messages[idx]
	}
	s.mu.RUnlock()

	if idx < 0 {
		return fmt.Errorf("delete message %s: %w", messageID, models.ErrMessageNotFound)
	}
	if !msg.SentBy(s.viewer.ID) {
		return &models.ForbiddenError{Reason: "message " + messageID + " belongs to another participant", Err: models.ErrNotMessageOwner}
	}

	if err := s.backend.DeleteMessage(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}

	s.mu.Lock()
	if i := s.indexOf(messageID); i >= 0 {
		s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
	}
	s.mu.Unlock()
	return nil
}

func (s *MessageStore) checkCompose() error {
	if status := s.Status(); !ComposeEnabled(status) {
		return &models.ValidationError{Field: "status", Detail: string(status), Err: models.ErrThreadInactive}
	}
	return nil
}

// push fills what the backend left out and appends without reordering.
func (s *MessageStore) push(msg *models.Message) {
	if msg.SenderID == "" {
		msg.SenderID = s.viewer.ID
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	s.normalize(msg)

	s.mu.Lock()
	s.messages = append(s.messages, *msg)
	s.mu.Unlock()

	s.appended(*msg)
}

// insert places msg after every loaded message created no later than it.
// Callers hold s.mu.
func (s *MessageStore) insert(msg models.Message) {
	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	s.messages = append(s.messages, models.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
}

func (s *MessageStore) appended(msg models.Message) {
	if s.OnAppend != nil {
		s.OnAppend(msg)
	}
}

func (s *MessageStore) normalize(msg *models.Message) {
	if msg.ChatID == "" {
		msg.ChatID = s.chatID
	}
	if msg.Attachment != nil {
		att := *msg.Attachment
		att.Path = AbsoluteAttachmentURL(s.origin, att.Path)
		msg.Attachment = &att
	}
	if err := msg.Validate(); err != nil {
		s.log.Warn("inconsistent message from backend", zap.String("message_id", msg.ID), zap.Error(err))
	}
}

func (s *MessageStore) indexOf(messageID string) int {
	for i := range s.messages {
		if s.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

func sortByCreated(msgs []models.Message, order api.SortOrder) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if order == api.OrderDesc {
			return msgs[i].CreatedAt.After(msgs[j].CreatedAt)
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}

// merge unions two oldest-first lists, dropping duplicate ids.
func merge(a, b []models.Message) []models.Message {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]models.Message, 0, len(a)+len(b))
	for _, list := range [][]models.Message{a, b} {
		for _, m := range list {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			out = append(out, m)
		}
	}
	sortByCreated(out, api.OrderAsc)
	return out
}
