package chat

import (
	"context"
	"sync"
	"time"

	"psyconsult-chat/internal/contacts"
	"psyconsult-chat/internal/events"
	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/session"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Backend is everything a workspace needs from the remote backend.
// *api.Client implements it.
type Backend interface {
	ThreadBackend
	MessageBackend
	contacts.Directory
}

// ThreadView is a thread as rendered for the viewer.
type ThreadView struct {
	Thread          models.ChatThread `json:"thread"`
	OtherParty      models.Contact    `json:"otherParty"`
	ComposeEnabled  bool              `json:"composeEnabled"`
	CanChangeStatus bool              `json:"canChangeStatus"`
}

// Options configures a workspace.
type Options struct {
	// Origin resolves relative attachment paths.
	Origin string
	// ContactsCache is shared between workspaces; nil disables caching.
	ContactsCache *cache.Cache
	// Bus receives an event for every change; nil disables publishing.
	Bus          *events.Bus
	PollInterval time.Duration
	Logger       *zap.Logger
}

// Workspace is the chat state of one session: its thread cache, the message
// stores of opened threads and the pollers feeding live subscribers.
type Workspace struct {
	session  *session.Session
	viewer   Viewer
	backend  Backend
	repo     *Repository
	contacts *contacts.Resolver
	watcher  *Watcher
	bus      *events.Bus
	origin   string
	log      *zap.Logger

	mu     sync.Mutex
	stores map[string]*MessageStore
	closed bool
	done   chan struct{}
}

// NewWorkspace creates the workspace of sess.
func NewWorkspace(backend Backend, sess *session.Session, opts Options) *Workspace {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session_id", sess.ID), zap.String("user_id", sess.UserID))
	viewer := ViewerOf(sess)
	return &Workspace{
		session:  sess,
		viewer:   viewer,
		backend:  backend,
		repo:     NewRepository(backend, viewer, log),
		contacts: contacts.NewResolver(backend, opts.ContactsCache, log),
		watcher:  NewWatcher(opts.PollInterval, log),
		bus:      opts.Bus,
		origin:   opts.Origin,
		log:      log.Named("workspace"),
		stores:   make(map[string]*MessageStore),
		done:     make(chan struct{}),
	}
}

// Session returns the session the workspace belongs to.
func (w *Workspace) Session() *session.Session { return w.session }

// Viewer returns the signed-in user.
func (w *Workspace) Viewer() Viewer { return w.viewer }

// Done is closed when the workspace is closed.
func (w *Workspace) Done() <-chan struct{} { return w.done }

// ForgetContacts drops the viewer's cached contacts.
func (w *Workspace) ForgetContacts() { w.contacts.Invalidate(w.viewer.ID) }

// Contacts lists the people the viewer may start a conversation with.
func (w *Workspace) Contacts(ctx context.Context) (contacts.Result, error) {
	return w.contacts.Resolve(ctx, w.viewer.ID, w.viewer.Role)
}

// Threads fetches the viewer's threads, most recently active first.
func (w *Workspace) Threads(ctx context.Context) ([]ThreadView, error) {
	threads, err := w.repo.ListThreads(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]ThreadView, 0, len(threads))
	for _, th := range threads {
		views = append(views, w.view(th))
	}
	return views, nil
}

// StartConversation opens the thread between the viewer and a contact.
func (w *Workspace) StartConversation(ctx context.Context, contactID string) (ThreadView, error) {
	switch w.viewer.Role {
	case models.RolePsychologist:
		return w.CreateOrGet(ctx, w.viewer.ID, contactID)
	case models.RolePatient:
		return w.CreateOrGet(ctx, contactID, w.viewer.ID)
	}
	return ThreadView{}, &models.ValidationError{Field: "role", Detail: string(w.viewer.Role), Err: models.ErrInvalidRole}
}

// CreateOrGet returns the thread of an explicit pair, creating it on first use.
func (w *Workspace) CreateOrGet(ctx context.Context, psychologistID, patientID string) (ThreadView, error) {
	th, err := w.repo.CreateOrGet(ctx, psychologistID, patientID)
	if err != nil {
		return ThreadView{}, err
	}
	return w.view(th), nil
}

// Open fetches a thread and syncs the status of its open message store.
func (w *Workspace) Open(ctx context.Context, chatID string) (ThreadView, error) {
	th, err := w.repo.GetThread(ctx, chatID)
	if err != nil {
		return ThreadView{}, err
	}
	if store := w.store(chatID); store != nil {
		store.SetStatus(th.Status)
	}
	return w.view(th), nil
}

// Messages returns the message store of a thread, creating it on first use.
func (w *Workspace) Messages(ctx context.Context, chatID string) (*MessageStore, error) {
	if store := w.store(chatID); store != nil {
		return store, nil
	}

	th, err := w.repo.Resolve(ctx, chatID)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if store, ok := w.stores[chatID]; ok {
		return store, nil
	}
	store := NewMessageStore(w.backend, chatID, th.Status, w.viewer, w.origin, w.log)
	store.OnAppend = func(m models.Message) { w.repo.RecordActivity(chatID, m) }
	w.stores[chatID] = store
	return store, nil
}

// LoadMessages fetches a page of a thread's messages.
func (w *Workspace) LoadMessages(ctx context.Context, chatID string, p Page) ([]models.Message, error) {
	store, err := w.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return store.Load(ctx, p)
}

// MessagesSince pulls the newest page and returns what followed messageID.
func (w *Workspace) MessagesSince(ctx context.Context, chatID, messageID string) ([]models.Message, error) {
	store, err := w.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	fresh, err := store.Refresh(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range fresh {
		w.publish(events.MessageCreated, chatID, m)
	}
	// A fresh message may sort before messageID when both parties wrote
	// between two refreshes; the caller has not seen it either way.
	return merge(store.Since(messageID), fresh), nil
}

// SendText sends a text message to a thread.
func (w *Workspace) SendText(ctx context.Context, chatID, content string) (models.Message, error) {
	store, err := w.Messages(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := store.SendText(ctx, content)
	if err != nil {
		return models.Message{}, err
	}
	w.afterSend(ctx, msg)
	return msg, nil
}

// SendFile uploads an attachment to a thread.
func (w *Workspace) SendFile(ctx context.Context, chatID string, f File) (models.Message, error) {
	store, err := w.Messages(ctx, chatID)
	if err != nil {
		return models.Message{}, err
	}
	msg, err := store.SendFile(ctx, f)
	if err != nil {
		return models.Message{}, err
	}
	w.afterSend(ctx, msg)
	return msg, nil
}

// DeleteMessage deletes one of the viewer's messages. A message that is not
// loaded yet is looked up on the newest page first.
func (w *Workspace) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	store, err := w.Messages(ctx, chatID)
	if err != nil {
		return err
	}
	if !store.Has(messageID) {
		if _, err := store.Refresh(ctx); err != nil {
			return err
		}
	}
	if err := store.Delete(ctx, messageID); err != nil {
		return err
	}
	w.publish(events.MessageDeleted, chatID, map[string]string{"id": messageID})
	return nil
}

// ChangeStatus moves a thread to a new status.
func (w *Workspace) ChangeStatus(ctx context.Context, chatID string, status models.ChatStatus) (ThreadView, error) {
	th, err := w.repo.UpdateStatus(ctx, chatID, status)
	if err != nil {
		return ThreadView{}, err
	}
	if store := w.store(chatID); store != nil {
		store.SetStatus(th.Status)
	}
	w.publish(events.ThreadStatus, chatID, th)
	return w.view(th), nil
}

// Watch polls a thread for changes made elsewhere and publishes them until
// the returned stop func is called. Concurrent watches share one loop.
func (w *Workspace) Watch(ctx context.Context, chatID string) (stop func(), err error) {
	store, err := w.Messages(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return w.watcher.Watch(chatID, func(ctx context.Context) error {
		return w.poll(ctx, store)
	}), nil
}

// Close stops every poll loop. The workspace must not be used afterwards.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.done)
	w.mu.Unlock()

	w.watcher.Close()
	w.log.Debug("workspace closed")
}

func (w *Workspace) poll(ctx context.Context, store *MessageStore) error {
	chatID := store.ChatID()
	fresh, err := store.Refresh(ctx)
	if err != nil {
		return err
	}
	for _, m := range fresh {
		w.publish(events.MessageCreated, chatID, m)
	}

	th, err := w.repo.GetThread(ctx, chatID)
	if err != nil {
		return err
	}
	if th.Status != store.Status() {
		store.SetStatus(th.Status)
		w.publish(events.ThreadStatus, chatID, th)
	}
	return nil
}

// afterSend publishes a sent message and refreshes the thread list so its
// order and previews follow the backend. A failed refresh keeps the local
// state.
func (w *Workspace) afterSend(ctx context.Context, msg models.Message) {
	w.publish(events.MessageCreated, msg.ChatID, msg)
	if _, err := w.repo.ListThreads(ctx); err != nil {
		w.log.Warn("refresh threads after send", zap.String("chat_id", msg.ChatID), zap.Error(err))
	}
}

func (w *Workspace) publish(t events.Type, chatID string, payload interface{}) {
	if w.bus == nil {
		return
	}
	ev, err := events.New(t, chatID, payload)
	if err == nil {
		err = w.bus.Publish(ev)
	}
	if err != nil {
		w.log.Error("publish event", zap.String("type", string(t)), zap.String("chat_id", chatID), zap.Error(err))
	}
}

func (w *Workspace) store(chatID string) *MessageStore {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stores[chatID]
}

func (w *Workspace) view(th models.ChatThread) ThreadView {
	other, err := OtherParty(th, w.viewer)
	if err != nil {
		w.log.Error("resolve other party", zap.String("chat_id", th.ID), zap.Error(err))
	}
	return ThreadView{
		Thread:          th,
		OtherParty:      other,
		ComposeEnabled:  ComposeEnabled(th.Status),
		CanChangeStatus: w.viewer.Role == models.RolePsychologist && th.Psychologist.ID == w.viewer.ID && th.Status == models.ChatStatusActive,
	}
}
