package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"psyconsult-chat/internal/api"
	"psyconsult-chat/internal/models"
	"psyconsult-chat/internal/session"

	"go.uber.org/zap"
)

// Viewer is the user looking at the chat.
type Viewer struct {
	ID   string
	Role models.Role
}

// ViewerOf returns the viewer of a session.
func ViewerOf(s *session.Session) Viewer {
	return Viewer{ID: s.UserID, Role: s.Role}
}

// ThreadBackend is the part of the backend the repository calls.
type ThreadBackend interface {
	ListChats(ctx context.Context) ([]models.ChatThread, error)
	GetChat(ctx context.Context, chatID string) (models.ChatThread, error)
	CreateChat(ctx context.Context, psychologistID, patientID string) (models.ChatThread, error)
	UpdateChatStatus(ctx context.Context, chatID string, status models.ChatStatus) (models.ChatThread, error)
	GetPatient(ctx context.Context, patientID string) (models.Profile, error)
}

// Repository caches the conversation threads of one viewer.
type Repository struct {
	backend ThreadBackend
	viewer  Viewer
	log     *zap.Logger

	createMu sync.Mutex

	mu      sync.RWMutex
	threads map[string]*models.ChatThread
}

// NewRepository creates an empty repository for viewer.
func NewRepository(backend ThreadBackend, viewer Viewer, log *zap.Logger) *Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &Repository{
		backend: backend,
		viewer:  viewer,
		log:     log.Named("threads"),
		threads: make(map[string]*models.ChatThread),
	}
}

// ListThreads fetches the viewer's threads, most recently active first.
func (r *Repository) ListThreads(ctx context.Context) ([]models.ChatThread, error) {
	fetched, err := r.backend.ListChats(ctx)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}

	threads := make(map[string]*models.ChatThread, len(fetched))
	for i := range fetched {
		th := fetched[i]
		if !th.HasParticipant(r.viewer.ID) {
			r.log.Warn("skip thread without viewer", zap.String("chat_id", th.ID), zap.String("user_id", r.viewer.ID))
			continue
		}
		threads[th.ID] = &th
	}

	r.mu.Lock()
	r.threads = threads
	r.mu.Unlock()

	return r.Threads(), nil
}

// Threads returns the cached threads in render order without a network call.
func (r *Repository) Threads() []models.ChatThread {
	r.mu.RLock()
	out := make([]models.ChatThread, 0, len(r.threads))
	for _, th := range r.threads {
		out = append(out, *th)
	}
	r.mu.RUnlock()

	SortByActivity(out)
	return out
}

// SortByActivity orders threads by last activity, newest first. Threads with
// equal activity keep a stable order by id.
func SortByActivity(threads []models.ChatThread) {
	sort.SliceStable(threads, func(i, j int) bool {
		a, b := threads[i].LastActivityAt, threads[j].LastActivityAt
		if a.Equal(b) {
			return threads[i].ID < threads[j].ID
		}
		return a.After(b)
	})
}

// Cached returns a thread from the cache.
func (r *Repository) Cached(chatID string) (models.ChatThread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	th, ok := r.threads[chatID]
	if !ok {
		return models.ChatThread{}, false
	}
	return *th, true
}

// GetThread fetches one thread with both participants expanded.
func (r *Repository) GetThread(ctx context.Context, chatID string) (models.ChatThread, error) {
	th, err := r.backend.GetChat(ctx, chatID)
	if err != nil {
		if api.IsNotFound(err) {
			return models.ChatThread{}, fmt.Errorf("get thread %s: %w", chatID, models.ErrThreadNotFound)
		}
		return models.ChatThread{}, fmt.Errorf("get thread %s: %w", chatID, err)
	}
	if !th.HasParticipant(r.viewer.ID) {
		return models.ChatThread{}, fmt.Errorf("get thread %s: %w", chatID, models.ErrThreadNotFound)
	}
	r.put(th)
	return th, nil
}

// Resolve returns a thread from the cache, fetching it on a miss.
func (r *Repository) Resolve(ctx context.Context, chatID string) (models.ChatThread, error) {
	if th, ok := r.Cached(chatID); ok {
		return th, nil
	}
	return r.GetThread(ctx, chatID)
}

// CreateOrGet returns the thread of a psychologist/patient pair, creating it
// on first use. The same pair always yields the same thread.
func (r *Repository) CreateOrGet(ctx context.Context, psychologistID, patientID string) (models.ChatThread, error) {
	patient, err := r.checkPairing(ctx, psychologistID, patientID)
	if err != nil {
		return models.ChatThread{}, err
	}

	r.createMu.Lock()
	defer r.createMu.Unlock()

	if th, ok := r.findPair(psychologistID, patientID); ok {
		return th, nil
	}

	th, err := r.backend.CreateChat(ctx, psychologistID, patientID)
	if err != nil {
		return models.ChatThread{}, fmt.Errorf("create thread: %w", err)
	}
	if th.ID == "" {
		return models.ChatThread{}, fmt.Errorf("create thread: backend returned no id")
	}
	if th.Psychologist.ID == "" {
		th.Psychologist.ID = psychologistID
	}
	if th.Patient.ID == "" {
		th.Patient.ID = patientID
	}
	if th.Patient.ID == patientID && !expanded(th.Patient) {
		th.Patient = patient
	}
	if !th.Matches(psychologistID, patientID) {
		return models.ChatThread{}, fmt.Errorf("create thread: backend returned thread %s for another pair", th.ID)
	}
	if !th.Status.Valid() {
		th.Status = InitialStatus
	}

	if existing, ok := r.Cached(th.ID); ok {
		return existing, nil
	}
	r.put(th)
	r.log.Info("thread ready", zap.String("chat_id", th.ID), zap.String("psychologist_id", psychologistID), zap.String("patient_id", patientID))
	return th, nil
}

// checkPairing verifies that the viewer may open a thread for the pair and
// returns the patient's profile.
func (r *Repository) checkPairing(ctx context.Context, psychologistID, patientID string) (models.Profile, error) {
	forbidden := func(reason string) error {
		return &models.ForbiddenError{Reason: reason, Err: models.ErrForbiddenPairing}
	}
	if psychologistID == "" || patientID == "" || psychologistID == patientID {
		return models.Profile{}, forbidden("a thread needs one psychologist and one patient")
	}

	switch r.viewer.Role {
	case models.RolePsychologist:
		if r.viewer.ID != psychologistID {
			return models.Profile{}, forbidden("psychologists may only open threads as themselves")
		}
	case models.RolePatient:
		if r.viewer.ID != patientID {
			return models.Profile{}, forbidden("patients may only open threads as themselves")
		}
	default:
		return models.Profile{}, &models.ValidationError{Field: "role", Detail: string(r.viewer.Role), Err: models.ErrInvalidRole}
	}

	patient, err := r.backend.GetPatient(ctx, patientID)
	if err != nil {
		if api.IsNotFound(err) {
			return models.Profile{}, forbidden("unknown patient")
		}
		return models.Profile{}, fmt.Errorf("check pairing: %w", err)
	}
	if patient.AssignedPsychologistID != psychologistID {
		return models.Profile{}, forbidden("patient is not assigned to this psychologist")
	}
	if patient.ID == "" {
		patient.ID = patientID
	}
	return patient, nil
}

// UpdateStatus moves a thread to a new status. Only the thread's psychologist
// may do so.
func (r *Repository) UpdateStatus(ctx context.Context, chatID string, status models.ChatStatus) (models.ChatThread, error) {
	th, err := r.Resolve(ctx, chatID)
	if err != nil {
		return models.ChatThread{}, err
	}

	if r.viewer.Role != models.RolePsychologist || th.Psychologist.ID != r.viewer.ID {
		return models.ChatThread{}, &models.ForbiddenError{
			Reason: "only the psychologist participant may change the status",
			Err:    models.ErrForbiddenPairing,
		}
	}
	if err := ValidateTransition(th.Status, status); err != nil {
		return models.ChatThread{}, err
	}

	updated, err := r.backend.UpdateChatStatus(ctx, chatID, status)
	if err != nil {
		return models.ChatThread{}, fmt.Errorf("update status: %w", err)
	}
	if updated.ID == "" {
		updated = th
	}
	// Keep the expanded participants when the backend answers with ids only.
	if updated.Psychologist.ID == th.Psychologist.ID && !expanded(updated.Psychologist) {
		updated.Psychologist = th.Psychologist
	}
	if updated.Patient.ID == th.Patient.ID && !expanded(updated.Patient) {
		updated.Patient = th.Patient
	}
	if updated.LastMessage == nil {
		updated.LastMessage = th.LastMessage
	}
	if updated.LastActivityAt.IsZero() {
		updated.LastActivityAt = th.LastActivityAt
	}
	updated.Status = status

	r.put(updated)
	r.log.Info("thread status changed", zap.String("chat_id", chatID), zap.String("status", string(status)))
	return updated, nil
}

// RecordActivity updates the list-view metadata of a thread after a message
// was sent or received.
func (r *Repository) RecordActivity(chatID string, msg models.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	th, ok := r.threads[chatID]
	if !ok {
		return
	}
	th.LastMessage = models.PreviewOf(msg)
	at := msg.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	if at.After(th.LastActivityAt) {
		th.LastActivityAt = at
	}
}

// OtherParty returns the participant shown to the viewer: the patient for a
// psychologist viewer, the psychologist for a patient viewer.
func OtherParty(th models.ChatThread, viewer Viewer) (models.Contact, error) {
	switch viewer.Role {
	case models.RolePsychologist:
		return models.ContactFromProfile(th.Patient, models.RolePatient), nil
	case models.RolePatient:
		return models.ContactFromProfile(th.Psychologist, models.RolePsychologist), nil
	}
	return models.Contact{}, &models.ValidationError{Field: "role", Detail: string(viewer.Role), Err: models.ErrInvalidRole}
}

func (r *Repository) findPair(psychologistID, patientID string) (models.ChatThread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, th := range r.threads {
		if th.Matches(psychologistID, patientID) {
			return *th, true
		}
	}
	return models.ChatThread{}, false
}

func (r *Repository) put(th models.ChatThread) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.threads[th.ID] = &th
}

// expanded reports whether a profile carries more than its id.
func expanded(p models.Profile) bool {
	return models.ResolveDisplayName(p) != p.ID
}
