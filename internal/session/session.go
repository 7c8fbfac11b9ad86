package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"psyconsult-chat/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Session is the signed-in user as seen by every chat component.
type Session struct {
	ID          string      `json:"id"`
	UserID      string      `json:"userId"`
	Role        models.Role `json:"role"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email"`
	Token       string      `json:"-"`
	CreatedAt   time.Time   `json:"createdAt"`
	ExpiresAt   time.Time   `json:"expiresAt"`
}

// ErrNotFound is returned by stores for unknown sessions.
var ErrNotFound = errors.New("session not found")

// Store persists sessions.
type Store interface {
	Save(ctx context.Context, s *Session) error
	FindByDigest(ctx context.Context, digest string) (*Session, error)
	Find(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// TeardownFunc is called after a session is torn down.
type TeardownFunc func(s *Session)

// Manager owns session init and teardown.
type Manager struct {
	store  Store
	secret string
	ttl    time.Duration
	log    *zap.Logger
	now    func() time.Time

	mu         sync.RWMutex
	onTeardown []TeardownFunc

	// flight collapses concurrent first uses of one token into one Init.
	flight singleflight.Group
}

// NewManager creates a Manager. secret may be empty, see ParseToken.
func NewManager(store Store, secret string, ttl time.Duration, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		store:  store,
		secret: secret,
		ttl:    ttl,
		log:    log.Named("session"),
		now:    time.Now,
	}
}

// OnTeardown registers fn to run after every teardown.
func (m *Manager) OnTeardown(fn TeardownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTeardown = append(m.onTeardown, fn)
}

// Init parses token and persists a fresh session for it.
func (m *Manager) Init(ctx context.Context, token string) (*Session, error) {
	identity, err := ParseToken(token, m.secret)
	if err != nil {
		return nil, err
	}

	now := m.now()
	expires := now.Add(m.ttl)
	if !identity.ExpiresAt.IsZero() && identity.ExpiresAt.Before(expires) {
		expires = identity.ExpiresAt
	}

	s := &Session{
		ID:          uuid.NewString(),
		UserID:      identity.UserID,
		Role:        identity.Role,
		DisplayName: models.ResolveDisplayName(identity.Profile),
		Email:       identity.Profile.Email,
		Token:       token,
		CreatedAt:   now,
		ExpiresAt:   expires,
	}
	if err := m.store.Save(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	m.log.Info("session started", zap.String("session_id", s.ID), zap.String("user_id", s.UserID), zap.String("role", string(s.Role)))
	return s, nil
}

// Authenticate returns the live session for token, starting one if needed.
// Concurrent first requests with the same token share one session.
func (m *Manager) Authenticate(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, models.ErrUnauthenticated
	}

	digest := Digest(token)
	if s, err := m.live(ctx, digest); err != nil || s != nil {
		return s, err
	}

	v, err, _ := m.flight.Do(digest, func() (interface{}, error) {
		// Another flight may have finished between the lookup and here.
		s, err := m.live(ctx, digest)
		if err != nil || s != nil {
			return s, err
		}
		s, err = m.Init(ctx, token)
		if err == nil {
			return s, nil
		}
		// Another instance sharing the store may have saved it first.
		if existing, ferr := m.live(ctx, digest); ferr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// live returns the unexpired session of digest, or nil when there is none.
// An expired session is torn down.
func (m *Manager) live(ctx context.Context, digest string) (*Session, error) {
	s, err := m.store.FindByDigest(ctx, digest)
	switch {
	case err == nil && m.now().Before(s.ExpiresAt):
		return s, nil
	case err == nil:
		_ = m.teardown(ctx, s)
		return nil, nil
	case errors.Is(err, ErrNotFound):
		return nil, nil
	}
	return nil, fmt.Errorf("load session: %w", err)
}

// Teardown ends a session (logout).
func (m *Manager) Teardown(ctx context.Context, id string) error {
	s, err := m.store.Find(ctx, id)
	if err != nil {
		return err
	}
	return m.teardown(ctx, s)
}

func (m *Manager) teardown(ctx context.Context, s *Session) error {
	if err := m.store.Delete(ctx, s.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}

	m.mu.RLock()
	hooks := append([]TeardownFunc(nil), m.onTeardown...)
	m.mu.RUnlock()
	for _, fn := range hooks {
		fn(s)
	}

	m.log.Info("session ended", zap.String("session_id", s.ID), zap.String("user_id", s.UserID))
	return nil
}

// Digest is the lookup key of a token; raw tokens are never used as keys.
func Digest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
