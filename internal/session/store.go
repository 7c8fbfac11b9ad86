package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"psyconsult-chat/internal/models"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
)

// MemoryStore keeps sessions in a TTL cache. Sessions vanish on restart.
type MemoryStore struct {
	cache *cache.Cache

	mu      sync.Mutex
	digests map[string]string
}

// NewMemoryStore creates a MemoryStore whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		cache:   cache.New(ttl, 10*time.Minute),
		digests: make(map[string]string),
	}
	s.cache.OnEvicted(func(id string, _ interface{}) {
		s.mu.Lock()
		defer s.mu.Unlock()
		for digest, sid := range s.digests {
			if sid == id {
				delete(s.digests, digest)
			}
		}
	})
	return s
}

func (s *MemoryStore) Save(_ context.Context, sess *Session) error {
	cp := *sess
	s.cache.Set(sess.ID, &cp, cache.DefaultExpiration)
	s.mu.Lock()
	s.digests[Digest(sess.Token)] = sess.ID
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FindByDigest(ctx context.Context, digest string) (*Session, error) {
	s.mu.Lock()
	id, ok := s.digests[digest]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.Find(ctx, id)
}

func (s *MemoryStore) Find(_ context.Context, id string) (*Session, error) {
	if x, found := s.cache.Get(id); found {
		cp := *x.(*Session)
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	if _, found := s.cache.Get(id); !found {
		return ErrNotFound
	}
	// OnEvicted is only fired by Delete and expiry, which keeps digests in sync.
	s.cache.Delete(id)
	return nil
}

// GormStore persists sessions in the relational session storage.
type GormStore struct {
	DB *gorm.DB
}

// NewGormStore creates a GormStore.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) Save(ctx context.Context, sess *Session) error {
	row := models.StoredSession{
		BaseModel:   models.BaseModel{ID: sess.ID, CreatedAt: sess.CreatedAt},
		TokenDigest: Digest(sess.Token),
		Token:       sess.Token,
		UserID:      sess.UserID,
		Role:        sess.Role,
		DisplayName: sess.DisplayName,
		Email:       sess.Email,
		ExpiresAt:   sess.ExpiresAt,
	}
	return s.DB.WithContext(ctx).Save(&row).Error
}

func (s *GormStore) FindByDigest(ctx context.Context, digest string) (*Session, error) {
	var row models.StoredSession
	if err := s.DB.WithContext(ctx).First(&row, "token_digest = ?", digest).Error; err != nil {
		return nil, notFound(err)
	}
	return fromRow(row), nil
}

func (s *GormStore) Find(ctx context.Context, id string) (*Session, error) {
	var row models.StoredSession
	if err := s.DB.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return fromRow(row), nil
}

func (s *GormStore) Delete(ctx context.Context, id string) error {
	res := s.DB.WithContext(ctx).Delete(&models.StoredSession{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func fromRow(row models.StoredSession) *Session {
	return &Session{
		ID:          row.ID,
		UserID:      row.UserID,
		Role:        row.Role,
		DisplayName: row.DisplayName,
		Email:       row.Email,
		Token:       row.Token,
		CreatedAt:   row.CreatedAt,
		ExpiresAt:   row.ExpiresAt,
	}
}
