package chat

import (
	"sync"
	"time"

	"psyconsult-chat/internal/session"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Factory builds the workspace of a session.
type Factory func(s *session.Session) *Workspace

// Registry keeps one workspace per session. Idle workspaces expire after the
// TTL and are closed. A workspace acquired by a long-lived caller, such as
// an event stream, outlives the TTL until it is released.
type Registry struct {
	cache   *cache.Cache
	factory Factory
	ttl     time.Duration
	log     *zap.Logger

	mu sync.Mutex

	// pinMu is taken inside the eviction callback, which go-cache may run
	// while mu is held. Never call Delete or DeleteExpired under pinMu.
	pinMu sync.Mutex
	pins  map[string]*pin
}

type pin struct {
	ws   *Workspace
	refs int
}

// NewRegistry creates a registry. A ttl of zero keeps workspaces until they
// are dropped.
func NewRegistry(ttl time.Duration, factory Factory, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	expiration, cleanup := ttl, time.Minute
	if ttl <= 0 {
		expiration, cleanup = cache.NoExpiration, 0
	}
	r := &Registry{
		cache:   cache.New(expiration, cleanup),
		factory: factory,
		ttl:     expiration,
		log:     log.Named("registry"),
		pins:    make(map[string]*pin),
	}
	r.cache.OnEvicted(func(id string, x interface{}) {
		ws, ok := x.(*Workspace)
		if !ok {
			return
		}
		if r.pinned(id, ws) {
			r.log.Debug("workspace expired while in use", zap.String("session_id", id))
			return
		}
		ws.Close()
		r.log.Debug("workspace released", zap.String("session_id", id))
	})
	return r
}

// For returns the workspace of s, creating it on first use. Every call
// extends its lifetime.
func (r *Registry) For(s *session.Session) *Workspace {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(s)
}

// Acquire returns the workspace of s and keeps it open until release is
// called, however long that takes. release is safe to call more than once.
func (r *Registry) Acquire(s *session.Session) (ws *Workspace, release func()) {
	r.mu.Lock()
	ws = r.get(s)
	r.pinMu.Lock()
	p := r.pins[s.ID]
	if p == nil || p.ws != ws {
		p = &pin{ws: ws}
		r.pins[s.ID] = p
	}
	p.refs++
	r.pinMu.Unlock()
	r.mu.Unlock()

	var once sync.Once
	return ws, func() {
		once.Do(func() { r.release(s.ID, p) })
	}
}

// Drop closes and forgets the workspace of a session, even while acquired.
// The cached contacts of its user are dropped with it.
func (r *Registry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var dropped []*Workspace
	if x, found := r.cache.Get(sessionID); found {
		dropped = append(dropped, x.(*Workspace))
	}
	r.pinMu.Lock()
	if p, ok := r.pins[sessionID]; ok {
		dropped = append(dropped, p.ws)
		delete(r.pins, sessionID)
	}
	r.pinMu.Unlock()

	r.cache.Delete(sessionID)
	for _, ws := range dropped {
		ws.ForgetContacts()
		ws.Close()
	}
}

// Len returns the number of live workspaces.
func (r *Registry) Len() int {
	return r.cache.ItemCount()
}

// Close closes every workspace.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pinMu.Lock()
	pinned := r.pins
	r.pins = make(map[string]*pin)
	r.pinMu.Unlock()

	r.cache.DeleteExpired()
	for id := range r.cache.Items() {
		r.cache.Delete(id)
	}
	for _, p := range pinned {
		p.ws.Close()
	}
}

// get returns the live workspace of s. Callers hold r.mu.
func (r *Registry) get(s *session.Session) *Workspace {
	if x, found := r.cache.Get(s.ID); found {
		ws := x.(*Workspace)
		r.cache.Set(s.ID, ws, r.ttl)
		return ws
	}
	// An expired entry is still held until the janitor runs; close it now.
	r.cache.DeleteExpired()

	r.pinMu.Lock()
	p := r.pins[s.ID]
	r.pinMu.Unlock()
	if p != nil {
		r.cache.Set(s.ID, p.ws, r.ttl)
		return p.ws
	}

	ws := r.factory(s)
	r.cache.Set(s.ID, ws, r.ttl)
	r.log.Debug("workspace created", zap.String("session_id", s.ID), zap.String("user_id", s.UserID))
	return ws
}

func (r *Registry) release(sessionID string, p *pin) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pinMu.Lock()
	p.refs--
	idle := p.refs == 0
	if idle && r.pins[sessionID] == p {
		delete(r.pins, sessionID)
	}
	r.pinMu.Unlock()
	if !idle {
		return
	}

	// The workspace expired while acquired and nobody asked for it since.
	if x, found := r.cache.Get(sessionID); !found || x.(*Workspace) != p.ws {
		p.ws.Close()
		r.log.Debug("workspace released", zap.String("session_id", sessionID))
	}
}

func (r *Registry) pinned(sessionID string, ws *Workspace) bool {
	r.pinMu.Lock()
	defer r.pinMu.Unlock()
	p, ok := r.pins[sessionID]
	return ok && p.ws == ws && p.refs > 0
}
