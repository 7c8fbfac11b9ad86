package chat

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPollInterval is used when a watcher is created without an interval.
const DefaultPollInterval = 5 * time.Second

// PollFunc runs one poll of a watched key.
type PollFunc func(ctx context.Context) error

type loop struct {
	refs   int
	cancel context.CancelFunc
}

// Watcher runs one poll loop per key while the key has watchers.
type Watcher struct {
	interval time.Duration
	log      *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	loops map[string]*loop
}

// NewWatcher creates a watcher polling every interval.
func NewWatcher(interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		interval: interval,
		log:      log.Named("watcher"),
		ctx:      ctx,
		cancel:   cancel,
		loops:    make(map[string]*loop),
	}
}

// Watch starts polling key unless a loop for it already runs. The returned
// stop func releases this watch; the loop ends with the last one.
func (w *Watcher) Watch(key string, poll PollFunc) (stop func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if l, ok := w.loops[key]; ok {
		l.refs++
		return w.release(key)
	}
	if w.ctx.Err() != nil {
		return func() {}
	}

	ctx, cancel := context.WithCancel(w.ctx)
	w.loops[key] = &loop{refs: 1, cancel: cancel}
	w.wg.Add(1)
	go w.run(ctx, key, poll)
	return w.release(key)
}

// Active reports whether key is being polled.
func (w *Watcher) Active(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.loops[key]
	return ok
}

// Close stops every loop and waits for them to return.
func (w *Watcher) Close() {
	w.cancel()
	w.mu.Lock()
	w.loops = make(map[string]*loop)
	w.mu.Unlock()
	w.wg.Wait()
}

func (w *Watcher) release(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			l, ok := w.loops[key]
			if !ok {
				return
			}
			if l.refs--; l.refs <= 0 {
				l.cancel()
				delete(w.loops, key)
			}
		})
	}
}

func (w *Watcher) run(ctx context.Context, key string, poll PollFunc) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Debug("watch started", zap.String("key", key), zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("watch stopped", zap.String("key", key))
			return
		case <-ticker.C:
			if err := poll(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("poll failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
}
