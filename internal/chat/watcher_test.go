package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatcherSharesOneLoopPerKey(t *testing.T) {
	w := NewWatcher(5*time.Millisecond, nil)
	t.Cleanup(w.Close)

	var polls atomic.Int32
	poll := func(context.Context) error {
		polls.Add(1)
		return nil
	}

	stopA := w.Watch("c1", poll)
	stopB := w.Watch("c1", func(context.Context) error {
		t.Error("second poll func must not run")
		return nil
	})
	assert.True(t, w.Active("c1"))
	assert.Eventually(t, func() bool { return polls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	stopA()
	stopA()
	assert.True(t, w.Active("c1"), "one watch is left")

	stopB()
	assert.False(t, w.Active("c1"))

	n := polls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, polls.Load(), n+1)
}

func TestWatcherKeepsPollingAfterErrors(t *testing.T) {
	w := NewWatcher(5*time.Millisecond, nil)
	t.Cleanup(w.Close)

	var polls atomic.Int32
	stop := w.Watch("c1", func(context.Context) error {
		polls.Add(1)
		return errors.New("backend down")
	})
	defer stop()

	assert.Eventually(t, func() bool { return polls.Load() >= 3 }, time.Second, 5*time.Millisecond)
}

func TestWatcherClose(t *testing.T) {
	w := NewWatcher(5*time.Millisecond, nil)
	stop := w.Watch("c1", func(ctx context.Context) error { return nil })

	w.Close()
	assert.False(t, w.Active("c1"))
	stop()

	w.Watch("c2", func(context.Context) error { return nil })
	assert.False(t, w.Active("c2"), "a closed watcher starts nothing")
}

func TestWatcherDefaultInterval(t *testing.T) {
	w := NewWatcher(0, nil)
	t.Cleanup(w.Close)
	assert.Equal(t, DefaultPollInterval, w.interval)
}
