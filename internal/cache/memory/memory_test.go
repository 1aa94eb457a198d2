package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dealscout/internal/cache/memory"
	"github.com/alanyoungcy/dealscout/internal/domain"
)

func TestCacheStore(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	s := memory.NewCacheStore()

	_, err := s.Get(ctx, "missing")
	rq.ErrorIs(err, domain.ErrNotFound)
	rq.ErrorIs(s.Expire(ctx, "missing", time.Minute), domain.ErrNotFound)

	rq.NoError(s.Set(ctx, "deal:1", []byte("payload"), time.Minute))
	got, err := s.Get(ctx, "deal:1")
	rq.NoError(err)
	rq.Equal([]byte("payload"), got)

	got[0] = 'X'
	again, err := s.Get(ctx, "deal:1")
	rq.NoError(err)
	rq.Equal([]byte("payload"), again)

	rq.NoError(s.Expire(ctx, "deal:1", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err = s.Get(ctx, "deal:1")
	rq.ErrorIs(err, domain.ErrNotFound)

	rq.NoError(s.Set(ctx, "k", []byte("v"), 0))
	rq.NoError(s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	rq.ErrorIs(err, domain.ErrNotFound)
}

func TestLockManager(t *testing.T) {
	rq := require.New(t)
	ctx := context.Background()
	lm := memory.NewLockManager()

	unlock, err := lm.Acquire(ctx, "monitor:tick", time.Minute)
	rq.NoError(err)

	_, err = lm.Acquire(ctx, "monitor:tick", time.Minute)
	rq.ErrorIs(err, domain.ErrLockHeld)

	unlock()
	unlock()

	unlock2, err := lm.Acquire(ctx, "monitor:tick", time.Minute)
	rq.NoError(err)
	unlock2()
}

func TestEventBusPattern(t *testing.T) {
	rq := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.NewEventBus()
	ch, err := bus.Subscribe(ctx, "deals.*")
	rq.NoError(err)

	rq.NoError(bus.Publish(ctx, "deals.discovered", []byte("a")))
	rq.NoError(bus.Publish(ctx, "goals.updated", []byte("b")))

	select {
	case msg := <-ch:
		rq.Equal([]byte("a"), msg)
	case <-time.After(time.Second):
		rq.Fail("no message delivered")
	}

	select {
	case msg := <-ch:
		rq.Failf("unexpected message", "%s", msg)
	default:
	}

	cancel()
	_, open := <-ch
	rq.False(open)
}
