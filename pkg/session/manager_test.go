package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/voicesurvey/pkg/adapters/memory"
	"github.com/aretw0/voicesurvey/pkg/domain"
	"github.com/aretw0/voicesurvey/pkg/ports"
	"github.com/aretw0/voicesurvey/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	*memory.Store
}

func (s *SlowStore) Find(ctx context.Context, callID string) (*domain.Participant, error) {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.Store.Find(ctx, callID)
}

func (s *SlowStore) Create(ctx context.Context, callID, destination string) error {
	time.Sleep(5 * time.Millisecond) // Simulate IO
	return s.Store.Create(ctx, callID, destination)
}

func TestManager_LoadOrCreate(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	p, created, err := manager.LoadOrCreate(ctx, "abc", "555")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "555", p.Destination)

	p, created, err = manager.LoadOrCreate(ctx, "abc", "999")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "555", p.Destination)
}

func TestManager_LoadOrCreate_Concurrent(t *testing.T) {
	store := &SlowStore{Store: memory.NewStore()}
	manager := session.NewManager(store)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		created int32
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.WithLock(ctx, "atomic-init", func(ctx context.Context) error {
				_, c, err := manager.LoadOrCreate(ctx, "atomic-init", "555")
				if c {
					atomic.AddInt32(&created, 1)
				}
				return err
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created, "exactly one caller should observe creation under the lock")
}

func TestManager_WithLock_SerializesSameCall(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		inside  int32
		overlap int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = manager.WithLock(ctx, "same", func(ctx context.Context) error {
				if atomic.AddInt32(&inside, 1) > 1 {
					atomic.StoreInt32(&overlap, 1)
				}
				time.Sleep(2 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Zero(t, overlap, "critical sections for one call must not overlap")
}

func TestManager_WithLock_IndependentCalls(t *testing.T) {
	manager := session.NewManager(memory.NewStore())
	ctx := context.Background()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "call-a", func(ctx context.Context) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	finished := make(chan struct{})
	go func() {
		_ = manager.WithLock(ctx, "call-b", func(ctx context.Context) error { return nil })
		close(finished)
	}()

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("lock on call-b waited for call-a")
	}
	close(done)
}

type fakeLocker struct {
	mu       sync.Mutex
	locked   []string
	released int
	fail     error
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.fail != nil {
		return nil, l.fail
	}
	l.mu.Lock()
	l.locked = append(l.locked, fmt.Sprintf("%s/%s", key, ttl))
	l.mu.Unlock()
	return func(ctx context.Context) error {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
		return nil
	}, nil
}

func TestManager_DistributedLocker(t *testing.T) {
	locker := &fakeLocker{}
	manager := session.NewManager(memory.NewStore(),
		session.WithLocker(locker),
		session.WithLockTTL(5*time.Second),
	)

	err := manager.WithLock(context.Background(), "abc", func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, []string{"abc/5s"}, locker.locked)
	assert.Equal(t, 1, locker.released)
}

func TestManager_DistributedLockerFailure(t *testing.T) {
	boom := errors.New("boom")
	manager := session.NewManager(memory.NewStore(), session.WithLocker(&fakeLocker{fail: boom}))

	called := false
	err := manager.WithLock(context.Background(), "abc", func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}
