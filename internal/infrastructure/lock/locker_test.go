package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLocker struct {
	mu     sync.Mutex
	events []string
	failOn string
}

func (r *recordingLocker) Acquire(_ context.Context, key string) (func(), error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key == r.failOn {
		return nil, ErrLockFailed
	}
	r.events = append(r.events, "lock "+key)
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, "unlock "+key)
	}, nil
}

func TestAcquireAccounts_Order(t *testing.T) {
	rec := &recordingLocker{}

	release, err := AcquireAccounts(context.Background(), rec, 42, 7, 42)
	require.NoError(t, err)
	release()

	assert.Equal(t, []string{
		"lock account:7",
		"lock account:42",
		"unlock account:42",
		"unlock account:7",
	}, rec.events)
}

func TestAcquireAccounts_FailureReleasesHeldLocks(t *testing.T) {
	rec := &recordingLocker{failOn: AccountKey(9)}

	_, err := AcquireAccounts(context.Background(), rec, 9, 3)
	assert.ErrorIs(t, err, ErrLockFailed)
	assert.Equal(t, []string{"lock account:3", "unlock account:3"}, rec.events)
}

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			v := counter
			time.Sleep(time.Microsecond)
			counter = v + 1
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, l.held())
}

func TestLocalLocker_ContextCancelled(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release() // second call is a no-op
	assert.Equal(t, 0, l.held())

	release, err = l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
}

func TestLocalLocker_OppositeOrderTransfersDoNotDeadlock(t *testing.T) {
	l := NewLocalLocker()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			release, err := AcquireAccounts(ctx, l, 1, 2)
			if assert.NoError(t, err) {
				release()
			}
		}()
		go func() {
			defer wg.Done()
			release, err := AcquireAccounts(ctx, l, 2, 1)
			if assert.NoError(t, err) {
				release()
			}
		}()
	}
	wg.Wait()
}
