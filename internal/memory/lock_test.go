package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerExcludes(t *testing.T) {
	l := NewLocalLocker()
	var inside, peak atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "c1")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, peak.Load())
	assert.Equal(t, 0, l.size())
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	u1, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	u2, err := l.Lock(context.Background(), "b")
	require.NoError(t, err)
	u1()
	u1()
	u2()
	assert.Equal(t, 0, l.size())
}

func TestLocalLockerTimeout(t *testing.T) {
	l := NewLocalLocker()
	unlock, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "c1")
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, 1, l.size())
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, "test:", time.Minute)

	unlock, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:c1"))

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	_, err = l.Lock(ctx, "c1")
	cancel()
	assert.ErrorIs(t, err, ErrLockTimeout)

	unlock()
	assert.False(t, mr.Exists("test:c1"))

	unlock2, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLockerStaleUnlockKeepsNewHolder(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, "", time.Second)

	stale, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := l.Lock(context.Background(), "c1")
	require.NoError(t, err)

	stale()
	assert.True(t, mr.Exists(defaultRedisPrefix+"c1"))
	fresh()
	assert.False(t, mr.Exists(defaultRedisPrefix+"c1"))
}

func TestMemoryWithRedisLocker(t *testing.T) {
	_, client := newRedis(t)
	m := New(newStore(t), Options{Locker: NewRedisLocker(client, "", time.Minute)})

	st, err := m.Commit(context.Background(), "c1", "u", turn("user", "oi"))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Total)
}
