package teamlock

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestLocalSerializesSameKey(t *testing.T) {
	exerciseMutualExclusion(t, NewLocal())
}

func TestLocalIndependentKeys(t *testing.T) {
	locker := NewLocal()
	ctx := context.Background()

	releaseA, err := locker.Lock(ctx, "team-a")
	require.NoError(t, err)
	defer releaseA()

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	releaseB, err := locker.Lock(waitCtx, "team-b")
	require.NoError(t, err)
	releaseB()
}

func TestLocalHonoursContext(t *testing.T) {
	locker := NewLocal()
	release, err := locker.Lock(context.Background(), "team-a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, "team-a")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	release()
	require.Zero(t, locker.held())
}

func TestRedisSerializesSameKey(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	exerciseMutualExclusion(t, NewRedis(client, "skillsync:test:lock:"+t.Name()+":", time.Second, nil))
}

func exerciseMutualExclusion(t *testing.T, locker Locker) {
	t.Helper()
	var (
		inside  atomic.Int32
		maxSeen atomic.Int32
		counter atomic.Int32
	)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			release, err := locker.Lock(ctx, "team-1")
			if err != nil {
				return err
			}
			defer release()
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			counter.Add(1)
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, maxSeen.Load())
	require.EqualValues(t, 16, counter.Load())
}
