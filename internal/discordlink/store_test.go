package discordlink

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

type storeCase struct {
	name    string
	store   Store
	now     func() time.Time
	advance func(time.Duration)
}

func stores(t *testing.T) []storeCase {
	mem := NewMemoryStore()
	memNow := time.Now()
	mem.now = func() time.Time { return memNow }

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rs := NewRedisStore(rdb, "")
	redisNow := time.Now()
	rs.now = func() time.Time { return redisNow }

	return []storeCase{
		{"memory", mem, func() time.Time { return memNow }, func(d time.Duration) { memNow = memNow.Add(d) }},
		{"redis", rs, func() time.Time { return redisNow }, func(d time.Duration) { redisNow = redisNow.Add(d); mr.FastForward(d) }},
	}
}

func pending(id string, now time.Time) Session {
	return Session{LinkID: id, DiscordUserID: "42", CodeVerifier: "v", RedirectURI: "https://api/cb",
		ExpiresAt: now.Add(SessionTTL), Status: StatusPending}
}

func TestStore_Lifecycle(t *testing.T) {
	for _, sc := range stores(t) {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, sc.store.Create(ctx, pending("L", sc.now())))
			assert.Error(t, sc.store.Create(ctx, pending("L", sc.now())))

			got, err := sc.store.Claim(ctx, "L")
			require.NoError(t, err)
			assert.Equal(t, StatusPending, got.Status)

			require.NoError(t, sc.store.Update(ctx, "L", StatusPending, func(s *Session) {
				s.Status = StatusComplete
				s.AccessToken = "tok"
			}))
			assert.ErrorIs(t, sc.store.Update(ctx, "L", StatusPending, func(s *Session) {}), ErrNotPending)

			got, err = sc.store.Claim(ctx, "L")
			require.NoError(t, err)
			assert.Equal(t, StatusComplete, got.Status)
			assert.Equal(t, "tok", got.AccessToken)

			_, err = sc.store.Claim(ctx, "L")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = sc.store.Get(ctx, "L")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_ExpiredSessions(t *testing.T) {
	for _, sc := range stores(t) {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, sc.store.Create(ctx, pending("A", sc.now())))
			require.NoError(t, sc.store.Create(ctx, pending("B", sc.now())))

			require.NoError(t, sc.store.Update(ctx, "A", StatusPending, func(s *Session) { s.Status = StatusExpired }))
			_, err := sc.store.Claim(ctx, "A")
			assert.ErrorIs(t, err, ErrNotFound)

			sc.advance(SessionTTL + time.Second)
			_, err = sc.store.Get(ctx, "B")
			assert.ErrorIs(t, err, ErrNotFound)
			_, err = sc.store.Claim(ctx, "B")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, sc.store.Update(ctx, "B", StatusPending, func(s *Session) {}), ErrNotFound)
		})
	}
}

func TestStore_ConcurrentClaimDeliversOnce(t *testing.T) {
	for _, sc := range stores(t) {
		t.Run(sc.name, func(t *testing.T) {
			ctx := context.Background()
			s := pending("L", sc.now())
			s.Status = StatusComplete
			s.AccessToken = "tok"
			require.NoError(t, sc.store.Create(ctx, s))

			var delivered int32
			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if got, err := sc.store.Claim(ctx, "L"); err == nil && got.Status == StatusComplete {
						atomic.AddInt32(&delivered, 1)
					}
				}()
			}
			wg.Wait()
			assert.Equal(t, int32(1), delivered)
		})
	}
}

func TestMemoryStore_Sweep(t *testing.T) {
	m := NewMemoryStore()
	now := time.Now()
	m.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, pending("old", now.Add(-SessionTTL))))
	require.NoError(t, m.Create(ctx, pending("new", now)))

	n, err := m.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = m.Get(ctx, "new")
	assert.NoError(t, err)
}
