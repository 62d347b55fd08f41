package refresh

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newToken(t *testing.T) string {
	t.Helper()
	token, err := NewToken()
	require.NoError(t, err)
	return token
}

func TestRedisStoreSaveAndFind(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisStore(client, "")

	token := newToken(t)
	exp := time.Date(2100, 1, 1, 0, 0, 0, 123456789, time.UTC)
	require.NoError(t, store.Save(ctx, token, 7, exp))

	rec, err := store.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rec.UserID)
	assert.Equal(t, HashToken(token), rec.TokenHash)
	assert.True(t, rec.ExpiresAt.Equal(exp))
	assert.True(t, rec.Usable(time.Now()))
	assert.False(t, rec.Usable(exp))

	_, err = store.FindByToken(ctx, newToken(t))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreKeepsSubSecondExpiry(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisStore(client, "")

	exp := time.Now().Add(time.Hour).Truncate(time.Millisecond).Add(999 * time.Microsecond)
	saved, rotated := newToken(t), newToken(t)
	require.NoError(t, store.Save(ctx, saved, 1, exp))
	require.NoError(t, store.Rotate(ctx, 2, rotated, exp))

	for _, token := range []string{saved, rotated} {
		rec, err := store.FindByToken(ctx, token)
		require.NoError(t, err)
		assert.True(t, rec.ExpiresAt.Equal(exp), "got %s want %s", rec.ExpiresAt, exp)
	}
}

func TestRedisStoreReadsWholeSecondExpiry(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "")

	token := newToken(t)
	mr.HSet(store.recordKey(HashToken(token)), "user", "4", "exp", "4102444800", "revoked", "0")

	rec, err := store.FindByToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.UserID)
	assert.True(t, rec.ExpiresAt.Equal(time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRedisStoreNeverPersistsPlaintext(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "t")

	token := newToken(t)
	require.NoError(t, store.Save(ctx, token, 1, time.Now().Add(time.Hour)))

	for _, key := range mr.Keys() {
		assert.NotContains(t, key, token)
	}
	assert.True(t, mr.Exists("t:tok:"+HashToken(token)))
}

func TestRedisStoreRevokeAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisStore(client, "")

	a, b, other := newToken(t), newToken(t), newToken(t)
	exp := time.Now().Add(time.Hour)
	require.NoError(t, store.Save(ctx, a, 1, exp))
	require.NoError(t, store.Save(ctx, b, 1, exp))
	require.NoError(t, store.Save(ctx, other, 2, exp))

	require.NoError(t, store.RevokeAllForUser(ctx, 1))
	require.NoError(t, store.RevokeAllForUser(ctx, 1))
	require.NoError(t, store.RevokeAllForUser(ctx, 99))

	for _, tok := range []string{a, b} {
		rec, err := store.FindByToken(ctx, tok)
		require.NoError(t, err)
		assert.True(t, rec.Revoked)
	}
	rec, err := store.FindByToken(ctx, other)
	require.NoError(t, err)
	assert.False(t, rec.Revoked)
}

func TestRedisStoreRotateLeavesExactlyOneUsable(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisStore(client, "")

	exp := time.Now().Add(time.Hour)
	old := newToken(t)
	require.NoError(t, store.Save(ctx, old, 5, exp))

	fresh := newToken(t)
	require.NoError(t, store.Rotate(ctx, 5, fresh, exp))

	rec, err := store.FindByToken(ctx, old)
	require.NoError(t, err)
	assert.True(t, rec.Revoked)

	rec, err = store.FindByToken(ctx, fresh)
	require.NoError(t, err)
	assert.True(t, rec.Usable(time.Now()))
}

func TestRedisStoreConcurrentRotateKeepsOneUsable(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisStore(client, "")
	exp := time.Now().Add(time.Hour)

	const n = 16
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = newToken(t)
	}

	var wg sync.WaitGroup
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			assert.NoError(t, store.Rotate(ctx, 3, tok, exp))
		}(tok)
	}
	wg.Wait()

	usable := 0
	for _, tok := range tokens {
		rec, err := store.FindByToken(ctx, tok)
		require.NoError(t, err)
		if rec.Usable(time.Now()) {
			usable++
		}
	}
	assert.Equal(t, 1, usable)
}

func TestRedisStoreRejectsPastExpiry(t *testing.T) {
	_, client := newTestRedis(t)
	store := NewRedisStore(client, "")

	err := store.Save(context.Background(), newToken(t), 1, time.Now().Add(-time.Second))
	assert.Error(t, err)
}

func TestRedisStoreSweep(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	now := time.Now()
	store := NewRedisStore(client, "").WithClock(func() time.Time { return now })

	revoked, live, short := newToken(t), newToken(t), newToken(t)
	require.NoError(t, store.Save(ctx, revoked, 1, now.Add(time.Hour)))
	require.NoError(t, store.RevokeAllForUser(ctx, 1))
	require.NoError(t, store.Save(ctx, live, 2, now.Add(time.Hour)))
	require.NoError(t, store.Save(ctx, short, 3, now.Add(time.Minute)))

	removed, err := store.SweepExpiredAndRevoked(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.FindByToken(ctx, revoked)
	assert.ErrorIs(t, err, ErrNotFound)

	// Key TTL reclaims the short-lived record; the sweep then clears its index entry.
	mr.FastForward(2 * time.Minute)
	_, err = store.SweepExpiredAndRevoked(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, mr.Exists("urt:user:3"))

	rec, err := store.FindByToken(ctx, live)
	require.NoError(t, err)
	assert.False(t, rec.Revoked)
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, client := newTestRedis(t)
	store := NewRedisStore(client, "")
	mr.Close()

	_, err := store.FindByToken(context.Background(), "x")
	assert.True(t, errors.Is(err, ErrRedisUnavailable))
}
