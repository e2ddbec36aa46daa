package secret

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
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

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func TestRedisStoreIssueAndFind(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	issued, err := store.Issue(ctx, "acc-1", PurposeMFA, "482913", testNow, 5*time.Minute)
	require.NoError(t, err)
	assert.NotEmpty(t, issued.ID)
	assert.Equal(t, "482913", issued.Value)
	assert.Equal(t, testNow, issued.CreatedAt)
	assert.Equal(t, testNow.Add(5*time.Minute), issued.ExpiresAt)

	found, ok, err := store.Find(ctx, "acc-1", PurposeMFA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, issued.ID, found.ID)
	assert.Empty(t, found.Value, "plaintext must not be persisted")
	assert.True(t, found.Matches("482913"))
	assert.False(t, found.Matches("482914"))

	_, ok, err = store.Find(ctx, "acc-1", PurposePasswordReset)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreIssueReplacesLiveSecret(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	first, err := store.Issue(ctx, "acc-1", PurposeMFA, "111111", testNow, 5*time.Minute)
	require.NoError(t, err)
	second, err := store.Issue(ctx, "acc-1", PurposeMFA, "222222", testNow.Add(time.Minute), 5*time.Minute)
	require.NoError(t, err)

	found, ok, err := store.Find(ctx, "acc-1", PurposeMFA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, second.ID, found.ID)
	assert.False(t, found.Matches("111111"))

	_, ok, err = store.FindByValue(ctx, PurposeMFA, "111111")
	require.NoError(t, err)
	assert.False(t, ok, "replaced secret must not be reachable by value")

	removed, err := store.Consume(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, removed, "replaced secret is already gone")
}

func TestRedisStoreFindByValue(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	issued, err := store.Issue(ctx, "acc-9", PurposePasswordReset, "deadbeef", testNow, time.Hour)
	require.NoError(t, err)

	found, ok, err := store.FindByValue(ctx, PurposePasswordReset, "deadbeef")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, issued.ID, found.ID)
	assert.Equal(t, "acc-9", found.AccountID)

	_, ok, err = store.FindByValue(ctx, PurposeMFA, "deadbeef")
	require.NoError(t, err)
	assert.False(t, ok, "lookups are scoped to a purpose")

	_, ok, err = store.FindByValue(ctx, PurposePasswordReset, "")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreConsumeIsSingleUse(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	issued, err := store.Issue(ctx, "acc-1", PurposeMFA, "654321", testNow, 5*time.Minute)
	require.NoError(t, err)

	removed, err := store.Consume(ctx, issued.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = store.Consume(ctx, issued.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	_, ok, err := store.Find(ctx, "acc-1", PurposeMFA)
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = store.FindByValue(ctx, PurposeMFA, "654321")
	require.NoError(t, err)
	assert.False(t, ok)

	removed, err = store.Consume(ctx, "")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestRedisStoreConcurrentConsumeClaimsOnce(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	issued, err := store.Issue(ctx, "acc-1", PurposeMFA, "777777", testNow, 5*time.Minute)
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Consume(ctx, issued.ID)
			if err == nil && ok {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed.Load())
}

func TestRedisStoreConcurrentIssueKeepsOneLive(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	const writers = 8
	for round := 0; round < 10; round++ {
		var (
			wg     sync.WaitGroup
			failed atomic.Int32
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				value := fmt.Sprintf("%06d", round*writers+i)
				if _, err := store.Issue(ctx, "acc-1", PurposeMFA, value, testNow, 5*time.Minute); err != nil {
					failed.Add(1)
				}
			}(i)
		}
		wg.Wait()

		require.Zero(t, failed.Load(), "round %d: contended writers must be serialized, not rejected", round)

		live, ok, err := store.Find(ctx, "acc-1", PurposeMFA)
		require.NoError(t, err)
		require.True(t, ok)

		var records, indexes []string
		for _, key := range mr.Keys() {
			switch {
			case strings.HasPrefix(key, defaultKeyPrefix+":s:"):
				records = append(records, key)
			case strings.HasPrefix(key, defaultKeyPrefix+":a:"), strings.HasPrefix(key, defaultKeyPrefix+":v:"):
				id, err := mr.Get(key)
				require.NoError(t, err)
				assert.Equal(t, live.ID, id, "round %d: index %s", round, key)
				indexes = append(indexes, key)
			}
		}
		require.Equal(t, []string{defaultKeyPrefix + ":s:" + live.ID}, records, "round %d", round)
		require.Len(t, indexes, 2, "round %d", round)
	}
}

func TestRedisStoreConsumeAll(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	_, err := store.Issue(ctx, "acc-1", PurposeMFA, "123123", testNow, 5*time.Minute)
	require.NoError(t, err)
	reset, err := store.Issue(ctx, "acc-1", PurposePasswordReset, "cafebabe", testNow, time.Hour)
	require.NoError(t, err)

	require.NoError(t, store.ConsumeAll(ctx, "acc-1", PurposeMFA))

	_, ok, err := store.Find(ctx, "acc-1", PurposeMFA)
	require.NoError(t, err)
	assert.False(t, ok)

	found, ok, err := store.Find(ctx, "acc-1", PurposePasswordReset)
	require.NoError(t, err)
	require.True(t, ok, "other purposes are untouched")
	assert.Equal(t, reset.ID, found.ID)

	require.NoError(t, store.ConsumeAll(ctx, "nobody", PurposeMFA))
}

func TestRedisStoreLookupIgnoresExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	past := testNow.Add(-time.Hour)
	_, err := store.Issue(ctx, "acc-1", PurposeMFA, "999999", past, 5*time.Minute)
	require.NoError(t, err)

	found, ok, err := store.Find(ctx, "acc-1", PurposeMFA)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, found.Expired(testNow))
	assert.False(t, found.Expired(past.Add(4*time.Minute)))
	assert.True(t, found.Expired(past.Add(5*time.Minute)), "expiry boundary is exclusive")
}

func TestRedisStoreKeyTTLIncludesRetention(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb, WithKeyPrefix("t"), WithRetention(2*time.Minute))
	ctx := context.Background()

	issued, err := store.Issue(ctx, "acc-1", PurposeMFA, "101010", testNow, 5*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 7*time.Minute, mr.TTL("t:s:"+issued.ID))
	assert.Equal(t, 7*time.Minute, mr.TTL("t:a:mfa:acc-1"))

	mr.FastForward(8 * time.Minute)

	_, ok, err := store.Find(ctx, "acc-1", PurposeMFA)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStoreRejectsInvalidInput(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	_, err := store.Issue(ctx, "acc-1", Purpose("other"), "x", testNow, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidPurpose)

	_, err = store.Issue(ctx, "", PurposeMFA, "x", testNow, time.Minute)
	assert.Error(t, err)

	_, err = store.Issue(ctx, "acc-1", PurposeMFA, "x", testNow, 0)
	assert.Error(t, err)
}

func TestRedisStoreBackendUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewRedisStore(rdb)
	ctx := context.Background()

	mr.Close()

	_, err := store.Issue(ctx, "acc-1", PurposeMFA, "121212", testNow, time.Minute)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, _, err = store.Find(ctx, "acc-1", PurposeMFA)
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	_, err = store.Consume(ctx, "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}

func TestRecordCodecRoundTripAndCorruption(t *testing.T) {
	in, err := newSecret("acc-1", PurposePasswordReset, "abc", testNow, time.Hour)
	require.NoError(t, err)

	data, err := encodeRecord(in)
	require.NoError(t, err)

	out, err := decodeRecord(data)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.AccountID, out.AccountID)
	assert.Equal(t, in.Purpose, out.Purpose)
	assert.Equal(t, in.ValueHash, out.ValueHash)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.True(t, in.ExpiresAt.Equal(out.ExpiresAt))

	_, err = decodeRecord(data[:len(data)-3])
	assert.Error(t, err)

	bad := append([]byte{}, data...)
	bad[0] = 9
	_, err = decodeRecord(bad)
	assert.Error(t, err)
}
