package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scoreEntry struct {
	Symbol string  `msgpack:"symbol"`
	Score  float64 `msgpack:"score"`
}

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "cache.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	return store, &now
}

func TestStore_PutGetRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)

	in := scoreEntry{Symbol: "AAPL", Score: 0.85}
	require.NoError(t, store.Put("k1", CategoryAnalytics, in, time.Hour))

	var out scoreEntry
	hit, err := store.Get("k1", &out)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, in, out)
}

func TestStore_MissOnUnknownKey(t *testing.T) {
	store, _ := newTestStore(t)

	var out scoreEntry
	hit, err := store.Get("nope", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStore_ExpiryIsAMiss(t *testing.T) {
	store, now := newTestStore(t)

	require.NoError(t, store.Put("k1", CategoryAnalytics, scoreEntry{Symbol: "SAP"}, time.Hour))

	*now = now.Add(time.Hour + time.Second)

	var out scoreEntry
	hit, err := store.Get("k1", &out)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestStore_OverwriteReplacesValue(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Put("k1", CategoryAnalytics, scoreEntry{Score: 0.1}, time.Hour))
	require.NoError(t, store.Put("k1", CategoryAnalytics, scoreEntry{Score: 0.9}, time.Hour))

	var out scoreEntry
	hit, err := store.Get("k1", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 0.9, out.Score)
}

func TestStore_CorruptPayloadTreatedAsMiss(t *testing.T) {
	store, now := newTestStore(t)

	_, err := store.db.Exec(
		`INSERT INTO cache_entries (key, category, payload, expires_at) VALUES (?, ?, ?, ?)`,
		"bad", CategoryRecommendation, []byte{0xc1, 0xff, 0x00}, now.Add(time.Hour).Unix(),
	)
	require.NoError(t, err)

	var out scoreEntry
	hit, err := store.Get("bad", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	// Row was removed, so the next write repairs the key.
	require.NoError(t, store.Put("bad", CategoryRecommendation, scoreEntry{Score: 1}, time.Hour))
	hit, err = store.Get("bad", &out)
	require.NoError(t, err)
	assert.True(t, hit)
}

func TestStore_InvalidateFingerprint(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, store.Put("abc123:def:recommendation", CategoryRecommendation, scoreEntry{}, time.Hour))
	require.NoError(t, store.Put("abc123:def:scenario", CategoryRecommendation, scoreEntry{}, time.Hour))
	require.NoError(t, store.Put("zzz999:def:recommendation", CategoryRecommendation, scoreEntry{}, time.Hour))

	require.NoError(t, store.InvalidateFingerprint("abc123"))

	var out scoreEntry
	hit, _ := store.Get("abc123:def:recommendation", &out)
	assert.False(t, hit)
	hit, _ = store.Get("abc123:def:scenario", &out)
	assert.False(t, hit)
	hit, _ = store.Get("zzz999:def:recommendation", &out)
	assert.True(t, hit)
}

func TestStore_SweepExpired(t *testing.T) {
	store, now := newTestStore(t)

	require.NoError(t, store.Put("short", CategoryAnalytics, scoreEntry{}, time.Minute))
	require.NoError(t, store.Put("long", CategoryAnalytics, scoreEntry{}, time.Hour))

	*now = now.Add(10 * time.Minute)

	removed, err := store.SweepExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	count, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecommendationCache_Namespacing(t *testing.T) {
	store, _ := newTestStore(t)
	rc := NewRecommendationCache(store, time.Hour)

	require.NoError(t, rc.Put("fp1", "s1", "plan", scoreEntry{Score: 0.7}))

	var out scoreEntry
	hit, err := rc.Get("fp1", "s1", "plan", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 0.7, out.Score)

	// Different settings hash is a different key.
	hit, err = rc.Get("fp1", "s2", "plan", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, rc.Invalidate("fp1"))
	hit, _ = rc.Get("fp1", "s1", "plan", &out)
	assert.False(t, hit)
}

func TestAnalyticsCache_Namespacing(t *testing.T) {
	store, now := newTestStore(t)
	ac := NewAnalyticsCache(store, time.Hour)

	weights := map[string]float64{"AAPL": 0.4, "SAP": 0.55}
	require.NoError(t, ac.Put("weights:fp1:s1", weights))

	var out map[string]float64
	hit, err := ac.Get("weights:fp1:s1", &out)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, weights, out)

	// The analytics prefix keeps the key out of the raw namespace.
	hit, err = store.Get("weights:fp1:s1", &out)
	require.NoError(t, err)
	assert.False(t, hit)

	// The namespace TTL applies.
	*now = now.Add(time.Hour + time.Second)
	hit, _ = ac.Get("weights:fp1:s1", &out)
	assert.False(t, hit)
}
