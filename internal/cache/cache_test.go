package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingStore struct{}

func (failingStore) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, errors.New("store unavailable")
}
func (failingStore) Set(context.Context, string, Entry) error { return errors.New("store unavailable") }
func (failingStore) Delete(context.Context, string) error     { return errors.New("store unavailable") }

func TestDeriveKeyIgnoresFieldOrder(t *testing.T) {
	a := map[string]any{"intent": "tshirt", "colors": []string{"red"}}
	b := map[string]any{"colors": []string{"red"}, "intent": "tshirt"}
	assert.Equal(t, DeriveKey("product_rec", a), DeriveKey("product_rec", b))
}

func TestDeriveKeyDistinguishesContentAndPrefix(t *testing.T) {
	a := map[string]any{"intent": "tshirt"}
	b := map[string]any{"intent": "hoodie"}
	assert.NotEqual(t, DeriveKey("product_rec", a), DeriveKey("product_rec", b))
	assert.NotEqual(t, DeriveKey("product_rec", a), DeriveKey("ai_response", a))
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(NewMemoryStore(), DefaultTTLs(), zap.NewNop())
	ctx := context.Background()

	_, ok := c.Get(ctx, "k1")
	require.False(t, ok)

	require.True(t, c.Set(ctx, "k1", []byte("v1"), time.Hour))
	got, ok := c.Get(ctx, "k1")
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), got)
}

func TestCacheEnforcesExpiryAtRead(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemoryStore()
	c := New(store, DefaultTTLs(), zap.NewNop(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Hour)

	now = now.Add(59 * time.Minute)
	_, ok := c.Get(ctx, "k1")
	assert.True(t, ok)

	// The store still holds the entry, but the cache must not serve it.
	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "k1")
	assert.False(t, ok)
}

func TestCacheStoreErrorDegradesToMiss(t *testing.T) {
	c := New(failingStore{}, DefaultTTLs(), zap.NewNop())
	ctx := context.Background()

	assert.False(t, c.Set(ctx, "k1", []byte("v1"), time.Hour))
	_, ok := c.Get(ctx, "k1")
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Errors)
	assert.Equal(t, int64(1), stats.Misses)
}

func TestCacheAIResponseHelpers(t *testing.T) {
	c := New(NewMemoryStore(), DefaultTTLs(), zap.NewNop())
	ctx := context.Background()

	type analysis struct {
		Intent string `json:"intent"`
	}

	var out analysis
	require.False(t, c.GetAIResponse(ctx, "make me a shirt", "gpt-4o-mini", nil, &out))

	require.True(t, c.CacheAIResponse(ctx, "make me a shirt", "gpt-4o-mini", nil, analysis{Intent: "tshirt"}))
	require.True(t, c.GetAIResponse(ctx, "make me a shirt", "gpt-4o-mini", nil, &out))
	assert.Equal(t, "tshirt", out.Intent)

	// A different model is a different cache identity.
	require.False(t, c.GetAIResponse(ctx, "make me a shirt", "gpt-4o", nil, &out))
}

func TestCacheRecommendationContextSensitivity(t *testing.T) {
	c := New(NewMemoryStore(), DefaultTTLs(), zap.NewNop())
	ctx := context.Background()

	require.True(t, c.CacheRecommendation(ctx, "tshirt", map[string]any{"colors": []string{"red"}}, []string{"p1"}))

	var out []string
	require.True(t, c.GetRecommendation(ctx, "tshirt", map[string]any{"colors": []string{"red"}}, &out))
	assert.Equal(t, []string{"p1"}, out)

	require.False(t, c.GetRecommendation(ctx, "tshirt", map[string]any{"colors": []string{"blue"}}, &out))
	require.False(t, c.GetRecommendation(ctx, "tshirt", nil, &out))
}

func TestCacheLogoAnalysisHelpers(t *testing.T) {
	c := New(NewMemoryStore(), DefaultTTLs(), zap.NewNop())
	ctx := context.Background()

	require.True(t, c.CacheLogoAnalysis(ctx, "https://files.example/logo.png", "colors", []string{"navy", "gold"}))

	var colors []string
	require.True(t, c.GetLogoAnalysis(ctx, "https://files.example/logo.png", "colors", &colors))
	assert.Equal(t, []string{"navy", "gold"}, colors)

	require.False(t, c.GetLogoAnalysis(ctx, "https://files.example/other.png", "colors", &colors))
}

func TestCacheStats(t *testing.T) {
	c := New(NewMemoryStore(), DefaultTTLs(), zap.NewNop())
	ctx := context.Background()

	c.Set(ctx, "k1", []byte("v1"), time.Hour)
	c.Get(ctx, "k1")
	c.Get(ctx, "k1")
	c.Get(ctx, "absent")

	stats := c.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(3), stats.TotalRequests)
	assert.InDelta(t, 66.6, stats.HitRatePercent, 0.1)
}

func TestMemoryStoreSweep(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	s.Set(ctx, "fresh", Entry{Value: []byte("a"), ExpiresAt: now.Add(time.Hour)})
	s.Set(ctx, "stale", Entry{Value: []byte("b"), ExpiresAt: now.Add(time.Minute)})
	require.Equal(t, 2, s.Len())

	now = now.Add(30 * time.Minute)
	s.Sweep()
	assert.Equal(t, 1, s.Len())

	_, ok, err := s.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, ok)
}
