package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TTLs holds per-category expiry defaults.
type TTLs struct {
	Default        time.Duration
	AIResponse     time.Duration
	Recommendation time.Duration
	LogoAnalysis   time.Duration
}

func DefaultTTLs() TTLs {
	return TTLs{
		Default:        time.Hour,
		AIResponse:     24 * time.Hour,
		Recommendation: 2 * time.Hour,
		LogoAnalysis:   7 * 24 * time.Hour,
	}
}

// Stats is the cache health snapshot. The hit rate is the primary externally
// observed signal; it never feeds back into eviction decisions.
type Stats struct {
	Hits           int64   `json:"hits"`
	Misses         int64   `json:"misses"`
	Errors         int64   `json:"errors"`
	TotalRequests  int64   `json:"total_requests"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// Cache is a TTL key/value layer shielding expensive downstream calls from
// repeated work. Store failures degrade to misses: correctness never depends
// on the cache being reachable.
type Cache struct {
	store  Store
	ttls   TTLs
	logger *zap.Logger
	now    func() time.Time

	hits   atomic.Int64
	misses atomic.Int64
	errors atomic.Int64
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func New(store Store, ttls TTLs, logger *zap.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		ttls:   ttls,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the value for key, or a miss if absent, expired, or on store
// error. The expiry check happens here, not in the store.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.errors.Add(1)
		c.misses.Add(1)
		c.logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	if !entry.ExpiresAt.IsZero() && c.now().After(entry.ExpiresAt) {
		c.misses.Add(1)
		// Best effort: the store may evict lazily or never.
		_ = c.store.Delete(ctx, key)
		return nil, false
	}

	c.hits.Add(1)
	return entry.Value, true
}

// Set stores value under key for ttl. A non-positive ttl uses the default.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		ttl = c.ttls.Default
	}
	entry := Entry{Value: value, ExpiresAt: c.now().Add(ttl)}
	if err := c.store.Set(ctx, key, entry); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Cache) setJSON(ctx context.Context, key string, value any, ttl time.Duration) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache value not serializable", zap.String("key", key), zap.Error(err))
		return false
	}
	return c.Set(ctx, key, raw, ttl)
}

func (c *Cache) getJSON(ctx context.Context, key string, out any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache value corrupt, treating as miss", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// aiRequest is the semantic identity of one inference call.
type aiRequest struct {
	Prompt  string         `json:"prompt"`
	Model   string         `json:"model"`
	Context map[string]any `json:"context,omitempty"`
}

// CacheAIResponse stores an inference response keyed by prompt, model and
// request context.
func (c *Cache) CacheAIResponse(ctx context.Context, prompt, model string, reqCtx map[string]any, response any) bool {
	key := DeriveKey("ai_response", aiRequest{Prompt: prompt, Model: model, Context: reqCtx})
	return c.setJSON(ctx, key, response, c.ttls.AIResponse)
}

// GetAIResponse loads a cached inference response into out.
func (c *Cache) GetAIResponse(ctx context.Context, prompt, model string, reqCtx map[string]any, out any) bool {
	key := DeriveKey("ai_response", aiRequest{Prompt: prompt, Model: model, Context: reqCtx})
	return c.getJSON(ctx, key, out)
}

type recommendationRequest struct {
	Intent  string         `json:"intent"`
	Context map[string]any `json:"context,omitempty"`
}

// CacheRecommendation stores a catalog recommendation for an intent/context pair.
func (c *Cache) CacheRecommendation(ctx context.Context, intent string, reqCtx map[string]any, recommendations any) bool {
	key := DeriveKey("product_rec", recommendationRequest{Intent: intent, Context: reqCtx})
	return c.setJSON(ctx, key, recommendations, c.ttls.Recommendation)
}

// GetRecommendation loads a cached catalog recommendation into out.
func (c *Cache) GetRecommendation(ctx context.Context, intent string, reqCtx map[string]any, out any) bool {
	key := DeriveKey("product_rec", recommendationRequest{Intent: intent, Context: reqCtx})
	return c.getJSON(ctx, key, out)
}

type logoRequest struct {
	URL      string `json:"url"`
	Analysis string `json:"analysis"`
}

// CacheLogoAnalysis stores the result of an image analysis pass.
func (c *Cache) CacheLogoAnalysis(ctx context.Context, logoURL, analysisType string, result any) bool {
	key := DeriveKey("logo_analysis", logoRequest{URL: logoURL, Analysis: analysisType})
	return c.setJSON(ctx, key, result, c.ttls.LogoAnalysis)
}

// GetLogoAnalysis loads a cached image analysis into out.
func (c *Cache) GetLogoAnalysis(ctx context.Context, logoURL, analysisType string, out any) bool {
	key := DeriveKey("logo_analysis", logoRequest{URL: logoURL, Analysis: analysisType})
	return c.getJSON(ctx, key, out)
}

func (c *Cache) Stats() Stats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = float64(hits) / float64(total) * 100
	}
	return Stats{
		Hits:           hits,
		Misses:         misses,
		Errors:         c.errors.Load(),
		TotalRequests:  total,
		HitRatePercent: rate,
	}
}
