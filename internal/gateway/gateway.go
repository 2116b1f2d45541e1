package gateway

import (
	"context"
	"sync"
	"time"

	"merchbot/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var admissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gateway_admissions_total",
	Help: "Admission decisions by outcome reason",
}, []string{"reason"})

// Config tunes the admission pipeline.
type Config struct {
	RateLimits       RateLimits
	DedupTTL         time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	PruneInterval    time.Duration
}

func DefaultConfig() Config {
	return Config{
		RateLimits:       DefaultRateLimits(),
		DedupTTL:         time.Hour,
		BreakerThreshold: 10,
		BreakerCooldown:  5 * time.Minute,
		PruneInterval:    time.Minute,
	}
}

var ignoredSubtypes = map[string]struct{}{
	"bot_message":     {},
	"message_changed": {},
	"message_deleted": {},
	"channel_join":    {},
	"channel_leave":   {},
}

var supportedKinds = map[domain.EventKind]struct{}{
	domain.KindMessage:    {},
	domain.KindFileShared: {},
}

// Stats is the gateway health snapshot.
type Stats struct {
	Breaker       BreakerState            `json:"circuit_breaker"`
	Admitted      int64                   `json:"admitted"`
	Rejected      map[domain.Reason]int64 `json:"rejected"`
	ActiveWindows int                     `json:"active_rate_windows"`
}

// Gateway makes one admission decision per inbound event: circuit check,
// kind filter, deduplication, then rate limiting, short-circuiting on the
// first rejection. The order is load-bearing: events rejected for their kind
// must not pollute dedup state or rate windows.
type Gateway struct {
	cfg     Config
	breaker *CircuitBreaker
	limiter *RateLimiter
	dedup   DedupStore
	logger  *zap.Logger

	mu       sync.Mutex
	admitted int64
	rejected map[domain.Reason]int64
}

func New(cfg Config, dedup DedupStore, logger *zap.Logger) *Gateway {
	return &Gateway{
		cfg:      cfg,
		breaker:  NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		limiter:  NewRateLimiter(cfg.RateLimits),
		dedup:    dedup,
		logger:   logger,
		rejected: make(map[domain.Reason]int64),
	}
}

// ShouldProcess decides whether ev is admitted for background processing.
// Rejections are policy decisions, not failures; only infrastructure errors
// during filtering count against the circuit breaker.
func (g *Gateway) ShouldProcess(ctx context.Context, ev *domain.InboundEvent) (bool, domain.Reason) {
	if !g.breaker.Allow() {
		g.logger.Warn("circuit breaker open, rejecting event", zap.String("event_id", ev.ID))
		return g.decide(false, domain.ReasonCircuitOpen)
	}

	if !supportedKind(ev) {
		g.logger.Debug("event kind filtered out",
			zap.String("kind", string(ev.Kind)),
			zap.String("subtype", ev.Subtype))
		return g.decide(false, domain.ReasonUnsupportedType)
	}

	seen, err := g.dedup.Seen(ctx, Fingerprint(ev), g.cfg.DedupTTL)
	if err != nil {
		// A broken dedup backend is a gateway failure, not a duplicate.
		// Fail open: a redelivered event is cheaper than a dropped one.
		g.breaker.RecordFailure()
		g.logger.Error("dedup check failed", zap.String("event_id", ev.ID), zap.Error(err))
	} else if seen {
		g.logger.Debug("duplicate event detected", zap.String("event_id", ev.ID))
		return g.decide(false, domain.ReasonDuplicate)
	}

	if !g.limiter.Allow(ev.ActorID, ev.ChannelID) {
		g.logger.Warn("rate limit exceeded",
			zap.String("user", ev.ActorID),
			zap.String("channel", ev.ChannelID))
		return g.decide(false, domain.ReasonRateLimited)
	}

	if err == nil {
		g.breaker.RecordSuccess()
	}
	return g.decide(true, domain.ReasonAccepted)
}

func (g *Gateway) decide(accept bool, reason domain.Reason) (bool, domain.Reason) {
	if !accept && reason != domain.ReasonCircuitOpen {
		// A policy rejection must not consume the recovery probe, or a
		// half-open breaker could stay wedged forever.
		g.breaker.CancelProbe()
	}

	admissionsTotal.WithLabelValues(string(reason)).Inc()

	g.mu.Lock()
	if accept {
		g.admitted++
	} else {
		g.rejected[reason]++
	}
	g.mu.Unlock()

	return accept, reason
}

func supportedKind(ev *domain.InboundEvent) bool {
	if _, ok := supportedKinds[ev.Kind]; !ok {
		return false
	}
	_, ignored := ignoredSubtypes[ev.Subtype]
	return !ignored
}

// RecordFailure counts an external gateway failure (for example the webhook
// layer failing to hand off an admitted event).
func (g *Gateway) RecordFailure() { g.breaker.RecordFailure() }

// UserWindowLen reports the current rate-window length for a user scope.
func (g *Gateway) UserWindowLen(userID string) int {
	return g.limiter.WindowLen("user:" + userID)
}

func (g *Gateway) Stats() Stats {
	g.mu.Lock()
	rejected := make(map[domain.Reason]int64, len(g.rejected))
	for reason, n := range g.rejected {
		rejected[reason] = n
	}
	admitted := g.admitted
	g.mu.Unlock()

	return Stats{
		Breaker:       g.breaker.State(),
		Admitted:      admitted,
		Rejected:      rejected,
		ActiveWindows: g.limiter.ActiveWindows(),
	}
}

// Run drives periodic maintenance: rate windows are pruned so no timestamp
// older than the trailing minute survives a pass, and the in-memory dedup
// store drops expired fingerprints.
func (g *Gateway) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.PruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.limiter.Prune()
			if prunable, ok := g.dedup.(interface{ Prune() }); ok {
				prunable.Prune()
			}
		}
	}
}
