package gateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"merchbot/internal/domain"

	"github.com/gowebpki/jcs"
)

// DedupStore answers "was this fingerprint seen within the window" and
// records it in the same call. One implementation is selected at
// construction time; there is no runtime fallback between them.
type DedupStore interface {
	// Seen records fingerprint with the given ttl and reports whether it
	// was already present.
	Seen(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)
}

// fingerprintContent is the semantic identity of a delivered event. Two
// redeliveries of the same logical event must hash identically.
type fingerprintContent struct {
	EventID string `json:"event_id"`
	ActorID string `json:"actor_id"`
	TS      int64  `json:"ts"`
	Content string `json:"content"`
	Kind    string `json:"kind"`
}

// Fingerprint derives the deduplication hash for an event.
func Fingerprint(ev *domain.InboundEvent) string {
	raw, err := json.Marshal(fingerprintContent{
		EventID: ev.ID,
		ActorID: ev.ActorID,
		TS:      ev.Timestamp.UnixNano(),
		Content: ev.ContentText(),
		Kind:    string(ev.Kind),
	})
	if err == nil {
		if canonical, cerr := jcs.Transform(raw); cerr == nil {
			raw = canonical
		}
	}
	sum := sha256.Sum256(raw)
	return "event_dedup:" + hex.EncodeToString(sum[:])[:16]
}

// MemoryDedupStore tracks fingerprints in process memory. Expired entries
// are dropped by Prune, driven by the gateway maintenance loop.
type MemoryDedupStore struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
}

func NewMemoryDedupStore() *MemoryDedupStore {
	return &MemoryDedupStore{
		expires: make(map[string]time.Time),
		now:     time.Now,
	}
}

func (s *MemoryDedupStore) Seen(_ context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiry, ok := s.expires[fingerprint]; ok && now.Before(expiry) {
		return true, nil
	}
	s.expires[fingerprint] = now.Add(ttl)
	return false, nil
}

func (s *MemoryDedupStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.expires)
}

// Prune drops fingerprints past their window.
func (s *MemoryDedupStore) Prune() {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, expiry := range s.expires {
		if !now.Before(expiry) {
			delete(s.expires, k)
		}
	}
}
