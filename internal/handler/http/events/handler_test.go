package events_http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"merchbot/internal/cache"
	"merchbot/internal/domain"
	"merchbot/internal/gateway"
	"merchbot/internal/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeGateway struct {
	accept   bool
	reason   domain.Reason
	failures int
	lastEv   *domain.InboundEvent
}

func (g *fakeGateway) ShouldProcess(_ context.Context, ev *domain.InboundEvent) (bool, domain.Reason) {
	g.lastEv = ev
	return g.accept, g.reason
}

func (g *fakeGateway) RecordFailure() { g.failures++ }

type fakeProcessor struct {
	err      error
	enqueued []*domain.InboundEvent
	priority domain.Priority
}

func (p *fakeProcessor) Enqueue(ev *domain.InboundEvent, priority domain.Priority) error {
	if p.err != nil {
		return p.err
	}
	p.enqueued = append(p.enqueued, ev)
	p.priority = priority
	return nil
}

func messageBody(t *testing.T, text string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id": "Ev1",
		"event": map[string]any{
			"type":    "message",
			"text":    text,
			"user":    "U1",
			"channel": "C1",
			"ts":      "1717243200.000100",
		},
	})
	require.NoError(t, err)
	return body
}

func postEvent(h *EventHandler, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/slack/events", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.HandleEvent(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestHandleEventEnqueuesAdmittedMessage(t *testing.T) {
	gw := &fakeGateway{accept: true, reason: domain.ReasonAccepted}
	proc := &fakeProcessor{}
	h := NewEventHandler(gw, proc, "", zap.NewNop())

	rec := postEvent(h, messageBody(t, "make me a shirt"), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, true, resp["queued"])

	require.Len(t, proc.enqueued, 1)
	assert.Equal(t, "Ev1", proc.enqueued[0].ID)
	assert.Equal(t, domain.PriorityNormal, proc.priority)
}

func TestHandleEventFileSharedGetsHighPriority(t *testing.T) {
	gw := &fakeGateway{accept: true, reason: domain.ReasonAccepted}
	proc := &fakeProcessor{}
	h := NewEventHandler(gw, proc, "", zap.NewNop())

	body, err := json.Marshal(map[string]any{
		"event_id": "Ev2",
		"event":    map[string]any{"type": "file_shared", "file_id": "F1", "user": "U1", "channel": "C1"},
	})
	require.NoError(t, err)

	rec := postEvent(h, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PriorityHigh, proc.priority)
}

func TestHandleEventRejectionStillAcknowledged(t *testing.T) {
	gw := &fakeGateway{accept: false, reason: domain.ReasonRateLimited}
	proc := &fakeProcessor{}
	h := NewEventHandler(gw, proc, "", zap.NewNop())

	rec := postEvent(h, messageBody(t, "spam"), nil)

	assert.Equal(t, http.StatusOK, rec.Code, "rejections must not trigger platform redelivery")
	resp := decodeResponse(t, rec)
	assert.Equal(t, false, resp["queued"])
	assert.Equal(t, string(domain.ReasonRateLimited), resp["reason"])
	assert.Empty(t, proc.enqueued)
}

func TestHandleEventQueueFullCountsAgainstBreaker(t *testing.T) {
	gw := &fakeGateway{accept: true, reason: domain.ReasonAccepted}
	proc := &fakeProcessor{err: domain.ErrQueueFull}
	h := NewEventHandler(gw, proc, "", zap.NewNop())

	rec := postEvent(h, messageBody(t, "hello"), nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, false, resp["queued"])
	assert.Equal(t, "queue_full", resp["reason"])
	assert.Equal(t, 1, gw.failures)
}

func TestHandleEventChallengeEcho(t *testing.T) {
	h := NewEventHandler(&fakeGateway{}, &fakeProcessor{}, "", zap.NewNop())

	body, err := json.Marshal(map[string]string{
		"type":      "url_verification",
		"challenge": "ch4ll3ng3",
	})
	require.NoError(t, err)

	rec := postEvent(h, body, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ch4ll3ng3", rec.Body.String())
}

func TestHandleEventMalformedBody(t *testing.T) {
	h := NewEventHandler(&fakeGateway{}, &fakeProcessor{}, "", zap.NewNop())

	rec := postEvent(h, []byte("{not json"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func sign(secret string, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", ts)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestHandleEventSignatureVerification(t *testing.T) {
	const secret = "signing-secret"
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	gw := &fakeGateway{accept: true, reason: domain.ReasonAccepted}
	h := NewEventHandler(gw, &fakeProcessor{}, secret, zap.NewNop())
	h.now = func() time.Time { return now }

	body := messageBody(t, "hello")
	ts := strconv.FormatInt(now.Unix(), 10)

	t.Run("valid signature", func(t *testing.T) {
		rec := postEvent(h, body, map[string]string{
			"X-Signature-Timestamp": ts,
			"X-Signature":           sign(secret, ts, body),
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		rec := postEvent(h, body, map[string]string{
			"X-Signature-Timestamp": ts,
			"X-Signature":           sign("other-secret", ts, body),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("missing headers", func(t *testing.T) {
		rec := postEvent(h, body, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		old := strconv.FormatInt(now.Add(-6*time.Minute).Unix(), 10)
		rec := postEvent(h, body, map[string]string{
			"X-Signature-Timestamp": old,
			"X-Signature":           sign(secret, old, body),
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "old deliveries are replay risks")
	})
}

type stubGatewayStats struct{ open bool }

func (s stubGatewayStats) Stats() gateway.Stats {
	return gateway.Stats{Breaker: gateway.BreakerState{Open: s.open}}
}

type stubProcessorStats struct{ depth int }

func (s stubProcessorStats) Stats() processor.Stats {
	return processor.Stats{QueueDepth: s.depth, Workers: 4}
}

func (s stubProcessorStats) DeadLetters() []domain.DeadLetterRecord { return nil }

type stubCacheStats struct{}

func (stubCacheStats) Stats() cache.Stats { return cache.Stats{} }

func TestHandleHealthReportsDegradation(t *testing.T) {
	tests := []struct {
		name       string
		queueDepth int
		breaker    bool
		want       string
	}{
		{"healthy", 0, false, "healthy"},
		{"queue backed up", 150, false, "degraded"},
		{"breaker open", 0, true, "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(StatsSources{
				Gateway:   stubGatewayStats{open: tt.breaker},
				Processor: stubProcessorStats{depth: tt.queueDepth},
				Cache:     stubCacheStats{},
			}, zap.NewNop())

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			rec := httptest.NewRecorder()
			h.HandleHealth(rec, req)

			require.Equal(t, http.StatusOK, rec.Code)
			resp := decodeResponse(t, rec)
			assert.Equal(t, tt.want, resp["status"])
		})
	}
}

type fakeArchive struct {
	records []domain.DeadLetterRecord
	err     error
}

func (a fakeArchive) Archive(context.Context, domain.DeadLetterRecord) error { return nil }

func (a fakeArchive) ListRecent(context.Context, int) ([]domain.DeadLetterRecord, error) {
	return a.records, a.err
}

func TestHandleDeadLettersArchiveSource(t *testing.T) {
	h := NewHealthHandler(StatsSources{
		Gateway:   stubGatewayStats{},
		Processor: stubProcessorStats{},
		Cache:     stubCacheStats{},
		Archive:   fakeArchive{records: []domain.DeadLetterRecord{{EventID: "Ev1", Attempts: 4}}},
	}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/deadletters?source=archive", nil)
	rec := httptest.NewRecorder()
	h.HandleDeadLetters(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var records []domain.DeadLetterRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "Ev1", records[0].EventID)
}

func TestHandleDeadLettersArchiveUnavailable(t *testing.T) {
	h := NewHealthHandler(StatsSources{
		Gateway:   stubGatewayStats{},
		Processor: stubProcessorStats{},
		Cache:     stubCacheStats{},
		Archive:   fakeArchive{err: fmt.Errorf("connection refused")},
	}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/deadletters?source=archive", nil)
	rec := httptest.NewRecorder()
	h.HandleDeadLetters(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandleDeadLettersEmptyList(t *testing.T) {
	h := NewHealthHandler(StatsSources{
		Gateway:   stubGatewayStats{},
		Processor: stubProcessorStats{},
		Cache:     stubCacheStats{},
	}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/deadletters", nil)
	rec := httptest.NewRecorder()
	h.HandleDeadLetters(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}
