package events_http

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"merchbot/internal/domain"

	"go.uber.org/zap"
)

const signatureVersion = "v0"

// Gateway is the admission decision surface the handler depends on.
type Gateway interface {
	ShouldProcess(ctx context.Context, ev *domain.InboundEvent) (bool, domain.Reason)
	RecordFailure()
}

// Processor is the enqueue surface the handler depends on.
type Processor interface {
	Enqueue(ev *domain.InboundEvent, priority domain.Priority) error
}

// EventHandler is the thin webhook front door: verify the delivery
// signature, parse the envelope, ask the gateway for an admission decision,
// enqueue, and acknowledge immediately. Processing outcomes reach the user
// asynchronously, never through this response.
type EventHandler struct {
	gateway       Gateway
	processor     Processor
	signingSecret string
	logger        *zap.Logger
	now           func() time.Time
}

func NewEventHandler(gateway Gateway, processor Processor, signingSecret string, logger *zap.Logger) *EventHandler {
	return &EventHandler{
		gateway:       gateway,
		processor:     processor,
		signingSecret: signingSecret,
		logger:        logger,
		now:           time.Now,
	}
}

type challengeRequest struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
}

func (h *EventHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r, body) {
		h.logger.Warn("event delivery failed signature verification")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var challenge challengeRequest
	if err := json.Unmarshal(body, &challenge); err != nil {
		h.logger.Error("Malformed event envelope", zap.Error(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if challenge.Type == "url_verification" {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
		return
	}

	var envelope map[string]any
	if err := json.Unmarshal(body, &envelope); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	ev := domain.ParseInbound(envelope)
	accepted, reason := h.gateway.ShouldProcess(r.Context(), ev)
	if !accepted {
		// Rejections are policy, not failure: the delivery is still
		// acknowledged so the platform does not redeliver.
		h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "queued": false, "reason": reason})
		return
	}

	priority := domain.PriorityNormal
	if ev.Kind == domain.KindFileShared {
		priority = domain.PriorityHigh
	}
	if err := h.processor.Enqueue(ev, priority); err != nil {
		// An admitted event we could not hand off counts against the breaker.
		h.gateway.RecordFailure()
		h.logger.Error("Failed to enqueue admitted event",
			zap.String("event_id", ev.ID), zap.Error(err))
		h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "queued": false, "reason": "queue_full"})
		return
	}

	h.respondJSON(w, http.StatusOK, map[string]any{"ok": true, "queued": true})
}

// verifySignature checks the v0 HMAC scheme: hex(hmac-sha256(secret,
// "v0:<timestamp>:<body>")). Deliveries older than five minutes are
// rejected to blunt replay.
func (h *EventHandler) verifySignature(r *http.Request, body []byte) bool {
	if h.signingSecret == "" {
		return true
	}

	tsHeader := r.Header.Get("X-Signature-Timestamp")
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return false
	}
	if d := h.now().Sub(time.Unix(ts, 0)); d > 5*time.Minute || d < -5*time.Minute {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	mac.Write([]byte(signatureVersion + ":" + tsHeader + ":"))
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(r.Header.Get("X-Signature")))
}

func (h *EventHandler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to write JSON response", zap.Error(err))
	}
}
