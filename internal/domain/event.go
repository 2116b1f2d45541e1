package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	KindMessage    EventKind = "message"
	KindFileShared EventKind = "file_shared"
	KindUnknown    EventKind = "unknown"
)

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// MessagePayload carries the user-visible text of a message event.
type MessagePayload struct {
	Text string `json:"text"`
}

// FilePayload carries the metadata of a shared file.
type FilePayload struct {
	FileID   string `json:"file_id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// InboundEvent is an externally delivered notification event. It is built
// once at the boundary and never mutated afterwards.
type InboundEvent struct {
	ID        string
	Kind      EventKind
	Subtype   string
	ActorID   string
	ChannelID string
	Timestamp time.Time

	Message *MessagePayload
	File    *FilePayload

	// Raw preserves the delivered payload for unknown kinds so that new
	// event types survive a round trip without a schema change.
	Raw map[string]any
}

// ContentText returns the text used for content hashing and intent analysis.
func (e *InboundEvent) ContentText() string {
	if e.Message != nil {
		return e.Message.Text
	}
	if e.File != nil {
		return e.File.FileID
	}
	return ""
}

// ParseInbound builds an InboundEvent from a decoded delivery envelope.
// Events without a delivery id get a generated one so deduplication and
// task tracking always have a stable handle.
func ParseInbound(envelope map[string]any) *InboundEvent {
	ev := &InboundEvent{
		ID:   stringField(envelope, "event_id"),
		Raw:  envelope,
		Kind: KindUnknown,
	}
	if ev.ID == "" {
		ev.ID = "evt_" + uuid.NewString()
	}

	inner, _ := envelope["event"].(map[string]any)
	if inner == nil {
		return ev
	}

	switch stringField(inner, "type") {
	case string(KindMessage):
		ev.Kind = KindMessage
		ev.Message = &MessagePayload{Text: stringField(inner, "text")}
	case string(KindFileShared):
		ev.Kind = KindFileShared
		ev.File = &FilePayload{
			FileID:   stringField(inner, "file_id"),
			Name:     stringField(inner, "file_name"),
			MimeType: stringField(inner, "mime_type"),
			URL:      stringField(inner, "url_private"),
		}
	}

	ev.Subtype = stringField(inner, "subtype")
	ev.ActorID = stringField(inner, "user")
	ev.ChannelID = stringField(inner, "channel")
	ev.Timestamp = parseEventTS(stringField(inner, "ts"))

	return ev
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

// parseEventTS parses the platform "seconds.sequence" timestamp format.
func parseEventTS(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	sec := ts
	var frac string
	if i := strings.IndexByte(ts, '.'); i >= 0 {
		sec, frac = ts[:i], ts[i+1:]
	}
	s, err := strconv.ParseInt(sec, 10, 64)
	if err != nil {
		return time.Time{}
	}
	var ns int64
	if frac != "" {
		if f, err := strconv.ParseFloat("0."+frac, 64); err == nil {
			ns = int64(f * float64(time.Second))
		}
	}
	return time.Unix(s, ns).UTC()
}
