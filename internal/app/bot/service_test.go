package bot

import (
	"context"
	"errors"
	"sync"
	"testing"

	"merchbot/internal/cache"
	"merchbot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChat struct {
	mu       sync.Mutex
	messages []string
	file     FileInfo
	fileErr  error
	postErr  error
}

func (c *fakeChat) PostMessage(_ context.Context, _, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, text)
	return c.postErr
}

func (c *fakeChat) FileInfo(context.Context, string) (FileInfo, error) {
	return c.file, c.fileErr
}

func (c *fakeChat) sent() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

type fakeAI struct {
	intentCalls int
	colorCalls  int
	analysis    IntentAnalysis
	colors      []string
	err         error
}

func (a *fakeAI) AnalyzeIntent(context.Context, string) (IntentAnalysis, error) {
	a.intentCalls++
	return a.analysis, a.err
}

func (a *fakeAI) AnalyzeLogoColors(context.Context, string) ([]string, error) {
	a.colorCalls++
	return a.colors, a.err
}

type fakeCatalog struct {
	recommendCalls int
	mockupCalls    int
	products       []Product
	mockup         Mockup
	err            error
}

func (c *fakeCatalog) RecommendProducts(context.Context, string, map[string]any) ([]Product, error) {
	c.recommendCalls++
	return c.products, c.err
}

func (c *fakeCatalog) CreateMockup(context.Context, string, string, string) (Mockup, error) {
	c.mockupCalls++
	return c.mockup, c.err
}

func newTestService(chat *fakeChat, ai *fakeAI, catalog *fakeCatalog) *Service {
	c := cache.New(cache.NewMemoryStore(), cache.DefaultTTLs(), zap.NewNop())
	return NewService(chat, ai, catalog, c, 1000, "test-model", zap.NewNop())
}

func messageEvent(text string) *domain.InboundEvent {
	return &domain.InboundEvent{
		ID:        "Ev1",
		Kind:      domain.KindMessage,
		ActorID:   "U1",
		ChannelID: "C1",
		Message:   &domain.MessagePayload{Text: text},
	}
}

func TestHandleMessageAcknowledgesAndRecommends(t *testing.T) {
	chat := &fakeChat{}
	ai := &fakeAI{analysis: IntentAnalysis{Intent: "tshirt"}}
	catalog := &fakeCatalog{products: []Product{{ID: "p1", Title: "Classic Tee"}}}
	s := newTestService(chat, ai, catalog)

	require.NoError(t, s.HandleMessage(context.Background(), messageEvent("make me a shirt")))

	sent := chat.sent()
	require.Len(t, sent, 2)
	assert.Equal(t, ackMessageText, sent[0])
	assert.Contains(t, sent[1], "Classic Tee")
}

func TestHandleMessageUsesCachedAnalysis(t *testing.T) {
	chat := &fakeChat{}
	ai := &fakeAI{analysis: IntentAnalysis{Intent: "tshirt"}}
	catalog := &fakeCatalog{products: []Product{{ID: "p1", Title: "Classic Tee"}}}
	s := newTestService(chat, ai, catalog)
	ctx := context.Background()

	require.NoError(t, s.HandleMessage(ctx, messageEvent("make me a shirt")))
	require.NoError(t, s.HandleMessage(ctx, messageEvent("make me a shirt")))

	assert.Equal(t, 1, ai.intentCalls, "second identical message must hit the cache")
	assert.Equal(t, 1, catalog.recommendCalls)
}

func TestHandleMessageSkipsEmptyText(t *testing.T) {
	chat := &fakeChat{}
	ai := &fakeAI{}
	s := newTestService(chat, ai, &fakeCatalog{})

	require.NoError(t, s.HandleMessage(context.Background(), messageEvent("   ")))
	assert.Empty(t, chat.sent())
	assert.Zero(t, ai.intentCalls)
}

func TestHandleMessagePropagatesAIFailure(t *testing.T) {
	chat := &fakeChat{}
	ai := &fakeAI{err: errors.New("inference down")}
	s := newTestService(chat, ai, &fakeCatalog{})

	err := s.HandleMessage(context.Background(), messageEvent("make me a shirt"))
	require.Error(t, err)
	assert.False(t, domain.IsPermanent(err), "downstream outages are retryable")
}

func fileEvent() *domain.InboundEvent {
	return &domain.InboundEvent{
		ID:        "Ev2",
		Kind:      domain.KindFileShared,
		ActorID:   "U1",
		ChannelID: "C1",
		File:      &domain.FilePayload{FileID: "F1"},
	}
}

func TestHandleFileSharedCreatesMockup(t *testing.T) {
	chat := &fakeChat{file: FileInfo{ID: "F1", Name: "logo.png", MimeType: "image/png", URL: "https://files.example/logo.png"}}
	ai := &fakeAI{colors: []string{"navy", "gold"}}
	catalog := &fakeCatalog{
		products: []Product{{ID: "p1", Title: "Classic Tee"}},
		mockup:   Mockup{ProductID: "p1", ImageURL: "https://img.example/mock.png"},
	}
	s := newTestService(chat, ai, catalog)

	require.NoError(t, s.HandleFileShared(context.Background(), fileEvent()))

	assert.Equal(t, 1, ai.colorCalls)
	assert.Equal(t, 1, catalog.mockupCalls)
	sent := chat.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], "https://img.example/mock.png")
}

func TestHandleFileSharedRejectsNonImage(t *testing.T) {
	chat := &fakeChat{file: FileInfo{ID: "F1", Name: "doc.pdf", MimeType: "application/pdf"}}
	ai := &fakeAI{}
	catalog := &fakeCatalog{}
	s := newTestService(chat, ai, catalog)

	require.NoError(t, s.HandleFileShared(context.Background(), fileEvent()))

	assert.Zero(t, ai.colorCalls, "non-image uploads never reach inference")
	assert.Zero(t, catalog.mockupCalls)
	sent := chat.sent()
	require.Len(t, sent, 2)
	assert.Contains(t, sent[1], "image files")
}

func TestHandleFileSharedWithoutPayloadIsPermanent(t *testing.T) {
	s := newTestService(&fakeChat{}, &fakeAI{}, &fakeCatalog{})

	ev := fileEvent()
	ev.File = nil
	err := s.HandleFileShared(context.Background(), ev)
	require.Error(t, err)
	assert.True(t, domain.IsPermanent(err), "an event that can never carry a file must not be retried")
}

func TestHandleFileSharedCachesLogoAnalysis(t *testing.T) {
	chat := &fakeChat{file: FileInfo{ID: "F1", MimeType: "image/png", URL: "https://files.example/logo.png"}}
	ai := &fakeAI{colors: []string{"navy"}}
	catalog := &fakeCatalog{
		products: []Product{{ID: "p1", Title: "Classic Tee"}},
		mockup:   Mockup{ProductID: "p1", ImageURL: "https://img.example/mock.png"},
	}
	s := newTestService(chat, ai, catalog)
	ctx := context.Background()

	require.NoError(t, s.HandleFileShared(ctx, fileEvent()))
	require.NoError(t, s.HandleFileShared(ctx, fileEvent()))

	assert.Equal(t, 1, ai.colorCalls, "same logo URL must hit the analysis cache")
	assert.Equal(t, 2, catalog.mockupCalls, "mockups are never cached")
}

func TestNotifyFailurePostsToChannel(t *testing.T) {
	chat := &fakeChat{}
	s := newTestService(chat, &fakeAI{}, &fakeCatalog{})

	s.NotifyFailure(context.Background(), messageEvent("hi"))
	require.Len(t, chat.sent(), 1)
	assert.Equal(t, failureText, chat.sent()[0])

	// No channel, nothing to notify.
	s.NotifyFailure(context.Background(), &domain.InboundEvent{ID: "Ev3"})
	assert.Len(t, chat.sent(), 1)
}

func TestAckFailureDoesNotAbortProcessing(t *testing.T) {
	chat := &fakeChat{postErr: errors.New("chat api down")}
	ai := &fakeAI{analysis: IntentAnalysis{Intent: "tshirt"}}
	catalog := &fakeCatalog{products: []Product{{ID: "p1", Title: "Classic Tee"}}}
	s := newTestService(chat, ai, catalog)

	// The final PostMessage fails too, and that one is the handler's result.
	err := s.HandleMessage(context.Background(), messageEvent("make me a shirt"))
	require.Error(t, err)
	assert.Equal(t, 1, ai.intentCalls, "ack failure alone must not stop the pipeline")
}
