package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"merchbot/internal/cache"
	"merchbot/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	ackMessageText = "Got it! I'm creating your custom designs now. This will take a few seconds..."
	ackFileText    = "Perfect! I'll analyze your logo and create custom products. Give me a moment..."
	failureText    = "Sorry, I'm having trouble processing your request right now. Please try again in a few minutes."
)

// Service implements the event handlers behind the processor's router. Every
// expensive collaborator call goes through the cache first, and catalog
// calls run under a per-minute budget so the commerce API's own limits are
// never tripped.
type Service struct {
	chat     ChatClient
	ai       AIClient
	catalog  CatalogClient
	cache    *cache.Cache
	throttle *rate.Limiter
	logger   *zap.Logger
	aiModel  string
}

func NewService(chat ChatClient, ai AIClient, catalog CatalogClient, c *cache.Cache, catalogCallsPerMinute int, aiModel string, logger *zap.Logger) *Service {
	if catalogCallsPerMinute <= 0 {
		catalogCallsPerMinute = 50
	}
	return &Service{
		chat:     chat,
		ai:       ai,
		catalog:  catalog,
		cache:    c,
		throttle: rate.NewLimiter(rate.Every(time.Minute/time.Duration(catalogCallsPerMinute)), 1),
		logger:   logger,
		aiModel:  aiModel,
	}
}

// HandleMessage processes a user message: acknowledge, analyze intent,
// recommend products, reply.
func (s *Service) HandleMessage(ctx context.Context, ev *domain.InboundEvent) error {
	if ev.Message == nil || strings.TrimSpace(ev.Message.Text) == "" {
		return nil
	}
	text := ev.Message.Text

	if err := s.chat.PostMessage(ctx, ev.ChannelID, ackMessageText); err != nil {
		s.logger.Warn("failed to send acknowledgment", zap.Error(err))
	}

	analysis, err := s.analyzeIntent(ctx, text)
	if err != nil {
		return fmt.Errorf("intent analysis: %w", err)
	}

	products, err := s.recommendProducts(ctx, analysis)
	if err != nil {
		return fmt.Errorf("product recommendation: %w", err)
	}

	return s.chat.PostMessage(ctx, ev.ChannelID, formatRecommendation(products))
}

// HandleFileShared processes an uploaded logo: analyze its colors, pick
// products, create a mockup for the top pick, reply with the result.
func (s *Service) HandleFileShared(ctx context.Context, ev *domain.InboundEvent) error {
	if ev.File == nil || ev.File.FileID == "" {
		return domain.Permanent(fmt.Errorf("file_shared event without file payload"))
	}

	if err := s.chat.PostMessage(ctx, ev.ChannelID, ackFileText); err != nil {
		s.logger.Warn("failed to send acknowledgment", zap.Error(err))
	}

	info, err := s.chat.FileInfo(ctx, ev.File.FileID)
	if err != nil {
		return fmt.Errorf("file info: %w", err)
	}
	if !strings.HasPrefix(info.MimeType, "image/") {
		// Not an error worth retrying; tell the user and finish.
		return s.chat.PostMessage(ctx, ev.ChannelID,
			"I can only work with image files. Please upload your logo as PNG or JPEG.")
	}

	colors, err := s.analyzeLogoColors(ctx, info.URL)
	if err != nil {
		return fmt.Errorf("logo analysis: %w", err)
	}

	analysis := IntentAnalysis{Intent: "logo_products", Colors: colors}
	products, err := s.recommendProducts(ctx, analysis)
	if err != nil {
		return fmt.Errorf("product recommendation: %w", err)
	}
	if len(products) == 0 {
		return s.chat.PostMessage(ctx, ev.ChannelID, "I couldn't find matching products for this logo yet.")
	}

	if err := s.throttle.Wait(ctx); err != nil {
		return fmt.Errorf("catalog throttle: %w", err)
	}
	mockup, err := s.catalog.CreateMockup(ctx, products[0].ID, info.URL, firstOr(colors, ""))
	if err != nil {
		return fmt.Errorf("mockup creation: %w", err)
	}

	return s.chat.PostMessage(ctx, ev.ChannelID,
		fmt.Sprintf("Here's your %s mockup: %s", products[0].Title, mockup.ImageURL))
}

// NotifyFailure implements processor.Notifier: the user hears about a
// permanently failed event asynchronously, never on the delivery path.
func (s *Service) NotifyFailure(ctx context.Context, ev *domain.InboundEvent) {
	if ev.ChannelID == "" {
		return
	}
	if err := s.chat.PostMessage(ctx, ev.ChannelID, failureText); err != nil {
		s.logger.Error("failed to send failure notification",
			zap.String("channel", ev.ChannelID), zap.Error(err))
	}
}

func (s *Service) analyzeIntent(ctx context.Context, text string) (IntentAnalysis, error) {
	var analysis IntentAnalysis
	if s.cache.GetAIResponse(ctx, text, s.aiModel, nil, &analysis) {
		return analysis, nil
	}

	analysis, err := s.ai.AnalyzeIntent(ctx, text)
	if err != nil {
		return IntentAnalysis{}, err
	}
	s.cache.CacheAIResponse(ctx, text, s.aiModel, nil, analysis)
	return analysis, nil
}

func (s *Service) analyzeLogoColors(ctx context.Context, logoURL string) ([]string, error) {
	var colors []string
	if s.cache.GetLogoAnalysis(ctx, logoURL, "colors", &colors) {
		return colors, nil
	}

	colors, err := s.ai.AnalyzeLogoColors(ctx, logoURL)
	if err != nil {
		return nil, err
	}
	s.cache.CacheLogoAnalysis(ctx, logoURL, "colors", colors)
	return colors, nil
}

func (s *Service) recommendProducts(ctx context.Context, analysis IntentAnalysis) ([]Product, error) {
	reqCtx := map[string]any{}
	if len(analysis.Colors) > 0 {
		reqCtx["colors"] = analysis.Colors
	}

	var products []Product
	if s.cache.GetRecommendation(ctx, analysis.Intent, reqCtx, &products) {
		return products, nil
	}

	if err := s.throttle.Wait(ctx); err != nil {
		return nil, fmt.Errorf("catalog throttle: %w", err)
	}
	products, err := s.catalog.RecommendProducts(ctx, analysis.Intent, reqCtx)
	if err != nil {
		return nil, err
	}
	s.cache.CacheRecommendation(ctx, analysis.Intent, reqCtx, products)
	return products, nil
}

func formatRecommendation(products []Product) string {
	if len(products) == 0 {
		return "I couldn't find a good product match yet. Try describing what you're looking for."
	}
	titles := make([]string, 0, len(products))
	for _, p := range products {
		titles = append(titles, p.Title)
	}
	return "Here's what I'd recommend: " + strings.Join(titles, ", ")
}

func firstOr(values []string, fallback string) string {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}
