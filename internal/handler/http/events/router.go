package events_http

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func RegisterRoutes(r chi.Router, gw Gateway, proc Processor, sources StatsSources, signingSecret string, l *zap.Logger) {
	eventHandler := NewEventHandler(gw, proc, signingSecret, l.With(zap.String("component", "EventHTTPHandler")))
	healthHandler := NewHealthHandler(sources, l.With(zap.String("component", "HealthHandler")))

	r.Post("/slack/events", eventHandler.HandleEvent)
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/deadletters", healthHandler.HandleDeadLetters)
	r.Handle("/metrics", promhttp.Handler())
}
