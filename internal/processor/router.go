package processor

import (
	"context"
	"fmt"
	"sync"

	"merchbot/internal/domain"

	"go.uber.org/zap"
)

// HandlerFunc processes one admitted event. Returned errors are classified
// by the processor: permanent errors dead-letter immediately, everything
// else is retried with backoff.
type HandlerFunc func(ctx context.Context, ev *domain.InboundEvent) error

// Router dispatches an accepted event to the handler registered for its
// kind. Handlers are wired once at startup by the composition root.
type Router struct {
	mu       sync.RWMutex
	handlers map[domain.EventKind]HandlerFunc
	logger   *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		handlers: make(map[domain.EventKind]HandlerFunc),
		logger:   logger,
	}
}

func (r *Router) Register(kind domain.EventKind, handler HandlerFunc) {
	r.mu.Lock()
	r.handlers[kind] = handler
	r.mu.Unlock()
	r.logger.Info("handler registered", zap.String("kind", string(kind)))
}

// Dispatch routes ev to its handler. An unroutable kind is a permanent
// failure: retrying cannot make a handler appear.
func (r *Router) Dispatch(ctx context.Context, ev *domain.InboundEvent) error {
	r.mu.RLock()
	handler, ok := r.handlers[ev.Kind]
	r.mu.RUnlock()

	if !ok {
		return domain.Permanent(fmt.Errorf("%w: %s", domain.ErrNoHandler, ev.Kind))
	}
	return handler(ctx, ev)
}
