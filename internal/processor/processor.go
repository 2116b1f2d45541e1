package processor

import (
	"context"
	"math"
	"sync"
	"time"

	"merchbot/internal/domain"

	"go.uber.org/zap"
)

// Notifier delivers the best-effort user-facing failure message once a task
// is dead-lettered. Delivery failures are logged and dropped.
type Notifier interface {
	NotifyFailure(ctx context.Context, ev *domain.InboundEvent)
}

// DeadLetterSink receives terminal records for operator tooling (archive
// table, alert topic). Sink errors never affect task accounting.
type DeadLetterSink interface {
	Archive(ctx context.Context, rec domain.DeadLetterRecord) error
}

// Config tunes the worker pool.
type Config struct {
	Workers         int
	QueueSize       int
	MaxRetries      int
	BackoffBase     float64
	BackoffUnit     time.Duration
	HandlerTimeout  time.Duration
	PollInterval    time.Duration
	DeadLetterCap   int
	MonitorInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:         4,
		QueueSize:       256,
		MaxRetries:      3,
		BackoffBase:     2,
		BackoffUnit:     time.Second,
		HandlerTimeout:  30 * time.Second,
		PollInterval:    time.Second,
		DeadLetterCap:   1000,
		MonitorInterval: 30 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = d.QueueSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffUnit <= 0 {
		c.BackoffUnit = d.BackoffUnit
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = d.HandlerTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.DeadLetterCap <= 0 {
		c.DeadLetterCap = d.DeadLetterCap
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = d.MonitorInterval
	}
	return c
}

// Stats is the processor health snapshot.
type Stats struct {
	QueueDepth          int     `json:"queue_depth"`
	Workers             int     `json:"worker_count"`
	ProcessingCount     int     `json:"processing_count"`
	TotalProcessed      int64   `json:"total_processed"`
	TotalFailed         int64   `json:"total_failed"`
	TotalRetries        int64   `json:"total_retries"`
	AverageProcessingMs float64 `json:"average_processing_time_ms"`
	DeadLetterCount     int     `json:"dead_letter_count"`
}

// Processor runs a fixed pool of workers over a priority queue. Enqueue
// never blocks the caller; retries re-enter the queue after an exponential
// backoff, and tasks that exhaust the budget land on a capped dead-letter
// list.
type Processor struct {
	cfg    Config
	router *Router
	logger *zap.Logger
	now    func() time.Time

	queues   [3]chan *domain.Task
	notifier Notifier
	sinks    []DeadLetterSink

	mu              sync.Mutex
	deadLetters     []domain.DeadLetterRecord
	processingCount int
	totalProcessed  int64
	totalFailed     int64
	totalRetries    int64
	avgProcessing   time.Duration
}

type Option func(*Processor)

func WithNotifier(n Notifier) Option {
	return func(p *Processor) { p.notifier = n }
}

func WithDeadLetterSinks(sinks ...DeadLetterSink) Option {
	return func(p *Processor) { p.sinks = append(p.sinks, sinks...) }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

func New(cfg Config, router *Router, logger *zap.Logger, opts ...Option) *Processor {
	cfg = cfg.withDefaults()
	p := &Processor{
		cfg:    cfg,
		router: router,
		logger: logger,
		now:    time.Now,
	}
	for i := range p.queues {
		p.queues[i] = make(chan *domain.Task, cfg.QueueSize)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterHandler wires a handler for an event kind. Called at startup by
// the composition root.
func (p *Processor) RegisterHandler(kind domain.EventKind, handler HandlerFunc) {
	p.router.Register(kind, handler)
}

// Enqueue adds an admitted event to the queue and returns immediately. A
// full queue rejects with ErrQueueFull rather than blocking the delivery
// path.
func (p *Processor) Enqueue(ev *domain.InboundEvent, priority domain.Priority) error {
	task := domain.NewTask(ev, priority)
	task.QueuedAt = p.now()

	select {
	case p.queue(priority) <- task:
	default:
		return domain.ErrQueueFull
	}

	p.logger.Debug("event queued for processing",
		zap.String("event_id", ev.ID),
		zap.String("priority", priority.String()),
		zap.Int("queue_depth", p.depth()))
	return nil
}

func (p *Processor) queue(priority domain.Priority) chan *domain.Task {
	if priority < domain.PriorityLow || priority > domain.PriorityHigh {
		priority = domain.PriorityNormal
	}
	return p.queues[priority]
}

func (p *Processor) depth() int {
	return len(p.queues[0]) + len(p.queues[1]) + len(p.queues[2])
}

// Run starts the workers and the monitoring loop and blocks until ctx is
// cancelled. Workers finish their in-flight task on shutdown; queued but
// unstarted tasks are dropped, which is acceptable under the at-least-once
// delivery contract.
func (p *Processor) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			p.workerLoop(ctx, workerID)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.monitorLoop(ctx)
	}()

	p.logger.Info("background processor started", zap.Int("workers", p.cfg.Workers))
	wg.Wait()
	p.logger.Info("background processor stopped")
}

func (p *Processor) workerLoop(ctx context.Context, workerID int) {
	logger := p.logger.With(zap.Int("worker", workerID))
	logger.Info("worker started")
	defer logger.Info("worker stopped")

	for {
		task, ok := p.dequeue(ctx)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		p.process(ctx, task, logger)
	}
}

// dequeue prefers higher priorities and polls with a short timeout so
// shutdown is observed promptly even on an idle queue.
func (p *Processor) dequeue(ctx context.Context) (*domain.Task, bool) {
	select {
	case task := <-p.queues[domain.PriorityHigh]:
		return task, true
	default:
	}
	select {
	case task := <-p.queues[domain.PriorityHigh]:
		return task, true
	case task := <-p.queues[domain.PriorityNormal]:
		return task, true
	case task := <-p.queues[domain.PriorityLow]:
		return task, true
	case <-ctx.Done():
		return nil, false
	case <-time.After(p.cfg.PollInterval):
		return nil, false
	}
}

func (p *Processor) process(ctx context.Context, task *domain.Task, logger *zap.Logger) {
	task.Status = domain.TaskStatusProcessing
	task.StartedAt = p.now()
	task.Attempt++

	p.mu.Lock()
	p.processingCount++
	p.mu.Unlock()

	// Shutdown stops workers from pulling new tasks but lets the in-flight
	// dispatch run to its own timeout, so the handler context is detached
	// from the run context's cancellation.
	handlerCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.HandlerTimeout)
	err := p.router.Dispatch(handlerCtx, task.Event)
	cancel()

	p.mu.Lock()
	p.processingCount--
	p.mu.Unlock()

	if err == nil {
		p.complete(task, logger)
		return
	}
	p.handleFailure(ctx, task, err, logger)
}

func (p *Processor) complete(task *domain.Task, logger *zap.Logger) {
	task.Status = domain.TaskStatusCompleted
	task.CompletedAt = p.now()
	elapsed := task.CompletedAt.Sub(task.StartedAt)

	p.mu.Lock()
	p.totalProcessed++
	// Incremental mean; a full histogram is not worth the bookkeeping here.
	p.avgProcessing += (elapsed - p.avgProcessing) / time.Duration(p.totalProcessed)
	p.mu.Unlock()

	tasksProcessed.Inc()
	logger.Info("event processed",
		zap.String("event_id", task.Event.ID),
		zap.Int("attempt", task.Attempt),
		zap.Duration("elapsed", elapsed))
}

func (p *Processor) handleFailure(ctx context.Context, task *domain.Task, err error, logger *zap.Logger) {
	task.RecordError(err, p.now())

	// Only transient failures earn a retry: permanent errors and cancelled
	// downstream work cannot improve on a second pass.
	if !domain.IsTransient(err) || task.Attempt > p.cfg.MaxRetries {
		p.deadLetter(ctx, task, logger)
		return
	}

	task.Status = domain.TaskStatusRetrying
	delay := p.Backoff(task.Attempt)

	p.mu.Lock()
	p.totalRetries++
	p.mu.Unlock()
	taskRetries.Inc()

	logger.Warn("event processing failed, scheduling retry",
		zap.String("event_id", task.Event.ID),
		zap.Int("attempt", task.Attempt),
		zap.Duration("backoff", delay),
		zap.Error(err))

	time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		task.Status = domain.TaskStatusQueued
		select {
		case p.queue(task.Priority) <- task:
		default:
			p.deadLetter(ctx, task, logger)
		}
	})
}

// Backoff returns the delay before retrying the given attempt:
// base^attempt units, pure exponential, unjittered.
func (p *Processor) Backoff(attempt int) time.Duration {
	return time.Duration(math.Pow(p.cfg.BackoffBase, float64(attempt)) * float64(p.cfg.BackoffUnit))
}

func (p *Processor) deadLetter(ctx context.Context, task *domain.Task, logger *zap.Logger) {
	task.Status = domain.TaskStatusFailed
	rec := domain.NewDeadLetterRecord(task, p.now())

	p.mu.Lock()
	p.totalFailed++
	p.deadLetters = append(p.deadLetters, rec)
	if len(p.deadLetters) > p.cfg.DeadLetterCap {
		p.deadLetters = p.deadLetters[len(p.deadLetters)-p.cfg.DeadLetterCap:]
	}
	p.mu.Unlock()

	tasksFailed.Inc()
	logger.Error("event dead-lettered",
		zap.String("event_id", task.Event.ID),
		zap.Int("attempts", task.Attempt))

	for _, sink := range p.sinks {
		if err := sink.Archive(ctx, rec); err != nil {
			logger.Error("dead-letter sink failed", zap.Error(err))
		}
	}
	if p.notifier != nil {
		p.notifier.NotifyFailure(ctx, task.Event)
	}
}

// DeadLetters returns a snapshot of the retained terminal records, oldest
// first.
func (p *Processor) DeadLetters() []domain.DeadLetterRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.DeadLetterRecord, len(p.deadLetters))
	copy(out, p.deadLetters)
	return out
}

func (p *Processor) Stats() Stats {
	depth := p.depth()
	queueDepth.Set(float64(depth))

	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		QueueDepth:          depth,
		Workers:             p.cfg.Workers,
		ProcessingCount:     p.processingCount,
		TotalProcessed:      p.totalProcessed,
		TotalFailed:         p.totalFailed,
		TotalRetries:        p.totalRetries,
		AverageProcessingMs: float64(p.avgProcessing) / float64(time.Millisecond),
		DeadLetterCount:     len(p.deadLetters),
	}
}

func (p *Processor) monitorLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.Stats()
			if stats.QueueDepth > 10 {
				p.logger.Warn("queue backup detected", zap.Int("queue_depth", stats.QueueDepth))
			}
		}
	}
}
