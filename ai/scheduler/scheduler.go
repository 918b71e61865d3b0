// Package scheduler funnels generation work from all requests into bounded
// batches for one shared Generator.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hrygo/spansum/ai/generator"
)

var (
	// ErrQueueSaturated means admission waited longer than AdmissionTimeout.
	ErrQueueSaturated = errors.New("queue saturated")
	// ErrGenerationFailed wraps a wholesale generator failure for every entry of the batch.
	ErrGenerationFailed = errors.New("generation failed")
	// ErrDeadlineExceeded marks entries whose request deadline passed before dispatch.
	ErrDeadlineExceeded = errors.New("deadline exceeded before dispatch")
	// ErrCanceled marks entries whose request was canceled before dispatch.
	ErrCanceled = errors.New("request canceled before dispatch")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("scheduler closed")
)

// Item is one unit of generation work.
type Item struct {
	TargetID uint64
	Prompt   string
}

// Result is the outcome of one Item.
type Result struct {
	RequestID string
	TargetID  uint64
	Output    string
	Err       error
}

// Config represents scheduler configuration.
type Config struct {
	MaxBatchSize     int           // default: 8
	MaxBatchWait     time.Duration // default: 50ms; 0 dispatches whatever is queued
	QueueCapacity    int           // default: 1024
	AdmissionTimeout time.Duration // default: 2s
	MaxInFlight      int           // default: 1
	BatchesPerSecond float64       // 0 disables pacing
	GenerateTimeout  time.Duration // 0 leaves the deadline to the generator
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		MaxBatchSize:     8,
		MaxBatchWait:     50 * time.Millisecond,
		QueueCapacity:    1024,
		AdmissionTimeout: 2 * time.Second,
		MaxInFlight:      1,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = d.MaxBatchSize
	}
	if c.MaxBatchWait < 0 {
		c.MaxBatchWait = 0
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = d.QueueCapacity
	}
	if c.AdmissionTimeout <= 0 {
		c.AdmissionTimeout = d.AdmissionTimeout
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	return c
}

// Recorder receives scheduler measurements.
type Recorder interface {
	RecordQueueDepth(depth int)
	RecordAdmissionWait(wait time.Duration)
	RecordBatch(size int, duration time.Duration, err error)
	RecordExpired(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordQueueDepth(int)                  {}
func (nopRecorder) RecordAdmissionWait(time.Duration)     {}
func (nopRecorder) RecordBatch(int, time.Duration, error) {}
func (nopRecorder) RecordExpired(int)                     {}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Scheduler) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Admitted   int64
	Saturated  int64
	Batches    int64
	Dispatched int64
	Expired    int64
	Failed     int64
	QueueDepth int
}

type entry struct {
	ctx       context.Context
	requestID string
	item      Item
	out       chan<- Result
}

func (e *entry) resolve(output string, err error) {
	e.out <- Result{RequestID: e.requestID, TargetID: e.item.TargetID, Output: output, Err: err}
}

// Scheduler owns the shared Generator. All generation goes through one bounded
// FIFO queue drained by a single dispatcher goroutine.
// Scheduler 持有共享的生成器，所有请求通过同一个有界队列批量调度。
type Scheduler struct {
	gen      generator.Generator
	cfg      Config
	logger   *slog.Logger
	recorder Recorder

	queue   chan *entry
	closing chan struct{}
	mu      sync.RWMutex // guards closed and sends on queue
	closed  bool
	once    sync.Once

	sem     *semaphore.Weighted
	limiter *rate.Limiter

	dispatcher sync.WaitGroup
	inflight   sync.WaitGroup

	admitted   atomic.Int64
	saturated  atomic.Int64
	batches    atomic.Int64
	dispatched atomic.Int64
	expired    atomic.Int64
	failed     atomic.Int64
}

// New creates a Scheduler and starts its dispatcher.
// New 创建调度器并启动后台分发协程。
func New(gen generator.Generator, cfg Config, opts ...Option) *Scheduler {
	cfg = cfg.withDefaults()
	s := &Scheduler{
		gen:      gen,
		cfg:      cfg,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		queue:    make(chan *entry, cfg.QueueCapacity),
		closing:  make(chan struct{}),
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
	}
	if cfg.BatchesPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.BatchesPerSecond), 1)
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dispatcher.Add(1)
	go s.dispatch()
	return s
}

// Submit admits items in order and returns a channel that receives exactly one
// Result per item, in completion order. The channel is buffered for the whole
// submission and is never closed.
//
// When the queue stays full for AdmissionTimeout, or ctx ends while waiting,
// the items not yet admitted resolve with that error on the channel. If no item
// was admitted the error is returned instead.
// Submit 按顺序入队；队列满时阻塞，超时返回 ErrQueueSaturated。
func (s *Scheduler) Submit(ctx context.Context, requestID string, items []Item) (<-chan Result, error) {
	out := make(chan Result, len(items))
	if len(items) == 0 {
		return out, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	var (
		timer    *time.Timer
		admitted int
		failure  error
	)
	for _, it := range items {
		e := &entry{ctx: ctx, requestID: requestID, item: it, out: out}

		select {
		case s.queue <- e:
			admitted++
			continue
		default:
		}

		if timer == nil {
			timer = time.NewTimer(s.cfg.AdmissionTimeout)
			defer timer.Stop()
		}
		start := time.Now()
		select {
		case s.queue <- e:
			admitted++
		case <-timer.C:
			failure = ErrQueueSaturated
		case <-ctx.Done():
			failure = expiredErr(ctx.Err())
		case <-s.closing:
			failure = ErrClosed
		}
		s.recorder.RecordAdmissionWait(time.Since(start))
		if failure != nil {
			break
		}
	}

	s.admitted.Add(int64(admitted))
	s.recorder.RecordQueueDepth(len(s.queue))
	if failure == nil {
		return out, nil
	}

	if errors.Is(failure, ErrQueueSaturated) {
		s.saturated.Add(int64(len(items) - admitted))
	}
	s.logger.Warn("Scheduler: admission stopped",
		"request_id", requestID,
		"admitted", admitted,
		"rejected", len(items)-admitted,
		"error", failure)

	if admitted == 0 {
		return nil, failure
	}
	for _, it := range items[admitted:] {
		out <- Result{RequestID: requestID, TargetID: it.TargetID, Err: failure}
	}
	return out, nil
}

// dispatch collects batches and hands them to flush until the queue is closed.
func (s *Scheduler) dispatch() {
	defer s.dispatcher.Done()

	for {
		e, ok := <-s.queue
		if !ok {
			return
		}
		batch, open := s.collect([]*entry{e})
		s.flush(batch)
		if !open {
			s.logger.Info("Scheduler: dispatcher stopped")
			return
		}
	}
}

// collect adds queued entries to batch until it is full or MaxBatchWait has
// passed since its first entry. It reports false once the queue is closed.
func (s *Scheduler) collect(batch []*entry) ([]*entry, bool) {
	var timeout <-chan time.Time
	if s.cfg.MaxBatchWait > 0 {
		t := time.NewTimer(s.cfg.MaxBatchWait)
		defer t.Stop()
		timeout = t.C
	}

	for len(batch) < s.cfg.MaxBatchSize {
		if timeout == nil {
			select {
			case e, ok := <-s.queue:
				if !ok {
					return batch, false
				}
				batch = append(batch, e)
			default:
				return batch, true
			}
			continue
		}

		select {
		case e, ok := <-s.queue:
			if !ok {
				return batch, false
			}
			batch = append(batch, e)
		case <-timeout:
			return batch, true
		}
	}
	return batch, true
}

// flush waits for pacing and an in-flight slot, drops expired entries, and
// runs the remaining ones as one generator call.
func (s *Scheduler) flush(batch []*entry) {
	if s.limiter != nil {
		_ = s.limiter.Wait(context.Background())
	}
	_ = s.sem.Acquire(context.Background(), 1)

	live := make([]*entry, 0, len(batch))
	expired := 0
	for _, e := range batch {
		if err := e.ctx.Err(); err != nil {
			s.expired.Add(1)
			e.resolve("", expiredErr(err))
			expired++
			continue
		}
		live = append(live, e)
	}
	if expired > 0 {
		s.recorder.RecordExpired(expired)
		s.logger.Debug("Scheduler: dropped expired entries", "count", expired)
	}
	s.recorder.RecordQueueDepth(len(s.queue))

	if len(live) == 0 {
		s.sem.Release(1)
		return
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer s.sem.Release(1)
		s.run(live)
	}()
}

func (s *Scheduler) run(batch []*entry) {
	ctx := context.Background()
	if s.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.GenerateTimeout)
		defer cancel()
	}

	prompts := make([]string, len(batch))
	for i, e := range batch {
		prompts[i] = e.item.Prompt
	}

	s.batches.Add(1)
	s.dispatched.Add(int64(len(batch)))
	s.logger.Debug("Scheduler: dispatching batch",
		"generator", s.gen.Name(),
		"batch_size", len(batch))

	start := time.Now()
	outputs, err := s.gen.Generate(ctx, prompts)
	if err == nil && len(outputs) != len(prompts) {
		err = fmt.Errorf("%s returned %d outputs for %d prompts", s.gen.Name(), len(outputs), len(prompts))
	}
	duration := time.Since(start)
	s.recorder.RecordBatch(len(batch), duration, err)

	if err != nil {
		s.failed.Add(int64(len(batch)))
		s.logger.Error("Scheduler: batch generation failed",
			"generator", s.gen.Name(),
			"batch_size", len(batch),
			"duration_ms", duration.Milliseconds(),
			"error", err)
		err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		for _, e := range batch {
			e.resolve("", err)
		}
		return
	}

	for i, e := range batch {
		e.resolve(outputs[i], nil)
	}
}

// Close stops admission, flushes queued entries, and waits for in-flight batches.
// Close 停止接收新任务，清空队列并等待进行中的批次完成。
func (s *Scheduler) Close(timeout time.Duration) error {
	s.once.Do(func() {
		close(s.closing)
		s.mu.Lock()
		s.closed = true
		close(s.queue)
		s.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.dispatcher.Wait()
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Scheduler: shutdown complete")
		return nil
	case <-time.After(timeout):
		s.logger.Warn("Scheduler: shutdown timeout", "queued", len(s.queue))
		return context.DeadlineExceeded
	}
}

// Stats returns a snapshot of the scheduler counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Admitted:   s.admitted.Load(),
		Saturated:  s.saturated.Load(),
		Batches:    s.batches.Load(),
		Dispatched: s.dispatched.Load(),
		Expired:    s.expired.Load(),
		Failed:     s.failed.Load(),
		QueueDepth: len(s.queue),
	}
}

// Generator returns the name of the generator behind the scheduler.
func (s *Scheduler) Generator() string {
	return s.gen.Name()
}

func expiredErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrDeadlineExceeded
	}
	return ErrCanceled
}
