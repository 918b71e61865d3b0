// Package summarize runs the end-to-end pipeline for one summarization
// request: preprocessing, span resolution, batched generation and assembly.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hrygo/spansum/ai/assembler"
	"github.com/hrygo/spansum/ai/document"
	"github.com/hrygo/spansum/ai/generator"
	"github.com/hrygo/spansum/ai/observability/logging"
	"github.com/hrygo/spansum/ai/observability/tracing"
	"github.com/hrygo/spansum/ai/scheduler"
	"github.com/hrygo/spansum/ai/span"
)

// Target is an entity of interest in the request. Start and End are code point
// offsets into the document, End exclusive.
type Target struct {
	ID    uint64
	Start uint32
	End   uint32
}

// Request is one summarization request.
type Request struct {
	Document string
	Targets  []Target
}

// Response holds the summaries in request order plus per-target detail.
type Response struct {
	RequestID string
	Summaries []assembler.Entry
	Results   []assembler.TargetResult
}

// Submitter accepts generation work. *scheduler.Scheduler implements it.
type Submitter interface {
	Submit(ctx context.Context, requestID string, items []scheduler.Item) (<-chan scheduler.Result, error)
}

// Recorder receives request-level measurements.
type Recorder interface {
	RecordRequest(duration time.Duration, targets int, err error)
	RecordTargetOutcome(status assembler.Status)
}

type nopRecorder struct{}

func (nopRecorder) RecordRequest(time.Duration, int, error) {}
func (nopRecorder) RecordTargetOutcome(assembler.Status)    {}

// Config represents pipeline configuration.
type Config struct {
	Document           document.Options
	ContextSentences   int
	MaxContextChars    int
	RequestTimeout     time.Duration
	FailurePolicy      assembler.Policy
	ResolveConcurrency int
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		Document:         document.Options{MaxChars: document.DefaultMaxChars},
		ContextSentences: 1,
		RequestTimeout:   60 * time.Second,
		FailurePolicy:    assembler.PolicyOmit,
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// Service summarizes requests. It keeps no per-request state, so one Service
// serves all requests concurrently.
type Service struct {
	cfg       Config
	resolver  *span.Resolver
	submitter Submitter
	logger    *slog.Logger
	recorder  Recorder
}

// NewService creates a Service that sends generation work to submitter.
func NewService(submitter Submitter, cfg Config, opts ...Option) *Service {
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = assembler.PolicyOmit
	}
	s := &Service{
		cfg:       cfg,
		resolver:  span.NewResolver(cfg.ContextSentences, cfg.MaxContextChars),
		submitter: submitter,
		logger:    slog.Default(),
		recorder:  nopRecorder{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Summarize produces one summary per distinct target id.
//
// Request-level failures (malformed document, saturated queue, closed
// scheduler) return a nil Response. When every target fails, the Response is
// returned together with an error wrapping ErrAllTargetsFailed.
func (s *Service) Summarize(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	requestID := uuid.NewString()
	ctx, logger := logging.WithRequestID(ctx, s.logger, requestID)
	trace := tracing.NewTrace("stages", logger.Enabled(ctx, slog.LevelDebug))
	ctx = tracing.ToContext(ctx, trace)

	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	targets := 0
	if req != nil {
		targets = len(req.Targets)
	}
	resp, err := s.summarize(ctx, requestID, logger, req)
	duration := time.Since(start)
	s.recorder.RecordRequest(duration, targets, err)
	logger.Debug("Summarize: stage timings", trace.Attr())

	if err != nil {
		logger.Warn("Summarize: request failed",
			"targets", targets,
			"duration_ms", duration.Milliseconds(),
			"error", err)
		return resp, err
	}
	logger.Info("Summarize: request completed",
		"targets", targets,
		"summaries", len(resp.Summaries),
		"duration_ms", duration.Milliseconds())
	return resp, nil
}

func (s *Service) summarize(ctx context.Context, requestID string, logger *slog.Logger, req *Request) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrMalformedDocument)
	}
	trace := tracing.FromContext(ctx)

	end := trace.Start("preprocess")
	doc, err := document.Preprocess(req.Document, s.cfg.Document)
	end(err)
	if err != nil {
		return nil, err
	}

	end = trace.Start("resolve")
	entities, flat := groupMentions(req.Targets)
	resolved, err := s.resolver.ResolveAll(ctx, doc, flat, s.cfg.ResolveConcurrency)
	end(err)
	if err != nil {
		return nil, contextError(err)
	}

	ids := make([]uint64, len(entities))
	for i, e := range entities {
		ids[i] = e.id
	}
	asm, err := assembler.New(requestID, ids, s.cfg.FailurePolicy)
	if err != nil {
		return nil, err
	}

	inputs := make([]span.ConditionedInput, 0, len(entities))
	for _, e := range entities {
		in, err := representative(e, resolved)
		if err != nil {
			logger.Debug("Summarize: invalid target", "target_id", e.id, "error", err)
			if err := asm.Record(e.id, assembler.Outcome{Status: assembler.StatusInvalid, Err: err}); err != nil {
				return nil, err
			}
			continue
		}
		if err := asm.Advance(e.id, assembler.StatusValidated); err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	if len(inputs) > 0 {
		err := trace.Run(ctx, "generate", func(ctx context.Context) error {
			return s.generate(ctx, requestID, asm, inputs)
		})
		if err != nil {
			return nil, err
		}
	}

	end = trace.Start("assemble")
	out, err := asm.Response()
	end(err)
	if out == nil {
		return nil, err
	}
	for _, r := range out.Results {
		s.recorder.RecordTargetOutcome(r.Status)
		if r.Err != nil {
			logger.Debug("Summarize: target failed",
				"target_id", r.TargetID,
				"status", r.Status.String(),
				"error", r.Err)
		}
	}
	return &Response{RequestID: requestID, Summaries: out.Entries, Results: out.Results}, err
}

// generate submits one item per input and records every outcome in asm. It
// returns an error only when nothing could be admitted.
func (s *Service) generate(ctx context.Context, requestID string, asm *assembler.Assembler, inputs []span.ConditionedInput) error {
	items := make([]scheduler.Item, len(inputs))
	mentions := make(map[uint64]string, len(inputs))
	for i, in := range inputs {
		items[i] = scheduler.Item{
			TargetID: in.TargetID,
			Prompt:   generator.RenderPrompt(in.Mention, otherMentions(in, inputs), in.Context),
		}
		mentions[in.TargetID] = in.Mention
	}

	results, err := s.submitter.Submit(ctx, requestID, items)
	if err != nil {
		return err
	}
	for _, it := range items {
		if err := asm.Advance(it.TargetID, assembler.StatusBatched); err != nil {
			return err
		}
	}

	for received := 0; received < len(items); received++ {
		select {
		case r := <-results:
			if err := asm.Record(r.TargetID, outcome(mentions[r.TargetID], r)); err != nil {
				return err
			}
		case <-ctx.Done():
			cause := contextError(ctx.Err())
			for _, id := range asm.Pending() {
				if err := asm.Record(id, assembler.Outcome{Status: assembler.StatusDeadlineExceeded, Err: cause}); err != nil {
					return err
				}
			}
			return nil
		}
	}
	return nil
}

func outcome(mention string, r scheduler.Result) assembler.Outcome {
	switch {
	case r.Err == nil:
		summary, err := generator.ParseSummary(mention, r.Output)
		if err != nil {
			return assembler.Outcome{Status: assembler.StatusGenerationFailed, Err: fmt.Errorf("%w: %w", ErrGenerationFailed, err)}
		}
		return assembler.Outcome{Status: assembler.StatusSummarized, Summary: summary}
	case errors.Is(r.Err, ErrQueueSaturated), errors.Is(r.Err, ErrSchedulerClosed):
		// A target cut off by shutdown was never admitted, same as a full queue.
		return assembler.Outcome{Status: assembler.StatusQueueSaturated, Err: r.Err}
	case errors.Is(r.Err, ErrDeadlineExceeded), errors.Is(r.Err, ErrCanceled):
		return assembler.Outcome{Status: assembler.StatusDeadlineExceeded, Err: r.Err}
	default:
		return assembler.Outcome{Status: assembler.StatusGenerationFailed, Err: r.Err}
	}
}

func contextError(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return fmt.Errorf("%w: %w", ErrDeadlineExceeded, err)
}
