package v1

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hrygo/spansum/ai/summarize"
	v1pb "github.com/hrygo/spansum/proto/api/v1"
)

// Summarizer runs one summarization request. *summarize.Service implements it.
type Summarizer interface {
	Summarize(ctx context.Context, req *summarize.Request) (*summarize.Response, error)
}

// SummarizerService implements the AbstractiveSummarizer gRPC service.
type SummarizerService struct {
	Summarizer Summarizer
}

var _ v1pb.AbstractiveSummarizerServer = (*SummarizerService)(nil)

// AbstractiveSummarize returns one summary per distinct target id, in request order.
func (s *SummarizerService) AbstractiveSummarize(ctx context.Context, req *v1pb.SummarizationRequest) (*v1pb.Summaries, error) {
	if req == nil {
		return nil, status.Errorf(codes.InvalidArgument, "request is required")
	}

	resp, err := s.Summarizer.Summarize(ctx, convertRequestFromPb(req))
	if err != nil {
		return nil, statusFromError(err)
	}
	return convertSummariesToPb(resp), nil
}

func convertRequestFromPb(req *v1pb.SummarizationRequest) *summarize.Request {
	targets := make([]summarize.Target, 0, len(req.Targets))
	for _, t := range req.Targets {
		if t == nil {
			continue
		}
		targets = append(targets, summarize.Target{
			ID:    t.TargetUUID,
			Start: t.SpanStart,
			End:   t.SpanEnd,
		})
	}
	return &summarize.Request{
		Document: req.Document,
		Targets:  targets,
	}
}

func convertSummariesToPb(resp *summarize.Response) *v1pb.Summaries {
	out := &v1pb.Summaries{Summaries: make([]*v1pb.Summary, 0, len(resp.Summaries))}
	for _, e := range resp.Summaries {
		out.Summaries = append(out.Summaries, &v1pb.Summary{
			TargetUUID: e.TargetID,
			Summary:    e.Summary,
		})
	}
	return out
}

// statusFromError maps pipeline errors to gRPC status codes. When every target
// failed for the same reason the error wraps that reason, so it is checked
// before ErrAllTargetsFailed.
func statusFromError(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, summarize.ErrMalformedDocument):
		code = codes.InvalidArgument
	case errors.Is(err, summarize.ErrSchedulerClosed):
		code = codes.Unavailable
	case errors.Is(err, summarize.ErrQueueSaturated):
		code = codes.ResourceExhausted
	case errors.Is(err, summarize.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, summarize.ErrCanceled), errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, summarize.ErrInvalidSpan):
		code = codes.InvalidArgument
	case errors.Is(err, summarize.ErrGenerationFailed):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}
