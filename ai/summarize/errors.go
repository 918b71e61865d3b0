package summarize

import (
	"github.com/hrygo/spansum/ai/assembler"
	"github.com/hrygo/spansum/ai/document"
	"github.com/hrygo/spansum/ai/scheduler"
	"github.com/hrygo/spansum/ai/span"
)

// Errors surfaced by Summarize. Request-level errors are returned directly;
// target-level errors appear in Response.Results.
var (
	ErrMalformedDocument = document.ErrMalformed
	ErrInvalidSpan       = span.ErrInvalidSpan
	ErrQueueSaturated    = scheduler.ErrQueueSaturated
	ErrGenerationFailed  = scheduler.ErrGenerationFailed
	ErrDeadlineExceeded  = scheduler.ErrDeadlineExceeded
	ErrCanceled          = scheduler.ErrCanceled
	ErrSchedulerClosed   = scheduler.ErrClosed
	ErrAllTargetsFailed  = assembler.ErrAllTargetsFailed
)
