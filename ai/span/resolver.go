// Package span maps target character spans onto sentence-aligned context windows.
package span

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hrygo/spansum/ai/document"
)

// ErrInvalidSpan marks a target whose span cannot be resolved against the document.
var ErrInvalidSpan = errors.New("invalid span")

// Target is an entity of interest: an id and a code point span in the document.
type Target struct {
	ID    uint64
	Start int
	End   int
}

// Span returns the target span as a range.
func (t Target) Span() document.Range {
	return document.Range{Start: t.Start, End: t.End}
}

// ConditionedInput is the context derived for one target.
type ConditionedInput struct {
	TargetID uint64
	Span     document.Range
	// Core is the smallest run of whole sentences containing Span.
	Core document.Range
	// Window is Core expanded by the context budget.
	Window  document.Range
	Mention string
	Context string
}

// Resolution pairs a target with its resolved input or the reason it was rejected.
type Resolution struct {
	Target Target
	Input  ConditionedInput
	Err    error
}

// Resolver snaps spans to sentences and expands them into context windows.
type Resolver struct {
	contextSentences int
	maxContextChars  int
}

// NewResolver creates a Resolver that adds up to contextSentences sentences on each
// side of a span. maxContextChars > 0 caps the window length; the sentences
// containing the span itself are never cut.
func NewResolver(contextSentences, maxContextChars int) *Resolver {
	if contextSentences < 0 {
		contextSentences = 0
	}
	if maxContextChars < 0 {
		maxContextChars = 0
	}
	return &Resolver{
		contextSentences: contextSentences,
		maxContextChars:  maxContextChars,
	}
}

// Resolve derives the conditioned input for t.
func (r *Resolver) Resolve(doc *document.Document, t Target) (ConditionedInput, error) {
	n := doc.Len()
	switch {
	case t.Start < 0 || t.End < 0:
		return ConditionedInput{}, fmt.Errorf("%w: negative bounds [%d, %d)", ErrInvalidSpan, t.Start, t.End)
	case t.Start > t.End:
		return ConditionedInput{}, fmt.Errorf("%w: start %d is after end %d", ErrInvalidSpan, t.Start, t.End)
	case t.End > n:
		return ConditionedInput{}, fmt.Errorf("%w: end %d exceeds document length %d", ErrInvalidSpan, t.End, n)
	}

	first := doc.SentenceAt(t.Start)
	if first < 0 {
		return ConditionedInput{}, fmt.Errorf("%w: no sentence contains position %d", ErrInvalidSpan, t.Start)
	}
	last := first
	if t.End > t.Start {
		last = doc.SentenceAt(t.End - 1)
	}

	sentences := doc.Sentences()
	lo, hi := r.expand(sentences, first, last)

	core := document.Range{Start: sentences[first].Start, End: sentences[last].End}
	window := document.Range{Start: sentences[lo].Start, End: sentences[hi].End}
	return ConditionedInput{
		TargetID: t.ID,
		Span:     t.Span(),
		Core:     core,
		Window:   window,
		Mention:  doc.Slice(t.Start, t.End),
		Context:  doc.SliceRange(window),
	}, nil
}

// expand widens [first, last] by the sentence budget, then trims the outermost
// sentences, farther side first, until the window fits maxContextChars.
func (r *Resolver) expand(sentences []document.Range, first, last int) (int, int) {
	lo := max(0, first-r.contextSentences)
	hi := min(len(sentences)-1, last+r.contextSentences)
	if r.maxContextChars == 0 {
		return lo, hi
	}

	for sentences[hi].End-sentences[lo].Start > r.maxContextChars {
		left, right := first-lo, hi-last
		switch {
		case left == 0 && right == 0:
			return lo, hi
		case left >= right:
			lo++
		default:
			hi--
		}
	}
	return lo, hi
}

// ResolveAll resolves targets in parallel. Results keep the order of targets;
// per-target failures are reported in Resolution.Err and do not stop the others.
func (r *Resolver) ResolveAll(ctx context.Context, doc *document.Document, targets []Target, limit int) ([]Resolution, error) {
	out := make([]Resolution, len(targets))
	if len(targets) == 0 {
		return out, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	// One goroutine per chunk of targets.
	const chunk = 64
	for start := 0; start < len(targets); start += chunk {
		end := min(start+chunk, len(targets))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				in, err := r.Resolve(doc, targets[i])
				out[i] = Resolution{Target: targets[i], Input: in, Err: err}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
