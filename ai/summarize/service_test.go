package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/spansum/ai/assembler"
	"github.com/hrygo/spansum/ai/generator"
	"github.com/hrygo/spansum/ai/scheduler"
)

type generatorFunc func(ctx context.Context, prompts []string) ([]string, error)

func (f generatorFunc) Name() string { return "func" }

func (f generatorFunc) Generate(ctx context.Context, prompts []string) ([]string, error) {
	return f(ctx, prompts)
}

type submitterFunc func(ctx context.Context, requestID string, items []scheduler.Item) (<-chan scheduler.Result, error)

func (f submitterFunc) Submit(ctx context.Context, requestID string, items []scheduler.Item) (<-chan scheduler.Result, error) {
	return f(ctx, requestID, items)
}

type mockRecorder struct {
	mock.Mock
}

func (m *mockRecorder) RecordRequest(d time.Duration, targets int, err error) {
	m.Called(d, targets, err)
}

func (m *mockRecorder) RecordTargetOutcome(status assembler.Status) {
	m.Called(status)
}

func newService(t *testing.T, gen generator.Generator, cfg Config, opts ...Option) *Service {
	t.Helper()
	sched := scheduler.New(gen, scheduler.Config{MaxBatchSize: 4, MaxBatchWait: 5 * time.Millisecond, MaxInFlight: 2})
	t.Cleanup(func() { _ = sched.Close(time.Second) })
	return NewService(sched, cfg, opts...)
}

func summaries(resp *Response) map[uint64]string {
	out := make(map[uint64]string, len(resp.Summaries))
	for _, e := range resp.Summaries {
		out[e.TargetID] = e.Summary
	}
	return out
}

func TestSummarize_AliceBob(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 16, End: 19}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.RequestID)
	assert.Equal(t, []assembler.Entry{
		{TargetID: 1, Summary: "Alice ran fast."},
		{TargetID: 2, Summary: "Bob walked slow."},
	}, resp.Summaries)
}

func TestSummarize_OrderIndependence(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())
	doc := "Alice ran fast. Bob walked slow. Carol sat still."
	targets := []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 16, End: 19}, {ID: 3, Start: 33, End: 38}}
	reversed := []Target{targets[2], targets[1], targets[0]}

	a, err := svc.Summarize(context.Background(), &Request{Document: doc, Targets: targets})
	require.NoError(t, err)
	b, err := svc.Summarize(context.Background(), &Request{Document: doc, Targets: reversed})
	require.NoError(t, err)

	assert.Equal(t, summaries(a), summaries(b))
	assert.Equal(t, uint64(3), b.Summaries[0].TargetID)
}

func TestSummarize_InvalidSpanIsTargetLevel(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets: []Target{
			{ID: 1, Start: 10, End: 5},
			{ID: 2, Start: 16, End: 19},
			{ID: 3, Start: 0, End: 500},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []assembler.Entry{{TargetID: 2, Summary: "Bob walked slow."}}, resp.Summaries)

	require.Len(t, resp.Results, 3)
	assert.Equal(t, assembler.StatusInvalid, resp.Results[0].Status)
	assert.ErrorIs(t, resp.Results[0].Err, ErrInvalidSpan)
	assert.Equal(t, assembler.StatusInvalid, resp.Results[2].Status)
}

func TestSummarize_AllInvalid(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast.",
		Targets:  []Target{{ID: 1, Start: 9, End: 2}},
	})
	assert.ErrorIs(t, err, ErrAllTargetsFailed)
	assert.ErrorIs(t, err, ErrInvalidSpan)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Summaries)
}

func TestSummarize_MalformedDocument(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())

	for _, req := range []*Request{nil, {Document: "  \n "}} {
		resp, err := svc.Summarize(context.Background(), req)
		assert.ErrorIs(t, err, ErrMalformedDocument)
		assert.Nil(t, resp)
	}
}

func TestSummarize_NoTargets(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{Document: "Alice ran fast."})
	require.NoError(t, err)
	assert.Empty(t, resp.Summaries)
}

func TestSummarize_DuplicateIDsMerge(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())
	doc := "Putin spoke. Vladimir Putin left. Putin returned."

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: doc,
		Targets: []Target{
			{ID: 7, Start: 13, End: 27}, // Vladimir Putin
			{ID: 8, Start: 0, End: 0},
			{ID: 7, Start: 0, End: 5}, // Putin
			{ID: 7, Start: 34, End: 39}, // Putin
		},
	})
	require.NoError(t, err)
	require.Len(t, resp.Summaries, 2)
	assert.Equal(t, uint64(7), resp.Summaries[0].TargetID)
	// "Putin" is the most common mention; its first occurrence is the first sentence.
	assert.Equal(t, "Putin spoke.", resp.Summaries[0].Summary)
	assert.Equal(t, uint64(8), resp.Summaries[1].TargetID)
}

func TestSummarize_DuplicateIDsIgnoreInvalidMentions(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets:  []Target{{ID: 1, Start: 40, End: 50}, {ID: 1, Start: 16, End: 19}},
	})
	require.NoError(t, err)
	assert.Equal(t, []assembler.Entry{{TargetID: 1, Summary: "Bob walked slow."}}, resp.Summaries)
}

func TestSummarize_GenerationFailurePolicies(t *testing.T) {
	cause := errors.New("model unavailable")
	failing := generatorFunc(func(context.Context, []string) ([]string, error) { return nil, cause })
	req := &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 16, End: 19}},
	}

	tests := []struct {
		policy assembler.Policy
		want   []assembler.Entry
	}{
		{assembler.PolicyOmit, []assembler.Entry{}},
		{assembler.PolicyEmpty, []assembler.Entry{{TargetID: 1}, {TargetID: 2}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.FailurePolicy = tt.policy
			svc := newService(t, failing, cfg)

			resp, err := svc.Summarize(context.Background(), req)
			assert.ErrorIs(t, err, ErrAllTargetsFailed)
			assert.ErrorIs(t, err, ErrGenerationFailed)
			assert.ErrorIs(t, err, cause)
			require.NotNil(t, resp)
			assert.Equal(t, tt.want, resp.Summaries)
		})
	}
}

func TestSummarize_UnparseableOutput(t *testing.T) {
	gen := generatorFunc(func(_ context.Context, prompts []string) ([]string, error) {
		out := make([]string, len(prompts))
		for i, p := range prompts {
			if strings.HasPrefix(p, "[1] Bob") {
				out[i] = "[1] Bob:"
				continue
			}
			out[i] = "[1] Alice: a runner"
		}
		return out, nil
	})
	svc := newService(t, gen, DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 16, End: 19}},
	})
	require.NoError(t, err)
	assert.Equal(t, []assembler.Entry{{TargetID: 1, Summary: "a runner"}}, resp.Summaries)
	assert.Equal(t, assembler.StatusGenerationFailed, resp.Results[1].Status)
	assert.ErrorIs(t, resp.Results[1].Err, generator.ErrEmptySummary)
}

func TestSummarize_PromptListsOtherMentions(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	gen := generatorFunc(func(_ context.Context, prompts []string) ([]string, error) {
		mu.Lock()
		seen = append(seen, prompts...)
		mu.Unlock()
		return make([]string, len(prompts)), nil
	})
	svc := newService(t, gen, DefaultConfig())

	_, _ = svc.Summarize(context.Background(), &Request{
		Document: "Alice met Bob. Carol stayed home.\nDave was far away. Eve too.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 10, End: 13}, {ID: 3, Start: 53, End: 56}},
	})

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	for _, p := range seen {
		if strings.HasPrefix(p, "[1] Alice\n") {
			assert.True(t, strings.HasPrefix(p, "[1] Alice\n[2] Bob\ndocument: "), p)
			assert.NotContains(t, p, "[3]")
		}
	}
}

func TestSummarize_QueueSaturated(t *testing.T) {
	sub := submitterFunc(func(context.Context, string, []scheduler.Item) (<-chan scheduler.Result, error) {
		return nil, scheduler.ErrQueueSaturated
	})
	svc := NewService(sub, DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}},
	})
	assert.ErrorIs(t, err, ErrQueueSaturated)
	assert.Nil(t, resp)
}

func TestSummarize_PartialSaturation(t *testing.T) {
	sub := submitterFunc(func(_ context.Context, requestID string, items []scheduler.Item) (<-chan scheduler.Result, error) {
		ch := make(chan scheduler.Result, len(items))
		ch <- scheduler.Result{RequestID: requestID, TargetID: items[0].TargetID, Output: "[1] Alice: admitted"}
		for _, it := range items[1:] {
			ch <- scheduler.Result{RequestID: requestID, TargetID: it.TargetID, Err: scheduler.ErrQueueSaturated}
		}
		return ch, nil
	})
	svc := NewService(sub, DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 16, End: 19}},
	})
	require.NoError(t, err)
	assert.Equal(t, []assembler.Entry{{TargetID: 1, Summary: "admitted"}}, resp.Summaries)
	assert.Equal(t, assembler.StatusQueueSaturated, resp.Results[1].Status)
}

func TestSummarize_ClosedMidAdmission(t *testing.T) {
	sub := submitterFunc(func(_ context.Context, requestID string, items []scheduler.Item) (<-chan scheduler.Result, error) {
		ch := make(chan scheduler.Result, len(items))
		ch <- scheduler.Result{RequestID: requestID, TargetID: items[0].TargetID, Output: "[1] Alice: admitted"}
		for _, it := range items[1:] {
			ch <- scheduler.Result{RequestID: requestID, TargetID: it.TargetID, Err: scheduler.ErrClosed}
		}
		return ch, nil
	})
	svc := NewService(sub, DefaultConfig())

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 16, End: 19}},
	})
	require.NoError(t, err)
	assert.Equal(t, []assembler.Entry{{TargetID: 1, Summary: "admitted"}}, resp.Summaries)
	assert.Equal(t, assembler.StatusQueueSaturated, resp.Results[1].Status)
	assert.ErrorIs(t, resp.Results[1].Err, ErrSchedulerClosed)
}

func TestSummarize_RequestTimeout(t *testing.T) {
	sub := submitterFunc(func(_ context.Context, _ string, items []scheduler.Item) (<-chan scheduler.Result, error) {
		return make(chan scheduler.Result, len(items)), nil
	})
	cfg := DefaultConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	svc := NewService(sub, cfg)

	resp, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast. Bob walked slow.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 16, End: 19}},
	})
	assert.ErrorIs(t, err, ErrAllTargetsFailed)
	assert.ErrorIs(t, err, ErrDeadlineExceeded)
	require.NotNil(t, resp)
	for _, r := range resp.Results {
		assert.Equal(t, assembler.StatusDeadlineExceeded, r.Status)
	}
}

func TestSummarize_ConcurrentRequestsStayIsolated(t *testing.T) {
	svc := newService(t, generator.NewExtractive(), DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			name := fmt.Sprintf("Person%02d", i)
			doc := name + " works hard. Nobody else here."
			resp, err := svc.Summarize(context.Background(), &Request{
				Document: doc,
				Targets:  []Target{{ID: uint64(i), Start: 0, End: uint32(len(name))}},
			})
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, []assembler.Entry{{TargetID: uint64(i), Summary: name + " works hard."}}, resp.Summaries)
		}()
	}
	wg.Wait()
}

func TestSummarize_RecordsMetrics(t *testing.T) {
	rec := &mockRecorder{}
	rec.On("RecordRequest", mock.Anything, 2, nil).Once()
	rec.On("RecordTargetOutcome", assembler.StatusSummarized).Once()
	rec.On("RecordTargetOutcome", assembler.StatusInvalid).Once()

	svc := newService(t, generator.NewExtractive(), DefaultConfig(), WithRecorder(rec))
	_, err := svc.Summarize(context.Background(), &Request{
		Document: "Alice ran fast.",
		Targets:  []Target{{ID: 1, Start: 0, End: 5}, {ID: 2, Start: 3, End: 1}},
	})
	require.NoError(t, err)
	rec.AssertExpectations(t)
}
