package assembler

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errCause = errors.New("model crashed")

func summarize(t *testing.T, a *Assembler, id uint64, summary string) {
	t.Helper()
	require.NoError(t, a.Advance(id, StatusValidated))
	require.NoError(t, a.Advance(id, StatusBatched))
	require.NoError(t, a.Record(id, Outcome{Status: StatusSummarized, Summary: summary}))
}

func TestAssembler_OrderIndependentOfCompletion(t *testing.T) {
	a, err := New("req", []uint64{3, 1, 2}, PolicyOmit)
	require.NoError(t, err)

	summarize(t, a, 2, "two")
	summarize(t, a, 3, "three")
	assert.False(t, a.Done())
	assert.Equal(t, []uint64{1}, a.Pending())
	summarize(t, a, 1, "one")
	assert.True(t, a.Done())

	resp, err := a.Response()
	require.NoError(t, err)
	assert.Equal(t, "req", resp.RequestID)
	assert.Equal(t, []Entry{{3, "three"}, {1, "one"}, {2, "two"}}, resp.Entries)
	for _, r := range resp.Results {
		assert.Equal(t, StatusReturned, mustStatus(t, a, r.TargetID))
		assert.Equal(t, StatusSummarized, r.Status)
	}
}

func mustStatus(t *testing.T, a *Assembler, id uint64) Status {
	t.Helper()
	s, ok := a.Status(id)
	require.True(t, ok)
	return s
}

func TestAssembler_FailurePolicy(t *testing.T) {
	build := func(policy Policy) *Response {
		a, err := New("req", []uint64{10, 20, 30}, policy)
		require.NoError(t, err)
		summarize(t, a, 10, "ten")
		require.NoError(t, a.Record(20, Outcome{Status: StatusInvalid, Err: errors.New("bad span")}))
		require.NoError(t, a.Advance(30, StatusValidated))
		require.NoError(t, a.Advance(30, StatusBatched))
		require.NoError(t, a.Record(30, Outcome{Status: StatusGenerationFailed, Err: errCause}))
		resp, err := a.Response()
		require.NoError(t, err)
		return resp
	}

	omit := build(PolicyOmit)
	assert.Equal(t, []Entry{{10, "ten"}}, omit.Entries)
	require.Len(t, omit.Results, 3)
	assert.Equal(t, StatusInvalid, omit.Results[1].Status)
	assert.ErrorIs(t, omit.Results[2].Err, errCause)

	empty := build(PolicyEmpty)
	assert.Equal(t, []Entry{{10, "ten"}, {20, ""}, {30, ""}}, empty.Entries)
}

func TestAssembler_AllFailedSameCause(t *testing.T) {
	a, err := New("req", []uint64{1, 2}, PolicyOmit)
	require.NoError(t, err)
	for _, id := range []uint64{1, 2} {
		require.NoError(t, a.Advance(id, StatusValidated))
		require.NoError(t, a.Record(id, Outcome{Status: StatusDeadlineExceeded, Err: errCause}))
	}

	resp, err := a.Response()
	assert.ErrorIs(t, err, ErrAllTargetsFailed)
	assert.ErrorIs(t, err, errCause)
	require.NotNil(t, resp)
	assert.Empty(t, resp.Entries)
}

func TestAssembler_AllFailedMixedCauses(t *testing.T) {
	a, err := New("req", []uint64{1, 2}, PolicyOmit)
	require.NoError(t, err)
	require.NoError(t, a.Record(1, Outcome{Status: StatusInvalid, Err: errors.New("bad span")}))
	require.NoError(t, a.Advance(2, StatusValidated))
	require.NoError(t, a.Record(2, Outcome{Status: StatusQueueSaturated, Err: errCause}))

	_, err = a.Response()
	assert.ErrorIs(t, err, ErrAllTargetsFailed)
	assert.NotErrorIs(t, err, errCause)
	assert.Contains(t, err.Error(), "INVALID=1")
}

func TestAssembler_RejectsBadRecords(t *testing.T) {
	a, err := New("req", []uint64{1}, PolicyOmit)
	require.NoError(t, err)

	assert.ErrorIs(t, a.Record(99, Outcome{Status: StatusSummarized}), ErrUnknownTarget)
	// Skipping VALIDATED and BATCHED.
	assert.ErrorIs(t, a.Record(1, Outcome{Status: StatusSummarized}), ErrInvalidTransition)
	assert.ErrorIs(t, a.Record(1, Outcome{Status: StatusBatched}), ErrInvalidTransition)
	assert.ErrorIs(t, a.Advance(1, StatusSummarized), ErrInvalidTransition)

	summarize(t, a, 1, "once")
	assert.ErrorIs(t, a.Record(1, Outcome{Status: StatusSummarized, Summary: "twice"}), ErrInvalidTransition)

	resp, err := a.Response()
	require.NoError(t, err)
	assert.Equal(t, []Entry{{1, "once"}}, resp.Entries)

	_, err = a.Response()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestAssembler_ResponseRequiresOutcomes(t *testing.T) {
	a, err := New("req", []uint64{1, 2}, PolicyOmit)
	require.NoError(t, err)
	summarize(t, a, 1, "one")

	_, err = a.Response()
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestAssembler_DuplicateIDs(t *testing.T) {
	_, err := New("req", []uint64{1, 2, 1}, PolicyOmit)
	assert.ErrorIs(t, err, ErrDuplicateTarget)
}

func TestAssembler_NoTargets(t *testing.T) {
	a, err := New("req", nil, PolicyOmit)
	require.NoError(t, err)
	assert.True(t, a.Done())

	resp, err := a.Response()
	require.NoError(t, err)
	assert.Empty(t, resp.Entries)
}

func TestAssembler_ConcurrentRecords(t *testing.T) {
	ids := make([]uint64, 100)
	for i := range ids {
		ids[i] = uint64(i * 7)
	}
	a, err := New("req", ids, PolicyOmit)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, a.Advance(id, StatusValidated))
			assert.NoError(t, a.Advance(id, StatusBatched))
			assert.NoError(t, a.Record(id, Outcome{Status: StatusSummarized, Summary: "s"}))
		}()
	}
	wg.Wait()

	resp, err := a.Response()
	require.NoError(t, err)
	require.Len(t, resp.Entries, len(ids))
	for i, e := range resp.Entries {
		assert.Equal(t, ids[i], e.TargetID)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", PolicyOmit, false},
		{"omit", PolicyOmit, false},
		{" EMPTY ", PolicyEmpty, false},
		{"drop", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePolicy(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "GENERATION_FAILED", StatusGenerationFailed.String())
	assert.Equal(t, "Status(42)", Status(42).String())
	assert.True(t, StatusInvalid.Failed())
	assert.False(t, StatusSummarized.Failed())
	assert.False(t, StatusBatched.Outcome())
}
