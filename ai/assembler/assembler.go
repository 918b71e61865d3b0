// Package assembler tracks per-target outcomes of one request and builds the
// ordered response.
package assembler

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrAllTargetsFailed is the request-level error when no target was summarized.
	ErrAllTargetsFailed = errors.New("all targets failed")
	ErrUnknownTarget    = errors.New("unknown target")
	ErrDuplicateTarget  = errors.New("duplicate target")
	// ErrInvalidTransition rejects out-of-order or repeated status changes.
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrIncomplete        = errors.New("targets still pending")
)

// Status is the lifecycle state of one target.
type Status int

const (
	StatusReceived Status = iota
	StatusValidated
	StatusInvalid
	StatusBatched
	StatusSummarized
	StatusGenerationFailed
	StatusDeadlineExceeded
	StatusQueueSaturated
	StatusReturned
)

var statusNames = [...]string{
	StatusReceived:         "RECEIVED",
	StatusValidated:        "VALIDATED",
	StatusInvalid:          "INVALID",
	StatusBatched:          "BATCHED",
	StatusSummarized:       "SUMMARIZED",
	StatusGenerationFailed: "GENERATION_FAILED",
	StatusDeadlineExceeded: "DEADLINE_EXCEEDED",
	StatusQueueSaturated:   "QUEUE_SATURATED",
	StatusReturned:         "RETURNED",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusNames[s]
}

// Outcome reports whether a finished status is an outcome (success or failure).
func (s Status) Outcome() bool {
	switch s {
	case StatusInvalid, StatusSummarized, StatusGenerationFailed, StatusDeadlineExceeded, StatusQueueSaturated:
		return true
	}
	return false
}

// Failed reports whether s is a failure outcome.
func (s Status) Failed() bool {
	return s.Outcome() && s != StatusSummarized
}

// transitions lists the allowed next states. Targets rejected at admission or
// expired while waiting go straight from VALIDATED to their outcome.
var transitions = map[Status][]Status{
	StatusReceived:         {StatusValidated, StatusInvalid},
	StatusValidated:        {StatusBatched, StatusQueueSaturated, StatusDeadlineExceeded},
	StatusBatched:          {StatusSummarized, StatusGenerationFailed, StatusDeadlineExceeded, StatusQueueSaturated},
	StatusInvalid:          {StatusReturned},
	StatusSummarized:       {StatusReturned},
	StatusGenerationFailed: {StatusReturned},
	StatusDeadlineExceeded: {StatusReturned},
	StatusQueueSaturated:   {StatusReturned},
}

func canTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Policy decides how failed targets appear in the response.
type Policy string

const (
	// PolicyOmit leaves failed targets out of the response.
	PolicyOmit Policy = "omit"
	// PolicyEmpty returns failed targets with an empty summary.
	PolicyEmpty Policy = "empty"
)

// ParsePolicy parses a failure policy name. An empty name means PolicyOmit.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyOmit:
		return PolicyOmit, nil
	case PolicyEmpty:
		return PolicyEmpty, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Outcome is the final result of one target.
type Outcome struct {
	Status  Status
	Summary string
	Err     error
}

// Entry is one id/summary pair of the response.
type Entry struct {
	TargetID uint64
	Summary  string
}

// TargetResult is the per-target detail kept alongside the response entries.
type TargetResult struct {
	TargetID uint64
	Status   Status
	Summary  string
	Err      error
}

// Response is the assembled result of a request.
type Response struct {
	RequestID string
	Entries   []Entry
	Results   []TargetResult
}

type target struct {
	status  Status
	outcome Outcome
}

// Assembler collects outcomes for the targets of one request. It is safe for
// concurrent use.
type Assembler struct {
	requestID string
	policy    Policy
	order     []uint64

	mu       sync.Mutex
	targets  map[uint64]*target
	pending  int
	returned bool
}

// New creates an Assembler for the given target ids in request order.
func New(requestID string, order []uint64, policy Policy) (*Assembler, error) {
	if policy == "" {
		policy = PolicyOmit
	}
	targets := make(map[uint64]*target, len(order))
	for _, id := range order {
		if _, ok := targets[id]; ok {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateTarget, id)
		}
		targets[id] = &target{status: StatusReceived}
	}
	return &Assembler{
		requestID: requestID,
		policy:    policy,
		order:     append([]uint64(nil), order...),
		targets:   targets,
		pending:   len(order),
	}, nil
}

// Advance moves a target to a non-outcome state (VALIDATED or BATCHED).
func (a *Assembler) Advance(id uint64, to Status) error {
	if to.Outcome() || to == StatusReturned {
		return fmt.Errorf("%w: %s is not an intermediate state", ErrInvalidTransition, to)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	t, err := a.lookup(id, to)
	if err != nil {
		return err
	}
	t.status = to
	return nil
}

// Record sets the outcome of a target. Unknown ids, repeated records and
// outcomes that skip required states are rejected.
func (a *Assembler) Record(id uint64, out Outcome) error {
	if !out.Status.Outcome() {
		return fmt.Errorf("%w: %s is not an outcome", ErrInvalidTransition, out.Status)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	t, err := a.lookup(id, out.Status)
	if err != nil {
		return err
	}
	t.status = out.Status
	t.outcome = out
	a.pending--
	return nil
}

func (a *Assembler) lookup(id uint64, to Status) (*target, error) {
	t, ok := a.targets[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTarget, id)
	}
	if a.returned || !canTransition(t.status, to) {
		return nil, fmt.Errorf("%w: target %d %s -> %s", ErrInvalidTransition, id, t.status, to)
	}
	return t, nil
}

// Status returns the current status of a target.
func (a *Assembler) Status(id uint64) (Status, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.targets[id]
	if !ok {
		return 0, false
	}
	return t.status, true
}

// Pending returns the ids without an outcome, in request order.
func (a *Assembler) Pending() []uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var ids []uint64
	for _, id := range a.order {
		if !a.targets[id].status.Outcome() && a.targets[id].status != StatusReturned {
			ids = append(ids, id)
		}
	}
	return ids
}

// Done reports whether every target has an outcome.
func (a *Assembler) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending == 0
}

// Response builds the response in request order and marks every target RETURNED.
// When no target was summarized it also returns ErrAllTargetsFailed, wrapping the
// shared failure cause when all targets failed the same way.
func (a *Assembler) Response() (*Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.returned {
		return nil, fmt.Errorf("%w: response already built", ErrInvalidTransition)
	}
	if a.pending > 0 {
		return nil, fmt.Errorf("%w: %d of %d", ErrIncomplete, a.pending, len(a.order))
	}

	resp := &Response{
		RequestID: a.requestID,
		Entries:   make([]Entry, 0, len(a.order)),
		Results:   make([]TargetResult, 0, len(a.order)),
	}
	failures := make(map[Status]int)
	var firstErr error
	for _, id := range a.order {
		t := a.targets[id]
		resp.Results = append(resp.Results, TargetResult{
			TargetID: id,
			Status:   t.status,
			Summary:  t.outcome.Summary,
			Err:      t.outcome.Err,
		})

		if t.status == StatusSummarized {
			resp.Entries = append(resp.Entries, Entry{TargetID: id, Summary: t.outcome.Summary})
		} else {
			failures[t.status]++
			if firstErr == nil {
				firstErr = t.outcome.Err
			}
			if a.policy == PolicyEmpty {
				resp.Entries = append(resp.Entries, Entry{TargetID: id})
			}
		}
		t.status = StatusReturned
	}
	a.returned = true

	if len(a.order) == 0 || len(failures) == 0 || sumCounts(failures) < len(a.order) {
		return resp, nil
	}
	if len(failures) == 1 && firstErr != nil {
		return resp, fmt.Errorf("%w: %w", ErrAllTargetsFailed, firstErr)
	}
	return resp, fmt.Errorf("%w: %s", ErrAllTargetsFailed, describe(failures))
}

func sumCounts(m map[Status]int) int {
	n := 0
	for _, c := range m {
		n += c
	}
	return n
}

func describe(failures map[Status]int) string {
	parts := make([]string, 0, len(failures))
	for s := StatusInvalid; s < StatusReturned; s++ {
		if c := failures[s]; c > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", s, c))
		}
	}
	return strings.Join(parts, ", ")
}
