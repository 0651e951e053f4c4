package request

import (
	"context"
	"errors"
)

type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeCancelled
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// Result is the closed set of ways a call can end. Value is meaningful
// only for OutcomeOK, Err only for OutcomeFailed.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Err     error

	ticket *Ticket
}

func (r Result[T]) OK() bool        { return r.Outcome == OutcomeOK }
func (r Result[T]) Cancelled() bool { return r.Outcome == OutcomeCancelled }
func (r Result[T]) Failed() bool    { return r.Outcome == OutcomeFailed }

// Stale reports whether the call was superseded after the result was
// produced. An event loop checks this right before applying the result.
func (r Result[T]) Stale() bool {
	return r.ticket != nil && r.ticket.Superseded()
}

// Ticket returns the ticket the result belongs to.
func (r Result[T]) Ticket() *Ticket { return r.ticket }

// Do runs fn under t and classifies its outcome. A superseded ticket
// always yields OutcomeCancelled, even if fn returned data.
func Do[T any](t *Ticket, fn func(ctx context.Context) (T, error)) Result[T] {
	v, err := fn(t.Context())
	superseded := t.finish()

	switch {
	case superseded:
		t.m.logger.Debug("request result dropped", "channel", t.Channel, "ticket", t.ID)
		return Result[T]{Outcome: OutcomeCancelled, ticket: t}
	case err == nil:
		return Result[T]{Outcome: OutcomeOK, Value: v, ticket: t}
	case errors.Is(err, context.Canceled):
		return Result[T]{Outcome: OutcomeCancelled, ticket: t}
	default:
		return Result[T]{Outcome: OutcomeFailed, Err: err, ticket: t}
	}
}

// Issue begins a call on ch and runs it to completion.
func Issue[T any](m *Manager, ctx context.Context, ch Channel, fn func(ctx context.Context) (T, error)) Result[T] {
	return Do(m.Begin(ctx, ch), fn)
}
