// Package worker relays committed outbox rows to the event stream.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	audit "appeals/pkg/platform/audit"
)

// Sink receives outbox entries in creation order.
type Sink interface {
	Publish(ctx context.Context, entries []audit.OutboxEntry) error
}

// Relay polls the outbox and publishes pending rows. Rows are marked
// published only after the sink accepted them, so delivery is at least once.
type Relay struct {
	outbox   audit.Outbox
	sink     Sink
	interval time.Duration
	batch    int
	logger   *slog.Logger
	now      func() time.Time
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batch = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) {
		r.now = now
	}
}

func NewRelay(outbox audit.Outbox, sink Sink, opts ...Option) *Relay {
	r := &Relay{
		outbox:   outbox,
		sink:     sink,
		interval: 2 * time.Second,
		batch:    100,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Run drains the outbox every interval until ctx is cancelled. Publish
// failures are logged and retried on the next tick.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.Drain(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes pending rows batch by batch until none remain.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		n, err := r.RelayOnce(ctx)
		total += n
		if err != nil || n < r.batch {
			return total, err
		}
	}
}

// RelayOnce publishes at most one batch and returns how many rows it relayed.
func (r *Relay) RelayOnce(ctx context.Context) (int, error) {
	pending, err := r.outbox.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}
	if err := r.sink.Publish(ctx, pending); err != nil {
		return 0, err
	}

	ids := make([]uuid.UUID, len(pending))
	for i, e := range pending {
		ids[i] = e.ID
	}
	if err := r.outbox.MarkPublished(ctx, ids, r.now()); err != nil {
		return 0, errors.Join(errors.New("published but not marked; rows will be relayed again"), err)
	}
	r.logger.DebugContext(ctx, "outbox relayed", "count", len(pending))
	return len(pending), nil
}
