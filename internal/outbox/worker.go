package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 200
)

// Worker drains the outbox: fetch a batch, publish, mark published. A
// publish failure leaves the batch unmarked for the next poll, so delivery
// is at-least-once and never blocks admission.
type Worker struct {
	store     Store
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

type WorkerOption func(w *Worker)

func WithPollInterval(interval time.Duration) WorkerOption {
	return func(w *Worker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

func WithBatchSize(size int) WorkerOption {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

func NewWorker(store Store, publisher Publisher, logger *slog.Logger, opts ...WorkerOption) *Worker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &Worker{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  defaultPollInterval,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err.Error())
			}
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) error {
	entries, err := w.store.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	if err := w.publisher.Publish(ctx, entries); err != nil {
		return err
	}

	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	if err := w.store.MarkPublished(ctx, ids, time.Now().UTC()); err != nil {
		return err
	}

	w.logger.DebugContext(ctx, "outbox batch published", "count", len(entries))
	return nil
}
