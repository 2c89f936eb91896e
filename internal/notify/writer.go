package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pawprint/petfeed/internal/models"
	"github.com/pawprint/petfeed/pkg/logging"
)

// Queue is the consuming side of the notification queue
type Queue interface {
	Dequeue(ctx context.Context, queue string, max int) ([][]byte, error)
	Requeue(ctx context.Context, queue string, items [][]byte) error
}

// WriterOptions tunes a Writer
type WriterOptions struct {
	QueueKey     string
	BatchSize    int
	PollInterval time.Duration
	MaxRetries   int
	// InitialInterval is the first retry delay
	InitialInterval time.Duration
}

// Writer drains queued notifications into the database
type Writer struct {
	queue  Queue
	store  Store
	opts   WriterOptions
	logger *zap.Logger
}

// NewWriter creates a writer
func NewWriter(queue Queue, store Store, opts WriterOptions) *Writer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 200 * time.Millisecond
	}
	return &Writer{
		queue:  queue,
		store:  store,
		opts:   opts,
		logger: logging.WithComponent("notify-writer"),
	}
}

// Run drains the queue until ctx is cancelled
func (w *Writer) Run(ctx context.Context) error {
	w.logger.Info("Starting notification writer",
		zap.String("queue", w.opts.QueueKey),
		zap.Int("batch_size", w.opts.BatchSize))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			n, err := w.DrainOnce(ctx)
			if err != nil {
				w.logger.Error("Failed to write notification batch", zap.Error(err))
				w.wait(ctx, w.opts.PollInterval)
				continue
			}
			// A full batch means more is probably waiting
			if n < w.opts.BatchSize {
				w.wait(ctx, w.opts.PollInterval)
			}
		}
	}
}

// DrainOnce moves at most one batch from the queue to the store and returns
// how many items it took off the queue. A batch that cannot be written is put
// back on the queue.
func (w *Writer) DrainOnce(ctx context.Context) (int, error) {
	raw, err := w.queue.Dequeue(ctx, w.opts.QueueKey, w.opts.BatchSize)
	if err != nil && len(raw) == 0 {
		return 0, fmt.Errorf("dequeue: %w", err)
	}
	if len(raw) == 0 {
		return 0, nil
	}

	kept := make([][]byte, 0, len(raw))
	rows := make([]models.Notification, 0, len(raw))
	for _, item := range raw {
		var msg Message
		if err := sonic.Unmarshal(item, &msg); err != nil || !msg.valid() {
			w.logger.Warn("Discarding malformed notification", zap.ByteString("item", item), zap.Error(err))
			continue
		}
		kept = append(kept, item)
		rows = append(rows, msg.Model())
	}

	if err := w.write(ctx, rows); err != nil {
		if rqErr := w.queue.Requeue(context.WithoutCancel(ctx), w.opts.QueueKey, kept); rqErr != nil {
			w.logger.Error("Failed to requeue notifications",
				zap.Int("count", len(kept)),
				zap.Error(rqErr))
		}
		return len(raw), err
	}

	w.logger.Debug("Wrote notifications", zap.Int("count", len(rows)))
	return len(raw), nil
}

func (w *Writer) write(ctx context.Context, rows []models.Notification) error {
	if len(rows) == 0 {
		return nil
	}

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(w.opts.InitialInterval),
		backoff.WithMaxInterval(10*time.Second),
	), uint64(w.opts.MaxRetries))

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := w.store.CreateBatch(ctx, rows)
		if err != nil {
			w.logger.Warn("Notification write failed",
				zap.Int("attempt", attempt),
				zap.Int("count", len(rows)),
				zap.Error(err))
		}
		return err
	}, backoff.WithContext(b, ctx))
}

// wait waits for the specified duration or until context is cancelled
func (w *Writer) wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		return
	}
}
