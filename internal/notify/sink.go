package notify

import (
	"context"

	"github.com/pawprint/petfeed/internal/models"
)

// Sink accepts a notification for storage
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// Enqueuer is the producing side of the notification queue
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, item interface{}) error
}

// Store persists notification rows
type Store interface {
	CreateBatch(ctx context.Context, notifications []models.Notification) error
}

// QueueSink hands messages to the Redis queue drained by Writer
type QueueSink struct {
	queue Enqueuer
	key   string
}

// NewQueueSink creates a sink pushing onto the named queue
func NewQueueSink(queue Enqueuer, key string) *QueueSink {
	return &QueueSink{queue: queue, key: key}
}

// Deliver enqueues msg
func (s *QueueSink) Deliver(ctx context.Context, msg Message) error {
	return s.queue.Enqueue(ctx, s.key, msg)
}

// StoreSink writes messages straight to the database. It is used when Redis
// is disabled.
type StoreSink struct {
	store Store
}

// NewStoreSink creates a sink writing through store
func NewStoreSink(store Store) *StoreSink {
	return &StoreSink{store: store}
}

// Deliver inserts msg
func (s *StoreSink) Deliver(ctx context.Context, msg Message) error {
	return s.store.CreateBatch(ctx, []models.Notification{msg.Model()})
}
