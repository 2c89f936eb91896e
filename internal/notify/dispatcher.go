package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pawprint/petfeed/internal/cache"
	"github.com/pawprint/petfeed/internal/feed"
	"github.com/pawprint/petfeed/internal/models"
	"github.com/pawprint/petfeed/pkg/logging"
	"github.com/pawprint/petfeed/pkg/telemetry"
)

// ErrPostNotFound is returned when the liked post has no owner
var ErrPostNotFound = errors.New("post not found")

// OwnerLookup finds who should hear about activity on a post
type OwnerLookup interface {
	OwnerOf(ctx context.Context, postID string) (string, error)
}

// DispatcherOptions tunes a Dispatcher
type DispatcherOptions struct {
	// Timeout bounds one dispatch, detached from the caller's context
	Timeout time.Duration
	// OwnerCacheTTL is how long a post owner stays in Redis
	OwnerCacheTTL time.Duration
}

// Dispatcher implements feed.Notifier. Each like is handled on its own
// goroutine; failures are logged and counted, never returned.
type Dispatcher struct {
	owners OwnerLookup
	cache  *cache.Cache
	sink   Sink
	opts   DispatcherOptions
	logger *zap.Logger
	now    func() time.Time

	ownerGroup singleflight.Group
	dropped    metric.Int64Counter

	mu     sync.RWMutex
	closed bool
	wg     conc.WaitGroup
}

// NewDispatcher creates a dispatcher. ownerCache may be nil.
func NewDispatcher(owners OwnerLookup, ownerCache *cache.Cache, sink Sink, opts DispatcherOptions) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	dropped, _ := otel.Meter("github.com/pawprint/petfeed/internal/notify").Int64Counter(
		"feed.notifications_dropped",
		metric.WithDescription("Like notifications that could not be dispatched"))

	return &Dispatcher{
		owners:  owners,
		cache:   ownerCache,
		sink:    sink,
		opts:    opts,
		logger:  logging.WithComponent("notify-dispatcher"),
		now:     time.Now,
		dropped: dropped,
	}
}

// NotifyLiked schedules the notification and returns immediately
func (d *Dispatcher) NotifyLiked(ctx context.Context, event feed.LikeEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.drop(ctx, event, errors.New("dispatcher closed"))
		return
	}

	parent := context.WithoutCancel(ctx)
	d.wg.Go(func() {
		ctx, cancel := context.WithTimeout(parent, d.opts.Timeout)
		defer cancel()
		if err := d.dispatch(ctx, event); err != nil {
			d.drop(ctx, event, err)
		}
	})
}

// Close stops accepting events and waits for in-flight ones
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	if r := d.wg.WaitAndRecover(); r != nil {
		d.logger.Error("Notification goroutine panicked", zap.String("panic", r.String()))
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, event feed.LikeEvent) error {
	ctx, span := telemetry.StartSpan(ctx, "notify.like")
	defer span.End()
	span.SetAttributes(attribute.String("feed.post_id", event.PostID))

	owner, err := d.ownerOf(ctx, event.PostID)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if owner == event.ActorID {
		d.logger.Debug("Skipping self-like notification", zap.String("post_id", event.PostID))
		return nil
	}

	msg := Message{
		ID:          uuid.NewString(),
		Type:        models.NotifyTypeLike,
		RecipientID: owner,
		ActorID:     event.ActorID,
		ActorPetID:  event.ActorProducerID,
		PostID:      event.PostID,
		CreatedAt:   event.LikedAt,
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = d.now().UTC()
	}

	if err := d.sink.Deliver(ctx, msg); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("deliver: %w", err)
	}

	d.logger.Info("[NOTIFY]",
		zap.String("type", models.NotifyTypeName(msg.Type)),
		zap.String("recipient_id", msg.RecipientID),
		zap.String("actor_id", msg.ActorID),
		zap.String("post_id", msg.PostID))
	return nil
}

// ownerOf reads through the Redis owner cache. Concurrent likes on the same
// post share one database lookup.
func (d *Dispatcher) ownerOf(ctx context.Context, postID string) (string, error) {
	key := ownerKey(postID)
	if owner, err := d.cache.Get(key); err == nil {
		return owner, nil
	} else if !errors.Is(err, cache.ErrMiss) && !errors.Is(err, cache.ErrCacheDisabled) {
		d.logger.Debug("Owner cache read failed", zap.Error(err))
	}

	v, err, _ := d.ownerGroup.Do(postID, func() (interface{}, error) {
		owner, err := d.owners.OwnerOf(ctx, postID)
		if err != nil {
			return "", fmt.Errorf("lookup owner: %w", err)
		}
		if owner == "" {
			return "", ErrPostNotFound
		}
		if err := d.cache.Set(key, owner, d.opts.OwnerCacheTTL); err != nil && !errors.Is(err, cache.ErrCacheDisabled) {
			d.logger.Debug("Owner cache write failed", zap.Error(err))
		}
		return owner, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (d *Dispatcher) drop(ctx context.Context, event feed.LikeEvent, cause error) {
	err := &feed.NotificationDispatchError{PostID: event.PostID, Err: cause}
	d.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "like")))
	d.logger.Warn("Dropped like notification",
		zap.String("post_id", event.PostID),
		zap.String("actor_id", event.ActorID),
		zap.Error(err))
}

func ownerKey(postID string) string {
	return "post_owner:" + postID
}
