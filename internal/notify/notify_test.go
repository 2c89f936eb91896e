package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawprint/petfeed/internal/cache"
	"github.com/pawprint/petfeed/internal/feed"
	"github.com/pawprint/petfeed/internal/models"
)

type fakeOwners struct {
	mu     sync.Mutex
	owners map[string]string
	err    error
	calls  int
}

func (f *fakeOwners) OwnerOf(ctx context.Context, postID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.owners[postID], nil
}

func (f *fakeOwners) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type recordingSink struct {
	mu    sync.Mutex
	msgs  []Message
	err   error
	block chan struct{}
}

func (s *recordingSink) Deliver(ctx context.Context, msg Message) error {
	if s.block != nil {
		<-s.block
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *recordingSink) delivered() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

type fakeNotificationStore struct {
	mu       sync.Mutex
	rows     []models.Notification
	failures int
	calls    int
}

func (s *fakeNotificationStore) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return errors.New("database unavailable")
	}
	s.rows = append(s.rows, notifications...)
	return nil
}

func setupCache(t *testing.T) *cache.Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return cache.NewWithClient(client)
}

func likeEvent(postID, actor string) feed.LikeEvent {
	return feed.LikeEvent{
		PostID:          postID,
		ActorID:         actor,
		ActorProducerID: "pet-" + actor,
		LikedAt:         time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestDispatcher_DeliversToOwner(t *testing.T) {
	owners := &fakeOwners{owners: map[string]string{"post-1": "owner-1"}}
	sink := &recordingSink{}
	d := NewDispatcher(owners, nil, sink, DispatcherOptions{Timeout: time.Second})

	d.NotifyLiked(context.Background(), likeEvent("post-1", "viewer-1"))
	d.Close()

	msgs := sink.delivered()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, models.NotifyTypeLike, msg.Type)
	assert.Equal(t, "owner-1", msg.RecipientID)
	assert.Equal(t, "viewer-1", msg.ActorID)
	assert.Equal(t, "pet-viewer-1", msg.ActorPetID)
	assert.Equal(t, "post-1", msg.PostID)
	_, err := uuid.Parse(msg.ID)
	assert.NoError(t, err)
}

func TestDispatcher_SkipsSelfLike(t *testing.T) {
	owners := &fakeOwners{owners: map[string]string{"post-1": "viewer-1"}}
	sink := &recordingSink{}
	d := NewDispatcher(owners, nil, sink, DispatcherOptions{})

	d.NotifyLiked(context.Background(), likeEvent("post-1", "viewer-1"))
	d.Close()

	assert.Empty(t, sink.delivered())
}

func TestDispatcher_FailuresAreSwallowed(t *testing.T) {
	tests := []struct {
		name   string
		owners *fakeOwners
		sink   *recordingSink
	}{
		{"unknown post", &fakeOwners{owners: map[string]string{}}, &recordingSink{}},
		{"owner lookup error", &fakeOwners{err: errors.New("db down")}, &recordingSink{}},
		{"sink error", &fakeOwners{owners: map[string]string{"post-1": "owner-1"}}, &recordingSink{err: errors.New("redis down")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDispatcher(tt.owners, nil, tt.sink, DispatcherOptions{Timeout: time.Second})
			assert.NotPanics(t, func() {
				d.NotifyLiked(context.Background(), likeEvent("post-1", "viewer-1"))
				d.Close()
			})
			assert.Empty(t, tt.sink.delivered())
		})
	}
}

func TestDispatcher_DoesNotBlockCaller(t *testing.T) {
	owners := &fakeOwners{owners: map[string]string{"post-1": "owner-1"}}
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(owners, nil, sink, DispatcherOptions{Timeout: time.Minute})

	returned := make(chan struct{})
	go func() {
		d.NotifyLiked(context.Background(), likeEvent("post-1", "viewer-1"))
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("NotifyLiked() blocked on delivery")
	}

	close(sink.block)
	d.Close()
	assert.Len(t, sink.delivered(), 1)
}

func TestDispatcher_OutlivesCallerContext(t *testing.T) {
	owners := &fakeOwners{owners: map[string]string{"post-1": "owner-1"}}
	sink := &recordingSink{block: make(chan struct{})}
	d := NewDispatcher(owners, nil, sink, DispatcherOptions{Timeout: time.Minute})

	ctx, cancel := context.WithCancel(context.Background())
	d.NotifyLiked(ctx, likeEvent("post-1", "viewer-1"))
	cancel()
	close(sink.block)
	d.Close()

	assert.Len(t, sink.delivered(), 1)
}

func TestDispatcher_ClosedDropsEvents(t *testing.T) {
	owners := &fakeOwners{owners: map[string]string{"post-1": "owner-1"}}
	sink := &recordingSink{}
	d := NewDispatcher(owners, nil, sink, DispatcherOptions{})
	d.Close()

	d.NotifyLiked(context.Background(), likeEvent("post-1", "viewer-1"))
	assert.Empty(t, sink.delivered())
	assert.Equal(t, 0, owners.callCount())
}

func TestDispatcher_OwnerCache(t *testing.T) {
	c := setupCache(t)
	owners := &fakeOwners{owners: map[string]string{"post-1": "owner-1"}}
	sink := &recordingSink{}
	d := NewDispatcher(owners, c, sink, DispatcherOptions{Timeout: time.Second, OwnerCacheTTL: time.Minute})
	ctx := context.Background()

	require.NoError(t, d.dispatch(ctx, likeEvent("post-1", "viewer-1")))
	require.NoError(t, d.dispatch(ctx, likeEvent("post-1", "viewer-2")))

	assert.Equal(t, 1, owners.callCount())
	cached, err := c.Get(ownerKey("post-1"))
	require.NoError(t, err)
	assert.Equal(t, "owner-1", cached)
	assert.Len(t, sink.delivered(), 2)
}

func TestDispatcher_EndToEndThroughQueue(t *testing.T) {
	c := setupCache(t)
	owners := &fakeOwners{owners: map[string]string{"post-1": "owner-1", "post-2": "owner-2"}}
	d := NewDispatcher(owners, c, NewQueueSink(c, "notifications:like"), DispatcherOptions{Timeout: time.Second})

	d.NotifyLiked(context.Background(), likeEvent("post-1", "viewer-1"))
	d.NotifyLiked(context.Background(), likeEvent("post-2", "viewer-1"))
	d.Close()

	store := &fakeNotificationStore{}
	w := NewWriter(c, store, WriterOptions{QueueKey: "notifications:like", BatchSize: 10})
	n, err := w.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recipients := map[string]bool{}
	for _, row := range store.rows {
		recipients[row.RecipientID] = true
		assert.Equal(t, models.NotifyTypeLike, row.Type)
		assert.True(t, row.PostID.Valid)
	}
	assert.Equal(t, map[string]bool{"owner-1": true, "owner-2": true}, recipients)
}

func TestStoreSink(t *testing.T) {
	store := &fakeNotificationStore{}
	msg := Message{ID: "n-1", Type: models.NotifyTypeLike, RecipientID: "owner-1", PostID: "post-1"}
	require.NoError(t, NewStoreSink(store).Deliver(context.Background(), msg))
	require.Len(t, store.rows, 1)
	assert.Equal(t, "n-1", store.rows[0].ID)
	assert.False(t, store.rows[0].ActorID.Valid)
}

func enqueue(t *testing.T, c *cache.Cache, items ...interface{}) {
	t.Helper()
	for _, item := range items {
		require.NoError(t, c.Enqueue(context.Background(), "q", item))
	}
}

func testMessage(id string) Message {
	return Message{ID: id, Type: models.NotifyTypeLike, RecipientID: "owner-1", PostID: "post-1", CreatedAt: time.Now().UTC()}
}

func TestWriter_DrainOnce(t *testing.T) {
	c := setupCache(t)
	enqueue(t, c, testMessage("n-1"), "not a message", testMessage("n-2"), Message{ID: "n-3"})

	store := &fakeNotificationStore{}
	w := NewWriter(c, store, WriterOptions{QueueKey: "q", BatchSize: 10})

	n, err := w.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Len(t, store.rows, 2)
	assert.Equal(t, "n-1", store.rows[0].ID)
	assert.Equal(t, "n-2", store.rows[1].ID)

	n, err = w.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriter_RetriesThenSucceeds(t *testing.T) {
	c := setupCache(t)
	enqueue(t, c, testMessage("n-1"))

	store := &fakeNotificationStore{failures: 2}
	w := NewWriter(c, store, WriterOptions{QueueKey: "q", BatchSize: 10, MaxRetries: 3, InitialInterval: time.Millisecond})

	_, err := w.DrainOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, store.calls)
	assert.Len(t, store.rows, 1)
}

func TestWriter_RequeuesOnPersistentFailure(t *testing.T) {
	c := setupCache(t)
	enqueue(t, c, testMessage("n-1"), testMessage("n-2"))

	store := &fakeNotificationStore{failures: -1}
	w := NewWriter(c, store, WriterOptions{QueueKey: "q", BatchSize: 10, MaxRetries: 1, InitialInterval: time.Millisecond})

	_, err := w.DrainOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, store.calls)

	pending, err := c.QueueLen(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	store.failures = 0
	_, err = w.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Len(t, store.rows, 2)
	assert.Equal(t, "n-1", store.rows[0].ID)
}

func TestWriter_RunStopsOnCancel(t *testing.T) {
	c := setupCache(t)
	store := &fakeNotificationStore{}
	w := NewWriter(c, store, WriterOptions{QueueKey: "q", PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- w.Run(ctx) }()

	enqueue(t, c, testMessage("n-1"))
	require.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.rows) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop")
	}
}
