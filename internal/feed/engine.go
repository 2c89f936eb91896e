package feed

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pawprint/petfeed/pkg/logging"
	"github.com/pawprint/petfeed/pkg/telemetry"
)

// AnyGeneration matches every generation in Target.UpdatePost
const AnyGeneration uint64 = 0

// Target is anything holding local copies of posts that a like must echo
// into. *Session implements it.
//
// Every held copy belongs to a generation, which changes whenever the target
// replaces its items with a freshly fetched first page. UpdatePost only
// touches a copy of generation gen, or any copy for AnyGeneration, and
// returns the generation of the copy it found.
type Target interface {
	Post(postID string) (Post, bool)
	UpdatePost(postID string, gen uint64, fn func(Post) Post) (Post, uint64, bool)
}

// LikeIntent is a like or unlike in flight. It keeps, per target, the change
// actually applied so a failed write can be reverted exactly.
type LikeIntent struct {
	PostID string
	Liked  bool
	marks  []mark
}

type mark struct {
	target    Target
	gen       uint64
	delta     int64
	prevLiked bool
}

// apply performs the optimistic update on every target holding the post
func (in *LikeIntent) apply(targets []Target) {
	want := int64(-1)
	if in.Liked {
		want = 1
	}
	for _, t := range targets {
		var m mark
		_, gen, ok := t.UpdatePost(in.PostID, AnyGeneration, func(p Post) Post {
			m.prevLiked = p.ViewerHasLiked
			next := clampCount(p.LikeCount + want)
			m.delta = next - p.LikeCount
			p.LikeCount = next
			p.ViewerHasLiked = in.Liked
			return p
		})
		if ok {
			m.target = t
			m.gen = gen
			in.marks = append(in.marks, m)
		}
	}
}

// revert undoes apply. Counts never drop below zero even if other updates
// landed in between. A copy refetched since apply already carries the stored
// state and is left alone.
func (in *LikeIntent) revert() {
	for _, m := range in.marks {
		m.target.UpdatePost(in.PostID, m.gen, func(p Post) Post {
			p.LikeCount = clampCount(p.LikeCount - m.delta)
			p.ViewerHasLiked = m.prevLiked
			return p
		})
	}
}

func clampCount(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}

// Engine applies likes locally before the store confirms them and reverts
// them when it does not.
//
// Liking an already-liked post (or unliking an unliked one) is not guarded
// here; callers disable the control from ViewerHasLiked.
type Engine struct {
	likes    LikeStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewEngine creates an engine. notifier may be nil.
func NewEngine(likes LikeStore, notifier Notifier) *Engine {
	return &Engine{
		likes:    likes,
		notifier: notifier,
		logger:   logging.WithComponent("feed-engine"),
		now:      time.Now,
	}
}

// Like marks the post liked in every target, records the like, and on success
// hands a LikeEvent to the notifier. On failure the targets are reverted and
// the error is returned.
func (e *Engine) Like(ctx context.Context, viewerID, postID, actorProducerID string, targets ...Target) error {
	if err := validateLike(viewerID, postID); err != nil {
		return err
	}

	intent := &LikeIntent{PostID: postID, Liked: true}
	intent.apply(targets)

	ctx, span := telemetry.StartSpan(ctx, "feed.like")
	defer span.End()
	span.SetAttributes(attribute.String("feed.post_id", postID))

	if err := e.likes.InsertLike(ctx, postID, viewerID, actorProducerID); err != nil {
		err = transient("insert like", err)
		telemetry.RecordError(span, err)
		e.rollback(ctx, intent, "like", err)
		return err
	}

	if e.notifier != nil {
		e.notifier.NotifyLiked(ctx, LikeEvent{
			PostID:          postID,
			ActorID:         viewerID,
			ActorProducerID: actorProducerID,
			LikedAt:         e.now().UTC(),
		})
	}
	return nil
}

// Unlike is the mirror of Like without a notification
func (e *Engine) Unlike(ctx context.Context, viewerID, postID string, targets ...Target) error {
	if err := validateLike(viewerID, postID); err != nil {
		return err
	}

	intent := &LikeIntent{PostID: postID, Liked: false}
	intent.apply(targets)

	ctx, span := telemetry.StartSpan(ctx, "feed.unlike")
	defer span.End()
	span.SetAttributes(attribute.String("feed.post_id", postID))

	if err := e.likes.DeleteLike(ctx, postID, viewerID); err != nil {
		err = transient("delete like", err)
		telemetry.RecordError(span, err)
		e.rollback(ctx, intent, "unlike", err)
		return err
	}
	return nil
}

func (e *Engine) rollback(ctx context.Context, intent *LikeIntent, action string, cause error) {
	intent.revert()
	feedMetrics.rolledBack(ctx, action)
	e.logger.Warn("Reverted optimistic update",
		zap.String("action", action),
		zap.String("post_id", intent.PostID),
		zap.Int("targets", len(intent.marks)),
		zap.Error(cause))
}

func validateLike(viewerID, postID string) error {
	if viewerID == "" {
		return &ValidationError{Field: "viewer_id", Reason: "anonymous viewers cannot like"}
	}
	if postID == "" {
		return &ValidationError{Field: "post_id", Reason: "required"}
	}
	return nil
}
