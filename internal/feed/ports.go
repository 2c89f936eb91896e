package feed

import (
	"context"
	"time"
)

// PostStore is the read path of the row store
type PostStore interface {
	// QueryPosts returns at most q.Limit posts matching q.Scope that lie
	// strictly beyond q.Cursor, newest first. LikeCount is filled in,
	// ViewerHasLiked is not.
	QueryPosts(ctx context.Context, q Query) ([]Post, error)

	// QueryLikedIDs returns which of postIDs the viewer has liked
	QueryLikedIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error)
}

// LikeStore is the write path for likes
type LikeStore interface {
	InsertLike(ctx context.Context, postID, viewerID, actorProducerID string) error
	DeleteLike(ctx context.Context, postID, viewerID string) error
}

// FollowStore resolves the follow graph
type FollowStore interface {
	ResolveFollowedProducerIDs(ctx context.Context, viewerID string) ([]string, error)
}

// LikeEvent describes a like that the store has accepted
type LikeEvent struct {
	PostID          string    `json:"post_id"`
	ActorID         string    `json:"actor_id"`
	ActorProducerID string    `json:"actor_producer_id,omitempty"`
	LikedAt         time.Time `json:"liked_at"`
}

// Notifier receives accepted likes. Implementations must not block the
// caller and must swallow their own failures.
type Notifier interface {
	NotifyLiked(ctx context.Context, event LikeEvent)
}
