package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pawprint/petfeed/internal/feed"
	"github.com/pawprint/petfeed/internal/models"
)

// NotificationLister reads stored notifications
type NotificationLister interface {
	ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]models.Notification, error)
}

// FeedAPI provides the feed.* JSON-RPC methods
type FeedAPI struct {
	registry      *Registry
	engine        *feed.Engine
	notifications NotificationLister
}

// NewFeedAPI creates a new feed API. notifications may be nil.
func NewFeedAPI(registry *Registry, engine *feed.Engine, notifications NotificationLister) *FeedAPI {
	return &FeedAPI{
		registry:      registry,
		engine:        engine,
		notifications: notifications,
	}
}

type openParams struct {
	ViewerID string     `json:"viewer_id"`
	Scope    feed.Scope `json:"scope"`
	PageSize int        `json:"page_size"`
}

type sessionParams struct {
	ViewerID  string `json:"viewer_id"`
	SessionID string `json:"session_id"`
}

type likeParams struct {
	ViewerID   string `json:"viewer_id"`
	PostID     string `json:"post_id"`
	ActorPetID string `json:"actor_pet_id"`
}

type notificationsParams struct {
	ViewerID   string `json:"viewer_id"`
	UnreadOnly bool   `json:"unread_only"`
	Limit      int    `json:"limit"`
}

// LoadMoreResult reports whether a page was requested alongside the state
type LoadMoreResult struct {
	Issued bool       `json:"issued"`
	State  feed.State `json:"state"`
}

// LikeResult is the post as the viewer now sees it
type LikeResult struct {
	PostID    string `json:"post_id"`
	Liked     bool   `json:"liked"`
	LikeCount *int64 `json:"like_count,omitempty"`
}

// NotificationView is one rendered notification
type NotificationView struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	ActorID    string    `json:"actor_id,omitempty"`
	ActorPetID string    `json:"actor_pet_id,omitempty"`
	PostID     string    `json:"post_id,omitempty"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}

// Open handles feed.open. The session is only kept if its first page loads.
func (f *FeedAPI) Open(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p openParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.Scope.Kind == "" {
		p.Scope.Kind = feed.ScopeAll
	}

	s, err := f.registry.Open(p.ViewerID, p.Scope, p.PageSize)
	if err != nil {
		return nil, err
	}
	if err := s.Load(ctx.Request.Context()); err != nil {
		f.registry.remove(s)
		return nil, err
	}
	return s.Snapshot(), nil
}

// LoadMore handles feed.load_more
func (f *FeedAPI) LoadMore(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	s, err := f.session(params)
	if err != nil {
		return nil, err
	}
	issued, err := s.LoadMore(ctx.Request.Context())
	if err != nil {
		return nil, err
	}
	return LoadMoreResult{Issued: issued, State: s.Snapshot()}, nil
}

// Refresh handles feed.refresh
func (f *FeedAPI) Refresh(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	s, err := f.session(params)
	if err != nil {
		return nil, err
	}
	if err := s.Refresh(ctx.Request.Context()); err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// State handles feed.state
func (f *FeedAPI) State(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	s, err := f.session(params)
	if err != nil {
		return nil, err
	}
	return s.Snapshot(), nil
}

// Close handles feed.close
func (f *FeedAPI) Close(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p sessionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if err := f.registry.Close(p.SessionID, p.ViewerID); err != nil {
		return nil, err
	}
	return gin.H{"closed": true}, nil
}

// Like handles feed.like
func (f *FeedAPI) Like(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p likeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	targets := f.registry.TargetsFor(p.ViewerID)
	if err := f.engine.Like(ctx.Request.Context(), p.ViewerID, p.PostID, p.ActorPetID, targets...); err != nil {
		return nil, err
	}
	return likeResult(p.PostID, true, targets), nil
}

// Unlike handles feed.unlike
func (f *FeedAPI) Unlike(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p likeParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	targets := f.registry.TargetsFor(p.ViewerID)
	if err := f.engine.Unlike(ctx.Request.Context(), p.ViewerID, p.PostID, targets...); err != nil {
		return nil, err
	}
	return likeResult(p.PostID, false, targets), nil
}

// Notifications handles feed.notifications
func (f *FeedAPI) Notifications(ctx *gin.Context, params json.RawMessage) (interface{}, error) {
	var p notificationsParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	if p.ViewerID == "" {
		return nil, &feed.ValidationError{Field: "viewer_id", Reason: "required"}
	}
	if f.notifications == nil {
		return []NotificationView{}, nil
	}
	limit := p.Limit
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	rows, err := f.notifications.ListForRecipient(ctx.Request.Context(), p.ViewerID, p.UnreadOnly, limit)
	if err != nil {
		return nil, &feed.TransientIOError{Op: "list notifications", Err: err}
	}
	views := make([]NotificationView, len(rows))
	for i, n := range rows {
		views[i] = NotificationView{
			ID:         n.ID,
			Type:       models.NotifyTypeName(n.Type),
			ActorID:    n.ActorID.String,
			ActorPetID: n.ActorPetID.String,
			PostID:     n.PostID.String,
			IsRead:     n.IsRead,
			CreatedAt:  n.CreatedAt,
		}
	}
	return views, nil
}

func (f *FeedAPI) session(params json.RawMessage) (*feed.Session, error) {
	var p sessionParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	return f.registry.Get(p.SessionID, p.ViewerID)
}

// likeResult reads the post back from the first session showing it
func likeResult(postID string, liked bool, targets []feed.Target) LikeResult {
	res := LikeResult{PostID: postID, Liked: liked}
	for _, t := range targets {
		if p, ok := t.Post(postID); ok {
			count := p.LikeCount
			res.LikeCount = &count
			break
		}
	}
	return res
}
