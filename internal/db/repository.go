package db

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pawprint/petfeed/internal/feed"
	"github.com/pawprint/petfeed/internal/models"
)

// Repository provides database access methods
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// PostRepository reads feed pages
type PostRepository struct {
	*Repository
}

// NewPostRepository creates a new post repository
func NewPostRepository(repo *Repository) *PostRepository {
	return &PostRepository{Repository: repo}
}

// QueryPosts implements feed.PostStore. Rows come back in (created_at, id)
// descending order; the row comparison keeps the cursor strict when several
// posts share a timestamp.
func (r *PostRepository) QueryPosts(ctx context.Context, q feed.Query) ([]feed.Post, error) {
	tx := r.db.WithContext(ctx).Model(&models.Post{})

	switch q.Scope.Kind {
	case feed.ScopeProducer:
		tx = tx.Where("pet_id = ?", q.Scope.ProducerID)
	case feed.ScopeFollowing:
		if len(q.Following) == 0 {
			return nil, nil
		}
		tx = tx.Where("pet_id IN ?", q.Following.IDs())
	}
	if q.Cursor != nil {
		tx = tx.Where("(created_at, id) < (?, ?)", q.Cursor.CreatedAt, q.Cursor.ID)
	}

	var rows []models.Post
	if err := tx.Order("created_at DESC").Order("id DESC").Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}

	posts := make([]feed.Post, len(rows))
	for i, row := range rows {
		posts[i] = feed.Post{
			ID:         row.ID,
			ProducerID: row.PetID,
			Caption:    row.Caption,
			MediaURL:   row.MediaURL,
			CreatedAt:  row.CreatedAt.UTC(),
			LikeCount:  row.LikeCount,
		}
	}
	return posts, nil
}

// QueryLikedIDs implements feed.PostStore
func (r *PostRepository) QueryLikedIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error) {
	liked := make(map[string]struct{})
	if viewerID == "" || len(postIDs) == 0 {
		return liked, nil
	}

	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Like{}).
		Where("user_id = ? AND post_id IN ?", viewerID, postIDs).
		Pluck("post_id", &ids).Error
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		liked[id] = struct{}{}
	}
	return liked, nil
}

// OwnerOf returns the user owning the pet that authored the post, or "" if
// the post does not exist
func (r *PostRepository) OwnerOf(ctx context.Context, postID string) (string, error) {
	var owners []string
	err := r.db.WithContext(ctx).Model(&models.Post{}).
		Joins("JOIN pets ON pets.id = posts.pet_id").
		Where("posts.id = ?", postID).
		Limit(1).
		Pluck("pets.owner_id", &owners).Error
	if err != nil {
		return "", err
	}
	if len(owners) == 0 {
		return "", nil
	}
	return owners[0], nil
}

// LikeRepository writes likes and keeps posts.like_count in step
type LikeRepository struct {
	*Repository
}

// NewLikeRepository creates a new like repository
func NewLikeRepository(repo *Repository) *LikeRepository {
	return &LikeRepository{Repository: repo}
}

// InsertLike implements feed.LikeStore. Liking twice is a no-op.
func (r *LikeRepository) InsertLike(ctx context.Context, postID, viewerID, actorProducerID string) error {
	like := &models.Like{
		PostID:    postID,
		UserID:    viewerID,
		PetID:     nullString(actorProducerID),
		CreatedAt: time.Now().UTC(),
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(like)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return adjustLikeCount(tx, postID, 1)
	})
}

// DeleteLike implements feed.LikeStore. Unliking a post that is not liked is
// a no-op.
func (r *LikeRepository) DeleteLike(ctx context.Context, postID, viewerID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("post_id = ? AND user_id = ?", postID, viewerID).Delete(&models.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return adjustLikeCount(tx, postID, -1)
	})
}

// adjustLikeCount moves like_count by delta, never below zero
func adjustLikeCount(tx *gorm.DB, postID string, delta int) error {
	return tx.Model(&models.Post{}).
		Where("id = ?", postID).
		UpdateColumn("like_count", gorm.Expr("GREATEST(like_count + ?, 0)", delta)).Error
}

// FollowRepository reads the follow graph
type FollowRepository struct {
	*Repository
}

// NewFollowRepository creates a new follow repository
func NewFollowRepository(repo *Repository) *FollowRepository {
	return &FollowRepository{Repository: repo}
}

// ResolveFollowedProducerIDs implements feed.FollowStore
func (r *FollowRepository) ResolveFollowedProducerIDs(ctx context.Context, viewerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.Follow{}).
		Where("follower_id = ?", viewerID).
		Pluck("pet_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// NotificationRepository provides notification database operations
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(repo *Repository) *NotificationRepository {
	return &NotificationRepository{Repository: repo}
}

// CreateBatch inserts notifications, skipping ids that already exist so a
// retried batch does not duplicate rows
func (r *NotificationRepository) CreateBatch(ctx context.Context, notifications []models.Notification) error {
	if len(notifications) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&notifications).Error
}

// ListForRecipient returns the newest notifications for a user
func (r *NotificationRepository) ListForRecipient(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]models.Notification, error) {
	tx := r.db.WithContext(ctx).Where("recipient_id = ?", recipientID)
	if unreadOnly {
		tx = tx.Where("is_read = ?", false)
	}
	var notifications []models.Notification
	if err := tx.Order("created_at DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, err
	}
	return notifications, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
