package models

import (
	"time"
)

// Post represents a feed post authored by a pet
type Post struct {
	ID        string    `gorm:"type:uuid;primaryKey;column:id"`
	PetID     string    `gorm:"type:uuid;not null;index:posts_pet_created_idx,priority:1;column:pet_id"`
	Caption   string    `gorm:"type:text;not null;default:'';column:caption"`
	MediaURL  string    `gorm:"type:varchar(1024);not null;default:'';column:media_url"`
	LikeCount int64     `gorm:"not null;default:0;check:like_count >= 0;column:like_count"`
	CreatedAt time.Time `gorm:"not null;index:posts_created_idx,sort:desc;index:posts_pet_created_idx,priority:2,sort:desc;column:created_at"`

	// Relationships
	Pet *Pet `gorm:"foreignKey:PetID;references:ID"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}
