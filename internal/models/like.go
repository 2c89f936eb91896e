package models

import (
	"database/sql"
	"time"
)

// Like records that a user liked a post, optionally on behalf of one of their pets
type Like struct {
	PostID    string         `gorm:"type:uuid;primaryKey;column:post_id"`
	UserID    string         `gorm:"type:uuid;primaryKey;column:user_id"`
	PetID     sql.NullString `gorm:"type:uuid;column:pet_id"`
	CreatedAt time.Time      `gorm:"not null;column:created_at"`

	// Relationships
	Post *Post `gorm:"foreignKey:PostID;references:ID"`
	User *User `gorm:"foreignKey:UserID;references:ID"`
}

// TableName specifies the table name for Like
func (Like) TableName() string {
	return "post_likes"
}
