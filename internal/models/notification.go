package models

import (
	"database/sql"
	"time"
)

// Notification represents a notification delivered to a user
type Notification struct {
	ID          string         `gorm:"type:uuid;primaryKey;column:id"`
	Type        int16          `gorm:"type:smallint;not null;column:type_id"`
	RecipientID string         `gorm:"type:uuid;not null;index;column:recipient_id"`
	ActorID     sql.NullString `gorm:"type:uuid;column:actor_id"`
	ActorPetID  sql.NullString `gorm:"type:uuid;column:actor_pet_id"`
	PostID      sql.NullString `gorm:"type:uuid;column:post_id"`
	IsRead      bool           `gorm:"not null;default:false;column:is_read"`
	CreatedAt   time.Time      `gorm:"not null;column:created_at"`

	// Relationships
	Recipient *User `gorm:"foreignKey:RecipientID;references:ID"`
	Post      *Post `gorm:"foreignKey:PostID;references:ID"`
}

// TableName specifies the table name for Notification
func (Notification) TableName() string {
	return "notifications"
}

// Notification type constants
const (
	NotifyTypeLike    int16 = 1
	NotifyTypeFollow  int16 = 2
	NotifyTypeComment int16 = 3
)

// NotifyTypeName returns the wire name of a notification type
func NotifyTypeName(typeID int16) string {
	switch typeID {
	case NotifyTypeLike:
		return "like"
	case NotifyTypeFollow:
		return "follow"
	case NotifyTypeComment:
		return "comment"
	default:
		return "unknown"
	}
}
