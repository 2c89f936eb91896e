package models

import (
	"time"
)

// User represents a platform account. Users own pets and receive notifications.
type User struct {
	ID          string    `gorm:"type:uuid;primaryKey;column:id"`
	DisplayName string    `gorm:"type:varchar(64);not null;default:'';column:display_name"`
	CreatedAt   time.Time `gorm:"not null;column:created_at"`

	// Relationships
	Pets []Pet `gorm:"foreignKey:OwnerID;references:ID"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
