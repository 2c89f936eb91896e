package models

import (
	"time"
)

// Follow represents a user following a pet
type Follow struct {
	FollowerID string    `gorm:"type:uuid;primaryKey;column:follower_id"`
	PetID      string    `gorm:"type:uuid;primaryKey;column:pet_id"`
	CreatedAt  time.Time `gorm:"not null;column:created_at"`

	// Relationships
	Follower *User `gorm:"foreignKey:FollowerID;references:ID"`
	Pet      *Pet  `gorm:"foreignKey:PetID;references:ID"`
}

// TableName specifies the table name for Follow
func (Follow) TableName() string {
	return "pet_follows"
}
