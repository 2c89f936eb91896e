package models

import (
	"time"
)

// Pet is a content producer. Posts are authored by pets, followers follow pets.
type Pet struct {
	ID        string    `gorm:"type:uuid;primaryKey;column:id"`
	OwnerID   string    `gorm:"type:uuid;not null;index;column:owner_id"`
	Name      string    `gorm:"type:varchar(64);not null;column:name"`
	Species   string    `gorm:"type:varchar(32);not null;default:'';column:species"`
	CreatedAt time.Time `gorm:"not null;column:created_at"`

	// Relationships
	Owner *User `gorm:"foreignKey:OwnerID;references:ID"`
}

// TableName specifies the table name for Pet
func (Pet) TableName() string {
	return "pets"
}
