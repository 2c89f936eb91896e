package notify

import (
	"database/sql"
	"time"

	"github.com/pawprint/petfeed/internal/models"
)

// Message is a notification waiting to be stored. It is what travels through
// the Redis queue between the API process and the writer.
type Message struct {
	ID          string    `json:"id"`
	Type        int16     `json:"type"`
	RecipientID string    `json:"recipient_id"`
	ActorID     string    `json:"actor_id,omitempty"`
	ActorPetID  string    `json:"actor_pet_id,omitempty"`
	PostID      string    `json:"post_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Model converts the message to its table row
func (m Message) Model() models.Notification {
	return models.Notification{
		ID:          m.ID,
		Type:        m.Type,
		RecipientID: m.RecipientID,
		ActorID:     optional(m.ActorID),
		ActorPetID:  optional(m.ActorPetID),
		PostID:      optional(m.PostID),
		CreatedAt:   m.CreatedAt,
	}
}

func (m Message) valid() bool {
	return m.ID != "" && m.RecipientID != "" && models.NotifyTypeName(m.Type) != "unknown"
}

func optional(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
