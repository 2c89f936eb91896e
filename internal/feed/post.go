package feed

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Post is a feed item as seen by one viewer. ViewerHasLiked is joined in at
// fetch time and is not part of the stored row.
type Post struct {
	ID             string    `json:"id"`
	ProducerID     string    `json:"producer_id"`
	Caption        string    `json:"caption,omitempty"`
	MediaURL       string    `json:"media_url,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	LikeCount      int64     `json:"like_count"`
	ViewerHasLiked bool      `json:"viewer_has_liked"`
}

// Cursor is the sort key of the last fetched item. Pages after it hold items
// strictly older in (CreatedAt, ID) order.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor pointing just past p
func CursorOf(p Post) Cursor {
	return Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
}

// String encodes the cursor as "<unix nanos>::<id>"
func (c Cursor) String() string {
	return fmt.Sprintf("%d::%s", c.CreatedAt.UnixNano(), c.ID)
}

// Admits reports whether p lies strictly beyond the cursor
func (c Cursor) Admits(p Post) bool {
	if p.CreatedAt.Equal(c.CreatedAt) {
		return p.ID < c.ID
	}
	return p.CreatedAt.Before(c.CreatedAt)
}

// ParseCursor decodes a cursor produced by Cursor.String
func ParseCursor(s string) (Cursor, error) {
	parts := strings.SplitN(s, "::", 2)
	if len(parts) != 2 || parts[1] == "" {
		return Cursor{}, &ValidationError{Field: "cursor", Reason: "must be in format 'timestamp::id'"}
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, &ValidationError{Field: "cursor", Reason: "invalid timestamp"}
	}
	return Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: parts[1]}, nil
}

// newerFirst reports whether a sorts before b in feed order
func newerFirst(a, b Post) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID > b.ID
	}
	return a.CreatedAt.After(b.CreatedAt)
}

// ScopeKind selects one of the disjoint feed query shapes
type ScopeKind string

const (
	ScopeAll       ScopeKind = "all"
	ScopeProducer  ScopeKind = "producer"
	ScopeFollowing ScopeKind = "following"
)

// Scope identifies which posts a session shows
type Scope struct {
	Kind       ScopeKind `json:"kind"`
	ProducerID string    `json:"producer_id,omitempty"`
}

// Validate checks the scope against the viewer it is opened for
func (s Scope) Validate(viewerID string) error {
	switch s.Kind {
	case ScopeAll:
		return nil
	case ScopeProducer:
		if s.ProducerID == "" {
			return &ValidationError{Field: "producer_id", Reason: "required for producer scope"}
		}
		return nil
	case ScopeFollowing:
		if viewerID == "" {
			return &ValidationError{Field: "viewer_id", Reason: "following scope needs a viewer"}
		}
		return nil
	default:
		return &ValidationError{Field: "scope", Reason: fmt.Sprintf("unknown kind %q", s.Kind)}
	}
}

// Query is one bounded page request against the post store
type Query struct {
	Scope Scope
	// Following restricts producers for ScopeFollowing
	Following FollowSet
	// Cursor is nil for the first page
	Cursor *Cursor
	Limit  int
}

// Page is the result of one fetch
type Page struct {
	Items   []Post
	HasMore bool
}
