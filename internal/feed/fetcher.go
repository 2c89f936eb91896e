package feed

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/pawprint/petfeed/pkg/logging"
	"github.com/pawprint/petfeed/pkg/telemetry"
)

// PageFetcher issues one bounded, cursor-constrained query per call and
// annotates the result with the viewer's likes
type PageFetcher struct {
	posts       PostStore
	maxPageSize int
	logger      *zap.Logger
}

// NewPageFetcher creates a fetcher that refuses pages larger than maxPageSize
func NewPageFetcher(posts PostStore, maxPageSize int) *PageFetcher {
	return &PageFetcher{
		posts:       posts,
		maxPageSize: maxPageSize,
		logger:      logging.WithComponent("feed-fetcher"),
	}
}

// Fetch returns one page. HasMore is true when the page came back full; the
// final page may therefore be followed by one empty fetch.
func (f *PageFetcher) Fetch(ctx context.Context, q Query, viewerID string) (Page, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.fetch_page")
	defer span.End()
	span.SetAttributes(
		attribute.String("feed.scope", string(q.Scope.Kind)),
		attribute.Int("feed.limit", q.Limit),
		attribute.Bool("feed.has_cursor", q.Cursor != nil),
	)

	if err := f.validate(q, viewerID); err != nil {
		telemetry.RecordError(span, err)
		return Page{}, err
	}

	if q.Scope.Kind == ScopeFollowing && len(q.Following) == 0 {
		return Page{}, nil
	}

	rows, err := f.posts.QueryPosts(ctx, q)
	if err != nil {
		err = transient("query posts", err)
		telemetry.RecordError(span, err)
		return Page{}, err
	}
	hasMore := len(rows) == q.Limit

	items := make([]Post, 0, len(rows))
	for _, p := range rows {
		if q.Cursor != nil && !q.Cursor.Admits(p) {
			f.logger.Debug("Dropping row at or before cursor",
				zap.String("post_id", p.ID),
				zap.String("cursor", q.Cursor.String()))
			continue
		}
		p.ViewerHasLiked = false
		items = append(items, p)
	}

	if viewerID != "" && len(items) > 0 {
		ids := make([]string, len(items))
		for i, p := range items {
			ids[i] = p.ID
		}
		liked, err := f.posts.QueryLikedIDs(ctx, viewerID, ids)
		if err != nil {
			err = transient("query liked ids", err)
			telemetry.RecordError(span, err)
			return Page{}, err
		}
		for i := range items {
			_, items[i].ViewerHasLiked = liked[items[i].ID]
		}
	}

	span.SetAttributes(attribute.Int("feed.items", len(items)))
	return Page{Items: items, HasMore: hasMore}, nil
}

func (f *PageFetcher) validate(q Query, viewerID string) error {
	if q.Limit < 1 || (f.maxPageSize > 0 && q.Limit > f.maxPageSize) {
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be between 1 and %d", f.maxPageSize)}
	}
	if q.Cursor != nil && q.Cursor.ID == "" {
		return &ValidationError{Field: "cursor", Reason: "missing id"}
	}
	return q.Scope.Validate(viewerID)
}
