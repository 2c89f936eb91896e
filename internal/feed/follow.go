package feed

import (
	"context"
	"sort"

	"github.com/pawprint/petfeed/pkg/telemetry"
)

// FollowSet is the set of producer ids a viewer follows
type FollowSet map[string]struct{}

// NewFollowSet builds a set from ids, dropping duplicates and empty ids
func NewFollowSet(ids ...string) FollowSet {
	set := make(FollowSet, len(ids))
	for _, id := range ids {
		if id != "" {
			set[id] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the producer is followed
func (s FollowSet) Contains(producerID string) bool {
	_, ok := s[producerID]
	return ok
}

// IDs returns the producer ids in ascending order
func (s FollowSet) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FollowResolver turns a viewer into the set of producers they follow. It
// holds no cache; sessions memoize what it returns.
type FollowResolver struct {
	follows FollowStore
}

// NewFollowResolver creates a resolver over the follow store
func NewFollowResolver(follows FollowStore) *FollowResolver {
	return &FollowResolver{follows: follows}
}

// Resolve returns the viewer's follow set, or a *LookupError
func (r *FollowResolver) Resolve(ctx context.Context, viewerID string) (FollowSet, error) {
	ctx, span := telemetry.StartSpan(ctx, "feed.resolve_follows")
	defer span.End()

	ids, err := r.follows.ResolveFollowedProducerIDs(ctx, viewerID)
	if err != nil {
		lErr := &LookupError{ViewerID: viewerID, Err: err}
		telemetry.RecordError(span, lErr)
		return nil, lErr
	}
	return NewFollowSet(ids...), nil
}
