package feed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// makePosts returns n posts by producer, newest first, one minute apart,
// starting at baseTime minus offset minutes
func makePosts(prefix, producer string, n, offset int) []Post {
	posts := make([]Post, n)
	for i := range posts {
		posts[i] = Post{
			ID:         fmt.Sprintf("%s%02d", prefix, i),
			ProducerID: producer,
			CreatedAt:  baseTime.Add(-time.Duration(offset+i) * time.Minute),
		}
	}
	return posts
}

type hold struct {
	entered chan struct{}
	release chan struct{}
}

type fakeStore struct {
	mu           sync.Mutex
	posts        []Post
	liked        map[string]map[string]bool
	queries      []Query
	likedLookups int
	queryErr     error
	likedErr     error
	hold         *hold
}

func newFakeStore(posts ...Post) *fakeStore {
	return &fakeStore{posts: posts, liked: make(map[string]map[string]bool)}
}

// holdNext makes the next QueryPosts call wait until release is called
func (s *fakeStore) holdNext() (entered <-chan struct{}, release func()) {
	h := &hold{entered: make(chan struct{}), release: make(chan struct{})}
	s.mu.Lock()
	s.hold = h
	s.mu.Unlock()
	return h.entered, func() { close(h.release) }
}

func (s *fakeStore) setQueryErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryErr = err
}

func (s *fakeStore) like(viewerID, postID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.liked[viewerID] == nil {
		s.liked[viewerID] = make(map[string]bool)
	}
	s.liked[viewerID][postID] = true
}

func (s *fakeStore) queryLog() []Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Query, len(s.queries))
	copy(out, s.queries)
	return out
}

func (s *fakeStore) QueryPosts(ctx context.Context, q Query) ([]Post, error) {
	s.mu.Lock()
	if q.Cursor != nil {
		c := *q.Cursor
		q.Cursor = &c
	}
	s.queries = append(s.queries, q)
	h := s.hold
	s.hold = nil
	err := s.queryErr
	posts := make([]Post, len(s.posts))
	copy(posts, s.posts)
	s.mu.Unlock()

	if h != nil {
		close(h.entered)
		<-h.release
	}
	if err != nil {
		return nil, err
	}

	sort.Slice(posts, func(i, j int) bool { return newerFirst(posts[i], posts[j]) })
	var out []Post
	for _, p := range posts {
		switch q.Scope.Kind {
		case ScopeProducer:
			if p.ProducerID != q.Scope.ProducerID {
				continue
			}
		case ScopeFollowing:
			if !q.Following.Contains(p.ProducerID) {
				continue
			}
		}
		if q.Cursor != nil && !q.Cursor.Admits(p) {
			continue
		}
		out = append(out, p)
		if len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) QueryLikedIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.likedLookups++
	if s.likedErr != nil {
		return nil, s.likedErr
	}
	out := make(map[string]struct{})
	for _, id := range postIDs {
		if s.liked[viewerID][id] {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// scriptedStore returns canned pages in order, whatever the query says
type scriptedStore struct {
	mu      sync.Mutex
	pages   [][]Post
	queries []Query
}

func (s *scriptedStore) QueryPosts(ctx context.Context, q Query) ([]Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if len(s.pages) == 0 {
		return nil, nil
	}
	page := s.pages[0]
	s.pages = s.pages[1:]
	return page, nil
}

func (s *scriptedStore) QueryLikedIDs(ctx context.Context, viewerID string, postIDs []string) (map[string]struct{}, error) {
	return map[string]struct{}{}, nil
}

type fakeFollows struct {
	mu    sync.Mutex
	ids   []string
	err   error
	calls int
}

func (f *fakeFollows) ResolveFollowedProducerIDs(ctx context.Context, viewerID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.ids, nil
}

func (f *fakeFollows) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeLikes struct {
	insertErr error
	deleteErr error
	inserts   int
	deletes   int
	onWrite   func()
}

func (f *fakeLikes) InsertLike(ctx context.Context, postID, viewerID, actorProducerID string) error {
	f.inserts++
	if f.onWrite != nil {
		f.onWrite()
	}
	return f.insertErr
}

func (f *fakeLikes) DeleteLike(ctx context.Context, postID, viewerID string) error {
	f.deletes++
	if f.onWrite != nil {
		f.onWrite()
	}
	return f.deleteErr
}

type recordingNotifier struct {
	events []LikeEvent
}

func (n *recordingNotifier) NotifyLiked(ctx context.Context, event LikeEvent) {
	n.events = append(n.events, event)
}

func newTestSession(viewerID string, scope Scope, pageSize int, posts PostStore, follows FollowStore) *Session {
	var resolver *FollowResolver
	if follows != nil {
		resolver = NewFollowResolver(follows)
	}
	s, err := NewSession(SessionOptions{
		ID:       "sess-1",
		ViewerID: viewerID,
		Scope:    scope,
		PageSize: pageSize,
	}, NewPageFetcher(posts, 50), resolver)
	if err != nil {
		panic(err)
	}
	return s
}
