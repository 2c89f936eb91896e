package feed

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pawprint/petfeed/pkg/logging"
)

// Session is one viewer's growing view of a feed scope. It owns the ordered
// items, the frontier cursor, the follow set and the loading flags.
//
// All methods are safe for concurrent use. The mutex is never held across a
// store call; every fetch records the epoch it started in and its result is
// dropped if the session was refreshed or closed meanwhile.
type Session struct {
	id       string
	viewerID string
	scope    Scope
	pageSize int

	fetcher  *PageFetcher
	resolver *FollowResolver
	logger   *zap.Logger

	followGroup singleflight.Group

	mu             sync.Mutex
	items          []Post
	index          map[string]int
	hasMore        bool
	loadingInitial bool
	loadingMore    bool
	follows        FollowSet
	epoch          uint64
	generation     uint64
	closed         bool
	lastActive     time.Time
}

// SessionOptions configures a new session
type SessionOptions struct {
	ID       string
	ViewerID string
	Scope    Scope
	PageSize int
}

// State is a point-in-time copy of a session
type State struct {
	SessionID      string `json:"session_id"`
	ViewerID       string `json:"viewer_id,omitempty"`
	Scope          Scope  `json:"scope"`
	Items          []Post `json:"items"`
	Cursor         string `json:"cursor,omitempty"`
	HasMore        bool   `json:"has_more"`
	LoadingInitial bool   `json:"loading_initial"`
	LoadingMore    bool   `json:"loading_more"`
}

// NewSession creates an empty session. Call Load to fetch the first page.
func NewSession(opts SessionOptions, fetcher *PageFetcher, resolver *FollowResolver) (*Session, error) {
	if err := opts.Scope.Validate(opts.ViewerID); err != nil {
		return nil, err
	}
	if opts.PageSize < 1 {
		return nil, &ValidationError{Field: "page_size", Reason: "must be positive"}
	}
	if opts.Scope.Kind == ScopeFollowing && resolver == nil {
		return nil, &ValidationError{Field: "scope", Reason: "following scope needs a follow resolver"}
	}

	return &Session{
		id:         opts.ID,
		viewerID:   opts.ViewerID,
		scope:      opts.Scope,
		pageSize:   opts.PageSize,
		fetcher:    fetcher,
		resolver:   resolver,
		logger:     logging.WithSession("feed-session", opts.ID, opts.ViewerID),
		index:      make(map[string]int),
		lastActive: time.Now(),
	}, nil
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// ViewerID returns the viewer the session was opened for
func (s *Session) ViewerID() string { return s.viewerID }

// Scope returns the session scope
func (s *Session) Scope() Scope { return s.scope }

// LastActive returns when the session was last used
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Load fetches the first page and replaces the items with it. On failure the
// current items are kept.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	epoch := s.begin()
	s.loadingInitial = true
	s.loadingMore = false
	s.mu.Unlock()

	return s.loadInitial(ctx, epoch)
}

// Refresh drops items and cursor, then loads the first page again
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	epoch := s.begin()
	s.generation++
	s.items = nil
	s.index = make(map[string]int)
	s.hasMore = false
	s.loadingInitial = true
	s.loadingMore = false
	s.mu.Unlock()

	return s.loadInitial(ctx, epoch)
}

// LoadMore appends the next page. It returns false without touching the store
// when a page is already loading, nothing more is available, or the session
// has no items yet.
func (s *Session) LoadMore(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrSessionClosed
	}
	s.lastActive = time.Now()
	if s.loadingMore || s.loadingInitial || !s.hasMore || len(s.items) == 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.loadingMore = true
	epoch := s.epoch
	cursor := CursorOf(s.items[len(s.items)-1])
	follows := s.follows
	s.mu.Unlock()

	feedMetrics.fetched(ctx, s.scope.Kind, false)
	page, err := s.fetcher.Fetch(ctx, s.query(follows, &cursor), s.viewerID)
	if err != nil {
		return true, s.fail(ctx, epoch, false, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(epoch) {
		s.logger.Debug("Discarding stale page", zap.String("cursor", cursor.String()))
		return true, nil
	}
	s.appendPage(page.Items)
	s.hasMore = page.HasMore
	s.loadingMore = false
	return true, nil
}

// Close discards the session. Fetches still in flight complete but their
// results are not applied.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.epoch++
	s.loadingInitial = false
	s.loadingMore = false
}

// Closed reports whether Close was called
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := State{
		SessionID:      s.id,
		ViewerID:       s.viewerID,
		Scope:          s.scope,
		Items:          make([]Post, len(s.items)),
		HasMore:        s.hasMore,
		LoadingInitial: s.loadingInitial,
		LoadingMore:    s.loadingMore,
	}
	copy(st.Items, s.items)
	if n := len(s.items); n > 0 {
		st.Cursor = CursorOf(s.items[n-1]).String()
	}
	return st
}

// Post returns the session's copy of a post
func (s *Session) Post(postID string) (Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[postID]
	if !ok || s.closed {
		return Post{}, false
	}
	return s.items[i], true
}

// UpdatePost replaces the post with the result of fn if the session holds it
// in generation gen (any generation for AnyGeneration). It returns the stored
// post, the generation it belongs to and whether it was updated.
func (s *Session) UpdatePost(postID string, gen uint64, fn func(Post) Post) (Post, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[postID]
	if !ok || s.closed {
		return Post{}, 0, false
	}
	if gen != AnyGeneration && gen != s.generation {
		return s.items[i], s.generation, false
	}
	next := fn(s.items[i])
	next.ID = postID
	s.items[i] = next
	s.lastActive = time.Now()
	return next, s.generation, true
}

// Holds reports whether the session currently shows the post
func (s *Session) Holds(postID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[postID]
	return ok
}

func (s *Session) loadInitial(ctx context.Context, epoch uint64) error {
	var follows FollowSet
	if s.scope.Kind == ScopeFollowing {
		set, err := s.followSet(ctx)
		if err != nil {
			return s.fail(ctx, epoch, true, err)
		}
		if len(set) == 0 {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.current(epoch) {
				s.replace(nil)
				s.hasMore = false
				s.loadingInitial = false
			}
			return nil
		}
		follows = set
	}

	feedMetrics.fetched(ctx, s.scope.Kind, true)
	page, err := s.fetcher.Fetch(ctx, s.query(follows, nil), s.viewerID)
	if err != nil {
		return s.fail(ctx, epoch, true, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(epoch) {
		s.logger.Debug("Discarding stale first page")
		return nil
	}
	s.replace(page.Items)
	s.hasMore = page.HasMore
	s.loadingInitial = false
	return nil
}

// followSet resolves the follow set once per session. Concurrent callers
// share one resolution; a failure is not remembered.
func (s *Session) followSet(ctx context.Context) (FollowSet, error) {
	s.mu.Lock()
	if s.follows != nil {
		set := s.follows
		s.mu.Unlock()
		return set, nil
	}
	s.mu.Unlock()

	v, err, _ := s.followGroup.Do("follows", func() (interface{}, error) {
		s.mu.Lock()
		if s.follows != nil {
			set := s.follows
			s.mu.Unlock()
			return set, nil
		}
		s.mu.Unlock()

		set, err := s.resolver.Resolve(ctx, s.viewerID)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.follows = set
		s.mu.Unlock()
		return set, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(FollowSet), nil
}

func (s *Session) query(follows FollowSet, cursor *Cursor) Query {
	return Query{
		Scope:     s.scope,
		Following: follows,
		Cursor:    cursor,
		Limit:     s.pageSize,
	}
}

// fail clears the loading flag of a failed fetch and reports the error.
// Items, cursor and hasMore are left untouched.
func (s *Session) fail(ctx context.Context, epoch uint64, initial bool, err error) error {
	s.mu.Lock()
	if s.current(epoch) {
		if initial {
			s.loadingInitial = false
		} else {
			s.loadingMore = false
		}
	}
	s.mu.Unlock()

	feedMetrics.failed(ctx, s.scope.Kind, initial)
	s.logger.Warn("Feed fetch failed",
		zap.String("scope", string(s.scope.Kind)),
		zap.Bool("initial", initial),
		zap.Bool("transient", IsTransient(err)),
		zap.Error(err))
	return err
}

// begin starts a new epoch; caller holds mu
func (s *Session) begin() uint64 {
	s.epoch++
	s.lastActive = time.Now()
	return s.epoch
}

// current reports whether results from epoch may still be applied; caller holds mu
func (s *Session) current(epoch uint64) bool {
	return !s.closed && epoch == s.epoch
}

// replace installs a first page in a new generation; caller holds mu
func (s *Session) replace(items []Post) {
	s.generation++
	s.items = make([]Post, 0, len(items))
	s.index = make(map[string]int, len(items))
	s.appendPage(items)
}

// appendPage adds items not already present, keeping feed order; caller holds mu
func (s *Session) appendPage(items []Post) {
	for _, p := range items {
		if _, dup := s.index[p.ID]; dup {
			continue
		}
		if n := len(s.items); n > 0 && !newerFirst(s.items[n-1], p) {
			s.logger.Debug("Dropping out-of-order item", zap.String("post_id", p.ID))
			continue
		}
		s.index[p.ID] = len(s.items)
		s.items = append(s.items, p)
	}
}
