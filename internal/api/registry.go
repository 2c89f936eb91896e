package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pawprint/petfeed/internal/feed"
	"github.com/pawprint/petfeed/pkg/logging"
)

// RegistryOptions bounds the sessions a Registry hands out
type RegistryOptions struct {
	DefaultPageSize int
	MaxPageSize     int
	IdleTTL         time.Duration
}

// Registry owns the open feed sessions of this process
type Registry struct {
	fetcher  *feed.PageFetcher
	resolver *feed.FollowResolver
	opts     RegistryOptions
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*feed.Session
}

// NewRegistry creates an empty registry
func NewRegistry(fetcher *feed.PageFetcher, resolver *feed.FollowResolver, opts RegistryOptions) *Registry {
	return &Registry{
		fetcher:  fetcher,
		resolver: resolver,
		opts:     opts,
		logger:   logging.WithComponent("session-registry"),
		now:      time.Now,
		sessions: make(map[string]*feed.Session),
	}
}

// Open creates and registers a session. pageSize 0 picks the default.
func (r *Registry) Open(viewerID string, scope feed.Scope, pageSize int) (*feed.Session, error) {
	if pageSize == 0 {
		pageSize = r.opts.DefaultPageSize
	}
	if pageSize < 1 || pageSize > r.opts.MaxPageSize {
		return nil, &feed.ValidationError{
			Field:  "page_size",
			Reason: fmt.Sprintf("must be between 1 and %d", r.opts.MaxPageSize),
		}
	}

	s, err := feed.NewSession(feed.SessionOptions{
		ID:       uuid.NewString(),
		ViewerID: viewerID,
		Scope:    scope,
		PageSize: pageSize,
	}, r.fetcher, r.resolver)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	r.logger.Debug("Opened feed session",
		zap.String("session_id", s.ID()),
		zap.String("viewer_id", viewerID),
		zap.String("scope", string(scope.Kind)))
	return s, nil
}

// Get returns the viewer's session. A session belonging to someone else is
// reported as not found.
func (r *Registry) Get(sessionID, viewerID string) (*feed.Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[sessionID]
	r.mu.RUnlock()
	if !ok || s.ViewerID() != viewerID || s.Closed() {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and forgets the viewer's session
func (r *Registry) Close(sessionID, viewerID string) error {
	s, err := r.Get(sessionID, viewerID)
	if err != nil {
		return err
	}
	r.remove(s)
	return nil
}

// TargetsFor returns every open session of the viewer, for echoing likes
func (r *Registry) TargetsFor(viewerID string) []feed.Target {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var targets []feed.Target
	for _, s := range r.sessions {
		if s.ViewerID() == viewerID && viewerID != "" {
			targets = append(targets, s)
		}
	}
	return targets
}

// Len returns the number of open sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and returns how many
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.opts.IdleTTL)

	r.mu.RLock()
	var idle []*feed.Session
	for _, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			idle = append(idle, s)
		}
	}
	r.mu.RUnlock()

	for _, s := range idle {
		r.remove(s)
	}
	if len(idle) > 0 {
		r.logger.Info("Swept idle feed sessions", zap.Int("count", len(idle)), zap.Int("open", r.Len()))
	}
	return len(idle)
}

// Run sweeps idle sessions every interval until ctx is cancelled, then
// closes what is left
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}

func (r *Registry) remove(s *feed.Session) {
	s.Close()
	r.mu.Lock()
	delete(r.sessions, s.ID())
	r.mu.Unlock()
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		s.Close()
		delete(r.sessions, id)
	}
}
