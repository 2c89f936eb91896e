package feed

import (
	"context"
	"errors"
	"testing"
)

func TestPageFetcher_ViewerAnnotation(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore(makePosts("p", "pet-1", 4, 0)...)
	store.like("viewer-1", "p01")
	store.like("viewer-1", "p03")
	store.like("viewer-2", "p00")
	fetcher := NewPageFetcher(store, 50)
	q := Query{Scope: Scope{Kind: ScopeAll}, Limit: 10}

	t.Run("signed in", func(t *testing.T) {
		page, err := fetcher.Fetch(ctx, q, "viewer-1")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		want := map[string]bool{"p00": false, "p01": true, "p02": false, "p03": true}
		for _, p := range page.Items {
			if p.ViewerHasLiked != want[p.ID] {
				t.Errorf("%s ViewerHasLiked = %v, want %v", p.ID, p.ViewerHasLiked, want[p.ID])
			}
		}
	})

	t.Run("anonymous skips lookup", func(t *testing.T) {
		store.mu.Lock()
		store.likedLookups = 0
		store.mu.Unlock()

		page, err := fetcher.Fetch(ctx, q, "")
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		for _, p := range page.Items {
			if p.ViewerHasLiked {
				t.Errorf("%s ViewerHasLiked = true for anonymous viewer", p.ID)
			}
		}
		if store.likedLookups != 0 {
			t.Errorf("likedLookups = %d, want 0", store.likedLookups)
		}
	})
}

func TestPageFetcher_HasMore(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		posts    int
		limit    int
		wantLen  int
		wantMore bool
	}{
		{"short page", 3, 5, 3, false},
		{"full page", 5, 5, 5, true},
		{"more rows than limit", 8, 5, 5, true},
		{"empty", 0, 5, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore(makePosts("p", "pet-1", tt.posts, 0)...)
			page, err := NewPageFetcher(store, 50).Fetch(ctx, Query{Scope: Scope{Kind: ScopeAll}, Limit: tt.limit}, "")
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(page.Items) != tt.wantLen {
				t.Errorf("len(Items) = %d, want %d", len(page.Items), tt.wantLen)
			}
			if page.HasMore != tt.wantMore {
				t.Errorf("HasMore = %v, want %v", page.HasMore, tt.wantMore)
			}
		})
	}
}

func TestPageFetcher_DropsRowsAtOrBeforeCursor(t *testing.T) {
	posts := makePosts("p", "pet-1", 4, 0)
	cursor := CursorOf(posts[1])
	// A store that ignores the cursor must not leak items into the feed
	store := &scriptedStore{pages: [][]Post{posts}}

	page, err := NewPageFetcher(store, 50).Fetch(context.Background(),
		Query{Scope: Scope{Kind: ScopeAll}, Cursor: &cursor, Limit: 4}, "")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(page.Items) != 2 || page.Items[0].ID != "p02" {
		t.Errorf("Items = %v, want p02, p03", page.Items)
	}
	if !page.HasMore {
		t.Error("HasMore = false, want true for a full raw page")
	}
}

func TestPageFetcher_ScopeFilters(t *testing.T) {
	ctx := context.Background()
	posts := append(makePosts("a", "pet-a", 3, 0), makePosts("b", "pet-b", 3, 5)...)
	posts = append(posts, makePosts("c", "pet-c", 3, 10)...)
	store := newFakeStore(posts...)
	fetcher := NewPageFetcher(store, 50)

	tests := []struct {
		name      string
		query     Query
		producers map[string]bool
		wantLen   int
	}{
		{
			name:      "producer",
			query:     Query{Scope: Scope{Kind: ScopeProducer, ProducerID: "pet-b"}, Limit: 10},
			producers: map[string]bool{"pet-b": true},
			wantLen:   3,
		},
		{
			name:      "following",
			query:     Query{Scope: Scope{Kind: ScopeFollowing}, Following: NewFollowSet("pet-a", "pet-c"), Limit: 10},
			producers: map[string]bool{"pet-a": true, "pet-c": true},
			wantLen:   6,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := fetcher.Fetch(ctx, tt.query, "viewer-1")
			if err != nil {
				t.Fatalf("Fetch() error = %v", err)
			}
			if len(page.Items) != tt.wantLen {
				t.Errorf("len(Items) = %d, want %d", len(page.Items), tt.wantLen)
			}
			for _, p := range page.Items {
				if !tt.producers[p.ProducerID] {
					t.Errorf("item %s from producer %s outside scope", p.ID, p.ProducerID)
				}
			}
		})
	}
}

func TestPageFetcher_EmptyFollowingSkipsStore(t *testing.T) {
	store := newFakeStore(makePosts("p", "pet-1", 3, 0)...)
	page, err := NewPageFetcher(store, 50).Fetch(context.Background(),
		Query{Scope: Scope{Kind: ScopeFollowing}, Following: NewFollowSet(), Limit: 5}, "viewer-1")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(page.Items) != 0 || page.HasMore {
		t.Errorf("Fetch() = %+v, want empty page", page)
	}
	if n := len(store.queryLog()); n != 0 {
		t.Errorf("queries = %d, want 0", n)
	}
}

func TestPageFetcher_Validation(t *testing.T) {
	store := newFakeStore()
	fetcher := NewPageFetcher(store, 20)
	tests := []struct {
		name     string
		query    Query
		viewerID string
	}{
		{"zero limit", Query{Scope: Scope{Kind: ScopeAll}}, ""},
		{"limit above max", Query{Scope: Scope{Kind: ScopeAll}, Limit: 21}, ""},
		{"cursor without id", Query{Scope: Scope{Kind: ScopeAll}, Cursor: &Cursor{CreatedAt: baseTime}, Limit: 5}, ""},
		{"producer without id", Query{Scope: Scope{Kind: ScopeProducer}, Limit: 5}, ""},
		{"following anonymous", Query{Scope: Scope{Kind: ScopeFollowing}, Following: NewFollowSet("pet-1"), Limit: 5}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), tt.query, tt.viewerID)
			if !IsValidation(err) {
				t.Errorf("Fetch() error = %v, want ValidationError", err)
			}
			if IsTransient(err) {
				t.Error("validation error reported as transient")
			}
		})
	}
	if n := len(store.queryLog()); n != 0 {
		t.Errorf("queries = %d, want 0", n)
	}
}

func TestPageFetcher_StoreErrorsAreTransient(t *testing.T) {
	ctx := context.Background()
	q := Query{Scope: Scope{Kind: ScopeAll}, Limit: 5}
	cause := errors.New("connection reset")

	t.Run("query", func(t *testing.T) {
		store := newFakeStore(makePosts("p", "pet-1", 3, 0)...)
		store.setQueryErr(cause)
		_, err := NewPageFetcher(store, 50).Fetch(ctx, q, "")
		if !IsTransient(err) || !errors.Is(err, cause) {
			t.Errorf("Fetch() error = %v, want transient wrapping cause", err)
		}
	})

	t.Run("liked lookup", func(t *testing.T) {
		store := newFakeStore(makePosts("p", "pet-1", 3, 0)...)
		store.likedErr = cause
		_, err := NewPageFetcher(store, 50).Fetch(ctx, q, "viewer-1")
		var tErr *TransientIOError
		if !errors.As(err, &tErr) {
			t.Fatalf("Fetch() error = %v, want *TransientIOError", err)
		}
		if tErr.Op != "query liked ids" {
			t.Errorf("Op = %q, want %q", tErr.Op, "query liked ids")
		}
	})
}
