package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

// newService builds a Service whose coordinator points at an empty
// storage root; tests preload the cache directly and query with an
// empty storageRoot so no fetch is ever attempted.
func newService(t *testing.T, workDir string) (*Service, *postcache.Cache) {
	t.Helper()
	cache := postcache.New(0)
	coord := fetchcoordinator.New(repostore.New(t.TempDir()), cache, "origin", "main", nil)
	return New(liststore.New(workDir), coord, workDir, nil), cache
}

func TestGetWeekPostsMergesAndDedupes(t *testing.T) {
	svc, cache := newService(t, "ws")
	cover := repostore.Range{Start: day("2024-01-01"), End: day("2024-01-31")}
	cache.Load("ws", []postcache.Post{
		{ID: "#commit:aaaaaaaaaaaa", Repository: "ws", Timestamp: day("2024-01-02"), Type: gitmsg.PostTypePost},
		{ID: "#commit:bbbbbbbbbbbb", Repository: "ws", Timestamp: day("2024-01-03"), Type: gitmsg.PostTypePost},
	}, cover)

	result, err := svc.GetWeekPosts(context.Background(), "", day("2024-01-01"), day("2024-01-07"), Scope{Kind: "workspace"}, WeekOptions{})
	if err != nil {
		t.Fatalf("get week posts: %v", err)
	}
	if len(result.Posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(result.Posts))
	}
	// Newest first.
	if !result.Posts[0].Timestamp.After(result.Posts[1].Timestamp) {
		t.Fatalf("expected newest-first ordering")
	}
	// Empty storageRoot means no fetch outcomes are reported.
	if len(result.Repositories) != 0 {
		t.Fatalf("expected no fetch outcomes, got %v", result.Repositories)
	}
}

func TestGetWeekPostsFiltersByType(t *testing.T) {
	svc, cache := newService(t, "ws")
	cover := repostore.Range{Start: day("2024-01-01"), End: day("2024-01-31")}
	cache.Load("ws", []postcache.Post{
		{ID: "#commit:aaaaaaaaaaaa", Repository: "ws", Timestamp: day("2024-01-02"), Type: gitmsg.PostTypePost},
		{ID: "#commit:bbbbbbbbbbbb", Repository: "ws", Timestamp: day("2024-01-03"), Type: gitmsg.PostTypeComment},
	}, cover)

	result, err := svc.GetWeekPosts(context.Background(), "", day("2024-01-01"), day("2024-01-07"), Scope{Kind: "workspace"}, WeekOptions{
		Types: []gitmsg.PostType{gitmsg.PostTypeComment},
	})
	if err != nil {
		t.Fatalf("get week posts: %v", err)
	}
	if len(result.Posts) != 1 || result.Posts[0].Type != gitmsg.PostTypeComment {
		t.Fatalf("unexpected filter result: %+v", result.Posts)
	}
}

func TestGetWeekPostsAggregatesInteractions(t *testing.T) {
	svc, cache := newService(t, "ws")
	cover := repostore.Range{Start: day("2024-01-01"), End: day("2024-01-31")}
	cache.Load("ws", []postcache.Post{
		{ID: "#commit:aaaaaaaaaaaa", Repository: "ws", Timestamp: day("2024-01-02"), Type: gitmsg.PostTypePost},
		{ID: "#commit:bbbbbbbbbbbb", Repository: "ws", Timestamp: day("2024-01-03"), Type: gitmsg.PostTypeComment,
			References: []string{"#commit:aaaaaaaaaaaa"}},
	}, cover)

	result, err := svc.GetWeekPosts(context.Background(), "", day("2024-01-01"), day("2024-01-07"), Scope{Kind: "workspace"}, WeekOptions{})
	if err != nil {
		t.Fatalf("get week posts: %v", err)
	}
	for _, p := range result.Posts {
		if p.ID == "#commit:aaaaaaaaaaaa" && p.Comments != 1 {
			t.Fatalf("expected 1 comment on target, got %d", p.Comments)
		}
	}
}

func TestSearchPostsMatchesContentAndAuthor(t *testing.T) {
	svc, cache := newService(t, "ws")
	cover := repostore.Range{Start: day("2024-01-01"), End: day("2024-01-31")}
	cache.Load("ws", []postcache.Post{
		{ID: "#commit:aaaaaaaaaaaa", Repository: "ws", Timestamp: day("2024-01-02"), CleanContent: "Gophers assemble", AuthorName: "Alice", AuthorEmail: "a@x"},
		{ID: "#commit:bbbbbbbbbbbb", Repository: "ws", Timestamp: day("2024-01-03"), CleanContent: "unrelated", AuthorName: "Bob", AuthorEmail: "b@x"},
	}, cover)

	byContent, err := svc.SearchPosts(context.Background(), "gophers", Scope{Kind: "workspace"})
	if err != nil || len(byContent) != 1 || byContent[0].ID != "#commit:aaaaaaaaaaaa" {
		t.Fatalf("unexpected content search result: %v, %v", byContent, err)
	}

	byAuthor, err := svc.SearchPosts(context.Background(), "bob", Scope{Kind: "workspace"})
	if err != nil || len(byAuthor) != 1 || byAuthor[0].ID != "#commit:bbbbbbbbbbbb" {
		t.Fatalf("unexpected author search result: %v, %v", byAuthor, err)
	}

	empty, err := svc.SearchPosts(context.Background(), "   ", Scope{Kind: "workspace"})
	if err != nil || empty != nil {
		t.Fatalf("blank query should return nothing, got %v, %v", empty, err)
	}
}

func TestGetNotificationsFindsInteractionsOnWorkspacePosts(t *testing.T) {
	svc, cache := newService(t, "ws")
	cover := repostore.Range{Start: day("2024-01-01"), End: day("2024-01-31")}
	cache.Load("ws", []postcache.Post{
		{ID: "#commit:aaaaaaaaaaaa", Repository: "ws", Timestamp: day("2024-01-02"), Type: gitmsg.PostTypePost},
	}, cover)
	cache.Load("https://example.com/other", []postcache.Post{
		{ID: "#commit:bbbbbbbbbbbb", Repository: "https://example.com/other", Timestamp: day("2024-01-03"),
			Type: gitmsg.PostTypeComment, References: []string{"#commit:aaaaaaaaaaaa"}},
		{ID: "#commit:cccccccccccc", Repository: "https://example.com/other", Timestamp: day("2024-01-04"),
			Type: gitmsg.PostTypePost},
	}, cover)

	notifications, err := svc.GetNotifications(context.Background())
	if err != nil {
		t.Fatalf("notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifications))
	}
	if notifications[0].Target != "#commit:aaaaaaaaaaaa" {
		t.Fatalf("unexpected target %q", notifications[0].Target)
	}
}

func TestResolveScopeUnknownKind(t *testing.T) {
	svc, _ := newService(t, "ws")
	if _, err := svc.ResolveScope(context.Background(), Scope{Kind: "nonsense"}); err == nil {
		t.Fatalf("expected error for unknown scope kind")
	}
}

func TestGetTimelineStats(t *testing.T) {
	posts := []postcache.Post{
		{ID: "1", Repository: "r1", AuthorEmail: "a@x", Timestamp: day("2024-01-01"), Type: gitmsg.PostTypePost},
		{ID: "2", Repository: "r1", AuthorEmail: "a@x", Timestamp: day("2024-01-05"), Type: gitmsg.PostTypeComment},
		{ID: "3", Repository: "r2", AuthorEmail: "b@x", Timestamp: day("2024-01-03"), Type: gitmsg.PostTypePost},
	}
	stats := GetTimelineStats(posts)
	if stats.TotalPosts != 3 {
		t.Fatalf("total: %d", stats.TotalPosts)
	}
	if stats.PostsByType[gitmsg.PostTypePost] != 2 || stats.PostsByType[gitmsg.PostTypeComment] != 1 {
		t.Fatalf("by type: %v", stats.PostsByType)
	}
	if stats.PostsByAuthor["a@x"] != 2 || stats.PostsByAuthor["b@x"] != 1 {
		t.Fatalf("by author: %v", stats.PostsByAuthor)
	}
	if stats.PostsByRepository["r1"] != 2 {
		t.Fatalf("by repository: %v", stats.PostsByRepository)
	}
	if !stats.DateRangeStart.Equal(day("2024-01-01")) || !stats.DateRangeEnd.Equal(day("2024-01-05")) {
		t.Fatalf("date range: %v .. %v", stats.DateRangeStart, stats.DateRangeEnd)
	}
}
