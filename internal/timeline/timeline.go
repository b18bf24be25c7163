// Package timeline implements the Timeline Service: window queries over
// a named scope that drive the Fetch Coordinator on cache miss, merge
// and dedupe the result, and fire-and-forget adjacent-week prefetch.
package timeline

import (
	"context"
	"log"
	"sort"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/social"
)

// ListExtension is the GitMsg extension namespace a followed list's
// repository membership is read from.
const ListExtension = "social"

// Scope selects the source of posts for a window query: "timeline",
// "list:<id>", "repository:<url>", or the workspace itself.
type Scope struct {
	Kind string // "timeline" | "list" | "repository" | "workspace"
	ID   string // list name or repository URL; unused for "timeline"
}

// RepositoryOutcome records one repository's fetch result within a
// week-posts reply, surfaced so a single repository's failure never
// hides the others' cached posts.
type RepositoryOutcome struct {
	Repository string
	Err        error
}

// WeekOptions filters a window query by post type.
type WeekOptions struct {
	Types []gitmsg.PostType
}

// WeekResult is get_week_posts's reply shape.
type WeekResult struct {
	Posts        []postcache.Post
	Repositories []RepositoryOutcome
}

// Service composes the List Store, Fetch Coordinator and Post Cache
// into scope-aware window queries.
type Service struct {
	Lists       *liststore.Store
	Coordinator *fetchcoordinator.Coordinator
	WorkDir     string // workspace repository identity for "repository:my" / implicit workspace inclusion
	Logger      *log.Logger
}

// New returns a Service wired to the given components.
func New(lists *liststore.Store, coord *fetchcoordinator.Coordinator, workDir string, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{Lists: lists, Coordinator: coord, WorkDir: workDir, Logger: logger}
}

// GetWeekPosts is the Timeline Service's hot path: it ensures cache
// coverage for every candidate repository in scope when storageRoot is
// non-empty, queries the Post Cache for the window, merges and dedupes
// by post id, and schedules adjacent-week prefetch without awaiting it.
func (s *Service) GetWeekPosts(ctx context.Context, storageRoot string, weekStart, weekEnd time.Time, scope Scope, opts WeekOptions) (WeekResult, error) {
	repos, err := s.resolveScope(ctx, scope)
	if err != nil {
		return WeekResult{}, giterr.Wrap(giterr.TimelineError, err)
	}

	var result WeekResult
	seen := make(map[string]bool)
	for _, repo := range repos {
		if storageRoot != "" {
			var fetchErr error
			if repo == s.WorkDir {
				// The workspace's posts are already local; load them
				// straight off the branch instead of fetching.
				fetchErr = s.Coordinator.RefreshWorkspace(ctx, repo)
			} else {
				fetchErr = s.Coordinator.EnsureDataForDateRange(ctx, repo, weekStart, fetchcoordinator.EnsureOptions{
					IsPersistent: scope.Kind == "list" || scope.Kind == "timeline",
				})
			}
			result.Repositories = append(result.Repositories, RepositoryOutcome{Repository: repo, Err: fetchErr})
			if fetchErr != nil {
				s.Logger.Printf("timeline: fetch failed for %s, serving cached posts only: %v", repo, fetchErr)
			}
		}
		for _, p := range s.Coordinator.Cache.Window(repo, weekStart, weekEnd, opts.Types) {
			if seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			result.Posts = append(result.Posts, p)
		}
	}

	result.Posts = social.Aggregate(result.Posts)
	sort.Slice(result.Posts, func(i, j int) bool {
		return result.Posts[i].Timestamp.After(result.Posts[j].Timestamp)
	})

	if storageRoot != "" {
		go s.prefetchAdjacentWeeks(context.Background(), storageRoot, weekStart, repos)
	}

	return result, nil
}

// prefetchAdjacentWeeks warms the cache for the weeks immediately
// before and after weekStart. It is fire-and-forget; failures are
// logged, never propagated.
func (s *Service) prefetchAdjacentWeeks(ctx context.Context, storageRoot string, weekStart time.Time, repos []string) {
	for _, delta := range []int{-7, 7} {
		since := weekStart.AddDate(0, 0, delta)
		for _, repo := range repos {
			if repo == s.WorkDir {
				continue // workspace posts are loaded locally, not fetched
			}
			if err := s.Coordinator.EnsureDataForDateRange(ctx, repo, since, fetchcoordinator.EnsureOptions{}); err != nil {
				s.Logger.Printf("timeline: adjacent-week prefetch failed for %s: %v", repo, err)
			}
		}
	}
}

// ResolveScope expands a Scope into the concrete repository identities
// it spans, for callers that batch-fetch rather than window-query.
func (s *Service) ResolveScope(ctx context.Context, scope Scope) ([]string, error) {
	return s.resolveScope(ctx, scope)
}

// resolveScope expands a Scope into the concrete repository identities
// it spans.
func (s *Service) resolveScope(ctx context.Context, scope Scope) ([]string, error) {
	switch scope.Kind {
	case "workspace", "":
		return []string{s.WorkDir}, nil
	case "repository":
		if scope.ID == "my" {
			return []string{s.WorkDir}, nil
		}
		return []string{scope.ID}, nil
	case "list":
		repos, err := s.listRepositories(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		return repos, nil
	case "timeline":
		names, err := s.Lists.Enumerate(ctx, ListExtension)
		if err != nil {
			return nil, err
		}
		all := []string{s.WorkDir}
		for _, name := range names {
			repos, err := s.listRepositories(ctx, name)
			if err != nil {
				s.Logger.Printf("timeline: skipping unreadable list %q: %v", name, err)
				continue
			}
			all = append(all, repos...)
		}
		return dedupeStrings(all), nil
	default:
		return nil, giterr.New(giterr.TimelineError, "unknown scope kind %q", scope.Kind)
	}
}

// listPayload is the JSON shape a curated repository list is expected
// to carry.
type listPayload struct {
	Repositories []string `json:"repositories"`
}

func (s *Service) listRepositories(ctx context.Context, name string) ([]string, error) {
	raw, err := s.Lists.Read(ctx, ListExtension, name)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, giterr.New(giterr.ListNotFound, "list %q not found or unreadable", name)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}
	rawRepos, ok := m["repositories"].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(rawRepos))
	for _, r := range rawRepos {
		if str, ok := r.(string); ok {
			out = append(out, str)
		}
	}
	return out, nil
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Stats is get_timeline_stats's reply shape.
type Stats struct {
	TotalPosts       int
	PostsByType      map[gitmsg.PostType]int
	PostsByAuthor    map[string]int // keyed by email
	PostsByRepository map[string]int
	DateRangeStart   time.Time
	DateRangeEnd     time.Time
}

// GetTimelineStats summarizes a slice of posts.
func GetTimelineStats(entries []postcache.Post) Stats {
	stats := Stats{
		PostsByType:       make(map[gitmsg.PostType]int),
		PostsByAuthor:     make(map[string]int),
		PostsByRepository: make(map[string]int),
	}
	for _, p := range entries {
		stats.TotalPosts++
		stats.PostsByType[p.Type]++
		stats.PostsByAuthor[p.AuthorEmail]++
		stats.PostsByRepository[p.Repository]++
		if stats.DateRangeStart.IsZero() || p.Timestamp.Before(stats.DateRangeStart) {
			stats.DateRangeStart = p.Timestamp
		}
		if stats.DateRangeEnd.IsZero() || p.Timestamp.After(stats.DateRangeEnd) {
			stats.DateRangeEnd = p.Timestamp
		}
	}
	return stats
}
