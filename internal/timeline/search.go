package timeline

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/social"
)

// SearchPosts scans the cached posts for scope, matching query
// case-insensitively against clean content, author name and email. It
// never fetches: search operates on what the cache already holds, and
// a caller wanting wider coverage runs a window query first.
func (s *Service) SearchPosts(ctx context.Context, query string, scope Scope) ([]postcache.Post, error) {
	repos, err := s.resolveScope(ctx, scope)
	if err != nil {
		return nil, giterr.Wrap(giterr.TimelineError, err)
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return nil, nil
	}

	var out []postcache.Post
	seen := make(map[string]bool)
	for _, repo := range repos {
		for _, p := range s.Coordinator.Cache.Window(repo, time.Time{}, farFuture, nil) {
			if seen[p.ID] {
				continue
			}
			if !matchPost(p, needle) {
				continue
			}
			seen[p.ID] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out, nil
}

var farFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

func matchPost(p postcache.Post, needle string) bool {
	return strings.Contains(strings.ToLower(p.CleanContent), needle) ||
		strings.Contains(strings.ToLower(p.AuthorName), needle) ||
		strings.Contains(strings.ToLower(p.AuthorEmail), needle)
}

// Notification is one interaction on a workspace post, newest-first in
// GetNotifications' reply.
type Notification struct {
	Post   postcache.Post // the interacting post
	Target string         // the workspace post id it points at
}

// GetNotifications returns every cached interaction whose single
// reference points at a post in the workspace repository.
func (s *Service) GetNotifications(ctx context.Context) ([]Notification, error) {
	mine := make(map[string]bool)
	for _, p := range s.Coordinator.Cache.Window(s.WorkDir, time.Time{}, farFuture, nil) {
		mine[p.ID] = true
	}

	var out []Notification
	for _, repo := range s.Coordinator.Cache.Repositories() {
		if repo == s.WorkDir {
			continue
		}
		for _, p := range s.Coordinator.Cache.Window(repo, time.Time{}, farFuture, nil) {
			if len(p.References) != 1 || !mine[p.References[0]] {
				continue
			}
			if social.InteractionKind(p.Type) {
				out = append(out, Notification{Post: p, Target: p.References[0]})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Post.Timestamp.After(out[j].Post.Timestamp) })
	return out, nil
}
