// Package postcache implements the in-memory post cache: an index of
// posts keyed by repository identity with covered-date-range tracking
// and size-bounded eviction. Its contents are an accelerator only;
// correctness never depends on what it holds, only on the commit
// graph it was built from.
package postcache

import (
	"sort"
	"sync"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
)

// Post is the derived, ephemeral projection of a commit.
type Post struct {
	ID              string
	Repository      string
	AuthorName      string
	AuthorEmail     string
	Timestamp       time.Time
	Content         string
	CleanContent    string
	Type            gitmsg.PostType
	Source          string // "explicit" | "implicit"
	References      []string // target post ids this post's GitMsg-Ref sections point at
	Comments        int
	Reposts         int
	Quotes          int
	IsUnpushed      bool
	IsWorkspacePost bool
	IsOrigin        bool
}

type repoEntry struct {
	posts  []Post // sorted by Timestamp ascending
	ranges []repostore.Range
}

// DefaultMaxSize is the default eviction threshold.
const DefaultMaxSize = 100_000

// Cache is a post cache instance. It is safe for concurrent use:
// timeline queries, background prefetch and the optional storage
// watcher all touch it, so every access is guarded.
type Cache struct {
	mu      sync.RWMutex
	repos   map[string]*repoEntry
	maxSize int
	total   int
}

// New returns an empty Cache with the given eviction threshold (0
// means DefaultMaxSize).
func New(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Cache{repos: make(map[string]*repoEntry), maxSize: maxSize}
}

// Load merges posts into those known for repository (deduped by ID,
// incoming wins) and adds covered to its covered ranges; used by
// refresh and by the Fetch Coordinator after a successful fetch.
func (c *Cache) Load(repository string, posts []Post, covered repostore.Range) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.repos[repository]
	if !ok {
		entry = &repoEntry{}
		c.repos[repository] = entry
	}

	c.total -= len(entry.posts)
	merged := mergePosts(entry.posts, posts)
	entry.posts = merged
	entry.ranges = repostore.CoalesceRanges(append(entry.ranges, covered))
	c.total += len(merged)

	c.evictIfNeeded()
}

// mergePosts combines existing and incoming, deduping by ID (incoming
// wins) and keeping the result sorted by timestamp ascending.
func mergePosts(existing, incoming []Post) []Post {
	byID := make(map[string]Post, len(existing)+len(incoming))
	for _, p := range existing {
		byID[p.ID] = p
	}
	for _, p := range incoming {
		byID[p.ID] = p
	}
	out := make([]Post, 0, len(byID))
	for _, p := range byID {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// IsCacheRangeCovered reports whether d lies within any range already
// loaded for repository.
func (c *Cache) IsCacheRangeCovered(repository string, d time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.repos[repository]
	if !ok {
		return false
	}
	return repostore.IsCovered(entry.ranges, d)
}

// GetCachedRanges returns the covered ranges known for repository.
func (c *Cache) GetCachedRanges(repository string) []repostore.Range {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.repos[repository]
	if !ok {
		return nil
	}
	out := make([]repostore.Range, len(entry.ranges))
	copy(out, entry.ranges)
	return out
}

// Window returns posts for repository whose timestamp falls in
// [start, end], optionally filtered to types.
func (c *Cache) Window(repository string, start, end time.Time, types []gitmsg.PostType) []Post {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.repos[repository]
	if !ok {
		return nil
	}
	var allowed map[gitmsg.PostType]bool
	if len(types) > 0 {
		allowed = make(map[gitmsg.PostType]bool, len(types))
		for _, t := range types {
			allowed[t] = true
		}
	}
	var out []Post
	for _, p := range entry.posts {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		if allowed != nil && !allowed[p.Type] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Repositories returns every repository identity currently tracked.
func (c *Cache) Repositories() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.repos))
	for r := range c.repos {
		out = append(out, r)
	}
	return out
}

// Scope selects which repositories Clear affects.
type Scope struct {
	All          bool
	Following    bool // clears every non-workspace repository
	Repositories []string
	Workspace    string // excluded when Following is set
}

// Clear drops entries matching scope.
func (c *Cache) Clear(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case scope.All:
		c.repos = make(map[string]*repoEntry)
		c.total = 0
	case scope.Following:
		for url := range c.repos {
			if url == scope.Workspace {
				continue
			}
			c.total -= len(c.repos[url].posts)
			delete(c.repos, url)
		}
	default:
		for _, url := range scope.Repositories {
			if entry, ok := c.repos[url]; ok {
				c.total -= len(entry.posts)
				delete(c.repos, url)
			}
		}
	}
}

// evictIfNeeded drops the globally-oldest posts across all
// repositories until the cache is back within maxSize. Must be called
// with c.mu held for writing.
func (c *Cache) evictIfNeeded() {
	for c.total > c.maxSize {
		oldestRepo := ""
		var oldestTime time.Time
		for url, entry := range c.repos {
			if len(entry.posts) == 0 {
				continue
			}
			if oldestRepo == "" || entry.posts[0].Timestamp.Before(oldestTime) {
				oldestRepo = url
				oldestTime = entry.posts[0].Timestamp
			}
		}
		if oldestRepo == "" {
			return
		}
		entry := c.repos[oldestRepo]
		evicted := entry.posts[0]
		entry.posts = entry.posts[1:]
		c.total--
		// Evicted timestamps drop out of the covered set: any range
		// ending before the evicted post's timestamp is gone entirely,
		// and a range containing it is trimmed to start after it. The
		// cache must never claim coverage for a window it can no longer
		// answer from.
		if len(entry.posts) == 0 {
			entry.ranges = nil
			delete(c.repos, oldestRepo)
			continue
		}
		entry.ranges = trimRangesBefore(entry.ranges, evicted.Timestamp)
	}
}

// trimRangesBefore removes cutoff (and everything before it) from the
// covered set, keeping coverage strictly after the evicted timestamp.
func trimRangesBefore(ranges []repostore.Range, cutoff time.Time) []repostore.Range {
	var out []repostore.Range
	for _, r := range ranges {
		if !r.End.After(cutoff) {
			continue
		}
		if !r.Start.After(cutoff) {
			r.Start = cutoff.Add(time.Nanosecond)
		}
		out = append(out, r)
	}
	return out
}
