// Package fetchcoordinator implements ensureDataForDateRange and
// batch fetch_updates: it ties the Isolated Repository Store, Ref &
// Commit Ops and Post Cache together so higher layers never have to
// reason about clones or fetch bookkeeping directly.
package fetchcoordinator

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
)

// Coordinator implements ensure_data_for_date_range and fetch_updates.
type Coordinator struct {
	Repos  *repostore.Store
	Cache  *postcache.Cache
	Remote string // default remote name, e.g. "origin"
	Branch string // default branch, e.g. "main"
	Logger *log.Logger

	group singleflight.Group
}

// New returns a Coordinator wired to repos and cache.
func New(repos *repostore.Store, cache *postcache.Cache, remote, branch string, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{Repos: repos, Cache: cache, Remote: remote, Branch: branch, Logger: logger}
}

// EnsureOptions configures a single ensure_data_for_date_range call.
type EnsureOptions struct {
	Branch       string // overrides Coordinator.Branch when non-empty
	IsPersistent bool
}

// EnsureDataForDateRange guarantees that, on success, the isolated
// clone for repoURL has been fetched covering [since, now] and the
// post cache contains those posts. When fetchedRanges already covers
// since no fetch is made, and the post cache is loaded from the
// existing clone unless it already covers since. Concurrent calls for
// the same (url, since) are
// deduplicated via singleflight.
func (c *Coordinator) EnsureDataForDateRange(ctx context.Context, repoURL string, since time.Time, opts EnsureOptions) error {
	normalized := gitref.NormalizeURL(repoURL)
	key := normalized + "\x00" + since.Format(gitref.DateLayout)

	_, err, _ := c.group.Do(key, func() (any, error) {
		return nil, c.ensureOnce(ctx, repoURL, normalized, since, opts)
	})
	return asError(err)
}

func (c *Coordinator) ensureOnce(ctx context.Context, repoURL, normalized string, since time.Time, opts EnsureOptions) error {
	branch := opts.Branch
	if branch == "" {
		branch = c.Branch
	}

	repoPath, err := c.Repos.EnsureInitialized(ctx, repoURL)
	if err != nil {
		return giterr.Wrap(giterr.EnsureDataError, err)
	}
	if err := c.Repos.SetPersistent(ctx, repoPath, opts.IsPersistent); err != nil {
		c.Logger.Printf("fetchcoordinator: failed to record persistence flag for %s: %v", gitref.SanitizeURL(repoURL), err)
	}

	cfg, err := c.Repos.ReadConfig(ctx, repoPath)
	if err != nil {
		return giterr.Wrap(giterr.EnsureDataError, err)
	}
	if repostore.IsCovered(cfg.FetchedRanges, since) {
		if c.Cache.IsCacheRangeCovered(normalized, since) {
			return nil
		}
		return c.refreshCache(ctx, normalized, repoPath, branch)
	}

	ops := gitref.New(repoPath)
	sinceStr := since.Format(gitref.DateLayout)
	if err := ops.Fetch(ctx, c.Remote, branch, sinceStr); err != nil {
		// Fetched ranges are left unchanged on failure; the caller
		// still gets whatever is already cached.
		return giterr.Wrap(giterr.FetchError, err)
	}

	today := time.Now()
	if err := c.Repos.AddFetchedRange(ctx, repoPath, repostore.Range{Start: since, End: today}); err != nil {
		return giterr.Wrap(giterr.EnsureDataError, err)
	}
	if err := c.Repos.UpdateConfig(ctx, repoPath, repostore.Config{LastFetch: today}); err != nil {
		return giterr.Wrap(giterr.EnsureDataError, err)
	}

	return c.refreshCache(ctx, normalized, repoPath, branch)
}

// refreshCache loads commits from the branch into the post cache; the
// Load call itself widens covered ranges via
// repostore.CoalesceRanges.
func (c *Coordinator) refreshCache(ctx context.Context, repository, repoPath, branch string) error {
	ops := gitref.New(repoPath)
	ref := gitref.RemoteBranchRef(c.Remote, branch)
	commits, err := ops.WalkCommits(ctx, ref, gitref.WalkOptions{})
	if err != nil {
		return giterr.Wrap(giterr.EnsureDataError, err)
	}

	posts := make([]postcache.Post, 0, len(commits))
	for _, commit := range commits {
		posts = append(posts, postcache.FromCommit(repository, commit))
	}

	var start, end time.Time
	if len(commits) > 0 {
		start, end = commits[len(commits)-1].Time, commits[0].Time
	} else {
		start, end = time.Now(), time.Now()
	}
	c.Cache.Load(repository, posts, repostore.Range{Start: start, End: end})
	return nil
}

// RefreshWorkspace loads the workspace repository's own social branch
// into the cache, keyed by the workspace path. Workspace posts never
// go through the isolated-clone fetch path, they are already local.
func (c *Coordinator) RefreshWorkspace(ctx context.Context, workDir string) error {
	ops := gitref.New(workDir)
	commits, err := ops.WalkCommits(ctx, gitref.BranchRef(c.Branch), gitref.WalkOptions{})
	if err != nil {
		return giterr.Wrap(giterr.EnsureDataError, err)
	}

	posts := make([]postcache.Post, 0, len(commits))
	for _, commit := range commits {
		p := postcache.FromCommit(workDir, commit)
		p.IsWorkspacePost = true
		posts = append(posts, p)
	}

	var start, end time.Time
	if len(commits) > 0 {
		start, end = commits[len(commits)-1].Time, commits[0].Time
	} else {
		start, end = time.Now(), time.Now()
	}
	c.Cache.Load(workDir, posts, repostore.Range{Start: start, End: end})
	return nil
}

// FetchWorkspaceRemote fetches the workspace's configured remote (the
// non-isolated case) and records remote.<name>.gitsocial-lastfetch on
// the workspace config.
func (c *Coordinator) FetchWorkspaceRemote(ctx context.Context, workDir string, since time.Time) error {
	ops := gitref.New(workDir)
	if err := ops.Fetch(ctx, c.Remote, c.Branch, since.Format(gitref.DateLayout)); err != nil {
		return err
	}
	key := "remote." + c.Remote + ".gitsocial-lastfetch"
	if err := ops.ConfigSet(ctx, key, time.Now().UTC().Format(time.RFC3339)); err != nil {
		c.Logger.Printf("fetchcoordinator: recording %s failed: %v", key, err)
	}
	return nil
}

// RefreshRepository rebuilds the Post Cache entry for repoURL from its
// existing isolated clone without fetching, the per-repository arm of
// the cache's refresh(selector) operation.
func (c *Coordinator) RefreshRepository(ctx context.Context, repoURL string) error {
	normalized := gitref.NormalizeURL(repoURL)
	repoPath := c.Repos.RepoPath(normalized)
	return c.refreshCache(ctx, normalized, repoPath, c.Branch)
}

// FetchOutcome is the per-repository result of a batch fetch_updates
// call.
type FetchOutcome struct {
	Repository string
	Err        error
}

// FetchUpdates fetches each repository in urls independently and
// reports counts, with no atomicity across repositories: a single
// repository's failure never aborts the batch.
func (c *Coordinator) FetchUpdates(ctx context.Context, urls []string, since time.Time, opts EnsureOptions) (fetched, failed int, outcomes []FetchOutcome) {
	for _, url := range urls {
		err := c.EnsureDataForDateRange(ctx, url, since, opts)
		outcomes = append(outcomes, FetchOutcome{Repository: url, Err: err})
		if err != nil {
			failed++
			c.Logger.Printf("fetchcoordinator: fetch failed for %s: %v", gitref.SanitizeURL(url), err)
			continue
		}
		fetched++
	}
	return fetched, failed, outcomes
}

func asError(err error) error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*giterr.Error); ok {
		return ge
	}
	return giterr.Wrap(giterr.EnsureDataError, err)
}
