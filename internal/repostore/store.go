// Package repostore implements the Isolated Repository Store: per-URL
// clone directories under a storage root, with per-clone config
// tracking lastFetch and fetchedRanges.
package repostore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
)

const (
	configLastFetch      = "gitsocial.lastfetch"
	configFetchedRanges  = "gitsocial.fetchedranges"
	reposDir             = "repositories"
)

// Store manages isolated clones under storageRoot.
type Store struct {
	StorageRoot string
}

// New returns a Store rooted at storageRoot.
func New(storageRoot string) *Store {
	return &Store{StorageRoot: storageRoot}
}

// Range is a closed date interval, serialized as YYYY-MM-DD.
type Range struct {
	Start time.Time `json:"-"`
	End   time.Time `json:"-"`
}

type rangeJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Config is the persisted per-clone state.
type Config struct {
	LastFetch     time.Time
	FetchedRanges []Range
}

// RepoPath returns the isolated clone directory for a normalized URL,
// without requiring the clone to exist yet.
func (s *Store) RepoPath(normalizedURL string) string {
	return filepath.Join(s.StorageRoot, reposDir, gitref.Slug(normalizedURL))
}

// EnsureInitialized clones url lazily on first access and returns the
// clone's path. A repository already present with a healthy .git
// directory is reused as-is.
func (s *Store) EnsureInitialized(ctx context.Context, rawURL string) (string, error) {
	if err := gitref.ValidateURL(rawURL); err != nil {
		return "", err
	}
	normalized := gitref.NormalizeURL(rawURL)
	path := s.RepoPath(normalized)

	ops := gitref.New(path)
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil && ops.IsHealthyClone(ctx) {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", giterr.New(giterr.InitError, "creating storage dir: %v", err)
	}
	// A corrupt or partial prior clone is removed before retrying.
	_ = os.RemoveAll(path)

	parent := gitref.New(filepath.Dir(path))
	if err := parent.Clone(ctx, rawURL, path); err != nil {
		return "", giterr.Wrap(giterr.InitError, err)
	}
	return path, nil
}

// withLock runs fn while holding the per-repo file lock, guarding
// config read-modify-write sequences against concurrent goroutines and
// concurrent processes alike.
func (s *Store) withLock(repoPath string, fn func() error) error {
	lockPath := filepath.Join(repoPath, ".gitsocial.lock")
	fl := flock.New(lockPath)
	if err := fl.Lock(); err != nil {
		return giterr.New(giterr.RepoError, "acquiring repo lock: %v", err)
	}
	defer fl.Unlock()
	return fn()
}

// ReadConfig reads the persisted lastFetch/fetchedRanges keys.
func (s *Store) ReadConfig(ctx context.Context, repoPath string) (Config, error) {
	var cfg Config
	err := s.withLock(repoPath, func() error {
		ops := gitref.New(repoPath)

		lastFetch, err := ops.ConfigGet(ctx, configLastFetch)
		if err != nil {
			return giterr.Wrap(giterr.ReadError, err)
		}
		if lastFetch != "" {
			if t, perr := time.Parse(time.RFC3339, lastFetch); perr == nil {
				cfg.LastFetch = t
			}
		}

		raw, err := ops.ConfigGet(ctx, configFetchedRanges)
		if err != nil {
			return giterr.Wrap(giterr.ReadError, err)
		}
		if raw != "" {
			var jsonRanges []rangeJSON
			if err := json.Unmarshal([]byte(raw), &jsonRanges); err == nil {
				for _, jr := range jsonRanges {
					start, serr := time.Parse(gitref.DateLayout, jr.Start)
					end, eerr := time.Parse(gitref.DateLayout, jr.End)
					if serr == nil && eerr == nil {
						cfg.FetchedRanges = append(cfg.FetchedRanges, Range{Start: start, End: end})
					}
				}
			}
		}
		return nil
	})
	return cfg, err
}

// UpdateConfig writes lastFetch and/or fetchedRanges. A zero
// patch.LastFetch and a nil patch.FetchedRanges leave the
// corresponding key untouched; UpdateConfig cannot clear either key.
func (s *Store) UpdateConfig(ctx context.Context, repoPath string, patch Config) error {
	return s.withLock(repoPath, func() error {
		ops := gitref.New(repoPath)
		if !patch.LastFetch.IsZero() {
			if err := ops.ConfigSet(ctx, configLastFetch, patch.LastFetch.UTC().Format(time.RFC3339)); err != nil {
				return giterr.Wrap(giterr.WriteError, err)
			}
		}
		if patch.FetchedRanges != nil {
			encoded, err := encodeRanges(patch.FetchedRanges)
			if err != nil {
				return giterr.Wrap(giterr.WriteError, err)
			}
			if err := ops.ConfigSet(ctx, configFetchedRanges, encoded); err != nil {
				return giterr.Wrap(giterr.WriteError, err)
			}
		}
		return nil
	})
}

// AddFetchedRange unions r into the repository's fetchedRanges,
// coalescing touching or overlapping intervals.
func (s *Store) AddFetchedRange(ctx context.Context, repoPath string, r Range) error {
	cfg, err := s.ReadConfig(ctx, repoPath)
	if err != nil {
		return err
	}
	merged := CoalesceRanges(append(cfg.FetchedRanges, r))
	return s.UpdateConfig(ctx, repoPath, Config{FetchedRanges: merged})
}

// CoalesceRanges merges overlapping or adjacent (touching) ranges into
// their minimal covering set, sorted by start.
func CoalesceRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	out := []Range{sorted[0]}
	for _, r := range sorted[1:] {
		last := &out[len(out)-1]
		// "Touching" means the next range starts no later than one day
		// after the current range ends (inclusive day boundaries).
		if !r.Start.After(last.End.AddDate(0, 0, 1)) {
			if r.End.After(last.End) {
				last.End = r.End
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

// IsCovered reports whether d falls within any fetched range.
func IsCovered(ranges []Range, d time.Time) bool {
	for _, r := range ranges {
		if !d.Before(r.Start) && !d.After(r.End) {
			return true
		}
	}
	return false
}

func encodeRanges(ranges []Range) (string, error) {
	jsonRanges := make([]rangeJSON, 0, len(ranges))
	for _, r := range ranges {
		jsonRanges = append(jsonRanges, rangeJSON{
			Start: r.Start.Format(gitref.DateLayout),
			End:   r.End.Format(gitref.DateLayout),
		})
	}
	b, err := json.Marshal(jsonRanges)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SetPersistent records whether this clone is reachable from a list
// (and so must survive GC) or was created for an ad-hoc view (and is
// eligible for an external cleaner to remove).
func (s *Store) SetPersistent(ctx context.Context, repoPath string, persistent bool) error {
	return s.withLock(repoPath, func() error {
		ops := gitref.New(repoPath)
		val := "false"
		if persistent {
			val = "true"
		}
		if err := ops.ConfigSet(ctx, "gitsocial.persistent", val); err != nil {
			return giterr.Wrap(giterr.WriteError, err)
		}
		return nil
	})
}

// IsPersistent reports the clone's persistence flag, defaulting to
// true when unset (conservative: don't GC something no one explicitly
// marked transient).
func (s *Store) IsPersistent(ctx context.Context, repoPath string) (bool, error) {
	var result bool
	err := s.withLock(repoPath, func() error {
		ops := gitref.New(repoPath)
		val, err := ops.ConfigGet(ctx, "gitsocial.persistent")
		if err != nil {
			return giterr.Wrap(giterr.ReadError, err)
		}
		result = val != "false"
		return nil
	})
	return result, err
}
