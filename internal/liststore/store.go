// Package liststore implements the generic, branch-independent keyed
// store backed by refs/gitmsg/<ext>/lists/<name>: every write is a new
// commit on the empty tree, and history is the commit chain itself.
package liststore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
)

// Store performs CRUD and history operations against one repository
// working directory.
type Store struct {
	ops *gitref.Ops
}

// New returns a Store rooted at workDir.
func New(workDir string) *Store {
	return &Store{ops: gitref.New(workDir)}
}

// Entry is one point in a list's history.
type Entry struct {
	Hash      string
	Author    string
	Email     string
	Timestamp time.Time
	// Payload is the parsed JSON value when the commit message is
	// valid JSON, else nil.
	Payload any
	// Content is always the raw commit message, preserved so callers
	// that want the non-JSON raw text never lose it.
	Content string
}

// HistoryOptions bounds a history walk.
type HistoryOptions struct {
	Since time.Time
	Until time.Time
}

// Read resolves the list's current payload. A missing ref and a tip
// commit whose message is not valid JSON both return (nil, nil):
// absence and "not interpretable as structured data" are represented
// as a null read, not an error.
func (s *Store) Read(ctx context.Context, ext, name string) (any, error) {
	ref := gitref.ListRef(ext, name)
	hash, err := s.ops.ReadRef(ctx, ref)
	if err != nil {
		return nil, giterr.Wrap(giterr.ReadError, err)
	}
	if hash == "" {
		return nil, nil
	}
	commit, err := s.ops.ReadCommit(ctx, hash)
	if err != nil {
		return nil, giterr.Wrap(giterr.ReadError, err)
	}
	return decodePayload(commit.Message), nil
}

// Write stringifies data as pretty JSON, commits it onto the empty
// tree, and advances the list's ref to the new commit.
func (s *Store) Write(ctx context.Context, ext, name string, data any) error {
	encoded, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return giterr.Wrap(giterr.WriteError, err)
	}

	ref := gitref.ListRef(ext, name)
	parent, err := s.ops.ReadRef(ctx, ref)
	if err != nil {
		return giterr.Wrap(giterr.ReadError, err)
	}

	hash, err := s.ops.CreateEmptyTreeCommit(ctx, string(encoded), parent)
	if err != nil {
		return err // already a *giterr.Error with CommitError
	}

	if err := s.ops.UpdateRef(ctx, ref, hash); err != nil {
		return err // already a *giterr.Error with RefError
	}
	return nil
}

// Delete removes the list's ref. Deleting an absent list is success.
func (s *Store) Delete(ctx context.Context, ext, name string) error {
	if err := s.ops.DeleteRef(ctx, gitref.ListRef(ext, name)); err != nil {
		return giterr.Wrap(giterr.DeleteError, err)
	}
	return nil
}

// Enumerate lists the names of every list under ext.
func (s *Store) Enumerate(ctx context.Context, ext string) ([]string, error) {
	prefix := gitref.ListPrefix(ext)
	refs, err := s.ops.ListRefsByPrefix(ctx, prefix)
	if err != nil {
		return nil, giterr.Wrap(giterr.EnumError, err)
	}
	names := make([]string, 0, len(refs))
	for _, r := range refs {
		names = append(names, r[len(prefix):])
	}
	return names, nil
}

// History walks the list's commit chain newest-first.
func (s *Store) History(ctx context.Context, ext, name string, opts HistoryOptions) ([]Entry, error) {
	commits, err := s.ops.WalkCommits(ctx, gitref.ListRef(ext, name), gitref.WalkOptions{
		Since: opts.Since,
		Until: opts.Until,
	})
	if err != nil {
		return nil, giterr.Wrap(giterr.ReadError, err)
	}
	entries := make([]Entry, 0, len(commits))
	for _, c := range commits {
		entries = append(entries, Entry{
			Hash:      c.Hash,
			Author:    c.AuthorName,
			Email:     c.AuthorEmail,
			Timestamp: c.Time,
			Payload:   decodePayload(c.Message),
			Content:   c.Message,
		})
	}
	return entries, nil
}

// decodePayload attempts a JSON decode of raw, using gjson.Valid as a
// cheap pre-check to skip the unmarshal allocation entirely for the
// common case of a long raw-text commit chain.
func decodePayload(raw string) any {
	if !gjson.Valid(raw) {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil
	}
	return v
}
