package gitref

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitexec"
)

// Commit is a single commit's identity and raw message, the unit both
// List Store history and Post Cache refresh walk over.
type Commit struct {
	Hash        string
	ParentHash  string
	AuthorName  string
	AuthorEmail string
	Time        time.Time
	Message     string
}

// commitSep is a separator unlikely to appear in a commit message; it
// lets a single `git log` call return one record per line-delimited
// field group without ambiguity.
const commitSep = "\x1f"
const commitEnd = "\x1e"

const logFormat = "%H" + commitSep + "%P" + commitSep + "%an" + commitSep + "%ae" + commitSep + "%aI" + commitSep + "%B" + commitEnd

// ReadCommit returns the single commit hash resolves to.
func (o *Ops) ReadCommit(ctx context.Context, hash string) (*Commit, error) {
	res, err := o.runner.Run(ctx, "log", "-1", "--format="+logFormat, hash)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, gitexec.Classify(giterr.ReadError, res)
	}
	commits := parseLog(res.Stdout)
	if len(commits) == 0 {
		return nil, giterr.New(giterr.ReadError, "commit %s not found", hash)
	}
	return &commits[0], nil
}

// WalkOptions bounds a commit-chain walk.
type WalkOptions struct {
	Since time.Time // zero value: no lower bound
	Until time.Time // zero value: no upper bound
	Limit int        // zero: unbounded
}

// WalkCommits walks ref's commit chain newest-first, the shared
// primitive behind List Store history and Post Cache refresh.
func (o *Ops) WalkCommits(ctx context.Context, ref string, opts WalkOptions) ([]Commit, error) {
	args := []string{"log", "--format=" + logFormat, ref}
	if !opts.Since.IsZero() {
		args = append(args, "--since="+opts.Since.Format("2006-01-02"))
	}
	if !opts.Until.IsZero() {
		args = append(args, "--until="+opts.Until.Format("2006-01-02"))
	}
	if opts.Limit > 0 {
		args = append(args, "-n", strconv.Itoa(opts.Limit))
	}
	res, err := o.runner.Run(ctx, args...)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		// An absent ref (e.g. a brand new list) is an empty history,
		// not a read failure.
		if strings.Contains(res.Stderr, "unknown revision") || strings.Contains(res.Stderr, "bad revision") {
			return nil, nil
		}
		return nil, gitexec.Classify(giterr.ReadError, res)
	}
	return parseLog(res.Stdout), nil
}

func parseLog(raw string) []Commit {
	var commits []Commit
	for _, rec := range strings.Split(raw, commitEnd) {
		rec = strings.Trim(rec, "\n")
		if rec == "" {
			continue
		}
		parts := strings.SplitN(rec, commitSep, 6)
		if len(parts) != 6 {
			continue
		}
		t, _ := time.Parse(time.RFC3339, parts[4])
		parents := strings.Fields(parts[1])
		parent := ""
		if len(parents) > 0 {
			parent = parents[0]
		}
		commits = append(commits, Commit{
			Hash:        parts[0],
			ParentHash:  parent,
			AuthorName:  parts[2],
			AuthorEmail: parts[3],
			Time:        t,
			Message:     strings.Trim(parts[5], "\n"),
		})
	}
	return commits
}
