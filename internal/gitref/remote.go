package gitref

import (
	"context"
	"strings"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitexec"
)

// Fetch fetches branch from remote, shallow since the given date
// (format YYYY-MM-DD). An empty since performs a full fetch.
func (o *Ops) Fetch(ctx context.Context, remote, branch, since string) error {
	args := []string{"fetch", remote, branch}
	if since != "" {
		args = append(args, "--shallow-since="+since)
	}
	res, err := o.runner.Run(ctx, args...)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gitexec.Classify(giterr.FetchError, res)
	}
	return nil
}

// Push pushes branch to remote.
func (o *Ops) Push(ctx context.Context, remote, branch string) error {
	res, err := o.runner.Run(ctx, "push", remote, branch)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		if strings.Contains(res.Stderr, "non-fast-forward") || strings.Contains(res.Stderr, "fetch first") {
			return giterr.New(giterr.GitError, "push rejected, remote has diverged: %s", strings.TrimSpace(res.Stderr))
		}
		return gitexec.Classify(giterr.GitError, res)
	}
	return nil
}

// AheadBehind returns how many commits localRef is ahead of and behind
// remoteRef, the primitive behind getUnpushedCounts.
func (o *Ops) AheadBehind(ctx context.Context, localRef, remoteRef string) (ahead, behind int, err error) {
	res, rerr := o.runner.Run(ctx, "rev-list", "--left-right", "--count", localRef+"..."+remoteRef)
	if rerr != nil {
		return 0, 0, rerr
	}
	if res.ExitCode != 0 {
		return 0, 0, nil
	}
	fields := strings.Fields(res.Stdout)
	if len(fields) != 2 {
		return 0, 0, nil
	}
	ahead = atoiSafe(fields[0])
	behind = atoiSafe(fields[1])
	return ahead, behind, nil
}

func atoiSafe(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	return n
}

// LsRemote lists the remote's refs under prefix, returning a map from
// full ref name to hash. This is the primitive behind the
// unpushed-lists count: local list refs are compared against what the
// remote actually holds.
func (o *Ops) LsRemote(ctx context.Context, remote, prefix string) (map[string]string, error) {
	res, err := o.runner.Run(ctx, "ls-remote", remote, prefix+"*")
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, gitexec.Classify(giterr.FetchError, res)
	}
	out := make(map[string]string)
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		out[fields[1]] = fields[0]
	}
	return out, nil
}

// DateLayout is the wire format for fetched-range and cache-range
// boundaries.
const DateLayout = "2006-01-02"
