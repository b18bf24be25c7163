// Package gitexec provides the single, uniform entry point for
// invoking the git binary as an external process. It never interprets
// output: callers own parsing, this layer only runs the process and
// classifies failure.
package gitexec

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
)

// DefaultTimeout bounds any git invocation that doesn't supply its own
// context deadline.
const DefaultTimeout = 30 * time.Second

// Result is the typed outcome of a single git invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Runner executes git commands against a fixed working directory.
type Runner struct {
	// WorkDir is the directory git is invoked in (a repository root or
	// a not-yet-a-repository directory for `git init`/`git clone`).
	WorkDir string

	// Timeout bounds a single invocation when the caller's context
	// carries no deadline. Zero means DefaultTimeout.
	Timeout time.Duration
}

// New returns a Runner rooted at workDir.
func New(workDir string) *Runner {
	return &Runner{WorkDir: workDir}
}

// Run executes `git <args...>` and returns its typed result. A non-zero
// exit is not itself an error; Run only fails to return a Result when
// the process could not be started or the context was canceled/timed
// out. Callers that need the spec's uniform run(workdir, args) →
// {stdout, stderr, exit} contract should use Run; Classify below turns
// a non-zero exit plus stderr text into a *giterr.Error for call sites
// that want that conversion.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	timeout := r.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if exitErr, ok := runErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if runErr != nil {
		// Process never produced an exit code: missing binary,
		// context deadline, etc. This is the one case Run itself
		// fails rather than reporting a non-zero exit.
		return res, giterr.Wrap(giterr.GitError, runErr)
	}

	return res, nil
}

// Output runs args and returns trimmed stdout, converting a non-zero
// exit into a classified *giterr.Error using code as the fallback when
// stderr text doesn't match a more specific condition.
func (r *Runner) Output(ctx context.Context, code giterr.Code, args ...string) (string, error) {
	res, err := r.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", Classify(code, res)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Classify maps a failed Result onto a *giterr.Error, preferring code
// but recognizing a few stderr patterns worth a more specific one
// (missing ref, no remote).
func Classify(code giterr.Code, res Result) *giterr.Error {
	stderr := strings.TrimSpace(res.Stderr)
	switch {
	case strings.Contains(stderr, "unknown revision"), strings.Contains(stderr, "not a valid ref"):
		return giterr.New(giterr.RefError, "%s", stderr)
	case strings.Contains(stderr, "No such remote"), strings.Contains(stderr, "does not appear to be a git repository"):
		return giterr.New(giterr.RepoError, "%s", stderr)
	default:
		return giterr.New(code, "git exited %d: %s", res.ExitCode, stderr)
	}
}
