// Package gitref implements ref and commit-object operations on top of
// gitexec: reading and writing refs, walking commit chains, and the
// fetch/push bookkeeping every higher component builds on.
package gitref

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitexec"
)

// EmptyTree is the hash of git's canonical empty tree object, the
// backing tree for every List Store and social-interaction commit.
const EmptyTree = "4b825dc642cb6eb9a060e54bf8d69288fbee4904"

// Ops bundles ref and commit operations for one repository working
// directory.
type Ops struct {
	runner *gitexec.Runner
}

// New returns Ops rooted at workDir.
func New(workDir string) *Ops {
	return &Ops{runner: gitexec.New(workDir)}
}

// ReadRef resolves ref to a commit hash. A missing ref returns
// ("", nil); absence is not an error at this layer.
func (o *Ops) ReadRef(ctx context.Context, ref string) (string, error) {
	res, err := o.runner.Run(ctx, "show-ref", "--verify", "--hash", ref)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// RefExists reports whether ref currently resolves to a commit.
func (o *Ops) RefExists(ctx context.Context, ref string) (bool, error) {
	hash, err := o.ReadRef(ctx, ref)
	return hash != "", err
}

// UpdateRef points ref at hash, creating it if absent. Git's
// update-ref is the atomicity boundary for concurrent list writes: the
// last caller whose update-ref invocation completes wins. No expected
// old value is passed, so a caller whose update completes earlier gets
// no error even though its commit is replaced as the tip; a caller
// that fails to take the ref lock gets a RefError.
func (o *Ops) UpdateRef(ctx context.Context, ref, hash string) error {
	res, err := o.runner.Run(ctx, "update-ref", ref, hash)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gitexec.Classify(giterr.RefError, res)
	}
	return nil
}

// DeleteRef removes ref. Deleting an absent ref is success.
func (o *Ops) DeleteRef(ctx context.Context, ref string) error {
	exists, err := o.RefExists(ctx, ref)
	if err != nil {
		return err
	}
	if !exists {
		return nil
	}
	res, err := o.runner.Run(ctx, "update-ref", "-d", ref)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gitexec.Classify(giterr.DeleteError, res)
	}
	return nil
}

// ListRefsByPrefix enumerates ref names (full, e.g.
// "refs/gitmsg/social/lists/reading") under prefix.
func (o *Ops) ListRefsByPrefix(ctx context.Context, prefix string) ([]string, error) {
	res, err := o.runner.Run(ctx, "for-each-ref", "--format=%(refname)", prefix)
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, gitexec.Classify(giterr.EnumError, res)
	}
	var refs []string
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			refs = append(refs, line)
		}
	}
	return refs, nil
}

// ConfigGet reads a single config key, returning ("", nil) when unset.
func (o *Ops) ConfigGet(ctx context.Context, key string) (string, error) {
	res, err := o.runner.Run(ctx, "config", "--get", key)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// ConfigSet writes a single config key.
func (o *Ops) ConfigSet(ctx context.Context, key, value string) error {
	res, err := o.runner.Run(ctx, "config", "--replace-all", key, value)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gitexec.Classify(giterr.WriteError, res)
	}
	return nil
}

// CreateEmptyTreeCommit creates a new commit object on the fixed empty
// tree with message as its body, optionally on top of parent (empty
// string for a root commit). It returns the new commit's hash; the
// caller is responsible for pointing a ref at it.
func (o *Ops) CreateEmptyTreeCommit(ctx context.Context, message, parent string) (string, error) {
	args := []string{"commit-tree", EmptyTree, "-m", message}
	if parent != "" {
		args = append(args, "-p", parent)
	}
	res, err := o.runner.Run(ctx, args...)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", gitexec.Classify(giterr.CommitError, res)
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Clone performs a plain (full) git clone of url into dest.
func (o *Ops) Clone(ctx context.Context, url, dest string) error {
	res, err := o.runner.Run(ctx, "clone", url, dest)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		return gitexec.Classify(giterr.InitError, res)
	}
	return nil
}

// IsHealthyClone reports whether the Ops working directory looks like a
// usable git checkout: the directory has to resolve as a repository
// rather than merely exist.
func (o *Ops) IsHealthyClone(ctx context.Context) bool {
	res, err := o.runner.Run(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return false
	}
	return res.ExitCode == 0 && strings.TrimSpace(res.Stdout) == "true"
}

// CurrentBranch returns the checked-out branch name, or "" when
// detached.
func (o *Ops) CurrentBranch(ctx context.Context) (string, error) {
	res, err := o.runner.Run(ctx, "symbolic-ref", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// BranchRef builds the full ref name for a local branch.
func BranchRef(branch string) string {
	return fmt.Sprintf("refs/heads/%s", branch)
}

// RemoteBranchRef builds the full ref name for a remote-tracking
// branch.
func RemoteBranchRef(remote, branch string) string {
	return fmt.Sprintf("refs/remotes/%s/%s", remote, branch)
}

// ListRef builds the full ref name for a List Store entry.
func ListRef(ext, name string) string {
	return fmt.Sprintf("refs/gitmsg/%s/lists/%s", ext, name)
}

// ListPrefix builds the ref-namespace prefix for every list under ext.
func ListPrefix(ext string) string {
	return fmt.Sprintf("refs/gitmsg/%s/lists/", ext)
}
