// Package social implements comment/repost/quote creation on top of
// the gitmsg codec and ref operations, plus the post-hoc
// interaction-count aggregation.
package social

import (
	"context"
	"fmt"
	"strings"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
)

// ProtocolVersion and ExtVersion are the (v, ext-v) pair stamped on
// every interaction this package creates.
const (
	ProtocolVersion = "0.1.0"
	ExtVersion      = "0.1.0"
)

// Identity is the author of a new interaction.
type Identity struct {
	Name  string
	Email string
}

// Target is the post an interaction points at.
type Target struct {
	ID    string // "#commit:<12-hex>"
	Name  string
	Email string
	Time  string // ISO-8601, copied onto the Reference's time field
}

// Service creates comments, reposts and quotes on the configured social
// branch of one repository working directory.
type Service struct {
	ops    *gitref.Ops
	Branch string
}

// New returns a Service rooted at workDir, committing onto branch.
func New(workDir, branch string) *Service {
	return &Service{ops: gitref.New(workDir), Branch: branch}
}

func (s *Service) commit(ctx context.Context, msg *gitmsg.Message) (string, error) {
	if !gitmsg.Validate(msg) {
		return "", giterr.New(giterr.ValidationError, "generated interaction message failed validation")
	}
	ref := gitref.BranchRef(s.Branch)
	parent, err := s.ops.ReadRef(ctx, ref)
	if err != nil {
		return "", giterr.Wrap(giterr.ReadError, err)
	}
	hash, err := s.ops.CreateEmptyTreeCommit(ctx, gitmsg.FormatMessage(msg), parent)
	if err != nil {
		return "", err
	}
	if err := s.ops.UpdateRef(ctx, ref, hash); err != nil {
		return "", err
	}
	return hash, nil
}

func targetRef(t Target) gitmsg.Ref {
	return *gitmsg.NewRef("social", t.ID, ProtocolVersion, ExtVersion, t.Name, t.Email, t.Time)
}

// CreateComment posts content as a comment referencing target; the
// user's content is the commit body.
func (s *Service) CreateComment(ctx context.Context, author Identity, target Target, content string) (string, error) {
	msg := &gitmsg.Message{
		Content: strings.TrimSpace(content),
		Header:  gitmsg.NewHeader("social", ProtocolVersion, ExtVersion, [2]string{"type", string(gitmsg.PostTypeComment)}),
		Refs:    []gitmsg.Ref{targetRef(target)},
	}
	return s.commit(ctx, msg)
}

// CreateQuote posts content as a quote referencing target.
func (s *Service) CreateQuote(ctx context.Context, author Identity, target Target, content string) (string, error) {
	msg := &gitmsg.Message{
		Content: strings.TrimSpace(content),
		Header:  gitmsg.NewHeader("social", ProtocolVersion, ExtVersion, [2]string{"type", string(gitmsg.PostTypeQuote)}),
		Refs:    []gitmsg.Ref{targetRef(target)},
	}
	return s.commit(ctx, msg)
}

// CreateRepost posts a bare attribution line referencing target. The
// body is the single line "#commit:<hash>", which also satisfies
// gitmsg.IsEmptyRepost.
func (s *Service) CreateRepost(ctx context.Context, author Identity, target Target) (string, error) {
	msg := &gitmsg.Message{
		Content: target.ID,
		Header:  gitmsg.NewHeader("social", ProtocolVersion, ExtVersion, [2]string{"type", string(gitmsg.PostTypeRepost)}),
		Refs:    []gitmsg.Ref{targetRef(target)},
	}
	return s.commit(ctx, msg)
}

// CreatePost commits a plain post with no references.
func (s *Service) CreatePost(ctx context.Context, author Identity, content string) (string, error) {
	msg := &gitmsg.Message{
		Content: strings.TrimSpace(content),
		Header:  gitmsg.NewHeader("social", ProtocolVersion, ExtVersion, [2]string{"type", string(gitmsg.PostTypePost)}),
	}
	return s.commit(ctx, msg)
}

// Aggregate computes per-post interaction counts by scanning every
// known post's References. Counting is one hop, so reference cycles
// need no special handling. It returns a copy of posts with the
// Comments/Reposts/Quotes fields populated; a post can only be
// incremented by another post in the same slice referencing it.
func Aggregate(posts []postcache.Post) []postcache.Post {
	byID := make(map[string]*postcache.Post, len(posts))
	out := make([]postcache.Post, len(posts))
	copy(out, posts)
	for i := range out {
		out[i].Comments, out[i].Reposts, out[i].Quotes = 0, 0, 0
		byID[out[i].ID] = &out[i]
	}
	for _, p := range out {
		if len(p.References) != 1 {
			continue // an interaction carries exactly one reference
		}
		target, ok := byID[p.References[0]]
		if !ok {
			continue
		}
		switch p.Type {
		case gitmsg.PostTypeComment:
			target.Comments++
		case gitmsg.PostTypeRepost:
			target.Reposts++
		case gitmsg.PostTypeQuote:
			target.Quotes++
		}
	}
	return out
}

// InteractionKind reports whether t is one of the three interaction
// types (comment, repost, quote), as opposed to a plain post.
func InteractionKind(t gitmsg.PostType) bool {
	switch t {
	case gitmsg.PostTypeComment, gitmsg.PostTypeRepost, gitmsg.PostTypeQuote:
		return true
	}
	return false
}

// TargetID formats a commit hash into the "#commit:<12-hex>" id form
// used for Post.ID and Reference.ref.
func TargetID(hash string) string {
	if len(hash) > 12 {
		hash = hash[:12]
	}
	return fmt.Sprintf("#commit:%s", hash)
}
