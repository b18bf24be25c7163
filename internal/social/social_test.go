package social

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q", "-b", "main")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test")
	return dir
}

func TestCreatePostAndCommentRoundTrip(t *testing.T) {
	dir := initRepo(t)
	svc := New(dir, "main")
	ctx := context.Background()
	author := Identity{Name: "Test", Email: "test@example.com"}

	postHash, err := svc.CreatePost(ctx, author, "hello world")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}

	ops := gitref.New(dir)
	commit, err := ops.ReadCommit(ctx, postHash)
	if err != nil {
		t.Fatalf("read post commit: %v", err)
	}
	msg, ok := gitmsg.ParseMessage(commit.Message)
	if !ok {
		t.Fatalf("post commit should carry a GitMsg header:\n%s", commit.Message)
	}
	if !gitmsg.Validate(msg) {
		t.Fatalf("generated post failed validation")
	}
	if msg.Content != "hello world" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
	if gitmsg.DetectPostType(msg) != gitmsg.PostTypePost {
		t.Fatalf("expected post type")
	}

	target := Target{
		ID:    TargetID(postHash),
		Name:  commit.AuthorName,
		Email: commit.AuthorEmail,
		Time:  commit.Time.Format(time.RFC3339),
	}
	commentHash, err := svc.CreateComment(ctx, author, target, "nice point")
	if err != nil {
		t.Fatalf("create comment: %v", err)
	}

	commentCommit, err := ops.ReadCommit(ctx, commentHash)
	if err != nil {
		t.Fatalf("read comment commit: %v", err)
	}
	cm, ok := gitmsg.ParseMessage(commentCommit.Message)
	if !ok || len(cm.Refs) != 1 {
		t.Fatalf("comment should carry one reference:\n%s", commentCommit.Message)
	}
	if cm.Refs[0].Ref != target.ID {
		t.Fatalf("reference points at %q, want %q", cm.Refs[0].Ref, target.ID)
	}

	// The comment is the branch tip, parented on the post.
	commits, err := ops.WalkCommits(ctx, gitref.BranchRef("main"), gitref.WalkOptions{})
	if err != nil || len(commits) != 2 {
		t.Fatalf("expected 2 commits on branch, got %d, %v", len(commits), err)
	}
}

func TestCreateRepostIsEmptyRepost(t *testing.T) {
	dir := initRepo(t)
	svc := New(dir, "main")
	ctx := context.Background()
	author := Identity{Name: "Test", Email: "test@example.com"}

	postHash, err := svc.CreatePost(ctx, author, "original")
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	target := Target{ID: TargetID(postHash), Name: "Test", Email: "test@example.com", Time: time.Now().UTC().Format(time.RFC3339)}
	repostHash, err := svc.CreateRepost(ctx, author, target)
	if err != nil {
		t.Fatalf("create repost: %v", err)
	}

	commit, err := gitref.New(dir).ReadCommit(ctx, repostHash)
	if err != nil {
		t.Fatalf("read repost: %v", err)
	}
	msg, ok := gitmsg.ParseMessage(commit.Message)
	if !ok {
		t.Fatalf("repost should parse")
	}
	if !gitmsg.IsEmptyRepost(msg) {
		t.Fatalf("generated repost should satisfy the empty-repost heuristic:\n%s", commit.Message)
	}
}

func TestAggregateCountsOneHopReferences(t *testing.T) {
	posts := []postcache.Post{
		{ID: "#commit:aaaaaaaaaaaa", Type: gitmsg.PostTypePost},
		{ID: "#commit:bbbbbbbbbbbb", Type: gitmsg.PostTypeComment, References: []string{"#commit:aaaaaaaaaaaa"}},
		{ID: "#commit:cccccccccccc", Type: gitmsg.PostTypeRepost, References: []string{"#commit:aaaaaaaaaaaa"}},
		{ID: "#commit:dddddddddddd", Type: gitmsg.PostTypeQuote, References: []string{"#commit:aaaaaaaaaaaa"}},
		// Two references: not a plain interaction, must not count.
		{ID: "#commit:eeeeeeeeeeee", Type: gitmsg.PostTypeComment, References: []string{"#commit:aaaaaaaaaaaa", "#commit:bbbbbbbbbbbb"}},
	}
	out := Aggregate(posts)
	var target postcache.Post
	for _, p := range out {
		if p.ID == "#commit:aaaaaaaaaaaa" {
			target = p
		}
	}
	if target.Comments != 1 || target.Reposts != 1 || target.Quotes != 1 {
		t.Fatalf("unexpected counts: %+v", target)
	}
}

func TestAggregateIgnoresDanglingReference(t *testing.T) {
	posts := []postcache.Post{
		{ID: "#commit:bbbbbbbbbbbb", Type: gitmsg.PostTypeComment, References: []string{"#commit:000000000000"}},
	}
	out := Aggregate(posts)
	if len(out) != 1 || out[0].Comments != 0 {
		t.Fatalf("dangling reference should count nothing: %+v", out)
	}
}

func TestInteractionKind(t *testing.T) {
	if InteractionKind(gitmsg.PostTypePost) {
		t.Fatalf("post is not an interaction")
	}
	for _, k := range []gitmsg.PostType{gitmsg.PostTypeComment, gitmsg.PostTypeRepost, gitmsg.PostTypeQuote} {
		if !InteractionKind(k) {
			t.Fatalf("%s should be an interaction", k)
		}
	}
}
