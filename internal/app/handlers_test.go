package app

import (
	"context"
	"os/exec"
	"strings"
	"sync"
	"testing"

	"github.com/gitsocial-org/gitsocial/internal/broker"
	"github.com/gitsocial-org/gitsocial/internal/config"
)

type recorder struct {
	mu   sync.Mutex
	msgs []broker.Outbound
}

func (r *recorder) send(msg broker.Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

// lastOfType returns the most recent message of msgType, skipping
// broadcasts (fetchProgress etc.) interleaved before the reply.
func (r *recorder) lastOfType(t *testing.T, msgType string) broker.Outbound {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Type == msgType {
			return r.msgs[i]
		}
	}
	t.Fatalf("no %q message recorded in %+v", msgType, r.msgs)
	return broker.Outbound{}
}

func initWorkspace(t *testing.T) string {
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

func newTestApp(t *testing.T) (*App, *broker.Broker, *broker.Panel, *recorder) {
	t.Helper()
	cfg := config.Default()
	cfg.StorageRoot = t.TempDir()
	cfg.LogPath = ""
	a := New(cfg, "", initWorkspace(t))
	b := a.NewBroker()
	rec := &recorder{}
	panel := &broker.Panel{ID: "test", Kind: "test", Send: rec.send}
	return a, b, panel, rec
}

func TestListHandlersLifecycle(t *testing.T) {
	a, b, panel, rec := newTestApp(t)
	ctx := context.Background()

	b.Dispatch(ctx, panel, broker.Inbound{Type: "list.create", ID: "1", Data: map[string]any{"name": "reading"}})
	if out := rec.lastOfType(t, "listCreated"); out.RequestID != "1" {
		t.Fatalf("expected listCreated with request id, got %+v", out)
	}

	b.Dispatch(ctx, panel, broker.Inbound{Type: "addRepository", ID: "2", Data: map[string]any{
		"list": "reading", "url": "https://github.com/owner/repo.git",
	}})
	added := rec.lastOfType(t, "repositoryAdded")
	if added.Data.(map[string]any)["url"] != "https://github.com/owner/repo" {
		t.Fatalf("expected normalized URL, got %+v", added.Data)
	}

	// Adding the same repository twice is a no-op, not a duplicate.
	b.Dispatch(ctx, panel, broker.Inbound{Type: "addRepository", ID: "3", Data: map[string]any{
		"list": "reading", "url": "git@github.com:owner/repo",
	}})

	repos, err := a.listRepositories(ctx, "reading")
	if err != nil {
		t.Fatalf("list repositories: %v", err)
	}
	if len(repos) != 1 || repos[0] != "https://github.com/owner/repo" {
		t.Fatalf("expected a single normalized repository, got %v", repos)
	}

	b.Dispatch(ctx, panel, broker.Inbound{Type: "list.getAll", ID: "4"})
	rec.lastOfType(t, "lists")

	b.Dispatch(ctx, panel, broker.Inbound{Type: "removeRepository", ID: "5", Data: map[string]any{
		"list": "reading", "url": "https://github.com/owner/repo",
	}})
	if out := rec.lastOfType(t, "repositoryRemoved"); out.RequestID != "5" {
		t.Fatalf("expected repositoryRemoved, got %+v", out)
	}

	b.Dispatch(ctx, panel, broker.Inbound{Type: "list.delete", ID: "6", Data: map[string]any{"name": "reading"}})
	rec.lastOfType(t, "listDeleted")
}

func TestCreatePostAndInteractionHandlers(t *testing.T) {
	_, b, panel, rec := newTestApp(t)
	ctx := context.Background()

	b.Dispatch(ctx, panel, broker.Inbound{Type: "social.createPost", ID: "1", Data: map[string]any{"content": "hello"}})
	created := rec.lastOfType(t, "postCreated")
	id, _ := created.Data.(map[string]any)["id"].(string)
	if !strings.HasPrefix(id, "#commit:") {
		t.Fatalf("expected commit id, got %q", id)
	}

	b.Dispatch(ctx, panel, broker.Inbound{Type: "social.createInteraction", ID: "2", Data: map[string]any{
		"kind": "comment", "target": id, "content": "nice",
	}})
	interaction := rec.lastOfType(t, "interactionCreated")
	data := interaction.Data.(map[string]any)
	if data["kind"] != "comment" || data["target"] != id {
		t.Fatalf("unexpected interaction reply: %+v", data)
	}

	b.Dispatch(ctx, panel, broker.Inbound{Type: "social.createInteraction", ID: "3", Data: map[string]any{
		"kind": "frown", "target": id,
	}})
	errOut := rec.lastOfType(t, "error")
	if errOut.Data.(map[string]any)["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR for unknown kind, got %+v", errOut.Data)
	}
}

func TestCreatePostRejectsEmptyContent(t *testing.T) {
	_, b, panel, rec := newTestApp(t)
	b.Dispatch(context.Background(), panel, broker.Inbound{Type: "social.createPost", ID: "1", Data: map[string]any{"content": "   "}})
	errOut := rec.lastOfType(t, "error")
	if errOut.RequestID != "1" {
		t.Fatalf("expected correlated error, got %+v", errOut)
	}
}

func TestSettingsHandlers(t *testing.T) {
	a, b, panel, rec := newTestApp(t)
	ctx := context.Background()

	b.Dispatch(ctx, panel, broker.Inbound{Type: "getSettings", ID: "1"})
	settings := rec.lastOfType(t, "settings")
	if settings.Data.(config.Config).RemoteName != "origin" {
		t.Fatalf("unexpected settings: %+v", settings.Data)
	}

	b.Dispatch(ctx, panel, broker.Inbound{Type: "updateSettings", ID: "2", Data: map[string]any{"branch": "social"}})
	updated := rec.lastOfType(t, "settings")
	if updated.Data.(config.Config).Branch != "social" {
		t.Fatalf("expected branch update, got %+v", updated.Data)
	}
	if a.Config.Branch != "social" {
		t.Fatalf("expected app config mutated")
	}
}

func TestAvatarHandlerIsDeterministic(t *testing.T) {
	_, b, panel, rec := newTestApp(t)
	ctx := context.Background()

	b.Dispatch(ctx, panel, broker.Inbound{Type: "getAvatar", ID: "1", Data: map[string]any{"email": " Alice@Example.COM "}})
	first := rec.lastOfType(t, "avatar").Data.(map[string]any)
	b.Dispatch(ctx, panel, broker.Inbound{Type: "getAvatar", ID: "2", Data: map[string]any{"email": "alice@example.com"}})
	second := rec.lastOfType(t, "avatar").Data.(map[string]any)
	if first["url"] != second["url"] {
		t.Fatalf("avatar URL should be case/whitespace insensitive: %v vs %v", first, second)
	}
	if !strings.Contains(first["url"].(string), "gravatar.com/avatar/") {
		t.Fatalf("unexpected avatar url: %v", first["url"])
	}
}

func TestFollowUnfollowList(t *testing.T) {
	_, b, panel, rec := newTestApp(t)
	ctx := context.Background()

	b.Dispatch(ctx, panel, broker.Inbound{Type: "list.follow", ID: "1", Data: map[string]any{
		"name": "golang", "url": "https://github.com/friend/social.git",
	}})
	rec.lastOfType(t, "listFollowed")

	// Following twice stays a single entry.
	b.Dispatch(ctx, panel, broker.Inbound{Type: "list.follow", ID: "2", Data: map[string]any{
		"name": "golang", "url": "https://github.com/friend/social",
	}})

	b.Dispatch(ctx, panel, broker.Inbound{Type: "list.unfollow", ID: "3", Data: map[string]any{"name": "golang"}})
	rec.lastOfType(t, "listUnfollowed")

	b.Dispatch(ctx, panel, broker.Inbound{Type: "list.sync", ID: "4", Data: map[string]any{"name": "golang"}})
	errOut := rec.lastOfType(t, "error")
	if errOut.Data.(map[string]any)["code"] != "LIST_NOT_FOUND" {
		t.Fatalf("syncing an unfollowed list should fail with LIST_NOT_FOUND, got %+v", errOut.Data)
	}
}

func TestOpenExternalValidatesURL(t *testing.T) {
	_, b, panel, rec := newTestApp(t)
	ctx := context.Background()

	b.Dispatch(ctx, panel, broker.Inbound{Type: "openExternal", ID: "1", Data: map[string]any{"url": "https://example.com"}})
	rec.lastOfType(t, "externalOpened")

	b.Dispatch(ctx, panel, broker.Inbound{Type: "openExternal", ID: "2", Data: map[string]any{"url": "javascript:alert(1)"}})
	errOut := rec.lastOfType(t, "error")
	if errOut.RequestID != "2" {
		t.Fatalf("expected validation error for bad scheme, got %+v", errOut)
	}
}
