package broker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/gitsocial-org/gitsocial/internal/giterr"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Outbound
}

func (r *recorder) send(msg Outbound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) last(t *testing.T) Outbound {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.msgs) == 0 {
		t.Fatalf("no messages recorded")
	}
	return r.msgs[len(r.msgs)-1]
}

func newTestPanel(id string) (*Panel, *recorder) {
	rec := &recorder{}
	return &Panel{ID: id, Kind: "test", Send: rec.send}, rec
}

func TestPanelIDDedup(t *testing.T) {
	a := PanelID("repository", "https://github.com/owner/repo.git")
	b := PanelID("repository", "git@github.com:owner/repo")
	if a != b {
		t.Fatalf("equivalent URLs should share a panel id: %q vs %q", a, b)
	}
	if PanelID("settings", "anything") != "settings" {
		t.Fatalf("non-keyed kinds use the kind name alone")
	}
}

func TestOpenViewReusesPanel(t *testing.T) {
	b := New(nil)
	created := 0
	mk := func(id string) *Panel {
		created++
		p, _ := newTestPanel(id)
		return p
	}
	p1 := b.OpenView("repository", "https://github.com/owner/repo", mk)
	p2 := b.OpenView("repository", "https://github.com/owner/repo.git", mk)
	if p1 != p2 {
		t.Fatalf("expected the same panel instance")
	}
	if created != 1 {
		t.Fatalf("expected a single panel construction, got %d", created)
	}
}

func TestDispatchCorrelatesRequestID(t *testing.T) {
	b := New(nil)
	b.RegisterHandler("ping", func(ctx context.Context, panel *Panel, msg Inbound) (any, error) {
		return map[string]any{"pong": true}, nil
	})

	panel, rec := newTestPanel("p1")
	b.Dispatch(context.Background(), panel, Inbound{Type: "ping", ID: "req-42"})

	out := rec.last(t)
	if out.RequestID != "req-42" {
		t.Fatalf("expected request id echoed, got %q", out.RequestID)
	}
	if out.Type != "pingResult" {
		t.Fatalf("unexpected response type %q", out.Type)
	}
}

func TestDispatchNamedResponse(t *testing.T) {
	b := New(nil)
	b.RegisterHandler("social.getPosts", func(ctx context.Context, panel *Panel, msg Inbound) (any, error) {
		return Response{Type: "posts", Data: []string{}}, nil
	})
	panel, rec := newTestPanel("p1")
	b.Dispatch(context.Background(), panel, Inbound{Type: "social.getPosts", ID: "1"})
	if out := rec.last(t); out.Type != "posts" {
		t.Fatalf("expected named response type, got %q", out.Type)
	}
}

func TestDispatchErrorCarriesCode(t *testing.T) {
	b := New(nil)
	b.RegisterHandler("boom", func(ctx context.Context, panel *Panel, msg Inbound) (any, error) {
		return nil, giterr.New(giterr.ListNotFound, "list missing")
	})
	panel, rec := newTestPanel("p1")
	b.Dispatch(context.Background(), panel, Inbound{Type: "boom", ID: "9"})

	out := rec.last(t)
	if out.Type != "error" || out.RequestID != "9" {
		t.Fatalf("unexpected error reply: %+v", out)
	}
	payload := out.Data.(map[string]any)
	if payload["code"] != "LIST_NOT_FOUND" {
		t.Fatalf("expected stable code, got %v", payload["code"])
	}
}

func TestReRegistrationReplaces(t *testing.T) {
	b := New(nil)
	b.RegisterHandler("x", func(ctx context.Context, panel *Panel, msg Inbound) (any, error) {
		return nil, errors.New("old")
	})
	b.RegisterHandler("x", func(ctx context.Context, panel *Panel, msg Inbound) (any, error) {
		return "new", nil
	})
	panel, rec := newTestPanel("p1")
	b.Dispatch(context.Background(), panel, Inbound{Type: "x"})
	if out := rec.last(t); out.Type == "error" {
		t.Fatalf("expected replacement handler to run")
	}
}

func TestSpecialTypesNotDispatched(t *testing.T) {
	b := New(nil)
	called := false
	b.RegisterHandler("ready", func(ctx context.Context, panel *Panel, msg Inbound) (any, error) {
		called = true
		return nil, nil
	})
	panel, _ := newTestPanel("p1")
	b.Dispatch(context.Background(), panel, Inbound{Type: "ready"})
	if called {
		t.Fatalf("special types must never reach a registered handler")
	}
}

func TestPostToAllIncludesSidebar(t *testing.T) {
	b := New(nil)
	p1, rec1 := newTestPanel("p1")
	b.OpenView("repository", "https://a.example/r", func(id string) *Panel { return p1 })
	sidebar, recSide := newTestPanel("sidebar")
	b.RegisterSidebar(sidebar)

	b.PostToAll("setActivePanel", map[string]any{"id": "p1"})

	if rec1.last(t).Type != "setActivePanel" {
		t.Fatalf("panel missed broadcast")
	}
	if recSide.last(t).Type != "setActivePanel" {
		t.Fatalf("sidebar missed broadcast")
	}
}

func TestAddPanelReceivesBroadcasts(t *testing.T) {
	b := New(nil)
	remote, rec := newTestPanel("remote:abc")
	b.AddPanel(remote)

	b.PostToAll("fetchProgress", map[string]any{"index": 1})
	if rec.last(t).Type != "fetchProgress" {
		t.Fatalf("added panel missed broadcast")
	}

	b.DisposePanel(remote.ID)
	rec.mu.Lock()
	before := len(rec.msgs)
	rec.mu.Unlock()

	b.PostToAll("fetchProgress", map[string]any{"index": 2})
	rec.mu.Lock()
	after := len(rec.msgs)
	rec.mu.Unlock()
	if after != before {
		t.Fatalf("disposed panel still received broadcast")
	}
}

func TestDisposePanelBroadcastsEmptyActive(t *testing.T) {
	b := New(nil)
	p1, _ := newTestPanel("doomed")
	b.OpenView("repository", "https://a.example/r", func(id string) *Panel { return p1 })
	sidebar, recSide := newTestPanel("sidebar")
	b.RegisterSidebar(sidebar)

	b.DisposePanel(p1.ID)

	out := recSide.last(t)
	if out.Type != "setActivePanel" {
		t.Fatalf("expected setActivePanel broadcast, got %q", out.Type)
	}
	if id := out.Data.(map[string]any)["id"]; id != "" {
		t.Fatalf("expected empty active id, got %v", id)
	}
}
