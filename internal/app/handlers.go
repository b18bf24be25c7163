package app

import (
	"context"
	"crypto/md5"
	"fmt"
	"strings"
	"time"

	"github.com/gitsocial-org/gitsocial/internal/broker"
	"github.com/gitsocial-org/gitsocial/internal/config"
	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/giterr"
	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/logging"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/social"
	"github.com/gitsocial-org/gitsocial/internal/timeline"
)

// ListExt is the extension namespace handler-facing list operations
// default to.
const ListExt = timeline.ListExtension

// followingList is the list every followed remote list is recorded in.
const followingList = "following"

// followersList is the list follower records are read from.
const followersList = "followers"

// RegisterHandlers installs the full operation surface onto b.
func (a *App) RegisterHandlers(b *broker.Broker) {
	a.registerSocial(b)
	a.registerLists(b)
	a.registerRepositories(b)
	a.registerFetchPush(b)
	a.registerMisc(b)
}

func (a *App) registerSocial(b *broker.Broker) {
	b.RegisterHandler("social.getPosts", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		weekStart, weekEnd := a.window(msg.Data)
		scope := scopeFromData(msg.Data)
		var types []gitmsg.PostType
		for _, t := range stringsField(msg.Data, "types") {
			types = append(types, gitmsg.PostType(t))
		}
		result, err := a.Timeline.GetWeekPosts(ctx, a.Config.StorageRoot, weekStart, weekEnd, scope, timeline.WeekOptions{Types: types})
		if err != nil {
			return nil, err
		}
		return broker.Response{Type: "posts", Data: result}, nil
	})

	b.RegisterHandler("social.createPost", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		content := stringField(msg.Data, "content")
		if strings.TrimSpace(content) == "" {
			return nil, giterr.New(giterr.ValidationError, "post content is empty")
		}
		hash, err := a.Social.CreatePost(ctx, a.identity(ctx), content)
		if err != nil {
			return nil, err
		}
		return broker.Response{Type: "postCreated", Data: map[string]any{"id": social.TargetID(hash)}}, nil
	})

	b.RegisterHandler("social.createInteraction", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		kind := stringField(msg.Data, "kind")
		targetID := stringField(msg.Data, "target")
		content := stringField(msg.Data, "content")

		target, err := a.resolveTarget(ctx, targetID)
		if err != nil {
			return nil, err
		}

		author := a.identity(ctx)
		var hash string
		switch gitmsg.PostType(kind) {
		case gitmsg.PostTypeComment:
			hash, err = a.Social.CreateComment(ctx, author, target, content)
		case gitmsg.PostTypeRepost:
			hash, err = a.Social.CreateRepost(ctx, author, target)
		case gitmsg.PostTypeQuote:
			hash, err = a.Social.CreateQuote(ctx, author, target, content)
		default:
			return nil, giterr.New(giterr.ValidationError, "unknown interaction kind %q", kind)
		}
		if err != nil {
			return nil, err
		}
		return broker.Response{Type: "interactionCreated", Data: map[string]any{
			"id":     social.TargetID(hash),
			"kind":   kind,
			"target": target.ID,
		}}, nil
	})

	b.RegisterHandler("social.searchPosts", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		posts, err := a.Timeline.SearchPosts(ctx, stringField(msg.Data, "query"), scopeFromData(msg.Data))
		if err != nil {
			return nil, err
		}
		return broker.Response{Type: "searchResults", Data: map[string]any{"posts": posts}}, nil
	})
}

func (a *App) registerLists(b *broker.Broker) {
	b.RegisterHandler("list.getAll", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		names, err := a.Lists.Enumerate(ctx, ListExt)
		if err != nil {
			return nil, err
		}
		type listInfo struct {
			Name         string   `json:"name"`
			Repositories []string `json:"repositories"`
		}
		out := make([]listInfo, 0, len(names))
		for _, name := range names {
			repos, _ := a.listRepositories(ctx, name)
			out = append(out, listInfo{Name: name, Repositories: repos})
		}
		return broker.Response{Type: "lists", Data: out}, nil
	})

	b.RegisterHandler("list.create", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "name")
		if name == "" {
			return nil, giterr.New(giterr.ValidationError, "list name is empty")
		}
		if err := a.Lists.Write(ctx, ListExt, name, map[string]any{"repositories": []string{}}); err != nil {
			return nil, err
		}
		return broker.Response{Type: "listCreated", Data: map[string]any{"name": name}}, nil
	})

	b.RegisterHandler("list.rename", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "name")
		newName := stringField(msg.Data, "newName")
		if name == "" || newName == "" {
			return nil, giterr.New(giterr.ValidationError, "both name and newName are required")
		}
		payload, err := a.Lists.Read(ctx, ListExt, name)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			return nil, giterr.New(giterr.ListNotFound, "list %q not found", name)
		}
		if err := a.Lists.Write(ctx, ListExt, newName, payload); err != nil {
			return nil, err
		}
		if err := a.Lists.Delete(ctx, ListExt, name); err != nil {
			return nil, err
		}
		return broker.Response{Type: "listRenamed", Data: map[string]any{"name": newName}}, nil
	})

	b.RegisterHandler("list.delete", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "name")
		if err := a.Lists.Delete(ctx, ListExt, name); err != nil {
			return nil, err
		}
		return broker.Response{Type: "listDeleted", Data: map[string]any{"name": name}}, nil
	})

	b.RegisterHandler("list.follow", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "name")
		url := stringField(msg.Data, "url")
		if err := gitref.ValidateURL(url); err != nil {
			return nil, err
		}
		entries, err := a.followedLists(ctx)
		if err != nil {
			return nil, err
		}
		normalized := gitref.NormalizeURL(url)
		for _, e := range entries {
			if e.Name == name && e.URL == normalized {
				return broker.Response{Type: "listFollowed", Data: map[string]any{"name": name}}, nil
			}
		}
		entries = append(entries, followedEntry{Name: name, URL: normalized})
		if err := a.writeFollowedLists(ctx, entries); err != nil {
			return nil, err
		}
		return broker.Response{Type: "listFollowed", Data: map[string]any{"name": name}}, nil
	})

	b.RegisterHandler("list.unfollow", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "name")
		entries, err := a.followedLists(ctx)
		if err != nil {
			return nil, err
		}
		kept := entries[:0]
		for _, e := range entries {
			if e.Name != name {
				kept = append(kept, e)
			}
		}
		if err := a.writeFollowedLists(ctx, kept); err != nil {
			return nil, err
		}
		return broker.Response{Type: "listUnfollowed", Data: map[string]any{"name": name}}, nil
	})

	b.RegisterHandler("list.sync", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "name")
		entries, err := a.followedLists(ctx)
		if err != nil {
			return nil, err
		}
		var followed *followedEntry
		for i := range entries {
			if entries[i].Name == name {
				followed = &entries[i]
				break
			}
		}
		if followed == nil {
			return nil, giterr.New(giterr.ListNotFound, "list %q is not followed", name)
		}

		repoPath, err := a.Repos.EnsureInitialized(ctx, followed.URL)
		if err != nil {
			return nil, err
		}
		remote := liststore.New(repoPath)
		payload, err := remote.Read(ctx, ListExt, name)
		if err != nil {
			return nil, err
		}
		if payload == nil {
			return nil, giterr.New(giterr.ListNotFound, "list %q not present in %s", name, followed.URL)
		}
		if err := a.Lists.Write(ctx, ListExt, name, payload); err != nil {
			return nil, err
		}
		return broker.Response{Type: "listSynced", Data: map[string]any{"name": name}}, nil
	})
}

func (a *App) registerRepositories(b *broker.Broker) {
	b.RegisterHandler("addRepository", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "list")
		url := stringField(msg.Data, "url")
		if err := gitref.ValidateURL(url); err != nil {
			return nil, err
		}
		normalized := gitref.NormalizeURL(url)

		repos, err := a.listRepositories(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, r := range repos {
			if r == normalized {
				return broker.Response{Type: "repositoryAdded", Data: map[string]any{"list": name, "url": normalized}}, nil
			}
		}
		repos = append(repos, normalized)
		if err := a.Lists.Write(ctx, ListExt, name, map[string]any{"repositories": repos}); err != nil {
			return nil, err
		}
		return broker.Response{Type: "repositoryAdded", Data: map[string]any{"list": name, "url": normalized}}, nil
	})

	b.RegisterHandler("removeRepository", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "list")
		normalized := gitref.NormalizeURL(stringField(msg.Data, "url"))

		repos, err := a.listRepositories(ctx, name)
		if err != nil {
			return nil, err
		}
		kept := repos[:0]
		for _, r := range repos {
			if r != normalized {
				kept = append(kept, r)
			}
		}
		if err := a.Lists.Write(ctx, ListExt, name, map[string]any{"repositories": kept}); err != nil {
			return nil, err
		}
		return broker.Response{Type: "repositoryRemoved", Data: map[string]any{"list": name, "url": normalized}}, nil
	})
}

func (a *App) registerFetchPush(b *broker.Broker) {
	fetchScope := func(scope timeline.Scope, persistent bool) broker.Handler {
		return func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
			repos, err := a.Timeline.ResolveScope(ctx, scope)
			if err != nil {
				return nil, err
			}
			return a.batchFetch(ctx, b, repos, a.since(msg.Data), persistent), nil
		}
	}

	b.RegisterHandler("fetchRepositories", fetchScope(timeline.Scope{Kind: "timeline"}, true))
	b.RegisterHandler("fetchUpdates", fetchScope(timeline.Scope{Kind: "timeline"}, true))

	b.RegisterHandler("fetchSpecificRepositories", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		repos := stringsField(msg.Data, "repositories")
		return a.batchFetch(ctx, b, repos, a.since(msg.Data), false), nil
	})

	b.RegisterHandler("fetchListRepositories", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		name := stringField(msg.Data, "name")
		repos, err := a.Timeline.ResolveScope(ctx, timeline.Scope{Kind: "list", ID: name})
		if err != nil {
			return nil, err
		}
		return a.batchFetch(ctx, b, repos, a.since(msg.Data), true), nil
	})

	b.RegisterHandler("pushToRemote", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		remote := stringField(msg.Data, "remote")
		if remote == "" {
			remote = a.Config.RemoteName
		}

		b.PostToAll("pushProgress", map[string]any{"stage": "branch", "remote": remote})
		if err := a.Ops.Push(ctx, remote, a.Config.Branch); err != nil {
			return nil, err
		}
		b.PostToAll("pushProgress", map[string]any{"stage": "lists", "remote": remote})
		if err := a.Ops.Push(ctx, remote, "refs/gitmsg/*:refs/gitmsg/*"); err != nil {
			return nil, err
		}
		return broker.Response{Type: "pushCompleted", Data: map[string]any{"remote": remote}}, nil
	})

	b.RegisterHandler("getUnpushedCounts", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		ahead, _, err := a.Ops.AheadBehind(ctx,
			gitref.BranchRef(a.Config.Branch),
			gitref.RemoteBranchRef(a.Config.RemoteName, a.Config.Branch))
		if err != nil {
			return nil, err
		}
		return broker.Response{Type: "unpushedCounts", Data: map[string]any{"posts": ahead}}, nil
	})

	b.RegisterHandler("getUnpushedListsCount", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		prefix := gitref.ListPrefix(ListExt)
		local, err := a.Ops.ListRefsByPrefix(ctx, prefix)
		if err != nil {
			return nil, err
		}
		remote, err := a.Ops.LsRemote(ctx, a.Config.RemoteName, prefix)
		if err != nil {
			return nil, err
		}
		count := 0
		for _, ref := range local {
			localHash, err := a.Ops.ReadRef(ctx, ref)
			if err != nil {
				continue
			}
			if remote[ref] != localHash {
				count++
			}
		}
		return broker.Response{Type: "unpushedListsCount", Data: map[string]any{"lists": count}}, nil
	})
}

func (a *App) registerMisc(b *broker.Broker) {
	b.RegisterHandler("refresh", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		repos := stringsField(msg.Data, "repositories")
		if len(repos) == 0 {
			repos = a.Cache.Repositories()
			a.Cache.Clear(postcache.Scope{All: true})
		} else {
			a.Cache.Clear(postcache.Scope{Repositories: repos})
		}
		refreshed := 0
		for _, repo := range repos {
			if repo == a.WorkDir {
				continue
			}
			if err := a.Coordinator.RefreshRepository(ctx, repo); err != nil {
				a.logger.Printf("refresh failed for %s: %v", gitref.SanitizeURL(repo), err)
				continue
			}
			refreshed++
		}
		return broker.Response{Type: "refreshed", Data: map[string]any{"repositories": refreshed}}, nil
	})

	b.RegisterHandler("getLogs", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		n := intField(msg.Data, "lines", 200)
		lines, err := logging.Tail(n)
		if err != nil {
			return nil, giterr.Wrap(giterr.ReadError, err)
		}
		return broker.Response{Type: "logs", Data: map[string]any{"lines": lines}}, nil
	})

	b.RegisterHandler("getNotifications", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		notifications, err := a.Timeline.GetNotifications(ctx)
		if err != nil {
			return nil, err
		}
		return broker.Response{Type: "notifications", Data: notifications}, nil
	})

	b.RegisterHandler("getFollowers", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		payload, err := a.Lists.Read(ctx, ListExt, followersList)
		if err != nil {
			return nil, err
		}
		return broker.Response{Type: "followers", Data: payload}, nil
	})

	b.RegisterHandler("getAvatar", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		email := strings.ToLower(strings.TrimSpace(stringField(msg.Data, "email")))
		sum := md5.Sum([]byte(email))
		url := fmt.Sprintf("https://www.gravatar.com/avatar/%x?d=identicon", sum)
		return broker.Response{Type: "avatar", Data: map[string]any{"email": email, "url": url}}, nil
	})

	b.RegisterHandler("openExternal", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		// Actually opening a browser is the embedding UI's concern; the
		// host only validates and echoes the target back.
		url := stringField(msg.Data, "url")
		if err := gitref.ValidateURL(url); err != nil {
			return nil, err
		}
		return broker.Response{Type: "externalOpened", Data: map[string]any{"url": url}}, nil
	})

	b.RegisterHandler("getSettings", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		return broker.Response{Type: "settings", Data: a.Config}, nil
	})

	b.RegisterHandler("updateSettings", func(ctx context.Context, panel *broker.Panel, msg broker.Inbound) (any, error) {
		cfg := a.Config
		if v := stringField(msg.Data, "storage_root"); v != "" {
			cfg.StorageRoot = v
		}
		if v := stringField(msg.Data, "remote_name"); v != "" {
			cfg.RemoteName = v
		}
		if v := stringField(msg.Data, "branch"); v != "" {
			cfg.Branch = v
		}
		if v := intField(msg.Data, "cache_max_size", 0); v > 0 {
			cfg.CacheMaxSize = v
		}
		if v, ok := msg.Data["log_path"].(string); ok {
			cfg.LogPath = v
		}
		if a.ConfigPath != "" {
			if err := config.Write(a.ConfigPath, cfg); err != nil {
				return nil, giterr.Wrap(giterr.WriteError, err)
			}
		}
		a.Config = cfg
		logging.Configure(cfg.LogPath)
		return broker.Response{Type: "settings", Data: cfg}, nil
	})
}

// batchFetch fetches each repository independently, broadcasting
// fetchProgress per repository and fetchCompleted at the end. Partial
// progress is permitted and surfaced; there is no atomicity.
func (a *App) batchFetch(ctx context.Context, b *broker.Broker, repos []string, since time.Time, persistent bool) broker.Response {
	total := len(repos)
	fetched, failed := 0, 0
	outcomes := make([]map[string]any, 0, total)
	for i, repo := range repos {
		b.PostToAll("fetchProgress", map[string]any{
			"repository": gitref.SanitizeURL(repo),
			"index":      i + 1,
			"total":      total,
		})
		var err error
		if repo == a.WorkDir {
			// The workspace is fetched through its own remote, not an
			// isolated clone, and its lastfetch lands on the workspace
			// config.
			err = a.Coordinator.FetchWorkspaceRemote(ctx, repo, since)
			if err == nil {
				err = a.Coordinator.RefreshWorkspace(ctx, repo)
			}
		} else {
			err = a.Coordinator.EnsureDataForDateRange(ctx, repo, since, fetchcoordinator.EnsureOptions{IsPersistent: persistent})
		}
		outcome := map[string]any{"repository": gitref.SanitizeURL(repo)}
		if err != nil {
			failed++
			outcome["error"] = err.Error()
		} else {
			fetched++
		}
		outcomes = append(outcomes, outcome)
	}
	data := map[string]any{"fetched": fetched, "failed": failed, "outcomes": outcomes}
	b.PostToAll("fetchCompleted", data)
	return broker.Response{Type: "fetchCompleted", Data: data}
}

func (a *App) resolveTarget(ctx context.Context, targetID string) (social.Target, error) {
	hash := strings.TrimPrefix(targetID, "#commit:")
	if hash == "" {
		return social.Target{}, giterr.New(giterr.ValidationError, "interaction target is empty")
	}
	commit, err := a.Ops.ReadCommit(ctx, hash)
	if err != nil {
		return social.Target{}, err
	}
	return social.Target{
		ID:    social.TargetID(commit.Hash),
		Name:  commit.AuthorName,
		Email: commit.AuthorEmail,
		Time:  commit.Time.Format(time.RFC3339),
	}, nil
}

func (a *App) identity(ctx context.Context) social.Identity {
	name, _ := a.Ops.ConfigGet(ctx, "user.name")
	email, _ := a.Ops.ConfigGet(ctx, "user.email")
	return social.Identity{Name: name, Email: email}
}

// window resolves the [weekStart, weekEnd] pair from inbound data,
// defaulting to the current week.
func (a *App) window(data map[string]any) (time.Time, time.Time) {
	now := time.Now()
	start := now.AddDate(0, 0, -int(now.Weekday()))
	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	end := now
	if v := stringField(data, "weekStart"); v != "" {
		if t, err := time.Parse(gitref.DateLayout, v); err == nil {
			start = t
			end = t.AddDate(0, 0, 7)
		}
	}
	if v := stringField(data, "weekEnd"); v != "" {
		if t, err := time.Parse(gitref.DateLayout, v); err == nil {
			end = t
		}
	}
	return start, end
}

func (a *App) since(data map[string]any) time.Time {
	if v := stringField(data, "since"); v != "" {
		if t, err := time.Parse(gitref.DateLayout, v); err == nil {
			return t
		}
	}
	return time.Now().AddDate(0, 0, -7)
}

// followedEntry records one followed remote list in the "following"
// list's payload.
type followedEntry struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

func (a *App) followedLists(ctx context.Context) ([]followedEntry, error) {
	raw, err := a.Lists.Read(ctx, ListExt, followingList)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}
	rawLists, ok := m["lists"].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]followedEntry, 0, len(rawLists))
	for _, rl := range rawLists {
		em, ok := rl.(map[string]any)
		if !ok {
			continue
		}
		name, _ := em["name"].(string)
		url, _ := em["url"].(string)
		if name != "" && url != "" {
			out = append(out, followedEntry{Name: name, URL: url})
		}
	}
	return out, nil
}

func (a *App) writeFollowedLists(ctx context.Context, entries []followedEntry) error {
	return a.Lists.Write(ctx, ListExt, followingList, map[string]any{"lists": entries})
}

func (a *App) listRepositories(ctx context.Context, name string) ([]string, error) {
	raw, err := a.Lists.Read(ctx, ListExt, name)
	if err != nil {
		return nil, err
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, nil
	}
	rawRepos, ok := m["repositories"].([]any)
	if !ok {
		return nil, nil
	}
	out := make([]string, 0, len(rawRepos))
	for _, r := range rawRepos {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out, nil
}

func scopeFromData(data map[string]any) timeline.Scope {
	kind := stringField(data, "scope")
	if kind == "" {
		kind = "timeline"
	}
	return timeline.Scope{Kind: kind, ID: stringField(data, "id")}
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

func stringsField(data map[string]any, key string) []string {
	if data == nil {
		return nil
	}
	raw, ok := data[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(data map[string]any, key string, def int) int {
	if data == nil {
		return def
	}
	switch v := data[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}
