package main

import (
	"fmt"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/gitmsg"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/logging"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
	"github.com/gitsocial-org/gitsocial/internal/timeline"
)

var (
	timelineScopeKind string
	timelineScopeID   string
	timelineSince     string
	timelineTypes     []string
)

var timelineCmd = &cobra.Command{
	Use:     "timeline",
	GroupID: "social",
	Short:   "Show a merged, deduplicated post stream for a scope and week",
	Long: `Ensures fetch coverage for the requested scope (when --since implies
data outside what's already cached), queries the Post Cache for the
resulting window, and prints the merged, newest-first result as a table.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		weekStart, weekEnd, err := resolveWeek(timelineSince)
		if err != nil {
			return err
		}

		logger := logging.New("timeline")
		repos := repostore.New(cfg.StorageRoot)
		cache := postcache.New(cfg.CacheMaxSize)
		coord := fetchcoordinator.New(repos, cache, cfg.RemoteName, cfg.Branch, logger)
		lists := liststore.New(workDir)
		svc := timeline.New(lists, coord, workDir, logger)

		scope := timeline.Scope{Kind: timelineScopeKind, ID: timelineScopeID}
		opts := timeline.WeekOptions{Types: parsePostTypes(timelineTypes)}

		result, err := svc.GetWeekPosts(cmd.Context(), cfg.StorageRoot, weekStart, weekEnd, scope, opts)
		if err != nil {
			return err
		}

		for _, outcome := range result.Repositories {
			if outcome.Err != nil {
				fmt.Fprintf(os.Stderr, "warning: fetch failed for %s: %v\n", outcome.Repository, outcome.Err)
			}
		}
		renderPostsTable(result.Posts)
		return nil
	},
}

// resolveWeek interprets since (blank means "this week", anything else
// is parsed as a natural-language phrase) into a [weekStart, weekEnd]
// window.
func resolveWeek(since string) (time.Time, time.Time, error) {
	now := time.Now()
	if since == "" {
		start := now.AddDate(0, 0, -int(now.Weekday()))
		return startOfDay(start), now, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(since, now)
	if err != nil || result == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("could not parse --since %q", since)
	}
	return startOfDay(result.Time), now, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func parsePostTypes(raw []string) []gitmsg.PostType {
	if len(raw) == 0 {
		return nil
	}
	out := make([]gitmsg.PostType, 0, len(raw))
	for _, r := range raw {
		out = append(out, gitmsg.PostType(r))
	}
	return out
}

func init() {
	timelineCmd.Flags().StringVar(&timelineScopeKind, "scope", "timeline", `scope kind: "timeline", "list", "repository", or "workspace"`)
	timelineCmd.Flags().StringVar(&timelineScopeID, "id", "", "list name or repository URL (required for --scope=list|repository)")
	timelineCmd.Flags().StringVar(&timelineSince, "since", "", `window start, natural language (e.g. "last monday"); default is the start of this week`)
	timelineCmd.Flags().StringSliceVar(&timelineTypes, "type", nil, "filter to post types (post, comment, repost, quote); default all")
	rootCmd.AddCommand(timelineCmd)
}
