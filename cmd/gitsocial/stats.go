package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/logging"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
	"github.com/gitsocial-org/gitsocial/internal/timeline"
)

var statsScopeKind string
var statsScopeID string
var statsSince string

var statsCmd = &cobra.Command{
	Use:     "stats",
	GroupID: "social",
	Short:   "Summarize a week of posts: totals by type, author and repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		weekStart, weekEnd, err := resolveWeek(statsSince)
		if err != nil {
			return err
		}

		logger := logging.New("stats")
		repos := repostore.New(cfg.StorageRoot)
		cache := postcache.New(cfg.CacheMaxSize)
		coord := fetchcoordinator.New(repos, cache, cfg.RemoteName, cfg.Branch, logger)
		svc := timeline.New(liststore.New(workDir), coord, workDir, logger)

		scope := timeline.Scope{Kind: statsScopeKind, ID: statsScopeID}
		result, err := svc.GetWeekPosts(cmd.Context(), cfg.StorageRoot, weekStart, weekEnd, scope, timeline.WeekOptions{})
		if err != nil {
			return err
		}

		stats := timeline.GetTimelineStats(result.Posts)
		fmt.Printf("Total posts: %d\n", stats.TotalPosts)
		if stats.TotalPosts == 0 {
			return nil
		}
		fmt.Printf("Window: %s .. %s\n\n", stats.DateRangeStart.Format("2006-01-02"), stats.DateRangeEnd.Format("2006-01-02"))

		fmt.Println("By type:")
		for _, line := range sortedCounts(toStringKeys(stats.PostsByType)) {
			fmt.Println("  " + line)
		}
		fmt.Println("By author:")
		for _, line := range sortedCounts(stats.PostsByAuthor) {
			fmt.Println("  " + line)
		}
		fmt.Println("By repository:")
		for _, line := range sortedCounts(stats.PostsByRepository) {
			fmt.Println("  " + line)
		}
		return nil
	},
}

func toStringKeys[K ~string](m map[K]int) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

// sortedCounts renders a count map as "key: n" lines, highest first,
// ties broken by key for stable output.
func sortedCounts(m map[string]int) []string {
	type kv struct {
		k string
		v int
	}
	pairs := make([]kv, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, kv{k, v})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].v != pairs[j].v {
			return pairs[i].v > pairs[j].v
		}
		return pairs[i].k < pairs[j].k
	})
	out := make([]string, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, fmt.Sprintf("%s: %d", p.k, p.v))
	}
	return out
}

func init() {
	statsCmd.Flags().StringVar(&statsScopeKind, "scope", "workspace", `scope kind: "timeline", "list", "repository", or "workspace"`)
	statsCmd.Flags().StringVar(&statsScopeID, "id", "", "list name or repository URL (required for --scope=list|repository)")
	statsCmd.Flags().StringVar(&statsSince, "since", "", `window start, natural language; default is the start of this week`)
	rootCmd.AddCommand(statsCmd)
}
