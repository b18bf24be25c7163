package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/logging"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
	"github.com/gitsocial-org/gitsocial/internal/timeline"
)

var fetchScopeKind string
var fetchScopeID string
var fetchSinceFlag string

var fetchCmd = &cobra.Command{
	Use:     "fetch",
	GroupID: "data",
	Short:   "Fetch updates for every repository in a scope",
	Long: `Enumerates the repositories named by --scope, fetches each
independently (a single repository's failure never aborts the batch),
and reports {fetched, failed} counts.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		weekStart, _, err := resolveWeek(fetchSinceFlag)
		if err != nil {
			return err
		}

		logger := logging.New("fetch")
		repos := repostore.New(cfg.StorageRoot)
		cache := postcache.New(cfg.CacheMaxSize)
		coord := fetchcoordinator.New(repos, cache, cfg.RemoteName, cfg.Branch, logger)
		lists := liststore.New(workDir)
		svc := timeline.New(lists, coord, workDir, logger)

		scope := timeline.Scope{Kind: fetchScopeKind, ID: fetchScopeID}
		urls, err := svc.ResolveScope(cmd.Context(), scope)
		if err != nil {
			return err
		}

		// The workspace is local; it refreshes off its own branch rather
		// than through the isolated-clone fetch path.
		remote := urls[:0]
		for _, u := range urls {
			if u == workDir {
				if err := coord.RefreshWorkspace(cmd.Context(), workDir); err != nil {
					fmt.Fprintf(os.Stderr, "failed: workspace: %v\n", err)
				}
				continue
			}
			remote = append(remote, u)
		}

		persistent := scope.Kind == "list" || scope.Kind == "timeline"
		fetched, failed, outcomes := coord.FetchUpdates(cmd.Context(), remote, weekStart, fetchcoordinator.EnsureOptions{
			IsPersistent: persistent,
		})
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				fmt.Fprintf(os.Stderr, "failed: %s: %v\n", outcome.Repository, outcome.Err)
				continue
			}
			fmt.Printf("fetched: %s\n", outcome.Repository)
		}
		fmt.Printf("\n%d fetched, %d failed\n", fetched, failed)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchScopeKind, "scope", "timeline", `scope kind: "timeline", "list", "repository", or "workspace"`)
	fetchCmd.Flags().StringVar(&fetchScopeID, "id", "", "list name or repository URL (required for --scope=list|repository)")
	fetchCmd.Flags().StringVar(&fetchSinceFlag, "since", "", `window start, natural language; default is the start of this week`)
	rootCmd.AddCommand(fetchCmd)
}
