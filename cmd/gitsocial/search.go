package main

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/logging"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
	"github.com/gitsocial-org/gitsocial/internal/timeline"
)

var searchScopeKind string
var searchScopeID string

var searchCmd = &cobra.Command{
	Use:     "search <query>",
	GroupID: "social",
	Short:   "Search cached posts by content or author",
	Long: `Search operates on what the post cache already holds; run fetch or
timeline first to widen coverage.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := logging.New("search")
		repos := repostore.New(cfg.StorageRoot)
		cache := postcache.New(cfg.CacheMaxSize)
		coord := fetchcoordinator.New(repos, cache, cfg.RemoteName, cfg.Branch, logger)
		svc := timeline.New(liststore.New(workDir), coord, workDir, logger)

		// A cold cache would make every search empty; warm the workspace
		// at minimum so local posts are always searchable.
		if err := coord.RefreshWorkspace(cmd.Context(), workDir); err != nil {
			logger.Printf("workspace refresh failed: %v", err)
		}

		scope := timeline.Scope{Kind: searchScopeKind, ID: searchScopeID}
		posts, err := svc.SearchPosts(cmd.Context(), strings.Join(args, " "), scope)
		if err != nil {
			return err
		}
		renderPostsTable(posts)
		return nil
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchScopeKind, "scope", "workspace", `scope kind: "timeline", "list", "repository", or "workspace"`)
	searchCmd.Flags().StringVar(&searchScopeID, "id", "", "list name or repository URL (required for --scope=list|repository)")
	rootCmd.AddCommand(searchCmd)
}
