package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/social"
)

var postCmd = &cobra.Command{
	Use:     "post",
	GroupID: "social",
	Short:   "Create and inspect posts",
}

var postCreateCmd = &cobra.Command{
	Use:   "create [content]",
	Short: "Commit a new post onto the social branch",
	Long: `Commit a new post onto the configured social branch.

When content isn't given as an argument, gitsocial post create opens an
interactive prompt for it.`,
	Run: func(cmd *cobra.Command, args []string) {
		content := argOrEmpty(args)
		if content == "" {
			content = promptForContent()
		}
		if content == "" {
			fmt.Fprintln(os.Stderr, "Error: post content is empty")
			os.Exit(1)
		}

		author := currentAuthor(cmd.Context())
		svc := social.New(workDir, cfg.Branch)
		hash, err := svc.CreatePost(cmd.Context(), author, content)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Posted %s\n", social.TargetID(hash))
	},
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func promptForContent() string {
	var content string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("What's on your mind?").
				Value(&content),
		),
	)
	if err := form.Run(); err != nil {
		return ""
	}
	return content
}

// currentAuthor reads the committer identity gitsocial will commit
// interactions as, from the repository's own git config. It is the
// same identity `git commit` itself would use.
func currentAuthor(ctx context.Context) social.Identity {
	ops := gitref.New(workDir)
	name, _ := ops.ConfigGet(ctx, "user.name")
	email, _ := ops.ConfigGet(ctx, "user.email")
	return social.Identity{Name: name, Email: email}
}

func init() {
	postCmd.AddCommand(postCreateCmd)
	rootCmd.AddCommand(postCmd)
}
