package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/social"
)

var commentCmd = &cobra.Command{
	Use:     "comment <target-hash> [content]",
	GroupID: "social",
	Short:   "Comment on an existing post",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runInteraction(cmd, args, createComment)
	},
}

var repostCmd = &cobra.Command{
	Use:     "repost <target-hash>",
	GroupID: "social",
	Short:   "Repost an existing post",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runInteraction(cmd, args, createRepost)
	},
}

var quoteCmd = &cobra.Command{
	Use:     "quote <target-hash> [content]",
	GroupID: "social",
	Short:   "Quote an existing post with added commentary",
	Args:    cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runInteraction(cmd, args, createQuote)
	},
}

type interactionFunc func(ctx context.Context, svc *social.Service, author social.Identity, target social.Target, content string) (string, error)

func createComment(ctx context.Context, svc *social.Service, author social.Identity, target social.Target, content string) (string, error) {
	return svc.CreateComment(ctx, author, target, content)
}

func createRepost(ctx context.Context, svc *social.Service, author social.Identity, target social.Target, content string) (string, error) {
	return svc.CreateRepost(ctx, author, target)
}

func createQuote(ctx context.Context, svc *social.Service, author social.Identity, target social.Target, content string) (string, error) {
	return svc.CreateQuote(ctx, author, target, content)
}

func runInteraction(cmd *cobra.Command, args []string, create interactionFunc) {
	ctx := cmd.Context()
	targetHash := strings.TrimPrefix(args[0], "#commit:")
	content := ""
	if len(args) > 1 {
		content = strings.Join(args[1:], " ")
	}

	ops := gitref.New(workDir)
	commit, err := ops.ReadCommit(ctx, targetHash)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: target commit not found: %v\n", err)
		os.Exit(1)
	}

	target := social.Target{
		ID:    social.TargetID(commit.Hash),
		Name:  commit.AuthorName,
		Email: commit.AuthorEmail,
		Time:  commit.Time.Format(time.RFC3339),
	}

	svc := social.New(workDir, cfg.Branch)
	author := currentAuthor(ctx)
	hash, err := create(ctx, svc, author, target, content)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created %s\n", social.TargetID(hash))
}

func init() {
	rootCmd.AddCommand(commentCmd, repostCmd, quoteCmd)
}
