package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/gitref"
)

var pushRemote string

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "data",
	Short:   "Push the social branch and every gitmsg list ref to the remote",
	RunE: func(cmd *cobra.Command, args []string) error {
		remote := pushRemote
		if remote == "" {
			remote = cfg.RemoteName
		}
		ops := gitref.New(workDir)
		ctx := cmd.Context()

		ahead, _, err := ops.AheadBehind(ctx, gitref.BranchRef(cfg.Branch), gitref.RemoteBranchRef(remote, cfg.Branch))
		if err != nil {
			return err
		}
		if ahead == 0 {
			fmt.Println("Branch is up to date; pushing list refs only")
		} else {
			fmt.Printf("Pushing %d unpushed commit(s) on %s\n", ahead, cfg.Branch)
		}

		if err := ops.Push(ctx, remote, cfg.Branch); err != nil {
			return err
		}
		if err := ops.Push(ctx, remote, "refs/gitmsg/*:refs/gitmsg/*"); err != nil {
			return err
		}
		fmt.Printf("Pushed to %s\n", remote)
		return nil
	},
}

func init() {
	pushCmd.Flags().StringVar(&pushRemote, "remote", "", "remote name (default from config)")
	rootCmd.AddCommand(pushCmd)
}
