// Package main implements the gitsocial CLI: a cobra command tree with
// one file per verb, each file's init() registering onto the
// package-level rootCmd.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/config"
	"github.com/gitsocial-org/gitsocial/internal/logging"
)

var (
	cfgFile string
	workDir string
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:   "gitsocial",
	Short: "A decentralized social-interaction protocol on top of git",
	Long: `gitsocial stores posts, comments, reposts, quotes, curated repository
lists and follower records as commits whose message carries structured
GitMsg protocol metadata. Peers exchange content through git's ordinary
fetch/push; there is no server and no separate database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if workDir == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("resolving working directory: %w", err)
			}
			workDir = wd
		}
		loaded, err := config.Load(configPath())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
		logging.Configure(cfg.LogPath)
		return nil
	},
}

// configPath resolves the gitsocial.toml location: --config wins,
// otherwise the working directory's default.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.FileName
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "social", Title: "Social:"},
		&cobra.Group{ID: "data", Title: "Data:"},
		&cobra.Group{ID: "advanced", Title: "Advanced:"},
	)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to gitsocial.toml (default: ./gitsocial.toml)")
	rootCmd.PersistentFlags().StringVar(&workDir, "workdir", "", "repository working directory (default: current directory)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
