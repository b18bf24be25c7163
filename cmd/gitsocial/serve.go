package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitsocial-org/gitsocial/internal/app"
	"github.com/gitsocial-org/gitsocial/internal/broker"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/logging"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
)

var (
	serveAddr  string
	serveWatch bool
)

// serveCmd is the long-running entry point: listen, wait on
// signal.NotifyContext, shut down gracefully.
var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "advanced",
	Short:   "Mirror the Webview Broker's request/response bus over a WebSocket",
	Long: `Start a WebSocket listener exposing the in-process Webview Broker to
an out-of-process UI surface (a browser, or a second CLI process).

This is a transport for the existing in-process broker, not a server-
hosted account or data system: every request it serves is answered the
same way an in-process handler call would be.

Connect with a WebSocket client:
  ws://localhost:8765/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		host := app.New(cfg, configPath(), workDir)
		b := host.NewBroker()

		addr := serveAddr
		if addr == "" {
			addr = cfg.ListenAddr
		}
		server := broker.NewWSServer(addr, b, logging.New("ws"))
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to start broker server: %v\n", err)
			os.Exit(1)
		}

		var watcher *postcache.Watcher
		if serveWatch {
			watcher = startWatcher(host)
		}

		fmt.Printf("Broker server listening on ws://%s/ws\n", server.Addr())
		fmt.Println("Press Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down broker server...")
		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "Error stopping watcher: %v\n", err)
			}
		}
		if err := server.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Broker server stopped")
	},
}

// startWatcher wires the optional fsnotify storage watcher: a ref
// change inside an isolated clone triggers a debounced cache refresh
// for that one repository.
func startWatcher(host *app.App) *postcache.Watcher {
	logger := logging.New("watcher")
	w, err := postcache.NewWatcher(cfg.StorageRoot, func(slug string) {
		ctx := context.Background()
		for _, repo := range host.Cache.Repositories() {
			if gitref.Slug(repo) != slug {
				continue
			}
			if err := host.Coordinator.RefreshRepository(ctx, repo); err != nil {
				logger.Printf("refresh after ref change failed for %s: %v", slug, err)
			}
			return
		}
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: storage watcher unavailable: %v\n", err)
		return nil
	}
	if err := w.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: storage watcher not started: %v\n", err)
		return nil
	}
	return w
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config, e.g. :8765)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "watch isolated-clone refs and refresh the post cache eagerly")
	rootCmd.AddCommand(serveCmd)
}
