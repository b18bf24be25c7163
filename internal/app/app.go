// Package app wires GitSocial's components together and registers the
// full request/response operation surface onto a Webview Broker. The
// CLI's serve command and any embedding host construct one App and
// point panels at its broker.
package app

import (
	"log"

	"github.com/gitsocial-org/gitsocial/internal/broker"
	"github.com/gitsocial-org/gitsocial/internal/config"
	"github.com/gitsocial-org/gitsocial/internal/fetchcoordinator"
	"github.com/gitsocial-org/gitsocial/internal/gitref"
	"github.com/gitsocial-org/gitsocial/internal/liststore"
	"github.com/gitsocial-org/gitsocial/internal/logging"
	"github.com/gitsocial-org/gitsocial/internal/postcache"
	"github.com/gitsocial-org/gitsocial/internal/repostore"
	"github.com/gitsocial-org/gitsocial/internal/social"
	"github.com/gitsocial-org/gitsocial/internal/timeline"
)

// App is the assembled GitSocial host: every store and service, rooted
// at one workspace directory and one storage root.
type App struct {
	Config     config.Config
	ConfigPath string
	WorkDir    string

	Lists       *liststore.Store
	Repos       *repostore.Store
	Cache       *postcache.Cache
	Coordinator *fetchcoordinator.Coordinator
	Timeline    *timeline.Service
	Social      *social.Service
	Ops         *gitref.Ops

	logger *log.Logger
}

// New assembles an App from cfg, rooted at workDir.
func New(cfg config.Config, configPath, workDir string) *App {
	logging.Configure(cfg.LogPath)
	logger := logging.New("gitsocial")

	repos := repostore.New(cfg.StorageRoot)
	cache := postcache.New(cfg.CacheMaxSize)
	coord := fetchcoordinator.New(repos, cache, cfg.RemoteName, cfg.Branch, logging.New("fetch"))
	lists := liststore.New(workDir)
	tl := timeline.New(lists, coord, workDir, logging.New("timeline"))

	return &App{
		Config:      cfg,
		ConfigPath:  configPath,
		WorkDir:     workDir,
		Lists:       lists,
		Repos:       repos,
		Cache:       cache,
		Coordinator: coord,
		Timeline:    tl,
		Social:      social.New(workDir, cfg.Branch),
		Ops:         gitref.New(workDir),
		logger:      logger,
	}
}

// NewBroker returns a Broker with the App's full handler surface
// registered.
func (a *App) NewBroker() *broker.Broker {
	b := broker.New(logging.New("broker"))
	a.RegisterHandlers(b)
	return b
}
