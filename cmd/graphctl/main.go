package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/repokg/repokg/internal/cache"
	"github.com/repokg/repokg/internal/config"
	kgerrors "github.com/repokg/repokg/internal/errors"
	kggit "github.com/repokg/repokg/internal/git"
	"github.com/repokg/repokg/internal/github"
	"github.com/repokg/repokg/internal/impact"
	"github.com/repokg/repokg/internal/ingest"
	"github.com/repokg/repokg/internal/ingestion"
	"github.com/repokg/repokg/internal/logging"
	"github.com/repokg/repokg/internal/query"
	"github.com/repokg/repokg/internal/storage"
	"github.com/repokg/repokg/internal/trace"
)

var (
	Version = "dev"

	cfgFile string
	verbose bool
	logger  *logrus.Logger
	cfg     *config.Config
)

func main() {
	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:     "graphctl",
	Short:   "local bi-temporal knowledge graph over a repository's history",
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		var cfgErr error
		cfg, cfgErr = config.Load(cfgFile)
		if cfgErr != nil {
			cfg = config.Default()
		}

		level := logging.ParseLevel(cfg.LogLevel)
		if verbose {
			level = logging.DEBUG
		}
		logCfg := logging.DebugConfig()
		logCfg.Level = level
		if err := logging.Initialize(logCfg); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to initialize logger: %v\n", err)
		}

		logger = logrus.New()
		if level == logging.DEBUG {
			logger.SetLevel(logrus.DebugLevel)
		} else {
			logger.SetLevel(logrus.InfoLevel)
		}
		if cfgErr != nil {
			logging.Warn("failed to load config, using defaults", "error", cfgErr)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .arc/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(whyCmd)
	rootCmd.AddCommand(relateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(doctorCmd)
}

// app bundles the constructed dependency graph one command run needs.
type app struct {
	store        storage.Store
	facade       *query.Facade
	orchestrator *ingestion.Orchestrator
	repoID       string
	repoPath     string
}

// newApp wires config -> store -> ingestors -> orchestrator/engines/facade,
// the composition root every subcommand shares.
func newApp() (*app, error) {
	if err := kggit.DetectGitRepo(); err != nil {
		return nil, err
	}
	repoPath, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	repoID := deriveRepoID(repoPath)

	store, err := storage.NewSQLiteStore(cfg.Store.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	registry := ingest.NewRegistry()
	registry.Register(ingest.NewVCSIngestor(repoID))
	registry.Register(ingest.NewDecisionIngestor(repoID))
	registry.Register(ingest.NewStructureIngestor(repoID))
	if cfg.GitHub.Token != "" {
		client := github.NewClient(cfg.GitHub.Token, "", "", cfg.GitHub.RateLimitPerSec)
		if owner, repo, err := kggit.ParseRepoURL(remoteURLOrEmpty()); err == nil {
			client = github.NewClient(cfg.GitHub.Token, owner, repo, cfg.GitHub.RateLimitPerSec)
		}
		registry.Register(ingest.NewRemoteIngestor(github.NewExtractor(client)))
	}

	orchestrator := ingestion.NewOrchestrator(store, registry, logger, repoID, repoPath)

	resolver := kggit.NewFileResolver(repoPath, storeNodeExister{store})
	traceEngine := trace.NewEngine(store, resolver, cfg.Trace)
	impactEngine := impact.NewEngine(store, cfg.Impact)
	cacheMgr := cache.NewManager(cfg, logger)
	facade := query.NewFacade(store, traceEngine, impactEngine, cacheMgr, repoID)

	if cfg.Export.SigningKeyPath != "" {
		if err := facade.LoadExportSigningKey(cfg.Export.SigningKeyPath); err != nil {
			logger.WithError(err).Warn("failed to load export signing key")
		}
	}

	return &app{store: store, facade: facade, orchestrator: orchestrator, repoID: repoID, repoPath: repoPath}, nil
}

// storeNodeExister adapts storage.Store to git.NodeExister for the rename
// resolver, which only needs to know whether a candidate id is known.
type storeNodeExister struct{ store storage.Store }

func (s storeNodeExister) NodeExists(ctx context.Context, id string) bool {
	_, err := s.store.GetNode(ctx, id)
	return err == nil
}

func deriveRepoID(repoPath string) string {
	if url, err := kggit.GetRemoteURL(); err == nil {
		if owner, repo, err := kggit.ParseRepoURL(url); err == nil {
			return owner + "/" + repo
		}
	}
	return filepath.Base(repoPath)
}

func remoteURLOrEmpty() string {
	url, _ := kggit.GetRemoteURL()
	return url
}

// exitCodeFor maps a top-level command error to the CLI's documented exit
// codes: 1 operational failure, 2 invalid input, 3 remote auth/rate-limit.
func exitCodeFor(err error) int {
	switch kgerrors.GetType(err) {
	case kgerrors.ErrorTypeInvalidInput:
		return 2
	case kgerrors.ErrorTypeAuth, kgerrors.ErrorTypeRateLimited:
		return 3
	default:
		return 1
	}
}
