package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/repokg/repokg/internal/logging"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "run every registered ingestor and commit its nodes/edges to the store",
	RunE:  runBuild,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "incremental build: re-run ingestors from their last watermark",
	RunE:  runBuild,
}

func runBuild(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.store.Close()

	logging.Info("build starting", "repo", a.repoID)
	result, err := a.orchestrator.Build(context.Background())
	if err != nil {
		logging.Error("build failed", "repo", a.repoID, "error", err)
		return err
	}
	logging.Info("build finished", "repo", a.repoID, "duration", result.Duration.String())

	for _, outcome := range result.Outcomes {
		if outcome.Err != nil {
			fmt.Printf("%-12s FAILED: %v\n", outcome.Name, outcome.Err)
			continue
		}
		fmt.Printf("%-12s %4d nodes, %4d edges\n", outcome.Name, outcome.NodeCount, outcome.EdgeCount)
	}
	fmt.Printf("done in %s\n", result.Duration)
	return nil
}
