package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "report store health: node/edge counts, schema version, per-ingestor watermarks",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.store.Close()

	stats, err := a.store.Stats(context.Background())
	if err != nil {
		return err
	}

	fmt.Printf("repo:            %s\n", a.repoID)
	fmt.Printf("store:           %s\n", cfg.Store.Path)
	fmt.Printf("schema version:  %d\n", stats.SchemaVersion)
	fmt.Printf("nodes:           %d\n", stats.NodeCount)
	fmt.Printf("edges:           %d\n", stats.EdgeCount)
	fmt.Printf("size:            %d bytes\n", stats.SizeBytes)

	keys := make([]string, 0, len(stats.Watermarks))
	for k := range stats.Watermarks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Println("watermarks:")
	for _, k := range keys {
		fmt.Printf("  %-30s %s\n", k, stats.Watermarks[k])
	}
	return nil
}
