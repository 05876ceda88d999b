package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/repokg/repokg/internal/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace file <path> <line>",
	Short: "answer why a line is the way it is: the decision trail from its last commit",
	Args:  cobra.ExactArgs(3),
	RunE:  runTrace,
}

func runTrace(cmd *cobra.Command, args []string) error {
	if args[0] != "file" {
		return fmt.Errorf("usage: graphctl trace file <path> <line>")
	}
	line, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid line number %q: %w", args[2], err)
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.store.Close()

	trail, err := a.facade.TraceLine(context.Background(), a.repoPath, args[1], line)
	if err != nil {
		return err
	}
	printTrail(trail)
	return nil
}

var whyCmd = &cobra.Command{
	Use:   "why query <text>",
	Short: "full-text search, then print the decision trail of the best match",
	Args:  cobra.ExactArgs(2),
	RunE:  runWhy,
}

func runWhy(cmd *cobra.Command, args []string) error {
	if args[0] != "query" {
		return fmt.Errorf("usage: graphctl why query <text>")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx := context.Background()
	matches, err := a.facade.Query(ctx, args[1], 1)
	if err != nil {
		return err
	}
	if len(matches) == 0 {
		fmt.Println("no matching nodes")
		return nil
	}

	trail, err := a.facade.DecisionTrail(ctx, matches[0].ID)
	if err != nil {
		return err
	}
	fmt.Printf("seed: %s (%s)\n", matches[0].ID, matches[0].Title)
	printTrail(trail)
	return nil
}

func printTrail(trail *trace.Trail) {
	for _, step := range trail.Steps {
		fmt.Printf("%2d  importance=%.3f  %-10s  %-8s  %s\n", step.TrailPosition, step.Importance, step.NodeType, step.Relation, step.Title)
		if step.Rationale != "" {
			fmt.Printf("      %s\n", step.Rationale)
		}
	}
	if trail.Truncated {
		fmt.Println("(truncated: latency budget exceeded)")
	}
}
