package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	kgerrors "github.com/repokg/repokg/internal/errors"
)

var relateCmd = &cobra.Command{
	Use:   "relate <id>",
	Short: "list current edges touching a node, and the blast radius it implicates",
	Args:  cobra.ExactArgs(1),
	RunE:  runRelate,
}

func runRelate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.store.Close()

	ctx := context.Background()
	nodeID := args[0]

	node, err := a.facade.Entity(ctx, nodeID)
	if err != nil {
		return kgerrors.NotFoundf("node %q not found: %v", nodeID, err)
	}
	fmt.Printf("%s  %s\n", node.ID, node.Title)

	edges, err := a.facade.Related(ctx, nodeID, nil)
	if err != nil {
		return err
	}
	for _, e := range edges {
		fmt.Printf("  %-12s %s -> %s\n", e.Relation, e.SrcID, e.DstID)
	}

	result, err := a.facade.Impact(ctx, nodeID, -1, nil)
	if err != nil {
		return err
	}
	if len(result.Impacted) > 0 {
		fmt.Println("blast radius:")
		for _, imp := range result.Impacted {
			fmt.Printf("  %-10s %-12s score=%.2f  path=%v  %s\n", imp.Classification, imp.NodeType, imp.Score, imp.Path, imp.Title)
		}
	}
	return nil
}
