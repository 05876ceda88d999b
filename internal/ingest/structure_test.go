package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repokg/repokg/internal/model"
)

func TestStructureIngestor_GroupsByTopLevelDir(t *testing.T) {
	repoPath := t.TempDir()
	mustWrite := func(rel, content string) {
		full := filepath.Join(repoPath, rel)
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	mustWrite("internal/model/model.go", "package model\n")
	mustWrite("internal/storage/sqlite.go", "package storage\n")
	mustWrite("README.md", "root readme, not under a module\n")

	ing := NewStructureIngestor("test/repo")
	nodes, edges, _, err := ing.Ingest(context.Background(), repoPath, "")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if len(nodes) != 1 {
		t.Fatalf("expected 1 module node for 'internal', got %d", len(nodes))
	}
	if nodes[0].Type != model.NodeModule || nodes[0].Title != "internal" {
		t.Errorf("unexpected module node: %+v", nodes[0])
	}

	if len(edges) != 2 {
		t.Fatalf("expected 2 PART_OF edges (one per source file), got %d", len(edges))
	}
	for _, e := range edges {
		if e.Relation != model.RelPartOf {
			t.Errorf("expected PART_OF relation, got %s", e.Relation)
		}
		if e.DstID != nodes[0].ID {
			t.Errorf("expected edge to point at module %s, got %s", nodes[0].ID, e.DstID)
		}
	}
}

func TestStructureIngestor_SkipsExcludedDirs(t *testing.T) {
	repoPath := t.TempDir()
	full := filepath.Join(repoPath, "node_modules", "pkg", "index.js")
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("module.exports = {}\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ing := NewStructureIngestor("test/repo")
	nodes, edges, _, err := ing.Ingest(context.Background(), repoPath, "")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(nodes) != 0 || len(edges) != 0 {
		t.Errorf("expected node_modules to be excluded entirely, got %d nodes %d edges", len(nodes), len(edges))
	}
}
