package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/repokg/repokg/internal/model"
)

func TestDecisionIngestor_ParsesFrontMatter(t *testing.T) {
	repoPath := t.TempDir()
	adrDir := filepath.Join(repoPath, "docs", "adr")
	if err := os.MkdirAll(adrDir, 0755); err != nil {
		t.Fatal(err)
	}

	content := `---
title: Use SQLite for the embedded store
status: accepted
date: 2025-03-01
deciders:
  - alice
  - bob
---

## Context

We need a single-file store with no external dependencies.
`
	if err := os.WriteFile(filepath.Join(adrDir, "0001-embedded-store.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ing := NewDecisionIngestor("test/repo")
	nodes, _, watermark, err := ing.Ingest(context.Background(), repoPath, "")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 adr node, got %d", len(nodes))
	}
	if watermark == "" {
		t.Error("expected a non-empty watermark after finding an ADR file")
	}

	n := nodes[0]
	if n.Type != model.NodeADR {
		t.Errorf("expected node type %q, got %q", model.NodeADR, n.Type)
	}
	if n.Title != "Use SQLite for the embedded store" {
		t.Errorf("unexpected title: %q", n.Title)
	}
	if n.Props["status"] != "accepted" {
		t.Errorf("expected status 'accepted', got %v", n.Props["status"])
	}
}

func TestDecisionIngestor_NoADRDirectory(t *testing.T) {
	repoPath := t.TempDir()
	ing := NewDecisionIngestor("test/repo")

	nodes, edges, watermark, err := ing.Ingest(context.Background(), repoPath, "prev-watermark")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(nodes) != 0 || len(edges) != 0 {
		t.Errorf("expected no nodes/edges when no ADR directory exists, got %d nodes %d edges", len(nodes), len(edges))
	}
	if watermark != "prev-watermark" {
		t.Errorf("expected watermark to pass through unchanged, got %q", watermark)
	}
}

func TestDecisionIngestor_HeadingFallback(t *testing.T) {
	repoPath := t.TempDir()
	adrDir := filepath.Join(repoPath, "adr")
	if err := os.MkdirAll(adrDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(adrDir, "0002-plain.md"), []byte("# Plain decision record\n\nNo front matter here.\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ing := NewDecisionIngestor("test/repo")
	nodes, _, _, err := ing.Ingest(context.Background(), repoPath, "")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("expected 1 adr node, got %d", len(nodes))
	}
	if nodes[0].Title != "Plain decision record" {
		t.Errorf("expected title parsed from heading, got %q", nodes[0].Title)
	}
}
