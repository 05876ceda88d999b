package ingest

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/repokg/repokg/internal/model"
)

func initTestRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Skipf("git not available: %v: %s", err, out)
		}
	}

	run("init")
	run("config", "user.email", "test@example.com")
	run("config", "user.name", "Test User")

	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", "main.go")
	run("commit", "-m", "initial commit")

	if err := os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	run("add", "main.go")
	run("commit", "-m", "add main function")

	return dir
}

func TestVCSIngestor_IngestFromScratch(t *testing.T) {
	repoPath := initTestRepo(t)
	ing := NewVCSIngestor("test/repo")

	nodes, edges, watermark, err := ing.Ingest(context.Background(), repoPath, "")
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if watermark == "" {
		t.Fatal("expected a non-empty watermark after ingesting commits")
	}

	var commitCount, fileCount int
	for _, n := range nodes {
		switch n.Type {
		case model.NodeCommit:
			commitCount++
		case model.NodeFile:
			fileCount++
		}
	}
	if commitCount != 2 {
		t.Errorf("expected 2 commit nodes, got %d", commitCount)
	}
	if fileCount != 1 {
		t.Errorf("expected 1 distinct file node, got %d", fileCount)
	}

	var modifiesCount int
	for _, e := range edges {
		if e.Relation == model.RelModifies {
			modifiesCount++
		}
	}
	if modifiesCount != 2 {
		t.Errorf("expected 2 MODIFIES edges, got %d", modifiesCount)
	}
}

func TestVCSIngestor_IngestIncremental(t *testing.T) {
	repoPath := initTestRepo(t)
	ing := NewVCSIngestor("test/repo")

	_, _, firstWatermark, err := ing.Ingest(context.Background(), repoPath, "")
	if err != nil {
		t.Fatalf("initial Ingest() error = %v", err)
	}

	nodes, _, secondWatermark, err := ing.Ingest(context.Background(), repoPath, firstWatermark)
	if err != nil {
		t.Fatalf("incremental Ingest() error = %v", err)
	}
	if secondWatermark != firstWatermark {
		t.Errorf("expected watermark to stay at %s with no new commits, got %s", firstWatermark, secondWatermark)
	}
	if len(nodes) != 0 {
		t.Errorf("expected no new nodes on an unchanged repository, got %d", len(nodes))
	}
}
