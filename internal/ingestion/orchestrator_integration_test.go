package ingestion

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/repokg/repokg/internal/cache"
	"github.com/repokg/repokg/internal/config"
	"github.com/repokg/repokg/internal/impact"
	"github.com/repokg/repokg/internal/ingest"
	"github.com/repokg/repokg/internal/model"
	"github.com/repokg/repokg/internal/query"
	"github.com/repokg/repokg/internal/storage"
	"github.com/repokg/repokg/internal/trace"
)

// newIntegrationFacade wires a real SQLite-backed store (not the package's
// in-memory fakeStore) behind the query facade, so these tests exercise the
// orchestrator's transactional commit against the same engine a CLI run uses.
func newIntegrationFacade(t *testing.T, store storage.Store, repoID string) *query.Facade {
	t.Helper()
	traceEngine := trace.NewEngine(store, nil, config.TraceConfig{MaxDepth: 5, MaxResults: 20})
	impactEngine := impact.NewEngine(store, config.ImpactConfig{MaxDepth: 3, DecayFactor: 0.5})
	cacheMgr := cache.NewManager(&config.Config{Cache: config.CacheConfig{TTL: 0}}, discardLogger())
	return query.NewFacade(store, traceEngine, impactEngine, cacheMgr, repoID)
}

func newSQLiteStore(t *testing.T) storage.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.db")
	store, err := storage.NewSQLiteStore(path, discardLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestBuildThenRefresh_IsIdempotentAndAdvancesWatermarksIndependently(t *testing.T) {
	store := newSQLiteStore(t)
	repoID := "acme/widgets"

	commitID := model.NaturalKey(model.NodeCommit, "c1")
	fileID := model.NaturalKey(model.NodeFile, "main.go")
	vcs := &scriptedIngestor{
		name: "vcs",
		nodes: []model.Node{
			{ID: commitID, RepoID: repoID, Type: model.NodeCommit, Title: "initial commit"},
			{ID: fileID, RepoID: repoID, Type: model.NodeFile, Title: "main.go"},
		},
		edges: []model.Edge{
			{SrcID: commitID, DstID: fileID, Relation: model.RelModifies},
		},
		watermark: "c1",
	}
	registry := ingest.NewRegistry()
	registry.Register(vcs)

	orch := NewOrchestrator(store, registry, discardLogger(), repoID, "/tmp/repo")

	first, err := orch.Build(context.Background())
	if err != nil {
		t.Fatalf("first Build() error = %v", err)
	}
	if first.Outcomes[0].Err != nil {
		t.Fatalf("first build's vcs outcome failed: %v", first.Outcomes[0].Err)
	}

	second, err := orch.Build(context.Background())
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if second.Outcomes[0].Err != nil {
		t.Fatalf("second build's vcs outcome failed: %v", second.Outcomes[0].Err)
	}

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	if stats.NodeCount != 2 {
		t.Errorf("expected re-running the same ingestor output to stay idempotent, got %d current nodes", stats.NodeCount)
	}
	if stats.EdgeCount != 1 {
		t.Errorf("expected re-running the same ingestor output to stay idempotent, got %d current edges", stats.EdgeCount)
	}

	wm, err := store.GetWatermark(context.Background(), repoID, "vcs")
	if err != nil {
		t.Fatalf("GetWatermark() error = %v", err)
	}
	if wm != "c1" {
		t.Errorf("expected watermark 'c1', got %q", wm)
	}
}

func TestBuild_FacadeSeesCommittedNodesAndEdgesWithNoDanglingReferences(t *testing.T) {
	store := newSQLiteStore(t)
	repoID := "acme/widgets"

	commitID := model.NaturalKey(model.NodeCommit, "c1")
	fileID := model.NaturalKey(model.NodeFile, "main.go")
	prID := model.NaturalKey(model.NodePR, "acme/widgets#7")

	registry := ingest.NewRegistry()
	registry.Register(&scriptedIngestor{
		name: "vcs",
		nodes: []model.Node{
			{ID: commitID, RepoID: repoID, Type: model.NodeCommit, Title: "fix bug"},
			{ID: fileID, RepoID: repoID, Type: model.NodeFile, Title: "main.go"},
		},
		edges:     []model.Edge{{SrcID: commitID, DstID: fileID, Relation: model.RelModifies}},
		watermark: "c1",
	})
	registry.Register(&scriptedIngestor{
		name:      "remote",
		nodes:     []model.Node{{ID: prID, RepoID: repoID, Type: model.NodePR, Title: "fix the bug"}},
		edges:     []model.Edge{{SrcID: prID, DstID: commitID, Relation: model.RelMerges}},
		watermark: "7",
	})

	orch := NewOrchestrator(store, registry, discardLogger(), repoID, "/tmp/repo")
	if _, err := orch.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	facade := newIntegrationFacade(t, store, repoID)
	ctx := context.Background()

	node, err := facade.Entity(ctx, commitID)
	if err != nil {
		t.Fatalf("Entity() error = %v", err)
	}
	if node.Title != "fix bug" {
		t.Errorf("expected the commit node's title to round-trip, got %q", node.Title)
	}

	edges, err := facade.Related(ctx, commitID, nil)
	if err != nil {
		t.Fatalf("Related() error = %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected the commit to have 2 edges (MODIFIES out, MERGES in), got %d: %+v", len(edges), edges)
	}
	for _, e := range edges {
		if _, err := store.GetNode(ctx, e.SrcID); err != nil {
			t.Errorf("dangling edge: src %q not found: %v", e.SrcID, err)
		}
		if _, err := store.GetNode(ctx, e.DstID); err != nil {
			t.Errorf("dangling edge: dst %q not found: %v", e.DstID, err)
		}
	}
}

func TestBuild_ImpactEngineFollowsStructuralDependenciesFromTheCommittedGraph(t *testing.T) {
	store := newSQLiteStore(t)
	repoID := "acme/widgets"

	handlerID := model.NaturalKey(model.NodeFile, "handler.go")
	clientID := model.NaturalKey(model.NodeFile, "client.go")

	registry := ingest.NewRegistry()
	registry.Register(&scriptedIngestor{
		name: "structure",
		nodes: []model.Node{
			{ID: handlerID, RepoID: repoID, Type: model.NodeFile, Title: "handler.go"},
			{ID: clientID, RepoID: repoID, Type: model.NodeFile, Title: "client.go"},
		},
		// handler.go imports client.go: a change to client.go affects handler.go.
		edges:     []model.Edge{{SrcID: handlerID, DstID: clientID, Relation: model.RelImports}},
		watermark: "v1",
	})

	orch := NewOrchestrator(store, registry, discardLogger(), repoID, "/tmp/repo")
	if _, err := orch.Build(context.Background()); err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	facade := newIntegrationFacade(t, store, repoID)
	impactResult, err := facade.Impact(context.Background(), clientID, -1, nil)
	if err != nil {
		t.Fatalf("Impact() error = %v", err)
	}

	found := false
	for _, imp := range impactResult.Impacted {
		if imp.NodeID == handlerID && imp.Classification == impact.Direct {
			found = true
		}
	}
	if !found {
		t.Errorf("expected handler.go to appear as a direct structural dependent of client.go, got %+v", impactResult.Impacted)
	}
}
