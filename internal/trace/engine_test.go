package trace

import (
	"context"
	"testing"
	"time"

	"github.com/repokg/repokg/internal/config"
	"github.com/repokg/repokg/internal/model"
	"github.com/repokg/repokg/internal/storage"
)

// graphStore is a small in-memory storage.Store backing a fixed node/edge
// set, enough to exercise the BFS and importance ranking without a real
// SQLite file.
type graphStore struct {
	nodes map[string]model.Node
	edges []model.Edge
}

func newGraphStore() *graphStore {
	return &graphStore{nodes: make(map[string]model.Node)}
}

func (s *graphStore) addNode(n model.Node) { s.nodes[n.ID] = n }
func (s *graphStore) addEdge(e model.Edge) { s.edges = append(s.edges, e) }

func (s *graphStore) UpsertNodes(ctx context.Context, nodes []model.Node) error { return nil }
func (s *graphStore) UpsertEdges(ctx context.Context, edges []model.Edge) error { return nil }

func (s *graphStore) GetNode(ctx context.Context, id string) (*model.Node, error) {
	n, ok := s.nodes[id]
	if !ok {
		return nil, errNotFound(id)
	}
	return &n, nil
}
func (s *graphStore) GetNodeAsOf(ctx context.Context, id string, t time.Time) (*model.Node, error) {
	return s.GetNode(ctx, id)
}

func (s *graphStore) EdgesByNode(ctx context.Context, id string, dir storage.EdgeDirection, relations []model.EdgeRelation) ([]model.Edge, error) {
	allowed := make(map[model.EdgeRelation]bool)
	for _, r := range relations {
		allowed[r] = true
	}
	var out []model.Edge
	for _, e := range s.edges {
		if len(relations) > 0 && !allowed[e.Relation] {
			continue
		}
		switch dir {
		case storage.DirOut:
			if e.SrcID == id {
				out = append(out, e)
			}
		case storage.DirIn:
			if e.DstID == id {
				out = append(out, e)
			}
		default:
			if e.SrcID == id || e.DstID == id {
				out = append(out, e)
			}
		}
	}
	return out, nil
}

func (s *graphStore) SearchFTS(ctx context.Context, repoID, query string, limit int) ([]string, error) {
	return nil, nil
}
func (s *graphStore) QueryNodes(ctx context.Context, repoID string, types []model.NodeType, from, to *time.Time) ([]model.Node, error) {
	var out []model.Node
	for _, n := range s.nodes {
		out = append(out, n)
	}
	return out, nil
}
func (s *graphStore) GetWatermark(ctx context.Context, repoID, ingestorName string) (string, error) {
	return "", nil
}
func (s *graphStore) SetWatermark(ctx context.Context, repoID, ingestorName, watermark string) error {
	return nil
}
func (s *graphStore) Begin(ctx context.Context) (storage.Tx, error)     { return nil, nil }
func (s *graphStore) TryAdvisoryLock(ctx context.Context) (bool, error) { return true, nil }
func (s *graphStore) ReleaseAdvisoryLock(ctx context.Context) error     { return nil }
func (s *graphStore) Stats(ctx context.Context) (storage.Stats, error)  { return storage.Stats{}, nil }
func (s *graphStore) Close() error                                      { return nil }

type notFoundErr string

func (e notFoundErr) Error() string { return "node not found: " + string(e) }
func errNotFound(id string) error   { return notFoundErr(id) }

// TestDecisionTrail_TracesToADR reproduces the canonical trace chain: a
// commit merged by a PR that mentions an issue an ADR decided, and checks
// that the ADR — despite being the deepest node in the BFS — outranks the
// commit it's three hops away from.
func TestDecisionTrail_TracesToADR(t *testing.T) {
	store := newGraphStore()
	commit := model.NaturalKey(model.NodeCommit, "aaaa")
	pr := model.NaturalKey(model.NodePR, "acme/widgets#7")
	issue := model.NaturalKey(model.NodeIssue, "ABC-9")
	adr := model.NaturalKey(model.NodeADR, "ADR-005")

	now := time.Now()
	store.addNode(model.Node{ID: commit, Type: model.NodeCommit, Title: "fix auth check", ValidFrom: now.Add(-96 * time.Hour)})
	store.addNode(model.Node{ID: pr, Type: model.NodePR, Title: "Fix auth check", ValidFrom: now.Add(-72 * time.Hour)})
	store.addNode(model.Node{ID: issue, Type: model.NodeIssue, Title: "auth bypass under load", ValidFrom: now.Add(-48 * time.Hour)})
	store.addNode(model.Node{ID: adr, Type: model.NodeADR, Title: "session token storage", Body: "switch to signed cookies", ValidFrom: now.Add(-24 * time.Hour)})

	store.addEdge(model.Edge{SrcID: commit, DstID: pr, Relation: model.RelMerges, ValidFrom: now.Add(-72 * time.Hour)})
	store.addEdge(model.Edge{SrcID: pr, DstID: issue, Relation: model.RelMentions, ValidFrom: now.Add(-48 * time.Hour)})
	store.addEdge(model.Edge{SrcID: adr, DstID: issue, Relation: model.RelDecides, ValidFrom: now.Add(-24 * time.Hour)})

	engine := NewEngine(store, nil, config.TraceConfig{LatencyBudget: 200 * time.Millisecond, MaxDepth: 3, MaxResults: 5})
	trail, err := engine.DecisionTrail(context.Background(), commit)
	if err != nil {
		t.Fatalf("DecisionTrail() error = %v", err)
	}
	if trail.Truncated {
		t.Fatal("did not expect the trail to be truncated")
	}
	if len(trail.Steps) != 4 {
		t.Fatalf("expected 4 steps (commit, pr, issue, adr), got %d: %+v", len(trail.Steps), trail.Steps)
	}

	if trail.Steps[0].NodeID != adr {
		t.Errorf("expected the ADR to rank first despite being the deepest hop, got %s", trail.Steps[0].NodeID)
	}
	if trail.Steps[len(trail.Steps)-1].NodeID != commit {
		t.Errorf("expected the seed commit to rank last, got %s", trail.Steps[len(trail.Steps)-1].NodeID)
	}

	positions := make(map[string]int)
	for _, s := range trail.Steps {
		positions[s.NodeID] = s.TrailPosition
	}
	if positions[commit] != 0 {
		t.Errorf("expected commit's trail_position to be 0, got %d", positions[commit])
	}
	if positions[pr] != 1 {
		t.Errorf("expected pr's trail_position to be 1, got %d", positions[pr])
	}
	if positions[issue] != 2 {
		t.Errorf("expected issue's trail_position to be 2, got %d", positions[issue])
	}
	if positions[adr] != 3 {
		t.Errorf("expected adr's trail_position to be 3, got %d", positions[adr])
	}
}

// TestDecisionTrail_DoesNotFollowModifiesFromSeed checks that a commit's
// MODIFIES edges (whole-file fan-out) never appear in the trail, only the
// typed MERGES/MENTIONS/DECIDES chain does.
func TestDecisionTrail_DoesNotFollowModifiesFromSeed(t *testing.T) {
	store := newGraphStore()
	commit := model.NaturalKey(model.NodeCommit, "bbbb")
	file := model.NaturalKey(model.NodeFile, "internal/auth/check.go")
	pr := model.NaturalKey(model.NodePR, "acme/widgets#11")

	store.addNode(model.Node{ID: commit, Type: model.NodeCommit, Title: "tighten auth check"})
	store.addNode(model.Node{ID: file, Type: model.NodeFile, Title: "check.go"})
	store.addNode(model.Node{ID: pr, Type: model.NodePR, Title: "Tighten auth check"})

	store.addEdge(model.Edge{SrcID: commit, DstID: file, Relation: model.RelModifies, ValidFrom: time.Now()})
	store.addEdge(model.Edge{SrcID: commit, DstID: pr, Relation: model.RelMerges, ValidFrom: time.Now()})

	engine := NewEngine(store, nil, config.TraceConfig{LatencyBudget: 200 * time.Millisecond, MaxDepth: 3, MaxResults: 10})
	trail, err := engine.DecisionTrail(context.Background(), commit)
	if err != nil {
		t.Fatalf("DecisionTrail() error = %v", err)
	}
	for _, s := range trail.Steps {
		if s.NodeID == file {
			t.Errorf("expected MODIFIES to not be followed outward from the seed commit, but found file step %+v", s)
		}
	}
	if len(trail.Steps) != 2 {
		t.Fatalf("expected only the seed commit and the merged pr, got %d steps: %+v", len(trail.Steps), trail.Steps)
	}
}

func TestDecisionTrail_RespectsMaxDepth(t *testing.T) {
	store := newGraphStore()
	commit := model.NaturalKey(model.NodeCommit, "c")
	pr := model.NaturalKey(model.NodePR, "acme/widgets#1")
	issue := model.NaturalKey(model.NodeIssue, "ISSUE-1")

	store.addNode(model.Node{ID: commit, Type: model.NodeCommit, Title: "c"})
	store.addNode(model.Node{ID: pr, Type: model.NodePR, Title: "pr"})
	store.addNode(model.Node{ID: issue, Type: model.NodeIssue, Title: "issue"})
	store.addEdge(model.Edge{SrcID: commit, DstID: pr, Relation: model.RelMerges, ValidFrom: time.Now()})
	store.addEdge(model.Edge{SrcID: pr, DstID: issue, Relation: model.RelMentions, ValidFrom: time.Now()})

	engine := NewEngine(store, nil, config.TraceConfig{LatencyBudget: 200 * time.Millisecond, MaxDepth: 1, MaxResults: 10})
	trail, err := engine.DecisionTrail(context.Background(), commit)
	if err != nil {
		t.Fatalf("DecisionTrail() error = %v", err)
	}
	if len(trail.Steps) != 2 {
		t.Fatalf("expected depth-1 cap to stop at the pr and not reach the issue, got %d steps: %+v", len(trail.Steps), trail.Steps)
	}
	for _, s := range trail.Steps {
		if s.NodeID == issue {
			t.Error("expected the issue to be excluded past the depth cap")
		}
	}
}
