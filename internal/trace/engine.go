// Package trace implements the decision-trail engine: given a seed (a file,
// a line, or a node id), it walks a bounded breadth-first search outward
// through the typed commit/PR/issue/ADR chain, ranking each hop by a blend
// of node-type weight, recency, and hop depth, to answer "why is this code
// the way it is" — within a latency budget, truncating rather than blocking
// past it.
package trace

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/repokg/repokg/internal/config"
	"github.com/repokg/repokg/internal/git"
	"github.com/repokg/repokg/internal/model"
	"github.com/repokg/repokg/internal/storage"
)

// Step is one entry in a decision trail.
type Step struct {
	NodeID        string
	NodeType      model.NodeType
	Title         string
	Relation      model.EdgeRelation // empty for the seed entry itself
	Depth         int
	TrailPosition int // hop distance from the seed; the seed is 0
	Importance    float64
	Timestamp     time.Time
	Rationale     string   // node body, when the node carries one (typically an ADR)
	Related       []string // reserved for cross-referencing entries; nil unless populated
}

// Trail is the ranked result of one decision-trail query.
type Trail struct {
	SeedID    string
	Steps     []Step
	Truncated bool
	Duration  time.Duration
}

// Engine answers decision-trail queries against a store.
type Engine struct {
	store    storage.Store
	resolver *git.FileResolver
	cfg      config.TraceConfig
}

func NewEngine(store storage.Store, resolver *git.FileResolver, cfg config.TraceConfig) *Engine {
	return &Engine{store: store, resolver: resolver, cfg: cfg}
}

// traceRule is one typed edge DecisionTrail is allowed to follow outward
// from a node of type fromType. commit--MODIFIES-->file is deliberately not
// one of these: walking it from the seed would fan out by whole-file
// siblings instead of narrowing toward the decisions that shaped the code.
type traceRule struct {
	fromType model.NodeType
	relation model.EdgeRelation
	dir      storage.EdgeDirection
}

var traceRules = []traceRule{
	{model.NodeCommit, model.RelMerges, storage.DirOut},  // commit --MERGES--> pr
	{model.NodePR, model.RelMentions, storage.DirOut},    // pr --MENTIONS--> issue
	{model.NodeIssue, model.RelDecides, storage.DirIn},   // adr --DECIDES--> issue, reversed
}

// typeWeight prefers adr > issue > pr > commit, per the ranking rule.
func typeWeight(t model.NodeType) float64 {
	switch t {
	case model.NodeADR:
		return 4.0
	case model.NodeIssue:
		return 3.0
	case model.NodePR:
		return 2.0
	case model.NodeCommit:
		return 1.0
	default:
		return 1.0
	}
}

const recencyHalfLifeDays = 30.0

// recencyDecay halves an entry's weight every recencyHalfLifeDays of age.
func recencyDecay(ts, now time.Time) float64 {
	if ts.IsZero() {
		return 1.0
	}
	ageDays := now.Sub(ts).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	return math.Pow(0.5, ageDays/recencyHalfLifeDays)
}

const depthPenaltyFactor = 0.85

func depthPenalty(hop int) float64 {
	return math.Pow(depthPenaltyFactor, float64(hop))
}

func importance(t model.NodeType, ts, now time.Time, hop int) float64 {
	return typeWeight(t) * recencyDecay(ts, now) * depthPenalty(hop)
}

// explorationCap bounds how many entries DecisionTrail will discover before
// ranking and truncating to MaxResults, independent of MaxResults so a low
// MaxResults doesn't cut the BFS off before it reaches the
// highest-importance node.
const explorationCap = 500

// DecisionTrail walks the typed commit/PR/issue/ADR chain from seedID,
// returning the most important entries first (the seed itself is always
// included, with trail position zero). It returns a partial, Truncated trail if cfg.LatencyBudget
// elapses first rather than blocking the caller indefinitely.
func (e *Engine) DecisionTrail(ctx context.Context, seedID string) (*Trail, error) {
	start := time.Now()
	budget := e.cfg.LatencyBudget
	if budget <= 0 {
		budget = 200 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	maxDepth := e.cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 6
	}
	maxResults := e.cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 50
	}

	seedNode, err := e.store.GetNode(ctx, seedID)
	if err != nil {
		return nil, err
	}

	type frontier struct {
		id    string
		typ   model.NodeType
		depth int
	}

	visited := map[string]bool{seedID: true}
	queue := []frontier{{id: seedID, typ: seedNode.Type, depth: 0}}
	steps := []Step{{
		NodeID: seedID, NodeType: seedNode.Type, Title: seedNode.Title,
		Depth: 0, TrailPosition: 0,
		Importance: importance(seedNode.Type, seedNode.ValidFrom, start, 0),
		Timestamp:  seedNode.ValidFrom,
		Rationale:  seedNode.Body,
	}}
	truncated := false

	for len(queue) > 0 && len(steps) < explorationCap {
		select {
		case <-ctx.Done():
			truncated = true
		default:
		}
		if truncated {
			break
		}

		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		for _, rule := range traceRules {
			if rule.fromType != cur.typ {
				continue
			}
			edges, err := e.store.EdgesByNode(ctx, cur.id, rule.dir, []model.EdgeRelation{rule.relation})
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if len(steps) >= explorationCap {
					break
				}
				neighbor := edge.DstID
				if rule.dir == storage.DirIn {
					neighbor = edge.SrcID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				node, err := e.store.GetNode(ctx, neighbor)
				if err != nil {
					continue // neighbor is a dangling reference; skip rather than fail the whole trail
				}

				depth := cur.depth + 1
				steps = append(steps, Step{
					NodeID: neighbor, NodeType: node.Type, Title: node.Title,
					Relation: edge.Relation, Depth: depth, TrailPosition: depth,
					Importance: importance(node.Type, node.ValidFrom, start, depth),
					Timestamp:  node.ValidFrom,
					Rationale:  node.Body,
				})
				queue = append(queue, frontier{id: neighbor, typ: node.Type, depth: depth})
			}
		}
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Importance != steps[j].Importance {
			return steps[i].Importance > steps[j].Importance
		}
		return steps[i].Timestamp.After(steps[j].Timestamp)
	})
	if len(steps) > maxResults {
		steps = steps[:maxResults]
	}

	return &Trail{SeedID: seedID, Steps: steps, Truncated: truncated, Duration: time.Since(start)}, nil
}

// TraceLine resolves a file:line to the commit that last touched it via git
// blame, then runs a decision trail seeded at that commit.
func (e *Engine) TraceLine(ctx context.Context, repoPath, path string, line int) (*Trail, error) {
	sha, err := git.BlameLine(ctx, repoPath, path, line)
	if err != nil {
		return nil, err
	}
	return e.DecisionTrail(ctx, model.NaturalKey(model.NodeCommit, sha))
}
