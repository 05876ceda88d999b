// Package impact implements the blast-radius engine: a typed multi-hop
// walk over structural dependency edges that classifies everything it
// reaches as direct, indirect, or (via historical co-change frequency)
// merely potential impact, scoring each hit with geometric distance decay.
package impact

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/repokg/repokg/internal/config"
	"github.com/repokg/repokg/internal/model"
	"github.com/repokg/repokg/internal/storage"
)

// Classification is how confidently a node is implicated by a change to
// the seed.
type Classification string

const (
	Direct    Classification = "direct"    // one structural hop away
	Indirect  Classification = "indirect"  // more than one structural hop away
	Potential Classification = "potential" // historically co-changed with the seed, no structural edge
)

// Impacted is one node in a blast radius, with its confidence score and the
// path of node ids (starting with the seed) that reached it.
type Impacted struct {
	NodeID         string
	NodeType       model.NodeType
	Title          string
	Classification Classification
	Score          float64
	Depth          int
	Path           []string // [seed, ..., NodeID]
}

// Result is the ranked blast radius for one seed.
type Result struct {
	SeedID   string
	Impacted []Impacted
	Duration time.Duration
}

// Engine answers blast-radius queries against a store.
type Engine struct {
	store storage.Store
	cfg   config.ImpactConfig
}

func NewEngine(store storage.Store, cfg config.ImpactConfig) *Engine {
	return &Engine{store: store, cfg: cfg}
}

// includes reports whether types is empty (meaning "no filter, everything
// passes") or contains c.
func includes(types []Classification, c Classification) bool {
	if len(types) == 0 {
		return true
	}
	for _, t := range types {
		if t == c {
			return true
		}
	}
	return false
}

// BlastRadius walks model.DependencyRelations both outward from seedID
// (what the seed depends on) and via reverse edges (what depends on the
// seed) up to maxDepth hops, scoring each hit with geometric decay
// (decayFactor^(depth-1)), then adds nodes that historically co-changed
// with the seed above cfg.CoChangeMinFreq frequency as Potential impact.
//
// maxDepth < 0 falls back to cfg.MaxDepth (defaulting to 4); maxDepth == 0
// is an explicit request for no traversal and returns an empty result.
// impactTypes restricts which classifications are computed; a nil or empty
// slice means all of direct, indirect, and potential.
func (e *Engine) BlastRadius(ctx context.Context, seedID string, maxDepth int, impactTypes []Classification) (*Result, error) {
	start := time.Now()

	if maxDepth < 0 {
		maxDepth = e.cfg.MaxDepth
		if maxDepth <= 0 {
			maxDepth = 4
		}
	}
	if maxDepth == 0 {
		return &Result{SeedID: seedID, Duration: time.Since(start)}, nil
	}

	if _, err := e.store.GetNode(ctx, seedID); err != nil {
		return nil, err
	}

	decay := e.cfg.DecayFactor
	if decay <= 0 {
		decay = 0.5
	}

	type frontier struct {
		id    string
		depth int
		path  []string
	}

	visited := map[string]bool{seedID: true}
	queue := []frontier{{id: seedID, depth: 0, path: []string{seedID}}}
	var impacted []Impacted

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		edges, err := e.store.EdgesByNode(ctx, cur.id, storage.DirBoth, model.DependencyRelations)
		if err != nil {
			return nil, err
		}

		for _, edge := range edges {
			neighbor := edge.DstID
			if neighbor == cur.id {
				neighbor = edge.SrcID
			}
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true

			node, err := e.store.GetNode(ctx, neighbor)
			if err != nil {
				continue
			}

			depth := cur.depth + 1
			classification := Indirect
			if depth == 1 {
				classification = Direct
			}
			path := append(append([]string{}, cur.path...), neighbor)

			if includes(impactTypes, classification) {
				impacted = append(impacted, Impacted{
					NodeID: neighbor, NodeType: node.Type, Title: node.Title,
					Classification: classification, Score: math.Pow(decay, float64(depth-1)),
					Depth: depth, Path: path,
				})
			}
			queue = append(queue, frontier{id: neighbor, depth: depth, path: path})
		}
	}

	if includes(impactTypes, Potential) {
		potential, err := e.potentialImpact(ctx, seedID, visited)
		if err != nil {
			return nil, err
		}
		impacted = append(impacted, potential...)
	}

	sort.SliceStable(impacted, func(i, j int) bool {
		if impacted[i].Score != impacted[j].Score {
			return impacted[i].Score > impacted[j].Score
		}
		if impacted[i].Depth != impacted[j].Depth {
			return impacted[i].Depth < impacted[j].Depth
		}
		return impacted[i].NodeID < impacted[j].NodeID
	})

	return &Result{SeedID: seedID, Impacted: impacted, Duration: time.Since(start)}, nil
}

// potentialImpact finds files that historically changed alongside seedID in
// the same commit, above the configured minimum frequency, adapting the
// pair-counting approach of co-change analysis: frequency is the fraction
// of commits touching seedID that also touched the candidate file.
func (e *Engine) potentialImpact(ctx context.Context, seedID string, exclude map[string]bool) ([]Impacted, error) {
	minFreq := e.cfg.CoChangeMinFreq
	if minFreq <= 0 {
		minFreq = 0.3
	}

	modifyingCommits, err := e.store.EdgesByNode(ctx, seedID, storage.DirIn, []model.EdgeRelation{model.RelModifies})
	if err != nil {
		return nil, err
	}
	if len(modifyingCommits) == 0 {
		return nil, nil
	}

	coChangeCounts := make(map[string]int)
	for _, commitEdge := range modifyingCommits {
		commitID := commitEdge.SrcID
		filesChanged, err := e.store.EdgesByNode(ctx, commitID, storage.DirOut, []model.EdgeRelation{model.RelModifies})
		if err != nil {
			return nil, err
		}
		for _, fe := range filesChanged {
			if fe.DstID == seedID {
				continue
			}
			coChangeCounts[fe.DstID]++
		}
	}

	totalCommits := len(modifyingCommits)
	var out []Impacted
	for fileID, count := range coChangeCounts {
		if exclude[fileID] {
			continue
		}
		freq := float64(count) / float64(totalCommits)
		if freq < minFreq {
			continue
		}
		node, err := e.store.GetNode(ctx, fileID)
		if err != nil {
			continue
		}
		out = append(out, Impacted{
			NodeID: fileID, NodeType: node.Type, Title: node.Title,
			Classification: Potential, Score: freq, Path: []string{seedID, fileID},
		})
	}
	return out, nil
}
