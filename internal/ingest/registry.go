// Package ingest defines the Ingestor plugin contract and the registry the
// Build Orchestrator drives: each ingestor extracts one slice of the graph
// (commit history, remote issues/PRs, decision records) independently and
// reports its own watermark, so one plugin's failure never blocks another's.
package ingest

import (
	"context"

	"github.com/repokg/repokg/internal/model"
)

// Ingestor extracts nodes and edges from one source of truth, scoped to
// everything new since lastWatermark. An empty lastWatermark means "ingest
// from scratch". The returned watermark is opaque to the orchestrator and
// is handed back unchanged on the next run.
type Ingestor interface {
	Name() string
	NodeTypes() []model.NodeType
	EdgeTypes() []model.EdgeRelation
	Ingest(ctx context.Context, repoPath, lastWatermark string) (nodes []model.Node, edges []model.Edge, watermark string, err error)
}

// Registry holds the set of ingestors a build runs, in registration order.
type Registry struct {
	ingestors []Ingestor
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) Register(i Ingestor) {
	r.ingestors = append(r.ingestors, i)
}

func (r *Registry) All() []Ingestor {
	out := make([]Ingestor, len(r.ingestors))
	copy(out, r.ingestors)
	return out
}
