// Package query implements the Query Facade: the single entry point every
// caller (CLI, future editor/agent integrations) goes through to read or
// write the graph, fronted by an in-process cache keyed on the store's
// current watermark so a build or refresh transparently invalidates every
// answer computed before it.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/repokg/repokg/internal/cache"
	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/repokg/repokg/internal/export"
	"github.com/repokg/repokg/internal/git"
	"github.com/repokg/repokg/internal/impact"
	"github.com/repokg/repokg/internal/model"
	"github.com/repokg/repokg/internal/storage"
	"github.com/repokg/repokg/internal/trace"
)

// Facade is the single read/write surface onto the graph.
type Facade struct {
	store    storage.Store
	trace    *trace.Engine
	impact   *impact.Engine
	exporter *export.Exporter
	cache    *cache.Manager
	repoID   string
}

func NewFacade(store storage.Store, traceEngine *trace.Engine, impactEngine *impact.Engine, cacheMgr *cache.Manager, repoID string) *Facade {
	return &Facade{
		store: store, trace: traceEngine, impact: impactEngine,
		exporter: export.NewExporter(store, repoID),
		cache:    cacheMgr, repoID: repoID,
	}
}

func (f *Facade) watermark(ctx context.Context) (string, error) {
	stats, err := f.store.Stats(ctx)
	if err != nil {
		return "", err
	}
	keys := make([]string, 0, len(stats.Watermarks))
	for k := range stats.Watermarks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(stats.Watermarks[k])
		sb.WriteByte(';')
	}
	return sb.String(), nil
}

// Query runs a full-text search over node title/body, returning matching
// nodes ranked by relevance.
func (f *Facade) Query(ctx context.Context, text string, limit int) ([]model.Node, error) {
	ids, err := f.store.SearchFTS(ctx, f.repoID, text, limit)
	if err != nil {
		return nil, err
	}
	nodes := make([]model.Node, 0, len(ids))
	for _, id := range ids {
		n, err := f.store.GetNode(ctx, id)
		if err != nil {
			continue
		}
		nodes = append(nodes, *n)
	}
	return nodes, nil
}

// DecisionTrail answers "why is this code the way it is" for a seed node,
// cached against the store's current watermark.
func (f *Facade) DecisionTrail(ctx context.Context, seedID string) (*trace.Trail, error) {
	wm, err := f.watermark(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.Key("decision_trail", seedID, wm)
	if cached, ok := f.cache.Get(key); ok {
		return cached.(*trace.Trail), nil
	}

	trail, err := f.trace.DecisionTrail(ctx, seedID)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, trail)
	return trail, nil
}

// TraceLine resolves path:line to its last-touching commit via git blame
// and runs a decision trail from there, cached the same way DecisionTrail
// is (the cache key is the resolved commit id, not path:line, so a rename
// that doesn't change blame's answer still hits the cache). git blame itself
// runs on every call.
func (f *Facade) TraceLine(ctx context.Context, repoPath, path string, line int) (*trace.Trail, error) {
	sha, err := git.BlameLine(ctx, repoPath, path, line)
	if err != nil {
		return nil, err
	}
	return f.DecisionTrail(ctx, model.NaturalKey(model.NodeCommit, sha))
}

// Related returns current edges touching a node in either direction,
// optionally filtered to a set of relations.
func (f *Facade) Related(ctx context.Context, nodeID string, relations []model.EdgeRelation) ([]model.Edge, error) {
	return f.store.EdgesByNode(ctx, nodeID, storage.DirBoth, relations)
}

// Entity returns the current row for a node id.
func (f *Facade) Entity(ctx context.Context, nodeID string) (*model.Node, error) {
	return f.store.GetNode(ctx, nodeID)
}

// Impact answers a blast-radius query for a seed node, cached against the
// store's current watermark. maxDepth < 0 uses the engine's configured
// default; impactTypes nil/empty means all of direct, indirect, potential.
func (f *Facade) Impact(ctx context.Context, seedID string, maxDepth int, impactTypes []impact.Classification) (*impact.Result, error) {
	wm, err := f.watermark(ctx)
	if err != nil {
		return nil, err
	}
	key := cache.Key("impact", fmt.Sprintf("%s:%d:%v", seedID, maxDepth, impactTypes), wm)
	if cached, ok := f.cache.Get(key); ok {
		return cached.(*impact.Result), nil
	}

	result, err := f.impact.BlastRadius(ctx, seedID, maxDepth, impactTypes)
	if err != nil {
		return nil, err
	}
	f.cache.Set(key, result)
	return result, nil
}

// History returns the node row whose valid-time interval contained asOf.
func (f *Facade) History(ctx context.Context, nodeID string, asOf time.Time) (*model.Node, error) {
	return f.store.GetNodeAsOf(ctx, nodeID, asOf)
}

// AddNodesAndEdges is the direct-write path for callers injecting ad hoc
// facts (an editor plugin's reasoning_node, a manually recorded concept)
// outside the ingestor pipeline. It flushes the cache since an arbitrary
// write may invalidate answers the watermark-based key can't see coming
// (AddNodesAndEdges does not advance any ingestor's watermark).
func (f *Facade) AddNodesAndEdges(ctx context.Context, nodes []model.Node, edges []model.Edge) error {
	for _, n := range nodes {
		if !model.ValidNodeTypes[n.Type] {
			return kgerrors.InvalidInputf("unknown node type %q", n.Type)
		}
	}
	for _, e := range edges {
		if !model.ValidEdgeRelations[e.Relation] {
			return kgerrors.InvalidInputf("unknown edge relation %q", e.Relation)
		}
	}

	if err := f.store.UpsertNodes(ctx, nodes); err != nil {
		return err
	}
	if err := f.store.UpsertEdges(ctx, edges); err != nil {
		return err
	}
	f.cache.Flush()
	return nil
}

// LoadExportSigningKey attaches a signing key for subsequent Export calls
// with Options.Sign set.
func (f *Facade) LoadExportSigningKey(path string) error {
	return f.exporter.LoadSigningKey(path)
}

// Export writes a deterministic sub-graph snapshot to outPath. Unlike
// DecisionTrail/Impact, export results are not cached: each call reflects
// the store's state at call time and is itself meant to be a durable
// artifact, not a recomputation to dedupe.
func (f *Facade) Export(ctx context.Context, outPath string, opts export.Options) (*export.Result, error) {
	return f.exporter.Export(ctx, outPath, opts)
}

// MarshalNode is a helper for callers (CLI output, export) that want a
// stable JSON rendering of a node without exposing PropsRaw.
func MarshalNode(n model.Node) ([]byte, error) {
	return json.Marshal(n)
}
