// Package export implements deterministic sub-graph snapshots: either the
// neighborhood of a PR/commit out to a hop bound, or every current node/edge
// matching a type and time-window filter. Output is a JSON document with
// entities sorted by id and relationships by (src, dst, relation),
// optionally zstd-compressed and ed25519-signed. The document's generated_at
// field records the time of each export, so two exports of the same graph
// are not byte-identical.
package export

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/repokg/repokg/internal/model"
	"github.com/repokg/repokg/internal/storage"
)

const schemaVersion = 1

// Options controls one export call. MaxHops only applies when PRSHA is set.
type Options struct {
	PRSHA       string
	EntityTypes []model.NodeType
	From, To    *time.Time
	Compress    bool
	Sign        bool
	MaxHops     int
}

// ReasoningPath is a pre-computed traversal included alongside the raw
// entities/relationships so a downstream reader doesn't have to re-walk the
// graph for the common "why is the PR connected to this file" question.
type ReasoningPath struct {
	SeedID  string   `json:"seed_id"`
	NodeIDs []string `json:"node_ids"`
}

// Document is the export wire format.
type Document struct {
	SchemaVersion  int             `json:"schema_version"`
	GeneratedAt    time.Time       `json:"generated_at"`
	Entities       []model.Node    `json:"entities"`
	Relationships  []model.Edge    `json:"relationships"`
	ReasoningPaths []ReasoningPath `json:"reasoning_paths,omitempty"`
}

// Result reports where the export landed and whether the hop-bounded walk
// hit its deadline before finishing.
type Result struct {
	Path      string
	Document  *Document
	Signature []byte
	Truncated bool
}

// Exporter builds and writes snapshots for one store.
type Exporter struct {
	store      storage.Store
	repoID     string
	signingKey ed25519.PrivateKey
}

// NewExporter constructs an Exporter with no signing key; call
// LoadSigningKey before any export that requests a signature.
func NewExporter(store storage.Store, repoID string) *Exporter {
	return &Exporter{store: store, repoID: repoID}
}

// LoadSigningKey reads a raw 64-byte ed25519 private key from path and
// attaches it to the exporter for subsequent signed exports.
func (x *Exporter) LoadSigningKey(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return kgerrors.Internalf("read export signing key: %v", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return kgerrors.InvalidInputf("signing key at %q is %d bytes, want %d", path, len(raw), ed25519.PrivateKeySize)
	}
	x.signingKey = ed25519.PrivateKey(raw)
	return nil
}

// Export builds the snapshot document for opts and writes it to outPath, or
// only to outPath+".zst" when opts.Compress is set. A requested signature
// is written beside the written file with a ".sig" suffix.
func (x *Exporter) Export(ctx context.Context, outPath string, opts Options) (*Result, error) {
	doc, truncated, err := x.buildDocument(ctx, opts)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, kgerrors.Internalf("marshal export document: %v", err)
	}

	payload := raw
	writePath := outPath
	if opts.Compress {
		var buf bytes.Buffer
		enc, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, kgerrors.Internalf("create zstd encoder: %v", err)
		}
		if _, err := enc.Write(raw); err != nil {
			enc.Close()
			return nil, kgerrors.Internalf("compress export document: %v", err)
		}
		if err := enc.Close(); err != nil {
			return nil, kgerrors.Internalf("flush zstd encoder: %v", err)
		}
		payload = buf.Bytes()
		writePath = outPath + ".zst"
	}

	if err := os.WriteFile(writePath, payload, 0644); err != nil {
		return nil, kgerrors.Internalf("write export file: %v", err)
	}

	result := &Result{Path: writePath, Document: doc, Truncated: truncated}

	if opts.Sign {
		if x.signingKey == nil {
			return nil, kgerrors.InvalidInputf("export signing requested but no signing key is loaded")
		}
		sig := ed25519.Sign(x.signingKey, raw)
		if err := os.WriteFile(writePath+".sig", sig, 0644); err != nil {
			return nil, kgerrors.Internalf("write export signature: %v", err)
		}
		result.Signature = sig
	}

	return result, nil
}

func (x *Exporter) buildDocument(ctx context.Context, opts Options) (*Document, bool, error) {
	var (
		entities      []model.Node
		relationships []model.Edge
		paths         []ReasoningPath
		truncated     bool
		err           error
	)

	if opts.PRSHA != "" {
		entities, relationships, truncated, err = x.prNeighborhood(ctx, opts.PRSHA, opts.MaxHops)
		if err != nil {
			return nil, false, err
		}
		paths = append(paths, ReasoningPath{SeedID: opts.PRSHA, NodeIDs: nodeIDs(entities)})
	} else {
		entities, err = x.store.QueryNodes(ctx, x.repoID, opts.EntityTypes, opts.From, opts.To)
		if err != nil {
			return nil, false, err
		}
		relationships, err = x.edgesWithinSet(ctx, entities)
		if err != nil {
			return nil, false, err
		}
	}

	sort.Slice(entities, func(i, j int) bool { return entities[i].ID < entities[j].ID })
	sort.Slice(relationships, func(i, j int) bool {
		if relationships[i].SrcID != relationships[j].SrcID {
			return relationships[i].SrcID < relationships[j].SrcID
		}
		if relationships[i].DstID != relationships[j].DstID {
			return relationships[i].DstID < relationships[j].DstID
		}
		return relationships[i].Relation < relationships[j].Relation
	})

	return &Document{
		SchemaVersion:  schemaVersion,
		GeneratedAt:    time.Now().UTC(),
		Entities:       entities,
		Relationships:  relationships,
		ReasoningPaths: paths,
	}, truncated, nil
}

// prNeighborhood walks outward from the PR node (any typed edge, so
// MERGES->commit and MODIFIES->file are both followed) up to maxHops.
func (x *Exporter) prNeighborhood(ctx context.Context, prSHA string, maxHops int) ([]model.Node, []model.Edge, bool, error) {
	if maxHops <= 0 {
		maxHops = 3
	}
	seedID := prSHA
	if _, _, err := model.ParseNodeID(prSHA); err != nil {
		seedID = model.NaturalKey(model.NodePR, prSHA)
	}

	seed, err := x.store.GetNode(ctx, seedID)
	if err != nil {
		return nil, nil, false, err
	}

	type frontier struct {
		id    string
		depth int
	}

	visitedNodes := map[string]model.Node{seedID: *seed}
	visitedEdges := make(map[string]model.Edge)
	queue := []frontier{{id: seedID, depth: 0}}

	for len(queue) > 0 {
		select {
		case <-ctx.Done():
			return flattenNodes(visitedNodes), flattenEdges(visitedEdges), true, nil
		default:
		}

		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxHops {
			continue
		}

		edges, err := x.store.EdgesByNode(ctx, cur.id, storage.DirOut, nil)
		if err != nil {
			return nil, nil, false, err
		}
		for _, e := range edges {
			visitedEdges[model.EdgeNaturalKey(e.SrcID, e.DstID, e.Relation)] = e
			if _, ok := visitedNodes[e.DstID]; ok {
				continue
			}
			node, err := x.store.GetNode(ctx, e.DstID)
			if err != nil {
				continue
			}
			visitedNodes[e.DstID] = *node
			queue = append(queue, frontier{id: e.DstID, depth: cur.depth + 1})
		}
	}

	return flattenNodes(visitedNodes), flattenEdges(visitedEdges), false, nil
}

// edgesWithinSet returns current edges whose endpoints are both in nodes,
// so a type/window-filtered export never emits a dangling edge reference.
func (x *Exporter) edgesWithinSet(ctx context.Context, nodes []model.Node) ([]model.Edge, error) {
	inSet := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		inSet[n.ID] = true
	}

	seen := make(map[string]model.Edge)
	for _, n := range nodes {
		edges, err := x.store.EdgesByNode(ctx, n.ID, storage.DirOut, nil)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			if !inSet[e.DstID] {
				continue
			}
			seen[model.EdgeNaturalKey(e.SrcID, e.DstID, e.Relation)] = e
		}
	}
	return flattenEdges(seen), nil
}

func flattenNodes(m map[string]model.Node) []model.Node {
	out := make([]model.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	return out
}

func flattenEdges(m map[string]model.Edge) []model.Edge {
	out := make([]model.Edge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

func nodeIDs(nodes []model.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	sort.Strings(out)
	return out
}
