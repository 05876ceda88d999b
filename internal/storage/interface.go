// Package storage implements the embedded, single-file bi-temporal graph
// store: nodes, edges, per-ingestor watermarks, full-text search, and the
// advisory lock guarding cross-process write contention.
package storage

import (
	"context"
	"time"

	"github.com/repokg/repokg/internal/model"
)

// EdgeDirection selects which endpoint of an edge to filter on.
type EdgeDirection int

const (
	DirOut EdgeDirection = iota // edges where the queried id is the source
	DirIn                       // edges where the queried id is the destination
	DirBoth
)

// Stats summarizes the current store contents, returned by the Query
// Facade's introspection operations and used by doctor-style tooling.
type Stats struct {
	NodeCount      int64
	EdgeCount      int64
	SchemaVersion  int
	Watermarks     map[string]string
	SizeBytes      int64
}

// Store is the embedded store's contract. All write paths observe
// close-and-reinsert bi-temporal semantics: updating a fact closes the
// current row (sets tx_to) and inserts a new current row, rather than
// mutating in place.
type Store interface {
	// UpsertNodes writes nodes transactionally, closing any existing
	// current row per id before inserting the new one when content differs.
	UpsertNodes(ctx context.Context, nodes []model.Node) error
	// UpsertEdges writes edges transactionally with the same close-and-
	// reinsert discipline, deduped on (src, dst, relation).
	UpsertEdges(ctx context.Context, edges []model.Edge) error

	// GetNode returns the current (TxTo == nil) row for id.
	GetNode(ctx context.Context, id string) (*model.Node, error)
	// GetNodeAsOf returns the row whose valid-time interval contained t,
	// for historical ("as of") queries.
	GetNodeAsOf(ctx context.Context, id string, t time.Time) (*model.Node, error)

	// EdgesByNode returns current edges touching id in the given direction,
	// optionally filtered to a set of relations (nil/empty means all).
	EdgesByNode(ctx context.Context, id string, dir EdgeDirection, relations []model.EdgeRelation) ([]model.Edge, error)

	// SearchFTS runs a full-text query over node title/body, returning
	// matching node ids ranked by relevance.
	SearchFTS(ctx context.Context, repoID, query string, limit int) ([]string, error)

	// QueryNodes returns current nodes for repoID, optionally filtered to a
	// set of types and/or a valid_from window. Used by export's
	// entity_types/time-window mode and by doctor-style introspection.
	QueryNodes(ctx context.Context, repoID string, types []model.NodeType, from, to *time.Time) ([]model.Node, error)

	// GetWatermark returns the last-processed watermark for an ingestor,
	// or "" if the ingestor has never completed a run.
	GetWatermark(ctx context.Context, repoID, ingestorName string) (string, error)
	// SetWatermark records an ingestor's new watermark; called inside the
	// same transaction as the nodes/edges it produced.
	SetWatermark(ctx context.Context, repoID, ingestorName, watermark string) error

	// Begin starts a store-level transaction used by the orchestrator to
	// commit one ingestor's (nodes, edges, watermark) atomically.
	Begin(ctx context.Context) (Tx, error)

	// TryAdvisoryLock attempts to acquire the cross-process write lock,
	// returning false (not an error) if another process holds it.
	TryAdvisoryLock(ctx context.Context) (bool, error)
	ReleaseAdvisoryLock(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Tx is a single store-level transaction.
type Tx interface {
	UpsertNodes(ctx context.Context, nodes []model.Node) error
	UpsertEdges(ctx context.Context, edges []model.Edge) error
	SetWatermark(ctx context.Context, repoID, ingestorName, watermark string) error
	Commit() error
	Rollback() error
}
