// Package ingestion implements the Build Orchestrator: it runs every
// registered ingestor's extraction phase concurrently, then serializes their
// writes through the store one ingestor at a time so a single transaction
// never interleaves two plugins' nodes and edges.
package ingestion

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/repokg/repokg/internal/ingest"
	"github.com/repokg/repokg/internal/model"
	"github.com/repokg/repokg/internal/storage"
)

// Orchestrator drives one build/refresh cycle across every registered
// ingestor, isolating a single ingestor's failure from the rest.
type Orchestrator struct {
	store    storage.Store
	registry *ingest.Registry
	logger   *logrus.Logger
	repoID   string
	repoPath string
}

func NewOrchestrator(store storage.Store, registry *ingest.Registry, logger *logrus.Logger, repoID, repoPath string) *Orchestrator {
	return &Orchestrator{store: store, registry: registry, logger: logger, repoID: repoID, repoPath: repoPath}
}

// IngestorOutcome reports one ingestor's contribution to a build, or its
// failure — a non-nil Err never aborts the other ingestors' commits.
type IngestorOutcome struct {
	Name      string
	NodeCount int
	EdgeCount int
	Err       error
}

// BuildResult summarizes a full build/refresh cycle.
type BuildResult struct {
	RepoID   string
	Outcomes []IngestorOutcome
	Duration time.Duration
}

type extraction struct {
	ingestor  ingest.Ingestor
	nodes     []model.Node
	edges     []model.Edge
	watermark string
	err       error
}

// Build runs every registered ingestor against repoPath, advancing each
// one's watermark independently. It holds the store's advisory lock for the
// duration of the write phase to exclude a concurrent writer.
func (o *Orchestrator) Build(ctx context.Context) (*BuildResult, error) {
	start := time.Now()

	locked, err := o.store.TryAdvisoryLock(ctx)
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, kgerrors.StoreLocked(nil, "another process is writing to this store")
	}
	defer o.store.ReleaseAdvisoryLock(ctx)

	ingestors := o.registry.All()
	extractions := make([]extraction, len(ingestors))

	g, gctx := errgroup.WithContext(ctx)
	for i, ing := range ingestors {
		i, ing := i, ing
		g.Go(func() error {
			lastWatermark, err := o.store.GetWatermark(gctx, o.repoID, ing.Name())
			if err != nil {
				extractions[i] = extraction{ingestor: ing, err: err}
				return nil
			}
			nodes, edges, watermark, err := ing.Ingest(gctx, o.repoPath, lastWatermark)
			extractions[i] = extraction{ingestor: ing, nodes: nodes, edges: edges, watermark: watermark, err: err}
			return nil
		})
	}
	// g.Wait's error is always nil here: every goroutine above swallows its
	// own error into extractions[i] so one ingestor's failure never cancels
	// the others' extraction.
	_ = g.Wait()

	outcomes := make([]IngestorOutcome, 0, len(extractions))
	for _, ex := range extractions {
		outcome := IngestorOutcome{Name: ex.ingestor.Name()}

		if ex.err != nil {
			outcome.Err = kgerrors.Ingestor(ex.err, ex.ingestor.Name())
			o.logger.WithError(ex.err).WithField("ingestor", ex.ingestor.Name()).Warn("ingestor extraction failed")
			outcomes = append(outcomes, outcome)
			continue
		}

		if err := o.commit(ctx, ex); err != nil {
			outcome.Err = err
			o.logger.WithError(err).WithField("ingestor", ex.ingestor.Name()).Warn("ingestor commit failed")
			outcomes = append(outcomes, outcome)
			continue
		}

		outcome.NodeCount = len(ex.nodes)
		outcome.EdgeCount = len(ex.edges)
		outcomes = append(outcomes, outcome)
	}

	return &BuildResult{RepoID: o.repoID, Outcomes: outcomes, Duration: time.Since(start)}, nil
}

func (o *Orchestrator) commit(ctx context.Context, ex extraction) error {
	tx, err := o.store.Begin(ctx)
	if err != nil {
		return err
	}

	if err := tx.UpsertNodes(ctx, ex.nodes); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.UpsertEdges(ctx, ex.edges); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.SetWatermark(ctx, o.repoID, ex.ingestor.Name(), ex.watermark); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
