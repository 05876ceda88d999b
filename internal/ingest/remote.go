package ingest

import (
	"context"
	"time"

	"github.com/repokg/repokg/internal/github"
	"github.com/repokg/repokg/internal/model"
)

// RemoteIngestor pulls pull requests and issues from GitHub, watermarked on
// RFC3339 "last extracted at" timestamps rather than a content hash, since
// the GitHub API's own "since" filters are time-based.
type RemoteIngestor struct {
	extractor *github.Extractor
}

func NewRemoteIngestor(extractor *github.Extractor) *RemoteIngestor {
	return &RemoteIngestor{extractor: extractor}
}

func (r *RemoteIngestor) Name() string { return "remote" }

func (r *RemoteIngestor) NodeTypes() []model.NodeType {
	return []model.NodeType{model.NodePR, model.NodeIssue}
}

func (r *RemoteIngestor) EdgeTypes() []model.EdgeRelation {
	return []model.EdgeRelation{model.RelMerges, model.RelReferences}
}

func (r *RemoteIngestor) Ingest(ctx context.Context, repoPath, lastWatermark string) ([]model.Node, []model.Edge, string, error) {
	var since time.Time
	if lastWatermark != "" {
		since, _ = time.Parse(time.RFC3339, lastWatermark)
	}

	result, err := r.extractor.Extract(ctx, since)
	if err != nil {
		return nil, nil, "", err
	}

	return result.Nodes, result.Edges, result.ExtractedAt.UTC().Format(time.RFC3339), nil
}
