package github

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/repokg/repokg/internal/model"
)

// Extractor runs a Client's PR and issue fetches concurrently and merges
// their results into a single batch of nodes and edges.
type Extractor struct {
	client *Client
}

func NewExtractor(client *Client) *Extractor {
	return &Extractor{client: client}
}

// ExtractResult is the remote ingestor's raw yield for one run.
type ExtractResult struct {
	Nodes       []model.Node
	Edges       []model.Edge
	ExtractedAt time.Time
}

// Extract fetches pull requests and issues updated since the watermark.
func (e *Extractor) Extract(ctx context.Context, since time.Time) (*ExtractResult, error) {
	result := &ExtractResult{ExtractedAt: time.Now()}

	var prNodes, issueNodes []model.Node
	var prEdges, issueEdges []model.Edge

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		prNodes, prEdges, err = e.client.FetchPullRequests(ctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		issueNodes, issueEdges, err = e.client.FetchIssues(ctx, since)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Nodes = append(prNodes, issueNodes...)
	result.Edges = append(prEdges, issueEdges...)
	return result, nil
}
