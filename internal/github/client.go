// Package github implements the remote ingestor's GitHub API access: a
// rate-limited client that fetches pull requests and issues and maps them
// onto graph nodes and edges.
package github

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/time/rate"

	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/repokg/repokg/internal/model"
)

// Client wraps the GitHub API client with rate limiting.
type Client struct {
	client      *github.Client
	rateLimiter *rate.Limiter
	owner, repo string
	repoID      string
}

// NewClient creates a GitHub client scoped to a single owner/repo, rate
// limited to ratePerSec requests/second.
func NewClient(token, owner, repo string, ratePerSec float64) *Client {
	c := github.NewClient(nil).WithAuthToken(token)
	return &Client{
		client:      c,
		rateLimiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		owner:       owner,
		repo:        repo,
		repoID:      fmt.Sprintf("%s/%s", owner, repo),
	}
}

var shaRefPattern = regexp.MustCompile(`\b[0-9a-f]{7,40}\b`)

// FetchPullRequests retrieves pull requests updated since the watermark
// timestamp (zero value means "all"), returning one pr node per PR plus a
// MERGES edge to its merge commit when merged, and REFERENCES
// edges to any commit SHAs mentioned in the body.
func (c *Client) FetchPullRequests(ctx context.Context, since time.Time) ([]model.Node, []model.Edge, error) {
	opts := &github.PullRequestListOptions{
		State:     "all",
		Sort:      "updated",
		Direction: "desc",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var nodes []model.Node
	var edges []model.Edge

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, kgerrors.RateLimited(err, "github pull request rate limiter")
		}

		prs, resp, err := c.client.PullRequests.List(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, nil, kgerrors.Ingestor(err, "github.pull_requests")
		}

		done := false
		for _, pr := range prs {
			updated := pr.GetUpdatedAt().Time
			if !since.IsZero() && updated.Before(since) {
				done = true
				break
			}

			id := model.NaturalKey(model.NodePR, fmt.Sprintf("%s#%d", c.repoID, pr.GetNumber()))
			n := model.Node{
				ID:     id,
				RepoID: c.repoID,
				Type:   model.NodePR,
				Title:  pr.GetTitle(),
				Body:   pr.GetBody(),
				Props: map[string]any{
					"number": pr.GetNumber(),
					"state":  pr.GetState(),
					"author": pr.GetUser().GetLogin(),
				},
				ValidFrom: pr.GetCreatedAt().Time,
			}
			nodes = append(nodes, n)

			if pr.MergedAt != nil {
				commitID := model.NaturalKey(model.NodeCommit, pr.GetMergeCommitSHA())
				edges = append(edges, model.Edge{
					SrcID: id, DstID: commitID, Relation: model.RelMerges,
					ValidFrom: pr.MergedAt.Time,
				})
			}
			edges = append(edges, referenceEdges(id, pr.GetBody())...)
		}

		if done || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nodes, edges, nil
}

// FetchIssues retrieves issues (pull requests excluded) updated since the
// watermark, returning one issue node per issue plus REFERENCES edges to any
// commit SHAs mentioned in the body.
func (c *Client) FetchIssues(ctx context.Context, since time.Time) ([]model.Node, []model.Edge, error) {
	opts := &github.IssueListByRepoOptions{
		State: "all",
		Since: since,
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var nodes []model.Node
	var edges []model.Edge

	for {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, nil, kgerrors.RateLimited(err, "github issue rate limiter")
		}

		issues, resp, err := c.client.Issues.ListByRepo(ctx, c.owner, c.repo, opts)
		if err != nil {
			return nil, nil, kgerrors.Ingestor(err, "github.issues")
		}

		for _, issue := range issues {
			if issue.IsPullRequest() {
				continue
			}

			id := model.NaturalKey(model.NodeIssue, fmt.Sprintf("%s#%d", c.repoID, issue.GetNumber()))
			labels := make([]string, 0, len(issue.Labels))
			for _, l := range issue.Labels {
				labels = append(labels, l.GetName())
			}

			n := model.Node{
				ID:     id,
				RepoID: c.repoID,
				Type:   model.NodeIssue,
				Title:  issue.GetTitle(),
				Body:   issue.GetBody(),
				Props: map[string]any{
					"number":      issue.GetNumber(),
					"state":       issue.GetState(),
					"author":      issue.GetUser().GetLogin(),
					"labels":      labels,
					"is_incident": isIncidentLabel(labels),
				},
				ValidFrom: issue.GetCreatedAt().Time,
			}
			nodes = append(nodes, n)
			edges = append(edges, referenceEdges(id, issue.GetBody())...)
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nodes, edges, nil
}

func referenceEdges(srcID, body string) []model.Edge {
	shas := shaRefPattern.FindAllString(body, -1)
	if len(shas) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(shas))
	edges := make([]model.Edge, 0, len(shas))
	for _, sha := range shas {
		if seen[sha] {
			continue
		}
		seen[sha] = true
		edges = append(edges, model.Edge{
			SrcID: srcID, DstID: model.NaturalKey(model.NodeCommit, sha), Relation: model.RelReferences,
		})
	}
	return edges
}

func isIncidentLabel(labels []string) bool {
	incident := map[string]bool{"incident": true, "bug": true, "outage": true, "production-issue": true, "hotfix": true}
	for _, l := range labels {
		if incident[l] {
			return true
		}
	}
	return false
}
