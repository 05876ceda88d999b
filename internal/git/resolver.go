package git

import (
	"context"
	"sync"
)

// NodeExister checks whether a file node is already known to the store,
// letting FileResolver distinguish "this path is new" from "this path is a
// rename target we haven't seen yet".
type NodeExister interface {
	NodeExists(ctx context.Context, id string) bool
}

// FileResolver bridges a file's current path to every historical path it
// has had, using a 2-level resolution strategy:
//
//	Level 1: exact match (path unchanged since it was last ingested)
//	Level 2: git log --follow (path was renamed/moved)
type FileResolver struct {
	repoPath string
	store    NodeExister
	history  *HistoryTracker
}

// FileMatch is one resolved historical path for a current path.
type FileMatch struct {
	HistoricalPath string
	Confidence     float64 // 1.0 = exact, 0.95 = git follow
	Method         string  // "exact", "git-follow"
}

func NewFileResolver(repoPath string, store NodeExister) *FileResolver {
	return &FileResolver{repoPath: repoPath, store: store, history: NewHistoryTracker(repoPath)}
}

// Resolve returns every path the store knows this file under, most
// confident first. The trace engine holds a FileResolver, but its blame
// step does not call Resolve: it blames the path exactly as given.
func (r *FileResolver) Resolve(ctx context.Context, currentPath string, nodeIDFor func(path string) string) ([]FileMatch, error) {
	var matches []FileMatch

	if r.store != nil && r.store.NodeExists(ctx, nodeIDFor(currentPath)) {
		matches = append(matches, FileMatch{HistoricalPath: currentPath, Confidence: 1.0, Method: "exact"})
	}

	historicalPaths, err := r.history.GetFileHistory(ctx, currentPath)
	if err != nil {
		return matches, nil
	}

	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		seen[m.HistoricalPath] = true
	}
	for _, p := range historicalPaths {
		if seen[p] {
			continue
		}
		if r.store == nil || r.store.NodeExists(ctx, nodeIDFor(p)) {
			matches = append(matches, FileMatch{HistoricalPath: p, Confidence: 0.95, Method: "git-follow"})
			seen[p] = true
		}
	}

	return matches, nil
}

// BatchResolve resolves multiple files concurrently.
func (r *FileResolver) BatchResolve(ctx context.Context, currentPaths []string, nodeIDFor func(path string) string) map[string][]FileMatch {
	results := make(map[string][]FileMatch)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, path := range currentPaths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			matches, err := r.Resolve(ctx, p, nodeIDFor)
			if err == nil {
				mu.Lock()
				results[p] = matches
				mu.Unlock()
			}
		}(path)
	}
	wg.Wait()
	return results
}

// ResolveToSinglePath returns the most confident historical path, falling
// back to currentPath itself with low confidence when nothing is known.
func (r *FileResolver) ResolveToSinglePath(ctx context.Context, currentPath string, nodeIDFor func(path string) string) (string, float64, error) {
	matches, err := r.Resolve(ctx, currentPath, nodeIDFor)
	if err != nil {
		return "", 0, err
	}
	if len(matches) == 0 {
		return currentPath, 0.3, nil
	}
	return matches[0].HistoricalPath, matches[0].Confidence, nil
}
