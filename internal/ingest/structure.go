package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/repokg/repokg/internal/git"
	"github.com/repokg/repokg/internal/model"
)

var excludedDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true, "venv": true,
	"__pycache__": true, ".next": true, ".nuxt": true, "dist": true,
	"build": true, "out": true, "target": true, ".cache": true,
	"coverage": true, ".pytest_cache": true, ".tox": true, ".venv": true,
	"__mocks__": true, ".idea": true, ".vscode": true,
}

// StructureIngestor derives module nodes from a repository's top-level
// source directories and links each source file to its module with a
// PART_OF edge, giving the impact engine a coarser unit than individual
// files to roll up blast radius onto.
type StructureIngestor struct {
	repoID string
}

func NewStructureIngestor(repoID string) *StructureIngestor {
	return &StructureIngestor{repoID: repoID}
}

func (s *StructureIngestor) Name() string { return "structure" }

func (s *StructureIngestor) NodeTypes() []model.NodeType { return []model.NodeType{model.NodeModule} }

func (s *StructureIngestor) EdgeTypes() []model.EdgeRelation {
	return []model.EdgeRelation{model.RelPartOf}
}

// Ingest has no incremental state of its own — it recomputes the full
// module layout every run, since directory structure is cheap to rescan and
// the store's close-and-reinsert upserts make repeat runs idempotent.
func (s *StructureIngestor) Ingest(ctx context.Context, repoPath, lastWatermark string) ([]model.Node, []model.Edge, string, error) {
	var nodes []model.Node
	var edges []model.Edge
	seenModules := make(map[string]bool)

	err := filepath.WalkDir(repoPath, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if excludedDirs[entry.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if git.DetectLanguage(path) == "unknown" {
			return nil
		}

		rel, err := filepath.Rel(repoPath, path)
		if err != nil {
			return nil
		}
		dir := filepath.Dir(rel)
		if dir == "." {
			return nil
		}
		module := strings.SplitN(dir, string(filepath.Separator), 2)[0]

		moduleID := model.NaturalKey(model.NodeModule, module)
		if !seenModules[moduleID] {
			seenModules[moduleID] = true
			nodes = append(nodes, model.Node{
				ID: moduleID, RepoID: s.repoID, Type: model.NodeModule, Title: module,
			})
		}

		fileID := model.NaturalKey(model.NodeFile, rel)
		edges = append(edges, model.Edge{SrcID: fileID, DstID: moduleID, Relation: model.RelPartOf})
		return nil
	})
	if err != nil {
		return nil, nil, "", kgerrors.Ingestor(err, "structure")
	}

	return nodes, edges, lastWatermark, nil
}
