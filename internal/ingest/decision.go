package ingest

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"time"

	"context"

	"gopkg.in/yaml.v3"

	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/repokg/repokg/internal/model"
)

var adrDirs = []string{"docs/adr", "doc/adr", "docs/decisions", "adr", "architecture/decisions"}

type adrFrontMatter struct {
	Title     string   `yaml:"title"`
	Status    string   `yaml:"status"`
	Date      string   `yaml:"date"`
	Deciders  []string `yaml:"deciders"`
	Supersedes string  `yaml:"supersedes"`
}

// DecisionIngestor walks architecture-decision-record markdown files with
// YAML front matter, emitting one adr node per file and a FOLLOWS edge when
// a record declares it supersedes another.
type DecisionIngestor struct {
	repoID string
}

func NewDecisionIngestor(repoID string) *DecisionIngestor {
	return &DecisionIngestor{repoID: repoID}
}

func (d *DecisionIngestor) Name() string { return "decision" }

func (d *DecisionIngestor) NodeTypes() []model.NodeType { return []model.NodeType{model.NodeADR} }

func (d *DecisionIngestor) EdgeTypes() []model.EdgeRelation {
	return []model.EdgeRelation{model.RelFollows}
}

func (d *DecisionIngestor) Ingest(ctx context.Context, repoPath, lastWatermark string) ([]model.Node, []model.Edge, string, error) {
	var nodes []model.Node
	var edges []model.Edge
	var latest time.Time

	for _, dir := range adrDirs {
		root := filepath.Join(repoPath, dir)
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			continue
		}

		err = filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if entry.IsDir() || filepath.Ext(path) != ".md" {
				return nil
			}

			rel, _ := filepath.Rel(repoPath, path)
			raw, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			fm, body := parseFrontMatter(raw)

			fileInfo, statErr := entry.Info()
			if statErr == nil && fileInfo.ModTime().After(latest) {
				latest = fileInfo.ModTime()
			}

			title := fm.Title
			if title == "" {
				title = firstHeading(body)
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(path), ".md")
			}

			id := model.NaturalKey(model.NodeADR, rel)
			validFrom := time.Now()
			if fm.Date != "" {
				if t, err := time.Parse("2006-01-02", fm.Date); err == nil {
					validFrom = t
				}
			}

			nodes = append(nodes, model.Node{
				ID:     id,
				RepoID: d.repoID,
				Type:   model.NodeADR,
				Title:  title,
				Body:   body,
				Props: map[string]any{
					"status":   fm.Status,
					"deciders": fm.Deciders,
					"path":     rel,
				},
				ValidFrom: validFrom,
			})

			if fm.Supersedes != "" {
				edges = append(edges, model.Edge{
					SrcID: id, DstID: model.NaturalKey(model.NodeADR, fm.Supersedes), Relation: model.RelFollows,
				})
			}

			return nil
		})
		if err != nil {
			return nodes, edges, "", kgerrors.Ingestor(err, "decision")
		}
	}

	watermark := lastWatermark
	if !latest.IsZero() {
		watermark = latest.UTC().Format(time.RFC3339)
	}
	return nodes, edges, watermark, nil
}

func parseFrontMatter(raw []byte) (adrFrontMatter, string) {
	var fm adrFrontMatter
	content := string(raw)

	if !strings.HasPrefix(content, "---") {
		return fm, content
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Scan() // consume the opening "---"

	var fmLines []string
	rest := content
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			found = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !found {
		return fm, content
	}

	_ = yaml.Unmarshal([]byte(strings.Join(fmLines, "\n")), &fm)

	idx := strings.Index(content, "\n---")
	if idx == -1 {
		return fm, content
	}
	closing := strings.Index(content[idx+1:], "---")
	if closing == -1 {
		return fm, content
	}
	rest = content[idx+1+closing+3:]
	return fm, strings.TrimSpace(rest)
}

func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
	}
	return ""
}
