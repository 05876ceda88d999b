package ingest

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	kgerrors "github.com/repokg/repokg/internal/errors"
	"github.com/repokg/repokg/internal/git"
	"github.com/repokg/repokg/internal/model"
)

const (
	recordSep = "\x01"
	headerSep = "\x1f"
	bodySep   = "\x02"
)

// VCSIngestor walks git commit history and emits commit nodes, file nodes,
// MODIFIES edges from each commit to the files it touched, and PRECEDES
// edges linking a commit to its direct parent.
type VCSIngestor struct {
	repoID string
}

func NewVCSIngestor(repoID string) *VCSIngestor {
	return &VCSIngestor{repoID: repoID}
}

func (v *VCSIngestor) Name() string { return "vcs" }

func (v *VCSIngestor) NodeTypes() []model.NodeType {
	return []model.NodeType{model.NodeCommit, model.NodeFile}
}

func (v *VCSIngestor) EdgeTypes() []model.EdgeRelation {
	return []model.EdgeRelation{model.RelModifies, model.RelPrecedes}
}

// Ingest walks commits reachable from HEAD, excluding those already covered
// by lastWatermark (a commit SHA), and returns HEAD's SHA as the new
// watermark.
func (v *VCSIngestor) Ingest(ctx context.Context, repoPath, lastWatermark string) ([]model.Node, []model.Edge, string, error) {
	revRange := "HEAD"
	if lastWatermark != "" {
		revRange = fmt.Sprintf("%s..HEAD", lastWatermark)
	}

	format := recordSep + "%H" + headerSep + "%P" + headerSep + "%an" + headerSep + "%ae" + headerSep + "%aI" + headerSep + "%s" + bodySep
	cmd := exec.CommandContext(ctx, "git", "log", revRange, "--reverse", "--name-status", "--pretty=format:"+format)
	cmd.Dir = repoPath
	out, err := cmd.Output()
	if err != nil {
		return nil, nil, "", kgerrors.Ingestor(err, "vcs")
	}

	var nodes []model.Node
	var edges []model.Edge
	seenFiles := make(map[string]bool)
	lastSHA := lastWatermark

	records := strings.Split(string(out), recordSep)
	for _, rec := range records {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		headerAndBody := strings.SplitN(rec, bodySep, 2)
		header := strings.Split(headerAndBody[0], headerSep)
		if len(header) != 6 {
			continue
		}
		sha, parents, author, authorEmail, dateStr, subject := header[0], header[1], header[2], header[3], header[4], header[5]
		commitTime, _ := time.Parse(time.RFC3339, dateStr)

		commitID := model.NaturalKey(model.NodeCommit, sha)
		nodes = append(nodes, model.Node{
			ID:     commitID,
			RepoID: v.repoID,
			Type:   model.NodeCommit,
			Title:  subject,
			Props: map[string]any{
				"author":       author,
				"author_email": authorEmail,
			},
			ValidFrom: commitTime,
		})

		for _, parent := range strings.Fields(parents) {
			edges = append(edges, model.Edge{
				SrcID: model.NaturalKey(model.NodeCommit, parent), DstID: commitID,
				Relation: model.RelPrecedes, ValidFrom: commitTime,
			})
		}

		if len(headerAndBody) == 2 {
			scanner := bufio.NewScanner(strings.NewReader(headerAndBody[1]))
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				fields := strings.Split(line, "\t")
				if len(fields) < 2 {
					continue
				}
				status, path := fields[0], fields[len(fields)-1]
				fileID := model.NaturalKey(model.NodeFile, path)
				if !seenFiles[fileID] {
					seenFiles[fileID] = true
					nodes = append(nodes, model.Node{
						ID:     fileID,
						RepoID: v.repoID,
						Type:   model.NodeFile,
						Title:  path,
						Props:  map[string]any{"language": git.DetectLanguage(path)},
					})
				}
				edges = append(edges, model.Edge{
					SrcID: commitID, DstID: fileID, Relation: model.RelModifies,
					ValidFrom: commitTime,
					Props:     map[string]any{"status": status},
				})
			}
		}

		lastSHA = sha
	}

	return nodes, edges, lastSHA, nil
}
