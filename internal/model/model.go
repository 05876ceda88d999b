// Package model defines the typed node and edge schema of the bi-temporal
// knowledge graph: identifiers, the closed set of node/edge variants, and
// the valid-time/transaction-time fields every record carries.
package model

import (
	"fmt"
	"strings"
	"time"
)

// NodeType is the closed set of node variants the graph can hold.
type NodeType string

const (
	NodeCommit         NodeType = "commit"
	NodeFile           NodeType = "file"
	NodeFunction       NodeType = "function"
	NodeClass          NodeType = "class"
	NodeModule         NodeType = "module"
	NodeComponent      NodeType = "component"
	NodeService        NodeType = "service"
	NodePR             NodeType = "pr"
	NodeIssue          NodeType = "issue"
	NodeADR            NodeType = "adr"
	NodeDocument       NodeType = "document"
	NodeConcept        NodeType = "concept"
	NodeRequirement    NodeType = "requirement"
	NodeChangePattern  NodeType = "change_pattern"
	NodeRefactoring    NodeType = "refactoring"
	NodeReasoningNode  NodeType = "reasoning_node"
)

// ValidNodeTypes is the authoritative closed set, used to reject unknown
// types at ingestion time rather than at query time.
var ValidNodeTypes = map[NodeType]bool{
	NodeCommit: true, NodeFile: true, NodeFunction: true, NodeClass: true,
	NodeModule: true, NodeComponent: true, NodeService: true, NodePR: true,
	NodeIssue: true, NodeADR: true, NodeDocument: true, NodeConcept: true,
	NodeRequirement: true, NodeChangePattern: true, NodeRefactoring: true,
	NodeReasoningNode: true,
}

// EdgeRelation is the closed set of edge relations the graph can hold.
type EdgeRelation string

const (
	RelModifies      EdgeRelation = "MODIFIES"
	RelMerges        EdgeRelation = "MERGES"
	RelMentions      EdgeRelation = "MENTIONS"
	RelDecides       EdgeRelation = "DECIDES"
	RelDependsOn     EdgeRelation = "DEPENDS_ON"
	RelContains      EdgeRelation = "CONTAINS"
	RelCalls         EdgeRelation = "CALLS"
	RelImports       EdgeRelation = "IMPORTS"
	RelInheritsFrom  EdgeRelation = "INHERITS_FROM"
	RelImplements    EdgeRelation = "IMPLEMENTS"
	RelPartOf        EdgeRelation = "PART_OF"
	RelDescribes     EdgeRelation = "DESCRIBES"
	RelReferences    EdgeRelation = "REFERENCES"
	RelFollows       EdgeRelation = "FOLLOWS"
	RelPrecedes      EdgeRelation = "PRECEDES"
	RelCorrelatesWith EdgeRelation = "CORRELATES_WITH"
	RelRelatedTo     EdgeRelation = "RELATED_TO"
)

var ValidEdgeRelations = map[EdgeRelation]bool{
	RelModifies: true, RelMerges: true, RelMentions: true, RelDecides: true,
	RelDependsOn: true, RelContains: true, RelCalls: true, RelImports: true,
	RelInheritsFrom: true, RelImplements: true, RelPartOf: true,
	RelDescribes: true, RelReferences: true, RelFollows: true,
	RelPrecedes: true, RelCorrelatesWith: true, RelRelatedTo: true,
}

// DependencyRelations are the relation kinds the impact engine traverses
// when computing structural blast radius.
var DependencyRelations = []EdgeRelation{RelDependsOn, RelCalls, RelImports, RelInheritsFrom, RelImplements}

// Node is a single versioned record in the graph. ID is content-addressed
// per spec: "<type>:<natural-key>" for artifacts with a stable natural key
// (file path, commit sha, PR/issue number), otherwise a deterministic hash
// of the ingestor-provided fields.
type Node struct {
	ID       string         `json:"id" db:"id"`
	RepoID   string         `json:"repo_id" db:"repo_id"`
	Type     NodeType       `json:"type" db:"type"`
	Title    string         `json:"title" db:"title"`
	Body     string         `json:"body,omitempty" db:"body"`
	Props    map[string]any `json:"props,omitempty" db:"-"`
	PropsRaw string         `json:"-" db:"props"`

	// Bi-temporal fields. ValidFrom/ValidTo describe when the fact was true
	// in the world; TxFrom/TxTo describe when this row was the system's
	// belief about that fact. A row with TxTo == nil is the current belief.
	ValidFrom time.Time  `json:"valid_from" db:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty" db:"valid_to"`
	TxFrom    time.Time  `json:"tx_from" db:"tx_from"`
	TxTo      *time.Time `json:"tx_to,omitempty" db:"tx_to"`
}

// IsCurrent reports whether this is the system's present belief (TxTo unset).
func (n Node) IsCurrent() bool { return n.TxTo == nil }

// Edge is a typed, directed relation between two node ids. Unlike Node,
// Edge never carries repo_id directly — both endpoints already scope it,
// per the open-question decision recorded in SPEC_FULL.md §13.
type Edge struct {
	ID       string         `json:"id" db:"id"`
	SrcID    string         `json:"src_id" db:"src_id"`
	DstID    string         `json:"dst_id" db:"dst_id"`
	Relation EdgeRelation   `json:"relation" db:"relation"`
	Weight   float64        `json:"weight" db:"weight"`
	Props    map[string]any `json:"props,omitempty" db:"-"`
	PropsRaw string         `json:"-" db:"props"`

	ValidFrom time.Time  `json:"valid_from" db:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty" db:"valid_to"`
	TxFrom    time.Time  `json:"tx_from" db:"tx_from"`
	TxTo      *time.Time `json:"tx_to,omitempty" db:"tx_to"`
}

func (e Edge) IsCurrent() bool { return e.TxTo == nil }

// NaturalKey builds a node id as "<type>:<key>", the scheme used for every
// node variant that has a stable, externally meaningful identifier.
func NaturalKey(t NodeType, key string) string {
	return fmt.Sprintf("%s:%s", t, key)
}

// ParseNodeID splits a node id back into its type and natural key.
func ParseNodeID(id string) (NodeType, string, error) {
	parts := strings.SplitN(id, ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed node id %q: expected \"type:key\"", id)
	}
	t := NodeType(parts[0])
	if !ValidNodeTypes[t] {
		return "", "", fmt.Errorf("malformed node id %q: unknown type %q", id, parts[0])
	}
	return t, parts[1], nil
}

// EdgeNaturalKey builds a stable edge id so that re-ingesting the same
// (src, dst, relation) triple upserts rather than duplicates.
func EdgeNaturalKey(src, dst string, rel EdgeRelation) string {
	return fmt.Sprintf("%s|%s|%s", rel, src, dst)
}
