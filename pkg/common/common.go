package common

import (
	"encoding/json"
	"fmt"
)

// Researcher is a row of the researchers collection. Advisor is a back-reference
// to another researcher id and is not checked for cycles.
type Researcher struct {
	ResearcherID string   `json:"researcher_id"`
	Name         string   `json:"name"`
	Advisor      *string  `json:"advisor"`
	ContactInfo  []string `json:"contact_info"`
	Labs         []string `json:"labs"`
	Standing     *string  `json:"standing"`
}

// PaperEdge is an undirected co-authorship relation between two researchers.
type PaperEdge struct {
	ResearcherOneID string `json:"researcher_one_id"`
	ResearcherTwoID string `json:"researcher_two_id"`
}

// AdvisorEdge is a directed advisee → advisor relation.
type AdvisorEdge struct {
	AdviseeID string `json:"advisee_id"`
	AdvisorID string `json:"advisor_id"`
}

// LibraryEntry records that a paper is in a researcher's reading list.
type LibraryEntry struct {
	ResearcherID string `json:"researcher_id"`
	DocumentID   string `json:"document_id"`
}

// Paper is a row of the papers collection. LabID is only read by the
// paper lab lookup and never projected into the graph.
type Paper struct {
	DocumentID string   `json:"document_id"`
	Title      *string  `json:"title"`
	Year       *int     `json:"year"`
	Tags       []string `json:"tags"`
	LabID      *string  `json:"lab_id,omitempty"`
}

// Description holds the free text about a researcher. At most one per researcher.
type Description struct {
	ResearcherID string  `json:"researcher_id"`
	About        *string `json:"about"`
}

// Metric holds the influence score of a researcher. At most one per researcher.
type Metric struct {
	ResearcherID string   `json:"researcher_id"`
	Influence    *float64 `json:"influence"`
}

// LabInfo is a row of the lab-info collection.
type LabInfo struct {
	LabID string         `json:"lab_id"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Lab is an entry of the static lab table. Name is the display name that
// researchers reference in their labs list.
type Lab struct {
	ID   string
	Name string
}

type NodeType string

const (
	NodeTypeResearcher NodeType = "researcher"
	NodeTypeLab        NodeType = "lab"
)

type LinkType string

const (
	LinkTypePaper         LinkType = "paper"
	LinkTypeAdvisor       LinkType = "advisor"
	LinkTypeResearcherLab LinkType = "researcher_lab"
)

// Node is a graph vertex: either a *ResearcherNode or a *LabNode.
type Node interface {
	NodeID() string
	NodeType() NodeType
}

// PaperSummary is the projection of a Paper embedded in a researcher node.
type PaperSummary struct {
	Title      *string  `json:"title"`
	Year       *int     `json:"year"`
	DocumentID string   `json:"document_id"`
	Tags       []string `json:"tags"`
}

type ResearcherNode struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Type        NodeType       `json:"type"`
	Val         int            `json:"val"`
	Advisor     *string        `json:"advisor"`
	ContactInfo []string       `json:"contact_info"`
	Labs        []string       `json:"labs"`
	Standing    *string        `json:"standing"`
	Papers      []PaperSummary `json:"papers"`
	Tags        []string       `json:"tags"`
	Influence   *float64       `json:"influence"`
	About       *string        `json:"about"`
}

func (n *ResearcherNode) NodeID() string     { return n.ID }
func (n *ResearcherNode) NodeType() NodeType { return NodeTypeResearcher }

type LabNode struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	Type NodeType `json:"type"`
	Val  int      `json:"val"`
}

func (n *LabNode) NodeID() string     { return n.ID }
func (n *LabNode) NodeType() NodeType { return NodeTypeLab }

// Link is a graph edge. Paper links are undirected, advisor and
// researcher_lab links point from Source to Target.
type Link struct {
	Source string   `json:"source"`
	Target string   `json:"target"`
	Type   LinkType `json:"type"`
}

// Nodes decodes heterogeneous node lists by their "type" discriminant.
type Nodes []Node

func (ns *Nodes) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Nodes, 0, len(raw))
	for i, r := range raw {
		var head struct {
			Type NodeType `json:"type"`
		}
		if err := json.Unmarshal(r, &head); err != nil {
			return fmt.Errorf("node %d: %w", i, err)
		}

		switch head.Type {
		case NodeTypeResearcher:
			n := new(ResearcherNode)
			if err := json.Unmarshal(r, n); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
			out = append(out, n)
		case NodeTypeLab:
			n := new(LabNode)
			if err := json.Unmarshal(r, n); err != nil {
				return fmt.Errorf("node %d: %w", i, err)
			}
			out = append(out, n)
		default:
			return fmt.Errorf("node %d: unknown node type %q", i, head.Type)
		}
	}

	*ns = out
	return nil
}

// Graph is the persisted and served artifact. It is never mutated after
// it has been built or loaded.
type Graph struct {
	Nodes Nodes  `json:"nodes"`
	Links []Link `json:"links"`
}

// EmptyGraph returns a graph that encodes as {"nodes":[],"links":[]}.
func EmptyGraph() Graph {
	return Graph{Nodes: Nodes{}, Links: []Link{}}
}

// Normalize replaces nil slices so the graph never encodes null lists.
func (g Graph) Normalize() Graph {
	if g.Nodes == nil {
		g.Nodes = Nodes{}
	}
	if g.Links == nil {
		g.Links = []Link{}
	}
	return g
}
