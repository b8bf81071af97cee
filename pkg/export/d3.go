package export

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/duynguyendang/factgraph/pkg/service"
	"github.com/google/uuid"
)

// Link types.
const (
	LinkFact      = "fact"
	LinkRetracted = "retracted"
)

// D3Node represents a node in the D3 force-directed graph.
type D3Node struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`            // Object value
	Kind     string            `json:"kind,omitempty"`  // Object type name
	Group    string            `json:"group,omitempty"` // Grouping for visualization (uses Kind)
	Metadata map[string]string `json:"metadata,omitempty"`
}

// D3Link represents a link/edge in the D3 force-directed graph.
type D3Link struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight,omitempty"`
	Type     string  `json:"type"` // "fact" or "retracted"
	FactID   string  `json:"factId"`
	Value    string  `json:"value,omitempty"`
}

// D3Graph represents the full graph structure for D3.js.
type D3Graph struct {
	Nodes []D3Node `json:"nodes"`
	Links []D3Link `json:"links"`
}

// FromTraversal converts a traversal result into a D3Graph. Edges whose
// endpoints were not returned still produce placeholder nodes so every link
// resolves on the client.
func FromTraversal(res *service.TraverseResult) *D3Graph {
	g := &D3Graph{Nodes: []D3Node{}, Links: []D3Link{}}
	if res == nil {
		return g
	}

	nodes := make(map[uuid.UUID]D3Node, len(res.Vertices))
	for _, v := range res.Vertices {
		if v == nil {
			continue
		}
		n := D3Node{ID: v.ID.String(), Name: v.ID.String(), Kind: v.Label, Group: v.Label}
		if v.Object != nil {
			n.Name = v.Object.Value
			n.Metadata = map[string]string{"typeId": v.Object.TypeID.String()}
		}
		if n.Group == "" {
			n.Group = "unknown"
		}
		nodes[v.ID] = n
	}

	// Parallel edges between the same pair add weight to a single link per fact.
	type linkKey struct {
		source, target, fact uuid.UUID
	}
	seen := make(map[linkKey]int)
	for _, e := range res.Edges {
		for _, id := range []uuid.UUID{e.InVertexID, e.OutVertexID} {
			if _, ok := nodes[id]; !ok {
				nodes[id] = D3Node{ID: id.String(), Name: id.String(), Group: "unknown"}
			}
		}
		key := linkKey{e.InVertexID, e.OutVertexID, e.FactID}
		if i, ok := seen[key]; ok {
			g.Links[i].Weight++
			continue
		}
		typ := LinkFact
		if e.Retracted {
			typ = LinkRetracted
		}
		seen[key] = len(g.Links)
		g.Links = append(g.Links, D3Link{
			Source:   e.InVertexID.String(),
			Target:   e.OutVertexID.String(),
			Relation: e.Label,
			Weight:   1,
			Type:     typ,
			FactID:   e.FactID.String(),
			Value:    e.Value,
		})
	}

	for _, n := range nodes {
		g.Nodes = append(g.Nodes, n)
	}
	sort.Slice(g.Nodes, func(i, j int) bool { return g.Nodes[i].ID < g.Nodes[j].ID })
	return g
}

// SaveD3Graph writes the graph to a JSON file.
func SaveD3Graph(graph *D3Graph, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(graph)
}
