package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/duynguyendang/factgraph/pkg/graph"
	"github.com/duynguyendang/factgraph/pkg/model"
	"github.com/duynguyendang/factgraph/pkg/service"
	"github.com/google/uuid"
)

func TestFromTraversal(t *testing.T) {
	ip := &model.Object{ID: uuid.New(), TypeID: uuid.New(), Value: "10.0.0.1"}
	domain := uuid.New()
	fact := uuid.New()
	retracted := uuid.New()

	res := &service.TraverseResult{
		Vertices: []*graph.Vertex{{ID: ip.ID, Label: "ipv4", Object: ip}},
		Edges: []service.EdgeView{
			{ID: uuid.New(), FactID: fact, InVertexID: ip.ID, OutVertexID: domain, Label: "resolvesTo"},
			{ID: uuid.New(), FactID: fact, InVertexID: ip.ID, OutVertexID: domain, Label: "resolvesTo"},
			{ID: uuid.New(), FactID: retracted, InVertexID: domain, OutVertexID: ip.ID, Label: "resolvesTo", Retracted: true},
		},
	}

	g := FromTraversal(res)

	if len(g.Nodes) != 2 {
		t.Fatalf("Expected 2 nodes, got %d", len(g.Nodes))
	}
	byID := make(map[string]D3Node)
	for _, n := range g.Nodes {
		byID[n.ID] = n
	}
	n := byID[ip.ID.String()]
	if n.Name != "10.0.0.1" || n.Kind != "ipv4" || n.Group != "ipv4" {
		t.Errorf("Unexpected node for ip: %+v", n)
	}
	if n.Metadata["typeId"] != ip.TypeID.String() {
		t.Errorf("Expected typeId metadata, got %v", n.Metadata)
	}
	if placeholder := byID[domain.String()]; placeholder.Group != "unknown" {
		t.Errorf("Expected placeholder node for domain, got %+v", placeholder)
	}

	if len(g.Links) != 2 {
		t.Fatalf("Expected 2 links, got %d", len(g.Links))
	}
	if g.Links[0].Weight != 2 || g.Links[0].Type != LinkFact {
		t.Errorf("Expected merged fact link with weight 2, got %+v", g.Links[0])
	}
	if g.Links[1].Type != LinkRetracted || g.Links[1].Source != domain.String() {
		t.Errorf("Expected retracted link from domain, got %+v", g.Links[1])
	}
}

func TestFromTraversal_Empty(t *testing.T) {
	g := FromTraversal(nil)
	data, err := json.Marshal(g)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"nodes":[],"links":[]}` {
		t.Errorf("Unexpected JSON: %s", data)
	}
}

func TestSaveD3Graph(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	g := &D3Graph{Nodes: []D3Node{{ID: "a", Name: "a"}}, Links: []D3Link{}}
	if err := SaveD3Graph(g, path); err != nil {
		t.Fatalf("SaveD3Graph failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	var back D3Graph
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if len(back.Nodes) != 1 || back.Nodes[0].ID != "a" {
		t.Errorf("Unexpected graph: %+v", back)
	}
}
