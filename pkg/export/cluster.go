package export

import (
	"math/rand"
	"sort"
	"strconv"
)

// Community detection constants.
const (
	Resolution = 0.1 // Lower resolution = fewer, larger clusters
	MaxPasses  = 10
)

// ClusterResult maps node ids to cluster ids.
type ClusterResult struct {
	Clusters    map[int][]string // ClusterID -> []NodeID
	NodeCluster map[string]int   // NodeID -> ClusterID
}

// DetectCommunities groups the nodes of g by modularity using the local move
// phase of Louvain/Leiden. Link weights count, self loops do not. Nodes are
// only ever moved into a neighbour's community, so disconnected components
// never share a cluster. The seed fixes the visit order.
func DetectCommunities(g *D3Graph, seed int64) *ClusterResult {
	result := &ClusterResult{Clusters: map[int][]string{}, NodeCluster: map[string]int{}}
	if g == nil || len(g.Nodes) == 0 {
		return result
	}

	type node struct {
		id        string
		weight    float64
		neighbors map[int]float64
	}
	index := make(map[string]int, len(g.Nodes))
	nodes := make([]*node, len(g.Nodes))
	for i, n := range g.Nodes {
		index[n.ID] = i
		nodes[i] = &node{id: n.ID, neighbors: make(map[int]float64)}
	}

	total := 0.0
	for _, l := range g.Links {
		if l.Source == l.Target {
			continue
		}
		u, ok1 := index[l.Source]
		v, ok2 := index[l.Target]
		if !ok1 || !ok2 {
			continue
		}
		w := l.Weight
		if w <= 0 {
			w = 1
		}
		nodes[u].neighbors[v] += w
		nodes[v].neighbors[u] += w
		nodes[u].weight += w
		nodes[v].weight += w
		total += w
	}

	partition := make([]int, len(nodes))
	commWeight := make(map[int]float64, len(nodes)) // Sigma_tot
	for i, n := range nodes {
		partition[i] = i
		commWeight[i] = n.weight
	}

	if total > 0 {
		rng := rand.New(rand.NewSource(seed))
		order := make([]int, len(nodes))
		for i := range order {
			order[i] = i
		}

		improved := true
		for pass := 0; pass < MaxPasses && improved; pass++ {
			improved = false
			rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

			for _, u := range order {
				n := nodes[u]
				if len(n.neighbors) == 0 {
					continue
				}
				current := partition[u]

				// ki_in per neighbouring community
				links := make(map[int]float64)
				for v, w := range n.neighbors {
					links[partition[v]] += w
				}
				candidates := make([]int, 0, len(links))
				for c := range links {
					candidates = append(candidates, c)
				}
				sort.Ints(candidates)

				// gain = ki_in - resolution * Sigma_tot * ki / 2m
				factor := n.weight / (2 * total)
				best := current
				bestGain := links[current] - Resolution*(commWeight[current]-n.weight)*factor
				for _, c := range candidates {
					if c == current {
						continue
					}
					gain := links[c] - Resolution*commWeight[c]*factor
					if gain > bestGain+1e-9 {
						best, bestGain = c, gain
					}
				}

				if best != current {
					commWeight[current] -= n.weight
					commWeight[best] += n.weight
					partition[u] = best
					improved = true
				}
			}
		}
	}

	// Renumber clusters 0..K in node order.
	renumber := make(map[int]int)
	for i, comm := range partition {
		id, ok := renumber[comm]
		if !ok {
			id = len(renumber)
			renumber[comm] = id
		}
		result.Clusters[id] = append(result.Clusters[id], nodes[i].id)
		result.NodeCluster[nodes[i].id] = id
	}
	return result
}

// ApplyClusters records each node's cluster in its metadata and uses it as
// the node group.
func ApplyClusters(g *D3Graph, clusters *ClusterResult) {
	for i := range g.Nodes {
		id, ok := clusters.NodeCluster[g.Nodes[i].ID]
		if !ok {
			continue
		}
		if g.Nodes[i].Metadata == nil {
			g.Nodes[i].Metadata = make(map[string]string)
		}
		g.Nodes[i].Metadata["kind"] = g.Nodes[i].Kind
		g.Nodes[i].Metadata["cluster"] = strconv.Itoa(id)
		g.Nodes[i].Group = "cluster-" + strconv.Itoa(id)
	}
}
