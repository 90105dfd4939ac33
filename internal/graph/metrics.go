package graph

import "inquest/internal/types"

// TopologyMetrics summarizes graph shape for the project index and reports.
type TopologyMetrics struct {
	Density                 float64 `json:"density"`
	AverageDegree           float64 `json:"averageDegree"`
	ConnectedComponentCount int     `json:"connectedComponentCount"`
}

// ComputeTopologyMetrics returns directed density, average degree, and the
// connected-component count treating edges as undirected. Edges with
// unresolved endpoints are ignored; an empty graph yields all zeros.
func ComputeTopologyMetrics(g *types.Graph) TopologyMetrics {
	n := len(g.Nodes)
	if n == 0 {
		return TopologyMetrics{}
	}

	idx := make(map[string]int, n)
	for i := range g.Nodes {
		idx[g.Nodes[i].ID] = i
	}

	uf := newUnionFind(n)
	edges := 0
	for i := range g.Edges {
		s, sOK := idx[g.Edges[i].Source]
		t, tOK := idx[g.Edges[i].Target]
		if !sOK || !tOK {
			continue
		}
		edges++
		uf.union(s, t)
	}

	m := TopologyMetrics{
		AverageDegree:           2 * float64(edges) / float64(n),
		ConnectedComponentCount: uf.components(),
	}
	if n > 1 {
		m.Density = float64(edges) / float64(n*(n-1))
	}
	return m
}

// unionFind with path compression and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

func (uf *unionFind) components() int {
	count := 0
	for i := range uf.parent {
		if uf.find(i) == i {
			count++
		}
	}
	return count
}
