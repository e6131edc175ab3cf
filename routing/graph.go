// Package routing provides the graph and cost primitives over filesystem
// vertices: directed edges carrying a polynomial-complexity cost that
// combines by max, and shortest-path routing between vertices.
//
// Upstream's Graph.route was never implemented (it raised
// NotImplementedError); the vertex/edge/cost data model is grounded on
// the original's graph types, but the Dijkstra search below is new.
package routing

import (
	"container/heap"
	"fmt"
)

// Vertex wraps a filesystem name.
type Vertex string

// Cost is a polynomial-complexity cost O(n^Degree). Costs combine by
// max: a route's cost is bounded by its worst stage, not their sum.
type Cost struct {
	Degree int
}

// Combine returns the max-degree of a and b.
func (a Cost) Combine(b Cost) Cost {
	if b.Degree > a.Degree {
		return b
	}
	return a
}

// Less orders costs by degree, for use in the routing priority queue.
func (a Cost) Less(b Cost) bool { return a.Degree < b.Degree }

// Common cost constants matching the original's O(1)/O(n)/O(n^2) names.
var (
	O1 = Cost{Degree: 0}
	On = Cost{Degree: 1}
	On2 = Cost{Degree: 2}
)

// Edge is a directed connection between two vertices, carrying a cost.
type Edge struct {
	From, To Vertex
	Cost     Cost
}

// Graph is an adjacency list over a flat set of vertices.
type Graph struct {
	edges map[Vertex][]Edge
}

// NewGraph constructs an empty Graph.
func NewGraph() *Graph {
	return &Graph{edges: make(map[Vertex][]Edge)}
}

// AddEdge inserts a directed edge. Multiple edges between the same pair
// of vertices are allowed; the router will consider the cheapest.
func (g *Graph) AddEdge(e Edge) {
	g.edges[e.From] = append(g.edges[e.From], e)
	if _, ok := g.edges[e.To]; !ok {
		g.edges[e.To] = nil
	}
}

// Contains reports whether an edge equal to e is present in the graph.
func (g *Graph) Contains(e Edge) bool {
	for _, existing := range g.edges[e.From] {
		if existing == e {
			return true
		}
	}
	return false
}

// Neighbours yields the edges leaving v.
func (g *Graph) Neighbours(v Vertex) []Edge {
	return g.edges[v]
}

type queueItem struct {
	vertex Vertex
	cost   Cost
	index  int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost.Less(pq[j].cost) }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// shortestPath runs a naive Dijkstra between from and to, returning the
// edge-by-edge path. The graph of configured filesystems is small and
// static, so no more sophisticated algorithm is warranted.
func (g *Graph) shortestPath(from, to Vertex) ([]Edge, error) {
	if from == to {
		return nil, nil
	}

	dist := map[Vertex]Cost{from: O1}
	prevEdge := map[Vertex]Edge{}
	visited := map[Vertex]bool{}

	pq := &priorityQueue{{vertex: from, cost: O1}}
	heap.Init(pq)

	for pq.Len() > 0 {
		item := heap.Pop(pq).(*queueItem)
		u := item.vertex
		if visited[u] {
			continue
		}
		visited[u] = true

		if u == to {
			break
		}

		for _, e := range g.edges[u] {
			candidate := dist[u].Combine(e.Cost)
			existing, seen := dist[e.To]
			if !seen || candidate.Less(existing) {
				dist[e.To] = candidate
				prevEdge[e.To] = e
				heap.Push(pq, &queueItem{vertex: e.To, cost: candidate})
			}
		}
	}

	if _, ok := dist[to]; !ok {
		return nil, fmt.Errorf("routing: no path from %q to %q", from, to)
	}

	var path []Edge
	for v := to; v != from; {
		e, ok := prevEdge[v]
		if !ok {
			return nil, fmt.Errorf("routing: no path from %q to %q", from, to)
		}
		path = append([]Edge{e}, path...)
		v = e.From
	}
	return path, nil
}

// Route concatenates the pairwise shortest paths between each consecutive
// pair of the given vertices, matching a multi-hop route request.
func (g *Graph) Route(via ...Vertex) ([]Edge, error) {
	if len(via) < 2 {
		return nil, fmt.Errorf("routing: route requires at least two vertices")
	}

	var full []Edge
	for i := 0; i+1 < len(via); i++ {
		hop, err := g.shortestPath(via[i], via[i+1])
		if err != nil {
			return nil, err
		}
		full = append(full, hop...)
	}
	return full, nil
}
