// Package deep builds a citation network around a document's verified
// references and derives structural categories and revision
// recommendations from it. Every stage degrades gracefully: a failed
// or capped expansion yields a partial result, never a document error.
package deep

// Graph is a capped, insertion-ordered citation graph arena. Node ids
// are provider identifiers (or synthetic "ref:R7" ids for original
// references without one); indices are assigned in insertion order so
// every traversal over Nodes() is deterministic regardless of which
// goroutine inserted what.
type Graph struct {
	maxNodes int
	maxEdges int

	ids   []string
	index map[string]int

	out     [][]int
	outSeen []map[int]struct{}
	in      [][]int

	edgeCount int

	hitNodeCap bool
	hitEdgeCap bool
}

// NewGraph creates an empty graph with the given node and edge caps.
func NewGraph(maxNodes, maxEdges int) *Graph {
	return &Graph{
		maxNodes: maxNodes,
		maxEdges: maxEdges,
		index:    make(map[string]int),
	}
}

// AddNode inserts a node if capacity allows and returns its index.
// Existing nodes are returned as-is. The second return is false only
// when the node cap rejected a new node.
func (g *Graph) AddNode(id string) (int, bool) {
	if idx, ok := g.index[id]; ok {
		return idx, true
	}
	if len(g.ids) >= g.maxNodes {
		g.hitNodeCap = true
		return -1, false
	}
	idx := len(g.ids)
	g.ids = append(g.ids, id)
	g.index[id] = idx
	g.out = append(g.out, nil)
	g.outSeen = append(g.outSeen, make(map[int]struct{}))
	g.in = append(g.in, nil)
	return idx, true
}

// AddEdge records a directed src→dst edge between existing nodes.
// Duplicate edges are ignored; the edge cap rejects new ones.
func (g *Graph) AddEdge(src, dst string) bool {
	si, ok := g.index[src]
	if !ok {
		return false
	}
	di, ok := g.index[dst]
	if !ok {
		return false
	}
	if _, dup := g.outSeen[si][di]; dup {
		return true
	}
	if g.edgeCount >= g.maxEdges {
		g.hitEdgeCap = true
		return false
	}
	g.outSeen[si][di] = struct{}{}
	g.out[si] = append(g.out[si], di)
	g.in[di] = append(g.in[di], si)
	g.edgeCount++
	return true
}

// Contains reports whether the node id is in the graph.
func (g *Graph) Contains(id string) bool {
	_, ok := g.index[id]
	return ok
}

// Index returns the node's insertion index, or -1 if absent.
func (g *Graph) Index(id string) int {
	if idx, ok := g.index[id]; ok {
		return idx
	}
	return -1
}

// Nodes returns all node ids in insertion order.
func (g *Graph) Nodes() []string { return g.ids }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.ids) }

// EdgeCount returns the number of distinct edges.
func (g *Graph) EdgeCount() int { return g.edgeCount }

// Truncated reports whether either cap rejected an insertion.
func (g *Graph) Truncated() bool { return g.hitNodeCap || g.hitEdgeCap }

// Full reports whether no further nodes or edges can be added.
func (g *Graph) Full() bool {
	return len(g.ids) >= g.maxNodes || g.edgeCount >= g.maxEdges
}

// InDegrees returns the in-degree of every node by index.
func (g *Graph) InDegrees() []int {
	degrees := make([]int, len(g.ids))
	for i := range g.in {
		degrees[i] = len(g.in[i])
	}
	return degrees
}

// undirected returns the union of out- and in-neighbours per node,
// used for weakly connected component discovery.
func (g *Graph) undirected() [][]int {
	adj := make([][]int, len(g.ids))
	for i := range g.ids {
		seen := make(map[int]struct{}, len(g.out[i])+len(g.in[i]))
		for _, nb := range g.out[i] {
			if _, ok := seen[nb]; !ok {
				seen[nb] = struct{}{}
				adj[i] = append(adj[i], nb)
			}
		}
		for _, nb := range g.in[i] {
			if _, ok := seen[nb]; !ok {
				seen[nb] = struct{}{}
				adj[i] = append(adj[i], nb)
			}
		}
	}
	return adj
}
