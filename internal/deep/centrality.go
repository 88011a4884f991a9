package deep

// unreached marks a node no BFS source could reach.
const unreached = -1

// multiSourceBFS returns the hop distance from the nearest source to
// every node, following the given adjacency. Unreached nodes get -1.
func multiSourceBFS(adj [][]int, sources []int) []int {
	dist := make([]int, len(adj))
	for i := range dist {
		dist[i] = unreached
	}
	queue := make([]int, 0, len(sources))
	for _, s := range sources {
		if s < 0 || s >= len(adj) || dist[s] == 0 {
			continue
		}
		dist[s] = 0
		queue = append(queue, s)
	}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, nb := range adj[cur] {
			if dist[nb] != unreached {
				continue
			}
			dist[nb] = dist[cur] + 1
			queue = append(queue, nb)
		}
	}
	return dist
}

// weakComponents labels every node with a weakly-connected component id
// and returns per-component sizes plus the largest size.
func weakComponents(g *Graph) (componentOf []int, sizes []int, largest int) {
	adj := g.undirected()
	componentOf = make([]int, len(adj))
	for i := range componentOf {
		componentOf[i] = -1
	}
	for start := range adj {
		if componentOf[start] != -1 {
			continue
		}
		cid := len(sizes)
		size := 0
		queue := []int{start}
		componentOf[start] = cid
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			size++
			for _, nb := range adj[cur] {
				if componentOf[nb] != -1 {
					continue
				}
				componentOf[nb] = cid
				queue = append(queue, nb)
			}
		}
		sizes = append(sizes, size)
		if size > largest {
			largest = size
		}
	}
	return componentOf, sizes, largest
}

// betweenness computes Brandes betweenness centrality over the directed
// out-adjacency of the graph, unweighted.
func betweenness(g *Graph) []float64 {
	n := g.NodeCount()
	betw := make([]float64, n)

	sigma := make([]float64, n)
	dist := make([]int, n)
	delta := make([]float64, n)
	pred := make([][]int, n)
	stack := make([]int, 0, n)
	queue := make([]int, 0, n)

	for s := 0; s < n; s++ {
		for i := 0; i < n; i++ {
			sigma[i] = 0
			dist[i] = unreached
			delta[i] = 0
			pred[i] = pred[i][:0]
		}
		sigma[s] = 1
		dist[s] = 0
		stack = stack[:0]
		queue = append(queue[:0], s)

		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			stack = append(stack, v)
			for _, w := range g.out[v] {
				if dist[w] == unreached {
					dist[w] = dist[v] + 1
					queue = append(queue, w)
				}
				if dist[w] == dist[v]+1 {
					sigma[w] += sigma[v]
					pred[w] = append(pred[w], v)
				}
			}
		}

		for i := len(stack) - 1; i >= 0; i-- {
			w := stack[i]
			for _, v := range pred[w] {
				if sigma[w] > 0 {
					delta[v] += (sigma[v] / sigma[w]) * (1 + delta[w])
				}
			}
			if w != s {
				betw[w] += delta[w]
			}
		}
	}
	return betw
}

// closeness computes directed closeness centrality, scaled by the
// reachable fraction so isolated nodes do not dominate.
func closeness(g *Graph) []float64 {
	n := g.NodeCount()
	out := make([]float64, n)
	dist := make([]int, n)
	queue := make([]int, 0, n)

	for s := 0; s < n; s++ {
		for i := range dist {
			dist[i] = unreached
		}
		dist[s] = 0
		queue = append(queue[:0], s)
		reachable := 1
		total := 0
		for len(queue) > 0 {
			v := queue[0]
			queue = queue[1:]
			for _, w := range g.out[v] {
				if dist[w] != unreached {
					continue
				}
				dist[w] = dist[v] + 1
				total += dist[w]
				reachable++
				queue = append(queue, w)
			}
		}
		if reachable <= 1 || total <= 0 || n <= 1 {
			continue
		}
		base := float64(reachable-1) / float64(total)
		out[s] = base * (float64(reachable-1) / float64(n-1))
	}
	return out
}
