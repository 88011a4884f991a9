package deep

import (
	"math"
	"sort"

	"github.com/helixir/citation-integrity-service/internal/domain"
)

// Tangential score weights. Distance to the nearest key reference
// dominates; component isolation, low in-degree, and low in-text use
// contribute the rest.
const (
	tangentialDistWeight      = 0.60
	tangentialComponentWeight = 0.25
	tangentialInDegreeWeight  = 0.10
	tangentialCiteWeight      = 0.05

	// maxKeyDistance saturates the distance term.
	maxKeyDistance = 6
)

// Categorize derives the reference categories from graph structure.
// Each category holds the top decile for its measure, ranked by score
// with insertion order breaking ties. originalRefByNode maps graph
// node ids of the document's own references to their entry ids, and
// citeCounts is the in-text mention count per entry id.
func Categorize(g *Graph, keyNodes []string, originalRefByNode map[string]string, citeCounts map[string]int) domain.ReferenceCategories {
	var cats domain.ReferenceCategories
	n := g.NodeCount()
	if n == 0 {
		return cats
	}

	inDegrees := g.InDegrees()
	betw := betweenness(g)
	closeScores := closeness(g)

	inScores := make([]float64, n)
	for i, d := range inDegrees {
		inScores[i] = float64(d)
	}
	cats.HighlyConnected = topDecile(g, inScores, nil)
	cats.BridgePapers = topDecile(g, betw, nil)
	cats.CorePapers = topDecile(g, closeScores, nil)

	// Bibliographic coupling: pool papers sharing references with the
	// document's own reference set. Zero-overlap nodes never qualify.
	coupling := make([]float64, n)
	for i := range g.out {
		count := 0
		for _, nb := range g.out[i] {
			if _, ok := originalRefByNode[g.ids[nb]]; ok {
				count++
			}
		}
		coupling[i] = float64(count)
	}
	cats.BibliographicCoupling = topDecile(g, coupling, func(i int) bool {
		return coupling[i] > 0
	})

	cats.TangentialCitations = tangential(g, keyNodes, originalRefByNode, citeCounts, inDegrees)
	return cats
}

// tangential ranks the document's own references by how loosely they
// connect to the key-reference neighbourhood, keeping the top decile.
func tangential(g *Graph, keyNodes []string, originalRefByNode map[string]string, citeCounts map[string]int, inDegrees []int) []string {
	keyIdx := make([]int, 0, len(keyNodes))
	for _, id := range keyNodes {
		if idx := g.Index(id); idx >= 0 {
			keyIdx = append(keyIdx, idx)
		}
	}

	distOut := multiSourceBFS(g.out, keyIdx)
	distIn := multiSourceBFS(g.in, keyIdx)

	compOf, compSizes, largest := weakComponents(g)
	if largest == 0 {
		largest = 1
	}

	maxInDeg := 1
	for _, d := range inDegrees {
		if d > maxInDeg {
			maxInDeg = d
		}
	}
	maxCites := 1
	for _, c := range citeCounts {
		if c > maxCites {
			maxCites = c
		}
	}

	scores := make([]float64, g.NodeCount())
	eligible := make([]bool, g.NodeCount())
	for nodeID, refID := range originalRefByNode {
		idx := g.Index(nodeID)
		if idx < 0 {
			continue
		}
		dist := minDist(distOut[idx], distIn[idx])
		distScore := 1.0
		if dist != unreached {
			if dist > maxKeyDistance {
				dist = maxKeyDistance
			}
			distScore = float64(dist) / maxKeyDistance
		}
		compRatio := float64(compSizes[compOf[idx]]) / float64(largest)
		inDegNorm := float64(inDegrees[idx]) / float64(maxInDeg)
		citeNorm := float64(citeCounts[refID]) / float64(maxCites)

		scores[idx] = tangentialDistWeight*distScore +
			tangentialComponentWeight*(1-compRatio) +
			tangentialInDegreeWeight*(1-inDegNorm) +
			tangentialCiteWeight*(1-citeNorm)
		eligible[idx] = true
	}

	return topDecile(g, scores, func(i int) bool { return eligible[i] })
}

func minDist(a, b int) int {
	switch {
	case a == unreached:
		return b
	case b == unreached:
		return a
	case b < a:
		return b
	default:
		return a
	}
}

// topDecile returns the node ids of the top ceil(10%) eligible nodes
// by score, at least one when any node is eligible. Ties resolve to
// the earlier-inserted node.
func topDecile(g *Graph, scores []float64, eligible func(int) bool) []string {
	idx := make([]int, 0, len(scores))
	for i := range scores {
		if eligible != nil && !eligible(i) {
			continue
		}
		idx = append(idx, i)
	}
	if len(idx) == 0 {
		return nil
	}
	sort.SliceStable(idx, func(a, b int) bool {
		if scores[idx[a]] != scores[idx[b]] {
			return scores[idx[a]] > scores[idx[b]]
		}
		return idx[a] < idx[b]
	})
	keep := int(math.Ceil(float64(len(idx)) * 0.10))
	if keep < 1 {
		keep = 1
	}
	if keep > len(idx) {
		keep = len(idx)
	}
	out := make([]string, 0, keep)
	for _, i := range idx[:keep] {
		out = append(out, g.ids[i])
	}
	return out
}
