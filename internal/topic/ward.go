package topic

import (
	"math"
	"sort"
)

// merge records a single merge step in the dendrogram. a and b are the
// representative points of the two clusters joined.
type merge struct {
	a, b     int
	distance float64 // Euclidean, as scipy reports it
	size     int
}

// pairwiseDistances computes the squared Euclidean distance matrix (condensed form).
// Returns a flat array of n*(n-1)/2 distances in row-major upper-triangle order.
func pairwiseDistances(embeddings [][]float64) []float64 {
	n := len(embeddings)
	dist := make([]float64, n*(n-1)/2)

	idx := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			var d float64
			for k := range embeddings[i] {
				diff := embeddings[i][k] - embeddings[j][k]
				d += diff * diff
			}
			dist[idx] = d
			idx++
		}
	}
	return dist
}

// condensedIndex returns the index in the condensed distance array for pair (i, j), i != j.
func condensedIndex(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + j - i - 1
}

// wardLinkage runs Ward's agglomerative clustering with the nearest-neighbour
// chain algorithm. The condensed matrix is updated in place: a merged cluster
// takes over the slot of its b member and slot a is retired. Merges come back
// sorted by distance.
func wardLinkage(dist []float64, n int) []merge {
	if n < 2 {
		return nil
	}

	active := make([]bool, n)
	size := make([]int, n)
	for i := range active {
		active[i] = true
		size[i] = 1
	}

	merges := make([]merge, 0, n-1)
	chain := make([]int, 0, n)

	for len(merges) < n-1 {
		if len(chain) == 0 {
			for i := range active {
				if active[i] {
					chain = append(chain, i)
					break
				}
			}
		}

		var a, b int
		var best float64
		for {
			a = chain[len(chain)-1]
			b = -1
			best = math.MaxFloat64
			// Prefer the previous chain element on ties so the chain terminates.
			if len(chain) > 1 {
				b = chain[len(chain)-2]
				best = dist[condensedIndex(n, a, b)]
			}
			for k := 0; k < n; k++ {
				if k == a || !active[k] {
					continue
				}
				if d := dist[condensedIndex(n, a, k)]; d < best {
					best = d
					b = k
				}
			}
			if len(chain) > 1 && b == chain[len(chain)-2] {
				break
			}
			chain = append(chain, b)
		}
		chain = chain[:len(chain)-2]

		na, nb := float64(size[a]), float64(size[b])
		// Lance-Williams update for Ward on squared distances:
		// d(ab, k) = ((n_k + n_a) d(a,k) + (n_k + n_b) d(b,k) - n_k d(a,b)) / (n_k + n_a + n_b)
		for k := 0; k < n; k++ {
			if k == a || k == b || !active[k] {
				continue
			}
			nk := float64(size[k])
			dak := dist[condensedIndex(n, a, k)]
			dbk := dist[condensedIndex(n, b, k)]
			dist[condensedIndex(n, b, k)] = ((nk+na)*dak + (nk+nb)*dbk - nk*best) / (nk + na + nb)
		}

		active[a] = false
		size[b] += size[a]
		merges = append(merges, merge{a: a, b: b, distance: math.Sqrt(best), size: size[b]})
	}

	sort.SliceStable(merges, func(i, j int) bool { return merges[i].distance < merges[j].distance })
	return merges
}

// cutDendrogram assigns cluster labels by cutting the dendrogram at a threshold.
// Ward distances are monotone, so joining every merge at or below the
// threshold reproduces a flat cut. Labels are 0-indexed in first-seen order.
func cutDendrogram(merges []merge, n int, threshold float64) []int {
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}

	for _, m := range merges {
		if m.distance > threshold {
			break
		}
		ra, rb := find(parent, m.a), find(parent, m.b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	labels := make([]int, n)
	labelMap := make(map[int]int)
	for i := 0; i < n; i++ {
		root := find(parent, i)
		id, ok := labelMap[root]
		if !ok {
			id = len(labelMap)
			labelMap[root] = id
		}
		labels[i] = id
	}
	return labels
}

// find resolves the root of a node with path halving.
func find(parent []int, i int) int {
	for parent[i] != i {
		parent[i] = parent[parent[i]]
		i = parent[i]
	}
	return i
}

// clusterEmbeddings returns a flat Ward clustering of the embeddings.
func clusterEmbeddings(embeddings [][]float64, threshold float64) []int {
	n := len(embeddings)
	if n == 0 {
		return nil
	}
	dist := pairwiseDistances(embeddings)
	merges := wardLinkage(dist, n)
	return cutDendrogram(merges, n, threshold)
}
