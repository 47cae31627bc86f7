package tree

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// featureThreshold 以下の差しかない隣接値の間では分割しない
const featureThreshold = 1e-7

// impurityEpsilon 以下の不純度のノードは純粋とみなして葉にする
const impurityEpsilon = 1e-7

type criterionFunc func(counts []float64, n float64) float64

func gini(counts []float64, n float64) float64 {
	sq := 0.0
	for _, c := range counts {
		p := c / n
		sq += p * p
	}
	return 1 - sq
}

func entropy(counts []float64, n float64) float64 {
	h := 0.0
	for _, c := range counts {
		if c > 0 {
			p := c / n
			h -= p * math.Log2(p)
		}
	}
	return h
}

type buildParams struct {
	criterion       criterionFunc
	maxDepth        int // <= 0 は無制限
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     int
}

// builder grows a tree depth first, like scikit-learn's DepthFirstTreeBuilder.
type builder struct {
	rows     [][]float64
	y        []int
	nClasses int
	params   buildParams
	rng      *rand.Rand

	tree        *Structure
	importances []float64

	// scratch buffers reused across nodes
	vals []float64
	perm []int
}

type stackRecord struct {
	start, end int
	depth      int
	parent     int
	isLeft     bool
}

type split struct {
	feature   int
	threshold float64
	score     float64
}

func (b *builder) build(samples []int) {
	nFeatures := len(b.rows[0])
	b.tree = newStructure()
	b.importances = make([]float64, nFeatures)

	stack := []stackRecord{{start: 0, end: len(samples), depth: 0, parent: -1}}
	for len(stack) > 0 {
		rec := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := samples[rec.start:rec.end]
		n := len(node)
		counts := b.classCounts(node)
		impurity := b.params.criterion(counts, float64(n))

		isLeaf := (b.params.maxDepth > 0 && rec.depth >= b.params.maxDepth) ||
			n < b.params.minSamplesSplit ||
			n < 2*b.params.minSamplesLeaf ||
			impurity <= impurityEpsilon

		var best split
		found := false
		if !isLeaf {
			best, found = b.findSplit(node, counts)
		}

		value := make([]float64, b.nClasses)
		for k, c := range counts {
			value[k] = c / float64(n)
		}

		if !found {
			b.tree.addNode(rec.parent, rec.isLeft, TreeUndefined, TreeUndefined, impurity, n, value)
			continue
		}

		id := b.tree.addNode(rec.parent, rec.isLeft, best.feature, best.threshold, impurity, n, value)
		pos := b.partition(node, best.feature, best.threshold)

		// 重み付き不純度減少量を特徴量重要度に加算
		b.importances[best.feature] += float64(n)*impurity - best.score

		// 左の子を先に処理するため右を先に積む
		stack = append(stack,
			stackRecord{start: rec.start + pos, end: rec.end, depth: rec.depth + 1, parent: id, isLeft: false},
			stackRecord{start: rec.start, end: rec.start + pos, depth: rec.depth + 1, parent: id, isLeft: true},
		)
	}
}

func (b *builder) classCounts(node []int) []float64 {
	counts := make([]float64, b.nClasses)
	for _, s := range node {
		counts[b.y[s]]++
	}
	return counts
}

// findSplit searches the best threshold over a random subset of features.
// Constant features do not count towards maxFeatures.
func (b *builder) findSplit(node []int, counts []float64) (split, bool) {
	n := len(node)
	nFeatures := len(b.rows[0])
	if cap(b.vals) < n {
		b.vals = make([]float64, n)
		b.perm = make([]int, n)
	}
	vals, perm := b.vals[:n], b.perm[:n]

	best := split{score: math.Inf(1)}
	found := false
	visited := 0
	left := make([]float64, b.nClasses)
	right := make([]float64, b.nClasses)

	for _, f := range b.rng.Perm(nFeatures) {
		if visited >= b.params.maxFeatures {
			break
		}
		for i, s := range node {
			vals[i] = b.rows[s][f]
		}
		floats.Argsort(vals, perm)
		if vals[n-1] <= vals[0]+featureThreshold {
			continue
		}
		visited++

		for k := range left {
			left[k] = 0
		}
		for i := 0; i < n-1; i++ {
			left[b.y[node[perm[i]]]]++
			if vals[i+1] <= vals[i]+featureThreshold {
				continue
			}
			nLeft := i + 1
			nRight := n - nLeft
			if nLeft < b.params.minSamplesLeaf || nRight < b.params.minSamplesLeaf {
				continue
			}
			for k := range right {
				right[k] = counts[k] - left[k]
			}
			score := float64(nLeft)*b.params.criterion(left, float64(nLeft)) +
				float64(nRight)*b.params.criterion(right, float64(nRight))
			if score < best.score {
				threshold := vals[i]/2 + vals[i+1]/2
				if threshold >= vals[i+1] || math.IsInf(threshold, 0) {
					threshold = vals[i]
				}
				best = split{feature: f, threshold: threshold, score: score}
				found = true
			}
		}
	}
	return best, found
}

// partition reorders node so that samples going left come first and
// returns the number of left samples.
func (b *builder) partition(node []int, feature int, threshold float64) int {
	i, j := 0, len(node)-1
	for i <= j {
		if b.rows[node[i]][feature] <= threshold {
			i++
		} else {
			node[i], node[j] = node[j], node[i]
			j--
		}
	}
	return i
}
