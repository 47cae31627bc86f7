package selection

import (
	"context"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/sklearn/ensemble"
	"github.com/YuminosukeSato/mindepth/sklearn/tree"
)

// MinimalDepth is one entry of a minimal-depth profile.
type MinimalDepth struct {
	Feature   string
	MeanDepth float64 // mean over the trees that split on Feature; root = 0
	Trees     int     // number of trees that split on Feature
}

// TreeMinimalDepths returns, for every feature used by the tree, the depth
// of its shallowest split. Nodes are visited in level order so the first
// record of a feature is its minimum; records are never overwritten.
func TreeMinimalDepths(s *tree.Structure) map[int]int {
	found := make(map[int]int)
	if s == nil || s.NodeCount() == 0 {
		return found
	}
	type item struct{ node, depth int }
	queue := []item{{0, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if s.IsLeaf(cur.node) {
			continue
		}
		f := s.Feature[cur.node]
		if _, seen := found[f]; !seen {
			found[f] = cur.depth
		}
		queue = append(queue,
			item{s.ChildrenLeft[cur.node], cur.depth + 1},
			item{s.ChildrenRight[cur.node], cur.depth + 1},
		)
	}
	return found
}

// ComputeProfile aggregates TreeMinimalDepths over an ensemble. names maps
// column indices to feature names. Features no tree uses are absent.
func ComputeProfile(trees []*tree.Structure, names []string) (map[string]MinimalDepth, error) {
	sums := make(map[int]int)
	counts := make(map[int]int)
	for ti, t := range trees {
		for f, d := range TreeMinimalDepths(t) {
			if f < 0 || f >= len(names) {
				return nil, errors.Newf("tree %d splits on feature %d outside the %d known names", ti, f, len(names))
			}
			sums[f] += d
			counts[f]++
		}
	}

	profile := make(map[string]MinimalDepth, len(counts))
	for f, n := range counts {
		profile[names[f]] = MinimalDepth{
			Feature:   names[f],
			MeanDepth: float64(sums[f]) / float64(n),
			Trees:     n,
		}
	}
	return profile, nil
}

// RankProfile orders a profile by mean depth ascending, then by tree count
// descending, then by position in pool. Features outside pool are dropped.
func RankProfile(profile map[string]MinimalDepth, pool []string) []MinimalDepth {
	position := make(map[string]int, len(pool))
	for i, f := range pool {
		position[f] = i
	}
	ranked := make([]MinimalDepth, 0, len(profile))
	for _, md := range profile {
		if _, ok := position[md.Feature]; ok {
			ranked = append(ranked, md)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.MeanDepth != b.MeanDepth {
			return a.MeanDepth < b.MeanDepth
		}
		if a.Trees != b.Trees {
			return a.Trees > b.Trees
		}
		return position[a.Feature] < position[b.Feature]
	})
	return ranked
}

// TopK returns the names of the first k ranked features. truncated reports
// that fewer than k features had a defined profile.
func TopK(ranked []MinimalDepth, k int) (names []string, truncated bool) {
	n := k
	if len(ranked) < k {
		n, truncated = len(ranked), true
	}
	names = make([]string, n)
	for i := 0; i < n; i++ {
		names[i] = ranked[i].Feature
	}
	return names, truncated
}

// DepthAnalyzer fits the fixed-configuration forest used for ranking.
type DepthAnalyzer struct {
	nTrees  int
	seed    uint64
	workers int
	logger  log.Logger
}

// NewDepthAnalyzer creates a DepthAnalyzer from the run options.
func NewDepthAnalyzer(opts Options) *DepthAnalyzer {
	return &DepthAnalyzer{
		nTrees:  opts.DepthTrees,
		seed:    opts.Seed,
		workers: opts.Workers,
		logger:  log.GetLoggerWithName("depth"),
	}
}

// Fit trains the ranking forest: unlimited depth, sqrt feature sampling.
func (a *DepthAnalyzer) Fit(ctx context.Context, X mat.Matrix, y []float64) (*ensemble.RandomForestClassifier, error) {
	rf := ensemble.NewRandomForestClassifier(
		ensemble.WithNEstimators(a.nTrees),
		ensemble.WithMaxDepth(0),
		ensemble.WithMaxFeatures("sqrt"),
		ensemble.WithRandomState(a.seed),
		ensemble.WithNJobs(a.workers),
	)
	if err := rf.FitContext(ctx, X, mat.NewDense(len(y), 1, y)); err != nil {
		return nil, err
	}
	return rf, nil
}

// Rank profiles a fitted forest over pool (the forest's column names) and
// returns the ranking. An empty ranking is an error.
func (a *DepthAnalyzer) Rank(rf *ensemble.RandomForestClassifier, pool []string) ([]MinimalDepth, error) {
	profile, err := ComputeProfile(rf.Trees(), pool)
	if err != nil {
		return nil, err
	}
	ranked := RankProfile(profile, pool)
	if len(ranked) == 0 {
		return nil, errors.New("no candidate feature is used by any tree")
	}
	a.logger.Debug("minimal depth profile",
		log.CandidatesKey, len(pool),
		"profiled", len(ranked),
		"shallowest", ranked[0].Feature,
	)
	return ranked, nil
}
