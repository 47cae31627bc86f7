// Package tree implements a CART decision tree classifier.
//
// The fitted tree is exposed as a *Structure (parallel arrays, root at 0) so
// that ensembles and analysis code can walk it without depending on the
// classifier type.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

// DecisionTreeClassifier はCARTアルゴリズムによる決定木分類器
type DecisionTreeClassifier struct {
	state *model.StateManager

	// ハイパーパラメータ
	criterion       string // "gini" または "entropy"
	maxDepth        int    // <= 0 は無制限
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string // "", "sqrt", "log2"
	randomState     uint64
	randomStream    uint64

	// 学習結果
	classes_            []float64
	nClasses_           int
	nFeatures_          int
	tree_               *Structure
	featureImportances_ []float64
}

// Option はDecisionTreeClassifierの設定関数
type Option func(*DecisionTreeClassifier)

// WithCriterion は分割基準を設定する（"gini" または "entropy"）
func WithCriterion(criterion string) Option {
	return func(dt *DecisionTreeClassifier) { dt.criterion = criterion }
}

// WithMaxDepth は木の最大深さを設定する。0以下は無制限。
func WithMaxDepth(depth int) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxDepth = depth }
}

// WithMinSamplesSplit は内部ノードを分割するのに必要な最小サンプル数を設定する
func WithMinSamplesSplit(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesSplit = n }
}

// WithMinSamplesLeaf は葉に必要な最小サンプル数を設定する
func WithMinSamplesLeaf(n int) Option {
	return func(dt *DecisionTreeClassifier) { dt.minSamplesLeaf = n }
}

// WithMaxFeatures は各分割で検討する特徴量数の規則を設定する（"", "sqrt", "log2"）
func WithMaxFeatures(rule string) Option {
	return func(dt *DecisionTreeClassifier) { dt.maxFeatures = rule }
}

// WithRandomState は特徴量の走査順を決める乱数のシードとストリームを設定する
func WithRandomState(seed, stream uint64) Option {
	return func(dt *DecisionTreeClassifier) {
		dt.randomState = seed
		dt.randomStream = stream
	}
}

// NewDecisionTreeClassifier は新しい決定木分類器を作成する
//
// 使用例:
//
//	dt := tree.NewDecisionTreeClassifier(
//	    tree.WithCriterion("gini"),
//	    tree.WithMaxDepth(5),
//	)
//	err := dt.Fit(X, y)
func NewDecisionTreeClassifier(opts ...Option) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		state:           model.NewStateManager(),
		criterion:       "gini",
		maxDepth:        0,
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// ResolveMaxFeatures は規則と特徴量数から、各分割で検討する特徴量数を返す
func ResolveMaxFeatures(rule string, nFeatures int) (int, error) {
	var k int
	switch rule {
	case "", "all", "none":
		k = nFeatures
	case "sqrt":
		k = int(math.Sqrt(float64(nFeatures)))
	case "log2":
		k = int(math.Log2(float64(nFeatures)))
	default:
		return 0, errors.NewValidationError("max_features", "must be one of sqrt, log2 or empty", rule)
	}
	if k < 1 {
		k = 1
	}
	return k, nil
}

func (dt *DecisionTreeClassifier) validate() error {
	if dt.criterion != "gini" && dt.criterion != "entropy" {
		return errors.NewValidationError("criterion", "must be gini or entropy", dt.criterion)
	}
	if dt.minSamplesSplit < 2 {
		return errors.NewValidationError("min_samples_split", "must be at least 2", dt.minSamplesSplit)
	}
	if dt.minSamplesLeaf < 1 {
		return errors.NewValidationError("min_samples_leaf", "must be at least 1", dt.minSamplesLeaf)
	}
	return nil
}

// UniqueClasses は y に含まれるラベルを昇順で返す
func UniqueClasses(y []float64) []float64 {
	seen := make(map[float64]struct{})
	classes := make([]float64, 0, 2)
	for _, v := range y {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			classes = append(classes, v)
		}
	}
	sort.Float64s(classes)
	return classes
}

// Fit は学習データで決定木を構築する。y は (n_samples, 1) の行列。
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) error {
	rows, labels, err := toRows("DecisionTreeClassifier.Fit", X, y)
	if err != nil {
		return err
	}
	return dt.FitRows(rows, labels, UniqueClasses(labels), nil)
}

// FitRows は行スライス形式のデータで学習する。
//
// classes は確率の列順を決めるラベル一覧で、samples は使用する行番号（重複可）。
// samples が nil なら全行を使う。ランダムフォレストはブートストラップ標本をここに渡す。
func (dt *DecisionTreeClassifier) FitRows(rows [][]float64, y, classes []float64, samples []int) error {
	if err := dt.validate(); err != nil {
		return err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if len(rows) != len(y) {
		return errors.NewDimensionError("DecisionTreeClassifier.Fit", len(rows), len(y), 0)
	}
	if len(classes) == 0 {
		return errors.NewValueError("DecisionTreeClassifier.Fit", "no classes given")
	}

	index := make(map[float64]int, len(classes))
	for k, c := range classes {
		index[c] = k
	}
	encoded := make([]int, len(y))
	for i, v := range y {
		k, ok := index[v]
		if !ok {
			return errors.NewValueError("DecisionTreeClassifier.Fit", fmt.Sprintf("label %v not in classes %v", v, classes))
		}
		encoded[i] = k
	}

	nFeatures := len(rows[0])
	maxFeatures, err := ResolveMaxFeatures(dt.maxFeatures, nFeatures)
	if err != nil {
		return err
	}
	crit := gini
	if dt.criterion == "entropy" {
		crit = entropy
	}

	if samples == nil {
		samples = make([]int, len(rows))
		for i := range samples {
			samples[i] = i
		}
	} else {
		samples = append([]int(nil), samples...)
	}
	if len(samples) == 0 {
		return errors.NewModelError("DecisionTreeClassifier.Fit", "empty sample set", errors.ErrEmptyData)
	}

	b := &builder{
		rows:     rows,
		y:        encoded,
		nClasses: len(classes),
		params: buildParams{
			criterion:       crit,
			maxDepth:        dt.maxDepth,
			minSamplesSplit: dt.minSamplesSplit,
			minSamplesLeaf:  dt.minSamplesLeaf,
			maxFeatures:     maxFeatures,
		},
		rng: rand.New(rand.NewPCG(dt.randomState, dt.randomStream)),
	}
	b.build(samples)

	total := 0.0
	for _, v := range b.importances {
		total += v
	}
	if total > 0 {
		for j := range b.importances {
			b.importances[j] /= total
		}
	}

	dt.classes_ = append([]float64(nil), classes...)
	dt.nClasses_ = len(classes)
	dt.nFeatures_ = nFeatures
	dt.tree_ = b.tree
	dt.featureImportances_ = b.importances
	dt.state.SetDimensions(nFeatures, len(samples))
	dt.state.SetFitted()
	return nil
}

// PredictProba は各クラスの確率を (n_samples, n_classes) の行列で返す
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != dt.nFeatures_ {
		return nil, errors.NewDimensionError("DecisionTreeClassifier.PredictProba", dt.nFeatures_, c, 1)
	}

	proba := mat.NewDense(r, dt.nClasses_, nil)
	x := make([]float64, c)
	for i := 0; i < r; i++ {
		mat.Row(x, i, X)
		proba.SetRow(i, dt.tree_.Predict(x))
	}
	return proba, nil
}

// Predict はクラスラベルを (n_samples, 1) の行列で返す
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	if err := dt.state.RequireFitted("DecisionTreeClassifier", "Predict"); err != nil {
		return nil, err
	}
	proba, err := dt.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	pred := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		pred.Set(i, 0, dt.classes_[argmax(mat.Row(nil, i, proba))])
	}
	return pred, nil
}

// Score は正解率を返す。予測に失敗した場合は0を返す。
func (dt *DecisionTreeClassifier) Score(X, y mat.Matrix) float64 {
	pred, err := dt.Predict(X)
	if err != nil {
		return 0
	}
	r, _ := pred.Dims()
	if r == 0 {
		return 0
	}
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r)
}

// Classes は学習時に見たラベルを昇順で返す
func (dt *DecisionTreeClassifier) Classes() []float64 {
	return dt.classes_
}

// Tree は学習済みの木構造を返す。未学習なら nil。
func (dt *DecisionTreeClassifier) Tree() *Structure {
	return dt.tree_
}

// GetFeatureImportances は正規化済みの不純度減少量による特徴量重要度を返す
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	return dt.featureImportances_
}

// GetDepth は木の深さを返す
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.MaxDepth()
}

// GetNLeaves は葉の数を返す
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	if dt.tree_ == nil {
		return 0
	}
	return dt.tree_.NLeaves()
}

// GetParams はハイパーパラメータを返す
func (dt *DecisionTreeClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"criterion":         dt.criterion,
		"max_depth":         dt.maxDepth,
		"min_samples_split": dt.minSamplesSplit,
		"min_samples_leaf":  dt.minSamplesLeaf,
		"max_features":      dt.maxFeatures,
		"random_state":      dt.randomState,
	}
}

// SetParams はハイパーパラメータを設定する
func (dt *DecisionTreeClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "criterion":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.criterion = v
		case "max_depth", "min_samples_split", "min_samples_leaf":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "max_depth":
				dt.maxDepth = v
			case "min_samples_split":
				dt.minSamplesSplit = v
			case "min_samples_leaf":
				dt.minSamplesLeaf = v
			}
		case "max_features":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			dt.maxFeatures = v
		case "random_state":
			v, ok := value.(uint64)
			if !ok {
				return errors.NewValidationError(key, "must be a uint64", value)
			}
			dt.randomState = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return dt.validate()
}

func argmax(v []float64) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

// toRows copies X into row slices and y into a flat label slice.
func toRows(op string, X, y mat.Matrix) ([][]float64, []float64, error) {
	if X == nil || y == nil {
		return nil, nil, errors.NewValueError(op, "X and y must not be nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return nil, nil, errors.NewModelError(op, "empty data", errors.ErrEmptyData)
	}
	yr, _ := y.Dims()
	if yr != r {
		return nil, nil, errors.NewDimensionError(op, r, yr, 0)
	}
	rows := RowsOf(X)
	labels := mat.Col(nil, 0, y)
	return rows, labels, nil
}

// RowsOf returns X as row slices. For *mat.Dense the rows share its backing
// array, so X must not be modified while the rows are in use.
func RowsOf(X mat.Matrix) [][]float64 {
	r, c := X.Dims()
	rows := make([][]float64, r)
	if d, ok := X.(*mat.Dense); ok {
		for i := 0; i < r; i++ {
			rows[i] = d.RawRowView(i)
		}
		return rows
	}
	for i := 0; i < r; i++ {
		rows[i] = mat.Row(make([]float64, c), i, X)
	}
	return rows
}
