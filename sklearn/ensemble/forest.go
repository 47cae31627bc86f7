// Package ensemble provides a random forest classifier built on sklearn/tree.
package ensemble

import (
	"bytes"
	"context"
	"encoding/gob"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/core/model"
	"github.com/YuminosukeSato/mindepth/core/parallel"
	"github.com/YuminosukeSato/mindepth/pkg/errors"
	"github.com/YuminosukeSato/mindepth/pkg/log"
	"github.com/YuminosukeSato/mindepth/sklearn/tree"
)

// treeStreamOffset separates the random stream of a tree's feature sampling
// from the stream used for its bootstrap sample.
const treeStreamOffset = 1 << 32

// RandomForestClassifier はブートストラップ標本で学習した決定木の集合
type RandomForestClassifier struct {
	state *model.StateManager

	nEstimators     int
	criterion       string
	maxDepth        int // <= 0 は無制限
	minSamplesSplit int
	minSamplesLeaf  int
	maxFeatures     string
	bootstrap       bool
	randomState     uint64
	nJobs           int // <= 0 は runtime.NumCPU()

	classes_            []float64
	nFeatures_          int
	trees_              []*tree.Structure
	featureImportances_ []float64

	logger log.Logger
}

// Option はRandomForestClassifierの設定関数
type Option func(*RandomForestClassifier)

// WithNEstimators は木の本数を設定する
func WithNEstimators(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nEstimators = n }
}

// WithCriterion は分割基準を設定する
func WithCriterion(c string) Option {
	return func(rf *RandomForestClassifier) { rf.criterion = c }
}

// WithMaxDepth は各木の最大深さを設定する。0以下は無制限。
func WithMaxDepth(d int) Option {
	return func(rf *RandomForestClassifier) { rf.maxDepth = d }
}

// WithMinSamplesSplit は分割に必要な最小サンプル数を設定する
func WithMinSamplesSplit(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesSplit = n }
}

// WithMinSamplesLeaf は葉の最小サンプル数を設定する
func WithMinSamplesLeaf(n int) Option {
	return func(rf *RandomForestClassifier) { rf.minSamplesLeaf = n }
}

// WithMaxFeatures は各分割で検討する特徴量数の規則を設定する（"sqrt", "log2", ""）
func WithMaxFeatures(rule string) Option {
	return func(rf *RandomForestClassifier) { rf.maxFeatures = rule }
}

// WithBootstrap はブートストラップ標本を使うかどうかを設定する
func WithBootstrap(b bool) Option {
	return func(rf *RandomForestClassifier) { rf.bootstrap = b }
}

// WithRandomState は乱数シードを設定する。木 i は (seed, i) から導いた乱数列を使う。
func WithRandomState(seed uint64) Option {
	return func(rf *RandomForestClassifier) { rf.randomState = seed }
}

// WithNJobs は木の学習に使うワーカー数を設定する
func WithNJobs(n int) Option {
	return func(rf *RandomForestClassifier) { rf.nJobs = n }
}

// NewRandomForestClassifier は新しいランダムフォレストを作成する。
// デフォルトは scikit-learn と同じく100本、gini、深さ無制限、max_features="sqrt"。
func NewRandomForestClassifier(opts ...Option) *RandomForestClassifier {
	rf := &RandomForestClassifier{
		state:           model.NewStateManager(),
		nEstimators:     100,
		criterion:       "gini",
		minSamplesSplit: 2,
		minSamplesLeaf:  1,
		maxFeatures:     "sqrt",
		bootstrap:       true,
		logger:          log.GetLoggerWithName("ensemble"),
	}
	for _, opt := range opts {
		opt(rf)
	}
	return rf
}

func (rf *RandomForestClassifier) validate() error {
	if rf.nEstimators < 1 {
		return errors.NewValidationError("n_estimators", "must be at least 1", rf.nEstimators)
	}
	if _, err := tree.ResolveMaxFeatures(rf.maxFeatures, 1); err != nil {
		return err
	}
	return nil
}

// Fit は学習データでフォレストを構築する
func (rf *RandomForestClassifier) Fit(X, y mat.Matrix) error {
	return rf.FitContext(context.Background(), X, y)
}

// FitContext は木の学習を nJobs 個のワーカーで並列に行う。
// ctx がキャンセルされると未開始の木は学習されずエラーを返す。
func (rf *RandomForestClassifier) FitContext(ctx context.Context, X, y mat.Matrix) error {
	if err := rf.validate(); err != nil {
		return err
	}
	if X == nil || y == nil {
		return errors.NewValueError("RandomForestClassifier.Fit", "X and y must not be nil")
	}
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return errors.NewModelError("RandomForestClassifier.Fit", "empty data", errors.ErrEmptyData)
	}
	if yr, _ := y.Dims(); yr != r {
		return errors.NewDimensionError("RandomForestClassifier.Fit", r, yr, 0)
	}

	rows := tree.RowsOf(X)
	labels := mat.Col(nil, 0, y)
	classes := tree.UniqueClasses(labels)
	if len(classes) < 2 {
		return errors.Wrap(errors.ErrSingleClass, "RandomForestClassifier.Fit")
	}

	trees := make([]*tree.Structure, rf.nEstimators)
	importances := make([][]float64, rf.nEstimators)
	err := parallel.ForEach(ctx, rf.nEstimators, rf.nJobs, "RandomForestClassifier.Fit", func(_ context.Context, i int) error {
		var samples []int
		if rf.bootstrap {
			rng := rand.New(rand.NewPCG(rf.randomState, uint64(i)))
			samples = make([]int, r)
			for k := range samples {
				samples[k] = rng.IntN(r)
			}
		}
		dt := tree.NewDecisionTreeClassifier(
			tree.WithCriterion(rf.criterion),
			tree.WithMaxDepth(rf.maxDepth),
			tree.WithMinSamplesSplit(rf.minSamplesSplit),
			tree.WithMinSamplesLeaf(rf.minSamplesLeaf),
			tree.WithMaxFeatures(rf.maxFeatures),
			tree.WithRandomState(rf.randomState, uint64(i)+treeStreamOffset),
		)
		if err := dt.FitRows(rows, labels, classes, samples); err != nil {
			return errors.Wrapf(err, "fitting tree %d", i)
		}
		trees[i] = dt.Tree()
		importances[i] = dt.GetFeatureImportances()
		return nil
	})
	if err != nil {
		return err
	}

	mean := make([]float64, c)
	for _, imp := range importances {
		floats.Add(mean, imp)
	}
	if total := floats.Sum(mean); total > 0 {
		floats.Scale(1/total, mean)
	}

	rf.classes_ = classes
	rf.nFeatures_ = c
	rf.trees_ = trees
	rf.featureImportances_ = mean
	rf.state.SetDimensions(c, r)
	rf.state.SetFitted()

	rf.logger.Debug("forest fitted",
		log.ModelNameKey, "RandomForestClassifier",
		log.SamplesKey, r,
		log.FeaturesKey, c,
		"n_estimators", rf.nEstimators,
	)
	return nil
}

// PredictProba は木ごとのクラス比率の平均を (n_samples, n_classes) で返す
func (rf *RandomForestClassifier) PredictProba(X mat.Matrix) (mat.Matrix, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != rf.nFeatures_ {
		return nil, errors.NewDimensionError("RandomForestClassifier.PredictProba", rf.nFeatures_, c, 1)
	}

	rows := tree.RowsOf(X)
	nClasses := len(rf.classes_)
	proba := mat.NewDense(r, nClasses, nil)
	rf.forRows(r, func(start, end int) {
		acc := make([]float64, nClasses)
		for i := start; i < end; i++ {
			for k := range acc {
				acc[k] = 0
			}
			for _, t := range rf.trees_ {
				floats.Add(acc, t.Predict(rows[i]))
			}
			floats.Scale(1/float64(len(rf.trees_)), acc)
			proba.SetRow(i, acc)
		}
	})
	return proba, nil
}

// forRows は行ブロックに fn を適用する。nJobs == 1 の森は ForEach のタスク内で
// 使われるので、呼び出し元のゴルーチンで順に処理する。
func (rf *RandomForestClassifier) forRows(r int, fn func(start, end int)) {
	if rf.nJobs == 1 {
		fn(0, r)
		return
	}
	parallel.ParallelizeWithThreshold(r, 64, fn)
}

// PredictProbaPositive は指定したラベルの列だけを返す
func (rf *RandomForestClassifier) PredictProbaPositive(X mat.Matrix, label float64) ([]float64, error) {
	k, err := rf.classIndex(label)
	if err != nil {
		return nil, err
	}
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	return mat.Col(nil, k, proba), nil
}

// Predict は確率が最大のクラスラベルを (n_samples, 1) で返す
func (rf *RandomForestClassifier) Predict(X mat.Matrix) (mat.Matrix, error) {
	proba, err := rf.PredictProba(X)
	if err != nil {
		return nil, err
	}
	r, _ := proba.Dims()
	pred := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		row := mat.Row(nil, i, proba)
		pred.Set(i, 0, rf.classes_[floats.MaxIdx(row)])
	}
	return pred, nil
}

// Score は正解率を返す
func (rf *RandomForestClassifier) Score(X, y mat.Matrix) (float64, error) {
	pred, err := rf.Predict(X)
	if err != nil {
		return 0, err
	}
	r, _ := pred.Dims()
	correct := 0
	for i := 0; i < r; i++ {
		if pred.At(i, 0) == y.At(i, 0) {
			correct++
		}
	}
	return float64(correct) / float64(r), nil
}

func (rf *RandomForestClassifier) classIndex(label float64) (int, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "PredictProba"); err != nil {
		return 0, err
	}
	for k, c := range rf.classes_ {
		if c == label {
			return k, nil
		}
	}
	return 0, errors.NewValueError("RandomForestClassifier", "unknown class label")
}

// Classes は学習時のラベルを昇順で返す
func (rf *RandomForestClassifier) Classes() []float64 {
	return rf.classes_
}

// Trees は学習済みの木構造を返す
func (rf *RandomForestClassifier) Trees() []*tree.Structure {
	return rf.trees_
}

// NFeatures は学習時の特徴量数を返す
func (rf *RandomForestClassifier) NFeatures() int {
	return rf.nFeatures_
}

// GetFeatureImportances は木ごとの不純度重要度の平均（合計1に正規化）を返す
func (rf *RandomForestClassifier) GetFeatureImportances() []float64 {
	return rf.featureImportances_
}

// GetParams はハイパーパラメータを返す
func (rf *RandomForestClassifier) GetParams() map[string]interface{} {
	return map[string]interface{}{
		"n_estimators":      rf.nEstimators,
		"criterion":         rf.criterion,
		"max_depth":         rf.maxDepth,
		"min_samples_split": rf.minSamplesSplit,
		"min_samples_leaf":  rf.minSamplesLeaf,
		"max_features":      rf.maxFeatures,
		"bootstrap":         rf.bootstrap,
		"random_state":      rf.randomState,
		"n_jobs":            rf.nJobs,
	}
}

// SetParams はハイパーパラメータを設定する
func (rf *RandomForestClassifier) SetParams(params map[string]interface{}) error {
	for key, value := range params {
		switch key {
		case "n_estimators", "max_depth", "min_samples_split", "min_samples_leaf", "n_jobs":
			v, ok := value.(int)
			if !ok {
				return errors.NewValidationError(key, "must be an int", value)
			}
			switch key {
			case "n_estimators":
				rf.nEstimators = v
			case "max_depth":
				rf.maxDepth = v
			case "min_samples_split":
				rf.minSamplesSplit = v
			case "min_samples_leaf":
				rf.minSamplesLeaf = v
			case "n_jobs":
				rf.nJobs = v
			}
		case "criterion", "max_features":
			v, ok := value.(string)
			if !ok {
				return errors.NewValidationError(key, "must be a string", value)
			}
			if key == "criterion" {
				rf.criterion = v
			} else {
				rf.maxFeatures = v
			}
		case "bootstrap":
			v, ok := value.(bool)
			if !ok {
				return errors.NewValidationError(key, "must be a bool", value)
			}
			rf.bootstrap = v
		case "random_state":
			v, ok := value.(uint64)
			if !ok {
				return errors.NewValidationError(key, "must be a uint64", value)
			}
			rf.randomState = v
		default:
			return errors.NewValidationError(key, "unknown parameter", value)
		}
	}
	return rf.validate()
}

// forestSnapshot is the gob form of a fitted forest.
type forestSnapshot struct {
	Params             map[string]interface{}
	Classes            []float64
	NFeatures          int
	Trees              []*tree.Structure
	FeatureImportances []float64
}

// GobEncode implements gob.GobEncoder so that model.SaveModel can persist a fitted forest.
func (rf *RandomForestClassifier) GobEncode() ([]byte, error) {
	if err := rf.state.RequireFitted("RandomForestClassifier", "GobEncode"); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(forestSnapshot{
		Params:             rf.GetParams(),
		Classes:            rf.classes_,
		NFeatures:          rf.nFeatures_,
		Trees:              rf.trees_,
		FeatureImportances: rf.featureImportances_,
	})
	if err != nil {
		return nil, errors.Wrap(err, "encoding forest")
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (rf *RandomForestClassifier) GobDecode(data []byte) error {
	var snap forestSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&snap); err != nil {
		return errors.Wrap(err, "decoding forest")
	}
	fresh := NewRandomForestClassifier()
	if err := fresh.SetParams(snap.Params); err != nil {
		return err
	}
	*rf = *fresh
	rf.classes_ = snap.Classes
	rf.nFeatures_ = snap.NFeatures
	rf.trees_ = snap.Trees
	rf.featureImportances_ = snap.FeatureImportances
	rf.state.SetDimensions(snap.NFeatures, 0)
	rf.state.SetFitted()
	return nil
}
