package ensemble

import (
	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/mindepth/pkg/errors"
)

// Attribution は予測確率の特徴量ごとの経路分解
type Attribution struct {
	// Values は (n_samples, n_features) の寄与行列
	Values *mat.Dense
	// BaseValue は根ノードでのクラス比率の木平均。全サンプル共通。
	BaseValue float64
}

// PathAttribution は P(label) を決定経路に沿って特徴量へ分解する（Saabas法）。
//
// 各木で、親から子へ進むたびに変化したクラス比率を親の分割特徴量に加算し、
// 木について平均する。BaseValue + 行の和 は PredictProba の該当列に一致する。
func (rf *RandomForestClassifier) PathAttribution(X mat.Matrix, label float64) (*Attribution, error) {
	k, err := rf.classIndex(label)
	if err != nil {
		return nil, err
	}
	r, c := X.Dims()
	if c != rf.nFeatures_ {
		return nil, errors.NewDimensionError("RandomForestClassifier.PathAttribution", rf.nFeatures_, c, 1)
	}

	nTrees := float64(len(rf.trees_))
	base := 0.0
	for _, t := range rf.trees_ {
		base += t.Value[0][k]
	}
	base /= nTrees

	values := mat.NewDense(r, c, nil)
	rf.forRows(r, func(start, end int) {
		x := make([]float64, c)
		contrib := make([]float64, c)
		for i := start; i < end; i++ {
			mat.Row(x, i, X)
			for j := range contrib {
				contrib[j] = 0
			}
			for _, t := range rf.trees_ {
				path := t.DecisionPath(x)
				for p := 1; p < len(path); p++ {
					parent, child := path[p-1], path[p]
					contrib[t.Feature[parent]] += t.Value[child][k] - t.Value[parent][k]
				}
			}
			for j := range contrib {
				contrib[j] /= nTrees
			}
			values.SetRow(i, contrib)
		}
	})

	return &Attribution{Values: values, BaseValue: base}, nil
}

// MeanAbs は特徴量ごとの寄与の絶対値の平均を返す
func (a *Attribution) MeanAbs() []float64 {
	r, c := a.Values.Dims()
	out := make([]float64, c)
	if r == 0 {
		return out
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := a.Values.At(i, j)
			if v < 0 {
				v = -v
			}
			out[j] += v
		}
	}
	for j := range out {
		out[j] /= float64(r)
	}
	return out
}
